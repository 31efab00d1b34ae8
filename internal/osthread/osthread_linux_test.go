// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package osthread

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockedThread runs fn on a goroutine locked to a thread that is discarded
// afterwards, so name and affinity changes cannot leak into other tests.
func lockedThread(t *testing.T, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		runtime.LockOSThread()
		fn()
	}()
	<-done
}

func TestSetName(t *testing.T) {
	lockedThread(t, func() {
		if !assert.NoError(t, SetName("runloop-worker-long-name")) {
			return
		}
		name, err := Name()
		assert.NoError(t, err)
		assert.Equal(t, "runloop-worker-", name)
	})
}

func TestSetAffinity(t *testing.T) {
	var (
		before []int
		err    error
	)
	lockedThread(t, func() {
		before, err = Affinity()
	})
	require.NoError(t, err)
	require.NotEmpty(t, before)

	lockedThread(t, func() {
		if !assert.NoError(t, SetAffinity(before[:1])) {
			return
		}
		after, err := Affinity()
		assert.NoError(t, err)
		assert.Equal(t, before[:1], after)
	})
}

func TestID(t *testing.T) {
	var a, b int
	lockedThread(t, func() { a = ID() })
	lockedThread(t, func() { b = ID() })
	assert.NotZero(t, a)
	assert.NotZero(t, b)
	assert.NotEqual(t, a, b)
}
