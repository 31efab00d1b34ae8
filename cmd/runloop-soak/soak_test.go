// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/go-runloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoak(t *testing.T) {
	r, err := runloop.NewRegistry(runloop.WithPoolSize(2))
	require.NoError(t, err)
	defer r.Shutdown(0)

	cfg := DefaultConfig()
	cfg.Threads = 3
	cfg.PostsPerThread = 50
	cfg.WorkPerThread = 4
	cfg.MaxDelay = Duration(time.Millisecond)

	ch := make(chan Result, 1)
	go func() {
		ch <- Soak(context.Background(), r, cfg)
	}()

	var result Result
	select {
	case result = <-ch:
	case <-time.After(10 * time.Second):
		t.Fatal("soak did not complete")
	}
	assert.True(t, result.Completed)
	assert.Equal(t, 3, result.Threads)
	assert.Equal(t, 150, result.Posts)
	assert.Equal(t, 12, result.Works)
	assert.Zero(t, r.Len())
}

func TestSoak_cancelled(t *testing.T) {
	r, err := runloop.NewRegistry(runloop.WithExitWait(100 * time.Millisecond))
	require.NoError(t, err)
	defer r.Shutdown(0)

	cfg := DefaultConfig()
	cfg.Threads = 1
	cfg.PostsPerThread = 1
	cfg.WorkPerThread = 0
	cfg.MaxDelay = Duration(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ch := make(chan Result, 1)
	go func() {
		ch <- Soak(ctx, r, cfg)
	}()
	select {
	case result := <-ch:
		assert.False(t, result.Completed)
	case <-time.After(10 * time.Second):
		t.Fatal("soak did not stop")
	}
}

func TestRootCommand(t *testing.T) {
	var code = -1
	cmd := newRootCommand(func(c int) { code = c })
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--threads", "2", "--posts", "10", "--work", "1", "--log-level", "err"})

	done := make(chan error, 1)
	go func() { done <- cmd.Execute() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("command did not complete")
	}

	assert.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(stdout.String(), "threads=2 posts=20 works=2 "), stdout.String())
	assert.Contains(t, stdout.String(), "completed=true")
}

func TestRootCommand_invalidFlags(t *testing.T) {
	cmd := newRootCommand(func(int) { t.Error("unexpected completion") })
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--threads", "0"})
	assert.Error(t, cmd.Execute())
}
