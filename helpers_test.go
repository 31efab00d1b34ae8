// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package runloop

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (x *syncBuffer) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.b.Write(p)
}

func (x *syncBuffer) String() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.b.String()
}

// newTestRegistry returns a registry that is shut down when the test ends.
func newTestRegistry(t *testing.T, opts ...RegistryOption) *Registry {
	t.Helper()
	r, err := NewRegistry(append([]RegistryOption{WithExitFunc(func(int) {
		t.Error("unexpected exit")
	})}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { r.Shutdown(0) })
	return r
}

// newLoggedRegistry is newTestRegistry, with a debug level JSON logger.
func newLoggedRegistry(t *testing.T, opts ...RegistryOption) (*Registry, *syncBuffer) {
	t.Helper()
	var buf syncBuffer
	r := newTestRegistry(t, append([]RegistryOption{
		WithLogger(NewJSONLogger(&buf, logiface.LevelDebug)),
	}, opts...)...)
	return r, &buf
}

// loopHarness is a loop running on its own managed thread, held open by a
// Keep until released.
type loopHarness struct {
	r      *Registry
	loop   *Loop
	keep   *Keep
	thread ThreadID
}

// startLoop starts a managed thread that creates a loop, takes a keep on it,
// calls setup (if non-nil), then runs the loop until it goes idle.
func startLoop(t *testing.T, r *Registry, setup func(l *Loop), opts ...RunOption) *loopHarness {
	t.Helper()
	ready := make(chan *loopHarness, 1)
	id := r.Detach(func(th *Thread) {
		l := r.CurrentLoop()
		h := &loopHarness{r: r, loop: l, keep: l.KeepAlive(t.Name(), false), thread: th.ID()}
		if setup != nil {
			setup(l)
		}
		ready <- h
		l.Run(opts...)
	}, "test-loop")
	require.NotZero(t, id)
	select {
	case h := <-ready:
		return h
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for loop")
		return nil
	}
}

// stop releases the harness keep, and waits for the thread to end.
func (h *loopHarness) stop(t *testing.T) {
	t.Helper()
	h.keep.Release()
	require.True(t, h.r.WaitEnd(h.thread, testTimeout), "loop thread did not end")
}

// requireFatal asserts fn panics with a *FatalError wrapping target.
func requireFatal(t *testing.T, target error, fn func()) {
	t.Helper()
	var recovered any
	func() {
		defer func() { recovered = recover() }()
		fn()
	}()
	require.NotNil(t, recovered, "expected panic")
	err, ok := recovered.(*FatalError)
	require.True(t, ok, "expected *FatalError, got %T: %v", recovered, recovered)
	require.True(t, errors.Is(err, target), "expected %v, got %v", target, err)
}

// recorder collects labels, in order, from any goroutine.
type recorder struct {
	labels []string
	mu     sync.Mutex
}

func (x *recorder) add(label string) {
	x.mu.Lock()
	x.labels = append(x.labels, label)
	x.mu.Unlock()
}

func (x *recorder) get() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]string(nil), x.labels...)
}

// waitFor polls cond until it holds, failing the test on timeout.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, testTimeout, time.Millisecond, msg)
}
