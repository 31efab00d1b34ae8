// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package runloop

import (
	"sync"
	"time"
)

var defaultRegistry struct {
	r  *Registry
	mu sync.Mutex
}

// Default returns the process-wide registry, creating it with default
// options on first use.
func Default() *Registry {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if defaultRegistry.r == nil {
		r, err := NewRegistry()
		if err != nil {
			panic(err)
		}
		defaultRegistry.r = r
	}
	return defaultRegistry.r
}

// SetDefault replaces the process-wide registry, returning the previous one
// (which may be nil). Intended for use during program initialization.
func SetDefault(r *Registry) *Registry {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	old := defaultRegistry.r
	defaultRegistry.r = r
	return old
}

// Detach calls Default().Detach.
func Detach(body func(t *Thread), name string) ThreadID {
	return Default().Detach(body, name)
}

// Abort calls Default().Abort.
func Abort(id ThreadID, wait time.Duration) {
	Default().Abort(id, wait)
}

// WaitEnd calls Default().WaitEnd.
func WaitEnd(id ThreadID, timeout time.Duration) bool {
	return Default().WaitEnd(id, timeout)
}

// CurrentThread calls Default().Current.
func CurrentThread() *Thread {
	return Default().Current()
}

// Current calls Default().CurrentLoop.
func Current() *Loop {
	return Default().CurrentLoop()
}

// MainLoop calls Default().MainLoop.
func MainLoop() *Loop {
	return Default().MainLoop()
}

// IsMainLoop calls Default().IsMainLoop.
func IsMainLoop() bool {
	return Default().IsMainLoop()
}

// Exit calls Default().Exit.
func Exit(code int) {
	Default().Exit(code)
}
