// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package runloop

import (
	"errors"
)

// Standard errors.
var (
	// ErrReentrantRun indicates Run was called on a loop that is already running.
	ErrReentrantRun = errors.New("runloop: loop is already running")

	// ErrWrongThread indicates Run was called from a thread other than the loop's owner.
	ErrWrongThread = errors.New("runloop: loop must run on its owning thread")

	// ErrLoopDestroyed indicates use of a loop whose thread has already ended.
	ErrLoopDestroyed = errors.New("runloop: loop has been destroyed")

	// ErrNotManagedThread indicates the calling goroutine was not created by
	// (or adopted into) the registry.
	ErrNotManagedThread = errors.New("runloop: calling goroutine is not a managed thread")

	// ErrAlreadyManaged indicates a goroutine was registered twice.
	ErrAlreadyManaged = errors.New("runloop: goroutine is already a managed thread")

	// ErrNilCallback indicates a nil function was provided where one is required.
	ErrNilCallback = errors.New("runloop: nil callback")

	// ErrJoinSelf is returned when a thread attempts to wait for its own end.
	ErrJoinSelf = errors.New("runloop: cannot wait for the calling thread")

	// ErrPostDropped is returned when a post was refused, e.g. because the
	// target thread has been aborted or the registry is exiting.
	ErrPostDropped = errors.New("runloop: post dropped")
)

// FatalError models a contract violation, e.g. calling Run reentrantly.
// Such errors are never returned, they are raised as panics, after being
// logged at the critical level, and are never recovered by the loop.
type FatalError struct {
	Err    error
	Detail string
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

// Unwrap returns the underlying sentinel, for use with [errors.Is].
func (e *FatalError) Unwrap() error {
	return e.Err
}
