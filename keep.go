// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package runloop

import (
	"sync"
	"time"
	"weak"
)

// Keep is a liveness handle: while at least one Keep on a loop is live,
// Run will not return due to the loop being idle. A Keep also tags the
// callbacks posted through it with its own group, allowing them to be
// cancelled in bulk.
//
// A Keep does not prevent the loop's thread from ending. Once the loop has
// been destroyed, Post returns 0 (logging a warning), and the remaining
// methods are no-ops.
//
// Keep methods may be called from any goroutine.
type Keep struct {
	loop         weak.Pointer[Loop]
	registry     *Registry
	name         string
	gen          uint64
	group        GroupID
	once         sync.Once
	declareClear bool
}

// KeepAlive returns a new live Keep. If declareClear is true, releasing the
// Keep also cancels every pending callback posted through it.
func (l *Loop) KeepAlive(name string, declareClear bool) *Keep {
	gen := l.gen.Load()
	if gen == 0 {
		l.registry.fatal(ErrLoopDestroyed, "keep alive: "+name)
	}
	k := &Keep{
		loop:         weak.Make(l),
		registry:     l.registry,
		name:         name,
		gen:          gen,
		group:        NewGroupID(),
		declareClear: declareClear,
	}
	l.mu.Lock()
	l.keeps[k.group] = k
	l.mu.Unlock()
	return k
}

// Name returns the name given to KeepAlive.
func (k *Keep) Name() string { return k.name }

// Group returns the group tagging callbacks posted through the Keep.
func (k *Keep) Group() GroupID { return k.group }

// acquire returns the loop, if it has not been destroyed.
func (k *Keep) acquire() *Loop {
	l := k.loop.Value()
	if l == nil || l.gen.Load() != k.gen {
		return nil
	}
	return l
}

// Valid reports whether the Keep is live, i.e. it has not been released,
// and its loop has not been destroyed.
func (k *Keep) Valid() bool {
	l := k.acquire()
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.keeps[k.group] == k
}

// Post is Loop.Post, tagging cb with the Keep's group. Posting through a
// released Keep, or one whose loop was destroyed, returns 0.
func (k *Keep) Post(cb Callback, delay time.Duration) ID {
	l := k.acquire()
	if l == nil {
		k.warnStale("runloop: post through keep after its loop was destroyed")
		return 0
	}
	return l.post(cb, k, delay, false)
}

func (k *Keep) warnStale(msg string) {
	k.registry.warn.warning("stale keep").
		Str("name", k.name).
		Log(msg)
}

// Abort is Loop.Abort.
func (k *Keep) Abort(id ID) {
	if l := k.acquire(); l != nil {
		l.Abort(id)
	}
}

// Clear cancels every pending callback posted through the Keep.
func (k *Keep) Clear() {
	if l := k.acquire(); l != nil {
		l.mu.Lock()
		l.cancelGroupLocked(k.group)
		l.mu.Unlock()
	}
}

// Release drops the Keep, allowing the loop to become idle. Release is
// idempotent.
func (k *Keep) Release() {
	k.once.Do(func() {
		if l := k.acquire(); l != nil {
			l.releaseKeep(k)
		}
	})
}

func (l *Loop) releaseKeep(k *Keep) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.keeps[k.group] != k {
		return
	}
	if k.declareClear {
		l.cancelGroupLocked(k.group)
	}
	delete(l.keeps, k.group)
	if len(l.keeps) == 0 && l.queue.Len() == 0 {
		l.signal()
	}
}
