// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package runloop

import (
	"sync"
	"sync/atomic"
	"time"
)

// SpecificSlots is the number of per-thread storage slots, see
// Thread.Specific.
const SpecificSlots = 256

// Thread is a managed thread: a goroutine locked to an OS thread for its
// whole life, registered with a Registry. A Thread is created by
// Registry.Detach (or Registry.Adopt) and remains valid after it ends, though
// most operations become no-ops.
type Thread struct {
	registry *Registry
	done     chan struct{}
	loop     *Loop
	sleeper  chan struct{}
	name     string
	slots    [SpecificSlots]any
	mu       sync.Mutex
	id       ThreadID
	group    GroupID
	gid      uint64
	osTID    int
	aborted  atomic.Bool
	ended    atomic.Bool
}

func newThread(r *Registry, group GroupID, name string) *Thread {
	return &Thread{
		registry: r,
		done:     make(chan struct{}),
		name:     name,
		id:       ThreadID(nextID()),
		group:    group,
	}
}

// ID returns the thread's registry-assigned id.
func (t *Thread) ID() ThreadID { return t.id }

// Group returns the group the thread was started in.
func (t *Thread) Group() GroupID { return t.group }

// Name returns the name given at creation.
func (t *Thread) Name() string { return t.name }

// OSThreadID returns the kernel id of the underlying OS thread, where
// supported, or 0.
func (t *Thread) OSThreadID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.osTID
}

// Aborted reports whether the thread has been asked to stop. Long-running
// thread bodies are expected to poll it.
func (t *Thread) Aborted() bool { return t.aborted.Load() }

// Ended reports whether the thread body has returned.
func (t *Thread) Ended() bool { return t.ended.Load() }

// Done returns a channel that is closed once the thread has ended, and has
// been removed from its registry.
func (t *Thread) Done() <-chan struct{} { return t.done }

// Loop returns the thread's loop, or nil if none has been created.
func (t *Thread) Loop() *Loop {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loop
}

// Sleep blocks the calling goroutine until d elapses, or the thread is woken
// by Awaken or Abort. A non-positive d sleeps until woken. Sleep returns
// immediately if the thread has already been aborted. The return value is
// false if the thread has been aborted.
//
// Sleep is intended to be called by the thread itself.
func (t *Thread) Sleep(d time.Duration) bool {
	t.mu.Lock()
	if t.aborted.Load() {
		t.mu.Unlock()
		return false
	}
	ch := t.sleeper
	if ch == nil {
		ch = make(chan struct{})
		t.sleeper = ch
	}
	t.mu.Unlock()

	if d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ch:
		case <-timer.C:
		}
		timer.Stop()
	} else {
		<-ch
	}

	t.mu.Lock()
	if t.sleeper == ch {
		t.sleeper = nil
	}
	t.mu.Unlock()

	return !t.aborted.Load()
}

// Specific returns the value stored in the given slot, or nil.
//
// Slots are not synchronized, and are intended to be accessed only by the
// thread itself.
func (t *Thread) Specific(key uint8) any {
	return t.slots[key]
}

// SetSpecific stores v in the given slot. See also Specific.
func (t *Thread) SetSpecific(key uint8, v any) {
	t.slots[key] = v
}

// wakeLocked releases any sleeper. Requires t.mu.
func (t *Thread) wakeLocked() {
	if t.sleeper != nil {
		close(t.sleeper)
		t.sleeper = nil
	}
}

func (t *Thread) awaken() {
	t.mu.Lock()
	t.wakeLocked()
	t.mu.Unlock()
}

// abort flags the thread, stops its loop, and wakes it.
func (t *Thread) abort() {
	t.aborted.Store(true)
	t.mu.Lock()
	loop := t.loop
	t.wakeLocked()
	t.mu.Unlock()
	if loop != nil {
		loop.Stop()
	}
}

// currentLoop returns the thread's loop, creating it if necessary.
func (t *Thread) currentLoop() *Loop {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loop == nil {
		t.loop = newLoop(t.registry, t)
	}
	return t.loop
}
