// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package runloop

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Callback is a unit of work run by a Loop, on the loop's thread.
type Callback func(l *Loop)

// Loop is a per-thread cooperative run loop. Callbacks may be posted from any
// goroutine, but only ever run on the owning thread, during Run.
//
// Each managed thread has at most one Loop, created on first use, see
// Registry.CurrentLoop. The loop is destroyed when its thread ends.
type Loop struct {
	registry    *Registry
	thread      *Thread
	wake        chan struct{}
	index       map[ID]*entry
	keeps       map[GroupID]*Keep
	works       map[ID]*work
	independent sync.Locker
	idleSince   time.Time
	queue       dueQueue
	seq         uint64
	grace       time.Duration
	id          uint64
	mu          sync.Mutex
	gen         atomic.Uint64
	running     bool
	stopping    bool
}

func newLoop(r *Registry, t *Thread) *Loop {
	l := &Loop{
		registry: r,
		thread:   t,
		wake:     make(chan struct{}, 1),
		index:    make(map[ID]*entry),
		keeps:    make(map[GroupID]*Keep),
		works:    make(map[ID]*work),
		id:       nextID(),
	}
	l.gen.Store(l.id)
	return l
}

// ID returns an id unique to this loop.
func (l *Loop) ID() uint64 { return l.id }

// Thread returns the loop's owning thread.
func (l *Loop) Thread() *Thread { return l.thread }

// Registry returns the registry that owns the loop's thread.
func (l *Loop) Registry() *Registry { return l.registry }

func (l *Loop) destroyed() bool { return l.gen.Load() == 0 }

// Post queues cb to run on the loop's thread, after delay. Callbacks due at
// the same time run in the order they were posted. Post may be called from
// any goroutine, including from within a callback.
//
// The returned id may be passed to Abort. A zero id means the post was
// dropped, which happens if the thread has been aborted, or the registry is
// exiting. Posting to a destroyed loop panics.
func (l *Loop) Post(cb Callback, delay time.Duration) ID {
	return l.post(cb, nil, delay, true)
}

// post queues cb, tagged with the group of keep, if any. Internal posts
// (checked == false) never panic, they are dropped if the loop has been
// destroyed. Posts through a keep that is no longer registered are dropped.
func (l *Loop) post(cb Callback, keep *Keep, delay time.Duration, checked bool) ID {
	if cb == nil {
		l.registry.fatal(ErrNilCallback, "post")
	}
	if l.destroyed() {
		if checked {
			l.registry.fatal(ErrLoopDestroyed, "post")
		}
		return 0
	}
	if l.registry.exiting.Load() || l.thread.aborted.Load() {
		l.registry.warn.warning("post dropped").
			Uint64("loop", l.id).
			Str("thread", l.thread.name).
			Bool("exiting", l.registry.exiting.Load()).
			Log("runloop: post dropped")
		return 0
	}

	e := &entry{
		cb:  cb,
		due: time.Now().Add(max(delay, 0)),
		id:  ID(nextID()),
	}

	l.mu.Lock()
	if keep != nil {
		if l.keeps[keep.group] != keep {
			l.mu.Unlock()
			keep.warnStale("runloop: post through released keep")
			return 0
		}
		e.group = keep.group
	}
	l.seq++
	e.seq = l.seq
	heap.Push(&l.queue, e)
	l.index[e.id] = e
	l.signal()
	l.mu.Unlock()
	return e.id
}

// signal wakes Run, if it is waiting. Never blocks.
func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Abort cancels the pending callback with the given id. It is a no-op if the
// callback has already run, is running, or was already aborted.
func (l *Loop) Abort(id ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e := l.index[id]; e != nil {
		l.cancelLocked(e)
		l.signal()
	}
}

// cancelLocked removes e from the queue, and prevents it from running, if it
// is part of an in-flight batch.
func (l *Loop) cancelLocked(e *entry) {
	e.cancelled = true
	e.cb = nil
	delete(l.index, e.id)
	if e.index >= 0 {
		heap.Remove(&l.queue, e.index)
	}
}

// cancelGroupLocked cancels every pending callback posted under group,
// returning the number cancelled.
func (l *Loop) cancelGroupLocked(group GroupID) int {
	var n int
	for _, e := range l.index {
		if e.group == group {
			l.cancelLocked(e)
			n++
		}
	}
	if n != 0 {
		l.signal()
	}
	return n
}

// PostSync runs cb on the loop's thread, blocking until it has returned.
// When called from the loop's own thread, cb is run immediately.
//
// If ctx is done before cb starts, the post is aborted, and ctx.Err() is
// returned. Once cb has started, PostSync waits for it to return, regardless
// of ctx. ErrPostDropped is returned if the post was refused.
func (l *Loop) PostSync(ctx context.Context, cb Callback) error {
	if cb == nil {
		l.registry.fatal(ErrNilCallback, "post sync")
	}
	if l.onThread() {
		cb(l)
		return nil
	}
	const (
		syncPending int32 = iota
		syncStarted
		syncCancelled
	)
	var state atomic.Int32
	done := make(chan struct{})
	id := l.Post(func(l *Loop) {
		if !state.CompareAndSwap(syncPending, syncStarted) {
			return
		}
		defer close(done)
		cb(l)
	}, 0)
	if id == 0 {
		return ErrPostDropped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		l.Abort(id)
		if state.CompareAndSwap(syncPending, syncCancelled) {
			return ctx.Err()
		}
		<-done
		return nil
	}
}

func (l *Loop) onThread() bool {
	l.thread.mu.Lock()
	gid := l.thread.gid
	l.thread.mu.Unlock()
	return gid != 0 && gid == getGoroutineID()
}

// SetIndependentMutex sets a lock that Run holds while executing each batch
// of callbacks, allowing other goroutines to exclude the loop's callbacks.
// A nil mutex disables this behavior.
func (l *Loop) SetIndependentMutex(m sync.Locker) {
	l.mu.Lock()
	l.independent = m
	l.mu.Unlock()
}

// Running reports whether Run is in progress.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Alive reports whether the loop has any reason to keep running: pending
// callbacks, live keeps, or outstanding work.
func (l *Loop) Alive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Len() != 0 || len(l.keeps) != 0 || len(l.works) != 0
}

// Stop causes Run to return at its next wake. The remainder of any
// in-progress batch is requeued. Stop is a no-op if the loop is not running.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		l.stopping = true
		l.signal()
	}
}

// Run dispatches callbacks, on the calling thread, until the loop is idle,
// or is stopped. Idle means there are no pending callbacks, no live keeps
// (see KeepAlive), and no outstanding work, for the duration of the grace
// (see WithGrace and WithIdleExitGrace).
//
// Run must be called from the loop's owning thread, and must not be called
// reentrantly, both violations panic. Run returns immediately if the thread
// has been aborted, or the registry is exiting.
func (l *Loop) Run(opts ...RunOption) {
	if l.destroyed() {
		l.registry.fatal(ErrLoopDestroyed, "run")
	}
	if !l.onThread() {
		l.registry.fatal(ErrWrongThread, l.thread.name)
	}
	if l.registry.exiting.Load() || l.thread.aborted.Load() {
		l.registry.logger.Debug().
			Uint64("loop", l.id).
			Str("thread", l.thread.name).
			Log("runloop: run refused, thread aborted")
		return
	}

	cfg := resolveRunOptions(l.registry.opts.idleExitGrace, opts)

	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		l.registry.fatal(ErrReentrantRun, l.thread.name)
	}
	l.running = true
	l.stopping = false
	l.grace = cfg.grace
	l.idleSince = time.Time{}
	l.mu.Unlock()

	defer l.afterRun()

	if cfg.ctx != nil {
		defer context.AfterFunc(cfg.ctx, l.Stop)()
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		wait, exit := l.tick()
		switch {
		case exit:
			return
		case wait == 0:
		case wait < 0:
			<-l.wake
		default:
			timer.Reset(wait)
			select {
			case <-l.wake:
				timer.Stop()
			case <-timer.C:
			}
		}
	}
}

// tick runs one pass, returning how long to wait before the next, where a
// negative wait means until signaled.
func (l *Loop) tick() (wait time.Duration, exit bool) {
	l.mu.Lock()
	if l.stopping {
		l.mu.Unlock()
		return 0, true
	}
	batch := l.queue.popDue(time.Now())
	independent := l.independent
	l.mu.Unlock()

	if len(batch) != 0 {
		l.execute(batch, independent)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopping {
		return 0, true
	}
	if len(batch) != 0 {
		l.idleSince = time.Time{}
	}
	return l.nextWakeLocked(time.Now())
}

func (l *Loop) nextWakeLocked(now time.Time) (wait time.Duration, exit bool) {
	if e := l.queue.peek(); e != nil {
		l.idleSince = time.Time{}
		return max(e.due.Sub(now), 0), false
	}

	if len(l.keeps) != 0 || len(l.works) != 0 {
		l.idleSince = time.Time{}
		return -1, false
	}

	if l.grace <= 0 {
		return 0, true
	}
	if l.idleSince.IsZero() {
		l.idleSince = now
		return l.grace, false
	}
	if remaining := l.grace - now.Sub(l.idleSince); remaining > 0 {
		return remaining, false
	}
	return 0, true
}

// execute runs a batch of due entries, in order. If the loop is stopped
// part-way, the remainder is requeued, preserving order.
func (l *Loop) execute(batch []*entry, independent sync.Locker) {
	if independent != nil {
		independent.Lock()
		defer independent.Unlock()
	}
	for i, e := range batch {
		l.mu.Lock()
		if l.stopping {
			l.requeueLocked(batch[i:])
			l.mu.Unlock()
			return
		}
		if e.cancelled {
			l.mu.Unlock()
			continue
		}
		delete(l.index, e.id)
		cb := e.cb
		e.cb = nil
		l.mu.Unlock()

		l.invoke(e.id, cb)
	}
}

func (l *Loop) requeueLocked(rest []*entry) {
	for _, e := range rest {
		if !e.cancelled {
			heap.Push(&l.queue, e)
		}
	}
}

// invoke runs cb, logging (and recovering) any panic, other than fatal
// errors.
func (l *Loop) invoke(id ID, cb Callback) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(*FatalError); ok {
				panic(err)
			}
			l.registry.logger.Err().
				Uint64("loop", l.id).
				Uint64("id", uint64(id)).
				Str("thread", l.thread.name).
				Any("panic", r).
				Log("runloop: callback panicked")
		}
	}()
	cb(l)
}

func (l *Loop) afterRun() {
	l.mu.Lock()
	l.running = false
	l.stopping = false
	l.idleSince = time.Time{}
	keeps, works := l.keepNamesLocked(), l.workNamesLocked()
	l.mu.Unlock()

	if len(keeps) != 0 || len(works) != 0 {
		l.registry.logger.Debug().
			Uint64("loop", l.id).
			Str("thread", l.thread.name).
			Any("keeps", keeps).
			Any("works", works).
			Log("runloop: run stopped with outstanding keeps or work")
	}
}

func (l *Loop) keepNamesLocked() []string {
	var names []string
	for _, k := range l.keeps {
		names = append(names, k.name)
	}
	return names
}

func (l *Loop) workNamesLocked() []string {
	var names []string
	for _, w := range l.works {
		names = append(names, w.name)
	}
	return names
}

// destroy invalidates the loop, discarding anything pending. Called when the
// owning thread ends.
func (l *Loop) destroy() {
	l.mu.Lock()
	l.gen.Store(0)
	keeps, works := l.keepNamesLocked(), l.workNamesLocked()
	for _, e := range l.index {
		l.cancelLocked(e)
	}
	clear(l.keeps)
	l.mu.Unlock()

	if len(keeps) != 0 || len(works) != 0 {
		l.registry.logger.Warning().
			Uint64("loop", l.id).
			Str("thread", l.thread.name).
			Any("keeps", keeps).
			Any("works", works).
			Log("runloop: loop destroyed with live keeps or outstanding work")
	}
}
