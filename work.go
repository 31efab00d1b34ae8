// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package runloop

import (
	"context"
	"sync/atomic"
)

type workState int32

const (
	workSubmitted workState = iota
	workRunning
	workCompleted
	workCancelled
)

// work is a unit of background work, owned by a loop.
type work struct {
	loop   *Loop
	fn     func(ctx context.Context)
	done   Callback
	ctx    context.Context
	cancel context.CancelFunc
	name   string
	id     ID
	state  atomic.Int32
}

// Work runs fn on the registry's worker pool, then done (if non-nil) on the
// loop's thread. Outstanding work keeps the loop alive.
//
// The returned id may be passed to CancelWork. A zero id means the work was
// dropped, see Post.
func (l *Loop) Work(fn func(ctx context.Context), done Callback, name string) ID {
	if fn == nil {
		l.registry.fatal(ErrNilCallback, "work: "+name)
	}
	if l.destroyed() {
		l.registry.fatal(ErrLoopDestroyed, "work: "+name)
	}

	w := &work{
		loop: l,
		fn:   fn,
		done: done,
		name: name,
		id:   ID(nextID()),
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())

	l.mu.Lock()
	l.works[w.id] = w
	l.mu.Unlock()

	if l.post(func(l *Loop) { l.submitWork(w) }, nil, 0, false) == 0 {
		l.mu.Lock()
		delete(l.works, w.id)
		l.mu.Unlock()
		w.cancel()
		return 0
	}

	return w.id
}

// CancelWork cancels the work with the given id. Work that has not yet
// started never runs, and its done callback is skipped. Work already
// running has its context cancelled, and completes as normal.
func (l *Loop) CancelWork(id ID) {
	l.mu.Lock()
	w := l.works[id]
	l.mu.Unlock()
	if w == nil {
		return
	}
	w.state.CompareAndSwap(int32(workSubmitted), int32(workCancelled))
	w.cancel()
}

// submitWork hands w to the pool. Runs on the loop's thread.
func (l *Loop) submitWork(w *work) {
	if workState(w.state.Load()) == workCancelled {
		l.finishWork(w)
		return
	}
	if err := l.registry.pool.Submit(w.run); err != nil {
		w.state.CompareAndSwap(int32(workSubmitted), int32(workCancelled))
		l.registry.logger.Warning().
			Err(err).
			Uint64("id", uint64(w.id)).
			Str("name", w.name).
			Log("runloop: work not submitted")
		l.finishWork(w)
	}
}

// run executes w on a pool worker.
func (w *work) run() {
	if w.state.CompareAndSwap(int32(workSubmitted), int32(workRunning)) {
		w.exec()
		w.state.Store(int32(workCompleted))
	}
	l := w.loop
	if l.post(func(l *Loop) { l.finishWork(w) }, nil, 0, false) == 0 {
		l.mu.Lock()
		delete(l.works, w.id)
		l.mu.Unlock()
		w.cancel()
	}
}

func (w *work) exec() {
	defer func() {
		if r := recover(); r != nil {
			w.loop.registry.logger.Err().
				Uint64("id", uint64(w.id)).
				Str("name", w.name).
				Any("panic", r).
				Log("runloop: work panicked")
		}
	}()
	w.fn(w.ctx)
}

// finishWork removes w, and calls done, if w ran. Runs on the loop's thread.
func (l *Loop) finishWork(w *work) {
	l.mu.Lock()
	delete(l.works, w.id)
	l.mu.Unlock()
	w.cancel()
	if workState(w.state.Load()) == workCompleted && w.done != nil {
		w.done(l)
	}
}
