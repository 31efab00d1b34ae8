// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package runloop

import (
	"context"
	"time"
)

// Parallel manages a group of child threads on behalf of a loop. It holds a
// Keep on the loop until closed, giving the children a safe way to post
// back to it.
type Parallel struct {
	registry *Registry
	keep     *Keep
	group    GroupID
}

// NewParallel returns a Parallel keeping l alive. Close must be called to
// release it.
func NewParallel(l *Loop) *Parallel {
	return &Parallel{
		registry: l.registry,
		keep:     l.KeepAlive("parallel", true),
		group:    NewGroupID(),
	}
}

// Group returns the group shared by every child thread.
func (p *Parallel) Group() GroupID { return p.group }

// Keep returns the Keep held on the parent loop.
func (p *Parallel) Keep() *Keep { return p.keep }

// Detach starts a child thread. See Registry.DetachGroup.
func (p *Parallel) Detach(body func(t *Thread), name string, opts ...ThreadOption) ThreadID {
	return p.registry.DetachGroup(p.group, body, name, opts...)
}

// Abort aborts the given child, or every child if id is 0. It does not wait.
func (p *Parallel) Abort(id ThreadID) {
	if id == 0 {
		p.registry.AbortGroup(p.group)
		return
	}
	if t := p.registry.Thread(id); t != nil && t.group == p.group {
		t.abort()
	}
}

// Awaken wakes the given child, or every child if id is 0.
func (p *Parallel) Awaken(id ThreadID) {
	if id == 0 {
		p.registry.AwakenGroup(p.group)
		return
	}
	if t := p.registry.Thread(id); t != nil && t.group == p.group {
		t.awaken()
	}
}

// Post posts cb to the parent loop, see Keep.Post.
func (p *Parallel) Post(cb Callback, delay time.Duration) ID {
	return p.keep.Post(cb, delay)
}

// Join waits for every child that is live at the time of the call to end.
func (p *Parallel) Join(ctx context.Context) error {
	for _, t := range p.registry.group(p.group) {
		select {
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close aborts every child, without waiting, then releases the Keep,
// cancelling anything the children posted that has not yet run.
func (p *Parallel) Close() {
	p.Abort(0)
	p.keep.Release()
}
