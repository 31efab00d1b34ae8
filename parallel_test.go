// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package runloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallel(t *testing.T) {
	r := newTestRegistry(t)
	const n = 4
	var results atomic.Int64
	id := r.Detach(func(*Thread) {
		l := r.CurrentLoop()
		p := NewParallel(l)
		var remaining int
		for i := range n {
			remaining++
			p.Detach(func(th *Thread) {
				assert.Equal(t, p.Group(), th.Group())
				p.Post(func(*Loop) {
					results.Add(int64(i))
					if remaining--; remaining == 0 {
						p.Close()
					}
				}, 0)
			}, "child")
		}
		l.Run()
	}, "parent")
	require.True(t, r.WaitEnd(id, testTimeout))
	assert.Equal(t, int64(0+1+2+3), results.Load())
}

func TestParallel_Abort(t *testing.T) {
	r := newTestRegistry(t)
	ready := make(chan *Parallel, 1)
	release := make(chan struct{})
	parent := r.Detach(func(*Thread) {
		p := NewParallel(r.CurrentLoop())
		ready <- p
		<-release
	}, "parent")
	p := <-ready

	sleep := func(th *Thread) {
		for th.Sleep(0) {
		}
	}
	a := p.Detach(sleep, "a")
	b := p.Detach(sleep, "b")
	unrelated := r.Detach(sleep, "unrelated")

	// only children of p are affected
	p.Abort(unrelated)
	require.NotNil(t, r.Thread(unrelated))
	assert.False(t, r.Thread(unrelated).Aborted())

	p.Abort(a)
	require.True(t, r.WaitEnd(a, testTimeout))
	require.NotNil(t, r.Thread(b))

	p.Abort(0)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, p.Join(ctx))
	assert.Nil(t, r.Thread(b))

	r.Abort(unrelated, testTimeout)
	close(release)
	require.True(t, r.WaitEnd(parent, testTimeout))
}

func TestParallel_Awaken(t *testing.T) {
	r := newTestRegistry(t)
	ready := make(chan *Parallel, 1)
	release := make(chan struct{})
	parent := r.Detach(func(*Thread) {
		p := NewParallel(r.CurrentLoop())
		ready <- p
		<-release
		p.Close()
	}, "parent")
	p := <-ready
	defer func() {
		close(release)
		r.WaitEnd(parent, testTimeout)
	}()

	var woken atomic.Int64
	child := p.Detach(func(th *Thread) {
		if th.Sleep(0) {
			woken.Add(1)
		}
	}, "child")
	waitFor(t, func() bool {
		th := r.Thread(child)
		if th == nil {
			return false
		}
		th.mu.Lock()
		defer th.mu.Unlock()
		return th.sleeper != nil
	}, "child never slept")
	p.Awaken(child)
	require.True(t, r.WaitEnd(child, testTimeout))
	assert.Equal(t, int64(1), woken.Load())
}

func TestParallel_Close_cancelsPending(t *testing.T) {
	r := newTestRegistry(t)
	var ran atomic.Bool
	id := r.Detach(func(*Thread) {
		l := r.CurrentLoop()
		p := NewParallel(l)
		p.Post(func(*Loop) { ran.Store(true) }, 20*time.Millisecond)
		l.Post(func(*Loop) { p.Close() }, 0)
		l.Run()
		assert.False(t, p.Keep().Valid())
	}, "parent")
	require.True(t, r.WaitEnd(id, testTimeout))
	assert.False(t, ran.Load())
}

func TestParallel_Close_refusesLatePosts(t *testing.T) {
	r := newTestRegistry(t)
	var (
		ran    atomic.Bool
		posted atomic.Uint64
	)
	id := r.Detach(func(*Thread) {
		l := r.CurrentLoop()
		p := NewParallel(l)
		started := make(chan struct{})
		closed := make(chan struct{})
		child := p.Detach(func(*Thread) {
			close(started)
			<-closed
			posted.Store(uint64(p.Post(func(*Loop) { ran.Store(true) }, 0)))
		}, "child")
		<-started
		p.Close()
		close(closed)
		assert.True(t, r.WaitEnd(child, testTimeout))
		l.Run(WithGrace(20 * time.Millisecond))
	}, "parent")
	require.True(t, r.WaitEnd(id, testTimeout))
	assert.Zero(t, posted.Load())
	assert.False(t, ran.Load())
}
