// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package workpool implements a fixed-size pool of worker goroutines,
// draining a single unbounded FIFO of jobs.
package workpool

import (
	"context"
	"errors"
	"sync"

	"github.com/eapache/queue"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by Submit once Close has been called.
var ErrClosed = errors.New("workpool: closed")

// Job is a unit of work. Jobs must not panic.
type Job func()

// Stats is a point-in-time snapshot of a pool.
type Stats struct {
	// Workers is the number of started worker goroutines.
	Workers int
	// Queued is the number of jobs waiting for a worker.
	Queued int
	// Active is the number of jobs currently running.
	Active int
	// Completed is the total number of jobs that have returned.
	Completed uint64
}

// Pool runs submitted jobs on a fixed number of workers. Workers are started
// lazily, on the first Submit. The zero value is not usable, see New.
type Pool struct {
	jobs      *queue.Queue
	group     *errgroup.Group
	stopped   chan struct{}
	cond      sync.Cond
	mu        sync.Mutex
	size      int
	workers   int
	active    int
	completed uint64
	closed    bool
}

// New returns a pool with the given number of workers, which must be
// positive.
func New(size int) *Pool {
	if size <= 0 {
		panic("workpool: size must be positive")
	}
	p := &Pool{
		jobs:    queue.New(),
		group:   new(errgroup.Group),
		stopped: make(chan struct{}),
		size:    size,
	}
	p.cond.L = &p.mu
	return p
}

// Submit enqueues job, to be run by the next available worker.
func (p *Pool) Submit(job Job) error {
	if job == nil {
		panic("workpool: nil job")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.jobs.Add(job)
	if p.workers < p.size && p.jobs.Length() > p.workers-p.active {
		p.workers++
		p.group.Go(p.worker)
	}
	p.cond.Signal()
	return nil
}

func (p *Pool) worker() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		for p.jobs.Length() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.jobs.Length() == 0 {
			return nil
		}
		job := p.jobs.Remove().(Job)
		p.active++
		p.mu.Unlock()
		job()
		p.mu.Lock()
		p.active--
		p.completed++
	}
}

// Close stops accepting jobs, then waits for the workers to drain every
// queued job, or for ctx to be done. Close may be called more than once.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.cond.Broadcast()
		go func() {
			_ = p.group.Wait()
			close(p.stopped)
		}()
	}
	p.mu.Unlock()
	select {
	case <-p.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the pool's state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Workers:   p.workers,
		Queued:    p.jobs.Length(),
		Active:    p.active,
		Completed: p.completed,
	}
}
