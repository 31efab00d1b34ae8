// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"context"
	"crypto/sha256"
	"math/rand/v2"
	"time"

	"github.com/joeycumines/go-runloop"
)

// Result summarizes a soak run.
type Result struct {
	Elapsed   time.Duration
	Posts     int
	Works     int
	Threads   int
	ExitCode  int
	Completed bool
}

// report is posted from each worker thread to the main loop.
type report struct {
	posts int
	works int
}

// Soak runs the workload on the calling goroutine, which is adopted as the
// main thread of r. Returns once every worker has reported, or ctx is done.
func Soak(ctx context.Context, r *runloop.Registry, cfg Config) Result {
	start := time.Now()

	_, release := r.Adopt("main")
	defer release()

	ml := r.MainLoop()
	p := runloop.NewParallel(ml)

	var (
		result  = Result{Threads: cfg.Threads}
		pending = cfg.Threads
	)
	for i := range cfg.Threads {
		p.Detach(func(t *runloop.Thread) {
			rep := worker(r, cfg, uint64(i))
			p.Post(func(*runloop.Loop) {
				result.Posts += rep.posts
				result.Works += rep.works
				if pending--; pending == 0 {
					result.Completed = true
					p.Close()
				}
			}, 0)
		}, "soak-worker")
	}

	ml.Run(runloop.WithContext(ctx))

	if !result.Completed {
		p.Close()
	}
	result.Elapsed = time.Since(start)
	return result
}

// worker runs a loop, flooding it with delayed posts and background work,
// until it goes idle.
func worker(r *runloop.Registry, cfg Config, seed uint64) report {
	l := r.CurrentLoop()
	rng := rand.New(rand.NewPCG(seed, uint64(l.ID())))

	var rep report
	for range cfg.PostsPerThread {
		var delay time.Duration
		if cfg.MaxDelay > 0 {
			delay = time.Duration(rng.Int64N(int64(cfg.MaxDelay)))
		}
		l.Post(func(*runloop.Loop) { rep.posts++ }, delay)
	}

	for range cfg.WorkPerThread {
		buf := make([]byte, 4096)
		for i := range buf {
			buf[i] = byte(rng.Uint32())
		}
		var sum [sha256.Size]byte
		l.Work(func(ctx context.Context) {
			sum = sha256.Sum256(buf)
		}, func(*runloop.Loop) {
			if sum != ([sha256.Size]byte{}) {
				rep.works++
			}
		}, "hash")
	}

	l.Run()

	return rep
}
