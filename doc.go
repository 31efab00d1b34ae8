// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package runloop provides per-thread cooperative run loops, and the
// registry of managed threads they live on.
//
// A managed thread is a goroutine locked to its own OS thread, started via
// [Registry.Detach] (or adopted, via [Registry.Adopt]). Each managed thread
// may own a single [Loop], which runs callbacks posted from any goroutine,
// strictly on that thread, ordered by due time then post order.
//
// A loop's [Loop.Run] returns once the loop is idle: nothing is queued, no
// [Keep] is live, and no background work (see [Loop.Work]) is outstanding.
// Keeps are therefore how long-lived components hold a loop open, and they
// double as the mechanism for cancelling related callbacks in bulk.
//
// Process exit is coordinated by [Registry.Shutdown] (and [Registry.Exit]),
// which stops every loop, aborts every thread, then waits a bounded time for
// each to end.
//
// # Usage
//
//	r := runloop.Default()
//	id := r.Detach(func(t *runloop.Thread) {
//		l := r.CurrentLoop()
//		l.Post(func(l *runloop.Loop) {
//			// runs on t
//		}, 0)
//		l.Run()
//	}, "worker")
//	r.WaitEnd(id, 0)
//
// # Fatal errors
//
// Contract violations, such as calling Run reentrantly, or posting to a
// destroyed loop, panic with a [*FatalError]. Loops recover panics raised by
// callbacks, but never a *FatalError.
package runloop
