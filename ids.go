// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package runloop

import (
	"runtime"
	"sync/atomic"
)

type (
	// ID identifies a posted callback or a background work item. The zero
	// value is never issued, and is returned when a post was dropped.
	ID uint64

	// ThreadID identifies a managed thread. The zero value is never issued.
	ThreadID uint64

	// GroupID tags a set of threads or queued callbacks, for bulk
	// cancellation. The zero value is the default (ungrouped) group.
	GroupID uint64
)

// idCounter is shared by every kind of id, so ids are unique process-wide.
var idCounter atomic.Uint64

func nextID() uint64 {
	return idCounter.Add(1)
}

// NewGroupID allocates a fresh GroupID, e.g. for use with
// [Registry.DetachGroup].
func NewGroupID() GroupID {
	return GroupID(nextID())
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
