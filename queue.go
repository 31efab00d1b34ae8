// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package runloop

import (
	"container/heap"
	"time"
)

// entry is a queued callback.
type entry struct {
	cb        Callback
	due       time.Time
	id        ID
	group     GroupID
	seq       uint64
	index     int // heap index, or -1 once popped
	cancelled bool
}

// dueQueue is a min-heap of entries, ordered by due time, then by post
// order, so entries due at the same instant run FIFO.
type dueQueue []*entry

func (q dueQueue) Len() int { return len(q) }

func (q dueQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}

func (q dueQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *dueQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *dueQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// peek returns the next entry, or nil.
func (q dueQueue) peek() *entry {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

// popDue removes and returns every entry due at or before now, in order.
func (q *dueQueue) popDue(now time.Time) []*entry {
	var batch []*entry
	for e := q.peek(); e != nil && !e.due.After(now); e = q.peek() {
		batch = append(batch, heap.Pop(q).(*entry))
	}
	return batch
}
