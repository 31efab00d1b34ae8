// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package runloop_test

import (
	"context"
	"fmt"
	"time"

	"github.com/joeycumines/go-runloop"
)

func ExampleLoop_Post() {
	r, err := runloop.NewRegistry()
	if err != nil {
		panic(err)
	}
	defer r.Shutdown(0)

	id := r.Detach(func(t *runloop.Thread) {
		l := r.CurrentLoop()
		l.Post(func(*runloop.Loop) { fmt.Println("second") }, 10*time.Millisecond)
		l.Post(func(*runloop.Loop) { fmt.Println("first") }, 0)
		l.Run()
		fmt.Println("idle")
	}, "example")

	r.WaitEnd(id, 0)

	//output:
	//first
	//second
	//idle
}

func ExampleLoop_KeepAlive() {
	r, err := runloop.NewRegistry()
	if err != nil {
		panic(err)
	}
	defer r.Shutdown(0)

	ready := make(chan *runloop.Keep)
	id := r.Detach(func(t *runloop.Thread) {
		l := r.CurrentLoop()
		ready <- l.KeepAlive("example", true)
		l.Run()
	}, "example")

	keep := <-ready
	ran := make(chan struct{})
	keep.Post(func(l *runloop.Loop) {
		defer close(ran)
		fmt.Println("posted via keep, on thread", r.CurrentID() == l.Thread().ID())
	}, 0)
	<-ran

	// releasing the last keep lets the loop go idle
	keep.Release()
	r.WaitEnd(id, 0)

	fmt.Println("keep valid:", keep.Valid())

	//output:
	//posted via keep, on thread true
	//keep valid: false
}

func ExampleLoop_Work() {
	r, err := runloop.NewRegistry()
	if err != nil {
		panic(err)
	}
	defer r.Shutdown(0)

	id := r.Detach(func(t *runloop.Thread) {
		l := r.CurrentLoop()
		var sum int
		l.Work(func(ctx context.Context) {
			for i := 1; i <= 100; i++ {
				sum += i
			}
		}, func(*runloop.Loop) {
			fmt.Println("sum:", sum)
		}, "sum")
		l.Run()
	}, "example")

	r.WaitEnd(id, 0)

	//output:
	//sum: 5050
}
