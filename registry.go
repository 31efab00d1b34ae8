// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package runloop

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joeycumines/go-runloop/internal/osthread"
	"github.com/joeycumines/go-runloop/internal/workpool"
)

// Registry tracks every managed thread, and coordinates process exit.
//
// Most programs use the process-wide registry, see Default, though
// independent registries (e.g. per test) are supported.
type Registry struct {
	opts        *registryOptions
	logger      *Logger
	warn        *warnings
	pool        *workpool.Pool
	threads     map[ThreadID]*Thread
	byGoroutine map[uint64]*Thread
	mainLoop    *Loop
	listeners   []exitListener
	exitMu      sync.Mutex
	mu          sync.Mutex
	exiting     atomic.Bool
}

type exitListener struct {
	fn func(code int) int
	id uint64
}

// NewRegistry creates a new Registry.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	cfg, err := resolveRegistryOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Registry{
		opts:        cfg,
		logger:      cfg.logger,
		warn:        newWarnings(cfg.logger, cfg.warnRates),
		pool:        workpool.New(cfg.poolSize),
		threads:     make(map[ThreadID]*Thread),
		byGoroutine: make(map[uint64]*Thread),
	}, nil
}

// fatal logs then panics with a *FatalError.
func (r *Registry) fatal(err error, detail string) {
	r.logger.Crit().
		Err(err).
		Str("detail", detail).
		Log("runloop: fatal contract violation")
	panic(&FatalError{Err: err, Detail: detail})
}

// Detach starts body on a new managed thread, in the default group.
// See DetachGroup.
func (r *Registry) Detach(body func(t *Thread), name string) ThreadID {
	return r.DetachGroup(0, body, name)
}

// DetachGroup starts body on a new managed thread, tagged with group. The
// thread is registered before DetachGroup returns, and deregistered after
// body returns. If the thread is aborted before it starts, body is not run.
//
// Returns 0, without starting anything, once the registry is exiting.
func (r *Registry) DetachGroup(group GroupID, body func(t *Thread), name string, opts ...ThreadOption) ThreadID {
	if body == nil {
		r.fatal(ErrNilCallback, "detach: "+name)
	}
	cfg, err := resolveThreadOptions(opts)
	if err != nil {
		r.fatal(err, "detach: "+name)
	}

	t := newThread(r, group, name)

	r.mu.Lock()
	if r.exiting.Load() {
		r.mu.Unlock()
		r.logger.Debug().
			Str("name", name).
			Log("runloop: detach refused, registry is exiting")
		return 0
	}
	r.threads[t.id] = t
	r.mu.Unlock()

	go r.run(t, body, cfg)

	return t.id
}

func (r *Registry) run(t *Thread, body func(t *Thread), cfg *threadOptions) {
	// never unlocked: the OS thread exits with the goroutine, taking its
	// name and affinity with it
	runtime.LockOSThread()

	r.bind(t)

	completed := false
	defer func() {
		if !completed {
			r.logger.Crit().
				Uint64("thread_id", uint64(t.id)).
				Str("thread", t.name).
				Log("runloop: thread body panicked")
		}
		r.finish(t)
	}()

	if err := osthread.SetName(t.name); err != nil {
		r.logger.Debug().
			Err(err).
			Str("thread", t.name).
			Log("runloop: failed to set thread name")
	}
	if len(cfg.cpus) != 0 {
		if err := osthread.SetAffinity(cfg.cpus); err != nil {
			r.logger.Warning().
				Err(err).
				Str("thread", t.name).
				Any("cpus", cfg.cpus).
				Log("runloop: failed to set thread affinity")
		}
	}

	r.logger.Debug().
		Uint64("thread_id", uint64(t.id)).
		Uint64("group", uint64(t.group)).
		Str("thread", t.name).
		Log("runloop: thread started")

	if !t.aborted.Load() {
		body(t)
	}

	completed = true
}

// bind associates the calling goroutine with t.
func (r *Registry) bind(t *Thread) {
	gid := getGoroutineID()
	osTID := osthread.ID()

	r.mu.Lock()
	if _, ok := r.byGoroutine[gid]; ok {
		r.mu.Unlock()
		r.fatal(ErrAlreadyManaged, t.name)
	}
	r.byGoroutine[gid] = t
	r.mu.Unlock()

	t.mu.Lock()
	t.gid = gid
	t.osTID = osTID
	t.mu.Unlock()
}

// finish is the terminal hook of every managed thread.
func (r *Registry) finish(t *Thread) {
	r.mu.Lock()
	delete(r.threads, t.id)
	if r.byGoroutine[t.gid] == t {
		delete(r.byGoroutine, t.gid)
	}
	exiting := r.exiting.Load()
	t.mu.Lock()
	loop := t.loop
	if !exiting {
		t.loop = nil
	}
	t.ended.Store(true)
	t.wakeLocked()
	t.mu.Unlock()
	if loop != nil && !exiting && r.mainLoop == loop {
		r.mainLoop = nil
	}
	r.mu.Unlock()

	if loop != nil && !exiting {
		loop.destroy()
	}

	r.logger.Debug().
		Uint64("thread_id", uint64(t.id)).
		Str("thread", t.name).
		Log("runloop: thread ended")

	close(t.done)
}

// Adopt registers the calling goroutine as a managed thread, locking it to
// its current OS thread. The returned release func must be called, from the
// same goroutine, once the caller no longer acts as a managed thread, e.g.
// deferred from main.
//
// Returns a nil Thread and a no-op release once the registry is exiting.
func (r *Registry) Adopt(name string) (*Thread, func()) {
	t := newThread(r, 0, name)
	gid := getGoroutineID()

	r.mu.Lock()
	if r.exiting.Load() {
		r.mu.Unlock()
		return nil, func() {}
	}
	if _, ok := r.byGoroutine[gid]; ok {
		r.mu.Unlock()
		r.fatal(ErrAlreadyManaged, name)
	}
	r.threads[t.id] = t
	r.mu.Unlock()

	runtime.LockOSThread()
	r.bind(t)

	var once sync.Once
	return t, func() {
		once.Do(func() {
			r.finish(t)
			runtime.UnlockOSThread()
		})
	}
}

// Current returns the calling managed thread, or nil.
func (r *Registry) Current() *Thread {
	gid := getGoroutineID()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byGoroutine[gid]
}

// CurrentID returns the id of the calling managed thread, or 0.
func (r *Registry) CurrentID() ThreadID {
	if t := r.Current(); t != nil {
		return t.id
	}
	return 0
}

// Thread returns the live thread with the given id, or nil.
func (r *Registry) Thread(id ThreadID) *Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.threads[id]
}

// Len returns the number of live threads.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.threads)
}

// Abort marks the thread as aborted, stops its loop, and wakes it if it is
// sleeping. A zero wait returns immediately, a negative wait blocks until the
// thread ends, otherwise Abort waits for at most wait. Unknown ids are
// ignored.
func (r *Registry) Abort(id ThreadID, wait time.Duration) {
	t := r.Thread(id)
	if t == nil {
		return
	}
	t.abort()
	if wait != 0 && t.id != r.CurrentID() {
		waitDone(t, wait)
	}
}

// Awaken wakes the thread if it is sleeping, without aborting it.
func (r *Registry) Awaken(id ThreadID) {
	if t := r.Thread(id); t != nil {
		t.awaken()
	}
}

// AbortGroup aborts every live thread in group, without waiting.
func (r *Registry) AbortGroup(group GroupID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.threads {
		if t.group == group {
			t.abort()
		}
	}
}

// AwakenGroup wakes every live thread in group.
func (r *Registry) AwakenGroup(group GroupID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.threads {
		if t.group == group {
			t.awaken()
		}
	}
}

// group returns a snapshot of the live threads in group.
func (r *Registry) group(group GroupID) []*Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	var threads []*Thread
	for _, t := range r.threads {
		if t.group == group {
			threads = append(threads, t)
		}
	}
	return threads
}

// WaitEnd blocks until the thread has ended, returning false if timeout
// elapsed first. A non-positive timeout waits indefinitely. A thread cannot
// wait for itself, WaitEnd returns false immediately in that case.
func (r *Registry) WaitEnd(id ThreadID, timeout time.Duration) bool {
	if id == r.CurrentID() && id != 0 {
		r.logger.Warning().
			Uint64("thread_id", uint64(id)).
			Log("runloop: cannot wait for the calling thread")
		return false
	}
	t := r.Thread(id)
	if t == nil {
		return true
	}
	if timeout <= 0 {
		timeout = -1
	}
	return waitDone(t, timeout)
}

// Join is a context-aware WaitEnd.
func (r *Registry) Join(ctx context.Context, id ThreadID) error {
	if id == r.CurrentID() && id != 0 {
		return ErrJoinSelf
	}
	t := r.Thread(id)
	if t == nil {
		return nil
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitDone waits for t to end, indefinitely if d is negative.
func waitDone(t *Thread, d time.Duration) bool {
	if d < 0 {
		<-t.done
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}

// CurrentLoop returns the loop of the calling managed thread, creating it if
// necessary. Panics if the caller is not a managed thread.
func (r *Registry) CurrentLoop() *Loop {
	t := r.Current()
	if t == nil {
		r.fatal(ErrNotManagedThread, "current loop")
	}
	return t.currentLoop()
}

// LoopOf returns the loop of the given thread, or nil if the thread is not
// live, or has not created a loop.
func (r *Registry) LoopOf(id ThreadID) *Loop {
	if t := r.Thread(id); t != nil {
		return t.Loop()
	}
	return nil
}

// MainLoop returns the designated main loop. If there is none, the calling
// thread's loop is designated, see CurrentLoop.
func (r *Registry) MainLoop() *Loop {
	r.mu.Lock()
	l := r.mainLoop
	r.mu.Unlock()
	if l != nil {
		return l
	}
	l = r.CurrentLoop()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mainLoop == nil {
		r.mainLoop = l
	}
	return r.mainLoop
}

// IsMainLoop reports whether the calling thread's loop is the main loop.
func (r *Registry) IsMainLoop() bool {
	t := r.Current()
	if t == nil {
		return false
	}
	l := t.Loop()
	if l == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mainLoop == l
}

// Exiting reports whether Shutdown has been called.
func (r *Registry) Exiting() bool { return r.exiting.Load() }

// OnExit registers fn to be called by Shutdown, before any thread is
// stopped. Listeners are called in registration order, each receiving the
// exit code returned by the previous one. The returned func unregisters fn.
func (r *Registry) OnExit(fn func(code int) int) (remove func()) {
	if fn == nil {
		r.fatal(ErrNilCallback, "on exit")
	}
	id := nextID()
	r.exitMu.Lock()
	r.listeners = append(r.listeners, exitListener{fn: fn, id: id})
	r.exitMu.Unlock()
	return func() {
		r.exitMu.Lock()
		defer r.exitMu.Unlock()
		for i, l := range r.listeners {
			if l.id == id {
				r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
				return
			}
		}
	}
}

func (r *Registry) fireExit(code int) int {
	r.exitMu.Lock()
	listeners := append([]exitListener(nil), r.listeners...)
	r.exitMu.Unlock()
	for _, l := range listeners {
		code = l.fn(code)
	}
	return code
}

// Shutdown runs the exit sequence, returning the (possibly rewritten) exit
// code. Only the first call has any effect, later calls return code as-is.
//
// The sequence is: mark the registry as exiting (further Detach calls are
// no-ops), call the OnExit listeners, stop and abort every thread, then wait
// (bounded by WithExitWait) for each thread other than the caller to end.
// Finally, the work pool is closed, within the same bound.
func (r *Registry) Shutdown(code int) int {
	if !r.exiting.CompareAndSwap(false, true) {
		return code
	}

	r.logger.Debug().
		Int("code", code).
		Log("runloop: exit sequence started")

	code = r.fireExit(code)

	self := r.Current()

	r.mu.Lock()
	threads := make([]*Thread, 0, len(r.threads))
	for _, t := range r.threads {
		t.abort()
		threads = append(threads, t)
	}
	r.mu.Unlock()

	for _, t := range threads {
		if t == self {
			continue
		}
		if !waitDone(t, r.opts.exitWait) {
			r.logger.Warning().
				Uint64("thread_id", uint64(t.id)).
				Str("thread", t.name).
				Dur("wait", r.opts.exitWait).
				Log("runloop: thread did not end during exit")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.exitWait)
	defer cancel()
	if err := r.pool.Close(ctx); err != nil {
		r.logger.Warning().
			Err(err).
			Log("runloop: work pool did not drain during exit")
	}

	r.logger.Debug().
		Int("code", code).
		Log("runloop: exit sequence complete")

	return code
}

// Exit runs Shutdown, then terminates the process with the resulting code,
// using the func configured via WithExitFunc.
func (r *Registry) Exit(code int) {
	r.opts.exitFunc(r.Shutdown(code))
}

// ExitOnSignal calls Exit, with code 128 plus the signal number, on receipt
// of any of sigs, which default to SIGINT and SIGTERM (SIGINT only on
// non-unix platforms). The returned func stops watching, as does ctx being
// done.
func (r *Registry) ExitOnSignal(ctx context.Context, sigs ...os.Signal) (stop func()) {
	if len(sigs) == 0 {
		sigs = defaultExitSignals
	}
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	go func() {
		defer signal.Stop(ch)
		select {
		case <-ctx.Done():
		case sig := <-ch:
			r.logger.Notice().
				Stringer("signal", sig).
				Log("runloop: exit signal received")
			r.Exit(signalExitCode(sig))
		}
	}()
	return cancel
}

func signalExitCode(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return 1
}
