// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package runloop

import (
	"context"
	"errors"
	"os"
	"runtime"
	"time"

	"github.com/joeycumines/logiface"
)

const (
	defaultExitWait = time.Second
	minPoolSize     = 4
)

// registryOptions holds configuration options for Registry creation.
type registryOptions struct {
	logger        *logiface.Logger[logiface.Event]
	exitFunc      func(code int)
	warnRates     map[time.Duration]int
	idleExitGrace time.Duration
	exitWait      time.Duration
	poolSize      int
}

// threadOptions holds configuration options for a single managed thread.
type threadOptions struct {
	cpus []int
}

// runOptions holds configuration options for a single call to Loop.Run.
type runOptions struct {
	ctx   context.Context
	grace time.Duration
}

// --- Registry Options ---

// RegistryOption configures a Registry instance.
type RegistryOption interface {
	applyRegistry(*registryOptions) error
}

// registryOptionImpl implements RegistryOption.
type registryOptionImpl struct {
	applyRegistryFunc func(*registryOptions) error
}

func (r *registryOptionImpl) applyRegistry(opts *registryOptions) error {
	return r.applyRegistryFunc(opts)
}

// WithLogger sets the structured logger used by the registry, and every
// loop it creates. A nil logger (the default) disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) RegistryOption {
	return &registryOptionImpl{func(opts *registryOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithIdleExitGrace sets the default idle-exit grace for Loop.Run, i.e. how
// long a loop with nothing queued, no live keeps, and no outstanding work
// lingers before Run returns. Zero (the default) returns as soon as the loop
// becomes idle.
func WithIdleExitGrace(d time.Duration) RegistryOption {
	return &registryOptionImpl{func(opts *registryOptions) error {
		if d < 0 {
			return errors.New("runloop: idle exit grace must not be negative")
		}
		opts.idleExitGrace = d
		return nil
	}}
}

// WithExitWait bounds how long Shutdown waits for each thread to end.
// Defaults to one second.
func WithExitWait(d time.Duration) RegistryOption {
	return &registryOptionImpl{func(opts *registryOptions) error {
		if d <= 0 {
			return errors.New("runloop: exit wait must be positive")
		}
		opts.exitWait = d
		return nil
	}}
}

// WithPoolSize sets the number of workers servicing Loop.Work.
// Defaults to GOMAXPROCS, with a minimum of 4.
func WithPoolSize(n int) RegistryOption {
	return &registryOptionImpl{func(opts *registryOptions) error {
		if n <= 0 {
			return errors.New("runloop: pool size must be positive")
		}
		opts.poolSize = n
		return nil
	}}
}

// WithExitFunc replaces os.Exit, as called by Registry.Exit.
func WithExitFunc(fn func(code int)) RegistryOption {
	return &registryOptionImpl{func(opts *registryOptions) error {
		if fn == nil {
			return ErrNilCallback
		}
		opts.exitFunc = fn
		return nil
	}}
}

// WithWarnRate configures the per-category rate limits applied to repeated
// warnings, e.g. posts dropped due to an aborted thread. The map is keyed by
// window, with the maximum number of log lines per window as the value.
// A nil or empty map disables rate limiting.
func WithWarnRate(rates map[time.Duration]int) RegistryOption {
	return &registryOptionImpl{func(opts *registryOptions) error {
		opts.warnRates = rates
		return nil
	}}
}

// resolveRegistryOptions applies RegistryOption instances to registryOptions.
func resolveRegistryOptions(opts []RegistryOption) (*registryOptions, error) {
	cfg := &registryOptions{
		exitFunc: os.Exit,
		warnRates: map[time.Duration]int{
			time.Second: 5,
			time.Minute: 60,
		},
		exitWait: defaultExitWait,
		poolSize: max(runtime.GOMAXPROCS(0), minPoolSize),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyRegistry(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// --- Thread Options ---

// ThreadOption configures a thread started by Registry.DetachGroup.
type ThreadOption interface {
	applyThread(*threadOptions) error
}

type threadOptionImpl struct {
	applyThreadFunc func(*threadOptions) error
}

func (t *threadOptionImpl) applyThread(opts *threadOptions) error {
	return t.applyThreadFunc(opts)
}

// WithCPUAffinity pins the thread to the given CPUs. Only supported on Linux,
// elsewhere it is logged and ignored.
func WithCPUAffinity(cpus ...int) ThreadOption {
	return &threadOptionImpl{func(opts *threadOptions) error {
		for _, cpu := range cpus {
			if cpu < 0 {
				return errors.New("runloop: invalid cpu")
			}
		}
		opts.cpus = append(opts.cpus[:0:0], cpus...)
		return nil
	}}
}

func resolveThreadOptions(opts []ThreadOption) (*threadOptions, error) {
	cfg := &threadOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyThread(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// --- Run Options ---

// RunOption configures a call to Loop.Run.
type RunOption interface {
	applyRun(*runOptions)
}

type runOptionImpl struct {
	applyRunFunc func(*runOptions)
}

func (r *runOptionImpl) applyRun(opts *runOptions) {
	r.applyRunFunc(opts)
}

// WithGrace overrides the idle-exit grace (see WithIdleExitGrace) for a
// single Run. Negative values are treated as zero.
func WithGrace(d time.Duration) RunOption {
	return &runOptionImpl{func(opts *runOptions) {
		opts.grace = max(d, 0)
	}}
}

// WithContext stops Run when ctx is done, as if Stop were called.
func WithContext(ctx context.Context) RunOption {
	return &runOptionImpl{func(opts *runOptions) {
		opts.ctx = ctx
	}}
}

func resolveRunOptions(grace time.Duration, opts []RunOption) *runOptions {
	cfg := &runOptions{grace: grace}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyRun(cfg)
	}
	return cfg
}
