// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Command runloop-soak exercises the runloop package under load: a number of
// worker threads each flood their own loop with delayed posts and background
// work, reporting back to the main loop.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/joeycumines/go-runloop"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

func init() {
	// the main goroutine stays on the main OS thread, which it adopts
	runtime.LockOSThread()
}

func main() {
	os.Exit(execute())
}

func execute() int {
	code := 0
	cmd := newRootCommand(func(c int) { code = c })
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return code
}

func newRootCommand(setCode func(int)) *cobra.Command {
	var (
		configPath string
		overrides  Config
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:          "runloop-soak",
		Short:        "Soak test per-thread run loops",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("threads") {
				cfg.Threads = overrides.Threads
			}
			if flags.Changed("posts") {
				cfg.PostsPerThread = overrides.PostsPerThread
			}
			if flags.Changed("work") {
				cfg.WorkPerThread = overrides.WorkPerThread
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = overrides.LogLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			code, err := run(cmd.Context(), cmd, cfg, timeout)
			if err != nil {
				return err
			}
			setCode(code)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	flags.IntVar(&overrides.Threads, "threads", 0, "number of worker threads")
	flags.IntVar(&overrides.PostsPerThread, "posts", 0, "posts per worker thread")
	flags.IntVar(&overrides.WorkPerThread, "work", 0, "background work items per worker thread")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level (trace, debug, info, notice, warning, err, crit)")
	flags.DurationVar(&timeout, "timeout", time.Minute, "abandon the run after this long")

	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, cfg Config, timeout time.Duration) (int, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return 0, err
	}
	logger := runloop.NewJSONLogger(cmd.ErrOrStderr(), level)

	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug().Logf(format, args...)
	}))
	defer undo()
	if err != nil {
		logger.Warning().Err(err).Log("failed to set GOMAXPROCS")
	}

	if cfg.MemLimitRatio > 0 {
		limit, err := memlimit.SetGoMemLimitWithOpts(
			memlimit.WithRatio(cfg.MemLimitRatio),
			memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)),
		)
		if err != nil {
			logger.Debug().Err(err).Log("memory limit not set")
		} else {
			logger.Debug().Int64("limit", limit).Log("memory limit set")
		}
	}

	opts := []runloop.RegistryOption{
		runloop.WithLogger(logger),
		runloop.WithIdleExitGrace(time.Duration(cfg.IdleExitGrace)),
		runloop.WithExitWait(time.Duration(cfg.ExitWait)),
		// Exit is only reached via signal, the normal path returns
		runloop.WithExitFunc(os.Exit),
	}
	if cfg.PoolSize > 0 {
		opts = append(opts, runloop.WithPoolSize(cfg.PoolSize))
	}
	r, err := runloop.NewRegistry(opts...)
	if err != nil {
		return 0, err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stop := r.ExitOnSignal(ctx)
	defer stop()

	result := Soak(ctx, r, cfg)

	code := 0
	if !result.Completed {
		code = 2
	}
	result.ExitCode = r.Shutdown(code)

	logger.Info().
		Int("threads", result.Threads).
		Int("posts", result.Posts).
		Int("works", result.Works).
		Dur("elapsed", result.Elapsed).
		Bool("completed", result.Completed).
		Log("soak complete")

	fmt.Fprintf(cmd.OutOrStdout(), "threads=%d posts=%d works=%d elapsed=%s completed=%t\n",
		result.Threads, result.Posts, result.Works, result.Elapsed.Round(time.Millisecond), result.Completed)

	return result.ExitCode, nil
}
