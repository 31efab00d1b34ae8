// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeycumines/logiface"
)

// Config is the soak test configuration, loaded from TOML.
type Config struct {
	LogLevel       string   `toml:"log_level"`
	IdleExitGrace  Duration `toml:"idle_exit_grace"`
	ExitWait       Duration `toml:"exit_wait"`
	MaxDelay       Duration `toml:"max_delay"`
	MemLimitRatio  float64  `toml:"memlimit_ratio"`
	Threads        int      `toml:"threads"`
	PostsPerThread int      `toml:"posts_per_thread"`
	WorkPerThread  int      `toml:"work_per_thread"`
	PoolSize       int      `toml:"pool_size"`
}

// Duration is a time.Duration that (un)marshals as a string, e.g. "150ms".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		LogLevel:       logiface.LevelInformational.String(),
		ExitWait:       Duration(time.Second),
		MaxDelay:       Duration(5 * time.Millisecond),
		MemLimitRatio:  0.9,
		Threads:        4,
		PostsPerThread: 1000,
		WorkPerThread:  16,
	}
}

// LoadConfig reads path over the defaults. An empty path returns the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	md, err := toml.Decode(string(b), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return cfg, fmt.Errorf("unknown keys in %s: %v", path, undecoded)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.Threads <= 0 {
		return errors.New("threads must be positive")
	}
	if c.PostsPerThread < 0 || c.WorkPerThread < 0 {
		return errors.New("posts_per_thread and work_per_thread must not be negative")
	}
	if c.PoolSize < 0 {
		return errors.New("pool_size must not be negative")
	}
	if c.IdleExitGrace < 0 || c.MaxDelay < 0 {
		return errors.New("durations must not be negative")
	}
	if c.ExitWait <= 0 {
		return errors.New("exit_wait must be positive")
	}
	if c.MemLimitRatio < 0 || c.MemLimitRatio > 1 {
		return errors.New("memlimit_ratio must be within [0, 1]")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func parseLevel(s string) (logiface.Level, error) {
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		if level.String() == s {
			return level, nil
		}
	}
	return logiface.LevelDisabled, fmt.Errorf("unknown log level %q", s)
}
