// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "soak.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
log_level = "debug"
idle_exit_grace = "15ms"
exit_wait = "2s"
threads = 8
posts_per_thread = 10
pool_size = 3
`))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, Duration(15*time.Millisecond), cfg.IdleExitGrace)
	assert.Equal(t, Duration(2*time.Second), cfg.ExitWait)
	assert.Equal(t, 8, cfg.Threads)
	assert.Equal(t, 10, cfg.PostsPerThread)
	assert.Equal(t, 3, cfg.PoolSize)
	// unset keys keep their defaults
	assert.Equal(t, DefaultConfig().WorkPerThread, cfg.WorkPerThread)
}

func TestLoadConfig_errors(t *testing.T) {
	for _, tc := range [...]struct {
		name    string
		content string
	}{
		{name: "unknown key", content: `bogus = 1`},
		{name: "bad duration", content: `exit_wait = "soon"`},
		{name: "bad level", content: `log_level = "loud"`},
		{name: "no threads", content: `threads = 0`},
		{name: "bad ratio", content: `memlimit_ratio = 2.0`},
		{name: "syntax", content: `threads = `},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseLevel(t *testing.T) {
	for _, level := range []logiface.Level{
		logiface.LevelDisabled,
		logiface.LevelCritical,
		logiface.LevelInformational,
		logiface.LevelTrace,
	} {
		got, err := parseLevel(level.String())
		require.NoError(t, err)
		assert.Equal(t, level, got)
	}
	_, err := parseLevel("verbose")
	assert.Error(t, err)
}

func TestDuration_MarshalText(t *testing.T) {
	b, err := Duration(1500 * time.Millisecond).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1.5s", string(b))
}
