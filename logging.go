// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package runloop

import (
	"io"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the logger type accepted by WithLogger.
type Logger = logiface.Logger[logiface.Event]

// NewJSONLogger is a convenience constructor for a JSON lines logger, writing
// to w, enabled for all events at or above level.
func NewJSONLogger(w io.Writer, level logiface.Level) *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

// warnings rate limits repeated warnings, by category.
type warnings struct {
	logger  *Logger
	limiter *catrate.Limiter
}

func newWarnings(logger *Logger, rates map[time.Duration]int) *warnings {
	w := &warnings{logger: logger}
	if len(rates) != 0 {
		w.limiter = catrate.NewLimiter(rates)
	}
	return w
}

// warning returns a builder for the category, or nil if the category is
// currently rate limited. Builder methods are nil-safe.
func (x *warnings) warning(category string) *logiface.Builder[logiface.Event] {
	b := x.logger.Warning()
	if !b.Enabled() {
		return nil
	}
	if _, ok := x.limiter.Allow(category); !ok {
		b.Release()
		return nil
	}
	return b
}
