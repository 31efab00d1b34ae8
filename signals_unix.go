// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build unix

package runloop

import (
	"os"
	"syscall"
)

var defaultExitSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
