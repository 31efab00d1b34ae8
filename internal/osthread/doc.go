// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package osthread wraps the handful of per-OS-thread syscalls used by
// managed threads. Every function applies to the calling OS thread, so the
// caller must have locked its goroutine via runtime.LockOSThread.
package osthread

import (
	"errors"
)

// ErrUnsupported is returned by operations not available on this platform.
var ErrUnsupported = errors.New("osthread: unsupported on this platform")

// maxNameLen is the kernel limit for thread names, excluding the NUL.
const maxNameLen = 15

// truncateName shortens name to fit maxNameLen bytes, without splitting a
// multibyte rune.
func truncateName(name string) string {
	if len(name) <= maxNameLen {
		return name
	}
	n := maxNameLen
	for n > 0 && name[n]&0xC0 == 0x80 {
		n--
	}
	return name[:n]
}
