// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build !linux

package osthread

// SetName is a no-op on this platform.
func SetName(string) error {
	return nil
}

// Name returns ErrUnsupported.
func Name() (string, error) {
	return "", ErrUnsupported
}

// SetAffinity returns ErrUnsupported, unless cpus is empty.
func SetAffinity(cpus []int) error {
	if len(cpus) == 0 {
		return nil
	}
	return ErrUnsupported
}

// Affinity returns ErrUnsupported.
func Affinity() ([]int, error) {
	return nil, ErrUnsupported
}

// ID returns 0, as thread ids are not exposed on this platform.
func ID() int {
	return 0
}
