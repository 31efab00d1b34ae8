// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package osthread

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// SetName sets the name of the calling OS thread, as shown by tools like top
// and gdb. Names longer than 15 bytes are truncated.
func SetName(name string) error {
	b := append([]byte(truncateName(name)), 0)
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&b[0])), 0, 0, 0)
}

// Name returns the name of the calling OS thread.
func Name() (string, error) {
	var b [maxNameLen + 1]byte
	if err := unix.Prctl(unix.PR_GET_NAME, uintptr(unsafe.Pointer(&b[0])), 0, 0, 0); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(b[:]), nil
}

// SetAffinity pins the calling OS thread to the given CPUs.
func SetAffinity(cpus []int) error {
	var set unix.CPUSet
	set.Zero()
	for _, cpu := range cpus {
		set.Set(cpu)
	}
	return unix.SchedSetaffinity(0, &set)
}

// Affinity returns the CPUs the calling OS thread may run on.
func Affinity() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, err
	}
	var cpus []int
	for cpu := 0; cpu < len(set)*64; cpu++ {
		if set.IsSet(cpu) {
			cpus = append(cpus, cpu)
		}
	}
	return cpus, nil
}

// ID returns the kernel thread id of the calling OS thread.
func ID() int {
	return unix.Gettid()
}
