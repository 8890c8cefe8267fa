// Copyright 2025 The go-acr Authors. SPDX-License-Identifier: Apache-2.0

//go:build unix

package stats

import (
	"time"

	"golang.org/x/sys/unix"
)

// childCPUTime returns the user and system CPU time of the waited-for child
// processes, that is the compilers run by the system backend.
func childCPUTime() (time.Duration, bool) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_CHILDREN, &ru); err != nil {
		return 0, false
	}
	return time.Duration(ru.Utime.Nano() + ru.Stime.Nano()), true
}
