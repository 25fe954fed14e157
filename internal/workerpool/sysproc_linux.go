// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

//go:build linux

package workerpool

import (
	"os"
	"syscall"
)

// sysProcAttr makes the kernel kill a worker when the pool's process dies.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
}

func signalTerm(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
