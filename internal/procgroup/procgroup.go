// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup starts encoder processes in their own process group so a
// whole encoder tree can be signalled and reaped at session end.
package procgroup

import (
	"errors"
	"os"
	"syscall"
)

// ErrKillFailed is returned when a process group survived SIGKILL.
var ErrKillFailed = errors.New("kill operation failed")

// gone reports whether a signalling error means the target already exited.
func gone(err error) bool {
	return errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone)
}
