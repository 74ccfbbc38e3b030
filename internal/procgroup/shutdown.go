// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/livereader/internal/metrics"
)

// Terminate stops a process group: SIGTERM, wait up to grace for waitCh,
// then SIGKILL and wait again. waitCh must deliver the result of cmd.Wait
// exactly once; Terminate consumes and returns it. If the group outlives
// SIGKILL by more than grace, ErrKillFailed is returned.
// Safe to call with a nil or unstarted command (returns nil).
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	signalGroup(cmd, syscall.SIGTERM)

	select {
	case err := <-waitCh:
		if err == nil {
			metrics.IncProcWait("exit0")
		} else {
			metrics.IncProcWait("exit_nonzero")
		}
		return err
	case <-time.After(grace):
	}

	signalGroup(cmd, syscall.SIGKILL)

	select {
	case err := <-waitCh:
		if err == nil {
			metrics.IncProcWait("forced_exit0")
		} else {
			metrics.IncProcWait("forced_error")
		}
		return err
	case <-time.After(grace):
		metrics.IncProcWait("kill_failed")
		return ErrKillFailed
	}
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	name := "SIGTERM"
	if sig == syscall.SIGKILL {
		name = "SIGKILL"
	}
	if err := Kill(cmd, sig); err != nil {
		metrics.IncProcTerminate(name, "error")
		return
	}
	metrics.IncProcTerminate(name, "sent")
}
