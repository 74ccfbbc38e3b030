// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package procgroup

import (
	"os/exec"
	"syscall"
)

// Set configures the command to start in a new process group.
// Mandatory for Kill and Terminate to reach the whole tree.
func Set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// Kill sends sig to the process group of cmd.
// A nil command, an unstarted command or an exited group is not an error.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		if gone(err) {
			return nil
		}
		return err
	}

	// Negative PGID targets the leader and all of its children.
	if err := syscall.Kill(-pgid, sig); err != nil {
		if gone(err) {
			return nil
		}
		return err
	}
	return nil
}
