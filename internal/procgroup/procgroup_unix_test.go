// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startGroup(t *testing.T, script string) (*exec.Cmd, <-chan error) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
	cmd := exec.Command("sh", "-c", script)
	Set(cmd)
	require.NoError(t, cmd.Start())

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()
	return cmd, waitCh
}

func TestKill_WholeGroup(t *testing.T) {
	cmd, waitCh := startGroup(t, "sleep 10 & sleep 10")
	pid := cmd.Process.Pid

	// Give sh a moment to fork its children.
	time.Sleep(100 * time.Millisecond)

	pgid, err := syscall.Getpgid(pid)
	require.NoError(t, err)
	assert.Equal(t, pid, pgid, "process should be group leader")

	require.NoError(t, Kill(cmd, syscall.SIGKILL))

	err = <-waitCh
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "expected exit error, got %v", err)
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
		assert.True(t, status.Signaled())
		assert.Equal(t, syscall.SIGKILL, status.Signal())
	}

	time.Sleep(50 * time.Millisecond)
	err = syscall.Kill(-pgid, syscall.Signal(0))
	if err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		t.Fatalf("process group %d still exists after kill", pgid)
	}
	assert.ErrorIs(t, err, syscall.ESRCH)
}

func TestKill_NilAndUnstarted(t *testing.T) {
	assert.NoError(t, Kill(nil, syscall.SIGTERM))
	assert.NoError(t, Kill(exec.Command("true"), syscall.SIGTERM))
}

func TestTerminate_GracefulExit(t *testing.T) {
	cmd, waitCh := startGroup(t, "sleep 10")

	start := time.Now()
	err := Terminate(cmd, waitCh, 2*time.Second)
	require.Error(t, err, "SIGTERM exit is reported as an exit error")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestTerminate_EscalatesToKill(t *testing.T) {
	cmd, waitCh := startGroup(t, "trap '' TERM; while true; do sleep 1; done")
	time.Sleep(100 * time.Millisecond)

	grace := 200 * time.Millisecond
	start := time.Now()
	err := Terminate(cmd, waitCh, grace)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.GreaterOrEqual(t, elapsed, grace)
	assert.Less(t, elapsed, 3*time.Second)
}

func TestTerminate_AlreadyExited(t *testing.T) {
	cmd, waitCh := startGroup(t, "exit 0")

	// Let it exit and be reaped by the wait goroutine's cmd.Wait.
	time.Sleep(100 * time.Millisecond)
	assert.NoError(t, Terminate(cmd, waitCh, 100*time.Millisecond))
}
