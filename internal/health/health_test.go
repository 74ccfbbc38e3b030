// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/livereader/internal/config"
	"github.com/ManuGH/livereader/internal/fifo"
	"github.com/ManuGH/livereader/internal/procgraph"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

type fakeGraph []procgraph.StageStatus

func (f fakeGraph) Alive() []procgraph.StageStatus { return f }

func TestManager_Health_NoCheckers(t *testing.T) {
	m := NewManager("v1.0.0")

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	assert.Nil(t, resp.Checks)
}

func TestManager_Health_WithCheckers(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
	assert.Equal(t, StatusDegraded, resp.Checks["degraded"].Status)
}

func TestManager_Ready(t *testing.T) {
	m := NewManager("v1.0.0")
	assert.True(t, m.Ready(context.Background()).Ready)

	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})
	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusDegraded, resp.Status)

	m.RegisterChecker(&mockChecker{name: "down", status: StatusUnhealthy})
	resp = m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestServeReady_StatusCodes(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "down", status: StatusUnhealthy})

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Ready)
	assert.Contains(t, body.Checks, "down")

	rec = httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGraphChecker(t *testing.T) {
	running := fakeGraph{{Name: "video", PID: 10, Running: true}, {Name: "mux", PID: 11, Running: true}}
	r := NewGraphChecker("encoder", running).Check(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)
	assert.Equal(t, "2 stages running", r.Message)

	broken := fakeGraph{{Name: "video", Running: true}, {Name: "mux", Error: "exit status 1"}}
	r = NewGraphChecker("encoder", broken).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, r.Status)
	assert.Equal(t, "mux: exit status 1", r.Error)

	r = NewGraphChecker("encoder", fakeGraph{}).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, r.Status)
}

func TestFIFOChecker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "video.fifo")

	r := NewFIFOChecker("video_fifo", path).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, r.Status)
	assert.Equal(t, "fifo not found", r.Error)

	plain := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(plain, []byte("x"), 0o600))
	r = NewFIFOChecker("plain", plain).Check(context.Background())
	assert.Equal(t, "not a named pipe", r.Error)

	if err := fifo.Create(path); err != nil {
		t.Skipf("named pipes unavailable: %v", err)
	}
	r = NewFIFOChecker("video_fifo", path).Check(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)
}

func TestPerformStartupChecks(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.FFmpeg.Bin = "sh"
	cfg.Video.FIFO = filepath.Join(dir, "v.fifo")
	cfg.Audio.FIFO = filepath.Join(dir, "a.fifo")
	cfg.API.Listen = "127.0.0.1:8088"
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("sh not available")
	}
	require.NoError(t, PerformStartupChecks(context.Background(), cfg))

	bad := cfg
	bad.FFmpeg.Bin = "livereader-no-such-binary"
	assert.ErrorContains(t, PerformStartupChecks(context.Background(), bad), "binary not found")

	bad = cfg
	bad.Video.FIFO = filepath.Join(dir, "missing", "v.fifo")
	assert.ErrorContains(t, PerformStartupChecks(context.Background(), bad), "directory does not exist")

	bad = cfg
	bad.API.Listen = "localhost"
	assert.ErrorContains(t, PerformStartupChecks(context.Background(), bad), "invalid listen address")
}
