// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package session

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/livereader/internal/config"
	"github.com/ManuGH/livereader/internal/health"
	"github.com/ManuGH/livereader/internal/procgraph"
	"github.com/ManuGH/livereader/internal/producer"
	"github.com/ManuGH/livereader/internal/streamerr"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Stream.Key = "live_secret"
	cfg.Video.Width, cfg.Video.Height = 8, 8
	cfg.Video.FIFO = filepath.Join(dir, "video.fifo")
	cfg.Audio.FIFO = filepath.Join(dir, "audio.fifo")
	cfg.Stream.PreviewFIFO = filepath.Join(dir, "preview.fifo")
	cfg.Audio.Interval = 0
	cfg.Loop.Period = 5 * time.Millisecond
	cfg.FFmpeg.StopGrace = 500 * time.Millisecond
	cfg.Script = []string{"hello"}
	return cfg
}

func sh(name, script string, args ...string) procgraph.Stage {
	return procgraph.Stage{Name: name, Bin: "sh", Args: append([]string{"-c", script}, args...)}
}

// drainStages reads both FIFOs and discards everything.
func drainStages(cfg config.AppConfig) []procgraph.Stage {
	return []procgraph.Stage{
		sh(StageVideo, `exec cat "$0"`, cfg.Video.FIFO),
		sh(StageMux, `cat "$0" >/dev/null & exec cat >/dev/null`, cfg.Audio.FIFO),
	}
}

func fakeDeps(stages []procgraph.Stage) Deps {
	return Deps{
		Renderer: producer.RendererFunc(func(ctx context.Context) ([]byte, error) {
			return make([]byte, 8*8*4), ctx.Err()
		}),
		Audio: producer.AudioSourceFunc(func(ctx context.Context, _ string) ([]byte, error) {
			return make([]byte, 1600), ctx.Err()
		}),
		Stages: stages,
	}
}

func runAsync(ctx context.Context, s *Session) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	return errCh
}

func waitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("session did not return")
		return nil
	}
}

func assertRemoved(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "%s still exists", p)
	}
}

func TestRun_StreamsUntilCancelled(t *testing.T) {
	requireSh(t)
	cfg := testConfig(t)
	s, err := New(cfg, fakeDeps(drainStages(cfg)))
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, s.Status().Phase)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runAsync(ctx, s)

	require.Eventually(t, func() bool {
		st := s.Status()
		return st.Phase == PhaseRunning && st.Loop.VideoFlushes > 3 && st.Loop.AudioWrites > 0
	}, 5*time.Second, 10*time.Millisecond)

	st := s.Status()
	assert.Equal(t, s.ID(), st.SessionID)
	require.Len(t, st.Stages, 2)
	for _, stage := range st.Stages {
		assert.True(t, stage.Running, stage.Name)
	}
	assert.Equal(t, 1, st.CachedLines)

	ready := s.Health().Ready(context.Background())
	assert.True(t, ready.Ready)
	assert.Equal(t, health.StatusHealthy, ready.Checks["encoder"].Status)
	assert.Equal(t, health.StatusHealthy, ready.Checks["fifo_video"].Status)

	cancel()
	require.NoError(t, waitErr(t, errCh))
	assert.Equal(t, PhaseStopped, s.Status().Phase)
	assertRemoved(t, cfg.Video.FIFO, cfg.Audio.FIFO)

	assert.ErrorContains(t, s.Run(context.Background()), "already started")
}

func TestRun_CancelUnblocksStalledEncoder(t *testing.T) {
	requireSh(t)
	cfg := testConfig(t)
	stages := []procgraph.Stage{
		// Holds the video input open without ever reading it.
		sh(StageVideo, `exec 3<"$0"; exec sleep 30`, cfg.Video.FIFO),
		sh(StageMux, `cat "$0" >/dev/null & exec cat >/dev/null`, cfg.Audio.FIFO),
	}
	deps := fakeDeps(stages)
	deps.Renderer = producer.RendererFunc(func(ctx context.Context) ([]byte, error) {
		return make([]byte, 40000), ctx.Err()
	})
	s, err := New(cfg, deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runAsync(ctx, s)

	require.Eventually(t, func() bool {
		return s.Status().Phase == PhaseRunning && s.Status().Loop.VideoFlushes >= 1
	}, 5*time.Second, 10*time.Millisecond)
	// Give the loop time to fill the pipe and block.
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assertRemoved(t, cfg.Video.FIFO, cfg.Audio.FIFO)
}

func TestRun_EncoderExitBreaksPipeline(t *testing.T) {
	requireSh(t)
	cfg := testConfig(t)
	stages := drainStages(cfg)
	stages[0] = sh(StageVideo, `exec head -c 2048 "$0" >/dev/null`, cfg.Video.FIFO)

	s, err := New(cfg, fakeDeps(stages))
	require.NoError(t, err)

	err = waitErr(t, runAsync(context.Background(), s))
	require.Error(t, err)
	assert.True(t, streamerr.IsPipelineBroken(err), "got %v", err)
	assertRemoved(t, cfg.Video.FIFO, cfg.Audio.FIFO)
}

func TestRun_EncoderDiesBeforeAttaching(t *testing.T) {
	requireSh(t)
	cfg := testConfig(t)
	stages := []procgraph.Stage{
		sh(StageVideo, `echo "cannot open input" >&2; exit 3`),
		sh(StageMux, `exec sleep 30`),
	}
	s, err := New(cfg, fakeDeps(stages))
	require.NoError(t, err)

	err = waitErr(t, runAsync(context.Background(), s))
	assert.True(t, streamerr.IsPipelineBroken(err), "got %v", err)
	assertRemoved(t, cfg.Video.FIFO, cfg.Audio.FIFO)
}

func TestRun_SpawnFailureIsSetupError(t *testing.T) {
	requireSh(t)
	cfg := testConfig(t)
	stages := drainStages(cfg)
	stages[1].Bin = filepath.Join(t.TempDir(), "no-such-encoder")

	s, err := New(cfg, fakeDeps(stages))
	require.NoError(t, err)

	err = waitErr(t, runAsync(context.Background(), s))
	assert.True(t, streamerr.IsSetup(err), "got %v", err)
	assertRemoved(t, cfg.Video.FIFO, cfg.Audio.FIFO)
}

func TestRun_CancelWhileWaitingForReaders(t *testing.T) {
	requireSh(t)
	cfg := testConfig(t)
	// Nothing ever opens the FIFOs for reading.
	stages := []procgraph.Stage{sh(StageVideo, `exec sleep 30`), sh(StageMux, `exec cat >/dev/null`)}
	s, err := New(cfg, fakeDeps(stages))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runAsync(ctx, s)
	require.Eventually(t, func() bool { return s.Status().Phase == PhaseStarting && len(s.Status().Stages) == 2 },
		5*time.Second, 10*time.Millisecond)
	cancel()

	assert.NoError(t, waitErr(t, errCh))
	assertRemoved(t, cfg.Video.FIFO, cfg.Audio.FIFO)
}

func TestRun_PreviewTee(t *testing.T) {
	requireSh(t)
	cfg := testConfig(t)
	cfg.Stream.Preview = true
	stages := []procgraph.Stage{
		sh(StageVideo, `exec cat "$0"`, cfg.Video.FIFO),
		// Copies the video stream to stdout like the tee muxer does.
		sh(StageMux, `cat "$0" >/dev/null & exec cat`, cfg.Audio.FIFO),
	}
	player := sh(StagePreview, `exec cat "$0" >/dev/null`, cfg.Stream.PreviewFIFO)
	deps := fakeDeps(stages)
	deps.Preview = &player

	s, err := New(cfg, deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runAsync(ctx, s)

	require.Eventually(t, func() bool {
		st := s.Status()
		return st.Phase == PhaseRunning && len(st.Stages) == 3 && st.Loop.VideoFlushes > 3
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, StagePreview, s.Status().Stages[2].Name)
	assert.True(t, s.Status().Stages[2].Running)

	cancel()
	require.NoError(t, waitErr(t, errCh))
	assertRemoved(t, cfg.Video.FIFO, cfg.Audio.FIFO, cfg.Stream.PreviewFIFO)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stream.Key = ""
	_, err := New(cfg, Deps{})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
