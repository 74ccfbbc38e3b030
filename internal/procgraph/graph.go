// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgraph runs a linear chain of encoder processes.
//
// The stdout of stage i is forwarded into the stdin of stage i+1, every
// stderr is drained into the log aggregator, and each stage lives in its own
// process group so Stop can reap the whole tree.
package procgraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/livereader/internal/log"
	"github.com/ManuGH/livereader/internal/logagg"
	"github.com/ManuGH/livereader/internal/metrics"
	"github.com/ManuGH/livereader/internal/pipeio"
	"github.com/ManuGH/livereader/internal/procgroup"
	"github.com/ManuGH/livereader/internal/streamerr"
)

// DefaultGrace is how long Stop waits after SIGTERM before SIGKILL.
const DefaultGrace = 3 * time.Second

// errExited marks a stage that ended with status 0 while the graph was live.
var errExited = errors.New("exited")

// Stage describes one process of the graph.
type Stage struct {
	Name string
	Bin  string
	Args []string
	// LogIndex orders the stage's stderr in log listings.
	LogIndex int
}

// Options configures Start.
type Options struct {
	// FinalOutput receives the stdout of the last stage. Nil discards it.
	FinalOutput io.Writer
	// Aggregator receives every stderr line. Nil discards stderr.
	Aggregator *logagg.Aggregator
	// Redactor scrubs logged command lines.
	Redactor log.Redactor
}

// StageStatus is the liveness of one stage.
type StageStatus struct {
	Name    string `json:"name"`
	PID     int    `json:"pid"`
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type stage struct {
	Stage
	cmd    *exec.Cmd
	exited chan struct{}
	err    error
}

// Graph is a started process chain.
type Graph struct {
	stages []*stage
	logger zerolog.Logger

	done     chan struct{}
	doneOnce sync.Once
	firstErr error

	stopping atomic.Bool
	stopOnce sync.Once
	stopErr  error

	io      sync.WaitGroup
	drained chan struct{}
}

// Start spawns stages in order and wires their pipes. If any stage fails to
// spawn, the stages already running are terminated and a
// *streamerr.SetupError naming the stage is returned.
func Start(ctx context.Context, stages []Stage, opts Options) (*Graph, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("procgraph: no stages")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g := &Graph{
		logger:  log.WithComponentFromContext(ctx, "procgraph"),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}

	// Pipe ends held by the parent, closed on failure or handed to goroutines.
	var (
		parentFiles []*os.File
		childFiles  []*os.File
	)
	closeAll := func(files []*os.File) {
		for _, f := range files {
			_ = f.Close()
		}
	}

	type link struct{ r, w *os.File }
	links := make([]link, len(stages)-1)
	type stdio struct{ stdout, stderr *os.File }
	readers := make([]stdio, len(stages))

	for i, st := range stages {
		// #nosec G204 -- argv is built by internal/encoder, no shell involved
		cmd := exec.Command(st.Bin, st.Args...)
		procgroup.Set(cmd)

		er, ew, err := os.Pipe()
		if err != nil {
			closeAll(parentFiles)
			closeAll(childFiles)
			return nil, streamerr.Setup("pipe", st.Name, err)
		}
		cmd.Stderr = ew
		parentFiles = append(parentFiles, er)
		childFiles = append(childFiles, ew)
		readers[i].stderr = er

		if i > 0 {
			cmd.Stdin = links[i-1].r
		}
		last := i == len(stages)-1
		if !last || opts.FinalOutput != nil {
			or, ow, err := os.Pipe()
			if err != nil {
				closeAll(parentFiles)
				closeAll(childFiles)
				return nil, streamerr.Setup("pipe", st.Name, err)
			}
			cmd.Stdout = ow
			parentFiles = append(parentFiles, or)
			childFiles = append(childFiles, ow)
			readers[i].stdout = or
		}
		if !last {
			// Stdin of the next stage: we write, it reads.
			lr, lw, err := os.Pipe()
			if err != nil {
				closeAll(parentFiles)
				closeAll(childFiles)
				return nil, streamerr.Setup("pipe", stages[i+1].Name, err)
			}
			links[i] = link{r: lr, w: lw}
			parentFiles = append(parentFiles, lw)
			childFiles = append(childFiles, lr)
		}

		g.stages = append(g.stages, &stage{Stage: st, cmd: cmd, exited: make(chan struct{})})
	}

	for i, s := range g.stages {
		g.logger.Info().
			Str(log.FieldStage, s.Name).
			Str(log.FieldCommand, opts.Redactor.String(commandLine(s.Bin, s.Args))).
			Msg("starting encoder stage")

		if err := s.cmd.Start(); err != nil {
			metrics.StageSpawnTotal.WithLabelValues(s.Name, "error").Inc()
			g.logger.Error().Err(err).Str(log.FieldStage, s.Name).Msg("encoder stage failed to start")
			closeAll(childFiles)
			closeAll(parentFiles)
			g.stopping.Store(true)
			for _, started := range g.stages[:i] {
				_ = procgroup.Terminate(started.cmd, waitChan(started), DefaultGrace)
			}
			return nil, streamerr.Setup("spawn", s.Name, err)
		}
		metrics.StageSpawnTotal.WithLabelValues(s.Name, "ok").Inc()
		g.logger.Debug().Str(log.FieldStage, s.Name).Int(log.FieldPID, s.cmd.Process.Pid).Msg("encoder stage started")

		go g.reap(s)
	}
	closeAll(childFiles)

	for i, s := range g.stages {
		g.consumeStderr(s, readers[i].stderr, opts.Aggregator)
		if out := readers[i].stdout; out != nil {
			if i < len(g.stages)-1 {
				g.forwardLink(s.Name+"->"+g.stages[i+1].Name, out, links[i].w)
			} else {
				g.forwardFinal(s.Name, out, opts.FinalOutput)
			}
		}
	}
	go func() {
		for _, s := range g.stages {
			<-s.exited
		}
		g.io.Wait()
		close(g.drained)
	}()

	return g, nil
}

func (g *Graph) reap(s *stage) {
	err := s.cmd.Wait()
	s.err = err
	close(s.exited)

	reason := "exit0"
	switch {
	case g.stopping.Load():
		reason = "stopped"
	case err != nil:
		reason = "error"
	}
	metrics.StageExitTotal.WithLabelValues(s.Name, reason).Inc()

	ev := g.logger.Info()
	if reason == "error" {
		ev = g.logger.Warn().Err(err)
	}
	ev.Str(log.FieldStage, s.Name).Int(log.FieldExitCode, s.cmd.ProcessState.ExitCode()).Str("reason", reason).Msg("encoder stage exited")

	g.doneOnce.Do(func() {
		if !g.stopping.Load() {
			cause := err
			if cause == nil {
				cause = errExited
			}
			g.firstErr = streamerr.Broken(s.Name, fmt.Errorf("encoder stage %w", cause))
		}
		close(g.done)
	})
}

func (g *Graph) consumeStderr(s *stage, r *os.File, agg *logagg.Aggregator) {
	g.io.Add(1)
	go func() {
		defer g.io.Done()
		defer r.Close()
		if agg == nil {
			_, _ = io.Copy(io.Discard, r)
			return
		}
		if err := agg.Consume(s.Name, s.LogIndex, r); err != nil {
			g.logger.Warn().Err(err).Str(log.FieldStage, s.Name).Msg("stderr consumer stopped")
			_, _ = io.Copy(io.Discard, r)
		}
	}()
}

func (g *Graph) forwardLink(name string, src, dst *os.File) {
	g.io.Add(1)
	go func() {
		defer g.io.Done()
		defer src.Close()
		_, err := pipeio.ForwardLabeled(name, src, dst)
		// Next stage sees EOF on its stdin.
		_ = dst.Close()
		if err != nil && !g.stopping.Load() {
			g.logger.Warn().Err(err).Str("link", name).Msg("pipe forwarding failed")
		}
	}()
}

func (g *Graph) forwardFinal(name string, src *os.File, dst io.Writer) {
	g.io.Add(1)
	go func() {
		defer g.io.Done()
		defer src.Close()
		if _, err := pipeio.ForwardLabeled(name+"->output", src, dst); err != nil {
			if !g.stopping.Load() {
				g.logger.Warn().Err(err).Str(log.FieldStage, name).Msg("final output failed, discarding")
			}
			// The stage must never block on a full stdout.
			_, _ = io.Copy(io.Discard, src)
		}
	}()
}

// Done is closed when the first stage exits.
func (g *Graph) Done() <-chan struct{} { return g.done }

// Drained is closed once every stage has exited and all pipes are drained.
func (g *Graph) Drained() <-chan struct{} { return g.drained }

// Wait blocks until the first stage exits. An exit that Stop did not cause
// is returned as a streamerr.ErrPipelineBroken error; otherwise nil.
func (g *Graph) Wait() error {
	<-g.done
	return g.firstErr
}

// Stop terminates every stage (SIGTERM, grace, SIGKILL) and waits until
// their pipes are drained. Exit statuses caused by the signals are not
// errors; a group that survives SIGKILL is. Stop is idempotent.
func (g *Graph) Stop(grace time.Duration) error {
	g.stopOnce.Do(func() {
		g.stopping.Store(true)
		if grace <= 0 {
			grace = DefaultGrace
		}

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
		)
		for _, s := range g.stages {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := procgroup.Terminate(s.cmd, waitChan(s), grace)
				if errors.Is(err, procgroup.ErrKillFailed) {
					mu.Lock()
					errs = append(errs, fmt.Errorf("stage %s: %w", s.Name, err))
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if len(errs) == 0 {
			<-g.drained
		}
		g.stopErr = errors.Join(errs...)
		g.logger.Info().Int("stages", len(g.stages)).Msg("encoder graph stopped")
	})
	return g.stopErr
}

// Alive reports the liveness of every stage in order.
func (g *Graph) Alive() []StageStatus {
	out := make([]StageStatus, 0, len(g.stages))
	for _, s := range g.stages {
		st := StageStatus{Name: s.Name, Running: true}
		if s.cmd.Process != nil {
			st.PID = s.cmd.Process.Pid
		}
		select {
		case <-s.exited:
			st.Running = false
			if s.err != nil {
				st.Error = s.err.Error()
			}
		default:
		}
		out = append(out, st)
	}
	return out
}

// waitChan adapts a stage's exit to the single-result channel Terminate expects.
func waitChan(s *stage) <-chan error {
	ch := make(chan error, 1)
	go func() {
		<-s.exited
		ch <- s.err
	}()
	return ch
}

func commandLine(bin string, args []string) string {
	return strings.TrimSpace(bin + " " + strings.Join(args, " "))
}
