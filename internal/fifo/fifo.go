// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fifo creates and opens the named pipes that carry raw media into
// the encoder processes.
//
// Opening a FIFO blocks until the other end is opened as well. That block is
// the startup barrier of a session: the encoder (reader) is spawned first and
// the writer open completes once the encoder has opened its input. Every open
// here takes a context so the barrier can be abandoned.
package fifo

import (
	"context"
	"os"

	"github.com/ManuGH/livereader/internal/log"
	"github.com/ManuGH/livereader/internal/metrics"
)

// Perm is the mode of every FIFO created by Create.
const Perm os.FileMode = 0o600

// Result is the outcome of an asynchronous open.
type Result struct {
	File *os.File
	Err  error
}

// OpenWriteAsync runs OpenWrite on its own goroutine so the caller is never
// blocked on a reader that has not attached yet. The channel receives exactly
// one Result and is then closed.
func OpenWriteAsync(ctx context.Context, path string) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		f, err := OpenWrite(ctx, path)
		out <- Result{File: f, Err: err}
	}()
	return out
}

// Await waits for an asynchronous open. It returns ctx.Err() if ctx ends
// first; the pending open is then released by its own context.
func Await(ctx context.Context, ch <-chan Result) (*os.File, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.File, r.Err
	}
}

func recordOpen(direction, path string, err error) {
	logger := log.WithComponent("fifo")
	if err != nil {
		metrics.FifoOpenTotal.WithLabelValues(direction, "error").Inc()
		logger.Debug().Err(err).Str(log.FieldPath, path).Str("direction", direction).Msg("fifo open failed")
		return
	}
	metrics.FifoOpenTotal.WithLabelValues(direction, "ok").Inc()
	logger.Debug().Str(log.FieldPath, path).Str("direction", direction).Msg("fifo opened")
}
