// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"os"
	"sync"

	"github.com/ManuGH/livereader/internal/fifo"
)

// previewWriter is the final output of the encoder graph in preview mode.
// The preview FIFO is opened for write on the first Write, once release has
// been called, so the open always follows the spawn of the player.
type previewWriter struct {
	ctx   context.Context
	path  string
	ready chan struct{}

	releaseOnce sync.Once
	once        sync.Once
	f           *os.File
	err         error
}

func newPreviewWriter(ctx context.Context, path string) *previewWriter {
	return &previewWriter{ctx: ctx, path: path, ready: make(chan struct{})}
}

// release lets the first Write open the FIFO.
func (w *previewWriter) release() {
	w.releaseOnce.Do(func() { close(w.ready) })
}

func (w *previewWriter) Write(p []byte) (int, error) {
	w.once.Do(func() {
		select {
		case <-w.ready:
		case <-w.ctx.Done():
			w.err = w.ctx.Err()
			return
		}
		w.f, w.err = fifo.OpenWrite(w.ctx, w.path)
	})
	if w.err != nil {
		return 0, w.err
	}
	return w.f.Write(p)
}

// Close closes the FIFO. It must only be called once the graph has drained.
func (w *previewWriter) Close() error {
	if w.f == nil {
		return nil
	}
	return w.f.Close()
}
