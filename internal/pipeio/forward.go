// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pipeio copies bytes between process pipes.
//
// Forward has no flow control of its own: a full destination blocks the
// write, which stops further reads from the source, which in turn blocks the
// upstream writer. That chain of blocking is the back-pressure mechanism of
// the encoder graph.
package pipeio

import (
	"errors"
	"fmt"
	"io"

	"github.com/ManuGH/livereader/internal/metrics"
)

// ChunkSize is the read size used by Forward.
const ChunkSize = 1024

// Flusher is implemented by destinations that buffer writes.
type Flusher interface {
	Flush() error
}

// Forward copies src into dst in ChunkSize reads, flushing dst after every
// non-empty write when it implements Flusher. It returns the number of bytes
// written and nil on end of stream, or the first read/write/flush failure.
func Forward(src io.Reader, dst io.Writer) (int64, error) {
	return forward(src, dst, "")
}

// ForwardLabeled is Forward with bytes accounted under link in metrics.
func ForwardLabeled(link string, src io.Reader, dst io.Writer) (int64, error) {
	return forward(src, dst, link)
}

func forward(src io.Reader, dst io.Writer, link string) (int64, error) {
	buf := make([]byte, ChunkSize)
	flusher, _ := dst.(Flusher)

	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			if w > 0 {
				total += int64(w)
				if link != "" {
					metrics.ForwardBytesTotal.WithLabelValues(link).Add(float64(w))
				}
			}
			if werr != nil {
				return total, fmt.Errorf("forward write: %w", werr)
			}
			if w != n {
				return total, fmt.Errorf("forward write: %w", io.ErrShortWrite)
			}
			if flusher != nil {
				if err := flusher.Flush(); err != nil {
					return total, fmt.Errorf("forward flush: %w", err)
				}
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return total, nil
			}
			return total, fmt.Errorf("forward read: %w", rerr)
		}
	}
}

// Go runs ForwardLabeled on its own goroutine. The returned channel receives
// exactly one result and is then closed.
func Go(link string, src io.Reader, dst io.Writer) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		_, err := ForwardLabeled(link, src, dst)
		done <- err
	}()
	return done
}
