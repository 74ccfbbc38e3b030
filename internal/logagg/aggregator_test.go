// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package logagg

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/livereader/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startAggregator(t *testing.T, opts Options) (*Aggregator, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })
	logger := zerolog.New(out).Level(zerolog.DebugLevel)
	opts.Logger = &logger
	a := New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return a, out
}

func TestConsume_RedactsAndDeduplicates(t *testing.T) {
	a, out := startAggregator(t, Options{Redactor: log.NewRedactor("sekrit")})

	input := "Output #0 rtmp://host/app/sekrit\nframe=1\rframe=1\rframe=2\n\n"
	require.NoError(t, a.Consume("video", 0, strings.NewReader(input)))

	require.Eventually(t, func() bool {
		return len(a.Last("video", 10)) == 3
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{
		"Output #0 rtmp://host/app/" + log.Redacted,
		"frame=1",
		"frame=2",
	}, a.Last("video", 10))
	assert.NotContains(t, out.String(), "sekrit")
	assert.Contains(t, out.String(), `"stage":"video"`)
}

func TestConsume_LogsAtDefaultLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	out := &syncBuffer{}
	logger := zerolog.New(out)
	a := New(Options{Logger: &logger})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.NoError(t, a.Consume("mux", 1, strings.NewReader("Press [q] to stop\n")))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Press [q] to stop")
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), `"level":"info"`)
}

func TestSnapshot_OrderedByIndex(t *testing.T) {
	a, _ := startAggregator(t, Options{})

	require.NoError(t, a.Consume("mux", 1, strings.NewReader("b\n")))
	require.NoError(t, a.Consume("video", 0, strings.NewReader("a\n")))

	require.Eventually(t, func() bool {
		snap := a.Snapshot(5)
		return len(snap) == 2 && len(snap[0].Lines) == 1 && len(snap[1].Lines) == 1
	}, time.Second, 5*time.Millisecond)

	snap := a.Snapshot(5)
	assert.Equal(t, "video", snap[0].Stream)
	assert.Equal(t, []string{"a"}, snap[0].Lines)
	assert.Equal(t, "mux", snap[1].Stream)
}

func TestConsume_KeepsDrainingAfterStop(t *testing.T) {
	a := New(Options{Buffer: 1})
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = a.Run(ctx)
	}()

	pr, pw := io.Pipe()
	consumeDone := make(chan error, 1)
	go func() { consumeDone <- a.Consume("video", 0, pr) }()

	_, err := pw.Write([]byte("first\n"))
	require.NoError(t, err)
	cancel()
	<-runDone

	// The writer must never block once the aggregator is gone.
	for range 100 {
		_, err := pw.Write([]byte("more output\n"))
		require.NoError(t, err)
	}
	require.NoError(t, pw.Close())
	assert.NoError(t, <-consumeDone)
}

func TestConsume_AfterRunReturned(t *testing.T) {
	a := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, a.Run(ctx))

	require.NoError(t, a.Consume("late", 0, strings.NewReader("ignored\n")))
	assert.Empty(t, a.Last("late", 10))
}

func TestScanLines_LongLineSplit(t *testing.T) {
	long := strings.Repeat("x", MaxLineLength+10)
	adv, tok, err := scanLines([]byte(long), false)
	require.NoError(t, err)
	assert.Equal(t, MaxLineLength+10, adv)
	assert.Len(t, tok, MaxLineLength+10)
}
