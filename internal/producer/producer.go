// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package producer runs the goroutines that generate media buffers.
//
// Each producer follows the same cycle: produce a buffer, send it to its
// mailbox, then wait until the coordination loop ticks it. A producer is
// therefore never more than one buffer ahead of the sink.
package producer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/livereader/internal/log"
	"github.com/ManuGH/livereader/internal/mailbox"
	"github.com/ManuGH/livereader/internal/metrics"
)

const (
	defaultBackoff    = 200 * time.Millisecond
	defaultMaxBackoff = 5 * time.Second
)

// Renderer produces one raw video frame.
type Renderer interface {
	Render(ctx context.Context) ([]byte, error)
}

// AudioSource produces raw PCM for a piece of text.
type AudioSource interface {
	Generate(ctx context.Context, text string) ([]byte, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context) ([]byte, error)

// Render calls f.
func (f RendererFunc) Render(ctx context.Context) ([]byte, error) { return f(ctx) }

// AudioSourceFunc adapts a function to AudioSource.
type AudioSourceFunc func(ctx context.Context, text string) ([]byte, error)

// Generate calls f.
func (f AudioSourceFunc) Generate(ctx context.Context, text string) ([]byte, error) {
	return f(ctx, text)
}

// Backoff is the retry delay after a failed produce attempt. It doubles per
// consecutive failure up to Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (b Backoff) delay(failures int) time.Duration {
	initial, limit := b.Initial, b.Max
	if initial <= 0 {
		initial = defaultBackoff
	}
	if limit <= 0 {
		limit = defaultMaxBackoff
	}
	wait := initial
	for range min(failures-1, 16) {
		wait *= 2
		if wait >= limit {
			return limit
		}
	}
	return min(wait, limit)
}

// Video renders frames into the video mailbox.
type Video struct {
	Renderer Renderer
	Out      *mailbox.Mailbox[[]byte]
	Tick     *mailbox.Signal
	Backoff  Backoff
}

// Run produces frames until ctx is done. It returns nil on cancellation.
func (v *Video) Run(ctx context.Context) error {
	logger := log.WithComponentFromContext(ctx, "producer").With().Str(log.FieldMedium, "video").Logger()
	logger.Debug().Msg("video producer started")

	failures := 0
	for {
		frame, err := v.Renderer.Render(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			if !retry(ctx, logger, "video", err, v.Backoff.delay(failures)) {
				return nil
			}
			continue
		}
		failures = 0

		v.Out.Send(frame)
		if err := v.Tick.Wait(ctx); err != nil {
			return nil
		}
	}
}

// Audio turns a cycling script into PCM buffers for the audio mailbox.
type Audio struct {
	Source AudioSource
	Script []string
	Out    *mailbox.Mailbox[[]byte]
	Tick   *mailbox.Signal
	// Interval is the minimum pause between two sends.
	Interval time.Duration
	Backoff  Backoff

	mu    sync.Mutex
	cache map[string][]byte
}

// ErrEmptyScript is returned by Audio.Run when there is nothing to read.
var ErrEmptyScript = errors.New("producer: empty script")

// Run produces audio until ctx is done. It returns nil on cancellation.
func (a *Audio) Run(ctx context.Context) error {
	if len(a.Script) == 0 {
		return ErrEmptyScript
	}
	logger := log.WithComponentFromContext(ctx, "producer").With().Str(log.FieldMedium, "audio").Logger()
	logger.Debug().Int("lines", len(a.Script)).Msg("audio producer started")

	failures := 0
	for line := 0; ; {
		text := a.Script[line%len(a.Script)]
		pcm, err := a.generate(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			if !retry(ctx, logger, "audio", err, a.Backoff.delay(failures)) {
				return nil
			}
			continue
		}
		failures = 0
		line++

		logger.Trace().Int(log.FieldBytes, len(pcm)).Msg("audio buffer ready")
		a.Out.Send(pcm)
		if a.Interval > 0 && !sleep(ctx, a.Interval) {
			return nil
		}
		if err := a.Tick.Wait(ctx); err != nil {
			return nil
		}
	}
}

// Cached reports how many script lines have generated audio.
func (a *Audio) Cached() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.cache)
}

func (a *Audio) generate(ctx context.Context, text string) ([]byte, error) {
	a.mu.Lock()
	pcm, ok := a.cache[text]
	a.mu.Unlock()
	if ok {
		return pcm, nil
	}

	pcm, err := a.Source.Generate(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("generate audio: %w", err)
	}
	a.mu.Lock()
	if a.cache == nil {
		a.cache = make(map[string][]byte)
	}
	a.cache[text] = pcm
	a.mu.Unlock()
	return pcm, nil
}

// retry logs a failed attempt and sleeps; false means ctx ended.
func retry(ctx context.Context, logger zerolog.Logger, medium string, err error, wait time.Duration) bool {
	metrics.ProducerErrorsTotal.WithLabelValues(medium).Inc()
	logger.Warn().Err(err).Dur("retry_in", wait).Msg("produce failed")
	return sleep(ctx, wait)
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
