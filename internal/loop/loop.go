// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package loop drives a session at a fixed cadence.
//
// Every period the loop drains the video and audio mailboxes without
// blocking, hands fresh buffers to the sink, ticks the producer whose buffer
// was consumed, and flushes the sink into the pipes. Flushing happens even
// when nothing new arrived so the encoder is never starved.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/livereader/internal/log"
	"github.com/ManuGH/livereader/internal/mailbox"
	"github.com/ManuGH/livereader/internal/metrics"
	"github.com/ManuGH/livereader/internal/streamerr"
)

// DefaultPeriod is the reference cadence of the loop.
const DefaultPeriod = 10 * time.Millisecond

// VideoPolicy decides what FlushVideo does in a period without a new frame.
type VideoPolicy string

const (
	// VideoDuplicate re-emits the last frame every period.
	VideoDuplicate VideoPolicy = "duplicate"
	// VideoOnChange emits a frame only in the period it arrived.
	VideoOnChange VideoPolicy = "onchange"
)

// AudioPolicy decides how a freshly drained audio buffer reaches the pipe.
type AudioPolicy string

const (
	// AudioRaw writes the whole buffer at once and ticks the producer.
	AudioRaw AudioPolicy = "raw"
	// AudioChunked paces the buffer out one chunk per period (silence when
	// idle) and ticks the producer once the buffer is fully flushed.
	AudioChunked AudioPolicy = "chunked"
)

// ParseVideoPolicy validates a policy name.
func ParseVideoPolicy(s string) (VideoPolicy, error) {
	switch p := VideoPolicy(s); p {
	case VideoDuplicate, VideoOnChange:
		return p, nil
	case "":
		return VideoDuplicate, nil
	default:
		return "", fmt.Errorf("unknown video policy %q", s)
	}
}

// ParseAudioPolicy validates a policy name.
func ParseAudioPolicy(s string) (AudioPolicy, error) {
	switch p := AudioPolicy(s); p {
	case AudioRaw, AudioChunked:
		return p, nil
	case "":
		return AudioRaw, nil
	default:
		return "", fmt.Errorf("unknown audio policy %q", s)
	}
}

// MediaSink is the part of sink.Sink the loop drives.
type MediaSink interface {
	SetVideoBuffer(buf []byte)
	SetAudioBuffer(buf []byte)
	FlushVideo() error
	FlushAudioChunk() (done bool, err error)
	WriteRawAudio(buf []byte) error
}

// Config tunes the loop.
type Config struct {
	Period time.Duration
	Video  VideoPolicy
	Audio  AudioPolicy
}

// Channels are the producer-facing ends of the loop.
type Channels struct {
	Video     *mailbox.Mailbox[[]byte]
	VideoTick *mailbox.Signal
	Audio     *mailbox.Mailbox[[]byte]
	AudioTick *mailbox.Signal
}

// Stats counts what the loop has done so far.
type Stats struct {
	Ticks        uint64
	VideoFlushes uint64
	AudioWrites  uint64
	Overruns     uint64
	// MailboxDrops sums buffers overwritten before the loop drained them.
	MailboxDrops uint64
}

// Loop is the coordination loop of one session.
type Loop struct {
	cfg    Config
	sink   MediaSink
	ch     Channels
	logger zerolog.Logger

	videoFresh  bool
	audioActive bool

	ticks        atomic.Uint64
	videoFlushes atomic.Uint64
	audioWrites  atomic.Uint64
	overruns     atomic.Uint64
}

// New builds a loop over sink and the producer channels.
func New(cfg Config, sink MediaSink, ch Channels) *Loop {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Video == "" {
		cfg.Video = VideoDuplicate
	}
	if cfg.Audio == "" {
		cfg.Audio = AudioRaw
	}
	return &Loop{
		cfg:    cfg,
		sink:   sink,
		ch:     ch,
		logger: log.WithComponent("loop"),
	}
}

// Run ticks every Period until ctx is done (returns nil) or the pipeline
// breaks (returns the streamerr.ErrPipelineBroken error). A write that fails
// after ctx is done is part of shutdown and also returns nil.
func (l *Loop) Run(ctx context.Context) error {
	logger := log.WithContext(ctx, l.logger)
	logger.Info().
		Dur("period", l.cfg.Period).
		Str("video_policy", string(l.cfg.Video)).
		Str("audio_policy", string(l.cfg.Audio)).
		Msg("coordination loop started")

	ticker := time.NewTicker(l.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Uint64("ticks", l.ticks.Load()).Msg("coordination loop stopped")
			return nil
		case <-ticker.C:
			start := time.Now()
			if err := l.Step(); err != nil {
				if ctx.Err() != nil {
					logger.Info().Err(err).Uint64("ticks", l.ticks.Load()).Msg("coordination loop stopped mid-write")
					return nil
				}
				logger.Error().Err(err).Msg("coordination loop aborted")
				return err
			}
			if time.Since(start) > l.cfg.Period {
				l.overruns.Add(1)
				metrics.LoopOverrunTotal.Inc()
			}
		}
	}
}

// Step runs exactly one period: drain video, drain audio, flush video and,
// for the chunked policy, flush one audio chunk.
func (l *Loop) Step() error {
	l.ticks.Add(1)
	metrics.LoopTicksTotal.Inc()

	if buf, ok := l.ch.Video.TryRecv(); ok {
		l.logger.Trace().Int(log.FieldBytes, len(buf)).Msg("video buffer received")
		l.sink.SetVideoBuffer(buf)
		l.videoFresh = true
		l.ch.VideoTick.Tick()
	}

	if err := l.drainAudio(); err != nil {
		return err
	}

	if l.cfg.Video == VideoDuplicate || l.videoFresh {
		if err := l.sink.FlushVideo(); err != nil {
			return err
		}
		l.videoFlushes.Add(1)
	}
	l.videoFresh = false

	if l.cfg.Audio == AudioChunked {
		done, err := l.sink.FlushAudioChunk()
		if err != nil {
			return err
		}
		l.audioWrites.Add(1)
		if done && l.audioActive {
			l.audioActive = false
			l.ch.AudioTick.Tick()
		}
	}
	return nil
}

func (l *Loop) drainAudio() error {
	buf, ok := l.ch.Audio.TryRecv()
	if !ok {
		return nil
	}
	l.logger.Trace().Int(log.FieldBytes, len(buf)).Msg("audio buffer received")

	if l.cfg.Audio == AudioChunked {
		l.sink.SetAudioBuffer(buf)
		l.audioActive = true
		return nil
	}

	err := l.sink.WriteRawAudio(buf)
	switch {
	case err == nil:
		l.audioWrites.Add(1)
	case errors.Is(err, streamerr.ErrMalformedBuffer):
		// Skipped and logged by the sink; the producer still gets its tick.
	default:
		return err
	}
	l.ch.AudioTick.Tick()
	return nil
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Ticks:        l.ticks.Load(),
		VideoFlushes: l.videoFlushes.Load(),
		AudioWrites:  l.audioWrites.Load(),
		Overruns:     l.overruns.Load(),
		MailboxDrops: l.ch.Video.Stats().Dropped + l.ch.Audio.Stats().Dropped,
	}
}
