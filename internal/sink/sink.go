// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sink owns the media pipe handles of a session and writes the
// current video frame and audio samples into them.
//
// A gap in production (no frame yet, an empty or undersized buffer) is never
// fatal: the flush is skipped with a warning, or silence is written in place
// of audio so the downstream sample clock keeps running. Only a failed write
// ends the session, as streamerr.ErrPipelineBroken.
package sink

import (
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/livereader/internal/log"
	"github.com/ManuGH/livereader/internal/metrics"
	"github.com/ManuGH/livereader/internal/streamerr"
)

const (
	// DefaultChunkSize is the audio write size of FlushAudioChunk.
	DefaultChunkSize = 800

	// MinRawAudio is the shortest buffer WriteRawAudio accepts.
	MinRawAudio = 4

	MediumVideo = "video"
	MediumAudio = "audio"
)

// Options tunes a Sink.
type Options struct {
	// ChunkSize is the audio chunk length; DefaultChunkSize when <= 0.
	ChunkSize int
	// WarnInterval limits repeated skip warnings to one per interval and
	// medium. Zero logs every skip.
	WarnInterval time.Duration
	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

// Sink holds one current buffer per medium and the pipes they are written to.
// It is not safe for concurrent use; the coordination loop is its only user.
type Sink struct {
	video io.Writer
	audio io.Writer

	videoBuf []byte
	audioBuf []byte
	audioPos int

	chunk   int
	silence []byte

	logger    zerolog.Logger
	warnVideo *rate.Sometimes
	warnAudio *rate.Sometimes
}

// New returns a Sink writing to the given pipes. The Sink takes ownership of
// both writers; Close closes them when they implement io.Closer.
func New(video, audio io.Writer, opts Options) *Sink {
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	logger := log.WithComponent("sink")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	s := &Sink{
		video:   video,
		audio:   audio,
		chunk:   chunk,
		silence: make([]byte, chunk),
		logger:  logger,
	}
	if opts.WarnInterval > 0 {
		s.warnVideo = &rate.Sometimes{Interval: opts.WarnInterval}
		s.warnAudio = &rate.Sometimes{Interval: opts.WarnInterval}
	}
	return s
}

// ChunkSize returns the audio chunk length.
func (s *Sink) ChunkSize() int { return s.chunk }

// SetVideoBuffer replaces the current video frame.
func (s *Sink) SetVideoBuffer(buf []byte) {
	s.videoBuf = buf
}

// SetAudioBuffer replaces the current audio buffer and rewinds the cursor.
// Any unflushed remainder of the previous buffer is discarded.
func (s *Sink) SetAudioBuffer(buf []byte) {
	s.audioBuf = buf
	s.audioPos = 0
}

// AudioRemaining is the number of bytes of the current audio buffer not yet flushed.
func (s *Sink) AudioRemaining() int {
	return len(s.audioBuf) - s.audioPos
}

// FlushVideo writes the whole current frame to the video pipe. With no frame
// set it logs a warning and writes nothing.
func (s *Sink) FlushVideo() error {
	if len(s.videoBuf) == 0 {
		s.skip(MediumVideo, "empty", "skipping empty video buffer")
		return nil
	}
	return s.write(MediumVideo, "frame", s.video, s.videoBuf)
}

// FlushAudioChunk writes up to ChunkSize bytes from the audio cursor. An empty
// buffer is replaced by one chunk of silence. done reports that the buffer is
// fully flushed and a new one may be requested.
func (s *Sink) FlushAudioChunk() (done bool, err error) {
	if len(s.audioBuf) == 0 {
		if err := s.write(MediumAudio, "silence", s.audio, s.silence); err != nil {
			return false, err
		}
		return true, nil
	}

	end := min(s.audioPos+s.chunk, len(s.audioBuf))
	if err := s.write(MediumAudio, "chunk", s.audio, s.audioBuf[s.audioPos:end]); err != nil {
		return false, err
	}
	s.audioPos = end

	if s.audioPos >= len(s.audioBuf) {
		s.audioBuf = nil
		s.audioPos = 0
		return true, nil
	}
	return false, nil
}

// WriteRawAudio writes an already chunked buffer straight to the audio pipe,
// bypassing the cursor. Buffers shorter than MinRawAudio are skipped with a
// warning; the returned error then wraps streamerr.ErrMalformedBuffer and is
// safe to ignore.
func (s *Sink) WriteRawAudio(buf []byte) error {
	if len(buf) < MinRawAudio {
		s.skip(MediumAudio, "malformed", "audio buffer should have at least 4 bytes")
		return streamerr.ErrMalformedBuffer
	}
	return s.write(MediumAudio, "raw", s.audio, buf)
}

// Close closes the pipes owned by the sink.
func (s *Sink) Close() error {
	var errs []error
	for _, w := range []io.Writer{s.video, s.audio} {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Interrupt unblocks a write stuck on a pipe nobody reads. Pipes that support
// deadlines get one in the past, others are closed. It is safe to call while
// the coordination loop is writing; the sink is unusable afterwards.
func (s *Sink) Interrupt() error {
	var errs []error
	for _, w := range []io.Writer{s.video, s.audio} {
		switch p := w.(type) {
		case deadliner:
			if err := p.SetWriteDeadline(time.Unix(1, 0)); err != nil {
				errs = append(errs, err)
			}
		case io.Closer:
			if err := p.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Sink) write(medium, kind string, w io.Writer, buf []byte) error {
	n, err := w.Write(buf)
	if err == nil && n < len(buf) {
		err = io.ErrShortWrite
	}
	if err != nil {
		s.logger.Error().Err(err).Str(log.FieldMedium, medium).Int(log.FieldBytes, len(buf)).Msg("pipe write failed")
		return streamerr.Broken(medium, err)
	}
	metrics.IncSinkWrite(medium, kind, n)
	return nil
}

func (s *Sink) skip(medium, reason, msg string) {
	metrics.IncSinkSkipped(medium, reason)

	limiter := s.warnVideo
	if medium == MediumAudio {
		limiter = s.warnAudio
	}
	emit := func() {
		s.logger.Warn().Str(log.FieldMedium, medium).Str("reason", reason).Msg(msg)
	}
	if limiter == nil {
		emit()
		return
	}
	limiter.Do(emit)
}
