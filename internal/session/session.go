// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session runs one live stream: it owns the FIFOs, the encoder
// graph, the producers and the coordination loop, and tears all of them
// down together.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/livereader/internal/api"
	"github.com/ManuGH/livereader/internal/config"
	"github.com/ManuGH/livereader/internal/encoder"
	"github.com/ManuGH/livereader/internal/fifo"
	"github.com/ManuGH/livereader/internal/health"
	"github.com/ManuGH/livereader/internal/log"
	"github.com/ManuGH/livereader/internal/logagg"
	"github.com/ManuGH/livereader/internal/loop"
	"github.com/ManuGH/livereader/internal/mailbox"
	"github.com/ManuGH/livereader/internal/metrics"
	"github.com/ManuGH/livereader/internal/procgraph"
	"github.com/ManuGH/livereader/internal/producer"
	"github.com/ManuGH/livereader/internal/render"
	"github.com/ManuGH/livereader/internal/sink"
	"github.com/ManuGH/livereader/internal/telemetry"
	"github.com/ManuGH/livereader/internal/tts"
	"github.com/ManuGH/livereader/internal/version"
)

// sinkWarnInterval limits repeated empty-buffer warnings.
const sinkWarnInterval = time.Second

// Deps replaces the shipped collaborators. Zero fields use the defaults
// built from the configuration.
type Deps struct {
	Renderer producer.Renderer
	Audio    producer.AudioSource
	// Stages overrides the encoder graph.
	Stages []procgraph.Stage
	// Preview overrides the player stage used in preview mode.
	Preview *procgraph.Stage
}

// Session is one streaming run. It is single-use.
type Session struct {
	cfg      config.AppConfig
	id       string
	redactor log.Redactor
	logger   zerolog.Logger

	stages       []procgraph.Stage
	previewStage procgraph.Stage

	agg      *logagg.Aggregator
	health   *health.Manager
	channels loop.Channels
	video    *producer.Video
	audio    *producer.Audio

	started atomic.Bool
	phase   atomic.Value
	graph   atomic.Pointer[procgraph.Graph]
	preview atomic.Pointer[procgraph.Graph]
	loop    atomic.Pointer[loop.Loop]
}

// New validates cfg and prepares a session without touching the filesystem.
func New(cfg config.AppConfig, deps Deps) (*Session, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	videoPolicy, err := loop.ParseVideoPolicy(cfg.Loop.VideoPolicy)
	if err != nil {
		return nil, err
	}
	audioPolicy, err := loop.ParseAudioPolicy(cfg.Loop.AudioPolicy)
	if err != nil {
		return nil, err
	}
	cfg.Loop.VideoPolicy = string(videoPolicy)
	cfg.Loop.AudioPolicy = string(audioPolicy)

	s := &Session{
		cfg:      cfg,
		id:       uuid.NewString(),
		redactor: log.NewRedactor(cfg.Stream.Key),
		logger:   log.WithComponent("session"),
		health:   health.NewManager(version.Version),
	}
	s.phase.Store(PhaseIdle)

	s.stages = deps.Stages
	if len(s.stages) == 0 {
		if s.stages, err = EncoderStages(cfg); err != nil {
			return nil, err
		}
	}
	s.previewStage = PreviewStage(cfg)
	if deps.Preview != nil {
		s.previewStage = *deps.Preview
	}

	renderer := deps.Renderer
	if renderer == nil {
		if renderer, err = render.NewTestPattern(cfg.Video.Width, cfg.Video.Height); err != nil {
			return nil, err
		}
	}
	source := deps.Audio
	if source == nil {
		source = &tts.Source{
			Speaker:    tts.NewClient(tts.Options{Language: cfg.TTS.Language, TLD: cfg.TTS.TLD}),
			SampleRate: cfg.Audio.SampleRate,
		}
	}

	s.agg = logagg.New(logagg.Options{Redactor: s.redactor})
	s.channels = loop.Channels{
		Video:     mailbox.New[[]byte](dropHook(sink.MediumVideo)),
		VideoTick: mailbox.NewSignal(),
		Audio:     mailbox.New[[]byte](dropHook(sink.MediumAudio)),
		AudioTick: mailbox.NewSignal(),
	}
	s.video = &producer.Video{Renderer: renderer, Out: s.channels.Video, Tick: s.channels.VideoTick}
	s.audio = &producer.Audio{
		Source:   source,
		Script:   cfg.Script,
		Out:      s.channels.Audio,
		Tick:     s.channels.AudioTick,
		Interval: cfg.Audio.Interval,
	}
	return s, nil
}

func dropHook(medium string) mailbox.Option {
	return mailbox.WithDropHook(func() { metrics.MailboxDropsTotal.WithLabelValues(medium).Inc() })
}

// ID is the session id attached to every log line.
func (s *Session) ID() string { return s.id }

// Health is the manager the session registers its checks with.
func (s *Session) Health() *health.Manager { return s.health }

// Logs is the aggregator holding the encoder output.
func (s *Session) Logs() *logagg.Aggregator { return s.agg }

// Run streams until ctx is cancelled (returns nil), setup fails (returns a
// *streamerr.SetupError) or the pipeline breaks (returns an
// streamerr.ErrPipelineBroken error). Everything Run started is stopped and
// the FIFOs are removed before it returns.
func (s *Session) Run(ctx context.Context) (err error) {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("session: already started")
	}
	parent := ctx
	ctx = log.ContextWithSessionID(ctx, s.id)
	ctx, span := telemetry.Tracer("livereader.session").Start(ctx, "session.run",
		trace.WithAttributes(telemetry.SessionAttributes(s.id, s.cfg.Stream.Preview, len(s.stages))...),
		trace.WithAttributes(telemetry.MediaAttributes(
			encoder.Resolution(s.cfg.Video.Width, s.cfg.Video.Height), s.cfg.Loop.VideoPolicy,
			s.cfg.Audio.SampleRate, s.cfg.Loop.AudioPolicy)...),
	)
	logger := log.WithContext(ctx, s.logger)
	s.phase.Store(PhaseStarting)

	defer func() {
		if err != nil && parent.Err() != nil && errors.Is(err, parent.Err()) {
			err = nil
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error().Err(err).Msg("session ended with error")
		} else {
			logger.Info().Msg("session ended")
		}
		span.End()
		s.phase.Store(PhaseStopped)
	}()

	pipes := s.fifos()
	defer s.removeFIFOs(logger, pipes)
	for _, p := range pipes {
		if err := fifo.Create(p.path); err != nil {
			return err
		}
		s.health.RegisterChecker(health.NewFIFOChecker("fifo_"+p.name, p.path))
	}

	// The aggregator outlives the graph so stderr is drained until the last exit.
	aggCtx, stopAgg := context.WithCancel(context.WithoutCancel(ctx))
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		_ = s.agg.Run(aggCtx)
	}()
	defer func() {
		stopAgg()
		<-aggDone
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var preview *previewWriter
	opts := procgraph.Options{Aggregator: s.agg, Redactor: s.redactor}
	if s.cfg.Stream.Preview {
		preview = newPreviewWriter(runCtx, s.cfg.Stream.PreviewFIFO)
		opts.FinalOutput = preview
	}

	logger.Info().
		Str(log.FieldIngestURL, s.cfg.Stream.IngestURL).
		Str(log.FieldResolution, encoder.Resolution(s.cfg.Video.Width, s.cfg.Video.Height)).
		Bool("preview", s.cfg.Stream.Preview).
		Msg("starting session")

	graph, err := procgraph.Start(runCtx, s.stages, opts)
	if err != nil {
		return err
	}
	s.graph.Store(graph)
	s.health.RegisterChecker(health.NewGraphChecker("encoder", graph))

	videoCh := fifo.OpenWriteAsync(runCtx, s.cfg.Video.FIFO)
	audioCh := fifo.OpenWriteAsync(runCtx, s.cfg.Audio.FIFO)

	// Files opened below are owned by the sink once it exists. A result
	// already taken leaves its channel closed, so draining both is safe.
	var media *sink.Sink
	defer func() {
		s.phase.Store(PhaseStopping)
		cancel()
		for _, ch := range []<-chan fifo.Result{videoCh, audioCh} {
			if r, ok := <-ch; ok && r.File != nil {
				_ = r.File.Close()
			}
		}
		if media != nil {
			if cerr := media.Close(); cerr != nil {
				logger.Debug().Err(cerr).Msg("closing media pipes")
			}
		}
		if serr := s.stopGraphs(); serr != nil {
			logger.Error().Err(serr).Msg("encoder processes did not stop")
			err = errors.Join(err, serr)
		}
		if preview != nil {
			_ = preview.Close()
		}
	}()

	videoFile, err := awaitOpen(runCtx, graph, videoCh)
	if err != nil {
		return err
	}
	audioFile, err := awaitOpen(runCtx, graph, audioCh)
	if err != nil {
		_ = videoFile.Close()
		return err
	}
	media = sink.New(videoFile, audioFile, sink.Options{WarnInterval: sinkWarnInterval})
	logger.Info().Msg("encoder inputs attached")

	if preview != nil {
		pg, err := procgraph.Start(runCtx, []procgraph.Stage{s.previewStage}, procgraph.Options{
			Aggregator: s.agg,
			Redactor:   s.redactor,
		})
		if err != nil {
			return err
		}
		s.preview.Store(pg)
		preview.release()
	}

	l := loop.New(loop.Config{
		Period: s.cfg.Loop.Period,
		Video:  loop.VideoPolicy(s.cfg.Loop.VideoPolicy),
		Audio:  loop.AudioPolicy(s.cfg.Loop.AudioPolicy),
	}, media, s.channels)
	s.loop.Store(l)
	s.health.RegisterChecker(health.NewFuncChecker("loop", func(context.Context) health.CheckResult {
		if l.Stats().Ticks == 0 {
			return health.CheckResult{Status: health.StatusDegraded, Message: "waiting for first period"}
		}
		return health.CheckResult{Status: health.StatusHealthy}
	}))

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return l.Run(gctx) })
	g.Go(func() error {
		// A stalled encoder leaves the loop blocked in a pipe write.
		<-gctx.Done()
		if ierr := media.Interrupt(); ierr != nil {
			logger.Debug().Err(ierr).Msg("interrupting media pipes")
		}
		return nil
	})
	g.Go(func() error { return s.video.Run(gctx) })
	g.Go(func() error { return s.audio.Run(gctx) })
	g.Go(func() error {
		select {
		case <-graph.Done():
			return graph.Wait()
		case <-gctx.Done():
			return nil
		}
	})
	if pg := s.preview.Load(); pg != nil {
		g.Go(func() error {
			select {
			case <-pg.Done():
				logger.Warn().Err(pg.Wait()).Msg("preview player exited, streaming continues")
			case <-gctx.Done():
			}
			return nil
		})
	}
	if s.cfg.API.Listen != "" {
		srv := api.New(api.Config{
			Listen:         s.cfg.API.Listen,
			RateLimit:      s.cfg.API.RateLimit,
			TracingService: "livereader",
		}, api.Deps{
			Health: s.health,
			Logs:   s.agg,
			Stats:  func() any { return s.Status() },
		})
		g.Go(func() error { return srv.Serve(gctx) })
	}

	s.phase.Store(PhaseRunning)
	logger.Info().Msg("session running")

	if err := g.Wait(); err != nil {
		return err
	}
	if perr := parent.Err(); perr != nil {
		return nil
	}
	return fmt.Errorf("session: stopped unexpectedly")
}

// awaitOpen waits for a FIFO open and gives up when the graph dies first,
// since nothing would ever attach the reader end.
func awaitOpen(ctx context.Context, graph *procgraph.Graph, ch <-chan fifo.Result) (*os.File, error) {
	select {
	case r := <-ch:
		return r.File, r.Err
	case <-graph.Done():
		return nil, graph.Wait()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) stopGraphs() error {
	var errs []error
	if pg := s.preview.Load(); pg != nil {
		errs = append(errs, pg.Stop(s.cfg.FFmpeg.StopGrace))
	}
	if g := s.graph.Load(); g != nil {
		errs = append(errs, g.Stop(s.cfg.FFmpeg.StopGrace))
	}
	return errors.Join(errs...)
}

type namedPipe struct{ name, path string }

func (s *Session) fifos() []namedPipe {
	pipes := []namedPipe{
		{name: sink.MediumVideo, path: s.cfg.Video.FIFO},
		{name: sink.MediumAudio, path: s.cfg.Audio.FIFO},
	}
	if s.cfg.Stream.Preview {
		pipes = append(pipes, namedPipe{name: StagePreview, path: s.cfg.Stream.PreviewFIFO})
	}
	return pipes
}

func (s *Session) removeFIFOs(logger zerolog.Logger, pipes []namedPipe) {
	for _, p := range pipes {
		if err := fifo.Remove(p.path); err != nil {
			logger.Warn().Err(err).Str(log.FieldPath, p.path).Msg("failed to remove fifo")
		}
	}
}
