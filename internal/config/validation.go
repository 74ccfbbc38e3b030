// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/livereader/internal/loop"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks cfg and reports all problems at once.
func Validate(cfg AppConfig) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(cfg.Stream.Key) == "" {
		add("stream key is required (%s)", EnvStreamKey)
	}
	if u, err := url.Parse(cfg.Stream.IngestURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("ingest url %q is not an absolute url", cfg.Stream.IngestURL)
	}
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		add("log level %q: %v", cfg.Log.Level, err)
	}
	if cfg.FFmpeg.Bin == "" {
		add("ffmpeg binary is required")
	}
	if cfg.Stream.Preview && cfg.FFmpeg.FFplayBin == "" {
		add("ffplay binary is required in preview mode")
	}
	if cfg.FFmpeg.StopGrace <= 0 {
		add("stop grace must be positive, got %s", cfg.FFmpeg.StopGrace)
	}
	if cfg.Loop.Period <= 0 {
		add("loop period must be positive, got %s", cfg.Loop.Period)
	}
	if _, err := loop.ParseVideoPolicy(cfg.Loop.VideoPolicy); err != nil {
		add("%v", err)
	}
	if _, err := loop.ParseAudioPolicy(cfg.Loop.AudioPolicy); err != nil {
		add("%v", err)
	}
	if cfg.Video.Width <= 0 || cfg.Video.Height <= 0 {
		add("video size must be positive, got %dx%d", cfg.Video.Width, cfg.Video.Height)
	}
	if cfg.Audio.SampleRate <= 0 {
		add("sample rate must be positive, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Interval < 0 {
		add("audio interval must not be negative")
	}

	fifos := map[string]string{"video": cfg.Video.FIFO, "audio": cfg.Audio.FIFO}
	if cfg.Stream.Preview {
		fifos["preview"] = cfg.Stream.PreviewFIFO
	}
	seen := make(map[string]string, len(fifos))
	for _, name := range []string{"video", "audio", "preview"} {
		path, ok := fifos[name]
		if !ok {
			continue
		}
		if path == "" {
			add("%s fifo path is required", name)
			continue
		}
		if other, dup := seen[path]; dup {
			add("%s and %s fifo share path %s", other, name, path)
		}
		seen[path] = name
	}

	if len(cfg.Script) == 0 {
		add("script is empty")
	}
	switch cfg.Telemetry.Exporter {
	case "", "grpc", "http":
	default:
		add("telemetry exporter %q (supported: grpc, http)", cfg.Telemetry.Exporter)
	}
	if cfg.Telemetry.Exporter != "" && cfg.Telemetry.Endpoint == "" {
		add("telemetry endpoint is required with exporter %s", cfg.Telemetry.Exporter)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
