// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment keys.
const (
	EnvStreamKey       = "LIVEREADER_STREAM_KEY"
	EnvStreamKeyLegacy = "TWITCH_STREAM_KEY"
	EnvIngestURL       = "LIVEREADER_INGEST_URL"
	EnvPreview         = "PREVIEW"
	EnvLogFile         = "LOG_FILE"
	EnvLogLevel        = "LOG_LEVEL"
	EnvFFmpegBin       = "LIVEREADER_FFMPEG_BIN"
	EnvFFplayBin       = "LIVEREADER_FFPLAY_BIN"
	EnvStopGrace       = "LIVEREADER_STOP_GRACE"
	EnvPeriod          = "LIVEREADER_PERIOD"
	EnvVideoPolicy     = "LIVEREADER_VIDEO_POLICY"
	EnvAudioPolicy     = "LIVEREADER_AUDIO_POLICY"
	EnvWidth           = "LIVEREADER_WIDTH"
	EnvHeight          = "LIVEREADER_HEIGHT"
	EnvSampleRate      = "LIVEREADER_SAMPLE_RATE"
	EnvAudioInterval   = "LIVEREADER_AUDIO_INTERVAL"
	EnvVideoFIFO       = "LIVEREADER_VIDEO_FIFO"
	EnvAudioFIFO       = "LIVEREADER_AUDIO_FIFO"
	EnvPreviewFIFO     = "LIVEREADER_PREVIEW_FIFO"
	EnvTTSLang         = "LIVEREADER_TTS_LANG"
	EnvTTSTLD          = "LIVEREADER_TTS_TLD"
	EnvText            = "LIVEREADER_TEXT"
	EnvListen          = "LIVEREADER_LISTEN"
	EnvRateLimit       = "LIVEREADER_RATE_LIMIT"
	EnvOTLPExporter    = "LIVEREADER_OTLP_EXPORTER"
	EnvOTLPEndpoint    = "LIVEREADER_OTLP_ENDPOINT"
	EnvOTLPSampling    = "LIVEREADER_OTLP_SAMPLING"
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath string
	envFile    string
	// ConsumedEnvKeys records every variable the loader looked at.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader for an optional YAML file. envFile is the
// dotenv file to load; empty means ".env".
func NewLoader(configPath, envFile string) *Loader {
	if envFile == "" {
		envFile = ".env"
	}
	return &Loader{
		configPath:      configPath,
		envFile:         envFile,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence ENV > File > Defaults and
// validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Default()

	// godotenv never overrides variables already present.
	if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load env file %s: %w", l.envFile, err)
	}

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	key := l.envString(EnvStreamKeyLegacy, cfg.Stream.Key)
	cfg.Stream.Key = l.envString(EnvStreamKey, key)
	cfg.Stream.IngestURL = l.envString(EnvIngestURL, cfg.Stream.IngestURL)
	cfg.Stream.Preview = l.envBool(EnvPreview, cfg.Stream.Preview)
	cfg.Stream.PreviewFIFO = l.envString(EnvPreviewFIFO, cfg.Stream.PreviewFIFO)

	cfg.Log.File = l.envString(EnvLogFile, cfg.Log.File)
	cfg.Log.Level = l.envString(EnvLogLevel, cfg.Log.Level)

	cfg.FFmpeg.Bin = l.envString(EnvFFmpegBin, cfg.FFmpeg.Bin)
	cfg.FFmpeg.FFplayBin = l.envString(EnvFFplayBin, cfg.FFmpeg.FFplayBin)
	cfg.FFmpeg.StopGrace = l.envDuration(EnvStopGrace, cfg.FFmpeg.StopGrace)

	cfg.Loop.Period = l.envDuration(EnvPeriod, cfg.Loop.Period)
	cfg.Loop.VideoPolicy = l.envString(EnvVideoPolicy, cfg.Loop.VideoPolicy)
	cfg.Loop.AudioPolicy = l.envString(EnvAudioPolicy, cfg.Loop.AudioPolicy)

	cfg.Video.Width = l.envInt(EnvWidth, cfg.Video.Width)
	cfg.Video.Height = l.envInt(EnvHeight, cfg.Video.Height)
	cfg.Video.FIFO = l.envString(EnvVideoFIFO, cfg.Video.FIFO)

	cfg.Audio.SampleRate = l.envInt(EnvSampleRate, cfg.Audio.SampleRate)
	cfg.Audio.FIFO = l.envString(EnvAudioFIFO, cfg.Audio.FIFO)
	cfg.Audio.Interval = l.envDuration(EnvAudioInterval, cfg.Audio.Interval)

	cfg.TTS.Language = l.envString(EnvTTSLang, cfg.TTS.Language)
	cfg.TTS.TLD = l.envString(EnvTTSTLD, cfg.TTS.TLD)

	cfg.API.Listen = l.envString(EnvListen, cfg.API.Listen)
	cfg.API.RateLimit = l.envInt(EnvRateLimit, cfg.API.RateLimit)

	cfg.Telemetry.Exporter = l.envString(EnvOTLPExporter, cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvOTLPEndpoint, cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvOTLPSampling, cfg.Telemetry.SamplingRate)

	if text := l.envString(EnvText, ""); text != "" {
		cfg.Script = SplitScript(text)
	}
}

// SplitScript splits text into utterances on newlines and '|'.
func SplitScript(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '|' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
