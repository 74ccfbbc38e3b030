// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the livereader configuration.
//
// Precedence is ENV > YAML file > defaults. A .env file in the working
// directory is loaded into the environment first, without overriding
// variables that are already set.
package config

import (
	"time"
)

// AppConfig is the complete runtime configuration of one session.
type AppConfig struct {
	Stream    StreamConfig    `yaml:"stream"`
	Log       LogConfig       `yaml:"log"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg"`
	Loop      LoopConfig      `yaml:"loop"`
	Video     VideoConfig     `yaml:"video"`
	Audio     AudioConfig     `yaml:"audio"`
	TTS       TTSConfig       `yaml:"tts"`
	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	// Script is the text read aloud, one entry per utterance.
	Script []string `yaml:"script"`
}

// StreamConfig is the publishing target.
type StreamConfig struct {
	Key         string `yaml:"key"`
	IngestURL   string `yaml:"ingestURL"`
	Preview     bool   `yaml:"preview"`
	PreviewFIFO string `yaml:"previewFifo"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// FFmpegConfig locates the encoder binaries.
type FFmpegConfig struct {
	Bin       string        `yaml:"bin"`
	FFplayBin string        `yaml:"ffplayBin"`
	StopGrace time.Duration `yaml:"stopGrace"`
}

// LoopConfig tunes the coordination loop.
type LoopConfig struct {
	Period      time.Duration `yaml:"period"`
	VideoPolicy string        `yaml:"videoPolicy"`
	AudioPolicy string        `yaml:"audioPolicy"`
}

// VideoConfig describes the raw video pipe.
type VideoConfig struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FIFO   string `yaml:"fifo"`
}

// AudioConfig describes the raw audio pipe.
type AudioConfig struct {
	SampleRate int           `yaml:"sampleRate"`
	FIFO       string        `yaml:"fifo"`
	Interval   time.Duration `yaml:"interval"`
}

// TTSConfig selects the speech voice.
type TTSConfig struct {
	Language string `yaml:"language"`
	TLD      string `yaml:"tld"`
}

// APIConfig enables the status server when Listen is set.
type APIConfig struct {
	Listen    string `yaml:"listen"`
	RateLimit int    `yaml:"rateLimit"`
}

// TelemetryConfig configures OpenTelemetry tracing; an empty Exporter disables it.
type TelemetryConfig struct {
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// Defaults.
const (
	DefaultIngestURL   = "rtmp://live.twitch.tv/app"
	DefaultVideoFIFO   = "/tmp/livereader.video.fifo"
	DefaultAudioFIFO   = "/tmp/livereader.audio.fifo"
	DefaultPreviewFIFO = "/tmp/livereader.preview.fifo"
	DefaultWidth       = 1280
	DefaultHeight      = 720
	DefaultSampleRate  = 24000
	DefaultPeriod      = 10 * time.Millisecond
	DefaultStopGrace   = 3 * time.Second
	DefaultInterval    = time.Second
	DefaultScript      = "This is a test"
)

// Default returns the configuration used when nothing is set.
func Default() AppConfig {
	return AppConfig{
		Stream: StreamConfig{
			IngestURL:   DefaultIngestURL,
			PreviewFIFO: DefaultPreviewFIFO,
		},
		Log: LogConfig{Level: "info"},
		FFmpeg: FFmpegConfig{
			Bin:       "ffmpeg",
			FFplayBin: "ffplay",
			StopGrace: DefaultStopGrace,
		},
		Loop: LoopConfig{
			Period:      DefaultPeriod,
			VideoPolicy: "duplicate",
			AudioPolicy: "raw",
		},
		Video: VideoConfig{Width: DefaultWidth, Height: DefaultHeight, FIFO: DefaultVideoFIFO},
		Audio: AudioConfig{SampleRate: DefaultSampleRate, FIFO: DefaultAudioFIFO, Interval: DefaultInterval},
		TTS:   TTSConfig{Language: "en", TLD: "com"},
		API:   APIConfig{RateLimit: 60},
		Telemetry: TelemetryConfig{
			SamplingRate: 1.0,
		},
		Script: []string{DefaultScript},
	}
}
