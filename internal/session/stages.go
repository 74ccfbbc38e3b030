// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"fmt"

	"github.com/ManuGH/livereader/internal/config"
	"github.com/ManuGH/livereader/internal/encoder"
	"github.com/ManuGH/livereader/internal/procgraph"
)

// Stage names, also used as log stream names.
const (
	StageVideo   = "video"
	StageMux     = "mux"
	StagePreview = "preview"
)

// Log listing order of the stage streams.
const (
	logIndexPreview = iota
	logIndexMux
	logIndexVideo
)

// EncoderStages builds the video and mux stages from cfg.
func EncoderStages(cfg config.AppConfig) ([]procgraph.Stage, error) {
	videoArgs, err := encoder.VideoArgs(encoder.VideoInput{
		FIFO:   cfg.Video.FIFO,
		Width:  cfg.Video.Width,
		Height: cfg.Video.Height,
	})
	if err != nil {
		return nil, fmt.Errorf("video stage: %w", err)
	}
	muxArgs, err := encoder.MuxArgs(
		encoder.AudioInput{FIFO: cfg.Audio.FIFO, SampleRate: cfg.Audio.SampleRate},
		encoder.Output{IngestURL: cfg.Stream.IngestURL, StreamKey: cfg.Stream.Key, Preview: cfg.Stream.Preview},
	)
	if err != nil {
		return nil, fmt.Errorf("mux stage: %w", err)
	}
	return []procgraph.Stage{
		{Name: StageVideo, Bin: cfg.FFmpeg.Bin, Args: videoArgs, LogIndex: logIndexVideo},
		{Name: StageMux, Bin: cfg.FFmpeg.Bin, Args: muxArgs, LogIndex: logIndexMux},
	}, nil
}

// PreviewStage builds the player reading the preview FIFO.
func PreviewStage(cfg config.AppConfig) procgraph.Stage {
	return procgraph.Stage{
		Name:     StagePreview,
		Bin:      cfg.FFmpeg.FFplayBin,
		Args:     encoder.PreviewArgs(cfg.Stream.PreviewFIFO),
		LogIndex: logIndexPreview,
	}
}
