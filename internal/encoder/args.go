// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package encoder builds the argument vectors of the encoder processes.
//
// The graph is two ffmpeg stages: the video stage reads raw frames from the
// video FIFO and emits H.264 in a nut container on stdout; the mux stage
// reads PCM from the audio FIFO plus that nut stream on stdin and publishes
// FLV to the RTMP ingest. In preview mode the mux stage tees a nut copy to
// its stdout, which ends up in the preview FIFO read by ffplay.
package encoder

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// PixelFormat is the layout of frames written to the video FIFO.
	PixelFormat = "rgb32"
	// SampleFormat is the layout of samples written to the audio FIFO.
	SampleFormat = "s16le"
	// OutputSampleRate is the AAC sample rate of the published stream.
	OutputSampleRate = 44100
)

// VideoInput describes the raw video side of the graph.
type VideoInput struct {
	FIFO      string
	Width     int
	Height    int
	FrameRate int // input frames per second; ffmpeg's default when <= 0
	Bitrate   string
}

// AudioInput describes the raw audio side of the graph.
type AudioInput struct {
	FIFO       string
	SampleRate int
	Channels   int
}

// Output describes where the mux stage publishes.
type Output struct {
	IngestURL string
	StreamKey string
	// Preview adds a nut copy of the published stream on stdout.
	Preview bool
}

// Resolution formats a frame size the way -video_size expects it.
func Resolution(width, height int) string {
	return strconv.Itoa(width) + "x" + strconv.Itoa(height)
}

// StreamURL joins the ingest base URL and the stream key.
func StreamURL(ingest, key string) string {
	return strings.TrimRight(ingest, "/") + "/" + key
}

// VideoArgs builds the argv of the video stage (without the binary).
func VideoArgs(in VideoInput) ([]string, error) {
	if in.FIFO == "" {
		return nil, fmt.Errorf("missing video fifo path")
	}
	if in.Width <= 0 || in.Height <= 0 {
		return nil, fmt.Errorf("invalid resolution %dx%d", in.Width, in.Height)
	}
	bitrate := in.Bitrate
	if bitrate == "" {
		bitrate = "3000k"
	}

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-f", "rawvideo",
		"-pix_fmt", PixelFormat,
		"-video_size", Resolution(in.Width, in.Height),
	}
	if in.FrameRate > 0 {
		args = append(args, "-framerate", strconv.Itoa(in.FrameRate))
	}
	args = append(args,
		"-i", in.FIFO,

		"-c:v", "libx264",
		"-preset", "veryfast",
		"-maxrate", bitrate,
		"-bufsize", doubleRate(bitrate),
		"-pix_fmt", "yuv420p",
		"-g", "15",
		"-r", "30",
		"-b:v", bitrate,

		"-f", "nut",
		"pipe:1",
	)
	return args, nil
}

// MuxArgs builds the argv of the mux stage (without the binary).
func MuxArgs(audio AudioInput, out Output) ([]string, error) {
	if audio.FIFO == "" {
		return nil, fmt.Errorf("missing audio fifo path")
	}
	if audio.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", audio.SampleRate)
	}
	if out.IngestURL == "" || out.StreamKey == "" {
		return nil, fmt.Errorf("missing ingest url or stream key")
	}
	channels := audio.Channels
	if channels <= 0 {
		channels = 2
	}

	args := []string{
		"-hide_banner",
		"-f", SampleFormat,
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(channels),
		"-i", audio.FIFO,

		"-f", "nut",
		"-i", "-",

		"-c:v", "copy",
		"-c:a", "aac",
		"-ar", strconv.Itoa(OutputSampleRate),
	}

	target := StreamURL(out.IngestURL, out.StreamKey)
	if out.Preview {
		args = append(args,
			"-f", "tee",
			"-map", "1:v",
			"-map", "0:a",
			"[f=nut]pipe:|[f=flv]"+target,
		)
		return args, nil
	}
	return append(args, "-f", "flv", target), nil
}

// PreviewArgs builds the argv of the ffplay stage reading the preview FIFO.
func PreviewArgs(fifo string) []string {
	return []string{"-hide_banner", "-loglevel", "warning", "-i", fifo}
}

// doubleRate turns "3000k" into "6000k". Unparseable rates are returned as is.
func doubleRate(rate string) string {
	num := strings.TrimRightFunc(rate, func(r rune) bool { return r < '0' || r > '9' })
	suffix := rate[len(num):]
	n, err := strconv.Atoi(num)
	if err != nil {
		return rate
	}
	return strconv.Itoa(n*2) + suffix
}
