// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package tts

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
	resampling "github.com/tphakala/go-audio-resampling"
)

// FrameBytes is the size of one s16le stereo sample frame.
const FrameBytes = 4

// PCM is decoded s16le stereo audio.
type PCM struct {
	SampleRate int
	Data       []byte
}

// Seconds is the playback length of p.
func (p PCM) Seconds() float64 {
	if p.SampleRate <= 0 {
		return 0
	}
	return float64(len(p.Data)/FrameBytes) / float64(p.SampleRate)
}

// Decode turns an MP3 stream into s16le stereo PCM at its native rate.
func Decode(mp3Data []byte) (PCM, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(mp3Data))
	if err != nil {
		return PCM{}, fmt.Errorf("decode mp3: %w", err)
	}
	data, err := io.ReadAll(dec)
	if err != nil {
		return PCM{}, fmt.Errorf("decode mp3: %w", err)
	}
	// The decoder may stop mid-frame on a truncated stream.
	data = data[:len(data)-len(data)%FrameBytes]
	if len(data) == 0 {
		return PCM{}, fmt.Errorf("decode mp3: no samples")
	}
	return PCM{SampleRate: dec.SampleRate(), Data: data}, nil
}

// Resample converts s16le stereo PCM to rate. The result is padded with
// silence or truncated to the exact frame count implied by the rate ratio,
// so the filter delay never changes the clip length.
func Resample(p PCM, rate int) (PCM, error) {
	if rate <= 0 || p.SampleRate <= 0 {
		return PCM{}, fmt.Errorf("resample: invalid rate %d -> %d", p.SampleRate, rate)
	}
	if rate == p.SampleRate || len(p.Data) < FrameBytes {
		return PCM{SampleRate: rate, Data: p.Data}, nil
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(p.SampleRate),
		OutputRate: float64(rate),
		Channels:   2,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return PCM{}, fmt.Errorf("resample: %w", err)
	}

	in := len(p.Data) / FrameBytes
	input := make([]float64, in*2)
	for i := range input {
		input[i] = float64(int16(binary.LittleEndian.Uint16(p.Data[i*2:]))) / 32768.0
	}
	output, err := rs.Process(input)
	if err != nil {
		return PCM{}, fmt.Errorf("resample: %w", err)
	}

	out := max(int(int64(in)*int64(rate)/int64(p.SampleRate)), 1)
	data := make([]byte, out*FrameBytes)
	for i := 0; i < len(output) && i < out*2; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(toInt16(output[i])))
	}
	return PCM{SampleRate: rate, Data: data}, nil
}

func toInt16(s float64) int16 {
	switch {
	case s >= 1:
		return 32767
	case s <= -1:
		return -32768
	}
	return int16(s * 32767)
}
