// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package tts

import (
	"context"
	"fmt"
	"strings"

	"github.com/ManuGH/livereader/internal/log"
)

// Speaker fetches MP3 speech for a short text.
type Speaker interface {
	Speak(ctx context.Context, text string) ([]byte, error)
}

// Source produces PCM at a fixed sample rate for arbitrary text. Texts over
// MaxChars are split on word boundaries and the pieces concatenated.
type Source struct {
	Speaker    Speaker
	SampleRate int
}

// Generate speaks text and returns s16le stereo PCM at s.SampleRate.
func (s *Source) Generate(ctx context.Context, text string) ([]byte, error) {
	logger := log.WithComponentFromContext(ctx, "tts")

	parts := Split(text, MaxChars)
	if len(parts) == 0 {
		return nil, fmt.Errorf("tts: empty text")
	}
	var out []byte
	for _, part := range parts {
		mp3Data, err := s.Speaker.Speak(ctx, part)
		if err != nil {
			return nil, err
		}
		pcm, err := Decode(mp3Data)
		if err != nil {
			return nil, err
		}
		if pcm, err = Resample(pcm, s.SampleRate); err != nil {
			return nil, err
		}
		out = append(out, pcm.Data...)
	}
	logger.Debug().Int(log.FieldBytes, len(out)).Int("chars", len(text)).Msg("speech generated")
	return out, nil
}

// Split breaks text into pieces of at most limit characters, preferring
// whitespace boundaries. Words longer than limit are cut.
func Split(text string, limit int) []string {
	var (
		parts []string
		cur   []rune
	)
	flush := func() {
		if s := strings.TrimSpace(string(cur)); s != "" {
			parts = append(parts, s)
		}
		cur = cur[:0]
	}
	for _, word := range strings.Fields(text) {
		w := []rune(word)
		for len(w) > limit {
			flush()
			parts = append(parts, string(w[:limit]))
			w = w[limit:]
		}
		if len(cur) > 0 && len(cur)+1+len(w) > limit {
			flush()
		}
		if len(cur) > 0 {
			cur = append(cur, ' ')
		}
		cur = append(cur, w...)
	}
	flush()
	return parts
}
