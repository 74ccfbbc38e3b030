// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaskSecret replaces every character of s with '*'.
func MaskSecret(s string) string {
	return strings.Repeat("*", utf8.RuneCountInString(s))
}

// String renders the configuration for operators. The stream key is masked.
func (c AppConfig) String() string {
	var b strings.Builder
	row := func(label string, value any) {
		fmt.Fprintf(&b, "  %-12s: %v\n", label, value)
	}
	orNo := func(s string) string {
		if s == "" {
			return "No"
		}
		return s
	}

	b.WriteString("Configuration:\n")
	row("Stream key", MaskSecret(c.Stream.Key))
	row("Ingest URL", c.Stream.IngestURL)
	row("Preview", c.Stream.Preview)
	row("Log file", orNo(c.Log.File))
	row("Log level", c.Log.Level)
	row("Resolution", fmt.Sprintf("%dx%d", c.Video.Width, c.Video.Height))
	row("Sample rate", c.Audio.SampleRate)
	row("Period", c.Loop.Period)
	row("Policies", fmt.Sprintf("video=%s audio=%s", c.Loop.VideoPolicy, c.Loop.AudioPolicy))
	row("Voice", fmt.Sprintf("%s (%s)", c.TTS.Language, c.TTS.TLD))
	row("Script", fmt.Sprintf("%d lines", len(c.Script)))
	row("Status API", orNo(c.API.Listen))
	return b.String()
}
