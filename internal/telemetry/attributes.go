// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	SessionIDKey   = "session.id"
	SessionModeKey = "session.mode"

	StageNameKey  = "stage.name"
	StageCountKey = "stage.count"

	VideoResolutionKey = "video.resolution"
	VideoPolicyKey     = "video.policy"
	AudioSampleRateKey = "audio.sample_rate"
	AudioPolicyKey     = "audio.policy"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// SessionAttributes describes a streaming session.
func SessionAttributes(id string, preview bool, stages int) []attribute.KeyValue {
	mode := "publish"
	if preview {
		mode = "preview"
	}
	return []attribute.KeyValue{
		attribute.String(SessionIDKey, id),
		attribute.String(SessionModeKey, mode),
		attribute.Int(StageCountKey, stages),
	}
}

// MediaAttributes describes the raw media format fed into the encoders.
func MediaAttributes(resolution, videoPolicy string, sampleRate int, audioPolicy string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(VideoResolutionKey, resolution),
		attribute.String(VideoPolicyKey, videoPolicy),
		attribute.Int(AudioSampleRateKey, sampleRate),
		attribute.String(AudioPolicyKey, audioPolicy),
	}
}

// ErrorAttributes marks a span with an error class.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
