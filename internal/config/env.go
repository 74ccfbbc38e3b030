// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/livereader/internal/log"
)

// ParseString reads a string from environment variable or returns default value.
// Values of sensitive keys are never logged.
func ParseString(key, defaultValue string) string {
	logger := log.WithComponent("config")
	v, ok := lookup(logger, key)
	if !ok {
		logDefault(logger, key).Str("default", defaultValue).Msg("using default value")
		return defaultValue
	}
	ev := logEnv(logger, key)
	if isSensitive(key) {
		ev.Bool("sensitive", true)
	} else {
		ev.Str("value", v)
	}
	ev.Msg("using environment variable")
	return v
}

// ParseInt reads an integer from environment variable or returns default value.
// It falls back to default on parse errors.
func ParseInt(key string, defaultValue int) int {
	return parseWith(key, defaultValue, strconv.Atoi, func(e *zerolog.Event, k string, v int) *zerolog.Event {
		return e.Int(k, v)
	})
}

// ParseDuration reads a duration in Go duration format (e.g. "10ms").
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return parseWith(key, defaultValue, time.ParseDuration, func(e *zerolog.Event, k string, v time.Duration) *zerolog.Event {
		return e.Dur(k, v)
	})
}

// ParseFloat reads a float64 from environment variable or returns default value.
func ParseFloat(key string, defaultValue float64) float64 {
	return parseWith(key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	}, func(e *zerolog.Event, k string, v float64) *zerolog.Event {
		return e.Float64(k, v)
	})
}

// ParseBool reads a boolean from environment variable or returns default value.
// It accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	return parseWith(key, defaultValue, parseBool, func(e *zerolog.Event, k string, v bool) *zerolog.Event {
		return e.Bool(k, v)
	})
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, strconv.ErrSyntax
}

func parseWith[T any](key string, defaultValue T, parse func(string) (T, error), field func(*zerolog.Event, string, T) *zerolog.Event) T {
	logger := log.WithComponent("config")
	raw, ok := lookup(logger, key)
	if !ok {
		field(logDefault(logger, key), "default", defaultValue).Msg("using default value")
		return defaultValue
	}
	v, err := parse(raw)
	if err != nil {
		field(logger.Warn().Str("key", key).Str("value", raw), "default", defaultValue).
			Msg("invalid value in environment variable, using default")
		return defaultValue
	}
	field(logEnv(logger, key), "value", v).Msg("using environment variable")
	return v
}

// lookup treats an empty variable as unset.
func lookup(logger zerolog.Logger, key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if ok && v == "" {
		logger.Debug().Str("key", key).Msg("environment variable is empty")
		return "", false
	}
	return v, ok
}

func logDefault(logger zerolog.Logger, key string) *zerolog.Event {
	return logger.Debug().Str("key", key).Str("source", "default")
}

func logEnv(logger zerolog.Logger, key string) *zerolog.Event {
	return logger.Debug().Str("key", key).Str("source", "environment")
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	for _, word := range []string{"key", "token", "password", "secret"} {
		if strings.Contains(k, word) {
			return true
		}
	}
	return false
}
