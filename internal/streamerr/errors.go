// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package streamerr classifies the failures of a streaming session.
//
// Setup failures (FIFO creation/open, encoder spawn) are fatal and carry the
// failing resource. A broken pipeline (an encoder exiting or closing its input
// mid-session) ends the session cleanly. Everything else that happens on a
// tick (empty or malformed buffers) is logged and swallowed by the caller.
package streamerr

import (
	"errors"
	"fmt"
)

var (
	// ErrPipelineBroken is returned when a downstream encoder stops accepting data.
	ErrPipelineBroken = errors.New("pipeline broken")

	// ErrMalformedBuffer marks a buffer that cannot be written as-is (e.g. too short).
	ErrMalformedBuffer = errors.New("malformed buffer")
)

// SetupError reports a failure while building the session's pipes or processes.
type SetupError struct {
	Resource string // FIFO path or stage name
	Op       string // mkfifo, open, spawn, ...
	Err      error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup %s %s: %v", e.Op, e.Resource, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// Setup wraps err as a SetupError. A nil err returns nil.
func Setup(op, resource string, err error) error {
	if err == nil {
		return nil
	}
	return &SetupError{Resource: resource, Op: op, Err: err}
}

// IsSetup reports whether err is (or wraps) a SetupError.
func IsSetup(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}

// Broken wraps a write or process failure on medium as ErrPipelineBroken.
func Broken(medium string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", medium, ErrPipelineBroken, err)
}

// IsPipelineBroken reports whether err is (or wraps) ErrPipelineBroken.
func IsPipelineBroken(err error) bool {
	return errors.Is(err, ErrPipelineBroken)
}
