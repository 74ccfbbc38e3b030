// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !unix

package fifo

import (
	"context"
	"errors"
	"os"

	"github.com/ManuGH/livereader/internal/streamerr"
)

var errUnsupported = errors.New("named pipes are not supported on this platform")

func Create(path string) error { return streamerr.Setup("mkfifo", path, errUnsupported) }

func IsFIFO(string) (bool, error) { return false, errUnsupported }

func Remove(path string) error { return os.Remove(path) }

func OpenWrite(_ context.Context, path string) (*os.File, error) {
	return nil, streamerr.Setup("open", path, errUnsupported)
}

func OpenRead(_ context.Context, path string) (*os.File, error) {
	return nil, streamerr.Setup("open", path, errUnsupported)
}
