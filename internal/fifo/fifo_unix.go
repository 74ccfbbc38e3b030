// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package fifo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ManuGH/livereader/internal/log"
	"github.com/ManuGH/livereader/internal/streamerr"
)

// releaseRetry is how often a cancelled read-open retries attaching its
// throw-away writer while the blocked reader has not registered yet.
const releaseRetry = 5 * time.Millisecond

// Create makes a FIFO at path. An existing FIFO is left alone and is not
// an error. Any other file occupying path is.
func Create(path string) error {
	err := unix.Mkfifo(path, uint32(Perm))
	if err == nil {
		logger := log.WithComponent("fifo")
		logger.Debug().Str(log.FieldPath, path).Msg("fifo created")
		return nil
	}
	if errors.Is(err, unix.EEXIST) {
		ok, serr := IsFIFO(path)
		if serr != nil {
			return streamerr.Setup("mkfifo", path, serr)
		}
		if !ok {
			return streamerr.Setup("mkfifo", path, fmt.Errorf("path exists and is not a fifo"))
		}
		return nil
	}
	return streamerr.Setup("mkfifo", path, err)
}

// IsFIFO reports whether path is a named pipe.
func IsFIFO(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.Mode()&os.ModeNamedPipe != 0, nil
}

// Remove unlinks the FIFO at path. A missing path is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// OpenWrite opens path for writing and blocks until a reader attaches or ctx
// is done. On cancellation the pending open is released by briefly attaching
// a non-blocking reader, and ctx.Err() is returned.
func OpenWrite(ctx context.Context, path string) (*os.File, error) {
	f, err := open(ctx, path, os.O_WRONLY, unix.O_RDONLY)
	recordOpen("write", path, err)
	return f, err
}

// OpenRead opens path for reading and blocks until a writer attaches or ctx
// is done. On cancellation the pending open is released by attaching a
// non-blocking writer, and ctx.Err() is returned.
func OpenRead(ctx context.Context, path string) (*os.File, error) {
	f, err := open(ctx, path, os.O_RDONLY, unix.O_WRONLY)
	recordOpen("read", path, err)
	return f, err
}

type openResult struct {
	f   *os.File
	err error
}

func open(ctx context.Context, path string, flag, releaseFlag int) (*os.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resCh := make(chan openResult, 1)
	go func() {
		// #nosec G304 -- session-owned fifo path
		f, err := os.OpenFile(path, flag, 0)
		resCh <- openResult{f: f, err: err}
	}()

	select {
	case r := <-resCh:
		if r.err != nil {
			return nil, streamerr.Setup("open", path, r.err)
		}
		return r.f, nil
	case <-ctx.Done():
	}

	// Hold the opposite end open until the blocked open has returned, so a
	// goroutine that only reaches open(2) after this point cannot block.
	releaseFD := -1
	defer func() {
		if releaseFD >= 0 {
			_ = unix.Close(releaseFD)
		}
	}()

	for {
		if releaseFD < 0 {
			fd, err := unix.Open(path, releaseFlag|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
			if err == nil {
				releaseFD = fd
			} else if !errors.Is(err, unix.ENXIO) {
				// Nothing we can attach; close the file if the open ever completes.
				go func() {
					if r := <-resCh; r.f != nil {
						_ = r.f.Close()
					}
				}()
				return nil, ctx.Err()
			}
		}

		select {
		case r := <-resCh:
			if r.f != nil {
				_ = r.f.Close()
			}
			return nil, ctx.Err()
		case <-time.After(releaseRetry):
		}
	}
}
