// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mailbox

import "context"

// Signal carries "you may produce the next item" ticks.
// At most one tick is pending; extra ticks coalesce.
type Signal struct {
	ch chan struct{}
}

// NewSignal returns a Signal with no pending tick.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Tick makes one tick pending. It never blocks.
// It reports false when a tick was already pending.
func (s *Signal) Tick() bool {
	select {
	case s.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Wait blocks until a tick is pending, consuming it, or ctx is done.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ch:
		return nil
	}
}

// TryWait consumes a pending tick without blocking.
func (s *Signal) TryWait() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
