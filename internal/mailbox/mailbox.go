// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package mailbox provides the single-slot handoff primitives used between
// media producers and the coordination loop.
//
// A Mailbox holds at most one pending value. Send never blocks and replaces
// any value the consumer has not taken yet; the replaced value is dropped and
// counted, never queued. A receive therefore always observes the most recent
// value sent before it.
//
// A Signal is a Mailbox of unit values: at most one pending tick, sending a
// tick never blocks, and a tick sent before anyone waits stays pending.
package mailbox

import (
	"context"
	"sync"
	"sync/atomic"
)

// Mailbox is a single-slot, overwrite-on-send channel.
// It is safe for concurrent use by one producer and one consumer.
type Mailbox[T any] struct {
	mu     sync.Mutex
	value  T
	full   bool
	ready  chan struct{} // capacity 1; holds a token while full
	onDrop func()

	sent     atomic.Uint64
	received atomic.Uint64
	drops    atomic.Uint64
}

// Option configures a Mailbox.
type Option func(*options)

type options struct {
	onDrop func()
}

// WithDropHook registers fn to be called (outside the lock) whenever a send
// overwrites an undelivered value.
func WithDropHook(fn func()) Option {
	return func(o *options) { o.onDrop = fn }
}

// New returns an empty Mailbox.
func New[T any](opts ...Option) *Mailbox[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Mailbox[T]{
		ready:  make(chan struct{}, 1),
		onDrop: o.onDrop,
	}
}

// Send stores v, replacing any undelivered value. It never blocks.
func (m *Mailbox[T]) Send(v T) {
	m.mu.Lock()
	dropped := m.full
	m.value = v
	m.full = true
	select {
	case m.ready <- struct{}{}:
	default:
	}
	m.mu.Unlock()

	m.sent.Add(1)
	if dropped {
		m.drops.Add(1)
		if m.onDrop != nil {
			m.onDrop()
		}
	}
}

// TryRecv takes the pending value without blocking.
// ok is false when nothing was pending.
func (m *Mailbox[T]) TryRecv() (v T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.takeLocked()
}

// Recv blocks until a value is pending or ctx is done.
func (m *Mailbox[T]) Recv(ctx context.Context) (T, error) {
	for {
		m.mu.Lock()
		v, ok := m.takeLocked()
		m.mu.Unlock()
		if ok {
			return v, nil
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-m.ready:
		}
	}
}

func (m *Mailbox[T]) takeLocked() (v T, ok bool) {
	if !m.full {
		return v, false
	}
	v = m.value
	var zero T
	m.value = zero
	m.full = false
	// Drain the token so a later Recv does not spin on a stale wakeup.
	select {
	case <-m.ready:
	default:
	}
	m.received.Add(1)
	return v, true
}

// Pending reports whether a value is waiting.
func (m *Mailbox[T]) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.full
}

// Stats is a snapshot of mailbox counters.
type Stats struct {
	Sent     uint64
	Received uint64
	Dropped  uint64
}

// Stats returns the lifetime counters of the mailbox.
func (m *Mailbox[T]) Stats() Stats {
	return Stats{
		Sent:     m.sent.Load(),
		Received: m.received.Load(),
		Dropped:  m.drops.Load(),
	}
}
