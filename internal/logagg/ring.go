// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package logagg

import "sync"

// DefaultRingSize is the number of lines kept per stream.
const DefaultRingSize = 64

// LineRing keeps the last N lines of one stream.
type LineRing struct {
	mu    sync.RWMutex
	lines []string
	head  int
	count int
}

// NewLineRing creates a LineRing holding up to capacity lines.
func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = DefaultRingSize
	}
	return &LineRing{lines: make([]string, capacity)}
}

// Push appends one line, evicting the oldest when full.
func (r *LineRing) Push(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)
	if r.count < len(r.lines) {
		r.count++
	}
}

// Newest returns the most recent line, if any.
func (r *LineRing) Newest() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.count == 0 {
		return "", false
	}
	return r.lines[(r.head-1+len(r.lines))%len(r.lines)], true
}

// LastN returns up to n lines, oldest first.
func (r *LineRing) LastN(n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n = min(n, r.count)
	if n <= 0 {
		return nil
	}
	out := make([]string, n)
	start := r.head - n + len(r.lines)
	for i := range n {
		out[i] = r.lines[(start+i)%len(r.lines)]
	}
	return out
}
