// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package logagg collects the diagnostic output of the encoder processes.
//
// Every stage's stderr is drained by a consumer that splits it into lines
// and hands them to a single aggregator goroutine. The aggregator redacts
// secrets, drops lines identical to the previous one of the same stream
// (ffmpeg repaints its progress line constantly), logs the rest and keeps a
// short per-stream history for the status server.
package logagg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/livereader/internal/log"
)

// MaxLineLength bounds a single stderr line; longer runs are split.
const MaxLineLength = 64 * 1024

// Line is one line of stream output.
type Line struct {
	Stream string    `json:"stream"`
	Index  int       `json:"index"`
	Text   string    `json:"text"`
	Time   time.Time `json:"time"`
}

// Options configures an Aggregator.
type Options struct {
	// Redactor scrubs secrets from every line before it is stored or logged.
	Redactor log.Redactor
	// RingSize is the per-stream history length.
	RingSize int
	// Buffer is the capacity of each consumer's channel.
	Buffer int
	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

type stream struct {
	index int
	ring  *LineRing
}

type consumer struct {
	lines chan Line
}

// Aggregator owns the per-stream history. Run must be running for consumers
// to make progress; once Run has returned consumers discard their input.
type Aggregator struct {
	opts   Options
	logger zerolog.Logger

	attach chan *consumer
	done   chan struct{}

	mu      sync.RWMutex
	streams map[string]*stream
}

// New returns an idle Aggregator.
func New(opts Options) *Aggregator {
	if opts.RingSize <= 0 {
		opts.RingSize = DefaultRingSize
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	logger := log.WithComponent("logagg")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Aggregator{
		opts:    opts,
		logger:  logger,
		attach:  make(chan *consumer),
		done:    make(chan struct{}),
		streams: make(map[string]*stream),
	}
}

// Run merges consumer channels until ctx is done. It always returns nil.
func (a *Aggregator) Run(ctx context.Context) error {
	defer close(a.done)

	merged := make(chan Line)
	var wg sync.WaitGroup
	stop := make(chan struct{})
	defer func() {
		close(stop)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-a.attach:
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					var l Line
					select {
					case v, ok := <-c.lines:
						if !ok {
							return
						}
						l = v
					case <-stop:
						return
					}
					select {
					case merged <- l:
					case <-stop:
						return
					}
				}
			}()
		case l := <-merged:
			a.record(l)
		}
	}
}

// Consume drains r line by line into the aggregator under the given stream
// name until EOF. index orders streams in listings. Lines are split on both
// '\n' and '\r'. A closed pipe counts as EOF.
func (a *Aggregator) Consume(name string, index int, r io.Reader) error {
	a.register(name, index)

	c := &consumer{lines: make(chan Line, a.opts.Buffer)}
	attached := false
	select {
	case a.attach <- c:
		attached = true
	case <-a.done:
	}
	defer func() {
		if attached {
			close(c.lines)
		}
	}()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), MaxLineLength)
	sc.Split(scanLines)
	for sc.Scan() {
		text := string(bytes.TrimSpace(sc.Bytes()))
		if text == "" || !attached {
			continue
		}
		l := Line{Stream: name, Index: index, Text: text, Time: time.Now()}
		select {
		case c.lines <- l:
		case <-a.done:
			// Keep draining so the process never stalls on a full stderr.
			attached = false
			close(c.lines)
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

func (a *Aggregator) register(name string, index int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.streams[name]; !ok {
		a.streams[name] = &stream{index: index, ring: NewLineRing(a.opts.RingSize)}
	}
}

func (a *Aggregator) record(l Line) {
	l.Text = a.opts.Redactor.String(l.Text)

	a.mu.RLock()
	s := a.streams[l.Stream]
	a.mu.RUnlock()
	if s == nil {
		return
	}
	if prev, ok := s.ring.Newest(); ok && prev == l.Text {
		return
	}
	s.ring.Push(l.Text)

	a.logger.Info().
		Str(log.FieldStage, l.Stream).
		Int("index", l.Index).
		Msg(l.Text)
}

// Last returns up to n recent lines of one stream, oldest first.
func (a *Aggregator) Last(name string, n int) []string {
	a.mu.RLock()
	s := a.streams[name]
	a.mu.RUnlock()
	if s == nil {
		return nil
	}
	return s.ring.LastN(n)
}

// Snapshot is the recent history of one stream.
type Snapshot struct {
	Stream string   `json:"stream"`
	Index  int      `json:"index"`
	Lines  []string `json:"lines"`
}

// Snapshot returns up to n recent lines of every stream, ordered by index.
func (a *Aggregator) Snapshot(n int) []Snapshot {
	a.mu.RLock()
	out := make([]Snapshot, 0, len(a.streams))
	for name, s := range a.streams {
		out = append(out, Snapshot{Stream: name, Index: s.index, Lines: s.ring.LastN(n)})
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].Stream < out[j].Stream
	})
	return out
}

func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF || len(data) >= MaxLineLength {
		return len(data), data, nil
	}
	return 0, nil, nil
}
