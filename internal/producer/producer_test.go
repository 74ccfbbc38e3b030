// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package producer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/livereader/internal/mailbox"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func runAsync(ctx context.Context, run func(context.Context) error) <-chan error {
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()
	return done
}

func recv(t *testing.T, m *mailbox.Mailbox[[]byte]) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := m.Recv(ctx)
	require.NoError(t, err)
	return v
}

func TestVideo_WaitsForTickBetweenFrames(t *testing.T) {
	var renders atomic.Int32
	v := &Video{
		Renderer: RendererFunc(func(context.Context) ([]byte, error) {
			n := renders.Add(1)
			return []byte{byte(n)}, nil
		}),
		Out:  mailbox.New[[]byte](),
		Tick: mailbox.NewSignal(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, v.Run)

	assert.Equal(t, []byte{1}, recv(t, v.Out))
	// Without a tick the producer stays parked on the first frame.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), renders.Load())

	v.Tick.Tick()
	assert.Equal(t, []byte{2}, recv(t, v.Out))

	cancel()
	assert.NoError(t, <-done)
}

func TestVideo_RetriesAfterRenderError(t *testing.T) {
	var calls atomic.Int32
	v := &Video{
		Renderer: RendererFunc(func(context.Context) ([]byte, error) {
			if calls.Add(1) < 3 {
				return nil, errors.New("render failed")
			}
			return []byte("frame"), nil
		}),
		Out:     mailbox.New[[]byte](),
		Tick:    mailbox.NewSignal(),
		Backoff: Backoff{Initial: time.Millisecond, Max: 2 * time.Millisecond},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, v.Run)

	assert.Equal(t, []byte("frame"), recv(t, v.Out))
	assert.Equal(t, int32(3), calls.Load())

	cancel()
	assert.NoError(t, <-done)
}

func TestAudio_CyclesScriptAndCaches(t *testing.T) {
	var generated atomic.Int32
	a := &Audio{
		Source: AudioSourceFunc(func(_ context.Context, text string) ([]byte, error) {
			generated.Add(1)
			return []byte(text), nil
		}),
		Script: []string{"one", "two"},
		Out:    mailbox.New[[]byte](),
		Tick:   mailbox.NewSignal(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, a.Run)

	var got []string
	for range 4 {
		got = append(got, string(recv(t, a.Out)))
		a.Tick.Tick()
	}
	cancel()
	assert.NoError(t, <-done)

	assert.Equal(t, []string{"one", "two", "one", "two"}, got)
	assert.Equal(t, int32(2), generated.Load(), "second cycle comes from the cache")
	assert.Equal(t, 2, a.Cached())
}

func TestAudio_IntervalDelaysNextBuffer(t *testing.T) {
	a := &Audio{
		Source: AudioSourceFunc(func(_ context.Context, text string) ([]byte, error) {
			return []byte(text), nil
		}),
		Script:   []string{"x"},
		Out:      mailbox.New[[]byte](),
		Tick:     mailbox.NewSignal(),
		Interval: 50 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, a.Run)

	recv(t, a.Out)
	start := time.Now()
	a.Tick.Tick()
	recv(t, a.Out)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestAudio_EmptyScript(t *testing.T) {
	a := &Audio{Out: mailbox.New[[]byte](), Tick: mailbox.NewSignal()}
	assert.ErrorIs(t, a.Run(context.Background()), ErrEmptyScript)
}

func TestAudio_CancelDuringBackoff(t *testing.T) {
	a := &Audio{
		Source: AudioSourceFunc(func(context.Context, string) ([]byte, error) {
			return nil, errors.New("tts down")
		}),
		Script:  []string{"x"},
		Out:     mailbox.New[[]byte](),
		Tick:    mailbox.NewSignal(),
		Backoff: Backoff{Initial: time.Hour},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, a.Run)
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("producer ignored cancellation")
	}
	assert.False(t, a.Out.Pending())
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second}
	assert.Equal(t, 100*time.Millisecond, b.delay(1))
	assert.Equal(t, 200*time.Millisecond, b.delay(2))
	assert.Equal(t, 800*time.Millisecond, b.delay(4))
	assert.Equal(t, time.Second, b.delay(5))
	assert.Equal(t, time.Second, b.delay(100))
	assert.Equal(t, defaultBackoff, Backoff{}.delay(1))
}
