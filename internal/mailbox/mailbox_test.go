// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mailbox

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMailbox_DrainReturnsLastSent(t *testing.T) {
	for _, n := range []int{1, 2, 5, 100} {
		mb := New[int]()
		for i := 1; i <= n; i++ {
			mb.Send(i)
		}

		v, ok := mb.TryRecv()
		require.True(t, ok)
		assert.Equal(t, n, v, "must observe only the last value")

		_, ok = mb.TryRecv()
		assert.False(t, ok, "earlier values are discarded, not queued")

		st := mb.Stats()
		assert.Equal(t, uint64(n), st.Sent)
		assert.Equal(t, uint64(1), st.Received)
		assert.Equal(t, uint64(n-1), st.Dropped)
	}
}

func TestMailbox_EmptyTryRecv(t *testing.T) {
	mb := New[[]byte]()
	v, ok := mb.TryRecv()
	assert.False(t, ok)
	assert.Nil(t, v)
	assert.False(t, mb.Pending())
}

func TestMailbox_DropHook(t *testing.T) {
	var drops atomic.Int32
	mb := New[string](WithDropHook(func() { drops.Add(1) }))

	mb.Send("b1")
	mb.Send("b2")
	v, ok := mb.TryRecv()
	require.True(t, ok)
	assert.Equal(t, "b2", v)
	mb.Send("b3")

	assert.Equal(t, int32(1), drops.Load())
}

func TestMailbox_RecvBlocksUntilSend(t *testing.T) {
	mb := New[int]()
	got := make(chan int, 1)
	go func() {
		v, err := mb.Recv(context.Background())
		if err == nil {
			got <- v
		}
	}()

	select {
	case <-got:
		t.Fatal("Recv returned before any Send")
	case <-time.After(30 * time.Millisecond):
	}

	mb.Send(42)
	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Recv did not wake up")
	}
}

func TestMailbox_RecvCancelled(t *testing.T) {
	mb := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := mb.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMailbox_ConcurrentProducerConsumer(t *testing.T) {
	mb := New[int]()
	const total = 10000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= total; i++ {
			mb.Send(i)
		}
	}()

	last := 0
	deadline := time.After(5 * time.Second)
	for last != total {
		select {
		case <-deadline:
			t.Fatalf("consumer stuck at %d", last)
		default:
		}
		if v, ok := mb.TryRecv(); ok {
			require.Greater(t, v, last, "values must be observed in send order")
			last = v
		}
	}
	wg.Wait()

	st := mb.Stats()
	assert.Equal(t, uint64(total), st.Sent)
	assert.Equal(t, st.Sent, st.Received+st.Dropped)
}

func TestSignal_Coalesces(t *testing.T) {
	s := NewSignal()
	assert.True(t, s.Tick())
	assert.False(t, s.Tick(), "second tick coalesces")

	require.NoError(t, s.Wait(context.Background()))
	assert.False(t, s.TryWait(), "only one tick was pending")
}

func TestSignal_TickBeforeWaitDoesNotDeadlock(t *testing.T) {
	s := NewSignal()
	// Tick with nobody waiting must return immediately.
	done := make(chan struct{})
	go func() {
		s.Tick()
		s.Tick()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Tick blocked")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func TestSignal_WaitCancelled(t *testing.T) {
	s := NewSignal()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.Canceled)
}
