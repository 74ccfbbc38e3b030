// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ManuGH/livereader/internal/resilience"
)

func testClient(url string, breaker *resilience.CircuitBreaker) *Client {
	return NewClient(Options{
		BaseURL:    url,
		Language:   "es",
		Backoff:    time.Millisecond,
		MaxBackoff: 2 * time.Millisecond,
		RateLimit:  rate.Inf,
		Breaker:    breaker,
	})
}

func TestSpeak_RequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate_tts", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "hola mundo", q.Get("q"))
		assert.Equal(t, "es", q.Get("tl"))
		assert.Equal(t, "10", q.Get("textlen"))
		assert.Equal(t, "tw-ob", q.Get("client"))
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla")
		assert.Equal(t, "http://translate.google.com/", r.Header.Get("Referer"))
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	body, err := testClient(srv.URL, nil).Speak(context.Background(), "  hola mundo ")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), body)
}

func TestSpeak_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := testClient(srv.URL, nil).Speak(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), body)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSpeak_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, nil).Speak(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSpeak_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := testClient(srv.URL, resilience.NewCircuitBreaker("tts-test", 2, time.Hour))
	for range 2 {
		_, err := c.Speak(context.Background(), "x")
		assert.ErrorIs(t, err, ErrUpstream)
	}
	_, err := c.Speak(context.Background(), "x")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSpeak_TextLimits(t *testing.T) {
	c := testClient("http://127.0.0.1:1", nil)

	_, err := c.Speak(context.Background(), strings.Repeat("a", MaxChars+1))
	assert.ErrorIs(t, err, ErrTextTooLong)

	_, err = c.Speak(context.Background(), "   ")
	assert.Error(t, err)
}

func TestSpeak_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	breaker := resilience.NewCircuitBreaker("tts-cancel", 1, time.Hour)
	c := testClient(srv.URL, breaker)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Speak(ctx, "slow")
	assert.Error(t, err)
	assert.Equal(t, resilience.StateClosed, breaker.State(), "cancellation is not a failure")
}

func TestNormalizeOptions_TLD(t *testing.T) {
	opts := normalizeOptions(Options{TLD: "es"})
	assert.Equal(t, "https://translate.google.es", opts.BaseURL)
	assert.Equal(t, "en", opts.Language)
	assert.Equal(t, defaultRetries, opts.MaxRetries)

	assert.Equal(t, 0, normalizeOptions(Options{MaxRetries: -1}).MaxRetries)
}
