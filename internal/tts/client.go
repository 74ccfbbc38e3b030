// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package tts turns script lines into PCM using Google's translate TTS
// endpoint and an MP3 decoder.
package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ManuGH/livereader/internal/log"
	"github.com/ManuGH/livereader/internal/metrics"
	"github.com/ManuGH/livereader/internal/resilience"
	"github.com/ManuGH/livereader/internal/telemetry"
)

// MaxChars is the longest text the endpoint accepts in one request.
const MaxChars = 100

var (
	// ErrTextTooLong is returned for texts over MaxChars characters.
	ErrTextTooLong = errors.New("tts: text too long")
	// ErrUpstream wraps failed or rejected requests.
	ErrUpstream = errors.New("tts: upstream unavailable")
)

const (
	defaultBaseURL    = "https://translate.google.com"
	defaultTimeout    = 10 * time.Second
	defaultRetries    = 2
	defaultBackoff    = 200 * time.Millisecond
	defaultMaxBackoff = 2 * time.Second
	defaultRateLimit  = 2
	defaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/47.0.2526.106 Safari/537.36"
	maxResponseBytes  = 8 << 20
)

// Options configures a Client.
type Options struct {
	// BaseURL overrides https://translate.google.<TLD>.
	BaseURL    string
	Language   string
	TLD        string
	Timeout    time.Duration
	// MaxRetries is the number of retries after a failed request. Zero
	// means the default, negative disables retries.
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
	UserAgent  string
	RateLimit  rate.Limit
	RateBurst  int
	// Breaker guards the endpoint; nil uses a default one.
	Breaker *resilience.CircuitBreaker
}

// Client fetches MP3 speech for short texts.
type Client struct {
	baseURL    string
	language   string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	userAgent  string

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewClient creates a client with opts applied over defaults.
func NewClient(opts Options) *Client {
	opts = normalizeOptions(opts)
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		language: opts.Language,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter:    rate.NewLimiter(opts.RateLimit, opts.RateBurst),
		breaker:    opts.Breaker,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		maxBackoff: opts.MaxBackoff,
		userAgent:  opts.UserAgent,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}
}

func normalizeOptions(opts Options) Options {
	if opts.TLD == "" {
		opts.TLD = "com"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = strings.Replace(defaultBaseURL, ".com", "."+opts.TLD, 1)
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 1
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewCircuitBreaker("tts", 5, 30*time.Second)
	}
	return opts
}

// Speak returns the MP3 rendition of text.
func (c *Client) Speak(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return nil, fmt.Errorf("tts: empty text")
	}
	if n > MaxChars {
		return nil, fmt.Errorf("%w: %d characters, max %d", ErrTextTooLong, n, MaxChars)
	}

	ctx, span := telemetry.Tracer("livereader.tts").Start(ctx, "livereader.tts.speak", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("tts.language", c.language),
		attribute.Int("tts.chars", n),
	)

	var body []byte
	err := c.breaker.Execute(func() error {
		var err error
		body, err = c.fetch(ctx, c.requestURL(text, n))
		return err
	}, isCancellation)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("tts.bytes", len(body)))
	span.SetStatus(codes.Ok, "")
	return body, nil
}

func (c *Client) requestURL(text string, n int) string {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("q", text)
	q.Set("tl", c.language)
	q.Set("total", "1")
	q.Set("idx", "0")
	q.Set("textlen", strconv.Itoa(n))
	q.Set("client", "tw-ob")
	return c.baseURL + "/translate_tts?" + q.Encode()
}

func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	logger := log.WithComponentFromContext(ctx, "tts")
	maxAttempts := c.maxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		body, retry, err := c.once(ctx, rawURL)
		metrics.TTSRequestDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.TTSRequestsTotal.WithLabelValues("ok").Inc()
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.TTSRequestsTotal.WithLabelValues("error").Inc()
		lastErr = err
		if !retry || attempt == maxAttempts {
			break
		}

		wait := c.backoffFor(attempt - 1)
		logger.Debug().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("tts request failed, retrying")
		if err := sleepWithContext(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, rawURL string) (body []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", "http://translate.google.com/")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		retry := resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests
		return nil, retry, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, true, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	if len(body) == 0 {
		return nil, false, fmt.Errorf("%w: empty body", ErrUpstream)
	}
	return body, false, nil
}

func (c *Client) backoffFor(attempt int) time.Duration {
	wait := c.backoff * time.Duration(1<<attempt)
	if wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	c.mu.Lock()
	jitter := time.Duration(c.rnd.Int63n(int64(wait/5 + 1)))
	c.mu.Unlock()
	return wait + jitter
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
