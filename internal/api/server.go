// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the read-only status endpoints of a running session.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/livereader/internal/api/middleware"
	"github.com/ManuGH/livereader/internal/health"
	"github.com/ManuGH/livereader/internal/log"
	"github.com/ManuGH/livereader/internal/logagg"
)

// ShutdownTimeout bounds the graceful shutdown of the listener.
const ShutdownTimeout = 5 * time.Second

// LogSource is the part of logagg.Aggregator the log endpoint reads.
type LogSource interface {
	Snapshot(n int) []logagg.Snapshot
}

// Config configures the status server.
type Config struct {
	Listen string
	// RateLimit is requests per minute per client IP; zero disables it.
	RateLimit int
	// TracingService names the server spans; empty disables tracing.
	TracingService string
}

// Deps are the session components the endpoints expose.
type Deps struct {
	Health *health.Manager
	Logs   LogSource
	// Stats returns a JSON-encodable view of the session counters.
	Stats func() any
}

// Server is the status HTTP server.
type Server struct {
	cfg    Config
	deps   Deps
	router chi.Router
	logger zerolog.Logger

	mu   sync.Mutex
	srv  *http.Server
	addr net.Addr
}

// New builds the router. Nothing listens until Serve.
func New(cfg Config, deps Deps) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: log.WithComponent("api"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics())
	if s.cfg.TracingService != "" {
		r.Use(middleware.OTelHTTP(s.cfg.TracingService))
	}

	if s.deps.Health != nil {
		r.Get("/healthz", s.deps.Health.ServeHealth)
		r.Get("/readyz", s.deps.Health.ServeReady)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestLimit: s.cfg.RateLimit,
			WindowSize:   time.Minute,
		}))
		r.Get("/logs", s.handleLogs)
		r.Get("/stats", s.handleStats)
	})
	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Addr is the bound address once Serve is listening, nil before.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Serve listens on cfg.Listen until ctx is done, then shuts down gracefully.
// It returns nil after a shutdown caused by ctx.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.srv = srv
	s.addr = ln.Addr()
	s.mu.Unlock()

	logger := log.WithContext(ctx, s.logger)
	logger.Info().Str("addr", ln.Addr().String()).Msg("status server listening")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("status server shutdown incomplete")
		_ = srv.Close()
	}
	<-errCh
	logger.Info().Msg("status server stopped")
	return nil
}
