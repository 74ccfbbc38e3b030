// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command livereader reads a script aloud on a live stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/livereader/internal/config"
	"github.com/ManuGH/livereader/internal/health"
	lrlog "github.com/ManuGH/livereader/internal/log"
	"github.com/ManuGH/livereader/internal/session"
	"github.com/ManuGH/livereader/internal/streamerr"
	"github.com/ManuGH/livereader/internal/telemetry"
	"github.com/ManuGH/livereader/internal/version"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:], os.Stdout, os.Stderr))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("livereader", flag.ContinueOnError)
	showVersion := fs.Bool("version", false, "print version and exit")
	configPath := fs.String("config", "", "path to config file (YAML)")
	envFile := fs.String("env-file", ".env", "dotenv file loaded before the environment is read")
	skipChecks := fs.Bool("skip-checks", false, "skip pre-flight startup checks")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if *showVersion {
		fmt.Fprintf(stdout, "%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		return exitOK
	}

	// Safe defaults until the configuration is known.
	_ = lrlog.Configure(lrlog.Config{Level: "info", Service: "livereader", Version: version.Version})
	logger := lrlog.WithComponent("main")

	cfg, err := config.NewLoader(*configPath, *envFile).Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str(lrlog.FieldEvent, "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
		return exitFailed
	}

	if err := lrlog.Configure(lrlog.Config{
		Level:   cfg.Log.Level,
		Service: "livereader",
		Version: version.Version,
		File:    cfg.Log.File,
	}); err != nil {
		logger.Error().Err(err).Msg("failed to configure logger")
		return exitFailed
	}
	logger = lrlog.WithComponent("main")
	logger.Info().Str(lrlog.FieldEvent, "config.loaded").Msg(cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		ServiceName:    "livereader",
		ServiceVersion: version.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize tracing")
		return exitFailed
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	if !*skipChecks {
		if err := health.PerformStartupChecks(ctx, cfg); err != nil {
			logger.Error().Err(err).Str(lrlog.FieldEvent, "startup.check_failed").Msg("pre-flight checks failed")
			return exitFailed
		}
	}

	s, err := session.New(cfg, session.Deps{})
	if err != nil {
		logger.Error().Err(err).Msg("failed to prepare session")
		return exitFailed
	}
	return exitCode(logger, s.Run(ctx))
}

// exitCode maps the result of a session to the process exit status.
func exitCode(logger zerolog.Logger, err error) int {
	switch {
	case err == nil:
		logger.Info().Msg("shutdown complete")
		return exitOK
	case streamerr.IsSetup(err):
		logger.Error().Err(err).Str(lrlog.FieldEvent, "session.setup_failed").Msg("session setup failed")
	case streamerr.IsPipelineBroken(err):
		logger.Error().Err(err).Str(lrlog.FieldEvent, "session.pipeline_broken").Msg("encoder pipeline broke")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Error().Err(err).Msg("session timed out")
	default:
		logger.Error().Err(err).Msg("session failed")
	}
	return exitFailed
}
