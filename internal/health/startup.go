// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ManuGH/livereader/internal/config"
	"github.com/ManuGH/livereader/internal/log"
)

// PerformStartupChecks validates the environment before a session starts.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponentFromContext(ctx, "startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkBinaries(logger, cfg); err != nil {
		return fmt.Errorf("binary check failed: %w", err)
	}
	for _, path := range fifoPaths(cfg) {
		if err := checkFIFODir(logger, path); err != nil {
			return fmt.Errorf("fifo directory check failed: %w", err)
		}
	}
	if err := checkListenAddr(logger, cfg.API.Listen); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func fifoPaths(cfg config.AppConfig) []string {
	paths := []string{cfg.Video.FIFO, cfg.Audio.FIFO}
	if cfg.Stream.Preview {
		paths = append(paths, cfg.Stream.PreviewFIFO)
	}
	return paths
}

func checkBinaries(logger zerolog.Logger, cfg config.AppConfig) error {
	bins := []string{cfg.FFmpeg.Bin}
	if cfg.Stream.Preview {
		bins = append(bins, cfg.FFmpeg.FFplayBin)
	}
	for _, bin := range bins {
		path, err := exec.LookPath(bin)
		if err != nil {
			return fmt.Errorf("binary not found (%s): %w", bin, err)
		}
		logger.Info().Str("bin", bin).Str(log.FieldPath, path).Msg("binary available")
	}
	return nil
}

func checkFIFODir(logger zerolog.Logger, path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", dir)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}

	probe, err := os.CreateTemp(dir, ".livereader-probe-*")
	if err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", dir, err)
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())

	logger.Debug().Str(log.FieldPath, dir).Msg("fifo directory is writable")
	return nil
}

func checkListenAddr(logger zerolog.Logger, addr string) error {
	if addr == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid listen port %q in %q", port, addr)
	}
	logger.Info().Str("addr", addr).Msg("listen address is valid")
	return nil
}
