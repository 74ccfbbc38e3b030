// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !windows

package main

import (
	"fmt"

	"github.com/google/renameio/v2"
)

// writeConfigFile replaces path atomically: fsync before rename.
func writeConfigFile(path string, data []byte) error {
	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending config file: %w", err)
	}
	defer func() { _ = pendingFile.Cleanup() }()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write config data: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace config file: %w", err)
	}
	return nil
}
