// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"fmt"
	"os"

	"github.com/ManuGH/audiocenter/internal/log"
)

// PerformStartupChecks prepares the data directory before any listener opens.
func PerformStartupChecks(dataDir string) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if err := checkWritableDir(dataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}

	logger.Info().Str("path", dataDir).Msg("✓ Data directory is writable")
	return nil
}

func checkWritableDir(path string) error {
	if path == "" {
		return fmt.Errorf("directory not configured")
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	// Check write permissions by creating a temp file
	f, err := os.CreateTemp(path, ".write_test-*")
	if err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}
