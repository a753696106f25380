// SPDX-License-Identifier: MIT

//go:build !windows

package namestore

import (
	"fmt"

	"github.com/google/renameio/v2"
)

// writeAtomic replaces path with data: temp file, fsync, rename.
func writeAtomic(path string, data []byte) error {
	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o640))
	if err != nil {
		return fmt.Errorf("create pending name map: %w", err)
	}
	// Cleanup removes the temp file unless it was committed.
	defer func() { _ = pendingFile.Cleanup() }()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write name map: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace name map: %w", err)
	}
	return nil
}
