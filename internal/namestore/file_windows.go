// SPDX-License-Identifier: MIT

//go:build windows

package namestore

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeAtomic writes a sibling temp file and renames it over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".id-names-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp name map: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write name map: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync name map: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close name map: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
