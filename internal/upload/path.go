// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package upload

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// LocalPath maps a device-side file to base/<deviceName>/<sessionTag>/<basename>.
// Empty deviceName or sessionTag components are skipped. Slashes in the
// device name become underscores.
func LocalPath(base, deviceName, sessionTag, remotePath string) (string, error) {
	name := baseName(remotePath)
	if name == "" {
		return "", fmt.Errorf("%w: no file name in %q", ErrInvalidUpload, remotePath)
	}

	parts := []string{base}
	if dir := sanitizeComponent(deviceName); dir != "" {
		parts = append(parts, dir)
	}
	if tag := sanitizeComponent(sessionTag); tag != "" {
		parts = append(parts, tag)
	}
	parts = append(parts, sanitizeComponent(name))
	return filepath.Join(parts...), nil
}

// baseName accepts both separators since devices send their own paths.
func baseName(remotePath string) string {
	p := strings.TrimRight(strings.TrimSpace(remotePath), `/\`)
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		p = p[i+1:]
	}
	if p == "." || p == ".." {
		return ""
	}
	return p
}

func sanitizeComponent(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	s = strings.NewReplacer("/", "_", `\`, "_", "\x00", "_").Replace(s)
	if s == "." || s == ".." {
		return strings.Repeat("_", len(s))
	}
	return s
}
