// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsutil keeps files the daemon writes under their root directory
// and checks files it reads on behalf of an operator.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapesRoot is returned when a path resolves outside its root.
var ErrEscapesRoot = errors.New("path escapes root")

// ConfineRelPath joins root and relTarget and resolves symlinks on the way,
// failing unless the result stays under the resolved root. relTarget must be
// relative and may not contain backslashes. Missing trailing components are
// allowed, so the result can name a file that is about to be created.
func ConfineRelPath(root, relTarget string) (string, error) {
	if strings.Contains(relTarget, `\`) {
		return "", fmt.Errorf("%w: backslash in %q", ErrEscapesRoot, relTarget)
	}
	rel := filepath.Clean(relTarget)
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q is absolute", ErrEscapesRoot, relTarget)
	}
	if escapes(rel) {
		return "", fmt.Errorf("%w: %q", ErrEscapesRoot, relTarget)
	}

	realRoot, err := resolveRoot(root)
	if err != nil {
		return "", err
	}
	full := filepath.Join(realRoot, rel)

	real, err := resolveExisting(full)
	if err != nil {
		return "", err
	}
	inside, err := filepath.Rel(realRoot, real)
	if err != nil {
		return "", fmt.Errorf("relate %s to %s: %w", real, realRoot, err)
	}
	if escapes(inside) {
		return "", fmt.Errorf("%w: %s resolves to %s", ErrEscapesRoot, full, real)
	}
	return real, nil
}

// IsRegularFile fails unless path exists and is a regular file after
// following symlinks.
func IsRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", path)
	}
	return nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func resolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root %q: %w", root, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return abs, nil
		}
		return "", fmt.Errorf("resolve root %s: %w", abs, err)
	}
	return real, nil
}

// resolveExisting evaluates symlinks in the longest existing prefix of path
// and appends the components that do not exist yet.
func resolveExisting(path string) (string, error) {
	var missing []string
	cur := path
	for {
		real, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				real = filepath.Join(real, missing[i])
			}
			return real, nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("resolve %s: %w", cur, err)
		}
		if _, lerr := os.Lstat(cur); lerr == nil {
			// dangling symlink; creating through it would land anywhere
			return "", fmt.Errorf("%w: dangling symlink %s", ErrEscapesRoot, cur)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return path, nil
		}
		missing = append(missing, filepath.Base(cur))
		cur = parent
	}
}
