// SPDX-License-Identifier: MIT

// Package namestore persists the advisory device key → display name map.
// Loss of the stored map is never fatal; it only warms the registry's cache.
package namestore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Store persists the whole name map. Save has overwrite semantics per key.
type Store interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, names map[string]string) error
	Close() error
}

// Pinger is implemented by backends with an external dependency worth probing.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Config selects and parameterizes a backend.
type Config struct {
	Backend string
	// Path is the flat file, sqlite database file, or badger directory.
	Path  string
	Redis RedisConfig
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendFile:
		return NewFileStore(cfg.Path), nil
	case BackendSQLite:
		return OpenSQLiteStore(ctx, sqlitePath(cfg.Path))
	case BackendBadger:
		return OpenBadgerStore(cfg.Path)
	case BackendRedis:
		return NewRedisStore(ctx, cfg.Redis)
	case BackendNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown name store backend %q", cfg.Backend)
	}
}

// sqlitePath keeps a flat-file style default path usable for sqlite.
func sqlitePath(p string) string {
	if filepath.Ext(p) == "" {
		return p + ".sqlite"
	}
	return p
}

// Nop discards every write and loads nothing.
type Nop struct{}

func (Nop) Load(context.Context) (map[string]string, error) { return map[string]string{}, nil }
func (Nop) Save(context.Context, map[string]string) error   { return nil }
func (Nop) Close() error                                     { return nil }
