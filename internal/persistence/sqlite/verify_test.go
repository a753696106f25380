// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenMigrateAndQuickCheck(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "store.sqlite")

	db, err := Open(dbPath, DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	stmt := `CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT NOT NULL)`
	require.NoError(t, Migrate(ctx, db, stmt))
	require.NoError(t, Migrate(ctx, db, stmt), "migrations must be idempotent")

	_, err = db.ExecContext(ctx, `INSERT INTO kv (k, v) VALUES ('a', 'b')`)
	require.NoError(t, err)

	issues, err := QuickCheck(ctx, db)
	require.NoError(t, err)
	require.Nil(t, issues)

	var mode string
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA journal_mode;").Scan(&mode))
	require.Equal(t, "wal", mode)
}

func TestMigrateRollsBackOnError(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "bad.sqlite"), DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	err = Migrate(ctx, db,
		`CREATE TABLE IF NOT EXISTS ok_table (id INTEGER)`,
		`THIS IS NOT SQL`,
	)
	require.Error(t, err)

	var n int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='ok_table'`).Scan(&n))
	require.Zero(t, n)
}
