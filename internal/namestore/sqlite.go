// SPDX-License-Identifier: MIT

package namestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/audiocenter/internal/persistence/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS device_names (
	key TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore keeps names in a single-table SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (and migrates) the database at path.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(ctx, db, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, name FROM device_names`)
	if err != nil {
		return nil, fmt.Errorf("query device names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var key, name string
		if err := rows.Scan(&key, &name); err != nil {
			return nil, fmt.Errorf("scan device name: %w", err)
		}
		out[key] = name
	}
	return out, rows.Err()
}

// Save upserts every pair in one transaction. Keys absent from names are kept.
func (s *SQLiteStore) Save(ctx context.Context, names map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO device_names (key, name, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare save: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().Unix()
	for k, v := range names {
		if _, err := stmt.ExecContext(ctx, k, v, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("save device name %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// Ping runs an integrity check.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	problems, err := sqlite.QuickCheck(ctx, s.db)
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		return fmt.Errorf("device name database corrupt: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
