// SPDX-License-Identifier: MIT

package namestore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const badgerPrefix = "name:"

type badgerRecord struct {
	Name      string `json:"name"`
	UpdatedAt int64  `json:"updated_at"`
}

// BadgerStore keeps names as "name:<key>" entries with JSON values.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens the badger directory at path.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger name store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Load(_ context.Context) (map[string]string, error) {
	out := make(map[string]string)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), badgerPrefix)
			var rec badgerRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			out[key] = rec.Name
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Save(_ context.Context, names map[string]string) error {
	now := time.Now().Unix()
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for k, v := range names {
		buf, err := json.Marshal(badgerRecord{Name: v, UpdatedAt: now})
		if err != nil {
			return err
		}
		if err := wb.Set([]byte(badgerPrefix+k), buf); err != nil {
			return fmt.Errorf("stage %s: %w", k, err)
		}
	}
	return wb.Flush()
}

func (s *BadgerStore) Close() error { return s.db.Close() }
