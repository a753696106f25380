// SPDX-License-Identifier: MIT

package namestore

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileStore keeps one "key name" pair per line. Names may contain spaces;
// the key ends at the first one.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store rooted at path. Nothing is touched until Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the map. A missing file is an empty map.
func (s *FileStore) Load(_ context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// #nosec G304 -- path comes from operator configuration
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read name map: %w", err)
	}
	return parseNameMap(data), nil
}

// Save atomically rewrites the file with the given map, sorted by key.
func (s *FileStore) Save(_ context.Context, names map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create name map dir: %w", err)
	}
	return writeAtomic(s.path, formatNameMap(names))
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func parseNameMap(data []byte) map[string]string {
	out := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		key, name, ok := strings.Cut(line, " ")
		if !ok || key == "" {
			continue
		}
		out[key] = name
	}
	return out
}

func formatNameMap(names map[string]string) []byte {
	keys := make([]string, 0, len(names))
	for k := range names {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		name := strings.NewReplacer("\n", " ", "\r", " ").Replace(names[k])
		buf.WriteString(k)
		buf.WriteByte(' ')
		buf.WriteString(name)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
