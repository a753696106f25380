// SPDX-License-Identifier: MIT

package namestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = map[string]string{
	"0beec7b5": "Acme/Speaker One",
	"62cdb702": "Unknown/Unknown",
	"bbe960a2": "Brand With Spaces/Model X",
}

// exerciseStore checks the behavior every backend shares.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Save(ctx, sample))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sample, got)

	require.NoError(t, s.Save(ctx, map[string]string{"0beec7b5": "Acme/Renamed"}))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Acme/Renamed", got["0beec7b5"])
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "id-names")
	s := NewFileStore(path)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, sample))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"0beec7b5 Acme/Speaker One\n62cdb702 Unknown/Unknown\nbbe960a2 Brand With Spaces/Model X\n",
		string(data))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sample, got)
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "absent"))
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseNameMap_SkipsMalformedLines(t *testing.T) {
	got := parseNameMap([]byte("abc Foo/Bar\n\nnospace\r\n def\nxyz Some Name\r\n"))
	assert.Equal(t, map[string]string{"abc": "Foo/Bar", "xyz": "Some Name"}, got)
}

func TestFormatNameMap_FlattensNewlines(t *testing.T) {
	out := formatNameMap(map[string]string{"k": "a\nb"})
	assert.Equal(t, "k a b\n", string(out))
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "names.sqlite"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	exerciseStore(t, s)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestBadgerStore(t *testing.T) {
	s, err := OpenBadgerStore(filepath.Join(t.TempDir(), "badger"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	exerciseStore(t, s)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := NewRedisStore(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	exerciseStore(t, s)
	assert.Equal(t, "Acme/Renamed", mr.HGet(RedisHashKey, "0beec7b5"))
}

func TestRedisStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), RedisConfig{Addr: addr})
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, Config{Backend: "", Path: filepath.Join(dir, "id-names")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(ctx, Config{Backend: "NONE"})
	require.NoError(t, err)
	exerciseNop(t, s)

	s, err = Open(ctx, Config{Backend: "sqlite", Path: filepath.Join(dir, "names")})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "names.sqlite"))
	require.NoError(t, s.Close())

	_, err = Open(ctx, Config{Backend: "etcd"})
	assert.Error(t, err)
}

func exerciseNop(t *testing.T, s Store) {
	t.Helper()
	require.NoError(t, s.Save(context.Background(), sample))
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}
