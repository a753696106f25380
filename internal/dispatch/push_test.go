// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ManuGH/audiocenter/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i * 7)
	}
	path := filepath.Join(t.TempDir(), "jingle.wav")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path, data
}

func TestChunkCount(t *testing.T) {
	assert.Equal(t, int64(1), ChunkCount(1))
	assert.Equal(t, int64(1), ChunkCount(PushChunkSize))
	assert.Equal(t, int64(2), ChunkCount(PushChunkSize+1))
	assert.Equal(t, int64(3), ChunkCount(6000))
}

func TestPushFileFraming(t *testing.T) {
	h := newHarness(t)
	conn := newFakeConn("192.168.1.10:40000")
	s := h.d.Connect(context.Background(), conn)
	path, data := writeTestFile(t, 5000)

	var (
		mu       sync.Mutex
		progress []uint32
		doneErr  error
		doneRuns int
	)
	c := NewCommander(h.registry)
	err := c.PushFile(context.Background(), s.Key(), path, Progress{
		OnProgress: func(id, total uint32) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, uint32(3), total)
			progress = append(progress, id)
		},
		OnDone: func(err error) {
			mu.Lock()
			defer mu.Unlock()
			doneErr = err
			doneRuns++
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3}, progress)
	assert.Equal(t, 1, doneRuns)
	assert.NoError(t, doneErr)

	req := decodeRequest(t, conn.next(t))
	assert.Equal(t, protocol.SubtypeUpload, req.Kind())
	assert.Equal(t, "jingle.wav", req.Data["filepath"])
	chunks, err := req.Int("chunks")
	require.NoError(t, err)
	assert.Equal(t, int64(3), chunks)
	length, err := req.Int("length")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), length)

	var got []byte
	wantSizes := []int{2048, 2048, 904}
	for i, size := range wantSizes {
		m := conn.next(t)
		require.Equal(t, protocol.TypeDataTransfer, m.Type)
		c, err := protocol.ParseChunk(m.Payload)
		require.NoError(t, err)
		assert.Equal(t, uint32(i+1), c.ID)
		assert.Equal(t, uint32(3), c.Total)
		assert.Equal(t, uint32(i*2048), c.Offset)
		assert.Equal(t, uint32(5000), c.TotalLength)
		assert.Len(t, c.Data, size)
		got = append(got, c.Data...)
	}
	assert.Equal(t, data, got)
}

func TestPushedFileReassembles(t *testing.T) {
	sender := newHarness(t)
	out := newFakeConn("192.168.1.10:40000")
	s := sender.d.Connect(context.Background(), out)
	path, data := writeTestFile(t, 3*PushChunkSize)
	require.NoError(t, NewCommander(sender.registry).PushFile(context.Background(), s.Key(), path, Progress{}))

	receiver := newHarness(t)
	in := newFakeConn("192.168.1.20:40000")
	rs := receiver.d.Connect(context.Background(), in)
	for i := 0; i < 4; i++ {
		require.NoError(t, rs.Handle(out.next(t)))
	}
	in.expectResponse(t, TextReady)
	in.expectResponse(t, TextUploadComplete)

	got, err := os.ReadFile(filepath.Join(receiver.base, "Unknown_Unknown", "jingle.wav"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestPushFileRejects(t *testing.T) {
	h := newHarness(t)
	conn := newFakeConn("192.168.1.10:40000")
	s := h.d.Connect(context.Background(), conn)
	c := NewCommander(h.registry)

	empty := filepath.Join(t.TempDir(), "empty.wav")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	var doneErr error
	err := c.PushFile(context.Background(), s.Key(), empty, Progress{OnDone: func(err error) { doneErr = err }})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, err, doneErr)

	assert.ErrorIs(t, c.PushFile(context.Background(), s.Key(), t.TempDir(), Progress{}), ErrInvalidArgument)
	assert.ErrorIs(t, c.PushFile(context.Background(), s.Key(), filepath.Join(t.TempDir(), "missing"), Progress{}), ErrInvalidArgument)

	path, _ := writeTestFile(t, 10)
	assert.ErrorIs(t, c.PushFile(context.Background(), "ffffffff", path, Progress{}), ErrTargetUnavailable)
	conn.expectQuiet(t)
}

func TestPushAll(t *testing.T) {
	h := newHarness(t)
	a := newFakeConn("192.168.1.10:40000")
	b := newFakeConn("192.168.1.11:40000")
	sa := h.d.Connect(context.Background(), a)
	sb := h.d.Connect(context.Background(), b)
	path, _ := writeTestFile(t, 100)

	results, err := NewCommander(h.registry).Push(context.Background(), TargetAll, path)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.NoError(t, results[sa.Key()])
	assert.NoError(t, results[sb.Key()])

	for _, conn := range []*fakeConn{a, b} {
		assert.Equal(t, protocol.TypeRequest, conn.next(t).Type)
		assert.Equal(t, protocol.TypeDataTransfer, conn.next(t).Type)
	}

	_, err = NewCommander(h.registry).Push(context.Background(), TargetAll, filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewCommander(h.registry).Push(context.Background(), TargetAll, t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
