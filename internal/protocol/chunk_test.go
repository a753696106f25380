// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkRoundTrip(t *testing.T) {
	in := Chunk{ID: 3, Total: 3, Offset: 4096, TotalLength: 6000, Data: []byte("tail")}
	msg := in.Message()
	assert.Equal(t, TypeDataTransfer, msg.Type)
	assert.Len(t, msg.Payload, ChunkHeaderSize+4)

	out, err := ParseChunk(msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Total, out.Total)
	assert.Equal(t, in.Offset, out.Offset)
	assert.Equal(t, in.TotalLength, out.TotalLength)
	assert.Equal(t, in.Data, out.Data)
	assert.True(t, out.Last())
}

func TestParseChunkShort(t *testing.T) {
	_, err := ParseChunk(make([]byte, ChunkHeaderSize-1))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestParseChunkEmptyData(t *testing.T) {
	c, err := ParseChunk(AppendChunk(nil, Chunk{ID: 1, Total: 2}))
	require.NoError(t, err)
	assert.Empty(t, c.Data)
	assert.False(t, c.Last())
}
