// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import "encoding/binary"

// ChunkHeaderSize is CHUNK_ID | TOTAL_CHUNKS | OFFSET | TOTAL_LENGTH.
const ChunkHeaderSize = 16

// Chunk is one DATA_TRANSFER payload. ID is 1-based; the terminal chunk has
// ID == Total.
type Chunk struct {
	ID          uint32
	Total       uint32
	Offset      uint32
	TotalLength uint32
	Data        []byte
}

// Last reports whether c is the terminal chunk of its upload.
func (c Chunk) Last() bool {
	return c.ID == c.Total
}

// ParseChunk decodes a DATA_TRANSFER payload. Data aliases payload.
func ParseChunk(payload []byte) (Chunk, error) {
	if len(payload) < ChunkHeaderSize {
		return Chunk{}, newError(KindBadChunk, "chunk record has %d bytes, header needs %d", len(payload), ChunkHeaderSize)
	}
	return Chunk{
		ID:          binary.BigEndian.Uint32(payload[0:4]),
		Total:       binary.BigEndian.Uint32(payload[4:8]),
		Offset:      binary.BigEndian.Uint32(payload[8:12]),
		TotalLength: binary.BigEndian.Uint32(payload[12:16]),
		Data:        payload[ChunkHeaderSize:],
	}, nil
}

// AppendChunk appends the chunk record for c to dst.
func AppendChunk(dst []byte, c Chunk) []byte {
	dst = binary.BigEndian.AppendUint32(dst, c.ID)
	dst = binary.BigEndian.AppendUint32(dst, c.Total)
	dst = binary.BigEndian.AppendUint32(dst, c.Offset)
	dst = binary.BigEndian.AppendUint32(dst, c.TotalLength)
	return append(dst, c.Data...)
}

// Message wraps c in a DATA_TRANSFER message.
func (c Chunk) Message() Message {
	return Message{
		Type:    TypeDataTransfer,
		Payload: AppendChunk(make([]byte, 0, ChunkHeaderSize+len(c.Data)), c),
	}
}
