// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import (
	"encoding/binary"
)

const (
	// Magic opens every frame.
	Magic uint32 = 0xACC5CCFA

	// HeaderSize is the fixed MAGIC|TYPE|LENGTH prefix.
	HeaderSize = 12

	// LengthOffset is where the payload length sits inside the header.
	LengthOffset = 8
)

// Encode serializes m into a freshly allocated frame.
func Encode(m Message) []byte {
	return AppendFrame(make([]byte, 0, HeaderSize+len(m.Payload)), m)
}

// AppendFrame appends the encoded frame for m to dst.
func AppendFrame(dst []byte, m Message) []byte {
	dst = binary.BigEndian.AppendUint32(dst, Magic)
	dst = binary.BigEndian.AppendUint32(dst, uint32(m.Type))
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(m.Payload)))
	return append(dst, m.Payload...)
}

// Decode parses exactly one frame. The payload is copied so the caller may
// reuse frame.
func Decode(frame []byte) (Message, error) {
	if len(frame) < HeaderSize {
		return Message{}, newError(KindTruncated, "frame has %d bytes, header needs %d", len(frame), HeaderSize)
	}
	if magic := binary.BigEndian.Uint32(frame[0:4]); magic != Magic {
		return Message{}, newError(KindBadMagic, "got 0x%08X", magic)
	}
	t := Type(binary.BigEndian.Uint32(frame[4:8]))
	if !t.Valid() {
		return Message{}, newError(KindBadType, "ordinal %d out of range", uint32(t))
	}
	length := binary.BigEndian.Uint32(frame[LengthOffset:HeaderSize])
	if uint64(len(frame)-HeaderSize) != uint64(length) {
		return Message{}, newError(KindTruncated, "declared %d payload bytes, frame carries %d", length, len(frame)-HeaderSize)
	}

	payload := make([]byte, length)
	copy(payload, frame[HeaderSize:])
	return Message{Type: t, Payload: payload}, nil
}
