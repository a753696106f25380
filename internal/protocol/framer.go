// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import (
	"bufio"
	"encoding/binary"
	"io"
)

// DefaultMaxFrameBytes bounds a single frame including its header.
const DefaultMaxFrameBytes = 64 << 10

// FrameReader splits a stream into whole frames using the LENGTH field at
// LengthOffset. It does not validate magic or type; that is Decode's job.
type FrameReader struct {
	r   *bufio.Reader
	max int
	hdr [HeaderSize]byte
}

// NewFrameReader wraps r. maxFrameBytes <= 0 selects DefaultMaxFrameBytes.
func NewFrameReader(r io.Reader, maxFrameBytes int) *FrameReader {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	return &FrameReader{r: bufio.NewReaderSize(r, 8<<10), max: maxFrameBytes}
}

// ReadFrame returns the next complete frame. It returns io.EOF only when the
// stream ends cleanly between frames; a stream ending mid-frame yields
// io.ErrUnexpectedEOF.
func (f *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(f.r, f.hdr[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(f.hdr[LengthOffset:HeaderSize])
	if uint64(length)+HeaderSize > uint64(f.max) {
		return nil, newError(KindTooLarge, "frame of %d bytes exceeds limit %d", uint64(length)+HeaderSize, f.max)
	}

	frame := make([]byte, HeaderSize+int(length))
	copy(frame, f.hdr[:])
	if _, err := io.ReadFull(f.r, frame[HeaderSize:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return frame, nil
}

// ReadMessage reads and decodes the next frame.
func (f *FrameReader) ReadMessage() (Message, error) {
	frame, err := f.ReadFrame()
	if err != nil {
		return Message{}, err
	}
	return Decode(frame)
}
