// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package protocol implements the device link wire format.
//
// A frame is MAGIC(4) | TYPE(4) | LENGTH(4) | PAYLOAD(LENGTH), all integers
// big-endian. REQUEST payloads are JSON objects {"subtype": ..., "data": {...}},
// RESPONSE payloads are free-form UTF-8 text and DATA_TRANSFER payloads are
// chunk records (see Chunk).
//
// FrameReader splits a byte stream at frame boundaries using the LENGTH field;
// Decode and Encode operate on whole frames and never buffer partial input.
package protocol
