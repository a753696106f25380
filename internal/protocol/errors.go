// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol matches every malformed-frame error. A connection that
	// produced one must be closed.
	ErrProtocol = errors.New("protocol error")

	// ErrFrameTooLarge is returned by FrameReader when a header announces a
	// frame beyond the configured limit. It also matches ErrProtocol.
	ErrFrameTooLarge = errors.New("frame too large")
)

// ErrorKind classifies protocol failures for logs and metrics.
type ErrorKind string

const (
	KindBadMagic  ErrorKind = "bad_magic"
	KindBadType   ErrorKind = "bad_type"
	KindTruncated ErrorKind = "truncated"
	KindTooLarge  ErrorKind = "too_large"
	KindBadChunk  ErrorKind = "bad_chunk"
)

// Error describes a malformed frame.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("protocol error (%s): %s", e.Kind, e.Detail)
}

// Is lets errors.Is(err, ErrProtocol) match any *Error, and
// errors.Is(err, ErrFrameTooLarge) match the size violation.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrProtocol:
		return true
	case ErrFrameTooLarge:
		return e.Kind == KindTooLarge
	}
	return false
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
