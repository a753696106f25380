// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package upload

import "errors"

var (
	// ErrSessionExists: the key already owns an upload. The prior session
	// keeps it.
	ErrSessionExists = errors.New("upload: session already active")

	// ErrFileTooLarge: the declared length exceeds the configured cap.
	ErrFileTooLarge = errors.New("upload: file exceeds size limit")

	// ErrInvalidUpload: the start request fields are unusable.
	ErrInvalidUpload = errors.New("upload: invalid request")

	// ErrIntegrity: a chunk header disagrees with the session it targets.
	ErrIntegrity = errors.New("upload: chunk integrity violation")
)
