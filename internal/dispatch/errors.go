// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dispatch

import "errors"

var (
	// ErrTargetUnavailable: the device key has no bound connection.
	ErrTargetUnavailable = errors.New("dispatch: target device unavailable")

	// ErrCapabilityDisabled: the device has the needed capability switched off.
	ErrCapabilityDisabled = errors.New("dispatch: capability disabled for device")

	// ErrInvalidArgument: an outbound command failed validation.
	ErrInvalidArgument = errors.New("dispatch: invalid argument")
)
