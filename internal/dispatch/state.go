// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dispatch

// State is the protocol state of one connection.
type State int32

const (
	// StateConnected: accepted, not yet registered.
	StateConnected State = iota
	// StateRegistered: the connection owns its device key.
	StateRegistered
	// StateShadowed: the key is bound to another open connection. The
	// connection is served but never owns registry state.
	StateShadowed
	// StateClosed: disconnected; queued work is skipped.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateRegistered:
		return "registered"
	case StateShadowed:
		return "shadowed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
