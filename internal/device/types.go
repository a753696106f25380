// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package device

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ManuGH/audiocenter/internal/protocol"
)

// UnknownPart fills a missing Brand or Model.
const UnknownPart = "Unknown"

// UnknownName is the display name of a device that has not announced itself.
const UnknownName = UnknownPart + "/" + UnknownPart

// Conn is a live device connection. Only the registry and the dispatcher
// hold one.
type Conn interface {
	ID() uint64
	RemoteAddr() net.Addr
	LocalAddr() net.Addr
	Send(ctx context.Context, m protocol.Message) error
	Close() error
}

// Capabilities are the administrative enable flags of a device.
type Capabilities struct {
	Capture  bool `json:"capture"`
	Playback bool `json:"playback"`
}

// DefaultCapabilities applies to every new device.
var DefaultCapabilities = Capabilities{Capture: true, Playback: false}

// Capability selects which flag(s) SetCapability changes.
type Capability string

const (
	CapabilityCapture  Capability = "capture"
	CapabilityPlayback Capability = "playback"
	CapabilityAll      Capability = "all"
)

// ParseCapability accepts the three capability names, case-insensitively.
func ParseCapability(s string) (Capability, error) {
	switch c := Capability(strings.ToLower(strings.TrimSpace(s))); c {
	case CapabilityCapture, CapabilityPlayback, CapabilityAll:
		return c, nil
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

// ParseEnable maps "on"/"off" to a flag value.
func ParseEnable(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("enable must be on or off, got %q", s)
}

// Record is a snapshot of one device. Records handed out by the registry are
// deep copies.
type Record struct {
	Key          string         `json:"key"`
	Name         string         `json:"name"`
	RemoteAddr   string         `json:"remote_addr"`
	LocalAddr    string         `json:"local_addr"`
	Metadata     map[string]any `json:"metadata"`
	Capabilities Capabilities   `json:"capabilities"`
	ConnectedAt  time.Time      `json:"connected_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (r Record) clone() Record {
	r.Metadata = cloneMap(r.Metadata)
	return r
}

// NameFromMetadata builds "Brand/Model". ok is false when the metadata
// carries neither field.
func NameFromMetadata(md map[string]any) (name string, ok bool) {
	brand, hasBrand := md["Brand"]
	model, hasModel := md["Model"]
	if !hasBrand && !hasModel {
		return "", false
	}
	return namePart(brand) + "/" + namePart(model), true
}

func namePart(v any) string {
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	if s == "" {
		return UnknownPart
	}
	return s
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
