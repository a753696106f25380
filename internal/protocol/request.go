// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Subtype identifies what a REQUEST asks for.
type Subtype int

const (
	SubtypeUnknown Subtype = iota
	SubtypeRegister
	SubtypeUpload
	SubtypeCapture
	SubtypePlayback
	SubtypeDelete
	SubtypeList
)

var subtypeNames = [...]string{
	SubtypeUnknown:  "unknown",
	SubtypeRegister: "register",
	SubtypeUpload:   "upload",
	SubtypeCapture:  "capture",
	SubtypePlayback: "playback",
	SubtypeDelete:   "delete",
	SubtypeList:     "list",
}

func (s Subtype) String() string {
	if s < 0 || int(s) >= len(subtypeNames) {
		return subtypeNames[SubtypeUnknown]
	}
	return subtypeNames[s]
}

// ParseSubtype maps a wire name to its Subtype. Unrecognized names map to
// SubtypeUnknown.
func ParseSubtype(name string) Subtype {
	for i, n := range subtypeNames {
		if i != int(SubtypeUnknown) && n == name {
			return Subtype(i)
		}
	}
	return SubtypeUnknown
}

// Request is the JSON body of a REQUEST frame.
type Request struct {
	Name string         `json:"subtype"`
	Data map[string]any `json:"data"`
}

// NewRequest starts a request of the given subtype with an empty data map.
func NewRequest(s Subtype) *Request {
	return &Request{Name: s.String(), Data: make(map[string]any)}
}

// Kind returns the parsed subtype; the raw name stays in Name.
func (r *Request) Kind() Subtype {
	return ParseSubtype(r.Name)
}

// Put sets a data field and returns r for chaining.
func (r *Request) Put(key string, value any) *Request {
	if r.Data == nil {
		r.Data = make(map[string]any)
	}
	r.Data[key] = value
	return r
}

// Message encodes r as a REQUEST frame payload.
func (r *Request) Message() (Message, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s request: %w", r.Name, err)
	}
	return Message{Type: TypeRequest, Payload: payload}, nil
}

// ParseRequest decodes a REQUEST payload. A missing data object decodes as an
// empty map.
func ParseRequest(payload []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if req.Data == nil {
		req.Data = make(map[string]any)
	}
	return &req, nil
}

// maxExactFloat is the largest integer a float64 represents exactly.
const maxExactFloat = 1 << 53

// Int reads an integral numeric field. JSON numbers decode as float64, so
// values are accepted when they carry no fractional part and sit within the
// exactly representable range.
func (r *Request) Int(key string) (int64, error) {
	v, ok := r.Data[key]
	if !ok {
		return 0, fmt.Errorf("field %q missing", key)
	}
	return toInt64(key, v)
}

func toInt64(key string, v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return 0, fmt.Errorf("field %q: %v is not an integer", key, n)
		}
		if math.Abs(n) > maxExactFloat {
			return 0, fmt.Errorf("field %q: %v exceeds exact integer range", key, n)
		}
		return int64(n), nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("field %q: %w", key, err)
		}
		return toInt64(key, f)
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint32:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("field %q: unexpected type %T", key, v)
	}
}

// Str reads a string field; whitespace is trimmed.
func (r *Request) Str(key string) (string, error) {
	v, ok := r.Data[key]
	if !ok {
		return "", fmt.Errorf("field %q missing", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q: unexpected type %T", key, v)
	}
	return strings.TrimSpace(s), nil
}

// StrOr returns the string field, or def when it is absent or empty.
func (r *Request) StrOr(key, def string) string {
	s, err := r.Str(key)
	if err != nil || s == "" {
		return def
	}
	return s
}
