// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import "fmt"

// Type is the message type ordinal carried in the frame header.
type Type uint32

// The ordinals are fixed by the wire format.
const (
	TypeRequest      Type = 0
	TypeResponse     Type = 1
	TypeDataTransfer Type = 2
	TypeNotification Type = 3
)

// Valid reports whether t is one of the four known ordinals.
func (t Type) Valid() bool {
	return t <= TypeNotification
}

func (t Type) String() string {
	switch t {
	case TypeRequest:
		return "REQUEST"
	case TypeResponse:
		return "RESPONSE"
	case TypeDataTransfer:
		return "DATA_TRANSFER"
	case TypeNotification:
		return "NOTIFICATION"
	default:
		return fmt.Sprintf("Type(%d)", uint32(t))
	}
}

// Message is one decoded frame.
type Message struct {
	Type    Type
	Payload []byte
}

// NewResponse builds a RESPONSE carrying plain text.
func NewResponse(text string) Message {
	return Message{Type: TypeResponse, Payload: []byte(text)}
}

// Text returns the payload as a string. Intended for RESPONSE and NOTIFICATION.
func (m Message) Text() string {
	return string(m.Payload)
}
