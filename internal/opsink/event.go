// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package opsink carries operator-facing events (device responses and
// lifecycle changes) from the network path to sinks that never block it.
package opsink

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Topics published by the dispatcher and the recording service.
const (
	TopicDeviceResponse     = "device.response"
	TopicDeviceConnected    = "device.connected"
	TopicDeviceRegistered   = "device.registered"
	TopicDeviceDisconnected = "device.disconnected"
	TopicUploadFinished     = "upload.finished"
	TopicUploadFailed       = "upload.failed"
	TopicRecordingStarted   = "recording.started"
	TopicRecordingStopped   = "recording.stopped"
	TopicScheduleProgress   = "recording.schedule_progress"
	TopicScheduleFinished   = "recording.schedule_finished"

	// TopicAll subscribes to every topic.
	TopicAll = "*"
)

// Event is one operator-visible occurrence.
type Event struct {
	ID        string         `json:"id"`
	Topic     string         `json:"topic"`
	DeviceKey string         `json:"device_key,omitempty"`
	Text      string         `json:"text,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Time      time.Time      `json:"time"`
}

// NewEvent stamps an event with an ID and the current time.
func NewEvent(topic, deviceKey, text string) Event {
	return Event{
		ID:        uuid.NewString(),
		Topic:     topic,
		DeviceKey: deviceKey,
		Text:      text,
		Time:      time.Now().UTC(),
	}
}

// With attaches a data field.
func (e Event) With(key string, v any) Event {
	data := make(map[string]any, len(e.Data)+1)
	for k, val := range e.Data {
		data[k] = val
	}
	data[key] = v
	e.Data = data
	return e
}

// Subscriber is a live subscription.
type Subscriber interface {
	// C returns the event channel. It is closed by Close.
	C() <-chan Event
	Close() error
}

// Bus is the event transport.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, topic string) (Subscriber, error)
}
