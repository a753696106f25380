// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package opsink

import (
	"context"

	xglog "github.com/ManuGH/audiocenter/internal/log"
	"github.com/rs/zerolog"
)

// LogSink writes every bus event to the operator log.
type LogSink struct {
	bus    Bus
	logger zerolog.Logger
}

// NewLogSink returns a sink reading from bus.
func NewLogSink(bus Bus) *LogSink {
	return &LogSink{bus: bus, logger: xglog.WithComponent("opsink")}
}

// Run consumes events until ctx is done.
func (s *LogSink) Run(ctx context.Context) error {
	sub, err := s.bus.Subscribe(ctx, TopicAll)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			s.write(ev)
		}
	}
}

func (s *LogSink) write(ev Event) {
	e := s.logger.Info()
	if ev.Topic == TopicUploadFailed {
		e = s.logger.Warn()
	}
	e = e.Str(xglog.FieldEvent, ev.Topic).Str("event_id", ev.ID)
	if ev.DeviceKey != "" {
		e = e.Str(xglog.FieldDeviceKey, ev.DeviceKey)
	}
	if len(ev.Data) > 0 {
		e = e.Fields(ev.Data)
	}
	msg := ev.Text
	if msg == "" {
		msg = ev.Topic
	}
	e.Msg(msg)
}
