// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package opsink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	xglog "github.com/ManuGH/audiocenter/internal/log"
	"github.com/ManuGH/audiocenter/internal/metrics"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultSubject prefixes forwarded event subjects.
const DefaultSubject = "audiocenter.events"

// Publisher is the subset of *nats.Conn used by the forwarder.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// DialNATS connects with reconnects enabled and connection changes logged.
func DialNATS(url string) (*nats.Conn, error) {
	logger := xglog.WithComponent("opsink")
	nc, err := nats.Connect(url,
		nats.Name("audiocenter"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "nats.disconnected").Msg("nats connection lost")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str(xglog.FieldEvent, "nats.reconnected").Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}

// NATSForwarder republishes bus events as JSON on "<subject>.<topic>".
type NATSForwarder struct {
	bus     Bus
	pub     Publisher
	subject string
	logger  zerolog.Logger
}

// NewNATSForwarder builds a forwarder; an empty subject uses DefaultSubject.
func NewNATSForwarder(bus Bus, pub Publisher, subject string) *NATSForwarder {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSForwarder{
		bus:     bus,
		pub:     pub,
		subject: subject,
		logger:  xglog.WithComponent("opsink"),
	}
}

// Run forwards events until ctx is done.
func (f *NATSForwarder) Run(ctx context.Context) error {
	sub, err := f.bus.Subscribe(ctx, TopicAll)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()

	f.logger.Info().Str(xglog.FieldEvent, "nats.forwarding").Str("subject", f.subject).Msg("forwarding operator events")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			f.forward(ev)
		}
	}
}

func (f *NATSForwarder) forward(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		metrics.IncBusDropReason(ev.Topic, "encode")
		f.logger.Warn().Err(err).Str(xglog.FieldEvent, "nats.encode_failed").Str("topic", ev.Topic).Msg("event not forwarded")
		return
	}
	if err := f.pub.Publish(f.subject+"."+ev.Topic, data); err != nil {
		metrics.IncBusDropReason(ev.Topic, "nats")
		f.logger.Warn().Err(err).Str(xglog.FieldEvent, "nats.publish_failed").Str("topic", ev.Topic).Msg("event not forwarded")
	}
}
