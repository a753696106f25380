// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package dispatch interprets device messages, drives the registry and the
// upload store, and builds outbound commands.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/audiocenter/internal/device"
	xglog "github.com/ManuGH/audiocenter/internal/log"
	"github.com/ManuGH/audiocenter/internal/metrics"
	"github.com/ManuGH/audiocenter/internal/opsink"
	"github.com/ManuGH/audiocenter/internal/protocol"
	"github.com/ManuGH/audiocenter/internal/upload"
	"github.com/rs/zerolog"
)

// Pool runs per-key serialized work off the network read path.
type Pool interface {
	SubmitKeyed(ctx context.Context, key string, fn func()) error
}

// TagSource supplies the operator session tag for new uploads.
type TagSource interface {
	Current() string
}

// Deps wires a Dispatcher.
type Deps struct {
	Registry *device.Registry
	Uploads  *upload.Store
	Sessions TagSource
	Bus      opsink.Bus
	Pool     Pool
	Logger   *zerolog.Logger
}

// Dispatcher is shared by all connections.
type Dispatcher struct {
	registry *device.Registry
	uploads  *upload.Store
	sessions TagSource
	bus      opsink.Bus
	pool     Pool
	logger   zerolog.Logger
}

// New validates deps and builds a Dispatcher.
func New(deps Deps) (*Dispatcher, error) {
	if deps.Registry == nil || deps.Uploads == nil || deps.Pool == nil {
		return nil, errors.New("dispatch: registry, uploads and pool are required")
	}
	d := &Dispatcher{
		registry: deps.Registry,
		uploads:  deps.Uploads,
		sessions: deps.Sessions,
		bus:      deps.Bus,
		pool:     deps.Pool,
	}
	if deps.Logger != nil {
		d.logger = deps.Logger.With().Str(xglog.FieldComponent, "dispatch").Logger()
	} else {
		d.logger = xglog.WithComponent("dispatch")
	}
	return d, nil
}

// Session is the dispatcher state of one connection.
type Session struct {
	d      *Dispatcher
	conn   device.Conn
	key    string
	ctx    context.Context
	state  atomic.Int32
	once   sync.Once
	closed chan struct{}
	logger zerolog.Logger
}

// Connect registers conn with empty metadata so every open connection has a
// device record before its first message. ctx bounds the connection's work.
func (d *Dispatcher) Connect(ctx context.Context, conn device.Conn) *Session {
	reg := d.registry.RegisterOrUpdate(conn, map[string]any{})
	key := reg.Record.Key

	s := &Session{
		d:      d,
		conn:   conn,
		key:    key,
		ctx:    xglog.ContextWithDeviceKey(ctx, key),
		closed: make(chan struct{}),
		logger: d.logger.With().
			Str(xglog.FieldDeviceKey, key).
			Uint64(xglog.FieldConnID, conn.ID()).
			Logger(),
	}
	if reg.Owner {
		s.state.Store(int32(StateRegistered))
	} else {
		s.state.Store(int32(StateShadowed))
	}

	s.logger.Info().
		Str(xglog.FieldEvent, "device.connected").
		Str(xglog.FieldRemoteAddr, conn.RemoteAddr().String()).
		Str("state", s.State().String()).
		Msg("device connected")
	d.publish(opsink.NewEvent(opsink.TopicDeviceConnected, key, reg.Record.Name).
		With("remote_addr", conn.RemoteAddr().String()).
		With("state", s.State().String()))
	return s
}

// Key returns the device key of the connection.
func (s *Session) Key() string { return s.key }

// State returns the current connection state.
func (s *Session) State() State { return State(s.state.Load()) }

// Handle routes one decoded message. Work is queued on the device key's lane;
// Handle only blocks when the pool is saturated. A returned error is fatal
// for the connection.
func (s *Session) Handle(msg protocol.Message) error {
	if s.State() == StateClosed {
		return nil
	}
	switch msg.Type {
	case protocol.TypeRequest:
		return s.submit(func() { s.handleRequest(msg.Payload) })
	case protocol.TypeDataTransfer:
		c, err := protocol.ParseChunk(msg.Payload)
		if err != nil {
			return err
		}
		return s.submit(func() { s.handleChunk(c) })
	case protocol.TypeResponse:
		text := msg.Text()
		return s.submit(func() { s.handleResponse(text) })
	case protocol.TypeNotification:
		s.logger.Debug().
			Str(xglog.FieldEvent, "device.notification").
			Int("bytes", len(msg.Payload)).
			Msg("notification ignored")
		return nil
	default:
		return fmt.Errorf("dispatch: unexpected message type %d", msg.Type)
	}
}

func (s *Session) submit(fn func()) error {
	if err := s.d.pool.SubmitKeyed(s.ctx, s.key, func() {
		if s.State() == StateClosed {
			return
		}
		fn()
	}); err != nil {
		return fmt.Errorf("dispatch: queue work for %s: %w", s.key, err)
	}
	return nil
}

func (s *Session) handleRequest(payload []byte) {
	req, err := protocol.ParseRequest(payload)
	if err != nil {
		metrics.IncRequest("malformed", "unknown")
		s.logger.Warn().Err(err).Str(xglog.FieldEvent, "request.malformed").Msg("request not decodable")
		s.reply(TextUnknownRequest)
		return
	}

	switch kind := req.Kind(); kind {
	case protocol.SubtypeRegister:
		s.handleRegister(req)
	case protocol.SubtypeUpload:
		s.handleUpload(req)
	case protocol.SubtypeUnknown, protocol.SubtypeCapture, protocol.SubtypePlayback,
		protocol.SubtypeDelete, protocol.SubtypeList:
		metrics.IncRequest(kind.String(), "unknown")
		s.logger.Warn().
			Str(xglog.FieldEvent, "request.unknown").
			Str(xglog.FieldSubtype, req.Name).
			Msg("unknown request subtype")
		s.reply(TextUnknownRequest)
	}
}

func (s *Session) handleRegister(req *protocol.Request) {
	reg := s.d.registry.RegisterOrUpdate(s.conn, req.Data)
	// Disconnect may have run between the lane check and the update, in which
	// case the record above belongs to a dead connection.
	if s.State() == StateClosed {
		s.d.registry.Unregister(s.conn)
		return
	}
	if reg.Owner {
		s.state.CompareAndSwap(int32(StateShadowed), int32(StateRegistered))
	}
	metrics.IncRequest("register", "ok")
	s.d.publish(opsink.NewEvent(opsink.TopicDeviceRegistered, s.key, reg.Record.Name).
		With("owner", reg.Owner))
	s.reply(TextRegistered)
}

func (s *Session) handleUpload(req *protocol.Request) {
	remotePath, err := req.Str("filepath")
	if err == nil && remotePath == "" {
		err = errors.New("empty filepath")
	}
	var chunks, length int64
	if err == nil {
		chunks, err = req.Int("chunks")
	}
	if err == nil {
		length, err = req.Int("length")
	}
	if err != nil {
		metrics.IncRequest("upload", "invalid")
		s.logger.Warn().Err(err).Str(xglog.FieldEvent, "upload.invalid_request").Msg("upload request rejected")
		s.reply(TextUploadFailed)
		return
	}

	name := s.key
	if rec, ok := s.d.registry.Lookup(s.key); ok && rec.Name != "" {
		name = rec.Name
	}
	tag := ""
	if s.d.sessions != nil {
		tag = s.d.sessions.Current()
	}

	_, err = s.d.uploads.Start(s.ctx, upload.Request{
		Key:         s.key,
		ConnID:      s.conn.ID(),
		DeviceName:  name,
		SessionTag:  tag,
		RemotePath:  remotePath,
		TotalChunks: chunks,
		TotalLength: length,
	})
	switch {
	case err == nil:
		metrics.IncRequest("upload", "ok")
		// Disconnect may have run between the state check and Start.
		if s.State() == StateClosed {
			s.d.uploads.CancelOwned(s.key, s.conn.ID())
			return
		}
	case errors.Is(err, upload.ErrSessionExists):
		// The running session keeps the upload; the device is told to go on.
		metrics.IncRequest("upload", "busy")
	default:
		metrics.IncRequest("upload", "rejected")
		s.logger.Warn().Err(err).
			Str(xglog.FieldEvent, "upload.rejected").
			Str(xglog.FieldRemotePath, remotePath).
			Msg("upload start rejected")
		s.d.publish(opsink.NewEvent(opsink.TopicUploadFailed, s.key, err.Error()).
			With("remote_path", remotePath))
		s.reply(TextUploadFailed)
		return
	}
	s.reply(TextReady)
}

func (s *Session) handleChunk(c protocol.Chunk) {
	outcome, err := s.d.uploads.WriteChunk(s.key, c)
	switch outcome {
	case upload.OutcomeFinished:
		s.d.publish(opsink.NewEvent(opsink.TopicUploadFinished, s.key, TextUploadComplete).
			With("total_chunks", c.Total).
			With("total_length", c.TotalLength))
		s.reply(TextUploadComplete)
	case upload.OutcomeFailed:
		text := TextUploadFailed
		if err != nil {
			text = err.Error()
		}
		s.d.publish(opsink.NewEvent(opsink.TopicUploadFailed, s.key, text).
			With(xglog.FieldChunkID, c.ID))
		s.reply(TextUploadFailed)
	case upload.OutcomeNoSession:
		s.logger.Debug().
			Str(xglog.FieldEvent, "upload.chunk_orphaned").
			Uint32(xglog.FieldChunkID, c.ID).
			Msg("chunk without session dropped")
	case upload.OutcomeContinue:
	}
}

func (s *Session) handleResponse(text string) {
	s.logger.Debug().Str(xglog.FieldEvent, "device.response").Msg(text)
	s.d.publish(opsink.NewEvent(opsink.TopicDeviceResponse, s.key, text))
}

func (s *Session) reply(text string) {
	if err := s.conn.Send(s.ctx, protocol.NewResponse(text)); err != nil {
		s.logger.Warn().Err(err).
			Str(xglog.FieldEvent, "response.send_failed").
			Str("text", text).
			Msg("response not delivered")
	}
}

// Disconnect unregisters the connection once, whatever the number of calls.
// Upload teardown happens before it returns.
func (s *Session) Disconnect() {
	s.once.Do(func() {
		prev := State(s.state.Swap(int32(StateClosed)))
		close(s.closed)
		rec, removed := s.d.registry.Unregister(s.conn)
		if !removed {
			// A shadowed connection shares the owner's key; only the upload it
			// started itself goes with it.
			s.d.uploads.CancelOwned(s.key, s.conn.ID())
		}
		s.logger.Info().
			Str(xglog.FieldEvent, "device.disconnected").
			Str("previous_state", prev.String()).
			Bool("unregistered", removed).
			Msg("device disconnected")
		s.d.publish(opsink.NewEvent(opsink.TopicDeviceDisconnected, s.key, rec.Name).
			With("unregistered", removed))
	})
}

// Done is closed by Disconnect.
func (s *Session) Done() <-chan struct{} { return s.closed }

func (d *Dispatcher) publish(ev opsink.Event) {
	if d.bus == nil {
		return
	}
	if err := d.bus.Publish(context.Background(), ev); err != nil {
		d.logger.Warn().Err(err).Str(xglog.FieldEvent, "bus.publish_failed").Str("topic", ev.Topic).Msg("event dropped")
	}
}
