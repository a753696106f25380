// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package server accepts device TCP connections and runs each one through
// the frame reader and the dispatcher.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/audiocenter/internal/dispatch"
	xglog "github.com/ManuGH/audiocenter/internal/log"
	"github.com/ManuGH/audiocenter/internal/metrics"
	"github.com/ManuGH/audiocenter/internal/protocol"
	"github.com/ManuGH/audiocenter/internal/ratelimit"
	"github.com/rs/zerolog"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"
)

// Config configures the device listener.
type Config struct {
	ListenAddr string
	// MaxConnections caps concurrently open links. Zero means no cap.
	MaxConnections int
	MaxFrameBytes  int
	WriteTimeout   time.Duration
	// AcceptRate and AcceptBurst limit new connections per remote IP. A zero
	// rate disables the limiter.
	AcceptRate  float64
	AcceptBurst int
}

// Server owns the listener and every accepted connection.
type Server struct {
	cfg        Config
	dispatcher *dispatch.Dispatcher
	limiter    *ratelimit.Limiter
	logger     zerolog.Logger

	mu      sync.Mutex
	ln      net.Listener
	conns   map[uint64]*conn
	closing atomic.Bool
	nextID  atomic.Uint64
	wg      sync.WaitGroup
}

// New builds a Server around d.
func New(cfg Config, d *dispatch.Dispatcher) (*Server, error) {
	if d == nil {
		return nil, errors.New("server: dispatcher is required")
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = protocol.DefaultMaxFrameBytes
	}
	s := &Server{
		cfg:        cfg,
		dispatcher: d,
		logger:     xglog.WithComponent("device-server"),
		conns:      make(map[uint64]*conn),
	}
	if cfg.AcceptRate > 0 {
		burst := cfg.AcceptBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = ratelimit.New(ratelimit.Config{
			PerIPRate:  rate.Limit(cfg.AcceptRate),
			PerIPBurst: burst,
		})
	}
	return s, nil
}

// Listen binds the TCP socket. Serve calls it when it has not been called.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("device listen %s: %w", s.cfg.ListenAddr, err)
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ConnCount returns the number of open device links.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Serve accepts until Shutdown or ctx ends. It returns nil on a clean stop.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if s.closing.Load() {
		return nil
	}

	stop := context.AfterFunc(ctx, func() { _ = s.Shutdown(context.Background()) })
	defer stop()

	s.logger.Info().
		Str(xglog.FieldEvent, "device_server.started").
		Str(xglog.FieldListen, ln.Addr().String()).
		Msg("device listener started")

	var backoff time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				s.logger.Warn().Err(err).
					Str(xglog.FieldEvent, "device_server.accept_retry").
					Dur("backoff", backoff).
					Msg("accept failed, retrying")
				time.Sleep(backoff)
				continue
			}
			metrics.IncDeviceConnection("error")
			return fmt.Errorf("device accept: %w", err)
		}
		backoff = 0
		s.accept(ctx, nc)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

func (s *Server) accept(ctx context.Context, nc net.Conn) {
	if s.limiter != nil && !s.limiter.AllowAddr(nc.RemoteAddr()) {
		metrics.IncDeviceConnection("rate_limited")
		s.logger.Warn().
			Str(xglog.FieldEvent, "device_server.rate_limited").
			Str(xglog.FieldRemoteAddr, nc.RemoteAddr().String()).
			Msg("connection rejected by accept rate limit")
		_ = nc.Close()
		return
	}

	c := newConn(s.nextID.Add(1), nc, s.cfg.WriteTimeout)
	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		_ = nc.Close()
		return
	}
	s.conns[c.id] = c
	s.wg.Add(1)
	s.mu.Unlock()

	metrics.IncDeviceConnection("accepted")
	go s.serveConn(ctx, c)
}

func (s *Server) serveConn(ctx context.Context, c *conn) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := s.dispatcher.Connect(ctx, c)
	logger := s.logger.With().
		Uint64(xglog.FieldConnID, c.id).
		Str(xglog.FieldDeviceKey, sess.Key()).
		Logger()
	defer func() {
		sess.Disconnect()
		_ = c.Close()
		s.mu.Lock()
		delete(s.conns, c.id)
		s.mu.Unlock()
	}()

	fr := protocol.NewFrameReader(c.nc, s.cfg.MaxFrameBytes)
	for {
		msg, err := fr.ReadMessage()
		if err != nil {
			s.logReadEnd(logger, err)
			return
		}
		metrics.IncFrame("in", msg.Type.String())
		if err := sess.Handle(msg); err != nil {
			s.logReadEnd(logger, err)
			return
		}
	}
}

// logReadEnd classifies why a connection's read loop stopped.
func (s *Server) logReadEnd(logger zerolog.Logger, err error) {
	var perr *protocol.Error
	switch {
	case errors.As(err, &perr):
		metrics.IncProtocolError(string(perr.Kind))
		logger.Warn().Err(err).
			Str(xglog.FieldEvent, "device.protocol_error").
			Msg("closing connection on malformed frame")
	case errors.Is(err, io.ErrUnexpectedEOF):
		metrics.IncProtocolError(string(protocol.KindTruncated))
		logger.Warn().Err(err).
			Str(xglog.FieldEvent, "device.protocol_error").
			Msg("stream ended inside a frame")
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		logger.Debug().Str(xglog.FieldEvent, "device.eof").Msg("connection closed")
	default:
		logger.Info().Err(err).Str(xglog.FieldEvent, "device.read_failed").Msg("connection dropped")
	}
}

// Shutdown closes the listener and every open link, then waits for the
// reader goroutines or ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	first := s.closing.CompareAndSwap(false, true)
	ln := s.ln
	open := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		open = append(open, c)
	}
	s.mu.Unlock()

	if first && ln != nil {
		_ = ln.Close()
	}
	for _, c := range open {
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		if first {
			s.logger.Info().
				Str(xglog.FieldEvent, "device_server.stopped").
				Int("closed_connections", len(open)).
				Msg("device listener stopped")
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("device server shutdown: %w", ctx.Err())
	}
}
