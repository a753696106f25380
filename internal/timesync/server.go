// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package timesync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	xglog "github.com/ManuGH/audiocenter/internal/log"
	"github.com/ManuGH/audiocenter/internal/metrics"
	"github.com/rs/zerolog"
)

// Server is the UDP responder. It keeps no state between datagrams.
type Server struct {
	addr   string
	logger zerolog.Logger
	now    func() time.Time

	mu   sync.Mutex
	conn net.PacketConn
}

// NewServer returns a responder for addr (":1123" style).
func NewServer(addr string) *Server {
	return &Server{
		addr:   addr,
		logger: xglog.WithComponent("timesync"),
		now:    time.Now,
	}
}

// Listen binds the socket. Serve calls it when it has not been called.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	conn, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return fmt.Errorf("timesync listen %s: %w", s.addr, err)
	}
	s.conn = conn
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Serve answers datagrams until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	s.logger.Info().
		Str(xglog.FieldEvent, "timesync.started").
		Str(xglog.FieldListen, conn.LocalAddr().String()).
		Msg("time-sync responder listening")

	buf := make([]byte, 512)
	for {
		n, peer, err := conn.ReadFrom(buf)
		received := s.now()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.logger.Info().Str(xglog.FieldEvent, "timesync.stopped").Msg("time-sync responder stopped")
				return nil
			}
			metrics.IncTimesync("error")
			s.logger.Warn().Err(err).Str(xglog.FieldEvent, "timesync.read_failed").Msg("read failed")
			continue
		}
		s.handle(conn, buf[:n], peer, received)
	}
}

func (s *Server) handle(conn net.PacketConn, req []byte, peer net.Addr, received time.Time) {
	reply, ok := BuildReply(req, received, s.now())
	if !ok {
		metrics.IncTimesync("short")
		s.logger.Debug().
			Str(xglog.FieldEvent, "timesync.short_request").
			Str(xglog.FieldRemoteAddr, peer.String()).
			Int("bytes", len(req)).
			Msg("dropped short request")
		return
	}
	if _, err := conn.WriteTo(reply, peer); err != nil {
		metrics.IncTimesync("error")
		s.logger.Warn().Err(err).
			Str(xglog.FieldEvent, "timesync.write_failed").
			Str(xglog.FieldRemoteAddr, peer.String()).
			Msg("reply not sent")
		return
	}
	metrics.IncTimesync("replied")
	s.logger.Debug().
		Str(xglog.FieldEvent, "timesync.reply_sent").
		Str(xglog.FieldRemoteAddr, peer.String()).
		Msg("reply sent")
}
