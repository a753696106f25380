// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ManuGH/audiocenter/internal/metrics"
	"github.com/ManuGH/audiocenter/internal/protocol"
)

// conn is one device link. Writes are serialized; reads belong to the
// connection's reader goroutine.
type conn struct {
	id           uint64
	nc           net.Conn
	writeTimeout time.Duration

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newConn(id uint64, nc net.Conn, writeTimeout time.Duration) *conn {
	return &conn{id: id, nc: nc, writeTimeout: writeTimeout}
}

func (c *conn) ID() uint64           { return c.id }
func (c *conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }
func (c *conn) LocalAddr() net.Addr  { return c.nc.LocalAddr() }

// Send writes one frame. The deadline is the earlier of ctx's deadline and
// the configured write timeout.
func (c *conn) Send(ctx context.Context, m protocol.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	frame := protocol.Encode(m)

	c.wmu.Lock()
	defer c.wmu.Unlock()

	var deadline time.Time
	if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := c.nc.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := c.nc.Write(frame); err != nil {
		return fmt.Errorf("write %s frame: %w", m.Type, err)
	}
	metrics.IncFrame("out", m.Type.String())
	return nil
}

// Close is safe to call from any goroutine, any number of times.
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}
