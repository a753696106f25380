// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/ManuGH/audiocenter/internal/fsutil"
	xglog "github.com/ManuGH/audiocenter/internal/log"
	"github.com/ManuGH/audiocenter/internal/metrics"
	"github.com/ManuGH/audiocenter/internal/protocol"
	"github.com/ManuGH/audiocenter/internal/telemetry"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// PushChunkSize is the payload size of every pushed chunk but the last.
const PushChunkSize = 2048

// maxParallelPushes bounds concurrent pushes of one Push call.
const maxParallelPushes = 4

// Progress receives push callbacks. Both fields are optional.
type Progress struct {
	OnProgress func(chunkID, total uint32)
	OnDone     func(err error)
}

// ChunkCount returns how many PushChunkSize chunks cover length bytes.
func ChunkCount(length int64) int64 {
	return (length + PushChunkSize - 1) / PushChunkSize
}

// PushFile streams a local file to the device: one upload request, then
// DATA_TRANSFER chunks of PushChunkSize bytes. OnDone always runs once.
func (c *Commander) PushFile(ctx context.Context, key, path string, p Progress) (err error) {
	ctx, span := c.tracer.Start(ctx, "push.file", trace.WithAttributes(
		telemetry.PushAttributes(key, path, 0, 0)...,
	))
	defer func() {
		result := "ok"
		if err != nil {
			result = "failed"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Warn().Err(err).
				Str(xglog.FieldEvent, "push.failed").
				Str(xglog.FieldDeviceKey, key).
				Str(xglog.FieldPath, path).
				Msg("file push failed")
		}
		metrics.IncPush(result)
		span.End()
		if p.OnDone != nil {
			p.OnDone(err)
		}
	}()

	conn, ok := c.registry.Conn(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTargetUnavailable, key)
	}

	// #nosec G304 -- operator-supplied local path
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrInvalidArgument, path, err)
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	switch {
	case st.IsDir():
		return fmt.Errorf("%w: %s is a directory", ErrInvalidArgument, path)
	case st.Size() == 0:
		return fmt.Errorf("%w: %s is empty", ErrInvalidArgument, path)
	case st.Size() > math.MaxUint32:
		return fmt.Errorf("%w: %s exceeds 4 GiB", ErrInvalidArgument, path)
	}
	length := uint32(st.Size()) // #nosec G115 -- checked above
	total := uint32(ChunkCount(st.Size())) // #nosec G115
	span.SetAttributes(telemetry.PushAttributes("", "", int64(length), int64(total))...)

	start := protocol.NewRequest(protocol.SubtypeUpload).
		Put("filepath", filepath.Base(path)).
		Put("chunks", total).
		Put("length", length)
	msg, err := start.Message()
	if err != nil {
		return err
	}
	if err := conn.Send(ctx, msg); err != nil {
		return fmt.Errorf("send upload request: %w", err)
	}
	c.logger.Info().
		Str(xglog.FieldEvent, "push.started").
		Str(xglog.FieldDeviceKey, key).
		Str(xglog.FieldPath, path).
		Uint32(xglog.FieldTotalChunks, total).
		Uint32("length", length).
		Msg("file push started")

	buf := make([]byte, PushChunkSize)
	var offset uint32
	for id := uint32(1); id <= total; id++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := io.ReadFull(f, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("read %s at %d: %w", path, offset, err)
		}
		chunk := protocol.Chunk{ID: id, Total: total, Offset: offset, TotalLength: length, Data: buf[:n]}
		if err := conn.Send(ctx, chunk.Message()); err != nil {
			return fmt.Errorf("send chunk %d/%d: %w", id, total, err)
		}
		offset += uint32(n) // #nosec G115 -- n <= PushChunkSize
		if p.OnProgress != nil {
			p.OnProgress(id, total)
		}
	}
	c.logger.Info().
		Str(xglog.FieldEvent, "push.finished").
		Str(xglog.FieldDeviceKey, key).
		Str(xglog.FieldPath, path).
		Msg("file push finished")
	return nil
}

// Push sends a file to target (a key or TargetAll, meaning every connected
// device), several devices at a time.
func (c *Commander) Push(ctx context.Context, target, path string) (Results, error) {
	results, keys := c.resolve(target, anyDevice)
	if len(keys) == 0 {
		if len(results) == 0 {
			return results, fmt.Errorf("%w: no devices connected", ErrTargetUnavailable)
		}
		return results, nil
	}
	if err := fsutil.IsRegularFile(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(maxParallelPushes)
	for _, k := range keys {
		g.Go(func() error {
			err := c.PushFile(ctx, k, path, Progress{})
			mu.Lock()
			results[k] = err
			mu.Unlock()
			// Per-device failures go to results only.
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}
