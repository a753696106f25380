// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package upload reassembles chunked device uploads into local files. A device
// key owns at most one session at a time.
package upload

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/audiocenter/internal/fsutil"
	xglog "github.com/ManuGH/audiocenter/internal/log"
	"github.com/ManuGH/audiocenter/internal/metrics"
	"github.com/ManuGH/audiocenter/internal/protocol"
	"github.com/ManuGH/audiocenter/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const shardCount = 32

// Outcome is the result of applying one chunk.
type Outcome int

const (
	OutcomeContinue Outcome = iota
	OutcomeFinished
	OutcomeFailed
	OutcomeNoSession
)

func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeFinished:
		return "finished"
	case OutcomeFailed:
		return "failed"
	case OutcomeNoSession:
		return "no_session"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Request describes an upload-start announced by a device. ConnID is the
// connection that asked for it.
type Request struct {
	Key         string
	ConnID      uint64
	DeviceName  string
	SessionTag  string
	RemotePath  string
	TotalChunks int64
	TotalLength int64
}

// SessionInfo is a read-only view of an active session.
type SessionInfo struct {
	Key           string    `json:"key"`
	ConnID        uint64    `json:"conn_id,omitempty"`
	SessionTag    string    `json:"session_tag,omitempty"`
	RemotePath    string    `json:"remote_path"`
	LocalPath     string    `json:"local_path"`
	TotalChunks   uint32    `json:"total_chunks"`
	TotalLength   uint32    `json:"total_length"`
	ChunksWritten int       `json:"chunks_written"`
	BytesWritten  int64     `json:"bytes_written"`
	StartedAt     time.Time `json:"started_at"`
	LastWriteAt   time.Time `json:"last_write_at"`
}

// Config configures a Store.
type Config struct {
	// BaseDir is the root of all reassembled files.
	BaseDir string
	// MaxFileBytes caps the declared length of one upload. Zero disables it.
	MaxFileBytes int64
	Logger       *zerolog.Logger
}

type session struct {
	mu     sync.Mutex
	info   SessionInfo
	file   *os.File
	span   trace.Span
	closed bool
}

type shard struct {
	mu sync.RWMutex
	m  map[string]*session
}

// Store tracks upload sessions by device key. Different keys proceed in
// parallel; chunks of one key are serialized by the session mutex.
type Store struct {
	base     string
	maxBytes atomic.Int64
	shards   [shardCount]shard
	active   atomic.Int64
	logger   zerolog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewStore creates an empty store.
func NewStore(cfg Config) *Store {
	s := &Store{
		base:   cfg.BaseDir,
		tracer: telemetry.Tracer("audiocenter/upload"),
		now:    time.Now,
	}
	s.maxBytes.Store(cfg.MaxFileBytes)
	if cfg.Logger != nil {
		s.logger = cfg.Logger.With().Str(xglog.FieldComponent, "upload").Logger()
	} else {
		s.logger = xglog.WithComponent("upload")
	}
	for i := range s.shards {
		s.shards[i].m = make(map[string]*session)
	}
	return s
}

// BaseDir returns the upload root.
func (s *Store) BaseDir() string { return s.base }

// SetMaxFileBytes changes the size cap for sessions started afterwards.
func (s *Store) SetMaxFileBytes(n int64) { s.maxBytes.Store(n) }

// MaxFileBytes returns the current size cap.
func (s *Store) MaxFileBytes() int64 { return s.maxBytes.Load() }

// Start opens a session in memory. The file is created on the first chunk.
// ErrSessionExists leaves the existing session untouched.
func (s *Store) Start(ctx context.Context, req Request) (SessionInfo, error) {
	if err := s.validate(req); err != nil {
		metrics.IncUpload("rejected")
		return SessionInfo{}, err
	}
	local, err := LocalPath(s.base, req.DeviceName, req.SessionTag, req.RemotePath)
	if err != nil {
		metrics.IncUpload("rejected")
		return SessionInfo{}, err
	}

	now := s.now()
	sess := &session{info: SessionInfo{
		Key:         req.Key,
		ConnID:      req.ConnID,
		SessionTag:  req.SessionTag,
		RemotePath:  req.RemotePath,
		LocalPath:   local,
		TotalChunks: uint32(req.TotalChunks), // #nosec G115 -- bounded by validate
		TotalLength: uint32(req.TotalLength), // #nosec G115 -- bounded by validate
		StartedAt:   now,
		LastWriteAt: now,
	}}

	sh := s.shard(req.Key)
	sh.mu.Lock()
	if existing, ok := sh.m[req.Key]; ok {
		sh.mu.Unlock()
		s.logger.Warn().
			Str(xglog.FieldEvent, "upload.start_ignored").
			Str(xglog.FieldDeviceKey, req.Key).
			Str(xglog.FieldRemotePath, req.RemotePath).
			Str("active_remote_path", existing.remotePath()).
			Msg("upload already in progress for device")
		return SessionInfo{}, ErrSessionExists
	}
	// The span outlives ctx; only its parent is taken from the request.
	_, sess.span = s.tracer.Start(ctx, "upload.session", trace.WithAttributes(
		telemetry.UploadAttributes(req.Key, req.RemotePath, req.TotalChunks, req.TotalLength)...,
	))
	sh.m[req.Key] = sess
	sh.mu.Unlock()

	metrics.SetUploadSessionsActive(int(s.active.Add(1)))
	s.logger.Info().
		Str(xglog.FieldEvent, "upload.started").
		Str(xglog.FieldDeviceKey, req.Key).
		Str(xglog.FieldSessionTag, req.SessionTag).
		Str(xglog.FieldRemotePath, req.RemotePath).
		Str(xglog.FieldPath, local).
		Int64(xglog.FieldTotalChunks, req.TotalChunks).
		Int64("total_length", req.TotalLength).
		Msg("upload session started")
	return sess.info, nil
}

func (s *Store) validate(req Request) error {
	if req.Key == "" {
		return fmt.Errorf("%w: empty device key", ErrInvalidUpload)
	}
	if req.TotalChunks < 1 || req.TotalChunks > math.MaxUint32 {
		return fmt.Errorf("%w: chunks %d out of range", ErrInvalidUpload, req.TotalChunks)
	}
	if req.TotalLength < 0 || req.TotalLength > math.MaxUint32 {
		return fmt.Errorf("%w: length %d out of range", ErrInvalidUpload, req.TotalLength)
	}
	if limit := s.maxBytes.Load(); limit > 0 && req.TotalLength > limit {
		return fmt.Errorf("%w: %d > %d bytes", ErrFileTooLarge, req.TotalLength, limit)
	}
	return nil
}

// WriteChunk applies one chunk record to the key's session. A header that
// disagrees with the session, or a failed write, tears the session down and
// returns OutcomeFailed with the cause.
func (s *Store) WriteChunk(key string, c protocol.Chunk) (Outcome, error) {
	sh := s.shard(key)
	sh.mu.RLock()
	sess, ok := sh.m[key]
	sh.mu.RUnlock()
	if !ok {
		return OutcomeNoSession, nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return OutcomeNoSession, nil
	}

	if err := sess.check(c); err != nil {
		_ = s.finish(key, sess, endFailed, err)
		return OutcomeFailed, err
	}

	if sess.file == nil {
		f, err := openTruncated(s.base, sess.info.LocalPath)
		if err != nil {
			_ = s.finish(key, sess, endFailed, err)
			return OutcomeFailed, err
		}
		sess.file = f
	}
	if _, err := sess.file.WriteAt(c.Data, int64(c.Offset)); err != nil {
		err = fmt.Errorf("write chunk %d of %s: %w", c.ID, sess.info.LocalPath, err)
		_ = s.finish(key, sess, endFailed, err)
		return OutcomeFailed, err
	}

	sess.info.ChunksWritten++
	sess.info.BytesWritten += int64(len(c.Data))
	sess.info.LastWriteAt = s.now()
	metrics.AddUploadBytes(len(c.Data))
	s.logger.Debug().
		Str(xglog.FieldEvent, "upload.chunk_written").
		Str(xglog.FieldDeviceKey, key).
		Uint32(xglog.FieldChunkID, c.ID).
		Uint32(xglog.FieldTotalChunks, c.Total).
		Uint32("offset", c.Offset).
		Int("bytes", len(c.Data)).
		Msg("chunk written")

	if c.Last() {
		if err := s.finish(key, sess, endFinished, nil); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeFinished, nil
	}
	return OutcomeContinue, nil
}

func (sess *session) check(c protocol.Chunk) error {
	info := sess.info
	switch {
	case c.Total != info.TotalChunks || c.TotalLength != info.TotalLength:
		return fmt.Errorf("%w: chunk %d claims %d chunks/%d bytes, session has %d/%d",
			ErrIntegrity, c.ID, c.Total, c.TotalLength, info.TotalChunks, info.TotalLength)
	case c.ID < 1 || c.ID > info.TotalChunks:
		return fmt.Errorf("%w: chunk id %d outside 1..%d", ErrIntegrity, c.ID, info.TotalChunks)
	case uint64(c.Offset)+uint64(len(c.Data)) > uint64(info.TotalLength):
		return fmt.Errorf("%w: chunk %d ends at %d, past declared length %d",
			ErrIntegrity, c.ID, uint64(c.Offset)+uint64(len(c.Data)), info.TotalLength)
	}
	return nil
}

func (sess *session) remotePath() string {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.info.RemotePath
}

// openTruncated creates path after checking that no symlink under base
// redirects it elsewhere.
func openTruncated(base, path string) (*os.File, error) {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}
	confined, err := fsutil.ConfineRelPath(base, rel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}
	if err := os.MkdirAll(filepath.Dir(confined), 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	// #nosec G304 -- confined under the upload root above
	f, err := os.OpenFile(confined, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	return f, nil
}

// Terminal labels of a session, as logged and counted.
const (
	endFinished = "finished"
	endFailed   = "failed"
	endCanceled = "cancelled"
	endReaped   = "reaped"
)

// finish closes the file and removes the session. Callers hold sess.mu. A
// finished session whose file cannot be flushed ends as failed.
func (s *Store) finish(key string, sess *session, label string, cause error) error {
	if sess.closed {
		return nil
	}
	sess.closed = true

	var closeErr error
	if sess.file != nil {
		if label == endFinished {
			if err := sess.file.Sync(); err != nil {
				closeErr = fmt.Errorf("sync upload file: %w", err)
			}
		}
		if err := sess.file.Close(); err != nil && closeErr == nil {
			closeErr = fmt.Errorf("close upload file: %w", err)
		}
		sess.file = nil
	}
	if closeErr != nil && label == endFinished {
		label, cause = endFailed, closeErr
	}

	sh := s.shard(key)
	sh.mu.Lock()
	if sh.m[key] == sess {
		delete(sh.m, key)
	}
	sh.mu.Unlock()
	metrics.SetUploadSessionsActive(int(s.active.Add(-1)))
	metrics.IncUpload(label)

	if cause != nil {
		sess.span.RecordError(cause)
		sess.span.SetStatus(codes.Error, cause.Error())
	}
	sess.span.SetAttributes(
		attribute.Int64(telemetry.UploadBytesWrittenKey, sess.info.BytesWritten),
		attribute.String(telemetry.UploadOutcomeKey, label),
	)
	sess.span.End()

	var ev *zerolog.Event
	switch {
	case label == endFinished:
		ev = s.logger.Info()
	case label == endFailed && !errors.Is(cause, ErrIntegrity):
		ev = s.logger.Error()
	default:
		ev = s.logger.Warn()
	}
	ev.Err(cause).
		Str(xglog.FieldEvent, "upload."+label).
		Str(xglog.FieldDeviceKey, key).
		Str(xglog.FieldRemotePath, sess.info.RemotePath).
		Str(xglog.FieldPath, sess.info.LocalPath).
		Int("chunks_written", sess.info.ChunksWritten).
		Int64("bytes_written", sess.info.BytesWritten).
		Msg("upload session closed")
	return closeErr
}

// Cancel tears down the key's session, if any.
func (s *Store) Cancel(key string) bool {
	sh := s.shard(key)
	sh.mu.Lock()
	sess, ok := sh.m[key]
	if ok {
		delete(sh.m, key)
	}
	sh.mu.Unlock()
	if !ok {
		return false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	_ = s.finish(key, sess, endCanceled, nil)
	return true
}

// CancelOwned cancels key's session only if connID started it.
func (s *Store) CancelOwned(key string, connID uint64) bool {
	sh := s.shard(key)
	sh.mu.Lock()
	sess, ok := sh.m[key]
	if !ok || sess.info.ConnID != connID {
		sh.mu.Unlock()
		return false
	}
	delete(sh.m, key)
	sh.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	_ = s.finish(key, sess, endCanceled, nil)
	return true
}

// HasActiveSessions reports whether any upload is in flight.
func (s *Store) HasActiveSessions() bool { return s.active.Load() > 0 }

// Has reports whether key owns a session.
func (s *Store) Has(key string) bool {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	_, ok := sh.m[key]
	return ok
}

// Active returns a snapshot of all sessions, sorted by key.
func (s *Store) Active() []SessionInfo {
	var sessions []*session
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for _, sess := range sh.m {
			sessions = append(sessions, sess)
		}
		sh.mu.RUnlock()
	}
	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		sess.mu.Lock()
		if !sess.closed {
			out = append(out, sess.info)
		}
		sess.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Close cancels every session.
func (s *Store) Close() {
	for _, info := range s.Active() {
		s.Cancel(info.Key)
	}
}

func (s *Store) shard(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%shardCount]
}
