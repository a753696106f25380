// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package upload

import (
	"context"
	"errors"
	"time"

	xglog "github.com/ManuGH/audiocenter/internal/log"
)

var errStalled = errors.New("upload: session stalled")

// RunReaper cancels sessions without a write for staleAfter. It returns nil
// immediately when staleAfter is not positive, else when ctx is done.
func (s *Store) RunReaper(ctx context.Context, staleAfter time.Duration) error {
	if staleAfter <= 0 {
		return nil
	}
	interval := staleAfter / 2
	if interval < time.Second {
		interval = time.Second
	}
	s.logger.Info().
		Str(xglog.FieldEvent, "upload.reaper_started").
		Dur("stale_after", staleAfter).
		Msg("stale upload reaper running")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.ReapStale(staleAfter)
		}
	}
}

// ReapStale cancels every session idle for at least staleAfter and returns
// how many were removed.
func (s *Store) ReapStale(staleAfter time.Duration) int {
	cutoff := s.now().Add(-staleAfter)
	reaped := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		var candidates []string
		for key := range sh.m {
			candidates = append(candidates, key)
		}
		sh.mu.RUnlock()

		for _, key := range candidates {
			if s.reapIfStale(sh, key, cutoff) {
				reaped++
			}
		}
	}
	return reaped
}

func (s *Store) reapIfStale(sh *shard, key string, cutoff time.Time) bool {
	sh.mu.RLock()
	sess, ok := sh.m[key]
	sh.mu.RUnlock()
	if !ok {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed || sess.info.LastWriteAt.After(cutoff) {
		return false
	}
	_ = s.finish(key, sess, endReaped, errStalled)
	return true
}
