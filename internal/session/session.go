// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session holds the operator session tag that namespaces uploads.
package session

import (
	"errors"
	"regexp"
	"sync"
	"time"

	xglog "github.com/ManuGH/audiocenter/internal/log"
	"github.com/rs/zerolog"
)

// HistorySize is the number of opened tags remembered.
const HistorySize = 32

// ErrInvalidTag rejects tags that are not a single safe path component.
var ErrInvalidTag = errors.New("session: tag must match [a-zA-Z0-9._-]+")

var tagPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ValidTag reports whether tag can name a session directory.
func ValidTag(tag string) bool {
	return tagPattern.MatchString(tag) && tag != "." && tag != ".."
}

// Entry is one opened session.
type Entry struct {
	Tag      string     `json:"tag"`
	OpenedAt time.Time  `json:"opened_at"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

// Manager tracks the current tag. The zero value is not usable; use New.
type Manager struct {
	mu      sync.RWMutex
	current string
	history []Entry
	logger  zerolog.Logger
	now     func() time.Time
}

// New returns a manager with no open session.
func New() *Manager {
	return &Manager{
		logger: xglog.WithComponent("session"),
		now:    time.Now,
	}
}

// Open makes tag current, closing any previous session.
func (m *Manager) Open(tag string) error {
	if !ValidTag(tag) {
		return ErrInvalidTag
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.closeLocked(now)
	m.current = tag
	m.history = append(m.history, Entry{Tag: tag, OpenedAt: now})
	if len(m.history) > HistorySize {
		m.history = append([]Entry(nil), m.history[len(m.history)-HistorySize:]...)
	}
	m.logger.Info().Str(xglog.FieldEvent, "session.opened").Str(xglog.FieldSessionTag, tag).Msg("session opened")
	return nil
}

// Close clears the current tag and returns it. ok is false when no session
// was open.
func (m *Manager) Close() (tag string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tag = m.current
	if tag == "" {
		return "", false
	}
	m.closeLocked(m.now())
	m.logger.Info().Str(xglog.FieldEvent, "session.closed").Str(xglog.FieldSessionTag, tag).Msg("session closed")
	return tag, true
}

func (m *Manager) closeLocked(now time.Time) {
	if m.current == "" {
		return
	}
	if n := len(m.history); n > 0 && m.history[n-1].ClosedAt == nil {
		m.history[n-1].ClosedAt = &now
	}
	m.current = ""
}

// Current returns the open tag, or "".
func (m *Manager) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// History returns opened sessions, oldest first.
func (m *Manager) History() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, len(m.history))
	for i, e := range m.history {
		if e.ClosedAt != nil {
			closed := *e.ClosedAt
			e.ClosedAt = &closed
		}
		out[i] = e
	}
	return out
}
