// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenClose(t *testing.T) {
	m := New()
	assert.Equal(t, "", m.Current())
	_, ok := m.Close()
	assert.False(t, ok)

	require.NoError(t, m.Open("scene-01"))
	assert.Equal(t, "scene-01", m.Current())

	require.NoError(t, m.Open("scene-02"))
	assert.Equal(t, "scene-02", m.Current())

	tag, ok := m.Close()
	assert.True(t, ok)
	assert.Equal(t, "scene-02", tag)
	assert.Equal(t, "", m.Current())

	h := m.History()
	require.Len(t, h, 2)
	assert.Equal(t, "scene-01", h[0].Tag)
	assert.NotNil(t, h[0].ClosedAt, "opening a new session closes the old one")
	assert.NotNil(t, h[1].ClosedAt)
}

func TestOpenRejectsInvalidTags(t *testing.T) {
	m := New()
	for _, tag := range []string{"", ".", "..", "a/b", "with space", "ü"} {
		assert.ErrorIs(t, m.Open(tag), ErrInvalidTag, "tag %q", tag)
	}
	assert.Empty(t, m.History())
}

func TestHistoryIsBounded(t *testing.T) {
	m := New()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	i := 0
	m.now = func() time.Time { i++; return base.Add(time.Duration(i) * time.Second) }

	for n := 0; n < HistorySize+5; n++ {
		require.NoError(t, m.Open(fmt.Sprintf("run-%02d", n)))
	}
	h := m.History()
	require.Len(t, h, HistorySize)
	assert.Equal(t, "run-05", h[0].Tag)
	assert.Equal(t, fmt.Sprintf("run-%02d", HistorySize+4), h[len(h)-1].Tag)
	assert.Nil(t, h[len(h)-1].ClosedAt)

	h[0].Tag = "mutated"
	assert.Equal(t, "run-05", m.History()[0].Tag)
}
