// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/ManuGH/audiocenter/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureCommandValidate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     CaptureCommand
		wantErr bool
	}{
		{"start ok", CaptureCommand{Action: "start", Mode: "simple", Output: "take_1.wav", Duration: 30}, false},
		{"start unbounded", CaptureCommand{Action: "start", Mode: "pro", Output: "a", Duration: UnboundedDuration}, false},
		{"stop needs nothing", CaptureCommand{Action: "stop"}, false},
		{"pause", CaptureCommand{Action: "pause"}, false},
		{"bad action", CaptureCommand{Action: "record"}, true},
		{"bad mode", CaptureCommand{Action: "start", Mode: "studio", Output: "a", Duration: 1}, true},
		{"bad output", CaptureCommand{Action: "start", Mode: "simple", Output: "../etc/passwd", Duration: 1}, true},
		{"empty output", CaptureCommand{Action: "start", Mode: "simple", Duration: 1}, true},
		{"zero duration", CaptureCommand{Action: "start", Mode: "simple", Output: "a", Duration: 0}, true},
		{"negative duration", CaptureCommand{Action: "start", Mode: "simple", Output: "a", Duration: -5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArgument)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPlaybackCommandValidate(t *testing.T) {
	assert.NoError(t, PlaybackCommand{Action: "start", Mode: "music", Input: "song.mp3", Loop: true}.Validate())
	assert.NoError(t, PlaybackCommand{Action: "resume"}.Validate())
	assert.ErrorIs(t, PlaybackCommand{Action: "start", Mode: "radio", Input: "a"}.Validate(), ErrInvalidArgument)
	assert.ErrorIs(t, PlaybackCommand{Action: "start", Mode: "voice", Input: "a b"}.Validate(), ErrInvalidArgument)
	assert.ErrorIs(t, PlaybackCommand{Action: ""}.Validate(), ErrInvalidArgument)
}

func TestCaptureRequestFields(t *testing.T) {
	start := CaptureCommand{Action: "start", Mode: "simple", Output: "a.wav", Duration: 10, Forward: true, Ultra: true}.Request()
	assert.Equal(t, "capture", start.Name)
	assert.Equal(t, "simple", start.Data["mode"])
	assert.Equal(t, true, start.Data["forward"])
	assert.Equal(t, false, start.Data["process"])
	assert.Len(t, start.Data, 8)

	stop := CaptureCommand{Action: "stop", Mode: "simple"}.Request()
	assert.Equal(t, map[string]any{"action": "stop"}, stop.Data)
}

func decodeRequest(t *testing.T, m protocol.Message) *protocol.Request {
	t.Helper()
	require.Equal(t, protocol.TypeRequest, m.Type)
	req, err := protocol.ParseRequest(m.Payload)
	require.NoError(t, err)
	return req
}

func TestCaptureAllTargetsCaptureEnabledDevices(t *testing.T) {
	h := newHarness(t)
	a := newFakeConn("192.168.1.10:40000")
	b := newFakeConn("192.168.1.11:40000")
	sa := h.d.Connect(context.Background(), a)
	sb := h.d.Connect(context.Background(), b)
	require.True(t, h.registry.SetCapability(sb.Key(), "capture", "off"))

	c := NewCommander(h.registry)
	results, err := c.Capture(context.Background(), TargetAll, CaptureCommand{Action: "stop"})
	require.NoError(t, err)
	assert.Equal(t, Results{sa.Key(): nil}, results)

	req := decodeRequest(t, a.next(t))
	assert.Equal(t, protocol.SubtypeCapture, req.Kind())
	assert.Equal(t, "stop", req.Data["action"])
	b.expectQuiet(t)
}

func TestCaptureSingleTarget(t *testing.T) {
	h := newHarness(t)
	a := newFakeConn("192.168.1.10:40000")
	sa := h.d.Connect(context.Background(), a)
	c := NewCommander(h.registry)

	results, err := c.Capture(context.Background(), "deadbeef", CaptureCommand{Action: "stop"})
	require.NoError(t, err)
	assert.ErrorIs(t, results["deadbeef"], ErrTargetUnavailable)

	require.True(t, h.registry.SetCapability(sa.Key(), "capture", "off"))
	results, err = c.Capture(context.Background(), sa.Key(), CaptureCommand{Action: "stop"})
	require.NoError(t, err)
	assert.ErrorIs(t, results[sa.Key()], ErrCapabilityDisabled)
	assert.Equal(t, []string{sa.Key()}, results.Failed())
	a.expectQuiet(t)
}

func TestPlaybackRequiresEnabledDevices(t *testing.T) {
	h := newHarness(t)
	a := newFakeConn("192.168.1.10:40000")
	sa := h.d.Connect(context.Background(), a)
	c := NewCommander(h.registry)
	cmd := PlaybackCommand{Action: "start", Mode: "music", Input: "song.mp3"}

	_, err := c.Playback(context.Background(), TargetAll, cmd)
	assert.ErrorIs(t, err, ErrTargetUnavailable, "playback is off by default")

	require.True(t, h.registry.SetCapability(sa.Key(), "all", "on"))
	results, err := c.Playback(context.Background(), TargetAll, cmd)
	require.NoError(t, err)
	assert.Empty(t, results.Failed())

	req := decodeRequest(t, a.next(t))
	assert.Equal(t, protocol.SubtypePlayback, req.Kind())
	assert.Equal(t, "song.mp3", req.Data["input"])
	assert.Equal(t, false, req.Data["loop"])
}

func TestInvalidCommandSendsNothing(t *testing.T) {
	h := newHarness(t)
	a := newFakeConn("192.168.1.10:40000")
	h.d.Connect(context.Background(), a)
	c := NewCommander(h.registry)

	_, err := c.Capture(context.Background(), TargetAll, CaptureCommand{Action: "start", Mode: "simple", Output: "a", Duration: 0})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = c.Delete(context.Background(), TargetAll, "  ")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	a.expectQuiet(t)
}

func TestDeleteAndList(t *testing.T) {
	h := newHarness(t)
	a := newFakeConn("192.168.1.10:40000")
	sa := h.d.Connect(context.Background(), a)
	// Capability flags gate capture and playback only.
	require.True(t, h.registry.SetCapability(sa.Key(), "all", "off"))
	c := NewCommander(h.registry)

	_, err := c.Delete(context.Background(), sa.Key(), "/sdcard/old.wav")
	require.NoError(t, err)
	req := decodeRequest(t, a.next(t))
	assert.Equal(t, protocol.SubtypeDelete, req.Kind())
	assert.Equal(t, "/sdcard/old.wav", req.Data["filepath"])

	_, err = c.List(context.Background(), TargetAll)
	require.NoError(t, err)
	req = decodeRequest(t, a.next(t))
	assert.Equal(t, protocol.SubtypeList, req.Kind())
}

func TestSendErrors(t *testing.T) {
	h := newHarness(t)
	a := newFakeConn("192.168.1.10:40000")
	sa := h.d.Connect(context.Background(), a)
	c := NewCommander(h.registry)

	err := c.Send(context.Background(), "00000000", protocol.NewRequest(protocol.SubtypeList))
	assert.ErrorIs(t, err, ErrTargetUnavailable)

	a.sendErr = errors.New("connection reset")
	results, err := c.List(context.Background(), sa.Key())
	require.NoError(t, err)
	assert.Error(t, results[sa.Key()])

	sa.Disconnect()
	_, err = c.List(context.Background(), TargetAll)
	assert.ErrorIs(t, err, ErrTargetUnavailable)
}
