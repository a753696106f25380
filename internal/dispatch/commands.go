// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dispatch

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/ManuGH/audiocenter/internal/device"
	xglog "github.com/ManuGH/audiocenter/internal/log"
	"github.com/ManuGH/audiocenter/internal/metrics"
	"github.com/ManuGH/audiocenter/internal/protocol"
	"github.com/ManuGH/audiocenter/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TargetAll addresses every eligible device.
const TargetAll = "ALL"

// UnboundedDuration records until stopped.
const UnboundedDuration = -1

var (
	captureActions  = []string{"start", "stop", "pause", "resume"}
	captureModes    = []string{"simple", "pro"}
	playbackActions = []string{"start", "stop", "pause", "resume"}
	playbackModes   = []string{"music", "voice"}

	fileNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// ValidFileName reports whether name is a plain file name devices accept.
func ValidFileName(name string) bool {
	return fileNamePattern.MatchString(name)
}

// CaptureCommand starts or controls recording on a device.
type CaptureCommand struct {
	Action   string `json:"action"`
	Mode     string `json:"mode"`
	Output   string `json:"output"`
	Duration int    `json:"duration"`
	Process  bool   `json:"process"`
	Forward  bool   `json:"forward"`
	Delete   bool   `json:"delete"`
	Ultra    bool   `json:"ultra"`
}

// Validate checks action, mode, output name and duration.
func (c CaptureCommand) Validate() error {
	if !slices.Contains(captureActions, c.Action) {
		return fmt.Errorf("%w: capture action %q", ErrInvalidArgument, c.Action)
	}
	if c.Action != "start" {
		return nil
	}
	if !slices.Contains(captureModes, c.Mode) {
		return fmt.Errorf("%w: capture mode %q", ErrInvalidArgument, c.Mode)
	}
	if !ValidFileName(c.Output) {
		return fmt.Errorf("%w: output name %q", ErrInvalidArgument, c.Output)
	}
	if c.Duration != UnboundedDuration && c.Duration <= 0 {
		return fmt.Errorf("%w: duration %d", ErrInvalidArgument, c.Duration)
	}
	return nil
}

// Request builds the wire request. Only start carries the full field set.
func (c CaptureCommand) Request() *protocol.Request {
	r := protocol.NewRequest(protocol.SubtypeCapture).Put("action", c.Action)
	if c.Action == "start" {
		r.Put("mode", c.Mode).
			Put("output", c.Output).
			Put("duration", c.Duration).
			Put("process", c.Process).
			Put("forward", c.Forward).
			Put("delete", c.Delete).
			Put("ultra", c.Ultra)
	}
	return r
}

// PlaybackCommand starts or controls playback on a device.
type PlaybackCommand struct {
	Action string `json:"action"`
	Mode   string `json:"mode"`
	Loop   bool   `json:"loop"`
	Input  string `json:"input"`
}

// Validate checks action, mode and input name.
func (c PlaybackCommand) Validate() error {
	if !slices.Contains(playbackActions, c.Action) {
		return fmt.Errorf("%w: playback action %q", ErrInvalidArgument, c.Action)
	}
	if c.Action != "start" {
		return nil
	}
	if !slices.Contains(playbackModes, c.Mode) {
		return fmt.Errorf("%w: playback mode %q", ErrInvalidArgument, c.Mode)
	}
	if !ValidFileName(c.Input) {
		return fmt.Errorf("%w: input name %q", ErrInvalidArgument, c.Input)
	}
	return nil
}

// Request builds the wire request.
func (c PlaybackCommand) Request() *protocol.Request {
	r := protocol.NewRequest(protocol.SubtypePlayback).Put("action", c.Action)
	if c.Action == "start" {
		r.Put("mode", c.Mode).Put("loop", c.Loop).Put("input", c.Input)
	}
	return r
}

// Results maps each targeted device key to its send error (nil on success).
type Results map[string]error

// Failed returns the keys whose send failed, sorted.
func (r Results) Failed() []string {
	var out []string
	for k, err := range r {
		if err != nil {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// Commander sends operator commands to devices.
type Commander struct {
	registry *device.Registry
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewCommander builds a Commander over the registry's bound connections.
func NewCommander(registry *device.Registry) *Commander {
	return &Commander{
		registry: registry,
		logger:   xglog.WithComponent("commander"),
		tracer:   telemetry.Tracer("audiocenter/dispatch"),
	}
}

// Send delivers one request to the connection bound to key.
func (c *Commander) Send(ctx context.Context, key string, req *protocol.Request) error {
	conn, ok := c.registry.Conn(key)
	if !ok {
		metrics.IncOutboundCommand(req.Name, "unavailable")
		return fmt.Errorf("%w: %s", ErrTargetUnavailable, key)
	}
	msg, err := req.Message()
	if err != nil {
		metrics.IncOutboundCommand(req.Name, "error")
		return err
	}
	if err := conn.Send(ctx, msg); err != nil {
		metrics.IncOutboundCommand(req.Name, "error")
		return fmt.Errorf("send %s to %s: %w", req.Name, key, err)
	}
	metrics.IncOutboundCommand(req.Name, "ok")
	c.logger.Info().
		Str(xglog.FieldEvent, "command.sent").
		Str(xglog.FieldDeviceKey, key).
		Str(xglog.FieldSubtype, req.Name).
		Msg("command sent")
	return nil
}

// targetFilter selects the eligible keys for TargetAll and gates single keys.
type targetFilter int

const (
	anyDevice targetFilter = iota
	captureEnabled
	playbackEnabled
)

// resolve expands target into device keys. A single key must be registered
// and, for capture/playback, have the capability enabled.
func (c *Commander) resolve(target string, filter targetFilter) (Results, []string) {
	target = strings.TrimSpace(target)
	if target == TargetAll {
		switch filter {
		case captureEnabled:
			return Results{}, c.registry.CaptureKeys()
		case playbackEnabled:
			return Results{}, c.registry.PlaybackKeys()
		default:
			return Results{}, c.registry.Keys()
		}
	}

	rec, ok := c.registry.Lookup(target)
	if !ok {
		return Results{target: fmt.Errorf("%w: %s", ErrTargetUnavailable, target)}, nil
	}
	switch {
	case filter == captureEnabled && !rec.Capabilities.Capture:
		return Results{target: fmt.Errorf("%w: capture on %s", ErrCapabilityDisabled, target)}, nil
	case filter == playbackEnabled && !rec.Capabilities.Playback:
		return Results{target: fmt.Errorf("%w: playback on %s", ErrCapabilityDisabled, target)}, nil
	}
	return Results{}, []string{target}
}

func (c *Commander) broadcast(ctx context.Context, target string, filter targetFilter, req *protocol.Request) (Results, error) {
	results, keys := c.resolve(target, filter)
	ctx, span := c.tracer.Start(ctx, "command."+req.Name, trace.WithAttributes(
		telemetry.CommandAttributes(req.Name, target, len(keys))...,
	))
	defer span.End()

	if len(keys) == 0 && len(results) == 0 {
		err := fmt.Errorf("%w: no eligible devices for %s", ErrTargetUnavailable, req.Name)
		span.SetStatus(codes.Error, err.Error())
		return results, err
	}
	for _, k := range keys {
		results[k] = c.Send(ctx, k, req)
	}
	if failed := results.Failed(); len(failed) > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d devices failed", len(failed), len(results)))
	}
	return results, nil
}

// Capture sends a capture command to target (a key or TargetAll, meaning
// every capture-enabled device).
func (c *Commander) Capture(ctx context.Context, target string, cmd CaptureCommand) (Results, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return c.broadcast(ctx, target, captureEnabled, cmd.Request())
}

// Playback sends a playback command to target (a key or TargetAll, meaning
// every playback-enabled device).
func (c *Commander) Playback(ctx context.Context, target string, cmd PlaybackCommand) (Results, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return c.broadcast(ctx, target, playbackEnabled, cmd.Request())
}

// Delete asks target to remove a remote file.
func (c *Commander) Delete(ctx context.Context, target, remotePath string) (Results, error) {
	if strings.TrimSpace(remotePath) == "" {
		return nil, fmt.Errorf("%w: empty filepath", ErrInvalidArgument)
	}
	req := protocol.NewRequest(protocol.SubtypeDelete).Put("filepath", remotePath)
	return c.broadcast(ctx, target, anyDevice, req)
}

// List asks target for its remote file list; answers arrive as responses.
func (c *Commander) List(ctx context.Context, target string) (Results, error) {
	return c.broadcast(ctx, target, anyDevice, protocol.NewRequest(protocol.SubtypeList))
}
