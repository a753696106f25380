// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package recording coordinates synchronized capture runs across every
// capture-enabled device.
package recording

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ManuGH/audiocenter/internal/dispatch"
	xglog "github.com/ManuGH/audiocenter/internal/log"
	"github.com/ManuGH/audiocenter/internal/opsink"
	"github.com/ManuGH/audiocenter/internal/protocol"
	"github.com/ManuGH/audiocenter/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultDuration is used when a run is started without a duration.
const DefaultDuration = 10

var (
	ErrNoDevices        = errors.New("no capture-enabled device accepted the run")
	ErrAlreadyRecording = errors.New("a recording run is already active")
	ErrNotRecording     = errors.New("no recording run is active")
)

// Capturer sends capture commands. *dispatch.Commander implements it.
type Capturer interface {
	Capture(ctx context.Context, target string, cmd dispatch.CaptureCommand) (dispatch.Results, error)
	Send(ctx context.Context, key string, req *protocol.Request) error
}

// Status describes the current or most recently stopped run.
type Status struct {
	Recording bool      `json:"is_recording"`
	SceneID   string    `json:"current_scene,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Duration  int       `json:"duration,omitempty"`
	Devices   []string  `json:"devices,omitempty"`
}

// Service owns at most one active run.
type Service struct {
	capturer Capturer
	bus      opsink.Bus
	logger   zerolog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	mu  sync.Mutex
	run *Status
}

// NewService creates a recording service. bus may be nil.
func NewService(capturer Capturer, bus opsink.Bus) *Service {
	return &Service{
		capturer: capturer,
		bus:      bus,
		logger:   xglog.WithComponent("recording"),
		tracer:   telemetry.Tracer("audiocenter/recording"),
		now:      time.Now,
	}
}

// Start sends capture start to every capture-enabled device. The run is
// active if at least one device accepted the command.
func (s *Service) Start(ctx context.Context, sceneID string, duration int) (Status, error) {
	if duration == 0 {
		duration = DefaultDuration
	}
	cmd := dispatch.CaptureCommand{
		Action:   "start",
		Mode:     "simple",
		Output:   sceneID,
		Duration: duration,
		Forward:  true,
		Ultra:    true,
	}
	if err := cmd.Validate(); err != nil {
		return Status{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		return s.snapshotLocked(), fmt.Errorf("%w: scene %s", ErrAlreadyRecording, s.run.SceneID)
	}

	runID := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "recording.start", trace.WithAttributes(
		telemetry.RecordingAttributes(runID, sceneID)...,
	))
	defer span.End()

	results, err := s.capturer.Capture(ctx, dispatch.TargetAll, cmd)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, dispatch.ErrTargetUnavailable) {
			return Status{}, ErrNoDevices
		}
		return Status{}, err
	}

	var accepted []string
	for key, sendErr := range results {
		if sendErr != nil {
			s.logger.Warn().Err(sendErr).
				Str(xglog.FieldDeviceKey, key).
				Str(xglog.FieldRunID, runID).
				Msg("device rejected recording start")
			continue
		}
		accepted = append(accepted, key)
	}
	if len(accepted) == 0 {
		err := fmt.Errorf("%w: all %d devices failed", ErrNoDevices, len(results))
		span.SetStatus(codes.Error, err.Error())
		return Status{}, err
	}
	slices.Sort(accepted)

	s.run = &Status{
		Recording: true,
		SceneID:   sceneID,
		RunID:     runID,
		StartedAt: s.now().UTC(),
		Duration:  duration,
		Devices:   accepted,
	}
	s.logger.Info().
		Str(xglog.FieldEvent, "recording.started").
		Str(xglog.FieldRunID, runID).
		Str("scene_id", sceneID).
		Int("duration", duration).
		Strs("devices", accepted).
		Msg("recording started")
	s.publish(ctx, opsink.TopicRecordingStarted, *s.run)

	return s.snapshotLocked(), nil
}

// Stop sends capture stop to the devices of the active run, regardless of
// their current capability flags. The run ends even if some devices have
// disconnected meanwhile.
func (s *Service) Stop(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return Status{}, ErrNotRecording
	}
	run := s.snapshotLocked()

	ctx, span := s.tracer.Start(ctx, "recording.stop", trace.WithAttributes(
		telemetry.RecordingAttributes(run.RunID, run.SceneID)...,
	))
	defer span.End()

	stop := dispatch.CaptureCommand{Action: "stop"}.Request()
	failed := 0
	for _, key := range run.Devices {
		if err := s.capturer.Send(ctx, key, stop); err != nil {
			failed++
			s.logger.Warn().Err(err).
				Str(xglog.FieldDeviceKey, key).
				Str(xglog.FieldRunID, run.RunID).
				Msg("device did not receive recording stop")
		}
	}
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d devices failed", failed, len(run.Devices)))
	}

	s.run = nil
	run.Recording = false
	s.logger.Info().
		Str(xglog.FieldEvent, "recording.stopped").
		Str(xglog.FieldRunID, run.RunID).
		Str("scene_id", run.SceneID).
		Dur("elapsed", s.now().Sub(run.StartedAt)).
		Msg("recording stopped")
	s.publish(ctx, opsink.TopicRecordingStopped, run)

	return run, nil
}

// Status reports the active run, or Recording=false when idle.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Service) snapshotLocked() Status {
	if s.run == nil {
		return Status{}
	}
	out := *s.run
	out.Devices = slices.Clone(s.run.Devices)
	return out
}

func (s *Service) publish(ctx context.Context, topic string, st Status) {
	if s.bus == nil {
		return
	}
	ev := opsink.NewEvent(topic, "", st.SceneID).
		With("run_id", st.RunID).
		With("devices", st.Devices)
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Debug().Err(err).Str("topic", topic).Msg("recording event not published")
	}
}
