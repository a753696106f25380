// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

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
	"github.com/ManuGH/audiocenter/internal/session"
	"github.com/ManuGH/audiocenter/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultCaptureMode is the capture mode of a schedule item.
	DefaultCaptureMode = "pro"
	// DefaultSettle is waited after each item before polling uploads.
	DefaultSettle = 2 * time.Second
	// DefaultPollInterval is the upload drain polling period.
	DefaultPollInterval = time.Second
)

var (
	ErrScheduleRunning = errors.New("a play-record schedule is already running")
	ErrNoSchedule      = errors.New("no play-record schedule is running")
	errSchedulerClosed = errors.New("scheduler closed")
)

// Player sends playback commands. *dispatch.Commander implements it.
type Player interface {
	Playback(ctx context.Context, target string, cmd dispatch.PlaybackCommand) (dispatch.Results, error)
}

// UploadWatcher reports in-flight uploads. *upload.Store implements it.
type UploadWatcher interface {
	HasActiveSessions() bool
}

// SessionTagger files uploads under a tag. *session.Manager implements it.
type SessionTagger interface {
	Open(tag string) error
	Close() (string, bool)
}

// SchedulerDeps are the collaborators of a Scheduler. Bus may be nil.
type SchedulerDeps struct {
	Capturer Capturer
	Player   Player
	Uploads  UploadWatcher
	Sessions SessionTagger
	Bus      opsink.Bus
}

// Plan describes one play-record batch: every input is played on Speaker
// while all capture-enabled devices record it.
type Plan struct {
	Session string   `json:"session"`
	Speaker string   `json:"speaker"`
	Inputs  []string `json:"inputs"`
	// Duration is the per-item capture length in seconds.
	Duration int    `json:"duration"`
	Mode     string `json:"mode,omitempty"`
	Process  bool   `json:"process,omitempty"`
	Ultra    bool   `json:"ultra,omitempty"`
	// Delay is waited once, in seconds, after the session is opened.
	Delay int `json:"delay,omitempty"`
}

func (p *Plan) normalize() error {
	if p.Mode == "" {
		p.Mode = DefaultCaptureMode
	}
	switch {
	case !session.ValidTag(p.Session):
		return fmt.Errorf("%w: session tag %q", dispatch.ErrInvalidArgument, p.Session)
	case p.Speaker == "":
		return fmt.Errorf("%w: speaker is required", dispatch.ErrInvalidArgument)
	case len(p.Inputs) == 0:
		return fmt.Errorf("%w: at least one input is required", dispatch.ErrInvalidArgument)
	case p.Duration <= 0:
		return fmt.Errorf("%w: duration %d", dispatch.ErrInvalidArgument, p.Duration)
	case p.Delay < 0:
		return fmt.Errorf("%w: delay %d", dispatch.ErrInvalidArgument, p.Delay)
	}
	for _, in := range p.Inputs {
		if err := p.capture(in).Validate(); err != nil {
			return err
		}
		if err := playback(in).Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plan) capture(input string) dispatch.CaptureCommand {
	return dispatch.CaptureCommand{
		Action:   "start",
		Mode:     p.Mode,
		Output:   input,
		Duration: p.Duration,
		Process:  p.Process,
		Forward:  true,
		Delete:   true,
		Ultra:    p.Ultra,
	}
}

func playback(input string) dispatch.PlaybackCommand {
	return dispatch.PlaybackCommand{Action: "start", Mode: "music", Input: input}
}

// Progress describes the running or most recent schedule.
type Progress struct {
	Running    bool       `json:"running"`
	ID         string     `json:"id,omitempty"`
	Session    string     `json:"session,omitempty"`
	Speaker    string     `json:"speaker,omitempty"`
	Current    string     `json:"current,omitempty"`
	Done       int        `json:"done"`
	Total      int        `json:"total"`
	StartedAt  time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Scheduler runs at most one play-record schedule in the background.
type Scheduler struct {
	deps   SchedulerDeps
	logger zerolog.Logger
	tracer trace.Tracer
	now    func() time.Time

	// unit scales Duration and Delay; tests shrink it.
	unit   time.Duration
	settle time.Duration
	poll   time.Duration

	mu       sync.Mutex
	progress Progress
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool
}

// NewScheduler creates an idle scheduler.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	return &Scheduler{
		deps:   deps,
		logger: xglog.WithComponent("recording"),
		tracer: telemetry.Tracer("audiocenter/recording"),
		now:    time.Now,
		unit:   time.Second,
		settle: DefaultSettle,
		poll:   DefaultPollInterval,
	}
}

// Run validates plan and starts it. The schedule outlives ctx; only its
// trace parent is taken from it. Use Cancel to end it early.
func (s *Scheduler) Run(ctx context.Context, plan Plan) (Progress, error) {
	plan.Inputs = slices.Clone(plan.Inputs)
	if err := plan.normalize(); err != nil {
		return Progress{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Progress{}, errSchedulerClosed
	}
	if s.progress.Running {
		return s.progress, fmt.Errorf("%w: session %s", ErrScheduleRunning, s.progress.Session)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.progress = Progress{
		Running:   true,
		ID:        uuid.NewString(),
		Session:   plan.Session,
		Speaker:   plan.Speaker,
		Total:     len(plan.Inputs),
		StartedAt: s.now().UTC(),
	}
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.execute(runCtx, s.progress.ID, plan, s.done)
	return s.progress, nil
}

// Progress returns a snapshot of the current or last schedule.
func (s *Scheduler) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Cancel ends the running schedule and waits until its session is closed.
func (s *Scheduler) Cancel(ctx context.Context) (Progress, error) {
	s.mu.Lock()
	if !s.progress.Running {
		s.mu.Unlock()
		return Progress{}, ErrNoSchedule
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return s.Progress(), ctx.Err()
	}
	return s.Progress(), nil
}

// Close cancels any running schedule and refuses new ones.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	running := s.progress.Running
	s.mu.Unlock()
	if !running {
		return nil
	}
	if _, err := s.Cancel(ctx); err != nil && !errors.Is(err, ErrNoSchedule) {
		return err
	}
	return nil
}

func (s *Scheduler) execute(ctx context.Context, id string, plan Plan, done chan struct{}) {
	defer close(done)
	logger := s.logger.With().Str(xglog.FieldRunID, id).Str(xglog.FieldSessionTag, plan.Session).Logger()

	ctx, span := s.tracer.Start(ctx, "recording.play_record", trace.WithAttributes(
		telemetry.RecordingAttributes(id, plan.Session)...,
	))
	defer span.End()

	err := s.deps.Sessions.Open(plan.Session)
	if err == nil {
		logger.Info().
			Str(xglog.FieldEvent, "schedule.started").
			Str("speaker", plan.Speaker).
			Int("items", len(plan.Inputs)).
			Msg("play-record schedule started")
		err = s.items(ctx, logger, plan)
		if tag, ok := s.deps.Sessions.Close(); ok && tag != plan.Session {
			logger.Warn().Str("closed_tag", tag).Msg("session was replaced during the schedule")
		}
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	s.mu.Lock()
	finished := s.now().UTC()
	s.progress.Running = false
	s.progress.Current = ""
	s.progress.FinishedAt = &finished
	if err != nil {
		s.progress.Error = err.Error()
	}
	final := s.progress
	s.cancel()
	s.mu.Unlock()

	ev := logger.Info()
	if err != nil {
		ev = logger.Warn().Err(err)
	}
	ev.Str(xglog.FieldEvent, "schedule.finished").
		Int("done", final.Done).
		Int("total", final.Total).
		Msg("play-record schedule finished")
	s.publish(opsink.TopicScheduleFinished, final)
}

func (s *Scheduler) items(ctx context.Context, logger zerolog.Logger, plan Plan) error {
	if err := s.sleep(ctx, time.Duration(plan.Delay)*s.unit); err != nil {
		return err
	}
	for _, input := range plan.Inputs {
		s.update(func(p *Progress) { p.Current = input })

		results, err := s.deps.Capturer.Capture(ctx, dispatch.TargetAll, plan.capture(input))
		if err != nil {
			return fmt.Errorf("capture %s: %w", input, err)
		}
		for key, sendErr := range results {
			if sendErr != nil {
				logger.Warn().Err(sendErr).Str(xglog.FieldDeviceKey, key).Str("input", input).Msg("device missed capture start")
			}
		}
		played, err := s.deps.Player.Playback(ctx, plan.Speaker, playback(input))
		if err == nil {
			// A single speaker reports its own failure in the results.
			if failed := played.Failed(); len(failed) > 0 {
				err = played[failed[0]]
			}
		}
		if err != nil {
			return fmt.Errorf("play %s on %s: %w", input, plan.Speaker, err)
		}

		if err := s.sleep(ctx, time.Duration(plan.Duration)*s.unit+s.settle); err != nil {
			return err
		}
		if err := s.drain(ctx); err != nil {
			return err
		}
		progress := s.update(func(p *Progress) { p.Done++ })
		logger.Info().
			Str(xglog.FieldEvent, "schedule.progress").
			Str("input", input).
			Int("done", progress.Done).
			Int("total", progress.Total).
			Msg("schedule item finished")
		s.publish(opsink.TopicScheduleProgress, progress)
	}
	return nil
}

// drain waits until no upload is in flight.
func (s *Scheduler) drain(ctx context.Context) error {
	if !s.deps.Uploads.HasActiveSessions() {
		return nil
	}
	t := time.NewTicker(s.poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if !s.deps.Uploads.HasActiveSessions() {
				return nil
			}
		}
	}
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Scheduler) update(fn func(*Progress)) Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.progress)
	return s.progress
}

func (s *Scheduler) publish(topic string, p Progress) {
	if s.deps.Bus == nil {
		return
	}
	ev := opsink.NewEvent(topic, "", p.Session).
		With("schedule_id", p.ID).
		With("done", p.Done).
		With("total", p.Total)
	if p.Error != "" {
		ev = ev.With("error", p.Error)
	}
	if err := s.deps.Bus.Publish(context.Background(), ev); err != nil {
		s.logger.Debug().Err(err).Str("topic", topic).Msg("schedule event not published")
	}
}
