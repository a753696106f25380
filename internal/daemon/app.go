// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon runs the audio control-plane: the Manager owns the
// listeners and the shutdown hooks, the App owns everything that lives as
// long as the process (config reload, reaper, event sinks).
package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/audiocenter/internal/config"
	xglog "github.com/ManuGH/audiocenter/internal/log"
	"github.com/rs/zerolog"
)

// UploadLimiter receives the hot-reloadable upload size cap.
type UploadLimiter interface {
	SetMaxFileBytes(n int64)
}

// Task is a background loop that runs until its context ends.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// App owns the long-lived runtime lifecycle (watchers, reload wiring, sinks)
// and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	cfgHolder    *config.ConfigHolder
	uploads      UploadLimiter
	tasks        []Task
	reloadSignal os.Signal
	setLogLevel  func(string) error
}

// NewApp creates a new App orchestrator. cfgHolder and uploads may be nil.
func NewApp(logger zerolog.Logger, manager Manager, cfgHolder *config.ConfigHolder, uploads UploadLimiter) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		cfgHolder:    cfgHolder,
		uploads:      uploads,
		reloadSignal: syscall.SIGHUP,
		setLogLevel:  xglog.SetLevel,
	}
}

// AddTask registers a background loop. Task errors are logged, never fatal.
func (a *App) AddTask(name string, run func(ctx context.Context) error) {
	a.tasks = append(a.tasks, Task{Name: name, Run: run})
}

// Run starts all owned background subsystems and blocks until ctx is cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.cfgHolder != nil {
		// Config watcher is best-effort: startup should not fail if watcher cannot be started.
		if err := a.cfgHolder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str(xglog.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}
		defer a.cfgHolder.Stop()

		applyCh := make(chan config.AppConfig, 1)
		a.cfgHolder.RegisterListener(applyCh)
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-applyCh:
					a.applyConfig(cfg)
				}
			}
		})

		if a.reloadSignal != nil {
			g.Go(func() error {
				hupChan := make(chan os.Signal, 1)
				signal.Notify(hupChan, a.reloadSignal)
				defer signal.Stop(hupChan)
				a.cfgHolder.HandleSignals(ctx, hupChan)
				return nil
			})
		}
	}

	for _, t := range a.tasks {
		g.Go(func() error {
			if err := t.Run(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error().
					Err(err).
					Str(xglog.FieldEvent, "task.failed").
					Str("task", t.Name).
					Msg("background task stopped")
			}
			return nil
		})
	}

	// Main server lifecycle.
	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}

// applyConfig hot-applies the reloadable settings.
func (a *App) applyConfig(cfg config.AppConfig) {
	if err := a.setLogLevel(cfg.LogLevel); err != nil {
		a.logger.Warn().Err(err).Str("level", cfg.LogLevel).Msg("ignoring log level")
	}
	if a.uploads != nil {
		a.uploads.SetMaxFileBytes(cfg.Upload.MaxFileBytes)
	}
	a.logger.Info().
		Str(xglog.FieldEvent, "config.applied").
		Str("log_level", cfg.LogLevel).
		Int64("upload_max_bytes", cfg.Upload.MaxFileBytes).
		Msg("applied reloaded configuration")
}
