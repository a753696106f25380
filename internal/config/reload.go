// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	xglog "github.com/ManuGH/audiocenter/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 500 * time.Millisecond

// ConfigHolder holds configuration with atomic reloading capability.
// It provides thread-safe access to configuration and supports hot reloading
// from file, SIGHUP or a manual trigger via API.
type ConfigHolder struct {
	mu         sync.RWMutex
	current    AppConfig
	loader     *Loader
	configPath string
	watcher    *fsnotify.Watcher
	logger     zerolog.Logger

	reloadMu        sync.RWMutex
	reloadListeners []chan<- AppConfig
}

// NewConfigHolder creates a new configuration holder with initial config.
func NewConfigHolder(initial AppConfig, loader *Loader, configPath string) *ConfigHolder {
	return &ConfigHolder{
		current:         initial,
		loader:          loader,
		configPath:      configPath,
		logger:          xglog.WithComponent("config"),
		reloadListeners: make([]chan<- AppConfig, 0),
	}
}

// Get returns the current configuration (thread-safe read).
func (h *ConfigHolder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload reloads configuration from file and environment.
// If loading or validation fails, the old configuration is kept and an error is returned.
func (h *ConfigHolder) Reload(_ context.Context) error {
	h.logger.Info().Str("event", "config.reload_start").Msg("reloading configuration")

	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("event", "config.reload_failed").
			Msg("failed to load new configuration")
		return fmt.Errorf("load config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.current
	h.current = newCfg
	h.mu.Unlock()

	h.notifyListeners(newCfg)
	h.logChanges(oldCfg, newCfg)

	h.logger.Info().
		Str("event", "config.reload_success").
		Msg("configuration reloaded successfully")

	return nil
}

// StartWatcher starts watching the config file for changes.
// If configPath is empty, this is a no-op (config comes from ENV only).
func (h *ConfigHolder) StartWatcher(ctx context.Context) error {
	if h.configPath == "" {
		h.logger.Info().
			Str("event", "config.watcher_disabled").
			Msg("config file watcher disabled (using ENV-only configuration)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	if err := watcher.Add(h.configPath); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config file: %w", err)
	}
	h.watcher = watcher

	h.logger.Info().
		Str("event", "config.watcher_started").
		Str(xglog.FieldPath, h.configPath).
		Msg("watching config file for changes")

	go h.watchLoop(ctx, watcher)

	return nil
}

func (h *ConfigHolder) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str("event", "config.watcher_stopped").Msg("config watcher stopped")
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			// Write and Create cover in-place edits and editors that replace the file.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				h.logger.Debug().
					Str("event", "config.file_changed").
					Str("op", event.Op.String()).
					Msg("config file changed")

				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(reloadDebounce, func() {
					if err := h.Reload(ctx); err != nil {
						h.logger.Error().
							Err(err).
							Str("event", "config.auto_reload_failed").
							Msg("automatic config reload failed")
					}
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().
				Err(err).
				Str("event", "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// HandleSignals reloads on every signal received until ctx ends. The caller
// owns signal.Notify registration for the channel.
func (h *ConfigHolder) HandleSignals(ctx context.Context, sigs <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigs:
			if !ok {
				return
			}
			h.logger.Info().
				Str("event", "config.signal_reload").
				Str("signal", sig.String()).
				Msg("reload requested by signal")
			if err := h.Reload(ctx); err != nil {
				h.logger.Error().
					Err(err).
					Str("event", "config.signal_reload_failed").
					Msg("signal-triggered config reload failed")
			}
		}
	}
}

// Stop stops the config watcher (if running).
func (h *ConfigHolder) Stop() {
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
}

// RegisterListener registers a channel to receive config reload notifications.
// The channel will receive the new config whenever a reload succeeds.
// The caller is responsible for closing the channel.
func (h *ConfigHolder) RegisterListener(ch chan<- AppConfig) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	h.reloadListeners = append(h.reloadListeners, ch)
}

func (h *ConfigHolder) notifyListeners(newCfg AppConfig) {
	h.reloadMu.RLock()
	defer h.reloadMu.RUnlock()

	for _, ch := range h.reloadListeners {
		select {
		case ch <- newCfg:
		default:
			h.logger.Warn().
				Str("event", "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}

type fieldChange struct {
	name          string
	before, after string
}

// RestartRequiredChanges lists settings that differ between two configs and
// only take effect after a restart.
func RestartRequiredChanges(old, newCfg AppConfig) []string {
	changes := restartChanges(old, newCfg)
	names := make([]string, 0, len(changes))
	for _, c := range changes {
		names = append(names, c.name)
	}
	return names
}

func restartChanges(old, newCfg AppConfig) []fieldChange {
	candidates := []fieldChange{
		{"dataDir", old.DataDir, newCfg.DataDir},
		{"api.listenAddr", old.API.ListenAddr, newCfg.API.ListenAddr},
		{"api.rateLimit", fmt.Sprint(old.API.RateLimit), fmt.Sprint(newCfg.API.RateLimit)},
		{"metrics.listenAddr", old.Metrics.ListenAddr, newCfg.Metrics.ListenAddr},
		{"device", fmt.Sprint(old.Device), fmt.Sprint(newCfg.Device)},
		{"upload.staleAfter", old.Upload.StaleAfter.String(), newCfg.Upload.StaleAfter.String()},
		{"timesync", fmt.Sprint(old.Timesync), fmt.Sprint(newCfg.Timesync)},
		{"names.backend", old.Names.Backend, newCfg.Names.Backend},
		{"names.path", old.Names.Path, newCfg.Names.Path},
		{"names.redis.addr", old.Names.Redis.Addr, newCfg.Names.Redis.Addr},
		{"workers", fmt.Sprint(old.Workers), fmt.Sprint(newCfg.Workers)},
		{"events", fmt.Sprint(old.Events), fmt.Sprint(newCfg.Events)},
		{"telemetry", fmt.Sprint(old.Telemetry), fmt.Sprint(newCfg.Telemetry)},
	}
	var out []fieldChange
	for _, c := range candidates {
		if c.before != c.after {
			out = append(out, c)
		}
	}
	return out
}

// logChanges logs applied hot-reload changes and ignored restart-only changes.
func (h *ConfigHolder) logChanges(old, newCfg AppConfig) {
	if old.LogLevel != newCfg.LogLevel {
		h.logger.Info().
			Str("old", old.LogLevel).
			Str("new", newCfg.LogLevel).
			Msg("config changed: logLevel")
	}
	if old.Upload.MaxFileBytes != newCfg.Upload.MaxFileBytes {
		h.logger.Info().
			Int64("old", old.Upload.MaxFileBytes).
			Int64("new", newCfg.Upload.MaxFileBytes).
			Msg("config changed: upload.maxFileBytes")
	}
	for _, c := range restartChanges(old, newCfg) {
		h.logger.Warn().
			Str("event", "config.change_ignored").
			Str("field", c.name).
			Msg("config change requires restart; ignored until then")
	}
}
