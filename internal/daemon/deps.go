// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"net/http"

	"github.com/ManuGH/audiocenter/internal/config"
	"github.com/rs/zerolog"
)

// Runner is a long-lived listener that serves until its context ends.
type Runner interface {
	Serve(ctx context.Context) error
}

// DeviceServer is the device TCP listener. Shutdown closes every link and
// waits for the readers.
type DeviceServer interface {
	Runner
	Shutdown(ctx context.Context) error
}

// Deps contains dependencies required by the daemon Manager.
// This allows for clean dependency injection and easier testing.
type Deps struct {
	// Logger is the structured logger for the daemon
	Logger zerolog.Logger

	// Config is the loaded application configuration
	Config config.AppConfig

	// APIHandler is the HTTP handler for the REST server
	APIHandler http.Handler

	// CloseStreams ends hijacked connections (event websockets) before the
	// REST server shuts down. Optional.
	CloseStreams func()

	// MetricsHandler is the HTTP handler for Prometheus metrics (if enabled)
	MetricsHandler http.Handler
	// MetricsAddr is the metrics listen address. Empty disables the server.
	MetricsAddr string

	// DeviceServer accepts device connections.
	DeviceServer DeviceServer

	// TimeSync is the UDP time-sync responder. Nil when disabled.
	TimeSync Runner
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	if d.DeviceServer == nil {
		return ErrMissingDeviceServer
	}
	// Config validation is done by config.Loader
	return nil
}
