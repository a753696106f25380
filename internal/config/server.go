// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// ListenAddr is the address to listen on (e.g., ":8088")
	ListenAddr string

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// Zero keeps the events websocket open indefinitely.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration

	// MaxHeaderBytes controls the maximum number of bytes the server will read parsing the request header
	MaxHeaderBytes int

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown
	ShutdownTimeout time.Duration
}

// ParseServerConfigForApp builds the REST server settings from the app config
// and the AC_SERVER_* environment variables.
func ParseServerConfigForApp(cfg AppConfig) ServerConfig {
	return ServerConfig{
		ListenAddr:      cfg.API.ListenAddr,
		ReadTimeout:     ParseDuration("AC_SERVER_READ_TIMEOUT", 60*time.Second),
		WriteTimeout:    ParseDuration("AC_SERVER_WRITE_TIMEOUT", 0),
		IdleTimeout:     ParseDuration("AC_SERVER_IDLE_TIMEOUT", 120*time.Second),
		MaxHeaderBytes:  ParseInt("AC_SERVER_MAX_HEADER_BYTES", 1<<20),
		ShutdownTimeout: ParseDuration("AC_SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}
