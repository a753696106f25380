// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration.
//
// Precedence is ENV (AC_*) over the YAML file over built-in defaults. The
// file is decoded strictly: unknown keys and multiple documents are errors.
package config

import (
	"path/filepath"
	"time"
)

// AppConfig is the fully resolved daemon configuration.
type AppConfig struct {
	Version  string
	LogLevel string
	// DataDir is the upload base directory and the home of the default name map.
	DataDir string

	API       APIConfig
	Metrics   MetricsConfig
	Device    DeviceConfig
	Upload    UploadConfig
	Timesync  TimesyncConfig
	Names     NamesConfig
	Workers   WorkersConfig
	Events    EventsConfig
	Telemetry TelemetryConfig
}

// APIConfig configures the operator REST surface.
type APIConfig struct {
	ListenAddr string
	RateLimit  RateLimitConfig
}

// RateLimitConfig bounds REST requests per client IP.
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

// MetricsConfig configures the Prometheus listener. An empty address disables it.
type MetricsConfig struct {
	ListenAddr string
}

// DeviceConfig configures the device TCP listener.
type DeviceConfig struct {
	ListenAddr     string
	MaxFrameBytes  int
	MaxConnections int
	AcceptRate     float64
	AcceptBurst    int
	WriteTimeout   time.Duration
}

// UploadConfig bounds device file uploads.
type UploadConfig struct {
	// MaxFileBytes caps a single upload. 0 means unlimited.
	MaxFileBytes int64
	// StaleAfter reaps sessions idle for longer. 0 disables the reaper.
	StaleAfter time.Duration
}

// TimesyncConfig configures the UDP time-sync responder.
type TimesyncConfig struct {
	Enabled    bool
	ListenAddr string
}

// NamesConfig selects the device name persistence backend.
type NamesConfig struct {
	Backend string
	Path    string
	Redis   RedisConfig
}

// RedisConfig is used by the redis name backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// WorkersConfig sizes the shared worker pool. Size 0 means 2×NumCPU.
type WorkersConfig struct {
	Size      int
	QueueSize int
}

// EventsConfig configures the operator event bus.
type EventsConfig struct {
	Buffer int
	NATS   NATSConfig
}

// NATSConfig enables forwarding of operator events to NATS when URL is set.
type NATSConfig struct {
	URL     string
	Subject string
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
}

// NamesPath returns the configured name map location, defaulting into DataDir.
func (c AppConfig) NamesPath() string {
	if c.Names.Path != "" {
		return c.Names.Path
	}
	switch c.Names.Backend {
	case "badger":
		return filepath.Join(c.DataDir, "id-names.badger")
	case "sqlite":
		return filepath.Join(c.DataDir, "id-names.sqlite")
	default:
		return filepath.Join(c.DataDir, "id-names")
	}
}

// FileConfig mirrors AppConfig for YAML decoding. Pointers distinguish an
// absent key from a zero value.
type FileConfig struct {
	LogLevel  *string              `yaml:"logLevel"`
	DataDir   *string              `yaml:"dataDir"`
	API       *FileAPIConfig       `yaml:"api"`
	Metrics   *FileMetricsConfig   `yaml:"metrics"`
	Device    *FileDeviceConfig    `yaml:"device"`
	Upload    *FileUploadConfig    `yaml:"upload"`
	Timesync  *FileTimesyncConfig  `yaml:"timesync"`
	Names     *FileNamesConfig     `yaml:"names"`
	Workers   *FileWorkersConfig   `yaml:"workers"`
	Events    *FileEventsConfig    `yaml:"events"`
	Telemetry *FileTelemetryConfig `yaml:"telemetry"`
}

type FileAPIConfig struct {
	ListenAddr *string              `yaml:"listenAddr"`
	RateLimit  *FileRateLimitConfig `yaml:"rateLimit"`
}

type FileRateLimitConfig struct {
	Enabled  *bool          `yaml:"enabled"`
	Requests *int           `yaml:"requests"`
	Window   *time.Duration `yaml:"window"`
}

type FileMetricsConfig struct {
	ListenAddr *string `yaml:"listenAddr"`
}

type FileDeviceConfig struct {
	ListenAddr     *string        `yaml:"listenAddr"`
	MaxFrameBytes  *int           `yaml:"maxFrameBytes"`
	MaxConnections *int           `yaml:"maxConnections"`
	AcceptRate     *float64       `yaml:"acceptRate"`
	AcceptBurst    *int           `yaml:"acceptBurst"`
	WriteTimeout   *time.Duration `yaml:"writeTimeout"`
}

type FileUploadConfig struct {
	MaxFileBytes *int64         `yaml:"maxFileBytes"`
	StaleAfter   *time.Duration `yaml:"staleAfter"`
}

type FileTimesyncConfig struct {
	Enabled    *bool   `yaml:"enabled"`
	ListenAddr *string `yaml:"listenAddr"`
}

type FileNamesConfig struct {
	Backend *string          `yaml:"backend"`
	Path    *string          `yaml:"path"`
	Redis   *FileRedisConfig `yaml:"redis"`
}

type FileRedisConfig struct {
	Addr     *string `yaml:"addr"`
	Password *string `yaml:"password"`
	DB       *int    `yaml:"db"`
}

type FileWorkersConfig struct {
	Size      *int `yaml:"size"`
	QueueSize *int `yaml:"queueSize"`
}

type FileEventsConfig struct {
	Buffer *int            `yaml:"buffer"`
	NATS   *FileNATSConfig `yaml:"nats"`
}

type FileNATSConfig struct {
	URL     *string `yaml:"url"`
	Subject *string `yaml:"subject"`
}

type FileTelemetryConfig struct {
	Enabled      *bool    `yaml:"enabled"`
	Exporter     *string  `yaml:"exporter"`
	Endpoint     *string  `yaml:"endpoint"`
	SamplingRate *float64 `yaml:"samplingRate"`
}
