// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied before the file and environment layers.
const (
	DefaultLogLevel       = "info"
	DefaultDataDir        = "audio"
	DefaultAPIListen      = ":8088"
	DefaultMetricsListen  = ":9090"
	DefaultDeviceListen   = ":6666"
	DefaultTimesyncListen = ":1123"
	DefaultMaxFrameBytes  = 64 * 1024
	DefaultMaxConnections = 256
	DefaultMaxFileBytes   = int64(2147483647)
	DefaultWorkerQueue    = 1024
	DefaultEventsBuffer   = 64
	DefaultNATSSubject    = "audiocenter.events"
	DefaultOTLPEndpoint   = "localhost:4317"
)

// Loader resolves an AppConfig from defaults, an optional YAML file and the environment.
type Loader struct {
	configPath string
	version    string

	// ConsumedEnvKeys records every AC_* key the last Load looked up and found set.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. An empty configPath means ENV and defaults only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// ConfigPath returns the file the loader reads, if any.
func (l *Loader) ConfigPath() string { return l.configPath }

func (l *Loader) envLookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if ok {
		l.ConsumedEnvKeys[key] = struct{}{}
	}
	return v, ok
}

func (l *Loader) envString(key, defaultVal string) string {
	l.envLookup(key)
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.envLookup(key)
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.envLookup(key)
	return ParseInt(key, defaultVal)
}

func (l *Loader) envInt64(key string, defaultVal int64) int64 {
	l.envLookup(key)
	return ParseInt64(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.envLookup(key)
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.envLookup(key)
	return ParseFloat(key, defaultVal)
}

// Load builds the configuration and validates it.
func (l *Loader) Load() (AppConfig, error) {
	l.ConsumedEnvKeys = make(map[string]struct{})

	cfg := Defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return AppConfig{}, fmt.Errorf("load config file %s: %w", l.configPath, err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	l.mergeEnvConfig(&cfg)

	if cfg.DataDir != "" {
		abs, err := filepath.Abs(cfg.DataDir)
		if err != nil {
			return AppConfig{}, fmt.Errorf("resolve data dir: %w", err)
		}
		cfg.DataDir = abs
	}
	cfg.Names.Path = cfg.NamesPath()

	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel: DefaultLogLevel,
		DataDir:  DefaultDataDir,
		API: APIConfig{
			ListenAddr: DefaultAPIListen,
			RateLimit: RateLimitConfig{
				Enabled:  true,
				Requests: 600,
				Window:   time.Minute,
			},
		},
		Metrics: MetricsConfig{ListenAddr: DefaultMetricsListen},
		Device: DeviceConfig{
			ListenAddr:     DefaultDeviceListen,
			MaxFrameBytes:  DefaultMaxFrameBytes,
			MaxConnections: DefaultMaxConnections,
			AcceptRate:     5,
			AcceptBurst:    10,
			WriteTimeout:   10 * time.Second,
		},
		Upload: UploadConfig{MaxFileBytes: DefaultMaxFileBytes},
		Timesync: TimesyncConfig{
			Enabled:    true,
			ListenAddr: DefaultTimesyncListen,
		},
		Names:   NamesConfig{Backend: "file"},
		Workers: WorkersConfig{QueueSize: DefaultWorkerQueue},
		Events: EventsConfig{
			Buffer: DefaultEventsBuffer,
			NATS:   NATSConfig{Subject: DefaultNATSSubject},
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     DefaultOTLPEndpoint,
			SamplingRate: 1.0,
		},
	}
}

// loadFile reads and strictly decodes a YAML configuration file.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, ErrMultipleDocuments
	}

	return &fileCfg, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *time.Duration) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

// mergeFileConfig overlays every key present in the file.
func mergeFileConfig(dst *AppConfig, src *FileConfig) {
	setString(&dst.LogLevel, src.LogLevel)
	setString(&dst.DataDir, src.DataDir)

	if a := src.API; a != nil {
		setString(&dst.API.ListenAddr, a.ListenAddr)
		if rl := a.RateLimit; rl != nil {
			setBool(&dst.API.RateLimit.Enabled, rl.Enabled)
			setInt(&dst.API.RateLimit.Requests, rl.Requests)
			setDuration(&dst.API.RateLimit.Window, rl.Window)
		}
	}
	if m := src.Metrics; m != nil {
		setString(&dst.Metrics.ListenAddr, m.ListenAddr)
	}
	if d := src.Device; d != nil {
		setString(&dst.Device.ListenAddr, d.ListenAddr)
		setInt(&dst.Device.MaxFrameBytes, d.MaxFrameBytes)
		setInt(&dst.Device.MaxConnections, d.MaxConnections)
		setFloat(&dst.Device.AcceptRate, d.AcceptRate)
		setInt(&dst.Device.AcceptBurst, d.AcceptBurst)
		setDuration(&dst.Device.WriteTimeout, d.WriteTimeout)
	}
	if u := src.Upload; u != nil {
		if u.MaxFileBytes != nil {
			dst.Upload.MaxFileBytes = *u.MaxFileBytes
		}
		setDuration(&dst.Upload.StaleAfter, u.StaleAfter)
	}
	if t := src.Timesync; t != nil {
		setBool(&dst.Timesync.Enabled, t.Enabled)
		setString(&dst.Timesync.ListenAddr, t.ListenAddr)
	}
	if n := src.Names; n != nil {
		setString(&dst.Names.Backend, n.Backend)
		setString(&dst.Names.Path, n.Path)
		if r := n.Redis; r != nil {
			setString(&dst.Names.Redis.Addr, r.Addr)
			setString(&dst.Names.Redis.Password, r.Password)
			setInt(&dst.Names.Redis.DB, r.DB)
		}
	}
	if w := src.Workers; w != nil {
		setInt(&dst.Workers.Size, w.Size)
		setInt(&dst.Workers.QueueSize, w.QueueSize)
	}
	if e := src.Events; e != nil {
		setInt(&dst.Events.Buffer, e.Buffer)
		if n := e.NATS; n != nil {
			setString(&dst.Events.NATS.URL, n.URL)
			setString(&dst.Events.NATS.Subject, n.Subject)
		}
	}
	if t := src.Telemetry; t != nil {
		setBool(&dst.Telemetry.Enabled, t.Enabled)
		setString(&dst.Telemetry.Exporter, t.Exporter)
		setString(&dst.Telemetry.Endpoint, t.Endpoint)
		setFloat(&dst.Telemetry.SamplingRate, t.SamplingRate)
	}
}

// mergeEnvConfig overlays AC_* environment variables. The current value acts
// as the default so unset keys leave file settings untouched.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = l.envString("AC_LOG_LEVEL", cfg.LogLevel)
	cfg.DataDir = l.envString("AC_DATA_DIR", cfg.DataDir)

	cfg.API.ListenAddr = l.envString("AC_API_LISTEN", cfg.API.ListenAddr)
	cfg.API.RateLimit.Enabled = l.envBool("AC_API_RATELIMIT_ENABLED", cfg.API.RateLimit.Enabled)
	cfg.API.RateLimit.Requests = l.envInt("AC_API_RATELIMIT_REQUESTS", cfg.API.RateLimit.Requests)
	cfg.API.RateLimit.Window = l.envDuration("AC_API_RATELIMIT_WINDOW", cfg.API.RateLimit.Window)

	// Empty explicitly disables the metrics listener, so ParseString's
	// empty-means-default rule does not apply here.
	if v, ok := l.envLookup("AC_METRICS_LISTEN"); ok {
		cfg.Metrics.ListenAddr = strings.TrimSpace(v)
	}

	cfg.Device.ListenAddr = l.envString("AC_DEVICE_LISTEN", cfg.Device.ListenAddr)
	cfg.Device.MaxFrameBytes = l.envInt("AC_DEVICE_MAX_FRAME_BYTES", cfg.Device.MaxFrameBytes)
	cfg.Device.MaxConnections = l.envInt("AC_DEVICE_MAX_CONNS", cfg.Device.MaxConnections)
	cfg.Device.AcceptRate = l.envFloat("AC_DEVICE_ACCEPT_RATE", cfg.Device.AcceptRate)
	cfg.Device.AcceptBurst = l.envInt("AC_DEVICE_ACCEPT_BURST", cfg.Device.AcceptBurst)
	cfg.Device.WriteTimeout = l.envDuration("AC_DEVICE_WRITE_TIMEOUT", cfg.Device.WriteTimeout)

	cfg.Upload.MaxFileBytes = l.envInt64("AC_UPLOAD_MAX_BYTES", cfg.Upload.MaxFileBytes)
	cfg.Upload.StaleAfter = l.envDuration("AC_UPLOAD_STALE_AFTER", cfg.Upload.StaleAfter)

	cfg.Timesync.Enabled = l.envBool("AC_TIMESYNC_ENABLED", cfg.Timesync.Enabled)
	cfg.Timesync.ListenAddr = l.envString("AC_TIMESYNC_LISTEN", cfg.Timesync.ListenAddr)

	cfg.Names.Backend = strings.ToLower(strings.TrimSpace(l.envString("AC_NAMES_BACKEND", cfg.Names.Backend)))
	cfg.Names.Path = l.envString("AC_NAMES_PATH", cfg.Names.Path)
	cfg.Names.Redis.Addr = l.envString("AC_NAMES_REDIS_ADDR", cfg.Names.Redis.Addr)
	cfg.Names.Redis.Password = l.envString("AC_NAMES_REDIS_PASSWORD", cfg.Names.Redis.Password)
	cfg.Names.Redis.DB = l.envInt("AC_NAMES_REDIS_DB", cfg.Names.Redis.DB)

	cfg.Workers.Size = l.envInt("AC_WORKERS", cfg.Workers.Size)
	cfg.Workers.QueueSize = l.envInt("AC_WORKER_QUEUE", cfg.Workers.QueueSize)

	cfg.Events.Buffer = l.envInt("AC_EVENTS_BUFFER", cfg.Events.Buffer)
	cfg.Events.NATS.URL = l.envString("AC_NATS_URL", cfg.Events.NATS.URL)
	cfg.Events.NATS.Subject = l.envString("AC_NATS_SUBJECT", cfg.Events.NATS.Subject)

	cfg.Telemetry.Enabled = l.envBool("AC_OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("AC_OTEL_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("AC_OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("AC_OTEL_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
