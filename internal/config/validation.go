// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"math"

	"github.com/ManuGH/audiocenter/internal/telemetry"
	"github.com/ManuGH/audiocenter/internal/validate"
)

// maxFrameCeiling bounds a single device frame.
const maxFrameCeiling = 16 << 20

var nameBackends = []string{"file", "sqlite", "badger", "redis", "none"}

// Validate checks the resolved configuration and returns every problem at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("logLevel", "invalid log level (must be: debug, info, warn, error)", cfg.LogLevel)
	}
	v.Directory("dataDir", cfg.DataDir, false)

	v.ListenAddr("api.listenAddr", cfg.API.ListenAddr, true)
	if cfg.API.RateLimit.Enabled {
		v.Positive("api.rateLimit.requests", cfg.API.RateLimit.Requests)
		if cfg.API.RateLimit.Window <= 0 {
			v.AddError("api.rateLimit.window", "window must be positive", cfg.API.RateLimit.Window)
		}
	}
	if cfg.Metrics.ListenAddr != "" {
		v.ListenAddr("metrics.listenAddr", cfg.Metrics.ListenAddr, true)
	}

	v.ListenAddr("device.listenAddr", cfg.Device.ListenAddr, true)
	v.Range("device.maxFrameBytes", cfg.Device.MaxFrameBytes, 64, maxFrameCeiling)
	v.NonNegative("device.maxConnections", cfg.Device.MaxConnections)
	v.FloatRange("device.acceptRate", cfg.Device.AcceptRate, 0, math.MaxInt32)
	v.NonNegative("device.acceptBurst", cfg.Device.AcceptBurst)
	v.NonNegativeDuration("device.writeTimeout", cfg.Device.WriteTimeout)

	v.Custom("upload.maxFileBytes", cfg.Upload.MaxFileBytes, func(val interface{}) error {
		n := val.(int64)
		if n < 0 {
			return fmt.Errorf("cannot be negative")
		}
		if n > math.MaxUint32 {
			return fmt.Errorf("cannot exceed %d", uint64(math.MaxUint32))
		}
		return nil
	})
	v.NonNegativeDuration("upload.staleAfter", cfg.Upload.StaleAfter)

	if cfg.Timesync.Enabled {
		v.ListenAddr("timesync.listenAddr", cfg.Timesync.ListenAddr, true)
	}

	v.OneOf("names.backend", cfg.Names.Backend, nameBackends)
	if cfg.Names.Backend == "redis" {
		v.NotEmpty("names.redis.addr", cfg.Names.Redis.Addr)
		v.NonNegative("names.redis.db", cfg.Names.Redis.DB)
	}

	v.NonNegative("workers.size", cfg.Workers.Size)
	v.NonNegative("workers.queueSize", cfg.Workers.QueueSize)

	v.Positive("events.buffer", cfg.Events.Buffer)
	if cfg.Events.NATS.URL != "" {
		v.URL("events.nats.url", cfg.Events.NATS.URL, []string{"nats", "tls", "ws", "wss"})
		v.NotEmpty("events.nats.subject", cfg.Events.NATS.Subject)
	}

	if cfg.Telemetry.Enabled {
		if !telemetry.SupportedExporter(cfg.Telemetry.Exporter) {
			v.AddError("telemetry.exporter",
				fmt.Sprintf("unsupported exporter (must be: %s, %s)", telemetry.ExporterGRPC, telemetry.ExporterHTTP),
				cfg.Telemetry.Exporter)
		}
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
	}
	v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)

	return v.Err()
}
