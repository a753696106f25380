// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/audiocenter/internal/api"
	"github.com/ManuGH/audiocenter/internal/api/middleware"
	"github.com/ManuGH/audiocenter/internal/config"
	"github.com/ManuGH/audiocenter/internal/daemon"
	"github.com/ManuGH/audiocenter/internal/device"
	"github.com/ManuGH/audiocenter/internal/dispatch"
	"github.com/ManuGH/audiocenter/internal/health"
	xglog "github.com/ManuGH/audiocenter/internal/log"
	"github.com/ManuGH/audiocenter/internal/namestore"
	"github.com/ManuGH/audiocenter/internal/opsink"
	"github.com/ManuGH/audiocenter/internal/recording"
	"github.com/ManuGH/audiocenter/internal/server"
	"github.com/ManuGH/audiocenter/internal/session"
	"github.com/ManuGH/audiocenter/internal/telemetry"
	"github.com/ManuGH/audiocenter/internal/timesync"
	"github.com/ManuGH/audiocenter/internal/upload"
	"github.com/ManuGH/audiocenter/internal/workpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const serviceName = "audiocenter"

// runtime holds every long-lived component of one daemon process.
type runtime struct {
	cfg config.AppConfig

	telemetry *telemetry.Provider
	names     namestore.Store
	pool      *workpool.Pool
	registry  *device.Registry
	uploads   *upload.Store
	sessions  *session.Manager
	bus       *opsink.MemoryBus
	nc        *nats.Conn
	devices   *server.Server
	timesync  *timesync.Server
	health    *health.Manager
	schedules *recording.Scheduler
	api       *api.Server
}

// buildRuntime wires the components bottom-up. On error everything opened so
// far is released.
func buildRuntime(ctx context.Context, cfg config.AppConfig, reloader api.Reloader) (_ *runtime, err error) {
	rt := &runtime{cfg: cfg}
	defer func() {
		if err != nil {
			rt.release(context.WithoutCancel(ctx))
		}
	}()

	rt.telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		Environment:    config.ParseString("AC_ENVIRONMENT", "production"),
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	rt.names, err = namestore.Open(ctx, namestore.Config{
		Backend: cfg.Names.Backend,
		Path:    cfg.Names.Path,
		Redis: namestore.RedisConfig{
			Addr:     cfg.Names.Redis.Addr,
			Password: cfg.Names.Redis.Password,
			DB:       cfg.Names.Redis.DB,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("name store: %w", err)
	}

	rt.pool = workpool.New(workpool.Config{Workers: cfg.Workers.Size, QueueSize: cfg.Workers.QueueSize})
	rt.pool.Start()

	rt.uploads = upload.NewStore(upload.Config{BaseDir: cfg.DataDir, MaxFileBytes: cfg.Upload.MaxFileBytes})
	rt.sessions = session.New()
	rt.bus = opsink.NewMemoryBus(cfg.Events.Buffer)

	rt.registry = device.NewRegistry(device.Options{Store: rt.names, Pool: rt.pool, Sessions: rt.uploads})
	if err := rt.registry.LoadNames(ctx); err != nil {
		// The name map is a cache; devices still register as Unknown/Unknown.
		logger := xglog.WithComponent("daemon")
		logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "names.load_failed").
			Str(xglog.FieldPath, cfg.Names.Path).
			Msg("PersistenceWarning: could not load device names")
	}

	dispatcher, err := dispatch.New(dispatch.Deps{
		Registry: rt.registry,
		Uploads:  rt.uploads,
		Sessions: rt.sessions,
		Bus:      rt.bus,
		Pool:     rt.pool,
	})
	if err != nil {
		return nil, err
	}

	rt.devices, err = server.New(server.Config{
		ListenAddr:     cfg.Device.ListenAddr,
		MaxConnections: cfg.Device.MaxConnections,
		MaxFrameBytes:  cfg.Device.MaxFrameBytes,
		WriteTimeout:   cfg.Device.WriteTimeout,
		AcceptRate:     cfg.Device.AcceptRate,
		AcceptBurst:    cfg.Device.AcceptBurst,
	}, dispatcher)
	if err != nil {
		return nil, err
	}

	if cfg.Timesync.Enabled {
		rt.timesync = timesync.NewServer(cfg.Timesync.ListenAddr)
	}

	if cfg.Events.NATS.URL != "" {
		rt.nc, err = opsink.DialNATS(cfg.Events.NATS.URL)
		if err != nil {
			return nil, err
		}
	}

	rt.health = health.NewManager(cfg.Version)
	rt.health.RegisterChecker(health.NewDirChecker("data_dir", cfg.DataDir))
	rt.health.RegisterChecker(health.NewListenerChecker("device_listener", func() bool {
		return rt.devices.Addr() != nil
	}))
	if p, ok := rt.names.(namestore.Pinger); ok {
		rt.health.RegisterChecker(health.NewPingChecker("names_"+cfg.Names.Backend, p))
	}

	commander := dispatch.NewCommander(rt.registry)
	rt.schedules = recording.NewScheduler(recording.SchedulerDeps{
		Capturer: commander,
		Player:   commander,
		Uploads:  rt.uploads,
		Sessions: rt.sessions,
		Bus:      rt.bus,
	})
	apiCfg := api.Config{Version: cfg.Version}
	if cfg.API.RateLimit.Enabled {
		apiCfg.RateLimit = &middleware.RateLimitConfig{
			RequestLimit: cfg.API.RateLimit.Requests,
			WindowSize:   cfg.API.RateLimit.Window,
		}
	}
	if cfg.Telemetry.Enabled {
		apiCfg.TracingService = serviceName
	}
	rt.api, err = api.New(apiCfg, api.Deps{
		Registry:  rt.registry,
		Commander: commander,
		Uploads:   rt.uploads,
		Sessions:  rt.sessions,
		Recording: recording.NewService(commander, rt.bus),
		Schedules: rt.schedules,
		Health:    rt.health,
		Bus:       rt.bus,
		Reloader:  reloader,
	})
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// managerDeps describes the listeners to the daemon manager.
func (rt *runtime) managerDeps(logger zerolog.Logger) daemon.Deps {
	deps := daemon.Deps{
		Logger:         logger,
		Config:         rt.cfg,
		APIHandler:     rt.api.Handler(),
		CloseStreams:   rt.api.Close,
		MetricsHandler: promhttp.Handler(),
		MetricsAddr:    rt.cfg.Metrics.ListenAddr,
		DeviceServer:   rt.devices,
	}
	if rt.timesync != nil {
		deps.TimeSync = rt.timesync
	}
	return deps
}

// registerHooks registers cleanup so that LIFO execution cancels schedules
// first, then stops the pool, and flushes telemetry last.
func (rt *runtime) registerHooks(mgr daemon.Manager) {
	mgr.RegisterShutdownHook("telemetry", rt.telemetry.Shutdown)
	mgr.RegisterShutdownHook("names", func(context.Context) error { return rt.names.Close() })
	mgr.RegisterShutdownHook("uploads", func(context.Context) error {
		rt.uploads.Close()
		return nil
	})
	if rt.nc != nil {
		mgr.RegisterShutdownHook("nats", func(context.Context) error { return rt.nc.Drain() })
	}
	mgr.RegisterShutdownHook("workpool", func(context.Context) error {
		rt.pool.Stop()
		return nil
	})
	mgr.RegisterShutdownHook("schedules", rt.schedules.Close)
}

// addTasks registers the background loops owned by the app.
func (rt *runtime) addTasks(app *daemon.App) {
	if rt.cfg.Upload.StaleAfter > 0 {
		app.AddTask("upload_reaper", func(ctx context.Context) error {
			return rt.uploads.RunReaper(ctx, rt.cfg.Upload.StaleAfter)
		})
	}
	app.AddTask("log_sink", opsink.NewLogSink(rt.bus).Run)
	if rt.nc != nil {
		app.AddTask("nats_forwarder", opsink.NewNATSForwarder(rt.bus, rt.nc, rt.cfg.Events.NATS.Subject).Run)
	}
}

// release undoes a partial buildRuntime.
func (rt *runtime) release(ctx context.Context) {
	var errs []error
	if rt.nc != nil {
		rt.nc.Close()
	}
	if rt.pool != nil {
		rt.pool.Stop()
	}
	if rt.uploads != nil {
		rt.uploads.Close()
	}
	if rt.names != nil {
		errs = append(errs, rt.names.Close())
	}
	if rt.telemetry != nil {
		errs = append(errs, rt.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		logger := xglog.WithComponent("daemon")
		logger.Warn().Err(err).Msg("cleanup after failed startup")
	}
}
