// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/audiocenter/internal/config"
	"github.com/ManuGH/audiocenter/internal/daemon"
	"github.com/ManuGH/audiocenter/internal/health"
	xglog "github.com/ManuGH/audiocenter/internal/log"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	return parsedURL.String()
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Configure logger with safe defaults until config is loaded
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: serviceName,
		Version: version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Explicit --config wins; otherwise ${AC_DATA_DIR}/config.yaml is used when present.
	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		effectiveConfigPath = resolveDefaultConfigPath()
	}

	// Load configuration with precedence: ENV > File > Defaults
	loader := config.NewLoader(effectiveConfigPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: serviceName,
		Version: cfg.Version,
	})
	logger = xglog.WithComponent("daemon")

	source := "env+defaults"
	if effectiveConfigPath != "" {
		source = "file"
	}
	logger.Info().
		Str(xglog.FieldEvent, "config.loaded").
		Str("source", source).
		Str(xglog.FieldPath, effectiveConfigPath).
		Msg("loaded configuration")

	if err := health.PerformStartupChecks(cfg.DataDir); err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "startup.check_failed").
			Msg("startup checks failed, verify dataDir and permissions")
	}

	serverCfg := config.ParseServerConfigForApp(cfg)

	logger.Info().
		Str(xglog.FieldEvent, "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("api", serverCfg.ListenAddr).
		Str("device", cfg.Device.ListenAddr).
		Msg("starting audiocenter")
	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)
	logger.Info().Msgf("→ Names: %s (%s)", cfg.Names.Backend, cfg.Names.Path)
	if cfg.Timesync.Enabled {
		logger.Info().Msgf("→ Time sync: udp %s", cfg.Timesync.ListenAddr)
	}
	if cfg.Events.NATS.URL != "" {
		logger.Info().Msgf("→ NATS: %s (%s.*)", maskURL(cfg.Events.NATS.URL), cfg.Events.NATS.Subject)
	}
	if !cfg.API.RateLimit.Enabled {
		logger.Warn().Msg("→ REST rate limiting: disabled")
	}

	cfgHolder := config.NewConfigHolder(cfg, loader, effectiveConfigPath)

	rt, err := buildRuntime(ctx, cfg, cfgHolder)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "runtime.build_failed").
			Msg("failed to build runtime")
	}

	mgr, err := daemon.NewManager(serverCfg, rt.managerDeps(logger))
	if err != nil {
		rt.release(ctx)
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "manager.creation.failed").
			Msg("failed to create daemon manager")
	}
	rt.registerHooks(mgr)

	app := daemon.NewApp(logger, mgr, cfgHolder, rt.uploads)
	rt.addTasks(app)
	if err := app.Run(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "manager.failed").
			Msg("daemon app failed")
	}

	logger.Info().Msg("server exiting")
}
