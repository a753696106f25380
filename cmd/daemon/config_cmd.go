// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/audiocenter/internal/config"
	"gopkg.in/yaml.v3"
)

func runConfigCLI(args []string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage()
		return 0
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:])
	case "dump":
		return runConfigDump(args[1:], os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage()
		return 2
	}
}

func printConfigUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  audiocenter config validate [--file|-f config.yaml]")
	fmt.Fprintln(os.Stderr, "  audiocenter config dump --effective [--file|-f config.yaml] [--format=yaml|json]")
}

// resolveDefaultConfigPath returns ${AC_DATA_DIR}/config.yaml if it exists.
func resolveDefaultConfigPath() string {
	dataDir := strings.TrimSpace(os.Getenv("AC_DATA_DIR"))
	if dataDir == "" {
		dataDir = config.Defaults().DataDir
	}
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath
	}
	return ""
}

func runConfigValidate(args []string) int {
	fs := flag.NewFlagSet("audiocenter config validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var file string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	configPath := strings.TrimSpace(file)
	if configPath == "" {
		configPath = resolveDefaultConfigPath()
	}
	if configPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --file is required (no config.yaml found in $AC_DATA_DIR)")
		return 2
	}

	loader := config.NewLoader(configPath, version)
	if _, err := loader.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error in %s:\n  %v\n", configPath, err)
		return 1
	}

	fmt.Printf("✓ %s is valid\n", configPath)
	return 0
}

func runConfigDump(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("audiocenter config dump", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var file string
	var format string
	var effective bool

	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	fs.StringVar(&format, "format", "yaml", "output format: yaml or json")
	fs.BoolVar(&effective, "effective", false, "dump effective configuration (defaults + file + env)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if !effective {
		fmt.Fprintln(os.Stderr, "Error: --effective is required")
		return 2
	}

	configPath := strings.TrimSpace(file)
	if configPath == "" {
		configPath = resolveDefaultConfigPath()
	}

	// An empty path dumps defaults + env.
	loader := config.NewLoader(configPath, version)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error in %s:\n  %v\n", configPath, err)
		return 1
	}

	fileCfg := fileConfigFromAppConfig(cfg)
	redactFileConfigSecrets(&fileCfg)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(fileCfg); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode YAML: %v\n", err)
			return 1
		}
		_ = enc.Close()
		return 0
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(fileCfg); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unsupported format: %s (use yaml or json)\n", format)
		return 2
	}
}

func ptr[T any](v T) *T { return &v }

// fileConfigFromAppConfig renders every resolved setting, so the dump loads
// back to the same AppConfig.
func fileConfigFromAppConfig(cfg config.AppConfig) config.FileConfig {
	return config.FileConfig{
		LogLevel: ptr(cfg.LogLevel),
		DataDir:  ptr(cfg.DataDir),
		API: &config.FileAPIConfig{
			ListenAddr: ptr(cfg.API.ListenAddr),
			RateLimit: &config.FileRateLimitConfig{
				Enabled:  ptr(cfg.API.RateLimit.Enabled),
				Requests: ptr(cfg.API.RateLimit.Requests),
				Window:   ptr(cfg.API.RateLimit.Window),
			},
		},
		Metrics: &config.FileMetricsConfig{ListenAddr: ptr(cfg.Metrics.ListenAddr)},
		Device: &config.FileDeviceConfig{
			ListenAddr:     ptr(cfg.Device.ListenAddr),
			MaxFrameBytes:  ptr(cfg.Device.MaxFrameBytes),
			MaxConnections: ptr(cfg.Device.MaxConnections),
			AcceptRate:     ptr(cfg.Device.AcceptRate),
			AcceptBurst:    ptr(cfg.Device.AcceptBurst),
			WriteTimeout:   ptr(cfg.Device.WriteTimeout),
		},
		Upload: &config.FileUploadConfig{
			MaxFileBytes: ptr(cfg.Upload.MaxFileBytes),
			StaleAfter:   ptr(cfg.Upload.StaleAfter),
		},
		Timesync: &config.FileTimesyncConfig{
			Enabled:    ptr(cfg.Timesync.Enabled),
			ListenAddr: ptr(cfg.Timesync.ListenAddr),
		},
		Names: &config.FileNamesConfig{
			Backend: ptr(cfg.Names.Backend),
			Path:    ptr(cfg.Names.Path),
			Redis: &config.FileRedisConfig{
				Addr:     ptr(cfg.Names.Redis.Addr),
				Password: ptr(cfg.Names.Redis.Password),
				DB:       ptr(cfg.Names.Redis.DB),
			},
		},
		Workers: &config.FileWorkersConfig{
			Size:      ptr(cfg.Workers.Size),
			QueueSize: ptr(cfg.Workers.QueueSize),
		},
		Events: &config.FileEventsConfig{
			Buffer: ptr(cfg.Events.Buffer),
			NATS: &config.FileNATSConfig{
				URL:     ptr(cfg.Events.NATS.URL),
				Subject: ptr(cfg.Events.NATS.Subject),
			},
		},
		Telemetry: &config.FileTelemetryConfig{
			Enabled:      ptr(cfg.Telemetry.Enabled),
			Exporter:     ptr(cfg.Telemetry.Exporter),
			Endpoint:     ptr(cfg.Telemetry.Endpoint),
			SamplingRate: ptr(cfg.Telemetry.SamplingRate),
		},
	}
}

func redactFileConfigSecrets(cfg *config.FileConfig) {
	if cfg == nil {
		return
	}
	if n := cfg.Names; n != nil && n.Redis != nil && n.Redis.Password != nil && *n.Redis.Password != "" {
		n.Redis.Password = ptr("***")
	}
	if e := cfg.Events; e != nil && e.NATS != nil && e.NATS.URL != nil && *e.NATS.URL != "" {
		e.NATS.URL = ptr(maskURL(*e.NATS.URL))
	}
}
