// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package config resolves the control plane's process-level settings from
// environment variables via viper, with defaults applied the way the
// teacher's flag/env/default precedence helper
// (internal/cli/commands/flags.go) layers its own defaults in.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every environment-derived setting the control plane reads
// at startup.
type Config struct {
	// DatabaseURL is the Postgres connection string for internal/store/pgstore.
	DatabaseURL string

	// GitHubToken is read from G8R_GITHUB_TOKEN. No component consumes it:
	// internal/source/gitsource falls back to the GITHUB_TOKEN environment
	// variable when a stack's source config doesn't carry its own token.
	GitHubToken string

	// LogFile, when set, directs structured logs to a file instead of stderr.
	LogFile string

	// LogLevel is one of debug, info, warn, error (default info).
	LogLevel string

	// TelemetryExporter names the tracing/metrics exporter backend, e.g.
	// "otlp" or "none" (default none).
	TelemetryExporter string

	// HTTPAddr is the bind address for internal/httpapi, e.g. ":8080".
	HTTPAddr string

	// ReconcileDefaultInterval is read from G8R_RECONCILE_INTERVAL_SECONDS.
	// internal/stackmgr does not use it: a stack whose own reconcile
	// interval is 0 gets no periodic reconciliation loop.
	ReconcileDefaultInterval time.Duration

	// WorkDir is the root directory under which each stack's git working
	// copy is checked out, one subdirectory per stack name.
	WorkDir string
}

// Load resolves Config from the process environment, applying built-in
// defaults for anything unset. DatabaseURL is the only setting an operator
// must supply; its absence is reported by the caller attempting to open a
// store, not here.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("G8R")
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("telemetry_exporter", "none")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("reconcile_interval_seconds", 60)
	v.SetDefault("work_dir", "/var/lib/g8r/stacks")

	for _, key := range []string{
		"database_url", "github_token", "log_file", "log_level",
		"telemetry_exporter", "http_addr", "reconcile_interval_seconds", "work_dir",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding G8R_%s: %w", key, err)
		}
	}

	cfg := &Config{
		DatabaseURL:              v.GetString("database_url"),
		GitHubToken:              v.GetString("github_token"),
		LogFile:                  v.GetString("log_file"),
		LogLevel:                 v.GetString("log_level"),
		TelemetryExporter:        v.GetString("telemetry_exporter"),
		HTTPAddr:                 v.GetString("http_addr"),
		ReconcileDefaultInterval: time.Duration(v.GetInt("reconcile_interval_seconds")) * time.Second,
		WorkDir:                  v.GetString("work_dir"),
	}

	if !validLogLevel(cfg.LogLevel) {
		return nil, fmt.Errorf("invalid G8R_LOG_LEVEL %q: must be one of debug, info, warn, error", cfg.LogLevel)
	}

	return cfg, nil
}

func validLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}
