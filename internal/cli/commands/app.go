// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package commands implements the g8r CLI's subcommands and the shared
// composition root that wires config, logging, persistence, the module
// registry, the controller and the stack manager together.
package commands

import (
	"context"
	"fmt"
	"os"

	"g8r/internal/config"
	"g8r/internal/configload"
	"g8r/internal/controller"
	"g8r/internal/httpapi"
	"g8r/internal/logging"
	"g8r/internal/secrets"
	"g8r/internal/source"
	"g8r/internal/stackmgr"
	"g8r/internal/store/pgstore"
	"g8r/pkg/kv"
	"g8r/pkg/module"

	// Blank-imported so each built-in module's init() registers it against
	// module.DefaultRegistry before the CLI builds a Controller.
	_ "g8r/internal/modules/cdndistribution"
	_ "g8r/internal/modules/certificate"
	_ "g8r/internal/modules/dnsrecord"
	_ "g8r/internal/modules/iamuser"
	_ "g8r/internal/modules/s3bucket"
)

// app bundles the composed control plane, ready to serve HTTP traffic
// and/or run stack reconciliation loops.
type app struct {
	cfg     *config.Config
	log     logging.Logger
	store   *pgstore.Store
	api     *httpapi.API
	stacks  *stackmgr.Manager
	cleanup func()
}

// buildApp loads configuration and wires every component. Callers must
// invoke the returned cleanup function before exiting.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("G8R_DATABASE_URL is required")
	}

	log := logging.NewDefault(cfg.LogLevel == "debug")
	var logFile *os.File
	if cfg.LogFile != "" {
		logFile, err = os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file %q: %w", cfg.LogFile, err)
		}
		level := logging.LevelInfo
		if cfg.LogLevel == "debug" {
			level = logging.LevelDebug
		}
		log = logging.New(logFile, level)
	}

	db, err := pgstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	secretRegistry := secrets.NewDefaultRegistry(db)
	ctrl := controller.New(db, module.DefaultRegistry, secretRegistry, log)

	global := kv.NewGlobalStore(db)
	constants := kv.NewGlobalStore(nil)
	loader := configload.New(global, constants, db)

	sourceFactory := source.NewGitFactory(cfg.WorkDir)
	stacks := stackmgr.New(db, ctrl, sourceFactory, loader.Load, log)

	api := httpapi.New(db, ctrl, stacks, log)

	return &app{
		cfg:    cfg,
		log:    log,
		store:  db,
		api:    api,
		stacks: stacks,
		cleanup: func() {
			db.Close()
			if logFile != nil {
				_ = logFile.Close()
			}
		},
	}, nil
}
