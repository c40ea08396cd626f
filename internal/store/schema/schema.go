// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package schema bootstraps the control plane's own database schema. It is
// adapted from the teacher's raw SQL migration engine
// (pkg/providers/migration + internal/providers/migration/raw): a single
// embedded SQL file applied idempotently via IF NOT EXISTS, tracked in a
// migrations table so repeated Apply calls are no-ops. The teacher's
// richer tag/dependency migration engine (pkg/migrations) has no use here,
// since the control plane owns exactly one schema, not a graph of
// per-service migrations.
package schema

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const migrationID = "0001_initial"

// Apply ensures the control plane's tables exist, recording that this
// schema version has been applied so repeated calls are cheap.
func Apply(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS g8r_migrations (
			id VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("ensuring migrations table: %w", err)
	}

	var applied bool
	err := pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM g8r_migrations WHERE id = $1)`, migrationID).Scan(&applied)
	if err != nil {
		return fmt.Errorf("checking migration status: %w", err)
	}
	if applied {
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO g8r_migrations (id) VALUES ($1)`, migrationID); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return tx.Commit(ctx)
}
