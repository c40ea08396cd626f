// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package pgstore implements store.Store against PostgreSQL via pgx/v5,
// using direct parameterized SQL rather than an ORM, matching the
// teacher's style of talking to Postgres directly.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"g8r/internal/store/schema"
	"g8r/pkg/model"
)

// Store is a store.Store backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and ensures the schema is applied.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to database: %v", model.ErrState, err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: pinging database: %v", model.ErrState, err)
	}
	if err := schema.Apply(ctx, pool); err != nil {
		return nil, fmt.Errorf("%w: applying schema: %v", model.ErrState, err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool's connections.
func (s *Store) Close() { s.pool.Close() }

func marshal(v any) ([]byte, error) { return json.Marshal(v) }

// --- rosters ---

func (s *Store) UpsertRoster(ctx context.Context, r model.Roster) error {
	connection, err := marshal(r.Connection)
	if err != nil {
		return err
	}
	auth, err := marshal(r.Auth)
	if err != nil {
		return err
	}
	metadata, err := marshal(r.Metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO rosters (name, roster_type, traits, connection, auth, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (name) DO UPDATE SET
			roster_type = EXCLUDED.roster_type,
			traits = EXCLUDED.traits,
			connection = EXCLUDED.connection,
			auth = EXCLUDED.auth,
			metadata = EXCLUDED.metadata,
			updated_at = now()
	`, r.Name, r.RosterType, r.Traits, connection, auth, metadata)
	if err != nil {
		return fmt.Errorf("%w: upserting roster %q: %v", model.ErrState, r.Name, err)
	}
	return nil
}

func (s *Store) ListRosters(ctx context.Context) ([]model.Roster, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, roster_type, traits, connection, auth, metadata, created_at, updated_at
		FROM rosters ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing rosters: %v", model.ErrState, err)
	}
	defer rows.Close()

	var out []model.Roster
	for rows.Next() {
		r, err := scanRoster(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetRoster(ctx context.Context, name string) (model.Roster, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT name, roster_type, traits, connection, auth, metadata, created_at, updated_at
		FROM rosters WHERE name = $1
	`, name)
	r, err := scanRoster(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Roster{}, fmt.Errorf("%w: roster %q", model.ErrNotFound, name)
	}
	return r, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoster(row rowScanner) (model.Roster, error) {
	var r model.Roster
	var connection, auth, metadata []byte
	if err := row.Scan(&r.Name, &r.RosterType, &r.Traits, &connection, &auth, &metadata, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return model.Roster{}, err
	}
	if err := json.Unmarshal(connection, &r.Connection); err != nil {
		return model.Roster{}, err
	}
	if err := json.Unmarshal(auth, &r.Auth); err != nil {
		return model.Roster{}, err
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &r.Metadata)
	}
	return r, nil
}

// --- duties ---

func (s *Store) UpsertDuty(ctx context.Context, d model.Duty) error {
	selector, err := marshal(d.RosterSelector)
	if err != nil {
		return err
	}
	spec, err := marshal(d.Spec)
	if err != nil {
		return err
	}
	status, err := marshal(d.Status)
	if err != nil {
		return err
	}
	metadata, err := marshal(d.Metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO duties (name, duty_type, backend, roster_selector, spec, status, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (name) DO UPDATE SET
			duty_type = EXCLUDED.duty_type,
			backend = EXCLUDED.backend,
			roster_selector = EXCLUDED.roster_selector,
			spec = EXCLUDED.spec,
			metadata = EXCLUDED.metadata,
			updated_at = now()
	`, d.Name, d.DutyType, d.Backend, selector, spec, status, metadata)
	if err != nil {
		return fmt.Errorf("%w: upserting duty %q: %v", model.ErrState, d.Name, err)
	}
	return nil
}

func (s *Store) ListDuties(ctx context.Context) ([]model.Duty, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, duty_type, backend, roster_selector, spec, status, metadata, created_at, updated_at
		FROM duties ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing duties: %v", model.ErrState, err)
	}
	defer rows.Close()

	var out []model.Duty
	for rows.Next() {
		d, err := scanDuty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) GetDutyByName(ctx context.Context, name string) (model.Duty, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT name, duty_type, backend, roster_selector, spec, status, metadata, created_at, updated_at
		FROM duties WHERE name = $1
	`, name)
	d, err := scanDuty(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Duty{}, fmt.Errorf("%w: duty %q", model.ErrNotFound, name)
	}
	return d, err
}

func scanDuty(row rowScanner) (model.Duty, error) {
	var d model.Duty
	var selector, spec, status, metadata []byte
	if err := row.Scan(&d.Name, &d.DutyType, &d.Backend, &selector, &spec, &status, &metadata, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return model.Duty{}, err
	}
	if err := json.Unmarshal(selector, &d.RosterSelector); err != nil {
		return model.Duty{}, err
	}
	if err := json.Unmarshal(spec, &d.Spec); err != nil {
		return model.Duty{}, err
	}
	if err := json.Unmarshal(status, &d.Status); err != nil {
		return model.Duty{}, err
	}
	if err := json.Unmarshal(metadata, &d.Metadata); err != nil {
		return model.Duty{}, err
	}
	return d, nil
}

func (s *Store) UpdateDutyStatus(ctx context.Context, name string, status model.DutyStatus) error {
	b, err := marshal(status)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE duties SET status = $1, updated_at = now() WHERE name = $2`, b, name)
	if err != nil {
		return fmt.Errorf("%w: updating status for duty %q: %v", model.ErrState, name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: duty %q", model.ErrNotFound, name)
	}
	return nil
}

func (s *Store) DeleteDuty(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM duties WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("%w: deleting duty %q: %v", model.ErrState, name, err)
	}
	return nil
}

// --- duty executions ---

func (s *Store) RecordExecution(ctx context.Context, exec model.DutyExecution) error {
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	completed := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO duty_executions (id, duty_name, status, completed_at, error_message, result)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, exec.ID, exec.DutyName, string(exec.Status), completed, exec.ErrorMessage, []byte(orEmptyJSON(exec.Result)))
	if err != nil {
		return fmt.Errorf("%w: recording execution for duty %q: %v", model.ErrState, exec.DutyName, err)
	}
	return nil
}

func orEmptyJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}

func (s *Store) ListExecutions(ctx context.Context, dutyName string) ([]model.DutyExecution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, duty_name, status, started_at, completed_at, error_message, result
		FROM duty_executions WHERE duty_name = $1 ORDER BY started_at DESC
	`, dutyName)
	if err != nil {
		return nil, fmt.Errorf("%w: listing executions for duty %q: %v", model.ErrState, dutyName, err)
	}
	defer rows.Close()

	var out []model.DutyExecution
	for rows.Next() {
		var e model.DutyExecution
		var status string
		var result []byte
		var completedAt *time.Time
		if err := rows.Scan(&e.ID, &e.DutyName, &status, &e.StartedAt, &completedAt, &e.ErrorMessage, &result); err != nil {
			return nil, err
		}
		e.Status = model.ExecutionStatus(status)
		if completedAt != nil {
			e.CompletedAt = *completedAt
		}
		e.Result = result
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- stacks ---

func (s *Store) UpsertStack(ctx context.Context, st model.Stack) error {
	sourceConfig, err := marshal(st.SourceConfig)
	if err != nil {
		return err
	}
	metadata, err := marshal(st.Metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO stacks (name, source_type, source_config, config_path, reconcile_interval, status, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (name) DO UPDATE SET
			source_type = EXCLUDED.source_type,
			source_config = EXCLUDED.source_config,
			config_path = EXCLUDED.config_path,
			reconcile_interval = EXCLUDED.reconcile_interval,
			metadata = EXCLUDED.metadata,
			updated_at = now()
	`, st.Name, st.SourceType, sourceConfig, st.ConfigPath, st.ReconcileInterval, string(st.Status), metadata)
	if err != nil {
		return fmt.Errorf("%w: upserting stack %q: %v", model.ErrState, st.Name, err)
	}
	return nil
}

func (s *Store) GetStack(ctx context.Context, name string) (model.Stack, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT name, source_type, source_config, config_path, reconcile_interval,
		       last_sync_version, last_sync_at, status, metadata, created_at, updated_at
		FROM stacks WHERE name = $1
	`, name)
	st, err := scanStack(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Stack{}, fmt.Errorf("%w: stack %q", model.ErrNotFound, name)
	}
	return st, err
}

func (s *Store) ListStacks(ctx context.Context) ([]model.Stack, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, source_type, source_config, config_path, reconcile_interval,
		       last_sync_version, last_sync_at, status, metadata, created_at, updated_at
		FROM stacks ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing stacks: %v", model.ErrState, err)
	}
	defer rows.Close()

	var out []model.Stack
	for rows.Next() {
		st, err := scanStack(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanStack(row rowScanner) (model.Stack, error) {
	var st model.Stack
	var sourceConfig, metadata []byte
	var status string
	if err := row.Scan(&st.Name, &st.SourceType, &sourceConfig, &st.ConfigPath, &st.ReconcileInterval,
		&st.LastSyncVersion, &st.LastSyncAt, &status, &metadata, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return model.Stack{}, err
	}
	st.Status = model.StackStatus(status)
	if err := json.Unmarshal(sourceConfig, &st.SourceConfig); err != nil {
		return model.Stack{}, err
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &st.Metadata)
	}
	return st, nil
}

func (s *Store) DeleteStack(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM stacks WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("%w: deleting stack %q: %v", model.ErrState, name, err)
	}
	return nil
}

func (s *Store) UpdateStackStatus(ctx context.Context, name string, status model.StackStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE stacks SET status = $1, updated_at = now() WHERE name = $2`, string(status), name)
	if err != nil {
		return fmt.Errorf("%w: updating status for stack %q: %v", model.ErrState, name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: stack %q", model.ErrNotFound, name)
	}
	return nil
}

func (s *Store) UpdateStackSync(ctx context.Context, name, version string, status model.StackStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE stacks SET last_sync_version = $1, last_sync_at = now(), status = $2, updated_at = now()
		WHERE name = $3
	`, version, string(status), name)
	if err != nil {
		return fmt.Errorf("%w: updating sync state for stack %q: %v", model.ErrState, name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: stack %q", model.ErrNotFound, name)
	}
	return nil
}

// --- secrets ---

func (s *Store) GetSecret(ctx context.Context, name string) (model.Secret, error) {
	var sec model.Secret
	err := s.pool.QueryRow(ctx, `SELECT name, value, description FROM secrets WHERE name = $1`, name).
		Scan(&sec.Name, &sec.Value, &sec.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Secret{}, fmt.Errorf("%w: secret %q", model.ErrNotFound, name)
	}
	if err != nil {
		return model.Secret{}, fmt.Errorf("%w: loading secret %q: %v", model.ErrState, name, err)
	}
	return sec, nil
}

func (s *Store) UpsertSecret(ctx context.Context, sec model.Secret) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO secrets (name, value, description) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, description = EXCLUDED.description
	`, sec.Name, sec.Value, sec.Description)
	if err != nil {
		return fmt.Errorf("%w: upserting secret %q: %v", model.ErrState, sec.Name, err)
	}
	return nil
}

// --- global KV (kv.Persister) ---

func (s *Store) SaveGlobal(key string, value any) error {
	b, err := marshal(value)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(context.Background(), `
		INSERT INTO globals (key, value, var_type, updated_at) VALUES ($1, $2, 'Global', now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, b)
	if err != nil {
		return fmt.Errorf("%w: saving global %q: %v", model.ErrState, key, err)
	}
	return nil
}

func (s *Store) LoadAllGlobals() (map[string]any, error) {
	rows, err := s.pool.Query(context.Background(), `SELECT key, value FROM globals`)
	if err != nil {
		return nil, fmt.Errorf("%w: loading globals: %v", model.ErrState, err)
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, rows.Err()
}
