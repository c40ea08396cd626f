// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package store defines the persistence contract the control plane's
// components depend on. The concrete Postgres implementation lives in
// internal/store/pgstore (spec.md §4.10, an external-collaborator
// interface the distilled spec names but leaves unspecified).
package store

import (
	"context"

	"g8r/pkg/model"
)

// Store is the full persistence surface: roster/duty/stack CRUD, execution
// history, secrets, and the global KV surface. internal/controller,
// internal/stackmgr and internal/secrets each depend on the narrower
// interface they need rather than this one directly, so tests can supply
// minimal fakes.
type Store interface {
	UpsertRoster(ctx context.Context, roster model.Roster) error
	ListRosters(ctx context.Context) ([]model.Roster, error)
	GetRoster(ctx context.Context, name string) (model.Roster, error)

	UpsertDuty(ctx context.Context, duty model.Duty) error
	ListDuties(ctx context.Context) ([]model.Duty, error)
	GetDutyByName(ctx context.Context, name string) (model.Duty, error)
	UpdateDutyStatus(ctx context.Context, name string, status model.DutyStatus) error
	DeleteDuty(ctx context.Context, name string) error

	RecordExecution(ctx context.Context, exec model.DutyExecution) error
	ListExecutions(ctx context.Context, dutyName string) ([]model.DutyExecution, error)

	UpsertStack(ctx context.Context, stack model.Stack) error
	GetStack(ctx context.Context, name string) (model.Stack, error)
	ListStacks(ctx context.Context) ([]model.Stack, error)
	DeleteStack(ctx context.Context, name string) error
	UpdateStackStatus(ctx context.Context, name string, status model.StackStatus) error
	UpdateStackSync(ctx context.Context, name, version string, status model.StackStatus) error

	GetSecret(ctx context.Context, name string) (model.Secret, error)
	UpsertSecret(ctx context.Context, secret model.Secret) error

	SaveGlobal(key string, value any) error
	LoadAllGlobals() (map[string]any, error)
}
