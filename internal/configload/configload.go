// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package configload adapts internal/eval and pkg/kv into a
// stackmgr.Loader: reading a stack's entry config file off disk and
// evaluating it into a duty set and variable context, re-rendering
// runtime.* references on every batch after the first (spec.md §4.4).
package configload

import (
	"context"
	"fmt"
	"os"

	"g8r/internal/eval"
	"g8r/pkg/kv"
	"g8r/pkg/model"
)

// RosterStore is the subset of persistence needed to keep a stack's
// declared rosters in sync with what its configuration file names on each
// evaluation.
type RosterStore interface {
	UpsertRoster(ctx context.Context, r model.Roster) error
}

// Loader evaluates stack configuration files against a shared global store.
type Loader struct {
	Global    *kv.GlobalStore
	Constants *kv.GlobalStore
	Rosters   RosterStore
}

// New builds a Loader backed by global (may be persister-backed) and a
// read-only constants store. rosters may be nil to skip roster upserts
// (e.g. in tests).
func New(global, constants *kv.GlobalStore, rosters RosterStore) *Loader {
	return &Loader{Global: global, Constants: constants, Rosters: rosters}
}

// Load implements stackmgr.Loader: read configPath, build a fresh per-call
// VariableContext over a new stack-local store plus the shared
// global/constants stores, and evaluate the source through
// internal/eval's plain or runtime-context-aware pipeline depending on
// whether rt carries any duty outputs yet.
func (l *Loader) Load(configPath string, rt kv.RuntimeContext) ([]model.Duty, *kv.VariableContext, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading %s: %v", model.ErrSource, configPath, err)
	}

	variables := kv.NewVariableContext(kv.NewStackStore(), l.Global, l.Constants)
	resolver := eval.NewResolver(variables, os.LookupEnv)

	var doc eval.Document
	if len(rt.Duties) == 0 {
		doc, err = eval.LoadPlain(string(raw), resolver)
	} else {
		doc, err = eval.LoadWithRuntimeContext(string(raw), rt, resolver)
	}
	if err != nil {
		return nil, nil, err
	}

	if l.Rosters != nil {
		for _, r := range doc.Rosters {
			if err := l.Rosters.UpsertRoster(context.Background(), r); err != nil {
				return nil, nil, fmt.Errorf("%w: upserting roster %q: %v", model.ErrState, r.Name, err)
			}
		}
	}

	return doc.Duties, variables, nil
}
