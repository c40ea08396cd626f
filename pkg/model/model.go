// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package model defines the entity model of the control plane: Roster,
// Duty, Stack and the execution records that tie them together.
package model

import (
	"encoding/json"
	"time"
)

// Roster is a named target, typically a cloud account, carrying
// capability traits, connection parameters and credentials reference.
type Roster struct {
	Name       string            `json:"name"`
	RosterType string            `json:"roster_type"`
	Traits     []string          `json:"traits,omitempty"`
	Connection map[string]any    `json:"connection,omitempty"`
	Auth       map[string]any    `json:"auth,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// HasTrait reports whether the roster carries the given trait.
func (r Roster) HasTrait(trait string) bool {
	for _, t := range r.Traits {
		if t == trait {
			return true
		}
	}
	return false
}

// HasAllTraits reports whether the roster's traits are a superset of want.
func (r Roster) HasAllTraits(want []string) bool {
	for _, w := range want {
		if !r.HasTrait(w) {
			return false
		}
	}
	return true
}

// NormalizeTraits removes duplicates, enforcing the set-semantics invariant
// of spec.md §3 ("traits set-semantics (no duplicates, membership only)").
func NormalizeTraits(traits []string) []string {
	seen := make(map[string]struct{}, len(traits))
	out := make([]string, 0, len(traits))
	for _, t := range traits {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// RosterSelector selects rosters eligible to run a duty.
type RosterSelector struct {
	Traits     []string `json:"traits,omitempty"`
	RosterType string   `json:"roster_type,omitempty"`
}

// DutyPhase is the lifecycle phase reported in a duty's status.
type DutyPhase string

const (
	PhaseDeployed          DutyPhase = "deployed"
	PhasePending           DutyPhase = "pending"
	PhasePendingValidation DutyPhase = "pending_validation"
	PhaseFailed            DutyPhase = "failed"
)

// DutyStatus is the last module result recorded against a duty.
type DutyStatus struct {
	Phase     DutyPhase         `json:"phase"`
	Message   string            `json:"message,omitempty"`
	Outputs   map[string]any    `json:"outputs,omitempty"`
	Resources []ResourceSummary `json:"resources,omitempty"`
}

// ResourceSummary is an informational inventory entry returned by a module.
type ResourceSummary struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Instruction is an out-of-band resolution record for a rewritten
// `__INSTRUCTION_<n>__` token (spec.md §4.4).
type Instruction struct {
	Token        string   `json:"token"`
	Type         string   `json:"type"` // "g8r_output" | "g8r_secret"
	Args         []string `json:"args"`
	TargetPath   string   `json:"target_path"`
	ExpectedType string   `json:"expected_type,omitempty"`
}

// DutyMetadata carries the dependency edges and instruction records lifted
// out of a duty's configuration entry.
type DutyMetadata struct {
	DependsOn    []string      `json:"depends_on,omitempty"`
	Instructions []Instruction `json:"instructions,omitempty"`
}

// Duty is a declared unit of desired infrastructure state.
type Duty struct {
	Name           string            `json:"name"`
	DutyType       string            `json:"duty_type"`
	Backend        string            `json:"backend"`
	RosterSelector RosterSelector    `json:"roster_selector"`
	Spec           map[string]any    `json:"spec"`
	Status         DutyStatus        `json:"status"`
	Metadata       DutyMetadata      `json:"metadata"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// StackStatus is the reconciliation status of a stack.
type StackStatus string

const (
	StackPending StackStatus = "pending"
	StackSyncing StackStatus = "syncing"
	StackSynced  StackStatus = "synced"
	StackError   StackStatus = "error"
)

// Stack is a named reconciliation scope sourced from an external repository.
type Stack struct {
	Name              string            `json:"name"`
	SourceType        string            `json:"source_type"`
	SourceConfig      map[string]any    `json:"source_config"`
	ConfigPath        string            `json:"config_path"`
	ReconcileInterval int               `json:"reconcile_interval"` // seconds; 0 disables periodic reconcile
	LastSyncVersion   string            `json:"last_sync_version,omitempty"`
	LastSyncAt        *time.Time        `json:"last_sync_at,omitempty"`
	Status            StackStatus       `json:"status"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// ExecutionStatus is the status of a single recorded duty execution.
type ExecutionStatus string

const (
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
)

// DutyExecution is the audit row for one apply/destroy invocation.
type DutyExecution struct {
	ID           string          `json:"id"`
	DutyName     string          `json:"duty_name"`
	Status       ExecutionStatus `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  time.Time       `json:"completed_at"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
}

// Secret is a named, opaque credential value held by the control plane.
type Secret struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}
