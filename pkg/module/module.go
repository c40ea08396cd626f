// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package module defines the uniform contract through which the Controller
// drives backend-specific providers (spec.md §4.2), and the process-wide
// registry that selects a module for a given duty_type.
package module

import (
	"context"

	"g8r/pkg/model"
)

// Phase mirrors model.DutyPhase; re-exported here so module implementations
// don't need to import the model package just to build a Result.
type Phase = model.DutyPhase

const (
	PhaseDeployed          = model.PhaseDeployed
	PhasePending           = model.PhasePending
	PhasePendingValidation = model.PhasePendingValidation
	PhaseFailed            = model.PhaseFailed
)

// Result is the structured document returned by Apply/Destroy.
type Result struct {
	Phase     Phase                   `json:"phase"`
	Message   string                  `json:"message,omitempty"`
	Outputs   map[string]any          `json:"outputs,omitempty"`
	Resources []model.ResourceSummary `json:"resources,omitempty"`
}

// Module is the provider plugin contract (spec.md §4.2). Implementations
// MUST be idempotent: two consecutive Apply calls with the same roster,
// duty and environment must produce an equivalent Result and leave the
// external world in the same state.
type Module interface {
	// Name is a stable identifier used for selection and logging.
	Name() string

	// SupportedDutyTypes returns the duty_type strings this module handles.
	SupportedDutyTypes() []string

	// RequiredRosterTraits returns traits a roster must carry to be usable
	// with this module.
	RequiredRosterTraits() []string

	// Validate performs a pure schema/semantic check on duty.Spec. It MUST
	// NOT have side effects.
	Validate(ctx context.Context, roster model.Roster, duty model.Duty) error

	// Apply idempotently converges toward the desired state and returns a
	// result document.
	Apply(ctx context.Context, roster model.Roster, duty model.Duty) (Result, error)

	// Destroy idempotently removes the resource described by duty.
	Destroy(ctx context.Context, roster model.Roster, duty model.Duty) (Result, error)
}

// supports reports whether m handles dutyType.
func supports(m Module, dutyType string) bool {
	for _, t := range m.SupportedDutyTypes() {
		if t == dutyType {
			return true
		}
	}
	return false
}
