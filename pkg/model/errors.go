// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "errors"

// Error kinds shared by the evaluator, controller and stack manager
// (spec.md §7). Callers should wrap these with fmt.Errorf("...: %w", ...)
// to attach context while keeping errors.Is/As working.
var (
	// ErrConfig covers bad cycles/missing deps, malformed config, forbidden
	// pseudo-functions and unresolved variable references.
	ErrConfig = errors.New("config error")

	// ErrModule is returned by a module's validate/apply/destroy.
	ErrModule = errors.New("module error")

	// ErrSource covers stack-source fetch/version/init failures.
	ErrSource = errors.New("source error")

	// ErrState covers persistence failures.
	ErrState = errors.New("state error")

	// ErrNotFound is surfaced as HTTP 404 by the management API.
	ErrNotFound = errors.New("not found")

	// ErrNoMatchingRoster is a ModuleError variant: no roster satisfies a
	// duty's roster_selector and required traits.
	ErrNoMatchingRoster = errors.New("no matching roster")

	// ErrUnsupportedDutyType is a ModuleError variant: no registered module
	// handles the duty's duty_type.
	ErrUnsupportedDutyType = errors.New("unsupported duty type")
)
