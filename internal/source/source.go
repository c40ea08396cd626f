// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package source defines the abstract content-addressed source a stack
// pulls its configuration from (spec.md §4.7). A git-backed implementation
// lives in internal/source/gitsource.
package source

import "context"

// Source is a content-addressed location a Stack's configuration is
// fetched from. Implementations must be safe for concurrent use by a
// single stack's reconciliation loop; callers never share a Source between
// stacks.
type Source interface {
	// Init prepares the local working copy: cloning if absent, or opening
	// and fast-forwarding if it already exists.
	Init(ctx context.Context) error

	// Fetch pulls the latest content from upstream without changing the
	// visible working copy.
	Fetch(ctx context.Context) error

	// Version returns an opaque identifier for the current working copy's
	// content (e.g. a commit SHA). Equal strings mean equal content.
	Version(ctx context.Context) (string, error)

	// ConfigPath returns the filesystem path to the stack's entry
	// configuration file within the working copy.
	ConfigPath(ctx context.Context) (string, error)

	// HasUpdates reports whether upstream content differs from
	// lastVersion, fetching as needed to determine this.
	HasUpdates(ctx context.Context, lastVersion string) (bool, error)
}
