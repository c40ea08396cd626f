// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package modules holds the control plane's built-in providers
// (s3bucket, dnsrecord, certificate, cdndistribution, iamuser), each
// implementing pkg/module.Module the way the teacher's cloud providers
// implement pkg/providers/cloud.CloudProvider: a small APIClient interface
// for dependency injection, a Config/spec decoded from the generic duty
// spec, and errors.go-style sentinel errors.
//
// Bounded backoff on Apply/Destroy is a module concern, not the
// Controller's (the Controller runs at-most-once per batch, spec.md §4.6)
// so each module wraps its client calls with MaxElapsed via this
// shared helper.
package modules

import (
	"context"
	"time"

	"github.com/avast/retry-go"
)

// MaxElapsed bounds how long a single Apply/Destroy call may spend retrying
// a transient failure before giving up (spec.md §4.2 module contract).
const MaxElapsed = 30 * time.Second

// WithRetry runs fn with bounded exponential backoff, capped at MaxElapsed
// total and cancelled early if ctx is done.
func WithRetry(ctx context.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, MaxElapsed)
	defer cancel()

	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(200*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}
