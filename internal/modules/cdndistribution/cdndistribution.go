// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package cdndistribution implements the built-in CDNDistribution module:
// an idempotent content-delivery distribution provider whose spec names an
// S3 bucket ARN as its origin. That ARN typically arrives already resolved
// by the controller's runtime-context feedback loop (spec.md §4.4 mode 2,
// §8 scenario S3) from an upstream S3Bucket duty's outputs — this module
// itself only ever sees the literal resolved spec, the same as any other
// module.
package cdndistribution

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"g8r/internal/modules"
	"g8r/pkg/model"
	"g8r/pkg/module"
)

var (
	ErrSpecInvalid  = errors.New("cdndistribution: invalid spec")
	ErrDistNotFound = errors.New("cdndistribution: distribution not found")
)

// Distribution is the provider-observed state of a CDN distribution.
type Distribution struct {
	ID         string
	DomainName string
	Status     string
}

// APIClient is the dependency-injectable surface this module drives.
type APIClient interface {
	GetDistribution(ctx context.Context, dutyName string) (*Distribution, error)
	CreateDistribution(ctx context.Context, dutyName, originDomain string, aliases []string) (*Distribution, error)
	DeleteDistribution(ctx context.Context, id string) error
}

// Spec is the CDNDistribution duty_type's decoded spec.
type Spec struct {
	OriginBucketARN string   `mapstructure:"origin_bucket_arn"`
	Aliases         []string `mapstructure:"aliases"`
}

func decodeSpec(raw map[string]any) (Spec, error) {
	var spec Spec
	if err := mapstructure.Decode(raw, &spec); err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrSpecInvalid, err)
	}
	if spec.OriginBucketARN == "" {
		return Spec{}, fmt.Errorf("%w: origin_bucket_arn is required", ErrSpecInvalid)
	}
	return spec, nil
}

// originDomain derives an S3 website/REST origin hostname from a bucket
// ARN of the form "arn:aws:s3:::bucket-name".
func originDomain(bucketARN string) (string, error) {
	parts := strings.Split(bucketARN, ":::")
	if len(parts) != 2 || parts[1] == "" {
		return "", fmt.Errorf("%w: malformed origin_bucket_arn %q", ErrSpecInvalid, bucketARN)
	}
	return parts[1] + ".s3.amazonaws.com", nil
}

// Module is the CDNDistribution provider.
type Module struct {
	client APIClient
}

var _ module.Module = (*Module)(nil)

// New builds a CDNDistribution module. Pass nil to lazily build a real
// CloudFront-backed client from the default AWS credential chain.
func New(client APIClient) *Module {
	return &Module{client: client}
}

func (m *Module) clientFor(ctx context.Context) (APIClient, error) {
	if m.client != nil {
		return m.client, nil
	}
	return NewAWSClient(ctx)
}

func (m *Module) Name() string                  { return "cdndistribution" }
func (m *Module) SupportedDutyTypes() []string   { return []string{"CDNDistribution"} }
func (m *Module) RequiredRosterTraits() []string { return []string{"cloud-provider", "cdn-manager"} }

func (m *Module) Validate(ctx context.Context, roster model.Roster, duty model.Duty) error {
	spec, err := decodeSpec(duty.Spec)
	if err != nil {
		return err
	}
	_, err = originDomain(spec.OriginBucketARN)
	return err
}

func (m *Module) Apply(ctx context.Context, roster model.Roster, duty model.Duty) (module.Result, error) {
	spec, err := decodeSpec(duty.Spec)
	if err != nil {
		return module.Result{}, err
	}
	origin, err := originDomain(spec.OriginBucketARN)
	if err != nil {
		return module.Result{}, err
	}

	client, err := m.clientFor(ctx)
	if err != nil {
		return module.Result{}, fmt.Errorf("%w: %v", model.ErrModule, err)
	}

	var dist *Distribution
	err = modules.WithRetry(ctx, func() error {
		existing, getErr := client.GetDistribution(ctx, duty.Name)
		if getErr == nil {
			dist = existing
			return nil
		}
		if !errors.Is(getErr, ErrDistNotFound) {
			return getErr
		}
		created, createErr := client.CreateDistribution(ctx, duty.Name, origin, spec.Aliases)
		if createErr != nil {
			return createErr
		}
		dist = created
		return nil
	})
	if err != nil {
		return module.Result{}, fmt.Errorf("%w: %v", model.ErrModule, err)
	}

	return module.Result{
		Phase:   module.PhaseDeployed,
		Message: fmt.Sprintf("distribution %q fronting %q is %s", dist.ID, origin, dist.Status),
		Outputs: map[string]any{
			"distribution_id":     dist.ID,
			"distribution_domain": dist.DomainName,
		},
		Resources: []model.ResourceSummary{{Kind: "CDNDistribution", ID: dist.ID}},
	}, nil
}

func (m *Module) Destroy(ctx context.Context, roster model.Roster, duty model.Duty) (module.Result, error) {
	client, err := m.clientFor(ctx)
	if err != nil {
		return module.Result{}, fmt.Errorf("%w: %v", model.ErrModule, err)
	}

	err = modules.WithRetry(ctx, func() error {
		existing, getErr := client.GetDistribution(ctx, duty.Name)
		if errors.Is(getErr, ErrDistNotFound) {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		return client.DeleteDistribution(ctx, existing.ID)
	})
	if err != nil {
		return module.Result{}, fmt.Errorf("%w: %v", model.ErrModule, err)
	}

	return module.Result{Phase: module.PhaseDeployed, Message: fmt.Sprintf("distribution for duty %q removed", duty.Name)}, nil
}

func init() {
	module.Register(New(nil))
}
