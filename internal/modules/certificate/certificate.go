// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package certificate implements the built-in Certificate module: an
// idempotent TLS certificate provider, following the same
// dependency-injectable APIClient shape as internal/modules/s3bucket.
package certificate

import (
	"context"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"g8r/internal/modules"
	"g8r/pkg/model"
	"g8r/pkg/module"
)

var (
	ErrSpecInvalid  = errors.New("certificate: invalid spec")
	ErrCertNotFound = errors.New("certificate: certificate not found")
)

// Certificate is the provider-observed state of a TLS certificate.
type Certificate struct {
	ARN    string
	Domain string
	Status string
}

// APIClient is the dependency-injectable surface this module drives.
type APIClient interface {
	GetCertificate(ctx context.Context, domain string) (*Certificate, error)
	RequestCertificate(ctx context.Context, domain, validationMethod string) (*Certificate, error)
	DeleteCertificate(ctx context.Context, arn string) error
}

// Spec is the Certificate duty_type's decoded spec.
type Spec struct {
	Domain           string `mapstructure:"domain"`
	ValidationMethod string `mapstructure:"validation_method"`
}

func decodeSpec(raw map[string]any) (Spec, error) {
	var spec Spec
	if err := mapstructure.Decode(raw, &spec); err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrSpecInvalid, err)
	}
	if spec.Domain == "" {
		return Spec{}, fmt.Errorf("%w: domain is required", ErrSpecInvalid)
	}
	if spec.ValidationMethod == "" {
		spec.ValidationMethod = "DNS"
	}
	return spec, nil
}

// Module is the Certificate provider.
type Module struct {
	client APIClient
}

var _ module.Module = (*Module)(nil)

// New builds a Certificate module. Pass nil to lazily build a real
// ACM-backed client from the default AWS credential chain.
func New(client APIClient) *Module {
	return &Module{client: client}
}

func (m *Module) clientFor(ctx context.Context) (APIClient, error) {
	if m.client != nil {
		return m.client, nil
	}
	return NewAWSClient(ctx)
}

func (m *Module) Name() string                  { return "certificate" }
func (m *Module) SupportedDutyTypes() []string   { return []string{"Certificate"} }
func (m *Module) RequiredRosterTraits() []string { return []string{"cloud-provider", "certificate-manager"} }

func (m *Module) Validate(ctx context.Context, roster model.Roster, duty model.Duty) error {
	_, err := decodeSpec(duty.Spec)
	return err
}

func (m *Module) Apply(ctx context.Context, roster model.Roster, duty model.Duty) (module.Result, error) {
	spec, err := decodeSpec(duty.Spec)
	if err != nil {
		return module.Result{}, err
	}

	client, err := m.clientFor(ctx)
	if err != nil {
		return module.Result{}, fmt.Errorf("%w: %v", model.ErrModule, err)
	}

	var cert *Certificate
	err = modules.WithRetry(ctx, func() error {
		existing, getErr := client.GetCertificate(ctx, spec.Domain)
		if getErr == nil {
			cert = existing
			return nil
		}
		if !errors.Is(getErr, ErrCertNotFound) {
			return getErr
		}
		requested, reqErr := client.RequestCertificate(ctx, spec.Domain, spec.ValidationMethod)
		if reqErr != nil {
			return reqErr
		}
		cert = requested
		return nil
	})
	if err != nil {
		return module.Result{}, fmt.Errorf("%w: %v", model.ErrModule, err)
	}

	phase := module.PhaseDeployed
	if cert.Status != "ISSUED" {
		phase = module.PhasePendingValidation
	}

	return module.Result{
		Phase:   phase,
		Message: fmt.Sprintf("certificate for %q is %s", spec.Domain, cert.Status),
		Outputs: map[string]any{
			"certificate_arn": cert.ARN,
			"domain":          cert.Domain,
		},
		Resources: []model.ResourceSummary{{Kind: "Certificate", ID: cert.ARN}},
	}, nil
}

func (m *Module) Destroy(ctx context.Context, roster model.Roster, duty model.Duty) (module.Result, error) {
	spec, err := decodeSpec(duty.Spec)
	if err != nil {
		return module.Result{}, err
	}

	client, err := m.clientFor(ctx)
	if err != nil {
		return module.Result{}, fmt.Errorf("%w: %v", model.ErrModule, err)
	}

	err = modules.WithRetry(ctx, func() error {
		existing, getErr := client.GetCertificate(ctx, spec.Domain)
		if errors.Is(getErr, ErrCertNotFound) {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		return client.DeleteCertificate(ctx, existing.ARN)
	})
	if err != nil {
		return module.Result{}, fmt.Errorf("%w: %v", model.ErrModule, err)
	}

	return module.Result{Phase: module.PhaseDeployed, Message: fmt.Sprintf("certificate for %q removed", spec.Domain)}, nil
}

func init() {
	module.Register(New(nil))
}
