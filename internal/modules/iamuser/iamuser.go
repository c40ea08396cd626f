// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package iamuser implements the built-in IAMUser module: an idempotent
// IAM identity provider, following the same dependency-injectable
// APIClient shape as internal/modules/s3bucket.
package iamuser

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
	ErrSpecInvalid  = errors.New("iamuser: invalid spec")
	ErrUserNotFound = errors.New("iamuser: user not found")
)

// User is the provider-observed state of an IAM user.
type User struct {
	Name string
	ARN  string
}

// APIClient is the dependency-injectable surface this module drives.
type APIClient interface {
	GetUser(ctx context.Context, name string) (*User, error)
	CreateUser(ctx context.Context, name string, policyARNs []string) (*User, error)
	DeleteUser(ctx context.Context, name string, policyARNs []string) error
}

// Spec is the IAMUser duty_type's decoded spec.
type Spec struct {
	UserName   string   `mapstructure:"user_name"`
	PolicyARNs []string `mapstructure:"policy_arns"`
}

func decodeSpec(raw map[string]any) (Spec, error) {
	var spec Spec
	if err := mapstructure.Decode(raw, &spec); err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrSpecInvalid, err)
	}
	if spec.UserName == "" {
		return Spec{}, fmt.Errorf("%w: user_name is required", ErrSpecInvalid)
	}
	return spec, nil
}

// Module is the IAMUser provider.
type Module struct {
	client APIClient
}

var _ module.Module = (*Module)(nil)

// New builds an IAMUser module. Pass nil to lazily build a real
// IAM-backed client from the default AWS credential chain.
func New(client APIClient) *Module {
	return &Module{client: client}
}

func (m *Module) clientFor(ctx context.Context) (APIClient, error) {
	if m.client != nil {
		return m.client, nil
	}
	return NewAWSClient(ctx)
}

func (m *Module) Name() string                  { return "iamuser" }
func (m *Module) SupportedDutyTypes() []string   { return []string{"IAMUser"} }
func (m *Module) RequiredRosterTraits() []string { return []string{"cloud-provider", "identity-manager"} }

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

	var user *User
	err = modules.WithRetry(ctx, func() error {
		existing, getErr := client.GetUser(ctx, spec.UserName)
		if getErr == nil {
			user = existing
			return nil
		}
		if !errors.Is(getErr, ErrUserNotFound) {
			return getErr
		}
		created, createErr := client.CreateUser(ctx, spec.UserName, spec.PolicyARNs)
		if createErr != nil {
			return createErr
		}
		user = created
		return nil
	})
	if err != nil {
		return module.Result{}, fmt.Errorf("%w: %v", model.ErrModule, err)
	}

	return module.Result{
		Phase:   module.PhaseDeployed,
		Message: fmt.Sprintf("IAM user %q is present", user.Name),
		Outputs: map[string]any{
			"user_arn":  user.ARN,
			"user_name": user.Name,
		},
		Resources: []model.ResourceSummary{{Kind: "IAMUser", ID: user.ARN}},
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
		_, getErr := client.GetUser(ctx, spec.UserName)
		if errors.Is(getErr, ErrUserNotFound) {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		return client.DeleteUser(ctx, spec.UserName, spec.PolicyARNs)
	})
	if err != nil {
		return module.Result{}, fmt.Errorf("%w: %v", model.ErrModule, err)
	}

	return module.Result{Phase: module.PhaseDeployed, Message: fmt.Sprintf("IAM user %q removed", spec.UserName)}, nil
}

func init() {
	module.Register(New(nil))
}
