// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package dnsrecord implements the built-in DNSRecord module: an
// idempotent hosted-zone record provider, following the same
// dependency-injectable APIClient shape as internal/modules/s3bucket.
package dnsrecord

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
	ErrSpecInvalid    = errors.New("dnsrecord: invalid spec")
	ErrRecordNotFound = errors.New("dnsrecord: record not found")
)

// Record is the provider-observed state of a single DNS record.
type Record struct {
	Name  string
	Type  string
	Value string
	TTL   int64
}

// APIClient is the dependency-injectable surface this module drives.
type APIClient interface {
	GetRecord(ctx context.Context, zoneID, name, recordType string) (*Record, error)
	UpsertRecord(ctx context.Context, zoneID string, rec Record) error
	DeleteRecord(ctx context.Context, zoneID string, rec Record) error
}

// Spec is the DNSRecord duty_type's decoded spec.
type Spec struct {
	ZoneID string `mapstructure:"zone_id"`
	Name   string `mapstructure:"name"`
	Type   string `mapstructure:"type"`
	Value  string `mapstructure:"value"`
	TTL    int64  `mapstructure:"ttl"`
}

func decodeSpec(raw map[string]any) (Spec, error) {
	var spec Spec
	if err := mapstructure.Decode(raw, &spec); err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrSpecInvalid, err)
	}
	if spec.ZoneID == "" || spec.Name == "" || spec.Type == "" || spec.Value == "" {
		return Spec{}, fmt.Errorf("%w: zone_id, name, type and value are all required", ErrSpecInvalid)
	}
	if spec.TTL == 0 {
		spec.TTL = 300
	}
	return spec, nil
}

// Module is the DNSRecord provider.
type Module struct {
	client APIClient
}

var _ module.Module = (*Module)(nil)

// New builds a DNSRecord module. Pass nil to lazily build a real
// Route 53-backed client from the default AWS credential chain.
func New(client APIClient) *Module {
	return &Module{client: client}
}

func (m *Module) clientFor(ctx context.Context) (APIClient, error) {
	if m.client != nil {
		return m.client, nil
	}
	return NewAWSClient(ctx)
}

func (m *Module) Name() string                  { return "dnsrecord" }
func (m *Module) SupportedDutyTypes() []string   { return []string{"DNSRecord"} }
func (m *Module) RequiredRosterTraits() []string { return []string{"cloud-provider", "dns-manager"} }

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

	rec := Record{Name: spec.Name, Type: spec.Type, Value: spec.Value, TTL: spec.TTL}
	err = modules.WithRetry(ctx, func() error {
		return client.UpsertRecord(ctx, spec.ZoneID, rec)
	})
	if err != nil {
		return module.Result{}, fmt.Errorf("%w: %v", model.ErrModule, err)
	}

	return module.Result{
		Phase:   module.PhaseDeployed,
		Message: fmt.Sprintf("record %q (%s) upserted in zone %q", spec.Name, spec.Type, spec.ZoneID),
		Outputs: map[string]any{
			"record_name": spec.Name,
			"record_fqdn": spec.Name,
		},
		Resources: []model.ResourceSummary{{Kind: "DNSRecord", ID: spec.ZoneID + "/" + spec.Name + "/" + spec.Type}},
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

	rec := Record{Name: spec.Name, Type: spec.Type, Value: spec.Value, TTL: spec.TTL}
	err = modules.WithRetry(ctx, func() error {
		delErr := client.DeleteRecord(ctx, spec.ZoneID, rec)
		if delErr != nil && errors.Is(delErr, ErrRecordNotFound) {
			return nil
		}
		return delErr
	})
	if err != nil {
		return module.Result{}, fmt.Errorf("%w: %v", model.ErrModule, err)
	}

	return module.Result{Phase: module.PhaseDeployed, Message: fmt.Sprintf("record %q (%s) removed", spec.Name, spec.Type)}, nil
}

func init() {
	module.Register(New(nil))
}
