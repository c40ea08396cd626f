// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"g8r/pkg/kv"
	"g8r/pkg/model"
	"g8r/pkg/module"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	rosters  []model.Roster
	upserted map[string]model.Duty
	statuses map[string]model.DutyStatus
	executed []string
	deleted  []string
}

func newFakeStore(rosters []model.Roster) *fakeStore {
	return &fakeStore{rosters: rosters, upserted: map[string]model.Duty{}, statuses: map[string]model.DutyStatus{}}
}

func (f *fakeStore) ListRosters(ctx context.Context) ([]model.Roster, error) { return f.rosters, nil }

// UpsertDuty replicates pgstore's authoritative-row semantics: a duty must
// be upserted before its status can be updated, or UpdateDutyStatus fails.
func (f *fakeStore) UpsertDuty(ctx context.Context, d model.Duty) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted[d.Name] = d
	return nil
}

func (f *fakeStore) UpdateDutyStatus(ctx context.Context, name string, status model.DutyStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.upserted[name]; !ok {
		return fmt.Errorf("%w: duty %q has no persisted row", model.ErrNotFound, name)
	}
	f.statuses[name] = status
	return nil
}

func (f *fakeStore) RecordExecution(ctx context.Context, exec model.DutyExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, exec.DutyName)
	return nil
}

func (f *fakeStore) DeleteDuty(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return nil
}

type fakeSecrets struct{ values map[string]string }

func (f fakeSecrets) Resolve(ctx context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", errors.New("no such secret")
	}
	return v, nil
}

// captureModule records the duty.Spec it was invoked with, so tests can
// assert instruction substitution happened before Apply ran.
type captureModule struct {
	name        string
	types       []string
	outputs     map[string]any
	applySpecs  map[string]map[string]any
	mu          sync.Mutex
}

func (m *captureModule) Name() string                  { return m.name }
func (m *captureModule) SupportedDutyTypes() []string   { return m.types }
func (m *captureModule) RequiredRosterTraits() []string { return nil }
func (m *captureModule) Validate(context.Context, model.Roster, model.Duty) error { return nil }
func (m *captureModule) Apply(ctx context.Context, r model.Roster, d model.Duty) (module.Result, error) {
	m.mu.Lock()
	if m.applySpecs == nil {
		m.applySpecs = map[string]map[string]any{}
	}
	m.applySpecs[d.Name] = d.Spec
	m.mu.Unlock()
	return module.Result{Phase: model.PhaseDeployed, Outputs: m.outputs}, nil
}
func (m *captureModule) Destroy(ctx context.Context, r model.Roster, d model.Duty) (module.Result, error) {
	return module.Result{Phase: model.PhaseDeployed}, nil
}

func testRoster() model.Roster {
	return model.Roster{Name: "r1", RosterType: "aws", Traits: []string{"aws"}}
}

// S3 — runtime-context output propagation across batches.
func TestReconcile_PropagatesOutputsAcrossBatches(t *testing.T) {
	registry := module.NewRegistry()
	bucketMod := &captureModule{name: "bucket-mod", types: []string{"S3Bucket"}, outputs: map[string]any{"arn": "arn:1"}}
	cdnMod := &captureModule{name: "cdn-mod", types: []string{"CDNDistribution"}, outputs: map[string]any{}}
	registry.Register(bucketMod)
	registry.Register(cdnMod)

	store := newFakeStore([]model.Roster{testRoster()})
	c := New(store, registry, fakeSecrets{}, nil)

	bucket := model.Duty{Name: "bucket", DutyType: "S3Bucket", Spec: map[string]any{}}
	cdn := model.Duty{
		Name:     "cdn",
		DutyType: "CDNDistribution",
		Spec:     map[string]any{"bucket_arn": "__INSTRUCTION_1__"},
		Metadata: model.DutyMetadata{
			DependsOn: []string{"bucket"},
			Instructions: []model.Instruction{
				{Token: "__INSTRUCTION_1__", Type: "g8r_output", Args: []string{"bucket", "arn"}, TargetPath: "bucket_arn"},
			},
		},
	}

	variables := kv.NewVariableContext(kv.NewStackStore(), kv.NewGlobalStore(nil), kv.NewGlobalStore(nil))

	load := func(ctx context.Context, batchIdx int, rt kv.RuntimeContext) ([]model.Duty, error) {
		return []model.Duty{bucket, cdn}, nil
	}

	err := c.Reconcile(context.Background(), variables, []model.Duty{bucket, cdn}, load)
	require.NoError(t, err)

	cdnSpec := cdnMod.applySpecs["cdn"]
	require.NotNil(t, cdnSpec)
	assert.Equal(t, "arn:1", cdnSpec["bucket_arn"], "instruction token resolved from bucket's outputs before Apply")
}

// spec.md §4.6 step 1: a duty sourced only from a stack's configuration,
// never separately POSTed through the HTTP API, must still persist
// successfully — Reconcile upserts every duty before acting on it.
func TestReconcile_UpsertsDutiesNotPreviouslyPersisted(t *testing.T) {
	registry := module.NewRegistry()
	mod := &captureModule{name: "bucket-mod", types: []string{"S3Bucket"}, outputs: map[string]any{}}
	registry.Register(mod)

	store := newFakeStore([]model.Roster{testRoster()})
	c := New(store, registry, fakeSecrets{}, nil)

	bucket := model.Duty{Name: "bucket", DutyType: "S3Bucket", Spec: map[string]any{}}
	variables := kv.NewVariableContext(kv.NewStackStore(), kv.NewGlobalStore(nil), kv.NewGlobalStore(nil))

	err := c.Reconcile(context.Background(), variables, []model.Duty{bucket}, nil)
	require.NoError(t, err)

	_, ok := store.upserted["bucket"]
	assert.True(t, ok, "duty should have been upserted before its status was updated")
}

func TestReconcile_UnknownDutyTypeFails(t *testing.T) {
	registry := module.NewRegistry()
	store := newFakeStore([]model.Roster{testRoster()})
	c := New(store, registry, fakeSecrets{}, nil)

	duty := model.Duty{Name: "mystery", DutyType: "Unhandled", Spec: map[string]any{}}
	variables := kv.NewVariableContext(kv.NewStackStore(), kv.NewGlobalStore(nil), kv.NewGlobalStore(nil))

	err := c.Reconcile(context.Background(), variables, []model.Duty{duty}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrUnsupportedDutyType))
}

// spec.md §8 invariant 4: destroy order is the reverse of apply order.
func TestDestroy_ReversesDependencyOrder(t *testing.T) {
	registry := module.NewRegistry()
	var order []string
	var mu sync.Mutex
	record := func(name string) { mu.Lock(); order = append(order, name); mu.Unlock() }

	registry.Register(&recordingModule{name: "bucket-mod", types: []string{"S3Bucket"}, onDestroy: func() { record("bucket") }})
	registry.Register(&recordingModule{name: "cdn-mod", types: []string{"CDNDistribution"}, onDestroy: func() { record("cdn") }})

	store := newFakeStore([]model.Roster{testRoster()})
	c := New(store, registry, fakeSecrets{}, nil)

	bucket := model.Duty{Name: "bucket", DutyType: "S3Bucket", Spec: map[string]any{}}
	cdn := model.Duty{Name: "cdn", DutyType: "CDNDistribution", Spec: map[string]any{}, Metadata: model.DutyMetadata{DependsOn: []string{"bucket"}}}

	err := c.Destroy(context.Background(), []model.Duty{bucket, cdn})
	require.NoError(t, err)
	assert.Equal(t, []string{"cdn", "bucket"}, order)
	assert.ElementsMatch(t, []string{"bucket", "cdn"}, store.deleted)
}

type recordingModule struct {
	name      string
	types     []string
	onDestroy func()
}

func (m *recordingModule) Name() string                  { return m.name }
func (m *recordingModule) SupportedDutyTypes() []string   { return m.types }
func (m *recordingModule) RequiredRosterTraits() []string { return nil }
func (m *recordingModule) Validate(context.Context, model.Roster, model.Duty) error { return nil }
func (m *recordingModule) Apply(context.Context, model.Roster, model.Duty) (module.Result, error) {
	return module.Result{Phase: model.PhaseDeployed}, nil
}
func (m *recordingModule) Destroy(context.Context, model.Roster, model.Duty) (module.Result, error) {
	m.onDestroy()
	return module.Result{Phase: model.PhaseDeployed}, nil
}
