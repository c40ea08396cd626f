// SPDX-License-Identifier: AGPL-3.0-or-later

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"g8r/pkg/kv"
	"g8r/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	rosters map[string]model.Roster
	duties  map[string]model.Duty
	stacks  map[string]model.Stack
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rosters: map[string]model.Roster{},
		duties:  map[string]model.Duty{},
		stacks:  map[string]model.Stack{},
	}
}

func (s *fakeStore) UpsertRoster(ctx context.Context, roster model.Roster) error {
	s.rosters[roster.Name] = roster
	return nil
}
func (s *fakeStore) ListRosters(ctx context.Context) ([]model.Roster, error) {
	var out []model.Roster
	for _, r := range s.rosters {
		out = append(out, r)
	}
	return out, nil
}
func (s *fakeStore) GetRoster(ctx context.Context, name string) (model.Roster, error) {
	r, ok := s.rosters[name]
	if !ok {
		return model.Roster{}, model.ErrNotFound
	}
	return r, nil
}
func (s *fakeStore) UpsertDuty(ctx context.Context, duty model.Duty) error {
	s.duties[duty.Name] = duty
	return nil
}
func (s *fakeStore) ListDuties(ctx context.Context) ([]model.Duty, error) {
	var out []model.Duty
	for _, d := range s.duties {
		out = append(out, d)
	}
	return out, nil
}
func (s *fakeStore) GetDutyByName(ctx context.Context, name string) (model.Duty, error) {
	d, ok := s.duties[name]
	if !ok {
		return model.Duty{}, model.ErrNotFound
	}
	return d, nil
}
func (s *fakeStore) UpsertStack(ctx context.Context, stack model.Stack) error {
	s.stacks[stack.Name] = stack
	return nil
}
func (s *fakeStore) GetStack(ctx context.Context, name string) (model.Stack, error) {
	st, ok := s.stacks[name]
	if !ok {
		return model.Stack{}, model.ErrNotFound
	}
	return st, nil
}
func (s *fakeStore) ListStacks(ctx context.Context) ([]model.Stack, error) {
	var out []model.Stack
	for _, st := range s.stacks {
		out = append(out, st)
	}
	return out, nil
}
func (s *fakeStore) DeleteStack(ctx context.Context, name string) error {
	if _, ok := s.stacks[name]; !ok {
		return model.ErrNotFound
	}
	delete(s.stacks, name)
	return nil
}

type fakeReconciler struct {
	calls int
}

func (r *fakeReconciler) Reconcile(ctx context.Context, variables *kv.VariableContext, initialDuties []model.Duty, load func(ctx context.Context, batchIdx int, rt kv.RuntimeContext) ([]model.Duty, error)) error {
	r.calls++
	return nil
}

type fakeStackManager struct {
	registered   []string
	unregistered []string
	synced       []string
	destroyed    []string
}

func (m *fakeStackManager) Register(parent context.Context, stack model.Stack) {
	m.registered = append(m.registered, stack.Name)
}
func (m *fakeStackManager) Unregister(stackName string) {
	m.unregistered = append(m.unregistered, stackName)
}
func (m *fakeStackManager) SyncNow(ctx context.Context, stackName string) error {
	m.synced = append(m.synced, stackName)
	return nil
}
func (m *fakeStackManager) DestroyNow(ctx context.Context, stackName string) error {
	m.destroyed = append(m.destroyed, stackName)
	return nil
}

func newTestAPI() (*API, *fakeStore, *fakeReconciler, *fakeStackManager) {
	store := newFakeStore()
	reconciler := &fakeReconciler{}
	stacks := &fakeStackManager{}
	return New(store, reconciler, stacks, nil), store, reconciler, stacks
}

func TestHandleHealth(t *testing.T) {
	api, _, _, _ := newTestAPI()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestCreateAndGetRoster(t *testing.T) {
	api, _, _, _ := newTestAPI()
	body := `{"name":"prod-aws","roster_type":"aws","traits":["aws","aws","cloud-provider"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rosters", strings.NewReader(body))
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created model.Roster
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, []string{"aws", "cloud-provider"}, created.Traits)

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/rosters/prod-aws", nil)
	rec2 := httptest.NewRecorder()
	api.Router().ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestGetRoster_NotFoundMapsTo404(t *testing.T) {
	api, _, _, _ := newTestAPI()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/rosters/missing", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReconcileDuty_InvokesController(t *testing.T) {
	api, store, reconciler, _ := newTestAPI()
	store.duties["bucket"] = model.Duty{Name: "bucket", DutyType: "S3Bucket"}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/duties/bucket/reconcile", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, reconciler.calls)
}

func TestCreateStack_RegistersWithManager(t *testing.T) {
	api, _, _, stacks := newTestAPI()
	body := `{"name":"demo","source_type":"git","reconcile_interval":60}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stacks", strings.NewReader(body))
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"demo"}, stacks.registered)
}

func TestSyncStack_CallsManagerSyncNow(t *testing.T) {
	api, _, _, stacks := newTestAPI()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stacks/demo/sync", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"demo"}, stacks.synced)
}

func TestDeleteStack_UnregistersAndDeletes(t *testing.T) {
	api, store, _, stacks := newTestAPI()
	store.stacks["demo"] = model.Stack{Name: "demo"}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/stacks/demo", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"demo"}, stacks.unregistered)
	_, stillExists := store.stacks["demo"]
	assert.False(t, stillExists)
}
