// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package httpapi exposes the control plane's management surface
// (spec.md §4.11): roster and duty CRUD, on-demand reconciliation, and
// stack lifecycle operations. Routing follows go-chi/chi, the router the
// broader example corpus pulls in for HTTP services; the health endpoint
// follows the plain net/http health-check idiom used throughout the pack
// (e.g. a `/health` handler returning a small JSON body).
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"g8r/internal/logging"
	"g8r/pkg/kv"
	"g8r/pkg/model"
)

// Store is the persistence surface the API reads and writes directly.
type Store interface {
	UpsertRoster(ctx context.Context, roster model.Roster) error
	ListRosters(ctx context.Context) ([]model.Roster, error)
	GetRoster(ctx context.Context, name string) (model.Roster, error)

	UpsertDuty(ctx context.Context, duty model.Duty) error
	ListDuties(ctx context.Context) ([]model.Duty, error)
	GetDutyByName(ctx context.Context, name string) (model.Duty, error)

	UpsertStack(ctx context.Context, stack model.Stack) error
	GetStack(ctx context.Context, name string) (model.Stack, error)
	ListStacks(ctx context.Context) ([]model.Stack, error)
	DeleteStack(ctx context.Context, name string) error
}

// Reconciler drives one-off reconciliation of a single duty outside of any
// stack's scheduled loop.
type Reconciler interface {
	Reconcile(ctx context.Context, variables *kv.VariableContext, initialDuties []model.Duty, load func(ctx context.Context, batchIdx int, rt kv.RuntimeContext) ([]model.Duty, error)) error
}

// StackManager is the subset of stackmgr.Manager the API drives.
type StackManager interface {
	Register(parent context.Context, stack model.Stack)
	Unregister(stackName string)
	SyncNow(ctx context.Context, stackName string) error
	DestroyNow(ctx context.Context, stackName string) error
}

// API wires persistence and the reconciliation components behind chi
// handlers.
type API struct {
	Store      Store
	Reconciler Reconciler
	Stacks     StackManager
	Log        logging.Logger
}

// New constructs an API. log may be nil for an info-level stderr default.
func New(store Store, reconciler Reconciler, stacks StackManager, log logging.Logger) *API {
	if log == nil {
		log = logging.NewDefault(false)
	}
	return &API{Store: store, Reconciler: reconciler, Stacks: stacks, Log: log}
}

// Router builds the chi.Router serving every route in spec.md §4.11.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.logRequests)

	r.Get("/health", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/rosters", func(r chi.Router) {
			r.Get("/", a.handleListRosters)
			r.Post("/", a.handleCreateRoster)
			r.Get("/{name}", a.handleGetRoster)
		})

		r.Route("/duties", func(r chi.Router) {
			r.Get("/", a.handleListDuties)
			r.Post("/", a.handleCreateDuty)
			r.Get("/{name}", a.handleGetDuty)
			r.Post("/{name}/reconcile", a.handleReconcileDuty)
		})

		r.Route("/stacks", func(r chi.Router) {
			r.Get("/", a.handleListStacks)
			r.Post("/", a.handleCreateStack)
			r.Get("/{name}", a.handleGetStack)
			r.Delete("/{name}", a.handleDeleteStack)
			r.Post("/{name}/sync", a.handleSyncStack)
			r.Post("/{name}/destroy", a.handleDestroyStack)
		})
	})

	return r
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		a.Log.Debug("http request", logging.NewField("method", req.Method), logging.NewField("path", req.URL.Path))
		next.ServeHTTP(w, req)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleListRosters(w http.ResponseWriter, r *http.Request) {
	rosters, err := a.Store.ListRosters(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rosters)
}

func (a *API) handleCreateRoster(w http.ResponseWriter, r *http.Request) {
	var roster model.Roster
	if err := json.NewDecoder(r.Body).Decode(&roster); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err))
		return
	}
	roster.Traits = model.NormalizeTraits(roster.Traits)
	if err := a.Store.UpsertRoster(r.Context(), roster); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, roster)
}

func (a *API) handleGetRoster(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	roster, err := a.Store.GetRoster(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

func (a *API) handleListDuties(w http.ResponseWriter, r *http.Request) {
	duties, err := a.Store.ListDuties(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, duties)
}

func (a *API) handleCreateDuty(w http.ResponseWriter, r *http.Request) {
	var duty model.Duty
	if err := json.NewDecoder(r.Body).Decode(&duty); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err))
		return
	}
	if err := a.Store.UpsertDuty(r.Context(), duty); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, duty)
}

func (a *API) handleGetDuty(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	duty, err := a.Store.GetDutyByName(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, duty)
}

// handleReconcileDuty runs a single duty through the controller outside of
// any stack's scheduled loop, for operator-triggered one-off reconciles.
func (a *API) handleReconcileDuty(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	duty, err := a.Store.GetDutyByName(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}

	variables := kv.NewVariableContext(kv.NewStackStore(), kv.NewGlobalStore(nil), kv.NewGlobalStore(nil))
	load := func(ctx context.Context, batchIdx int, rt kv.RuntimeContext) ([]model.Duty, error) {
		return nil, nil
	}
	if err := a.Reconciler.Reconcile(r.Context(), variables, []model.Duty{duty}, load); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reconciled"})
}

func (a *API) handleListStacks(w http.ResponseWriter, r *http.Request) {
	stacks, err := a.Store.ListStacks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stacks)
}

func (a *API) handleCreateStack(w http.ResponseWriter, r *http.Request) {
	var stack model.Stack
	if err := json.NewDecoder(r.Body).Decode(&stack); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody(err))
		return
	}
	if stack.Status == "" {
		stack.Status = model.StackPending
	}
	if err := a.Store.UpsertStack(r.Context(), stack); err != nil {
		writeError(w, err)
		return
	}
	a.Stacks.Register(context.Background(), stack)
	writeJSON(w, http.StatusCreated, stack)
}

func (a *API) handleGetStack(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	stack, err := a.Store.GetStack(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stack)
}

func (a *API) handleDeleteStack(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	a.Stacks.Unregister(name)
	if err := a.Store.DeleteStack(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSyncStack(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := a.Stacks.SyncNow(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "synced"})
}

func (a *API) handleDestroyStack(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := a.Stacks.DestroyNow(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "destroyed"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

// writeError maps the control plane's sentinel error kinds onto HTTP status
// codes (spec.md §7: "ErrNotFound is surfaced as HTTP 404 by the management
// API").
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrConfig), errors.Is(err, model.ErrNoMatchingRoster), errors.Is(err, model.ErrUnsupportedDutyType):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrModule), errors.Is(err, model.ErrSource), errors.Is(err, model.ErrState):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errBody(err))
}
