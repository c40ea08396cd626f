// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package stackmgr supervises one reconciliation loop per registered
// stack: periodic fetch-version-check-reconcile, manual sync and destroy,
// and clean shutdown of every running loop (spec.md §4.8).
package stackmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"g8r/internal/logging"
	"g8r/pkg/kv"
	"g8r/pkg/model"
)

// Source is the subset of source.Source the manager drives. Declared here
// (rather than imported) so stackmgr does not need to know which source
// implementation a stack uses.
type Source interface {
	Init(ctx context.Context) error
	Fetch(ctx context.Context) error
	Version(ctx context.Context) (string, error)
	ConfigPath(ctx context.Context) (string, error)
	HasUpdates(ctx context.Context, lastVersion string) (bool, error)
}

// SourceFactory builds the Source for a stack from its persisted
// source_type/source_config.
type SourceFactory func(stack model.Stack) (Source, error)

// Reconciler is the subset of controller.Controller the manager drives per
// sync cycle. Evaluating the stack's configuration into duties and
// variables is the caller's responsibility, supplied via Load.
type Reconciler interface {
	Reconcile(ctx context.Context, variables *kv.VariableContext, initialDuties []model.Duty, load func(ctx context.Context, batchIdx int, rt kv.RuntimeContext) ([]model.Duty, error)) error
	Destroy(ctx context.Context, duties []model.Duty) error
}

// Loader evaluates a stack's configuration file at configPath into a duty
// set and a VariableContext. rt is the zero RuntimeContext for a stack's
// first batch and the tree built from prior batches' outputs for every
// batch after that, letting a Loader implementation built on
// internal/eval re-render runtime.* references per spec.md §4.4 mode 2.
type Loader func(configPath string, rt kv.RuntimeContext) (duties []model.Duty, variables *kv.VariableContext, err error)

// Store is the subset of persistence the manager needs beyond what the
// Controller already owns.
type Store interface {
	ListStacks(ctx context.Context) ([]model.Stack, error)
	GetStack(ctx context.Context, name string) (model.Stack, error)
	UpdateStackStatus(ctx context.Context, name string, status model.StackStatus) error
	UpdateStackSync(ctx context.Context, name, version string, status model.StackStatus) error
}

// Manager supervises per-stack reconciliation tasks, keyed by stack name.
type Manager struct {
	store      Store
	reconciler Reconciler
	newSource  SourceFactory
	load       Loader
	log        logging.Logger

	mu    sync.RWMutex
	tasks map[string]context.CancelFunc
}

// New builds a Manager. log may be nil for an info-level stderr default.
func New(store Store, reconciler Reconciler, newSource SourceFactory, load Loader, log logging.Logger) *Manager {
	if log == nil {
		log = logging.NewDefault(false)
	}
	return &Manager{
		store:      store,
		reconciler: reconciler,
		newSource:  newSource,
		load:       load,
		log:        log,
		tasks:      make(map[string]context.CancelFunc),
	}
}

// Start loads every persisted stack with a positive reconcile interval and
// spawns its reconciliation loop.
func (m *Manager) Start(ctx context.Context) error {
	m.log.Info("starting stack manager")
	stacks, err := m.store.ListStacks(ctx)
	if err != nil {
		return fmt.Errorf("%w: loading stacks: %v", model.ErrState, err)
	}
	m.log.Info("found stacks to manage", logging.NewField("count", len(stacks)))

	for _, s := range stacks {
		if s.ReconcileInterval > 0 {
			m.Register(ctx, s)
		}
	}
	return nil
}

// Stop cancels every running reconciliation loop.
func (m *Manager) Stop() {
	m.log.Info("stopping stack manager")
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, cancel := range m.tasks {
		m.log.Info("stopping reconciliation task", logging.NewField("stack", name))
		cancel()
	}
	m.tasks = make(map[string]context.CancelFunc)
}

// Register spawns a reconciliation loop for stack if it has a positive
// reconcile interval. If a loop is already running for this stack name, it
// is cancelled first.
func (m *Manager) Register(parent context.Context, stack model.Stack) {
	if stack.ReconcileInterval <= 0 {
		return
	}
	m.Unregister(stack.Name)

	ctx, cancel := context.WithCancel(parent)
	m.mu.Lock()
	m.tasks[stack.Name] = cancel
	m.mu.Unlock()

	interval := time.Duration(stack.ReconcileInterval) * time.Second
	m.log.Info("spawning reconciliation task", logging.NewField("stack", stack.Name), logging.NewField("interval", interval.String()))
	go m.reconciliationLoop(ctx, stack, interval)
}

// Unregister stops stackName's reconciliation loop, if one is running.
func (m *Manager) Unregister(stackName string) {
	m.mu.Lock()
	cancel, ok := m.tasks[stackName]
	if ok {
		delete(m.tasks, stackName)
	}
	m.mu.Unlock()
	if ok {
		m.log.Info("stopping reconciliation task", logging.NewField("stack", stackName))
		cancel()
	}
}

func (m *Manager) reconciliationLoop(ctx context.Context, stack model.Stack, interval time.Duration) {
	src, err := m.newSource(stack)
	if err != nil {
		m.log.Error("failed to create source", logging.NewField("stack", stack.Name), logging.NewField("error", err.Error()))
		_ = m.store.UpdateStackStatus(ctx, stack.Name, model.StackError)
		return
	}
	if err := src.Init(ctx); err != nil {
		m.log.Error("failed to initialize source", logging.NewField("stack", stack.Name), logging.NewField("error", err.Error()))
		_ = m.store.UpdateStackStatus(ctx, stack.Name, model.StackError)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := m.reconcileOnce(ctx, stack, src); err != nil {
			m.log.Error("reconciliation failed", logging.NewField("stack", stack.Name), logging.NewField("error", err.Error()))
			_ = m.store.UpdateStackStatus(ctx, stack.Name, model.StackError)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// reconcileOnce implements spec.md §8 scenario S6: a sync whose source
// version is unchanged from the stack's last recorded version is a no-op;
// a changed version transitions the stack syncing -> synced.
func (m *Manager) reconcileOnce(ctx context.Context, stack model.Stack, src Source) error {
	m.log.Info("checking for updates", logging.NewField("stack", stack.Name))

	if err := src.Fetch(ctx); err != nil {
		return fmt.Errorf("%w: fetching source: %v", model.ErrSource, err)
	}

	current, err := src.Version(ctx)
	if err != nil {
		return fmt.Errorf("%w: reading source version: %v", model.ErrSource, err)
	}

	if current == stack.LastSyncVersion {
		m.log.Info("no updates detected", logging.NewField("stack", stack.Name), logging.NewField("version", current))
		return nil
	}

	if err := m.store.UpdateStackStatus(ctx, stack.Name, model.StackSyncing); err != nil {
		return fmt.Errorf("%w: updating stack status: %v", model.ErrState, err)
	}

	configPath, err := src.ConfigPath(ctx)
	if err != nil {
		return fmt.Errorf("%w: resolving config path: %v", model.ErrSource, err)
	}

	duties, variables, err := m.load(configPath, kv.RuntimeContext{})
	if err != nil {
		return err
	}

	load := func(ctx context.Context, batchIdx int, rt kv.RuntimeContext) ([]model.Duty, error) {
		reEvaluated, _, err := m.load(configPath, rt)
		return reEvaluated, err
	}

	if err := m.reconciler.Reconcile(ctx, variables, duties, load); err != nil {
		return fmt.Errorf("reconciling stack %q: %w", stack.Name, err)
	}

	if err := m.store.UpdateStackSync(ctx, stack.Name, current, model.StackSynced); err != nil {
		return fmt.Errorf("%w: recording sync: %v", model.ErrState, err)
	}
	stack.LastSyncVersion = current

	m.log.Info("reconciliation complete", logging.NewField("stack", stack.Name), logging.NewField("version", current))
	return nil
}

// SyncNow runs one reconciliation cycle for stackName immediately,
// independent of its scheduled interval.
func (m *Manager) SyncNow(ctx context.Context, stackName string) error {
	stack, err := m.store.GetStack(ctx, stackName)
	if err != nil {
		return fmt.Errorf("%w: loading stack %q: %v", model.ErrNotFound, stackName, err)
	}
	src, err := m.newSource(stack)
	if err != nil {
		return err
	}
	if err := src.Init(ctx); err != nil {
		return fmt.Errorf("%w: initializing source: %v", model.ErrSource, err)
	}
	return m.reconcileOnce(ctx, stack, src)
}

// DestroyNow tears down every duty a stack declares, in reverse dependency
// order, and stops its reconciliation loop.
func (m *Manager) DestroyNow(ctx context.Context, stackName string) error {
	stack, err := m.store.GetStack(ctx, stackName)
	if err != nil {
		return fmt.Errorf("%w: loading stack %q: %v", model.ErrNotFound, stackName, err)
	}
	src, err := m.newSource(stack)
	if err != nil {
		return err
	}
	if err := src.Init(ctx); err != nil {
		return fmt.Errorf("%w: initializing source: %v", model.ErrSource, err)
	}
	configPath, err := src.ConfigPath(ctx)
	if err != nil {
		return err
	}
	duties, _, err := m.load(configPath, kv.RuntimeContext{})
	if err != nil {
		return err
	}

	m.Unregister(stackName)
	return m.reconciler.Destroy(ctx, duties)
}
