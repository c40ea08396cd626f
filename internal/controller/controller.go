// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package controller implements the reconciliation loop: building a
// dependency-ordered execution plan, re-evaluating configuration with
// runtime context between batches, matching rosters, selecting modules,
// and driving Validate/Apply/Destroy (spec.md §4.6).
package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"g8r/internal/logging"
	"g8r/pkg/graph"
	"g8r/pkg/kv"
	"g8r/pkg/model"
	"g8r/pkg/module"
)

// Store is the subset of persistence the controller needs. The concrete
// implementation lives in internal/store.
type Store interface {
	ListRosters(ctx context.Context) ([]model.Roster, error)
	UpsertDuty(ctx context.Context, d model.Duty) error
	UpdateDutyStatus(ctx context.Context, name string, status model.DutyStatus) error
	RecordExecution(ctx context.Context, exec model.DutyExecution) error
	DeleteDuty(ctx context.Context, name string) error
}

// SecretResolver resolves a g8r_secret instruction's key into its value.
// The concrete scheme-keyed registry lives in internal/secrets.
type SecretResolver interface {
	Resolve(ctx context.Context, key string) (string, error)
}

// BatchLoader supplies the duties to execute for a given batch. Batch 0
// always uses the initial duty set passed to Reconcile; batches after that
// call BatchLoader with the runtime context assembled from every prior
// batch's outputs, letting the caller re-evaluate configuration (spec.md
// §4.4 mode 2) before the batch runs.
// BatchLoader is a type alias (not a defined type) so that *Controller
// satisfies httpapi.Reconciler and stackmgr.Reconciler, both of which spell
// this parameter as an unnamed func type.
type BatchLoader = func(ctx context.Context, batchIndex int, runtime kv.RuntimeContext) ([]model.Duty, error)

// Controller drives reconciliation for one stack's duty set.
type Controller struct {
	Store    Store
	Registry *module.Registry
	Secrets  SecretResolver
	Log      logging.Logger
}

// New builds a Controller. log may be nil, in which case an info-level stderr default
// is used.
func New(store Store, registry *module.Registry, secrets SecretResolver, log logging.Logger) *Controller {
	if log == nil {
		log = logging.NewDefault(false)
	}
	return &Controller{Store: store, Registry: registry, Secrets: secrets, Log: log}
}

// Reconcile runs the full dependency-ordered apply plan: builds the graph
// from initialDuties, executes batch by batch, re-evaluating configuration
// via load for batch index > 0, and persisting status/outputs as each duty
// completes. Within a batch, duties run concurrently (spec.md open
// question on within-batch parallelism, resolved in favor of
// errgroup-based concurrency); the controller itself never retries a
// failed duty — at-most-once progression per batch (spec.md §8 invariant
// 3's idempotence guarantee belongs to each module's Apply).
func (c *Controller) Reconcile(ctx context.Context, variables *kv.VariableContext, initialDuties []model.Duty, load BatchLoader) error {
	rosters, err := c.Store.ListRosters(ctx)
	if err != nil {
		return fmt.Errorf("%w: listing rosters: %v", model.ErrState, err)
	}

	g, err := buildGraph(initialDuties)
	if err != nil {
		return err
	}
	batches, err := g.Plan()
	if err != nil {
		return err
	}

	var outputsMu sync.Mutex
	outputs := make(map[string]map[string]any)

	for batchIdx, names := range batches {
		rt := variables.BuildRuntimeContext(snapshotOutputs(outputs, &outputsMu))

		var duties []model.Duty
		if batchIdx == 0 {
			duties = initialDuties
		} else {
			c.Log.Info("re-evaluating configuration with runtime context", logging.NewField("batch", batchIdx))
			duties, err = load(ctx, batchIdx, rt)
			if err != nil {
				return err
			}
		}

		if err := c.upsertDuties(ctx, duties); err != nil {
			return err
		}
		byName := dutyIndex(duties)

		eg, egCtx := errgroup.WithContext(ctx)
		for _, name := range names {
			name := name
			duty, ok := byName[name]
			if !ok {
				return fmt.Errorf("%w: duty %q not found after re-evaluation for batch %d", model.ErrConfig, name, batchIdx)
			}
			eg.Go(func() error {
				return c.reconcileOne(egCtx, rosters, duty, outputs, &outputsMu)
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}

	return nil
}

// upsertDuties persists every duty by name before it is reconciled,
// obtaining authoritative ids for duties sourced from a stack's
// configuration rather than POSTed individually through the HTTP API
// (spec.md §4.6 step 1).
func (c *Controller) upsertDuties(ctx context.Context, duties []model.Duty) error {
	for _, d := range duties {
		if err := c.Store.UpsertDuty(ctx, d); err != nil {
			return fmt.Errorf("%w: upserting duty %q: %v", model.ErrState, d.Name, err)
		}
	}
	return nil
}

func (c *Controller) reconcileOne(ctx context.Context, rosters []model.Roster, duty model.Duty, outputs map[string]map[string]any, outputsMu *sync.Mutex) error {
	c.Log.Info("reconciling duty", logging.NewField("duty", duty.Name), logging.NewField("duty_type", duty.DutyType))

	mod, err := c.Registry.ForDutyType(duty.DutyType)
	if err != nil {
		return err
	}

	roster, err := module.SelectRoster(rosters, duty.RosterSelector)
	if err != nil {
		return err
	}
	if err := module.RequireTraits(roster, mod.RequiredRosterTraits()); err != nil {
		return err
	}

	if err := c.resolveInstructions(ctx, &duty, outputs, outputsMu); err != nil {
		return err
	}

	if err := mod.Validate(ctx, roster, duty); err != nil {
		return fmt.Errorf("%w: validating duty %q: %v", model.ErrModule, duty.Name, err)
	}

	result, err := mod.Apply(ctx, roster, duty)
	if err != nil {
		_ = c.Store.UpdateDutyStatus(ctx, duty.Name, model.DutyStatus{Phase: model.PhaseFailed, Message: err.Error()})
		return fmt.Errorf("%w: applying duty %q: %v", model.ErrModule, duty.Name, err)
	}

	status := model.DutyStatus{Phase: result.Phase, Message: result.Message, Outputs: result.Outputs, Resources: result.Resources}
	if err := c.Store.UpdateDutyStatus(ctx, duty.Name, status); err != nil {
		return fmt.Errorf("%w: persisting status for duty %q: %v", model.ErrState, duty.Name, err)
	}
	if err := c.Store.RecordExecution(ctx, model.DutyExecution{DutyName: duty.Name, Status: model.ExecutionSucceeded}); err != nil {
		return fmt.Errorf("%w: recording execution for duty %q: %v", model.ErrState, duty.Name, err)
	}

	outputsMu.Lock()
	outputs[duty.Name] = result.Outputs
	outputsMu.Unlock()

	c.Log.Info("duty reconciled", logging.NewField("duty", duty.Name), logging.NewField("phase", string(result.Phase)))
	return nil
}

// resolveInstructions substitutes each of duty.Metadata.Instructions'
// resolved value into duty.Spec at its recorded target path, just before
// the module is invoked (spec.md §4.4 mode 3). g8r_output references the
// referenced duty's stored outputs; g8r_secret resolves through Secrets.
func (c *Controller) resolveInstructions(ctx context.Context, duty *model.Duty, outputs map[string]map[string]any, outputsMu *sync.Mutex) error {
	for _, inst := range duty.Metadata.Instructions {
		var value any
		switch inst.Type {
		case "g8r_output":
			if len(inst.Args) != 2 {
				return fmt.Errorf("%w: malformed g8r_output instruction on duty %q", model.ErrConfig, duty.Name)
			}
			outputsMu.Lock()
			dutyOutputs, ok := outputs[inst.Args[0]]
			outputsMu.Unlock()
			if !ok {
				return fmt.Errorf("%w: duty %q references output of %q, which has not run yet", model.ErrConfig, duty.Name, inst.Args[0])
			}
			v, ok := dutyOutputs[inst.Args[1]]
			if !ok {
				return fmt.Errorf("%w: duty %q references unknown output %q.%q", model.ErrConfig, duty.Name, inst.Args[0], inst.Args[1])
			}
			value = v

		case "g8r_secret":
			if len(inst.Args) != 1 {
				return fmt.Errorf("%w: malformed g8r_secret instruction on duty %q", model.ErrConfig, duty.Name)
			}
			resolved, err := c.Secrets.Resolve(ctx, inst.Args[0])
			if err != nil {
				return fmt.Errorf("%w: resolving secret for duty %q: %v", model.ErrConfig, duty.Name, err)
			}
			value = resolved

		default:
			return fmt.Errorf("%w: unknown instruction type %q on duty %q", model.ErrConfig, inst.Type, duty.Name)
		}

		if err := setSpecPath(duty.Spec, inst.TargetPath, value); err != nil {
			return fmt.Errorf("%w: substituting instruction %s on duty %q: %v", model.ErrConfig, inst.Token, duty.Name, err)
		}
	}
	return nil
}

// Destroy tears down duties in reverse dependency order, so a duty never
// has to tolerate a dependency disappearing out from under it (spec.md §8
// invariant 4: destroy order is always the reverse of apply order).
func (c *Controller) Destroy(ctx context.Context, duties []model.Duty) error {
	rosters, err := c.Store.ListRosters(ctx)
	if err != nil {
		return fmt.Errorf("%w: listing rosters: %v", model.ErrState, err)
	}
	if err := c.upsertDuties(ctx, duties); err != nil {
		return err
	}

	g, err := buildGraph(duties)
	if err != nil {
		return err
	}
	batches, err := g.Plan()
	if err != nil {
		return err
	}
	batches = graph.Reverse(batches)
	byName := dutyIndex(duties)

	for _, names := range batches {
		eg, egCtx := errgroup.WithContext(ctx)
		for _, name := range names {
			duty := byName[name]
			eg.Go(func() error { return c.destroyOne(egCtx, rosters, duty) })
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) destroyOne(ctx context.Context, rosters []model.Roster, duty model.Duty) error {
	mod, err := c.Registry.ForDutyType(duty.DutyType)
	if err != nil {
		return err
	}
	roster, err := module.SelectRoster(rosters, duty.RosterSelector)
	if err != nil {
		return err
	}
	if _, err := mod.Destroy(ctx, roster, duty); err != nil {
		return fmt.Errorf("%w: destroying duty %q: %v", model.ErrModule, duty.Name, err)
	}
	if err := c.Store.DeleteDuty(ctx, duty.Name); err != nil {
		return fmt.Errorf("%w: deleting duty %q: %v", model.ErrState, duty.Name, err)
	}
	c.Log.Info("duty destroyed", logging.NewField("duty", duty.Name))
	return nil
}

func buildGraph(duties []model.Duty) (*graph.Graph, error) {
	nodes := make([]graph.Node, 0, len(duties))
	for _, d := range duties {
		nodes = append(nodes, graph.Node{Name: d.Name, DependsOn: d.Metadata.DependsOn})
	}
	return graph.Build(nodes)
}

func dutyIndex(duties []model.Duty) map[string]model.Duty {
	idx := make(map[string]model.Duty, len(duties))
	for _, d := range duties {
		idx[d.Name] = d
	}
	return idx
}

func snapshotOutputs(outputs map[string]map[string]any, mu *sync.Mutex) map[string]map[string]any {
	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]map[string]any, len(outputs))
	for k, v := range outputs {
		out[k] = v
	}
	return out
}

// setSpecPath writes value at a dotted path within an existing spec tree.
// Unlike kv.setPath it never auto-vivifies: the path must already exist,
// since it was discovered by walking the parsed spec for a placeholder
// token. Bracketed array-index segments are not supported as instruction
// targets.
func setSpecPath(spec map[string]any, path string, value any) error {
	parts := strings.Split(path, ".")
	cur := spec
	for i, p := range parts {
		if strings.Contains(p, "[") {
			return fmt.Errorf("array-indexed instruction targets are not supported: %q", path)
		}
		if i == len(parts)-1 {
			cur[p] = value
			return nil
		}
		next, ok := cur[p].(map[string]any)
		if !ok {
			return fmt.Errorf("path %q does not resolve to an object at %q", path, p)
		}
		cur = next
	}
	return nil
}
