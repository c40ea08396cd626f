// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package graph builds a dependency graph over duty names and produces a
// batch-emitting topological plan (spec.md §4.1). Nodes are identified by
// name, not by pointer: batch k may only reference outputs of duties in
// batches 0..k-1, so names are the only identity that needs to survive
// across batches.
package graph

import (
	"fmt"
	"sort"

	"g8r/pkg/model"
)

// Node is the minimal shape the planner needs from a duty: its name and the
// names of the duties it depends on.
type Node struct {
	Name      string
	DependsOn []string
}

// Graph is the in-degree / reverse-edge representation of a duty set. It is
// derived, never persisted (spec.md §3).
type Graph struct {
	nodes   map[string]Node
	inDeg   map[string]int
	outEdge map[string][]string // dependency -> dependents
}

// Build constructs a Graph from a duty set, validating that every
// depends_on reference resolves within the set (spec.md §3's
// DependencyGraph invariant).
func Build(nodes []Node) (*Graph, error) {
	g := &Graph{
		nodes:   make(map[string]Node, len(nodes)),
		inDeg:   make(map[string]int, len(nodes)),
		outEdge: make(map[string][]string, len(nodes)),
	}

	for _, n := range nodes {
		if _, dup := g.nodes[n.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate duty name %q", model.ErrConfig, n.Name)
		}
		g.nodes[n.Name] = n
		g.inDeg[n.Name] = 0
	}

	for _, n := range nodes {
		for _, dep := range n.DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				return nil, fmt.Errorf("%w: duty %q depends on unknown duty %q", model.ErrConfig, n.Name, dep)
			}
			g.outEdge[dep] = append(g.outEdge[dep], n.Name)
			g.inDeg[n.Name]++
		}
	}

	return g, nil
}

// Plan runs Kahn's algorithm in batch-emitting form: each round collects all
// zero-in-degree nodes as one batch, then decrements the in-degree of their
// dependents. Within a batch the order is unspecified and callers MUST NOT
// rely on it; Plan sorts lexicographically only to keep output deterministic
// for tests and logs, not as a semantic guarantee.
func (g *Graph) Plan() ([][]string, error) {
	inDeg := make(map[string]int, len(g.inDeg))
	for k, v := range g.inDeg {
		inDeg[k] = v
	}

	remaining := len(g.nodes)
	var batches [][]string

	for remaining > 0 {
		var batch []string
		for name, d := range inDeg {
			if d == 0 {
				batch = append(batch, name)
			}
		}
		if len(batch) == 0 {
			return nil, cycleError(inDeg)
		}
		sort.Strings(batch)

		for _, name := range batch {
			delete(inDeg, name)
			remaining--
			for _, dependent := range g.outEdge[name] {
				inDeg[dependent]--
			}
		}
		batches = append(batches, batch)
	}

	return batches, nil
}

// Reverse produces the destroy-order plan: the same batches, emitted in
// reverse order so leaf dependents are destroyed before their dependencies
// (spec.md §4.1 "Destroy planning").
func Reverse(batches [][]string) [][]string {
	out := make([][]string, len(batches))
	for i, b := range batches {
		out[len(batches)-1-i] = b
	}
	return out
}

// cycleError reports the duty names that never reached zero in-degree,
// i.e. the cycle members, satisfying spec.md §4.1's "naming cycle members
// is desirable" guidance.
func cycleError(remaining map[string]int) error {
	names := make([]string, 0, len(remaining))
	for name := range remaining {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("%w: circular dependency among duties %v", model.ErrConfig, names)
}
