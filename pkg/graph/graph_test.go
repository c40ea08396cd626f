// SPDX-License-Identifier: AGPL-3.0-or-later

package graph

import (
	"errors"
	"testing"

	"g8r/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1 — topological basics (spec.md §8).
func TestPlan_TopologicalBasics(t *testing.T) {
	g, err := Build([]Node{
		{Name: "a"},
		{Name: "b", DependsOn: []string{"a"}},
		{Name: "c", DependsOn: []string{"a"}},
		{Name: "d", DependsOn: []string{"b", "c"}},
	})
	require.NoError(t, err)

	plan, err := g.Plan()
	require.NoError(t, err)

	require.Len(t, plan, 3)
	assert.Equal(t, []string{"a"}, plan[0])
	assert.ElementsMatch(t, []string{"b", "c"}, plan[1])
	assert.Equal(t, []string{"d"}, plan[2])
}

// S2 — cycle detection (spec.md §8).
func TestPlan_Cycle(t *testing.T) {
	g, err := Build([]Node{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
	})
	require.NoError(t, err)

	_, err = g.Plan()
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConfig))
	assert.Contains(t, err.Error(), "circular")
}

func TestBuild_MissingDependency(t *testing.T) {
	_, err := Build([]Node{
		{Name: "a", DependsOn: []string{"ghost"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConfig))
}

func TestBuild_DuplicateName(t *testing.T) {
	_, err := Build([]Node{
		{Name: "a"},
		{Name: "a"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConfig))
}

func TestReverse(t *testing.T) {
	g, err := Build([]Node{
		{Name: "a"},
		{Name: "b", DependsOn: []string{"a"}},
	})
	require.NoError(t, err)

	plan, err := g.Plan()
	require.NoError(t, err)

	rev := Reverse(plan)
	require.Len(t, rev, 2)
	assert.Equal(t, []string{"b"}, rev[0])
	assert.Equal(t, []string{"a"}, rev[1])
}

func TestPlan_Invariant_DependencyInEarlierBatch(t *testing.T) {
	g, err := Build([]Node{
		{Name: "bucket"},
		{Name: "cdn", DependsOn: []string{"bucket"}},
		{Name: "dns", DependsOn: []string{"cdn"}},
	})
	require.NoError(t, err)

	plan, err := g.Plan()
	require.NoError(t, err)

	index := map[string]int{}
	for i, batch := range plan {
		for _, name := range batch {
			index[name] = i
		}
	}

	nodes := map[string][]string{
		"bucket": nil,
		"cdn":    {"bucket"},
		"dns":    {"cdn"},
	}
	for name, deps := range nodes {
		for _, dep := range deps {
			assert.Less(t, index[dep], index[name], "%s must be scheduled before %s", dep, name)
		}
	}
}
