// SPDX-License-Identifier: AGPL-3.0-or-later

package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spec.md §8 invariant 5: global rejects Var, stack rejects Global/Const.
func TestStoreTypeRejection(t *testing.T) {
	stack := NewStackStore()
	err := stack.Set("k", "v", TypeGlobal)
	require.Error(t, err)
	var wrong *ErrWrongType
	assert.ErrorAs(t, err, &wrong)

	err = stack.Set("k", "v", TypeConst)
	require.Error(t, err)

	require.NoError(t, stack.Set("k", "v", TypeVar))

	global := NewGlobalStore(nil)
	err = global.Set("k", "v", TypeVar)
	require.Error(t, err)

	require.NoError(t, global.Set("k", "v", TypeGlobal))
	require.NoError(t, global.Set("k2", "v2", TypeConst))
}

func TestStackStore_NestedSetPath(t *testing.T) {
	s := NewStackStore()
	require.NoError(t, s.SetPath("duties.bucket.outputs.arn", "arn:1"))

	v, ok := s.Get("duties.bucket.outputs.arn")
	require.True(t, ok)
	assert.Equal(t, "arn:1", v)
}

func TestStackStore_SetPath_RejectsNonObjectTraversal(t *testing.T) {
	s := NewStackStore()
	require.NoError(t, s.SetPath("duties.bucket", "not-a-map"))

	err := s.SetPath("duties.bucket.outputs.arn", "arn:1")
	require.Error(t, err)
	var notObj *ErrNotObject
	assert.ErrorAs(t, err, &notObj)
}

func TestGlobalStore_BulkSet(t *testing.T) {
	g := NewGlobalStore(nil)
	err := g.BulkSet(map[string]any{
		"region": "us-east-1",
		"nested": map[string]any{
			"key": "value",
		},
	}, TypeGlobal)
	require.NoError(t, err)

	v, ok := g.Get("region")
	require.True(t, ok)
	assert.Equal(t, "us-east-1", v)

	v, ok = g.Get("nested.key")
	require.True(t, ok)
	assert.Equal(t, "value", v)
}

func TestVariableContext_ResolutionOrder(t *testing.T) {
	stack := NewStackStore()
	global := NewGlobalStore(nil)
	constants := NewGlobalStore(nil)

	require.NoError(t, stack.Set("k", "from-stack", TypeVar))
	require.NoError(t, global.Set("k", "from-global", TypeGlobal))
	require.NoError(t, constants.Set("k", "from-const", TypeConst))

	ctx := NewVariableContext(stack, global, constants)
	v, ok := ctx.Resolve("k")
	require.True(t, ok)
	assert.Equal(t, "from-const", v, "constants win over stack and global")

	require.NoError(t, constants.Set("only-const", "c", TypeConst))
	ctxNoConst := NewVariableContext(stack, global, NewGlobalStore(nil))
	_, ok = ctxNoConst.Resolve("only-const")
	assert.False(t, ok)

	v, ok = ctxNoConst.Resolve("k")
	require.True(t, ok)
	assert.Equal(t, "from-stack", v, "stack wins over global when no const")
}

// spec.md §8 invariant 6: runtime-context generation is idempotent.
func TestBuildRuntimeContext_Idempotent(t *testing.T) {
	global := NewGlobalStore(nil)
	require.NoError(t, global.Set("region", "us-east-1", TypeGlobal))
	constants := NewGlobalStore(nil)
	require.NoError(t, constants.Set("project", "demo", TypeConst))

	ctx := NewVariableContext(NewStackStore(), global, constants)
	outputs := map[string]map[string]any{
		"bucket": {"arn": "arn:1"},
	}

	first := ctx.BuildRuntimeContext(outputs)
	second := ctx.BuildRuntimeContext(outputs)
	assert.Equal(t, first, second)
}
