package rebase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/patch"
	"github.com/homveloper/syncdoc/rebase"
)

func TestRebaseDropsEmptiedChange(t *testing.T) {
	state := map[string]any{"a": 1.0}
	aOps := patch.Patch{{Op: patch.Replace, Path: "/a", Value: 2.0}}
	changes := []common.Change{
		{ID: "c1", BaseRev: 0, Rev: 1, Ops: patch.Patch{{Op: patch.Replace, Path: "/a", Value: 3.0}}},
	}
	out := rebase.Rebase(state, aOps, changes)
	assert.Empty(t, out)
}

func TestRebaseShiftsSurvivingChange(t *testing.T) {
	state := []any{0.0, 1.0, 2.0}
	aOps := patch.Patch{{Op: patch.Add, Path: "/1", Value: "X"}}
	changes := []common.Change{
		{ID: "c1", BaseRev: 0, Rev: 5, Ops: patch.Patch{{Op: patch.Remove, Path: "/2"}}},
	}
	out := rebase.Rebase(state, aOps, changes)
	require.Len(t, out, 1)
	assert.Equal(t, "/3", out[0].Ops[0].Path)
	assert.Equal(t, int64(0), out[0].Rev)
	assert.Equal(t, "c1", out[0].ID)
}

func TestRebasePreservesOrder(t *testing.T) {
	state := map[string]any{}
	aOps := patch.Patch{}
	changes := []common.Change{
		{ID: "c1", Ops: patch.Patch{{Op: patch.Add, Path: "/a", Value: 1.0}}},
		{ID: "c2", Ops: patch.Patch{{Op: patch.Add, Path: "/b", Value: 2.0}}},
	}
	out := rebase.Rebase(state, aOps, changes)
	require.Len(t, out, 2)
	assert.Equal(t, "c1", out[0].ID)
	assert.Equal(t, "c2", out[1].ID)
}
