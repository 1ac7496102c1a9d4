package lww_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/lww"
	"github.com/homveloper/syncdoc/patch"
)

func TestMergeServerWithLocalCombinableFoldsOntoServerValue(t *testing.T) {
	serverChanges := []common.Change{
		{ID: "s1", Rev: 5, Ops: patch.Patch{{Op: patch.Replace, Path: "/hp", Value: 80.0}}},
	}
	localOps := patch.Patch{{Op: patch.Inc, Path: "/hp", Value: 5.0}}

	out := lww.MergeServerWithLocal(serverChanges, localOps)
	require.Len(t, out.Changes, 1)
	assert.Equal(t, 85.0, out.Changes[0].Ops[0].Value)
	assert.Nil(t, out.UpdatedLocalOps)
}

func TestMergeServerWithLocalCombinableOntoRemoveBecomesReplace(t *testing.T) {
	serverChanges := []common.Change{
		{ID: "s1", Rev: 5, Ops: patch.Patch{{Op: patch.Remove, Path: "/hp"}}},
	}
	localOps := patch.Patch{{Op: patch.Inc, Path: "/hp", Value: 5.0}}

	out := lww.MergeServerWithLocal(serverChanges, localOps)
	require.Len(t, out.Changes, 1)
	assert.Equal(t, patch.Replace, out.Changes[0].Ops[0].Op)
	assert.Equal(t, 5.0, out.Changes[0].Ops[0].Value)
}

func TestMergeServerWithLocalNonCombinableServerWins(t *testing.T) {
	serverChanges := []common.Change{
		{ID: "s1", Rev: 5, Ops: patch.Patch{{Op: patch.Replace, Path: "/name", Value: "server-value"}}},
	}
	localOps := patch.Patch{{Op: patch.Replace, Path: "/name", Value: "local-value"}}

	out := lww.MergeServerWithLocal(serverChanges, localOps)
	require.Len(t, out.Changes, 1)
	assert.Equal(t, "server-value", out.Changes[0].Ops[0].Value)
}

func TestMergeServerWithLocalUntouchedPathsAppendToLastChange(t *testing.T) {
	serverChanges := []common.Change{
		{ID: "s1", Rev: 5, Ops: patch.Patch{{Op: patch.Replace, Path: "/a", Value: 1.0}}},
		{ID: "s2", Rev: 6, Ops: patch.Patch{{Op: patch.Replace, Path: "/b", Value: 2.0}}},
	}
	localOps := patch.Patch{{Op: patch.Replace, Path: "/c", Value: 3.0}}

	out := lww.MergeServerWithLocal(serverChanges, localOps)
	require.Len(t, out.Changes, 2)
	last := out.Changes[1]
	require.Len(t, last.Ops, 2)
	assert.Equal(t, "/c", last.Ops[1].Path)
}

func TestMergeServerWithLocalTxtBidirectionalTransform(t *testing.T) {
	serverChanges := []common.Change{
		{ID: "s1", Rev: 5, Ops: patch.Patch{{Op: patch.Txt, Path: "/doc", Value: textDelta("hello")}}},
	}
	localOps := patch.Patch{{Op: patch.Txt, Path: "/doc", Value: textDelta(" world")}}

	out := lww.MergeServerWithLocal(serverChanges, localOps)
	require.Len(t, out.Changes, 1)
	require.NotNil(t, out.UpdatedLocalOps)
	require.Len(t, out.UpdatedLocalOps, 1)
	assert.Equal(t, patch.Txt, out.UpdatedLocalOps[0].Op)
}
