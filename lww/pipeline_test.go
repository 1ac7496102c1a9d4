package lww_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/lww"
	"github.com/homveloper/syncdoc/patch"
	"github.com/homveloper/syncdoc/storage/memstore"
)

func TestCommitFieldOpsPersistsAndFoldsSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	_, err := lww.CommitFieldOps(ctx, store, "doc1", []common.FieldRecord{
		{Path: "/hp", Op: patch.Replace, Value: 100.0, Ts: ts(1)},
	}, lww.Options{})
	require.NoError(t, err)

	result, err := lww.CommitFieldOps(ctx, store, "doc1", []common.FieldRecord{
		{Path: "/hp", Op: patch.Inc, Value: -10.0, Ts: ts(2)},
	}, lww.Options{})
	require.NoError(t, err)
	require.Len(t, result.Consolidate.OpsToSave, 1)

	snapshot, _, err := store.GetSnapshot(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"hp": 90.0}, snapshot)
}

func TestCommitFieldOpsAncestorOverwriteDeletesDescendantFromSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	_, err := lww.CommitFieldOps(ctx, store, "doc1", []common.FieldRecord{
		{Path: "/user/name", Op: patch.Replace, Value: "alice", Ts: ts(1)},
	}, lww.Options{})
	require.NoError(t, err)

	_, err = lww.CommitFieldOps(ctx, store, "doc1", []common.FieldRecord{
		{Path: "/user", Op: patch.Replace, Value: map[string]any{"name": "bob"}, Ts: ts(2)},
	}, lww.Options{})
	require.NoError(t, err)

	snapshot, _, err := store.GetSnapshot(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"user": map[string]any{"name": "bob"}}, snapshot)
}

func TestMergeBranchAppliesFieldRecordsAndMarksBranchMerged(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	_, err := store.SaveOps(ctx, "branch1", []common.FieldRecord{
		{Path: "/hp", Op: patch.Replace, Value: 42.0, Ts: ts(5)},
	})
	require.NoError(t, err)
	require.NoError(t, store.CreateBranch(ctx, common.Branch{
		ID: "branch1", SourceDocID: "doc1", Status: common.BranchOpen,
	}))

	result, err := lww.MergeBranch(ctx, store, common.Branch{
		ID: "branch1", SourceDocID: "doc1", Status: common.BranchOpen,
	}, lww.Options{})
	require.NoError(t, err)
	require.Len(t, result.Consolidate.OpsToSave, 1)

	branch, err := store.LoadBranch(ctx, "branch1")
	require.NoError(t, err)
	assert.Equal(t, common.BranchMerged, branch.Status)

	snapshot, _, err := store.GetSnapshot(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"hp": 42.0}, snapshot)
}
