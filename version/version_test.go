package version_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/patch"
	"github.com/homveloper/syncdoc/storage"
	"github.com/homveloper/syncdoc/storage/memstore"
	"github.com/homveloper/syncdoc/version"
)

func TestFoldState(t *testing.T) {
	base := map[string]any{"x": 1.0}
	changes := []common.Change{
		{Ops: patch.Patch{{Op: patch.Replace, Path: "/x", Value: 2.0}}},
		{Ops: patch.Patch{{Op: patch.Add, Path: "/y", Value: 3.0}}},
	}
	out, err := version.FoldState(base, changes)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 2.0, "y": 3.0}, out)
}

func TestStateAtRevisionNoVersions(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	docID := "doc1"
	require.NoError(t, store.SaveChanges(ctx, docID, []common.Change{
		{ID: "c1", Rev: 1, Ops: patch.Patch{{Op: patch.Add, Path: "/a", Value: 1.0}}},
		{ID: "c2", Rev: 2, Ops: patch.Patch{{Op: patch.Add, Path: "/b", Value: 2.0}}},
	}))

	state, rev, err := version.StateAtRevision(ctx, store, docID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rev)
	assert.Equal(t, map[string]any{"a": 1.0, "b": 2.0}, state)
}

func TestHandleOfflineSessionsAndBatchesFastForward(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	docID := "doc1"

	changes := []common.Change{
		{ID: "c1", BaseRev: 0, CreatedAt: 1000, Ops: patch.Patch{{Op: patch.Add, Path: "/a", Value: 1.0}}},
		{ID: "c2", BaseRev: 0, CreatedAt: 1500, Ops: patch.Patch{{Op: patch.Add, Path: "/b", Value: 2.0}}},
	}

	out, err := version.HandleOfflineSessionsAndBatches(ctx, store, docID, changes, 0, "batch1", common.OriginMain, false, version.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, changes, out)

	versions, err := store.ListVersions(ctx, docID, storage.ListVersionsOptions{GroupID: "batch1"})
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, int64(2), versions[0].EndRev)
}

// Scenario 6 from spec §8: an offline batch spanning two sessions
// separated by 10x the session timeout produces two versions sharing a
// groupId, linked by parentId, and collapses to a single change.
func TestHandleOfflineSessionsAndBatchesSplitsSessions(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	docID := "doc1"
	opts := version.Options{SessionTimeoutMillis: 1000}

	changes := []common.Change{
		{ID: "c1", BaseRev: 0, CreatedAt: 0, Ops: patch.Patch{{Op: patch.Add, Path: "/a", Value: 1.0}}},
		{ID: "c2", BaseRev: 0, CreatedAt: 200, Ops: patch.Patch{{Op: patch.Add, Path: "/b", Value: 2.0}}},
		{ID: "c3", BaseRev: 0, CreatedAt: 400, Ops: patch.Patch{{Op: patch.Add, Path: "/c", Value: 3.0}}},
		{ID: "c4", BaseRev: 0, CreatedAt: 10400, Ops: patch.Patch{{Op: patch.Add, Path: "/d", Value: 4.0}}},
		{ID: "c5", BaseRev: 0, CreatedAt: 10600, Ops: patch.Patch{{Op: patch.Add, Path: "/e", Value: 5.0}}},
	}

	out, err := version.HandleOfflineSessionsAndBatches(ctx, store, docID, changes, 0, "batch1", common.OriginOfflineBranch, true, opts)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].ID)
	assert.Len(t, out[0].Ops, 5)

	versions, err := store.ListVersions(ctx, docID, storage.ListVersionsOptions{GroupID: "batch1", OrderBy: "endRev"})
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, versions[0].ID, versions[1].ParentID)
	assert.Equal(t, int64(3), versions[0].EndRev)
	assert.Equal(t, int64(5), versions[1].EndRev)
}
