package badgerstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/patch"
	"github.com/homveloper/syncdoc/storage"
	"github.com/homveloper/syncdoc/storage/badgerstore"
)

func openTestStore(t *testing.T) *badgerstore.Store {
	t.Helper()
	s, err := badgerstore.Open(t.TempDir(), badgerstore.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreSaveAndListChanges(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	changes := []common.Change{
		{ID: "c1", BaseRev: 0, Rev: 1, Ops: patch.Patch{{Op: patch.Add, Path: "/a", Value: 1.0}}},
		{ID: "c2", BaseRev: 1, Rev: 2, Ops: patch.Patch{{Op: patch.Add, Path: "/b", Value: 2.0}}},
	}
	require.NoError(t, s.SaveChanges(ctx, "doc1", changes))

	out, err := s.ListChanges(ctx, "doc1", storage.ListChangesOptions{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].Rev)
	assert.Equal(t, int64(2), out[1].Rev)

	startAfter := int64(1)
	filtered, err := s.ListChanges(ctx, "doc1", storage.ListChangesOptions{StartAfter: &startAfter})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "c2", filtered[0].ID)
}

func TestStoreSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	state, rev, err := s.GetSnapshot(ctx, "doc1")
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.Equal(t, int64(0), rev)

	require.NoError(t, s.SaveSnapshot(ctx, "doc1", map[string]any{"hp": 10.0}, 3))
	state, rev, err = s.GetSnapshot(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), rev)
	assert.Equal(t, 10.0, state.(map[string]any)["hp"])
}

func TestStoreFieldOpsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	ts := 1.0
	rev, err := s.SaveOps(ctx, "doc1", []common.FieldRecord{
		{Path: "/hp", Op: patch.Replace, Value: 100.0, Ts: &ts, Rev: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), rev)

	ops, err := s.ListOps(ctx, "doc1", storage.ListOpsOptions{})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "/hp", ops[0].Path)
}

func TestStoreBranchLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.CreateBranch(ctx, common.Branch{ID: "b1", SourceDocID: "doc1", Status: common.BranchOpen}))

	branches, err := s.ListBranches(ctx, "doc1")
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, common.BranchOpen, branches[0].Status)

	require.NoError(t, s.CloseBranch(ctx, "b1"))
	branch, err := s.LoadBranch(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, branch)
	assert.Equal(t, common.BranchClosed, branch.Status)
}

func TestStoreTombstoneLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tomb, err := s.GetTombstone(ctx, "doc1")
	require.NoError(t, err)
	assert.Nil(t, tomb)

	require.NoError(t, s.CreateTombstone(ctx, common.Tombstone{DocID: "doc1", DeletedAt: 100, LastRev: 5}))
	tomb, err = s.GetTombstone(ctx, "doc1")
	require.NoError(t, err)
	require.NotNil(t, tomb)
	assert.Equal(t, int64(5), tomb.LastRev)

	require.NoError(t, s.RemoveTombstone(ctx, "doc1"))
	tomb, err = s.GetTombstone(ctx, "doc1")
	require.NoError(t, err)
	assert.Nil(t, tomb)
}

func TestStoreDeleteDocRemovesEverythingButTombstone(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.SaveChanges(ctx, "doc1", []common.Change{{ID: "c1", Rev: 1}}))
	require.NoError(t, s.SaveSnapshot(ctx, "doc1", map[string]any{"hp": 1.0}, 1))

	require.NoError(t, s.DeleteDoc(ctx, "doc1"))

	changes, err := s.ListChanges(ctx, "doc1", storage.ListChangesOptions{})
	require.NoError(t, err)
	assert.Empty(t, changes)

	state, _, err := s.GetSnapshot(ctx, "doc1")
	require.NoError(t, err)
	assert.Nil(t, state)
}

var _ storage.LWWStore = (*badgerstore.Store)(nil)
