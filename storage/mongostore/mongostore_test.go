package mongostore_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/patch"
	"github.com/homveloper/syncdoc/storage"
	"github.com/homveloper/syncdoc/storage/mongostore"
)

// setupTestDB connects to a local MongoDB instance and hands back a
// database unique to this test run, mirroring
// nodestorage/v2/storage_test.go's setupTestDB.
func setupTestDB(t *testing.T) (*mongo.Database, func()) {
	t.Helper()
	client, err := mongo.Connect(options.Client().ApplyURI("mongodb://localhost:27017"))
	require.NoError(t, err)

	db := client.Database("syncdoc_test_" + uuid.NewString())
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	}
	return db, cleanup
}

func TestStoreSaveAndListChanges(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	s := mongostore.New(db, mongostore.Options{})

	changes := []common.Change{
		{ID: "c1", BaseRev: 0, Rev: 1, Ops: patch.Patch{{Op: patch.Add, Path: "/a", Value: 1.0}}},
		{ID: "c2", BaseRev: 1, Rev: 2, Ops: patch.Patch{{Op: patch.Add, Path: "/b", Value: 2.0}}},
	}
	require.NoError(t, s.SaveChanges(ctx, "doc1", changes))

	out, err := s.ListChanges(ctx, "doc1", storage.ListChangesOptions{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, int64(1), out[0].Rev)
	require.Equal(t, int64(2), out[1].Rev)
}

func TestStoreSnapshotRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	s := mongostore.New(db, mongostore.Options{})

	require.NoError(t, s.SaveSnapshot(ctx, "doc1", map[string]any{"hp": 10.0}, 3))
	state, rev, err := s.GetSnapshot(ctx, "doc1")
	require.NoError(t, err)
	require.Equal(t, int64(3), rev)
	require.Equal(t, 10.0, state.(map[string]any)["hp"])
}

func TestStoreBranchLifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	s := mongostore.New(db, mongostore.Options{})

	require.NoError(t, s.CreateBranch(ctx, common.Branch{ID: "b1", SourceDocID: "doc1", Status: common.BranchOpen}))
	branches, err := s.ListBranches(ctx, "doc1")
	require.NoError(t, err)
	require.Len(t, branches, 1)

	require.NoError(t, s.UpdateBranch(ctx, "b1", common.BranchMerged))
	branch, err := s.LoadBranch(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, common.BranchMerged, branch.Status)
}

var _ storage.LWWStore = (*mongostore.Store)(nil)
