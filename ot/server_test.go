package ot_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/ot"
	"github.com/homveloper/syncdoc/patch"
	"github.com/homveloper/syncdoc/storage"
	"github.com/homveloper/syncdoc/storage/memstore"
)

// now anchors test fixture CreatedAt values to the wall clock so they
// fall well inside the default session timeout and don't accidentally
// trip CommitChanges' offline-batch detection, which compares against
// real time.Now().
func now() int64 { return time.Now().UnixMilli() }

func TestCommitChangesEmpty(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	result, err := ot.CommitChanges(ctx, store, "doc1", nil, ot.DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, result.New)
	assert.Empty(t, result.Catchup)
}

func TestCommitChangesAssignsRevisions(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	changes := []common.Change{
		{ID: "c1", BaseRev: 0, CreatedAt: now(), Ops: patch.Patch{{Op: patch.Add, Path: "/a", Value: 1.0}}},
	}
	result, err := ot.CommitChanges(ctx, store, "doc1", changes, ot.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, result.New, 1)
	assert.Equal(t, int64(1), result.New[0].Rev)

	stored, err := store.ListChanges(ctx, "doc1", storage.ListChangesOptions{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, int64(1), stored[0].Rev)
}

func TestCommitChangesIdempotentReplay(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	opts := ot.DefaultOptions()
	changes := []common.Change{
		{ID: "c1", BaseRev: 0, CreatedAt: now(), Ops: patch.Patch{{Op: patch.Add, Path: "/a", Value: 1.0}}},
	}
	first, err := ot.CommitChanges(ctx, store, "doc1", changes, opts)
	require.NoError(t, err)
	require.Len(t, first.New, 1)

	replay := []common.Change{
		{ID: "c1", BaseRev: 0, CreatedAt: now(), Ops: patch.Patch{{Op: patch.Add, Path: "/a", Value: 1.0}}},
	}
	second, err := ot.CommitChanges(ctx, store, "doc1", replay, opts)
	require.NoError(t, err)
	assert.Empty(t, second.New)
	require.Len(t, second.Catchup, 1)
	assert.Equal(t, int64(1), second.Catchup[0].Rev)
}

func TestCommitChangesRebasesConcurrentEdit(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	opts := ot.DefaultOptions()
	t0 := now()

	_, err := ot.CommitChanges(ctx, store, "doc1", []common.Change{
		{ID: "a1", BaseRev: 0, CreatedAt: t0, Ops: patch.Patch{{Op: patch.Add, Path: "", Value: []any{0.0, 1.0, 2.0}}}},
	}, opts)
	require.NoError(t, err)

	_, err = ot.CommitChanges(ctx, store, "doc1", []common.Change{
		{ID: "a2", BaseRev: 1, CreatedAt: t0 + 100, Ops: patch.Patch{{Op: patch.Add, Path: "/1", Value: "X"}}},
	}, opts)
	require.NoError(t, err)

	result, err := ot.CommitChanges(ctx, store, "doc1", []common.Change{
		{ID: "b1", BaseRev: 1, CreatedAt: t0 + 100, Ops: patch.Patch{{Op: patch.Remove, Path: "/2"}}},
	}, opts)
	require.NoError(t, err)
	require.Len(t, result.New, 1)
	// B targeted index 2 against baseRev 1; A already inserted at index
	// 1, so B's rebased op must target index 3.
	assert.Equal(t, "/3", result.New[0].Ops[0].Path)
}

// Scenario 5 from spec §8: a never-synced client (baseRev 0) against a
// server already at rev 7 gets a synthetic catchup.
func TestCommitChangesSyntheticCatchup(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	opts := ot.DefaultOptions()
	t0 := now()

	for i := 0; i < 7; i++ {
		_, err := ot.CommitChanges(ctx, store, "doc1", []common.Change{
			{ID: idFor(i), BaseRev: int64(i), CreatedAt: t0 + int64(i), Ops: patch.Patch{{Op: patch.Add, Path: pathFor(i), Value: float64(i)}}},
		}, opts)
		require.NoError(t, err)
	}

	result, err := ot.CommitChanges(ctx, store, "doc1", []common.Change{
		{ID: "new1", BaseRev: 0, CreatedAt: t0 + 1000, Ops: patch.Patch{{Op: patch.Add, Path: "/x", Value: 1.0}}},
		{ID: "new2", BaseRev: 0, CreatedAt: t0 + 1000, Ops: patch.Patch{{Op: patch.Add, Path: "/y", Value: 2.0}}},
	}, opts)
	require.NoError(t, err)
	require.Len(t, result.Catchup, 1)
	assert.True(t, ot.IsSyntheticCatchup(result.Catchup[0]))
	require.Len(t, result.New, 2)
	assert.Equal(t, int64(8), result.New[0].Rev)
	assert.Equal(t, int64(9), result.New[1].Rev)
}

func idFor(i int) string   { return "seed" + string(rune('a'+i)) }
func pathFor(i int) string { return "/f" + string(rune('a'+i)) }
