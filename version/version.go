// Package version implements the C11 snapshot and session-grouping
// logic (spec §4.10): folding committed changes onto snapshot
// checkpoints, and grouping offline/batch commits into versions.
package version

import (
	"context"

	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/patch"
	"github.com/homveloper/syncdoc/storage"
)

// FoldState applies changes' ops onto base in order, returning the
// resulting value. base is never mutated.
func FoldState(base any, changes []common.Change) (any, error) {
	state := base
	for _, c := range changes {
		next, err := patch.Apply(state, c.Ops, patch.Options{Strict: true})
		if err != nil {
			return state, err
		}
		state = next
	}
	return state, nil
}

// StateAtRevision loads the latest main version with EndRev <= rev (or
// the latest main version when rev is nil), then folds its
// subsequent changes up through rev. It returns the resulting state and
// a revision: the Rev of the last folded change (or the version's
// EndRev), raised to *rev when rev is given.
func StateAtRevision(ctx context.Context, store storage.Store, docID string, rev *int64) (any, int64, error) {
	listOpts := storage.ListVersionsOptions{
		Origin:  common.OriginMain,
		OrderBy: "endRev",
		Reverse: true,
		Limit:   1,
	}
	if rev != nil {
		endBefore := *rev + 1
		listOpts.EndBefore = &endBefore
	}
	versions, err := store.ListVersions(ctx, docID, listOpts)
	if err != nil {
		return nil, 0, err
	}

	var base any
	var startRev int64
	if len(versions) > 0 {
		v := versions[0]
		base, err = store.LoadVersionState(ctx, docID, v.ID)
		if err != nil {
			return nil, 0, err
		}
		startRev = v.EndRev
	}

	changeOpts := storage.ListChangesOptions{StartAfter: &startRev}
	if rev != nil {
		endBefore := *rev + 1
		changeOpts.EndBefore = &endBefore
	}
	changes, err := store.ListChanges(ctx, docID, changeOpts)
	if err != nil {
		return nil, 0, err
	}

	state, err := FoldState(base, changes)
	if err != nil {
		return nil, 0, err
	}

	finalRev := startRev
	if len(changes) > 0 {
		finalRev = changes[len(changes)-1].Rev
	}
	if rev != nil && finalRev < *rev {
		finalRev = *rev
	}
	return state, finalRev, nil
}
