package ot

import (
	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/patch"
	"github.com/homveloper/syncdoc/rebase"
)

// Snapshot is the client-side optimistic state (spec §4.8): the folded
// document at Rev, plus any local Changes still awaiting server
// acknowledgement.
type Snapshot struct {
	State   any
	Rev     int64
	Changes []common.Change
}

// IsSyntheticCatchup reports whether c is the server-manufactured
// catchup change recognized by BaseRev==0 with a single root-replace op
// (spec §4.7 step 10 / §4.8).
func IsSyntheticCatchup(c common.Change) bool {
	return c.BaseRev == 0 && len(c.Ops) == 1 && c.Ops[0].Op == patch.Replace && c.Ops[0].Path == ""
}

// ApplyCommittedChanges folds newly-acknowledged serverChanges onto
// snapshot and rebases any still-pending local changes against them
// (spec §4.8). It returns common.ErrGap if serverChanges is
// non-contiguous with snapshot.Rev.
func ApplyCommittedChanges(snapshot Snapshot, serverChanges []common.Change) (Snapshot, error) {
	relevant := make([]common.Change, 0, len(serverChanges))
	for _, c := range serverChanges {
		if c.Rev > snapshot.Rev {
			relevant = append(relevant, c)
		}
	}
	if len(relevant) == 0 {
		return snapshot, nil
	}

	if IsSyntheticCatchup(relevant[0]) {
		state, err := patch.Apply(snapshot.State, relevant[0].Ops, patch.Options{Strict: true})
		if err != nil {
			return snapshot, err
		}
		var pending []common.Change
		if len(snapshot.Changes) > 0 {
			pending = rebase.Rebase(snapshot.State, relevant[0].Ops, snapshot.Changes)
		}
		next := Snapshot{State: state, Rev: relevant[0].Rev, Changes: pending}
		return ApplyCommittedChanges(next, relevant[1:])
	}

	if relevant[0].Rev != snapshot.Rev+1 {
		return snapshot, common.NewGapError(snapshot.Rev, relevant[0].Rev)
	}

	state := snapshot.State
	rev := snapshot.Rev
	for _, c := range relevant {
		next, err := patch.Apply(state, c.Ops, patch.Options{Strict: true})
		if err != nil {
			return snapshot, err
		}
		state = next
		rev = c.Rev
	}

	var pending []common.Change
	if len(snapshot.Changes) > 0 {
		var allOps patch.Patch
		for _, c := range relevant {
			allOps = append(allOps, c.Ops...)
		}
		pending = rebase.Rebase(snapshot.State, allOps, snapshot.Changes)
	}

	return Snapshot{State: state, Rev: rev, Changes: pending}, nil
}
