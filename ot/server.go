package ot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/patch"
	"github.com/homveloper/syncdoc/pointer"
	"github.com/homveloper/syncdoc/rebase"
	"github.com/homveloper/syncdoc/storage"
	"github.com/homveloper/syncdoc/version"
)

// CommitResult is commitChanges' return shape: catchup is the committed
// changes the client has not seen yet (or, for a client that never
// synced, one synthetic root-replace change) and must apply before new,
// and new is the incoming changes as finally committed (spec §4.7).
type CommitResult struct {
	Catchup []common.Change
	New     []common.Change
}

// CommitChanges runs the full server commit pipeline of spec §4.7:
// baseRev resolution (including the offline-first catchup optimization),
// validation, revision assignment, session versioning, idempotency
// filtering, offline/batch grouping, rebase-based transformation, and
// persistence.
func CommitChanges(ctx context.Context, store storage.Store, docID string, changes []common.Change, opts Options) (CommitResult, error) {
	log := opts.logger()
	if len(changes) == 0 {
		return CommitResult{}, nil
	}

	currentState, currentRev, err := version.StateAtRevision(ctx, store, docID, nil)
	if err != nil {
		return CommitResult{}, err
	}

	baseRev := changes[0].BaseRev
	needsSyntheticCatchup := false
	isBatchContinuation := changes[0].BatchID != ""

	if baseRev == 0 && currentRev > 0 && !isBatchContinuation && !anyOpTargetsRoot(changes) {
		baseRev = currentRev
		for i := range changes {
			changes[i].BaseRev = baseRev
			changes[i].Ops = dropShadowedSoftOps(currentState, changes[i].Ops)
		}
		needsSyntheticCatchup = true
	}

	if !opts.HistoricalImport {
		for _, c := range changes {
			if c.BaseRev != baseRev {
				return CommitResult{}, common.ErrInconsistentBatch
			}
		}
	}
	if baseRev > currentRev {
		return CommitResult{}, common.NewBehindClientError(baseRev, currentRev)
	}
	if baseRev == 0 && currentRev > 0 && !isBatchContinuation && hasRootReplace(changes[0].Ops) {
		return CommitResult{}, common.ErrExistingDoc
	}

	now := time.Now().UnixMilli()
	serverNow := now
	for i := range changes {
		rev := baseRev + int64(i) + 1
		changes[i].Rev = rev
		changes[i].CommittedAt = serverNow
		if !opts.HistoricalImport && changes[i].CreatedAt > serverNow {
			changes[i].CreatedAt = serverNow
		}
	}

	if err := maybeSnapshotSession(ctx, store, docID, currentState, currentRev, changes[0], serverNow, opts); err != nil {
		return CommitResult{}, err
	}

	committedChanges, err := store.ListChanges(ctx, docID, storage.ListChangesOptions{
		StartAfter: &baseRev, WithoutBatchID: changes[0].BatchID,
	})
	if err != nil {
		return CommitResult{}, err
	}
	seen := committedChanges
	if needsSyntheticCatchup {
		// The client's own baseRev was 0, so a replay of its earlier
		// submissions can sit anywhere in the log, not only after baseRev.
		var clientBaseRev int64
		seen, err = store.ListChanges(ctx, docID, storage.ListChangesOptions{
			StartAfter: &clientBaseRev, WithoutBatchID: changes[0].BatchID,
		})
		if err != nil {
			return CommitResult{}, err
		}
	}
	incoming := dropDuplicateIDs(changes, seen)
	if len(incoming) == 0 {
		return CommitResult{Catchup: seen}, nil
	}

	compareTime := serverNow
	if opts.HistoricalImport {
		compareTime = incoming[0].CreatedAt
	}
	isOfflineBatch := incoming[0].BatchID != "" || compareTime-incoming[0].CreatedAt > opts.timeout()

	if isOfflineBatch {
		canFastForward := len(committedChanges) == 0
		origin := common.OriginMain
		if !canFastForward {
			origin = common.OriginOfflineBranch
		}
		grouped, err := version.HandleOfflineSessionsAndBatches(ctx, store, docID, incoming, baseRev, incoming[0].BatchID, origin, true, opts.versionOptions())
		if err != nil {
			return CommitResult{}, err
		}
		if canFastForward {
			if err := store.SaveChanges(ctx, docID, incoming); err != nil {
				return CommitResult{}, err
			}
			return CommitResult{New: incoming}, nil
		}
		incoming = grouped
	}

	baseState, _, err := version.StateAtRevision(ctx, store, docID, &baseRev)
	if err != nil {
		return CommitResult{}, err
	}
	var committedOps patch.Patch
	for _, c := range committedChanges {
		committedOps = append(committedOps, c.Ops...)
	}

	transformed := rebase.Rebase(baseState, committedOps, incoming)
	finalChanges := probeAndRenumber(currentState, currentRev, transformed, opts.ForceCommit, log)

	if err := store.SaveChanges(ctx, docID, finalChanges); err != nil {
		return CommitResult{}, err
	}

	if needsSyntheticCatchup {
		synthetic := common.Change{
			ID:      common.NewChangeID(),
			BaseRev: 0,
			Rev:     currentRev,
			Ops:     patch.Patch{{Op: patch.Replace, Path: "", Value: currentState}},
		}
		return CommitResult{Catchup: []common.Change{synthetic}, New: finalChanges}, nil
	}
	return CommitResult{Catchup: committedChanges, New: finalChanges}, nil
}

func anyOpTargetsRoot(changes []common.Change) bool {
	for _, c := range changes {
		for _, op := range c.Ops {
			if op.Path == "" {
				return true
			}
		}
	}
	return false
}

func hasRootReplace(ops patch.Patch) bool {
	for _, op := range ops {
		if op.Op == patch.Replace && op.Path == "" {
			return true
		}
	}
	return false
}

// dropShadowedSoftOps removes soft ops whose target already holds data
// in state (spec §4.7 step 3's offline-first catchup optimization).
func dropShadowedSoftOps(state any, ops patch.Patch) patch.Patch {
	out := make(patch.Patch, 0, len(ops))
	for _, op := range ops {
		if op.Soft {
			p, err := pointer.Parse(op.Path)
			if err == nil && pointer.Has(state, p) {
				continue
			}
		}
		out = append(out, op)
	}
	return out
}

func dropDuplicateIDs(incoming, committed []common.Change) []common.Change {
	seen := make(map[string]bool, len(committed))
	for _, c := range committed {
		seen[c.ID] = true
	}
	out := make([]common.Change, 0, len(incoming))
	for _, c := range incoming {
		if seen[c.ID] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// maybeSnapshotSession creates a checkpoint version of the state as it
// stood before this commit if the previous committed change predates
// compareTime by more than the session timeout (spec §4.7 step 6).
func maybeSnapshotSession(ctx context.Context, store storage.Store, docID string, state any, currentRev int64, first common.Change, serverNow int64, opts Options) error {
	compareTime := serverNow
	if opts.HistoricalImport {
		compareTime = first.CreatedAt
	}
	last, err := store.ListChanges(ctx, docID, storage.ListChangesOptions{Reverse: true, Limit: 1})
	if err != nil {
		return err
	}
	if len(last) == 0 {
		return nil
	}
	if compareTime-last[0].CreatedAt <= opts.timeout() {
		return nil
	}
	vm := common.VersionMetadata{
		ID:        common.NewVersionID(),
		Origin:    common.OriginMain,
		StartRev:  currentRev,
		EndRev:    currentRev,
		StartedAt: serverNow,
		EndedAt:   serverNow,
	}
	return store.CreateVersion(ctx, docID, vm, state, nil)
}

// probeAndRenumber applies each transformed change onto the evolving
// state to detect broken transforms (dropped and logged unless
// forceCommit), and assigns the final contiguous revision numbers.
func probeAndRenumber(state any, currentRev int64, changes []common.Change, forceCommit bool, log *zap.Logger) []common.Change {
	out := make([]common.Change, 0, len(changes))
	rev := currentRev
	st := state
	for _, c := range changes {
		next, err := patch.Apply(st, c.Ops, patch.Options{Strict: true})
		if err != nil {
			if !forceCommit {
				log.Warn("dropping change: transform probe failed to apply", zap.String("changeId", c.ID), zap.Error(err))
				continue
			}
			log.Warn("forceCommit: persisting change despite failed transform probe", zap.String("changeId", c.ID), zap.Error(err))
		} else {
			st = next
		}
		rev++
		c.Rev = rev
		out = append(out, c)
	}
	return out
}
