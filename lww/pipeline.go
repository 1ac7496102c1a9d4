package lww

import (
	"context"

	"go.uber.org/zap"

	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/patch"
	"github.com/homveloper/syncdoc/storage"
)

// Options configures the LWW commit pipeline (spec §6 configuration
// options).
type Options struct {
	// Logger receives structured diagnostics; nil uses zap.NewNop().
	Logger *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// CommitResult is CommitFieldOps' return shape.
type CommitResult struct {
	Consolidate ConsolidateResult
	Rev         int64
}

// CommitFieldOps is the storage-backed C9 pipeline: it loads docID's
// existing field records, consolidates incoming onto them, persists the
// surviving ops and the re-folded snapshot projection, and returns
// whatever the caller must relay back to the submitting client
// (corrections plus the consolidated ops).
func CommitFieldOps(ctx context.Context, store storage.LWWStore, docID string, incoming []common.FieldRecord, opts Options) (CommitResult, error) {
	log := opts.logger()
	if len(incoming) == 0 {
		return CommitResult{}, nil
	}

	existing, err := store.ListOps(ctx, docID, storage.ListOpsOptions{})
	if err != nil {
		return CommitResult{}, err
	}

	result := ConsolidateOps(existing, incoming)
	for _, path := range result.PathsToDelete {
		log.Debug("lww: dropping shadowed descendant", zap.String("docId", docID), zap.String("path", path))
	}

	if len(result.OpsToSave) == 0 && len(result.PathsToDelete) == 0 {
		return CommitResult{Consolidate: result}, nil
	}

	snapshot, _, err := store.GetSnapshot(ctx, docID)
	if err != nil {
		return CommitResult{}, err
	}
	nextSnapshot, err := FoldSnapshot(snapshot, result.OpsToSave, result.PathsToDelete)
	if err != nil {
		return CommitResult{}, err
	}

	rev, err := store.SaveOps(ctx, docID, result.OpsToSave)
	if err != nil {
		return CommitResult{}, err
	}
	if err := store.SaveSnapshot(ctx, docID, nextSnapshot, rev); err != nil {
		return CommitResult{}, err
	}

	return CommitResult{Consolidate: result, Rev: rev}, nil
}

// FoldSnapshot applies a consolidated batch onto base the same way
// version.FoldState folds OT changes: pathsToDelete are removed first
// (an ancestor op now supersedes them), then each op is applied with its
// own operator semantics (so an @inc field record still adds to the
// snapshot's current value rather than overwriting it).
func FoldSnapshot(base any, ops []common.FieldRecord, pathsToDelete []string) (any, error) {
	state := base
	for _, path := range pathsToDelete {
		next, err := patch.Apply(state, patch.Patch{{Op: patch.Remove, Path: path}}, patch.Options{Silent: true})
		if err != nil {
			return state, err
		}
		state = next
	}
	for _, op := range ops {
		next, err := patch.Apply(state, patch.Patch{fieldRecordToOp(op)}, patch.Options{Silent: true})
		if err != nil {
			return state, err
		}
		state = next
	}
	return state, nil
}

func fieldRecordToOp(r common.FieldRecord) patch.Op {
	return patch.Op{Op: r.Op, Path: r.Path, Value: r.Value, Ts: r.Ts, Soft: r.Soft}
}

// MergeBranch implements the C10 branch merge (spec §4.9): the branch
// document's own field records (addressed by the branch's id) are
// consolidated onto the source document's, each carrying the branch
// field's ts so per-path LWW resolves conflicts the same way any other
// concurrent write would. The branch is then marked merged.
func MergeBranch(ctx context.Context, store storage.LWWStore, branch common.Branch, opts Options) (CommitResult, error) {
	if branch.Status != common.BranchOpen {
		return CommitResult{}, common.ErrBranchNotOpen
	}

	branchOps, err := store.ListOps(ctx, branch.ID, storage.ListOpsOptions{})
	if err != nil {
		return CommitResult{}, err
	}

	result, err := CommitFieldOps(ctx, store, branch.SourceDocID, branchOps, opts)
	if err != nil {
		return CommitResult{}, err
	}

	if err := store.UpdateBranch(ctx, branch.ID, common.BranchMerged); err != nil {
		return CommitResult{}, err
	}
	return result, nil
}
