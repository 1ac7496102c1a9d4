package version

import (
	"context"
	"encoding/json"

	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/patch"
	"github.com/homveloper/syncdoc/storage"
)

// Options configures session grouping (spec §6 configuration).
type Options struct {
	// SessionTimeoutMillis bounds the gap between two changes'
	// CreatedAt that still counts as the same session. Defaults to 30
	// minutes.
	SessionTimeoutMillis int64
	// MaxPayloadBytes caps a collapsed offline-branch change's encoded
	// size; 0 means no cap.
	MaxPayloadBytes int
}

// DefaultSessionTimeoutMillis is 30 minutes, the default from spec §6.
const DefaultSessionTimeoutMillis = 30 * 60 * 1000

// DefaultOptions returns the spec's default session-grouping options.
func DefaultOptions() Options {
	return Options{SessionTimeoutMillis: DefaultSessionTimeoutMillis}
}

func (o Options) timeout() int64 {
	if o.SessionTimeoutMillis > 0 {
		return o.SessionTimeoutMillis
	}
	return DefaultSessionTimeoutMillis
}

// HandleOfflineSessionsAndBatches implements the C11 pipeline of spec
// §4.10: it groups changes into sessions by CreatedAt gaps, persists
// each session as a version (extending the prior one when the gap to
// its EndedAt is within the timeout, else creating a new version), and
// for an offline-branch (divergent) origin collapses the whole batch
// into one change for the transformer, splitting by MaxPayloadBytes
// when set. A fast-forward ("main") origin returns changes unchanged.
func HandleOfflineSessionsAndBatches(
	ctx context.Context,
	store storage.Store,
	docID string,
	changes []common.Change,
	baseRev int64,
	batchID string,
	origin common.VersionOrigin,
	isOffline bool,
	opts Options,
) ([]common.Change, error) {
	if len(changes) == 0 {
		return nil, nil
	}

	groupID := batchID
	if groupID == "" {
		groupID = common.NewGroupID()
	}

	existing, err := store.ListVersions(ctx, docID, storage.ListVersionsOptions{
		GroupID: groupID, OrderBy: "endRev", Reverse: true, Limit: 1,
	})
	if err != nil {
		return nil, err
	}

	var state any
	var parentID string
	var prevVersion *common.VersionMetadata
	if len(existing) > 0 {
		v := existing[0]
		prevVersion = &v
		parentID = v.ID
		state, err = store.LoadVersionState(ctx, docID, v.ID)
		if err != nil {
			return nil, err
		}
	} else {
		state, _, err = StateAtRevision(ctx, store, docID, &baseRev)
		if err != nil {
			return nil, err
		}
	}

	sessions := splitSessions(changes, opts.timeout())
	rev := baseRev
	for _, session := range sessions {
		next, err := FoldState(state, session)
		if err != nil {
			return nil, err
		}
		startRev := rev
		endRev := rev + int64(len(session))
		first := session[0]
		last := session[len(session)-1]

		if prevVersion != nil && first.CreatedAt-prevVersion.EndedAt <= opts.timeout() {
			if err := store.AppendVersionChanges(ctx, docID, prevVersion.ID, session, last.CreatedAt, endRev, next); err != nil {
				return nil, err
			}
			parentID = prevVersion.ID
		} else {
			vm := common.VersionMetadata{
				ID:        common.NewVersionID(),
				Origin:    origin,
				StartRev:  startRev,
				EndRev:    endRev,
				StartedAt: first.CreatedAt,
				EndedAt:   last.CreatedAt,
				GroupID:   groupID,
				ParentID:  parentID,
				IsOffline: isOffline,
			}
			if err := store.CreateVersion(ctx, docID, vm, next, session); err != nil {
				return nil, err
			}
			parentID = vm.ID
		}
		prevVersion = nil // only the first session may extend a pre-existing version
		state = next
		rev = endRev
	}

	if origin == common.OriginOfflineBranch {
		return collapseAndSplit(changes, opts.MaxPayloadBytes), nil
	}
	return changes, nil
}

// splitSessions groups changes into runs whose adjacent CreatedAt gap
// never exceeds timeoutMillis; the last change always terminates a
// session.
func splitSessions(changes []common.Change, timeoutMillis int64) [][]common.Change {
	if len(changes) == 0 {
		return nil
	}
	sessions := make([][]common.Change, 0, 1)
	cur := []common.Change{changes[0]}
	for i := 1; i < len(changes); i++ {
		if changes[i].CreatedAt-changes[i-1].CreatedAt > timeoutMillis {
			sessions = append(sessions, cur)
			cur = []common.Change{changes[i]}
		} else {
			cur = append(cur, changes[i])
		}
	}
	sessions = append(sessions, cur)
	return sessions
}

// collapseAndSplit concatenates every change's ops into one (or, once
// maxPayloadBytes is exceeded, several) changes sharing the first
// change's BaseRev and CreatedAt — the shape the divergent-commit path
// hands to the transformer. The first resulting change keeps the first
// change's id; each further split part gets a fresh id.
func collapseAndSplit(changes []common.Change, maxPayloadBytes int) []common.Change {
	if len(changes) == 0 {
		return nil
	}
	first := changes[0]
	allOps := make(patch.Patch, 0)
	for _, c := range changes {
		allOps = append(allOps, c.Ops...)
	}
	if maxPayloadBytes <= 0 {
		return []common.Change{{
			ID: first.ID, BaseRev: first.BaseRev, Ops: allOps,
			CreatedAt: first.CreatedAt, BatchID: first.BatchID,
		}}
	}

	out := make([]common.Change, 0, 1)
	var cur patch.Patch
	curBytes := 0
	flush := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, common.Change{
			ID: common.NewChangeID(), BaseRev: first.BaseRev, Ops: cur,
			CreatedAt: first.CreatedAt, BatchID: first.BatchID,
		})
		cur = nil
		curBytes = 0
	}
	for _, op := range allOps {
		b, _ := json.Marshal(op)
		if curBytes+len(b) > maxPayloadBytes && len(cur) > 0 {
			flush()
		}
		cur = append(cur, op)
		curBytes += len(b)
	}
	flush()
	if len(out) > 0 {
		out[0].ID = first.ID
	}
	return out
}
