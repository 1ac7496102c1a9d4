package lww

import (
	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/patch"
	"github.com/homveloper/syncdoc/textdelta"
)

// MergeResult is MergeServerWithLocal's return shape (spec §4.9
// mergeServerWithLocal).
type MergeResult struct {
	// Changes is serverChanges with each op's display value merged
	// against any local op at the same path; local ops that targeted
	// untouched paths are appended to the last change.
	Changes []common.Change
	// UpdatedLocalOps is the local pending list with its @txt entries
	// rebased against the server's delta, or nil if no text transform
	// occurred.
	UpdatedLocalOps patch.Patch
}

// MergeServerWithLocal reconciles newly-committed serverChanges for
// display against a client's still-pending localOps (spec §4.9, the C10
// client-side display merge distinct from the server-side OT rebase in
// package rebase). It never mutates serverChanges.
func MergeServerWithLocal(serverChanges []common.Change, localOps patch.Patch) MergeResult {
	if len(serverChanges) == 0 {
		return MergeResult{}
	}

	localByPath := make(map[string]patch.Op, len(localOps))
	for _, op := range localOps {
		localByPath[op.Path] = op
	}
	touched := make(map[string]bool, len(localOps))

	out := make([]common.Change, len(serverChanges))
	copy(out, serverChanges)
	var updatedLocal patch.Patch
	textTransformed := false

	for ci, change := range out {
		newOps := change.Ops.Clone()
		for oi, sop := range newOps {
			lop, ok := localByPath[sop.Path]
			if !ok {
				continue
			}
			touched[sop.Path] = true

			switch {
			case sop.Op == patch.Txt && lop.Op == patch.Txt:
				serverDelta := asDelta(sop.Value)
				localDelta := asDelta(lop.Value)
				dispServer, _ := textdelta.Transform(serverDelta, localDelta, true)
				_, localPrime := textdelta.Transform(serverDelta, localDelta, false)
				newOps[oi].Value = dispServer
				lopPrime := lop
				lopPrime.Value = localPrime
				updatedLocal = append(updatedLocal, lopPrime)
				textTransformed = true

			case lop.Op.Combinable() && lop.Op != patch.Txt:
				base := sop.Value
				if sop.Op == patch.Remove {
					// The combinator's identity (spec §4.9: "the
					// delta's identity is 0").
					base = 0.0
					newOps[oi].Op = patch.Replace
				}
				merged, _ := combine(lop.Op, base, lop.Value)
				newOps[oi].Value = merged

			default:
				// Local is non-combinable and not @txt: the server
				// value, already committed, wins as-is.
			}
		}
		out[ci].Ops = newOps
	}

	last := &out[len(out)-1]
	for _, lop := range localOps {
		if touched[lop.Path] {
			continue
		}
		last.Ops = append(last.Ops, lop)
	}

	if !textTransformed {
		updatedLocal = nil
	}
	return MergeResult{Changes: out, UpdatedLocalOps: updatedLocal}
}
