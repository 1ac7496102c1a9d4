// Package rebase implements the C6 rebase: projecting a list of pending
// changes over a concurrently-committed patch (spec §4.6).
package rebase

import (
	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/patch"
	"github.com/homveloper/syncdoc/transform"
)

// Rebase transforms each change in bChanges (in order) against the
// concatenation of aOps, substituting the transformed ops back into the
// change and clearing Rev (the caller re-assigns it on commit). A change
// whose ops transform away to nothing is dropped entirely.
//
// state is the value both aOps and every change in bChanges were drafted
// against; it is never mutated.
func Rebase(state any, aOps patch.Patch, bChanges []common.Change) []common.Change {
	out := make([]common.Change, 0, len(bChanges))
	for _, c := range bChanges {
		rebasedOps := transform.Transform(state, aOps, c.Ops)
		if len(rebasedOps) == 0 {
			continue
		}
		nc := c.Clone()
		nc.Ops = rebasedOps
		nc.Rev = 0
		out = append(out, nc)
	}
	return out
}
