// Package lww implements the C9 per-path last-writer-wins consolidation
// (spec §4.9) and the C10 client display merge and branch merge built on
// top of it. Unlike the OT pipeline (ot), there is no revision or
// rebase: each path's writes are folded independently by timestamp, with
// the @inc/@bit/@max/@min combinators still composing the way they do
// under patch.Compose.
package lww

import (
	"sort"

	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/patch"
	"github.com/homveloper/syncdoc/pointer"
	"github.com/homveloper/syncdoc/textdelta"
)

// ConsolidateFieldOp folds incoming onto an existing record already known
// to sit at the same path (spec §4.9 consolidateFieldOp). It returns nil
// when the fold is a pure no-op and incoming should be dropped.
func ConsolidateFieldOp(existing, incoming common.FieldRecord) *common.FieldRecord {
	if existing.Op == patch.Txt && incoming.Op == patch.Txt {
		out := incoming
		out.Value = textdelta.Compose(asDelta(existing.Value), asDelta(incoming.Value))
		return &out
	}

	if incoming.Op.Combinable() && incoming.Op != patch.Txt {
		if existing.Op == incoming.Op {
			combined, changed := combine(existing.Op, existing.Value, incoming.Value)
			if !changed {
				return nil
			}
			out := incoming
			out.Value = combined
			return &out
		}
		// Combinable incoming vs a differing existing op: apply the
		// combinator to the existing value, keeping the existing
		// operator kind (an @inc onto a replace stays a replace; a
		// @max onto an @inc stays an @inc).
		combined, _ := combine(incoming.Op, existing.Value, incoming.Value)
		out := existing
		out.Value = combined
		out.Ts = incoming.Ts
		out.Rev = incoming.Rev
		out.Soft = false
		return &out
	}

	if incoming.Soft {
		return nil
	}
	if existingWins(existing, incoming) {
		return nil
	}
	out := incoming
	return &out
}

// existingWins implements the timestamp rule: incoming wins unless
// existing has a strictly greater ts. An absent ts is infinitely old for
// existing and always a winner for incoming.
func existingWins(existing, incoming common.FieldRecord) bool {
	if existing.Ts == nil || incoming.Ts == nil {
		return false
	}
	return *existing.Ts > *incoming.Ts
}

func combine(kind patch.Kind, existingValue, incomingValue any) (any, bool) {
	fn, ok := patch.Default.CombineFunc(kind)
	if !ok {
		return incomingValue, true
	}
	out, changed := fn(patch.Op{Op: kind, Value: existingValue}, patch.Op{Op: kind, Value: incomingValue})
	return out.Value, changed
}

func asDelta(v any) textdelta.Delta {
	if d, ok := v.(textdelta.Delta); ok {
		return d
	}
	return nil
}

// ConsolidateResult is consolidateOps' return shape (spec §4.9).
type ConsolidateResult struct {
	// OpsToSave are the records the caller should persist, keyed by
	// their (possibly-unchanged) Path.
	OpsToSave []common.FieldRecord
	// PathsToDelete are existing record paths made obsolete by an
	// ancestor overwrite in this batch.
	PathsToDelete []string
	// OpsToReturn mirrors OpsToSave plus any correction ops (pointing at
	// an ancestor the client must refetch).
	OpsToReturn []common.FieldRecord
}

// ConsolidateOps folds incoming onto existing (spec §4.9 consolidateOps).
// existing is not mutated.
func ConsolidateOps(existing, incoming []common.FieldRecord) ConsolidateResult {
	byPath := make(map[string]common.FieldRecord, len(existing))
	for _, e := range existing {
		byPath[e.Path] = e
	}
	toDelete := make(map[string]bool)
	var result ConsolidateResult

	for _, op := range incoming {
		p, err := pointer.Parse(op.Path)
		if err != nil {
			continue
		}

		if ancestor, ok := findAncestor(byPath, p); ok {
			if !isTraversable(ancestor.Value) || ancestor.Op == patch.Remove {
				result.OpsToReturn = append(result.OpsToReturn, correctionOp(ancestor))
				continue
			}
			if op.Soft && dataExistsAt(byPath, ancestor, p) {
				continue
			}
		}

		consolidated := &op
		if cur, ok := byPath[op.Path]; ok {
			consolidated = ConsolidateFieldOp(cur, op)
		}
		if consolidated == nil {
			continue
		}

		byPath[op.Path] = *consolidated
		result.OpsToSave = append(result.OpsToSave, *consolidated)
		result.OpsToReturn = append(result.OpsToReturn, *consolidated)

		for path := range byPath {
			if path == op.Path {
				continue
			}
			ep, err := pointer.Parse(path)
			if err != nil {
				continue
			}
			if p.IsStrictPrefixOf(ep) {
				toDelete[path] = true
				delete(byPath, path)
			}
		}
	}

	for path := range toDelete {
		result.PathsToDelete = append(result.PathsToDelete, path)
	}
	sort.Strings(result.PathsToDelete)
	return result
}

// findAncestor walks p's strict ancestors looking for an existing record,
// nearest first.
func findAncestor(byPath map[string]common.FieldRecord, p pointer.Pointer) (common.FieldRecord, bool) {
	for len(p) > 0 {
		parent, _ := p.Parent()
		if e, ok := byPath[parent.String()]; ok {
			return e, true
		}
		p = parent
	}
	return common.FieldRecord{}, false
}

// isTraversable reports whether v is a container an op's path could
// still descend into.
func isTraversable(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	default:
		return false
	}
}

// dataExistsAt reports whether path already holds data, either via an
// explicit existing record or implicitly as a nested value inside
// ancestor's own value.
func dataExistsAt(byPath map[string]common.FieldRecord, ancestor common.FieldRecord, p pointer.Pointer) bool {
	if _, ok := byPath[p.String()]; ok {
		return true
	}
	ancestorPath, err := pointer.Parse(ancestor.Path)
	if err != nil {
		return false
	}
	rest := p[len(ancestorPath):]
	return pointer.Has(ancestor.Value, rest)
}

// correctionOp builds the client-refetch op pointing at an ancestor that
// blocks a new op from applying: a replace carrying the ancestor's own
// value, so the client can resync that subtree.
func correctionOp(ancestor common.FieldRecord) common.FieldRecord {
	return common.FieldRecord{
		Path:  ancestor.Path,
		Op:    patch.Replace,
		Value: ancestor.Value,
		Ts:    ancestor.Ts,
		Rev:   ancestor.Rev,
	}
}
