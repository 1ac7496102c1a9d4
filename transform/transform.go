// Package transform implements the OT transform engine (spec §4.4, C4):
// given the state the two patches were both drafted against, it rebases
// one patch's ops over the other's so that applying "A then B'" and
// "B then A'" converge.
package transform

import (
	"github.com/homveloper/syncdoc/patch"
	"github.com/homveloper/syncdoc/pointer"
	"github.com/homveloper/syncdoc/textdelta"
)

// Transform returns the ops equivalent to bOps had aOps happened first
// against state. It walks aOps in order, transforming the running bOps
// list against each in turn, and never mutates its inputs.
func Transform(state any, aOps, bOps patch.Patch) patch.Patch {
	cur := bOps.Clone()
	st := state
	for _, a := range aOps {
		cur = transformAgainstOp(st, a, cur)
		if next, err := patch.Apply(st, patch.Patch{a}, patch.Options{Silent: true}); err == nil {
			st = next
		}
	}
	return cur
}

func transformAgainstOp(state any, a patch.Op, bOps patch.Patch) patch.Patch {
	out := make(patch.Patch, 0, len(bOps))
	for _, b := range bOps {
		nb, drop := transformPair(state, a, b)
		if drop {
			continue
		}
		out = append(out, nb)
	}
	return out
}

func isPureDelta(k patch.Kind) bool {
	switch k {
	case patch.Inc, patch.Bit, patch.Max, patch.Min:
		return true
	default:
		return false
	}
}

// transformPair applies the operator-pair rules of spec §4.4 to a single
// (a, b) pair, returning the rebased b (or a zero Op with drop=true).
func transformPair(state any, a, b patch.Op) (patch.Op, bool) {
	aPath := pointer.MustParse(a.Path)
	bPath := pointer.MustParse(b.Path)

	if a.Op == patch.Txt && b.Op == patch.Txt && aPath.Equal(bPath) {
		aDelta := deltaOf(a.Value)
		bDelta := deltaOf(b.Value)
		_, bPrime := textdelta.Transform(aDelta, bDelta, false)
		nb := b
		nb.Value = bPrime
		return nb, false
	}

	switch a.Op {
	case patch.Move:
		return transformAgainstMove(state, a, b)
	case patch.Add, patch.Copy:
		return transformAgainstAdd(aPath, b), false
	case patch.Remove:
		return transformAgainstRemove(state, aPath, b)
	case patch.Replace:
		return transformAgainstReplace(aPath, b)
	default:
		// Combinators (@inc/@bit/@max/@min) and non-matching @txt never
		// restructure the tree; b passes through unchanged.
		return b, false
	}
}

func deltaOf(v any) textdelta.Delta {
	if d, ok := v.(textdelta.Delta); ok {
		return d
	}
	return nil
}

// sequenceSiblingIndex reports whether bPath names an element of the
// same sequence that parentPath/idx addresses, returning that element's
// index and whatever path remains beneath it.
func sequenceSiblingIndex(parentPath pointer.Pointer, bPath pointer.Pointer) (idx int, rest pointer.Pointer, ok bool) {
	if len(bPath) <= len(parentPath) {
		return 0, nil, false
	}
	if !parentPath.Equal(bPath[:len(parentPath)]) {
		return 0, nil, false
	}
	tok := bPath[len(parentPath)]
	if tok == pointer.AppendToken {
		return 0, nil, false
	}
	i, numeric := pointer.ParseIndex(tok)
	if !numeric {
		return 0, nil, false
	}
	return i, bPath[len(parentPath)+1:], true
}

func rebuildPath(base patch.Op, parent pointer.Pointer, idx int, rest pointer.Pointer) patch.Op {
	full := append(pointer.Pointer{}, parent...)
	full = append(full, itoa(idx))
	full = append(full, rest...)
	base.Path = full.String()
	return base
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// transformAgainstAdd handles a's Add/Copy insertion at insertPath: a
// sequence index shift for siblings at or after the insertion point
// (spec §4.4 "sequence index shift"); anything else passes through,
// including the "two adds on the same non-sequence key" case, where b
// simply survives unchanged.
func transformAgainstAdd(insertPath pointer.Pointer, b patch.Op) patch.Op {
	if len(insertPath) == 0 {
		return b
	}
	parent, tok := insertPath.Parent()
	if tok == pointer.AppendToken {
		return b
	}
	i, ok := pointer.ParseIndex(tok)
	if !ok {
		return b
	}
	bPath := pointer.MustParse(b.Path)
	j, rest, ok := sequenceSiblingIndex(parent, bPath)
	if !ok {
		return b
	}
	if j >= i {
		return rebuildPath(b, parent, j+1, rest)
	}
	return b
}

// transformAgainstRemove handles a's Remove at removePath: index
// decrement for later siblings, no-op/convert-to-add at the removed
// index, and drop (with a pure-delta-to-replace exception) for any b
// targeting inside the removed subtree (spec §4.4 "sequence remove",
// "remove").
func transformAgainstRemove(state any, removePath pointer.Pointer, b patch.Op) (patch.Op, bool) {
	bPath := pointer.MustParse(b.Path)

	if len(removePath) == 0 {
		if len(bPath) == 0 {
			return b, false
		}
		return dropOrConvert(b)
	}

	parent, tok := removePath.Parent()
	idx, isIndex := pointer.ParseIndex(tok)

	if isIndex && isSequenceParent(state, parent) {
		j, rest, ok := sequenceSiblingIndex(parent, bPath)
		if !ok {
			if removePath.Equal(bPath) || removePath.IsStrictPrefixOf(bPath) {
				return dropOrConvert(b)
			}
			return b, false
		}
		switch {
		case j > idx:
			return rebuildPath(b, parent, j-1, rest), false
		case j == idx:
			if len(rest) > 0 {
				return dropOrConvert(b)
			}
			if b.Op == patch.Replace {
				nb := b
				nb.Op = patch.Add
				nb.Path = parent.Join(itoa(idx)).String()
				return nb, false
			}
			return patch.Op{}, true
		default:
			return b, false
		}
	}

	if removePath.Equal(bPath) {
		if b.Op == patch.Replace {
			nb := b
			nb.Op = patch.Add
			return nb, false
		}
		return patch.Op{}, true
	}
	if removePath.IsStrictPrefixOf(bPath) {
		return dropOrConvert(b)
	}
	return b, false
}

// dropOrConvert implements the "remove" exception: a pure-delta b
// (@inc/@bit/@max/@min) survives as a replace seeded from the delta's
// identity result, rather than being silently dropped.
func dropOrConvert(b patch.Op) (patch.Op, bool) {
	if isPureDelta(b.Op) {
		nb := b
		nb.Op = patch.Replace
		nb.Value = patch.DeltaIdentity(b)
		return nb, false
	}
	return patch.Op{}, true
}

// transformAgainstReplace handles a's Replace at p: any b on p or a
// descendant of p is dropped, except a soft b targeting p exactly,
// which is never overwritten by the transform itself (spec §4.4
// "overwriting replace").
func transformAgainstReplace(replacePath pointer.Pointer, b patch.Op) (patch.Op, bool) {
	bPath := pointer.MustParse(b.Path)
	if replacePath.Equal(bPath) {
		if b.Soft {
			return b, false
		}
		return patch.Op{}, true
	}
	if replacePath.IsStrictPrefixOf(bPath) {
		return patch.Op{}, true
	}
	return b, false
}

// transformAgainstMove models a move as remove(a.From) followed by
// add(a.Path), with the destination corrected for the shift the removal
// causes when both sides share a sequence parent (spec §4.4 "sequence
// move").
func transformAgainstMove(state any, a patch.Op, b patch.Op) (patch.Op, bool) {
	fromPath := pointer.MustParse(a.From)
	toPath := pointer.MustParse(a.Path)

	nb, drop := transformAgainstRemove(state, fromPath, b)
	if drop {
		return patch.Op{}, true
	}

	adjustedTo := adjustMoveTarget(fromPath, toPath)
	return transformAgainstAdd(adjustedTo, nb), false
}

// adjustMoveTarget mirrors patch's own move-target index correction: if
// from and to share a sequence parent and to's index is past from's, it
// shifts down by one to account for the element already having been
// removed.
func adjustMoveTarget(from, to pointer.Pointer) pointer.Pointer {
	if len(from) == 0 || len(to) == 0 || len(from) != len(to) {
		return to
	}
	fromParent, fromTok := from.Parent()
	toParent, toTok := to.Parent()
	if !fromParent.Equal(toParent) {
		return to
	}
	fromIdx, fok := pointer.ParseIndex(fromTok)
	toIdx, tok := pointer.ParseIndex(toTok)
	if !fok || !tok {
		return to
	}
	if toIdx > fromIdx {
		return toParent.Join(itoa(toIdx - 1))
	}
	return to
}

func isSequenceParent(state any, parent pointer.Pointer) bool {
	v, err := pointer.Get(state, parent)
	if err != nil {
		return false
	}
	_, ok := v.([]any)
	return ok
}
