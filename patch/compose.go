package patch

import (
	"github.com/homveloper/syncdoc/pointer"
	"github.com/homveloper/syncdoc/textdelta"
)

func combineInc(existing, incoming Op) (Op, bool) {
	a, _ := asNumber(existing.Value)
	b, _ := asNumber(incoming.Value)
	sum := a + b
	if sum == a {
		return existing, false
	}
	out := incoming
	out.Value = sum
	return out, true
}

func combineBit(existing, incoming Op) (Op, bool) {
	a, _ := asNumber(existing.Value)
	b, _ := asNumber(incoming.Value)
	am, bm := int64(a), int64(b)
	combined := (am &^ ((bm >> 16) & 0xFFFF)) | (bm & 0xFFFF)
	// Re-encode as a mask: low bits are the OR'd-on bits (the combined
	// result's set bits), high bits are whichever of the two requested a
	// clear (bitwise OR of the two clear-masks).
	clearMask := (int64(a) >> 16 & 0xFFFF) | (bm >> 16 & 0xFFFF)
	newMask := float64((clearMask << 16) | (combined & 0xFFFF))
	if newMask == a {
		return existing, false
	}
	out := incoming
	out.Value = newMask
	return out, true
}

func combineMax(existing, incoming Op) (Op, bool) {
	return combineExtremum(existing, incoming, false)
}

func combineMin(existing, incoming Op) (Op, bool) {
	return combineExtremum(existing, incoming, true)
}

func combineExtremum(existing, incoming Op, wantMin bool) (Op, bool) {
	if numbersEqual(existing.Value, incoming.Value) {
		return existing, false
	}
	existingLess := less(existing.Value, incoming.Value)
	keepIncoming := existingLess
	if wantMin {
		keepIncoming = !existingLess
	}
	if !keepIncoming {
		return existing, false
	}
	out := incoming
	return out, true
}

func combineTxt(existing, incoming Op) (Op, bool) {
	a := asDelta(existing.Value)
	b := asDelta(incoming.Value)
	composed := textdelta.Compose(a, b)
	out := incoming
	out.Value = composed
	return out, true
}

// Compose walks p left-to-right and merges adjacent ops that share a path
// and a combinable operator (spec §4.5). A replace absorbs any prior op
// on the same subtree (its own or a descendant's); so does a remove.
// Composition never reorders ops — only adjacent, mergeable runs collapse
// — matching the "normalizes a patch sequence" contract of C5.
func Compose(p Patch, reg *Registry) Patch {
	if reg == nil {
		reg = Default
	}
	out := make(Patch, 0, len(p))
	for _, op := range p {
		if len(out) == 0 {
			out = append(out, op)
			continue
		}
		last := out[len(out)-1]
		merged, noop, ok := tryMerge(last, op, reg)
		if ok {
			if !noop {
				out[len(out)-1] = merged
			}
			continue
		}
		out = append(out, op)
	}
	return out
}

func tryMerge(existing, incoming Op, reg *Registry) (Op, bool, bool) {
	existingPath := pointer.MustParse(existing.Path)
	incomingPath := pointer.MustParse(incoming.Path)

	// A replace/remove absorbs any previous op on the same subtree
	// (itself or a descendant of the subtree it rewrites).
	if (incoming.Op == Replace || incoming.Op == Remove) &&
		incomingPath.IsPrefixOf(existingPath) {
		return incoming, false, true
	}

	if existing.Op != incoming.Op || !existingPath.Equal(incomingPath) {
		return Op{}, false, false
	}
	if !existing.Op.Combinable() {
		return Op{}, false, false
	}
	combine, ok := reg.CombineFunc(existing.Op)
	if !ok {
		return Op{}, false, false
	}
	combined, changed := combine(existing, incoming)
	if !changed {
		return Op{}, true, true
	}
	return combined, false, true
}
