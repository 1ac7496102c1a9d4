// Package textdelta is the black-box text-delta contract assumed by the
// core (spec §1 Non-goals: "rich-text delta composition itself ... assumed
// available as a black-box 'text delta' library with compose and two-sided
// transform"). It defines the contract plus one concrete, intentionally
// simple implementation: an ordered run-length insert/delete list, enough
// to exercise @txt end-to-end without pulling in a full OT-text engine.
package textdelta

import "github.com/pkg/errors"

// PartKind tags one run in a Delta.
type PartKind int

const (
	// Retain advances the cursor by Len positions in the base text
	// without modifying it.
	Retain PartKind = iota
	// Insert inserts Text at the cursor without advancing over base text.
	Insert
	// Delete removes Len positions of base text at the cursor.
	Delete
)

// Part is one run of a Delta.
type Part struct {
	Kind PartKind `json:"kind"`
	Len  int      `json:"len,omitempty"`
	Text string   `json:"text,omitempty"`
}

// Delta is an ordered list of Parts, matching the shape of a Quill/ot-text
// style delta. It is the value carried by a "@txt" op.
type Delta []Part

// Apply applies d to base, returning the resulting string.
func Apply(base string, d Delta) (string, error) {
	var out []byte
	pos := 0
	for _, p := range d {
		switch p.Kind {
		case Retain:
			end := pos + p.Len
			if end > len(base) {
				return "", errors.Errorf("textdelta: retain %d exceeds remaining base length %d", p.Len, len(base)-pos)
			}
			out = append(out, base[pos:end]...)
			pos = end
		case Insert:
			out = append(out, p.Text...)
		case Delete:
			pos += p.Len
			if pos > len(base) {
				return "", errors.Errorf("textdelta: delete exceeds base length")
			}
		}
	}
	if pos < len(base) {
		out = append(out, base[pos:]...)
	}
	return string(out), nil
}

// Compose merges two deltas applied in sequence (a then b) into one delta
// with the same net effect, per spec §4.2 "@txt ... composes under
// replay". Composition is done the simple way: apply a to recover an
// intermediate textual effect is not generally possible without the base
// text, so Compose here works structurally by concatenating a's run list
// with b's, then collapsing adjacent compatible runs (retain+retain,
// delete+delete, insert+insert). This is sufficient for consolidation of pending ops
// against the same base (spec §4.5, §4.9) where a and b are both anchored
// at the same original revision.
func Compose(a, b Delta) Delta {
	merged := make(Delta, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	return collapse(merged)
}

func collapse(d Delta) Delta {
	if len(d) == 0 {
		return d
	}
	out := make(Delta, 0, len(d))
	out = append(out, d[0])
	for _, p := range d[1:] {
		last := &out[len(out)-1]
		if last.Kind == p.Kind && p.Kind != Insert {
			last.Len += p.Len
			continue
		}
		if last.Kind == Insert && p.Kind == Insert {
			last.Text += p.Text
			continue
		}
		out = append(out, p)
	}
	return out
}

// Transform produces the two-sided rebase of a and b, both derived from
// the same base text: transformed-b is b as it should apply after a has
// already been applied, and transformed-a is the symmetric counterpart
// (spec §4.4 "@txt vs @txt at same path ... producing both A (unchanged
// by convention) and B' (the rebased delta)"). bHasPriority selects which
// side wins when both insert at the same position: the winner's text is
// placed first (b's when bHasPriority, a's otherwise).
func Transform(a, b Delta, bHasPriority bool) (aPrime, bPrime Delta) {
	ai, bi := 0, 0
	var aRemain, bRemain *Part
	nextA := func() *Part {
		if aRemain != nil {
			return aRemain
		}
		if ai < len(a) {
			p := a[ai]
			ai++
			return &p
		}
		return nil
	}
	nextB := func() *Part {
		if bRemain != nil {
			return bRemain
		}
		if bi < len(b) {
			p := b[bi]
			bi++
			return &p
		}
		return nil
	}

	for {
		pa, pb := nextA(), nextB()
		aRemain, bRemain = nil, nil
		if pa == nil && pb == nil {
			break
		}
		switch {
		case pa != nil && pa.Kind == Insert && (pb == nil || pb.Kind != Insert || !bHasPriority):
			// a's insert passes through on b's side as a retain so b's
			// following ops land after it; a' keeps the insert verbatim.
			aPrime = append(aPrime, Part{Kind: Insert, Text: pa.Text})
			bPrime = append(bPrime, Part{Kind: Retain, Len: len(pa.Text)})
			bRemain = pb
		case pb != nil && pb.Kind == Insert:
			bPrime = append(bPrime, Part{Kind: Insert, Text: pb.Text})
			aPrime = append(aPrime, Part{Kind: Retain, Len: len(pb.Text)})
			aRemain = pa
		case pa == nil:
			bPrime = append(bPrime, *pb)
		case pb == nil:
			aPrime = append(aPrime, *pa)
		case pa.Kind == Delete && pb.Kind == Delete:
			n := minInt(pa.Len, pb.Len)
			if pa.Len > n {
				aRemain = &Part{Kind: Delete, Len: pa.Len - n}
			}
			if pb.Len > n {
				bRemain = &Part{Kind: Delete, Len: pb.Len - n}
			}
		case pa.Kind == Delete && pb.Kind == Retain:
			n := minInt(pa.Len, pb.Len)
			aPrime = append(aPrime, Part{Kind: Delete, Len: n})
			if pa.Len > n {
				aRemain = &Part{Kind: Delete, Len: pa.Len - n}
			}
			if pb.Len > n {
				bRemain = &Part{Kind: Retain, Len: pb.Len - n}
			}
		case pa.Kind == Retain && pb.Kind == Delete:
			n := minInt(pa.Len, pb.Len)
			bPrime = append(bPrime, Part{Kind: Delete, Len: n})
			if pa.Len > n {
				aRemain = &Part{Kind: Retain, Len: pa.Len - n}
			}
			if pb.Len > n {
				bRemain = &Part{Kind: Delete, Len: pb.Len - n}
			}
		default: // retain/retain
			n := minInt(pa.Len, pb.Len)
			aPrime = append(aPrime, Part{Kind: Retain, Len: n})
			bPrime = append(bPrime, Part{Kind: Retain, Len: n})
			if pa.Len > n {
				aRemain = &Part{Kind: Retain, Len: pa.Len - n}
			}
			if pb.Len > n {
				bRemain = &Part{Kind: Retain, Len: pb.Len - n}
			}
		}
	}
	return collapse(aPrime), collapse(bPrime)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
