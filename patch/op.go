// Package patch implements the JSON Patch operator registry (spec §4.2),
// the copy-on-write apply engine (§4.3), and patch-sequence compose/invert
// (§4.5). It is the C2/C3/C5 core.
package patch

import "github.com/homveloper/syncdoc/textdelta"

// Kind names an operator. The five RFC 6902-derived kinds plus the five
// CRDT-style extensions from spec §3.
type Kind string

const (
	Add     Kind = "add"
	Remove  Kind = "remove"
	Replace Kind = "replace"
	Copy    Kind = "copy"
	Move    Kind = "move"
	Txt     Kind = "@txt"
	Inc     Kind = "@inc"
	Bit     Kind = "@bit"
	Max     Kind = "@max"
	Min     Kind = "@min"
)

// Combinable reports whether two ops of this kind on the same path can be
// folded into one by Compose / LWW consolidation (spec §4.2, §4.9).
func (k Kind) Combinable() bool {
	switch k {
	case Inc, Bit, Max, Min, Txt:
		return true
	default:
		return false
	}
}

// Op is one operation in a patch, tagged by Op. Path and From are RFC 6901
// pointer strings. Ts and Soft are the optional per-op fields used by the
// LWW pipeline (spec §3).
type Op struct {
	Op    Kind    `json:"op"`
	Path  string  `json:"path"`
	From  string  `json:"from,omitempty"`
	Value any     `json:"value,omitempty"`
	Ts    *float64 `json:"ts,omitempty"`
	Soft  bool    `json:"soft,omitempty"`
}

// Patch is an ordered list of operations.
type Patch []Op

// Clone returns a shallow copy of the patch slice (the Ops themselves are
// value types save for Value/Ts, which are never mutated in place by this
// package).
func (p Patch) Clone() Patch {
	if p == nil {
		return nil
	}
	out := make(Patch, len(p))
	copy(out, p)
	return out
}

// HasTs reports whether the op carries an explicit logical timestamp.
func (o Op) HasTs() bool { return o.Ts != nil }

// TsOrZero returns the op's timestamp, or 0 if absent.
func (o Op) TsOrZero() float64 {
	if o.Ts == nil {
		return 0
	}
	return *o.Ts
}

// asDelta type-asserts Value as a textdelta.Delta, treating an absent or
// non-delta field as the empty delta (spec §4.2 "@txt ... If the field is
// absent or non-delta, treat as starting from empty delta").
func asDelta(v any) textdelta.Delta {
	if d, ok := v.(textdelta.Delta); ok {
		return d
	}
	return nil
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func numbersEqual(a, b any) bool {
	fa, aok := asNumber(a)
	fb, bok := asNumber(b)
	if aok && bok {
		return fa == fb
	}
	sa, aok := asString(a)
	sb, bok := asString(b)
	if aok && bok {
		return sa == sb
	}
	return a == b
}

// DeltaIdentity reports what applying op's delta to an absent field would
// produce (0 as the base for @inc and @bit; @max/@min yield their own
// value). Used by the
// transform engine's "ancestor removed, b is a pure delta" exception
// (spec §4.4), which converts such a b into a replace carrying this
// value rather than dropping it outright.
func DeltaIdentity(op Op) any {
	switch op.Op {
	case Inc:
		n, _ := asNumber(op.Value)
		return n
	case Bit:
		m, _ := asNumber(op.Value)
		low := int64(m) & 0xFFFF
		return float64(low)
	case Max, Min:
		n, _ := asNumber(op.Value)
		return n
	default:
		return op.Value
	}
}

// less compares two scalar values per spec §4.2 ("strings compared
// lexicographically, numbers numerically").
func less(a, b any) bool {
	if fa, ok := asNumber(a); ok {
		if fb, ok := asNumber(b); ok {
			return fa < fb
		}
	}
	if sa, ok := asString(a); ok {
		if sb, ok := asString(b); ok {
			return sa < sb
		}
	}
	return false
}
