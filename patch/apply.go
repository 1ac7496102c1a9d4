package patch

import (
	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/pointer"
	"github.com/homveloper/syncdoc/textdelta"
)

func applyAdd(root any, op Op) (any, error) {
	p := pointer.MustParse(op.Path)
	if isRoot(p) {
		return op.Value, nil
	}
	leaf := func(parent any, tok string) (any, error) {
		switch c := parent.(type) {
		case map[string]any:
			cp := cloneMap(c)
			cp[tok] = op.Value
			return cp, nil
		case []any:
			if tok == pointer.AppendToken {
				cp := make([]any, len(c)+1)
				copy(cp, c)
				cp[len(c)] = op.Value
				return cp, nil
			}
			idx, ok := pointer.ParseIndex(tok)
			if !ok {
				return nil, common.NewPathError(common.KindPathType, string(Add), op.Path)
			}
			if idx < 0 || idx > len(c) {
				return nil, common.NewPathError(common.KindIndexOutOfRange, string(Add), op.Path)
			}
			cp := make([]any, 0, len(c)+1)
			cp = append(cp, c[:idx]...)
			cp = append(cp, op.Value)
			cp = append(cp, c[idx:]...)
			return cp, nil
		case nil:
			// Parent itself is being created by transformPath's createFunc
			// only for ancestors; a nil leaf parent means the grandparent
			// was empty and untyped. Treat as a fresh mapping.
			return map[string]any{tok: op.Value}, nil
		default:
			return nil, common.NewPathError(common.KindPathType, string(Add), op.Path)
		}
	}
	return transformPath(root, p, createForAdd, leaf, string(Add))
}

func applyRemove(root any, op Op) (any, error) {
	p := pointer.MustParse(op.Path)
	if isRoot(p) {
		return nil, nil
	}
	leaf := func(parent any, tok string) (any, error) {
		switch c := parent.(type) {
		case map[string]any:
			if _, ok := c[tok]; !ok {
				return nil, common.NewPathError(common.KindPathNotFound, string(Remove), op.Path)
			}
			cp := cloneMap(c)
			delete(cp, tok)
			return cp, nil
		case []any:
			idx, ok := pointer.ParseIndex(tok)
			if !ok {
				return nil, common.NewPathError(common.KindPathType, string(Remove), op.Path)
			}
			if idx < 0 || idx >= len(c) {
				return nil, common.NewPathError(common.KindIndexOutOfRange, string(Remove), op.Path)
			}
			cp := make([]any, 0, len(c)-1)
			cp = append(cp, c[:idx]...)
			cp = append(cp, c[idx+1:]...)
			return cp, nil
		default:
			return nil, common.NewPathError(common.KindPathNotFound, string(Remove), op.Path)
		}
	}
	return transformPath(root, p, nil, leaf, string(Remove))
}

func applyReplace(root any, op Op) (any, error) {
	p := pointer.MustParse(op.Path)
	if isRoot(p) {
		return op.Value, nil
	}
	leaf := func(parent any, tok string) (any, error) {
		switch c := parent.(type) {
		case map[string]any:
			if _, ok := c[tok]; !ok {
				return nil, common.NewPathError(common.KindPathNotFound, string(Replace), op.Path)
			}
			cp := cloneMap(c)
			cp[tok] = op.Value
			return cp, nil
		case []any:
			idx, ok := pointer.ParseIndex(tok)
			if !ok {
				return nil, common.NewPathError(common.KindPathType, string(Replace), op.Path)
			}
			if idx < 0 || idx >= len(c) {
				return nil, common.NewPathError(common.KindIndexOutOfRange, string(Replace), op.Path)
			}
			cp := cloneSlice(c)
			cp[idx] = op.Value
			return cp, nil
		case nil:
			// An absent leaf parent (an empty document) is treated as a
			// fresh mapping, as in applyAdd.
			return map[string]any{tok: op.Value}, nil
		default:
			return nil, common.NewPathError(common.KindPathType, string(Replace), op.Path)
		}
	}
	return transformPath(root, p, createForReplace, leaf, string(Replace))
}

func applyCopy(root any, op Op) (any, error) {
	fromP := pointer.MustParse(op.From)
	val, err := pointer.Get(root, fromP)
	if err != nil {
		return nil, err
	}
	return applyAdd(root, Op{Op: Add, Path: op.Path, Value: deepCopyJSON(val)})
}

func applyMove(root any, op Op) (any, error) {
	fromP := pointer.MustParse(op.From)
	toP := pointer.MustParse(op.Path)

	val, err := pointer.Get(root, fromP)
	if err != nil {
		return nil, err
	}

	adjustedTo := adjustMoveTarget(fromP, toP)

	afterRemove, err := applyRemove(root, Op{Op: Remove, Path: op.From})
	if err != nil {
		return nil, err
	}
	return applyAdd(afterRemove, Op{Op: Add, Path: adjustedTo.String(), Value: val})
}

// adjustMoveTarget corrects the destination index when from and path
// share a sequence parent and the removal shifts subsequent indices down
// by one (spec §4.2 "move ... index correction if both lie in the same
// sequence").
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

func applyInc(root any, op Op) (any, error) {
	p := pointer.MustParse(op.Path)
	cur, existed := getOrZero(root, p)
	n, _ := asNumber(op.Value)
	curN, _ := asNumber(cur)
	if !existed {
		curN = 0
	}
	return setScalar(root, p, curN+n)
}

func applyBit(root any, op Op) (any, error) {
	p := pointer.MustParse(op.Path)
	cur, existed := getOrZero(root, p)
	curN, _ := asNumber(cur)
	if !existed {
		curN = 0
	}
	mask, _ := asNumber(op.Value)
	current := int64(curN)
	m := int64(mask)
	low := m & 0xFFFF
	high := (m >> 16) & 0xFFFF
	result := (current &^ high) | low
	return setScalar(root, p, float64(result))
}

func applyMax(root any, op Op) (any, error) {
	return applyExtremum(root, op, false)
}

func applyMin(root any, op Op) (any, error) {
	return applyExtremum(root, op, true)
}

func applyExtremum(root any, op Op, wantMin bool) (any, error) {
	p := pointer.MustParse(op.Path)
	cur, existed := getOrZero(root, p)
	if !existed {
		return setScalar(root, p, op.Value)
	}
	if numbersEqual(cur, op.Value) {
		return root, nil // no-op; equal means keep current
	}
	curLess := less(cur, op.Value)
	keepIncoming := curLess
	if wantMin {
		keepIncoming = !curLess
	}
	if keepIncoming {
		return setScalar(root, p, op.Value)
	}
	return root, nil
}

func applyTxt(root any, op Op) (any, error) {
	p := pointer.MustParse(op.Path)
	cur, _ := getOrZero(root, p)
	existing := asDelta(cur)
	incoming := asDelta(op.Value)
	composed := textdelta.Compose(existing, incoming)
	return setScalar(root, p, composed)
}

// getOrZero returns (value, true) if present at p, or (nil, false) if
// absent. It never errors: a missing path is simply "no prior value",
// matching the "missing ≡ 0 / missing ≡ empty" convention of §4.2's
// combinator ops.
func getOrZero(root any, p pointer.Pointer) (any, bool) {
	v, err := pointer.Get(root, p)
	if err != nil {
		return nil, false
	}
	return v, true
}

// setScalar sets path to value, auto-creating missing ancestor mappings
// the way "replace" does, since the combinator ops (@inc/@bit/@max/@min/
// @txt) behave like replace once the delta/coercion has been computed.
func setScalar(root any, p pointer.Pointer, value any) (any, error) {
	if isRoot(p) {
		return value, nil
	}
	leaf := func(parent any, tok string) (any, error) {
		switch c := parent.(type) {
		case map[string]any:
			cp := cloneMap(c)
			cp[tok] = value
			return cp, nil
		case []any:
			idx, ok := pointer.ParseIndex(tok)
			if !ok {
				return nil, common.NewPathError(common.KindPathType, "combinator", p.String())
			}
			if idx < 0 || idx > len(c) {
				return nil, common.NewPathError(common.KindIndexOutOfRange, "combinator", p.String())
			}
			if idx == len(c) {
				cp := make([]any, len(c)+1)
				copy(cp, c)
				cp[idx] = value
				return cp, nil
			}
			cp := cloneSlice(c)
			cp[idx] = value
			return cp, nil
		case nil:
			return map[string]any{tok: value}, nil
		default:
			return nil, common.NewPathError(common.KindPathType, "combinator", p.String())
		}
	}
	return transformPath(root, p, createForReplace, leaf, "combinator")
}

// deepCopyJSON deep-copies a decoded JSON value (map[string]any,
// []any, or a scalar) without a JSON round-trip.
func deepCopyJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(t))
		for k, vv := range t {
			cp[k] = deepCopyJSON(vv)
		}
		return cp
	case []any:
		cp := make([]any, len(t))
		for i, vv := range t {
			cp[i] = deepCopyJSON(vv)
		}
		return cp
	default:
		return t
	}
}
