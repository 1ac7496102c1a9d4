package patch

import "github.com/homveloper/syncdoc/pointer"

// Invert walks before (the state immediately prior to ops) and returns
// the patch that undoes ops, in reverse application order, per spec
// §4.2/§4.5. Each op is inverted against the state as it stood right
// before that particular op (i.e. before is threaded forward through the
// walk), so a multi-op patch inverts correctly even when later ops
// depend on earlier ones' effects.
func Invert(before any, ops Patch, reg *Registry) (Patch, error) {
	if reg == nil {
		reg = Default
	}
	state := before
	undo := make(Patch, 0, len(ops))
	type step struct {
		state any
		op    Op
	}
	steps := make([]step, 0, len(ops))
	for _, op := range ops {
		steps = append(steps, step{state: state, op: op})
		fn, ok := reg.ApplyFunc(op.Op)
		if !ok {
			continue
		}
		next, err := fn(state, op)
		if err != nil {
			return nil, err
		}
		state = next
	}
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		invFn, ok := reg.InvertFunc(s.op.Op)
		if !ok {
			continue
		}
		inv, err := invFn(s.state, s.op)
		if err != nil {
			return nil, err
		}
		undo = append(undo, inv...)
	}
	return undo, nil
}

func invertAdd(before any, op Op) (Patch, error) {
	return Patch{{Op: Remove, Path: op.Path}}, nil
}

func invertRemove(before any, op Op) (Patch, error) {
	p := pointer.MustParse(op.Path)
	val, existed := getOrZero(before, p)
	if !existed {
		return nil, nil
	}
	return Patch{{Op: Add, Path: op.Path, Value: deepCopyJSON(val)}}, nil
}

func invertReplace(before any, op Op) (Patch, error) {
	p := pointer.MustParse(op.Path)
	val, existed := getOrZero(before, p)
	if !existed {
		return Patch{{Op: Remove, Path: op.Path}}, nil
	}
	return Patch{{Op: Replace, Path: op.Path, Value: deepCopyJSON(val)}}, nil
}

// invertReplaceLike is shared by @bit/@max/@min/@txt: they all behave
// like "replace" for undo purposes once the prior value is captured.
func invertReplaceLike(before any, op Op) (Patch, error) {
	return invertReplace(before, op)
}

func invertInc(before any, op Op) (Patch, error) {
	p := pointer.MustParse(op.Path)
	_, existed := getOrZero(before, p)
	if !existed {
		return Patch{{Op: Remove, Path: op.Path}}, nil
	}
	n, _ := asNumber(op.Value)
	return Patch{{Op: Inc, Path: op.Path, Value: -n}}, nil
}

func invertCopy(before any, op Op) (Patch, error) {
	return Patch{{Op: Remove, Path: op.Path}}, nil
}

func invertMove(before any, op Op) (Patch, error) {
	from := pointer.MustParse(op.From)
	to := adjustMoveTarget(from, pointer.MustParse(op.Path))
	if len(from) > 0 && len(to) > 0 && to[len(to)-1] == pointer.AppendToken {
		fromParent, _ := from.Parent()
		toParent, _ := to.Parent()
		if seq, err := pointer.Get(before, toParent); err == nil {
			if s, ok := seq.([]any); ok {
				n := len(s)
				if fromParent.Equal(toParent) {
					n--
				}
				to = toParent.Join(itoa(n))
			}
		}
	}
	return Patch{{Op: Move, Path: op.From, From: to.String()}}, nil
}
