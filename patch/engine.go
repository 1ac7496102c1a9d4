package patch

import (
	"github.com/homveloper/syncdoc/pointer"
)

// Options controls the C3 apply engine (spec §4.3).
type Options struct {
	// Strict aborts the whole patch on the first operator error. It is
	// the default semantics when Silent and Rigid are both false.
	Strict bool
	// Silent suppresses errors: a failing op is skipped (logged by the
	// caller, not here) and the remaining ops still run.
	Silent bool
	// Rigid makes the apply transactional: on any error, the original
	// pre-patch value is returned unchanged (the error is still
	// returned so the caller can tell the patch did not take effect).
	Rigid bool
	// AtPath, if non-empty, is prefixed onto every op's Path/From before
	// applying — used to apply a patch against a subtree.
	AtPath string
	// Registry overrides the operator table; nil uses patch.Default.
	Registry *Registry
}

// Apply runs patch against value per opts, per the precedence: Rigid
// guarantees a transactional rollback of the returned value on error;
// Silent drops failing ops instead of aborting; otherwise (Strict, the
// default posture) the first error aborts and bubbles up. The input
// value is never mutated — Apply always returns a (possibly) new root
// built via copy-on-write.
func Apply(value any, ops Patch, opts Options) (any, error) {
	reg := opts.Registry
	if reg == nil {
		reg = Default
	}
	original := value
	root := value
	for _, op := range ops {
		if opts.AtPath != "" {
			op = prefixOp(op, opts.AtPath)
		}
		fn, ok := reg.ApplyFunc(op.Op)
		if !ok {
			err := errUnknown(op.Op)
			if opts.Silent {
				continue
			}
			if opts.Rigid {
				return original, err
			}
			return root, err
		}
		newRoot, err := fn(root, op)
		if err != nil {
			if opts.Silent {
				continue
			}
			if opts.Rigid {
				return original, err
			}
			return root, err
		}
		root = newRoot
	}
	return root, nil
}

// prefixOp prepends prefix onto op's Path and From (when set).
func prefixOp(op Op, prefix string) Op {
	op.Path = joinPointerStrings(prefix, op.Path)
	if op.From != "" {
		op.From = joinPointerStrings(prefix, op.From)
	}
	return op
}

func joinPointerStrings(prefix, suffix string) string {
	pp := pointer.MustParse(prefix)
	sp := pointer.MustParse(suffix)
	out := make(pointer.Pointer, 0, len(pp)+len(sp))
	out = append(out, pp...)
	out = append(out, sp...)
	return out.String()
}
