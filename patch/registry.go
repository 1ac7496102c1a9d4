package patch

import "github.com/homveloper/syncdoc/common"

// ApplyFunc mutates root by applying op, returning the new root via
// copy-on-write (the input root is never mutated).
type ApplyFunc func(root any, op Op) (any, error)

// InvertFunc returns the ops that undo op, given the document state as it
// was immediately before op was applied.
type InvertFunc func(before any, op Op) (Patch, error)

// CombineFunc folds incoming onto existing when both target the same path
// and share a combinable operator (spec §4.2/§4.5/§4.9). changed is false
// when the fold is a pure no-op (e.g. @max/@min against an equal value),
// signalling callers (Compose, LWW consolidation) to drop the op.
type CombineFunc func(existing, incoming Op) (combined Op, changed bool)

// Registry is the C2 "table of operation kinds -> {apply, invert,
// compose}" (spec §2). It is a plain map so callers can register custom
// operators; the server only needs to transform/apply kinds it knows
// about, and per §9 ("Operator extensibility") unknown kinds are
// passed through rather than rejected outright by the transform
// engine, though Apply in strict mode still reports ErrUnknownOp.
type Registry struct {
	apply   map[Kind]ApplyFunc
	invert  map[Kind]InvertFunc
	combine map[Kind]CombineFunc
}

// NewRegistry returns a Registry pre-populated with the ten built-in
// operator kinds from spec §3.
func NewRegistry() *Registry {
	r := &Registry{
		apply:   make(map[Kind]ApplyFunc),
		invert:  make(map[Kind]InvertFunc),
		combine: make(map[Kind]CombineFunc),
	}
	registerBuiltins(r)
	return r
}

// Register installs (or overrides) the functions for kind.
func (r *Registry) Register(kind Kind, a ApplyFunc, i InvertFunc, c CombineFunc) {
	if a != nil {
		r.apply[kind] = a
	}
	if i != nil {
		r.invert[kind] = i
	}
	if c != nil {
		r.combine[kind] = c
	}
}

func (r *Registry) ApplyFunc(kind Kind) (ApplyFunc, bool) {
	f, ok := r.apply[kind]
	return f, ok
}

func (r *Registry) InvertFunc(kind Kind) (InvertFunc, bool) {
	f, ok := r.invert[kind]
	return f, ok
}

func (r *Registry) CombineFunc(kind Kind) (CombineFunc, bool) {
	f, ok := r.combine[kind]
	return f, ok
}

// Known reports whether kind has a registered apply function.
func (r *Registry) Known(kind Kind) bool {
	_, ok := r.apply[kind]
	return ok
}

// Default is the package-level registry used when callers don't supply
// their own (e.g. via Options.Registry).
var Default = NewRegistry()

func registerBuiltins(r *Registry) {
	r.Register(Add, applyAdd, invertAdd, nil)
	r.Register(Remove, applyRemove, invertRemove, nil)
	r.Register(Replace, applyReplace, invertReplace, nil)
	r.Register(Copy, applyCopy, invertCopy, nil)
	r.Register(Move, applyMove, invertMove, nil)
	r.Register(Inc, applyInc, invertInc, combineInc)
	r.Register(Bit, applyBit, invertReplaceLike, combineBit)
	r.Register(Max, applyMax, invertReplaceLike, combineMax)
	r.Register(Min, applyMin, invertReplaceLike, combineMin)
	r.Register(Txt, applyTxt, invertReplaceLike, combineTxt)
}

// errUnknown wraps common.ErrUnknownOp with the offending kind.
func errUnknown(kind Kind) error {
	return &unknownOpError{kind: kind}
}

type unknownOpError struct{ kind Kind }

func (e *unknownOpError) Error() string { return "syncdoc: unknown operator " + string(e.kind) }
func (e *unknownOpError) Is(target error) bool { return target == common.ErrUnknownOp }
