package patch

import (
	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/pointer"
)

// leafFunc mutates the parent container at the final path token and
// returns the replacement parent. It is the only place that actually
// writes a value; everything above it in transformPath is pure
// copy-on-write plumbing.
type leafFunc func(parent any, tok string) (any, error)

// createFunc decides what container to materialize for a missing
// intermediate segment, given the token that will be used to index into
// it (spec §4.1 auto-creation policy). A nil createFunc means missing
// ancestors are an error, not auto-created.
type createFunc func(nextTok string) any

// transformPath walks cur along tokens performing copy-on-write: every
// container on the path is shallow-copied before its child is replaced,
// so the original value is never mutated and sibling subtrees remain
// structurally shared. When an intermediate container is missing and
// create is non-nil, it is materialized via create; otherwise a
// PathNotFound/PathType error is raised depending on context.
func transformPath(cur any, tokens pointer.Pointer, create createFunc, leaf leafFunc, opName string) (any, error) {
	if len(tokens) == 1 {
		return leaf(cur, tokens[0])
	}
	tok, rest := tokens[0], tokens[1:]
	switch c := cur.(type) {
	case map[string]any:
		child, ok := c[tok]
		if !ok {
			if create == nil {
				return nil, common.NewPathError(common.KindPathNotFound, opName, pointer.Pointer(tokens).String())
			}
			child = create(rest[0])
		}
		newChild, err := transformPath(child, rest, create, leaf, opName)
		if err != nil {
			return nil, err
		}
		cp := cloneMap(c)
		cp[tok] = newChild
		return cp, nil
	case []any:
		idx, ok := pointer.ParseIndex(tok)
		if !ok {
			return nil, common.NewPathError(common.KindPathType, opName, pointer.Pointer(tokens).String())
		}
		if idx < 0 || idx >= len(c) {
			return nil, common.NewPathError(common.KindIndexOutOfRange, opName, pointer.Pointer(tokens).String())
		}
		newChild, err := transformPath(c[idx], rest, create, leaf, opName)
		if err != nil {
			return nil, err
		}
		cp := cloneSlice(c)
		cp[idx] = newChild
		return cp, nil
	case nil:
		if create == nil {
			return nil, common.NewPathError(common.KindPathNotFound, opName, pointer.Pointer(tokens).String())
		}
		return transformPath(create(tok), tokens, create, leaf, opName)
	default:
		return nil, common.NewPathError(common.KindPathType, opName, pointer.Pointer(tokens).String())
	}
}

func cloneMap(m map[string]any) map[string]any {
	cp := make(map[string]any, len(m)+1)
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func cloneSlice(s []any) []any {
	cp := make([]any, len(s))
	copy(cp, s)
	return cp
}

// createForAdd implements the §4.1 "add" auto-creation policy: a sequence
// only when the next token is exactly "0", a mapping otherwise.
func createForAdd(nextTok string) any {
	if nextTok == "0" {
		return []any{}
	}
	return map[string]any{}
}

// createForReplace implements the §4.1 "replace" auto-creation policy:
// always a mapping, never a sequence.
func createForReplace(nextTok string) any {
	return map[string]any{}
}

// isRoot reports whether p is the whole-document path "", the one case
// transformPath does not cover since it needs at least one token.
func isRoot(p pointer.Pointer) bool { return len(p) == 0 }
