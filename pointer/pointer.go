// Package pointer implements RFC 6901 JSON Pointer parsing, escaping, and
// traversal. The apply-time auto-creation policy (spec §4.1) lives in
// package patch, not here.
package pointer

import (
	"strconv"
	"strings"

	"github.com/homveloper/syncdoc/common"
)

// AppendToken is the RFC 6901 "-" token denoting "one past the end" of a
// sequence.
const AppendToken = "-"

// Pointer is a parsed JSON Pointer: a sequence of decoded tokens. The
// empty pointer (nil or zero-length) denotes the whole document root.
type Pointer []string

// Parse decodes a JSON Pointer string into its token sequence, undoing
// RFC 6901 escaping ("~1" -> "/" then "~0" -> "~", in that order since
// "~1" must not be mistaken for an escaped "~0").
func Parse(s string) (Pointer, error) {
	if s == "" {
		return nil, nil
	}
	if s[0] != '/' {
		return nil, common.NewPathError(common.KindPathType, "parse", s)
	}
	raw := strings.Split(s[1:], "/")
	toks := make(Pointer, len(raw))
	for i, t := range raw {
		toks[i] = unescape(t)
	}
	return toks, nil
}

// MustParse is Parse but panics on error; useful for literals in tests.
func MustParse(s string) Pointer {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String re-encodes the pointer as an RFC 6901 string.
func (p Pointer) String() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range p {
		b.WriteByte('/')
		b.WriteString(escape(t))
	}
	return b.String()
}

// Parent returns all but the last token, and the last token itself. It
// panics if p is empty; callers must check len(p) > 0 first.
func (p Pointer) Parent() (Pointer, string) {
	return p[:len(p)-1], p[len(p)-1]
}

// Join appends token to the pointer, returning a new Pointer.
func (p Pointer) Join(token string) Pointer {
	out := make(Pointer, len(p)+1)
	copy(out, p)
	out[len(p)] = token
	return out
}

// IsPrefixOf reports whether p is a prefix of (or equal to) other.
func (p Pointer) IsPrefixOf(other Pointer) bool {
	if len(p) > len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// IsStrictPrefixOf reports whether p is a proper (non-equal) prefix of
// other, i.e. other names a descendant path of p.
func (p Pointer) IsStrictPrefixOf(other Pointer) bool {
	return len(p) < len(other) && p.IsPrefixOf(other)
}

// Equal reports token-wise equality.
func (p Pointer) Equal(other Pointer) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

func escape(tok string) string {
	if !strings.ContainsAny(tok, "~/") {
		return tok
	}
	tok = strings.ReplaceAll(tok, "~", "~0")
	return strings.ReplaceAll(tok, "/", "~1")
}

func unescape(tok string) string {
	if !strings.Contains(tok, "~") {
		return tok
	}
	tok = strings.ReplaceAll(tok, "~1", "/")
	return strings.ReplaceAll(tok, "~0", "~")
}

// ParseIndex parses a sequence token as a 0-based index. It rejects
// leading zeros (except the literal "0") and negative/non-numeric tokens,
// per the strict-apply contract in spec §4.1.
func ParseIndex(tok string) (int, bool) {
	if tok == "" {
		return 0, false
	}
	if tok == "0" {
		return 0, true
	}
	if tok[0] == '0' || tok[0] == '-' {
		return 0, false
	}
	for _, r := range tok {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Get traverses value following the pointer's tokens, strictly: any
// missing key, out-of-range index, or non-traversable intermediate
// returns an error. On a mapping any token is a valid key; on a sequence
// a token must be AppendToken or ParseIndex-able.
func Get(value any, p Pointer) (any, error) {
	cur := value
	for i, tok := range p {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[tok]
			if !ok {
				return nil, common.NewPathError(common.KindPathNotFound, "get", Pointer(p[:i+1]).String())
			}
			cur = v
		case []any:
			if tok == AppendToken {
				return nil, common.NewPathError(common.KindIndexOutOfRange, "get", Pointer(p[:i+1]).String())
			}
			idx, ok := ParseIndex(tok)
			if !ok {
				return nil, common.NewPathError(common.KindPathType, "get", Pointer(p[:i+1]).String())
			}
			if idx < 0 || idx >= len(node) {
				return nil, common.NewPathError(common.KindIndexOutOfRange, "get", Pointer(p[:i+1]).String())
			}
			cur = node[idx]
		default:
			return nil, common.NewPathError(common.KindPathType, "get", Pointer(p[:i+1]).String())
		}
	}
	return cur, nil
}

// Has is Get but reports existence instead of an error.
func Has(value any, p Pointer) bool {
	_, err := Get(value, p)
	return err == nil
}
