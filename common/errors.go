// Package common holds identifiers, error kinds, and small types shared
// across the syncdoc packages (pointer, patch, transform, rebase, ot, lww,
// version, storage).
package common

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Pipelines compare with errors.Is; detail-carrying
// variants below additionally expose the offending path/revision.
var (
	// ErrUnknownOp is returned when an operator kind has no registry entry.
	ErrUnknownOp = errors.New("syncdoc: unknown operator")

	// ErrGap is returned when a client receives a non-contiguous server
	// change stream; the caller must call getChangesSince(snapshot.rev).
	ErrGap = errors.New("syncdoc: non-contiguous change stream")

	// ErrBehindClient is returned when a client's baseRev exceeds the
	// server's currentRev.
	ErrBehindClient = errors.New("syncdoc: client baseRev exceeds currentRev")

	// ErrExistingDoc is returned when a root-replace is attempted on a
	// live document from a baseRev==0 client.
	ErrExistingDoc = errors.New("syncdoc: root replace on existing document")

	// ErrInconsistentBatch is returned when a commit batch mixes baseRevs
	// outside of historical import.
	ErrInconsistentBatch = errors.New("syncdoc: inconsistent baseRev within batch")

	// ErrBranchOfBranch is returned when branching from a branch document.
	ErrBranchOfBranch = errors.New("syncdoc: cannot branch a branch")

	// ErrBranchNotOpen is returned when merging a non-open branch.
	ErrBranchNotOpen = errors.New("syncdoc: branch is not open")

	// ErrDocDeleted is returned when writing to a tombstoned document.
	ErrDocDeleted = errors.New("syncdoc: document has been deleted")
)

// PathError reports a traversal failure against a specific JSON Pointer.
// Kind is one of the PathNotFound/PathType/IndexOutOfRange families from
// spec §7; it is compared with errors.Is against the package-level
// ErrPathNotFound/ErrPathType/ErrIndexOutOfRange sentinels.
type PathError struct {
	Kind PathErrorKind
	Op   string // operator name, e.g. "add", "@inc"
	Path string
}

// PathErrorKind enumerates the §7 path-traversal failure kinds.
type PathErrorKind int

const (
	// KindPathNotFound marks a traversal failure at a non-terminal token
	// in strict mode.
	KindPathNotFound PathErrorKind = iota
	// KindPathType marks a non-traversable parent (scalar where a
	// container was expected).
	KindPathType
	// KindIndexOutOfRange marks a sequence index beyond its length.
	KindIndexOutOfRange
)

func (e *PathError) Error() string {
	var kind string
	switch e.Kind {
	case KindPathNotFound:
		kind = "path not found"
	case KindPathType:
		kind = "non-traversable parent"
	case KindIndexOutOfRange:
		kind = "index out of range"
	default:
		kind = "path error"
	}
	return fmt.Sprintf("syncdoc: %s op=%s path=%q", kind, e.Op, e.Path)
}

// Is reports whether target is the sentinel matching e.Kind, so callers
// can do errors.Is(err, common.ErrPathNotFound) without a type switch.
func (e *PathError) Is(target error) bool {
	switch e.Kind {
	case KindPathNotFound:
		return target == ErrPathNotFound
	case KindPathType:
		return target == ErrPathType
	case KindIndexOutOfRange:
		return target == ErrIndexOutOfRange
	}
	return false
}

// The three PathError sentinels, matched via PathError.Is.
var (
	ErrPathNotFound    = errors.New("syncdoc: path not found")
	ErrPathType        = errors.New("syncdoc: non-traversable parent")
	ErrIndexOutOfRange = errors.New("syncdoc: index out of range")
)

// NewPathError builds a *PathError for op at path of the given kind.
func NewPathError(kind PathErrorKind, op, path string) *PathError {
	return &PathError{Kind: kind, Op: op, Path: path}
}

// RevisionError carries the detail for ErrBehindClient / ErrGap failures:
// the revision the client claimed versus what the server actually has.
type RevisionError struct {
	Base    error
	BaseRev int64
	Current int64
}

func (e *RevisionError) Error() string {
	return fmt.Sprintf("%s: baseRev=%d currentRev=%d", e.Base, e.BaseRev, e.Current)
}

func (e *RevisionError) Unwrap() error { return e.Base }

// NewBehindClientError reports that baseRev exceeds currentRev.
func NewBehindClientError(baseRev, current int64) *RevisionError {
	return &RevisionError{Base: ErrBehindClient, BaseRev: baseRev, Current: current}
}

// NewGapError reports a non-contiguous change stream starting at firstRev
// when the client's snapshot was at snapshotRev.
func NewGapError(snapshotRev, firstRev int64) *RevisionError {
	return &RevisionError{Base: ErrGap, BaseRev: snapshotRev, Current: firstRev}
}
