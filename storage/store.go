// Package storage declares the persistence contract the OT and LWW
// pipelines consume (spec §6). The core never talks to a database
// directly; every pipeline function takes a Store and calls only these
// methods, so the same algorithms run against memory, Mongo, Badger, or
// any other adapter that satisfies the interface.
package storage

import (
	"context"

	"github.com/homveloper/syncdoc/common"
)

// ListChangesOptions filters and paginates ListChanges (spec §6).
type ListChangesOptions struct {
	// StartAfter, if non-nil, excludes changes with Rev <= *StartAfter.
	StartAfter *int64
	// EndBefore, if non-nil, excludes changes with Rev >= *EndBefore.
	EndBefore *int64
	// WithoutBatchID, if non-empty, excludes changes carrying this BatchID
	// (used by the idempotency filter to see "everything but this batch").
	WithoutBatchID string
	// Limit caps the number of changes returned; 0 means unlimited.
	Limit int
	// Reverse returns changes ordered by Rev descending instead of the
	// default ascending.
	Reverse bool
}

// ListVersionsOptions filters and paginates ListVersions (spec §6).
type ListVersionsOptions struct {
	GroupID    string
	Origin     common.VersionOrigin
	StartAfter *int64
	EndBefore  *int64
	Limit      int
	Reverse    bool
	// OrderBy selects the sort key: "endRev" (default) or "startedAt".
	OrderBy string
}

// VersionUpdate is a partial patch applied by UpdateVersion; zero fields
// are left untouched.
type VersionUpdate struct {
	EndedAt *int64
	EndRev  *int64
	Name    *string
}

// Store is the storage interface the OT pipeline (C7/C8/C11) consumes.
// Every method is atomic with respect to the document it addresses;
// SaveChanges in particular must persist its whole batch or none of it.
type Store interface {
	// ListChanges returns docId's committed changes ordered by Rev
	// ascending (or descending if opts.Reverse), per opts.
	ListChanges(ctx context.Context, docID string, opts ListChangesOptions) ([]common.Change, error)

	// SaveChanges persists changes atomically as a single batch.
	SaveChanges(ctx context.Context, docID string, changes []common.Change) error

	// ListVersions returns docId's version metadata, ordered by
	// opts.OrderBy (endRev by default), per opts.
	ListVersions(ctx context.Context, docID string, opts ListVersionsOptions) ([]common.VersionMetadata, error)

	// CreateVersion persists a new snapshot: its metadata, the folded
	// state at metadata.EndRev, and the changes that produced it.
	CreateVersion(ctx context.Context, docID string, metadata common.VersionMetadata, state any, changes []common.Change) error

	// AppendVersionChanges extends an existing version in place: the new
	// changes are folded onto it, and its EndedAt/EndRev/state advance.
	AppendVersionChanges(ctx context.Context, docID, versionID string, changes []common.Change, newEndedAt, newEndRev int64, newState any) error

	// UpdateVersion applies a partial metadata update to an existing
	// version.
	UpdateVersion(ctx context.Context, docID, versionID string, update VersionUpdate) error

	// LoadVersionState returns the folded state a version snapshot holds.
	LoadVersionState(ctx context.Context, docID, versionID string) (any, error)

	// LoadVersionChanges returns the changes a version was built from.
	LoadVersionChanges(ctx context.Context, docID, versionID string) ([]common.Change, error)

	// DeleteDoc removes a document's changes, versions, and state.
	DeleteDoc(ctx context.Context, docID string) error

	// CreateTombstone, GetTombstone, and RemoveTombstone manage the
	// deletion marker that rejects stale post-delete writes.
	CreateTombstone(ctx context.Context, t common.Tombstone) error
	GetTombstone(ctx context.Context, docID string) (*common.Tombstone, error)
	RemoveTombstone(ctx context.Context, docID string) error
}

// ListOpsOptions filters LWW's ListOps (spec §6 "LWW-only").
type ListOpsOptions struct {
	SinceRev *int64
	Paths    []string
}

// LWWStore is the storage interface the LWW pipeline (C9/C10) consumes,
// in addition to the Change/Version surface above where LWW also uses
// main-document versioning.
type LWWStore interface {
	Store

	// SaveOps persists a batch of already-consolidated field ops and
	// returns the highest Rev among them (0 for an empty batch); it does
	// not assign revisions itself.
	SaveOps(ctx context.Context, docID string, ops []common.FieldRecord) (int64, error)

	// ListOps returns field records, optionally since a revision and/or
	// restricted to a set of paths.
	ListOps(ctx context.Context, docID string, opts ListOpsOptions) ([]common.FieldRecord, error)

	// GetSnapshot and SaveSnapshot manage the folded LWW projection
	// cached alongside the raw field-record log.
	GetSnapshot(ctx context.Context, docID string) (any, int64, error)
	SaveSnapshot(ctx context.Context, docID string, state any, rev int64) error

	// CreateBranch, ListBranches, LoadBranch, UpdateBranch, and
	// CloseBranch implement the branching surface of spec §6.
	CreateBranch(ctx context.Context, b common.Branch) error
	ListBranches(ctx context.Context, sourceDocID string) ([]common.Branch, error)
	LoadBranch(ctx context.Context, branchID string) (*common.Branch, error)
	UpdateBranch(ctx context.Context, branchID string, status common.BranchStatus) error
	CloseBranch(ctx context.Context, branchID string) error
}
