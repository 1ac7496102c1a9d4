package common

import "github.com/homveloper/syncdoc/patch"

// Change is one committed (or pending) unit of OT history (spec §3).
// BaseRev is the revision the client observed before drafting Ops; Rev is
// assigned by the server on commit. Id is client-generated and
// idempotency-stable: resubmitting it for an already-committed change
// must be a no-op that returns the existing commit.
type Change struct {
	ID          string     `json:"id"`
	BaseRev     int64      `json:"baseRev"`
	Rev         int64      `json:"rev,omitempty"`
	Ops         patch.Patch `json:"ops"`
	CreatedAt   int64      `json:"createdAt"`
	CommittedAt int64      `json:"committedAt,omitempty"`
	BatchID     string     `json:"batchId,omitempty"`
}

// Clone returns a shallow copy of c with its own Ops slice header (the Op
// values themselves are not deep-copied, matching patch.Patch.Clone).
func (c Change) Clone() Change {
	c.Ops = c.Ops.Clone()
	return c
}

// VersionOrigin distinguishes a version produced by normal fast-forward
// commits from one produced by a collapsed offline/divergent batch.
type VersionOrigin string

const (
	OriginMain           VersionOrigin = "main"
	OriginOfflineBranch  VersionOrigin = "offline-branch"
)

// VersionMetadata describes a snapshot checkpoint without its state or
// change payload (spec §3 Version, §6 listVersions).
type VersionMetadata struct {
	ID          string        `json:"id"`
	Origin      VersionOrigin `json:"origin"`
	StartRev    int64         `json:"startRev"`
	EndRev      int64         `json:"endRev"`
	StartedAt   int64         `json:"startedAt"`
	EndedAt     int64         `json:"endedAt"`
	GroupID     string        `json:"groupId,omitempty"`
	ParentID    string        `json:"parentId,omitempty"`
	IsOffline   bool          `json:"isOffline,omitempty"`
	Name        string        `json:"name,omitempty"`
}

// FieldRecord is one LWW field write (spec §3, §4.9): the persisted
// equivalent of a patch.Op, carrying the operator kind so a later
// incoming op at the same path can be folded onto it (an @inc onto a
// replace, an @max onto an @inc, and so on). The document's LWW
// projection is the fold of field records onto a nested value by path.
type FieldRecord struct {
	Path  string      `json:"path"`
	Op    patch.Kind  `json:"op"`
	Value any         `json:"value"`
	Ts    *float64    `json:"ts,omitempty"`
	Soft  bool        `json:"soft,omitempty"`
	Rev   int64       `json:"rev"`
}

// BranchStatus enumerates a Branch's lifecycle (spec §3).
type BranchStatus string

const (
	BranchOpen     BranchStatus = "open"
	BranchClosed   BranchStatus = "closed"
	BranchMerged   BranchStatus = "merged"
	BranchArchived BranchStatus = "archived"
)

// Branch is a document cloned from a source at a revision, independently
// editable and mergeable back (spec §3).
type Branch struct {
	ID            string       `json:"id"`
	SourceDocID   string       `json:"sourceDocId"`
	BranchedAtRev int64        `json:"branchedAtRev"`
	Status        BranchStatus `json:"status"`
	CreatedAt     int64        `json:"createdAt"`
	Name          string       `json:"name,omitempty"`
}

// Tombstone is retained after a document's deletion to reject stale
// writes (spec §3).
type Tombstone struct {
	DocID     string `json:"docId"`
	DeletedAt int64  `json:"deletedAt"`
	LastRev   int64  `json:"lastRev"`
}
