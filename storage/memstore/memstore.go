// Package memstore is an in-memory storage.LWWStore, useful for tests
// and single-process deployments.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/storage"
)

type docState struct {
	changes    []common.Change
	versions   []common.VersionMetadata
	states     map[string]any // versionID -> folded state
	versionOps map[string][]common.Change
	tombstone  *common.Tombstone

	fieldOps []common.FieldRecord
	snapshot any
	snapRev  int64
}

func newDocState() *docState {
	return &docState{
		states:     make(map[string]any),
		versionOps: make(map[string][]common.Change),
	}
}

// Store is an in-memory implementation of storage.LWWStore. A single
// RWMutex guards every document; fine for tests and small deployments,
// not for heavy concurrent write load.
type Store struct {
	mu       sync.RWMutex
	docs     map[string]*docState
	branches map[string]*common.Branch
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		docs:     make(map[string]*docState),
		branches: make(map[string]*common.Branch),
	}
}

func (s *Store) doc(docID string) *docState {
	d, ok := s.docs[docID]
	if !ok {
		d = newDocState()
		s.docs[docID] = d
	}
	return d
}

func (s *Store) ListChanges(ctx context.Context, docID string, opts storage.ListChangesOptions) ([]common.Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.doc(docID)

	out := make([]common.Change, 0, len(d.changes))
	for _, c := range d.changes {
		if opts.StartAfter != nil && c.Rev <= *opts.StartAfter {
			continue
		}
		if opts.EndBefore != nil && c.Rev >= *opts.EndBefore {
			continue
		}
		if opts.WithoutBatchID != "" && c.BatchID == opts.WithoutBatchID {
			continue
		}
		out = append(out, c.Clone())
	}
	if opts.Reverse {
		sort.Slice(out, func(i, j int) bool { return out[i].Rev > out[j].Rev })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].Rev < out[j].Rev })
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *Store) SaveChanges(ctx context.Context, docID string, changes []common.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.doc(docID)
	for _, c := range changes {
		d.changes = append(d.changes, c.Clone())
	}
	return nil
}

func (s *Store) ListVersions(ctx context.Context, docID string, opts storage.ListVersionsOptions) ([]common.VersionMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.doc(docID)

	out := make([]common.VersionMetadata, 0, len(d.versions))
	for _, v := range d.versions {
		if opts.GroupID != "" && v.GroupID != opts.GroupID {
			continue
		}
		if opts.Origin != "" && v.Origin != opts.Origin {
			continue
		}
		if opts.StartAfter != nil && v.EndRev <= *opts.StartAfter {
			continue
		}
		if opts.EndBefore != nil && v.EndRev >= *opts.EndBefore {
			continue
		}
		out = append(out, v)
	}
	orderBy := opts.OrderBy
	if orderBy == "" {
		orderBy = "endRev"
	}
	less := func(i, j int) bool { return out[i].EndRev < out[j].EndRev }
	if orderBy == "startedAt" {
		less = func(i, j int) bool { return out[i].StartedAt < out[j].StartedAt }
	}
	if opts.Reverse {
		base := less
		less = func(i, j int) bool { return base(j, i) }
	}
	sort.Slice(out, less)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *Store) CreateVersion(ctx context.Context, docID string, metadata common.VersionMetadata, state any, changes []common.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.doc(docID)
	d.versions = append(d.versions, metadata)
	d.states[metadata.ID] = state
	cloned := make([]common.Change, len(changes))
	for i, c := range changes {
		cloned[i] = c.Clone()
	}
	d.versionOps[metadata.ID] = cloned
	return nil
}

func (s *Store) AppendVersionChanges(ctx context.Context, docID, versionID string, changes []common.Change, newEndedAt, newEndRev int64, newState any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.doc(docID)
	for i := range d.versions {
		if d.versions[i].ID == versionID {
			d.versions[i].EndedAt = newEndedAt
			d.versions[i].EndRev = newEndRev
			break
		}
	}
	d.states[versionID] = newState
	for _, c := range changes {
		d.versionOps[versionID] = append(d.versionOps[versionID], c.Clone())
	}
	return nil
}

func (s *Store) UpdateVersion(ctx context.Context, docID, versionID string, update storage.VersionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.doc(docID)
	for i := range d.versions {
		if d.versions[i].ID != versionID {
			continue
		}
		if update.EndedAt != nil {
			d.versions[i].EndedAt = *update.EndedAt
		}
		if update.EndRev != nil {
			d.versions[i].EndRev = *update.EndRev
		}
		if update.Name != nil {
			d.versions[i].Name = *update.Name
		}
		return nil
	}
	return nil
}

func (s *Store) LoadVersionState(ctx context.Context, docID, versionID string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.doc(docID)
	return d.states[versionID], nil
}

func (s *Store) LoadVersionChanges(ctx context.Context, docID, versionID string) ([]common.Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.doc(docID)
	out := make([]common.Change, len(d.versionOps[versionID]))
	copy(out, d.versionOps[versionID])
	return out, nil
}

func (s *Store) DeleteDoc(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, docID)
	return nil
}

func (s *Store) CreateTombstone(ctx context.Context, t common.Tombstone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.doc(t.DocID)
	tc := t
	d.tombstone = &tc
	return nil
}

func (s *Store) GetTombstone(ctx context.Context, docID string) (*common.Tombstone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.doc(docID)
	if d.tombstone == nil {
		return nil, nil
	}
	tc := *d.tombstone
	return &tc, nil
}

func (s *Store) RemoveTombstone(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.doc(docID)
	d.tombstone = nil
	return nil
}

func (s *Store) SaveOps(ctx context.Context, docID string, ops []common.FieldRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.doc(docID)
	d.fieldOps = append(d.fieldOps, ops...)
	var maxRev int64
	for _, o := range ops {
		if o.Rev > maxRev {
			maxRev = o.Rev
		}
	}
	return maxRev, nil
}

func (s *Store) ListOps(ctx context.Context, docID string, opts storage.ListOpsOptions) ([]common.FieldRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.doc(docID)
	pathSet := map[string]bool{}
	for _, p := range opts.Paths {
		pathSet[p] = true
	}
	out := make([]common.FieldRecord, 0, len(d.fieldOps))
	for _, o := range d.fieldOps {
		if opts.SinceRev != nil && o.Rev <= *opts.SinceRev {
			continue
		}
		if len(pathSet) > 0 && !pathSet[o.Path] {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Store) GetSnapshot(ctx context.Context, docID string) (any, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := s.doc(docID)
	return d.snapshot, d.snapRev, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, docID string, state any, rev int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.doc(docID)
	d.snapshot = state
	d.snapRev = rev
	return nil
}

func (s *Store) CreateBranch(ctx context.Context, b common.Branch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bc := b
	s.branches[b.ID] = &bc
	return nil
}

func (s *Store) ListBranches(ctx context.Context, sourceDocID string) ([]common.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Branch, 0)
	for _, b := range s.branches {
		if b.SourceDocID == sourceDocID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (s *Store) LoadBranch(ctx context.Context, branchID string) (*common.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.branches[branchID]
	if !ok {
		return nil, nil
	}
	bc := *b
	return &bc, nil
}

func (s *Store) UpdateBranch(ctx context.Context, branchID string, status common.BranchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.branches[branchID]; ok {
		b.Status = status
	}
	return nil
}

func (s *Store) CloseBranch(ctx context.Context, branchID string) error {
	return s.UpdateBranch(ctx, branchID, common.BranchClosed)
}
