// Package badgerstore implements storage.LWWStore against an embedded
// BadgerDB, for single-process deployments that want durability without a
// separate database server. It is grounded on nodestorage/v2/cache's
// BadgerCache: open with badger.DefaultOptions, a silenced logger, and a
// background value-log GC loop (runGC below mirrors cache.runBadgerGC).
// Where BadgerCache marshals with bson (it mirrors a Mongo document
// one-for-one), Store marshals with encoding/json, since Badger here holds
// our own record types directly and those already carry json tags.
package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/storage"
)

// Options configures Store's GC cadence and diagnostics.
type Options struct {
	// GCInterval is how often the background value-log GC runs; 0 uses a
	// 5-minute default, matching the teacher's cadence.
	GCInterval time.Duration

	// Logger receives structured diagnostics; nil uses zap.NewNop().
	Logger *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o Options) gcInterval() time.Duration {
	if o.GCInterval <= 0 {
		return 5 * time.Minute
	}
	return o.GCInterval
}

// Store is a storage.LWWStore backed by an embedded *badger.DB. Each
// record type lives under its own key prefix; listing operations scan the
// prefix and filter/sort in memory the same way memstore does over its
// slices, since Badger itself offers only ordered key iteration, not
// secondary indexes.
type Store struct {
	db     *badger.DB
	opts   Options
	stopGC chan struct{}
}

// Open creates or opens a BadgerDB at dir and wraps it as a Store.
func Open(dir string, opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(dir)
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}

	s := &Store{db: db, opts: opts, stopGC: make(chan struct{})}
	go s.runGC()
	return s, nil
}

// Close stops the GC loop and closes the underlying database.
func (s *Store) Close() error {
	close(s.stopGC)
	return s.db.Close()
}

func (s *Store) runGC() {
	ticker := time.NewTicker(s.opts.gcInterval())
	defer ticker.Stop()
	log := s.opts.logger()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
		again:
			if err := s.db.RunValueLogGC(0.5); err == nil {
				goto again
			} else if err != badger.ErrNoRewrite {
				log.Warn("badgerstore: value log gc failed", zap.Error(err))
			}
		}
	}
}

func changeKey(docID, id string) []byte  { return []byte("chg/" + docID + "/" + id) }
func changePrefix(docID string) []byte   { return []byte("chg/" + docID + "/") }
func versionKey(docID, id string) []byte { return []byte("ver/" + docID + "/" + id) }
func versionPrefix(docID string) []byte  { return []byte("ver/" + docID + "/") }
func fieldOpKey(docID, id string) []byte { return []byte("fop/" + docID + "/" + id) }
func fieldOpPrefix(docID string) []byte  { return []byte("fop/" + docID + "/") }
func snapshotKey(docID string) []byte    { return []byte("snap/" + docID) }
func branchKey(id string) []byte         { return []byte("branch/" + id) }
func branchPrefix() []byte               { return []byte("branch/") }
func tombstoneKey(docID string) []byte   { return []byte("tomb/" + docID) }

func put(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func get[T any](txn *badger.Txn, key []byte) (T, bool, error) {
	var out T
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	err = item.Value(func(val []byte) error { return json.Unmarshal(val, &out) })
	return out, err == nil, err
}

func scan[T any](txn *badger.Txn, prefix []byte) ([]T, error) {
	var out []T
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var v T
		if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &v) }); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) ListChanges(ctx context.Context, docID string, opts storage.ListChangesOptions) ([]common.Change, error) {
	var out []common.Change
	err := s.db.View(func(txn *badger.Txn) error {
		all, err := scan[common.Change](txn, changePrefix(docID))
		if err != nil {
			return err
		}
		for _, c := range all {
			if opts.StartAfter != nil && c.Rev <= *opts.StartAfter {
				continue
			}
			if opts.EndBefore != nil && c.Rev >= *opts.EndBefore {
				continue
			}
			if opts.WithoutBatchID != "" && c.BatchID == opts.WithoutBatchID {
				continue
			}
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: list changes: %w", err)
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
	if len(changes) == 0 {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, c := range changes {
			if err := put(txn, changeKey(docID, c.ID), c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badgerstore: save changes: %w", err)
	}
	return nil
}

type versionRecord struct {
	Metadata common.VersionMetadata `json:"metadata"`
	State    any                    `json:"state"`
	Changes  []common.Change        `json:"changes"`
}

func (s *Store) ListVersions(ctx context.Context, docID string, opts storage.ListVersionsOptions) ([]common.VersionMetadata, error) {
	var out []common.VersionMetadata
	err := s.db.View(func(txn *badger.Txn) error {
		all, err := scan[versionRecord](txn, versionPrefix(docID))
		if err != nil {
			return err
		}
		for _, v := range all {
			if opts.GroupID != "" && v.Metadata.GroupID != opts.GroupID {
				continue
			}
			if opts.Origin != "" && v.Metadata.Origin != opts.Origin {
				continue
			}
			if opts.StartAfter != nil && v.Metadata.EndRev <= *opts.StartAfter {
				continue
			}
			if opts.EndBefore != nil && v.Metadata.EndRev >= *opts.EndBefore {
				continue
			}
			out = append(out, v.Metadata)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: list versions: %w", err)
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
	rec := versionRecord{Metadata: metadata, State: state, Changes: changes}
	err := s.db.Update(func(txn *badger.Txn) error {
		return put(txn, versionKey(docID, metadata.ID), rec)
	})
	if err != nil {
		return fmt.Errorf("badgerstore: create version: %w", err)
	}
	return nil
}

func (s *Store) AppendVersionChanges(ctx context.Context, docID, versionID string, changes []common.Change, newEndedAt, newEndRev int64, newState any) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, ok, err := get[versionRecord](txn, versionKey(docID, versionID))
		if err != nil {
			return err
		}
		if !ok {
			rec = versionRecord{Metadata: common.VersionMetadata{ID: versionID}}
		}
		rec.Metadata.EndedAt = newEndedAt
		rec.Metadata.EndRev = newEndRev
		rec.State = newState
		rec.Changes = append(rec.Changes, changes...)
		return put(txn, versionKey(docID, versionID), rec)
	})
	if err != nil {
		return fmt.Errorf("badgerstore: append version changes: %w", err)
	}
	return nil
}

func (s *Store) UpdateVersion(ctx context.Context, docID, versionID string, update storage.VersionUpdate) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, ok, err := get[versionRecord](txn, versionKey(docID, versionID))
		if err != nil || !ok {
			return err
		}
		if update.EndedAt != nil {
			rec.Metadata.EndedAt = *update.EndedAt
		}
		if update.EndRev != nil {
			rec.Metadata.EndRev = *update.EndRev
		}
		if update.Name != nil {
			rec.Metadata.Name = *update.Name
		}
		return put(txn, versionKey(docID, versionID), rec)
	})
	if err != nil {
		return fmt.Errorf("badgerstore: update version: %w", err)
	}
	return nil
}

func (s *Store) LoadVersionState(ctx context.Context, docID, versionID string) (any, error) {
	var state any
	err := s.db.View(func(txn *badger.Txn) error {
		rec, ok, err := get[versionRecord](txn, versionKey(docID, versionID))
		if err != nil || !ok {
			return err
		}
		state = rec.State
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: load version state: %w", err)
	}
	return state, nil
}

func (s *Store) LoadVersionChanges(ctx context.Context, docID, versionID string) ([]common.Change, error) {
	var changes []common.Change
	err := s.db.View(func(txn *badger.Txn) error {
		rec, ok, err := get[versionRecord](txn, versionKey(docID, versionID))
		if err != nil || !ok {
			return err
		}
		changes = rec.Changes
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: load version changes: %w", err)
	}
	return changes, nil
}

func (s *Store) DeleteDoc(ctx context.Context, docID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, prefix := range [][]byte{changePrefix(docID), versionPrefix(docID), fieldOpPrefix(docID)} {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			var keys [][]byte
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			it.Close()
			for _, k := range keys {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
		}
		if err := txn.Delete(snapshotKey(docID)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badgerstore: delete doc: %w", err)
	}
	return nil
}

func (s *Store) CreateTombstone(ctx context.Context, t common.Tombstone) error {
	err := s.db.Update(func(txn *badger.Txn) error { return put(txn, tombstoneKey(t.DocID), t) })
	if err != nil {
		return fmt.Errorf("badgerstore: create tombstone: %w", err)
	}
	return nil
}

func (s *Store) GetTombstone(ctx context.Context, docID string) (*common.Tombstone, error) {
	var out *common.Tombstone
	err := s.db.View(func(txn *badger.Txn) error {
		t, ok, err := get[common.Tombstone](txn, tombstoneKey(docID))
		if err != nil || !ok {
			return err
		}
		out = &t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: get tombstone: %w", err)
	}
	return out, nil
}

func (s *Store) RemoveTombstone(ctx context.Context, docID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(tombstoneKey(docID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("badgerstore: remove tombstone: %w", err)
	}
	return nil
}

func (s *Store) SaveOps(ctx context.Context, docID string, ops []common.FieldRecord) (int64, error) {
	if len(ops) == 0 {
		return 0, nil
	}
	var maxRev int64
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, o := range ops {
			if err := put(txn, fieldOpKey(docID, uuid.NewString()), o); err != nil {
				return err
			}
			if o.Rev > maxRev {
				maxRev = o.Rev
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badgerstore: save ops: %w", err)
	}
	return maxRev, nil
}

func (s *Store) ListOps(ctx context.Context, docID string, opts storage.ListOpsOptions) ([]common.FieldRecord, error) {
	pathSet := map[string]bool{}
	for _, p := range opts.Paths {
		pathSet[p] = true
	}

	var out []common.FieldRecord
	err := s.db.View(func(txn *badger.Txn) error {
		all, err := scan[common.FieldRecord](txn, fieldOpPrefix(docID))
		if err != nil {
			return err
		}
		for _, o := range all {
			if opts.SinceRev != nil && o.Rev <= *opts.SinceRev {
				continue
			}
			if len(pathSet) > 0 && !pathSet[o.Path] {
				continue
			}
			out = append(out, o)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: list ops: %w", err)
	}
	return out, nil
}

type snapshotRecord struct {
	State any   `json:"state"`
	Rev   int64 `json:"rev"`
}

func (s *Store) GetSnapshot(ctx context.Context, docID string) (any, int64, error) {
	var rec snapshotRecord
	err := s.db.View(func(txn *badger.Txn) error {
		r, ok, err := get[snapshotRecord](txn, snapshotKey(docID))
		if err != nil || !ok {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("badgerstore: get snapshot: %w", err)
	}
	return rec.State, rec.Rev, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, docID string, state any, rev int64) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return put(txn, snapshotKey(docID), snapshotRecord{State: state, Rev: rev})
	})
	if err != nil {
		return fmt.Errorf("badgerstore: save snapshot: %w", err)
	}
	return nil
}

func (s *Store) CreateBranch(ctx context.Context, b common.Branch) error {
	err := s.db.Update(func(txn *badger.Txn) error { return put(txn, branchKey(b.ID), b) })
	if err != nil {
		return fmt.Errorf("badgerstore: create branch: %w", err)
	}
	return nil
}

func (s *Store) ListBranches(ctx context.Context, sourceDocID string) ([]common.Branch, error) {
	var out []common.Branch
	err := s.db.View(func(txn *badger.Txn) error {
		all, err := scan[common.Branch](txn, branchPrefix())
		if err != nil {
			return err
		}
		for _, b := range all {
			if b.SourceDocID == sourceDocID {
				out = append(out, b)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: list branches: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (s *Store) LoadBranch(ctx context.Context, branchID string) (*common.Branch, error) {
	var out *common.Branch
	err := s.db.View(func(txn *badger.Txn) error {
		b, ok, err := get[common.Branch](txn, branchKey(branchID))
		if err != nil || !ok {
			return err
		}
		out = &b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: load branch: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateBranch(ctx context.Context, branchID string, status common.BranchStatus) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		b, ok, err := get[common.Branch](txn, branchKey(branchID))
		if err != nil || !ok {
			return err
		}
		b.Status = status
		return put(txn, branchKey(branchID), b)
	})
	if err != nil {
		return fmt.Errorf("badgerstore: update branch: %w", err)
	}
	return nil
}

func (s *Store) CloseBranch(ctx context.Context, branchID string) error {
	return s.UpdateBranch(ctx, branchID, common.BranchClosed)
}

var _ storage.LWWStore = (*Store)(nil)
