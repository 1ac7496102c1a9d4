// Package mongostore implements storage.LWWStore against MongoDB. It is
// grounded on nodestorage/v2's collection-CRUD idiom (FindOne/decode
// straight into a typed struct, mongo.ErrNoDocuments
// translated to a nil result, errors wrapped with fmt.Errorf("%w")) but
// drops that package's generic Cachable[T]/watch-stream/hot-cache
// machinery: our Store interface is a flat set of methods over a handful
// of named collections, not a single generic document store.
package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/storage"
)

// Options configures the Store's collection names and diagnostics.
type Options struct {
	// ChangesCollection, VersionsCollection, FieldOpsCollection,
	// SnapshotsCollection, BranchesCollection, and TombstonesCollection
	// name the collections Store uses within the given database. Empty
	// values fall back to the defaults below.
	ChangesCollection     string
	VersionsCollection    string
	FieldOpsCollection    string
	SnapshotsCollection   string
	BranchesCollection    string
	TombstonesCollection  string

	// Logger receives structured diagnostics; nil uses zap.NewNop().
	Logger *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o Options) withDefaults() Options {
	if o.ChangesCollection == "" {
		o.ChangesCollection = "syncdoc_changes"
	}
	if o.VersionsCollection == "" {
		o.VersionsCollection = "syncdoc_versions"
	}
	if o.FieldOpsCollection == "" {
		o.FieldOpsCollection = "syncdoc_fieldops"
	}
	if o.SnapshotsCollection == "" {
		o.SnapshotsCollection = "syncdoc_snapshots"
	}
	if o.BranchesCollection == "" {
		o.BranchesCollection = "syncdoc_branches"
	}
	if o.TombstonesCollection == "" {
		o.TombstonesCollection = "syncdoc_tombstones"
	}
	return o
}

// Store is a storage.LWWStore backed by a MongoDB database. Every document
// addressed by docID maps to a handful of rows scattered across the
// collections below rather than a single per-document row, since changes,
// field ops, and versions each grow unboundedly over a document's life.
type Store struct {
	db   *mongo.Database
	opts Options

	changes    *mongo.Collection
	versions   *mongo.Collection
	fieldOps   *mongo.Collection
	snapshots  *mongo.Collection
	branches   *mongo.Collection
	tombstones *mongo.Collection
}

// New wraps db's collections as a storage.LWWStore.
func New(db *mongo.Database, opts Options) *Store {
	opts = opts.withDefaults()
	return &Store{
		db:         db,
		opts:       opts,
		changes:    db.Collection(opts.ChangesCollection),
		versions:   db.Collection(opts.VersionsCollection),
		fieldOps:   db.Collection(opts.FieldOpsCollection),
		snapshots:  db.Collection(opts.SnapshotsCollection),
		branches:   db.Collection(opts.BranchesCollection),
		tombstones: db.Collection(opts.TombstonesCollection),
	}
}

// EnsureIndexes creates the indexes Store's queries rely on. Safe to call
// repeatedly; index creation is idempotent on the server.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	models := map[*mongo.Collection][]mongo.IndexModel{
		s.changes: {
			{Keys: bson.D{{Key: "docId", Value: 1}, {Key: "rev", Value: 1}}},
			{Keys: bson.D{{Key: "docId", Value: 1}, {Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		s.versions: {
			{Keys: bson.D{{Key: "docId", Value: 1}, {Key: "metadata.endRev", Value: 1}}},
		},
		s.fieldOps: {
			{Keys: bson.D{{Key: "docId", Value: 1}, {Key: "rev", Value: 1}}},
			{Keys: bson.D{{Key: "docId", Value: 1}, {Key: "path", Value: 1}}},
		},
		s.branches: {
			{Keys: bson.D{{Key: "sourceDocId", Value: 1}}},
		},
	}
	for coll, idx := range models {
		if _, err := coll.Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("mongostore: create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

type changeDoc struct {
	ID     string       `bson:"_id"`
	DocID  string       `bson:"docId"`
	Change common.Change `bson:"change"`
}

func changeDocID(docID string, c common.Change) string {
	return docID + "/" + c.ID
}

func (s *Store) ListChanges(ctx context.Context, docID string, opts storage.ListChangesOptions) ([]common.Change, error) {
	filter := bson.M{"docId": docID}
	revFilter := bson.M{}
	if opts.StartAfter != nil {
		revFilter["$gt"] = *opts.StartAfter
	}
	if opts.EndBefore != nil {
		revFilter["$lt"] = *opts.EndBefore
	}
	if len(revFilter) > 0 {
		filter["change.rev"] = revFilter
	}
	if opts.WithoutBatchID != "" {
		filter["change.batchId"] = bson.M{"$ne": opts.WithoutBatchID}
	}

	findOpts := options.Find()
	order := 1
	if opts.Reverse {
		order = -1
	}
	findOpts.SetSort(bson.D{{Key: "change.rev", Value: order}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cur, err := s.changes.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: list changes: %w", err)
	}
	defer cur.Close(ctx)

	var out []common.Change
	for cur.Next(ctx) {
		var doc changeDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongostore: decode change: %w", err)
		}
		out = append(out, doc.Change)
	}
	return out, cur.Err()
}

func (s *Store) SaveChanges(ctx context.Context, docID string, changes []common.Change) error {
	if len(changes) == 0 {
		return nil
	}
	docs := make([]interface{}, len(changes))
	for i, c := range changes {
		docs[i] = changeDoc{ID: changeDocID(docID, c), DocID: docID, Change: c}
	}
	if _, err := s.changes.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("mongostore: save changes: %w", err)
	}
	return nil
}

type versionDoc struct {
	ID       string                   `bson:"_id"`
	DocID    string                   `bson:"docId"`
	Metadata common.VersionMetadata   `bson:"metadata"`
	State    any                      `bson:"state"`
	Changes  []common.Change          `bson:"changes"`
}

func (s *Store) ListVersions(ctx context.Context, docID string, opts storage.ListVersionsOptions) ([]common.VersionMetadata, error) {
	filter := bson.M{"docId": docID}
	if opts.GroupID != "" {
		filter["metadata.groupId"] = opts.GroupID
	}
	if opts.Origin != "" {
		filter["metadata.origin"] = opts.Origin
	}

	sortKey := "metadata.endRev"
	if opts.OrderBy == "startedAt" {
		sortKey = "metadata.startedAt"
	}
	boundField := "metadata.endRev"
	revFilter := bson.M{}
	if opts.StartAfter != nil {
		revFilter["$gt"] = *opts.StartAfter
	}
	if opts.EndBefore != nil {
		revFilter["$lt"] = *opts.EndBefore
	}
	if len(revFilter) > 0 {
		filter[boundField] = revFilter
	}

	order := 1
	if opts.Reverse {
		order = -1
	}
	findOpts := options.Find().SetSort(bson.D{{Key: sortKey, Value: order}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cur, err := s.versions.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: list versions: %w", err)
	}
	defer cur.Close(ctx)

	var out []common.VersionMetadata
	for cur.Next(ctx) {
		var doc versionDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongostore: decode version: %w", err)
		}
		out = append(out, doc.Metadata)
	}
	return out, cur.Err()
}

func (s *Store) CreateVersion(ctx context.Context, docID string, metadata common.VersionMetadata, state any, changes []common.Change) error {
	doc := versionDoc{ID: docID + "/" + metadata.ID, DocID: docID, Metadata: metadata, State: state, Changes: changes}
	if _, err := s.versions.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongostore: create version: %w", err)
	}
	return nil
}

func (s *Store) AppendVersionChanges(ctx context.Context, docID, versionID string, changes []common.Change, newEndedAt, newEndRev int64, newState any) error {
	update := bson.M{
		"$set": bson.M{
			"metadata.endedAt": newEndedAt,
			"metadata.endRev":  newEndRev,
			"state":            newState,
		},
		"$push": bson.M{"changes": bson.M{"$each": changes}},
	}
	_, err := s.versions.UpdateOne(ctx, bson.M{"_id": docID + "/" + versionID}, update)
	if err != nil {
		return fmt.Errorf("mongostore: append version changes: %w", err)
	}
	return nil
}

func (s *Store) UpdateVersion(ctx context.Context, docID, versionID string, update storage.VersionUpdate) error {
	set := bson.M{}
	if update.EndedAt != nil {
		set["metadata.endedAt"] = *update.EndedAt
	}
	if update.EndRev != nil {
		set["metadata.endRev"] = *update.EndRev
	}
	if update.Name != nil {
		set["metadata.name"] = *update.Name
	}
	if len(set) == 0 {
		return nil
	}
	_, err := s.versions.UpdateOne(ctx, bson.M{"_id": docID + "/" + versionID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("mongostore: update version: %w", err)
	}
	return nil
}

func (s *Store) LoadVersionState(ctx context.Context, docID, versionID string) (any, error) {
	var doc versionDoc
	err := s.versions.FindOne(ctx, bson.M{"_id": docID + "/" + versionID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: load version state: %w", err)
	}
	return doc.State, nil
}

func (s *Store) LoadVersionChanges(ctx context.Context, docID, versionID string) ([]common.Change, error) {
	var doc versionDoc
	err := s.versions.FindOne(ctx, bson.M{"_id": docID + "/" + versionID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: load version changes: %w", err)
	}
	return doc.Changes, nil
}

func (s *Store) DeleteDoc(ctx context.Context, docID string) error {
	filter := bson.M{"docId": docID}
	if _, err := s.changes.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("mongostore: delete changes: %w", err)
	}
	if _, err := s.versions.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("mongostore: delete versions: %w", err)
	}
	if _, err := s.fieldOps.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("mongostore: delete field ops: %w", err)
	}
	if _, err := s.snapshots.DeleteOne(ctx, bson.M{"_id": docID}); err != nil && err != mongo.ErrNoDocuments {
		return fmt.Errorf("mongostore: delete snapshot: %w", err)
	}
	return nil
}

func (s *Store) CreateTombstone(ctx context.Context, t common.Tombstone) error {
	_, err := s.tombstones.ReplaceOne(ctx, bson.M{"_id": t.DocID}, bson.M{"_id": t.DocID, "tombstone": t}, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongostore: create tombstone: %w", err)
	}
	return nil
}

func (s *Store) GetTombstone(ctx context.Context, docID string) (*common.Tombstone, error) {
	var doc struct {
		Tombstone common.Tombstone `bson:"tombstone"`
	}
	err := s.tombstones.FindOne(ctx, bson.M{"_id": docID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get tombstone: %w", err)
	}
	return &doc.Tombstone, nil
}

func (s *Store) RemoveTombstone(ctx context.Context, docID string) error {
	_, err := s.tombstones.DeleteOne(ctx, bson.M{"_id": docID})
	if err != nil && err != mongo.ErrNoDocuments {
		return fmt.Errorf("mongostore: remove tombstone: %w", err)
	}
	return nil
}

type fieldOpDoc struct {
	ID     string             `bson:"_id"`
	DocID  string             `bson:"docId"`
	Path   string             `bson:"path"`
	Record common.FieldRecord `bson:"record"`
}

func (s *Store) SaveOps(ctx context.Context, docID string, ops []common.FieldRecord) (int64, error) {
	if len(ops) == 0 {
		return 0, nil
	}
	docs := make([]interface{}, len(ops))
	var maxRev int64
	for i, o := range ops {
		docs[i] = fieldOpDoc{ID: bson.NewObjectID().Hex(), DocID: docID, Path: o.Path, Record: o}
		if o.Rev > maxRev {
			maxRev = o.Rev
		}
	}
	if _, err := s.fieldOps.InsertMany(ctx, docs); err != nil {
		return 0, fmt.Errorf("mongostore: save ops: %w", err)
	}
	return maxRev, nil
}

func (s *Store) ListOps(ctx context.Context, docID string, opts storage.ListOpsOptions) ([]common.FieldRecord, error) {
	filter := bson.M{"docId": docID}
	if opts.SinceRev != nil {
		filter["record.rev"] = bson.M{"$gt": *opts.SinceRev}
	}
	if len(opts.Paths) > 0 {
		filter["path"] = bson.M{"$in": opts.Paths}
	}

	cur, err := s.fieldOps.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongostore: list ops: %w", err)
	}
	defer cur.Close(ctx)

	var out []common.FieldRecord
	for cur.Next(ctx) {
		var doc fieldOpDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongostore: decode field op: %w", err)
		}
		out = append(out, doc.Record)
	}
	return out, cur.Err()
}

type snapshotDoc struct {
	ID    string `bson:"_id"`
	State any    `bson:"state"`
	Rev   int64  `bson:"rev"`
}

func (s *Store) GetSnapshot(ctx context.Context, docID string) (any, int64, error) {
	var doc snapshotDoc
	err := s.snapshots.FindOne(ctx, bson.M{"_id": docID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("mongostore: get snapshot: %w", err)
	}
	return doc.State, doc.Rev, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, docID string, state any, rev int64) error {
	doc := snapshotDoc{ID: docID, State: state, Rev: rev}
	_, err := s.snapshots.ReplaceOne(ctx, bson.M{"_id": docID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongostore: save snapshot: %w", err)
	}
	return nil
}

type branchDoc struct {
	ID     string        `bson:"_id"`
	Branch common.Branch `bson:"branch"`
}

func (s *Store) CreateBranch(ctx context.Context, b common.Branch) error {
	if _, err := s.branches.InsertOne(ctx, branchDoc{ID: b.ID, Branch: b}); err != nil {
		return fmt.Errorf("mongostore: create branch: %w", err)
	}
	return nil
}

func (s *Store) ListBranches(ctx context.Context, sourceDocID string) ([]common.Branch, error) {
	cur, err := s.branches.Find(ctx, bson.M{"branch.sourceDocId": sourceDocID}, options.Find().SetSort(bson.D{{Key: "branch.createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: list branches: %w", err)
	}
	defer cur.Close(ctx)

	var out []common.Branch
	for cur.Next(ctx) {
		var doc branchDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongostore: decode branch: %w", err)
		}
		out = append(out, doc.Branch)
	}
	return out, cur.Err()
}

func (s *Store) LoadBranch(ctx context.Context, branchID string) (*common.Branch, error) {
	var doc branchDoc
	err := s.branches.FindOne(ctx, bson.M{"_id": branchID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: load branch: %w", err)
	}
	return &doc.Branch, nil
}

func (s *Store) UpdateBranch(ctx context.Context, branchID string, status common.BranchStatus) error {
	_, err := s.branches.UpdateOne(ctx, bson.M{"_id": branchID}, bson.M{"$set": bson.M{"branch.status": status}})
	if err != nil {
		return fmt.Errorf("mongostore: update branch: %w", err)
	}
	return nil
}

func (s *Store) CloseBranch(ctx context.Context, branchID string) error {
	return s.UpdateBranch(ctx, branchID, common.BranchClosed)
}

var _ storage.LWWStore = (*Store)(nil)
