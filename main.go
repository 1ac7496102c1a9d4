package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/ot"
	"github.com/homveloper/syncdoc/patch"
	"github.com/homveloper/syncdoc/storage"
	"github.com/homveloper/syncdoc/storage/memstore"
	"github.com/homveloper/syncdoc/transport/wsrpc"
	"github.com/homveloper/syncdoc/version"
)

// Editor is one simulated client of a document: it tracks the revision
// it last observed and drafts changes against it, the way a real client
// would before sending them to patchDoc.
type Editor struct {
	Name    string
	store   storage.Store
	docID   string
	baseRev int64
}

func (e *Editor) commit(ctx context.Context, ops patch.Patch) (ot.CommitResult, error) {
	change := common.Change{
		ID:        common.NewChangeID(),
		BaseRev:   e.baseRev,
		Ops:       ops,
		CreatedAt: time.Now().UnixMilli(),
	}
	result, err := ot.CommitChanges(ctx, e.store, e.docID, []common.Change{change}, ot.DefaultOptions())
	if err != nil {
		return result, err
	}
	if len(result.New) > 0 {
		e.baseRev = result.New[len(result.New)-1].Rev
	}
	return result, nil
}

func runDemo(ctx context.Context, log *zap.Logger) {
	store := memstore.New()
	docID := common.NewDocID()

	initial := common.Change{
		ID:        common.NewChangeID(),
		BaseRev:   0,
		CreatedAt: time.Now().UnixMilli(),
		Ops: patch.Patch{
			{Op: patch.Add, Path: "", Value: map[string]any{
				"title": "Untitled",
				"hp":    100.0,
			}},
		},
	}
	if _, err := ot.CommitChanges(ctx, store, docID, []common.Change{initial}, ot.DefaultOptions()); err != nil {
		log.Fatal("seed document", zap.Error(err))
	}

	alice := &Editor{Name: "alice", store: store, docID: docID, baseRev: 1}
	bob := &Editor{Name: "bob", store: store, docID: docID, baseRev: 1}

	// alice and bob both edit from revision 1 concurrently; bob's patchDoc
	// call rebases against alice's already-committed change (spec §4.7/§C6).
	if _, err := alice.commit(ctx, patch.Patch{
		{Op: patch.Replace, Path: "/title", Value: "Collaborative doc"},
	}); err != nil {
		log.Fatal("alice commit", zap.Error(err))
	}

	result, err := bob.commit(ctx, patch.Patch{
		{Op: patch.Inc, Path: "/hp", Value: -15.0},
	})
	if err != nil {
		log.Fatal("bob commit", zap.Error(err))
	}
	log.Info("bob committed", zap.Int("catchup", len(result.Catchup)), zap.Int("new", len(result.New)))

	state, rev, err := version.StateAtRevision(ctx, store, docID, nil)
	if err != nil {
		log.Fatal("fold state", zap.Error(err))
	}
	fmt.Printf("final state at rev %d: %+v\n", rev, state)
}

func main() {
	var listenAddr string
	flag.StringVar(&listenAddr, "listen", "", "if set, serve the websocket RPC surface on this address instead of running the demo")
	flag.Parse()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()

	if listenAddr == "" {
		runDemo(ctx, log)
		return
	}

	store := memstore.New()
	handler := wsrpc.NewHandler(ctx, wsrpc.Options{
		Store:         store,
		CommitOptions: ot.DefaultOptions(),
		Logger:        log,
	})

	mux := http.NewServeMux()
	mux.Handle("/rpc", handler)

	log.Info("listening", zap.String("addr", listenAddr))
	if err := http.ListenAndServe(listenAddr, mux); err != nil {
		log.Fatal("serve", zap.Error(err))
	}
}
