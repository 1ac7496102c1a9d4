// Package wsrpc frames the client RPC surface (spec §6: subscribe,
// unsubscribe, getDoc, getChangesSince, patchDoc, deleteDoc) as
// JSON-RPC-ish request/response messages over a websocket connection,
// with unsolicited push frames for doc-update notifications. It is
// grounded on eventsync/websocket_client.go: a typed envelope struct,
// a mutex-guarded write side, and a read loop goroutine that dispatches
// by a string Type/Method field, wired here to the syncdoc engine
// instead of eventsync's vector-clock sync service.
package wsrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/homveloper/syncdoc/common"
	"github.com/homveloper/syncdoc/ot"
	"github.com/homveloper/syncdoc/storage"
	"github.com/homveloper/syncdoc/version"
)

// Request is a client-issued RPC call.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers a Request by the same ID. Exactly one of Result/Error
// is set.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Push is an unsolicited server-to-client frame, currently only
// "doc-update" (spec §6 "Push notifications").
type Push struct {
	Type    string          `json:"type"`
	DocID   string          `json:"docId"`
	Changes []common.Change `json:"changes"`
}

type getDocParams struct {
	DocID string `json:"docId"`
}

type getDocResult struct {
	State any   `json:"state"`
	Rev   int64 `json:"rev"`
}

type getChangesSinceParams struct {
	DocID string `json:"docId"`
	Rev   int64  `json:"rev"`
}

type patchDocParams struct {
	DocID   string          `json:"docId"`
	Changes []common.Change `json:"changes"`
}

type patchDocResult struct {
	Catchup []common.Change `json:"catchup"`
	New     []common.Change `json:"new"`
}

type subscribeParams struct {
	DocIDs []string `json:"docIds"`
}

type deleteDocParams struct {
	DocID string `json:"docId"`
}

// Options configures a Handler's engine wiring and diagnostics.
type Options struct {
	// Store backs getDoc/getChangesSince/patchDoc/deleteDoc.
	Store storage.Store

	// Bus, if non-nil, is subscribed so every committed patchDoc result
	// is announced to other connections via Publish, and every
	// connection's active subscriptions receive Push frames for docs
	// other nodes committed to.
	Bus storage.EventBus

	// CommitOptions configures ot.CommitChanges; the zero value uses
	// ot.DefaultOptions().
	CommitOptions ot.Options

	// Logger receives structured diagnostics; nil uses zap.NewNop().
	Logger *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Handler upgrades HTTP connections to websocket RPC connections.
type Handler struct {
	opts     Options
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[*Conn]struct{}
}

// NewHandler builds a Handler over opts. If opts.Bus is set, NewHandler
// starts a background subscription that fans server-side commits (made
// by any node sharing the bus) out to every locally-connected Conn whose
// subscriptions include the affected docID.
func NewHandler(ctx context.Context, opts Options) *Handler {
	h := &Handler{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*Conn]struct{}),
	}
	if opts.Bus != nil {
		go func() {
			err := opts.Bus.Subscribe(ctx, h.broadcastToSubscribers)
			if err != nil && ctx.Err() == nil {
				h.opts.logger().Warn("wsrpc: event bus subscription ended", zap.Error(err))
			}
		}()
	}
	return h
}

func (h *Handler) broadcastToSubscribers(docID string, changes []common.Change, originatingClientID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		if c.clientID == originatingClientID {
			continue
		}
		c.pushDocUpdate(docID, changes)
	}
}

// ServeHTTP upgrades the request and serves RPC calls on it until the
// connection closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = fmt.Sprintf("client-%p", r)
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.opts.logger().Error("wsrpc: upgrade failed", zap.Error(err))
		return
	}

	c := &Conn{
		conn:     wsConn,
		clientID: clientID,
		handler:  h,
		subs:     make(map[string]bool),
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	c.readLoop()

	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// Conn is one client's websocket RPC connection.
type Conn struct {
	conn     *websocket.Conn
	clientID string
	handler  *Handler

	writeMu sync.Mutex
	subMu   sync.RWMutex
	subs    map[string]bool
}

func (c *Conn) readLoop() {
	defer c.conn.Close()
	log := c.handler.opts.logger()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("wsrpc: read error", zap.String("clientId", c.clientID), zap.Error(err))
			}
			return
		}

		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			log.Warn("wsrpc: malformed request", zap.Error(err))
			continue
		}

		result, rpcErr := c.dispatch(req)
		resp := Response{ID: req.ID}
		if rpcErr != nil {
			resp.Error = rpcErr.Error()
		} else {
			resp.Result = result
		}
		if err := c.writeJSON(resp); err != nil {
			log.Warn("wsrpc: write error", zap.String("clientId", c.clientID), zap.Error(err))
			return
		}
	}
}

func (c *Conn) dispatch(req Request) (json.RawMessage, error) {
	ctx := context.Background()
	store := c.handler.opts.Store

	switch req.Method {
	case "subscribe":
		var p subscribeParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		c.subMu.Lock()
		for _, id := range p.DocIDs {
			c.subs[id] = true
		}
		c.subMu.Unlock()
		return json.Marshal(struct{}{})

	case "unsubscribe":
		var p subscribeParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		c.subMu.Lock()
		for _, id := range p.DocIDs {
			delete(c.subs, id)
		}
		c.subMu.Unlock()
		return json.Marshal(struct{}{})

	case "getDoc":
		var p getDocParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		state, rev, err := version.StateAtRevision(ctx, store, p.DocID, nil)
		if err != nil {
			return nil, err
		}
		return json.Marshal(getDocResult{State: state, Rev: rev})

	case "getChangesSince":
		var p getChangesSinceParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		changes, err := store.ListChanges(ctx, p.DocID, storage.ListChangesOptions{StartAfter: &p.Rev})
		if err != nil {
			return nil, err
		}
		return json.Marshal(changes)

	case "patchDoc":
		var p patchDocParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		result, err := ot.CommitChanges(ctx, store, p.DocID, p.Changes, c.handler.opts.CommitOptions)
		if err != nil {
			return nil, err
		}
		if c.handler.opts.Bus != nil && len(result.New) > 0 {
			if err := c.handler.opts.Bus.Publish(ctx, p.DocID, result.New, c.clientID); err != nil {
				c.handler.opts.logger().Warn("wsrpc: publish failed", zap.String("docId", p.DocID), zap.Error(err))
			}
		}
		return json.Marshal(patchDocResult{Catchup: result.Catchup, New: result.New})

	case "deleteDoc":
		var p deleteDocParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		if err := store.DeleteDoc(ctx, p.DocID); err != nil {
			return nil, err
		}
		return json.Marshal(struct{}{})

	default:
		return nil, fmt.Errorf("wsrpc: unknown method %q", req.Method)
	}
}

func (c *Conn) pushDocUpdate(docID string, changes []common.Change) {
	c.subMu.RLock()
	subscribed := c.subs[docID]
	c.subMu.RUnlock()
	if !subscribed {
		return
	}
	if err := c.writeJSON(Push{Type: "doc-update", DocID: docID, Changes: changes}); err != nil {
		c.handler.opts.logger().Warn("wsrpc: push failed", zap.String("clientId", c.clientID), zap.Error(err))
	}
}

func (c *Conn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wsrpc: encode: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
