package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dsa110/mnc/pkg/store"
	"github.com/dsa110/mnc/pkg/types"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins; callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients.
//
// A "snapshot" message carries Key = the watched prefix and Data = an object
// of every key under it. Each "update" carries one key and its new value.
// Non-finite numbers are sent as null.
type Message struct {
	Event string      `json:"event"`
	Key   string      `json:"key"`
	Data  types.Value `json:"data"`
}

// Source is the part of store.Store the hub reads from.
type Source interface {
	List(ctx context.Context, prefix string, opts ...store.GetOption) ([]store.Entry, error)
	WatchPrefix(ctx context.Context, prefix string, cb func(key string, v types.Value), opts ...store.WatchOption) (*store.Subscription, error)
}

// Hub manages WebSocket clients. Each client holds its own prefix watch on
// the store and receives every put under that prefix.
type Hub struct {
	src    Source
	prefix string
	log    *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client represents one connected WebSocket client.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	prefix string
	sub    *store.Subscription // guarded by Hub.mu

	// Updates that arrive before the snapshot is queued wait in pending.
	mu      sync.Mutex
	ready   bool
	pending [][]byte
}

// New creates a Hub over src. Clients that do not pass ?prefix= watch
// defaultPrefix.
func New(src Source, defaultPrefix string, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		src:     src,
		prefix:  defaultPrefix,
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes all active connections
// and cancels their watches.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the client.
// It sends a snapshot of the prefix immediately on connect, then one update
// per put. Blocks until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = h.prefix
	}
	if !strings.HasPrefix(prefix, "/") {
		http.Error(w, `prefix must start with "/"`, http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBufSize),
		prefix: prefix,
	}
	h.register(c)
	defer h.unregister(c)
	go c.writePump()

	sub, err := h.src.WatchPrefix(r.Context(), prefix,
		func(key string, v types.Value) { h.update(c, key, v) },
		store.WatchNonFinite(true))
	if err != nil {
		h.log.Error("ws: watch failed", "prefix", prefix, "err", err)
		return
	}
	h.attach(c, sub)

	h.flush(c, h.snapshot(r.Context(), prefix))
	h.log.Debug("ws: client connected", "prefix", prefix, "subscription", sub.ID)

	c.readPump() // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	sub := c.sub
	h.mu.Unlock()

	if ok && sub != nil {
		sub.Cancel()
	}
}

// attach records sub on c, or cancels it if c is already gone.
func (h *Hub) attach(c *client, sub *store.Subscription) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		c.sub = sub
	}
	h.mu.Unlock()
	if !ok {
		sub.Cancel()
	}
}

// deliver queues data for c, disconnecting it if its buffer is full.
func (h *Hub) deliver(c *client, data []byte) {
	h.mu.RLock()
	_, ok := h.clients[c]
	full := false
	if ok {
		select {
		case c.send <- data:
		default:
			full = true
		}
	}
	h.mu.RUnlock()

	if full {
		h.log.Warn("ws: disconnecting slow client", "prefix", c.prefix)
		h.unregister(c)
	}
}

func (h *Hub) update(c *client, key string, v types.Value) {
	data, err := json.Marshal(Message{Event: "update", Key: key, Data: v})
	if err != nil {
		h.log.Error("ws: encode update", "key", key, "err", err)
		return
	}

	c.mu.Lock()
	if !c.ready {
		if len(c.pending) >= sendBufSize {
			c.mu.Unlock()
			h.log.Warn("ws: disconnecting slow client", "prefix", c.prefix)
			h.unregister(c)
			return
		}
		c.pending = append(c.pending, data)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	h.deliver(c, data)
}

// flush queues the snapshot followed by any updates that raced ahead of it.
func (h *Hub) flush(c *client, snapshot []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if snapshot != nil {
		h.deliver(c, snapshot)
	}
	for _, data := range c.pending {
		h.deliver(c, data)
	}
	c.pending = nil
	c.ready = true
}

func (h *Hub) snapshot(ctx context.Context, prefix string) []byte {
	entries, err := h.src.List(ctx, prefix, store.AllowNonFinite(true))
	if err != nil {
		h.log.Warn("ws: snapshot incomplete", "prefix", prefix, "err", err)
	}
	obj := make(map[string]types.Value, len(entries))
	for _, e := range entries {
		obj[e.Key] = e.Value
	}
	data, err := json.Marshal(Message{Event: "snapshot", Key: prefix, Data: types.Object(obj)})
	if err != nil {
		h.log.Error("ws: encode snapshot", "prefix", prefix, "err", err)
		return nil
	}
	return data
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	subs := make([]*store.Subscription, 0, len(h.clients))
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
		if c.sub != nil {
			subs = append(subs, c.sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel was closed (hub is shutting down or client removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the connection to process control messages (pong,
// close) and detect disconnects. Blocks until the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
