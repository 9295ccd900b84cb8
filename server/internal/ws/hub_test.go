package ws_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dsa110/mnc/pkg/store"
	"github.com/dsa110/mnc/pkg/types"
	wsHub "github.com/dsa110/mnc/server/internal/ws"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// --- helpers ----------------------------------------------------------------

func newStore(t *testing.T, kv map[string]types.Value) *store.Store {
	t.Helper()
	st := store.New(store.NewMemory(time.Minute), store.WithLogger(quiet))
	t.Cleanup(func() { st.Close() })
	for k, v := range kv {
		if err := st.Put(context.Background(), k, v, store.Strict(false)); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}
	return st
}

// startHub starts a test HTTP server with the hub as its handler.
// The hub's Run loop is started with a cancellable context.
// Returns the ws:// URL, the hub, and a cancel function.
func startHub(t *testing.T, st *store.Store) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	hub = wsHub.New(st, "/mon/", quiet)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(hub)
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

// dial connects a WebSocket client to wsURL and returns the connection.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type message struct {
	Event string          `json:"event"`
	Key   string          `json:"key"`
	Data  json.RawMessage `json:"data"`
}

// readMessage reads one message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return m
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesSnapshot(t *testing.T) {
	st := newStore(t, map[string]types.Value{
		"/mon/ant/1": types.Object(map[string]types.Value{"ant_el": types.Number(45)}),
		"/mon/ant/2": types.Object(map[string]types.Value{"ant_el": types.Number(46)}),
		"/cmd/ant/1": types.Object(map[string]types.Value{"cmd": types.String("move")}),
	})
	wsURL, _, _ := startHub(t, st)

	m := readMessage(t, dial(t, wsURL))
	if m.Event != "snapshot" || m.Key != "/mon/" {
		t.Fatalf("first message: got event=%q key=%q", m.Event, m.Key)
	}
	var data map[string]map[string]float64
	if err := json.Unmarshal(m.Data, &data); err != nil {
		t.Fatalf("data: %v", err)
	}
	if len(data) != 2 {
		t.Errorf("snapshot keys: got %v, want the two /mon/ant keys", data)
	}
	if data["/mon/ant/2"]["ant_el"] != 46 {
		t.Errorf("ant 2: got %v", data["/mon/ant/2"])
	}
}

func TestHub_StreamsUpdates(t *testing.T) {
	st := newStore(t, nil)
	wsURL, _, _ := startHub(t, st)

	conn := dial(t, wsURL)
	if m := readMessage(t, conn); m.Event != "snapshot" || string(m.Data) != "{}" {
		t.Fatalf("snapshot: got %+v", m)
	}

	if err := st.Put(context.Background(), "/mon/status/1", types.Object(map[string]types.Value{"status": types.Int(1)})); err != nil {
		t.Fatalf("Put: %v", err)
	}
	m := readMessage(t, conn)
	if m.Event != "update" || m.Key != "/mon/status/1" {
		t.Fatalf("update: got event=%q key=%q", m.Event, m.Key)
	}
	if string(m.Data) != `{"status":1}` {
		t.Errorf("data: got %s", m.Data)
	}
}

func TestHub_PrefixQuery(t *testing.T) {
	st := newStore(t, nil)
	wsURL, _, _ := startHub(t, st)

	conn := dial(t, wsURL+"?prefix=/mon/ant/")
	if m := readMessage(t, conn); m.Key != "/mon/ant/" {
		t.Fatalf("snapshot key: got %q, want /mon/ant/", m.Key)
	}

	ctx := context.Background()
	if err := st.Put(ctx, "/mon/beb/1", types.Int(1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := st.Put(ctx, "/mon/ant/7", types.Int(7)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if m := readMessage(t, conn); m.Key != "/mon/ant/7" {
		t.Errorf("update key: got %q, want /mon/ant/7 only", m.Key)
	}
}

func TestHub_NonFiniteSentAsNull(t *testing.T) {
	st := newStore(t, nil)
	wsURL, _, _ := startHub(t, st)
	conn := dial(t, wsURL)
	readMessage(t, conn)

	v := types.Object(map[string]types.Value{"pd": types.Number(math.Inf(1))})
	if err := st.Put(context.Background(), "/mon/beb/2", v, store.Strict(false)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if m := readMessage(t, conn); string(m.Data) != `{"pd":null}` {
		t.Errorf("data: got %s, want {\"pd\":null}", m.Data)
	}
}

func TestHub_CountClients(t *testing.T) {
	st := newStore(t, nil)
	wsURL, hub, _ := startHub(t, st)

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, wsURL)
		readMessage(t, conns[i])
	}
	if n := hub.Count(); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}
	if n := st.Subscriptions(); n != 3 {
		t.Errorf("store subscriptions: got %d, want one per client", n)
	}

	conns[0].Close()
	time.Sleep(50 * time.Millisecond) // let readPump detect the close
	if n := hub.Count(); n != 2 {
		t.Errorf("Count after disconnect: got %d, want 2", n)
	}
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	st := newStore(t, nil)
	wsURL, hub, cancel := startHub(t, st)

	conn := dial(t, wsURL)
	readMessage(t, conn)

	cancel()
	time.Sleep(50 * time.Millisecond)
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after cancel: got %d, want 0", n)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNoStatusReceived) {
		t.Errorf("expected close frame, got %v", err)
	}
}

func TestHub_BadPrefix_Returns400(t *testing.T) {
	hub := wsHub.New(newStore(t, nil), "/mon/", quiet)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?prefix=mon")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	hub := wsHub.New(newStore(t, nil), "/mon/", quiet)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	// Plain HTTP GET without WebSocket upgrade headers: 400.
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
