package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoRelay answers every frame it reads with the same frame and records the
// query of each connection.
type echoRelay struct {
	mu      sync.Mutex
	queries []string
	conns   []*websocket.Conn
}

func (e *echoRelay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	e.mu.Lock()
	e.queries = append(e.queries, r.URL.RawQuery)
	e.conns = append(e.conns, ws)
	e.mu.Unlock()
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if err := ws.WriteMessage(mt, data); err != nil {
			return
		}
	}
}

func (e *echoRelay) dropAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.conns {
		_ = c.Close()
	}
	e.conns = nil
}

func newTestChannel(t *testing.T) (*WSChannel, *echoRelay, context.CancelFunc) {
	t.Helper()
	relay := &echoRelay{}
	srv := httptest.NewServer(relay)
	t.Cleanup(srv.Close)

	ch := NewWSChannel(WSOptions{
		URL:     "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal",
		Self:    domain.Party{ID: "alice", Name: "Alice"},
		Backoff: 20 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = ch.Run(ctx) }()
	return ch, relay, cancel
}

func TestWSChannel_SendReceiveRoundTrip(t *testing.T) {
	ch, relay, _ := newTestChannel(t)

	got := make(chan CallEnd, 1)
	ch.On(EventCallEnd, func(raw json.RawMessage) {
		var v CallEnd
		if Decode(raw, &v) == nil {
			got <- v
		}
	})

	require.Eventually(t, ch.Connected, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, ch.Send(EventCallEnd, CallEnd{From: "alice", To: "bob", CallID: "c1"}))

	select {
	case v := <-got:
		assert.Equal(t, domain.PartyID("bob"), v.To)
		assert.Equal(t, "c1", v.CallID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed event")
	}

	relay.mu.Lock()
	defer relay.mu.Unlock()
	require.NotEmpty(t, relay.queries)
	assert.Contains(t, relay.queries[0], "id=alice")
	assert.Contains(t, relay.queries[0], "name=Alice")
}

func TestWSChannel_EmitsDisconnectAndReconnects(t *testing.T) {
	ch, relay, _ := newTestChannel(t)

	var mu sync.Mutex
	var events []string
	record := func(name string) core.Handler {
		return func(json.RawMessage) {
			mu.Lock()
			events = append(events, name)
			mu.Unlock()
		}
	}
	ch.On(core.EventConnect, record("connect"))
	ch.On(core.EventDisconnect, record("disconnect"))

	require.Eventually(t, ch.Connected, 2*time.Second, 5*time.Millisecond)
	relay.dropAll()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) >= 2 && events[len(events)-1] == "connect"
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, events, "disconnect")
}

func TestWSChannel_SendWhileDisconnected(t *testing.T) {
	t.Parallel()
	ch := NewWSChannel(WSOptions{URL: "ws://127.0.0.1:1/api/ws/signal", Self: domain.Party{ID: "alice"}})

	err := ch.Send(EventCallEnd, CallEnd{From: "alice", To: "bob"})

	assert.ErrorIs(t, err, domain.ErrSignalingUnavailable)
}

func TestEncodeFrame(t *testing.T) {
	t.Parallel()
	f, err := EncodeFrame(EventCallReject, CallReject{From: domain.Party{ID: "bob"}, To: "alice", Reason: domain.ReasonBusy})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(f, &env))
	assert.Equal(t, EventCallReject, env.Event)
	assert.JSONEq(t, `{"from":{"id":"bob"},"to":"alice","reason":"busy"}`, string(env.Data))
}
