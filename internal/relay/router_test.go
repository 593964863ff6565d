package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/peercall/internal/config"
	"github.com/dkeye/peercall/internal/signal"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(NewRegistry(), HubOptions{})
	cfg := &config.Config{Mode: "test", Secret: "secret", ReadLimit: 1 << 15, QueueSize: 8}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
	srv := httptest.NewServer(SetupRouter(ctx, cfg, hub, metrics))
	t.Cleanup(srv.Close)
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal?" + query
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func waitOnline(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(hub.Registry().Parties()) == n }, 2*time.Second, 5*time.Millisecond)
}

func TestRouter_RelaysBetweenParties(t *testing.T) {
	srv, hub := newTestServer(t)
	a := dial(t, srv, "id=alice&name=Alice")
	b := dial(t, srv, "id=bob")
	waitOnline(t, hub, 2)

	req, err := signal.EncodeFrame(signal.EventCallRequest, signal.CallRequest{
		From: bob, // forged, the relay knows better
		To:   bob.ID, Offer: offer, CallID: "c1",
	})
	require.NoError(t, err)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, req))

	require.NoError(t, b.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := b.ReadMessage()
	require.NoError(t, err)

	var env signal.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, signal.EventIncomingCall, env.Event)
	var in signal.IncomingCall
	require.NoError(t, json.Unmarshal(env.Data, &in))
	assert.Equal(t, alice, in.Sender)
	assert.Equal(t, offer, in.Offer)
}

func TestRouter_PartiesAndHealth(t *testing.T) {
	srv, hub := newTestServer(t)
	dial(t, srv, "id=alice&name=Alice")
	waitOnline(t, hub, 1)

	resp, err := http.Get(srv.URL + "/api/parties")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Parties []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"parties"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Parties, 1)
	assert.Equal(t, "alice", body.Parties[0].ID)
	assert.Equal(t, "Alice", body.Parties[0].Name)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)

	m, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	m.Body.Close()
	assert.Equal(t, http.StatusOK, m.StatusCode)
}

func TestRouter_ClientTokenIdentity(t *testing.T) {
	srv, hub := newTestServer(t)
	dial(t, srv, "")
	waitOnline(t, hub, 1)
	assert.Len(t, hub.Registry().Parties()[0].ID, 36)
}

func TestRouter_InvalidParty(t *testing.T) {
	srv, _ := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal?id=" + strings.Repeat("x", 40)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_ReconnectReplaces(t *testing.T) {
	srv, hub := newTestServer(t)
	first := dial(t, srv, "id=alice")
	waitOnline(t, hub, 1)
	dial(t, srv, "id=alice")

	// the relay closes the first socket
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)
	waitOnline(t, hub, 1)
}

func TestRouter_LeaveOnClose(t *testing.T) {
	srv, hub := newTestServer(t)
	a := dial(t, srv, "id=alice")
	waitOnline(t, hub, 1)
	require.NoError(t, a.Close())
	waitOnline(t, hub, 0)
}

func TestRouter_NoStaticContent(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, path := range []string{"/", "/static/index.html"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}
