package http_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/quake-watch/internal/adapter/http"
	"github.com/couchcryptid/quake-watch/internal/views"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var welcome httpadapter.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, "welcome", welcome.Type)
	return conn
}

type pushed struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func TestHub_PushesEarthquakesAndAlerts(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.srv)
	defer srv.Close()

	conn := dialHub(t, srv)
	hub := env.deps.Hub
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Receive(context.Background(), fixtureQuakes()))

	var msg pushed
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "earthquakes", msg.Type)
	assert.Contains(t, string(msg.Data), `"id":"GWfUsdpMlvJW"`)

	env.deps.Alerts.OnAlert(hub.Alert)
	env.deps.Alerts.Notify(context.Background(), fixtureQuakes()[0], 5.5)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "alert", msg.Type)
	var alert views.Alert
	require.NoError(t, json.Unmarshal(msg.Data, &alert))
	assert.InDelta(t, 5.5, alert.Threshold, 1e-9)
}

func TestHub_DropsDisconnectedClients(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.srv)
	defer srv.Close()

	conn := dialHub(t, srv)
	hub := env.deps.Hub
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Receive(context.Background(), fixtureQuakes()), "broadcast with no clients")
	assert.Equal(t, "websocket", hub.Name())
}

func TestHub_Close(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.srv)
	defer srv.Close()

	conn := dialHub(t, srv)
	hub := env.deps.Hub
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	hub.Close()
	assert.Zero(t, hub.Count())

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), err)
}

func TestHub_StalledClientDoesNotBlockBroadcast(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.srv)
	defer srv.Close()

	dialHub(t, srv) // never read again
	hub := env.deps.Hub
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	payload := strings.Repeat("x", 512<<10)
	start := time.Now()
	for range 64 {
		require.NoError(t, hub.Broadcast(httpadapter.Message{Type: "earthquakes", Data: payload}))
	}
	assert.Less(t, time.Since(start), time.Second, "broadcast waited on a stalled client")

	require.Eventually(t, func() bool { return hub.Count() == 0 }, 5*time.Second, 10*time.Millisecond,
		"client with a full queue is dropped")
}
