package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/systemshift/graphrepo/internal/config"
	"github.com/systemshift/graphrepo/internal/server/graph"
	"github.com/systemshift/graphrepo/internal/server/subscriptions"
	"github.com/systemshift/graphrepo/pkg/repository"
)

func setupSubscriptionServer(t *testing.T) (*httptest.Server, *subscriptions.Manager) {
	t.Helper()

	cfg := config.Default()
	cfg.SQLite.Path = ":memory:"
	ctx := context.Background()
	store, err := graph.Open(ctx, cfg, zap.NewNop())
	require.NoError(t, err)

	m := subscriptions.NewManager(store, zap.NewNop())
	store.Use(func(next graph.Executor) graph.Executor {
		return subscriptions.Emitting(next, m.Emitter())
	})
	require.NoError(t, m.Start(ctx))

	srv := New(store, zap.NewNop())
	people := repository.New[*person](store)
	ts := httptest.NewServer(srv.Routes(func(r chi.Router) {
		Mount(srv, r, "/people", people)
		srv.MountSubscriptions(r, m)
	}))
	t.Cleanup(func() {
		ts.Close()
		m.Stop()
		store.Close(ctx)
	})
	return ts, m
}

func TestSubscriptionRoutes(t *testing.T) {
	ts, _ := setupSubscriptionServer(t)
	base := ts.URL + "/api/subscriptions"

	status, _ := do(t, "POST", base, `{"name": "x"}`)
	assert.Equal(t, http.StatusBadRequest, status, "no delivery channel")

	status, _ = do(t, "POST", base, `{"name": `)
	assert.Equal(t, http.StatusBadRequest, status)

	status, resp := do(t, "POST", base, `{"name": "people", "websocket": true, "pattern": {"entity_types": ["Person"]}}`)
	require.Equal(t, http.StatusCreated, status)
	sub := resp["subscription"].(map[string]any)
	id := sub["id"].(string)
	assert.Equal(t, "people", sub["name"])
	assert.Equal(t, true, sub["enabled"])

	status, resp = do(t, "GET", base, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), resp["count"])

	status, resp = do(t, "GET", base+"/"+id, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, resp["subscription"].(map[string]any)["id"])

	status, resp = do(t, "PATCH", base+"/"+id, `{"enabled": false}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, resp["subscription"].(map[string]any)["enabled"])

	status, _ = do(t, "PATCH", base+"/missing", `{"enabled": false}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, "DELETE", base+"/"+id, "")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = do(t, "GET", base+"/"+id, "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = do(t, "DELETE", base+"/"+id, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSubscriptionWebSocket(t *testing.T) {
	ts, m := setupSubscriptionServer(t)

	status, resp := do(t, "POST", ts.URL+"/api/subscriptions", `{"name": "created", "websocket": true, "pattern": {"event_types": ["entity.created"]}}`)
	require.Equal(t, http.StatusCreated, status)
	id := resp["subscription"].(map[string]any)["id"].(string)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/subscriptions/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return m.HasWSClient(id) }, 5*time.Second, 10*time.Millisecond)

	status, _ = do(t, "POST", ts.URL+"/api/people", `{"Id": "p1", "Name": "Ann", "Age": 31}`)
	require.Equal(t, http.StatusCreated, status)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var n subscriptions.Notification
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, id, n.SubscriptionID)
	assert.Equal(t, subscriptions.EventEntityCreated, n.Event.Type)
	assert.Equal(t, "Person", n.Event.EntityType)
	assert.Equal(t, "p1", n.Event.Key)

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/subscriptions/missing/ws", nil)
	assert.Error(t, err)
}

func TestSubscriptionWebSocketReconnect(t *testing.T) {
	ts, m := setupSubscriptionServer(t)

	status, resp := do(t, "POST", ts.URL+"/api/subscriptions", `{"name": "created", "websocket": true, "pattern": {"event_types": ["entity.created"]}}`)
	require.Equal(t, http.StatusCreated, status)
	id := resp["subscription"].(map[string]any)["id"].(string)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/subscriptions/" + id + "/ws"

	old, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.HasWSClient(id) }, 5*time.Second, 10*time.Millisecond)

	// Registering the second connection closes the first, whose handler then exits
	current, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer current.Close()
	require.NoError(t, old.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = old.ReadMessage()
	require.Error(t, err)
	old.Close()

	status, _ = do(t, "POST", ts.URL+"/api/people", `{"Id": "p2", "Name": "Bo", "Age": 40}`)
	require.Equal(t, http.StatusCreated, status)

	require.NoError(t, current.SetReadDeadline(time.Now().Add(5*time.Second)))
	var n subscriptions.Notification
	require.NoError(t, current.ReadJSON(&n))
	assert.Equal(t, "p2", n.Event.Key)
	assert.True(t, m.HasWSClient(id))
}
