package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/systemshift/graphrepo/internal/server/subscriptions"
)

// MountSubscriptions registers the subscription routes:
//
//	POST   /subscriptions          register
//	GET    /subscriptions          list
//	GET    /subscriptions/{id}     get
//	PATCH  /subscriptions/{id}     update
//	DELETE /subscriptions/{id}     unregister
//	GET    /subscriptions/{id}/ws  stream notifications over a WebSocket
func (s *Server) MountSubscriptions(r chi.Router, m *subscriptions.Manager) {
	h := &subscriptionHandler{
		Server:  s,
		manager: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	r.Post("/subscriptions", h.create)
	r.Get("/subscriptions", h.list)
	r.Get("/subscriptions/{id}", h.get)
	r.Patch("/subscriptions/{id}", h.update)
	r.Delete("/subscriptions/{id}", h.delete)
	r.Get("/subscriptions/{id}/ws", h.stream)
}

type subscriptionHandler struct {
	*Server
	manager  *subscriptions.Manager
	upgrader websocket.Upgrader
}

// create handles POST /subscriptions
func (h *subscriptionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req subscriptions.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sub, err := h.manager.Register(r.Context(), &req)
	if err != nil {
		h.failSubscription(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, subscriptions.SubscriptionResponse{Subscription: sub})
}

// list handles GET /subscriptions
func (h *subscriptionHandler) list(w http.ResponseWriter, r *http.Request) {
	subs := h.manager.List()
	writeJSON(w, http.StatusOK, subscriptions.ListSubscriptionsResponse{
		Subscriptions: subs,
		Count:         len(subs),
	})
}

// get handles GET /subscriptions/{id}
func (h *subscriptionHandler) get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.failSubscription(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptions.SubscriptionResponse{Subscription: sub})
}

// update handles PATCH /subscriptions/{id}
func (h *subscriptionHandler) update(w http.ResponseWriter, r *http.Request) {
	var req subscriptions.UpdateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sub, err := h.manager.Update(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		h.failSubscription(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptions.SubscriptionResponse{Subscription: sub})
}

// delete handles DELETE /subscriptions/{id}
func (h *subscriptionHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Unregister(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.failSubscription(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// stream handles GET /subscriptions/{id}/ws. The connection stays registered
// until the client closes it.
func (h *subscriptionHandler) stream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sub, err := h.manager.Get(id)
	if err != nil {
		h.failSubscription(w, err)
		return
	}
	if !sub.WebSocket {
		http.Error(w, "websocket delivery is disabled for this subscription", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	ws := &wsConn{conn: conn}
	if err := h.manager.RegisterWSClient(id, ws); err != nil {
		conn.Close()
		return
	}

	// Drain client frames so close and ping frames are processed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.manager.DetachWSClient(id, ws)
}

func (h *subscriptionHandler) failSubscription(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, subscriptions.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, subscriptions.ErrInvalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.fail(w, err)
	}
}

// wsConn serializes writes; gorilla connections allow one writer at a time.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
