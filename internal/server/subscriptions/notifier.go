package subscriptions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WSConn is an interface for WebSocket connections
// This allows us to avoid importing gorilla/websocket in the types
type WSConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Notifier handles sending notifications via webhooks and WebSockets
type Notifier struct {
	httpClient *http.Client
	logger     *zap.Logger
	attempts   int
	backoff    time.Duration
	wsClients  map[string]WSConn // subscription_id -> connection
	mu         sync.RWMutex
}

// NewNotifier creates a new notifier
func NewNotifier(logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:    logger,
		attempts:  3,
		backoff:   time.Second,
		wsClients: make(map[string]WSConn),
	}
}

// Close closes all WebSocket connections
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, conn := range n.wsClients {
		conn.Close()
	}
	n.wsClients = make(map[string]WSConn)
}

// RegisterWSClient registers a WebSocket connection for a subscription
func (n *Notifier) RegisterWSClient(subID string, conn WSConn) {
	n.mu.Lock()
	defer n.mu.Unlock()

	// Close existing connection if any
	if existing, ok := n.wsClients[subID]; ok {
		existing.Close()
	}

	n.wsClients[subID] = conn
	n.logger.Info("websocket client registered", zap.String("subscription", subID))
}

// UnregisterWSClient removes a WebSocket connection
func (n *Notifier) UnregisterWSClient(subID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if conn, ok := n.wsClients[subID]; ok {
		conn.Close()
		delete(n.wsClients, subID)
		n.logger.Info("websocket client unregistered", zap.String("subscription", subID))
	}
}

// DetachWSClient removes conn if it is still the connection registered for
// subID. A connection that was already replaced leaves its successor alone.
func (n *Notifier) DetachWSClient(subID string, conn WSConn) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if current, ok := n.wsClients[subID]; ok && current == conn {
		delete(n.wsClients, subID)
		n.logger.Info("websocket client detached", zap.String("subscription", subID))
	}
	conn.Close()
}

// SendWebhook POSTs the notification to url, retrying with quadratic backoff.
func (n *Notifier) SendWebhook(ctx context.Context, url string, notification Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < n.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt*attempt) * n.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("creating webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Graphrepo-Event", notification.Event.Type)
		req.Header.Set("X-Graphrepo-Subscription", notification.SubscriptionID)

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = err
			n.logger.Warn("webhook delivery attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			n.logger.Debug("webhook delivered", zap.String("url", url))
			return nil
		}

		lastErr = &WebhookError{
			URL:        url,
			StatusCode: resp.StatusCode,
		}
		n.logger.Warn("webhook delivery attempt rejected", zap.Int("attempt", attempt+1), zap.Int("status", resp.StatusCode))
	}

	n.logger.Error("webhook delivery failed", zap.String("url", url), zap.Int("attempts", n.attempts), zap.Error(lastErr))
	return lastErr
}

// SendWebSocket sends a notification via WebSocket
func (n *Notifier) SendWebSocket(subID string, notification Notification) error {
	n.mu.RLock()
	conn, ok := n.wsClients[subID]
	n.mu.RUnlock()

	if !ok {
		// No active WebSocket connection, not an error
		return nil
	}

	if err := conn.WriteJSON(notification); err != nil {
		n.logger.Warn("websocket send failed", zap.String("subscription", subID), zap.Error(err))
		// Remove failed connection
		n.DetachWSClient(subID, conn)
		return err
	}
	return nil
}

// HasWSClient checks if a subscription has an active WebSocket client
func (n *Notifier) HasWSClient(subID string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.wsClients[subID]
	return ok
}

// WebhookError represents a webhook delivery failure
type WebhookError struct {
	URL        string
	StatusCode int
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("webhook delivery to %s failed with status %d", e.URL, e.StatusCode)
}
