package subscriptions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/systemshift/graphrepo/pkg/repository"
)

// RecordType is the node label subscriptions are persisted under. Events for
// it are never matched.
const RecordType = "Subscription"

// EventEmitter is a function that receives events from the store
type EventEmitter func(Event)

// Manager handles subscription lifecycle and event processing
type Manager struct {
	records       *repository.Repository[*record, string]
	subscriptions map[string]*Subscription
	eventChan     chan Event
	notifier      *Notifier
	matcher       *Matcher
	validate      *validator.Validate
	logger        *zap.Logger
	stopped       bool
	mu            sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewManager creates a subscription manager persisting through exec. Cypher
// patterns are evaluated through exec too.
func NewManager(exec repository.Executor, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("subscriptions")

	ctx, cancel := context.WithCancel(context.Background())
	records := repository.New[*record](exec, repository.WithLogger(logger))
	return &Manager{
		records:       records,
		subscriptions: make(map[string]*Subscription),
		eventChan:     make(chan Event, 1000), // Buffered to avoid blocking writes
		notifier:      NewNotifier(logger),
		matcher:       NewMatcher(records, logger),
		validate:      validator.New(),
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start loads stored subscriptions and begins processing events
func (m *Manager) Start(ctx context.Context) error {
	if err := m.loadSubscriptions(ctx); err != nil {
		m.logger.Warn("failed to load subscriptions", zap.Error(err))
	}

	m.wg.Add(1)
	go m.processEvents()

	m.mu.RLock()
	count := len(m.subscriptions)
	m.mu.RUnlock()
	m.logger.Info("subscription manager started", zap.Int("subscriptions", count))
	return nil
}

// Stop gracefully shuts down the manager. Events emitted afterwards are dropped.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	close(m.eventChan)
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.notifier.Close()
	m.logger.Info("subscription manager stopped")
}

// EmitEvent queues an event for matching without blocking the writer
func (m *Manager) EmitEvent(event Event) {
	if event.EntityType == RecordType {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stopped {
		return
	}

	// Non-blocking send - drop events if channel is full
	select {
	case m.eventChan <- event:
	default:
		m.logger.Warn("event channel full, dropping event", zap.String("event", event.ID))
	}
}

// Emitter returns a function that can be used to emit events
func (m *Manager) Emitter() EventEmitter {
	return m.EmitEvent
}

// Register adds a new subscription
func (m *Manager) Register(ctx context.Context, req *CreateSubscriptionRequest) (*Subscription, error) {
	if err := m.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if req.Webhook == "" && !req.WebSocket {
		return nil, fmt.Errorf("%w: webhook URL or websocket required", ErrInvalid)
	}
	if err := validatePattern(req.Pattern); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub := &Subscription{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Pattern:     req.Pattern,
		Webhook:     req.Webhook,
		WebSocket:   req.WebSocket,
		Enabled:     true,
		Created:     now,
		Modified:    now,
	}

	rec, err := toRecord(sub)
	if err != nil {
		return nil, err
	}
	if _, err := m.records.Add(ctx, rec); err != nil {
		return nil, fmt.Errorf("persisting subscription: %w", err)
	}

	m.mu.Lock()
	m.subscriptions[sub.ID] = sub
	m.mu.Unlock()

	m.logger.Info("subscription registered", zap.String("id", sub.ID), zap.String("name", sub.Name))
	return sub.clone(), nil
}

// Unregister removes a subscription
func (m *Manager) Unregister(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.subscriptions[id]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := m.records.Delete(ctx, &record{Id: id}); err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}

	delete(m.subscriptions, id)
	m.notifier.UnregisterWSClient(id)

	m.logger.Info("subscription unregistered", zap.String("id", id))
	return nil
}

// Update modifies an existing subscription
func (m *Manager) Update(ctx context.Context, id string, req *UpdateSubscriptionRequest) (*Subscription, error) {
	if err := m.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if req.Pattern != nil {
		if err := validatePattern(*req.Pattern); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.subscriptions[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	sub := current.clone()
	if req.Name != nil {
		sub.Name = *req.Name
	}
	if req.Description != nil {
		sub.Description = *req.Description
	}
	if req.Pattern != nil {
		sub.Pattern = *req.Pattern
	}
	if req.Webhook != nil {
		sub.Webhook = *req.Webhook
	}
	if req.WebSocket != nil {
		sub.WebSocket = *req.WebSocket
	}
	if req.Enabled != nil {
		sub.Enabled = *req.Enabled
	}
	if sub.Webhook == "" && !sub.WebSocket {
		return nil, fmt.Errorf("%w: webhook URL or websocket required", ErrInvalid)
	}
	sub.Modified = time.Now().UTC()

	rec, err := toRecord(sub)
	if err != nil {
		return nil, err
	}
	if _, err := m.records.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("updating subscription: %w", err)
	}

	m.subscriptions[id] = sub
	if !sub.WebSocket {
		m.notifier.UnregisterWSClient(id)
	}
	return sub.clone(), nil
}

// Get returns a subscription by ID
func (m *Manager) Get(id string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, exists := m.subscriptions[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sub.clone(), nil
}

// List returns all subscriptions, oldest first
func (m *Manager) List() []*Subscription {
	m.mu.RLock()
	result := make([]*Subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		result = append(result, sub.clone())
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Created.Equal(result[j].Created) {
			return result[i].Created.Before(result[j].Created)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// RegisterWSClient registers a WebSocket connection for a subscription
func (m *Manager) RegisterWSClient(subID string, conn WSConn) error {
	m.mu.RLock()
	sub, exists := m.subscriptions[subID]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, subID)
	}
	if !sub.WebSocket {
		return fmt.Errorf("%w: websocket delivery is disabled for %s", ErrInvalid, subID)
	}

	m.notifier.RegisterWSClient(subID, conn)
	return nil
}

// HasWSClient reports whether a WebSocket is attached to the subscription
func (m *Manager) HasWSClient(subID string) bool {
	return m.notifier.HasWSClient(subID)
}

// DetachWSClient closes conn and removes it unless another connection has
// replaced it in the meantime
func (m *Manager) DetachWSClient(subID string, conn WSConn) {
	m.notifier.DetachWSClient(subID, conn)
}

// UnregisterWSClient removes a WebSocket connection
func (m *Manager) UnregisterWSClient(subID string) {
	m.notifier.UnregisterWSClient(subID)
}

func (m *Manager) processEvents() {
	defer m.wg.Done()

	for event := range m.eventChan {
		m.handleEvent(event)
	}
}

// handleEvent evaluates an event against a snapshot of the enabled subscriptions
func (m *Manager) handleEvent(event Event) {
	m.mu.RLock()
	subs := make([]*Subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		if sub.Enabled {
			subs = append(subs, sub.clone())
		}
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		m.wg.Add(1)
		go func(sub *Subscription) {
			defer m.wg.Done()
			m.evaluateSubscription(event, sub)
		}(sub)
	}
}

// evaluateSubscription checks if an event matches a subscription and fires notification
func (m *Manager) evaluateSubscription(event Event, sub *Subscription) {
	ctx, cancel := context.WithTimeout(m.ctx, 10*time.Second)
	defer cancel()

	matched, results := m.matcher.Match(ctx, event, sub.Pattern)
	if !matched {
		return
	}

	now := time.Now().UTC()
	notification := Notification{
		SubscriptionID:   sub.ID,
		SubscriptionName: sub.Name,
		Event:            event,
		MatchedAt:        now,
		QueryResults:     results,
	}

	m.mu.Lock()
	if s, exists := m.subscriptions[sub.ID]; exists {
		s.LastFired = &now
		s.FireCount++
	}
	m.mu.Unlock()

	m.logger.Debug("subscription fired", zap.String("id", sub.ID), zap.String("event", event.Type))

	if sub.Webhook != "" {
		if err := m.notifier.SendWebhook(m.ctx, sub.Webhook, notification); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("notification not delivered", zap.String("id", sub.ID), zap.Error(err))
		}
	}
	if sub.WebSocket {
		_ = m.notifier.SendWebSocket(sub.ID, notification)
	}
}

// loadSubscriptions loads all subscriptions from storage into memory
func (m *Manager) loadSubscriptions(ctx context.Context) error {
	recs, err := m.records.GetAll(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range recs {
		sub, err := fromRecord(rec)
		if err != nil {
			m.logger.Warn("skipping stored subscription", zap.String("id", rec.Id), zap.Error(err))
			continue
		}
		m.subscriptions[sub.ID] = sub
	}
	return nil
}

func validatePattern(p Pattern) error {
	if p.Cypher == "" {
		return nil
	}
	if err := validateCypher(p.Cypher); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (s *Subscription) clone() *Subscription {
	c := *s
	if s.LastFired != nil {
		t := *s.LastFired
		c.LastFired = &t
	}
	return &c
}

// record is the stored form of a subscription. The pattern is kept as JSON so
// the node stays flat.
type record struct {
	Id          string
	Name        string
	Description string
	Pattern     string
	Webhook     string
	WebSocket   bool
	Enabled     bool
	Created     time.Time
	Modified    time.Time
}

func (*record) TypeName() string { return RecordType }
func (r *record) GetID() string { return r.Id }
func (r *record) SetID(id string) { r.Id = id }

func toRecord(sub *Subscription) (*record, error) {
	pattern, err := json.Marshal(sub.Pattern)
	if err != nil {
		return nil, fmt.Errorf("encoding pattern: %w", err)
	}
	return &record{
		Id:          sub.ID,
		Name:        sub.Name,
		Description: sub.Description,
		Pattern:     string(pattern),
		Webhook:     sub.Webhook,
		WebSocket:   sub.WebSocket,
		Enabled:     sub.Enabled,
		Created:     sub.Created,
		Modified:    sub.Modified,
	}, nil
}

func fromRecord(rec *record) (*Subscription, error) {
	sub := &Subscription{
		ID:          rec.Id,
		Name:        rec.Name,
		Description: rec.Description,
		Webhook:     rec.Webhook,
		WebSocket:   rec.WebSocket,
		Enabled:     rec.Enabled,
		Created:     rec.Created,
		Modified:    rec.Modified,
	}
	if rec.Pattern != "" {
		if err := json.Unmarshal([]byte(rec.Pattern), &sub.Pattern); err != nil {
			return nil, fmt.Errorf("decoding pattern: %w", err)
		}
	}
	return sub, nil
}
