// Package subscriptions delivers change events from the graph store to
// standing subscriptions over webhooks and WebSockets.
package subscriptions

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for unknown subscription ids.
	ErrNotFound = errors.New("subscription not found")

	// ErrInvalid is returned for malformed subscription requests.
	ErrInvalid = errors.New("invalid subscription")
)

// Event represents a write to the graph that can trigger subscriptions
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // entity.created, entity.updated, entity.deleted, ...
	Timestamp time.Time `json:"timestamp"`

	// Entity event fields
	EntityType string `json:"entity_type,omitempty"`
	Key        string `json:"key,omitempty"`
	Label      string `json:"label,omitempty"`

	// Relationship event fields
	Source           string `json:"source,omitempty"`
	Target           string `json:"target,omitempty"`
	TargetType       string `json:"target_type,omitempty"`
	RelationshipType string `json:"relationship_type,omitempty"`

	// Properties written by the event, if any
	Properties map[string]any `json:"properties,omitempty"`
}

// Event type constants
const (
	EventEntityCreated       = "entity.created"
	EventEntityUpdated       = "entity.updated"
	EventEntityDeleted       = "entity.deleted"
	EventLabelAdded          = "label.added"
	EventLabelRemoved        = "label.removed"
	EventRelationshipMerged  = "relationship.merged"
	EventRelationshipDeleted = "relationship.deleted"
)

// Pattern defines what events a subscription matches. Empty fields match
// everything.
type Pattern struct {
	// Simple matching (evaluated in Go, fast)
	EventTypes        []string       `json:"event_types,omitempty"`
	EntityTypes       []string       `json:"entity_types,omitempty"`
	RelationshipTypes []string       `json:"relationship_types,omitempty"`
	PropertyMatch     map[string]any `json:"property_match,omitempty"`

	// Advanced matching, a read-only Cypher query that must return rows.
	// Needs a backend that runs Cypher.
	Cypher string `json:"cypher,omitempty"`
}

// Subscription represents a standing query that fires when patterns match
type Subscription struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// What to match
	Pattern Pattern `json:"pattern"`

	// How to notify
	Webhook   string `json:"webhook,omitempty"`   // URL to POST notifications
	WebSocket bool   `json:"websocket,omitempty"` // Push via WebSocket connection

	// State
	Enabled   bool       `json:"enabled"`
	Created   time.Time  `json:"created"`
	Modified  time.Time  `json:"modified"`
	LastFired *time.Time `json:"last_fired,omitempty"`
	FireCount int        `json:"fire_count"`
}

// Notification is sent when a subscription pattern matches
type Notification struct {
	SubscriptionID   string    `json:"subscription_id"`
	SubscriptionName string    `json:"subscription_name"`
	Event            Event     `json:"event"`
	MatchedAt        time.Time `json:"matched_at"`

	// For Cypher patterns, include query results
	QueryResults []map[string]any `json:"query_results,omitempty"`
}

// CreateSubscriptionRequest is the API request to create a subscription
type CreateSubscriptionRequest struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Description string  `json:"description,omitempty"`
	Pattern     Pattern `json:"pattern"`
	Webhook     string  `json:"webhook,omitempty" validate:"omitempty,url"`
	WebSocket   bool    `json:"websocket,omitempty"`
}

// UpdateSubscriptionRequest is the API request to update a subscription
type UpdateSubscriptionRequest struct {
	Name        *string  `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string  `json:"description,omitempty"`
	Pattern     *Pattern `json:"pattern,omitempty"`
	Webhook     *string  `json:"webhook,omitempty" validate:"omitempty,url"`
	WebSocket   *bool    `json:"websocket,omitempty"`
	Enabled     *bool    `json:"enabled,omitempty"`
}

// SubscriptionResponse is the API response for subscription operations
type SubscriptionResponse struct {
	Subscription *Subscription `json:"subscription,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// ListSubscriptionsResponse is the API response for listing subscriptions
type ListSubscriptionsResponse struct {
	Subscriptions []*Subscription `json:"subscriptions"`
	Count         int             `json:"count"`
}
