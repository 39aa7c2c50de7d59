package subscriptions

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuerier struct {
	rows   []map[string]any
	err    error
	params map[string]any
}

func (q *fakeQuerier) Query(ctx context.Context, statement string, params map[string]any) ([]map[string]any, error) {
	q.params = params
	return q.rows, q.err
}

func TestMatchSimple(t *testing.T) {
	created := Event{
		Type:       EventEntityCreated,
		EntityType: "Person",
		Key:        "p1",
		Properties: map[string]any{"Name": "Ann", "Age": 31},
	}
	merged := Event{
		Type:             EventRelationshipMerged,
		EntityType:       "Person",
		TargetType:       "Team",
		RelationshipType: "MEMBER_OF",
		Source:           "p1",
		Target:           "t1",
	}

	tests := []struct {
		name    string
		event   Event
		pattern Pattern
		want    bool
	}{
		{"empty pattern", created, Pattern{}, true},
		{"event type", created, Pattern{EventTypes: []string{EventEntityCreated}}, true},
		{"other event type", created, Pattern{EventTypes: []string{EventEntityDeleted}}, false},
		{"entity type", created, Pattern{EntityTypes: []string{"Person"}}, true},
		{"other entity type", created, Pattern{EntityTypes: []string{"Team"}}, false},
		{"target type", merged, Pattern{EntityTypes: []string{"Team"}}, true},
		{"relationship type", merged, Pattern{RelationshipTypes: []string{"MEMBER_OF"}}, true},
		{"other relationship type", merged, Pattern{RelationshipTypes: []string{"OWNS"}}, false},
		{"relationship type ignores entity events", created, Pattern{RelationshipTypes: []string{"OWNS"}}, true},
		{"property match", created, Pattern{PropertyMatch: map[string]any{"name": "x", "Name": "ann"}}, false},
		{"property match case insensitive", created, Pattern{PropertyMatch: map[string]any{"Name": "ANN"}}, true},
		{"property match numeric", created, Pattern{PropertyMatch: map[string]any{"Age": 31.0}}, true},
		{"property mismatch", created, Pattern{PropertyMatch: map[string]any{"Age": 30}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchSimple(tt.event, tt.pattern))
		})
	}
}

func TestMatchValue(t *testing.T) {
	assert.True(t, matchValue(nil, nil))
	assert.False(t, matchValue("a", nil))
	assert.True(t, matchValue(json.Number("2.5"), 2.5))
	assert.True(t, matchValue(int64(3), 3))
	assert.False(t, matchValue([]any{1}, []any{1}))
	assert.False(t, matchValue(map[string]any{}, "x"))
	assert.False(t, matchValue(true, "true"))
}

func TestValidateCypher(t *testing.T) {
	assert.NoError(t, validateCypher("MATCH (n:Person {Id: $event_key}) RETURN n"))
	assert.NoError(t, validateCypher("MATCH (n:Person) WHERE n.created_at > 0 RETURN n.created_at"))
	assert.NoError(t, validateCypher("MATCH (n) RETURN n.offset_set AS offset"))

	for _, q := range []string{
		"MATCH (n) DETACH DELETE n",
		"MATCH (n) SET n.x = 1 RETURN n",
		"CALL db.labels()",
		"RETURN 1",
		"MATCH (n) create (m) RETURN m",
		"MATCH (n) REMOVE n:Admin RETURN n",
		"MATCHES RETURNING",
	} {
		var verr *CypherValidationError
		assert.ErrorAs(t, validateCypher(q), &verr, q)
	}
}

func TestMatchCypher(t *testing.T) {
	event := Event{Type: EventEntityCreated, EntityType: "Person", Key: "p1"}
	pattern := Pattern{Cypher: "MATCH (n:Person {Id: $event_key}) RETURN n.Name AS name"}

	q := &fakeQuerier{rows: []map[string]any{{"name": "Ann"}}}
	ok, rows := NewMatcher(q, nil).Match(context.Background(), event, pattern)
	require.True(t, ok)
	assert.Equal(t, []map[string]any{{"name": "Ann"}}, rows)
	assert.Equal(t, "p1", q.params["event_key"])
	assert.Equal(t, "Person", q.params["event_entity_type"])

	ok, _ = NewMatcher(&fakeQuerier{}, nil).Match(context.Background(), event, pattern)
	assert.False(t, ok, "no rows")

	ok, _ = NewMatcher(&fakeQuerier{err: errors.New("boom")}, nil).Match(context.Background(), event, pattern)
	assert.False(t, ok)

	ok, _ = NewMatcher(nil, nil).Match(context.Background(), event, pattern)
	assert.False(t, ok, "no querier")

	// Simple criteria short-circuit the query
	q = &fakeQuerier{rows: []map[string]any{{"name": "Ann"}}}
	pattern.EventTypes = []string{EventEntityDeleted}
	ok, _ = NewMatcher(q, nil).Match(context.Background(), event, pattern)
	assert.False(t, ok)
	assert.Nil(t, q.params)
}
