package subscriptions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/graphrepo/pkg/cypher"
	"github.com/systemshift/graphrepo/pkg/predicate"
	"github.com/systemshift/graphrepo/pkg/repository"
)

func TestEventFromPlan(t *testing.T) {
	path := cypher.PathOf("Person", "MEMBER_OF", "Team")

	tests := []struct {
		name string
		plan *cypher.Plan
		want Event
	}{
		{
			name: "create",
			plan: cypher.Create("Person", map[string]any{"Id": "p1", "Name": "Ann"}),
			want: Event{Type: EventEntityCreated, EntityType: "Person", Key: "p1", Properties: map[string]any{"Id": "p1", "Name": "Ann"}},
		},
		{
			name: "create with numeric key",
			plan: cypher.Create("Counter", map[string]any{"Id": 7}),
			want: Event{Type: EventEntityCreated, EntityType: "Counter", Key: "7", Properties: map[string]any{"Id": 7}},
		},
		{
			name: "replace",
			plan: cypher.Replace("Person", "p1", map[string]any{"Id": "p1", "Name": "Bo"}),
			want: Event{Type: EventEntityUpdated, EntityType: "Person", Key: "p1", Properties: map[string]any{"Id": "p1", "Name": "Bo"}},
		},
		{
			name: "delete",
			plan: cypher.DetachDelete("Person", "p1"),
			want: Event{Type: EventEntityDeleted, EntityType: "Person", Key: "p1"},
		},
		{
			name: "set label",
			plan: cypher.SetLabel("Person", "p1", "Admin"),
			want: Event{Type: EventLabelAdded, EntityType: "Person", Key: "p1", Label: "Admin"},
		},
		{
			name: "remove label",
			plan: cypher.RemoveLabel("Person", "p1", "Admin"),
			want: Event{Type: EventLabelRemoved, EntityType: "Person", Key: "p1", Label: "Admin"},
		},
		{
			name: "merge",
			plan: cypher.Merge(path, "p1", "t1", map[string]any{"Role": "lead"}),
			want: Event{
				Type: EventRelationshipMerged, EntityType: "Person", TargetType: "Team",
				RelationshipType: "MEMBER_OF", Source: "p1", Target: "t1",
				Properties: map[string]any{"Role": "lead"},
			},
		},
		{
			name: "delete relationship",
			plan: cypher.DeletePath(path, "p1", "t1"),
			want: Event{
				Type: EventRelationshipDeleted, EntityType: "Person", TargetType: "Team",
				RelationshipType: "MEMBER_OF", Source: "p1", Target: "t1",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EventFromPlan(tt.plan)
			require.True(t, ok)
			assert.NotEmpty(t, got.ID)
			assert.False(t, got.Timestamp.IsZero())
			got.ID, got.Timestamp = "", tt.want.Timestamp
			assert.Equal(t, tt.want, got)
		})
	}

	for _, plan := range []*cypher.Plan{
		cypher.ReadByID("Person", "p1"),
		cypher.Constraint("Person"),
		cypher.Index("Person"),
		cypher.Raw("MATCH (n) RETURN n", nil),
	} {
		_, ok := EventFromPlan(plan)
		assert.False(t, ok, plan.Action.String())
	}
}

type nativeExecutor struct {
	repository.ExecutorFunc
}

func (nativeExecutor) SupportsNative(e *predicate.Expr) bool { return true }

func TestEmitting(t *testing.T) {
	var events []Event
	fail := false
	next := nativeExecutor{repository.ExecutorFunc(func(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
		if fail {
			return nil, errors.New("write failed")
		}
		return &cypher.Result{Count: 1}, nil
	})}
	exec := Emitting(next, func(e Event) { events = append(events, e) })
	ctx := context.Background()

	res, err := exec.Execute(ctx, cypher.Create("Person", map[string]any{"Id": "p1"}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Count)
	require.Len(t, events, 1)
	assert.Equal(t, EventEntityCreated, events[0].Type)

	_, err = exec.Execute(ctx, cypher.ReadByID("Person", "p1"))
	require.NoError(t, err)
	assert.Len(t, events, 1, "reads emit nothing")

	fail = true
	_, err = exec.Execute(ctx, cypher.DetachDelete("Person", "p1"))
	require.Error(t, err)
	assert.Len(t, events, 1, "failed writes emit nothing")

	nf, ok := exec.(repository.NativeFilterer)
	require.True(t, ok)
	assert.True(t, nf.SupportsNative(predicate.Const(true)))

	plain := Emitting(repository.ExecutorFunc(next.ExecutorFunc), func(Event) {})
	assert.False(t, plain.(repository.NativeFilterer).SupportsNative(predicate.Const(true)))
}
