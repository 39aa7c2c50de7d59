package cypher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/graphrepo/pkg/predicate"
)

func TestPatterns(t *testing.T) {
	assert.Equal(t, "(x:Person)", NodeOf(NodeAlias, "Person").String())
	assert.Equal(t, "(x:Person:Admin)", NodeOf(NodeAlias, "Person", "Admin").String())

	path := PathOf("Person", "MEMBER_OF", "Team")
	assert.Equal(t, "(x:Person)-[r:MEMBER_OF]->(y:Team)", path.String())
	assert.Equal(t, "(x)-[r:MEMBER_OF]->(y)", path.Arc())
}

func TestRenderPlans(t *testing.T) {
	path := PathOf("Person", "MEMBER_OF", "Team")
	props := map[string]any{"Id": "p1"}

	tests := []struct {
		name       string
		plan       *Plan
		want       string
		wantParams map[string]any
	}{
		{
			name:       "create",
			plan:       Create("Person", props),
			want:       "CREATE (x:Person $entity)",
			wantParams: map[string]any{"entity": props},
		},
		{
			name:       "replace",
			plan:       Replace("Person", "p1", props),
			want:       "MATCH (x:Person) WHERE toString(x.Id) = $xId SET x = $entity",
			wantParams: map[string]any{"entity": props, "xId": "p1"},
		},
		{
			name:       "detach delete",
			plan:       DetachDelete("Person", "p1"),
			want:       "MATCH (x:Person) WHERE toString(x.Id) = $xId DETACH DELETE x",
			wantParams: map[string]any{"xId": "p1"},
		},
		{
			name:       "read all",
			plan:       Read(NodeOf(NodeAlias, "Person"), Filter{}, nil),
			want:       "MATCH (x:Person) RETURN x",
			wantParams: map[string]any{},
		},
		{
			name:       "read page",
			plan:       Read(NodeOf(NodeAlias, "Person"), Filter{}, &Page{Limit: 10, Skip: 5}),
			want:       "MATCH (x:Person) RETURN x SKIP 5 LIMIT 10",
			wantParams: map[string]any{},
		},
		{
			name:       "read labeled with text filter",
			plan:       Read(NodeOf(NodeAlias, "Person", "Admin"), TextFilter(`(x.Age > 30)`), &Page{Limit: 3}),
			want:       "MATCH (x:Person:Admin) WHERE (x.Age > 30) RETURN x LIMIT 3",
			wantParams: map[string]any{},
		},
		{
			name:       "read by id",
			plan:       ReadByID("Person", "42"),
			want:       "MATCH (x:Person) WHERE toString(x.Id) = $xId RETURN x LIMIT 1",
			wantParams: map[string]any{"xId": "42"},
		},
		{
			name:       "labels",
			plan:       Labels("Person", "p1"),
			want:       "MATCH (x:Person) WHERE toString(x.Id) = $xId RETURN labels(x) LIMIT 1",
			wantParams: map[string]any{"xId": "p1"},
		},
		{
			name:       "set label",
			plan:       SetLabel("Person", "p1", "Admin"),
			want:       "MATCH (x:Person) WHERE toString(x.Id) = $xId SET x:Admin",
			wantParams: map[string]any{"xId": "p1"},
		},
		{
			name:       "remove label",
			plan:       RemoveLabel("Person", "p1", "Admin"),
			want:       "MATCH (x:Person) WHERE toString(x.Id) = $xId REMOVE x:Admin",
			wantParams: map[string]any{"xId": "p1"},
		},
		{
			name:       "merge",
			plan:       Merge(path, "p1", "t1", nil),
			want:       "MATCH (x:Person), (y:Team) WHERE toString(x.Id) = $xId AND toString(y.Id) = $yId MERGE (x)-[r:MEMBER_OF]->(y)",
			wantParams: map[string]any{"xId": "p1", "yId": "t1"},
		},
		{
			name:       "merge with relation",
			plan:       Merge(path, "p1", "t1", map[string]any{"Since": 2020}),
			want:       "MATCH (x:Person), (y:Team) WHERE toString(x.Id) = $xId AND toString(y.Id) = $yId MERGE (x)-[r:MEMBER_OF]->(y) SET r += $relation",
			wantParams: map[string]any{"xId": "p1", "yId": "t1", "relation": map[string]any{"Since": 2020}},
		},
		{
			name:       "count path",
			plan:       CountPath(path, "p1", "t1"),
			want:       "MATCH (x:Person)-[r:MEMBER_OF]->(y:Team) WHERE toString(x.Id) = $xId AND toString(y.Id) = $yId RETURN count(r)",
			wantParams: map[string]any{"xId": "p1", "yId": "t1"},
		},
		{
			name:       "delete path",
			plan:       DeletePath(path, "p1", "t1"),
			want:       "MATCH (x:Person)-[r:MEMBER_OF]->(y:Team) WHERE toString(x.Id) = $xId AND toString(y.Id) = $yId DELETE r",
			wantParams: map[string]any{"xId": "p1", "yId": "t1"},
		},
		{
			name:       "related",
			plan:       Related(path, "p1", Filter{}, nil, false),
			want:       "OPTIONAL MATCH (x:Person)-[r:MEMBER_OF]->(y:Team) WHERE toString(x.Id) = $xId RETURN collect(y)",
			wantParams: map[string]any{"xId": "p1"},
		},
		{
			name:       "related count with relationship filter",
			plan:       Related(path, "p1", Filter{Alias: RelationshipAlias, Text: "r.Since > 2020"}, nil, true),
			want:       "OPTIONAL MATCH (x:Person)-[r:MEMBER_OF]->(y:Team) WHERE toString(x.Id) = $xId AND (r.Since > 2020) RETURN count(y)",
			wantParams: map[string]any{"xId": "p1"},
		},
		{
			name:       "constraint",
			plan:       Constraint("Person"),
			want:       "CREATE CONSTRAINT IF NOT EXISTS FOR (x:Person) REQUIRE x.Id IS UNIQUE",
			wantParams: map[string]any{},
		},
		{
			name:       "default index",
			plan:       Index("Person"),
			want:       "CREATE INDEX IF NOT EXISTS FOR (x:Person) ON (x.Id)",
			wantParams: map[string]any{},
		},
		{
			name:       "composite index",
			plan:       Index("Person", "Name", "Age"),
			want:       "CREATE INDEX IF NOT EXISTS FOR (x:Person) ON (x.Name, x.Age)",
			wantParams: map[string]any{},
		},
		{
			name:       "raw",
			plan:       Raw("MATCH (n) RETURN count(n) AS total", map[string]any{"a": 1}),
			want:       "MATCH (n) RETURN count(n) AS total",
			wantParams: map[string]any{"a": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.plan.Render()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Text)
			assert.Equal(t, tt.wantParams, got.Params)
		})
	}
}

func TestRenderNativeFilterBindsParameters(t *testing.T) {
	where := predicate.Prop("Name").StartsWith("A").And(predicate.Prop("Age").Gt(30))
	plan := Read(NodeOf(NodeAlias, "Person"), NativeFilter(NodeAlias, where), nil)

	got, err := plan.Render()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (x:Person) WHERE ((x.Name STARTS WITH $p0) AND (x.Age > $p1)) RETURN x", got.Text)
	assert.Equal(t, map[string]any{"p0": "A", "p1": 30}, got.Params)
	assert.Nil(t, plan.Params, "rendering must not touch the plan")
}

func TestRenderKeepsEnclosedFilters(t *testing.T) {
	path := PathOf("Person", "MEMBER_OF", "Team")
	filter := Filter{Alias: RelationshipAlias, Text: "((r.A = 1) OR (r.B = 2))"}

	got, err := Related(path, "p1", filter, nil, false).Render()
	require.NoError(t, err)
	assert.Contains(t, got.Text, "AND ((r.A = 1) OR (r.B = 2)) RETURN")

	filter.Text = "(r.A = 1) OR (r.B = 2)"
	got, err = Related(path, "p1", filter, nil, false).Render()
	require.NoError(t, err)
	assert.Contains(t, got.Text, "AND ((r.A = 1) OR (r.B = 2)) RETURN")
}

func TestRenderRejectsUnsafeIdentifiers(t *testing.T) {
	tests := []struct {
		name string
		plan *Plan
	}{
		{"label", SetLabel("Person", "p1", "Admin) DETACH DELETE x //")},
		{"type", Read(NodeOf(NodeAlias, "Per son"), Filter{}, nil)},
		{"relationship", CountPath(PathOf("Person", "KNOWS]->()", "Person"), "a", "b")},
		{"index property", Index("Person", "Name; DROP")},
		{"empty label", RemoveLabel("Person", "p1", "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.plan.Render()
			assert.ErrorIs(t, err, ErrInvalidIdentifier)
		})
	}
}

func TestRenderRawRequiresStatement(t *testing.T) {
	_, err := Raw("  ", nil).Render()
	assert.Error(t, err)
}

func TestPlanString(t *testing.T) {
	assert.Equal(t, "MATCH (x:Person) RETURN x", Read(NodeOf(NodeAlias, "Person"), Filter{}, nil).String())
	assert.Contains(t, SetLabel("Person", "1", "bad label").String(), "invalid identifier")
}

func TestEnclosed(t *testing.T) {
	assert.True(t, enclosed("(a)"))
	assert.True(t, enclosed("((a) AND (b))"))
	assert.False(t, enclosed("(a) AND (b)"))
	assert.False(t, enclosed("a"))
	assert.False(t, enclosed("()("))
}
