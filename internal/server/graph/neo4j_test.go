package graph

import (
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/graphrepo/pkg/predicate"
)

func TestNeo4jSupportsNative(t *testing.T) {
	exec := NewNeo4jWithDriver(nil, "")

	assert.True(t, exec.SupportsNative(predicate.Prop("Name").StartsWith("A").And(predicate.Prop("Age").Gt(3))))
	assert.False(t, exec.SupportsNative(predicate.Prop("Name").ToLower().Eq("a")))
	assert.False(t, exec.SupportsNative(predicate.Prop("Name").Equals("a")))
	assert.False(t, exec.SupportsNative(predicate.Call(predicate.Prop("Name"), "Trim")))
}

func TestNodeProps(t *testing.T) {
	props, err := nodeProps(neo4j.Node{Labels: []string{"Person"}, Props: map[string]any{"Id": "1"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Id": "1"}, props)

	props, err = nodeProps(map[string]any{"Id": "2"})
	require.NoError(t, err)
	assert.Equal(t, "2", props["Id"])

	_, err = nodeProps("x")
	assert.Error(t, err)
}
