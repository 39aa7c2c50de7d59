package subscriptions

import (
	"context"
	"encoding/json"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// Querier runs read-only Cypher for Cypher patterns.
type Querier interface {
	Query(ctx context.Context, statement string, params map[string]any) ([]map[string]any, error)
}

// Matcher evaluates events against subscription patterns
type Matcher struct {
	querier Querier
	logger  *zap.Logger
}

// NewMatcher creates a new pattern matcher
func NewMatcher(querier Querier, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{querier: querier, logger: logger}
}

// Match evaluates if an event matches a subscription pattern
// Returns (matched, cypherResults)
func (m *Matcher) Match(ctx context.Context, event Event, pattern Pattern) (bool, []map[string]any) {
	// First check simple patterns (fast, in Go)
	if !matchSimple(event, pattern) {
		return false, nil
	}

	if pattern.Cypher == "" {
		return true, nil
	}

	results, err := m.matchCypher(ctx, event, pattern.Cypher)
	if err != nil {
		m.logger.Warn("cypher pattern match failed", zap.String("event", event.ID), zap.Error(err))
		return false, nil
	}
	// Cypher must return at least one result to match
	if len(results) == 0 {
		return false, nil
	}
	return true, results
}

// matchSimple evaluates simple pattern criteria (in Go, no database)
func matchSimple(event Event, pattern Pattern) bool {
	if len(pattern.EventTypes) > 0 && !slices.Contains(pattern.EventTypes, event.Type) {
		return false
	}

	// Entity types also match the target end of relationship events
	if len(pattern.EntityTypes) > 0 &&
		!slices.Contains(pattern.EntityTypes, event.EntityType) &&
		!(event.TargetType != "" && slices.Contains(pattern.EntityTypes, event.TargetType)) {
		return false
	}

	// Relationship types only constrain relationship events
	if len(pattern.RelationshipTypes) > 0 && event.RelationshipType != "" &&
		!slices.Contains(pattern.RelationshipTypes, event.RelationshipType) {
		return false
	}

	for key, expected := range pattern.PropertyMatch {
		actual, exists := event.Properties[key]
		if !exists || !matchValue(expected, actual) {
			return false
		}
	}

	return true
}

// matchCypher evaluates a Cypher query pattern
func (m *Matcher) matchCypher(ctx context.Context, event Event, cypher string) ([]map[string]any, error) {
	if err := validateCypher(cypher); err != nil {
		return nil, err
	}
	if m.querier == nil {
		return nil, &CypherValidationError{Message: "no Cypher backend configured"}
	}

	params := map[string]any{
		"event_key":               event.Key,
		"event_entity_type":       event.EntityType,
		"event_source":            event.Source,
		"event_target":            event.Target,
		"event_relationship_type": event.RelationshipType,
	}
	return m.querier.Query(ctx, cypher, params)
}

// matchValue compares expected and actual values with type flexibility
func matchValue(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == actual
	}
	// Direct equality; lists and maps are never equal
	if reflect.TypeOf(expected).Comparable() && reflect.TypeOf(actual).Comparable() && expected == actual {
		return true
	}

	// String comparison (case-insensitive)
	expectedStr, ok1 := expected.(string)
	actualStr, ok2 := actual.(string)
	if ok1 && ok2 {
		return strings.EqualFold(expectedStr, actualStr)
	}

	// Numeric comparison with type coercion
	expectedNum, ok1 := toFloat64(expected)
	actualNum, ok2 := toFloat64(actual)
	if ok1 && ok2 {
		return expectedNum == actualNum
	}

	return false
}

// toFloat64 converts various numeric types to float64
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

var (
	writeKeywords = regexp.MustCompile(`\b(CREATE|DELETE|SET|REMOVE|MERGE|DETACH|DROP|CALL)\b`)
	matchKeyword  = regexp.MustCompile(`\bMATCH\b`)
	returnKeyword = regexp.MustCompile(`\bRETURN\b`)
)

// validateCypher performs basic safety checks on Cypher queries. Keywords are
// matched as whole words, so names like created_at or OFFSET pass.
func validateCypher(cypher string) error {
	upper := strings.ToUpper(cypher)

	// Block write operations
	if kw := writeKeywords.FindString(upper); kw != "" {
		return &CypherValidationError{
			Message: "Cypher query contains forbidden keyword: " + kw,
		}
	}

	// Must be a read query
	if !matchKeyword.MatchString(upper) || !returnKeyword.MatchString(upper) {
		return &CypherValidationError{
			Message: "Cypher query must contain MATCH and RETURN",
		}
	}

	return nil
}

// CypherValidationError indicates a Cypher query failed validation
type CypherValidationError struct {
	Message string
}

func (e *CypherValidationError) Error() string {
	return e.Message
}
