package repository

import (
	"go.uber.org/zap"

	"github.com/systemshift/graphrepo/pkg/cypher"
	"github.com/systemshift/graphrepo/pkg/predicate"
)

// Option configures a Repository.
type Option func(*settings)

type settings struct {
	logger   *zap.Logger
	typeName string
}

// WithLogger sets the logger operations are traced to.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTypeName overrides the node label taken from the entity's TypeName.
func WithTypeName(name string) Option {
	return func(s *settings) {
		s.typeName = name
	}
}

// QueryOption narrows a read.
type QueryOption func(*query)

type query struct {
	page     *cypher.Page
	label    string
	relation *predicate.Expr
}

func newQuery(opts []QueryOption) query {
	var q query
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// Paged limits an entity read to limit results after skipping skip. Zero
// values are not emitted.
func Paged(limit, skip int) QueryOption {
	return func(q *query) {
		if limit > 0 || skip > 0 {
			q.page = &cypher.Page{Limit: limit, Skip: skip}
		}
	}
}

// WithLabel restricts an entity read to nodes that also carry label.
func WithLabel(label string) QueryOption {
	return func(q *query) {
		q.label = label
	}
}

// Where filters related entities by the properties of the relationship that
// reaches them, aliased r. Only GetRelated and GetRelatedCount use it.
func Where(expr *predicate.Expr) QueryOption {
	return func(q *query) {
		q.relation = expr
	}
}
