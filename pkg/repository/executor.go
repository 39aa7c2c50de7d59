package repository

import (
	"context"

	"github.com/systemshift/graphrepo/pkg/cypher"
	"github.com/systemshift/graphrepo/pkg/predicate"
)

// Executor runs one plan against a store. Implementations own connections,
// timeouts and retries, and must be safe for concurrent use.
type Executor interface {
	Execute(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error)
}

// NativeFilterer is implemented by executors that can evaluate some typed
// predicates themselves. Predicates it rejects are translated to text first.
type NativeFilterer interface {
	SupportsNative(e *predicate.Expr) bool
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
	return f(ctx, plan)
}
