// Package graph executes repository plans against a backing store: Neo4j over
// bolt, or an embedded SQLite database that interprets plans structurally.
// Decorators add logging, circuit breaking, metrics and tracing around either.
package graph

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/systemshift/graphrepo/internal/config"
	"github.com/systemshift/graphrepo/pkg/cypher"
	"github.com/systemshift/graphrepo/pkg/predicate"
)

var (
	// ErrNotSupported is returned for plan shapes a backend cannot run.
	ErrNotSupported = errors.New("not supported")

	// ErrConstraintViolation is returned when a write would break a uniqueness
	// constraint.
	ErrConstraintViolation = errors.New("constraint violation")
)

// IsNotSupported checks if an error is a not supported error
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}

// Executor runs one plan. It matches repository.Executor.
type Executor interface {
	Execute(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error)
}

// nativeFilterer matches repository.NativeFilterer.
type nativeFilterer interface {
	SupportsNative(e *predicate.Expr) bool
}

func supportsNative(next Executor, e *predicate.Expr) bool {
	nf, ok := next.(nativeFilterer)
	return ok && nf.SupportsNative(e)
}

// Backend is an executor owning a connection.
type Backend interface {
	Executor
	Close(ctx context.Context) error
}

// Store is the decorated executor handed to repositories.
type Store struct {
	Executor
	Metrics *Metrics

	backend Backend
}

// SupportsNative forwards the capability probe of the backend.
func (s *Store) SupportsNative(e *predicate.Expr) bool {
	return supportsNative(s.Executor, e)
}

// Use adds an outermost decorator. It must be called before the store is
// shared.
func (s *Store) Use(wrap func(Executor) Executor) {
	s.Executor = wrap(s.Executor)
}

// Close closes the backend.
func (s *Store) Close(ctx context.Context) error {
	return s.backend.Close(ctx)
}

// Open connects the configured backend and wraps it in the standard
// decorators: logging, then the circuit breaker when enabled, then metrics and
// tracing.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Store, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case config.BackendNeo4j:
		backend, err = NewNeo4j(ctx, cfg.Neo4j)
	case config.BackendSQLite:
		backend, err = NewSQLite(ctx, cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("%w: backend %q", ErrNotSupported, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("graph store opened", zap.String("backend", cfg.Backend))
	return Wrap(backend, cfg.Breaker, logger), nil
}

// Wrap decorates an already open backend.
func Wrap(backend Backend, breaker config.BreakerConfig, logger *zap.Logger) *Store {
	var exec Executor = Logged(backend, logger)
	if breaker.Enabled {
		exec = WithBreaker(exec, breaker, logger)
	}
	metrics := NewMetrics()
	exec = Traced(metrics.Metered(exec), nil)

	return &Store{Executor: exec, Metrics: metrics, backend: backend}
}
