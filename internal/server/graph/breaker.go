package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/systemshift/graphrepo/internal/config"
	"github.com/systemshift/graphrepo/pkg/cypher"
	"github.com/systemshift/graphrepo/pkg/predicate"
)

// ErrUnavailable is returned while the breaker rejects calls.
var ErrUnavailable = errors.New("graph store unavailable")

type breakerExecutor struct {
	next Executor
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker stops calling next once the failure ratio crosses the
// configured threshold, until the breaker timeout elapses.
func WithBreaker(next Executor, cfg config.BreakerConfig, logger *zap.Logger) Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "graph",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
		IsSuccessful: isStoreHealthy,
	})
	return &breakerExecutor{next: next, cb: cb}
}

// isStoreHealthy treats caller mistakes as successes so they never trip the
// breaker.
func isStoreHealthy(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, ErrNotSupported),
		errors.Is(err, ErrConstraintViolation),
		errors.Is(err, cypher.ErrInvalidIdentifier),
		errors.Is(err, predicate.ErrUnsupportedExpression),
		errors.Is(err, context.Canceled):
		return true
	}
	return false
}

func (b *breakerExecutor) Execute(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Execute(ctx, plan)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return nil, err
	}
	res, _ := out.(*cypher.Result)
	return res, nil
}

func (b *breakerExecutor) SupportsNative(e *predicate.Expr) bool {
	return supportsNative(b.next, e)
}

// State reports the breaker state, e.g. "closed" or "open".
func (b *breakerExecutor) State() string {
	return b.cb.State().String()
}
