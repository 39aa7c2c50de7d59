package graph

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/systemshift/graphrepo/pkg/cypher"
	"github.com/systemshift/graphrepo/pkg/predicate"
)

type loggedExecutor struct {
	next   Executor
	logger *zap.Logger
}

// Logged logs every plan at Debug and failures at Warn.
func Logged(next Executor, logger *zap.Logger) Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &loggedExecutor{next: next, logger: logger.Named("graph")}
}

func (l *loggedExecutor) Execute(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
	start := time.Now()
	res, err := l.next.Execute(ctx, plan)
	fields := []zap.Field{
		zap.Stringer("action", plan.Action),
		zap.String("label", plan.Subject().Type()),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		l.logger.Warn("plan failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	if ce := l.logger.Check(zap.DebugLevel, "plan executed"); ce != nil {
		if p, ok := plan.Params[cypher.EntityParam].(map[string]any); ok {
			fields = append(fields, zap.String("entity", cypher.ObjectLiteral(p)))
		}
		if res != nil {
			fields = append(fields, zap.Int("records", len(res.Records)), zap.Int64("count", res.Count))
		}
		ce.Write(fields...)
	}
	return res, nil
}

func (l *loggedExecutor) SupportsNative(e *predicate.Expr) bool {
	return supportsNative(l.next, e)
}
