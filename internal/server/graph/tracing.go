package graph

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/systemshift/graphrepo/pkg/cypher"
	"github.com/systemshift/graphrepo/pkg/predicate"
)

const tracerName = "github.com/systemshift/graphrepo/internal/server/graph"

type tracedExecutor struct {
	next   Executor
	tracer trace.Tracer
}

// Traced opens a span per plan. A nil tracer uses the global provider.
func Traced(next Executor, tracer trace.Tracer) Executor {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &tracedExecutor{next: next, tracer: tracer}
}

func (t *tracedExecutor) Execute(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
	ctx, span := t.tracer.Start(ctx, "graph."+plan.Action.String(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("graph.action", plan.Action.String()),
			attribute.String("graph.label", plan.Subject().Type()),
			attribute.Bool("graph.native_filter", plan.Filter.Native != nil),
		),
	)
	defer span.End()

	res, err := t.next.Execute(ctx, plan)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if res != nil {
		span.SetAttributes(attribute.Int("graph.records", len(res.Records)))
	}
	return res, nil
}

func (t *tracedExecutor) SupportsNative(e *predicate.Expr) bool {
	return supportsNative(t.next, e)
}
