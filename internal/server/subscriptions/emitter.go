package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/systemshift/graphrepo/pkg/cypher"
	"github.com/systemshift/graphrepo/pkg/predicate"
	"github.com/systemshift/graphrepo/pkg/repository"
)

// Emitting decorates next so every successful write is reported to emit.
func Emitting(next repository.Executor, emit EventEmitter) repository.Executor {
	return &emittingExecutor{next: next, emit: emit}
}

type emittingExecutor struct {
	next repository.Executor
	emit EventEmitter
}

func (e *emittingExecutor) Execute(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
	res, err := e.next.Execute(ctx, plan)
	if err != nil {
		return nil, err
	}
	if event, ok := EventFromPlan(plan); ok {
		e.emit(event)
	}
	return res, nil
}

// SupportsNative forwards the capability probe.
func (e *emittingExecutor) SupportsNative(expr *predicate.Expr) bool {
	nf, ok := e.next.(repository.NativeFilterer)
	return ok && nf.SupportsNative(expr)
}

// EventFromPlan describes the write plan performs. Reads, schema changes and
// raw statements yield no event.
func EventFromPlan(plan *cypher.Plan) (Event, bool) {
	event := Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
	}

	switch plan.Action {
	case cypher.ActionCreate:
		event.Type = EventEntityCreated
		event.Properties = entityProps(plan)
		if id, ok := event.Properties[cypher.IDProperty]; ok && id != nil {
			event.Key = fmt.Sprint(id)
		}
	case cypher.ActionReplace:
		event.Type = EventEntityUpdated
		event.Properties = entityProps(plan)
	case cypher.ActionDetachDelete:
		event.Type = EventEntityDeleted
	case cypher.ActionSetLabel:
		event.Type = EventLabelAdded
		event.Label = plan.Label
	case cypher.ActionRemoveLabel:
		event.Type = EventLabelRemoved
		event.Label = plan.Label
	case cypher.ActionMerge, cypher.ActionDeleteRelationship:
		if plan.Path == nil || len(plan.Keys) < 2 {
			return Event{}, false
		}
		event.Type = EventRelationshipMerged
		if plan.Action == cypher.ActionDeleteRelationship {
			event.Type = EventRelationshipDeleted
		}
		event.EntityType = plan.Path.From.Type()
		event.TargetType = plan.Path.To.Type()
		event.RelationshipType = plan.Path.Type
		event.Source = plan.Keys[0].Key
		event.Target = plan.Keys[1].Key
		if props, ok := plan.Params[cypher.RelationParam].(map[string]any); ok {
			event.Properties = props
		}
		return event, true
	default:
		return Event{}, false
	}

	event.EntityType = plan.Subject().Type()
	if event.Key == "" && len(plan.Keys) > 0 {
		event.Key = plan.Keys[0].Key
	}
	return event, true
}

func entityProps(plan *cypher.Plan) map[string]any {
	props, _ := plan.Params[cypher.EntityParam].(map[string]any)
	return props
}
