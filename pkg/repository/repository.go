// Package repository maps typed entities onto nodes and relationships of a
// property-graph store. A Repository is bound to one entity type and one key
// type; it builds a cypher.Plan per call and hands it to an Executor.
package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/systemshift/graphrepo/pkg/cypher"
	"github.com/systemshift/graphrepo/pkg/predicate"
)

// Entity is implemented by stored types, normally as pointer methods.
// TypeName must not dereference its receiver: it is called on the zero value.
type Entity[K Key] interface {
	comparable
	TypeName() string
	GetID() K
	SetID(K)
}

// Repository provides CRUD, label, relationship and schema operations for E.
// It holds no mutable state and is safe for concurrent use.
type Repository[E Entity[K], K Key] struct {
	exec     Executor
	typeName string
	kind     KeyKind
	logger   *zap.Logger
}

// New binds a repository to exec. The node label defaults to E's TypeName.
func New[E Entity[K], K Key](exec Executor, opts ...Option) *Repository[E, K] {
	s := settings{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&s)
	}
	if s.typeName == "" {
		var zero E
		s.typeName = zero.TypeName()
	}
	return &Repository[E, K]{
		exec:     exec,
		typeName: s.typeName,
		kind:     KindOf[K](),
		logger:   s.logger.With(zap.String("type", s.typeName)),
	}
}

// TypeName returns the label every node of this repository carries.
func (r *Repository[E, K]) TypeName() string { return r.typeName }

// KeyKind returns the kind of K.
func (r *Repository[E, K]) KeyKind() KeyKind { return r.kind }

// Add inserts e. A UUID or string key left unset is generated and written back
// first; numeric keys must be supplied.
func (r *Repository[E, K]) Add(ctx context.Context, e E) (E, error) {
	var zero E
	if e == zero {
		return zero, fmt.Errorf("%w: nil %s", ErrMissingIdentity, r.typeName)
	}
	if IsZeroKey(e.GetID()) {
		id, err := NewKey[K]()
		if err != nil {
			return zero, err
		}
		e.SetID(id)
	}

	props, err := cypher.Properties(e)
	if err != nil {
		return zero, err
	}
	if _, err := r.execute(ctx, cypher.Create(r.typeName, props)); err != nil {
		return zero, err
	}
	return e, nil
}

// Update replaces every stored property of e.
func (r *Repository[E, K]) Update(ctx context.Context, e E) (E, error) {
	var zero E
	if e == zero || IsZeroKey(e.GetID()) {
		return zero, fmt.Errorf("%w: update %s", ErrMissingIdentity, r.typeName)
	}

	props, err := cypher.Properties(e)
	if err != nil {
		return zero, err
	}
	if _, err := r.execute(ctx, cypher.Replace(r.typeName, KeyString(e.GetID()), props)); err != nil {
		return zero, err
	}
	return e, nil
}

// Delete removes e and every relationship touching it. The zero entity is
// ignored.
func (r *Repository[E, K]) Delete(ctx context.Context, e E) error {
	var zero E
	if e == zero {
		return nil
	}
	if IsZeroKey(e.GetID()) {
		return fmt.Errorf("%w: delete %s", ErrMissingIdentity, r.typeName)
	}
	_, err := r.execute(ctx, cypher.DetachDelete(r.typeName, KeyString(e.GetID())))
	return err
}

// GetByID returns the entity keyed by id. A missing node is reported with
// false, not an error. When several nodes share the key the first one wins.
func (r *Repository[E, K]) GetByID(ctx context.Context, id K) (E, bool, error) {
	var zero E
	res, err := r.execute(ctx, cypher.ReadByID(r.typeName, KeyString(id)))
	if err != nil {
		return zero, false, err
	}
	if len(res.Records) == 0 {
		return zero, false, nil
	}
	e, err := cypher.Decode[E](res.Records[0])
	if err != nil {
		return zero, false, err
	}
	return e, true, nil
}

// Get returns one page of entities in store order.
func (r *Repository[E, K]) Get(ctx context.Context, limit, skip int) ([]E, error) {
	return r.GetAll(ctx, Paged(limit, skip))
}

// GetAll returns every entity, optionally narrowed by WithLabel and Paged.
func (r *Repository[E, K]) GetAll(ctx context.Context, opts ...QueryOption) ([]E, error) {
	return r.read(ctx, cypher.Filter{}, newQuery(opts))
}

// Find returns the entities matching expr. The predicate goes to the executor
// untouched when it reports native support for it, and is translated to Cypher
// text otherwise.
func (r *Repository[E, K]) Find(ctx context.Context, expr *predicate.Expr, opts ...QueryOption) ([]E, error) {
	filter, err := r.filter(cypher.NodeAlias, expr)
	if err != nil {
		return nil, err
	}
	return r.read(ctx, filter, newQuery(opts))
}

// FindRaw returns the entities matching a caller-written filter over x.
func (r *Repository[E, K]) FindRaw(ctx context.Context, where string, opts ...QueryOption) ([]E, error) {
	return r.read(ctx, cypher.TextFilter(where), newQuery(opts))
}

func (r *Repository[E, K]) read(ctx context.Context, filter cypher.Filter, q query) ([]E, error) {
	var labels []string
	if q.label != "" {
		labels = append(labels, q.label)
	}
	node := cypher.NodeOf(cypher.NodeAlias, r.typeName, labels...)

	res, err := r.execute(ctx, cypher.Read(node, filter, q.page))
	if err != nil {
		return nil, err
	}
	return cypher.DecodeAll[E](res.Records)
}

// AddLabel attaches label to the node keyed by id.
func (r *Repository[E, K]) AddLabel(ctx context.Context, id K, label string) (bool, error) {
	if _, err := r.execute(ctx, cypher.SetLabel(r.typeName, KeyString(id), label)); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteLabel detaches label from the node keyed by id.
func (r *Repository[E, K]) DeleteLabel(ctx context.Context, id K, label string) (bool, error) {
	if _, err := r.execute(ctx, cypher.RemoveLabel(r.typeName, KeyString(id), label)); err != nil {
		return false, err
	}
	return true, nil
}

// GetLabels lists the labels of the node keyed by id, the type label
// included. It is empty when the node does not exist.
func (r *Repository[E, K]) GetLabels(ctx context.Context, id K) ([]string, error) {
	res, err := r.execute(ctx, cypher.Labels(r.typeName, KeyString(id)))
	if err != nil {
		return nil, err
	}
	if res.Labels == nil {
		return []string{}, nil
	}
	return res.Labels, nil
}

// CreateConstraint makes Id unique among this type's nodes.
func (r *Repository[E, K]) CreateConstraint(ctx context.Context) (bool, error) {
	if _, err := r.execute(ctx, cypher.Constraint(r.typeName)); err != nil {
		return false, err
	}
	return true, nil
}

// CreateIndex indexes the given properties, Id when none are named.
func (r *Repository[E, K]) CreateIndex(ctx context.Context, properties ...string) (bool, error) {
	if _, err := r.execute(ctx, cypher.Index(r.typeName, properties...)); err != nil {
		return false, err
	}
	return true, nil
}

// Query runs caller-written Cypher and returns its rows as column maps.
func (r *Repository[E, K]) Query(ctx context.Context, statement string, params map[string]any) ([]map[string]any, error) {
	res, err := r.execute(ctx, cypher.Raw(statement, params))
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// filter routes expr through the capability gate.
func (r *Repository[E, K]) filter(alias string, expr *predicate.Expr) (cypher.Filter, error) {
	if nf, ok := r.exec.(NativeFilterer); ok && expr != nil && nf.SupportsNative(expr) {
		return cypher.NativeFilter(alias, expr), nil
	}
	text, err := predicate.Translator{Alias: alias}.Translate(expr)
	if err != nil {
		return cypher.Filter{}, err
	}
	return cypher.Filter{Alias: alias, Text: text}, nil
}

func (r *Repository[E, K]) execute(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
	r.logger.Debug("executing plan",
		zap.Stringer("action", plan.Action),
		zap.Stringer("statement", plan),
	)

	res, err := r.exec.Execute(ctx, plan)
	if err != nil {
		r.logger.Error("graph operation failed",
			zap.Stringer("action", plan.Action),
			zap.Error(err),
		)
		return nil, err
	}
	if res == nil {
		res = &cypher.Result{}
	}
	return res, nil
}
