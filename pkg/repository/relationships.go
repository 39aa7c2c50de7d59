package repository

import (
	"context"

	"github.com/systemshift/graphrepo/pkg/cypher"
)

// The relationship operations are functions rather than methods so the out
// entity type can vary per call:
//
//	ok, err := repository.AddRelationship[*Team](ctx, people, personID, teamID, "MEMBER_OF")

func pathTo[O Entity[K], E Entity[K], K Key](r *Repository[E, K], name string) cypher.Path {
	var out O
	return cypher.PathOf(r.typeName, name, out.TypeName())
}

// AddRelationship links the E keyed by inID to the O keyed by outID unless the
// relationship already exists.
func AddRelationship[O Entity[K], E Entity[K], K Key](ctx context.Context, r *Repository[E, K], inID, outID K, name string) (bool, error) {
	return AddRelationshipWith[O](ctx, r, inID, outID, name, nil)
}

// AddRelationshipWith is AddRelationship with a property payload merged into
// the relationship. relation is a struct or a string-keyed map; nil stores none.
func AddRelationshipWith[O Entity[K], E Entity[K], K Key](ctx context.Context, r *Repository[E, K], inID, outID K, name string, relation any) (bool, error) {
	var props map[string]any
	if relation != nil {
		var err error
		if props, err = cypher.Properties(relation); err != nil {
			return false, err
		}
	}

	plan := cypher.Merge(pathTo[O](r, name), KeyString(inID), KeyString(outID), props)
	if _, err := r.execute(ctx, plan); err != nil {
		return false, err
	}
	return true, nil
}

// HasRelationship reports whether at least one name relationship leads from
// inID to outID.
func HasRelationship[O Entity[K], E Entity[K], K Key](ctx context.Context, r *Repository[E, K], inID, outID K, name string) (bool, error) {
	res, err := r.execute(ctx, cypher.CountPath(pathTo[O](r, name), KeyString(inID), KeyString(outID)))
	if err != nil {
		return false, err
	}
	return res.Count > 0, nil
}

// DeleteRelationship removes every name relationship from inID to outID.
func DeleteRelationship[O Entity[K], E Entity[K], K Key](ctx context.Context, r *Repository[E, K], inID, outID K, name string) (bool, error) {
	if _, err := r.execute(ctx, cypher.DeletePath(pathTo[O](r, name), KeyString(inID), KeyString(outID))); err != nil {
		return false, err
	}
	return true, nil
}

// GetRelated returns the O entities reached from id over name relationships.
// Where filters on relationship properties.
func GetRelated[O Entity[K], E Entity[K], K Key](ctx context.Context, r *Repository[E, K], id K, name string, opts ...QueryOption) ([]O, error) {
	plan, err := relatedPlan[O](r, id, name, newQuery(opts), false)
	if err != nil {
		return nil, err
	}
	res, err := r.execute(ctx, plan)
	if err != nil {
		return nil, err
	}
	return cypher.DecodeAll[O](res.Records)
}

// GetRelatedCount counts the O entities GetRelated would return.
func GetRelatedCount[O Entity[K], E Entity[K], K Key](ctx context.Context, r *Repository[E, K], id K, name string, opts ...QueryOption) (int64, error) {
	plan, err := relatedPlan[O](r, id, name, newQuery(opts), true)
	if err != nil {
		return 0, err
	}
	res, err := r.execute(ctx, plan)
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

func relatedPlan[O Entity[K], E Entity[K], K Key](r *Repository[E, K], id K, name string, q query, count bool) (*cypher.Plan, error) {
	var filter cypher.Filter
	if q.relation != nil {
		var err error
		if filter, err = r.filter(cypher.RelationshipAlias, q.relation); err != nil {
			return nil, err
		}
	}
	return cypher.Related(pathTo[O](r, name), KeyString(id), filter, nil, count), nil
}
