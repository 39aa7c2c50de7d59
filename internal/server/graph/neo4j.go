package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/systemshift/graphrepo/internal/config"
	"github.com/systemshift/graphrepo/pkg/cypher"
	"github.com/systemshift/graphrepo/pkg/predicate"
)

// Neo4jExecutor renders plans to Cypher and runs them in managed transactions.
type Neo4jExecutor struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4j connects to Neo4j and verifies connectivity.
func NewNeo4j(ctx context.Context, cfg config.Neo4jConfig) (*Neo4jExecutor, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	return NewNeo4jWithDriver(driver, cfg.Database), nil
}

// NewNeo4jWithDriver uses an existing driver. An empty database selects the
// server default.
func NewNeo4jWithDriver(driver neo4j.DriverWithContext, database string) *Neo4jExecutor {
	return &Neo4jExecutor{driver: driver, database: database}
}

// Close closes the Neo4j connection
func (e *Neo4jExecutor) Close(ctx context.Context) error {
	return e.driver.Close(ctx)
}

// SupportsNative reports whether e can be bound as parameters. ToLower,
// ToUpper and Equals calls cannot.
func (e *Neo4jExecutor) SupportsNative(x *predicate.Expr) bool {
	if predicate.NeedsTranslation(x) {
		return false
	}
	_, err := predicate.Bind(cypher.NodeAlias, x, map[string]any{})
	return err == nil
}

// Execute runs plan, reads in a read transaction and everything else in a
// write transaction.
func (e *Neo4jExecutor) Execute(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
	frag, err := plan.Render()
	if err != nil {
		return nil, err
	}

	mode := neo4j.AccessModeWrite
	if !plan.Action.Writes() {
		mode = neo4j.AccessModeRead
	}
	session := e.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: e.database,
		AccessMode:   mode,
	})
	defer session.Close(ctx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, frag.Text, frag.Params)
		if err != nil {
			return nil, err
		}
		return collect(ctx, plan.Return, result)
	}

	var out any
	if mode == neo4j.AccessModeRead {
		out, err = session.ExecuteRead(ctx, work)
	} else {
		out, err = session.ExecuteWrite(ctx, work)
	}
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", plan.Action, err)
	}
	return out.(*cypher.Result), nil
}

func collect(ctx context.Context, proj cypher.Projection, result neo4j.ResultWithContext) (*cypher.Result, error) {
	if proj == cypher.ReturnNone {
		if _, err := result.Consume(ctx); err != nil {
			return nil, err
		}
		return &cypher.Result{}, nil
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}

	res := &cypher.Result{}
	for _, record := range records {
		if proj == cypher.ReturnRows {
			res.Records = append(res.Records, record.AsMap())
			continue
		}
		if len(record.Values) == 0 {
			continue
		}
		value := record.Values[0]

		switch proj {
		case cypher.ReturnEntity:
			props, err := nodeProps(value)
			if err != nil {
				return nil, err
			}
			res.Records = append(res.Records, props)
		case cypher.ReturnCollect:
			items, _ := value.([]any)
			for _, item := range items {
				props, err := nodeProps(item)
				if err != nil {
					return nil, err
				}
				res.Records = append(res.Records, props)
			}
		case cypher.ReturnLabels:
			items, _ := value.([]any)
			for _, item := range items {
				if s, ok := item.(string); ok {
					res.Labels = append(res.Labels, s)
				}
			}
		case cypher.ReturnCount:
			n, ok := value.(int64)
			if !ok {
				return nil, fmt.Errorf("count returned %T", value)
			}
			res.Count += n
		}
	}
	return res, nil
}

func nodeProps(value any) (map[string]any, error) {
	switch v := value.(type) {
	case neo4j.Node:
		return v.Props, nil
	case map[string]any:
		return v, nil
	}
	return nil, fmt.Errorf("expected a node, got %T", value)
}
