package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/systemshift/graphrepo/pkg/cypher"
	"github.com/systemshift/graphrepo/pkg/predicate"
)

// SQLiteExecutor runs plans against an embedded SQLite database. It reads the
// plan structure rather than its Cypher text: node properties live in a JSON
// column and typed predicates are rendered to SQL over json_extract. Text
// filters and raw Cypher are not supported.
type SQLiteExecutor struct {
	db *sql.DB
}

// NewSQLite opens dbPath, ":memory:" included, and creates the schema.
func NewSQLite(ctx context.Context, dbPath string) (*SQLiteExecutor, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// Pragmas and in-memory databases are per connection.
	db.SetMaxOpenConns(1)

	// Verify connectivity
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}

	// Apply pragmas for optimal performance
	for _, pragma := range allPragmas() {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	// Create schema
	for _, stmt := range allSchemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &SQLiteExecutor{db: db}, nil
}

// Close closes the SQLite connection
func (s *SQLiteExecutor) Close(ctx context.Context) error {
	return s.db.Close()
}

// SupportsNative reports whether e has a SQL rendering. Every method the
// Cypher translator knows does.
func (s *SQLiteExecutor) SupportsNative(e *predicate.Expr) bool {
	_, _, err := sqlFilter(cypher.NodeAlias, e)
	return err == nil
}

// Execute runs plan.
func (s *SQLiteExecutor) Execute(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
	if err := validatePlan(plan); err != nil {
		return nil, err
	}

	switch plan.Action {
	case cypher.ActionCreate:
		return s.create(ctx, plan)
	case cypher.ActionRead:
		if plan.Path != nil {
			return s.readPath(ctx, plan)
		}
		return s.readNodes(ctx, plan)
	case cypher.ActionReplace:
		return s.replace(ctx, plan)
	case cypher.ActionDetachDelete:
		return s.detachDelete(ctx, plan)
	case cypher.ActionSetLabel:
		return s.setLabel(ctx, plan)
	case cypher.ActionRemoveLabel:
		return s.removeLabel(ctx, plan)
	case cypher.ActionMerge:
		return s.merge(ctx, plan)
	case cypher.ActionDeleteRelationship:
		return s.deletePath(ctx, plan)
	case cypher.ActionConstraint:
		return s.constraint(ctx, plan)
	case cypher.ActionIndex:
		return s.index(ctx, plan)
	case cypher.ActionRaw:
		return nil, fmt.Errorf("%w: Cypher queries need the neo4j backend", ErrNotSupported)
	}
	return nil, fmt.Errorf("%w: action %s", ErrNotSupported, plan.Action)
}

// CreateNode inserts a node with its labels
func (s *SQLiteExecutor) create(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
	props, ok := plan.Params[cypher.EntityParam].(map[string]any)
	if !ok {
		return nil, errors.New("create plan without an entity")
	}
	node := plan.Subject()
	key := fmt.Sprint(props[cypher.IDProperty])

	body, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("marshaling properties: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for _, label := range node.Labels {
		var taken int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM key_constraints c
			JOIN node_labels l ON l.label = c.label
			JOIN nodes n ON n.rowid = l.node_rowid
			WHERE c.label = ? AND n.node_key = ?
		`, label, key).Scan(&taken)
		if err != nil {
			return nil, fmt.Errorf("checking constraints: %w", err)
		}
		if taken > 0 {
			return nil, fmt.Errorf("%w: %s with %s %q already exists", ErrConstraintViolation, label, cypher.IDProperty, key)
		}
	}

	now := timestamp()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO nodes (node_key, properties, created_at, modified_at)
		VALUES (?, ?, ?, ?)
	`, key, string(body), now, now)
	if err != nil {
		return nil, fmt.Errorf("inserting node: %w", err)
	}
	rowid, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	for _, label := range node.Labels {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO node_labels (node_rowid, label) VALUES (?, ?)`, rowid, label); err != nil {
			return nil, fmt.Errorf("labeling node: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &cypher.Result{}, nil
}

func (s *SQLiteExecutor) readNodes(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
	x := plan.Subject()
	w, err := nodeScope(x, plan)
	if err != nil {
		return nil, err
	}

	switch plan.Return {
	case cypher.ReturnLabels:
		query := `SELECT l.label FROM node_labels l WHERE l.node_rowid = (` +
			selectRowids(x.Alias, w) + ` ORDER BY ` + x.Alias + `.rowid LIMIT 1) ORDER BY l.rowid`
		labels, err := s.column(ctx, query, w.args...)
		if err != nil {
			return nil, err
		}
		return &cypher.Result{Labels: labels}, nil

	case cypher.ReturnCount:
		var n int64
		query := `SELECT COUNT(*) FROM nodes ` + x.Alias + w.String()
		if err := s.db.QueryRowContext(ctx, query, w.args...).Scan(&n); err != nil {
			return nil, err
		}
		return &cypher.Result{Count: n}, nil
	}

	query := `SELECT ` + x.Alias + `.properties FROM nodes ` + x.Alias + w.String() +
		` ORDER BY ` + x.Alias + `.rowid` + pageClause(plan.Page)
	records, err := s.records(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	return &cypher.Result{Records: records}, nil
}

func (s *SQLiteExecutor) readPath(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
	from, w, err := pathScope(plan)
	if err != nil {
		return nil, err
	}

	if plan.Return == cypher.ReturnCount {
		var n int64
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+from+w.String(), w.args...).Scan(&n); err != nil {
			return nil, err
		}
		return &cypher.Result{Count: n}, nil
	}

	target := plan.Target
	if target == "" {
		target = plan.Path.To.Alias
	}
	query := `SELECT ` + target + `.properties FROM ` + from + w.String() +
		` ORDER BY ` + plan.Path.Alias + `.id` + pageClause(plan.Page)
	records, err := s.records(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	return &cypher.Result{Records: records}, nil
}

// replace overwrites the properties of the matched nodes
func (s *SQLiteExecutor) replace(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
	props, ok := plan.Params[cypher.EntityParam].(map[string]any)
	if !ok {
		return nil, errors.New("replace plan without an entity")
	}
	body, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("marshaling properties: %w", err)
	}

	x := plan.Subject()
	w, err := nodeScope(x, plan)
	if err != nil {
		return nil, err
	}

	query := `UPDATE nodes SET node_key = ?, properties = ?, modified_at = ? WHERE rowid IN (` + selectRowids(x.Alias, w) + `)`
	args := append([]any{fmt.Sprint(props[cypher.IDProperty]), string(body), timestamp()}, w.args...)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("updating node: %w", err)
	}
	return &cypher.Result{}, nil
}

// detachDelete removes the matched nodes with their labels and links
func (s *SQLiteExecutor) detachDelete(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
	x := plan.Subject()
	w, err := nodeScope(x, plan)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, selectRowids(x.Alias, w), w.args...)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE source_rowid = ? OR target_rowid = ?`, id, id); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM node_labels WHERE node_rowid = ?`, id); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE rowid = ?`, id); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &cypher.Result{}, nil
}

func (s *SQLiteExecutor) setLabel(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
	x := plan.Subject()
	w, err := nodeScope(x, plan)
	if err != nil {
		return nil, err
	}
	query := `INSERT OR IGNORE INTO node_labels (node_rowid, label) SELECT ` + x.Alias + `.rowid, ? FROM nodes ` + x.Alias + w.String()
	if _, err := s.db.ExecContext(ctx, query, append([]any{plan.Label}, w.args...)...); err != nil {
		return nil, fmt.Errorf("setting label: %w", err)
	}
	return &cypher.Result{}, nil
}

func (s *SQLiteExecutor) removeLabel(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
	x := plan.Subject()
	w, err := nodeScope(x, plan)
	if err != nil {
		return nil, err
	}
	query := `DELETE FROM node_labels WHERE label = ? AND node_rowid IN (` + selectRowids(x.Alias, w) + `)`
	if _, err := s.db.ExecContext(ctx, query, append([]any{plan.Label}, w.args...)...); err != nil {
		return nil, fmt.Errorf("removing label: %w", err)
	}
	return &cypher.Result{}, nil
}

// merge creates the link between the matched endpoints, or merges the
// relation properties into an existing one
func (s *SQLiteExecutor) merge(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
	p := plan.Path
	if p == nil {
		return nil, errors.New("merge plan without a path")
	}

	w := &sqlWhere{}
	w.node(p.From)
	w.node(p.To)
	w.keys(plan.Keys)

	body := "{}"
	if relation, ok := plan.Params[cypher.RelationParam].(map[string]any); ok {
		b, err := json.Marshal(relation)
		if err != nil {
			return nil, fmt.Errorf("marshaling relation: %w", err)
		}
		body = string(b)
	}

	now := timestamp()
	query := `
		INSERT INTO links (source_rowid, target_rowid, type, properties, created_at, modified_at)
		SELECT ` + p.From.Alias + `.rowid, ` + p.To.Alias + `.rowid, ?, ?, ?, ?
		FROM nodes ` + p.From.Alias + `, nodes ` + p.To.Alias + w.String() + `
		ON CONFLICT(source_rowid, target_rowid, type) DO UPDATE SET
			properties = json_patch(links.properties, excluded.properties),
			modified_at = excluded.modified_at`
	args := append([]any{p.Type, body, now, now}, w.args...)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("merging link: %w", err)
	}
	return &cypher.Result{}, nil
}

// deletePath deletes the links along the matched path
func (s *SQLiteExecutor) deletePath(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
	from, w, err := pathScope(plan)
	if err != nil {
		return nil, err
	}
	query := `DELETE FROM links WHERE id IN (SELECT ` + plan.Path.Alias + `.id FROM ` + from + w.String() + `)`
	if _, err := s.db.ExecContext(ctx, query, w.args...); err != nil {
		return nil, fmt.Errorf("deleting link: %w", err)
	}
	return &cypher.Result{}, nil
}

// constraint records a uniqueness constraint on the subject's key. Existing
// duplicates make it fail.
func (s *SQLiteExecutor) constraint(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
	label := plan.Subject().Type()

	var dup string
	err := s.db.QueryRowContext(ctx, `
		SELECT n.node_key FROM nodes n
		JOIN node_labels l ON l.node_rowid = n.rowid
		WHERE l.label = ?
		GROUP BY n.node_key HAVING COUNT(*) > 1
		LIMIT 1
	`, label).Scan(&dup)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s %s %q is not unique", ErrConstraintViolation, label, cypher.IDProperty, dup)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO key_constraints (label, created_at) VALUES (?, ?)`, label, timestamp()); err != nil {
		return nil, fmt.Errorf("creating constraint: %w", err)
	}
	return &cypher.Result{}, nil
}

// index creates an expression index over the named JSON properties
func (s *SQLiteExecutor) index(ctx context.Context, plan *cypher.Plan) (*cypher.Result, error) {
	label := plan.Subject().Type()
	name := "idx_" + strings.ToLower(label)
	exprs := make([]string, len(plan.Properties))
	for i, prop := range plan.Properties {
		name += "_" + strings.ReplaceAll(prop, ".", "_")
		exprs[i] = "json_extract(properties, '$." + prop + "')"
	}

	stmt := `CREATE INDEX IF NOT EXISTS "` + name + `" ON nodes(` + strings.Join(exprs, ", ") + `)`
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return nil, fmt.Errorf("creating index: %w", err)
	}
	return &cypher.Result{}, nil
}

func (s *SQLiteExecutor) records(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []map[string]any
	for rows.Next() {
		var properties string
		if err := rows.Scan(&properties); err != nil {
			return nil, err
		}
		props, err := decodeProperties(properties)
		if err != nil {
			return nil, err
		}
		records = append(records, props)
	}
	return records, rows.Err()
}

func (s *SQLiteExecutor) column(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// decodeProperties keeps numbers as json.Number so 64-bit keys survive.
func decodeProperties(text string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var props map[string]any
	if err := dec.Decode(&props); err != nil {
		return nil, fmt.Errorf("unmarshaling properties: %w", err)
	}
	return props, nil
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// sqlWhere accumulates AND-ed conditions and their arguments.
type sqlWhere struct {
	conds []string
	args  []any
}

func (w *sqlWhere) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

// node requires every label of n on the row aliased n.Alias.
func (w *sqlWhere) node(n cypher.Node) {
	for _, label := range n.Labels {
		w.add(`EXISTS (SELECT 1 FROM node_labels WHERE node_rowid = `+n.Alias+`.rowid AND label = ?)`, label)
	}
}

func (w *sqlWhere) keys(keys []cypher.KeyFilter) {
	for _, k := range keys {
		w.add(k.Alias+`.node_key = ?`, k.Key)
	}
}

func (w *sqlWhere) filter(f cypher.Filter) error {
	switch {
	case f.Native != nil:
		alias := f.Alias
		if alias == "" {
			alias = cypher.NodeAlias
		}
		cond, args, err := sqlFilter(alias, f.Native)
		if err != nil {
			return err
		}
		w.add(cond, args...)
	case strings.TrimSpace(f.Text) != "":
		return fmt.Errorf("%w: text filters need the neo4j backend", ErrNotSupported)
	}
	return nil
}

func (w *sqlWhere) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func nodeScope(x cypher.Node, plan *cypher.Plan) (*sqlWhere, error) {
	w := &sqlWhere{}
	w.node(x)
	w.keys(plan.Keys)
	if err := w.filter(plan.Filter); err != nil {
		return nil, err
	}
	return w, nil
}

// pathScope returns the FROM clause joining a path's link to its endpoints,
// with the conditions of plan.
func pathScope(plan *cypher.Plan) (string, *sqlWhere, error) {
	p := plan.Path
	x, r, y := p.From.Alias, p.Alias, p.To.Alias
	from := fmt.Sprintf("links %s JOIN nodes %s ON %s.rowid = %s.source_rowid JOIN nodes %s ON %s.rowid = %s.target_rowid",
		r, x, x, r, y, y, r)

	w := &sqlWhere{}
	w.add(r+`.type = ?`, p.Type)
	w.node(p.From)
	w.node(p.To)
	w.keys(plan.Keys)
	if err := w.filter(plan.Filter); err != nil {
		return "", nil, err
	}
	return from, w, nil
}

func selectRowids(alias string, w *sqlWhere) string {
	return `SELECT ` + alias + `.rowid FROM nodes ` + alias + w.String()
}

func pageClause(page *cypher.Page) string {
	switch {
	case page == nil:
		return ""
	case page.Limit > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit, page.Skip)
	case page.Skip > 0:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", page.Skip)
	}
	return ""
}

// validatePlan applies the identifier rules Render enforces, since plans run
// here are never rendered.
func validatePlan(p *cypher.Plan) error {
	nodes := append([]cypher.Node(nil), p.Nodes...)
	if p.Path != nil {
		nodes = append(nodes, p.Path.From, p.Path.To)
		if err := cypher.ValidateIdentifier("relationship", p.Path.Type); err != nil {
			return err
		}
		if err := cypher.ValidateIdentifier("alias", p.Path.Alias); err != nil {
			return err
		}
	}
	for _, n := range nodes {
		if err := cypher.ValidateIdentifier("alias", n.Alias); err != nil {
			return err
		}
		for _, l := range n.Labels {
			if err := cypher.ValidateIdentifier("label", l); err != nil {
				return err
			}
		}
	}
	for _, k := range p.Keys {
		if err := cypher.ValidateIdentifier("alias", k.Alias); err != nil {
			return err
		}
	}
	if p.Action == cypher.ActionSetLabel || p.Action == cypher.ActionRemoveLabel {
		if err := cypher.ValidateIdentifier("label", p.Label); err != nil {
			return err
		}
	}
	for _, prop := range p.Properties {
		for _, part := range strings.Split(prop, ".") {
			if err := cypher.ValidateIdentifier("property", part); err != nil {
				return err
			}
		}
	}
	return nil
}
