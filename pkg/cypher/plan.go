package cypher

import (
	"fmt"

	"github.com/systemshift/graphrepo/pkg/predicate"
)

// Action is the statement a plan renders to.
type Action int

const (
	ActionRead Action = iota
	ActionCreate
	ActionReplace
	ActionDetachDelete
	ActionSetLabel
	ActionRemoveLabel
	ActionMerge
	ActionDeleteRelationship
	ActionConstraint
	ActionIndex
	ActionRaw
)

var actionNames = [...]string{
	ActionRead:               "read",
	ActionCreate:             "create",
	ActionReplace:            "replace",
	ActionDetachDelete:       "detach_delete",
	ActionSetLabel:           "set_label",
	ActionRemoveLabel:        "remove_label",
	ActionMerge:              "merge",
	ActionDeleteRelationship: "delete_relationship",
	ActionConstraint:         "constraint",
	ActionIndex:              "index",
	ActionRaw:                "raw",
}

func (a Action) String() string {
	if a >= 0 && int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Writes reports whether the action mutates the store.
func (a Action) Writes() bool {
	return a != ActionRead
}

// Projection selects what a read returns.
type Projection int

const (
	ReturnNone Projection = iota
	ReturnEntity
	ReturnLabels
	ReturnCount
	ReturnCollect
	ReturnRows
)

// Parameter names used for payloads.
const (
	EntityParam   = "entity"
	RelationParam = "relation"
)

// Page limits a read. Zero fields are not emitted.
type Page struct {
	Limit int
	Skip  int
}

// KeyFilter restricts Alias to the node whose stringified Id equals Key.
type KeyFilter struct {
	Alias string
	Key   string
}

// Param is the name of the parameter carrying the key.
func (k KeyFilter) Param() string {
	return k.Alias + IDProperty
}

// Filter is an optional WHERE condition: either pre-rendered text, or a typed
// predicate left for the executor to render natively.
type Filter struct {
	Alias  string
	Text   string
	Native *predicate.Expr
}

// Empty reports whether the filter holds no condition.
func (f Filter) Empty() bool {
	return f.Text == "" && f.Native == nil
}

// TextFilter wraps caller text or translator output.
func TextFilter(text string) Filter {
	return Filter{Alias: NodeAlias, Text: text}
}

// NativeFilter carries e for an executor that renders predicates itself.
func NativeFilter(alias string, e *predicate.Expr) Filter {
	return Filter{Alias: alias, Native: e}
}

// Plan is a complete statement description. Executors either render it to
// Cypher with Render or interpret its fields directly.
type Plan struct {
	Action Action

	// Nodes are matched independently, e.g. (x:A), (y:B).
	Nodes []Node
	// Path is matched instead of Nodes for relationship reads and deletes, and
	// merged between Nodes for ActionMerge.
	Path     *Path
	Optional bool

	Keys   []KeyFilter
	Filter Filter

	Label      string
	Properties []string

	Params map[string]any
	Return Projection
	// Target is the variable projected by RETURN.
	Target string
	Page   *Page

	// Statement is the caller's text for ActionRaw.
	Statement string
}

// Subject returns the first matched node, or the inbound end of Path.
func (p *Plan) Subject() Node {
	if p.Path != nil {
		return p.Path.From
	}
	if len(p.Nodes) > 0 {
		return p.Nodes[0]
	}
	return Node{}
}

// Fragment is generated text plus the parameters it references.
type Fragment struct {
	Text   string
	Params map[string]any
}

func (f Fragment) String() string {
	return f.Text
}

// Result is what an executor returns for a plan.
type Result struct {
	// Records holds property maps for ReturnEntity and ReturnCollect, and column
	// maps for ReturnRows.
	Records []map[string]any
	Labels  []string
	Count   int64
}
