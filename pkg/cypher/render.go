package cypher

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/systemshift/graphrepo/pkg/predicate"
)

// Render turns the plan into a Cypher statement and its parameters. Native
// filters are bound as parameters with predicate.Bind. The plan is not modified.
func (p *Plan) Render() (Fragment, error) {
	params := make(map[string]any, len(p.Params)+len(p.Keys))
	for k, v := range p.Params {
		params[k] = v
	}

	if p.Action == ActionRaw {
		if strings.TrimSpace(p.Statement) == "" {
			return Fragment{}, errors.New("raw plan without a statement")
		}
		return Fragment{Text: p.Statement, Params: params}, nil
	}

	if err := p.validate(); err != nil {
		return Fragment{}, err
	}

	var b strings.Builder
	switch p.Action {
	case ActionCreate:
		n := p.Subject()
		b.WriteString("CREATE ")
		b.WriteString(strings.TrimSuffix(n.String(), ")"))
		b.WriteString(" $" + EntityParam + ")")
		return Fragment{Text: b.String(), Params: params}, nil

	case ActionConstraint:
		n := p.Subject()
		fmt.Fprintf(&b, "CREATE CONSTRAINT IF NOT EXISTS FOR %s REQUIRE %s.%s IS UNIQUE", n, n.Alias, IDProperty)
		return Fragment{Text: b.String(), Params: params}, nil

	case ActionIndex:
		n := p.Subject()
		props := make([]string, len(p.Properties))
		for i, prop := range p.Properties {
			props[i] = n.Alias + "." + prop
		}
		fmt.Fprintf(&b, "CREATE INDEX IF NOT EXISTS FOR %s ON (%s)", n, strings.Join(props, ", "))
		return Fragment{Text: b.String(), Params: params}, nil
	}

	p.writeMatch(&b)
	if err := p.writeWhere(&b, params); err != nil {
		return Fragment{}, err
	}

	switch p.Action {
	case ActionRead:
		b.WriteString(" RETURN ")
		b.WriteString(p.projection())
		if p.Page != nil {
			if p.Page.Skip > 0 {
				b.WriteString(" SKIP " + strconv.Itoa(p.Page.Skip))
			}
			if p.Page.Limit > 0 {
				b.WriteString(" LIMIT " + strconv.Itoa(p.Page.Limit))
			}
		}
	case ActionReplace:
		fmt.Fprintf(&b, " SET %s = $%s", p.Subject().Alias, EntityParam)
	case ActionDetachDelete:
		b.WriteString(" DETACH DELETE " + p.Subject().Alias)
	case ActionSetLabel:
		b.WriteString(" SET " + p.Subject().Alias + ":" + p.Label)
	case ActionRemoveLabel:
		b.WriteString(" REMOVE " + p.Subject().Alias + ":" + p.Label)
	case ActionMerge:
		b.WriteString(" MERGE " + p.Path.Arc())
		if _, ok := params[RelationParam]; ok {
			fmt.Fprintf(&b, " SET %s += $%s", p.Path.Alias, RelationParam)
		}
	case ActionDeleteRelationship:
		b.WriteString(" DELETE " + p.Path.Alias)
	default:
		return Fragment{}, fmt.Errorf("cannot render %s", p.Action)
	}

	return Fragment{Text: b.String(), Params: params}, nil
}

// String renders the plan for logs, ignoring errors.
func (p *Plan) String() string {
	f, err := p.Render()
	if err != nil {
		return fmt.Sprintf("<%s: %v>", p.Action, err)
	}
	return f.Text
}

func (p *Plan) validate() error {
	if p.Path != nil {
		if err := p.Path.validate(); err != nil {
			return err
		}
	}
	for _, n := range p.Nodes {
		if err := n.validate(); err != nil {
			return err
		}
	}
	if p.Action == ActionSetLabel || p.Action == ActionRemoveLabel {
		if err := ValidateIdentifier("label", p.Label); err != nil {
			return err
		}
	}
	for _, prop := range p.Properties {
		for _, part := range strings.Split(prop, ".") {
			if err := ValidateIdentifier("property", part); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Plan) writeMatch(b *strings.Builder) {
	if p.Optional {
		b.WriteString("OPTIONAL ")
	}
	b.WriteString("MATCH ")
	if p.Path != nil && p.Action != ActionMerge {
		b.WriteString(p.Path.String())
		return
	}
	for i, n := range p.Nodes {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(n.String())
	}
}

func (p *Plan) writeWhere(b *strings.Builder, params map[string]any) error {
	var conds []string
	for _, k := range p.Keys {
		conds = append(conds, fmt.Sprintf("toString(%s.%s) = $%s", k.Alias, IDProperty, k.Param()))
		params[k.Param()] = k.Key
	}

	filter, err := p.filterText(params)
	if err != nil {
		return err
	}
	if filter != "" {
		if len(conds) > 0 && !enclosed(filter) {
			filter = "(" + filter + ")"
		}
		conds = append(conds, filter)
	}

	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	return nil
}

func (p *Plan) filterText(params map[string]any) (string, error) {
	switch {
	case p.Filter.Native != nil:
		alias := p.Filter.Alias
		if alias == "" {
			alias = NodeAlias
		}
		return predicate.Bind(alias, p.Filter.Native, params)
	default:
		return strings.TrimSpace(p.Filter.Text), nil
	}
}

func (p *Plan) projection() string {
	switch p.Return {
	case ReturnLabels:
		return "labels(" + p.Target + ")"
	case ReturnCount:
		return "count(" + p.Target + ")"
	case ReturnCollect:
		return "collect(" + p.Target + ")"
	default:
		return p.Target
	}
}

// enclosed reports whether s is wrapped in one pair of matching parentheses.
func enclosed(s string) bool {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}
