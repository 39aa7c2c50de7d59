// Package cypher builds the query fragments and plans the repository hands to
// an executor: node, label and relationship patterns, identity filters,
// pagination and projections.
package cypher

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Variables bound by generated patterns.
const (
	NodeAlias         = "x"
	RelatedAlias      = "y"
	RelationshipAlias = "r"
)

// IDProperty is the property every entity's key is stored under.
const IDProperty = "Id"

// ErrInvalidIdentifier is returned for labels, relationship names and property
// names that cannot be interpolated into a statement as is.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier checks name against the unquoted Cypher identifier grammar.
func ValidateIdentifier(kind, name string) error {
	if !identifier.MatchString(name) {
		return fmt.Errorf("%w: %s %q", ErrInvalidIdentifier, kind, name)
	}
	return nil
}

// Node is a node pattern: a variable plus its labels, the entity type first.
type Node struct {
	Alias  string
	Labels []string
}

// NodeOf returns the pattern (x:<typeName>[:<label>...]).
func NodeOf(alias, typeName string, labels ...string) Node {
	return Node{Alias: alias, Labels: append([]string{typeName}, labels...)}
}

// Type returns the primary label.
func (n Node) Type() string {
	if len(n.Labels) == 0 {
		return ""
	}
	return n.Labels[0]
}

func (n Node) String() string {
	var b strings.Builder
	b.WriteByte('(')
	b.WriteString(n.Alias)
	for _, l := range n.Labels {
		b.WriteByte(':')
		b.WriteString(l)
	}
	b.WriteByte(')')
	return b.String()
}

func (n Node) validate() error {
	for _, l := range n.Labels {
		if err := ValidateIdentifier("label", l); err != nil {
			return err
		}
	}
	return nil
}

// Path is a directed relationship pattern from an inbound node to an outbound one.
type Path struct {
	From  Node
	Alias string
	Type  string
	To    Node
}

// PathOf returns (x:<in>)-[r:<name>]->(y:<out>).
func PathOf(inType, name, outType string) Path {
	return Path{
		From:  NodeOf(NodeAlias, inType),
		Alias: RelationshipAlias,
		Type:  name,
		To:    NodeOf(RelatedAlias, outType),
	}
}

func (p Path) String() string {
	return p.From.String() + "-[" + p.Alias + ":" + p.Type + "]->" + p.To.String()
}

// Arc renders the relationship between the already bound endpoints,
// (x)-[r:<name>]->(y).
func (p Path) Arc() string {
	return "(" + p.From.Alias + ")-[" + p.Alias + ":" + p.Type + "]->(" + p.To.Alias + ")"
}

func (p Path) validate() error {
	if err := p.From.validate(); err != nil {
		return err
	}
	if err := ValidateIdentifier("relationship", p.Type); err != nil {
		return err
	}
	return p.To.validate()
}
