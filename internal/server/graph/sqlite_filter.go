package graph

import (
	"encoding"
	"fmt"
	"strings"
	"time"

	"github.com/systemshift/graphrepo/pkg/cypher"
	"github.com/systemshift/graphrepo/pkg/predicate"
)

// Add is rendered separately: Cypher + also concatenates strings.
var sqlSymbols = map[predicate.Op]string{
	predicate.And:                "&",
	predicate.AndAlso:            "AND",
	predicate.Divide:             "/",
	predicate.Equal:              "=",
	predicate.GreaterThan:        ">",
	predicate.GreaterThanOrEqual: ">=",
	predicate.LessThan:           "<",
	predicate.LessThanOrEqual:    "<=",
	predicate.Modulo:             "%",
	predicate.Multiply:           "*",
	predicate.NotEqual:           "<>",
	predicate.Or:                 "|",
	predicate.OrElse:             "OR",
	predicate.Subtract:           "-",
}

// sqlFilter renders e as a SQLite condition over the JSON properties column of
// the table aliased alias. Constants become positional arguments.
func sqlFilter(alias string, e *predicate.Expr) (string, []any, error) {
	r := &sqlRenderer{alias: alias}
	text, err := r.render(e)
	if err != nil {
		return "", nil, err
	}
	return text, r.args, nil
}

type sqlRenderer struct {
	alias string
	args  []any
}

func (r *sqlRenderer) render(e *predicate.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("%w: nil node", predicate.ErrUnsupportedExpression)
	}

	switch e.Kind {
	case predicate.KindConstant:
		return r.bind(e.Value), nil

	case predicate.KindMember:
		if e.Captured {
			return r.bind(e.Value), nil
		}
		return r.property(e.Path)

	case predicate.KindUnary:
		if e.Op == predicate.Convert {
			return r.render(e.Left)
		}
		operand, err := r.render(e.Left)
		if err != nil {
			return "", err
		}
		switch e.Op {
		case predicate.Not:
			return "(NOT " + operand + ")", nil
		case predicate.Negate:
			return "(- " + operand + ")", nil
		}

	case predicate.KindBinary:
		left, err := r.render(e.Left)
		if err != nil {
			return "", err
		}
		right, err := r.render(e.Right)
		if err != nil {
			return "", err
		}
		switch e.Op {
		case predicate.ExclusiveOr:
			return "((" + left + " | " + right + ") - (" + left + " & " + right + "))", r.repeat(e.Left, e.Right)
		case predicate.Add:
			// + concatenates as soon as either side is text, numeric addition otherwise.
			return "(CASE WHEN typeof(" + left + ") = 'text' OR typeof(" + right + ") = 'text' THEN " +
				left + " || " + right + " ELSE " + left + " + " + right + " END)", r.repeat(e.Left, e.Right, e.Left, e.Right)
		}
		if sym, ok := sqlSymbols[e.Op]; ok {
			return "(" + left + " " + sym + " " + right + ")", nil
		}

	case predicate.KindCall:
		return r.call(e)
	}

	return "", fmt.Errorf("%w: %s %s", predicate.ErrUnsupportedExpression, e.Kind, e.Op)
}

// repeat appends the arguments of exprs again, in order, for templates that
// mention an operand more than once.
func (r *sqlRenderer) repeat(exprs ...*predicate.Expr) error {
	for _, e := range exprs {
		if _, err := r.render(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *sqlRenderer) call(e *predicate.Expr) (string, error) {
	switch e.Method {
	case predicate.MethodToLower, predicate.MethodToUpper:
		receiver, err := r.render(e.Left)
		if err != nil {
			return "", err
		}
		if e.Method == predicate.MethodToLower {
			return "lower(" + receiver + ")", nil
		}
		return "upper(" + receiver + ")", nil

	case predicate.MethodEquals, predicate.MethodContains, predicate.MethodStartsWith, predicate.MethodEndsWith:
		if len(e.Args) != 1 {
			return "", fmt.Errorf("%w: %s takes one argument, got %d", predicate.ErrUnsupportedExpression, e.Method, len(e.Args))
		}
	default:
		return "", fmt.Errorf("%w: method call %s", predicate.ErrUnsupportedExpression, e.Method)
	}

	if e.Method == predicate.MethodEndsWith {
		// (length(b) = 0 OR substr(a, -length(b)) = b), rendered in text order.
		b1, err := r.render(e.Args[0])
		if err != nil {
			return "", err
		}
		a, err := r.render(e.Left)
		if err != nil {
			return "", err
		}
		b2, _ := r.render(e.Args[0])
		b3, _ := r.render(e.Args[0])
		return "(length(" + b1 + ") = 0 OR substr(" + a + ", -length(" + b2 + ")) = " + b3 + ")", nil
	}

	a, err := r.render(e.Left)
	if err != nil {
		return "", err
	}
	b, err := r.render(e.Args[0])
	if err != nil {
		return "", err
	}
	switch e.Method {
	case predicate.MethodEquals:
		return "(" + a + " = " + b + ")", nil
	case predicate.MethodContains:
		return "(instr(" + a + ", " + b + ") > 0)", nil
	default:
		return "(instr(" + a + ", " + b + ") = 1)", nil
	}
}

func (r *sqlRenderer) property(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: member without a property path", predicate.ErrUnsupportedExpression)
	}
	for _, part := range strings.Split(path, ".") {
		if err := cypher.ValidateIdentifier("property", part); err != nil {
			return "", err
		}
	}
	return "json_extract(" + r.alias + ".properties, '$." + path + "')", nil
}

func (r *sqlRenderer) bind(v any) string {
	if v == nil {
		return "NULL"
	}
	r.args = append(r.args, sqlValue(v))
	return "?"
}

// sqlValue converts v to the form json_extract yields for the stored value.
func sqlValue(v any) any {
	switch tv := v.(type) {
	case bool:
		if tv {
			return 1
		}
		return 0
	case time.Time:
		return tv.Format(time.RFC3339Nano)
	case encoding.TextMarshaler:
		if b, err := tv.MarshalText(); err == nil {
			return string(b)
		}
	}
	return v
}
