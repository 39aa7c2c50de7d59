package predicate

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// ErrUnsupportedExpression is returned when a tree holds a node kind, operator or
// method call that has no Cypher rendering.
var ErrUnsupportedExpression = errors.New("unsupported expression")

// DefaultAlias is the variable entity properties are read from.
const DefaultAlias = "x"

var symbols = map[Op]string{
	Add:                "+",
	And:                "&",
	AndAlso:            "AND",
	Divide:             "/",
	Equal:              "=",
	ExclusiveOr:        "^",
	GreaterThan:        ">",
	GreaterThanOrEqual: ">=",
	LessThan:           "<",
	LessThanOrEqual:    "<=",
	Modulo:             "%",
	Multiply:           "*",
	Negate:             "-",
	Not:                "NOT",
	NotEqual:           "<>",
	Or:                 "|",
	OrElse:             "OR",
	Subtract:           "-",
	Convert:            "",
}

// Symbol returns the Cypher text of op.
func Symbol(op Op) (string, error) {
	s, ok := symbols[op]
	if !ok {
		return "", fmt.Errorf("%w: node type %s", ErrUnsupportedExpression, op)
	}
	return s, nil
}

// infix holds the operator text of the string methods that render as
// "(<receiver> <op> <argument>)".
var infix = map[string]string{
	MethodEquals:     "=",
	MethodContains:   "CONTAINS",
	MethodStartsWith: "STARTS WITH",
	MethodEndsWith:   "ENDS WITH",
}

var functions = map[string]string{
	MethodToLower: "LOWER",
	MethodToUpper: "UPPER",
}

// Translate renders e as a Cypher filter over DefaultAlias.
func Translate(e *Expr) (string, error) {
	return Translator{Alias: DefaultAlias}.Translate(e)
}

// Translator renders predicate trees with constants inlined as literals.
type Translator struct {
	// Alias prefixes property paths. Relationship filters use "r".
	Alias string
}

// Translate renders e.
func (t Translator) Translate(e *Expr) (string, error) {
	r := renderer{alias: t.Alias, literal: literal}
	if r.alias == "" {
		r.alias = DefaultAlias
	}
	return r.render(e, true)
}

// Bind renders e as Cypher with every constant and folded value bound into params
// as $p0, $p1, ... It is the native typed-predicate path and, like the client
// filters it stands in for, has no form for ToLower, ToUpper or Equals.
func Bind(alias string, e *Expr, params map[string]any) (string, error) {
	if params == nil {
		return "", errors.New("bind: nil parameter map")
	}
	if NeedsTranslation(e) {
		return "", fmt.Errorf("%w: %s has no native form", ErrUnsupportedExpression, firstTranslated(e))
	}
	r := renderer{alias: alias}
	r.literal = func(v any, _ bool) string {
		name := fmt.Sprintf("p%d", len(params))
		for {
			if _, taken := params[name]; !taken {
				break
			}
			name += "_"
		}
		params[name] = bindValue(v)
		return "$" + name
	}
	return r.render(e, true)
}

type renderer struct {
	alias string
	// literal renders a constant. quote is false for method arguments that are
	// substituted downstream rather than compared as literals.
	literal func(v any, quote bool) string
}

func (r renderer) render(e *Expr, quote bool) (string, error) {
	if e == nil {
		return "", fmt.Errorf("%w: nil node", ErrUnsupportedExpression)
	}

	switch e.Kind {
	case KindUnary:
		if e.Op == Convert {
			return r.render(e.Left, quote)
		}
		sym, err := Symbol(e.Op)
		if err != nil {
			return "", err
		}
		operand, err := r.render(e.Left, quote)
		if err != nil {
			return "", err
		}
		return "(" + sym + " " + operand + ")", nil

	case KindBinary:
		sym, err := Symbol(e.Op)
		if err != nil {
			return "", err
		}
		left, err := r.render(e.Left, true)
		if err != nil {
			return "", err
		}
		right, err := r.render(e.Right, true)
		if err != nil {
			return "", err
		}
		return "(" + left + " " + sym + " " + right + ")", nil

	case KindConstant:
		return r.literal(e.Value, quote), nil

	case KindMember:
		if e.Captured {
			return r.literal(e.Value, quote), nil
		}
		if e.Path == "" {
			return "", fmt.Errorf("%w: member without a property path", ErrUnsupportedExpression)
		}
		return r.alias + "." + e.Path, nil

	case KindCall:
		return r.call(e)
	}

	return "", fmt.Errorf("%w: %s", ErrUnsupportedExpression, e.Kind)
}

func (r renderer) call(e *Expr) (string, error) {
	if fn, ok := functions[e.Method]; ok {
		receiver, err := r.render(e.Left, true)
		if err != nil {
			return "", err
		}
		return fn + "(" + receiver + ")", nil
	}

	op, ok := infix[e.Method]
	if !ok {
		return "", fmt.Errorf("%w: method call %s", ErrUnsupportedExpression, e.Method)
	}
	if len(e.Args) != 1 {
		return "", fmt.Errorf("%w: %s takes one argument, got %d", ErrUnsupportedExpression, e.Method, len(e.Args))
	}
	receiver, err := r.render(e.Left, true)
	if err != nil {
		return "", err
	}
	arg, err := r.render(e.Args[0], false)
	if err != nil {
		return "", err
	}
	return "(" + receiver + " " + op + " " + arg + ")", nil
}

// literal renders v as Cypher text. Strings are always double-quoted: the text
// is inlined into the statement, so the unquoted mode has no literal form.
// Times become datetime() calls and other text-marshalable values such as
// uuid.UUID are quoted in the form Properties stores them.
func literal(v any, _ bool) string {
	if v == nil {
		return "null"
	}
	switch tv := v.(type) {
	case time.Time:
		return `datetime("` + tv.Format(time.RFC3339Nano) + `")`
	case encoding.TextMarshaler:
		if b, err := tv.MarshalText(); err == nil {
			return `"` + string(b) + `"`
		}
	}
	if reflect.ValueOf(v).Kind() == reflect.String {
		var b strings.Builder
		b.WriteByte('"')
		b.WriteString(fmt.Sprint(v))
		b.WriteByte('"')
		return b.String()
	}
	return fmt.Sprint(v)
}

// bindValue converts text-marshalable keys such as uuid.UUID to their string form
// so drivers receive a primitive parameter.
func bindValue(v any) any {
	switch tv := v.(type) {
	case time.Time:
		return tv
	case encoding.TextMarshaler:
		if b, err := tv.MarshalText(); err == nil {
			return string(b)
		}
	}
	return v
}
