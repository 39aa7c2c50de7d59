// Package predicate models boolean filters over entity properties as an explicit
// expression tree and renders them as Cypher filter text.
package predicate

import "fmt"

// Kind identifies the shape of an expression node.
type Kind int

const (
	KindInvalid Kind = iota
	KindBinary
	KindUnary
	KindMember
	KindConstant
	KindCall
)

func (k Kind) String() string {
	switch k {
	case KindBinary:
		return "Binary"
	case KindUnary:
		return "Unary"
	case KindMember:
		return "Member"
	case KindConstant:
		return "Constant"
	case KindCall:
		return "Call"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Op is the operator of a binary or unary node.
type Op int

const (
	OpInvalid Op = iota
	Add
	And
	AndAlso
	Divide
	Equal
	ExclusiveOr
	GreaterThan
	GreaterThanOrEqual
	LessThan
	LessThanOrEqual
	Modulo
	Multiply
	Negate
	Not
	NotEqual
	Or
	OrElse
	Subtract
	Convert
)

var opNames = map[Op]string{
	Add:                "Add",
	And:                "And",
	AndAlso:            "AndAlso",
	Divide:             "Divide",
	Equal:              "Equal",
	ExclusiveOr:        "ExclusiveOr",
	GreaterThan:        "GreaterThan",
	GreaterThanOrEqual: "GreaterThanOrEqual",
	LessThan:           "LessThan",
	LessThanOrEqual:    "LessThanOrEqual",
	Modulo:             "Modulo",
	Multiply:           "Multiply",
	Negate:             "Negate",
	Not:                "Not",
	NotEqual:           "NotEqual",
	Or:                 "Or",
	OrElse:             "OrElse",
	Subtract:           "Subtract",
	Convert:            "Convert",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Method names understood by the translators.
const (
	MethodToLower    = "ToLower"
	MethodToUpper    = "ToUpper"
	MethodEquals     = "Equals"
	MethodContains   = "Contains"
	MethodStartsWith = "StartsWith"
	MethodEndsWith   = "EndsWith"
)

// Expr is one node of a predicate tree.
//
// Which fields are meaningful depends on Kind:
//   - KindBinary: Op, Left, Right
//   - KindUnary: Op, Left (the operand)
//   - KindMember: Path; when Captured is set, Value holds the folded value
//   - KindConstant: Value
//   - KindCall: Method, Left (the receiver), Args
type Expr struct {
	Kind     Kind
	Op       Op
	Left     *Expr
	Right    *Expr
	Path     string
	Captured bool
	Value    any
	Method   string
	Args     []*Expr
}

// Prop references a property of the filtered entity. Dotted paths are kept as is.
func Prop(path string) *Expr {
	return &Expr{Kind: KindMember, Path: path}
}

// Capture references a value closed over by the caller, such as a local variable
// or a struct field. It is folded into a literal when the tree is rendered.
func Capture(name string, value any) *Expr {
	return &Expr{Kind: KindMember, Path: name, Captured: true, Value: value}
}

// Const is a literal value.
func Const(value any) *Expr {
	return &Expr{Kind: KindConstant, Value: value}
}

// Binary combines two operands with op.
func Binary(op Op, left, right any) *Expr {
	return &Expr{Kind: KindBinary, Op: op, Left: operand(left), Right: operand(right)}
}

// Unary applies op to a single operand.
func Unary(op Op, x any) *Expr {
	return &Expr{Kind: KindUnary, Op: op, Left: operand(x)}
}

// Call invokes a method on receiver.
func Call(receiver any, method string, args ...any) *Expr {
	e := &Expr{Kind: KindCall, Method: method, Left: operand(receiver)}
	for _, a := range args {
		e.Args = append(e.Args, operand(a))
	}
	return e
}

// All joins exprs with AndAlso, folding left. It returns nil for no input.
func All(exprs ...*Expr) *Expr {
	return fold(AndAlso, exprs)
}

// Any joins exprs with OrElse, folding left. It returns nil for no input.
func Any(exprs ...*Expr) *Expr {
	return fold(OrElse, exprs)
}

func fold(op Op, exprs []*Expr) *Expr {
	var out *Expr
	for _, e := range exprs {
		if out == nil {
			out = e
			continue
		}
		out = &Expr{Kind: KindBinary, Op: op, Left: out, Right: e}
	}
	return out
}

// NotOf negates x.
func NotOf(x any) *Expr { return Unary(Not, x) }

// Neg arithmetically negates x.
func Neg(x any) *Expr { return Unary(Negate, x) }

// As wraps x in a type conversion; renderers unwrap it.
func As(x any) *Expr { return Unary(Convert, x) }

func (e *Expr) Eq(v any) *Expr { return Binary(Equal, e, v) }
func (e *Expr) Ne(v any) *Expr { return Binary(NotEqual, e, v) }
func (e *Expr) Lt(v any) *Expr { return Binary(LessThan, e, v) }
func (e *Expr) Le(v any) *Expr { return Binary(LessThanOrEqual, e, v) }
func (e *Expr) Gt(v any) *Expr { return Binary(GreaterThan, e, v) }
func (e *Expr) Ge(v any) *Expr { return Binary(GreaterThanOrEqual, e, v) }
func (e *Expr) Plus(v any) *Expr { return Binary(Add, e, v) }
func (e *Expr) Minus(v any) *Expr { return Binary(Subtract, e, v) }
func (e *Expr) Times(v any) *Expr { return Binary(Multiply, e, v) }
func (e *Expr) Div(v any) *Expr { return Binary(Divide, e, v) }
func (e *Expr) Mod(v any) *Expr { return Binary(Modulo, e, v) }
func (e *Expr) And(v any) *Expr { return Binary(AndAlso, e, v) }
func (e *Expr) Or(v any) *Expr { return Binary(OrElse, e, v) }

func (e *Expr) ToLower() *Expr { return Call(e, MethodToLower) }
func (e *Expr) ToUpper() *Expr { return Call(e, MethodToUpper) }

func (e *Expr) Equals(v any) *Expr { return Call(e, MethodEquals, v) }
func (e *Expr) Contains(v any) *Expr { return Call(e, MethodContains, v) }
func (e *Expr) StartsWith(v any) *Expr { return Call(e, MethodStartsWith, v) }
func (e *Expr) EndsWith(v any) *Expr { return Call(e, MethodEndsWith, v) }

func operand(v any) *Expr {
	if e, ok := v.(*Expr); ok {
		return e
	}
	return Const(v)
}
