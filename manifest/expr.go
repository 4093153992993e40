package manifest

import (
	"strconv"
	"strings"
)

// Env resolves variables referenced by a condition
type Env interface {
	Lookup(name string) (any, bool)
}

// Expr is a node of a condition expression
type Expr interface {
	// Eval returns the value of the expression: bool, string, float64 or nil
	Eval(env Env) any
	// String renders the expression in manifest syntax
	String() string
	precedence() int
}

const (
	precOr = iota + 1
	precAnd
	precNot
	precCompare
	precAtom
)

// Op is a binary operator
type Op string

const (
	OpAnd Op = "and"
	OpOr  Op = "or"
	OpEq  Op = "=="
	OpNe  Op = "!="
)

// Variable references a run configuration property
type Variable struct {
	Name string
}

func (v *Variable) Eval(env Env) any {
	if env == nil {
		return nil
	}
	val, ok := env.Lookup(v.Name)
	if !ok {
		return nil
	}
	return normalize(val)
}

func (v *Variable) String() string  { return v.Name }
func (v *Variable) precedence() int { return precAtom }

// StringLit is a quoted string literal
type StringLit struct {
	Value string
}

func (s *StringLit) Eval(Env) any    { return s.Value }
func (s *StringLit) String() string  { return quoteString(s.Value) }
func (s *StringLit) precedence() int { return precAtom }

// NumberLit is a numeric literal; Raw keeps the source spelling
type NumberLit struct {
	Value float64
	Raw   string
}

func (n *NumberLit) Eval(Env) any { return n.Value }

func (n *NumberLit) String() string {
	if n.Raw != "" {
		return n.Raw
	}
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

func (n *NumberLit) precedence() int { return precAtom }

// Not negates its operand
type Not struct {
	X Expr
}

func (n *Not) Eval(env Env) any { return !truthy(n.X.Eval(env)) }

func (n *Not) String() string {
	return "not " + wrap(n.X, precNot)
}

func (n *Not) precedence() int { return precNot }

// Binary is a logical or comparison operation
type Binary struct {
	Op    Op
	Left  Expr
	Right Expr
}

func (b *Binary) Eval(env Env) any {
	switch b.Op {
	case OpAnd:
		return truthy(b.Left.Eval(env)) && truthy(b.Right.Eval(env))
	case OpOr:
		return truthy(b.Left.Eval(env)) || truthy(b.Right.Eval(env))
	case OpEq:
		return valuesEqual(b.Left.Eval(env), b.Right.Eval(env))
	case OpNe:
		return !valuesEqual(b.Left.Eval(env), b.Right.Eval(env))
	}
	return nil
}

func (b *Binary) String() string {
	p := b.precedence()
	right := p
	if p == precCompare {
		right = p + 1
	}
	return wrap(b.Left, p) + " " + string(b.Op) + " " + wrap(b.Right, right)
}

func (b *Binary) precedence() int {
	switch b.Op {
	case OpOr:
		return precOr
	case OpAnd:
		return precAnd
	default:
		return precCompare
	}
}

// And joins terms into a left-nested conjunction; nil for no terms
func And(terms ...Expr) Expr {
	var out Expr
	for _, t := range terms {
		if out == nil {
			out = t
			continue
		}
		out = &Binary{Op: OpAnd, Left: out, Right: t}
	}
	return out
}

// Matches reports whether cond holds in env; a nil condition always holds
func Matches(cond Expr, env Env) bool {
	if cond == nil {
		return true
	}
	return truthy(cond.Eval(env))
}

// Terms splits a conjunction into its operands
func Terms(e Expr) []Expr {
	if e == nil {
		return nil
	}
	if b, ok := e.(*Binary); ok && b.Op == OpAnd {
		return append(Terms(b.Left), Terms(b.Right)...)
	}
	return []Expr{e}
}

func wrap(e Expr, min int) string {
	if e.precedence() < min {
		return "(" + e.String() + ")"
	}
	return e.String()
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	}
	return true
}

func valuesEqual(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	}
	return false
}

func normalize(v any) any {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	}
	return v
}

func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
