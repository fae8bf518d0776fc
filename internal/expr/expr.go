// Package expr evaluates the arithmetic claim equations stored on value
// equation bucket rules. It is a small typed AST interpreter with a fixed
// variable namespace and decimal arithmetic: no builtins, no reflection,
// nothing callable from the equation text.
package expr

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Env supplies values for the fixed variable namespace.
type Env map[string]decimal.Decimal

// Variables is the complete set of names an equation may reference.
var Variables = []string{"quantity", "valuePerUnit", "pricePerUnit", "valuePerUnitOfUse", "value"}

var ErrDivisionByZero = errors.New("division by zero")

type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Msg)
}

type UnknownVariableError struct {
	Name string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variable %q", e.Name)
}

type node interface {
	eval(env Env) (decimal.Decimal, error)
}

type numberNode struct {
	val decimal.Decimal
}

func (n numberNode) eval(Env) (decimal.Decimal, error) { return n.val, nil }

type varNode struct {
	name string
}

func (n varNode) eval(env Env) (decimal.Decimal, error) {
	v, ok := env[n.name]
	if !ok {
		// Parse already checked the namespace; a miss here means the
		// caller built an incomplete environment.
		return decimal.Zero, &UnknownVariableError{Name: n.name}
	}
	return v, nil
}

type binaryNode struct {
	op          rune
	left, right node
}

func (n binaryNode) eval(env Env) (decimal.Decimal, error) {
	l, err := n.left.eval(env)
	if err != nil {
		return decimal.Zero, err
	}
	r, err := n.right.eval(env)
	if err != nil {
		return decimal.Zero, err
	}
	switch n.op {
	case '+':
		return l.Add(r), nil
	case '-':
		return l.Sub(r), nil
	case '*':
		return l.Mul(r), nil
	case '/':
		if r.IsZero() {
			return decimal.Zero, ErrDivisionByZero
		}
		return l.Div(r), nil
	}
	return decimal.Zero, fmt.Errorf("unknown operator %q", n.op)
}

type negNode struct {
	inner node
}

func (n negNode) eval(env Env) (decimal.Decimal, error) {
	v, err := n.inner.eval(env)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Neg(), nil
}

// Expr is a parsed, validated claim equation.
type Expr struct {
	src  string
	root node
}

func (e *Expr) String() string { return e.src }

// Eval evaluates the expression against env using exact decimal arithmetic.
func (e *Expr) Eval(env Env) (decimal.Decimal, error) {
	return e.root.eval(env)
}

// Parse parses src and rejects any identifier outside the fixed namespace.
func Parse(src string) (*Expr, error) {
	p := &parser{src: []rune(src)}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, &SyntaxError{Pos: p.pos, Msg: fmt.Sprintf("unexpected %q", p.src[p.pos])}
	}
	return &Expr{src: src, root: root}, nil
}

type parser struct {
	src []rune
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) peek() rune {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		op := p.peek()
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseFactor() (node, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, &SyntaxError{Pos: p.pos, Msg: "unexpected end of expression"}
	}

	c := p.src[p.pos]
	switch {
	case c == '-':
		p.pos++
		inner, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return negNode{inner: inner}, nil

	case c == '(':
		p.pos++
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return nil, &SyntaxError{Pos: p.pos, Msg: "expected closing parenthesis"}
		}
		p.pos++
		return inner, nil

	case unicode.IsDigit(c) || c == '.':
		return p.parseNumber()

	case unicode.IsLetter(c):
		return p.parseIdent()
	}

	return nil, &SyntaxError{Pos: p.pos, Msg: fmt.Sprintf("unexpected %q", c)}
}

func (p *parser) parseNumber() (node, error) {
	start := p.pos
	for p.pos < len(p.src) && (unicode.IsDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
		p.pos++
	}
	text := string(p.src[start:p.pos])
	val, err := decimal.NewFromString(text)
	if err != nil {
		return nil, &SyntaxError{Pos: start, Msg: fmt.Sprintf("invalid number %q", text)}
	}
	return numberNode{val: val}, nil
}

func (p *parser) parseIdent() (node, error) {
	start := p.pos
	for p.pos < len(p.src) && (unicode.IsLetter(p.src[p.pos]) || unicode.IsDigit(p.src[p.pos])) {
		p.pos++
	}
	name := string(p.src[start:p.pos])
	if !validVariable(name) {
		return nil, &UnknownVariableError{Name: name}
	}
	return varNode{name: name}, nil
}

func validVariable(name string) bool {
	for _, v := range Variables {
		if v == name {
			return true
		}
	}
	return false
}

// EnvString renders an environment for logging, with stable ordering.
func EnvString(env Env) string {
	var b strings.Builder
	for i, v := range Variables {
		if val, ok := env[v]; ok {
			if i > 0 && b.Len() > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%s", v, val)
		}
	}
	return b.String()
}
