// Package verify evaluates citation-rule expressions over the
// consolidated reference index: for every subject label it classifies
// each region the label is active in by the types of its co-active
// labels.
package verify

import (
	"errors"
	"fmt"
	"strings"
)

// Op is an expression node kind.
type Op int

const (
	// OpType tests whether a label type is present in the region.
	OpType Op = iota
	// OpAll is satisfied when every argument is.
	OpAll
	// OpAny is satisfied when at least one argument is.
	OpAny
	// OpXor is satisfied when exactly one argument is.
	OpXor
	// OpNot inverts its single argument.
	OpNot
)

// Expr is a rule expression such as all(citation, any(test, exception)).
// The node set is fixed; evaluation never dispatches dynamically.
type Expr struct {
	Op   Op
	Type string // set when Op == OpType
	Args []*Expr
}

// ErrBadExpr reports a malformed expression string.
var ErrBadExpr = errors.New("malformed rule expression")

// Eval evaluates the expression against a region's type set. has
// reports whether any co-active label carries the given type. The walk
// keeps an explicit stack; expression depth never touches the
// goroutine stack.
func (e *Expr) Eval(has func(string) bool) bool {
	type frame struct {
		node    *Expr
		entered bool
	}

	stack := []frame{{node: e}}
	var values []bool

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !f.entered {
			if f.node.Op == OpType {
				values = append(values, has(f.node.Type))
				continue
			}
			stack = append(stack, frame{node: f.node, entered: true})
			for i := len(f.node.Args) - 1; i >= 0; i-- {
				stack = append(stack, frame{node: f.node.Args[i]})
			}
			continue
		}

		args := values[len(values)-len(f.node.Args):]
		var v bool
		switch f.node.Op {
		case OpAll:
			v = true
			for _, a := range args {
				v = v && a
			}
		case OpAny:
			for _, a := range args {
				v = v || a
			}
		case OpXor:
			for _, a := range args {
				if a && v {
					v = false
					break
				}
				v = v || a
			}
		case OpNot:
			v = !args[0]
		}
		values = values[:len(values)-len(f.node.Args)]
		values = append(values, v)
	}

	return values[0]
}

// String renders the expression back to its source form.
func (e *Expr) String() string {
	switch e.Op {
	case OpType:
		return e.Type
	case OpNot:
		return "not(" + e.Args[0].String() + ")"
	default:
		parts := make([]string, len(e.Args))
		for i, a := range e.Args {
			parts[i] = a.String()
		}
		name := map[Op]string{OpAll: "all", OpAny: "any", OpXor: "xor"}[e.Op]
		return name + "(" + strings.Join(parts, ", ") + ")"
	}
}

// Parse parses an expression string. Grammar:
//
//	expr  = ident | op "(" expr { "," expr } ")"
//	op    = "all" | "any" | "xor" | "not"
//	ident = [A-Za-z0-9_-]+
//
// An ident that is also an op name followed by "(" parses as the op.
func Parse(s string) (*Expr, error) {
	p := &parser{input: s}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("%w: trailing input at %d", ErrBadExpr, p.pos)
	}
	return expr, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) parseExpr() (*Expr, error) {
	p.skipSpace()
	ident := p.readIdent()
	if ident == "" {
		return nil, fmt.Errorf("%w: expected identifier at %d", ErrBadExpr, p.pos)
	}

	op, isOp := map[string]Op{"all": OpAll, "any": OpAny, "xor": OpXor, "not": OpNot}[ident]
	p.skipSpace()
	if !isOp || !p.consume('(') {
		return &Expr{Op: OpType, Type: ident}, nil
	}

	var args []*Expr
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		p.skipSpace()
		if p.consume(',') {
			continue
		}
		if p.consume(')') {
			break
		}
		return nil, fmt.Errorf("%w: expected ',' or ')' at %d", ErrBadExpr, p.pos)
	}

	if op == OpNot && len(args) != 1 {
		return nil, fmt.Errorf("%w: not() takes exactly one argument", ErrBadExpr)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: empty argument list", ErrBadExpr)
	}
	return &Expr{Op: op, Args: args}, nil
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) consume(c byte) bool {
	if p.pos < len(p.input) && p.input[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *parser) readIdent() string {
	start := p.pos
	for p.pos < len(p.input) && isIdentByte(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func isIdentByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' || c == '_' || c == '-'
}
