/*
Copyright (C) 2024  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package query compiles a client-supplied predicate string into a
// pure, side-effect-free record->bool function (spec §4.D). Unlike the
// source, which evaluates arbitrary expressions with full host
// semantics, this package parses a small explicit grammar and rejects
// anything outside it with MalformedQuery — see spec §4.D's security
// note and SPEC_FULL.md's grounding note on why a hand-written
// recursive-descent parser is used instead of reaching for the
// teacher's PEG parsing library.
package query

import (
	"github.com/launix-de/jsondbserver/apperr"
	"github.com/launix-de/jsondbserver/value"
)

// Predicate is a compiled, pure record->bool test.
type Predicate func(record value.Value) bool

// Compile parses src against the grammar and returns a Predicate, or a
// MalformedQuery error if src isn't a valid expression in the grammar.
func Compile(src string) (Predicate, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, apperr.New(apperr.MalformedQuery, "unexpected trailing input in query")
	}
	return func(record value.Value) bool {
		v, _ := expr.eval(record)
		return v.Truthy()
	}, nil
}

// ---- AST ----

type node interface {
	eval(record value.Value) (value.Value, bool)
}

type orNode struct{ left, right node }

func (n *orNode) eval(record value.Value) (value.Value, bool) {
	l, _ := n.left.eval(record)
	if l.Truthy() {
		return value.NewBool(true), true
	}
	r, _ := n.right.eval(record)
	return value.NewBool(r.Truthy()), true
}

type andNode struct{ left, right node }

func (n *andNode) eval(record value.Value) (value.Value, bool) {
	l, _ := n.left.eval(record)
	if !l.Truthy() {
		return value.NewBool(false), true
	}
	r, _ := n.right.eval(record)
	return value.NewBool(r.Truthy()), true
}

type notNode struct{ inner node }

func (n *notNode) eval(record value.Value) (value.Value, bool) {
	v, _ := n.inner.eval(record)
	return value.NewBool(!v.Truthy()), true
}

type compareNode struct {
	op          string
	left, right node
}

func (n *compareNode) eval(record value.Value) (value.Value, bool) {
	l, _ := n.left.eval(record)
	r, _ := n.right.eval(record)
	switch n.op {
	case "==":
		return value.NewBool(l.Equal(r)), true
	case "!=":
		return value.NewBool(!l.Equal(r)), true
	case "<":
		lt, ok := l.Less(r)
		return value.NewBool(ok && lt), true
	case "<=":
		lt, ok := l.Less(r)
		return value.NewBool(ok && (lt || l.Equal(r))), true
	case ">":
		lt, ok := r.Less(l)
		return value.NewBool(ok && lt), true
	case ">=":
		lt, ok := r.Less(l)
		return value.NewBool(ok && (lt || l.Equal(r))), true
	case "in":
		in, _ := l.In(r)
		return value.NewBool(in), true
	}
	return value.NewBool(false), true
}

type fieldNode struct{ name string }

func (n *fieldNode) eval(record value.Value) (value.Value, bool) {
	if record.Kind() != value.Map {
		return value.NewNull(), false
	}
	v, ok := record.Map()[n.name]
	if !ok {
		return value.NewNull(), false
	}
	return v, true
}

type literalNode struct{ v value.Value }

func (n *literalNode) eval(value.Value) (value.Value, bool) { return n.v, true }

// ---- recursive-descent parser ----

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) expect(kind tokenKind, what string) error {
	if p.tok.kind != kind {
		return apperr.New(apperr.MalformedQuery, "expected "+what)
	}
	return p.advance()
}

// expr := and ("or" and)*
func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokIdent && p.tok.text == "or" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &orNode{left, right}
	}
	return left, nil
}

// and := not ("and" not)*
func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokIdent && p.tok.text == "and" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &andNode{left, right}
	}
	return left, nil
}

// not := "not" not | comparison
func (p *parser) parseNot() (node, error) {
	if p.tok.kind == tokIdent && p.tok.text == "not" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notNode{inner}, nil
	}
	return p.parseComparison()
}

// comparison := operand (op operand)?
func (p *parser) parseComparison() (node, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if p.tok.kind == tokOp {
		op := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &compareNode{op, left, right}, nil
	}
	if p.tok.kind == tokIdent && p.tok.text == "in" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &compareNode{"in", left, right}, nil
	}
	return left, nil
}

// operand := literal | identifier | "(" expr ")"
func (p *parser) parseOperand() (node, error) {
	switch p.tok.kind {
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokIdent:
		switch p.tok.text {
		case "null":
			if err := p.advance(); err != nil {
				return nil, err
			}
			return &literalNode{value.NewNull()}, nil
		case "true":
			if err := p.advance(); err != nil {
				return nil, err
			}
			return &literalNode{value.NewBool(true)}, nil
		case "false":
			if err := p.advance(); err != nil {
				return nil, err
			}
			return &literalNode{value.NewBool(false)}, nil
		case "and", "or", "not", "in":
			return nil, apperr.New(apperr.MalformedQuery, "unexpected keyword "+p.tok.text)
		default:
			name := p.tok.text
			if err := p.advance(); err != nil {
				return nil, err
			}
			return &fieldNode{name}, nil
		}
	case tokInt:
		i, err := parseIntLiteral(p.tok.text)
		if err != nil {
			return nil, apperr.Wrap(apperr.MalformedQuery, err, "invalid integer literal")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &literalNode{value.NewInt(i)}, nil
	case tokFloat:
		f, err := parseFloatLiteral(p.tok.text)
		if err != nil {
			return nil, apperr.Wrap(apperr.MalformedQuery, err, "invalid float literal")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &literalNode{value.NewFloat(f)}, nil
	case tokString:
		s := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &literalNode{value.NewString(s)}, nil
	case tokLBracket:
		return p.parseListLiteral()
	case tokLBrace:
		return p.parseMapLiteral()
	default:
		return nil, apperr.New(apperr.MalformedQuery, "expected an operand")
	}
}

func (p *parser) parseListLiteral() (node, error) {
	if err := p.advance(); err != nil { // consume '['
		return nil, err
	}
	var items []value.Value
	for p.tok.kind != tokRBracket {
		item, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		lit, ok := item.(*literalNode)
		if !ok {
			return nil, apperr.New(apperr.MalformedQuery, "list literals may only contain literals")
		}
		items = append(items, lit.v)
		if p.tok.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if err := p.expect(tokRBracket, "']'"); err != nil {
		return nil, err
	}
	return &literalNode{value.NewList(items)}, nil
}

func (p *parser) parseMapLiteral() (node, error) {
	if err := p.advance(); err != nil { // consume '{'
		return nil, err
	}
	items := map[string]value.Value{}
	for p.tok.kind != tokRBrace {
		if p.tok.kind != tokString && p.tok.kind != tokIdent {
			return nil, apperr.New(apperr.MalformedQuery, "expected a map key")
		}
		key := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expect(tokColon, "':'"); err != nil {
			return nil, err
		}
		val, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		lit, ok := val.(*literalNode)
		if !ok {
			return nil, apperr.New(apperr.MalformedQuery, "map literals may only contain literal values")
		}
		items[key] = lit.v
		if p.tok.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if err := p.expect(tokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return &literalNode{value.NewMap(items)}, nil
}
