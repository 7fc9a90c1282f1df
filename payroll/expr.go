package payroll

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// divisionPrecision bounds the digits kept by formula division.
const divisionPrecision = 16

var (
	ErrFormulaSyntax   = errors.New("formula syntax error")
	ErrUnknownVariable = errors.New("unknown formula variable")
	ErrDivisionByZero  = errors.New("division by zero")
	ErrEmptyFormula    = errors.New("empty formula")
)

// =============================================================================
// EXPRESSION - Restricted arithmetic over decimals
// =============================================================================

// Expression is a parsed arithmetic formula. The grammar is
//
//	expr   := term (('+' | '-') term)*
//	term   := unary (('*' | '/') unary)*
//	unary  := ('+' | '-') unary | factor
//	factor := number | identifier | '(' expr ')'
//
// Nothing else is accepted; there are no calls, comparisons or conditionals.
type Expression struct {
	source string
	root   node
	idents []string
}

// ParseExpression parses src into an Expression.
func ParseExpression(src string) (*Expression, error) {
	if strings.TrimSpace(src) == "" {
		return nil, ErrEmptyFormula
	}
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrFormulaSyntax, p.toks[p.pos].text, p.toks[p.pos].offset)
	}
	return &Expression{source: src, root: root, idents: p.idents}, nil
}

func (e *Expression) String() string { return e.source }

// Identifiers returns the variable names referenced, in first-use order.
func (e *Expression) Identifiers() []string { return append([]string(nil), e.idents...) }

// Evaluate computes the expression with vars bound.
func (e *Expression) Evaluate(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	return e.root.eval(vars)
}

// EvaluateFormula parses and evaluates src in one step.
func EvaluateFormula(src string, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	expr, err := ParseExpression(src)
	if err != nil {
		return decimal.Zero, err
	}
	return expr.Evaluate(vars)
}

// =============================================================================
// AST
// =============================================================================

type node interface {
	eval(vars map[string]decimal.Decimal) (decimal.Decimal, error)
}

type numberNode struct{ value decimal.Decimal }

func (n numberNode) eval(map[string]decimal.Decimal) (decimal.Decimal, error) { return n.value, nil }

type identNode struct{ name string }

func (n identNode) eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	v, ok := vars[n.name]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownVariable, n.name)
	}
	return v, nil
}

type negNode struct{ operand node }

func (n negNode) eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	v, err := n.operand.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Neg(), nil
}

type binaryNode struct {
	op          byte
	left, right node
}

func (n binaryNode) eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	l, err := n.left.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	r, err := n.right.eval(vars)
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
		return l.DivRound(r, divisionPrecision), nil
	}
	return decimal.Zero, fmt.Errorf("%w: operator %q", ErrFormulaSyntax, n.op)
}

// =============================================================================
// LEXER
// =============================================================================

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind   tokenKind
	text   string
	offset int
}

func tokenize(src string) ([]token, error) {
	var toks []token
	runes := []rune(src)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || r == '.':
			start := i
			seenDot := false
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				if runes[i] == '.' {
					if seenDot {
						return nil, fmt.Errorf("%w: malformed number at offset %d", ErrFormulaSyntax, start)
					}
					seenDot = true
				}
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: string(runes[start:i]), offset: start})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: string(runes[start:i]), offset: start})
		case r == '+' || r == '-' || r == '*' || r == '/':
			toks = append(toks, token{kind: tokOp, text: string(r), offset: i})
			i++
		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", offset: i})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", offset: i})
			i++
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at offset %d", ErrFormulaSyntax, r, i)
		}
	}
	return toks, nil
}

// =============================================================================
// PARSER - Recursive descent
// =============================================================================

type parser struct {
	toks   []token
	pos    int
	idents []string
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOp || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: t.text[0], left: left, right: right}
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOp || (t.text != "*" && t.text != "/") {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: t.text[0], left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	t, ok := p.peek()
	if ok && t.kind == tokOp && (t.text == "+" || t.text == "-") {
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if t.text == "-" {
			return negNode{operand: operand}, nil
		}
		return operand, nil
	}
	return p.parseFactor()
}

func (p *parser) parseFactor() (node, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("%w: unexpected end of formula", ErrFormulaSyntax)
	}
	switch t.kind {
	case tokNumber:
		p.pos++
		d, err := decimal.NewFromString(t.text)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q", ErrFormulaSyntax, t.text)
		}
		return numberNode{value: d}, nil
	case tokIdent:
		p.pos++
		p.addIdent(t.text)
		return identNode{name: t.text}, nil
	case tokLParen:
		p.pos++
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokRParen {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrFormulaSyntax)
		}
		p.pos++
		return inner, nil
	}
	return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrFormulaSyntax, t.text, t.offset)
}

func (p *parser) addIdent(name string) {
	for _, existing := range p.idents {
		if existing == name {
			return
		}
	}
	p.idents = append(p.idents, name)
}
