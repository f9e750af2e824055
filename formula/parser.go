package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError reports a syntactically invalid formula.
type ParseError struct {
	Formula string
	Pos     int
	Msg     string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("formula %q: %s at position %d", e.Formula, e.Msg, e.Pos)
}

type parser struct {
	input  string
	tokens []token
	pos    int
}

// Parse builds the syntax tree of an arithmetic formula.
//
// Grammar:
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/") unary }
//	unary   = ("+" | "-") unary | primary
//	primary = number | identifier | "(" expr ")"
func Parse(input string) (Node, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &ParseError{Formula: input, Pos: 0, Msg: "empty formula"}
	}
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{input: input, tokens: tokens}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.current(); tok.typ != tokenEOF {
		return nil, p.errorf(tok, "unexpected %s", tok)
	}
	return root, nil
}

func (p *parser) current() token {
	return p.tokens[p.pos]
}

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.typ != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return &ParseError{Formula: p.input, Pos: tok.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) isOperator(ops ...string) bool {
	tok := p.current()
	if tok.typ != tokenOperator {
		return false
	}
	for _, op := range ops {
		if tok.value == op {
			return true
		}
	}
	return false
}

func (p *parser) parseExpr() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.isOperator("+", "-") {
		op := p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: op.value[0], Left: left, Right: right, Pos: op.pos}
	}
	return left, nil
}

func (p *parser) parseTerm() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOperator("*", "/") {
		op := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: op.value[0], Left: left, Right: right, Pos: op.pos}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.isOperator("+", "-") {
		op := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if op.value == "+" {
			return operand, nil
		}
		return &BinaryOp{Op: '-', Left: &NumberLiteral{Value: 0, Pos: op.pos}, Right: operand, Pos: op.pos}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.advance()
	switch tok.typ {
	case tokenNumber:
		v, err := strconv.ParseFloat(tok.value, 64)
		if err != nil {
			return nil, p.errorf(tok, "invalid number %q", tok.value)
		}
		return &NumberLiteral{Value: v, Pos: tok.pos}, nil
	case tokenIdent:
		return &Identifier{Name: tok.value, Pos: tok.pos}, nil
	case tokenLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if closing := p.advance(); closing.typ != tokenRParen {
			return nil, p.errorf(closing, "expected \")\", got %s", closing)
		}
		return inner, nil
	default:
		return nil, p.errorf(tok, "unexpected %s", tok)
	}
}
