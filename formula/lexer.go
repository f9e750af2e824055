package formula

import (
	"fmt"
)

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenIdent
	tokenNumber
	tokenOperator
	tokenLParen
	tokenRParen
)

type token struct {
	typ   tokenType
	value string
	pos   int
}

func (t token) String() string {
	if t.typ == tokenEOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", t.value)
}

type lexer struct {
	input string
	pos   int
}

// tokenize splits a formula into tokens, terminated by tokenEOF.
func tokenize(input string) ([]token, error) {
	l := &lexer{input: input}
	var tokens []token
	for {
		l.skipWhitespace()
		if l.pos >= len(l.input) {
			break
		}
		ch := l.input[l.pos]
		switch {
		case ch == '+' || ch == '-' || ch == '*' || ch == '/':
			tokens = append(tokens, token{typ: tokenOperator, value: string(ch), pos: l.pos})
			l.pos++
		case ch == '(':
			tokens = append(tokens, token{typ: tokenLParen, value: "(", pos: l.pos})
			l.pos++
		case ch == ')':
			tokens = append(tokens, token{typ: tokenRParen, value: ")", pos: l.pos})
			l.pos++
		case isDigit(ch) || (ch == '.' && isDigit(l.peek(1))):
			tok, err := l.readNumber()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
		case isIdentStart(ch):
			tokens = append(tokens, l.readIdent())
		default:
			return nil, &ParseError{Formula: input, Pos: l.pos, Msg: fmt.Sprintf("unexpected character %q", ch)}
		}
	}
	tokens = append(tokens, token{typ: tokenEOF, pos: l.pos})
	return tokens, nil
}

func (l *lexer) skipWhitespace() {
	for l.pos < len(l.input) && (l.input[l.pos] == ' ' || l.input[l.pos] == '\t' || l.input[l.pos] == '\n' || l.input[l.pos] == '\r') {
		l.pos++
	}
}

func (l *lexer) peek(offset int) byte {
	idx := l.pos + offset
	if idx < len(l.input) {
		return l.input[idx]
	}
	return 0
}

// readNumber accepts 12, 12.5, .5 and an optional exponent (1e3, 2.5E-2).
func (l *lexer) readNumber() (token, error) {
	start := l.pos
	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.input) && l.input[l.pos] == '.' {
		l.pos++
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
	}
	if ch := l.peek(0); ch == 'e' || ch == 'E' {
		next := l.pos + 1
		if next < len(l.input) && (l.input[next] == '+' || l.input[next] == '-') {
			next++
		}
		if next < len(l.input) && isDigit(l.input[next]) {
			l.pos = next
			for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
				l.pos++
			}
		}
	}
	if l.pos < len(l.input) && isIdentStart(l.input[l.pos]) {
		return token{}, &ParseError{Formula: l.input, Pos: l.pos, Msg: "identifier cannot follow a number"}
	}
	return token{typ: tokenNumber, value: l.input[start:l.pos], pos: start}, nil
}

func (l *lexer) readIdent() token {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}
	return token{typ: tokenIdent, value: l.input[start:l.pos], pos: start}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch == '$'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
