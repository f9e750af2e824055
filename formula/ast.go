package formula

import (
	"strconv"
)

// Node is one of *Identifier, *NumberLiteral or *BinaryOp.
type Node interface {
	node()
	Position() int
}

// Identifier references a raw sensor channel by name
type Identifier struct {
	Name string
	Pos  int
}

// NumberLiteral is a constant operand
type NumberLiteral struct {
	Value float64
	Pos   int
}

// BinaryOp applies one of + - * / to two operands. Unary minus is parsed
// as a subtraction from zero.
type BinaryOp struct {
	Op    byte
	Left  Node
	Right Node
	Pos   int
}

func (*Identifier) node()    {}
func (*NumberLiteral) node() {}
func (*BinaryOp) node()      {}

func (n *Identifier) Position() int    { return n.Pos }
func (n *NumberLiteral) Position() int { return n.Pos }
func (n *BinaryOp) Position() int      { return n.Pos }

// Fold reduces the tree bottom-up. Operands are folded left before right.
func Fold[T any](n Node, ident func(*Identifier) T, num func(*NumberLiteral) T, bin func(*BinaryOp, T, T) T) T {
	switch v := n.(type) {
	case *Identifier:
		return ident(v)
	case *NumberLiteral:
		return num(v)
	case *BinaryOp:
		left := Fold(v.Left, ident, num, bin)
		right := Fold(v.Right, ident, num, bin)
		return bin(v, left, right)
	}
	panic("formula: unknown node type")
}

// Walk visits every node in pre-order, left operand first.
func Walk(n Node, fn func(Node)) {
	fn(n)
	if b, ok := n.(*BinaryOp); ok {
		Walk(b.Left, fn)
		Walk(b.Right, fn)
	}
}

// String renders the tree fully parenthesized.
func String(n Node) string {
	return Fold(n,
		func(id *Identifier) string { return id.Name },
		func(num *NumberLiteral) string { return strconv.FormatFloat(num.Value, 'f', -1, 64) },
		func(op *BinaryOp, l, r string) string { return "(" + l + " " + string(op.Op) + " " + r + ")" },
	)
}
