package formula

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnknownVariable is returned when a referenced identifier has no value.
	ErrUnknownVariable = errors.New("variable has no value")
	// ErrDivisionByZero is returned when a divisor evaluates to zero.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrNotFinite is returned when the result is NaN or infinite.
	ErrNotFinite = errors.New("result is not a finite number")
)

type evalFunc func(vars map[string]float64) (float64, error)

// Program is a compiled formula, safe for concurrent evaluation.
type Program struct {
	source    string
	root      Node
	eval      evalFunc
	variables []string
}

// Compile parses the formula and prepares it for repeated evaluation.
func Compile(source string) (*Program, error) {
	root, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return &Program{
		source:    source,
		root:      root,
		eval:      compileNode(root),
		variables: collectIdentifiers(root),
	}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(source string) *Program {
	p, err := Compile(source)
	if err != nil {
		panic(err)
	}
	return p
}

// Source returns the formula text as compiled.
func (p *Program) Source() string { return p.source }

// Root returns the parsed expression tree.
func (p *Program) Root() Node { return p.root }

// Variables returns the referenced identifiers in first-seen order.
func (p *Program) Variables() []string {
	out := make([]string, len(p.variables))
	copy(out, p.variables)
	return out
}

// Eval computes the formula against the given variable values.
func (p *Program) Eval(vars map[string]float64) (float64, error) {
	v, err := p.eval(vars)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNotFinite
	}
	return v, nil
}

func compileNode(root Node) evalFunc {
	return Fold(root,
		func(id *Identifier) evalFunc {
			name := id.Name
			return func(vars map[string]float64) (float64, error) {
				v, ok := vars[name]
				if !ok {
					return 0, fmt.Errorf("%w: %s", ErrUnknownVariable, name)
				}
				return v, nil
			}
		},
		func(num *NumberLiteral) evalFunc {
			value := num.Value
			return func(map[string]float64) (float64, error) { return value, nil }
		},
		func(op *BinaryOp, left, right evalFunc) evalFunc {
			apply := arithmetic(op.Op)
			return func(vars map[string]float64) (float64, error) {
				l, err := left(vars)
				if err != nil {
					return 0, err
				}
				r, err := right(vars)
				if err != nil {
					return 0, err
				}
				return apply(l, r)
			}
		},
	)
}

func arithmetic(op byte) func(l, r float64) (float64, error) {
	switch op {
	case '+':
		return func(l, r float64) (float64, error) { return l + r, nil }
	case '-':
		return func(l, r float64) (float64, error) { return l - r, nil }
	case '*':
		return func(l, r float64) (float64, error) { return l * r, nil }
	case '/':
		return func(l, r float64) (float64, error) {
			if r == 0 {
				return 0, ErrDivisionByZero
			}
			return l / r, nil
		}
	}
	panic(fmt.Sprintf("formula: unsupported operator %q", op))
}
