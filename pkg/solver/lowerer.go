package solver

import (
	"github.com/relfind/relfind/pkg/ast"
	"github.com/relfind/relfind/pkg/instance"
	"github.com/relfind/relfind/pkg/lower"
	"github.com/relfind/relfind/pkg/symmetry"
	"github.com/relfind/relfind/pkg/trace"
)

// Lowered is a formula translated to CNF, with enough structure left
// to interpret models, build blocking clauses and bias search.
type Lowered interface {
	Bounds() *instance.Bounds
	Clauses() [][]int
	NumVars() int
	NumPrimary() int
	TriviallySat() bool
	TriviallyUnsat() bool
	Instance(value func(v int) (bool, error)) (*instance.Instance, error)
	BlockingClause(value func(v int) (bool, error)) ([]int, error)
	TargetLiterals(target *instance.Instance) []int
}

// Lowerer translates formulas over bounds into propositional form.
// The built-in lowering covers the quantifier-free vocabulary of the
// ast package; richer front ends plug in their own.
type Lowerer interface {
	// Lower translates a static formula.
	Lower(f ast.Formula, b *instance.Bounds, sym *symmetry.Predicate) (Lowered, error)
	// LowerTrace translates a formula, temporal operators included,
	// against the codec's expanded bounds.
	LowerTrace(f ast.Formula, c *trace.Codec, sym *symmetry.Predicate) (Lowered, error)
}

type defaultLowerer struct {
	l *lower.Lowering
}

func (d defaultLowerer) Lower(f ast.Formula, b *instance.Bounds, sym *symmetry.Predicate) (Lowered, error) {
	p, err := d.l.Lower(f, b, sym)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (d defaultLowerer) LowerTrace(f ast.Formula, c *trace.Codec, sym *symmetry.Predicate) (Lowered, error) {
	p, err := d.l.LowerTrace(f, c, sym)
	if err != nil {
		return nil, err
	}
	return p, nil
}
