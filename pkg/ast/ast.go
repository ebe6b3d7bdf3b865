// Package ast carries the relational formula vocabulary this core
// consumes and synthesizes. It is deliberately small: the full
// front-end language lives in the calling tool; this package covers
// only the fragment needed to characterize instances, state side
// conditions, and express the temporal wrappers of trace formulas.
package ast

import (
	"fmt"
	"strings"

	"github.com/relfind/relfind/pkg/instance"
)

// Formula is a relational-logic formula node.
type Formula interface {
	fmt.Stringer
	formulaNode()
}

// Expression is a relational expression node denoting a tuple set.
type Expression interface {
	fmt.Stringer
	Arity() int
	exprNode()
}

// Constant is a boolean formula constant.
type Constant bool

// True and False are the constant formulas.
const (
	True  Constant = true
	False Constant = false
)

func (Constant) formulaNode() {}

func (c Constant) String() string {
	if c {
		return "true"
	}
	return "false"
}

// NotFormula negates its operand.
type NotFormula struct{ F Formula }

func (*NotFormula) formulaNode()     {}
func (f *NotFormula) String() string { return "!(" + f.F.String() + ")" }

// Not returns the negation of f, collapsing double negation.
func Not(f Formula) Formula {
	if n, ok := f.(*NotFormula); ok {
		return n.F
	}
	if c, ok := f.(Constant); ok {
		return !c
	}
	return &NotFormula{F: f}
}

// AndFormula is an n-ary conjunction.
type AndFormula struct{ Conjuncts []Formula }

func (*AndFormula) formulaNode() {}
func (f *AndFormula) String() string {
	return join(f.Conjuncts, " && ")
}

// And returns the conjunction of the given formulas. The empty
// conjunction is True.
func And(fs ...Formula) Formula {
	flat := make([]Formula, 0, len(fs))
	for _, f := range fs {
		if c, ok := f.(Constant); ok {
			if !bool(c) {
				return False
			}
			continue
		}
		flat = append(flat, f)
	}
	switch len(flat) {
	case 0:
		return True
	case 1:
		return flat[0]
	}
	return &AndFormula{Conjuncts: flat}
}

// OrFormula is an n-ary disjunction.
type OrFormula struct{ Disjuncts []Formula }

func (*OrFormula) formulaNode() {}
func (f *OrFormula) String() string {
	return join(f.Disjuncts, " || ")
}

// Or returns the disjunction of the given formulas. The empty
// disjunction is False.
func Or(fs ...Formula) Formula {
	flat := make([]Formula, 0, len(fs))
	for _, f := range fs {
		if c, ok := f.(Constant); ok {
			if bool(c) {
				return True
			}
			continue
		}
		flat = append(flat, f)
	}
	switch len(flat) {
	case 0:
		return False
	case 1:
		return flat[0]
	}
	return &OrFormula{Disjuncts: flat}
}

// ImpliesFormula is a material implication.
type ImpliesFormula struct{ Antecedent, Consequent Formula }

func (*ImpliesFormula) formulaNode() {}
func (f *ImpliesFormula) String() string {
	return "(" + f.Antecedent.String() + " => " + f.Consequent.String() + ")"
}

// Implies returns the implication antecedent => consequent.
func Implies(antecedent, consequent Formula) Formula {
	return &ImpliesFormula{Antecedent: antecedent, Consequent: consequent}
}

// SubsetFormula asserts that Left's value is contained in Right's.
type SubsetFormula struct{ Left, Right Expression }

func (*SubsetFormula) formulaNode() {}
func (f *SubsetFormula) String() string {
	return f.Left.String() + " in " + f.Right.String()
}

// Subset asserts left ⊆ right.
func Subset(left, right Expression) Formula {
	return &SubsetFormula{Left: left, Right: right}
}

// EqualFormula asserts that both expressions denote the same tuples.
type EqualFormula struct{ Left, Right Expression }

func (*EqualFormula) formulaNode() {}
func (f *EqualFormula) String() string {
	return f.Left.String() + " = " + f.Right.String()
}

// Equal asserts left = right.
func Equal(left, right Expression) Formula {
	return &EqualFormula{Left: left, Right: right}
}

// OneFormula asserts its expression denotes exactly one tuple.
type OneFormula struct{ Expr Expression }

func (*OneFormula) formulaNode()     {}
func (f *OneFormula) String() string { return "one " + f.Expr.String() }

// One asserts that e denotes exactly one tuple.
func One(e Expression) Formula { return &OneFormula{Expr: e} }

// SomeFormula asserts its expression denotes at least one tuple.
type SomeFormula struct{ Expr Expression }

func (*SomeFormula) formulaNode()     {}
func (f *SomeFormula) String() string { return "some " + f.Expr.String() }

// Some asserts that e is non-empty.
func Some(e Expression) Formula { return &SomeFormula{Expr: e} }

// NoFormula asserts its expression denotes no tuples.
type NoFormula struct{ Expr Expression }

func (*NoFormula) formulaNode()     {}
func (f *NoFormula) String() string { return "no " + f.Expr.String() }

// No asserts that e is empty.
func No(e Expression) Formula { return &NoFormula{Expr: e} }

// NextFormula shifts evaluation of its operand one state forward.
type NextFormula struct{ F Formula }

func (*NextFormula) formulaNode()     {}
func (f *NextFormula) String() string { return "after (" + f.F.String() + ")" }

// Next returns the formula asserting f at the following state.
func Next(f Formula) Formula { return &NextFormula{F: f} }

// NextN applies Next n times.
func NextN(f Formula, n int) Formula {
	for ; n > 0; n-- {
		f = Next(f)
	}
	return f
}

// AlwaysFormula asserts its operand at every reachable state.
type AlwaysFormula struct{ F Formula }

func (*AlwaysFormula) formulaNode()     {}
func (f *AlwaysFormula) String() string { return "always (" + f.F.String() + ")" }

// Always returns the formula asserting f at the current and every
// later state.
func Always(f Formula) Formula { return &AlwaysFormula{F: f} }

// RelationExpr references a declared relation.
type RelationExpr struct{ R *instance.Relation }

func (*RelationExpr) exprNode()        {}
func (e *RelationExpr) Arity() int     { return e.R.Arity() }
func (e *RelationExpr) String() string { return e.R.Name() }

// Rel returns an expression referencing the given relation.
func Rel(r *instance.Relation) Expression { return &RelationExpr{R: r} }

// ConstExpr is a literal tuple set.
type ConstExpr struct{ Set *instance.TupleSet }

func (*ConstExpr) exprNode()        {}
func (e *ConstExpr) Arity() int     { return e.Set.Arity() }
func (e *ConstExpr) String() string { return e.Set.String() }

// Const returns an expression denoting the given tuples.
func Const(ts *instance.TupleSet) Expression { return &ConstExpr{Set: ts.Clone()} }

// AtomExpr returns the singleton expression reifying the given atom.
func AtomExpr(a instance.Atom) Expression {
	return Const(instance.NewTupleSet(1, instance.NewTuple(a)))
}

// ProductExpr is the cross product of two expressions.
type ProductExpr struct{ Left, Right Expression }

func (*ProductExpr) exprNode()    {}
func (e *ProductExpr) Arity() int { return e.Left.Arity() + e.Right.Arity() }
func (e *ProductExpr) String() string {
	return e.Left.String() + "->" + e.Right.String()
}

// Product returns the cross product left -> right.
func Product(left, right Expression) Expression {
	return &ProductExpr{Left: left, Right: right}
}

// UnionExpr is the union of two expressions of equal arity.
type UnionExpr struct{ Left, Right Expression }

func (*UnionExpr) exprNode()    {}
func (e *UnionExpr) Arity() int { return e.Left.Arity() }
func (e *UnionExpr) String() string {
	return e.Left.String() + " + " + e.Right.String()
}

// Union returns the union left + right.
func Union(left, right Expression) Expression {
	return &UnionExpr{Left: left, Right: right}
}

// NoneExpr is the empty expression of a given arity.
type NoneExpr struct{ arity int }

func (*NoneExpr) exprNode()        {}
func (e *NoneExpr) Arity() int     { return e.arity }
func (e *NoneExpr) String() string { return "none" }

// None returns the empty expression of the given arity.
func None(arity int) Expression { return &NoneExpr{arity: arity} }

func join(fs []Formula, sep string) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = "(" + f.String() + ")"
	}
	return strings.Join(parts, sep)
}
