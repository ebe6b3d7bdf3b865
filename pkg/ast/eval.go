package ast

import (
	"github.com/pkg/errors"

	"github.com/relfind/relfind/pkg/instance"
)

// ErrTemporalContext is returned when a temporal operator is evaluated
// against a single static instance.
var ErrTemporalContext = errors.New("temporal operator evaluated outside a trace")

// Eval evaluates a formula against a single static instance. Temporal
// operators yield ErrTemporalContext.
func Eval(f Formula, inst *instance.Instance) (bool, error) {
	e := evaluator{inst: func(int) *instance.Instance { return inst }}
	return e.formula(f, 0, false)
}

// EvalTemporal evaluates a formula against a looping trace, starting
// at state 0. Next follows the trace's successor structure, wrapping
// from the last state back to the loop state; Always quantifies over
// every state reachable from the current one.
func EvalTemporal(f Formula, t *instance.TemporalInstance) (bool, error) {
	e := evaluator{inst: t.State, trace: t}
	return e.formula(f, 0, true)
}

// EvalExpr evaluates an expression against a single static instance.
func EvalExpr(e Expression, inst *instance.Instance) (*instance.TupleSet, error) {
	ev := evaluator{inst: func(int) *instance.Instance { return inst }}
	return ev.expr(e, 0)
}

type evaluator struct {
	inst  func(i int) *instance.Instance
	trace *instance.TemporalInstance
}

func (e *evaluator) formula(f Formula, state int, temporal bool) (bool, error) {
	switch f := f.(type) {
	case Constant:
		return bool(f), nil
	case *NotFormula:
		v, err := e.formula(f.F, state, temporal)
		return !v, err
	case *AndFormula:
		for _, c := range f.Conjuncts {
			v, err := e.formula(c, state, temporal)
			if err != nil || !v {
				return false, err
			}
		}
		return true, nil
	case *OrFormula:
		for _, d := range f.Disjuncts {
			v, err := e.formula(d, state, temporal)
			if err != nil || v {
				return v, err
			}
		}
		return false, nil
	case *ImpliesFormula:
		a, err := e.formula(f.Antecedent, state, temporal)
		if err != nil {
			return false, err
		}
		if !a {
			return true, nil
		}
		return e.formula(f.Consequent, state, temporal)
	case *SubsetFormula:
		l, err := e.expr(f.Left, state)
		if err != nil {
			return false, err
		}
		r, err := e.expr(f.Right, state)
		if err != nil {
			return false, err
		}
		return r.ContainsAll(l), nil
	case *EqualFormula:
		l, err := e.expr(f.Left, state)
		if err != nil {
			return false, err
		}
		r, err := e.expr(f.Right, state)
		if err != nil {
			return false, err
		}
		return l.Equal(r), nil
	case *OneFormula:
		ts, err := e.expr(f.Expr, state)
		if err != nil {
			return false, err
		}
		return ts.Len() == 1, nil
	case *SomeFormula:
		ts, err := e.expr(f.Expr, state)
		if err != nil {
			return false, err
		}
		return !ts.Empty(), nil
	case *NoFormula:
		ts, err := e.expr(f.Expr, state)
		if err != nil {
			return false, err
		}
		return ts.Empty(), nil
	case *NextFormula:
		if !temporal {
			return false, ErrTemporalContext
		}
		return e.formula(f.F, e.successor(state), true)
	case *AlwaysFormula:
		if !temporal {
			return false, ErrTemporalContext
		}
		for _, j := range e.reachable(state) {
			v, err := e.formula(f.F, j, true)
			if err != nil || !v {
				return false, err
			}
		}
		return true, nil
	default:
		return false, errors.Errorf("cannot evaluate formula %T", f)
	}
}

func (e *evaluator) expr(x Expression, state int) (*instance.TupleSet, error) {
	switch x := x.(type) {
	case *RelationExpr:
		inst := e.inst(state)
		ts := inst.Tuples(x.R)
		if ts == nil {
			return nil, errors.Errorf("relation %s has no value in the instance", x.R.Name())
		}
		return ts, nil
	case *ConstExpr:
		return x.Set, nil
	case *NoneExpr:
		return instance.NewTupleSet(x.Arity()), nil
	case *UnionExpr:
		l, err := e.expr(x.Left, state)
		if err != nil {
			return nil, err
		}
		r, err := e.expr(x.Right, state)
		if err != nil {
			return nil, err
		}
		if l.Arity() != r.Arity() {
			return nil, errors.Errorf("union arity mismatch: %d vs %d", l.Arity(), r.Arity())
		}
		return l.Union(r), nil
	case *ProductExpr:
		l, err := e.expr(x.Left, state)
		if err != nil {
			return nil, err
		}
		r, err := e.expr(x.Right, state)
		if err != nil {
			return nil, err
		}
		return l.Product(r), nil
	default:
		return nil, errors.Errorf("cannot evaluate expression %T", x)
	}
}

// successor returns the state following i: i+1 within the trace, and
// the loop state after the last state.
func (e *evaluator) successor(i int) int {
	if i >= e.trace.Len()-1 {
		return e.trace.Loop()
	}
	return i + 1
}

// reachable returns the states visited from i onwards, inclusive.
func (e *evaluator) reachable(i int) []int {
	lo := i
	if loop := e.trace.Loop(); i > loop {
		lo = loop
	}
	out := make([]int, 0, e.trace.Len()-lo)
	for j := lo; j < e.trace.Len(); j++ {
		out = append(out, j)
	}
	return out
}
