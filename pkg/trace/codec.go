// Package trace translates between looping traces and their static,
// state-augmented encodings. A Codec fixes a trace length over some
// base temporal bounds; it can expand the bounds for a static solve,
// flatten explicit states into one instance, recover the states from a
// solved flat instance, and express a trace as a temporal formula.
package trace

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/relfind/relfind/pkg/ast"
	"github.com/relfind/relfind/pkg/instance"
)

// ErrNoLoop is returned by Unflatten when the flat instance assigns no
// atom to the loop relation; every well-formed trace loops somewhere.
var ErrNoLoop = errors.New("flattened instance has an empty loop relation")

// StateAtom returns the atom standing for the i-th state of a trace.
func StateAtom(i int) instance.Atom {
	return instance.Atom(fmt.Sprintf("Time%d", i))
}

// Codec encodes traces of one fixed length. It is immutable after
// construction and safe for concurrent use.
type Codec struct {
	base     *instance.Bounds
	steps    int
	universe *instance.Universe

	first  *instance.Relation
	last   *instance.Relation
	loop   *instance.Relation
	states *instance.Relation
	prefix *instance.Relation

	// flattened maps each time-varying relation to its static,
	// state-extended counterpart and originals maps back.
	flattened map[*instance.Relation]*instance.Relation
	originals map[*instance.Relation]*instance.Relation
	stateIdx  map[instance.Atom]int
}

// NewCodec returns a codec for traces of exactly steps states over the
// given temporal bounds.
func NewCodec(b *instance.Bounds, steps int) (*Codec, error) {
	if steps < 1 {
		return nil, errors.Errorf("trace length must be positive, got %d", steps)
	}
	extra := make([]instance.Atom, steps)
	for i := range extra {
		extra[i] = StateAtom(i)
	}
	u, err := b.Universe().Extend(extra...)
	if err != nil {
		return nil, errors.Wrap(err, "state atoms collide with the universe")
	}
	c := &Codec{
		base:      b,
		steps:     steps,
		universe:  u,
		first:     instance.NewRelation("$first", 1),
		last:      instance.NewRelation("$last", 1),
		loop:      instance.NewRelation("$loop", 1),
		states:    instance.NewRelation("$state", 1),
		prefix:    instance.NewRelation("$prefix", 2),
		flattened: make(map[*instance.Relation]*instance.Relation),
		originals: make(map[*instance.Relation]*instance.Relation),
		stateIdx:  make(map[instance.Atom]int, steps),
	}
	for i, a := range extra {
		c.stateIdx[a] = i
	}
	for _, r := range b.Relations() {
		if r.Kind() != instance.TimeVarying {
			continue
		}
		flat := instance.NewRelation(r.Name(), r.Arity()+1)
		c.flattened[r] = flat
		c.originals[flat] = r
	}
	return c, nil
}

// Steps returns the trace length the codec encodes.
func (c *Codec) Steps() int {
	return c.steps
}

// Base returns the temporal bounds the codec was built over.
func (c *Codec) Base() *instance.Bounds {
	return c.base
}

// Universe returns the state-augmented universe.
func (c *Codec) Universe() *instance.Universe {
	return c.universe
}

// LoopRelation returns the unary relation holding the loop state.
func (c *Codec) LoopRelation() *instance.Relation {
	return c.loop
}

// Flattened returns the static counterpart of a time-varying relation,
// or nil if the relation is not time-varying under the base bounds.
func (c *Codec) Flattened(r *instance.Relation) *instance.Relation {
	return c.flattened[r]
}

// StateIndex returns the state index an atom stands for, if any.
func (c *Codec) StateIndex(a instance.Atom) (int, bool) {
	i, ok := c.stateIdx[a]
	return i, ok
}

// ExpandBounds returns static bounds over the augmented universe.
// Static relations keep their bounds. Each time-varying relation is
// replaced by its flattened counterpart, bounded state by state. The
// skeleton relations pin the state ordering exactly, except for the
// loop relation, which may fall on any state.
func (c *Codec) ExpandBounds() (*instance.Bounds, error) {
	out := instance.NewBounds(c.universe)
	for _, r := range c.base.Relations() {
		lower, upper := c.base.Lower(r), c.base.Upper(r)
		if r.Kind() != instance.TimeVarying {
			if err := out.Bound(r, lower, upper); err != nil {
				return nil, err
			}
			continue
		}
		flatLower := instance.NewTupleSet(r.Arity() + 1)
		flatUpper := instance.NewTupleSet(r.Arity() + 1)
		for i := 0; i < c.steps; i++ {
			flatLower = flatLower.Union(lower.ProductAtom(StateAtom(i)))
			flatUpper = flatUpper.Union(upper.ProductAtom(StateAtom(i)))
		}
		if err := out.Bound(c.flattened[r], flatLower, flatUpper); err != nil {
			return nil, err
		}
	}

	all := instance.NewTupleSet(1)
	ordering := instance.NewTupleSet(2)
	for i := 0; i < c.steps; i++ {
		all.Add(instance.Tuple{StateAtom(i)})
		if i+1 < c.steps {
			ordering.Add(instance.Tuple{StateAtom(i), StateAtom(i + 1)})
		}
	}
	exact := []struct {
		r  *instance.Relation
		ts *instance.TupleSet
	}{
		{c.first, instance.NewTupleSet(1, instance.Tuple{StateAtom(0)})},
		{c.last, instance.NewTupleSet(1, instance.Tuple{StateAtom(c.steps - 1)})},
		{c.states, all},
		{c.prefix, ordering},
	}
	for _, e := range exact {
		if err := out.BoundExactly(e.r, e.ts); err != nil {
			return nil, err
		}
	}
	if err := out.Bound(c.loop, instance.NewTupleSet(1), all); err != nil {
		return nil, err
	}
	return out, nil
}

// Flatten builds a trace from explicit states and a loop index. All
// states must share the base universe, value the same relations, agree
// on every static relation, and value time-varying relations only if
// the base bounds bound them.
func (c *Codec) Flatten(states []*instance.Instance, loop int) (*instance.TemporalInstance, error) {
	if len(states) != c.steps {
		return nil, errors.Errorf("trace has %d states, codec encodes %d", len(states), c.steps)
	}
	if loop < 0 || loop >= len(states) {
		return nil, errors.Errorf("loop index %d outside trace of %d states", loop, len(states))
	}
	first := states[0]
	if !first.Universe().Equal(c.base.Universe()) {
		return nil, errors.New("trace states drawn from a different universe")
	}

	flat := instance.NewInstance(c.universe)
	for _, r := range first.Relations() {
		if r.Kind() != instance.TimeVarying {
			for i, st := range states[1:] {
				v := st.Tuples(r)
				if v == nil || !v.Equal(first.Tuples(r)) {
					return nil, errors.Errorf("static relation %s changes value at state %d", r.Name(), i+1)
				}
			}
			if err := flat.Add(r, first.Tuples(r)); err != nil {
				return nil, err
			}
			continue
		}
		value := instance.NewTupleSet(r.Arity() + 1)
		for i, st := range states {
			v := st.Tuples(r)
			if v == nil {
				return nil, errors.Errorf("state %d gives no value to %s", i, r.Name())
			}
			value = value.Union(v.ProductAtom(StateAtom(i)))
		}
		fr := c.flattened[r]
		if fr == nil {
			return nil, errors.Errorf("time-varying relation %s is not bounded", r.Name())
		}
		if err := flat.Add(fr, value); err != nil {
			return nil, err
		}
	}
	if err := c.addSkeleton(flat, loop); err != nil {
		return nil, err
	}
	return instance.NewTemporalInstance(states, loop, flat), nil
}

// Unflatten recovers the trace a solved flat instance encodes. The
// loop index is read from the loop relation, which must hold exactly
// one state atom.
func (c *Codec) Unflatten(flat *instance.Instance) (*instance.TemporalInstance, error) {
	loopVal := flat.Tuples(c.loop)
	if loopVal == nil || loopVal.Empty() {
		return nil, errors.Wrap(ErrNoLoop, "cannot recover trace")
	}
	if loopVal.Len() > 1 {
		return nil, errors.Errorf("loop relation holds %d states, want one", loopVal.Len())
	}
	loop, ok := c.stateIdx[loopVal.Tuples()[0][0]]
	if !ok {
		return nil, errors.Errorf("loop relation holds non-state atom %s", loopVal.Tuples()[0])
	}

	states := make([]*instance.Instance, c.steps)
	for i := range states {
		states[i] = instance.NewInstance(c.base.Universe())
	}
	for _, r := range flat.Relations() {
		switch r {
		case c.first, c.last, c.loop, c.states, c.prefix:
			continue
		}
		if orig := c.originals[r]; orig != nil {
			perState := make([]*instance.TupleSet, c.steps)
			for i := range perState {
				perState[i] = instance.NewTupleSet(orig.Arity())
			}
			for _, t := range flat.Tuples(r).Tuples() {
				i, ok := c.stateIdx[t[len(t)-1]]
				if !ok {
					return nil, errors.Errorf("tuple %s of %s lacks a state column", t, r.Name())
				}
				perState[i].Add(t[:len(t)-1])
			}
			for i, st := range states {
				if err := st.Add(orig, perState[i]); err != nil {
					return nil, err
				}
			}
			continue
		}
		for _, t := range flat.Tuples(r).Tuples() {
			for _, a := range t {
				if _, isState := c.stateIdx[a]; isState {
					return nil, errors.Errorf("static relation %s mentions state atom %q", r.Name(), a)
				}
			}
		}
		for _, st := range states {
			if err := st.Add(r, flat.Tuples(r)); err != nil {
				return nil, err
			}
		}
	}
	return instance.NewTemporalInstance(states, loop, flat), nil
}

func (c *Codec) addSkeleton(flat *instance.Instance, loop int) error {
	all := instance.NewTupleSet(1)
	ordering := instance.NewTupleSet(2)
	for i := 0; i < c.steps; i++ {
		all.Add(instance.Tuple{StateAtom(i)})
		if i+1 < c.steps {
			ordering.Add(instance.Tuple{StateAtom(i), StateAtom(i + 1)})
		}
	}
	fill := []struct {
		r  *instance.Relation
		ts *instance.TupleSet
	}{
		{c.first, instance.NewTupleSet(1, instance.Tuple{StateAtom(0)})},
		{c.last, instance.NewTupleSet(1, instance.Tuple{StateAtom(c.steps - 1)})},
		{c.loop, instance.NewTupleSet(1, instance.Tuple{StateAtom(loop)})},
		{c.states, all},
		{c.prefix, ordering},
	}
	for _, e := range fill {
		if err := flat.Add(e.r, e.ts); err != nil {
			return err
		}
	}
	return nil
}

// Formulate returns a temporal formula that holds exactly on traces
// unrolling to the same infinite sequence as t. States are pinned
// front to back by nesting each state's description under one more
// next operator; the loop is pinned by requiring each looping state to
// recur one loop period later, which rules out traces with the same
// states but a different loop index. Atom reification is shared
// through reif so equal atoms yield identical expressions across
// calls; pass nil for a private table.
func (c *Codec) Formulate(t *instance.TemporalInstance, reif map[instance.Atom]ast.Expression) (ast.Formula, error) {
	if t.Len() == 0 {
		return nil, errors.New("cannot formulate an empty trace")
	}
	if reif == nil {
		reif = make(map[instance.Atom]ast.Expression)
	}
	perState := make([]ast.Formula, t.Len())
	for i := range perState {
		f, err := c.formulateState(t.State(i), reif)
		if err != nil {
			return nil, err
		}
		perState[i] = f
	}
	body := perState[t.Len()-1]
	for i := t.Len() - 2; i >= 0; i-- {
		body = ast.And(perState[i], ast.Next(body))
	}
	period := t.Len() - t.Loop()
	recurring := make([]ast.Formula, 0, period)
	for i := t.Loop(); i < t.Len(); i++ {
		recurring = append(recurring, ast.Implies(perState[i], ast.NextN(perState[i], period)))
	}
	return ast.And(body, ast.NextN(ast.Always(ast.And(recurring...)), t.Loop())), nil
}

// formulateState describes one state as the conjunction of relation
// equalities against reified constant expressions.
func (c *Codec) formulateState(st *instance.Instance, reif map[instance.Atom]ast.Expression) (ast.Formula, error) {
	conjuncts := make([]ast.Formula, 0, len(st.Relations()))
	for _, r := range st.Relations() {
		value, err := c.reify(st.Tuples(r), reif)
		if err != nil {
			return nil, err
		}
		conjuncts = append(conjuncts, ast.Equal(ast.Rel(r), value))
	}
	return ast.And(conjuncts...), nil
}

// reify turns a tuple set into a union of products of singleton atom
// expressions, reusing expressions recorded in reif.
func (c *Codec) reify(ts *instance.TupleSet, reif map[instance.Atom]ast.Expression) (ast.Expression, error) {
	if ts.Empty() {
		return ast.None(ts.Arity()), nil
	}
	var value ast.Expression
	for _, t := range ts.Tuples() {
		var prod ast.Expression
		for _, a := range t {
			e, ok := reif[a]
			if !ok {
				e = ast.AtomExpr(a)
				reif[a] = e
			}
			if prod == nil {
				prod = e
			} else {
				prod = ast.Product(prod, e)
			}
		}
		if value == nil {
			value = prod
		} else {
			value = ast.Union(value, prod)
		}
	}
	return value, nil
}
