package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relfind/relfind/pkg/ast"
	"github.com/relfind/relfind/pkg/instance"
)

func unary(atoms ...instance.Atom) *instance.TupleSet {
	ts := instance.NewTupleSet(1)
	for _, a := range atoms {
		ts.Add(instance.Tuple{a})
	}
	return ts
}

// fixture is the worked example: R runs {a}, {a,b}, {b} over three
// states, looping back to state 1.
type fixture struct {
	u      *instance.Universe
	r      *instance.Relation
	bounds *instance.Bounds
	states []*instance.Instance
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	u, err := instance.NewUniverse("a", "b")
	require.NoError(t, err)
	r := instance.NewVarRelation("R", 1)
	b := instance.NewBounds(u)
	require.NoError(t, b.Bound(r, unary(), unary("a", "b")))

	mk := func(atoms ...instance.Atom) *instance.Instance {
		inst := instance.NewInstance(u)
		require.NoError(t, inst.Add(r, unary(atoms...)))
		return inst
	}
	return &fixture{
		u:      u,
		r:      r,
		bounds: b,
		states: []*instance.Instance{mk("a"), mk("a", "b"), mk("b")},
	}
}

func TestFlattenWorkedExample(t *testing.T) {
	fx := newFixture(t)
	c, err := NewCodec(fx.bounds, 3)
	require.NoError(t, err)

	ti, err := c.Flatten(fx.states, 1)
	require.NoError(t, err)

	flat := ti.Flat()
	assert.Equal(t, 5, flat.Universe().Size(), "two atoms plus three state atoms")

	flatR := flat.Tuples(c.Flattened(fx.r))
	require.NotNil(t, flatR)
	want := instance.NewTupleSet(2,
		instance.Tuple{"a", "Time0"},
		instance.Tuple{"a", "Time1"},
		instance.Tuple{"b", "Time1"},
		instance.Tuple{"b", "Time2"},
	)
	assert.True(t, flatR.Equal(want), "got %s", flatR)

	assert.True(t, flat.Tuples(c.LoopRelation()).Equal(unary("Time1")))
}

func TestRoundTrip(t *testing.T) {
	fx := newFixture(t)
	c, err := NewCodec(fx.bounds, 3)
	require.NoError(t, err)

	for loop := 0; loop < 3; loop++ {
		ti, err := c.Flatten(fx.states, loop)
		require.NoError(t, err)

		back, err := c.Unflatten(ti.Flat())
		require.NoError(t, err)
		assert.True(t, ti.Equal(back), "round trip must reproduce states and loop %d", loop)
		assert.Equal(t, loop, back.Loop())
	}
}

func TestFlattenPreconditions(t *testing.T) {
	fx := newFixture(t)
	c, err := NewCodec(fx.bounds, 3)
	require.NoError(t, err)

	_, err = c.Flatten(fx.states, 3)
	assert.ErrorContains(t, err, "loop index")
	_, err = c.Flatten(fx.states, -1)
	assert.ErrorContains(t, err, "loop index")
	_, err = c.Flatten(fx.states[:2], 0)
	assert.ErrorContains(t, err, "codec encodes")
}

func TestFlattenRejectsChangingStaticRelation(t *testing.T) {
	u, err := instance.NewUniverse("a", "b")
	require.NoError(t, err)
	s := instance.NewRelation("S", 1)
	b := instance.NewBounds(u)
	require.NoError(t, b.Bound(s, unary(), unary("a", "b")))
	r := instance.NewVarRelation("R", 1)
	require.NoError(t, b.Bound(r, unary(), unary("a")))

	first := instance.NewInstance(u)
	require.NoError(t, first.Add(s, unary("a")))
	require.NoError(t, first.Add(r, unary()))
	second := instance.NewInstance(u)
	require.NoError(t, second.Add(s, unary("b")))
	require.NoError(t, second.Add(r, unary()))

	c, err := NewCodec(b, 2)
	require.NoError(t, err)
	_, err = c.Flatten([]*instance.Instance{first, second}, 0)
	assert.ErrorContains(t, err, "changes value")
}

func TestUnflattenRequiresLoop(t *testing.T) {
	fx := newFixture(t)
	c, err := NewCodec(fx.bounds, 3)
	require.NoError(t, err)

	ti, err := c.Flatten(fx.states, 1)
	require.NoError(t, err)

	// Rebuild the flat instance with an empty loop relation.
	broken := instance.NewInstance(ti.Flat().Universe())
	for _, r := range ti.Flat().Relations() {
		ts := ti.Flat().Tuples(r)
		if r == c.LoopRelation() {
			ts = instance.NewTupleSet(1)
		}
		require.NoError(t, broken.Add(r, ts))
	}
	_, err = c.Unflatten(broken)
	assert.ErrorIs(t, err, ErrNoLoop)
}

func TestExpandBounds(t *testing.T) {
	fx := newFixture(t)
	c, err := NewCodec(fx.bounds, 3)
	require.NoError(t, err)

	expanded, err := c.ExpandBounds()
	require.NoError(t, err)

	flatR := c.Flattened(fx.r)
	require.True(t, expanded.Bounded(flatR))
	assert.Equal(t, 0, expanded.Lower(flatR).Len())
	assert.Equal(t, 6, expanded.Upper(flatR).Len(), "two tuples per state")

	loop := c.LoopRelation()
	assert.Equal(t, 0, expanded.Lower(loop).Len())
	assert.Equal(t, 3, expanded.Upper(loop).Len())
}

func TestStateAtomCollision(t *testing.T) {
	u, err := instance.NewUniverse("Time0")
	require.NoError(t, err)
	r := instance.NewVarRelation("R", 1)
	b := instance.NewBounds(u)
	require.NoError(t, b.Bound(r, unary(), unary("Time0")))

	_, err = NewCodec(b, 1)
	assert.ErrorContains(t, err, "collide")
}

func TestFormulateCharacterizesTrace(t *testing.T) {
	fx := newFixture(t)
	c, err := NewCodec(fx.bounds, 3)
	require.NoError(t, err)

	loop1, err := c.Flatten(fx.states, 1)
	require.NoError(t, err)
	loop0, err := c.Flatten(fx.states, 0)
	require.NoError(t, err)
	loop2, err := c.Flatten(fx.states, 2)
	require.NoError(t, err)
	reversed, err := c.Flatten([]*instance.Instance{fx.states[2], fx.states[1], fx.states[0]}, 1)
	require.NoError(t, err)

	reif := make(map[instance.Atom]ast.Expression)
	f, err := c.Formulate(loop1, reif)
	require.NoError(t, err)

	own, err := ast.EvalTemporal(f, loop1)
	require.NoError(t, err)
	assert.True(t, own, "a trace satisfies its own characterization")

	// Same states under a different loop index unroll differently, so
	// the loop clause must reject them in both directions.
	for name, other := range map[string]*instance.TemporalInstance{
		"EarlierLoop":     loop0,
		"LaterLoop":       loop2,
		"DifferentStates": reversed,
	} {
		got, err := ast.EvalTemporal(f, other)
		require.NoError(t, err, name)
		assert.False(t, got, "%s must not satisfy the characterization", name)
	}

	f2, err := c.Formulate(loop2, reif)
	require.NoError(t, err)
	got, err := ast.EvalTemporal(f2, loop1)
	require.NoError(t, err)
	assert.False(t, got, "characterization of a later loop must not hold on an earlier one")
}

func TestFlattenRejectsUnboundedRelation(t *testing.T) {
	fx := newFixture(t)
	c, err := NewCodec(fx.bounds, 2)
	require.NoError(t, err)

	q := instance.NewVarRelation("Q", 1)
	states := make([]*instance.Instance, 2)
	for i := range states {
		st := instance.NewInstance(fx.u)
		require.NoError(t, st.Add(fx.r, unary("a")))
		require.NoError(t, st.Add(q, unary("b")))
		states[i] = st
	}
	_, err = c.Flatten(states, 0)
	assert.ErrorContains(t, err, "not bounded")
}

func TestFormulateSharesReification(t *testing.T) {
	fx := newFixture(t)
	c, err := NewCodec(fx.bounds, 3)
	require.NoError(t, err)

	ti, err := c.Flatten(fx.states, 1)
	require.NoError(t, err)

	reif := make(map[instance.Atom]ast.Expression)
	_, err = c.Formulate(ti, reif)
	require.NoError(t, err)
	first := reif[instance.Atom("a")]
	require.NotNil(t, first)

	_, err = c.Formulate(ti, reif)
	require.NoError(t, err)
	assert.Same(t, first, reif[instance.Atom("a")], "reifications are reused across calls")
}
