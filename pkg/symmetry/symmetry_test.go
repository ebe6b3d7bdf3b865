package symmetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relfind/relfind/pkg/instance"
)

func unary(atoms ...instance.Atom) *instance.TupleSet {
	ts := instance.NewTupleSet(1)
	for _, a := range atoms {
		ts.Add(instance.Tuple{a})
	}
	return ts
}

func TestDetectColoring(t *testing.T) {
	u, err := instance.NewUniverse("a", "b", "c")
	require.NoError(t, err)
	r := instance.NewRelation("R", 1)

	type tc struct {
		name        string
		lower       *instance.TupleSet
		wantClasses int
	}
	for _, tt := range []tc{
		{name: "AllInterchangeable", lower: unary(), wantClasses: 1},
		{name: "LowerBoundDistinguishes", lower: unary("a"), wantClasses: 2},
	} {
		t.Run(tt.name, func(t *testing.T) {
			b := instance.NewBounds(u)
			require.NoError(t, b.Bound(r, tt.lower, unary("a", "b", "c")))
			p := NewOracle().Detect(b)
			assert.Equal(t, tt.wantClasses, p.Len())
		})
	}
}

func TestDetectRefinesThroughTupleStructure(t *testing.T) {
	u, err := instance.NewUniverse("a", "b", "c")
	require.NoError(t, err)
	r := instance.NewRelation("R", 1)
	e := instance.NewRelation("E", 2)

	b := instance.NewBounds(u)
	require.NoError(t, b.Bound(r, unary(), unary("a", "b", "c")))
	// Only a participates in an E edge, and only with b: the initial
	// per-position coloring separates {a}, {b} and {c}, so refinement
	// must end with three singleton classes.
	edges := instance.NewTupleSet(2, instance.Tuple{"a", "b"})
	require.NoError(t, b.Bound(e, instance.NewTupleSet(2), edges))

	p := NewOracle().Detect(b)
	assert.Equal(t, 3, p.Len())
	for _, class := range p.Classes() {
		assert.Len(t, class, 1)
	}
}

// TestDecompositionClassCount checks the class arithmetic of a split
// problem: amalgamated classes = partial classes + fixed-remainder
// classes - 1, the shared free-atom class being counted once.
func TestDecompositionClassCount(t *testing.T) {
	u, err := instance.NewUniverse("x", "a1", "a2", "a3")
	require.NoError(t, err)
	p := instance.NewRelation("P", 1)
	q := instance.NewRelation("Q", 1)

	partial := instance.NewBounds(u)
	require.NoError(t, partial.Bound(p, unary(), unary("x", "a1", "a2", "a3")))

	remainder := instance.NewBounds(u)
	require.NoError(t, remainder.Bound(q, unary(), unary("a1", "a2", "a3")))

	// Remainder under the configuration P = {x}.
	fixed := remainder.Clone()
	require.NoError(t, fixed.BoundExactly(p, unary("x")))

	amalgamated := partial.Clone()
	require.NoError(t, amalgamated.Merge(remainder))

	o := NewOracle()
	np := o.Detect(partial).Len()
	nr := o.Detect(fixed).Len()
	na := o.Detect(amalgamated).Len()

	assert.Equal(t, 1, np)
	assert.Equal(t, 2, nr)
	assert.Equal(t, na, np+nr-1)
}

func TestBreakingPredicate(t *testing.T) {
	u, err := instance.NewUniverse("a", "b", "c", "d")
	require.NoError(t, err)
	r := instance.NewRelation("R", 1)
	s := instance.NewRelation("S", 1)

	b := instance.NewBounds(u)
	require.NoError(t, b.Bound(r, unary(), unary("a", "b", "c")))
	require.NoError(t, b.BoundExactly(s, unary("d")))

	o := NewOracle()
	part := o.Detect(b)

	pred := o.BreakingPredicate(part, 20)
	require.Len(t, pred.Classes(), 1, "singleton classes carry no symmetry")
	assert.Len(t, pred.Classes()[0], 3)

	assert.True(t, o.BreakingPredicate(part, 0).Empty(), "zero bound disables breaking")
	assert.True(t, o.BreakingPredicate(part, 2).Empty(), "classes above the bound are skipped")
}
