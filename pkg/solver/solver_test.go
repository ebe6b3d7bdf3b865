package solver

import (
	"context"
	"testing"

	"github.com/mitchellh/hashstructure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relfind/relfind/pkg/ast"
	"github.com/relfind/relfind/pkg/instance"
	"github.com/relfind/relfind/pkg/sat"
)

func unary(atoms ...instance.Atom) *instance.TupleSet {
	ts := instance.NewTupleSet(1)
	for _, a := range atoms {
		ts.Add(instance.Tuple{a})
	}
	return ts
}

// exactOptions disables symmetry breaking so enumeration counts match
// the full model count.
func exactOptions() *Options {
	o := NewOptions()
	o.SymmetryBreaking = 0
	return o
}

func freeUnaryBounds(t *testing.T) (*instance.Relation, *instance.Bounds) {
	t.Helper()
	u, err := instance.NewUniverse("a", "b", "c")
	require.NoError(t, err)
	r := instance.NewRelation("R", 1)
	b := instance.NewBounds(u)
	require.NoError(t, b.Bound(r, unary(), unary("a", "b", "c")))
	return r, b
}

// drain consumes an explorer to exhaustion, returning the satisfiable
// solutions and the terminal one.
func drain(t *testing.T, e *Explorer) (sats []*Solution, term *Solution) {
	t.Helper()
	for e.HasNext() {
		sol, err := e.Next()
		require.NoError(t, err)
		require.NotNil(t, sol)
		if sol.Sat() {
			sats = append(sats, sol)
			continue
		}
		require.Nil(t, term, "only the last solution may be unsatisfiable")
		term = sol
	}
	require.NotNil(t, term, "stream must end with a terminal solution")
	return sats, term
}

func TestExploreEnumeratesAllModels(t *testing.T) {
	r, b := freeUnaryBounds(t)
	s, err := New(exactOptions())
	require.NoError(t, err)

	f := ast.Formula(ast.Some(ast.Rel(r)))
	e, err := s.Explore(context.Background(), f, b)
	require.NoError(t, err)
	defer e.Free()

	sats, term := drain(t, e)
	assert.Len(t, sats, 7)
	assert.Equal(t, Unsatisfiable, term.Outcome())
	assert.True(t, term.Boundary())
	assert.Equal(t, 3, term.Stats().PrimaryVariables)

	seen := map[uint64]bool{}
	for _, sol := range sats {
		assert.Equal(t, Satisfiable, sol.Outcome())
		assert.True(t, sol.Boundary())
		ok, err := ast.Eval(f, sol.Instance())
		require.NoError(t, err)
		assert.True(t, ok, "solution must satisfy the formula: %s", sol.Instance())

		h, err := hashstructure.Hash(sol.Instance().Canonical(), nil)
		require.NoError(t, err)
		assert.False(t, seen[h], "solutions must not repeat: %s", sol.Instance())
		seen[h] = true
	}

	assert.False(t, e.HasNext())
	_, err = e.Next()
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestSolveReturnsFirstSolution(t *testing.T) {
	r, b := freeUnaryBounds(t)
	s, err := New(exactOptions())
	require.NoError(t, err)

	sol, err := s.Solve(context.Background(), ast.One(ast.Rel(r)), b)
	require.NoError(t, err)
	require.True(t, sol.Sat())
	assert.Equal(t, 1, len(sol.Instance().Tuples(r).Tuples()))
}

func TestTrivialOutcomes(t *testing.T) {
	u, err := instance.NewUniverse("a")
	require.NoError(t, err)
	r := instance.NewRelation("R", 1)
	b := instance.NewBounds(u)
	require.NoError(t, b.BoundExactly(r, unary("a")))

	s, err := New(exactOptions())
	require.NoError(t, err)

	t.Run("TriviallySatisfiable", func(t *testing.T) {
		e, err := s.Explore(context.Background(), ast.True, b)
		require.NoError(t, err)
		defer e.Free()

		sats, term := drain(t, e)
		require.Len(t, sats, 1)
		assert.Equal(t, TriviallySatisfiable, sats[0].Outcome())
		assert.True(t, sats[0].Instance().Tuples(r).Equal(unary("a")))
		assert.Equal(t, Unsatisfiable, term.Outcome())
	})

	t.Run("TriviallyUnsatisfiable", func(t *testing.T) {
		e, err := s.Explore(context.Background(), ast.False, b)
		require.NoError(t, err)
		defer e.Free()

		sats, term := drain(t, e)
		assert.Empty(t, sats)
		assert.Equal(t, TriviallyUnsatisfiable, term.Outcome())
	})
}

func TestSymmetryBreakingPrunesEnumeration(t *testing.T) {
	r, b := freeUnaryBounds(t)
	s, err := New(nil)
	require.NoError(t, err)

	e, err := s.Explore(context.Background(), ast.Some(ast.Rel(r)), b)
	require.NoError(t, err)
	defer e.Free()

	// The three atoms are interchangeable, so only the orbit leaders
	// of the seven non-empty subsets survive.
	sats, _ := drain(t, e)
	assert.Len(t, sats, 3)
}

func TestExploreValidation(t *testing.T) {
	r, b := freeUnaryBounds(t)
	s, err := New(nil)
	require.NoError(t, err)

	_, err = s.Explore(context.Background(), nil, b)
	assert.ErrorIs(t, err, sat.ErrInvalidArgument)
	_, err = s.Explore(context.Background(), ast.Some(ast.Rel(r)), nil)
	assert.ErrorIs(t, err, sat.ErrInvalidArgument)

	// Temporal bounds need the temporal run enabled.
	u, err := instance.NewUniverse("a")
	require.NoError(t, err)
	v := instance.NewVarRelation("V", 1)
	tb := instance.NewBounds(u)
	require.NoError(t, tb.Bound(v, unary(), unary("a")))
	_, err = s.Explore(context.Background(), ast.True, tb)
	assert.ErrorIs(t, err, sat.ErrInvalidArgument)
}

func TestExplorerFreeStopsIteration(t *testing.T) {
	r, b := freeUnaryBounds(t)
	s, err := New(exactOptions())
	require.NoError(t, err)

	e, err := s.Explore(context.Background(), ast.Some(ast.Rel(r)), b)
	require.NoError(t, err)

	require.True(t, e.HasNext())
	_, err = e.Next()
	require.NoError(t, err)

	require.NoError(t, e.Free())
	assert.False(t, e.HasNext())
	_, err = e.Next()
	assert.ErrorIs(t, err, sat.ErrInvalidState)
	assert.ErrorIs(t, e.Free(), sat.ErrInvalidState)
}

func TestTargetBiasesFirstSolution(t *testing.T) {
	r, b := freeUnaryBounds(t)

	target := instance.NewInstance(b.Universe())
	require.NoError(t, target.Add(r, unary("a", "b")))

	o := exactOptions()
	o.Target = target
	s, err := New(o)
	require.NoError(t, err)

	sol, err := s.Solve(context.Background(), ast.True, b)
	require.NoError(t, err)
	require.True(t, sol.Sat())
	assert.True(t, sol.Instance().Tuples(r).Equal(unary("a", "b")),
		"the first solution must be the target itself, got %s", sol.Instance())
}

func TestTemporalEnumeration(t *testing.T) {
	u, err := instance.NewUniverse("a")
	require.NoError(t, err)
	r := instance.NewVarRelation("R", 1)
	b := instance.NewBounds(u)
	require.NoError(t, b.Bound(r, unary(), unary("a")))

	o := exactOptions()
	o.RunTemporal = true
	o.MaxTraceLength = 2
	s, err := New(o)
	require.NoError(t, err)

	e, err := s.Explore(context.Background(), ast.True, b)
	require.NoError(t, err)
	defer e.Free()

	sats, term := drain(t, e)
	// Two traces of length one plus four state combinations times two
	// loop choices at length two.
	assert.Len(t, sats, 10)
	assert.Equal(t, Unsatisfiable, term.Outcome())

	type key struct {
		States []map[string][]string
		Loop   int
	}
	seen := map[uint64]bool{}
	for _, sol := range sats {
		tr := sol.Trace()
		require.NotNil(t, tr)
		require.NotNil(t, sol.Blocking())

		ok, err := ast.EvalTemporal(sol.Blocking(), tr)
		require.NoError(t, err)
		assert.True(t, ok, "the blocking formula must characterize its own trace: %s", tr)

		k := key{Loop: tr.Loop()}
		for _, st := range tr.States() {
			k.States = append(k.States, st.Canonical())
		}
		h, err := hashstructure.Hash(k, nil)
		require.NoError(t, err)
		assert.False(t, seen[h], "traces must not repeat: %s", tr)
		seen[h] = true
	}
}

func TestTemporalTriviallyUnsatisfiable(t *testing.T) {
	u, err := instance.NewUniverse("a")
	require.NoError(t, err)
	r := instance.NewVarRelation("R", 1)
	b := instance.NewBounds(u)
	require.NoError(t, b.Bound(r, unary(), unary("a")))

	o := exactOptions()
	o.RunTemporal = true
	o.MaxTraceLength = 2
	s, err := New(o)
	require.NoError(t, err)

	e, err := s.Explore(context.Background(), ast.False, b)
	require.NoError(t, err)
	defer e.Free()

	sats, term := drain(t, e)
	assert.Empty(t, sats)
	assert.Equal(t, TriviallyUnsatisfiable, term.Outcome())
}

func TestOptionsValidate(t *testing.T) {
	for _, tt := range []struct {
		name   string
		mutate func(*Options)
	}{
		{name: "NegativeSymmetry", mutate: func(o *Options) { o.SymmetryBreaking = -1 }},
		{name: "ZeroThreads", mutate: func(o *Options) { o.Threads = 0 }},
		{name: "NegativeBitwidth", mutate: func(o *Options) { o.Bitwidth = -1 }},
		{name: "ZeroTraceLength", mutate: func(o *Options) { o.MaxTraceLength = 0 }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOptions()
			tt.mutate(o)
			_, err := New(o)
			assert.Error(t, err)
		})
	}
}
