package sat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEngine wraps an engine and counts Solve calls.
type countingEngine struct {
	Engine
	solves int
}

func (e *countingEngine) Solve() int {
	e.solves++
	return e.Engine.Solve()
}

// allocCountingEngine wraps an engine and counts variable allocations.
type allocCountingEngine struct {
	Engine
	newVars int
}

func (e *allocCountingEngine) NewVar() int {
	e.newVars++
	return e.Engine.NewVar()
}

func TestSolveSimple(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Free()

	require.NoError(t, s.AddVariables(2))
	assert.True(t, s.AddClause(1, 2))
	assert.True(t, s.AddClause(-1))

	sat, err := s.Solve()
	require.NoError(t, err)
	require.True(t, sat)

	v1, err := s.ValueOf(1)
	require.NoError(t, err)
	assert.False(t, v1)
	v2, err := s.ValueOf(2)
	require.NoError(t, err)
	assert.True(t, v2)
}

func TestContradictionLatchesWithoutEngineCall(t *testing.T) {
	engine := &countingEngine{Engine: NewGiniEngine()}
	s, err := New(WithEngine(engine))
	require.NoError(t, err)
	defer s.Free()

	require.NoError(t, s.AddVariables(1))
	assert.True(t, s.AddClause(1))
	assert.False(t, s.AddClause(-1), "complementary unit latches")
	assert.False(t, s.AddClause(1), "latched solver ignores additions")

	sat, err := s.Solve()
	require.NoError(t, err)
	assert.False(t, sat)
	assert.Zero(t, engine.solves, "latched solve must not consult the engine")
}

func TestAddVariablesRejectsNegative(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Free()

	assert.ErrorIs(t, s.AddVariables(-1), ErrInvalidArgument)
	assert.NoError(t, s.AddVariables(0))
}

func TestValueOfContract(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Free()

	require.NoError(t, s.AddVariables(1))
	_, err = s.ValueOf(1)
	assert.ErrorIs(t, err, ErrInvalidState, "no model before a satisfiable solve")

	require.True(t, s.AddClause(1))
	sat, err := s.Solve()
	require.NoError(t, err)
	require.True(t, sat)

	_, err = s.ValueOf(0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.ValueOf(2)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFreeTwice(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	require.NoError(t, s.Free())
	assert.ErrorIs(t, s.Free(), ErrInvalidState)
	assert.ErrorIs(t, s.AddVariables(1), ErrInvalidState)
	_, err = s.Solve()
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestTargetRelaxationMinimality(t *testing.T) {
	type tc struct {
		name    string
		clauses [][]int
		targets []int
		relaxed int
	}
	for _, tt := range []tc{
		{
			name:    "AllTargetsMet",
			clauses: [][]int{{1, 2}},
			targets: []int{1, 2, 3},
			relaxed: 0,
		},
		{
			name:    "OneViolationForced",
			clauses: [][]int{{-1, -2}},
			targets: []int{1, 2, 3},
			relaxed: 1,
		},
		{
			name:    "AllViolated",
			clauses: [][]int{{-1}, {-2}, {-3}},
			targets: []int{1, 2, 3},
			relaxed: 3,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New()
			require.NoError(t, err)
			defer s.Free()

			require.NoError(t, s.AddVariables(3))
			for _, c := range tt.clauses {
				require.True(t, s.AddClause(c...))
			}
			for _, lit := range tt.targets {
				assert.True(t, s.AddTarget(lit))
			}
			assert.Equal(t, len(tt.targets), s.NumTargets())

			sat, err := s.Solve()
			require.NoError(t, err)
			require.True(t, sat)
			assert.Equal(t, tt.relaxed, s.Relaxation())

			violated := 0
			for _, lit := range tt.targets {
				v, err := s.ValueOf(lit)
				require.NoError(t, err)
				if !v {
					violated++
				}
			}
			assert.Equal(t, tt.relaxed, violated, "model must violate exactly the relaxed budget")
		})
	}
}

func TestClearTargets(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Free()

	require.NoError(t, s.AddVariables(1))
	require.True(t, s.AddClause(-1))
	assert.True(t, s.AddTarget(1))
	assert.True(t, s.ClearTargets())
	assert.Zero(t, s.NumTargets())

	sat, err := s.Solve()
	require.NoError(t, err)
	assert.True(t, sat)
	assert.Equal(t, -1, s.Relaxation(), "no targets means no relaxation")
}

func TestFreshVariablesAfterTargetedSolve(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Free()

	require.NoError(t, s.AddVariables(3))
	for v := 1; v <= 3; v++ {
		require.True(t, s.AddClause(-v))
		require.True(t, s.AddTarget(v))
	}
	sat, err := s.Solve()
	require.NoError(t, err)
	require.True(t, sat)
	require.Equal(t, 3, s.Relaxation())

	// The counting network claimed engine variables; the pool must
	// have advanced past them so fresh variables stay unconstrained.
	require.NoError(t, s.AddVariables(1))
	fresh := s.NumVariables()
	assert.Greater(t, fresh, 4)
	require.True(t, s.AddClause(-fresh))

	sat, err = s.Solve()
	require.NoError(t, err)
	assert.True(t, sat, "a fresh variable asserted false must stay satisfiable")
	v, err := s.ValueOf(fresh)
	require.NoError(t, err)
	assert.False(t, v)
}

func TestTargetNetworkBuiltOncePerTargetSet(t *testing.T) {
	engine := &allocCountingEngine{Engine: NewGiniEngine()}
	s, err := New(WithEngine(engine))
	require.NoError(t, err)
	defer s.Free()

	require.NoError(t, s.AddVariables(3))
	require.True(t, s.AddClause(1, 2, 3))
	for v := 1; v <= 3; v++ {
		require.True(t, s.AddTarget(v))
	}

	sat, err := s.Solve()
	require.NoError(t, err)
	require.True(t, sat)
	after := engine.newVars

	for i := 0; i < 3; i++ {
		sat, err = s.Solve()
		require.NoError(t, err)
		require.True(t, sat)
	}
	assert.Equal(t, after, engine.newVars, "repeated solves must reuse the counting network")

	require.True(t, s.AddTarget(-1))
	sat, err = s.Solve()
	require.NoError(t, err)
	require.True(t, sat)
	assert.Greater(t, engine.newVars, after, "a changed target set rebuilds the network")
}

func TestEnumerationWithBlockingClauses(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer s.Free()

	require.NoError(t, s.AddVariables(2))
	require.True(t, s.AddClause(1, 2))

	models := 0
	for {
		sat, err := s.Solve()
		require.NoError(t, err)
		if !sat {
			break
		}
		models++
		require.LessOrEqual(t, models, 3, "enumeration must terminate")
		blocking := make([]int, 0, 2)
		for v := 1; v <= 2; v++ {
			val, err := s.ValueOf(v)
			require.NoError(t, err)
			if val {
				blocking = append(blocking, -v)
			} else {
				blocking = append(blocking, v)
			}
		}
		if !s.AddClause(blocking...) {
			break
		}
	}
	assert.Equal(t, 3, models)
}
