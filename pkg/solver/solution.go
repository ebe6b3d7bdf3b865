package solver

import (
	"github.com/relfind/relfind/pkg/ast"
	"github.com/relfind/relfind/pkg/instance"
)

// Outcome classifies a Solution. Trivial outcomes were decided during
// lowering without consulting a SAT engine.
type Outcome int

const (
	Satisfiable Outcome = iota
	Unsatisfiable
	TriviallySatisfiable
	TriviallyUnsatisfiable
)

func (o Outcome) String() string {
	switch o {
	case Satisfiable:
		return "SATISFIABLE"
	case Unsatisfiable:
		return "UNSATISFIABLE"
	case TriviallySatisfiable:
		return "TRIVIALLY_SATISFIABLE"
	case TriviallyUnsatisfiable:
		return "TRIVIALLY_UNSATISFIABLE"
	default:
		return "UNKNOWN"
	}
}

// Sat reports whether the outcome carries a witnessing instance.
func (o Outcome) Sat() bool {
	return o == Satisfiable || o == TriviallySatisfiable
}

// Stats summarizes the propositional problem a solution came from.
type Stats struct {
	Variables        int
	PrimaryVariables int
	Clauses          int
}

// Solution is one enumeration result. Solutions are produced once and
// never mutated.
type Solution struct {
	outcome  Outcome
	stats    Stats
	inst     *instance.Instance
	trace    *instance.TemporalInstance
	blocking ast.Formula
	boundary bool
}

// Outcome returns the solution's classification.
func (s *Solution) Outcome() Outcome {
	return s.outcome
}

// Sat reports whether the solution carries an instance.
func (s *Solution) Sat() bool {
	return s.outcome.Sat()
}

// Instance returns the witnessing instance, nil for unsatisfiable
// outcomes. For temporal solutions this is the flattened view.
func (s *Solution) Instance() *instance.Instance {
	return s.inst
}

// Trace returns the witnessing trace of a temporal solution, nil
// otherwise.
func (s *Solution) Trace() *instance.TemporalInstance {
	return s.trace
}

// Blocking returns the characteristic formula of a temporal solution:
// it holds exactly on traces unrolling like the witness, so its
// negation excludes the witness from further searches. Nil for static
// and unsatisfiable solutions.
func (s *Solution) Blocking() ast.Formula {
	return s.blocking
}

// Stats returns the propositional problem sizes.
func (s *Solution) Stats() Stats {
	return s.stats
}

// Boundary reports whether this solution is the first of its
// configuration. Outside decomposed mode every solution is.
func (s *Solution) Boundary() bool {
	return s.boundary
}
