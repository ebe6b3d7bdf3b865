// Package sat wraps a clause-level incremental SAT engine with the
// variable pool, latched-contradiction bookkeeping and target-biased
// search the model finder builds on.
package sat

import (
	"github.com/go-air/gini"
	"github.com/go-air/gini/z"
)

// Engine outcome codes, matching the convention used by gini.
const (
	satisfiable   = 1
	unknown       = 0
	unsatisfiable = -1
)

// Engine is the raw incremental solving surface consumed by Solver.
// Literals are DIMACS-coded ints: v for a variable, -v for its
// negation. Assumptions hold for exactly one Solve call.
type Engine interface {
	// NewVar allocates a fresh variable and returns its index.
	NewVar() int
	// Add records a clause.
	Add(lits []int)
	// Assume registers assumption literals consumed by the next Solve.
	Assume(lits ...int)
	// Solve reports satisfiable, unsatisfiable, or unknown when the
	// engine exceeded its budget.
	Solve() int
	// Value returns the model value of a variable after a
	// satisfiable Solve.
	Value(v int) bool
	// Reset releases engine state.
	Reset()
}

// EngineFactory constructs a fresh engine. Each worker owns its own
// engine instance; factories make that explicit.
type EngineFactory func() Engine

type giniEngine struct {
	g *gini.Gini
}

// NewGiniEngine returns an Engine backed by the gini solver.
func NewGiniEngine() Engine {
	return &giniEngine{g: gini.New()}
}

func (e *giniEngine) NewVar() int {
	return e.g.Lit().Dimacs()
}

func (e *giniEngine) Add(lits []int) {
	for _, m := range lits {
		e.g.Add(z.Dimacs2Lit(m))
	}
	e.g.Add(z.LitNull)
}

func (e *giniEngine) Assume(lits ...int) {
	ms := make([]z.Lit, len(lits))
	for i, m := range lits {
		ms[i] = z.Dimacs2Lit(m)
	}
	e.g.Assume(ms...)
}

func (e *giniEngine) Solve() int {
	return e.g.Solve()
}

func (e *giniEngine) Value(v int) bool {
	return e.g.Value(z.Dimacs2Lit(v))
}

func (e *giniEngine) Reset() {
	e.g = gini.New()
}
