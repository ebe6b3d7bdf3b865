package sat

import (
	"io"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidArgument marks out-of-range variables and malformed
	// arguments.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidState marks use after free and model reads without a
	// satisfiable solve.
	ErrInvalidState = errors.New("invalid state")
	// ErrTimeout marks an engine that exceeded its budget. Not
	// retried.
	ErrTimeout = errors.New("engine budget exceeded")
)

// Solver is an incremental constraint solver with target-biased
// search. Targets are literals whose satisfaction is preferred; Solve
// relaxes the number of violated targets one step at a time and stops
// at the first satisfiable budget, yielding a closest-to-target model
// without engine-side optimization support.
//
// A Solver is not safe for concurrent use; each worker owns its own.
type Solver struct {
	engine  Engine
	log     logrus.FieldLogger
	vars    int
	clauses int
	targets map[int]struct{}
	network []int
	units   map[int]struct{}
	latched bool
	solved  bool
	lastSat bool
	relaxed int
	freed   bool
}

// Option configures a Solver.
type Option func(*Solver) error

// WithEngine selects the underlying engine.
func WithEngine(e Engine) Option {
	return func(s *Solver) error {
		s.engine = e
		return nil
	}
}

// WithLogger attaches a logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Solver) error {
		s.log = log
		return nil
	}
}

// New returns a Solver over a fresh engine.
func New(options ...Option) (*Solver, error) {
	s := &Solver{
		targets: make(map[int]struct{}),
		units:   make(map[int]struct{}),
		relaxed: -1,
	}
	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}
	if s.engine == nil {
		s.engine = NewGiniEngine()
	}
	if s.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.log = l
	}
	return s, nil
}

// NumVariables returns the size of the allocated variable pool.
func (s *Solver) NumVariables() int {
	return s.vars
}

// NumClauses returns the number of clauses accepted so far.
func (s *Solver) NumClauses() int {
	return s.clauses
}

// NumTargets returns the number of registered target literals.
func (s *Solver) NumTargets() int {
	return len(s.targets)
}

// AddVariables extends the variable pool by n fresh variables.
func (s *Solver) AddVariables(n int) error {
	if s.freed {
		return errors.Wrap(ErrInvalidState, "solver freed")
	}
	if n < 0 {
		return errors.Wrapf(ErrInvalidArgument, "cannot allocate %d variables", n)
	}
	for i := 0; i < n; i++ {
		s.engine.NewVar()
	}
	s.vars += n
	return nil
}

// AddClause records a clause and reports whether it was accepted. If
// the clause makes the accumulated set immediately contradictory the
// solver latches a permanent unsatisfiable outcome and reports false;
// once latched, further additions are no-ops reporting false and Solve
// short-circuits without consulting the engine. Contradiction here is
// an expected convergence outcome, not an error.
func (s *Solver) AddClause(lits ...int) bool {
	if s.freed || s.latched {
		return false
	}
	s.solved = false
	satisfied := false
	remaining := 0
	var unit int
	for _, m := range lits {
		if _, ok := s.units[m]; ok {
			satisfied = true
		}
		if _, ok := s.units[-m]; ok {
			continue // falsified by a known unit
		}
		remaining++
		unit = m
	}
	if !satisfied && remaining == 0 {
		s.latched = true
		s.log.Debug("clause contradicts accumulated units; latching unsatisfiable")
		return false
	}
	if !satisfied && remaining == 1 {
		s.units[unit] = struct{}{}
	}
	for _, m := range lits {
		if v := abs(m); v > s.vars {
			s.vars = v
		}
	}
	s.engine.Add(lits)
	s.clauses++
	return true
}

// AddTarget registers a literal whose satisfaction is preferred by
// Solve. Targets accumulate until ClearTargets.
func (s *Solver) AddTarget(lit int) bool {
	if s.freed || s.latched {
		return false
	}
	s.targets[lit] = struct{}{}
	s.network = nil
	return true
}

// ClearTargets removes all registered targets.
func (s *Solver) ClearTargets() bool {
	if s.freed {
		return false
	}
	s.targets = make(map[int]struct{})
	s.network = nil
	return true
}

// Solve decides satisfiability of the accumulated clauses. With
// targets registered it performs iterative target relaxation: for
// k = 0, 1, ... it bounds the number of violated targets by k through
// a retractable assumption over a counting network and stops at the
// first k that succeeds, asking once more unconstrained when every
// budget fails.
func (s *Solver) Solve() (bool, error) {
	if s.freed {
		return false, errors.Wrap(ErrInvalidState, "solver freed")
	}
	if s.latched {
		s.solved = true
		s.lastSat = false
		return false, nil
	}
	if len(s.targets) == 0 {
		s.relaxed = -1
		return s.ask()
	}
	// The counting network is permanent scaffolding; only the at-most-k
	// bound is retractable. Build it once per target set and reuse it
	// across solves.
	if s.network == nil {
		violations := make([]int, 0, len(s.targets))
		for t := range s.targets {
			violations = append(violations, -t)
		}
		sort.Ints(violations)
		s.network = s.countingNetwork(violations)
	}
	for k := 0; k < len(s.network); k++ {
		s.engine.Assume(-s.network[k]) // at most k violations
		switch s.engine.Solve() {
		case satisfiable:
			s.solved = true
			s.lastSat = true
			s.relaxed = k
			return true, nil
		case unknown:
			return false, errors.Wrapf(ErrTimeout, "relaxation step %d", k)
		}
	}
	s.relaxed = len(s.network)
	return s.ask()
}

// Relaxation returns the violated-target budget at which the last
// Solve succeeded: 0 means every target was met, -1 means no targets
// were registered.
func (s *Solver) Relaxation() int {
	return s.relaxed
}

// ValueOf returns the model value of the given variable.
func (s *Solver) ValueOf(v int) (bool, error) {
	if s.freed {
		return false, errors.Wrap(ErrInvalidState, "solver freed")
	}
	if !s.solved || !s.lastSat {
		return false, errors.Wrap(ErrInvalidState, "no model: last solve was not satisfiable")
	}
	if v < 1 || v > s.vars {
		return false, errors.Wrapf(ErrInvalidArgument, "variable %d not in [1..%d]", v, s.vars)
	}
	return s.engine.Value(v), nil
}

// Free releases engine resources. Resources are released exactly once;
// calling Free again reports the misuse.
func (s *Solver) Free() error {
	if s.freed {
		return errors.Wrap(ErrInvalidState, "solver already freed")
	}
	s.engine.Reset()
	s.engine = nil
	s.units = nil
	s.targets = nil
	s.network = nil
	s.freed = true
	return nil
}

func (s *Solver) ask() (bool, error) {
	switch s.engine.Solve() {
	case satisfiable:
		s.solved = true
		s.lastSat = true
		return true, nil
	case unsatisfiable:
		s.solved = true
		s.lastSat = false
		return false, nil
	default:
		return false, errors.Wrap(ErrTimeout, "solve")
	}
}

// countingNetwork adds a sequential counter over the given literals
// and returns output variables out[k] implied whenever at least k+1
// of the inputs hold. Bounding violations is then a single retractable
// assumption on the negated output.
func (s *Solver) countingNetwork(xs []int) []int {
	n := len(xs)
	var prev []int
	for i, x := range xs {
		width := i + 1
		if width > n {
			width = n
		}
		cur := make([]int, width)
		for j := range cur {
			cur[j] = s.aux()
		}
		s.raw(-x, cur[0])
		for j := 0; j < len(prev); j++ {
			s.raw(-prev[j], cur[j])
		}
		for j := 1; j < len(cur); j++ {
			if j-1 < len(prev) {
				s.raw(-x, -prev[j-1], cur[j])
			}
		}
		prev = cur
	}
	return prev
}

// aux allocates an internal variable. It advances the client pool too,
// so indices handed out by later AddVariables calls never collide with
// network scaffolding.
func (s *Solver) aux() int {
	v := s.engine.NewVar()
	if v > s.vars {
		s.vars = v
	}
	return v
}

// raw adds scaffolding clauses without touching client bookkeeping.
func (s *Solver) raw(lits ...int) {
	s.engine.Add(lits)
}

func abs(m int) int {
	if m < 0 {
		return -m
	}
	return m
}
