package solver

import (
	"context"

	"github.com/mitchellh/hashstructure"

	"github.com/relfind/relfind/pkg/ast"
	"github.com/relfind/relfind/pkg/instance"
	"github.com/relfind/relfind/pkg/sat"
	"github.com/relfind/relfind/pkg/symmetry"
	"github.com/relfind/relfind/pkg/trace"
)

// producer runs one solve-and-enumerate loop, streaming items to a
// channel. Each producer owns its SAT solvers; they are freed when the
// loop ends or the context is cancelled.
type producer struct {
	s   *Solver
	ctx context.Context
	out chan<- item
}

// emit delivers one item, reporting false when the consumer is gone.
func (p *producer) emit(it item) bool {
	select {
	case p.out <- it:
		return true
	case <-p.ctx.Done():
		return false
	}
}

func (p *producer) fail(err error) {
	p.emit(item{err: err})
}

// run enumerates all solutions of the formula over the bounds,
// terminal unsatisfiable solution included, then closes the stream.
func (p *producer) run(f ast.Formula, b *instance.Bounds) {
	defer close(p.out)
	term, stats, ok := p.core(f, b)
	if ok {
		p.emit(item{sol: &Solution{outcome: term, stats: stats, boundary: true}})
	}
}

// core dispatches between the static and temporal pipelines. It emits
// every satisfiable solution and returns the terminal outcome for the
// caller to deliver; ok is false when the stream broke off early.
func (p *producer) core(f ast.Formula, b *instance.Bounds) (term Outcome, stats Stats, ok bool) {
	if b.HasTimeVarying() {
		return p.temporal(f, b)
	}
	return p.static(f, b)
}

func (p *producer) static(f ast.Formula, b *instance.Bounds) (Outcome, Stats, bool) {
	lowered, err := p.s.lowerer.Lower(f, b, p.s.symmetries(b))
	if err != nil {
		p.fail(err)
		return 0, Stats{}, false
	}
	build := func(inst *instance.Instance, stats Stats, outcome Outcome) (*Solution, error) {
		return &Solution{outcome: outcome, stats: stats, inst: inst, boundary: true}, nil
	}
	_, term, stats, ok := p.enumerate(lowered, build)
	return term, stats, ok
}

// temporal tries every trace length up to the configured maximum,
// enumerating each length exhaustively before moving on. Traces of
// different lengths are distinct solutions even when they unroll to
// the same infinite sequence.
func (p *producer) temporal(f ast.Formula, b *instance.Bounds) (Outcome, Stats, bool) {
	reif := make(map[instance.Atom]ast.Expression)
	allTrivial := true
	var last Stats
	for steps := 1; steps <= p.s.opts.MaxTraceLength; steps++ {
		codec, err := trace.NewCodec(b, steps)
		if err != nil {
			p.fail(err)
			return 0, Stats{}, false
		}
		expanded, err := codec.ExpandBounds()
		if err != nil {
			p.fail(err)
			return 0, Stats{}, false
		}
		lowered, err := p.s.lowerer.LowerTrace(f, codec, p.s.symmetries(expanded))
		if err != nil {
			p.fail(err)
			return 0, Stats{}, false
		}
		build := func(inst *instance.Instance, stats Stats, outcome Outcome) (*Solution, error) {
			ti, err := codec.Unflatten(inst)
			if err != nil {
				return nil, err
			}
			blocking, err := codec.Formulate(ti, reif)
			if err != nil {
				return nil, err
			}
			return &Solution{
				outcome:  outcome,
				stats:    stats,
				inst:     inst,
				trace:    ti,
				blocking: blocking,
				boundary: true,
			}, nil
		}
		n, term, stats, ok := p.enumerate(lowered, build)
		if !ok {
			return 0, Stats{}, false
		}
		last = stats
		if n > 0 || term != TriviallyUnsatisfiable {
			allTrivial = false
		}
	}
	if allTrivial {
		return TriviallyUnsatisfiable, last, true
	}
	return Unsatisfiable, last, true
}

// enumerate drives one lowered problem to exhaustion: solve, read the
// model back, emit, block, repeat. It returns the number of emitted
// solutions and the terminal outcome; ok is false when the consumer
// went away or an error was already delivered.
func (p *producer) enumerate(lowered Lowered, build func(*instance.Instance, Stats, Outcome) (*Solution, error)) (n int, term Outcome, stats Stats, ok bool) {
	stats = Stats{
		Variables:        lowered.NumVars(),
		PrimaryVariables: lowered.NumPrimary(),
		Clauses:          len(lowered.Clauses()),
	}
	if lowered.TriviallyUnsat() {
		return 0, TriviallyUnsatisfiable, stats, true
	}
	if lowered.TriviallySat() && lowered.NumPrimary() == 0 {
		// A fixed problem whose formula folded to true: the bounds
		// admit exactly one instance and it is the model.
		inst, err := lowered.Instance(func(int) (bool, error) { return false, nil })
		if err != nil {
			p.fail(err)
			return 0, 0, stats, false
		}
		sol, err := build(inst, stats, TriviallySatisfiable)
		if err != nil {
			p.fail(err)
			return 0, 0, stats, false
		}
		if !p.emit(item{sol: sol}) {
			return 0, 0, stats, false
		}
		return 1, Unsatisfiable, stats, true
	}

	ss, err := p.s.newSolver()
	if err != nil {
		p.fail(err)
		return 0, 0, stats, false
	}
	defer ss.Free()

	if err := ss.AddVariables(lowered.NumVars()); err != nil {
		p.fail(err)
		return 0, 0, stats, false
	}
	for _, clause := range lowered.Clauses() {
		if !ss.AddClause(clause...) {
			return 0, Unsatisfiable, stats, true
		}
	}
	if p.s.opts.Target != nil {
		for _, lit := range lowered.TargetLiterals(p.s.opts.Target) {
			ss.AddTarget(lit)
		}
	}

	seen := make(map[uint64]bool)
	for {
		found, err := ss.Solve()
		if err != nil {
			p.fail(err)
			return n, 0, stats, false
		}
		if !found {
			return n, Unsatisfiable, stats, true
		}
		inst, err := lowered.Instance(ss.ValueOf)
		if err != nil {
			p.fail(err)
			return n, 0, stats, false
		}
		// Blocking clauses must keep the enumeration irredundant; a
		// revisited model means the lowering's primaries do not
		// determine the instance.
		if h, herr := hashstructure.Hash(inst.Canonical(), nil); herr == nil {
			if seen[h] {
				p.s.log.WithField("instance", inst).Warn("enumeration revisited a model")
			}
			seen[h] = true
		}
		sol, err := build(inst, stats, Satisfiable)
		if err != nil {
			p.fail(err)
			return n, 0, stats, false
		}
		if !p.emit(item{sol: sol}) {
			return n, 0, stats, false
		}
		n++
		blocking, err := lowered.BlockingClause(ss.ValueOf)
		if err != nil {
			p.fail(err)
			return n, 0, stats, false
		}
		if !ss.AddClause(blocking...) {
			return n, Unsatisfiable, stats, true
		}
	}
}

// symmetries detects and selects the symmetry classes to break,
// firing the reporter hooks around detection.
func (s *Solver) symmetries(b *instance.Bounds) *symmetry.Predicate {
	s.reporter.DetectingSymmetries(b)
	part := s.oracle.Detect(b)
	s.reporter.DetectedSymmetries(part)
	return s.oracle.BreakingPredicate(part, s.opts.SymmetryBreaking)
}

func (s *Solver) newSolver() (*sat.Solver, error) {
	opts := []sat.Option{sat.WithLogger(s.log)}
	if s.opts.Engine != nil {
		opts = append(opts, sat.WithEngine(s.opts.Engine()))
	}
	return sat.New(opts...)
}
