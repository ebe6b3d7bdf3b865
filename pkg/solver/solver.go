// Package solver finds and enumerates bounded models of relational
// formulas. A Solver lowers a formula over finite bounds to CNF,
// drives an incremental SAT engine, and streams witnessing instances
// through an Explorer; temporal problems run through the trace codec
// one trace length at a time, and decomposed problems fan remainder
// solves out across a worker pool while delivering results in
// configuration order.
package solver

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/relfind/relfind/pkg/ast"
	"github.com/relfind/relfind/pkg/instance"
	"github.com/relfind/relfind/pkg/lower"
	"github.com/relfind/relfind/pkg/sat"
	"github.com/relfind/relfind/pkg/symmetry"
)

// Solver is the model-finding front door. It is immutable after New
// and safe for concurrent use; each solve owns its own SAT engines.
type Solver struct {
	opts     *Options
	log      logrus.FieldLogger
	oracle   *symmetry.Oracle
	lowerer  Lowerer
	reporter Reporter
}

// New returns a Solver over the given options; nil selects defaults.
func New(opts *Options) (*Solver, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	copied := *opts
	s := &Solver{opts: &copied}
	s.log = copied.Logger
	if s.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.log = l
	}
	s.reporter = copied.Reporter
	if s.reporter == nil {
		s.reporter = NopReporter{}
	}
	s.lowerer = copied.Lowerer
	if s.lowerer == nil {
		s.lowerer = defaultLowerer{l: lower.New(lower.WithLogger(s.log))}
	}
	s.oracle = symmetry.NewOracle(symmetry.WithLogger(s.log))
	return s, nil
}

// Solve returns the first solution of the formula over the bounds.
// The result is unsatisfiable, possibly trivially so, when no
// instance within the bounds satisfies the formula.
func (s *Solver) Solve(ctx context.Context, f ast.Formula, b *instance.Bounds) (*Solution, error) {
	e, err := s.Explore(ctx, f, b)
	if err != nil {
		return nil, err
	}
	defer e.Free()
	return e.Next()
}

// Explore enumerates every solution of the formula over the bounds
// lazily. The stream holds each satisfying instance exactly once,
// followed by one terminal unsatisfiable solution. Free the explorer
// when done.
func (s *Solver) Explore(ctx context.Context, f ast.Formula, b *instance.Bounds) (*Explorer, error) {
	if f == nil || b == nil {
		return nil, errors.Wrap(sat.ErrInvalidArgument, "explore needs a formula and bounds")
	}
	if b.HasTimeVarying() && !s.opts.RunTemporal {
		return nil, errors.Wrap(sat.ErrInvalidArgument, "bounds are temporal but the temporal run is disabled")
	}
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan item)
	p := &producer{s: s, ctx: ctx, out: out}
	go p.run(f, b)
	return newExplorer(out, cancel), nil
}

// ExploreDecomposed enumerates the solutions of a decomposed problem.
// In OFF mode the amalgamated problem is solved directly; otherwise
// the partial sub-problem is enumerated into configurations and each
// configuration's remainder is explored on the worker pool, with
// results delivered strictly in configuration order. The partial
// bounds must be static.
func (s *Solver) ExploreDecomposed(ctx context.Context, d *Decomposition) (*Explorer, error) {
	if d == nil {
		return nil, errors.Wrap(sat.ErrInvalidArgument, "explore needs a decomposition")
	}
	if d.PartialFormula == nil || d.RemainderFormula == nil {
		return nil, errors.Wrap(sat.ErrInvalidArgument, "decomposition must carry both formulas")
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	if d.Partial.HasTimeVarying() {
		return nil, errors.Wrap(sat.ErrInvalidArgument, "partial bounds must be static")
	}
	if d.Remainder.HasTimeVarying() && !s.opts.RunTemporal {
		return nil, errors.Wrap(sat.ErrInvalidArgument, "remainder bounds are temporal but the temporal run is disabled")
	}
	if s.opts.Decomposed == DecomposedOff {
		f, b, err := d.Amalgamated()
		if err != nil {
			return nil, err
		}
		return s.Explore(ctx, f, b)
	}
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan item)
	o := &orchestrator{s: s, d: d, out: out}
	go o.run(ctx)
	return newExplorer(out, cancel), nil
}
