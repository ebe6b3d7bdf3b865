package solver

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/relfind/relfind/pkg/ast"
	"github.com/relfind/relfind/pkg/instance"
)

// job is one configuration handed to the remainder worker pool. Each
// job owns a results channel; the fan-in loop consumes jobs strictly
// in issue order, so delivery stays configuration-sequential no matter
// how the workers are scheduled.
type job struct {
	seq     int
	config  *instance.Instance
	results chan item
}

// partialResult summarizes the partial phase for the fan-in loop.
type partialResult struct {
	term    Outcome
	stats   Stats
	configs int
	err     error
}

// orchestrator drives a decomposed solve: one goroutine enumerates
// partial configurations, a worker pool explores each configuration's
// remainder, and the fan-in loop merges results in configuration
// order.
type orchestrator struct {
	s   *Solver
	d   *Decomposition
	out chan<- item
}

func (o *orchestrator) run(ctx context.Context) {
	defer close(o.out)
	parent := ctx
	if o.s.opts.Decomposed == DecomposedHybrid {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		go o.probe(ctx, cancel)
	}

	jobs := make(chan *job, o.s.opts.Threads)
	pending := make(chan *job, 64)
	result := make(chan partialResult, 1)

	g, wctx := errgroup.WithContext(ctx)
	for i := 0; i < o.s.opts.Threads; i++ {
		g.Go(func() error { return o.worker(wctx, jobs) })
	}
	go o.partial(wctx, jobs, pending, result)

	for j := range pending {
		first := true
	drain:
		for {
			// A cancelled worker may never start a queued job, leaving
			// its results channel open, so the read must also watch the
			// run context.
			select {
			case it, ok := <-j.results:
				if !ok {
					break drain
				}
				if it.sol != nil && it.sol.Sat() {
					it.sol.boundary = first
					first = false
				}
				if !emitTo(ctx, o.out, it) {
					o.cancelled(parent)
					return
				}
			case <-ctx.Done():
				o.cancelled(parent)
				return
			}
		}
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		emitTo(ctx, o.out, item{err: err})
		return
	}
	if ctx.Err() != nil {
		o.cancelled(parent)
		return
	}
	res := <-result
	if res.err != nil {
		emitTo(ctx, o.out, item{err: res.err})
		return
	}
	emitTo(ctx, o.out, item{sol: &Solution{outcome: res.term, stats: res.stats, boundary: true}})
}

// cancelled closes out a probe-cancelled run: the amalgamated problem
// is unsatisfiable, so that is the verdict. A consumer cancellation
// just stops the stream.
func (o *orchestrator) cancelled(parent context.Context) {
	if parent.Err() == nil {
		emitTo(parent, o.out, item{sol: &Solution{outcome: Unsatisfiable, boundary: true}})
	}
}

// partial enumerates the configurations of the partial sub-problem and
// feeds them to the workers and the fan-in loop in one order.
func (o *orchestrator) partial(ctx context.Context, jobs, pending chan<- *job, result chan<- partialResult) {
	res := partialResult{term: Unsatisfiable}
	defer func() {
		close(jobs)
		close(pending)
		result <- res
	}()

	lowered, err := o.s.lowerer.Lower(o.d.PartialFormula, o.d.Partial, o.s.symmetries(o.d.Partial))
	if err != nil {
		res.err = err
		return
	}
	res.stats = Stats{
		Variables:        lowered.NumVars(),
		PrimaryVariables: lowered.NumPrimary(),
		Clauses:          len(lowered.Clauses()),
	}
	defer func() {
		o.s.reporter.ReportConfigs(res.configs, res.stats.Variables, res.stats.PrimaryVariables, res.stats.Clauses)
	}()

	dispatch := func(config *instance.Instance) bool {
		j := &job{seq: res.configs, config: config, results: make(chan item, 16)}
		select {
		case jobs <- j:
		case <-ctx.Done():
			return false
		}
		select {
		case pending <- j:
		case <-ctx.Done():
			return false
		}
		res.configs++
		return true
	}

	if lowered.TriviallyUnsat() {
		res.term = TriviallyUnsatisfiable
		return
	}
	if lowered.NumPrimary() == 0 {
		// The partial problem is fully pinned: its only valuation is
		// the lower bounds, and the formula already folded to true.
		config, err := lowered.Instance(func(int) (bool, error) { return false, nil })
		if err != nil {
			res.err = err
			return
		}
		dispatch(config)
		return
	}

	ss, err := o.s.newSolver()
	if err != nil {
		res.err = err
		return
	}
	defer ss.Free()
	if err := ss.AddVariables(lowered.NumVars()); err != nil {
		res.err = err
		return
	}
	for _, clause := range lowered.Clauses() {
		if !ss.AddClause(clause...) {
			return
		}
	}
	for {
		found, err := ss.Solve()
		if err != nil {
			res.err = err
			return
		}
		if !found {
			return
		}
		config, err := lowered.Instance(ss.ValueOf)
		if err != nil {
			res.err = err
			return
		}
		if !dispatch(config) {
			return
		}
		blocking, err := lowered.BlockingClause(ss.ValueOf)
		if err != nil {
			res.err = err
			return
		}
		if !ss.AddClause(blocking...) {
			return
		}
	}
}

func (o *orchestrator) worker(ctx context.Context, jobs <-chan *job) error {
	for {
		select {
		case j, ok := <-jobs:
			if !ok {
				return nil
			}
			o.remainder(ctx, j)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// remainder explores one configuration: the conjunction of both
// formulas over the remainder bounds pinned by the configuration, so
// extracted instances are complete valuations.
func (o *orchestrator) remainder(ctx context.Context, j *job) {
	defer close(j.results)
	fixed, err := o.d.Fixed(j.config)
	if err != nil {
		emitTo(ctx, j.results, item{err: err})
		return
	}
	p := &producer{s: o.s, ctx: ctx, out: j.results}
	p.core(ast.And(o.d.PartialFormula, o.d.RemainderFormula), fixed)
}

// probe races the amalgamated problem; proving it unsatisfiable makes
// every remaining configuration futile, so the whole run is cancelled.
func (o *orchestrator) probe(ctx context.Context, cancel context.CancelFunc) {
	f, b, err := o.d.Amalgamated()
	if err != nil || b.HasTimeVarying() {
		return
	}
	lowered, err := o.s.lowerer.Lower(f, b, nil)
	if err != nil {
		return
	}
	if lowered.TriviallyUnsat() {
		cancel()
		return
	}
	if lowered.NumPrimary() == 0 {
		return
	}
	ss, err := o.s.newSolver()
	if err != nil {
		return
	}
	defer ss.Free()
	if err := ss.AddVariables(lowered.NumVars()); err != nil {
		return
	}
	for _, clause := range lowered.Clauses() {
		if !ss.AddClause(clause...) {
			cancel()
			return
		}
	}
	found, err := ss.Solve()
	if err == nil && !found {
		cancel()
	}
}

func emitTo(ctx context.Context, ch chan<- item, it item) bool {
	select {
	case ch <- it:
		return true
	case <-ctx.Done():
		return false
	}
}
