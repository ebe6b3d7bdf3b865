package solver

import (
	"runtime"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/relfind/relfind/pkg/instance"
	"github.com/relfind/relfind/pkg/sat"
)

// DecomposedMode selects how a decomposed problem is driven.
type DecomposedMode int

const (
	// DecomposedOff solves the amalgamated problem directly.
	DecomposedOff DecomposedMode = iota
	// DecomposedParallel fans remainder solves out across workers.
	DecomposedParallel
	// DecomposedHybrid is parallel mode plus one extra worker racing
	// the amalgamated problem; an amalgamated unsat result terminates
	// the whole enumeration early.
	DecomposedHybrid
)

func (m DecomposedMode) String() string {
	switch m {
	case DecomposedOff:
		return "off"
	case DecomposedParallel:
		return "parallel"
	case DecomposedHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// Options are the solving knobs. Construct with NewOptions and adjust
// fields; a zero field keeps its literal meaning (a zero
// SymmetryBreaking disables breaking outright).
type Options struct {
	// SymmetryBreaking bounds the size of atom classes broken with
	// ordering predicates; zero disables symmetry breaking.
	SymmetryBreaking int
	// Threads sizes the remainder worker pool.
	Threads int
	// Bitwidth is the two's-complement width handed to lowerings that
	// encode integer expressions. The built-in lowering carries no
	// integer vocabulary and ignores it.
	Bitwidth int
	// RunTemporal enables the trace pipeline; bounds with time-varying
	// relations are rejected without it.
	RunTemporal bool
	// MaxTraceLength caps the trace lengths tried by a temporal solve.
	MaxTraceLength int
	// Decomposed selects the decomposed driving mode.
	Decomposed DecomposedMode
	// Target, when set, biases every solve toward instances close to
	// it via iterative target relaxation.
	Target *instance.Instance
	// Engine supplies SAT engines; nil selects gini.
	Engine sat.EngineFactory
	// Lowerer translates formulas to clauses; nil selects the built-in
	// lowering.
	Lowerer Lowerer
	// Reporter receives progress events; nil discards them.
	Reporter Reporter
	// Logger receives diagnostics; nil discards them.
	Logger logrus.FieldLogger
}

// NewOptions returns the default options.
func NewOptions() *Options {
	return &Options{
		SymmetryBreaking: 20,
		Threads:          runtime.GOMAXPROCS(0),
		Bitwidth:         4,
		MaxTraceLength:   10,
	}
}

func (o *Options) validate() error {
	if o.SymmetryBreaking < 0 {
		return errors.Errorf("symmetry breaking bound must be non-negative, got %d", o.SymmetryBreaking)
	}
	if o.Threads < 1 {
		return errors.Errorf("thread count must be positive, got %d", o.Threads)
	}
	if o.Bitwidth < 0 {
		return errors.Errorf("bitwidth must be non-negative, got %d", o.Bitwidth)
	}
	if o.MaxTraceLength < 1 {
		return errors.Errorf("max trace length must be positive, got %d", o.MaxTraceLength)
	}
	return nil
}
