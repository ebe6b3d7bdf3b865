package lower

import (
	"github.com/pkg/errors"

	"github.com/relfind/relfind/pkg/instance"
)

// entry ties a primary propositional variable to the bound tuple whose
// membership it decides.
type entry struct {
	r *instance.Relation
	t instance.Tuple
	v int
}

// Problem is a lowered formula: CNF clauses over integer variables,
// where the first block of variables are primary and decide tuple
// membership, and the rest are auxiliary gate variables. A Problem is
// immutable once returned by a Lowering.
type Problem struct {
	bounds    *instance.Bounds
	primaries []entry
	varOf     map[*instance.Relation]map[string]int
	clauses   [][]int
	numVars   int

	triviallySat   bool
	triviallyUnsat bool
}

// Bounds returns the bounds the problem was lowered against. For a
// trace lowering these are the expanded static bounds.
func (p *Problem) Bounds() *instance.Bounds {
	return p.bounds
}

// Clauses returns the CNF clauses of the problem.
func (p *Problem) Clauses() [][]int {
	return p.clauses
}

// NumVars returns the total number of propositional variables.
func (p *Problem) NumVars() int {
	return p.numVars
}

// NumPrimary returns the number of primary variables.
func (p *Problem) NumPrimary() int {
	return len(p.primaries)
}

// TriviallySat reports whether the formula reduced to true during
// lowering; every instance within the bounds is then a model.
func (p *Problem) TriviallySat() bool {
	return p.triviallySat
}

// TriviallyUnsat reports whether the formula reduced to false during
// lowering. The emitted clauses are contradictory in that case.
func (p *Problem) TriviallyUnsat() bool {
	return p.triviallyUnsat
}

// Instance interprets a model of the clauses as an instance: each
// relation holds its lower bound plus every free tuple whose primary
// variable the model sets.
func (p *Problem) Instance(value func(v int) (bool, error)) (*instance.Instance, error) {
	values := make(map[*instance.Relation]*instance.TupleSet)
	for _, r := range p.bounds.Relations() {
		values[r] = p.bounds.Lower(r).Clone()
	}
	for _, e := range p.primaries {
		on, err := value(e.v)
		if err != nil {
			return nil, errors.Wrapf(err, "reading variable %d of %s", e.v, e.r.Name())
		}
		if on {
			values[e.r].Add(e.t)
		}
	}
	inst := instance.NewInstance(p.bounds.Universe())
	for _, r := range p.bounds.Relations() {
		if err := inst.Add(r, values[r]); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// BlockingClause returns a clause falsified exactly by models agreeing
// with the given one on every primary variable. Adding it excludes the
// current instance and nothing else.
func (p *Problem) BlockingClause(value func(v int) (bool, error)) ([]int, error) {
	clause := make([]int, len(p.primaries))
	for i, e := range p.primaries {
		on, err := value(e.v)
		if err != nil {
			return nil, errors.Wrapf(err, "reading variable %d of %s", e.v, e.r.Name())
		}
		if on {
			clause[i] = -e.v
		} else {
			clause[i] = e.v
		}
	}
	return clause, nil
}

// TargetLiterals returns one literal per primary variable of every
// relation the target values: positive when the target holds the
// tuple, negative otherwise. Relations absent from the target
// contribute no literals.
func (p *Problem) TargetLiterals(target *instance.Instance) []int {
	var lits []int
	for _, e := range p.primaries {
		ts := target.Tuples(e.r)
		if ts == nil {
			continue
		}
		if ts.Contains(e.t) {
			lits = append(lits, e.v)
		} else {
			lits = append(lits, -e.v)
		}
	}
	return lits
}
