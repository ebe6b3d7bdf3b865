package instance

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Instance is a total valuation of relations over a universe, plus
// integer-tuple assignments. Instances are built once and treated as
// immutable afterwards.
type Instance struct {
	universe *Universe
	order    []*Relation
	tuples   map[*Relation]*TupleSet
	ints     map[int]*TupleSet
}

// NewInstance returns an empty instance over the given universe.
func NewInstance(u *Universe) *Instance {
	return &Instance{
		universe: u,
		tuples:   make(map[*Relation]*TupleSet),
		ints:     make(map[int]*TupleSet),
	}
}

// Universe returns the universe the instance is drawn from.
func (i *Instance) Universe() *Universe {
	return i.universe
}

// Add records the value of a relation. Re-adding a relation replaces
// its previous value.
func (i *Instance) Add(r *Relation, ts *TupleSet) error {
	if ts.Arity() != r.Arity() {
		return errors.Errorf("value arity mismatch for %s: relation %d, tuples %d", r.Name(), r.Arity(), ts.Arity())
	}
	for _, t := range ts.Tuples() {
		for _, a := range t {
			if !i.universe.Contains(a) {
				return errors.Errorf("tuple %s of %s uses atom %q outside the universe", t, r.Name(), a)
			}
		}
	}
	if _, ok := i.tuples[r]; !ok {
		i.order = append(i.order, r)
	}
	i.tuples[r] = ts.Clone()
	return nil
}

// AddInt records the tuple set denoting the given integer.
func (i *Instance) AddInt(n int, ts *TupleSet) error {
	if ts.Arity() != 1 {
		return errors.Errorf("integer %d must be denoted by a unary tuple set", n)
	}
	i.ints[n] = ts.Clone()
	return nil
}

// Relations returns the valued relations in the order they were added.
func (i *Instance) Relations() []*Relation {
	out := make([]*Relation, len(i.order))
	copy(out, i.order)
	return out
}

// Contains reports whether the relation has a value in this instance.
func (i *Instance) Contains(r *Relation) bool {
	_, ok := i.tuples[r]
	return ok
}

// Tuples returns the value of the relation, or nil if it has none.
func (i *Instance) Tuples(r *Relation) *TupleSet {
	return i.tuples[r]
}

// Ints returns the integers with a recorded denotation, sorted.
func (i *Instance) Ints() []int {
	out := make([]int, 0, len(i.ints))
	for n := range i.ints {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// IntTuples returns the denotation of the given integer, or nil.
func (i *Instance) IntTuples(n int) *TupleSet {
	return i.ints[n]
}

// Clone returns an independent copy of the instance.
func (i *Instance) Clone() *Instance {
	out := NewInstance(i.universe)
	out.order = make([]*Relation, len(i.order))
	copy(out.order, i.order)
	for r, ts := range i.tuples {
		out.tuples[r] = ts.Clone()
	}
	for n, ts := range i.ints {
		out.ints[n] = ts.Clone()
	}
	return out
}

// Equal reports whether both instances value the same relations with
// the same tuples over equal universes.
func (i *Instance) Equal(o *Instance) bool {
	if o == nil || !i.universe.Equal(o.universe) {
		return false
	}
	if len(i.tuples) != len(o.tuples) || len(i.ints) != len(o.ints) {
		return false
	}
	for r, ts := range i.tuples {
		ots := o.tuples[r]
		if ots == nil || !ts.Equal(ots) {
			return false
		}
	}
	for n, ts := range i.ints {
		ots := o.ints[n]
		if ots == nil || !ts.Equal(ots) {
			return false
		}
	}
	return true
}

// Canonical returns a value-only view of the instance, keyed by
// relation name, suitable for hashing and diffing.
func (i *Instance) Canonical() map[string][]string {
	out := make(map[string][]string, len(i.tuples))
	for r, ts := range i.tuples {
		tuples := ts.Tuples()
		keys := make([]string, len(tuples))
		for j, t := range tuples {
			keys[j] = t.String()
		}
		out[r.Name()] = keys
	}
	return out
}

func (i *Instance) String() string {
	var sb strings.Builder
	for _, r := range i.order {
		sb.WriteString(r.Name())
		sb.WriteString(" = ")
		sb.WriteString(i.tuples[r].String())
		sb.WriteString("\n")
	}
	return sb.String()
}
