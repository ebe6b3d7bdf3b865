package instance

import (
	"fmt"
	"sort"
	"strings"
)

// Tuple is an ordered sequence of atoms.
type Tuple []Atom

// NewTuple returns a tuple over the given atoms.
func NewTuple(atoms ...Atom) Tuple {
	t := make(Tuple, len(atoms))
	copy(t, atoms)
	return t
}

// Arity returns the number of atoms in the tuple.
func (t Tuple) Arity() int {
	return len(t)
}

// Key returns a canonical encoding of the tuple, usable as a map key.
func (t Tuple) Key() string {
	parts := make([]string, len(t))
	for i, a := range t {
		parts[i] = string(a)
	}
	return strings.Join(parts, "\x00")
}

// Concat returns a new tuple holding the receiver's atoms followed by
// the argument's atoms.
func (t Tuple) Concat(o Tuple) Tuple {
	out := make(Tuple, 0, len(t)+len(o))
	out = append(out, t...)
	out = append(out, o...)
	return out
}

// Equal reports whether both tuples hold the same atoms in order.
func (t Tuple) Equal(o Tuple) bool {
	if len(t) != len(o) {
		return false
	}
	for i, a := range t {
		if o[i] != a {
			return false
		}
	}
	return true
}

func (t Tuple) String() string {
	parts := make([]string, len(t))
	for i, a := range t {
		parts[i] = string(a)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// TupleSet is a set of tuples sharing one arity. The zero value is not
// usable; construct with NewTupleSet.
type TupleSet struct {
	arity int
	elems map[string]Tuple
}

// NewTupleSet returns a set with the given arity holding the given
// tuples. It panics if a tuple's arity does not match: mixing arities
// in one set is a programming error, not an input condition.
func NewTupleSet(arity int, tuples ...Tuple) *TupleSet {
	ts := &TupleSet{arity: arity, elems: make(map[string]Tuple, len(tuples))}
	for _, t := range tuples {
		ts.Add(t)
	}
	return ts
}

// Arity returns the arity shared by all tuples in the set.
func (ts *TupleSet) Arity() int {
	return ts.arity
}

// Len returns the number of tuples in the set.
func (ts *TupleSet) Len() int {
	return len(ts.elems)
}

// Empty reports whether the set holds no tuples.
func (ts *TupleSet) Empty() bool {
	return len(ts.elems) == 0
}

// Add inserts the tuple, panicking on an arity mismatch.
func (ts *TupleSet) Add(t Tuple) {
	if t.Arity() != ts.arity {
		panic(fmt.Sprintf("tuple %s has arity %d, set has arity %d", t, t.Arity(), ts.arity))
	}
	ts.elems[t.Key()] = t
}

// Contains reports whether the tuple belongs to the set.
func (ts *TupleSet) Contains(t Tuple) bool {
	_, ok := ts.elems[t.Key()]
	return ok
}

// ContainsAll reports whether every tuple of o belongs to the set.
func (ts *TupleSet) ContainsAll(o *TupleSet) bool {
	for k := range o.elems {
		if _, ok := ts.elems[k]; !ok {
			return false
		}
	}
	return true
}

// Equal reports whether both sets hold exactly the same tuples.
func (ts *TupleSet) Equal(o *TupleSet) bool {
	if ts.arity != o.arity || len(ts.elems) != len(o.elems) {
		return false
	}
	return ts.ContainsAll(o)
}

// Clone returns an independent copy of the set.
func (ts *TupleSet) Clone() *TupleSet {
	out := NewTupleSet(ts.arity)
	for k, t := range ts.elems {
		out.elems[k] = t
	}
	return out
}

// Union returns a new set holding the tuples of both sets.
func (ts *TupleSet) Union(o *TupleSet) *TupleSet {
	out := ts.Clone()
	for _, t := range o.elems {
		out.Add(t)
	}
	return out
}

// Product returns the cross product of the two sets.
func (ts *TupleSet) Product(o *TupleSet) *TupleSet {
	out := NewTupleSet(ts.arity + o.arity)
	for _, a := range ts.elems {
		for _, b := range o.elems {
			out.Add(a.Concat(b))
		}
	}
	return out
}

// ProductAtom returns the set of tuples extended with the given atom
// as a trailing column.
func (ts *TupleSet) ProductAtom(a Atom) *TupleSet {
	out := NewTupleSet(ts.arity + 1)
	for _, t := range ts.elems {
		out.Add(t.Concat(Tuple{a}))
	}
	return out
}

// Tuples returns the tuples of the set in a stable canonical order.
func (ts *TupleSet) Tuples() []Tuple {
	keys := make([]string, 0, len(ts.elems))
	for k := range ts.elems {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Tuple, len(keys))
	for i, k := range keys {
		out[i] = ts.elems[k]
	}
	return out
}

func (ts *TupleSet) String() string {
	parts := make([]string, 0, len(ts.elems))
	for _, t := range ts.Tuples() {
		parts = append(parts, t.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
