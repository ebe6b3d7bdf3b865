package instance

import (
	"strings"

	"github.com/pkg/errors"
)

// Bounds constrain the possible value of each relation: a lower bound
// of tuples every instance must contain and an upper bound of tuples
// an instance may contain. Relations tagged TimeVarying make the
// bounds temporal; static relations keep one value over a whole trace.
type Bounds struct {
	universe *Universe
	order    []*Relation
	lowers   map[*Relation]*TupleSet
	uppers   map[*Relation]*TupleSet
}

// NewBounds returns empty bounds over the given universe.
func NewBounds(u *Universe) *Bounds {
	return &Bounds{
		universe: u,
		lowers:   make(map[*Relation]*TupleSet),
		uppers:   make(map[*Relation]*TupleSet),
	}
}

// Universe returns the universe the bounds are drawn from.
func (b *Bounds) Universe() *Universe {
	return b.universe
}

// Relations returns the bounded relations in declaration order.
func (b *Bounds) Relations() []*Relation {
	out := make([]*Relation, len(b.order))
	copy(out, b.order)
	return out
}

// Bounded reports whether the relation has a bound.
func (b *Bounds) Bounded(r *Relation) bool {
	_, ok := b.uppers[r]
	return ok
}

// Bound constrains r to contain every tuple of lower and only tuples
// of upper.
func (b *Bounds) Bound(r *Relation, lower, upper *TupleSet) error {
	if lower.Arity() != r.Arity() || upper.Arity() != r.Arity() {
		return errors.Errorf("bound arity mismatch for %s: relation %d, lower %d, upper %d",
			r.Name(), r.Arity(), lower.Arity(), upper.Arity())
	}
	if !upper.ContainsAll(lower) {
		return errors.Errorf("lower bound of %s is not contained in its upper bound", r.Name())
	}
	if err := b.checkTuples(r, upper); err != nil {
		return err
	}
	if _, ok := b.uppers[r]; !ok {
		b.order = append(b.order, r)
	}
	b.lowers[r] = lower.Clone()
	b.uppers[r] = upper.Clone()
	return nil
}

// BoundExactly constrains r to hold exactly the given tuples.
func (b *Bounds) BoundExactly(r *Relation, ts *TupleSet) error {
	return b.Bound(r, ts, ts)
}

// Lower returns the lower bound of r, or nil if r is unbounded.
func (b *Bounds) Lower(r *Relation) *TupleSet {
	return b.lowers[r]
}

// Upper returns the upper bound of r, or nil if r is unbounded.
func (b *Bounds) Upper(r *Relation) *TupleSet {
	return b.uppers[r]
}

// Exact reports whether r's lower and upper bounds coincide.
func (b *Bounds) Exact(r *Relation) bool {
	l, u := b.lowers[r], b.uppers[r]
	return l != nil && l.Equal(u)
}

// Clone returns an independent copy sharing the universe and relation
// declarations.
func (b *Bounds) Clone() *Bounds {
	out := NewBounds(b.universe)
	out.order = make([]*Relation, len(b.order))
	copy(out.order, b.order)
	for r, ts := range b.lowers {
		out.lowers[r] = ts.Clone()
	}
	for r, ts := range b.uppers {
		out.uppers[r] = ts.Clone()
	}
	return out
}

// Merge adds every bound of o to the receiver. Both bounds must share
// one universe; a relation bounded on both sides must carry identical
// bounds.
func (b *Bounds) Merge(o *Bounds) error {
	if !b.universe.Equal(o.universe) {
		return errors.New("cannot merge bounds over different universes")
	}
	for _, r := range o.order {
		if b.Bounded(r) {
			if !b.lowers[r].Equal(o.lowers[r]) || !b.uppers[r].Equal(o.uppers[r]) {
				return errors.Errorf("conflicting bounds for %s", r.Name())
			}
			continue
		}
		if err := b.Bound(r, o.lowers[r], o.uppers[r]); err != nil {
			return err
		}
	}
	return nil
}

// HasTimeVarying reports whether any bounded relation is time-varying.
func (b *Bounds) HasTimeVarying() bool {
	for _, r := range b.order {
		if r.Kind() == TimeVarying {
			return true
		}
	}
	return false
}

func (b *Bounds) checkTuples(r *Relation, ts *TupleSet) error {
	for _, t := range ts.Tuples() {
		for _, a := range t {
			if !b.universe.Contains(a) {
				return errors.Errorf("tuple %s of %s uses atom %q outside the universe", t, r.Name(), a)
			}
		}
	}
	return nil
}

func (b *Bounds) String() string {
	var sb strings.Builder
	for _, r := range b.order {
		sb.WriteString(r.Name())
		sb.WriteString(": ")
		sb.WriteString(b.lowers[r].String())
		sb.WriteString(" .. ")
		sb.WriteString(b.uppers[r].String())
		sb.WriteString("\n")
	}
	return sb.String()
}
