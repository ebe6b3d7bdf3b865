package solver

import (
	"github.com/pkg/errors"

	"github.com/relfind/relfind/pkg/ast"
	"github.com/relfind/relfind/pkg/instance"
)

// Decomposition splits one problem into an independently solved
// partial sub-problem and a remainder sub-problem explored once per
// partial outcome. Both bound sets share one universe and must bound
// disjoint relation sets.
type Decomposition struct {
	PartialFormula   ast.Formula
	RemainderFormula ast.Formula
	Partial          *instance.Bounds
	Remainder        *instance.Bounds
}

func (d *Decomposition) validate() error {
	if d.Partial == nil || d.Remainder == nil {
		return errors.New("decomposition must bound both sides")
	}
	if !d.Partial.Universe().Equal(d.Remainder.Universe()) {
		return errors.New("partial and remainder bounds must share one universe")
	}
	for _, r := range d.Partial.Relations() {
		if d.Remainder.Bounded(r) {
			return errors.Errorf("relation %s is bounded on both sides of the decomposition", r.Name())
		}
	}
	return nil
}

// Amalgamated returns the un-split problem: the conjunction of both
// formulas over the merged bounds. Solving it directly must be
// observationally equivalent to decomposed solving.
func (d *Decomposition) Amalgamated() (ast.Formula, *instance.Bounds, error) {
	if err := d.validate(); err != nil {
		return nil, nil, err
	}
	merged := d.Partial.Clone()
	if err := merged.Merge(d.Remainder); err != nil {
		return nil, nil, err
	}
	return ast.And(d.PartialFormula, d.RemainderFormula), merged, nil
}

// Fixed returns the remainder bounds under one configuration: every
// partial relation is pinned exactly to its value in the
// configuration.
func (d *Decomposition) Fixed(config *instance.Instance) (*instance.Bounds, error) {
	out := d.Remainder.Clone()
	for _, r := range d.Partial.Relations() {
		ts := config.Tuples(r)
		if ts == nil {
			return nil, errors.Errorf("configuration gives no value to partial relation %s", r.Name())
		}
		if err := out.BoundExactly(r, ts); err != nil {
			return nil, err
		}
	}
	return out, nil
}
