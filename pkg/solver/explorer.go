package solver

import (
	"context"

	"github.com/pkg/errors"

	"github.com/relfind/relfind/pkg/sat"
)

// ErrExhausted marks iteration past the end of an enumeration.
var ErrExhausted = errors.New("enumeration exhausted")

// item is one unit of the producer-to-explorer stream.
type item struct {
	sol *Solution
	err error
}

// Explorer iterates the solutions of one solve lazily. Producers run
// on their own goroutines and stay at most one solution ahead; the
// explorer surfaces them strictly in enumeration order. Not safe for
// concurrent use.
type Explorer struct {
	items  <-chan item
	cancel context.CancelFunc
	peeked *item
	done   bool
	freed  bool
}

func newExplorer(items <-chan item, cancel context.CancelFunc) *Explorer {
	return &Explorer{items: items, cancel: cancel}
}

// HasNext reports whether another solution is available. It blocks
// while the producer is still working on one.
func (e *Explorer) HasNext() bool {
	if e.freed || e.done {
		return false
	}
	if e.peeked != nil {
		return true
	}
	it, ok := <-e.items
	if !ok {
		e.done = true
		return false
	}
	e.peeked = &it
	return true
}

// Next returns the next solution. Past exhaustion it fails with
// ErrExhausted; after Free it fails with an invalid-state error.
func (e *Explorer) Next() (*Solution, error) {
	if e.freed {
		return nil, errors.Wrap(sat.ErrInvalidState, "explorer freed")
	}
	if !e.HasNext() {
		return nil, errors.Wrap(ErrExhausted, "next")
	}
	it := *e.peeked
	e.peeked = nil
	return it.sol, it.err
}

// HasNextC reports whether another configuration boundary is
// available, discarding the current configuration's remaining
// solutions on the way. Outside decomposed mode every solution is its
// own boundary and HasNextC behaves like HasNext.
func (e *Explorer) HasNextC() bool {
	for e.HasNext() {
		if e.peeked.err != nil || e.peeked.sol.Boundary() {
			return true
		}
		e.peeked = nil
	}
	return false
}

// NextC returns the first solution of the next configuration,
// skipping the rest of the current one. Past exhaustion it fails with
// ErrExhausted.
func (e *Explorer) NextC() (*Solution, error) {
	if e.freed {
		return nil, errors.Wrap(sat.ErrInvalidState, "explorer freed")
	}
	if !e.HasNextC() {
		return nil, errors.Wrap(ErrExhausted, "next configuration")
	}
	return e.Next()
}

// Free stops the producers and releases their solvers. Resources are
// released exactly once; calling Free again reports the misuse.
func (e *Explorer) Free() error {
	if e.freed {
		return errors.Wrap(sat.ErrInvalidState, "explorer already freed")
	}
	e.freed = true
	e.peeked = nil
	e.cancel()
	return nil
}
