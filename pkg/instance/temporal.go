package instance

import (
	"fmt"
	"strings"
)

// TemporalInstance is a finite, looping trace of instances over one
// universe. It denotes the infinite sequence that runs through states
// 0..loop-1 once and then repeats states loop..len-1 forever. The
// flattened view is a single static instance over a state-augmented
// universe, built and interpreted by the trace codec.
type TemporalInstance struct {
	states []*Instance
	loop   int
	flat   *Instance
}

// NewTemporalInstance wraps the given states, loop index and flattened
// view. Validation of the trace shape is the codec's responsibility.
func NewTemporalInstance(states []*Instance, loop int, flat *Instance) *TemporalInstance {
	s := make([]*Instance, len(states))
	copy(s, states)
	return &TemporalInstance{states: s, loop: loop, flat: flat}
}

// Len returns the number of states in the trace.
func (t *TemporalInstance) Len() int {
	return len(t.states)
}

// State returns the instance at the given state index.
func (t *TemporalInstance) State(i int) *Instance {
	return t.states[i]
}

// States returns the states of the trace in order.
func (t *TemporalInstance) States() []*Instance {
	out := make([]*Instance, len(t.states))
	copy(out, t.states)
	return out
}

// Loop returns the index of the state the trace loops back to.
func (t *TemporalInstance) Loop() int {
	return t.loop
}

// Flat returns the flattened static view of the trace.
func (t *TemporalInstance) Flat() *Instance {
	return t.flat
}

// Equal reports whether both traces have equal state sequences and the
// same loop index.
func (t *TemporalInstance) Equal(o *TemporalInstance) bool {
	if o == nil || t.loop != o.loop || len(t.states) != len(o.states) {
		return false
	}
	for i, st := range t.states {
		if !st.Equal(o.states[i]) {
			return false
		}
	}
	return true
}

func (t *TemporalInstance) String() string {
	var sb strings.Builder
	for i, st := range t.states {
		fmt.Fprintf(&sb, "* state %d", i)
		if i == t.loop {
			sb.WriteString(" LOOP")
		}
		if i == len(t.states)-1 {
			sb.WriteString(" LAST")
		}
		sb.WriteString("\n")
		sb.WriteString(st.String())
	}
	return sb.String()
}
