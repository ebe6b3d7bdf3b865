package instance

import "fmt"

// Kind distinguishes relations whose value is fixed over a whole trace
// from those that may change from state to state.
type Kind int

const (
	// Static relations hold the same tuples in every state.
	Static Kind = iota
	// TimeVarying relations may change between states and gain a
	// trailing state column when a trace is flattened.
	TimeVarying
)

func (k Kind) String() string {
	switch k {
	case Static:
		return "static"
	case TimeVarying:
		return "time-varying"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Relation is a relation declaration: a name, an arity, and a kind.
// Relations are compared by identity, so a single declaration must be
// shared by bounds and instances that refer to the same relation.
type Relation struct {
	name  string
	arity int
	kind  Kind
}

// NewRelation declares a static relation with the given name and arity.
func NewRelation(name string, arity int) *Relation {
	return &Relation{name: name, arity: arity, kind: Static}
}

// NewVarRelation declares a time-varying relation with the given name
// and arity.
func NewVarRelation(name string, arity int) *Relation {
	return &Relation{name: name, arity: arity, kind: TimeVarying}
}

// Name returns the declared name of the relation.
func (r *Relation) Name() string {
	return r.name
}

// Arity returns the number of columns of the relation.
func (r *Relation) Arity() int {
	return r.arity
}

// Kind reports whether the relation is static or time-varying.
func (r *Relation) Kind() Kind {
	return r.kind
}

func (r *Relation) String() string {
	return r.name
}
