package instance

import (
	"strings"

	"github.com/pkg/errors"
)

// Atom is a single element of a Universe. Atoms are compared by value.
type Atom string

// Universe is a finite, ordered set of atoms. It is fixed for the
// lifetime of a problem and safe for concurrent read access.
type Universe struct {
	atoms []Atom
	index map[Atom]int
}

// NewUniverse returns a universe over the given atoms, in order.
func NewUniverse(atoms ...Atom) (*Universe, error) {
	if len(atoms) == 0 {
		return nil, errors.New("universe must contain at least one atom")
	}
	u := &Universe{
		atoms: make([]Atom, len(atoms)),
		index: make(map[Atom]int, len(atoms)),
	}
	copy(u.atoms, atoms)
	for i, a := range atoms {
		if _, ok := u.index[a]; ok {
			return nil, errors.Errorf("duplicate atom %q in universe", a)
		}
		u.index[a] = i
	}
	return u, nil
}

// Size returns the number of atoms in the universe.
func (u *Universe) Size() int {
	return len(u.atoms)
}

// Atom returns the atom at the given index.
func (u *Universe) Atom(i int) Atom {
	return u.atoms[i]
}

// Atoms returns the atoms of the universe in order.
func (u *Universe) Atoms() []Atom {
	out := make([]Atom, len(u.atoms))
	copy(out, u.atoms)
	return out
}

// IndexOf returns the position of the given atom, if present.
func (u *Universe) IndexOf(a Atom) (int, bool) {
	i, ok := u.index[a]
	return i, ok
}

// Contains reports whether the atom belongs to the universe.
func (u *Universe) Contains(a Atom) bool {
	_, ok := u.index[a]
	return ok
}

// Extend returns a new universe with the extra atoms appended after
// the receiver's atoms.
func (u *Universe) Extend(extra ...Atom) (*Universe, error) {
	return NewUniverse(append(u.Atoms(), extra...)...)
}

// Equal reports whether both universes contain the same atoms in the
// same order.
func (u *Universe) Equal(o *Universe) bool {
	if u == o {
		return true
	}
	if u == nil || o == nil || len(u.atoms) != len(o.atoms) {
		return false
	}
	for i, a := range u.atoms {
		if o.atoms[i] != a {
			return false
		}
	}
	return true
}

func (u *Universe) String() string {
	s := make([]string, len(u.atoms))
	for i, a := range u.atoms {
		s[i] = string(a)
	}
	return "{" + strings.Join(s, ", ") + "}"
}
