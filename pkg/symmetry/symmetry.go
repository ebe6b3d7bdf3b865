// Package symmetry computes atom-interchangeability partitions from
// relational bounds and derives the ordering predicates used to break
// them. Detection is a partition refinement over per-relation atom
// colorings and yields the coarsest stable over-approximation of the
// bounds' automorphism classes, not the exact orbit partition.
package symmetry

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/relfind/relfind/pkg/instance"
)

// Partition groups atom indices into classes such that every
// automorphism of the bounds fixes each class setwise.
type Partition struct {
	classes [][]int
}

// Classes returns the atom-index classes, each sorted ascending,
// ordered by their smallest member.
func (p *Partition) Classes() [][]int {
	out := make([][]int, len(p.classes))
	copy(out, p.classes)
	return out
}

// Len returns the number of classes.
func (p *Partition) Len() int {
	return len(p.classes)
}

func (p *Partition) String() string {
	parts := make([]string, len(p.classes))
	for i, c := range p.classes {
		elems := make([]string, len(c))
		for j, a := range c {
			elems[j] = fmt.Sprintf("%d", a)
		}
		parts[i] = "{" + strings.Join(elems, ",") + "}"
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Predicate lists the atom classes, in order, whose lexicographic
// leaders a lowering stage should prefer. For each class the contract
// is: any instance within the bounds has some symmetric image
// satisfying both the original formula and the leader ordering, so
// restricting search to leaders loses no outcomes.
type Predicate struct {
	classes [][]int
}

// Classes returns the ordered atom-index chains to break.
func (p *Predicate) Classes() [][]int {
	if p == nil {
		return nil
	}
	out := make([][]int, len(p.classes))
	copy(out, p.classes)
	return out
}

// Empty reports whether the predicate constrains anything.
func (p *Predicate) Empty() bool {
	return p == nil || len(p.classes) == 0
}

// Oracle detects symmetries. Detection is read-only over the bounds
// and safe to share between goroutines.
type Oracle struct {
	log logrus.FieldLogger
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithLogger attaches a logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *Oracle) { o.log = log }
}

// NewOracle returns a ready Oracle.
func NewOracle(options ...Option) *Oracle {
	o := &Oracle{}
	for _, option := range options {
		option(o)
	}
	if o.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.log = l
	}
	return o
}

// Detect computes the symmetry partition of the given bounds. Atoms
// are first colored, per relation and argument position, by whether
// they are forced present (some lower-bound tuple), possibly present
// (some upper-bound tuple only), or absent; atoms with identical
// colorings share a class. Classes are then refined against the tuple
// structure until stable. Singleton classes carry no usable symmetry.
func (o *Oracle) Detect(b *instance.Bounds) *Partition {
	n := b.Universe().Size()
	sig := make([]string, n)
	for _, r := range b.Relations() {
		lower, upper := b.Lower(r), b.Upper(r)
		for pos := 0; pos < r.Arity(); pos++ {
			status := make([]byte, n)
			mark(status, b, upper, pos, 1)
			mark(status, b, lower, pos, 2)
			for a := 0; a < n; a++ {
				sig[a] += fmt.Sprintf("|%s.%d:%d", r.Name(), pos, status[a])
			}
		}
	}
	class := classify(sig)

	for {
		next := o.refine(b, class)
		if sameClassCount(class, next) {
			class = next
			break
		}
		class = next
	}

	p := &Partition{classes: group(class)}
	o.log.WithField("classes", p.Len()).Debug("detected symmetry partition")
	return p
}

// refine recolors each atom by the class vectors of the tuples it
// participates in. The result always refines the input partition.
func (o *Oracle) refine(b *instance.Bounds, class []int) []int {
	n := len(class)
	sig := make([]string, n)
	for a := 0; a < n; a++ {
		sig[a] = fmt.Sprintf("c%d", class[a])
	}
	for _, r := range b.Relations() {
		lower, upper := b.Lower(r), b.Upper(r)
		occ := make([][]string, n)
		for _, t := range upper.Tuples() {
			inLower := lower.Contains(t)
			for pos, atom := range t {
				a, ok := b.Universe().IndexOf(atom)
				if !ok {
					continue
				}
				occ[a] = append(occ[a], tupleColor(b, class, r, t, pos, inLower))
			}
		}
		for a := 0; a < n; a++ {
			sort.Strings(occ[a])
			sig[a] += "|" + r.Name() + ":" + strings.Join(occ[a], ";")
		}
	}
	return classify(sig)
}

// BreakingPredicate selects the classes of the partition to break,
// skipping singletons and any class larger than bound atoms. A bound
// of zero disables breaking entirely.
func (o *Oracle) BreakingPredicate(p *Partition, bound int) *Predicate {
	if bound <= 0 {
		return &Predicate{}
	}
	var classes [][]int
	for _, c := range p.Classes() {
		if len(c) < 2 || len(c) > bound {
			continue
		}
		classes = append(classes, c)
	}
	return &Predicate{classes: classes}
}

// tupleColor encodes one tuple occurrence relative to the current
// classes, marking the position held by the colored atom.
func tupleColor(b *instance.Bounds, class []int, r *instance.Relation, t instance.Tuple, pos int, inLower bool) string {
	parts := make([]string, 0, len(t)+2)
	parts = append(parts, fmt.Sprintf("p%d", pos))
	if inLower {
		parts = append(parts, "L")
	}
	for _, atom := range t {
		if a, ok := b.Universe().IndexOf(atom); ok {
			parts = append(parts, fmt.Sprintf("c%d", class[a]))
		}
	}
	return strings.Join(parts, ",")
}

func mark(status []byte, b *instance.Bounds, ts *instance.TupleSet, pos int, level byte) {
	for _, t := range ts.Tuples() {
		if a, ok := b.Universe().IndexOf(t[pos]); ok && status[a] < level {
			status[a] = level
		}
	}
}

// classify maps equal signatures to one class id, numbering classes by
// first appearance.
func classify(sig []string) []int {
	ids := make(map[string]int)
	class := make([]int, len(sig))
	for a, s := range sig {
		id, ok := ids[s]
		if !ok {
			id = len(ids)
			ids[s] = id
		}
		class[a] = id
	}
	return class
}

func sameClassCount(a, b []int) bool {
	return countClasses(a) == countClasses(b)
}

func countClasses(class []int) int {
	seen := make(map[int]struct{}, len(class))
	for _, c := range class {
		seen[c] = struct{}{}
	}
	return len(seen)
}

func group(class []int) [][]int {
	byID := make(map[int][]int)
	for a, c := range class {
		byID[c] = append(byID[c], a)
	}
	out := make([][]int, 0, len(byID))
	for _, members := range byID {
		sort.Ints(members)
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
