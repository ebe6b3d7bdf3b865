// Package lower translates relational formulas over finite bounds into
// propositional CNF. Each free tuple of a bound (in the upper bound but
// not the lower) gets one primary variable; formulas become gate
// variables via Tseitin encoding. A trace lowering first expands
// temporal bounds to a fixed number of states and unrolls temporal
// operators against every possible loop state.
package lower

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/relfind/relfind/pkg/ast"
	"github.com/relfind/relfind/pkg/instance"
	"github.com/relfind/relfind/pkg/symmetry"
	"github.com/relfind/relfind/pkg/trace"
)

// ErrUnsupported is returned when a temporal operator reaches a static
// lowering; temporal formulas need a trace lowering.
var ErrUnsupported = errors.New("temporal operator in a static lowering")

// Lowering turns formulas into Problems. It holds no per-problem state
// and is safe for concurrent use.
type Lowering struct {
	log logrus.FieldLogger
}

// Option configures a Lowering.
type Option func(*Lowering)

// WithLogger attaches a logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Lowering) { l.log = log }
}

// New returns a ready Lowering.
func New(options ...Option) *Lowering {
	l := &Lowering{}
	for _, option := range options {
		option(l)
	}
	if l.log == nil {
		lg := logrus.New()
		lg.SetOutput(io.Discard)
		l.log = lg
	}
	return l
}

// Lower translates a static formula against the given bounds. Classes
// of the symmetry predicate are broken with lexicographic leader
// clauses over the primary variables; classes containing an atom the
// formula mentions as a constant are skipped, since the formula need
// not be invariant under permuting them.
func (l *Lowering) Lower(f ast.Formula, b *instance.Bounds, sym *symmetry.Predicate) (*Problem, error) {
	t := newTranslator(b, nil)
	root, err := t.formula(f, 0, 0)
	if err != nil {
		return nil, err
	}
	return l.finish(t, f, root, sym)
}

// LowerTrace translates a formula, temporal operators included,
// against the codec's expanded bounds. The result is satisfied by
// exactly the flat encodings of traces of the codec's length whose
// unrolling satisfies the formula. The disjunction over loop states
// also pins the loop relation to exactly one state.
func (l *Lowering) LowerTrace(f ast.Formula, c *trace.Codec, sym *symmetry.Predicate) (*Problem, error) {
	expanded, err := c.ExpandBounds()
	if err != nil {
		return nil, err
	}
	t := newTranslator(expanded, c)

	branches := make([]int, c.Steps())
	for loop := 0; loop < c.Steps(); loop++ {
		pin, err := t.loopPin(loop)
		if err != nil {
			return nil, err
		}
		body, err := t.formula(f, 0, loop)
		if err != nil {
			return nil, err
		}
		branches[loop] = t.and(pin, body)
	}
	return l.finish(t, f, t.or(branches...), sym)
}

func (l *Lowering) finish(t *translator, f ast.Formula, root int, sym *symmetry.Predicate) (*Problem, error) {
	p := &Problem{
		bounds:         t.bounds,
		primaries:      t.primaries,
		varOf:          t.varOf,
		triviallySat:   root == t.trueLit,
		triviallyUnsat: root == -t.trueLit,
	}
	t.clause(root)
	if err := t.breakSymmetries(f, sym); err != nil {
		return nil, err
	}
	p.clauses = t.clauses
	p.numVars = t.next - 1
	l.log.WithFields(logrus.Fields{
		"variables": p.numVars,
		"primary":   p.NumPrimary(),
		"clauses":   len(p.clauses),
	}).Debug("lowered formula")
	return p, nil
}

// translator carries the variable allocation and clause stream of one
// lowering. Literal values equal to  trueLit or its negation act as
// the boolean constants; the combinators fold them away.
type translator struct {
	bounds *instance.Bounds
	codec  *trace.Codec

	primaries []entry
	varOf     map[*instance.Relation]map[string]int
	next      int
	trueLit   int
	clauses   [][]int
}

func newTranslator(b *instance.Bounds, c *trace.Codec) *translator {
	t := &translator{
		bounds: b,
		codec:  c,
		varOf:  make(map[*instance.Relation]map[string]int),
		next:   1,
	}
	for _, r := range b.Relations() {
		lower := b.Lower(r)
		t.varOf[r] = make(map[string]int)
		for _, tup := range b.Upper(r).Tuples() {
			if lower.Contains(tup) {
				continue
			}
			v := t.fresh()
			t.varOf[r][tup.Key()] = v
			t.primaries = append(t.primaries, entry{r: r, t: tup, v: v})
		}
	}
	t.trueLit = t.fresh()
	t.clause(t.trueLit)
	return t
}

func (t *translator) fresh() int {
	v := t.next
	t.next++
	return v
}

func (t *translator) clause(lits ...int) {
	t.clauses = append(t.clauses, lits)
}

// and returns a literal equivalent to the conjunction of lits.
func (t *translator) and(lits ...int) int {
	kept := lits[:0:0]
	for _, l := range lits {
		if l == -t.trueLit {
			return -t.trueLit
		}
		if l != t.trueLit {
			kept = append(kept, l)
		}
	}
	switch len(kept) {
	case 0:
		return t.trueLit
	case 1:
		return kept[0]
	}
	g := t.fresh()
	long := make([]int, 0, len(kept)+1)
	long = append(long, g)
	for _, l := range kept {
		t.clause(-g, l)
		long = append(long, -l)
	}
	t.clause(long...)
	return g
}

// or returns a literal equivalent to the disjunction of lits.
func (t *translator) or(lits ...int) int {
	kept := lits[:0:0]
	for _, l := range lits {
		if l == t.trueLit {
			return t.trueLit
		}
		if l != -t.trueLit {
			kept = append(kept, l)
		}
	}
	switch len(kept) {
	case 0:
		return -t.trueLit
	case 1:
		return kept[0]
	}
	g := t.fresh()
	long := make([]int, 0, len(kept)+1)
	long = append(long, -g)
	for _, l := range kept {
		t.clause(g, -l)
		long = append(long, l)
	}
	t.clause(long...)
	return g
}

func (t *translator) iff(a, b int) int {
	return t.and(t.or(-a, b), t.or(-b, a))
}

// formula returns a literal equivalent to f at the given state under
// the given loop choice. Static lowerings pass state and loop zero and
// reject temporal operators.
func (t *translator) formula(f ast.Formula, state, loop int) (int, error) {
	switch f := f.(type) {
	case ast.Constant:
		if f {
			return t.trueLit, nil
		}
		return -t.trueLit, nil
	case *ast.NotFormula:
		l, err := t.formula(f.F, state, loop)
		return -l, err
	case *ast.AndFormula:
		lits, err := t.formulas(f.Conjuncts, state, loop)
		if err != nil {
			return 0, err
		}
		return t.and(lits...), nil
	case *ast.OrFormula:
		lits, err := t.formulas(f.Disjuncts, state, loop)
		if err != nil {
			return 0, err
		}
		return t.or(lits...), nil
	case *ast.ImpliesFormula:
		a, err := t.formula(f.Antecedent, state, loop)
		if err != nil {
			return 0, err
		}
		c, err := t.formula(f.Consequent, state, loop)
		if err != nil {
			return 0, err
		}
		return t.or(-a, c), nil
	case *ast.SubsetFormula:
		return t.subset(f.Left, f.Right, state)
	case *ast.EqualFormula:
		left, err := t.subset(f.Left, f.Right, state)
		if err != nil {
			return 0, err
		}
		right, err := t.subset(f.Right, f.Left, state)
		if err != nil {
			return 0, err
		}
		return t.and(left, right), nil
	case *ast.SomeFormula:
		lits, err := t.memberLits(f.Expr, state)
		if err != nil {
			return 0, err
		}
		return t.or(lits...), nil
	case *ast.NoFormula:
		lits, err := t.memberLits(f.Expr, state)
		if err != nil {
			return 0, err
		}
		return -t.or(lits...), nil
	case *ast.OneFormula:
		lits, err := t.memberLits(f.Expr, state)
		if err != nil {
			return 0, err
		}
		parts := []int{t.or(lits...)}
		for i := 0; i < len(lits); i++ {
			for j := i + 1; j < len(lits); j++ {
				parts = append(parts, t.or(-lits[i], -lits[j]))
			}
		}
		return t.and(parts...), nil
	case *ast.NextFormula:
		if t.codec == nil {
			return 0, errors.Wrapf(ErrUnsupported, "lowering %s", f)
		}
		return t.formula(f.F, t.successor(state, loop), loop)
	case *ast.AlwaysFormula:
		if t.codec == nil {
			return 0, errors.Wrapf(ErrUnsupported, "lowering %s", f)
		}
		lits := make([]int, 0, t.codec.Steps())
		for _, j := range t.reachable(state, loop) {
			l, err := t.formula(f.F, j, loop)
			if err != nil {
				return 0, err
			}
			lits = append(lits, l)
		}
		return t.and(lits...), nil
	default:
		return 0, errors.Errorf("cannot lower formula %T", f)
	}
}

func (t *translator) formulas(fs []ast.Formula, state, loop int) ([]int, error) {
	lits := make([]int, len(fs))
	for i, f := range fs {
		l, err := t.formula(f, state, loop)
		if err != nil {
			return nil, err
		}
		lits[i] = l
	}
	return lits, nil
}

func (t *translator) subset(left, right ast.Expression, state int) (int, error) {
	if left.Arity() != right.Arity() {
		return 0, errors.Errorf("subset arity mismatch: %d vs %d", left.Arity(), right.Arity())
	}
	upper, err := t.possible(left, state)
	if err != nil {
		return 0, err
	}
	parts := make([]int, 0, upper.Len())
	for _, tup := range upper.Tuples() {
		l, err := t.tupleLit(left, tup, state)
		if err != nil {
			return 0, err
		}
		r, err := t.tupleLit(right, tup, state)
		if err != nil {
			return 0, err
		}
		parts = append(parts, t.or(-l, r))
	}
	return t.and(parts...), nil
}

// memberLits returns one membership literal per tuple the expression
// may contain.
func (t *translator) memberLits(e ast.Expression, state int) ([]int, error) {
	upper, err := t.possible(e, state)
	if err != nil {
		return nil, err
	}
	lits := make([]int, 0, upper.Len())
	for _, tup := range upper.Tuples() {
		l, err := t.tupleLit(e, tup, state)
		if err != nil {
			return nil, err
		}
		lits = append(lits, l)
	}
	return lits, nil
}

// tupleLit returns a literal deciding whether the expression contains
// the tuple at the given state.
func (t *translator) tupleLit(e ast.Expression, tup instance.Tuple, state int) (int, error) {
	switch e := e.(type) {
	case *ast.RelationExpr:
		r, key := e.R, tup
		if t.codec != nil && e.R.Kind() == instance.TimeVarying {
			flat := t.codec.Flattened(e.R)
			if flat == nil {
				return 0, errors.Errorf("relation %s is not bounded", e.R.Name())
			}
			r, key = flat, tup.Concat(instance.Tuple{trace.StateAtom(state)})
		}
		return t.relationLit(r, key)
	case *ast.ConstExpr:
		if e.Set.Contains(tup) {
			return t.trueLit, nil
		}
		return -t.trueLit, nil
	case *ast.NoneExpr:
		return -t.trueLit, nil
	case *ast.UnionExpr:
		l, err := t.tupleLit(e.Left, tup, state)
		if err != nil {
			return 0, err
		}
		r, err := t.tupleLit(e.Right, tup, state)
		if err != nil {
			return 0, err
		}
		return t.or(l, r), nil
	case *ast.ProductExpr:
		k := e.Left.Arity()
		l, err := t.tupleLit(e.Left, tup[:k], state)
		if err != nil {
			return 0, err
		}
		r, err := t.tupleLit(e.Right, tup[k:], state)
		if err != nil {
			return 0, err
		}
		return t.and(l, r), nil
	default:
		return 0, errors.Errorf("cannot lower expression %T", e)
	}
}

func (t *translator) relationLit(r *instance.Relation, tup instance.Tuple) (int, error) {
	if !t.bounds.Bounded(r) {
		return 0, errors.Errorf("relation %s is not bounded", r.Name())
	}
	if t.bounds.Lower(r).Contains(tup) {
		return t.trueLit, nil
	}
	if !t.bounds.Upper(r).Contains(tup) {
		return -t.trueLit, nil
	}
	return t.varOf[r][tup.Key()], nil
}

// possible returns the upper bound of an expression's value at the
// given state.
func (t *translator) possible(e ast.Expression, state int) (*instance.TupleSet, error) {
	switch e := e.(type) {
	case *ast.RelationExpr:
		if t.codec != nil && e.R.Kind() == instance.TimeVarying {
			upper := t.codec.Base().Upper(e.R)
			if upper == nil {
				return nil, errors.Errorf("relation %s is not bounded", e.R.Name())
			}
			return upper, nil
		}
		upper := t.bounds.Upper(e.R)
		if upper == nil {
			return nil, errors.Errorf("relation %s is not bounded", e.R.Name())
		}
		return upper, nil
	case *ast.ConstExpr:
		return e.Set, nil
	case *ast.NoneExpr:
		return instance.NewTupleSet(e.Arity()), nil
	case *ast.UnionExpr:
		l, err := t.possible(e.Left, state)
		if err != nil {
			return nil, err
		}
		r, err := t.possible(e.Right, state)
		if err != nil {
			return nil, err
		}
		if l.Arity() != r.Arity() {
			return nil, errors.Errorf("union arity mismatch: %d vs %d", l.Arity(), r.Arity())
		}
		return l.Union(r), nil
	case *ast.ProductExpr:
		l, err := t.possible(e.Left, state)
		if err != nil {
			return nil, err
		}
		r, err := t.possible(e.Right, state)
		if err != nil {
			return nil, err
		}
		return l.Product(r), nil
	default:
		return nil, errors.Errorf("cannot lower expression %T", e)
	}
}

// loopPin returns a literal true exactly when the loop relation holds
// the given state atom and no other.
func (t *translator) loopPin(loop int) (int, error) {
	r := t.codec.LoopRelation()
	lits := make([]int, 0, t.codec.Steps())
	for i := 0; i < t.codec.Steps(); i++ {
		l, err := t.relationLit(r, instance.Tuple{trace.StateAtom(i)})
		if err != nil {
			return 0, err
		}
		if i != loop {
			l = -l
		}
		lits = append(lits, l)
	}
	return t.and(lits...), nil
}

func (t *translator) successor(state, loop int) int {
	if state >= t.codec.Steps()-1 {
		return loop
	}
	return state + 1
}

func (t *translator) reachable(state, loop int) []int {
	lo := state
	if state > loop {
		lo = loop
	}
	out := make([]int, 0, t.codec.Steps()-lo)
	for j := lo; j < t.codec.Steps(); j++ {
		out = append(out, j)
	}
	return out
}

// breakSymmetries emits lexicographic leader clauses for each class of
// the predicate: for consecutive class atoms a and b, the assignment
// must not lexicographically exceed its image under swapping a and b.
func (t *translator) breakSymmetries(f ast.Formula, sym *symmetry.Predicate) error {
	if sym.Empty() {
		return nil
	}
	mentioned := constantAtoms(f)
	u := t.bounds.Universe()
	for _, class := range sym.Classes() {
		if touches(class, u, mentioned) {
			continue
		}
		for i := 0; i+1 < len(class); i++ {
			if err := t.lexLeader(u.Atom(class[i]), u.Atom(class[i+1])); err != nil {
				return err
			}
		}
	}
	return nil
}

// lexLeader constrains the primary assignment to be lexicographically
// no greater than its image under the transposition of atoms a and b.
func (t *translator) lexLeader(a, b instance.Atom) error {
	eq := t.trueLit
	var parts []int
	for _, e := range t.primaries {
		img := transpose(e.t, a, b)
		if img.Equal(e.t) {
			continue
		}
		y, err := t.relationLit(e.r, img)
		if err != nil {
			return err
		}
		if y == e.v {
			continue
		}
		parts = append(parts, t.or(-eq, -e.v, y))
		eq = t.and(eq, t.iff(e.v, y))
	}
	t.clause(t.and(parts...))
	return nil
}

func transpose(tup instance.Tuple, a, b instance.Atom) instance.Tuple {
	out := make(instance.Tuple, len(tup))
	for i, x := range tup {
		switch x {
		case a:
			out[i] = b
		case b:
			out[i] = a
		default:
			out[i] = x
		}
	}
	return out
}

// constantAtoms collects every atom the formula mentions through a
// constant expression.
func constantAtoms(f ast.Formula) map[instance.Atom]struct{} {
	atoms := make(map[instance.Atom]struct{})
	var walkExpr func(e ast.Expression)
	walkExpr = func(e ast.Expression) {
		switch e := e.(type) {
		case *ast.ConstExpr:
			for _, tup := range e.Set.Tuples() {
				for _, a := range tup {
					atoms[a] = struct{}{}
				}
			}
		case *ast.UnionExpr:
			walkExpr(e.Left)
			walkExpr(e.Right)
		case *ast.ProductExpr:
			walkExpr(e.Left)
			walkExpr(e.Right)
		}
	}
	var walk func(f ast.Formula)
	walk = func(f ast.Formula) {
		switch f := f.(type) {
		case *ast.NotFormula:
			walk(f.F)
		case *ast.AndFormula:
			for _, c := range f.Conjuncts {
				walk(c)
			}
		case *ast.OrFormula:
			for _, d := range f.Disjuncts {
				walk(d)
			}
		case *ast.ImpliesFormula:
			walk(f.Antecedent)
			walk(f.Consequent)
		case *ast.SubsetFormula:
			walkExpr(f.Left)
			walkExpr(f.Right)
		case *ast.EqualFormula:
			walkExpr(f.Left)
			walkExpr(f.Right)
		case *ast.OneFormula:
			walkExpr(f.Expr)
		case *ast.SomeFormula:
			walkExpr(f.Expr)
		case *ast.NoFormula:
			walkExpr(f.Expr)
		case *ast.NextFormula:
			walk(f.F)
		case *ast.AlwaysFormula:
			walk(f.F)
		}
	}
	walk(f)
	return atoms
}

func touches(class []int, u *instance.Universe, atoms map[instance.Atom]struct{}) bool {
	for _, i := range class {
		if _, ok := atoms[u.Atom(i)]; ok {
			return true
		}
	}
	return false
}
