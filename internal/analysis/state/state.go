// Package state implements the abstract memory state: an operand stack, a
// relational store of equalities and orderings between symbolic values, and
// the facts known about each equivalence class.
//
// Every transition that can discover a contradiction returns false; the
// caller must then drop the state, which describes no real execution.
package state

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-set/v3"

	"github.com/gnolang/dfa/internal/analysis/lattice"
	"github.com/gnolang/dfa/internal/analysis/value"
)

// maxPropagation bounds fact propagation through relations.
const maxPropagation = 256

// State is a memory state. States are never shared: branch with Copy.
type State struct {
	f         *value.Factory
	store     *Store
	stack     []*value.Value
	ephemeral bool
}

// New returns the empty state used at function entry.
func New(f *value.Factory) *State {
	return &State{f: f, store: NewStore(f)}
}

func (s *State) Factory() *value.Factory { return s.f }

// Ephemeral reports whether s is only reachable through an assumed-impossible
// branch.
func (s *State) Ephemeral() bool { return s.ephemeral }

// MarkEphemeral flags s as ephemeral.
func (s *State) MarkEphemeral() { s.ephemeral = true }

// Push pushes v on the operand stack.
func (s *State) Push(v *value.Value) { s.stack = append(s.stack, v) }

// Pop pops the operand stack. Popping an empty stack is a defect of the
// instruction stream.
func (s *State) Pop() *value.Value {
	n := len(s.stack)
	if n == 0 {
		panic(invariantf("pop from empty stack"))
	}
	v := s.stack[n-1]
	s.stack = s.stack[:n-1]
	return v
}

// Peek returns the value offset slots below the top of the stack.
func (s *State) Peek(offset int) (*value.Value, bool) {
	i := len(s.stack) - 1 - offset
	if i < 0 || offset < 0 {
		return nil, false
	}
	return s.stack[i], true
}

// StackDepth returns the number of operands on the stack.
func (s *State) StackDepth() int { return len(s.stack) }

// Stack returns a copy of the operand stack, bottom first.
func (s *State) Stack() []*value.Value { return slices.Clone(s.stack) }

// ClearStack empties the operand stack.
func (s *State) ClearStack() { s.stack = s.stack[:0] }

// Canonical returns v with its qualifier chain resolved in s.
func (s *State) Canonical(v *value.Value) *value.Value { return s.store.Canonical(v) }

// Fact returns what s knows about v. Values without a recorded fact get the
// fact implied by their declaration.
func (s *State) Fact(v *value.Value) lattice.Fact {
	if v.IsUnknown() {
		return lattice.Unknown()
	}
	if f, ok := s.store.Fact(v); ok {
		return f
	}
	return v.Inherent()
}

// SetFact replaces the fact of v's class. Only used to forget information.
func (s *State) SetFact(v *value.Value, f lattice.Fact) {
	if v.IsUnknown() || v.IsConstant() {
		return
	}
	s.store.setFact(v, f)
}

// Relation returns what s knows about a compared to b, combining recorded
// relations with the facts of both values.
func (s *State) Relation(a, b *value.Value) Relation {
	if a.IsUnknown() || b.IsUnknown() {
		return RelUnknown
	}
	rel := s.store.Relation(a, b)
	if rel == RelEQ || rel == RelLT || rel == RelGT {
		return rel
	}
	fa, fb := s.Fact(a), s.Fact(b)
	ca, okA := fa.Constant()
	cb, okB := fb.Constant()
	if okA && okB {
		if ca.Same(cb) {
			return RelEQ
		}
		if !ca.Numeric() || !cb.Numeric() {
			return RelNE
		}
	}
	numeric := a.Type().Primitive() || b.Type().Primitive() || fa.Const.Numeric() || fb.Const.Numeric()
	if numeric {
		switch {
		case fa.Range.Hi < fb.Range.Lo:
			return RelLT
		case fa.Range.Lo > fb.Range.Hi:
			return RelGT
		}
	}
	if fa.Null == lattice.Null && fb.Null == lattice.NotNull || fa.Null == lattice.NotNull && fb.Null == lattice.Null {
		return RelNE
	}
	return rel
}

// MeetFact narrows the fact of v. It reports false when the result is
// bottom.
func (s *State) MeetFact(v *value.Value, f lattice.Fact) bool {
	return s.narrow(v, f, false)
}

type narrowing struct {
	v *value.Value
	f lattice.Fact
}

// narrow intersects facts and propagates the change to related classes:
// a new constant is excluded from every distinct partner, and a new range
// bounds every ordered partner. With force set, v is propagated even when
// its fact did not change.
func (s *State) narrow(v *value.Value, f lattice.Fact, force bool) bool {
	if v.IsUnknown() {
		return !f.IsBottom()
	}
	if v.IsConstant() {
		return !v.Inherent().Meet(f).IsBottom()
	}
	work := []narrowing{{v: v, f: f}}
	for steps := 0; len(work) > 0; steps++ {
		n := work[0]
		work = work[1:]
		cur := s.Fact(n.v)
		next := pin(n.v, cur.Meet(n.f))
		if next.IsBottom() {
			return false
		}
		if steps >= maxPropagation {
			s.store.setFact(n.v, next)
			continue
		}
		if next.Equal(cur) && !(force && steps == 0) {
			if s.store.Contains(n.v) || n.v.IsConstant() {
				continue
			}
		}
		s.store.setFact(n.v, next)
		c, isConst := next.Constant()
		if isConst {
			cv := s.f.Const(c)
			if s.store.Relation(n.v, cv) != RelEQ && !s.store.Unite(n.v, cv) {
				return false
			}
		}
		for p, rel := range s.store.Partners(n.v) {
			if p.IsConstant() {
				continue
			}
			pf := s.Fact(p)
			switch rel {
			case RelNE:
				if isConst {
					work = append(work, narrowing{v: p, f: pf.Exclude(c)})
				}
			case RelLT:
				if !next.Range.IsFull() {
					work = append(work, narrowing{v: p, f: lattice.RangeFact(pf.Range.Greater(next.Range))})
				}
			case RelGT:
				if !next.Range.IsFull() {
					work = append(work, narrowing{v: p, f: lattice.RangeFact(pf.Range.Less(next.Range))})
				}
			}
		}
	}
	return true
}

// pin turns a single-point range into the constant of the value's type.
func pin(v *value.Value, f lattice.Fact) lattice.Fact {
	if f.IsBottom() || f.Const.IsSet() || !f.Range.IsPoint() {
		return f
	}
	switch v.Type().Kind {
	case lattice.KindInt:
		f.Const = lattice.IntConst(f.Range.Lo)
	case lattice.KindBool:
		f.Const = lattice.BoolConst(f.Range.Lo != 0)
	}
	return f
}

// Assign stores source into target. The previous knowledge about target and
// everything reached through it is flushed first.
func (s *State) Assign(target, source *value.Value) bool {
	if !target.IsVariable() {
		panic(invariantf("assignment to non-variable %s", target))
	}
	if source == target {
		return true
	}
	target = s.store.Canonical(target)
	sf := s.Fact(source)
	stale := source.DependsOn(target)
	s.Flush(target)
	if !s.MeetFact(target, sf) {
		return false
	}
	if stale || source.IsUnknown() {
		return true
	}
	return s.unite(target, source)
}

func (s *State) unite(a, b *value.Value) bool {
	if !s.store.Unite(a, b) {
		return false
	}
	return s.narrow(a, lattice.Unknown(), true)
}

// ApplyCondition assumes that a op b holds. It reports false when the
// condition cannot hold in s.
func (s *State) ApplyCondition(a *value.Value, op value.Op, b *value.Value) bool {
	if a.IsUnknown() || b.IsUnknown() {
		return true
	}
	switch op {
	case value.OpEq:
		if s.Relation(a, b).Distinct() {
			return false
		}
		return s.unite(a, b)
	case value.OpNe:
		if s.Relation(a, b) == RelEQ {
			return false
		}
		fa, fb := s.Fact(a), s.Fact(b)
		if c, ok := fa.Constant(); ok && !s.MeetFact(b, fb.Exclude(c)) {
			return false
		}
		if c, ok := fb.Constant(); ok && !s.MeetFact(a, fa.Exclude(c)) {
			return false
		}
		return s.store.MarkDistinct(a, b, false)
	case value.OpLt:
		return s.less(a, b, true)
	case value.OpLe:
		return s.less(a, b, false)
	case value.OpGt:
		return s.less(b, a, true)
	case value.OpGe:
		return s.less(b, a, false)
	}
	panic(invariantf("condition with non-relational operator %s", op))
}

func (s *State) less(a, b *value.Value, strict bool) bool {
	rel := s.Relation(a, b)
	if rel == RelGT || strict && rel == RelEQ {
		return false
	}
	fa, fb := s.Fact(a), s.Fact(b)
	ra, rb := fa.Range.Less(fb.Range), fb.Range.Greater(fa.Range)
	if !strict {
		ra, rb = fa.Range.LessOrEqual(fb.Range), fb.Range.GreaterOrEqual(fa.Range)
	}
	if !s.MeetFact(a, lattice.RangeFact(ra)) || !s.MeetFact(b, lattice.RangeFact(rb)) {
		return false
	}
	if strict {
		return s.store.MarkDistinct(a, b, true)
	}
	return true
}

// Flush forgets v, its relations, and everything that structurally depends
// on it. Values equal to v keep what was known through v.
func (s *State) Flush(v *value.Value) {
	if v.IsUnknown() || v.IsConstant() {
		return
	}
	seen := set.New[value.ID](4)
	todo := []*value.Value{s.store.Canonical(v)}
	for len(todo) > 0 {
		x := todo[len(todo)-1]
		todo = todo[:len(todo)-1]
		if !seen.Insert(x.ID()) {
			continue
		}
		s.store.Remove(x)
		for _, d := range s.f.Dependents(x) {
			if _, live := s.store.index[d.ID()]; live {
				todo = append(todo, d)
			}
		}
	}
}

// Escape records that v may now be reachable from outside the function.
func (s *State) Escape(v *value.Value) {
	if f, ok := s.store.Fact(v); ok && f.Local {
		s.store.setFact(v, f.WithoutLocal())
	}
}

// Copy returns an independent copy of s.
func (s *State) Copy() *State {
	return &State{
		f:         s.f,
		store:     s.store.Copy(),
		stack:     slices.Clone(s.stack),
		ephemeral: s.ephemeral,
	}
}

// ClosureState returns the state a nested closure starts from: the stack is
// empty, no object is assumed local any more, and mutable fields may have
// changed by the time the closure runs.
func (s *State) ClosureState() *State {
	c := s.Copy()
	c.stack = nil
	for _, cl := range c.store.classes {
		if cl != nil {
			cl.fact = cl.fact.WithoutLocal()
		}
	}
	c.FlushMutable(false)
	return c
}

// Rebind returns a copy of s that interns new values in f, which must be a
// clone of the factory of s.
func (s *State) Rebind(f *value.Factory) *State {
	c := s.Copy()
	c.f = f
	c.store.f = f
	return c
}

// FlushMutable forgets every field that is not stable. With escapedOnly
// set, fields of objects known to be local are kept.
func (s *State) FlushMutable(escapedOnly bool) {
	var mutable []*value.Value
	for _, cl := range s.store.classes {
		if cl == nil {
			continue
		}
		for _, id := range cl.members {
			v := s.f.Get(id)
			d := v.Descriptor()
			if d == nil || !d.Qualified() || d.Stable {
				continue
			}
			if escapedOnly && s.Fact(v.Qualifier()).Local {
				continue
			}
			mutable = append(mutable, v)
		}
	}
	for _, v := range mutable {
		s.Flush(v)
	}
}

// FlushAliases forgets the fields with the descriptor of target whose
// qualifier may be the same object as the qualifier of target.
func (s *State) FlushAliases(target *value.Value) {
	d, q := target.Descriptor(), target.Qualifier()
	if d == nil || q == nil {
		return
	}
	var stale []*value.Value
	for id := range s.store.index {
		v := s.f.Get(id)
		if v.Descriptor() != d || v.Qualifier() == nil {
			continue
		}
		if rel := s.Relation(v.Qualifier(), q); rel == RelEQ || rel.Distinct() {
			continue
		}
		stale = append(stale, v)
	}
	slices.SortFunc(stale, compareValues)
	for _, v := range stale {
		s.Flush(v)
	}
}

// IsSuperStateOf reports whether every execution described by o is also
// described by s.
func (s *State) IsSuperStateOf(o *State) bool {
	if s.ephemeral != o.ephemeral || len(s.stack) != len(o.stack) {
		return false
	}
	for i, a := range s.stack {
		b := o.stack[i]
		if !s.Fact(a).Includes(o.Fact(b)) {
			return false
		}
		if a != b && !s.isolated(a) {
			return false
		}
	}
	ok := true
	s.store.Classes(func(members []*value.Value, fact lattice.Fact) {
		if !ok {
			return
		}
		for _, m := range members[1:] {
			if o.Relation(members[0], m) != RelEQ {
				ok = false
				return
			}
		}
		ok = fact.Includes(o.Fact(members[0]))
	})
	if !ok {
		return false
	}
	s.store.Pairs(func(a, b *value.Value, rel Relation) {
		if ok && !o.Relation(a, b).Implies(rel) {
			ok = false
		}
	})
	return ok
}

// isolated reports whether v takes part in no equality or relation.
func (s *State) isolated(v *value.Value) bool {
	k, ok := s.store.classOf(v)
	if !ok {
		return true
	}
	return len(s.store.classes[k].members) == 1 && len(s.store.relationsOf(k)) == 0
}

// Key is the mergeability key: only states with equal keys are merge
// candidates.
func (s *State) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%t/%d", s.ephemeral, len(s.stack))
	for i, v := range s.stack {
		if c, ok := s.Fact(v).Constant(); ok && c.Kind == lattice.ConstToken {
			fmt.Fprintf(&b, "/%d:%d", i, c.Int)
		}
	}
	if top, ok := s.Peek(0); ok {
		b.WriteByte('/')
		b.WriteString(s.Fact(top).String())
	}
	return b.String()
}

// CheckInvariants verifies the relational store.
func (s *State) CheckInvariants() error {
	return s.store.CheckInvariants()
}

func (s *State) String() string {
	var b strings.Builder
	if s.ephemeral {
		b.WriteString("ephemeral ")
	}
	b.WriteString("stack=[")
	for i, v := range s.stack {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(v.String())
	}
	b.WriteString("]")
	s.store.Classes(func(members []*value.Value, fact lattice.Fact) {
		names := make([]string, len(members))
		for i, m := range members {
			names[i] = m.String()
		}
		fmt.Fprintf(&b, " {%s: %s}", strings.Join(names, "="), fact)
	})
	var rels []string
	s.store.Pairs(func(x, y *value.Value, rel Relation) {
		rels = append(rels, fmt.Sprintf("%s%s%s", x, rel, y))
	})
	slices.Sort(rels)
	for _, r := range rels {
		b.WriteString(" ")
		b.WriteString(r)
	}
	return b.String()
}
