package state

import (
	"fmt"
	"slices"

	"github.com/hashicorp/go-set/v3"

	"github.com/gnolang/dfa/internal/analysis/lattice"
	"github.com/gnolang/dfa/internal/analysis/value"
)

// maxRelocations bounds the qualifier rewriting triggered by a single
// store operation. Past it, dependents are forgotten instead of moved.
const maxRelocations = 4096

type class struct {
	members []value.ID
	// canon is the least variable member by value.Less, or value.NoID.
	canon value.ID
	fact  lattice.Fact
}

func (c *class) clone() *class {
	return &class{members: slices.Clone(c.members), canon: c.canon, fact: c.fact}
}

type pairKey struct {
	lo, hi int
}

// slotRel is a relation of some class to the class at slot other.
type slotRel struct {
	other int
	rel   Relation
}

type relocation struct {
	from, to value.ID
}

// Store is the relational part of a memory state: equivalence classes of
// values, the fact shared by each class, and the distinct/ordered relations
// between classes.
//
// Every value held by the store is in canonical form: its qualifier, or each
// of its operands, is the canonical variable of its own class.
type Store struct {
	f       *value.Factory
	classes []*class
	free    []int
	index   map[value.ID]int
	// pairs maps a slot pair to the relation of lo to hi.
	pairs map[pairKey]Relation
}

// NewStore returns an empty store over the values of f.
func NewStore(f *value.Factory) *Store {
	return &Store{
		f:     f,
		index: make(map[value.ID]int),
		pairs: make(map[pairKey]Relation),
	}
}

// Copy returns an independent copy of s. Values are shared.
func (s *Store) Copy() *Store {
	c := &Store{
		f:       s.f,
		classes: make([]*class, len(s.classes)),
		free:    slices.Clone(s.free),
		index:   make(map[value.ID]int, len(s.index)),
		pairs:   make(map[pairKey]Relation, len(s.pairs)),
	}
	for i, cl := range s.classes {
		if cl != nil {
			c.classes[i] = cl.clone()
		}
	}
	for k, v := range s.index {
		c.index[k] = v
	}
	for k, v := range s.pairs {
		c.pairs[k] = v
	}
	return c
}

// Canonical rewrites v so that its qualifier or operands are canonical.
func (s *Store) Canonical(v *value.Value) *value.Value {
	switch v.Kind() {
	case value.KindVariable:
		q := v.Qualifier()
		if q == nil {
			return v
		}
		if cq := s.Rep(q); cq != q {
			return s.f.Requalify(v, cq)
		}
	case value.KindComposite:
		l, r := v.Operands()
		cl, cr := s.operand(l), s.operand(r)
		if cl != l || cr != r {
			return s.f.Composite(v.Op(), cl, cr, v.Width())
		}
	}
	return v
}

// Rep returns the canonical variable of v's class, or v in canonical form
// when its class has no variable.
func (s *Store) Rep(v *value.Value) *value.Value {
	c := s.Canonical(v)
	if k, ok := s.index[c.ID()]; ok && s.classes[k].canon != value.NoID {
		return s.f.Get(s.classes[k].canon)
	}
	return c
}

func (s *Store) operand(v *value.Value) *value.Value {
	if v.IsConstant() {
		return v
	}
	return s.Rep(v)
}

// classOf returns the slot of v's class.
func (s *Store) classOf(v *value.Value) (int, bool) {
	if k, ok := s.index[v.ID()]; ok {
		return k, true
	}
	c := s.Canonical(v)
	if c == v {
		return 0, false
	}
	k, ok := s.index[c.ID()]
	return k, ok
}

// Contains reports whether v, or its canonical form, belongs to a class.
func (s *Store) Contains(v *value.Value) bool {
	_, ok := s.classOf(v)
	return ok
}

// ensure returns v's slot, creating a singleton class when needed.
func (s *Store) ensure(v *value.Value) int {
	if k, ok := s.classOf(v); ok {
		return k
	}
	v = s.Canonical(v)
	switch v.Kind() {
	case value.KindVariable:
		if q := v.Qualifier(); q != nil {
			s.ensure(q)
		}
	case value.KindComposite:
		l, r := v.Operands()
		s.ensure(l)
		s.ensure(r)
	}
	cl := &class{members: []value.ID{v.ID()}, canon: value.NoID, fact: v.Inherent()}
	if v.IsVariable() {
		cl.canon = v.ID()
	}
	var k int
	if n := len(s.free); n > 0 {
		k = s.free[n-1]
		s.free = s.free[:n-1]
		s.classes[k] = cl
	} else {
		k = len(s.classes)
		s.classes = append(s.classes, cl)
	}
	s.index[v.ID()] = k
	return k
}

// Fact returns the fact recorded for v's class.
func (s *Store) Fact(v *value.Value) (lattice.Fact, bool) {
	k, ok := s.classOf(v)
	if !ok {
		return lattice.Fact{}, false
	}
	return s.classes[k].fact, true
}

// setFact replaces the fact of v's class, creating the class if needed.
func (s *Store) setFact(v *value.Value, f lattice.Fact) {
	s.classes[s.ensure(v)].fact = f
}

// Members returns the values equal to v, v's canonical form included.
func (s *Store) Members(v *value.Value) []*value.Value {
	k, ok := s.classOf(v)
	if !ok {
		return []*value.Value{s.Canonical(v)}
	}
	return s.values(s.classes[k].members)
}

func (s *Store) values(ids []value.ID) []*value.Value {
	out := make([]*value.Value, len(ids))
	for i, id := range ids {
		out[i] = s.f.Get(id)
	}
	return out
}

func keyOf(a, b int) (pairKey, bool) {
	if a < b {
		return pairKey{lo: a, hi: b}, false
	}
	return pairKey{lo: b, hi: a}, true
}

// pair returns the recorded relation of slot a to slot b.
func (s *Store) pair(a, b int) (Relation, bool) {
	key, flipped := keyOf(a, b)
	rel, ok := s.pairs[key]
	if flipped {
		rel = rel.Flip()
	}
	return rel, ok
}

func (s *Store) setPair(a, b int, rel Relation) {
	key, flipped := keyOf(a, b)
	if flipped {
		rel = rel.Flip()
	}
	s.pairs[key] = rel
}

// relationsOf returns the relations of class k to every related class.
func (s *Store) relationsOf(k int) []slotRel {
	var out []slotRel
	for key, rel := range s.pairs {
		switch k {
		case key.lo:
			out = append(out, slotRel{other: key.hi, rel: rel})
		case key.hi:
			out = append(out, slotRel{other: key.lo, rel: rel.Flip()})
		}
	}
	return out
}

// reaches reports whether slot to is reachable from slot from by following
// strict less-than edges.
func (s *Store) reaches(from, to int) bool {
	succ := make(map[int][]int)
	for key, rel := range s.pairs {
		switch rel {
		case RelLT:
			succ[key.lo] = append(succ[key.lo], key.hi)
		case RelGT:
			succ[key.hi] = append(succ[key.hi], key.lo)
		}
	}
	seen := set.New[int](8)
	stack := []int{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, m := range succ[n] {
			if m == to {
				return true
			}
			if seen.Insert(m) {
				stack = append(stack, m)
			}
		}
	}
	return false
}

// Relation returns what the store records between a and b.
func (s *Store) Relation(a, b *value.Value) Relation {
	ka, okA := s.classOf(a)
	kb, okB := s.classOf(b)
	if !okA || !okB {
		if s.Canonical(a) == s.Canonical(b) {
			return RelEQ
		}
		return RelUnknown
	}
	if ka == kb {
		return RelEQ
	}
	rel, ok := s.pair(ka, kb)
	if ok && rel != RelNE {
		return rel
	}
	switch {
	case s.reaches(ka, kb):
		return RelLT
	case s.reaches(kb, ka):
		return RelGT
	}
	if ok {
		return RelNE
	}
	return RelUnknown
}

// Unite records that a and b are equal. It reports false when that
// contradicts what the store already knows.
func (s *Store) Unite(a, b *value.Value) bool {
	if a.IsUnknown() || b.IsUnknown() {
		return true
	}
	ka := s.ensure(a)
	kb := s.ensure(b)
	var queue []relocation
	if !s.merge(ka, kb, &queue) {
		return false
	}
	return s.relocate(queue, true)
}

// merge unites two classes. It either fails without touching the store or
// succeeds and queues the qualifier rewriting of demoted canonicals.
func (s *Store) merge(ka, kb int, queue *[]relocation) bool {
	if ka == kb {
		return true
	}
	if _, ok := s.pair(ka, kb); ok {
		return false
	}
	if s.reaches(ka, kb) || s.reaches(kb, ka) {
		return false
	}
	ca, cb := s.classes[ka], s.classes[kb]
	fact := ca.fact.Meet(cb.fact)
	if fact.IsBottom() {
		return false
	}
	keep, drop := ka, kb
	if drop < keep {
		keep, drop = drop, keep
	}

	rekeyed := s.relationsOf(drop)
	for i, m := range rekeyed {
		if prev, ok := s.pair(keep, m.other); ok {
			combined, ok := combine(prev, m.rel)
			if !ok {
				return false
			}
			rekeyed[i].rel = combined
		}
	}

	ck, cd := s.classes[keep], s.classes[drop]
	for _, m := range rekeyed {
		key, _ := keyOf(drop, m.other)
		delete(s.pairs, key)
	}
	for _, m := range rekeyed {
		s.setPair(keep, m.other, m.rel)
	}
	for _, id := range cd.members {
		s.index[id] = keep
	}
	ck.members = append(ck.members, cd.members...)
	ck.fact = fact
	s.classes[drop] = nil
	s.free = append(s.free, drop)

	next := s.lesser(ck.canon, cd.canon)
	for _, prev := range []value.ID{ck.canon, cd.canon} {
		if prev != value.NoID && prev != next {
			*queue = append(*queue, relocation{from: prev, to: next})
		}
	}
	ck.canon = next
	return true
}

func (s *Store) lesser(a, b value.ID) value.ID {
	switch {
	case a == value.NoID:
		return b
	case b == value.NoID:
		return a
	case value.Less(s.f.Get(b), s.f.Get(a)):
		return b
	}
	return a
}

func (s *Store) minVariable(ids []value.ID) value.ID {
	best := value.NoID
	for _, id := range ids {
		if s.f.Get(id).IsVariable() {
			best = s.lesser(best, id)
		}
	}
	return best
}

// relocate rewrites live dependents of demoted canonicals until no
// qualifier points at a non-canonical variable. In strict mode a
// contradiction fails the operation; otherwise the dependent is forgotten.
func (s *Store) relocate(queue []relocation, strict bool) bool {
	steps := 0
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		from, to := s.f.Get(r.from), s.f.Get(r.to)
		for _, d := range s.f.Dependents(from) {
			k, live := s.index[d.ID()]
			if !live {
				continue
			}
			steps++
			if steps > maxRelocations || to.Depth() > from.Depth() {
				s.drop(d)
				continue
			}
			nd := s.rebuild(d, from, to)
			if nd == d {
				continue
			}
			nk, ok := s.index[nd.ID()]
			if !ok {
				s.rename(k, d, nd, &queue)
				continue
			}
			if nk != k {
				if !s.merge(k, nk, &queue) {
					if strict {
						return false
					}
					s.drop(d)
					continue
				}
			}
			s.detach(d, &queue)
		}
	}
	return true
}

func (s *Store) rebuild(d, from, to *value.Value) *value.Value {
	switch d.Kind() {
	case value.KindVariable:
		if d.Qualifier() == from {
			return s.f.Requalify(d, to)
		}
	case value.KindComposite:
		l, r := d.Operands()
		if l == from {
			l = to
		}
		if r == from {
			r = to
		}
		return s.f.Composite(d.Op(), l, r, d.Width())
	}
	return d
}

// rename replaces d by nd inside class k.
func (s *Store) rename(k int, d, nd *value.Value, queue *[]relocation) {
	cl := s.classes[k]
	i := slices.Index(cl.members, d.ID())
	cl.members[i] = nd.ID()
	delete(s.index, d.ID())
	s.index[nd.ID()] = k
	s.recanon(k, queue)
}

// detach removes d from its class, keeping the rest of the class intact.
func (s *Store) detach(d *value.Value, queue *[]relocation) {
	k, ok := s.index[d.ID()]
	if !ok {
		return
	}
	cl := s.classes[k]
	delete(s.index, d.ID())
	cl.members = slices.DeleteFunc(cl.members, func(id value.ID) bool { return id == d.ID() })
	if len(cl.members) == 0 {
		s.dropClass(k)
		return
	}
	s.recanon(k, queue)
}

// recanon recomputes the canonical of class k and queues the relocation of
// the previous canonical's dependents. Moving them to a deeper canonical is
// refused; they are forgotten instead.
func (s *Store) recanon(k int, queue *[]relocation) {
	cl := s.classes[k]
	prev := cl.canon
	next := s.minVariable(cl.members)
	cl.canon = next
	if prev == next || prev == value.NoID {
		return
	}
	if next == value.NoID || s.f.Get(next).Depth() > s.f.Get(prev).Depth() {
		s.dropDependents(s.f.Get(prev))
		return
	}
	*queue = append(*queue, relocation{from: prev, to: next})
}

func (s *Store) dropClass(k int) {
	for key := range s.pairs {
		if key.lo == k || key.hi == k {
			delete(s.pairs, key)
		}
	}
	s.classes[k] = nil
	s.free = append(s.free, k)
}

// drop forgets d and everything that depends on it.
func (s *Store) drop(d *value.Value) {
	k, ok := s.index[d.ID()]
	if !ok {
		return
	}
	cl := s.classes[k]
	delete(s.index, d.ID())
	cl.members = slices.DeleteFunc(cl.members, func(id value.ID) bool { return id == d.ID() })
	if len(cl.members) == 0 {
		s.dropClass(k)
	} else {
		cl.canon = s.minVariable(cl.members)
	}
	s.dropDependents(d)
}

func (s *Store) dropDependents(v *value.Value) {
	for _, d := range s.f.Dependents(v) {
		s.drop(d)
	}
}

// Remove detaches v from its class. Live dependents of v are moved to the
// class's next canonical when there is one no deeper than v, and are
// otherwise left in place for the caller to flush.
func (s *Store) Remove(v *value.Value) {
	if _, ok := s.index[v.ID()]; !ok {
		return
	}
	var queue []relocation
	k := s.index[v.ID()]
	cl := s.classes[k]
	wasCanon := cl.canon == v.ID()
	delete(s.index, v.ID())
	cl.members = slices.DeleteFunc(cl.members, func(id value.ID) bool { return id == v.ID() })
	if len(cl.members) == 0 {
		s.dropClass(k)
		return
	}
	if !wasCanon {
		return
	}
	next := s.minVariable(cl.members)
	cl.canon = next
	if next == value.NoID || s.f.Get(next).Depth() > v.Depth() {
		return
	}
	queue = append(queue, relocation{from: v.ID(), to: next})
	s.relocate(queue, false)
}

// MarkDistinct records that a differs from b, or that a < b when ordered is
// set. On failure the store is left unchanged.
func (s *Store) MarkDistinct(a, b *value.Value, ordered bool) bool {
	if a.IsUnknown() || b.IsUnknown() {
		return true
	}
	ka, okA := s.classOf(a)
	kb, okB := s.classOf(b)
	if okA && okB {
		if ka == kb {
			return false
		}
		prev, ok := s.pair(ka, kb)
		if ok && (!ordered || prev == RelLT) {
			return true
		}
		if ordered && (prev == RelGT || s.reaches(kb, ka)) {
			return false
		}
	} else if s.Canonical(a) == s.Canonical(b) {
		return false
	}
	ka = s.ensure(a)
	kb = s.ensure(b)
	rel := RelNE
	if ordered {
		rel = RelLT
	}
	s.setPair(ka, kb, rel)
	return true
}

// Partners returns one representative of every class related to v, with the
// relation of v to it.
func (s *Store) Partners(v *value.Value) map[*value.Value]Relation {
	k, ok := s.classOf(v)
	if !ok {
		return nil
	}
	out := make(map[*value.Value]Relation)
	for _, r := range s.relationsOf(k) {
		out[s.representative(r.other)] = r.rel
	}
	return out
}

// representative returns a stable member of class k.
func (s *Store) representative(k int) *value.Value {
	cl := s.classes[k]
	if cl.canon != value.NoID {
		return s.f.Get(cl.canon)
	}
	best := cl.members[0]
	for _, id := range cl.members[1:] {
		if value.Less(s.f.Get(id), s.f.Get(best)) {
			best = id
		}
	}
	return s.f.Get(best)
}

// Classes calls fn for every class with its members sorted by value.Less.
func (s *Store) Classes(fn func(members []*value.Value, fact lattice.Fact)) {
	for _, cl := range s.classes {
		if cl == nil {
			continue
		}
		members := s.values(cl.members)
		slices.SortFunc(members, compareValues)
		fn(members, cl.fact)
	}
}

// Pairs calls fn for every recorded relation, with one representative of
// each class.
func (s *Store) Pairs(fn func(a, b *value.Value, rel Relation)) {
	for key, rel := range s.pairs {
		fn(s.representative(key.lo), s.representative(key.hi), rel)
	}
}

func compareValues(a, b *value.Value) int {
	switch {
	case a == b:
		return 0
	case value.Less(a, b):
		return -1
	}
	return 1
}

// InvariantError reports a broken internal invariant of a store.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "state invariant violated: " + e.Msg }

func invariantf(format string, args ...any) *InvariantError {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}

// CheckInvariants verifies the index, the canonical choice of each class,
// that stored qualifiers are canonical, and that ordered relations form a
// DAG.
func (s *Store) CheckInvariants() error {
	for id, k := range s.index {
		if k < 0 || k >= len(s.classes) || s.classes[k] == nil {
			return invariantf("value %d indexed to dead slot %d", id, k)
		}
		if !slices.Contains(s.classes[k].members, id) {
			return invariantf("value %d indexed to slot %d which does not contain it", id, k)
		}
	}
	for k, cl := range s.classes {
		if cl == nil {
			continue
		}
		if len(cl.members) == 0 {
			return invariantf("empty class at slot %d", k)
		}
		for _, id := range cl.members {
			if got, ok := s.index[id]; !ok || got != k {
				return invariantf("member %d of slot %d missing from index", id, k)
			}
			v := s.f.Get(id)
			if q := v.Qualifier(); q != nil {
				if qk, ok := s.index[q.ID()]; ok && s.classes[qk].canon != q.ID() {
					return invariantf("qualifier of %s is not canonical", v)
				}
				if qk, ok := s.classOf(q); ok && s.classes[qk].canon != q.ID() {
					return invariantf("qualifier of %s is not canonical", v)
				}
			}
		}
		if want := s.minVariable(cl.members); want != cl.canon {
			return invariantf("slot %d has canonical %d, want %d", k, cl.canon, want)
		}
	}
	for key := range s.pairs {
		for _, k := range []int{key.lo, key.hi} {
			if k >= len(s.classes) || s.classes[k] == nil {
				return invariantf("relation mentions dead slot %d", k)
			}
		}
	}
	for key, rel := range s.pairs {
		if rel == RelLT && s.reaches(key.hi, key.lo) || rel == RelGT && s.reaches(key.lo, key.hi) {
			return invariantf("ordered relations form a cycle through slots %d and %d", key.lo, key.hi)
		}
	}
	return nil
}
