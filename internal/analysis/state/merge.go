package state

import (
	"slices"

	"github.com/gnolang/dfa/internal/analysis/lattice"
	"github.com/gnolang/dfa/internal/analysis/value"
)

// Merge returns a state describing every execution of a and b. The two
// states must share a mergeability key. With widen set, a is treated as the
// earlier state at a loop head and growing ranges jump to infinity.
func Merge(a, b *State, widen bool) *State {
	res := a.Copy()
	res.ephemeral = a.ephemeral && b.ephemeral
	res.retainEquivalences(b)
	res.mergeDistinctPairs(b)
	res.mergeFacts(b, widen)
	res.mergeStacks(a, b, widen)
	return res
}

func joinFacts(old, next lattice.Fact, widen bool) lattice.Fact {
	if widen {
		return old.Widen(next)
	}
	return old.Join(next)
}

// retainEquivalences splits every class of s into the parts that are also
// equal in o.
func (s *State) retainEquivalences(o *State) {
	for changed := true; changed; {
		changed = false
		for k := range len(s.store.classes) {
			cl := s.store.classes[k]
			if cl == nil || len(cl.members) < 2 {
				continue
			}
			parts := s.partition(cl.members, o)
			if len(parts) > 1 {
				s.store.split(k, parts)
				changed = true
			}
		}
	}
}

// partition groups ids by their class in o, preserving first-seen order.
func (s *State) partition(ids []value.ID, o *State) [][]value.ID {
	var parts [][]value.ID
	var anchors []*value.Value
	for _, id := range ids {
		v := s.f.Get(id)
		placed := false
		for i, a := range anchors {
			if o.Relation(a, v) == RelEQ {
				parts[i] = append(parts[i], id)
				placed = true
				break
			}
		}
		if !placed {
			anchors = append(anchors, v)
			parts = append(parts, []value.ID{id})
		}
	}
	return parts
}

// split replaces class k by the given parts. The first part keeps the slot;
// every part inherits the relations and the fact of the original class.
func (s *Store) split(k int, parts [][]value.ID) {
	orig := s.classes[k]
	rels := s.relationsOf(k)
	for i, part := range parts {
		cl := &class{members: slices.Clone(part), fact: orig.fact}
		cl.canon = s.minVariable(cl.members)
		slot := k
		if i == 0 {
			s.classes[k] = cl
		} else if n := len(s.free); n > 0 {
			slot = s.free[n-1]
			s.free = s.free[:n-1]
			s.classes[slot] = cl
		} else {
			slot = len(s.classes)
			s.classes = append(s.classes, cl)
		}
		for _, id := range part {
			s.index[id] = slot
		}
		if i > 0 {
			for _, r := range rels {
				s.setPair(slot, r.other, r.rel)
			}
		}
	}
}

// mergeDistinctPairs keeps the relations of s that also hold in o. A strict
// order on which the states disagree becomes plain inequality.
func (s *State) mergeDistinctPairs(o *State) {
	for key, rel := range s.store.pairs {
		a, b := s.store.representative(key.lo), s.store.representative(key.hi)
		other := o.Relation(a, b)
		switch {
		case other.Implies(rel):
		case other.Distinct():
			s.store.pairs[key] = RelNE
		default:
			delete(s.store.pairs, key)
		}
	}
}

// mergeFacts joins the fact of every class of s with what o knows about it.
func (s *State) mergeFacts(o *State, widen bool) {
	for _, cl := range s.store.classes {
		if cl == nil {
			continue
		}
		rep := s.f.Get(cl.members[0])
		cl.fact = joinFacts(cl.fact, o.Fact(rep), widen)
	}
}

// mergeStacks joins the operand stacks slot by slot. Slots holding
// different values are replaced by a fresh temporary carrying the joined
// fact.
func (s *State) mergeStacks(a, b *State, widen bool) {
	for i := range s.stack {
		va, vb := a.stack[i], b.stack[i]
		if va == vb {
			continue
		}
		t := s.f.Temp(i)
		s.Flush(t)
		s.store.setFact(t, joinFacts(a.Fact(va), b.Fact(vb), widen))
		s.stack[i] = t
	}
}
