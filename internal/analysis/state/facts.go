package state

import (
	"fmt"
	"slices"

	"github.com/gnolang/dfa/internal/analysis/lattice"
	"github.com/gnolang/dfa/internal/analysis/value"
)

// BoolFact is a yes/no fact about a state packed into an integer so that
// fact sets can be kept as sorted slices: kind in the top bits, then the
// ids of the two operands.
type BoolFact int64

// BoolFactKind is the kind of a BoolFact.
type BoolFactKind uint8

const (
	FactEqual BoolFactKind = iota + 1
	FactDistinct
	FactLess
	FactInstanceOf
)

const operandBits = 29

func packFact(kind BoolFactKind, left, right int) BoolFact {
	return BoolFact(int64(kind)<<(2*operandBits) | int64(left)<<operandBits | int64(right))
}

// Kind returns the kind of f.
func (f BoolFact) Kind() BoolFactKind { return BoolFactKind(f >> (2 * operandBits)) }

// Operands returns the packed operands. For FactInstanceOf, right is a
// type name number of the value factory.
func (f BoolFact) Operands() (left, right int) {
	mask := int64(1)<<operandBits - 1
	return int((int64(f) >> operandBits) & mask), int(int64(f) & mask)
}

// Subjects returns the non-constant values f is about.
func (f BoolFact) Subjects(fac *value.Factory) []*value.Value {
	l, r := f.Operands()
	out := []*value.Value{fac.Get(value.ID(l))}
	if f.Kind() != FactInstanceOf {
		out = append(out, fac.Get(value.ID(r)))
	}
	return slices.DeleteFunc(out, (*value.Value).IsConstant)
}

// Format renders f with the values of fac.
func (f BoolFact) Format(fac *value.Factory) string {
	l, r := f.Operands()
	left := fac.Get(value.ID(l))
	switch f.Kind() {
	case FactEqual:
		return fmt.Sprintf("%s == %s", left, fac.Get(value.ID(r)))
	case FactDistinct:
		return fmt.Sprintf("%s != %s", left, fac.Get(value.ID(r)))
	case FactLess:
		return fmt.Sprintf("%s < %s", left, fac.Get(value.ID(r)))
	case FactInstanceOf:
		return fmt.Sprintf("%s instanceof %s", left, fac.Name(r))
	}
	return "?"
}

// BoolFacts returns the sorted boolean facts of s: the equalities inside
// every class, the recorded relations, and known type memberships.
func (s *State) BoolFacts() []BoolFact {
	var out []BoolFact
	s.store.Classes(func(members []*value.Value, fact lattice.Fact) {
		first := members[0]
		for _, m := range members[1:] {
			lo, hi := first.ID(), m.ID()
			if hi < lo {
				lo, hi = hi, lo
			}
			out = append(out, packFact(FactEqual, int(lo), int(hi)))
		}
		for _, name := range fact.Types.InstanceOf {
			out = append(out, packFact(FactInstanceOf, int(first.ID()), s.f.NameID(name)))
		}
	})
	s.store.Pairs(func(a, b *value.Value, rel Relation) {
		switch rel {
		case RelNE:
			if b.ID() < a.ID() {
				a, b = b, a
			}
			out = append(out, packFact(FactDistinct, int(a.ID()), int(b.ID())))
		case RelLT:
			out = append(out, packFact(FactLess, int(a.ID()), int(b.ID())))
		case RelGT:
			out = append(out, packFact(FactLess, int(b.ID()), int(a.ID())))
		}
	})
	slices.Sort(out)
	return slices.Compact(out)
}

// relation returns the relation of the operands of a binary fact.
func (s *State) relation(f BoolFact) Relation {
	l, r := f.Operands()
	return s.Relation(s.f.Get(value.ID(l)), s.f.Get(value.ID(r)))
}

// instance returns the fact of the subject of a FactInstanceOf and the
// type name it is about.
func (s *State) instance(f BoolFact) (lattice.Fact, string) {
	l, r := f.Operands()
	return s.Fact(s.f.Get(value.ID(l))), s.f.Name(r)
}

// Holds reports whether f is known to be true in s.
func (s *State) Holds(f BoolFact) bool {
	switch f.Kind() {
	case FactEqual:
		return s.relation(f) == RelEQ
	case FactDistinct:
		return s.relation(f).Distinct()
	case FactLess:
		return s.relation(f) == RelLT
	case FactInstanceOf:
		fact, name := s.instance(f)
		return fact.Types.Has(name)
	}
	return false
}

// Refutes reports whether f is known to be false in s.
func (s *State) Refutes(f BoolFact) bool {
	switch f.Kind() {
	case FactEqual:
		return s.relation(f).Distinct()
	case FactDistinct:
		return s.relation(f) == RelEQ
	case FactLess:
		rel := s.relation(f)
		return rel == RelEQ || rel == RelGT
	case FactInstanceOf:
		fact, name := s.instance(f)
		return fact.Null == lattice.Null || fact.Types.Excludes(name)
	}
	return false
}

// Strip returns a copy of s that knows nothing about the subjects of f
// beyond the given facts. A subject missing from facts is flushed along
// with everything that depends on it.
func (s *State) Strip(f BoolFact, facts map[value.ID]lattice.Fact) *State {
	c := s.Copy()
	for _, v := range f.Subjects(s.f) {
		cv := c.store.Canonical(v)
		fact, ok := facts[v.ID()]
		if !ok {
			c.Flush(cv)
			continue
		}
		c.store.Remove(cv)
		c.store.setFact(cv, fact)
	}
	return c
}
