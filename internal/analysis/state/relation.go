package state

// Relation is what is known about two values in a state.
type Relation uint8

const (
	RelUnknown Relation = iota
	RelEQ
	RelNE
	RelLT
	RelGT
)

func (r Relation) String() string {
	switch r {
	case RelEQ:
		return "=="
	case RelNE:
		return "!="
	case RelLT:
		return "<"
	case RelGT:
		return ">"
	default:
		return "?"
	}
}

// Flip returns the relation seen from the other operand.
func (r Relation) Flip() Relation {
	switch r {
	case RelLT:
		return RelGT
	case RelGT:
		return RelLT
	}
	return r
}

// Implies reports whether knowing r is enough to know o.
func (r Relation) Implies(o Relation) bool {
	if r == o || o == RelUnknown {
		return true
	}
	return o == RelNE && (r == RelLT || r == RelGT)
}

// Distinct reports whether r proves the operands differ.
func (r Relation) Distinct() bool {
	return r == RelNE || r == RelLT || r == RelGT
}

// combine merges two recorded relations between the same pair of classes.
func combine(a, b Relation) (Relation, bool) {
	switch {
	case a == b:
		return a, true
	case a == RelNE:
		return b, true
	case b == RelNE:
		return a, true
	}
	return RelUnknown, false
}
