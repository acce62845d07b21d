package value

// Op is a binary operator of a composite value or a binary instruction.
type Op uint8

const (
	OpInvalid Op = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var opNames = [...]string{
	OpInvalid: "?",
	OpAdd:     "+",
	OpSub:     "-",
	OpMul:     "*",
	OpDiv:     "/",
	OpRem:     "%",
	OpAnd:     "&",
	OpOr:      "|",
	OpXor:     "^",
	OpShl:     "<<",
	OpShr:     ">>",
	OpEq:      "==",
	OpNe:      "!=",
	OpLt:      "<",
	OpLe:      "<=",
	OpGt:      ">",
	OpGe:      ">=",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "?"
}

// ParseOp returns the operator spelled s.
func ParseOp(s string) (Op, bool) {
	for i, name := range opNames {
		if i != int(OpInvalid) && name == s {
			return Op(i), true
		}
	}
	return OpInvalid, false
}

// Relational reports whether o compares its operands.
func (o Op) Relational() bool { return o >= OpEq && o <= OpGe }

// Negate returns the relation that holds exactly when o does not.
func (o Op) Negate() Op {
	switch o {
	case OpEq:
		return OpNe
	case OpNe:
		return OpEq
	case OpLt:
		return OpGe
	case OpLe:
		return OpGt
	case OpGt:
		return OpLe
	case OpGe:
		return OpLt
	}
	return OpInvalid
}

// Flip returns the relation with swapped operands: a o b == b o.Flip() a.
func (o Op) Flip() Op {
	switch o {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	}
	return o
}

// Holds reports whether the relation o is true for the ordering outcome
// cmp (-1: less, 0: equal, 1: greater).
func (o Op) Holds(cmp int) bool {
	switch o {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	}
	return false
}
