package lattice

// Nullability models the null-ness lattice for reference values.
type Nullability int

const (
	NullBottom Nullability = iota // unreachable
	Null
	NotNull
	Nullable
	NullUnknown
)

func (n Nullability) String() string {
	switch n {
	case NullBottom:
		return "Bottom"
	case Null:
		return "Null"
	case NotNull:
		return "NotNull"
	case Nullable:
		return "Nullable"
	case NullUnknown:
		return "Unknown"
	default:
		return "?"
	}
}

// ParseNullability maps annotation spellings to the lattice. Unrecognised
// input is treated as Unknown.
func ParseNullability(s string) Nullability {
	switch s {
	case "null":
		return Null
	case "notnull", "nonnull", "not-null":
		return NotNull
	case "nullable":
		return Nullable
	default:
		return NullUnknown
	}
}

// JoinNullability returns the least upper bound in the lattice.
func JoinNullability(a, b Nullability) Nullability {
	if a == NullBottom {
		return b
	}
	if b == NullBottom {
		return a
	}
	if a == NullUnknown || b == NullUnknown {
		return NullUnknown
	}
	if a == Nullable || b == Nullable {
		return Nullable
	}
	if a == b {
		return a
	}
	// Null + NotNull.
	return Nullable
}

// MeetNullability returns the greatest lower bound in the lattice.
func MeetNullability(a, b Nullability) Nullability {
	if a == NullBottom || b == NullBottom {
		return NullBottom
	}
	if a == NullUnknown {
		return b
	}
	if b == NullUnknown {
		return a
	}
	if a == b {
		return a
	}
	if a == Nullable && (b == Null || b == NotNull) {
		return b
	}
	if b == Nullable && (a == Null || a == NotNull) {
		return a
	}
	return NullBottom
}

// Mutability tracks whether the object behind a reference may be modified.
type Mutability int

const (
	MutabilityUnknown Mutability = iota
	Mutable
	Unmodifiable
)

func (m Mutability) String() string {
	switch m {
	case Mutable:
		return "Mutable"
	case Unmodifiable:
		return "Unmodifiable"
	default:
		return "Unknown"
	}
}

func joinMutability(a, b Mutability) Mutability {
	if a == b {
		return a
	}
	return MutabilityUnknown
}

func meetMutability(a, b Mutability) (Mutability, bool) {
	if a == MutabilityUnknown {
		return b, true
	}
	if b == MutabilityUnknown || a == b {
		return a, true
	}
	return MutabilityUnknown, false
}
