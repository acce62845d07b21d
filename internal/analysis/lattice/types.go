package lattice

import (
	"slices"
	"strings"
)

// TypeKind classifies declared types.
type TypeKind uint8

const (
	KindAny TypeKind = iota
	KindInt
	KindBool
	KindString
	KindRef
	KindArray
)

func (k TypeKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindRef:
		return "ref"
	case KindArray:
		return "array"
	default:
		return "any"
	}
}

// Type is a declared type as reported by the program model.
type Type struct {
	Name string
	Kind TypeKind
	Bits int // width of integral types; 0 means 64
}

// IntType returns a signed integral type of the given width.
func IntType(bits int) Type {
	name := "int64"
	if bits == 32 {
		name = "int32"
	}
	return Type{Name: name, Kind: KindInt, Bits: bits}
}

var (
	BoolType   = Type{Name: "bool", Kind: KindBool}
	StringType = Type{Name: "string", Kind: KindString}
	AnyType    = Type{Name: "any", Kind: KindAny}
)

// Width returns the bit width of integral values of t.
func (t Type) Width() int {
	if t.Bits == 32 {
		return 32
	}
	return 64
}

// Primitive reports whether values of t can never be null.
func (t Type) Primitive() bool {
	return t.Kind == KindInt || t.Kind == KindBool
}

func (t Type) String() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Kind.String()
}

// InherentFact is the fact implied by a declaration alone. An unset
// nullability is read as unknown.
func InherentFact(t Type, declared Nullability) Fact {
	f := Unknown()
	switch t.Kind {
	case KindInt:
		f.Null = NotNull
		f.Range = FullRange(t.Width())
	case KindBool:
		f.Null = NotNull
		f.Range = NewRange(0, 1)
	case KindString, KindRef, KindArray:
		if declared != NullBottom {
			f.Null = declared
		}
		if t.Kind == KindRef && t.Name != "" {
			f.Types = TypeConstraint{InstanceOf: []string{t.Name}}
		}
	}
	return f
}

// TypeConstraint describes what is known about the runtime type of a value.
// Name lists are kept sorted and duplicate-free.
type TypeConstraint struct {
	Exact         string
	InstanceOf    []string
	NotInstanceOf []string
}

// IsEmpty reports whether nothing is known.
func (tc TypeConstraint) IsEmpty() bool {
	return tc.Exact == "" && len(tc.InstanceOf) == 0 && len(tc.NotInstanceOf) == 0
}

// Meet intersects the sets of runtime types described by tc and o.
// The second result is false when the intersection is empty.
func (tc TypeConstraint) Meet(o TypeConstraint) (TypeConstraint, bool) {
	res := TypeConstraint{Exact: tc.Exact}
	if o.Exact != "" {
		if res.Exact != "" && res.Exact != o.Exact {
			return TypeConstraint{}, false
		}
		res.Exact = o.Exact
	}
	res.InstanceOf = unionNames(tc.InstanceOf, o.InstanceOf)
	res.NotInstanceOf = unionNames(tc.NotInstanceOf, o.NotInstanceOf)
	for _, n := range res.InstanceOf {
		if _, found := slices.BinarySearch(res.NotInstanceOf, n); found {
			return TypeConstraint{}, false
		}
	}
	if res.Exact != "" {
		if _, found := slices.BinarySearch(res.NotInstanceOf, res.Exact); found {
			return TypeConstraint{}, false
		}
	}
	return res, true
}

// Join keeps only the knowledge shared by tc and o.
func (tc TypeConstraint) Join(o TypeConstraint) TypeConstraint {
	res := TypeConstraint{}
	if tc.Exact == o.Exact {
		res.Exact = tc.Exact
	}
	res.InstanceOf = intersectNames(tc.InstanceOf, o.InstanceOf)
	res.NotInstanceOf = intersectNames(tc.NotInstanceOf, o.NotInstanceOf)
	return res
}

// Equal reports structural equality.
func (tc TypeConstraint) Equal(o TypeConstraint) bool {
	return tc.Exact == o.Exact &&
		slices.Equal(tc.InstanceOf, o.InstanceOf) &&
		slices.Equal(tc.NotInstanceOf, o.NotInstanceOf)
}

// Has reports whether tc already knows the value is an instance of name.
func (tc TypeConstraint) Has(name string) bool {
	if tc.Exact == name {
		return true
	}
	_, found := slices.BinarySearch(tc.InstanceOf, name)
	return found
}

// Excludes reports whether tc knows the value is not an instance of name.
func (tc TypeConstraint) Excludes(name string) bool {
	_, found := slices.BinarySearch(tc.NotInstanceOf, name)
	return found
}

func (tc TypeConstraint) String() string {
	var parts []string
	if tc.Exact != "" {
		parts = append(parts, "exact "+tc.Exact)
	}
	if len(tc.InstanceOf) > 0 {
		parts = append(parts, "instanceof "+strings.Join(tc.InstanceOf, "&"))
	}
	if len(tc.NotInstanceOf) > 0 {
		parts = append(parts, "!instanceof "+strings.Join(tc.NotInstanceOf, "|"))
	}
	return strings.Join(parts, " ")
}

func unionNames(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return b
	}
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	slices.Sort(out)
	return slices.Compact(out)
}

func intersectNames(a, b []string) []string {
	var out []string
	for _, n := range a {
		if _, found := slices.BinarySearch(b, n); found {
			out = append(out, n)
		}
	}
	return out
}
