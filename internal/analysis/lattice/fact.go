package lattice

import (
	"strings"
)

// Fact is the abstract value recorded for a symbolic value in a memory
// state: a product of independent lattices plus an optional exact constant.
//
// The zero Fact is bottom; use Unknown for the top element.
type Fact struct {
	Null  Nullability
	Range Range
	Types TypeConstraint
	Mut   Mutability
	// Local is set when the object provably never escaped the analysed function.
	Local bool
	Const Const
}

// Unknown returns the top element: nothing is known.
func Unknown() Fact {
	return Fact{Null: NullUnknown, Range: FullRange(64)}
}

// Bottom returns the fact describing no value at all.
func Bottom() Fact {
	return Fact{Null: NullBottom, Range: EmptyRange()}
}

// FromConst returns the most precise fact for a constant.
func FromConst(c Const) Fact {
	f := Unknown()
	f.Const = c
	switch c.Kind {
	case ConstInt, ConstBool:
		f.Null = NotNull
		f.Range = Point(c.Int)
	case ConstString, ConstToken:
		f.Null = NotNull
	case ConstNull:
		f.Null = Null
	}
	return f
}

// NullFact returns a fact that only constrains nullability.
func NullFact(n Nullability) Fact {
	f := Unknown()
	f.Null = n
	return f
}

// RangeFact returns a fact that only constrains the numeric range.
func RangeFact(r Range) Fact {
	f := Unknown()
	f.Range = r
	return f
}

// TypeFact returns a fact that only constrains the runtime type.
func TypeFact(tc TypeConstraint) Fact {
	f := Unknown()
	f.Types = tc
	return f
}

// IsBottom reports whether f is unsatisfiable.
func (f Fact) IsBottom() bool {
	return f.Null == NullBottom || f.Range.IsEmpty()
}

// IsUnknown reports whether f carries no information.
func (f Fact) IsUnknown() bool {
	return f.Null == NullUnknown && f.Range.IsFull() && f.Types.IsEmpty() &&
		f.Mut == MutabilityUnknown && !f.Local && !f.Const.IsSet()
}

// Constant returns the single value described by f, if any.
func (f Fact) Constant() (Const, bool) {
	if f.Const.IsSet() {
		return f.Const, true
	}
	if f.Null == Null {
		return NullConst(), true
	}
	return Const{}, false
}

// Meet returns the greatest lower bound of f and o. The result is Bottom
// when the two facts contradict each other.
func (f Fact) Meet(o Fact) Fact {
	if f.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	res := Fact{
		Null:  MeetNullability(f.Null, o.Null),
		Range: f.Range.Intersect(o.Range),
		Local: f.Local || o.Local,
	}
	var ok bool
	if res.Types, ok = f.Types.Meet(o.Types); !ok {
		return Bottom()
	}
	if res.Mut, ok = meetMutability(f.Mut, o.Mut); !ok {
		return Bottom()
	}
	switch {
	case f.Const.IsSet() && o.Const.IsSet():
		if !f.Const.Same(o.Const) {
			return Bottom()
		}
		res.Const = f.Const
	case f.Const.IsSet():
		res.Const = f.Const
	case o.Const.IsSet():
		res.Const = o.Const
	}
	return res.normalize()
}

// normalize keeps the constant consistent with the other components.
func (f Fact) normalize() Fact {
	if f.IsBottom() {
		return Bottom()
	}
	if f.Null == Null && !f.Const.IsSet() {
		f.Const = NullConst()
	}
	if !f.Const.IsSet() {
		return f
	}
	c := f.Const
	if c.Kind == ConstNull {
		f.Null = MeetNullability(f.Null, Null)
	} else {
		f.Null = MeetNullability(f.Null, NotNull)
	}
	if c.Numeric() {
		f.Range = f.Range.Intersect(Point(c.Int))
	}
	if f.IsBottom() {
		return Bottom()
	}
	return f
}

// Join returns the least upper bound of f and o.
func (f Fact) Join(o Fact) Fact {
	if f.IsBottom() {
		return o
	}
	if o.IsBottom() {
		return f
	}
	res := Fact{
		Null:  JoinNullability(f.Null, o.Null),
		Range: f.Range.Union(o.Range),
		Types: f.Types.Join(o.Types),
		Mut:   joinMutability(f.Mut, o.Mut),
		Local: f.Local && o.Local,
	}
	if f.Const.Same(o.Const) {
		res.Const = f.Const
	}
	return res
}

// Widen joins f with next, pushing every growing range bound to infinity.
func (f Fact) Widen(next Fact) Fact {
	res := f.Join(next)
	if !f.IsBottom() && !next.IsBottom() {
		res.Range = f.Range.Widen(next.Range)
	}
	return res
}

// Includes reports whether every value described by o is described by f.
func (f Fact) Includes(o Fact) bool {
	if o.IsBottom() {
		return true
	}
	if f.IsBottom() {
		return false
	}
	return f.Join(o).Equal(f)
}

// Equal reports structural equality.
func (f Fact) Equal(o Fact) bool {
	if f.IsBottom() || o.IsBottom() {
		return f.IsBottom() == o.IsBottom()
	}
	return f.Null == o.Null && f.Range == o.Range && f.Types.Equal(o.Types) &&
		f.Mut == o.Mut && f.Local == o.Local && f.Const == o.Const
}

// Exclude narrows f with the knowledge that the value differs from c.
func (f Fact) Exclude(c Const) Fact {
	if f.Const.IsSet() && f.Const.Same(c) {
		return Bottom()
	}
	switch c.Kind {
	case ConstNull:
		return f.Meet(NullFact(NotNull))
	case ConstInt:
		f.Range = f.Range.Without(c.Int)
	case ConstBool:
		f.Range = f.Range.Intersect(NewRange(0, 1)).Without(c.Int)
	}
	return f.normalize()
}

// WithoutLocal forgets that the value is non-escaping.
func (f Fact) WithoutLocal() Fact {
	f.Local = false
	return f
}

func (f Fact) String() string {
	if f.IsBottom() {
		return "⊥"
	}
	if f.IsUnknown() {
		return "⊤"
	}
	var parts []string
	if f.Const.IsSet() {
		parts = append(parts, "="+f.Const.String())
	}
	if f.Null != NullUnknown {
		parts = append(parts, f.Null.String())
	}
	if !f.Range.IsFull() && !(f.Const.Numeric() && f.Range.IsPoint()) {
		parts = append(parts, f.Range.String())
	}
	if !f.Types.IsEmpty() {
		parts = append(parts, f.Types.String())
	}
	if f.Mut != MutabilityUnknown {
		parts = append(parts, f.Mut.String())
	}
	if f.Local {
		parts = append(parts, "local")
	}
	return strings.Join(parts, " ")
}
