package value

import (
	"fmt"
	"maps"
	"slices"

	"github.com/gnolang/dfa/internal/analysis/lattice"
)

type varKey struct {
	desc *Descriptor
	q    ID
}

type compKey struct {
	op          Op
	width       int
	left, right ID
}

type descKey struct {
	name string
	kind DescKind
	typ  lattice.Type
}

// Factory interns every value of a single analysis run. It is not safe for
// concurrent use; each run owns its own Factory.
type Factory struct {
	values     []*Value
	vars       map[varKey]*Value
	consts     map[lattice.Const]*Value
	composites map[compKey]*Value
	// dependents maps a value to the values that mention it directly, either
	// as qualifier or as composite operand.
	dependents map[ID][]ID
	synthetic  map[descKey]*Descriptor
	names      map[string]int
	nameList   []string
	unknown    *Value
}

// NewFactory returns an empty factory.
func NewFactory() *Factory {
	f := &Factory{
		vars:       make(map[varKey]*Value),
		consts:     make(map[lattice.Const]*Value),
		composites: make(map[compKey]*Value),
		dependents: make(map[ID][]ID),
		synthetic:  make(map[descKey]*Descriptor),
		names:      make(map[string]int),
	}
	f.unknown = f.add(&Value{kind: KindUnknown})
	return f
}

func (f *Factory) add(v *Value) *Value {
	v.id = ID(len(f.values))
	f.values = append(f.values, v)
	return v
}

// Clone returns a factory that knows every value of f and interns new
// values independently of it. Values of f keep their ids in the clone.
func (f *Factory) Clone() *Factory {
	c := &Factory{
		values:     slices.Clone(f.values),
		vars:       maps.Clone(f.vars),
		consts:     maps.Clone(f.consts),
		composites: maps.Clone(f.composites),
		dependents: make(map[ID][]ID, len(f.dependents)),
		synthetic:  maps.Clone(f.synthetic),
		names:      maps.Clone(f.names),
		nameList:   slices.Clone(f.nameList),
		unknown:    f.unknown,
	}
	for id, deps := range f.dependents {
		c.dependents[id] = slices.Clone(deps)
	}
	return c
}

// Len returns the number of interned values.
func (f *Factory) Len() int { return len(f.values) }

// Get returns the value with the given id.
func (f *Factory) Get(id ID) *Value {
	if id < 0 || int(id) >= len(f.values) {
		panic(fmt.Sprintf("value: id %d out of range", id))
	}
	return f.values[id]
}

// Unknown returns the top value.
func (f *Factory) Unknown() *Value { return f.unknown }

// Const interns a constant.
func (f *Factory) Const(c lattice.Const) *Value {
	if v, ok := f.consts[c]; ok {
		return v
	}
	v := f.add(&Value{kind: KindConstant, cnst: c})
	f.consts[c] = v
	return v
}

// Var interns the variable described by d and qualified by q. A nil q is
// allowed only for unqualified descriptors; q must itself be a variable.
func (f *Factory) Var(d *Descriptor, q *Value) *Value {
	key := varKey{desc: d, q: NoID}
	depth := 0
	if q != nil {
		if !q.IsVariable() {
			panic(fmt.Sprintf("value: qualifier %s of %s is not a variable", q, d.Name))
		}
		key.q = q.id
		depth = q.depth + 1
	}
	if v, ok := f.vars[key]; ok {
		return v
	}
	v := f.add(&Value{kind: KindVariable, desc: d, qualifier: q, depth: depth})
	f.vars[key] = v
	if q != nil {
		f.dependents[q.id] = append(f.dependents[q.id], v.id)
	}
	return v
}

// Lookup returns the already interned variable for d and q, if any.
func (f *Factory) Lookup(d *Descriptor, q *Value) (*Value, bool) {
	key := varKey{desc: d, q: NoID}
	if q != nil {
		key.q = q.id
	}
	v, ok := f.vars[key]
	return v, ok
}

// Requalify returns the variable with v's descriptor and a new qualifier.
func (f *Factory) Requalify(v, q *Value) *Value {
	return f.Var(v.desc, q)
}

// Composite interns the binary operation op over l and r at the given width.
// Operands that are unknown make the whole value unknown.
func (f *Factory) Composite(op Op, l, r *Value, width int) *Value {
	if l.IsUnknown() || r.IsUnknown() {
		return f.unknown
	}
	if width != 32 {
		width = 64
	}
	key := compKey{op: op, width: width, left: l.id, right: r.id}
	if v, ok := f.composites[key]; ok {
		return v
	}
	depth := max(l.depth, r.depth) + 1
	v := f.add(&Value{kind: KindComposite, op: op, width: width, left: l, right: r, depth: depth})
	f.composites[key] = v
	f.dependents[l.id] = append(f.dependents[l.id], v.id)
	if r != l {
		f.dependents[r.id] = append(f.dependents[r.id], v.id)
	}
	return v
}

// Dependents returns the values that mention v directly.
func (f *Factory) Dependents(v *Value) []*Value {
	ids := f.dependents[v.id]
	out := make([]*Value, len(ids))
	for i, id := range ids {
		out[i] = f.values[id]
	}
	return out
}

// Descriptor interns a synthetic descriptor such as a stack temporary, an
// array length or a constant-index element.
func (f *Factory) Descriptor(name string, kind DescKind, t lattice.Type) *Descriptor {
	key := descKey{name: name, kind: kind, typ: t}
	if d, ok := f.synthetic[key]; ok {
		return d
	}
	d := &Descriptor{Name: name, Kind: kind, Type: t, Nullability: lattice.NullUnknown}
	if kind == DescLength {
		d.Type = lattice.IntType(32)
		d.Stable = true
	}
	f.synthetic[key] = d
	return d
}

// Length returns the length variable of array a.
func (f *Factory) Length(a *Value) *Value {
	return f.Var(f.Descriptor("length", DescLength, lattice.IntType(32)), a)
}

// Element returns the variable for a[index].
func (f *Factory) Element(a *Value, index int64, t lattice.Type) *Value {
	return f.Var(f.Descriptor(fmt.Sprintf("[%d]", index), DescElement, t), a)
}

// Temp returns the synthetic variable used to hold merged stack slot n.
func (f *Factory) Temp(n int) *Value {
	return f.Var(f.Descriptor(fmt.Sprintf("$tmp%d", n), DescTemp, lattice.AnyType), nil)
}

// NameID returns a small stable number for a type name.
func (f *Factory) NameID(name string) int {
	if id, ok := f.names[name]; ok {
		return id
	}
	id := len(f.nameList)
	f.names[name] = id
	f.nameList = append(f.nameList, name)
	return id
}

// Name returns the type name numbered id by NameID.
func (f *Factory) Name(id int) string {
	if id < 0 || id >= len(f.nameList) {
		return ""
	}
	return f.nameList[id]
}
