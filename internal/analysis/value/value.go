// Package value defines the symbolic values manipulated by the analysis.
//
// Values are immutable and interned by a Factory scoped to a single analysis
// run, so identity comparison (pointer or ID) is structural equality. Memory
// states never hold values directly by pointer graph; they refer to them by
// ID and resolve the current canonical representative through their
// relational store.
package value

import (
	"fmt"
	"strings"

	"github.com/gnolang/dfa/internal/analysis/lattice"
)

// ID is the stable index of a value inside its Factory.
type ID int

// NoID marks an absent value.
const NoID ID = -1

// Kind classifies values.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindConstant
	KindVariable
	KindComposite
)

func (k Kind) String() string {
	switch k {
	case KindConstant:
		return "constant"
	case KindVariable:
		return "variable"
	case KindComposite:
		return "composite"
	default:
		return "unknown"
	}
}

// DescKind classifies variable descriptors.
type DescKind uint8

const (
	DescLocal DescKind = iota
	DescParam
	DescThis
	DescField
	DescElement
	DescLength
	DescTemp
)

func (k DescKind) String() string {
	switch k {
	case DescLocal:
		return "local"
	case DescParam:
		return "param"
	case DescThis:
		return "this"
	case DescField:
		return "field"
	case DescElement:
		return "element"
	case DescLength:
		return "length"
	case DescTemp:
		return "temp"
	default:
		return "?"
	}
}

// Descriptor names a storage location: a local, a parameter, a field of a
// qualifier, an array element, or a synthetic temporary.
type Descriptor struct {
	Name        string
	Kind        DescKind
	Type        lattice.Type
	Nullability lattice.Nullability
	// Stable descriptors never change after initialisation (final fields,
	// effectively final locals). Facts about them survive closure capture.
	Stable bool
}

// Qualified reports whether variables of this descriptor need a qualifier.
func (d *Descriptor) Qualified() bool {
	return d.Kind == DescField || d.Kind == DescElement || d.Kind == DescLength
}

func (d *Descriptor) String() string { return d.Name }

// Value is an interned symbolic value.
type Value struct {
	id        ID
	kind      Kind
	desc      *Descriptor
	qualifier *Value
	cnst      lattice.Const
	op        Op
	width     int
	left      *Value
	right     *Value
	depth     int
}

func (v *Value) ID() ID                      { return v.id }
func (v *Value) Kind() Kind                  { return v.kind }
func (v *Value) Descriptor() *Descriptor     { return v.desc }
func (v *Value) Qualifier() *Value           { return v.qualifier }
func (v *Value) Const() lattice.Const        { return v.cnst }
func (v *Value) Op() Op                      { return v.op }
func (v *Value) Width() int                  { return v.width }
func (v *Value) Operands() (*Value, *Value)  { return v.left, v.right }
func (v *Value) Depth() int                  { return v.depth }
func (v *Value) IsVariable() bool            { return v.kind == KindVariable }
func (v *Value) IsConstant() bool            { return v.kind == KindConstant }
func (v *Value) IsUnknown() bool             { return v.kind == KindUnknown }
func (v *Value) IsComposite() bool           { return v.kind == KindComposite }

// Type returns the declared type of the value where one is known.
func (v *Value) Type() lattice.Type {
	switch v.kind {
	case KindVariable:
		return v.desc.Type
	case KindConstant:
		switch v.cnst.Kind {
		case lattice.ConstInt:
			return lattice.IntType(64)
		case lattice.ConstBool:
			return lattice.BoolType
		case lattice.ConstString:
			return lattice.StringType
		}
	case KindComposite:
		if v.op.Relational() {
			return lattice.BoolType
		}
		return lattice.IntType(v.width)
	}
	return lattice.AnyType
}

// Inherent returns the fact implied by the value's declaration or shape.
func (v *Value) Inherent() lattice.Fact {
	switch v.kind {
	case KindConstant:
		return lattice.FromConst(v.cnst)
	case KindVariable:
		return lattice.InherentFact(v.desc.Type, v.desc.Nullability)
	case KindComposite:
		return lattice.InherentFact(v.Type(), lattice.NotNull)
	}
	return lattice.Unknown()
}

// DependsOn reports whether v structurally mentions target, either through
// its qualifier chain or through composite operands.
func (v *Value) DependsOn(target *Value) bool {
	if v == target {
		return true
	}
	switch v.kind {
	case KindVariable:
		return v.qualifier != nil && v.qualifier.DependsOn(target)
	case KindComposite:
		return v.left.DependsOn(target) || v.right.DependsOn(target)
	}
	return false
}

func (v *Value) String() string {
	switch v.kind {
	case KindConstant:
		return v.cnst.String()
	case KindVariable:
		if v.qualifier == nil {
			return v.desc.Name
		}
		var b strings.Builder
		b.WriteString(v.qualifier.String())
		if v.desc.Kind == DescElement {
			b.WriteString(v.desc.Name)
		} else {
			b.WriteByte('.')
			b.WriteString(v.desc.Name)
		}
		return b.String()
	case KindComposite:
		return fmt.Sprintf("(%s %s %s)", v.left, v.op, v.right)
	}
	return "?"
}

// Less is the total order used to pick canonical representatives: shallower
// qualifier chains first, then creation order.
func Less(a, b *Value) bool {
	if a.depth != b.depth {
		return a.depth < b.depth
	}
	return a.id < b.id
}
