package instr

import (
	"github.com/gnolang/dfa/internal/analysis/lattice"
)

// Method describes a callee as seen by the program model.
type Method struct {
	Name      string
	Return    lattice.Type
	Null      lattice.Nullability
	Pure      bool
	Contracts []Contract
}

// Model answers the queries the interpreter makes about the analysed
// program. Implementations must be safe for concurrent use.
type Model interface {
	// IsSubtype reports whether sub is assignable to super; known is false
	// when the hierarchy does not tell.
	IsSubtype(sub, super string) (result, known bool)
	// Method returns the callee named name.
	Method(name string) (Method, bool)
}

// StaticModel is a Model backed by fixed tables.
type StaticModel struct {
	// Supers maps a class to its direct supertypes.
	Supers  map[string][]string
	Methods map[string]Method
}

// NewStaticModel returns an empty model.
func NewStaticModel() *StaticModel {
	return &StaticModel{Supers: map[string][]string{}, Methods: map[string]Method{}}
}

func (m *StaticModel) IsSubtype(sub, super string) (bool, bool) {
	if sub == super {
		return true, true
	}
	_, subKnown := m.Supers[sub]
	if !subKnown {
		return false, false
	}
	seen := map[string]bool{sub: true}
	todo := []string{sub}
	complete := true
	for len(todo) > 0 {
		c := todo[len(todo)-1]
		todo = todo[:len(todo)-1]
		for _, s := range m.Supers[c] {
			if s == super {
				return true, true
			}
			if seen[s] {
				continue
			}
			seen[s] = true
			if _, ok := m.Supers[s]; !ok {
				complete = false
				continue
			}
			todo = append(todo, s)
		}
	}
	return false, complete
}

func (m *StaticModel) Method(name string) (Method, bool) {
	meth, ok := m.Methods[name]
	return meth, ok
}
