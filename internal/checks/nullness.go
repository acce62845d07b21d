package checks

import (
	"github.com/gnolang/dfa/internal/analysis/instr"
	"github.com/gnolang/dfa/internal/analysis/interp"
	"github.com/gnolang/dfa/internal/analysis/lattice"
	"github.com/gnolang/dfa/internal/analysis/state"
	"github.com/gnolang/dfa/internal/analysis/value"
)

type derefs struct {
	seen  int
	null  int
	label string
}

type nullDereference struct {
	sites map[site]*derefs
}

// NewNullDereference reports field accesses, qualified calls and array loads
// whose target is null on every path.
func NewNullDereference() Collector {
	return &nullDereference{sites: make(map[site]*derefs)}
}

// dereferenced returns the value an instruction dereferences, if any.
func dereferenced(in instr.Instruction, st *state.State) (*value.Value, string, bool) {
	var (
		v     *value.Value
		ok    bool
		label string
	)
	switch i := in.(type) {
	case instr.PushField:
		v, ok = st.Peek(0)
		label = "field " + i.Field.Name
	case instr.Call:
		if !i.HasQualifier {
			return nil, "", false
		}
		v, ok = st.Peek(i.Args)
		label = "call to " + i.Method
	case instr.ArrayLoad:
		v, ok = st.Peek(1)
		label = "array load"
	}
	if !ok || v.IsUnknown() {
		return nil, "", false
	}
	return v, label, true
}

func (c *nullDereference) OnInstruction(e interp.Event) {
	if e.Before.Ephemeral() {
		return
	}
	v, label, ok := dereferenced(e.Instr, e.Before)
	if !ok {
		return
	}
	s := site{e.Program, e.PC}
	d := c.sites[s]
	if d == nil {
		d = &derefs{label: label}
		c.sites[s] = d
	}
	d.seen++
	if e.Before.Fact(v).Null == lattice.Null {
		d.null++
	}
}

func (c *nullDereference) Findings(res interp.Result) []Finding {
	return report(res, c.sites, func(_ site, d *derefs) (Finding, bool) {
		if d.seen == 0 || d.null < d.seen {
			return Finding{}, false
		}
		return Finding{
			Message:  "dereference of a value that is always null",
			Note:     d.label,
			Definite: true,
		}, true
	})
}
