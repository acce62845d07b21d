package checks

import (
	"github.com/gnolang/dfa/internal/analysis/instr"
	"github.com/gnolang/dfa/internal/analysis/interp"
	"github.com/gnolang/dfa/internal/analysis/lattice"
)

type loads struct {
	seen   bool
	normal bool
}

type indexOutOfBounds struct {
	sites map[site]*loads
}

// NewIndexOutOfBounds reports array loads whose index is out of bounds on
// every path. Loads from null arrays are left to the null check.
func NewIndexOutOfBounds() Collector {
	return &indexOutOfBounds{sites: make(map[site]*loads)}
}

func (c *indexOutOfBounds) OnInstruction(e interp.Event) {
	if _, ok := e.Instr.(instr.ArrayLoad); !ok || e.Before.Ephemeral() {
		return
	}
	if arr, ok := e.Before.Peek(1); ok && !arr.IsUnknown() && e.Before.Fact(arr).Null == lattice.Null {
		return
	}
	s := site{e.Program, e.PC}
	l := c.sites[s]
	if l == nil {
		l = &loads{}
		c.sites[s] = l
	}
	l.seen = true
	if e.Normal() {
		l.normal = true
	}
}

func (c *indexOutOfBounds) Findings(res interp.Result) []Finding {
	return report(res, c.sites, func(_ site, l *loads) (Finding, bool) {
		if !l.seen || l.normal {
			return Finding{}, false
		}
		return Finding{Message: "array index is always out of bounds", Definite: true}, true
	})
}
