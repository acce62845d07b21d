package checks

import (
	"github.com/gnolang/dfa/internal/analysis/instr"
	"github.com/gnolang/dfa/internal/analysis/interp"
	"github.com/gnolang/dfa/internal/analysis/value"
)

type divisions struct {
	seen int
	zero int
}

type divisionByZero struct {
	sites map[site]*divisions
}

// NewDivisionByZero reports divisions and remainders by a divisor known to
// be zero.
func NewDivisionByZero() Collector {
	return &divisionByZero{sites: make(map[site]*divisions)}
}

func (c *divisionByZero) OnInstruction(e interp.Event) {
	in, ok := e.Instr.(instr.Binary)
	if !ok || (in.Op != value.OpDiv && in.Op != value.OpRem) || e.Before.Ephemeral() {
		return
	}
	divisor, ok := e.Before.Peek(0)
	if !ok || divisor.IsUnknown() {
		return
	}
	s := site{e.Program, e.PC}
	d := c.sites[s]
	if d == nil {
		d = &divisions{}
		c.sites[s] = d
	}
	d.seen++
	if r := e.Before.Fact(divisor).Range; r.IsPoint() && r.Lo == 0 {
		d.zero++
	}
}

func (c *divisionByZero) Findings(res interp.Result) []Finding {
	return report(res, c.sites, func(_ site, d *divisions) (Finding, bool) {
		switch {
		case d.zero == 0:
			return Finding{}, false
		case d.zero == d.seen:
			return Finding{Message: "division by zero", Definite: true}, true
		}
		return Finding{Message: "division by zero on some paths"}, true
	})
}
