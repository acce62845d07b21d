package checks

import (
	"fmt"

	"github.com/gnolang/dfa/internal/analysis/instr"
	"github.com/gnolang/dfa/internal/analysis/interp"
)

type callOutcomes struct {
	method string
	failed bool
	normal bool
}

type failingCall struct {
	sites map[site]*callOutcomes
}

// NewFailingCall reports calls whose failure contract matches on every path.
func NewFailingCall() Collector {
	return &failingCall{sites: make(map[site]*callOutcomes)}
}

func (c *failingCall) OnInstruction(e interp.Event) {
	in, ok := e.Instr.(instr.Call)
	if !ok || e.Before.Ephemeral() {
		return
	}
	s := site{e.Program, e.PC}
	o := c.sites[s]
	if o == nil {
		o = &callOutcomes{method: in.Method}
		c.sites[s] = o
	}
	for _, succ := range e.Succs {
		if succ.Failed {
			o.failed = true
		}
	}
	if e.Normal() {
		o.normal = true
	}
}

func (c *failingCall) Findings(res interp.Result) []Finding {
	return report(res, c.sites, func(_ site, o *callOutcomes) (Finding, bool) {
		if !o.failed || o.normal {
			return Finding{}, false
		}
		return Finding{
			Message:  fmt.Sprintf("call to %s always fails", o.method),
			Note:     "a failure contract of the method matches the arguments",
			Definite: true,
		}, true
	})
}
