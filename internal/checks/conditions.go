package checks

import (
	"github.com/gnolang/dfa/internal/analysis/instr"
	"github.com/gnolang/dfa/internal/analysis/interp"
)

type outcomes struct {
	seenTrue  bool
	seenFalse bool
}

type constantCondition struct {
	sites map[site]*outcomes
}

// NewConstantCondition reports conditional jumps that always go the same way.
// Jumps on a literal, as in "while (true)", are left alone.
func NewConstantCondition() Collector {
	return &constantCondition{sites: make(map[site]*outcomes)}
}

func (c *constantCondition) OnInstruction(e interp.Event) {
	in, ok := e.Instr.(instr.CondGoto)
	if !ok || in.Target == e.PC+1 || e.Before.Ephemeral() {
		return
	}
	if e.PC > 0 {
		if _, literal := e.Program.At(e.PC - 1).(instr.PushConst); literal {
			return
		}
	}
	s := site{e.Program, e.PC}
	o := c.sites[s]
	if o == nil {
		o = &outcomes{}
		c.sites[s] = o
	}
	for _, succ := range e.Succs {
		if (succ.PC == in.Target) != in.Negated {
			o.seenTrue = true
		} else {
			o.seenFalse = true
		}
	}
}

func (c *constantCondition) Findings(res interp.Result) []Finding {
	return report(res, c.sites, func(_ site, o *outcomes) (Finding, bool) {
		switch {
		case o.seenTrue && !o.seenFalse:
			return Finding{Message: "condition is always true", Definite: true}, true
		case o.seenFalse && !o.seenTrue:
			return Finding{Message: "condition is always false", Definite: true}, true
		}
		return Finding{}, false
	})
}
