package checks

import (
	"fmt"

	"github.com/gnolang/dfa/internal/analysis/interp"
)

type tooComplex struct{}

// NewTooComplex reports functions and closures whose analysis ran out of
// budget. Nothing was proven about them past the reported instruction.
func NewTooComplex() Collector { return tooComplex{} }

func (tooComplex) OnInstruction(interp.Event) {}

func (tooComplex) Findings(res interp.Result) []Finding {
	var out []Finding
	res.Walk(func(r interp.Result) {
		if r.Status != interp.StatusTooComplex || r.Program == nil {
			return
		}
		out = append(out, Finding{
			Program: r.Program,
			PC:      r.PC,
			Message: fmt.Sprintf("%s is too complex to analyse: %s", r.Program.Name, r.Reason),
			Note:    fmt.Sprintf("stopped after %d steps with %d live states", r.Steps, r.PeakStates),
		})
	})
	return out
}
