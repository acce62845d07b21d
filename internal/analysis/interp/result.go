package interp

import (
	"github.com/gnolang/dfa/internal/analysis/instr"
)

// Status is the outcome of an analysis run.
type Status int

const (
	// StatusOk means every feasible path was explored.
	StatusOk Status = iota
	// StatusTooComplex means a budget was exhausted and the run stopped
	// early; facts recorded so far are partial.
	StatusTooComplex
	// StatusNotApplicable means the program could not be analysed at all.
	StatusNotApplicable
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusTooComplex:
		return "too complex"
	case StatusNotApplicable:
		return "not applicable"
	default:
		return "unknown"
	}
}

// worse returns the more severe of two statuses.
func worse(a, b Status) Status {
	if b > a {
		return b
	}
	return a
}

// Result describes a finished run.
type Result struct {
	Program *instr.Program
	Status  Status
	// Reason explains a status other than StatusOk.
	Reason string
	// Err is set for StatusNotApplicable.
	Err error
	// PC is the instruction being executed when the run stopped early.
	PC int
	// Steps is the number of executed instructions.
	Steps int
	// PeakStates is the largest number of live states seen.
	PeakStates int
	// Closures holds one result per nested program, in index order.
	Closures []Result
}

// Walk calls fn for r and every nested closure result.
func (r Result) Walk(fn func(Result)) {
	fn(r)
	for _, c := range r.Closures {
		c.Walk(fn)
	}
}

// Path returns the programs from r.Program down to p through nested
// closures, or nil when p is not run under r.
func (r Result) Path(p *instr.Program) []*instr.Program {
	if r.Program == p {
		return []*instr.Program{p}
	}
	for _, c := range r.Closures {
		if sub := c.Path(p); sub != nil {
			return append([]*instr.Program{r.Program}, sub...)
		}
	}
	return nil
}
