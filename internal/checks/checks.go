// Package checks turns what the interpreter observes into findings.
//
// Every check is a Collector: it listens to the instructions executed by an
// interpreter run and, once the run is over, reports what held on every
// explored path. Claims about all paths are only made for programs whose
// analysis completed; ephemeral states never contribute to them.
package checks

import (
	"cmp"
	"slices"

	"github.com/gnolang/dfa/internal/analysis/instr"
	"github.com/gnolang/dfa/internal/analysis/interp"
)

const (
	ConstantCondition = "constant-condition"
	NullDereference   = "null-dereference"
	FailingCall       = "failing-call"
	IndexOutOfBounds  = "index-out-of-bounds"
	DivisionByZero    = "division-by-zero"
	TooComplex        = "too-complex"
)

// Finding is a problem located at one instruction.
type Finding struct {
	Program *instr.Program
	PC      int
	Message string
	Note    string
	// Definite is set when the problem occurs on every path reaching PC.
	Definite bool
}

// Collector observes a run and reports its findings once the run is over.
// A collector serves a single run.
type Collector interface {
	interp.Listener
	Findings(res interp.Result) []Finding
}

// Constructor creates a fresh collector.
type Constructor func() Collector

// All maps rule names to collector constructors.
var All = map[string]Constructor{
	ConstantCondition: NewConstantCondition,
	NullDereference:   NewNullDereference,
	FailingCall:       NewFailingCall,
	IndexOutOfBounds:  NewIndexOutOfBounds,
	DivisionByZero:    NewDivisionByZero,
	TooComplex:        NewTooComplex,
}

type site struct {
	prog *instr.Program
	pc   int
}

// completed returns the programs of res, closures included, whose analysis
// explored every path, along with their order in res.
func completed(res interp.Result) map[*instr.Program]int {
	done := make(map[*instr.Program]int)
	order := 0
	res.Walk(func(r interp.Result) {
		if r.Status == interp.StatusOk && r.Program != nil {
			done[r.Program] = order
		}
		order++
	})
	return done
}

// report builds findings for the sites accepted by fn, in program then pc
// order, keeping only sites of completed programs.
func report[T any](res interp.Result, sites map[site]T, fn func(site, T) (Finding, bool)) []Finding {
	done := completed(res)
	var keys []site
	for s := range sites {
		if _, ok := done[s.prog]; ok {
			keys = append(keys, s)
		}
	}
	slices.SortFunc(keys, func(a, b site) int {
		if c := cmp.Compare(done[a.prog], done[b.prog]); c != 0 {
			return c
		}
		return cmp.Compare(a.pc, b.pc)
	})
	var out []Finding
	for _, s := range keys {
		if f, ok := fn(s, sites[s]); ok {
			f.Program, f.PC = s.prog, s.pc
			out = append(out, f)
		}
	}
	return out
}
