package interp

import (
	"github.com/gnolang/dfa/internal/analysis/instr"
	"github.com/gnolang/dfa/internal/analysis/state"
)

// Successor is a state produced by executing an instruction.
type Successor struct {
	PC    int
	State *state.State
	// Exceptional marks transfers to a handler, or out of the function when
	// PC is instr.NoHandler.
	Exceptional bool
	// Failed marks an exceptional transfer caused by a failing contract.
	Failed bool
}

// Event is delivered to listeners once per executed state.
type Event struct {
	Program *instr.Program
	PC      int
	Instr   instr.Instruction
	// Before is the state the instruction ran on. Listeners must not modify
	// it.
	Before *state.State
	// Succs are the feasible outcomes, exceptional exits included.
	Succs []Successor
}

// Normal reports whether some successor continues normally.
func (e Event) Normal() bool {
	for _, s := range e.Succs {
		if !s.Exceptional {
			return true
		}
	}
	return false
}

// Listener observes the execution of every instruction. Calls are
// serialised by the interpreter, closures included.
type Listener interface {
	OnInstruction(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) OnInstruction(e Event) { f(e) }
