// Package instr defines the instruction stream executed by the interpreter.
//
// Instructions form a closed set of variants; the executor switches over
// them exhaustively. Jump targets are absolute instruction indices.
package instr

import (
	"fmt"
	"strings"

	"github.com/gnolang/dfa/internal/analysis/lattice"
	"github.com/gnolang/dfa/internal/analysis/value"
)

// NoHandler marks an exceptional transfer that leaves the function. The
// entry instruction is never a handler, so the zero value means none.
const NoHandler = 0

// Instruction is one step of a program.
type Instruction interface {
	fmt.Stringer
	instruction()
}

type (
	// PushConst pushes a constant.
	PushConst struct{ Value lattice.Const }
	// PushVar pushes an unqualified variable.
	PushVar struct{ Var *value.Descriptor }
	// PushField pops a qualifier and pushes its field. A null qualifier
	// transfers to Handler.
	PushField struct {
		Field   *value.Descriptor
		Handler int
	}
	// PushUnknown pushes a value nothing is known about.
	PushUnknown struct{}
	// New pushes a freshly allocated, not yet escaped instance of Class.
	New struct{ Class string }
	Pop         struct{}
	Dup         struct{}
	// Assign pops the source and then the target variable.
	Assign struct{}
	// Binary pops the right then the left operand and pushes the result.
	Binary struct {
		Op    value.Op
		Width int
	}
	// Not pops a boolean and pushes its negation.
	Not  struct{}
	Goto struct{ Target int }
	// CondGoto pops a boolean and jumps to Target when it is true, or false
	// if Negated.
	CondGoto struct {
		Target  int
		Negated bool
	}
	// Call pops Args arguments, then the qualifier if HasQualifier, and
	// pushes the result unless Void.
	Call struct {
		Method       string
		Args         int
		HasQualifier bool
		Void         bool
		Handler      int
	}
	// InstanceOf pops a reference and pushes whether it is a Class.
	InstanceOf struct{ Class string }
	// TypeCast checks the top of the stack is a Class, leaving it in place.
	TypeCast struct {
		Class   string
		Handler int
	}
	// ArrayLoad pops an index then an array and pushes the element.
	ArrayLoad struct {
		Elem    lattice.Type
		Handler int
	}
	// Flush forgets variables leaving scope.
	Flush struct{ Vars []*value.Descriptor }
	// PushToken pushes a pending transfer to Target.
	PushToken struct{ Target int }
	// JumpToken pops a token and transfers to its target.
	JumpToken struct{}
	// Closure captures the current state for nested program Index.
	Closure struct{ Index int }
	// Throw transfers to Handler with an empty stack.
	Throw  struct{ Handler int }
	Return struct{}
)

func (PushConst) instruction()   {}
func (PushVar) instruction()     {}
func (PushField) instruction()   {}
func (PushUnknown) instruction() {}
func (New) instruction()         {}
func (Pop) instruction()         {}
func (Dup) instruction()         {}
func (Assign) instruction()      {}
func (Binary) instruction()      {}
func (Not) instruction()         {}
func (Goto) instruction()        {}
func (CondGoto) instruction()    {}
func (Call) instruction()        {}
func (InstanceOf) instruction()  {}
func (TypeCast) instruction()    {}
func (ArrayLoad) instruction()   {}
func (Flush) instruction()       {}
func (PushToken) instruction()   {}
func (JumpToken) instruction()   {}
func (Closure) instruction()     {}
func (Throw) instruction()       {}
func (Return) instruction()      {}

func (i PushConst) String() string  { return "push " + i.Value.String() }
func (i PushVar) String() string    { return "push " + i.Var.Name }
func (i PushField) String() string  { return "field " + i.Field.Name + handler(i.Handler) }
func (PushUnknown) String() string  { return "push ?" }
func (i New) String() string        { return "new " + i.Class }
func (Pop) String() string          { return "pop" }
func (Dup) String() string          { return "dup" }
func (Assign) String() string       { return "assign" }
func (i Binary) String() string     { return fmt.Sprintf("binary %s/%d", i.Op, i.width()) }
func (Not) String() string          { return "not" }
func (i Goto) String() string       { return fmt.Sprintf("goto %d", i.Target) }
func (i InstanceOf) String() string { return "instanceof " + i.Class }
func (i TypeCast) String() string   { return "cast " + i.Class + handler(i.Handler) }
func (i ArrayLoad) String() string  { return "aload" + handler(i.Handler) }
func (i PushToken) String() string  { return fmt.Sprintf("token %d", i.Target) }
func (JumpToken) String() string    { return "jump token" }
func (i Closure) String() string    { return fmt.Sprintf("closure %d", i.Index) }
func (i Throw) String() string      { return "throw" + handler(i.Handler) }
func (Return) String() string       { return "return" }

func (i CondGoto) String() string {
	if i.Negated {
		return fmt.Sprintf("if not goto %d", i.Target)
	}
	return fmt.Sprintf("if goto %d", i.Target)
}

func (i Call) String() string {
	var b strings.Builder
	b.WriteString("call ")
	b.WriteString(i.Method)
	fmt.Fprintf(&b, "/%d", i.Args)
	if i.HasQualifier {
		b.WriteString(" on qualifier")
	}
	b.WriteString(handler(i.Handler))
	return b.String()
}

func (i Flush) String() string {
	names := make([]string, len(i.Vars))
	for n, v := range i.Vars {
		names[n] = v.Name
	}
	return "flush " + strings.Join(names, ", ")
}

func (i Binary) width() int {
	if i.Width == 32 {
		return 32
	}
	return 64
}

// EffectiveWidth returns the arithmetic width of the operation.
func (i Binary) EffectiveWidth() int { return i.width() }

func handler(h int) string {
	if h == NoHandler {
		return ""
	}
	return fmt.Sprintf(" catch %d", h)
}

// Handler returns the exception handler of instructions that can throw.
func Handler(in Instruction) (int, bool) {
	switch i := in.(type) {
	case PushField:
		return i.Handler, true
	case Call:
		return i.Handler, true
	case TypeCast:
		return i.Handler, true
	case ArrayLoad:
		return i.Handler, true
	case Throw:
		return i.Handler, true
	}
	return NoHandler, false
}
