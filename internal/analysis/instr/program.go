package instr

import (
	"errors"
	"fmt"
	"go/token"
	"slices"

	"github.com/gnolang/dfa/internal/analysis/value"
)

// ErrMalformed is returned for instruction streams the interpreter cannot
// run.
var ErrMalformed = errors.New("malformed program")

// Program is an immutable instruction stream for one function or closure.
type Program struct {
	Name         string
	Instructions []Instruction
	Params       []*value.Descriptor
	// Positions maps instructions to source positions. It may be shorter
	// than Instructions.
	Positions []token.Position
	Closures  []*Program
}

// Len returns the number of instructions.
func (p *Program) Len() int { return len(p.Instructions) }

// At returns the instruction at pc.
func (p *Program) At(pc int) Instruction { return p.Instructions[pc] }

// Position returns the source position of pc, if known.
func (p *Program) Position(pc int) token.Position {
	if pc >= 0 && pc < len(p.Positions) {
		return p.Positions[pc]
	}
	return token.Position{}
}

// TokenTargets returns the targets of every PushToken, sorted.
func (p *Program) TokenTargets() []int {
	var out []int
	for _, in := range p.Instructions {
		if t, ok := in.(PushToken); ok {
			out = append(out, t.Target)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Successors returns the normal successors of pc. Exceptional transfers
// are reported by Handler. A nil result means control leaves the program.
func (p *Program) Successors(pc int) []int {
	switch in := p.Instructions[pc].(type) {
	case Goto:
		return []int{in.Target}
	case CondGoto:
		if in.Target == pc+1 {
			return []int{pc + 1}
		}
		return []int{pc + 1, in.Target}
	case JumpToken:
		return p.TokenTargets()
	case Throw, Return:
		return nil
	}
	if pc+1 < len(p.Instructions) {
		return []int{pc + 1}
	}
	return nil
}

// effect returns how many operands an instruction needs and how the stack
// depth changes. Throw empties the stack and is handled separately.
func effect(in Instruction) (need, delta int) {
	switch i := in.(type) {
	case PushConst, PushVar, PushUnknown, New, PushToken:
		return 0, 1
	case PushField, Not, InstanceOf, TypeCast:
		return 1, 0
	case Pop, CondGoto, JumpToken:
		return 1, -1
	case Dup:
		return 1, 1
	case Assign:
		return 2, -2
	case Binary, ArrayLoad:
		return 2, -1
	case Call:
		need = i.Args
		if i.HasQualifier {
			need++
		}
		delta = -need
		if !i.Void {
			delta++
		}
		return need, delta
	}
	return 0, 0
}

func (p *Program) errorf(pc int, format string, args ...any) error {
	return fmt.Errorf("%w: %s: instruction %d (%s): %s", ErrMalformed, p.Name, pc, p.Instructions[pc], fmt.Sprintf(format, args...))
}

// Validate checks jump targets, handlers, closure indices and that the
// operand stack depth is consistent on every path.
func (p *Program) Validate() error {
	n := len(p.Instructions)
	if n == 0 {
		return fmt.Errorf("%w: %s: empty program", ErrMalformed, p.Name)
	}
	inRange := func(t int) bool { return t >= 0 && t < n }
	for pc, in := range p.Instructions {
		switch i := in.(type) {
		case Goto:
			if !inRange(i.Target) {
				return p.errorf(pc, "jump target out of range")
			}
		case CondGoto:
			if !inRange(i.Target) {
				return p.errorf(pc, "jump target out of range")
			}
		case PushToken:
			if !inRange(i.Target) {
				return p.errorf(pc, "token target out of range")
			}
		case Closure:
			if i.Index < 0 || i.Index >= len(p.Closures) {
				return p.errorf(pc, "no closure %d", i.Index)
			}
		case PushVar:
			if i.Var == nil {
				return p.errorf(pc, "missing variable")
			}
		case PushField:
			if i.Field == nil {
				return p.errorf(pc, "missing field")
			}
		}
		if h, ok := Handler(in); ok && h != NoHandler && !inRange(h) {
			return p.errorf(pc, "handler out of range")
		}
	}
	if err := p.validateDepth(); err != nil {
		return err
	}
	for _, c := range p.Closures {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Program) validateDepth() error {
	depth := make([]int, len(p.Instructions))
	for i := range depth {
		depth[i] = -1
	}
	depth[0] = 0
	work := []int{0}
	visit := func(from, to, d int) error {
		switch depth[to] {
		case -1:
			depth[to] = d
			work = append(work, to)
		case d:
		default:
			return p.errorf(from, "stack depth %d at %d, previously %d", d, to, depth[to])
		}
		return nil
	}
	for len(work) > 0 {
		pc := work[len(work)-1]
		work = work[:len(work)-1]
		in := p.Instructions[pc]
		need, delta := effect(in)
		if depth[pc] < need {
			return p.errorf(pc, "stack underflow")
		}
		if _, ok := in.(Return); ok {
			continue
		}
		if h, ok := Handler(in); ok && h != NoHandler {
			if err := visit(pc, h, 0); err != nil {
				return err
			}
		}
		if _, ok := in.(Throw); ok {
			continue
		}
		for _, next := range p.Successors(pc) {
			if err := visit(pc, next, depth[pc]+delta); err != nil {
				return err
			}
		}
	}
	return nil
}
