package program

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gnolang/dfa/internal/analysis/instr"
	"github.com/gnolang/dfa/internal/analysis/lattice"
	"github.com/gnolang/dfa/internal/analysis/value"
)

var mnemonics = map[string]value.Op{
	"add": value.OpAdd,
	"sub": value.OpSub,
	"mul": value.OpMul,
	"div": value.OpDiv,
	"rem": value.OpRem,
	"and": value.OpAnd,
	"or":  value.OpOr,
	"xor": value.OpXor,
	"shl": value.OpShl,
	"shr": value.OpShr,
	"eq":  value.OpEq,
	"ne":  value.OpNe,
	"lt":  value.OpLt,
	"le":  value.OpLe,
	"gt":  value.OpGt,
	"ge":  value.OpGe,
}

// assembler turns code lines into instructions. Lines may start with a
// "label:" naming the instruction; a line holding only a label names the
// next instruction.
type assembler struct {
	*loader
	scope    *scope
	closures map[string]int
	labels   map[string]int
}

type line struct {
	node   *yaml.Node
	fields []string
}

func (a *assembler) assemble(p *instr.Program, code []yaml.Node) error {
	var lines []line
	for i := range code {
		n := &code[i]
		if n.Kind != yaml.ScalarNode {
			return a.errorf(n.Line, n.Column, "instruction must be a string")
		}
		fields := strings.Fields(n.Value)
		for len(fields) > 0 && isLabel(fields[0]) {
			label := strings.TrimSuffix(fields[0], ":")
			if _, dup := a.labels[label]; dup {
				return a.errorf(n.Line, n.Column, "duplicate label %s", label)
			}
			a.labels[label] = len(lines)
			fields = fields[1:]
		}
		if len(fields) == 0 {
			continue
		}
		lines = append(lines, line{node: n, fields: fields})
	}
	if len(lines) == 0 {
		return a.errorf(0, 0, "function %s has no code", p.Name)
	}
	for _, ln := range lines {
		in, err := a.instruction(ln)
		if err != nil {
			return a.errorf(ln.node.Line, ln.node.Column, "%v", err)
		}
		p.Instructions = append(p.Instructions, in)
		p.Positions = append(p.Positions, position(a.filename, ln.node))
	}
	return nil
}

func isLabel(s string) bool {
	return len(s) > 1 && strings.HasSuffix(s, ":") && !strings.ContainsAny(s, `"`)
}

func (a *assembler) instruction(ln line) (instr.Instruction, error) {
	op, args := ln.fields[0], ln.fields[1:]
	args, handler, err := a.handler(args)
	if err != nil {
		return nil, err
	}
	arity := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s takes %d operand(s), got %d", op, n, len(args))
		}
		return nil
	}

	switch op {
	case "push":
		if len(args) == 0 {
			return nil, fmt.Errorf("push needs an operand")
		}
		return a.push(strings.Join(args, " "))
	case "new":
		if err := arity(1); err != nil {
			return nil, err
		}
		return instr.New{Class: args[0]}, nil
	case "pop":
		return instr.Pop{}, arity(0)
	case "dup":
		return instr.Dup{}, arity(0)
	case "assign":
		return instr.Assign{}, arity(0)
	case "not":
		return instr.Not{}, arity(0)
	case "return":
		return instr.Return{}, arity(0)
	case "jumptoken":
		return instr.JumpToken{}, arity(0)
	case "field":
		if err := arity(1); err != nil {
			return nil, err
		}
		d, ok := a.fields[args[0]]
		if !ok {
			return nil, fmt.Errorf("unknown field %s", args[0])
		}
		return instr.PushField{Field: d, Handler: handler}, nil
	case "goto", "if", "ifnot", "token":
		if err := arity(1); err != nil {
			return nil, err
		}
		target, err := a.target(args[0])
		if err != nil {
			return nil, err
		}
		switch op {
		case "goto":
			return instr.Goto{Target: target}, nil
		case "token":
			return instr.PushToken{Target: target}, nil
		}
		return instr.CondGoto{Target: target, Negated: op == "ifnot"}, nil
	case "call":
		return a.call(args, handler)
	case "instanceof":
		if err := arity(1); err != nil {
			return nil, err
		}
		return instr.InstanceOf{Class: args[0]}, nil
	case "cast":
		if err := arity(1); err != nil {
			return nil, err
		}
		return instr.TypeCast{Class: args[0], Handler: handler}, nil
	case "aload":
		if err := arity(1); err != nil {
			return nil, err
		}
		t, err := parseType(args[0])
		if err != nil {
			return nil, err
		}
		return instr.ArrayLoad{Elem: t, Handler: handler}, nil
	case "flush":
		var vars []*value.Descriptor
		for _, name := range args {
			d, ok := a.scope.lookup(strings.TrimSuffix(name, ","))
			if !ok {
				return nil, fmt.Errorf("unknown variable %s", name)
			}
			vars = append(vars, d)
		}
		return instr.Flush{Vars: vars}, nil
	case "closure":
		if err := arity(1); err != nil {
			return nil, err
		}
		if idx, ok := a.closures[args[0]]; ok {
			return instr.Closure{Index: idx}, nil
		}
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("unknown closure %s", args[0])
		}
		return instr.Closure{Index: idx}, nil
	case "throw":
		return instr.Throw{Handler: handler}, arity(0)
	}

	name, width, _ := strings.Cut(op, "/")
	if bop, ok := mnemonics[name]; ok {
		w := 64
		switch width {
		case "", "64":
		case "32":
			w = 32
		default:
			return nil, fmt.Errorf("unsupported width %s", width)
		}
		return instr.Binary{Op: bop, Width: w}, arity(0)
	}
	return nil, fmt.Errorf("unknown instruction %s", op)
}

// handler strips a trailing "catch label" from args.
func (a *assembler) handler(args []string) ([]string, int, error) {
	n := len(args)
	if n < 2 || args[n-2] != "catch" {
		return args, instr.NoHandler, nil
	}
	h, err := a.target(args[n-1])
	if err != nil {
		return nil, 0, err
	}
	if h == instr.NoHandler {
		return nil, 0, fmt.Errorf("the entry instruction cannot be a handler")
	}
	return args[:n-2], h, nil
}

func (a *assembler) target(s string) (int, error) {
	if pc, ok := a.labels[s]; ok {
		return pc, nil
	}
	if pc, err := strconv.Atoi(s); err == nil {
		return pc, nil
	}
	return 0, fmt.Errorf("unknown label %s", s)
}

func (a *assembler) push(arg string) (instr.Instruction, error) {
	switch arg {
	case "?":
		return instr.PushUnknown{}, nil
	case "null":
		return instr.PushConst{Value: lattice.NullConst()}, nil
	case "true":
		return instr.PushConst{Value: lattice.BoolConst(true)}, nil
	case "false":
		return instr.PushConst{Value: lattice.BoolConst(false)}, nil
	}
	if strings.HasPrefix(arg, `"`) {
		s, err := strconv.Unquote(arg)
		if err != nil {
			return nil, fmt.Errorf("bad string literal %s", arg)
		}
		return instr.PushConst{Value: lattice.StringConst(s)}, nil
	}
	if n, err := strconv.ParseInt(arg, 0, 64); err == nil {
		return instr.PushConst{Value: lattice.IntConst(n)}, nil
	}
	d, ok := a.scope.lookup(arg)
	if !ok {
		return nil, fmt.Errorf("unknown variable %s", arg)
	}
	return instr.PushVar{Var: d}, nil
}

// call parses "name/N" followed by the flags "this" and "void".
func (a *assembler) call(args []string, handler int) (instr.Instruction, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("call needs a method")
	}
	c := instr.Call{Method: args[0], Handler: handler}
	if name, n, ok := strings.Cut(args[0], "/"); ok {
		argc, err := strconv.Atoi(n)
		if err != nil || argc < 0 {
			return nil, fmt.Errorf("bad argument count in %s", args[0])
		}
		c.Method, c.Args = name, argc
	}
	for _, flag := range args[1:] {
		switch flag {
		case "this":
			c.HasQualifier = true
		case "void":
			c.Void = true
		default:
			return nil, fmt.Errorf("unknown call flag %s", flag)
		}
	}
	return c, nil
}

// parseType parses "int", "int32", "int64", "bool", "string", "any", a class
// name, or an array type written "T[]".
func parseType(s string) (lattice.Type, error) {
	switch s {
	case "", "any":
		return lattice.AnyType, nil
	case "int", "int64":
		return lattice.IntType(64), nil
	case "int32":
		return lattice.IntType(32), nil
	case "bool":
		return lattice.BoolType, nil
	case "string":
		return lattice.StringType, nil
	}
	if elem, ok := strings.CutSuffix(s, "[]"); ok {
		if elem == "" {
			return lattice.Type{}, fmt.Errorf("bad array type %s", s)
		}
		return lattice.Type{Name: s, Kind: lattice.KindArray}, nil
	}
	if strings.ContainsAny(s, " \t[]") {
		return lattice.Type{}, fmt.Errorf("bad type %q", s)
	}
	return lattice.Type{Name: s, Kind: lattice.KindRef}, nil
}
