package cfg

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gnolang/dfa/internal/analysis/instr"
	"github.com/gnolang/dfa/internal/analysis/lattice"
	"github.com/gnolang/dfa/internal/analysis/value"
)

func counterLoop() *instr.Program {
	i := &value.Descriptor{Name: "i", Kind: value.DescLocal, Type: lattice.IntType(64)}
	n := &value.Descriptor{Name: "n", Kind: value.DescParam, Type: lattice.IntType(64)}
	return &instr.Program{
		Name:   "loop",
		Params: []*value.Descriptor{n},
		Instructions: []instr.Instruction{
			instr.PushVar{Var: i},                       // 0
			instr.PushConst{Value: lattice.IntConst(0)}, // 1
			instr.Assign{},                              // 2
			instr.PushVar{Var: i},                       // 3 loop head
			instr.PushVar{Var: n},                       // 4
			instr.Binary{Op: value.OpLt},                // 5
			instr.CondGoto{Target: 14, Negated: true},   // 6
			instr.PushVar{Var: i},                       // 7
			instr.PushVar{Var: i},                       // 8
			instr.PushConst{Value: lattice.IntConst(1)}, // 9
			instr.Binary{Op: value.OpAdd},               // 10
			instr.Assign{},                              // 11
			instr.Goto{Target: 3},                       // 12
			instr.Pop{},                                 // 13 unreachable
			instr.Return{},                              // 14
		},
	}
}

func TestGraph(t *testing.T) {
	t.Parallel()
	g := New(counterLoop())

	tests := []struct {
		pc    int
		succs []int
		preds []int
	}{
		{0, []int{1}, nil},
		{3, []int{4}, []int{2, 12}},
		{6, []int{7, 14}, []int{5}},
		{12, []int{3}, []int{11}},
		{14, nil, []int{6, 13}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.succs, g.Succs(tt.pc), "succs of %d", tt.pc)
		assert.Equal(t, tt.preds, g.Preds(tt.pc), "preds of %d", tt.pc)
	}

	assert.Equal(t, []int{3}, g.LoopHeads())
	assert.True(t, g.IsLoopHead(3))
	assert.False(t, g.IsLoopHead(0))

	reach := g.Reachable()
	assert.True(t, reach[14])
	assert.False(t, reach[13])
}

func TestHandlerEdges(t *testing.T) {
	t.Parallel()
	a := &value.Descriptor{Name: "a", Kind: value.DescParam, Type: lattice.Type{Name: "Node", Kind: lattice.KindRef}}
	next := &value.Descriptor{Name: "next", Kind: value.DescField, Type: a.Type}
	p := &instr.Program{
		Name: "deref",
		Instructions: []instr.Instruction{
			instr.PushVar{Var: a},                    // 0
			instr.PushField{Field: next, Handler: 4}, // 1
			instr.Pop{},                              // 2
			instr.Return{},                           // 3
			instr.Throw{},                            // 4
		},
	}
	g := New(p)
	assert.Equal(t, []int{2, 4}, g.Succs(1))
	assert.Nil(t, g.Succs(4))
	assert.Empty(t, g.LoopHeads())

	var buf bytes.Buffer
	g.PrintDot(&buf, nil)
	assert.Contains(t, buf.String(), `"4: throw" -> "EXIT"`)
}

func TestTokenTargets(t *testing.T) {
	t.Parallel()
	p := &instr.Program{
		Name: "finally",
		Instructions: []instr.Instruction{
			instr.PushToken{Target: 3}, // 0
			instr.Goto{Target: 4},      // 1
			instr.PushToken{Target: 5}, // 2
			instr.Return{},             // 3
			instr.JumpToken{},          // 4
			instr.Return{},             // 5
		},
	}
	g := New(p)
	assert.Equal(t, []int{3, 5}, g.Succs(4))
	assert.Equal(t, []bool{true, true, false, true, true, true}, g.Reachable())
}

func TestPrintDot(t *testing.T) {
	t.Parallel()
	x := &value.Descriptor{Name: "x", Kind: value.DescLocal, Type: lattice.IntType(64)}
	p := &instr.Program{
		Name: "branch",
		Instructions: []instr.Instruction{
			instr.PushVar{Var: x},                       // 0
			instr.PushConst{Value: lattice.IntConst(0)}, // 1
			instr.Binary{Op: value.OpEq},                // 2
			instr.CondGoto{Target: 5},                   // 3
			instr.Return{},                              // 4
			instr.Return{},                              // 5
		},
	}
	var buf bytes.Buffer
	New(p).PrintDot(&buf, func(pc int) string {
		if pc == 5 {
			return "x == 0"
		}
		return ""
	})

	expected := `digraph mgraph {
		mode="heir";
		splines="ortho";

		"ENTRY" -> "0: push x"
		"0: push x" -> "1: push 0"
		"1: push 0" -> "2: binary ==/64"
		"2: binary ==/64" -> "3: if goto 5"
		"3: if goto 5" -> "4: return"
		"3: if goto 5" -> "5: return - x == 0"
		"4: return" -> "EXIT"
		"5: return - x == 0" -> "EXIT"
	}`

	output := buf.String()
	if normalizeDotOutput(output) != normalizeDotOutput(expected) {
		t.Errorf("unexpected output.\nExpected:\n%s\nGot:\n%s", expected, output)
	}
}

func normalizeDotOutput(dot string) string {
	lines := strings.Split(dot, "\n")
	var normalized []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return strings.Join(normalized, "\n")
}
