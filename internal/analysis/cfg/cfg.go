package cfg

import (
	"fmt"
	"io"
	"slices"

	"github.com/hashicorp/go-set/v3"

	"github.com/gnolang/dfa/internal/analysis/instr"
)

// Graph is the control flow graph of a program.
type Graph struct {
	prog      *instr.Program
	succs     [][]int
	preds     [][]int
	exits     *set.Set[int]
	loopHeads *set.Set[int]
}

// New builds the graph of p. p must be valid.
func New(p *instr.Program) *Graph {
	n := p.Len()
	g := &Graph{
		prog:      p,
		succs:     make([][]int, n),
		preds:     make([][]int, n),
		exits:     set.New[int](4),
		loopHeads: set.New[int](4),
	}
	for pc := range n {
		next := p.Successors(pc)
		if h, ok := instr.Handler(p.At(pc)); ok {
			if h != instr.NoHandler {
				next = append(next, h)
			} else {
				g.exits.Insert(pc)
			}
		}
		if len(p.Successors(pc)) == 0 {
			g.exits.Insert(pc)
		}
		slices.Sort(next)
		g.succs[pc] = slices.Compact(next)
		for _, s := range g.succs[pc] {
			g.preds[s] = append(g.preds[s], pc)
		}
	}
	g.findLoops()
	return g
}

// findLoops marks the targets of back edges found by a depth-first walk
// from the entry.
func (g *Graph) findLoops() {
	const (
		unseen = iota
		active
		done
	)
	color := make([]int, len(g.succs))
	type frame struct{ pc, next int }
	stack := []frame{{pc: 0}}
	color[0] = active
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next == len(g.succs[top.pc]) {
			color[top.pc] = done
			stack = stack[:len(stack)-1]
			continue
		}
		s := g.succs[top.pc][top.next]
		top.next++
		switch color[s] {
		case unseen:
			color[s] = active
			stack = append(stack, frame{pc: s})
		case active:
			g.loopHeads.Insert(s)
		}
	}
}

func (g *Graph) Len() int { return len(g.succs) }

// Succs returns every successor of pc, handlers included.
func (g *Graph) Succs(pc int) []int { return g.succs[pc] }

// Preds returns every predecessor of pc.
func (g *Graph) Preds(pc int) []int { return g.preds[pc] }

// IsLoopHead reports whether pc is the target of a back edge.
func (g *Graph) IsLoopHead(pc int) bool { return g.loopHeads.Contains(pc) }

// LoopHeads returns the loop heads in ascending order.
func (g *Graph) LoopHeads() []int {
	heads := g.loopHeads.Slice()
	slices.Sort(heads)
	return heads
}

// Reachable reports which instructions can be reached from the entry.
func (g *Graph) Reachable() []bool {
	seen := make([]bool, len(g.succs))
	if len(seen) == 0 {
		return seen
	}
	seen[0] = true
	todo := []int{0}
	for len(todo) > 0 {
		pc := todo[len(todo)-1]
		todo = todo[:len(todo)-1]
		for _, s := range g.succs[pc] {
			if !seen[s] {
				seen[s] = true
				todo = append(todo, s)
			}
		}
	}
	return seen
}

// PrintDot writes the graph in DOT format. label may be nil.
func (g *Graph) PrintDot(w io.Writer, label func(pc int) string) {
	name := func(pc int) string {
		s := fmt.Sprintf("%d: %s", pc, g.prog.At(pc))
		if label != nil {
			if extra := label(pc); extra != "" {
				s += " - " + extra
			}
		}
		return fmt.Sprintf("%q", s)
	}
	fmt.Fprintln(w, "digraph mgraph {")
	fmt.Fprintln(w, "\tmode=\"heir\";")
	fmt.Fprintln(w, "\tsplines=\"ortho\";")
	fmt.Fprintln(w)
	if len(g.succs) > 0 {
		fmt.Fprintf(w, "\t\"ENTRY\" -> %s\n", name(0))
	}
	for pc, succs := range g.succs {
		for _, s := range succs {
			fmt.Fprintf(w, "\t%s -> %s\n", name(pc), name(s))
		}
		if g.exits.Contains(pc) {
			fmt.Fprintf(w, "\t%s -> \"EXIT\"\n", name(pc))
		}
	}
	fmt.Fprintln(w, "}")
}
