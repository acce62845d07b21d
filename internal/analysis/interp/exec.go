package interp

import (
	"fmt"
	"math"

	"github.com/gnolang/dfa/internal/analysis/instr"
	"github.com/gnolang/dfa/internal/analysis/lattice"
	"github.com/gnolang/dfa/internal/analysis/state"
	"github.com/gnolang/dfa/internal/analysis/value"
)

// exec runs one instruction on s and returns every feasible outcome. s
// itself is never modified.
func (r *run) exec(pc int, in instr.Instruction, s *state.State) ([]Successor, error) {
	c := s.Copy()
	next := pc + 1
	switch in := in.(type) {
	case instr.PushConst:
		c.Push(r.f.Const(in.Value))
	case instr.PushVar:
		c.Push(r.f.Var(in.Var, nil))
	case instr.PushUnknown:
		c.Push(r.f.Unknown())
	case instr.New:
		if !r.allocate(pc, in.Class, c) {
			return nil, nil
		}
	case instr.Pop:
		c.Pop()
	case instr.Dup:
		v, _ := c.Peek(0)
		c.Push(v)
	case instr.PushField:
		return r.field(pc, in, c), nil
	case instr.Assign:
		return r.assign(pc, c)
	case instr.Binary:
		return r.binary(pc, in, c), nil
	case instr.Not:
		return r.not(pc, c), nil
	case instr.Goto:
		next = in.Target
	case instr.CondGoto:
		return r.condGoto(pc, in, c), nil
	case instr.Call:
		return r.call(pc, in, c), nil
	case instr.InstanceOf:
		return r.instanceOf(pc, in, c), nil
	case instr.TypeCast:
		return r.typeCast(pc, in, c), nil
	case instr.ArrayLoad:
		return r.arrayLoad(pc, in, c), nil
	case instr.Flush:
		for _, d := range in.Vars {
			c.Flush(r.f.Var(d, nil))
		}
	case instr.PushToken:
		c.Push(r.f.Const(lattice.TokenConst(in.Target)))
	case instr.JumpToken:
		return r.jumpToken(c), nil
	case instr.Closure:
		r.captures[in.Index] = append(r.captures[in.Index], c.ClosureState())
	case instr.Throw:
		return []Successor{r.raise(c, in.Handler, false)}, nil
	case instr.Return:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unsupported instruction %s", instr.ErrMalformed, in)
	}
	return []Successor{{PC: next, State: c}}, nil
}

// raise turns c into an exceptional transfer to handler.
func (r *run) raise(c *state.State, handler int, failed bool) Successor {
	c.ClearStack()
	return Successor{PC: handler, State: c, Exceptional: true, Failed: failed}
}

// fresh returns the value produced by the instruction at pc. Whatever an
// earlier execution of the same instruction produced is forgotten.
func (r *run) fresh(c *state.State, pc int, t lattice.Type, null lattice.Nullability) (*value.Value, bool) {
	v := r.f.Var(r.f.Descriptor(fmt.Sprintf("$%d", pc), value.DescTemp, t), nil)
	c.Flush(v)
	return v, c.MeetFact(v, lattice.InherentFact(t, null))
}

func (r *run) allocate(pc int, class string, c *state.State) bool {
	v, ok := r.fresh(c, pc, lattice.Type{Name: class, Kind: lattice.KindRef}, lattice.NotNull)
	if !ok {
		return false
	}
	f := lattice.TypeFact(lattice.TypeConstraint{Exact: class})
	f.Null = lattice.NotNull
	f.Local = true
	if !c.MeetFact(v, f) {
		return false
	}
	c.Push(v)
	return true
}

// assume narrows v, a boolean, to truth.
func assume(c *state.State, v *value.Value, truth bool) bool {
	if truth {
		return c.MeetFact(v, lattice.RangeFact(c.Fact(v).Range.Without(0)))
	}
	return c.MeetFact(v, lattice.RangeFact(lattice.Point(0)))
}

// deref splits c on whether q is null. It returns c narrowed to a non-null
// q, or nil when q is always null, plus the exceptional outcome of a null
// q. The null outcome of a value never declared nullable is ephemeral.
func (r *run) deref(c *state.State, q *value.Value, handler int) (*state.State, []Successor) {
	if q.IsUnknown() {
		return c, nil
	}
	fact := c.Fact(q)
	var exc []Successor
	if fact.Null != lattice.NotNull {
		n := c.Copy()
		if n.MeetFact(q, lattice.NullFact(lattice.Null)) {
			if fact.Null == lattice.NullUnknown {
				n.MarkEphemeral()
			}
			exc = append(exc, r.raise(n, handler, false))
		}
	}
	if !c.MeetFact(q, lattice.NullFact(lattice.NotNull)) {
		return nil, exc
	}
	return c, exc
}

func (r *run) field(pc int, in instr.PushField, c *state.State) []Successor {
	q := c.Pop()
	ok, exc := r.deref(c, q, in.Handler)
	if ok == nil {
		return exc
	}
	v := r.f.Unknown()
	if q.IsVariable() {
		v = ok.Canonical(r.f.Var(in.Field, q))
	}
	ok.Push(v)
	return append([]Successor{{PC: pc + 1, State: ok}}, exc...)
}

func (r *run) assign(pc int, c *state.State) ([]Successor, error) {
	src := c.Pop()
	tgt := c.Pop()
	if tgt.IsUnknown() {
		return []Successor{{PC: pc + 1, State: c}}, nil
	}
	if !tgt.IsVariable() {
		return nil, fmt.Errorf("%w: %s: instruction %d: assignment to %s", instr.ErrMalformed, r.prog.Name, pc, tgt)
	}
	if !c.Assign(tgt, src) {
		return nil, nil
	}
	if tgt.Qualifier() != nil {
		c.Escape(src)
		c.FlushAliases(c.Canonical(tgt))
	}
	return []Successor{{PC: pc + 1, State: c}}, nil
}

func (r *run) binary(pc int, in instr.Binary, c *state.State) []Successor {
	rv := c.Pop()
	lv := c.Pop()
	if in.Op.Relational() {
		return r.compare(pc, in.Op, lv, rv, c)
	}
	res, ok := r.arith(in.Op, lv, rv, in.EffectiveWidth(), c)
	if !ok {
		return nil
	}
	c.Push(res)
	return []Successor{{PC: pc + 1, State: c}}
}

// compare forks c on the outcome of lv op rv. Integer operands fork three
// ways, on lv < rv, lv == rv and lv > rv, so each successor keeps the
// sharpest relation. Other operands fork on op and its negation.
func (r *run) compare(pc int, op value.Op, lv, rv *value.Value, c *state.State) []Successor {
	type outcome struct {
		cond  value.Op
		truth bool
	}
	outcomes := []outcome{{op, true}, {op.Negate(), false}}
	if ordered(lv) && ordered(rv) {
		outcomes = []outcome{
			{value.OpLt, satisfies(op, value.OpLt)},
			{value.OpEq, satisfies(op, value.OpEq)},
			{value.OpGt, satisfies(op, value.OpGt)},
		}
	}
	var out []Successor
	for _, o := range outcomes {
		b := c.Copy()
		if !b.ApplyCondition(lv, o.cond, rv) {
			continue
		}
		b.Push(r.f.Const(lattice.BoolConst(o.truth)))
		out = append(out, Successor{PC: pc + 1, State: b})
	}
	return out
}

func ordered(v *value.Value) bool {
	return !v.IsUnknown() && v.Type().Kind == lattice.KindInt
}

// satisfies reports whether op is true when its operands compare as rel, one
// of OpLt, OpEq or OpGt.
func satisfies(op, rel value.Op) bool {
	switch op {
	case value.OpEq:
		return rel == value.OpEq
	case value.OpNe:
		return rel != value.OpEq
	case value.OpLt:
		return rel == value.OpLt
	case value.OpLe:
		return rel != value.OpGt
	case value.OpGt:
		return rel == value.OpGt
	case value.OpGe:
		return rel != value.OpLt
	}
	return false
}

// arith computes lv op rv. It reports false when the operation cannot
// complete, as for a division by a divisor known to be zero.
func (r *run) arith(op value.Op, lv, rv *value.Value, width int, c *state.State) (*value.Value, bool) {
	if lv.IsUnknown() || rv.IsUnknown() {
		return r.f.Unknown(), true
	}
	fl, fr := c.Fact(lv), c.Fact(rv)
	if op == value.OpDiv || op == value.OpRem {
		if fr.Range == lattice.Point(0) {
			return nil, false
		}
		if !c.MeetFact(rv, fr.Exclude(lattice.IntConst(0))) {
			return nil, false
		}
		fr = c.Fact(rv)
	}
	if cl, ok := fl.Constant(); ok && cl.Numeric() {
		if cr, ok := fr.Constant(); ok && cr.Numeric() {
			if n, ok := fold(op, cl.Int, cr.Int, width); ok {
				if cl.Kind == lattice.ConstBool && cr.Kind == lattice.ConstBool {
					return r.f.Const(lattice.BoolConst(n != 0)), true
				}
				return r.f.Const(lattice.IntConst(n)), true
			}
		}
	}
	v := r.f.Composite(op, c.Canonical(lv), c.Canonical(rv), width)
	if !c.MeetFact(v, lattice.RangeFact(evalRange(op, fl.Range, fr.Range, width))) {
		return nil, false
	}
	return v, true
}

func evalRange(op value.Op, a, b lattice.Range, width int) lattice.Range {
	switch op {
	case value.OpAdd:
		return a.Add(b, width)
	case value.OpSub:
		return a.Sub(b, width)
	case value.OpMul:
		return a.Mul(b, width)
	case value.OpDiv:
		return a.Div(b, width)
	case value.OpRem:
		return a.Rem(b, width)
	case value.OpAnd:
		return a.And(b, width)
	case value.OpOr:
		return a.Or(b, width, false)
	case value.OpXor:
		return a.Or(b, width, true)
	case value.OpShl:
		return a.Shl(b, width)
	case value.OpShr:
		return a.Shr(b, width)
	}
	return lattice.FullRange(width)
}

// fold evaluates a constant operation with fixed-width wraparound.
func fold(op value.Op, a, b int64, width int) (int64, bool) {
	shift := uint64(63)
	if width == 32 {
		shift = 31
	}
	var n int64
	switch op {
	case value.OpAdd:
		n = a + b
	case value.OpSub:
		n = a - b
	case value.OpMul:
		n = a * b
	case value.OpDiv:
		if b == 0 {
			return 0, false
		}
		if a == math.MinInt64 && b == -1 {
			n = a
		} else {
			n = a / b
		}
	case value.OpRem:
		if b == 0 {
			return 0, false
		}
		if b != -1 {
			n = a % b
		}
	case value.OpAnd:
		n = a & b
	case value.OpOr:
		n = a | b
	case value.OpXor:
		n = a ^ b
	case value.OpShl:
		n = a << (uint64(b) & shift)
	case value.OpShr:
		n = a >> (uint64(b) & shift)
	default:
		return 0, false
	}
	if width == 32 {
		n = int64(int32(n))
	}
	return n, true
}

func (r *run) not(pc int, c *state.State) []Successor {
	v := c.Pop()
	var out []Successor
	for _, truth := range []bool{true, false} {
		b := c.Copy()
		if !assume(b, v, truth) {
			continue
		}
		b.Push(r.f.Const(lattice.BoolConst(!truth)))
		out = append(out, Successor{PC: pc + 1, State: b})
	}
	return out
}

func (r *run) condGoto(pc int, in instr.CondGoto, c *state.State) []Successor {
	v := c.Pop()
	if in.Target == pc+1 {
		return []Successor{{PC: pc + 1, State: c}}
	}
	var out []Successor
	for _, truth := range []bool{true, false} {
		b := c.Copy()
		if !assume(b, v, truth) {
			continue
		}
		target := pc + 1
		if truth != in.Negated {
			target = in.Target
		}
		out = append(out, Successor{PC: target, State: b})
	}
	return out
}

func (r *run) jumpToken(c *state.State) []Successor {
	t := c.Pop()
	if k, ok := c.Fact(t).Constant(); ok && k.Kind == lattice.ConstToken {
		return []Successor{{PC: int(k.Int), State: c}}
	}
	var out []Successor
	for _, target := range r.prog.TokenTargets() {
		out = append(out, Successor{PC: target, State: c.Copy()})
	}
	return out
}

// typeKnowledge reports whether a value described by fact is known to be an
// instance of class, or known not to be.
func (r *run) typeKnowledge(fact lattice.Fact, class string) (sub, disjoint bool) {
	tc := fact.Types
	if tc.Has(class) {
		return true, false
	}
	if tc.Excludes(class) {
		return false, true
	}
	if tc.Exact != "" {
		if is, known := r.it.model.IsSubtype(tc.Exact, class); known {
			return is, !is
		}
	}
	for _, t := range tc.InstanceOf {
		if is, known := r.it.model.IsSubtype(t, class); known && is {
			return true, false
		}
	}
	return false, false
}

func instanceFact(class string) lattice.Fact {
	f := lattice.TypeFact(lattice.TypeConstraint{InstanceOf: []string{class}})
	f.Null = lattice.NotNull
	return f
}

func notInstanceFact(class string) lattice.Fact {
	f := lattice.TypeFact(lattice.TypeConstraint{NotInstanceOf: []string{class}})
	f.Null = lattice.NotNull
	return f
}

func (r *run) instanceOf(pc int, in instr.InstanceOf, c *state.State) []Successor {
	v := c.Pop()
	if v.IsUnknown() {
		c.Push(v)
		return []Successor{{PC: pc + 1, State: c}}
	}
	fact := c.Fact(v)
	sub, disjoint := r.typeKnowledge(fact, in.Class)
	var out []Successor
	if !disjoint {
		b := c.Copy()
		if b.MeetFact(v, instanceFact(in.Class)) {
			b.Push(r.f.Const(lattice.BoolConst(true)))
			out = append(out, Successor{PC: pc + 1, State: b})
		}
	}
	b := c.Copy()
	feasible := true
	switch {
	case sub:
		feasible = b.MeetFact(v, lattice.NullFact(lattice.Null))
	case fact.Null == lattice.NotNull:
		feasible = b.MeetFact(v, notInstanceFact(in.Class))
	}
	if feasible {
		b.Push(r.f.Const(lattice.BoolConst(false)))
		out = append(out, Successor{PC: pc + 1, State: b})
	}
	return out
}

func (r *run) typeCast(pc int, in instr.TypeCast, c *state.State) []Successor {
	v, _ := c.Peek(0)
	if v.IsUnknown() {
		return []Successor{{PC: pc + 1, State: c}}
	}
	fact := c.Fact(v)
	sub, disjoint := r.typeKnowledge(fact, in.Class)
	var out []Successor
	b := c.Copy()
	feasible := true
	switch {
	case disjoint:
		feasible = b.MeetFact(v, lattice.NullFact(lattice.Null))
	case fact.Null == lattice.NotNull:
		feasible = b.MeetFact(v, instanceFact(in.Class))
	}
	if feasible {
		out = append(out, Successor{PC: pc + 1, State: b})
	}
	if !sub && fact.Null != lattice.Null {
		b := c.Copy()
		if b.MeetFact(v, notInstanceFact(in.Class)) {
			out = append(out, r.raise(b, in.Handler, false))
		}
	}
	return out
}

func (r *run) arrayLoad(pc int, in instr.ArrayLoad, c *state.State) []Successor {
	idx := c.Pop()
	arr := c.Pop()
	ok, out := r.deref(c, arr, in.Handler)
	if ok == nil {
		return out
	}
	if !arr.IsVariable() {
		elem, feasible := r.fresh(ok, pc, in.Elem, lattice.NullUnknown)
		if !feasible {
			return out
		}
		failed := r.raise(ok.Copy(), in.Handler, false)
		ok.Push(elem)
		return append([]Successor{{PC: pc + 1, State: ok}, failed}, out...)
	}
	length := ok.Canonical(r.f.Length(arr))
	if !ok.MeetFact(length, lattice.RangeFact(lattice.NewRange(0, math.MaxInt32))) {
		return out
	}
	zero := r.f.Const(lattice.IntConst(0))
	var succs []Successor

	inBounds := ok.Copy()
	if inBounds.ApplyCondition(idx, value.OpGe, zero) && inBounds.ApplyCondition(idx, value.OpLt, length) {
		if elem, feasible := r.element(pc, in, inBounds, arr, idx); feasible {
			inBounds.Push(elem)
			succs = append(succs, Successor{PC: pc + 1, State: inBounds})
		}
	}
	below := ok.Copy()
	if below.ApplyCondition(idx, value.OpLt, zero) {
		succs = append(succs, r.raise(below, in.Handler, false))
	}
	above := ok.Copy()
	if above.ApplyCondition(idx, value.OpGe, length) {
		succs = append(succs, r.raise(above, in.Handler, false))
	}
	return append(succs, out...)
}

// element returns the value of arr[idx]. Constant indices name a variable so
// that repeated loads agree.
func (r *run) element(pc int, in instr.ArrayLoad, c *state.State, arr, idx *value.Value) (*value.Value, bool) {
	if k, ok := c.Fact(idx).Constant(); ok && k.Kind == lattice.ConstInt {
		return c.Canonical(r.f.Element(arr, k.Int, in.Elem)), true
	}
	return r.fresh(c, pc, in.Elem, lattice.NullUnknown)
}
