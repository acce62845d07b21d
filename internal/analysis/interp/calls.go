package interp

import (
	"github.com/gnolang/dfa/internal/analysis/instr"
	"github.com/gnolang/dfa/internal/analysis/lattice"
	"github.com/gnolang/dfa/internal/analysis/state"
	"github.com/gnolang/dfa/internal/analysis/value"
)

// callSite holds the operands of one call.
type callSite struct {
	pc   int
	in   instr.Call
	meth instr.Method
	args []*value.Value
	q    *value.Value
}

func (cs *callSite) operand(arg int) *value.Value {
	if arg == instr.QualifierArg {
		return cs.q
	}
	if arg >= 0 && arg < len(cs.args) {
		return cs.args[arg]
	}
	return nil
}

// call applies the contracts of the callee in order. Each contract splits
// the pending states into those where its conditions hold, which take its
// return behaviour, and those where one is refuted, which move on to the
// next contract. Once the fork bound is reached the remaining states take
// the default behaviour.
func (r *run) call(pc int, in instr.Call, c *state.State) []Successor {
	cs := &callSite{pc: pc, in: in, args: make([]*value.Value, in.Args)}
	for i := in.Args - 1; i >= 0; i-- {
		cs.args[i] = c.Pop()
	}
	var out []Successor
	if in.HasQualifier {
		cs.q = c.Pop()
		if c, out = r.deref(c, cs.q, in.Handler); c == nil {
			return out
		}
	}
	meth, ok := r.it.model.Method(in.Method)
	if !ok {
		meth = instr.Method{Name: in.Method, Return: lattice.AnyType, Null: lattice.NullUnknown}
	}
	cs.meth = meth

	var results []Successor
	pending := []*state.State{c}
	for _, ct := range meth.Contracts {
		var rest []*state.State
		for _, st := range pending {
			held, refuted := r.splitContract(st, ct, cs)
			rest = append(rest, refuted...)
			if held != nil {
				results = append(results, r.complete(cs, ct, held)...)
			}
		}
		pending = rest
		if len(pending)+len(results) > r.cfg.MaxContractForks {
			break
		}
	}
	for _, st := range pending {
		results = append(results, r.complete(cs, instr.Contract{Return: instr.ReturnAny}, st)...)
	}
	return append(results, out...)
}

// splitContract returns st narrowed to the conditions of ct, or nil when
// they cannot all hold, and the disjoint states in which one is refuted.
func (r *run) splitContract(st *state.State, ct instr.Contract, cs *callSite) (*state.State, []*state.State) {
	var refuted []*state.State
	cur := st.Copy()
	for _, cond := range ct.Conditions {
		v := cs.operand(cond.Arg)
		if v == nil {
			return nil, append(refuted, cur)
		}
		neg := cur.Copy()
		if meetCondition(neg, v, cond.Kind, false) {
			refuted = append(refuted, neg)
		}
		if !meetCondition(cur, v, cond.Kind, true) {
			return nil, refuted
		}
	}
	return cur, refuted
}

// meetCondition narrows v to satisfy kind, or to violate it when holds is
// false.
func meetCondition(st *state.State, v *value.Value, kind instr.ConditionKind, holds bool) bool {
	switch kind {
	case instr.CondNull, instr.CondNotNull:
		null := lattice.NotNull
		if (kind == instr.CondNull) == holds {
			null = lattice.Null
		}
		return st.MeetFact(v, lattice.NullFact(null))
	case instr.CondTrue, instr.CondFalse:
		return assume(st, v, (kind == instr.CondTrue) == holds)
	}
	return true
}

// complete finishes the call in st with the return behaviour of ct.
func (r *run) complete(cs *callSite, ct instr.Contract, st *state.State) []Successor {
	if ct.Return == instr.ReturnFail {
		return []Successor{r.raise(st, cs.in.Handler, true)}
	}
	if !cs.meth.Pure {
		for _, a := range cs.args {
			st.Escape(a)
		}
		if cs.q != nil {
			st.Escape(cs.q)
		}
		st.FlushMutable(true)
	}
	var exc []Successor
	if cs.in.Handler != instr.NoHandler && !cs.meth.Pure {
		exc = append(exc, r.raise(st.Copy(), cs.in.Handler, false))
	}
	if !cs.in.Void {
		res, ok := r.returnValue(cs, ct, st)
		if !ok {
			return exc
		}
		st.Push(res)
	}
	return append([]Successor{{PC: cs.pc + 1, State: st}}, exc...)
}

func (r *run) returnValue(cs *callSite, ct instr.Contract, st *state.State) (*value.Value, bool) {
	switch ct.Return {
	case instr.ReturnNull:
		return r.f.Const(lattice.NullConst()), true
	case instr.ReturnTrue:
		return r.f.Const(lattice.BoolConst(true)), true
	case instr.ReturnFalse:
		return r.f.Const(lattice.BoolConst(false)), true
	case instr.ReturnParam:
		if v := cs.operand(ct.Param); v != nil {
			return v, true
		}
	case instr.ReturnQualifier:
		if cs.q != nil {
			return cs.q, true
		}
	}
	v, ok := r.fresh(st, cs.pc, cs.meth.Return, cs.meth.Null)
	if ok && ct.Return == instr.ReturnNotNull {
		ok = st.MeetFact(v, lattice.NullFact(lattice.NotNull))
	}
	return v, ok
}
