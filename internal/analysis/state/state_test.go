package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/dfa/internal/analysis/lattice"
	"github.com/gnolang/dfa/internal/analysis/value"
)

var nodeType = lattice.Type{Name: "Node", Kind: lattice.KindRef}

type env struct {
	f    *value.Factory
	next *value.Descriptor
}

func newEnv() *env {
	return &env{
		f:    value.NewFactory(),
		next: &value.Descriptor{Name: "next", Kind: value.DescField, Type: nodeType, Nullability: lattice.Nullable},
	}
}

func (e *env) int(name string) *value.Value {
	return e.f.Var(&value.Descriptor{Name: name, Kind: value.DescLocal, Type: lattice.IntType(32)}, nil)
}

func (e *env) bool(name string) *value.Value {
	return e.f.Var(&value.Descriptor{Name: name, Kind: value.DescLocal, Type: lattice.BoolType}, nil)
}

func (e *env) ref(name string) *value.Value {
	return e.f.Var(&value.Descriptor{Name: name, Kind: value.DescLocal, Type: nodeType, Nullability: lattice.Nullable}, nil)
}

func (e *env) field(q *value.Value) *value.Value { return e.f.Var(e.next, q) }

func (e *env) num(v int64) *value.Value { return e.f.Const(lattice.IntConst(v)) }

func (e *env) null() *value.Value { return e.f.Const(lattice.NullConst()) }

func TestUniteIsSound(t *testing.T) {
	e := newEnv()
	a, b, c := e.int("a"), e.int("b"), e.int("c")
	s := New(e.f)

	require.True(t, s.store.Unite(a, b))
	require.True(t, s.store.Unite(b, c))
	assert.Equal(t, RelEQ, s.Relation(a, b))
	assert.Equal(t, RelEQ, s.Relation(a, c))

	cp := s.Copy()
	assert.Equal(t, RelEQ, cp.Relation(c, a))

	m := Merge(s, cp, false)
	assert.Equal(t, RelEQ, m.Relation(a, b))
	assert.Equal(t, RelEQ, m.Relation(b, c))
	require.NoError(t, m.CheckInvariants())
}

func TestUniteRejectsRecordedDistinct(t *testing.T) {
	e := newEnv()
	a, b := e.int("a"), e.int("b")
	s := New(e.f)

	require.True(t, s.store.MarkDistinct(a, b, false))
	assert.False(t, s.store.Unite(a, b))
	assert.False(t, s.ApplyCondition(a, value.OpEq, b))
}

func TestOrderedRelationsStayAcyclic(t *testing.T) {
	e := newEnv()
	a, b, c := e.int("a"), e.int("b"), e.int("c")
	s := New(e.f)

	require.True(t, s.store.MarkDistinct(a, b, true))
	require.True(t, s.store.MarkDistinct(b, c, true))
	assert.Equal(t, RelLT, s.Relation(a, c), "order is transitive")

	before := s.String()
	assert.False(t, s.store.MarkDistinct(c, a, true), "closing a cycle must fail")
	assert.Equal(t, before, s.String(), "failed insertion leaves the store unchanged")
	assert.False(t, s.store.Unite(a, c))
	assert.Equal(t, before, s.String())
	assert.False(t, s.store.MarkDistinct(b, b, false))
	require.NoError(t, s.CheckInvariants())
}

func TestAssignThenCompare(t *testing.T) {
	// int a = 5; int b = a; assert a == b
	e := newEnv()
	a, b := e.int("a"), e.int("b")
	s := New(e.f)

	require.True(t, s.Assign(a, e.num(5)))
	require.True(t, s.Assign(b, a))
	assert.Equal(t, RelEQ, s.Relation(a, b))

	c, ok := s.Fact(b).Constant()
	require.True(t, ok)
	assert.Equal(t, lattice.IntConst(5), c)

	assert.True(t, s.Copy().ApplyCondition(a, value.OpEq, b))
	assert.False(t, s.Copy().ApplyCondition(a, value.OpNe, b), "a != b is refuted")
	assert.False(t, s.Copy().ApplyCondition(a, value.OpLt, b))
	require.NoError(t, s.CheckInvariants())
}

func TestAssignSelfReferencing(t *testing.T) {
	// i = 0; i = i + 1
	e := newEnv()
	i := e.int("i")
	s := New(e.f)

	require.True(t, s.Assign(i, e.num(0)))
	sum := e.f.Composite(value.OpAdd, i, e.num(1), 32)
	require.True(t, s.MeetFact(sum, lattice.FromConst(lattice.IntConst(1))))
	require.True(t, s.Assign(i, sum))

	c, ok := s.Fact(i).Constant()
	require.True(t, ok)
	assert.Equal(t, int64(1), c.Int)
	assert.NotEqual(t, RelEQ, s.Relation(i, sum), "the composite refers to the old i")
}

func TestNullBranches(t *testing.T) {
	e := newEnv()
	x := e.ref("x")
	s := New(e.f)

	isNull := s.Copy()
	require.True(t, isNull.ApplyCondition(x, value.OpEq, e.null()))
	assert.Equal(t, lattice.Null, isNull.Fact(x).Null)

	notNull := s.Copy()
	require.True(t, notNull.ApplyCondition(x, value.OpNe, e.null()))
	assert.Equal(t, lattice.NotNull, notNull.Fact(x).Null)
	assert.False(t, notNull.Copy().ApplyCondition(x, value.OpEq, e.null()))

	assert.Equal(t, lattice.Nullable, s.Fact(x).Null, "the original state is untouched")
}

func TestOrderedRangePropagation(t *testing.T) {
	e := newEnv()
	a, b := e.int("a"), e.int("b")
	s := New(e.f)

	require.True(t, s.ApplyCondition(a, value.OpLt, b))
	require.True(t, s.MeetFact(b, lattice.RangeFact(lattice.NewRange(0, 10))))
	assert.Equal(t, int64(9), s.Fact(a).Range.Hi)

	require.True(t, s.MeetFact(a, lattice.RangeFact(lattice.NewRange(5, 100))))
	assert.Equal(t, lattice.NewRange(6, 10), s.Fact(b).Range)
	assert.False(t, s.Copy().MeetFact(b, lattice.FromConst(lattice.IntConst(5))))
}

func TestConstantExcludedFromDistinctPartner(t *testing.T) {
	e := newEnv()
	x, y := e.int("x"), e.int("y")
	s := New(e.f)

	require.True(t, s.ApplyCondition(x, value.OpNe, y))
	require.True(t, s.MeetFact(y, lattice.RangeFact(lattice.NewRange(0, 1))))
	require.True(t, s.MeetFact(x, lattice.FromConst(lattice.IntConst(0))))
	c, ok := s.Fact(y).Constant()
	require.True(t, ok, "y lost its only other candidate")
	assert.Equal(t, int64(1), c.Int)
}

func TestFlushIsIdempotent(t *testing.T) {
	e := newEnv()
	a, b := e.ref("a"), e.ref("b")
	an, bn := e.field(a), e.field(b)
	s := New(e.f)

	require.True(t, s.MeetFact(an, lattice.NullFact(lattice.NotNull)))
	require.True(t, s.ApplyCondition(a, value.OpEq, b))
	assert.Equal(t, lattice.NotNull, s.Fact(bn).Null, "b.next resolves through a.next")

	s.Flush(a)
	once := s.String()
	s.Flush(a)
	assert.Equal(t, once, s.String())

	assert.Equal(t, RelUnknown, s.Relation(a, b))
	assert.Equal(t, lattice.NotNull, s.Fact(bn).Null, "b still refers to the old object")
	assert.Equal(t, lattice.Nullable, s.Fact(an).Null)
	require.NoError(t, s.CheckInvariants())
}

func TestFlushDropsDependents(t *testing.T) {
	e := newEnv()
	a := e.ref("a")
	an := e.field(a)
	ann := e.field(an)
	s := New(e.f)

	require.True(t, s.MeetFact(ann, lattice.NullFact(lattice.Null)))
	s.Flush(a)
	assert.False(t, s.store.Contains(an))
	assert.False(t, s.store.Contains(ann))
	assert.Equal(t, lattice.Nullable, s.Fact(ann).Null)
}

func TestStripForgetsDependentsOfUncoveredSubjects(t *testing.T) {
	// o.next.next = null; p = o
	e := newEnv()
	p, o := e.ref("p"), e.ref("o")
	s := New(e.f)

	require.True(t, s.MeetFact(e.field(e.field(o)), lattice.NullFact(lattice.Null)))
	require.True(t, s.Assign(p, o))
	require.Equal(t, RelEQ, s.Relation(p, o))
	require.Equal(t, lattice.Null, s.Fact(e.field(e.field(p))).Null)

	eq := packFact(FactEqual, int(p.ID()), int(o.ID()))

	bare := s.Strip(eq, nil)
	assert.Equal(t, RelUnknown, bare.Relation(p, o))
	assert.Equal(t, lattice.Nullable, bare.Fact(e.field(e.field(p))).Null)
	require.NoError(t, bare.CheckInvariants())

	kept := s.Strip(eq, map[value.ID]lattice.Fact{p.ID(): s.Fact(p), o.ID(): s.Fact(o)})
	assert.Equal(t, RelUnknown, kept.Relation(p, o))
	require.NoError(t, kept.CheckInvariants())

	assert.Equal(t, RelEQ, s.Relation(p, o), "the original state is untouched")
}

func TestQualifiersStayCanonical(t *testing.T) {
	e := newEnv()
	a, b, c := e.ref("a"), e.ref("b"), e.ref("c")
	an, bn, cn := e.field(a), e.field(b), e.field(c)
	s := New(e.f)

	require.True(t, s.MeetFact(bn, lattice.NullFact(lattice.NotNull)))
	require.True(t, s.MeetFact(cn, lattice.NullFact(lattice.NotNull)))
	require.True(t, s.MeetFact(e.field(bn), lattice.NullFact(lattice.Null)))

	require.True(t, s.ApplyCondition(c, value.OpEq, b))
	require.NoError(t, s.CheckInvariants())
	require.True(t, s.ApplyCondition(a, value.OpEq, c))
	require.NoError(t, s.CheckInvariants())

	assert.Equal(t, RelEQ, s.Relation(an, cn))
	assert.Equal(t, lattice.Null, s.Fact(e.field(an)).Null, "a.next.next was recorded as b.next.next")

	s.Flush(a)
	require.NoError(t, s.CheckInvariants())
	s.Flush(b)
	require.NoError(t, s.CheckInvariants())
	assert.Equal(t, lattice.Null, s.Fact(e.field(cn)).Null)
}

func TestUniteFailsOnContradictingFields(t *testing.T) {
	e := newEnv()
	a, b := e.ref("a"), e.ref("b")
	s := New(e.f)

	require.True(t, s.MeetFact(e.field(a), lattice.NullFact(lattice.Null)))
	require.True(t, s.MeetFact(e.field(b), lattice.NullFact(lattice.NotNull)))
	assert.False(t, s.ApplyCondition(a, value.OpEq, b))
}

func TestMergeIsSuperState(t *testing.T) {
	e := newEnv()
	x, a, b, y := e.int("x"), e.int("a"), e.int("b"), e.ref("y")

	s1 := New(e.f)
	require.True(t, s1.ApplyCondition(x, value.OpEq, e.num(5)))
	require.True(t, s1.ApplyCondition(a, value.OpLt, b))
	require.True(t, s1.ApplyCondition(y, value.OpNe, e.null()))

	s2 := New(e.f)
	require.True(t, s2.ApplyCondition(x, value.OpEq, e.num(6)))
	require.True(t, s2.ApplyCondition(b, value.OpLt, a))

	require.Equal(t, s1.Key(), s2.Key())
	m := Merge(s1, s2, false)
	require.NoError(t, m.CheckInvariants())

	assert.True(t, m.IsSuperStateOf(s1))
	assert.True(t, m.IsSuperStateOf(s2))
	assert.False(t, s1.IsSuperStateOf(m))

	assert.Equal(t, lattice.NewRange(5, 6), m.Fact(x).Range)
	assert.Equal(t, RelNE, m.Relation(a, b), "disagreeing order becomes inequality")
	assert.Equal(t, lattice.Nullable, m.Fact(y).Null)
}

func TestMergeStacks(t *testing.T) {
	e := newEnv()
	a, b := e.int("a"), e.int("b")

	s1 := New(e.f)
	s1.Push(a)
	s2 := New(e.f)
	s2.Push(b)
	require.Equal(t, s1.Key(), s2.Key())

	m := Merge(s1, s2, false)
	top, ok := m.Peek(0)
	require.True(t, ok)
	assert.Same(t, e.f.Temp(0), top)
	assert.True(t, m.IsSuperStateOf(s1))
	assert.True(t, m.IsSuperStateOf(s2))
}

func TestMergeWidens(t *testing.T) {
	e := newEnv()
	i := e.int("i")

	old := New(e.f)
	require.True(t, old.MeetFact(i, lattice.RangeFact(lattice.NewRange(0, 1))))
	next := New(e.f)
	require.True(t, next.MeetFact(i, lattice.RangeFact(lattice.NewRange(0, 2))))

	w := Merge(old, next, true)
	r := w.Fact(i).Range
	assert.Equal(t, int64(0), r.Lo)
	assert.Equal(t, int64(1<<31-1), w.Fact(i).Meet(i.Inherent()).Range.Hi)
	assert.True(t, w.IsSuperStateOf(next))
}

func TestClosureState(t *testing.T) {
	e := newEnv()
	obj := e.ref("obj")
	stable := e.f.Var(&value.Descriptor{Name: "id", Kind: value.DescField, Type: lattice.IntType(64), Stable: true}, obj)
	s := New(e.f)

	local := lattice.NullFact(lattice.NotNull)
	local.Local = true
	require.True(t, s.MeetFact(obj, local))
	require.True(t, s.MeetFact(e.field(obj), lattice.NullFact(lattice.NotNull)))
	require.True(t, s.MeetFact(stable, lattice.FromConst(lattice.IntConst(7))))
	s.Push(obj)

	c := s.ClosureState()
	assert.Equal(t, 0, c.StackDepth())
	assert.False(t, c.Fact(obj).Local)
	assert.Equal(t, lattice.NotNull, c.Fact(obj).Null)
	assert.Equal(t, lattice.Nullable, c.Fact(e.field(obj)).Null, "mutable fields may change before the closure runs")
	_, isConst := c.Fact(stable).Constant()
	assert.True(t, isConst)
	assert.True(t, s.Fact(obj).Local, "the parent state is untouched")
}

func TestPopEmptyStackPanics(t *testing.T) {
	s := New(value.NewFactory())
	assert.PanicsWithError(t, "state invariant violated: pop from empty stack", func() { s.Pop() })
}

func TestKey(t *testing.T) {
	e := newEnv()
	s := New(e.f)
	s.Push(e.f.Const(lattice.TokenConst(12)))
	s.Push(e.num(3))
	assert.Equal(t, "false/2/0:12/=3 NotNull", s.Key())
	s.MarkEphemeral()
	assert.Contains(t, s.Key(), "true/2")
}
