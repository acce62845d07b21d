package lattice

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactMeet(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		a, b   Fact
		bottom bool
		check  func(t *testing.T, f Fact)
	}{
		{
			name: "null meets notnull",
			a:    NullFact(Null),
			b:    NullFact(NotNull),
			bottom: true,
		},
		{
			name: "different constants",
			a:    FromConst(IntConst(1)),
			b:    FromConst(IntConst(2)),
			bottom: true,
		},
		{
			name: "constant outside range",
			a:    FromConst(IntConst(10)),
			b:    RangeFact(NewRange(0, 5)),
			bottom: true,
		},
		{
			name: "null fact becomes null constant",
			a:    NullFact(Nullable),
			b:    NullFact(Null),
			check: func(t *testing.T, f Fact) {
				c, ok := f.Constant()
				require.True(t, ok)
				assert.Equal(t, ConstNull, c.Kind)
			},
		},
		{
			name: "ranges intersect",
			a:    RangeFact(NewRange(0, 10)),
			b:    RangeFact(NewRange(5, 20)),
			check: func(t *testing.T, f Fact) {
				assert.Equal(t, NewRange(5, 10), f.Range)
			},
		},
		{
			name: "locality is kept",
			a:    Fact{Null: NotNull, Range: FullRange(64), Local: true},
			b:    Unknown(),
			check: func(t *testing.T, f Fact) {
				assert.True(t, f.Local)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a.Meet(tt.b)
			assert.Equal(t, tt.bottom, got.IsBottom())
			assert.True(t, got.Equal(tt.b.Meet(tt.a)), "meet must be commutative")
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestFactMeetAssociative(t *testing.T) {
	facts := []Fact{
		Unknown(),
		NullFact(Nullable),
		NullFact(NotNull),
		RangeFact(NewRange(-5, 5)),
		RangeFact(NewRange(0, 100)),
		FromConst(IntConst(3)),
		TypeFact(TypeConstraint{InstanceOf: []string{"A"}}),
	}
	for _, a := range facts {
		for _, b := range facts {
			for _, c := range facts {
				left := a.Meet(b).Meet(c)
				right := a.Meet(b.Meet(c))
				assert.True(t, left.Equal(right), "%s ∧ %s ∧ %s", a, b, c)
			}
		}
	}
}

func TestFactJoinIncludes(t *testing.T) {
	a := FromConst(IntConst(1))
	b := FromConst(IntConst(3))
	j := a.Join(b)

	_, isConst := j.Constant()
	assert.False(t, isConst)
	assert.Equal(t, NewRange(1, 3), j.Range)
	assert.True(t, j.Includes(a))
	assert.True(t, j.Includes(b))
	assert.False(t, a.Includes(j))
	assert.True(t, a.Includes(Bottom()))
	assert.True(t, Unknown().Includes(j))

	n := NullFact(Null).Join(NullFact(NotNull))
	assert.Equal(t, Nullable, n.Null)
}

func TestFactWiden(t *testing.T) {
	old := RangeFact(NewRange(0, 2))
	next := FromConst(IntConst(3))
	w := old.Widen(next)
	assert.Equal(t, int64(0), w.Range.Lo)
	assert.True(t, w.Range.Hi > 1<<40)
	assert.False(t, w.Const.IsSet())
}

func TestFactExclude(t *testing.T) {
	assert.Equal(t, NotNull, NullFact(Nullable).Exclude(NullConst()).Null)
	assert.True(t, FromConst(IntConst(4)).Exclude(IntConst(4)).IsBottom())
	assert.Equal(t, NewRange(1, 9), RangeFact(NewRange(0, 9)).Exclude(IntConst(0)).Range)

	flag := RangeFact(NewRange(0, 1)).Exclude(BoolConst(true))
	if diff := cmp.Diff(Point(0), flag.Range); diff != "" {
		t.Errorf("excluding true (-want +got):\n%s", diff)
	}
}

func TestFactString(t *testing.T) {
	assert.Equal(t, "⊤", Unknown().String())
	assert.Equal(t, "⊥", Bottom().String())
	assert.Equal(t, "=5 NotNull", FromConst(IntConst(5)).String())
}
