package program

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/dfa/internal/analysis/instr"
	"github.com/gnolang/dfa/internal/analysis/lattice"
	"github.com/gnolang/dfa/internal/analysis/value"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	file, err := Load(filepath.Join("testdata", "list.dfa"))
	require.NoError(t, err)
	require.Len(t, file.Functions, 2)

	length, ok := file.Function("length")
	require.True(t, ok)
	assert.Equal(t, 21, length.Len())
	require.Len(t, length.Params, 1)
	assert.Equal(t, lattice.Nullable, length.Params[0].Nullability)
	assert.Equal(t, value.DescParam, length.Params[0].Kind)

	assert.Equal(t, instr.CondGoto{Target: 20}, length.At(9))
	assert.Equal(t, instr.Goto{Target: 6}, length.At(19))
	assert.Equal(t, instr.Binary{Op: value.OpAdd, Width: 32}, length.At(13))

	pos := length.Position(6)
	assert.Equal(t, filepath.Join("testdata", "list.dfa"), pos.Filename)
	assert.Equal(t, 27, pos.Line)

	first, ok := file.Function("first")
	require.True(t, ok)
	require.Len(t, first.Closures, 1)
	assert.Equal(t, "reader", first.Closures[0].Name)
	load, ok := first.At(2).(instr.PushField)
	require.True(t, ok)
	assert.Equal(t, 5, load.Handler)
	assert.True(t, load.Field.Type.Primitive())

	m, ok := file.Model.Method("requireNonNull")
	require.True(t, ok)
	assert.True(t, m.Pure)
	assert.Equal(t, lattice.NotNull, m.Null)
	require.Len(t, m.Contracts, 2)
	assert.Equal(t, instr.ReturnFail, m.Contracts[0].Return)

	sub, known := file.Model.IsSubtype("Sentinel", "Node")
	assert.True(t, sub)
	assert.True(t, known)
}

func TestThisIsNeverNull(t *testing.T) {
	t.Parallel()

	file, err := Parse("this.dfa", []byte(`
functions:
  - name: self
    this: Node
    code:
      - push this
      - pop
      - return
`))
	require.NoError(t, err)
	push, ok := file.Functions[0].At(0).(instr.PushVar)
	require.True(t, ok)
	want := value.Descriptor{
		Name:        "this",
		Kind:        value.DescThis,
		Type:        lattice.Type{Name: "Node", Kind: lattice.KindRef},
		Nullability: lattice.NotNull,
		Stable:      true,
	}
	if diff := cmp.Diff(want, *push.Var); diff != "" {
		t.Errorf("this descriptor mismatch (-want +got):\n%s", diff)
	}
}

func TestInstructionSyntax(t *testing.T) {
	t.Parallel()

	file, err := Parse("syntax.dfa", []byte(`
fields:
  items: {type: "int32[]"}
functions:
  - name: all
    params:
      - {name: o, type: Object, null: notnull}
      - {name: i, type: int32}
    code:
      - push o
      - cast Holder catch h
      - field items
      - push i
      - aload int32 catch h
      - pop
      - push "a b"
      - pop
      - push -3
      - pop
      - push ?
      - pop
      - push o
      - instanceof Holder
      - pop
      - token h
      - jumptoken
      - "h: new Holder"
      - call close/0 this void
      - flush o, i
      - throw
`))
	require.NoError(t, err)
	p := file.Functions[0]
	want := []string{
		"push o",
		"cast Holder catch 17",
		"field items",
		"push i",
		"aload catch 17",
		"pop",
		`push "a b"`,
		"pop",
		"push -3",
		"pop",
		"push ?",
		"pop",
		"push o",
		"instanceof Holder",
		"pop",
		"token 17",
		"jump token",
		"new Holder",
		"call close/0 on qualifier",
		"flush o, i",
		"throw",
	}
	got := make([]string, p.Len())
	for pc := range p.Len() {
		got[pc] = p.At(pc).String()
	}
	assert.Equal(t, want, got)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{
			name: "not yaml",
			src:  "functions: [",
			msg:  "invalid program",
		},
		{
			name: "no functions",
			src:  "fields: {}",
			msg:  "no functions",
		},
		{
			name: "unknown variable",
			src: `
functions:
  - name: f
    code: [push y, pop, return]`,
			msg: "unknown variable y",
		},
		{
			name: "unknown label",
			src: `
functions:
  - name: f
    code: [goto nowhere]`,
			msg: "unknown label nowhere",
		},
		{
			name: "unknown instruction",
			src: `
functions:
  - name: f
    code: [frobnicate]`,
			msg: "unknown instruction frobnicate",
		},
		{
			name: "stack underflow",
			src: `
functions:
  - name: f
    code: [pop, return]`,
			msg: "stack underflow",
		},
		{
			name: "bad contract",
			src: `
methods:
  m: {contracts: "null -> maybe"}
functions:
  - name: f
    code: [return]`,
			msg: "unknown contract return",
		},
		{
			name: "duplicate function",
			src: `
functions:
  - name: f
    code: [return]
  - name: f
    code: [return]`,
			msg: "duplicate function f",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse("bad.dfa", []byte(tt.src))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidProgram)
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestErrorPosition(t *testing.T) {
	t.Parallel()

	_, err := Parse("pos.dfa", []byte(`functions:
  - name: f
    code:
      - return
      - push nope
`))
	assert.ErrorContains(t, err, "pos.dfa:5:9: unknown variable nope")
}

func TestParseType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want lattice.Type
		err  bool
	}{
		{in: "", want: lattice.AnyType},
		{in: "int", want: lattice.IntType(64)},
		{in: "int32", want: lattice.IntType(32)},
		{in: "bool", want: lattice.BoolType},
		{in: "Node", want: lattice.Type{Name: "Node", Kind: lattice.KindRef}},
		{in: "Node[]", want: lattice.Type{Name: "Node[]", Kind: lattice.KindArray}},
		{in: "[]", err: true},
		{in: "a b", err: true},
	}
	for _, tt := range tests {
		got, err := parseType(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
