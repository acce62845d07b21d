package lattice

import (
	"fmt"
	"strconv"
)

// ConstKind identifies the payload of a Const.
type ConstKind uint8

const (
	ConstNone ConstKind = iota
	ConstInt
	ConstBool
	ConstString
	ConstNull
	// ConstToken is a pending control transfer (for example the resume
	// point of a finally block). Int holds the target instruction index.
	ConstToken
)

func (k ConstKind) String() string {
	switch k {
	case ConstNone:
		return "none"
	case ConstInt:
		return "int"
	case ConstBool:
		return "bool"
	case ConstString:
		return "string"
	case ConstNull:
		return "null"
	case ConstToken:
		return "token"
	default:
		return "?"
	}
}

// Const is a comparable constant payload. Booleans are stored in Int as 0/1.
type Const struct {
	Kind ConstKind
	Int  int64
	Str  string
}

func IntConst(v int64) Const { return Const{Kind: ConstInt, Int: v} }

func BoolConst(b bool) Const {
	if b {
		return Const{Kind: ConstBool, Int: 1}
	}
	return Const{Kind: ConstBool}
}

func StringConst(s string) Const { return Const{Kind: ConstString, Str: s} }

func NullConst() Const { return Const{Kind: ConstNull} }

func TokenConst(target int) Const { return Const{Kind: ConstToken, Int: int64(target)} }

// IsSet reports whether c carries a value.
func (c Const) IsSet() bool { return c.Kind != ConstNone }

// Bool returns the boolean payload. Only meaningful for ConstBool.
func (c Const) Bool() bool { return c.Int != 0 }

// Numeric reports whether the constant participates in range reasoning.
func (c Const) Numeric() bool { return c.Kind == ConstInt || c.Kind == ConstBool }

// Same reports whether c and o denote the same runtime value. Numeric
// constants compare by payload, so true is the same as 1.
func (c Const) Same(o Const) bool {
	if c.Numeric() && o.Numeric() {
		return c.Int == o.Int
	}
	return c == o
}

func (c Const) String() string {
	switch c.Kind {
	case ConstInt:
		return strconv.FormatInt(c.Int, 10)
	case ConstBool:
		return strconv.FormatBool(c.Bool())
	case ConstString:
		return strconv.Quote(c.Str)
	case ConstNull:
		return "null"
	case ConstToken:
		return fmt.Sprintf("token(%d)", c.Int)
	default:
		return "<none>"
	}
}
