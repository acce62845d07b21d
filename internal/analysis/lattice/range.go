package lattice

import (
	"fmt"
	"math"
	"math/bits"
)

// Range is a closed interval of signed integers. A range with Lo > Hi is empty.
// Arithmetic follows fixed-width two's complement wraparound: whenever an
// interval result does not fit the width it degrades to the full range.
type Range struct {
	Lo, Hi int64
}

// NewRange returns [lo, hi].
func NewRange(lo, hi int64) Range { return Range{Lo: lo, Hi: hi} }

// Point returns [v, v].
func Point(v int64) Range { return Range{Lo: v, Hi: v} }

// EmptyRange returns the bottom element.
func EmptyRange() Range { return Range{Lo: 1, Hi: 0} }

// FullRange returns every value representable with the given width.
func FullRange(width int) Range {
	return Range{Lo: minOf(width), Hi: maxOf(width)}
}

func minOf(width int) int64 {
	if width == 32 {
		return math.MinInt32
	}
	return math.MinInt64
}

func maxOf(width int) int64 {
	if width == 32 {
		return math.MaxInt32
	}
	return math.MaxInt64
}

func wrap(v int64, width int) int64 {
	if width == 32 {
		return int64(int32(v))
	}
	return v
}

func (r Range) IsEmpty() bool { return r.Lo > r.Hi }

// IsFull reports whether r spans the whole 64-bit domain.
func (r Range) IsFull() bool { return r.Lo == math.MinInt64 && r.Hi == math.MaxInt64 }

// IsPoint reports whether r holds exactly one value.
func (r Range) IsPoint() bool { return r.Lo == r.Hi }

func (r Range) Contains(v int64) bool { return r.Lo <= v && v <= r.Hi }

// ContainsRange reports whether every value of o is in r.
func (r Range) ContainsRange(o Range) bool {
	if o.IsEmpty() {
		return true
	}
	return !r.IsEmpty() && r.Lo <= o.Lo && o.Hi <= r.Hi
}

func (r Range) Intersect(o Range) Range {
	if r.IsEmpty() || o.IsEmpty() {
		return EmptyRange()
	}
	return Range{Lo: max(r.Lo, o.Lo), Hi: min(r.Hi, o.Hi)}
}

// Union returns the convex hull of r and o.
func (r Range) Union(o Range) Range {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	return Range{Lo: min(r.Lo, o.Lo), Hi: max(r.Hi, o.Hi)}
}

// Widen extrapolates growing bounds of next relative to r to infinity.
func (r Range) Widen(next Range) Range {
	if r.IsEmpty() {
		return next
	}
	if next.IsEmpty() {
		return r
	}
	res := r.Union(next)
	if next.Lo < r.Lo {
		res.Lo = math.MinInt64
	}
	if next.Hi > r.Hi {
		res.Hi = math.MaxInt64
	}
	return res
}

// Without removes v when it lies on a boundary; interior points cannot be
// expressed by a single interval and are kept.
func (r Range) Without(v int64) Range {
	if r.IsEmpty() {
		return r
	}
	switch {
	case r.Lo == v && r.Hi == v:
		return EmptyRange()
	case r.Lo == v:
		return Range{Lo: v + 1, Hi: r.Hi}
	case r.Hi == v:
		return Range{Lo: r.Lo, Hi: v - 1}
	}
	return r
}

// Less returns the values of r that are strictly less than some value of o.
func (r Range) Less(o Range) Range {
	if o.IsEmpty() || o.Hi == math.MinInt64 {
		return EmptyRange()
	}
	return r.Intersect(Range{Lo: math.MinInt64, Hi: o.Hi - 1})
}

// LessOrEqual returns the values of r that are at most some value of o.
func (r Range) LessOrEqual(o Range) Range {
	if o.IsEmpty() {
		return EmptyRange()
	}
	return r.Intersect(Range{Lo: math.MinInt64, Hi: o.Hi})
}

// Greater returns the values of r that are strictly greater than some value of o.
func (r Range) Greater(o Range) Range {
	if o.IsEmpty() || o.Lo == math.MaxInt64 {
		return EmptyRange()
	}
	return r.Intersect(Range{Lo: o.Lo + 1, Hi: math.MaxInt64})
}

// GreaterOrEqual returns the values of r that are at least some value of o.
func (r Range) GreaterOrEqual(o Range) Range {
	if o.IsEmpty() {
		return EmptyRange()
	}
	return r.Intersect(Range{Lo: o.Lo, Hi: math.MaxInt64})
}

func (r Range) String() string {
	if r.IsEmpty() {
		return "{}"
	}
	if r.IsPoint() {
		return fmt.Sprintf("{%d}", r.Lo)
	}
	lo, hi := fmt.Sprint(r.Lo), fmt.Sprint(r.Hi)
	if r.Lo == math.MinInt64 {
		lo = "-inf"
	}
	if r.Hi == math.MaxInt64 {
		hi = "+inf"
	}
	return "[" + lo + ", " + hi + "]"
}

// fit maps an exact result interval to the given width. ok reports that no
// intermediate computation overflowed 64 bits.
func fit(lo, hi int64, ok bool, width int) Range {
	if !ok || lo < minOf(width) || hi > maxOf(width) {
		return FullRange(width)
	}
	return Range{Lo: lo, Hi: hi}
}

func addOv(a, b int64) (int64, bool) {
	s := a + b
	return s, (s > a) == (b > 0)
}

func subOv(a, b int64) (int64, bool) {
	d := a - b
	return d, (d < a) == (b > 0)
}

func mulOv(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return p, false
	}
	return p, p/b == a
}

// Add returns the set of r + o at the given width.
func (r Range) Add(o Range, width int) Range {
	if r.IsEmpty() || o.IsEmpty() {
		return EmptyRange()
	}
	if r.IsPoint() && o.IsPoint() {
		return Point(wrap(int64(uint64(r.Lo)+uint64(o.Lo)), width))
	}
	lo, ok1 := addOv(r.Lo, o.Lo)
	hi, ok2 := addOv(r.Hi, o.Hi)
	return fit(lo, hi, ok1 && ok2, width)
}

// Sub returns the set of r - o at the given width.
func (r Range) Sub(o Range, width int) Range {
	if r.IsEmpty() || o.IsEmpty() {
		return EmptyRange()
	}
	if r.IsPoint() && o.IsPoint() {
		return Point(wrap(int64(uint64(r.Lo)-uint64(o.Lo)), width))
	}
	lo, ok1 := subOv(r.Lo, o.Hi)
	hi, ok2 := subOv(r.Hi, o.Lo)
	return fit(lo, hi, ok1 && ok2, width)
}

// Mul returns the set of r * o at the given width.
func (r Range) Mul(o Range, width int) Range {
	if r.IsEmpty() || o.IsEmpty() {
		return EmptyRange()
	}
	if r.IsPoint() && o.IsPoint() {
		return Point(wrap(int64(uint64(r.Lo)*uint64(o.Lo)), width))
	}
	corners := [4][2]int64{{r.Lo, o.Lo}, {r.Lo, o.Hi}, {r.Hi, o.Lo}, {r.Hi, o.Hi}}
	lo, hi := int64(math.MaxInt64), int64(math.MinInt64)
	for _, c := range corners {
		p, ok := mulOv(c[0], c[1])
		if !ok {
			return FullRange(width)
		}
		lo, hi = min(lo, p), max(hi, p)
	}
	return fit(lo, hi, true, width)
}

// Neg returns the set of -r at the given width.
func (r Range) Neg(width int) Range {
	return Point(0).Sub(r, width)
}

// Div returns the set of r / o (truncated). Zero divisors are excluded; a
// divisor that can only be zero yields the empty range.
func (r Range) Div(o Range, width int) Range {
	if r.IsEmpty() || o.IsEmpty() {
		return EmptyRange()
	}
	var parts []Range
	if o.Lo < 0 {
		parts = append(parts, Range{Lo: o.Lo, Hi: min(o.Hi, -1)})
	}
	if o.Hi > 0 {
		parts = append(parts, Range{Lo: max(o.Lo, 1), Hi: o.Hi})
	}
	res := EmptyRange()
	for _, d := range parts {
		res = res.Union(divSameSign(r, d, width))
	}
	return res
}

func divSameSign(r, d Range, width int) Range {
	lo, hi := int64(math.MaxInt64), int64(math.MinInt64)
	for _, a := range [2]int64{r.Lo, r.Hi} {
		for _, b := range [2]int64{d.Lo, d.Hi} {
			if b == -1 && a == minOf(width) {
				// MinInt / -1 wraps to MinInt.
				return FullRange(width)
			}
			q := a / b
			lo, hi = min(lo, q), max(hi, q)
		}
	}
	if r.IsPoint() && d.IsPoint() {
		return Point(wrap(lo, width))
	}
	return fit(lo, hi, true, width)
}

// Rem returns the set of r % o. The sign of the result follows the dividend.
func (r Range) Rem(o Range, width int) Range {
	if r.IsEmpty() || o.IsEmpty() || (o.Lo == 0 && o.Hi == 0) {
		return EmptyRange()
	}
	if r.IsPoint() && o.IsPoint() {
		if o.Lo == -1 {
			return Point(0)
		}
		return Point(r.Lo % o.Lo)
	}
	bound := absCap(o.Lo)
	if b := absCap(o.Hi); b > bound {
		bound = b
	}
	// |MinInt64| saturates, and MaxInt64 % MinInt64 is MaxInt64.
	if o.Lo != math.MinInt64 {
		bound--
	}
	switch {
	case r.Lo >= 0:
		return Range{Lo: 0, Hi: min(r.Hi, bound)}
	case r.Hi <= 0:
		return Range{Lo: max(r.Lo, -bound), Hi: 0}
	}
	return Range{Lo: -bound, Hi: bound}.Intersect(FullRange(width))
}

func absCap(v int64) int64 {
	if v == math.MinInt64 {
		return math.MaxInt64
	}
	if v < 0 {
		return -v
	}
	return v
}

// And returns a sound bound for r & o.
func (r Range) And(o Range, width int) Range {
	if r.IsEmpty() || o.IsEmpty() {
		return EmptyRange()
	}
	if r.IsPoint() && o.IsPoint() {
		return Point(r.Lo & o.Lo)
	}
	if r.Lo >= 0 && o.Lo >= 0 {
		return Range{Lo: 0, Hi: min(r.Hi, o.Hi)}
	}
	if r.Lo >= 0 {
		return Range{Lo: 0, Hi: r.Hi}
	}
	if o.Lo >= 0 {
		return Range{Lo: 0, Hi: o.Hi}
	}
	return FullRange(width)
}

// Or returns a sound bound for r | o and, with xor set, r ^ o.
func (r Range) Or(o Range, width int, xor bool) Range {
	if r.IsEmpty() || o.IsEmpty() {
		return EmptyRange()
	}
	if r.IsPoint() && o.IsPoint() {
		if xor {
			return Point(r.Lo ^ o.Lo)
		}
		return Point(r.Lo | o.Lo)
	}
	if r.Lo >= 0 && o.Lo >= 0 {
		n := bits.Len64(uint64(max(r.Hi, o.Hi)))
		hi := int64(1)<<uint(n) - 1
		if n >= 63 {
			hi = math.MaxInt64
		}
		return fit(0, hi, true, width)
	}
	return FullRange(width)
}

// Shl returns r << o.
func (r Range) Shl(o Range, width int) Range {
	if r.IsEmpty() || o.IsEmpty() {
		return EmptyRange()
	}
	if r.IsPoint() && o.IsPoint() {
		return Point(wrap(r.Lo<<uint(o.Lo&int64(width-1)), width))
	}
	return FullRange(width)
}

// Shr returns r >> o (arithmetic shift).
func (r Range) Shr(o Range, width int) Range {
	if r.IsEmpty() || o.IsEmpty() {
		return EmptyRange()
	}
	if o.IsPoint() {
		s := uint(o.Lo & int64(width-1))
		return Range{Lo: r.Lo >> s, Hi: r.Hi >> s}
	}
	if r.Lo >= 0 {
		return Range{Lo: 0, Hi: r.Hi}
	}
	return FullRange(width)
}
