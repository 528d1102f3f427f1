// Package rat implements exact rational arithmetic for symbolic circuit
// coefficients. Every value is kept in canonical form: denominator positive,
// gcd(|num|, den) == 1. Overflow is never silent — operations that would
// overflow the internal widened computation report ok=false together with a
// saturating approximation, instead of corrupting the result.
package rat

import "math/bits"

// Rational is an exact fraction Num/Den, always stored reduced with Den > 0.
type Rational struct {
	Num int64
	Den int64
}

// Zero is the additive identity.
var Zero = Rational{Num: 0, Den: 1}

// One is the multiplicative identity.
var One = Rational{Num: 1, Den: 1}

// New builds a reduced rational from an integer numerator/denominator pair.
// den must be non-zero.
func New(num, den int64) Rational {
	return reduce(num, den)
}

// FromInt builds a rational equal to n/1.
func FromInt(n int64) Rational {
	return Rational{Num: n, Den: 1}
}

func reduce(num, den int64) Rational {
	if den < 0 {
		num, den = -num, -den
	}
	if num == 0 {
		return Rational{Num: 0, Den: 1}
	}
	g := gcdInt(abs64(num), den)
	if g == 0 {
		g = 1
	}
	return Rational{Num: num / g, Den: den / g}
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func gcdInt(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Sign returns -1, 0, or 1 according to the sign of the numerator.
// The sign of a zero-valued Rational is unspecified; Sign(0) happens to
// return 0 here, but callers must not rely on it.
func (r Rational) Sign() int {
	switch {
	case r.Num > 0:
		return 1
	case r.Num < 0:
		return -1
	default:
		return 0
	}
}

// Equal reports whether two rationals denote the same value. Both are
// assumed to already be in canonical form, so this is a plain field
// comparison.
func (r Rational) Equal(o Rational) bool {
	return r.Num == o.Num && r.Den == o.Den
}

// IsZero reports whether r is the zero value.
func (r Rational) IsZero() bool {
	return r.Num == 0
}

// Neg returns -r.
func (r Rational) Neg() Rational {
	return Rational{Num: -r.Num, Den: r.Den}
}

// Reciprocal returns 1/r. The caller must ensure r.Num != 0.
func (r Rational) Reciprocal() Rational {
	return reduce(r.Den, r.Num)
}

// Mul returns the reduced product a*b, widening the intermediate products
// to 128 bits via bits.Mul64 to detect overflow. On overflow ok is false
// and the returned value is a saturating approximation obtained by
// repeatedly halving both operands (with gcd reduction after each shift)
// until the widened product fits, per the overflow-handling contract.
func Mul(a, b Rational) (Rational, bool) {
	if num, ok1 := mul64(a.Num, b.Num); ok1 {
		if den, ok2 := mul64(a.Den, b.Den); ok2 {
			return reduce(num, den), true
		}
	}
	return approximate(a, b, mulOnce)
}

// Div returns a/b. The caller must ensure b.Num != 0.
func Div(a, b Rational) (Rational, bool) {
	return Mul(a, b.Reciprocal())
}

// Add returns the reduced sum a+b.
func Add(a, b Rational) (Rational, bool) {
	if v, ok := addOnce(a, b); ok {
		return v, true
	}
	return approximate(a, b, addOnce)
}

func mulOnce(a, b Rational) (Rational, bool) {
	num, ok1 := mul64(a.Num, b.Num)
	den, ok2 := mul64(a.Den, b.Den)
	if !ok1 || !ok2 {
		return Rational{}, false
	}
	return reduce(num, den), true
}

func addOnce(a, b Rational) (Rational, bool) {
	den, okd := mul64(a.Den, b.Den)
	if !okd {
		return Rational{}, false
	}
	t1, ok1 := mul64(a.Num, b.Den)
	t2, ok2 := mul64(b.Num, a.Den)
	if !ok1 || !ok2 {
		return Rational{}, false
	}
	num, okn := add64(t1, t2)
	if !okn {
		return Rational{}, false
	}
	return reduce(num, den), true
}

// Sub returns the reduced difference a-b.
func Sub(a, b Rational) (Rational, bool) {
	return Add(a, b.Neg())
}

// mul64 multiplies two signed 64-bit integers, reporting whether the exact
// product fits in an int64 (checked via the unsigned high/low halves from
// bits.Mul64).
func mul64(a, b int64) (int64, bool) {
	neg := (a < 0) != (b < 0)
	ua, ub := uabs(a), uabs(b)
	hi, lo := bits.Mul64(ua, ub)
	if hi != 0 {
		return 0, false
	}
	if neg {
		if lo > 1<<63 {
			return 0, false
		}
		return -int64(lo), true
	}
	if lo >= 1<<63 {
		return 0, false
	}
	return int64(lo), true
}

func add64(a, b int64) (int64, bool) {
	s := a + b
	if (a > 0 && b > 0 && s < 0) || (a < 0 && b < 0 && s > 0) {
		return 0, false
	}
	return s, true
}

func uabs(n int64) uint64 {
	if n < 0 {
		return uint64(-n)
	}
	return uint64(n)
}

// approximate recovers from overflow by repeatedly right-shifting both
// operands (with gcd reduction after each shift) until the retried op
// fits. Trades exactness for a close approximation rather than
// propagating garbage.
func approximate(a, b Rational, op func(Rational, Rational) (Rational, bool)) (Rational, bool) {
	for shifts := 0; shifts < 62; shifts++ {
		a = shiftReduce(a)
		b = shiftReduce(b)
		if v, ok := op(a, b); ok {
			return v, false // a close approximation, never exact: caller sees ok=false
		}
	}
	// Degenerate: even after extensive shifting the op still overflows.
	// Return the best-effort shifted values rather than looping forever.
	return a, false
}

func shiftReduce(r Rational) Rational {
	num := r.Num >> 1
	den := r.Den >> 1
	if den == 0 {
		den = 1
	}
	return reduce(num, den)
}

// Status accumulates ok flags across a sequence of operations, for call
// sites that want sticky-error ergonomics without a package global. The
// zero value is ready to use.
type Status struct {
	failed bool
}

// Track records the outcome of one operation and passes the value
// through, so calls compose directly: s.Track(Mul(a, b)).
func (s *Status) Track(v Rational, ok bool) Rational {
	if !ok {
		s.failed = true
	}
	return v
}

// Failed reports whether any tracked operation overflowed since the last
// Reset.
func (s *Status) Failed() bool { return s.failed }

// Reset clears the accumulator for the next logical operation.
func (s *Status) Reset() { s.failed = false }

// GCD returns the rational gcd: the gcd of the numerators over the lcm of
// the denominators, reduced. Both a and b must be non-zero.
func GCD(a, b Rational) Rational {
	num := gcdInt(abs64(a.Num), abs64(b.Num))
	den := lcmInt(a.Den, b.Den)
	return reduce(num, den)
}

// LCM returns the rational lcm of a and b. The numerator is always
// non-negative, and LCM(0,0) == 0.
func LCM(a, b Rational) Rational {
	if a.Num == 0 && b.Num == 0 {
		return Zero
	}
	num := lcmInt(abs64(a.Num), abs64(b.Num))
	den := gcdInt(a.Den, b.Den)
	if den == 0 {
		den = 1
	}
	return reduce(num, den)
}

func lcmInt(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	g := gcdInt(a, b)
	return abs64(a / g * b)
}
