// Package freq implements the frequency-domain transform: it substitutes
// every device-constant bit in an algebraic coefficient with
// its Laplace-domain admittance form, inlines device-to-device relation
// chains, and normalizes the resulting expression.
package freq

import (
	"fmt"

	"github.com/oisee/symcirc/pkg/circuit"
	"github.com/oisee/symcirc/pkg/coef"
	"github.com/oisee/symcirc/pkg/rat"
	"github.com/oisee/symcirc/pkg/symtab"
)

// maxBits bounds the per-constant exponent array to the same width as
// coef.MaxConstants.
const maxBits = coef.MaxConstants

// Addend is one frequency-domain summand: a rational factor times s^PowerS
// times each device constant raised to Powers[bit].
// Represented as a fixed array rather than coef's linked arena —
// no pool is needed here since an Expr is built once, during the final
// transform pass, and never shares storage across circuit runs the way the
// LES's coefficient matrix does.
type Addend struct {
	Factor rat.Rational
	PowerS int
	Powers [maxBits]int
}

// less orders addends descending by power of s, then by each
// device-constant power scanning from the highest bit index down.
func less(a, b Addend) bool {
	if a.PowerS != b.PowerS {
		return a.PowerS > b.PowerS
	}
	for bit := maxBits - 1; bit >= 0; bit-- {
		if a.Powers[bit] != b.Powers[bit] {
			return a.Powers[bit] > b.Powers[bit]
		}
	}
	return false
}

// Expr is a normal-form-capable ordered list of addends, descending per
// less, with no two addends sharing a key and no zero-factor addends.
type Expr struct {
	Addends []Addend
}

// ErrInvalidInFreq is returned when a bit resolves to a device kind with no
// frequency-domain admittance (independent sources, op-amps, probes).
type ErrInvalidInFreq struct{ Device string }

func (e *ErrInvalidInFreq) Error() string {
	return fmt.Sprintf("freq: device %q has no frequency-domain admittance", e.Device)
}

// ErrCyclicRelation is returned when a device-to-device relation chain
// does not terminate within the number of known devices.
type ErrCyclicRelation struct{ Device string }

func (e *ErrCyclicRelation) Error() string {
	return fmt.Sprintf("freq: device %q has a cyclic value relation", e.Device)
}

// Add merges (factor, powerS, powers) into e in place, following the same
// insert/merge/cancel discipline as coef.Pool.AddAddend, generalized to a
// rational factor and a multi-dimensional key.
func (e *Expr) Add(factor rat.Rational, powerS int, powers [maxBits]int) {
	if factor.IsZero() {
		return
	}
	cand := Addend{Factor: factor, PowerS: powerS, Powers: powers}
	for i := range e.Addends {
		if e.Addends[i].PowerS == powerS && e.Addends[i].Powers == powers {
			sum, _ := rat.Add(e.Addends[i].Factor, factor)
			if sum.IsZero() {
				e.Addends = append(e.Addends[:i], e.Addends[i+1:]...)
				return
			}
			e.Addends[i].Factor = sum
			return
		}
		if !less(cand, e.Addends[i]) {
			continue
		}
		// cand belongs before e.Addends[i].
		e.Addends = append(e.Addends, Addend{})
		copy(e.Addends[i+1:], e.Addends[i:])
		e.Addends[i] = cand
		return
	}
	e.Addends = append(e.Addends, cand)
}

// resolveRoot walks device's relation chain to its root device, returning
// the root's name and the accumulated rational factor (1 if device has no
// relation). It returns ErrCyclicRelation if the chain does not terminate
// within len(t.Constants) hops.
func resolveRoot(t *symtab.Table, device string) (string, rat.Rational, error) {
	factor := rat.One
	cur := device
	limit := len(t.Constants) + 1
	for i := 0; i < limit; i++ {
		rel, ok := t.Relations[cur]
		if !ok {
			return cur, factor, nil
		}
		// On overflow rat.Mul still returns a close approximation, used as is.
		factor, _ = rat.Mul(factor, rel.Factor)
		cur = rel.Of
	}
	return "", rat.Rational{}, &ErrCyclicRelation{Device: device}
}

// substitute applies the admittance rule for root's device kind, mutating
// factor and powers for rootBit.
func substitute(kind circuit.DeviceKind, root string, rootBit int, relFactor rat.Rational, factor *rat.Rational, powerS *int, powers *[maxBits]int) error {
	switch kind {
	case circuit.Resistor:
		v, _ := rat.Mul(*factor, relFactor.Reciprocal())
		*factor = v
		powers[rootBit]--
	case circuit.Conductance:
		v, _ := rat.Mul(*factor, relFactor)
		*factor = v
		powers[rootBit]++
	case circuit.Capacitor:
		v, _ := rat.Mul(*factor, relFactor)
		*factor = v
		powers[rootBit]++
		*powerS++
	case circuit.Inductor:
		v, _ := rat.Mul(*factor, relFactor.Reciprocal())
		*factor = v
		powers[rootBit]--
		*powerS--
	case circuit.VCVS, circuit.VCCS, circuit.CCVS, circuit.CCCS:
		v, _ := rat.Mul(*factor, relFactor)
		*factor = v
		powers[rootBit]++
	default:
		return &ErrInvalidInFreq{Device: root}
	}
	return nil
}

// Transform converts an algebraic coefficient into a frequency-domain
// expression, substituting every device bit with its admittance form.
func Transform(c coef.Coefficient, pool *coef.Pool, t *symtab.Table, circ *circuit.Circuit) (*Expr, error) {
	expr := &Expr{}
	for _, a := range pool.Addends(c) {
		factor := rat.FromInt(a.Factor)
		powerS := 0
		var powers [maxBits]int

		for bit := 0; bit < maxBits; bit++ {
			if a.Product&(coef.Word(1)<<uint(bit)) == 0 {
				continue
			}
			device, ok := t.DeviceOfBit(bit)
			if !ok {
				continue
			}
			root, relFactor, err := resolveRoot(t, device)
			if err != nil {
				return nil, err
			}
			rootBit, _ := t.BitOf(root)
			d, ok := circ.DeviceByName(root)
			if !ok {
				return nil, fmt.Errorf("freq: root device %q not found in circuit", root)
			}
			if err := substitute(d.Kind, root, rootBit, relFactor, &factor, &powerS, &powers); err != nil {
				return nil, err
			}
		}
		expr.Add(factor, powerS, powers)
	}
	return expr, nil
}

// Normalize factors out the addend
// whose power of s and every per-constant power is the minimum across all
// addends, whose rational numerator is the gcd of addend numerators and
// denominator the lcm of addend denominators, divides every addend by it,
// and fixes the sign so the leading addend has a positive numerator.
func Normalize(e *Expr) (Addend, *Expr, error) {
	if len(e.Addends) == 0 {
		return Addend{}, nil, fmt.Errorf("freq: cannot normalize an empty expression")
	}

	minPowerS := e.Addends[0].PowerS
	var minPowers [maxBits]int
	copy(minPowers[:], e.Addends[0].Powers[:])
	numGCD := abs64(e.Addends[0].Factor.Num)
	denLCM := e.Addends[0].Factor.Den

	for _, a := range e.Addends[1:] {
		if a.PowerS < minPowerS {
			minPowerS = a.PowerS
		}
		for bit := 0; bit < maxBits; bit++ {
			if a.Powers[bit] < minPowers[bit] {
				minPowers[bit] = a.Powers[bit]
			}
		}
		numGCD = gcd64(numGCD, abs64(a.Factor.Num))
		denLCM = lcm64(denLCM, a.Factor.Den)
	}
	if numGCD == 0 {
		numGCD = 1
	}

	factorAddend := Addend{Factor: rat.New(numGCD, denLCM), PowerS: minPowerS, Powers: minPowers}

	out := &Expr{Addends: make([]Addend, len(e.Addends))}
	for i, a := range e.Addends {
		q, ok := rat.Div(a.Factor, factorAddend.Factor)
		if !ok {
			return Addend{}, nil, fmt.Errorf("freq: overflow normalizing expression")
		}
		var powers [maxBits]int
		for bit := 0; bit < maxBits; bit++ {
			powers[bit] = a.Powers[bit] - minPowers[bit]
		}
		out.Addends[i] = Addend{Factor: q, PowerS: a.PowerS - minPowerS, Powers: powers}
	}

	if out.Addends[0].Factor.Num < 0 {
		factorAddend.Factor = factorAddend.Factor.Neg()
		for i := range out.Addends {
			out.Addends[i].Factor = out.Addends[i].Factor.Neg()
		}
	}

	return factorAddend, out, nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func gcd64(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return abs64(a)
}

func lcm64(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	g := gcd64(a, b)
	return abs64(a / g * b)
}
