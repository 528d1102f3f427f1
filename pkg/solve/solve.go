// Package solve implements fraction-free symbolic Gaussian elimination:
// it reduces an m x (m+n) coefficient matrix (m unknown columns,
// n known/right-hand-side columns, built by pkg/les) to a diagonal form
// whose final pivot is the system determinant and whose surviving rows
// are, per unknown, a numerator vector over the n knowns.
//
// The elimination is the one-step-division form: at every step each
// non-pivot row is rewritten as (pivot*row - entry*pivotRow) / prevPivot,
// where prevPivot is the pivot of the step before. The division keeps
// every stored entry equal to a minor of the original matrix, and minors
// of a nodal-analysis matrix are multilinear in the device constants —
// each device bit appears at most once per addend — which is exactly what
// the product-of-constants word can represent. Skipping the division
// would leave pivot-inflated entries carrying squared device terms that
// the bit word cannot hold.
//
// The cross-multiplication inside one step does transiently produce
// squared terms before the division removes them again, so the step is
// computed in a local exact representation tracking exponents up to two,
// and only the divided (again multilinear) result is stored back.
package solve

import (
	"fmt"

	"github.com/oisee/symcirc/pkg/coef"
)

// Solution is the algebraic result of eliminating one LES: a single
// determinant coefficient shared by every dependent, plus one numerator
// row per unknown column (in that column's LES order, not necessarily the
// symbol table's declaration order, since a target-unknown swap may have
// reordered columns before the matrix was built).
//
// Matrix rows carry every term on the left-hand side (A*x + K*u = 0), so
// the solved value of unknown c per unit of known k is the negated
// right-hand entry over the determinant; Numerators stores that negation
// already applied, and callers read x_c = Numerators[c][k]/Determinant.
//
// A Solution is read-only after Eliminate returns; downstream stages
// only read it, so it is safe for concurrent readers (its Coefficient
// handles resolve through the pool it was built with, which must outlive
// it).
type Solution struct {
	Determinant coef.Coefficient
	Numerators  [][]coef.Coefficient // Numerators[col] has len NumKnowns
	Unavailable []bool               // Unavailable[col] true if column had no pivot
}

// mono is one transient elimination monomial: per-device exponents of 0,
// 1 or 2, packed as two words (lo: exponent >= 1, hi: exponent == 2).
// Stored matrix entries are always multilinear (hi == 0); exponent 2
// exists only between a step's cross-multiplication and its division.
type mono struct{ lo, hi coef.Word }

// poly is a transient sum of monomials with integer factors. The zero
// polynomial is the empty (or nil) map.
type poly map[mono]int64

// Eliminate reduces m in place, consuming pool for every coefficient it
// allocates for the solution. m's cells are not written back; the matrix
// is lifted into the transient representation once up front.
func Eliminate(m *coef.Matrix, pool *coef.Pool) (*Solution, error) {
	rows := m.Rows()
	cols := m.Cols()
	knowns := cols - rows
	if knowns < 0 {
		return nil, fmt.Errorf("solve: matrix has %d rows but only %d columns, need at least %d", rows, cols, rows)
	}

	g := make([][]poly, rows)
	for r := range g {
		g[r] = make([]poly, cols)
		for j := range g[r] {
			g[r][j] = fromCoef(pool, m.At(r, j))
		}
	}

	sol := &Solution{
		Numerators:  make([][]coef.Coefficient, rows),
		Unavailable: make([]bool, rows),
	}

	one := poly{mono{}: 1}
	prev := one
	det := one

	for c := 0; c < rows; c++ {
		pr := choosePivot(g, c, rows)
		if pr < 0 {
			sol.Unavailable[c] = true
			continue
		}
		g[pr], g[c] = g[c], g[pr]
		pivot := g[c][c]

		for r := 0; r < rows; r++ {
			if r == c {
				continue
			}
			factor := g[r][c]
			for j := 0; j < cols; j++ {
				num, err := cross(pivot, g[r][j], factor, g[c][j])
				if err != nil {
					return nil, err
				}
				q, err := divPoly(num, prev)
				if err != nil {
					return nil, err
				}
				g[r][j] = q
			}
		}
		prev = pivot
		det = pivot
	}

	detC, err := toCoef(pool, det, 1)
	if err != nil {
		return nil, err
	}
	sol.Determinant = detC

	for c := 0; c < rows; c++ {
		if sol.Unavailable[c] {
			continue
		}
		row := make([]coef.Coefficient, knowns)
		for k := 0; k < knowns; k++ {
			v, err := toCoef(pool, g[c][rows+k], -1)
			if err != nil {
				return nil, err
			}
			row[k] = v
		}
		sol.Numerators[c] = row
	}

	return sol, nil
}

// choosePivot selects the row r in [c, rows) whose entry in column c is
// non-null, tie-breaking on fewest addends then smallest leading
// product-of-constants, so pivot choice is reproducible.
func choosePivot(g [][]poly, c, rows int) int {
	best := -1
	bestLen := 0
	var bestLead mono
	for r := c; r < rows; r++ {
		v := g[r][c]
		if len(v) == 0 {
			continue
		}
		n := len(v)
		lead := leading(v)
		if best == -1 || n < bestLen || (n == bestLen && lead.lo < bestLead.lo) {
			best = r
			bestLen = n
			bestLead = lead
		}
	}
	return best
}

func fromCoef(pool *coef.Pool, c coef.Coefficient) poly {
	addends := pool.Addends(c)
	if len(addends) == 0 {
		return poly{}
	}
	p := make(poly, len(addends))
	for _, a := range addends {
		p[mono{lo: a.Product}] = a.Factor
	}
	return p
}

// toCoef converts a multilinear polynomial back into a pooled
// coefficient, scaling every factor by sign. A monomial still carrying a
// squared exponent means the multilinearity invariant was broken.
func toCoef(pool *coef.Pool, p poly, sign int64) (coef.Coefficient, error) {
	c := coef.Empty()
	for m, f := range p {
		if m.hi != 0 {
			return coef.Empty(), fmt.Errorf("solve: non-multilinear term survived elimination")
		}
		c = pool.AddAddend(c, sign*f, m.lo)
	}
	return c, nil
}

// cross computes p*a - f*b, the undivided elimination numerator. All four
// operands are multilinear; the result may carry exponent-2 terms.
func cross(p, a, f, b poly) (poly, error) {
	out := poly{}
	if err := accumulate(out, p, a, 1); err != nil {
		return nil, err
	}
	if err := accumulate(out, f, b, -1); err != nil {
		return nil, err
	}
	return out, nil
}

// accumulate adds sign*(x*y) into dst, with x and y multilinear.
func accumulate(dst poly, x, y poly, sign int64) error {
	for mx, fx := range x {
		for my, fy := range y {
			f, ok := ovMul(fx, fy)
			if !ok {
				return errOverflow
			}
			m := mulML(mx, my)
			dst[m] += sign * f
			if dst[m] == 0 {
				delete(dst, m)
			}
		}
	}
	return nil
}

var errOverflow = fmt.Errorf("solve: integer overflow during elimination")

// mulML multiplies two multilinear monomials; a shared bit becomes a
// squared exponent.
func mulML(a, b mono) mono {
	return mono{lo: a.lo | b.lo, hi: a.lo & b.lo}
}

// divMono divides d by the multilinear p, reporting ok=false when some
// exponent of p exceeds d's.
func divMono(d, p mono) (mono, bool) {
	if p.lo&^d.lo != 0 {
		return mono{}, false
	}
	hi := d.hi &^ p.lo
	lo := d.hi | ((d.lo &^ d.hi) &^ p.lo)
	return mono{lo: lo, hi: hi}, true
}

// monoLess is a lexicographic monomial order scanning exponents from the
// highest bit index down. It respects multiplication, which is what the
// division's leading-term argument needs.
func monoLess(a, b mono) bool {
	diff := (a.lo ^ b.lo) | (a.hi ^ b.hi)
	if diff == 0 {
		return false
	}
	for bit := coef.MaxConstants - 1; bit >= 0; bit-- {
		w := coef.Word(1) << uint(bit)
		ea := exponent(a, w)
		eb := exponent(b, w)
		if ea != eb {
			return ea < eb
		}
	}
	return false
}

func exponent(m mono, w coef.Word) int {
	e := 0
	if m.lo&w != 0 {
		e++
	}
	if m.hi&w != 0 {
		e++
	}
	return e
}

func leading(p poly) mono {
	var lead mono
	first := true
	for m := range p {
		if first || monoLess(lead, m) {
			lead = m
			first = false
		}
	}
	return lead
}

// divPoly computes d/p exactly. The elimination's divisibility is a
// property of the underlying minors, so a leftover remainder or a
// non-dividing leading term means the invariants were broken upstream.
func divPoly(d, p poly) (poly, error) {
	if len(p) == 1 {
		if f, ok := p[mono{}]; ok && f == 1 {
			return d, nil
		}
	}
	rem := make(poly, len(d))
	for m, f := range d {
		rem[m] = f
	}
	pLead := leading(p)
	pLeadF := p[pLead]
	q := poly{}
	for len(rem) > 0 {
		dLead := leading(rem)
		t, ok := divMono(dLead, pLead)
		if !ok || t.hi != 0 {
			return nil, fmt.Errorf("solve: elimination division is not exact")
		}
		f := rem[dLead]
		if f%pLeadF != 0 {
			return nil, fmt.Errorf("solve: elimination division is not exact")
		}
		tf := f / pLeadF
		q[t] += tf
		if q[t] == 0 {
			delete(q, t)
		}
		for pm, pf := range p {
			mf, ok := ovMul(tf, pf)
			if !ok {
				return nil, errOverflow
			}
			m := mulML(t, pm)
			rem[m] -= mf
			if rem[m] == 0 {
				delete(rem, m)
			}
		}
	}
	return q, nil
}

// ovMul multiplies two int64 factors, reporting ok=false on overflow.
func ovMul(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	r := a * b
	if r/b != a {
		return 0, false
	}
	return r, true
}
