// Package coef implements the symbolic coefficient algebra: a coefficient
// is an ordered sum of addends, each a signed integer factor times a
// product-of-constants bit vector, kept in strictly descending product
// order with no duplicate products and no zero-factor addends.
//
// Addends live in a typed arena (Pool): a Coefficient is a small integer
// handle into the arena, and freeing a whole run's worth of coefficients
// is a single Pool.Reset call.
package coef

import "github.com/oisee/symcirc/pkg/matrix"

// Word is the fixed-width bit vector encoding a product of device
// constants. Its width bounds the number of distinct symbolic devices a
// circuit may use; a circuit exceeding it is rejected as input.
type Word uint64

// MaxConstants is the number of usable bits in a Word.
const MaxConstants = 64

// addendCell is one arena-resident addend: {factor, product, next}. next
// is an index into the same arena, or noNext.
type addendCell struct {
	factor  int64
	product Word
	next    int32
}

const noNext int32 = -1

// Coefficient is an arena handle: the index of the head cell, or empty
// for a coefficient with no addends (the zero coefficient).
type Coefficient int32

// empty denotes the zero coefficient (no addends).
const empty Coefficient = -1

// Empty returns the zero coefficient.
func Empty() Coefficient { return empty }

// IsEmpty reports whether c has no addends (i.e. represents 0).
func (c Coefficient) IsEmpty() bool { return c == empty }

// Pool owns the arena all coefficients in one analyzer run are allocated
// from. Callers needing independent or concurrent runs construct one Pool
// per run; pools are not process-global singletons.
type Pool struct {
	cells []addendCell
}

// NewPool creates an empty arena, optionally pre-sizing it for capacity
// addends to reduce reallocation.
func NewPool(capacity int) *Pool {
	return &Pool{cells: make([]addendCell, 0, capacity)}
}

// Reset discards every allocated cell in O(1), invalidating all
// Coefficient handles previously issued by this pool.
func (p *Pool) Reset() {
	p.cells = p.cells[:0]
}

func (p *Pool) alloc(factor int64, product Word, next int32) int32 {
	p.cells = append(p.cells, addendCell{factor: factor, product: product, next: next})
	return int32(len(p.cells) - 1)
}

// Addend is the value-shape used by callers walking a Coefficient; it
// mirrors addendCell without exposing arena indices.
type Addend struct {
	Factor  int64
	Product Word
}

// Addends returns the coefficient's addends as a plain slice, in
// descending product order, for callers that want to inspect rather than
// mutate (e.g. the frequency-domain transform and the renderer).
func (p *Pool) Addends(c Coefficient) []Addend {
	var out []Addend
	for idx := int32(c); idx != noNext; {
		cell := p.cells[idx]
		out = append(out, Addend{Factor: cell.factor, Product: cell.product})
		idx = cell.next
	}
	return out
}

// Unit builds a single-addend coefficient with factor +1 or -1.
func (p *Pool) Unit(sign int64, product Word) Coefficient {
	if sign == 0 {
		return empty
	}
	if sign > 0 {
		sign = 1
	} else {
		sign = -1
	}
	return Coefficient(p.alloc(sign, product, noNext))
}

// AddAddend merges (factor, product) into c in place: walk while
// current.product > product; insert if none matches; otherwise add to the
// matching addend's factor, removing it if the result is zero. Returns the
// (possibly new) head handle.
func (p *Pool) AddAddend(c Coefficient, factor int64, product Word) Coefficient {
	if factor == 0 {
		return c
	}
	return p.merge(c, factor, product)
}

func (p *Pool) merge(head Coefficient, factor int64, product Word) Coefficient {
	var prevIdx int32 = noNext
	idx := int32(head)
	for idx != noNext {
		cell := &p.cells[idx]
		switch {
		case cell.product > product:
			prevIdx = idx
			idx = cell.next
			continue
		case cell.product < product:
			// Insert a new cell before idx.
			newIdx := p.alloc(factor, product, idx)
			return p.splice(head, prevIdx, newIdx)
		default: // cell.product == product
			cell.factor += factor
			if cell.factor == 0 {
				return p.splice(head, prevIdx, cell.next)
			}
			return head
		}
	}
	// Reached the end: append.
	newIdx := p.alloc(factor, product, noNext)
	return p.splice(head, prevIdx, newIdx)
}

// splice relinks head so that the cell previously following prevIdx (or
// the head itself, if prevIdx == noNext) is replaced by newIdx, and
// returns the resulting head handle.
func (p *Pool) splice(head Coefficient, prevIdx int32, newIdx int32) Coefficient {
	if prevIdx == noNext {
		return Coefficient(newIdx)
	}
	p.cells[prevIdx].next = newIdx
	return head
}

// Sub computes a - b in place on a, returning the resulting handle. It
// applies the ordered merge for every addend of b with its factor
// inverted.
func (p *Pool) Sub(a, b Coefficient) Coefficient {
	for idx := int32(b); idx != noNext; {
		cell := p.cells[idx]
		a = p.merge(a, -cell.factor, cell.product)
		idx = cell.next
	}
	return a
}

// MulInt multiplies every addend's factor by k in place, returning the
// resulting handle (empty if k == 0).
func (p *Pool) MulInt(c Coefficient, k int64) Coefficient {
	if k == 0 {
		return empty
	}
	for idx := int32(c); idx != noNext; {
		p.cells[idx].factor *= k
		idx = p.cells[idx].next
	}
	return c
}

// Clone deep-copies c into freshly allocated cells, leaving the original
// untouched. Useful before an in-place Sub/MulInt when the original value
// must be preserved.
func (p *Pool) Clone(c Coefficient) Coefficient {
	if c == empty {
		return empty
	}
	addends := p.Addends(c)
	var head Coefficient = empty
	var prevIdx int32 = noNext
	for _, a := range addends {
		idx := p.alloc(a.Factor, a.Product, noNext)
		if prevIdx == noNext {
			head = Coefficient(idx)
		} else {
			p.cells[prevIdx].next = idx
		}
		prevIdx = idx
	}
	return head
}

// Len returns the number of addends in c.
func (p *Pool) Len(c Coefficient) int {
	n := 0
	for idx := int32(c); idx != noNext; idx = p.cells[idx].next {
		n++
	}
	return n
}

// LeadingProduct returns the product-of-constants of c's first (largest)
// addend. ok is false for the empty coefficient.
func (p *Pool) LeadingProduct(c Coefficient) (Word, bool) {
	if c == empty {
		return 0, false
	}
	return p.cells[int32(c)].product, true
}

// Build constructs a coefficient from addends given in any order,
// deduplicating equal products and dropping zero-factor results.
func (p *Pool) Build(addends ...Addend) Coefficient {
	c := empty
	for _, a := range addends {
		c = p.AddAddend(c, a.Factor, a.Product)
	}
	return c
}

// Matrix is an m x n grid of coefficients sharing one pool, built on the
// generic matrix.Grid container.
type Matrix struct {
	Pool *Pool
	Grid *matrix.Grid[Coefficient]
}

// NewMatrix allocates an m x n matrix of empty coefficients from pool.
func NewMatrix(pool *Pool, rows, cols int) *Matrix {
	return &Matrix{Pool: pool, Grid: matrix.NewFilled[Coefficient](rows, cols, empty)}
}

// At returns the coefficient at (r, c).
func (m *Matrix) At(r, c int) Coefficient { return m.Grid.At(r, c) }

// Set stores v at (r, c).
func (m *Matrix) Set(r, c int, v Coefficient) { m.Grid.Set(r, c, v) }

// SwapRows exchanges two rows in place.
func (m *Matrix) SwapRows(r1, r2 int) { m.Grid.SwapRows(r1, r2) }

// SwapCols exchanges two columns in place.
func (m *Matrix) SwapCols(c1, c2 int) { m.Grid.SwapCols(c1, c2) }

// Rows returns the row count.
func (m *Matrix) Rows() int { return m.Grid.Rows }

// Cols returns the column count.
func (m *Matrix) Cols() int { return m.Grid.Cols }
