package solve

import "testing"

import "github.com/oisee/symcirc/pkg/coef"

// buildSystem builds the 2-unknown, 1-known system
//
//	x0 + x1 - u = 0
//	x0 - x1 - u = 0
//
// whose solution at u=1 is x0=1, x1=0 — small enough to trace by hand,
// and free of any symbolic device bits so the expected factors are plain
// integers. The known column carries its terms on the left-hand side,
// matching the builder's stamp convention.
func buildSystem(t *testing.T) (*coef.Pool, *coef.Matrix) {
	t.Helper()
	pool := coef.NewPool(64)
	m := coef.NewMatrix(pool, 2, 3)
	m.Set(0, 0, pool.Unit(1, 0))
	m.Set(0, 1, pool.Unit(1, 0))
	m.Set(0, 2, pool.Unit(-1, 0))
	m.Set(1, 0, pool.Unit(1, 0))
	m.Set(1, 1, pool.Unit(-1, 0))
	m.Set(1, 2, pool.Unit(-1, 0))
	return pool, m
}

func scalar(pool *coef.Pool, c coef.Coefficient) int64 {
	addends := pool.Addends(c)
	if len(addends) == 0 {
		return 0
	}
	return addends[0].Factor
}

func TestEliminateSolvesSimpleSystem(t *testing.T) {
	pool, m := buildSystem(t)
	sol, err := Eliminate(m, pool)
	if err != nil {
		t.Fatalf("Eliminate: %v", err)
	}
	for col := range sol.Unavailable {
		if sol.Unavailable[col] {
			t.Fatalf("column %d unexpectedly unavailable", col)
		}
	}

	det := scalar(pool, sol.Determinant)
	if det == 0 {
		t.Fatalf("determinant is zero, system should be non-singular")
	}

	x0 := float64(scalar(pool, sol.Numerators[0][0])) / float64(det)
	x1 := float64(scalar(pool, sol.Numerators[1][0])) / float64(det)
	if x0 != 1 {
		t.Errorf("x0 = %v, want 1", x0)
	}
	if x1 != 0 {
		t.Errorf("x1 = %v, want 0", x1)
	}
}

func TestEliminateSingularColumnMarkedUnavailable(t *testing.T) {
	pool := coef.NewPool(64)
	m := coef.NewMatrix(pool, 2, 3)
	// Both rows identical in column 0 and column 1 after using only zero
	// entries for column 1: column 1 has no pivot candidate anywhere.
	m.Set(0, 0, pool.Unit(1, 0))
	m.Set(1, 0, pool.Unit(1, 0))
	m.Set(0, 2, pool.Unit(1, 0))
	m.Set(1, 2, pool.Unit(1, 0))

	sol, err := Eliminate(m, pool)
	if err != nil {
		t.Fatalf("Eliminate: %v", err)
	}
	if !sol.Unavailable[1] {
		t.Errorf("expected column 1 to be marked unavailable")
	}
}

func TestEliminateRejectsTooFewColumns(t *testing.T) {
	pool := coef.NewPool(16)
	m := coef.NewMatrix(pool, 3, 2)
	if _, err := Eliminate(m, pool); err == nil {
		t.Errorf("expected an error when columns < rows")
	}
}
