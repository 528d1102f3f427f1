package coef

import "testing"

func assertOrdered(t *testing.T, p *Pool, c Coefficient) {
	t.Helper()
	addends := p.Addends(c)
	for i := 1; i < len(addends); i++ {
		if addends[i-1].Product <= addends[i].Product {
			t.Fatalf("addends not strictly descending: %+v", addends)
		}
	}
	for _, a := range addends {
		if a.Factor == 0 {
			t.Fatalf("found zero-factor addend: %+v", addends)
		}
	}
}

func TestAddAddendInsertsAndMerges(t *testing.T) {
	p := NewPool(16)
	c := p.Unit(1, 5)
	c = p.AddAddend(c, 1, 7) // insert before (7 > 5)
	c = p.AddAddend(c, 1, 3) // insert after
	c = p.AddAddend(c, 2, 5) // merge into existing product 5

	assertOrdered(t, p, c)
	addends := p.Addends(c)
	if len(addends) != 3 {
		t.Fatalf("expected 3 addends, got %d: %+v", len(addends), addends)
	}
	want := map[Word]int64{7: 1, 5: 3, 3: 1}
	for _, a := range addends {
		if want[a.Product] != a.Factor {
			t.Errorf("product %d: got factor %d, want %d", a.Product, a.Factor, want[a.Product])
		}
	}
}

func TestAddAddendZeroFactorRemoved(t *testing.T) {
	p := NewPool(16)
	c := p.Unit(1, 4)
	c = p.AddAddend(c, -1, 4) // cancels to zero, should be spliced out
	assertOrdered(t, p, c)
	if !c.IsEmpty() {
		t.Errorf("expected empty coefficient after cancellation, got %v addends", p.Addends(c))
	}
}

func TestSubInPlace(t *testing.T) {
	p := NewPool(16)
	a := p.Build(Addend{Factor: 1, Product: 4}, Addend{Factor: 1, Product: 2})
	b := p.Build(Addend{Factor: 1, Product: 4}, Addend{Factor: -1, Product: 1})

	result := p.Sub(a, b)
	assertOrdered(t, p, result)
	addends := p.Addends(result)
	// a - b = (1*P4 + 1*P2) - (1*P4 - 1*P1) = 1*P2 + 1*P1
	if len(addends) != 2 {
		t.Fatalf("expected 2 addends after subtraction, got %+v", addends)
	}
}

func TestMulIntAndClone(t *testing.T) {
	p := NewPool(16)
	a := p.Build(Addend{Factor: 1, Product: 8}, Addend{Factor: -2, Product: 2})
	clone := p.Clone(a)
	p.MulInt(a, 3)

	gotA := p.Addends(a)
	gotClone := p.Addends(clone)
	if gotA[0].Factor != 3 || gotA[1].Factor != -6 {
		t.Errorf("MulInt result wrong: %+v", gotA)
	}
	if gotClone[0].Factor != 1 || gotClone[1].Factor != -2 {
		t.Errorf("clone was mutated by MulInt on original: %+v", gotClone)
	}
}

func TestLenAndLeadingProduct(t *testing.T) {
	p := NewPool(16)
	c := p.Build(Addend{Factor: 1, Product: 9}, Addend{Factor: 1, Product: 1})
	if p.Len(c) != 2 {
		t.Errorf("Len = %d, want 2", p.Len(c))
	}
	lead, ok := p.LeadingProduct(c)
	if !ok || lead != 9 {
		t.Errorf("LeadingProduct = %d, ok=%v, want 9, true", lead, ok)
	}
	if _, ok := p.LeadingProduct(Empty()); ok {
		t.Errorf("LeadingProduct on empty coefficient should report ok=false")
	}
}

func TestMatrixSwap(t *testing.T) {
	p := NewPool(16)
	m := NewMatrix(p, 2, 2)
	m.Set(0, 0, p.Unit(1, 1))
	m.Set(1, 1, p.Unit(1, 2))
	m.SwapRows(0, 1)
	if p.Addends(m.At(1, 0))[0].Product != 1 {
		t.Errorf("SwapRows did not move coefficient correctly")
	}
	m.SwapCols(0, 1)
	if p.Addends(m.At(1, 1))[0].Product != 1 {
		t.Errorf("SwapCols did not move coefficient correctly")
	}
}
