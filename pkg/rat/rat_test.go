package rat

import "testing"

func TestCanonicalForm(t *testing.T) {
	tests := []struct {
		num, den int64
		wantNum  int64
		wantDen  int64
	}{
		{2, 4, 1, 2},
		{-2, 4, -1, 2},
		{2, -4, -1, 2},
		{-2, -4, 1, 2},
		{0, 5, 0, 1},
		{6, 3, 2, 1},
	}
	for _, tt := range tests {
		r := New(tt.num, tt.den)
		if r.Num != tt.wantNum || r.Den != tt.wantDen {
			t.Errorf("New(%d,%d) = %d/%d, want %d/%d", tt.num, tt.den, r.Num, r.Den, tt.wantNum, tt.wantDen)
		}
		if r.Den <= 0 {
			t.Errorf("New(%d,%d) produced non-positive denominator %d", tt.num, tt.den, r.Den)
		}
		g := gcdInt(abs64(r.Num), r.Den)
		if r.Num != 0 && g != 1 {
			t.Errorf("New(%d,%d) = %d/%d is not in lowest terms (gcd=%d)", tt.num, tt.den, r.Num, r.Den, g)
		}
	}
}

func TestAddMulMatchExpected(t *testing.T) {
	a := New(1, 2)
	b := New(1, 3)
	sum, ok := Add(a, b)
	if !ok || !sum.Equal(New(5, 6)) {
		t.Errorf("Add(1/2, 1/3) = %v, ok=%v, want 5/6", sum, ok)
	}
	prod, ok := Mul(a, b)
	if !ok || !prod.Equal(New(1, 6)) {
		t.Errorf("Mul(1/2, 1/3) = %v, ok=%v, want 1/6", prod, ok)
	}
}

func TestReciprocalAndDiv(t *testing.T) {
	a := New(3, 4)
	r := a.Reciprocal()
	if !r.Equal(New(4, 3)) {
		t.Errorf("Reciprocal(3/4) = %v, want 4/3", r)
	}
	q, ok := Div(New(1, 2), New(1, 4))
	if !ok || !q.Equal(New(2, 1)) {
		t.Errorf("Div(1/2, 1/4) = %v, ok=%v, want 2", q, ok)
	}
}

func TestLCMAlwaysNonNegative(t *testing.T) {
	cases := []struct{ a, b Rational }{
		{New(2, 1), New(3, 1)},
		{New(-2, 1), New(3, 1)},
		{New(-2, 1), New(-3, 1)},
		{Zero, Zero},
	}
	for _, c := range cases {
		l := LCM(c.a, c.b)
		if l.Num < 0 {
			t.Errorf("LCM(%v, %v) = %v has negative numerator", c.a, c.b, l)
		}
	}
	if !LCM(Zero, Zero).Equal(Zero) {
		t.Errorf("LCM(0,0) = %v, want 0", LCM(Zero, Zero))
	}
}

func TestStatusSticksAcrossOperations(t *testing.T) {
	var s Status
	v := s.Track(Mul(New(1, 2), New(1, 3)))
	if s.Failed() {
		t.Fatalf("exact Mul should not set the status, got failed after %v", v)
	}
	big := New(1<<62, 1)
	s.Track(Mul(big, big))
	if !s.Failed() {
		t.Errorf("overflowing Mul should set the status")
	}
	s.Track(Mul(New(1, 2), New(1, 3)))
	if !s.Failed() {
		t.Errorf("status must stay set until Reset")
	}
	s.Reset()
	if s.Failed() {
		t.Errorf("Reset should clear the status")
	}
}

func TestMulOverflowApproximates(t *testing.T) {
	big := New(1<<62, 1)
	_, ok := Mul(big, big)
	if ok {
		t.Fatalf("Mul(2^62, 2^62) should overflow, got ok=true")
	}
	v, ok2 := Mul(big, big)
	if ok2 {
		t.Fatalf("repeated overflowing Mul unexpectedly succeeded exactly")
	}
	if v.Den <= 0 {
		t.Errorf("approximation %v has non-positive denominator", v)
	}
}
