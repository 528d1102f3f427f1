package freq

import (
	"testing"

	"github.com/oisee/symcirc/pkg/circuit"
	"github.com/oisee/symcirc/pkg/coef"
	"github.com/oisee/symcirc/pkg/rat"
	"github.com/oisee/symcirc/pkg/symtab"
)

func rlcCircuit() *circuit.Circuit {
	return &circuit.Circuit{
		Nodes: []string{"in", "gnd", "K1", "out"},
		Devices: []circuit.Device{
			{Name: "Uin", Kind: circuit.IndependentVoltageSource, Node1: "in", Node2: "gnd"},
			{Name: "L", Kind: circuit.Inductor, Node1: "in", Node2: "K1"},
			{Name: "C", Kind: circuit.Capacitor, Node1: "K1", Node2: "out"},
			{Name: "R", Kind: circuit.Resistor, Node1: "out", Node2: "gnd"},
		},
	}
}

func TestTransformResistorInvertsPower(t *testing.T) {
	c := rlcCircuit()
	tab, err := symtab.Build(c)
	if err != nil {
		t.Fatalf("symtab.Build: %v", err)
	}
	pool := coef.NewPool(16)
	bitR, _ := tab.BitOf("R")
	coefVal := pool.Unit(1, coef.Word(1)<<uint(bitR))

	expr, err := Transform(coefVal, pool, tab, c)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(expr.Addends) != 1 {
		t.Fatalf("expected 1 addend, got %d", len(expr.Addends))
	}
	a := expr.Addends[0]
	rootBit, _ := tab.BitOf("R")
	if a.Powers[rootBit] != -1 {
		t.Errorf("resistor power = %d, want -1", a.Powers[rootBit])
	}
	if a.PowerS != 0 {
		t.Errorf("resistor powerS = %d, want 0", a.PowerS)
	}
	if !a.Factor.Equal(rat.One) {
		t.Errorf("resistor factor = %v, want 1", a.Factor)
	}
}

func TestTransformCapacitorIncrementsPowerAndS(t *testing.T) {
	c := rlcCircuit()
	tab, _ := symtab.Build(c)
	pool := coef.NewPool(16)
	bitC, _ := tab.BitOf("C")
	coefVal := pool.Unit(1, coef.Word(1)<<uint(bitC))

	expr, err := Transform(coefVal, pool, tab, c)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	a := expr.Addends[0]
	if a.Powers[bitC] != 1 {
		t.Errorf("capacitor power = %d, want 1", a.Powers[bitC])
	}
	if a.PowerS != 1 {
		t.Errorf("capacitor powerS = %d, want 1", a.PowerS)
	}
}

func TestTransformRelationChainAccumulatesFactor(t *testing.T) {
	c := rlcCircuit()
	// R's value is defined as 3 * L's value; both keep their own device
	// kind and bit, but R's admittance substitution should use L's root
	// identity and bit once the relation is inlined.
	for i := range c.Devices {
		if c.Devices[i].Name == "R" {
			c.Devices[i].Relation = &circuit.Relation{Of: "L", Factor: rat.New(3, 1)}
		}
	}
	tab, err := symtab.Build(c)
	if err != nil {
		t.Fatalf("symtab.Build: %v", err)
	}
	pool := coef.NewPool(16)
	bitR, _ := tab.BitOf("R")
	coefVal := pool.Unit(1, coef.Word(1)<<uint(bitR))

	expr, err := Transform(coefVal, pool, tab, c)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	a := expr.Addends[0]
	bitL, _ := tab.BitOf("L")
	if a.Powers[bitL] != -1 {
		t.Errorf("expected R's relation to resolve to L's bit with power -1, got %d", a.Powers[bitL])
	}
	if a.Powers[bitR] != 0 {
		t.Errorf("R's own bit should not appear once resolved through the relation, got power %d", a.Powers[bitR])
	}
	want := rat.New(1, 3)
	if !a.Factor.Equal(want) {
		t.Errorf("factor = %v, want %v (1/3 from R=3*L)", a.Factor, want)
	}
}

func TestSubstituteRejectsDeviceKindsWithNoAdmittance(t *testing.T) {
	invalid := []circuit.DeviceKind{
		circuit.IndependentVoltageSource,
		circuit.IndependentCurrentSource,
		circuit.OpAmp,
		circuit.CurrentProbe,
	}
	for _, kind := range invalid {
		factor := rat.One
		powerS := 0
		var powers [maxBits]int
		err := substitute(kind, "X", 0, rat.One, &factor, &powerS, &powers)
		if err == nil {
			t.Errorf("substitute(%v) should reject a device kind with no frequency-domain admittance", kind)
		}
	}
}

func TestNormalizeExtractsMinimumExponentsAndFixesSign(t *testing.T) {
	e := &Expr{}
	var p1, p2 [maxBits]int
	p1[0] = 2
	p2[0] = 1
	e.Add(rat.New(-4, 1), 3, p1)
	e.Add(rat.New(2, 1), 1, p2)

	factor, normalized, err := Normalize(e)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if normalized.Addends[0].Factor.Sign() <= 0 {
		t.Errorf("leading addend factor should be positive, got %v", normalized.Addends[0].Factor)
	}
	if factor.PowerS != 1 {
		t.Errorf("factor powerS = %d, want 1 (min of 3,1)", factor.PowerS)
	}
	if factor.Powers[0] != 1 {
		t.Errorf("factor power[0] = %d, want 1 (min of 2,1)", factor.Powers[0])
	}
	for _, a := range normalized.Addends {
		if a.PowerS < 0 || a.Powers[0] < 0 {
			t.Errorf("normalized addend has a negative exponent: %+v", a)
		}
	}
}

func TestNormalizeRejectsEmptyExpression(t *testing.T) {
	if _, _, err := Normalize(&Expr{}); err == nil {
		t.Errorf("expected an error normalizing an empty expression")
	}
}

func TestResolveRootRejectsCyclicRelation(t *testing.T) {
	c := rlcCircuit()
	// R = 2*L, L = 3*R: neither side ever reaches a device with no relation.
	for i := range c.Devices {
		switch c.Devices[i].Name {
		case "R":
			c.Devices[i].Relation = &circuit.Relation{Of: "L", Factor: rat.New(2, 1)}
		case "L":
			c.Devices[i].Relation = &circuit.Relation{Of: "R", Factor: rat.New(3, 1)}
		}
	}
	tab, err := symtab.Build(c)
	if err != nil {
		t.Fatalf("symtab.Build: %v", err)
	}

	if _, _, err := resolveRoot(tab, "R"); err == nil {
		t.Fatalf("expected an ErrCyclicRelation resolving R's chain")
	} else if _, ok := err.(*ErrCyclicRelation); !ok {
		t.Errorf("expected *ErrCyclicRelation, got %T: %v", err, err)
	}
}

func TestTransformPropagatesCyclicRelationError(t *testing.T) {
	c := rlcCircuit()
	for i := range c.Devices {
		switch c.Devices[i].Name {
		case "R":
			c.Devices[i].Relation = &circuit.Relation{Of: "L", Factor: rat.New(2, 1)}
		case "L":
			c.Devices[i].Relation = &circuit.Relation{Of: "R", Factor: rat.New(3, 1)}
		}
	}
	tab, err := symtab.Build(c)
	if err != nil {
		t.Fatalf("symtab.Build: %v", err)
	}
	pool := coef.NewPool(16)
	bitR, _ := tab.BitOf("R")
	coefVal := pool.Unit(1, coef.Word(1)<<uint(bitR))

	if _, err := Transform(coefVal, pool, tab, c); err == nil {
		t.Fatalf("expected Transform to propagate the cyclic-relation error")
	}
}
