package les

import (
	"testing"

	"github.com/oisee/symcirc/pkg/circuit"
	"github.com/oisee/symcirc/pkg/coef"
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

func TestBuildRLCMatrixShape(t *testing.T) {
	c := rlcCircuit()
	tab, err := symtab.Build(c)
	if err != nil {
		t.Fatalf("symtab.Build: %v", err)
	}
	pool := coef.NewPool(64)
	mat, err := Build(tab, c, pool)
	if err != nil {
		t.Fatalf("les.Build: %v", err)
	}

	wantRows := tab.NumUnknowns() // 3 node unknowns + 1 device unknown (Uin) = 4
	wantCols := wantRows + tab.NumKnowns()
	if wantRows != 4 {
		t.Fatalf("expected 4 unknowns, got %d", wantRows)
	}
	if mat.Rows() != wantRows || mat.Cols() != wantCols {
		t.Fatalf("matrix shape = %dx%d, want %dx%d", mat.Rows(), mat.Cols(), wantRows, wantCols)
	}
}

func TestBuildRLCDiagonalHasBothNeighborBits(t *testing.T) {
	c := rlcCircuit()
	tab, err := symtab.Build(c)
	if err != nil {
		t.Fatalf("symtab.Build: %v", err)
	}
	pool := coef.NewPool(64)
	mat, err := Build(tab, c, pool)
	if err != nil {
		t.Fatalf("les.Build: %v", err)
	}

	rowK1, _ := tab.RowOf("K1")
	colK1, _ := tab.ColumnOf("K1")
	bitL, _ := tab.BitOf("L")
	bitC, _ := tab.BitOf("C")

	addends := pool.Addends(mat.At(rowK1, colK1))
	gotMask := coef.Word(0)
	for _, a := range addends {
		gotMask |= a.Product
	}
	wantMask := coef.Word(1)<<uint(bitL) | coef.Word(1)<<uint(bitC)
	if gotMask != wantMask {
		t.Errorf("K1 diagonal product mask = %#x, want %#x (bitL=%d, bitC=%d)", gotMask, wantMask, bitL, bitC)
	}
}

func TestBuildVoltageSourceKnownColumn(t *testing.T) {
	c := rlcCircuit()
	tab, err := symtab.Build(c)
	if err != nil {
		t.Fatalf("symtab.Build: %v", err)
	}
	pool := coef.NewPool(64)
	mat, err := Build(tab, c, pool)
	if err != nil {
		t.Fatalf("les.Build: %v", err)
	}

	devRow, _ := tab.RowOf("Uin")
	knownCol, ok := tab.KnownIndex("Uin")
	if !ok {
		t.Fatalf("expected Uin to have a known column")
	}
	col := tab.NumUnknowns() + knownCol
	addends := pool.Addends(mat.At(devRow, col))
	if len(addends) != 1 || addends[0].Factor != -1 || addends[0].Product != 0 {
		t.Errorf("Uin's own row/known-column cell = %+v, want a single -1*1 addend", addends)
	}
}
