// Package les builds the symbolic linear equation system: an m x (m+n)
// matrix of coefficients — m rows/columns for the circuit's unknowns (node
// voltages and branch currents), plus one column per known (independent
// source). Carrying all n right-hand sides at once lets a single
// elimination pass produce one numerator per independent source, without
// re-deriving per-source systems.
package les

import (
	"fmt"

	"github.com/oisee/symcirc/pkg/circuit"
	"github.com/oisee/symcirc/pkg/coef"
	"github.com/oisee/symcirc/pkg/symtab"
)

// Build constructs the m x (m+n) coefficient matrix for c using the symbol
// table t (already populated by symtab.Build, and with any target-unknown
// column swap already applied).
func Build(t *symtab.Table, c *circuit.Circuit, pool *coef.Pool) (*coef.Matrix, error) {
	m := t.NumUnknowns()
	n := t.NumKnowns()
	mat := coef.NewMatrix(pool, m, m+n)

	b := &builder{t: t, c: c, pool: pool, mat: mat}

	for i := range c.Devices {
		d := &c.Devices[i]
		bit, hasConst := t.BitOf(d.Name)
		switch d.Kind {
		case circuit.Resistor, circuit.Conductance, circuit.Inductor, circuit.Capacitor:
			if !hasConst {
				return nil, fmt.Errorf("les: device %q missing a symbolic constant bit", d.Name)
			}
			b.stampPassive(d, bit)
		case circuit.IndependentVoltageSource:
			b.stampVoltageSource(d)
		case circuit.IndependentCurrentSource:
			b.stampCurrentSource(d)
		case circuit.VCVS:
			if !hasConst {
				return nil, fmt.Errorf("les: device %q missing a symbolic constant bit", d.Name)
			}
			b.stampVCVS(d, bit)
		case circuit.VCCS:
			if !hasConst {
				return nil, fmt.Errorf("les: device %q missing a symbolic constant bit", d.Name)
			}
			b.stampVCCS(d, bit)
		case circuit.CCVS:
			if !hasConst {
				return nil, fmt.Errorf("les: device %q missing a symbolic constant bit", d.Name)
			}
			b.stampCCVS(d, bit)
		case circuit.CCCS:
			if !hasConst {
				return nil, fmt.Errorf("les: device %q missing a symbolic constant bit", d.Name)
			}
			b.stampCCCS(d, bit)
		case circuit.OpAmp:
			b.stampOpAmp(d)
		case circuit.CurrentProbe:
			b.stampProbe(d)
		}
	}

	return mat, nil
}

type builder struct {
	t    *symtab.Table
	c    *circuit.Circuit
	pool *coef.Pool
	mat  *coef.Matrix
}

// addAt adds sign*1<<bit to the cell at (row, col), creating the unit
// addend via the pool and merging it into whatever coefficient is already
// there.
func (b *builder) addAt(row, col int, sign int64, bit int) {
	if row < 0 || col < 0 {
		return
	}
	word := coef.Word(0)
	if bit >= 0 {
		word = coef.Word(1) << uint(bit)
	}
	cur := b.mat.At(row, col)
	b.mat.Set(row, col, b.pool.AddAddend(cur, sign, word))
}

// stampPassive applies the classic nodal-admittance stamp for a
// two-terminal passive device with symbolic constant bit, to the KCL rows
// of its two terminals: every entry is ±1 times the device's bit.
func (b *builder) stampPassive(d *circuit.Device, bit int) {
	row1, haveRow1 := b.t.RowOf(d.Node1)
	row2, haveRow2 := b.t.RowOf(d.Node2)
	col1, haveCol1 := b.t.ColumnOf(d.Node1)
	col2, haveCol2 := b.t.ColumnOf(d.Node2)

	if haveRow1 && haveCol1 {
		b.addAt(row1, col1, 1, bit)
	}
	if haveRow1 && haveCol2 {
		b.addAt(row1, col2, -1, bit)
	}
	if haveRow2 && haveCol1 {
		b.addAt(row2, col1, -1, bit)
	}
	if haveRow2 && haveCol2 {
		b.addAt(row2, col2, 1, bit)
	}
}

// stampVoltageSource handles an ideal independent voltage source: its own
// constraint row enforces V(Node1)-V(Node2) = value (stamped into its
// known column), and its branch-current unknown participates in the KCL
// rows of both terminal nodes.
func (b *builder) stampVoltageSource(d *circuit.Device) {
	devRow, _ := b.t.RowOf(d.Name)
	col1, haveCol1 := b.t.ColumnOf(d.Node1)
	col2, haveCol2 := b.t.ColumnOf(d.Node2)
	if haveCol1 {
		b.addAt(devRow, col1, 1, -1)
	}
	if haveCol2 {
		b.addAt(devRow, col2, -1, -1)
	}
	knownCol, ok := b.t.KnownIndex(d.Name)
	if ok {
		b.addAt(devRow, b.t.NumUnknowns()+knownCol, -1, -1)
	}

	devCol, _ := b.t.ColumnOf(d.Name)
	row1, haveRow1 := b.t.RowOf(d.Node1)
	row2, haveRow2 := b.t.RowOf(d.Node2)
	if haveRow1 {
		b.addAt(row1, devCol, 1, -1)
	}
	if haveRow2 {
		b.addAt(row2, devCol, -1, -1)
	}
}

// stampCurrentSource injects ±1 (in its own known column) into the KCL
// rows of its two terminal nodes.
func (b *builder) stampCurrentSource(d *circuit.Device) {
	knownCol, ok := b.t.KnownIndex(d.Name)
	if !ok {
		return
	}
	col := b.t.NumUnknowns() + knownCol
	row1, haveRow1 := b.t.RowOf(d.Node1)
	row2, haveRow2 := b.t.RowOf(d.Node2)
	if haveRow1 {
		b.addAt(row1, col, -1, -1)
	}
	if haveRow2 {
		b.addAt(row2, col, 1, -1)
	}
}

// stampVCVS handles a voltage-controlled voltage source: constraint row
// V(Node1)-V(Node2) - k*(V(ctrl+)-V(ctrl-)) = 0, plus KCL participation of
// its branch-current unknown exactly like an independent voltage source.
func (b *builder) stampVCVS(d *circuit.Device, bit int) {
	devRow, _ := b.t.RowOf(d.Name)
	if col1, ok := b.t.ColumnOf(d.Node1); ok {
		b.addAt(devRow, col1, 1, -1)
	}
	if col2, ok := b.t.ColumnOf(d.Node2); ok {
		b.addAt(devRow, col2, -1, -1)
	}
	if cp, ok := b.t.ColumnOf(d.CtrlPlus); ok {
		b.addAt(devRow, cp, -1, bit)
	}
	if cm, ok := b.t.ColumnOf(d.CtrlMinus); ok {
		b.addAt(devRow, cm, 1, bit)
	}

	devCol, _ := b.t.ColumnOf(d.Name)
	if row1, ok := b.t.RowOf(d.Node1); ok {
		b.addAt(row1, devCol, 1, -1)
	}
	if row2, ok := b.t.RowOf(d.Node2); ok {
		b.addAt(row2, devCol, -1, -1)
	}
}

// stampVCCS handles a voltage-controlled current source: injects
// k*(V(ctrl+)-V(ctrl-)) directly into the KCL rows of Node1/Node2, with no
// extra branch-current unknown.
func (b *builder) stampVCCS(d *circuit.Device, bit int) {
	row1, haveRow1 := b.t.RowOf(d.Node1)
	row2, haveRow2 := b.t.RowOf(d.Node2)
	cp, haveCP := b.t.ColumnOf(d.CtrlPlus)
	cm, haveCM := b.t.ColumnOf(d.CtrlMinus)
	if haveRow1 && haveCP {
		b.addAt(row1, cp, -1, bit)
	}
	if haveRow1 && haveCM {
		b.addAt(row1, cm, 1, bit)
	}
	if haveRow2 && haveCP {
		b.addAt(row2, cp, 1, bit)
	}
	if haveRow2 && haveCM {
		b.addAt(row2, cm, -1, bit)
	}
}

// stampCCVS handles a current-controlled voltage source: constraint row
// V(Node1)-V(Node2) - k*I_probe = 0, with its own branch-current unknown
// participating in Node1/Node2's KCL rows.
func (b *builder) stampCCVS(d *circuit.Device, bit int) {
	devRow, _ := b.t.RowOf(d.Name)
	if col1, ok := b.t.ColumnOf(d.Node1); ok {
		b.addAt(devRow, col1, 1, -1)
	}
	if col2, ok := b.t.ColumnOf(d.Node2); ok {
		b.addAt(devRow, col2, -1, -1)
	}
	if probeCol, ok := b.t.ColumnOf(d.ProbeName); ok {
		b.addAt(devRow, probeCol, -1, bit)
	}

	devCol, _ := b.t.ColumnOf(d.Name)
	if row1, ok := b.t.RowOf(d.Node1); ok {
		b.addAt(row1, devCol, 1, -1)
	}
	if row2, ok := b.t.RowOf(d.Node2); ok {
		b.addAt(row2, devCol, -1, -1)
	}
}

// stampCCCS handles a current-controlled current source: injects
// k*I_probe directly into Node1/Node2's KCL rows.
func (b *builder) stampCCCS(d *circuit.Device, bit int) {
	row1, haveRow1 := b.t.RowOf(d.Node1)
	row2, haveRow2 := b.t.RowOf(d.Node2)
	probeCol, haveProbe := b.t.ColumnOf(d.ProbeName)
	if haveRow1 && haveProbe {
		b.addAt(row1, probeCol, -1, bit)
	}
	if haveRow2 && haveProbe {
		b.addAt(row2, probeCol, 1, bit)
	}
}

// stampOpAmp handles an ideal op-amp: virtual-short constraint row
// V(Node1) = V(Node2) (no offset, no gain), and its output branch-current
// unknown participates only in the output node's (Node3) KCL row — an
// ideal op-amp draws no current at its inputs.
func (b *builder) stampOpAmp(d *circuit.Device) {
	devRow, _ := b.t.RowOf(d.Name)
	if col1, ok := b.t.ColumnOf(d.Node1); ok {
		b.addAt(devRow, col1, 1, -1)
	}
	if col2, ok := b.t.ColumnOf(d.Node2); ok {
		b.addAt(devRow, col2, -1, -1)
	}

	devCol, _ := b.t.ColumnOf(d.Name)
	if row3, ok := b.t.RowOf(d.Node3); ok {
		b.addAt(row3, devCol, 1, -1)
	}
}

// stampProbe handles a current probe: a zero-volt short between its two
// terminals (V(Node1) = V(Node2)), with its branch current exposed as an
// unknown for CCVS/CCCS devices to reference by name.
func (b *builder) stampProbe(d *circuit.Device) {
	devRow, _ := b.t.RowOf(d.Name)
	if col1, ok := b.t.ColumnOf(d.Node1); ok {
		b.addAt(devRow, col1, 1, -1)
	}
	if col2, ok := b.t.ColumnOf(d.Node2); ok {
		b.addAt(devRow, col2, -1, -1)
	}

	devCol, _ := b.t.ColumnOf(d.Name)
	if row1, ok := b.t.RowOf(d.Node1); ok {
		b.addAt(row1, devCol, 1, -1)
	}
	if row2, ok := b.t.RowOf(d.Node2); ok {
		b.addAt(row2, devCol, -1, -1)
	}
}
