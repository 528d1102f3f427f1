// Package circuit defines the read-only input model the symbolic analyzer
// consumes: devices, nodes, user-defined voltages, and result requests, as
// produced by an external netlist parser (out of scope for this module —
// see pkg/netlist for the boundary decoding contract).
package circuit

import (
	"fmt"

	"github.com/oisee/symcirc/pkg/rat"
)

// DeviceKind enumerates the device types a netlist can contain.
type DeviceKind int

const (
	IndependentVoltageSource DeviceKind = iota
	IndependentCurrentSource
	VCVS // voltage-controlled voltage source
	VCCS // voltage-controlled current source
	CCVS // current-controlled voltage source
	CCCS // current-controlled current source
	Resistor
	Conductance
	Inductor
	Capacitor
	OpAmp
	CurrentProbe

	deviceKindCount
)

func (k DeviceKind) String() string {
	switch k {
	case IndependentVoltageSource:
		return "U"
	case IndependentCurrentSource:
		return "I"
	case VCVS:
		return "VCVS"
	case VCCS:
		return "VCCS"
	case CCVS:
		return "CCVS"
	case CCCS:
		return "CCCS"
	case Resistor:
		return "R"
	case Conductance:
		return "G"
	case Inductor:
		return "L"
	case Capacitor:
		return "C"
	case OpAmp:
		return "OpAmp"
	case CurrentProbe:
		return "Probe"
	default:
		return fmt.Sprintf("DeviceKind(%d)", int(k))
	}
}

// IsPassive reports whether k is R, G, L, or C — the device kinds whose
// symbolic value contributes an admittance in the frequency-domain
// transform.
func (k DeviceKind) IsPassive() bool {
	switch k {
	case Resistor, Conductance, Inductor, Capacitor:
		return true
	}
	return false
}

// IsControlledSource reports whether k is one of the four controlled-source
// kinds, all of which contribute a plain gain in the frequency domain.
func (k DeviceKind) IsControlledSource() bool {
	switch k {
	case VCVS, VCCS, CCVS, CCCS:
		return true
	}
	return false
}

// HasSymbolicConstant reports whether instances of k are assigned a bit in
// the symbol table's product-of-constants word. Independent sources,
// op-amps, and current probes are not symbolic constants themselves —
// independent sources spawn a known column instead.
func (k DeviceKind) HasSymbolicConstant() bool {
	return k.IsPassive() || k.IsControlledSource()
}

// Relation records "this device's value = Factor * Of's value".
type Relation struct {
	Of     string // referenced device name
	Factor rat.Rational
}

// Device is one netlist component.
type Device struct {
	Name string
	Kind DeviceKind

	// Terminal nodes. Node1/Node2 are always present. Node3 is the op-amp
	// output node. CtrlPlus/CtrlMinus are the controlling node pair for
	// VCVS/VCCS. ProbeName names the current probe a CCVS/CCCS reads.
	Node1, Node2 string
	Node3        string
	CtrlPlus     string
	CtrlMinus    string
	ProbeName    string

	// Relation is non-nil when this device's value is defined relative to
	// another device's value rather than given directly.
	Relation *Relation

	// DefaultValue is the numeric value used when exporting a back-end
	// script that needs a concrete default.
	DefaultValue float64
}

// UserVoltage names the potential difference between two nodes.
type UserVoltage struct {
	Name        string
	Plus, Minus string
}

// Axis selects linear or logarithmic frequency sweep for plotting.
type Axis int

const (
	AxisLinear Axis = iota
	AxisLog
)

// PlotInfo carries optional sweep parameters for a result request.
type PlotInfo struct {
	Axis    Axis
	Points  int
	FreqMin float64
	FreqMax float64
}

// ResultRequest is either a "full" result (many dependents over many
// independents) or a single transfer function (one dependent, one
// independent). Exactly one of Dependents or (Dependent, Independent) is
// populated, selected by IsTransferFunction.
type ResultRequest struct {
	Name               string
	IsTransferFunction bool

	// Full-result form.
	Dependents []string

	// Transfer-function form.
	Dependent   string
	Independent string

	// Invert requests the reciprocal of the transfer function above:
	// numerator and denominator exchanged, rather than re-deriving a
	// separate LES solve.
	Invert bool

	Plot *PlotInfo
}

// Circuit is the fully parsed input to the analyzer. It is read-only
// after construction: netlist.Decode (or a test fixture) populates it
// once, and every later stage only reads it, so a single *Circuit is
// safe to share across concurrent pipeline runs.
type Circuit struct {
	Nodes        []string
	Devices      []Device
	UserVoltages []UserVoltage
	Requests     []ResultRequest
}

// DeviceByName returns the device named n, or ok=false if none exists.
func (c *Circuit) DeviceByName(n string) (Device, bool) {
	for i := range c.Devices {
		if c.Devices[i].Name == n {
			return c.Devices[i], true
		}
	}
	return Device{}, false
}
