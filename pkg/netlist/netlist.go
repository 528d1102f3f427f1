// Package netlist decodes the JSON boundary encoding of a parsed netlist:
// device records, user-defined voltages, and result requests, as an
// external parser is contracted to produce them. It is the concrete
// encoding the core consumes from, not the netlist grammar/tokenizer
// itself.
package netlist

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/oisee/symcirc/pkg/circuit"
	"github.com/oisee/symcirc/pkg/rat"
)

// identPattern is the allowed identifier shape; the case-insensitive
// identifier "s" is additionally reserved for the frequency variable.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrInvalidIdent is returned when a name fails the identifier rule or
// collides with the reserved frequency variable "s".
type ErrInvalidIdent struct{ Name string }

func (e *ErrInvalidIdent) Error() string {
	return fmt.Sprintf("netlist: %q is not a valid identifier", e.Name)
}

// ErrDuplicateName is returned when two entries in the same namespace
// share an identifier.
type ErrDuplicateName struct{ Name string }

func (e *ErrDuplicateName) Error() string {
	return fmt.Sprintf("netlist: duplicate name %q", e.Name)
}

// RationalValue decodes either a bare JSON number or a "p/q" string into a
// rational, so a netlist author can write either "0.5" or "1/2".
type RationalValue rat.Rational

// UnmarshalJSON accepts a JSON number or a quoted "num/den" fraction.
func (r *RationalValue) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		parts := strings.SplitN(asString, "/", 2)
		var num, den int64
		if _, err := fmt.Sscanf(parts[0], "%d", &num); err != nil {
			return fmt.Errorf("netlist: invalid rational %q: %w", asString, err)
		}
		den = 1
		if len(parts) == 2 {
			if _, err := fmt.Sscanf(parts[1], "%d", &den); err != nil {
				return fmt.Errorf("netlist: invalid rational %q: %w", asString, err)
			}
		}
		*r = RationalValue(rat.New(num, den))
		return nil
	}
	var asFloat float64
	if err := json.Unmarshal(data, &asFloat); err != nil {
		return fmt.Errorf("netlist: rational value must be a number or \"p/q\" string: %w", err)
	}
	// Best-effort exact conversion for the common case of a short decimal.
	den := int64(1)
	for den < 1_000_000 && asFloat*float64(den) != float64(int64(asFloat*float64(den))) {
		den *= 10
	}
	*r = RationalValue(rat.New(int64(asFloat*float64(den)), den))
	return nil
}

// RelationRecord is the JSON shape of a "name = [rational] * other-name"
// device-value relation.
type RelationRecord struct {
	Of     string        `json:"of"`
	Factor RationalValue `json:"factor"`
}

// DeviceRecord is the JSON shape of one netlist device entry.
type DeviceRecord struct {
	Kind         string          `json:"kind"`
	Name         string          `json:"name"`
	Node1        string          `json:"node1,omitempty"`
	Node2        string          `json:"node2,omitempty"`
	Node3        string          `json:"node3,omitempty"`
	CtrlPlus     string          `json:"ctrl_plus,omitempty"`
	CtrlMinus    string          `json:"ctrl_minus,omitempty"`
	ProbeName    string          `json:"probe,omitempty"`
	Relation     *RelationRecord `json:"relation,omitempty"`
	DefaultValue float64         `json:"value,omitempty"`
}

// kindTags maps the JSON "kind" tag to circuit.DeviceKind.
var kindTags = map[string]circuit.DeviceKind{
	"U":     circuit.IndependentVoltageSource,
	"I":     circuit.IndependentCurrentSource,
	"VCVS":  circuit.VCVS,
	"VCCS":  circuit.VCCS,
	"CCVS":  circuit.CCVS,
	"CCCS":  circuit.CCCS,
	"R":     circuit.Resistor,
	"G":     circuit.Conductance,
	"L":     circuit.Inductor,
	"C":     circuit.Capacitor,
	"OPAMP": circuit.OpAmp,
	"PROBE": circuit.CurrentProbe,
}

// UserVoltageRecord is the JSON shape of a user-defined voltage.
type UserVoltageRecord struct {
	Name  string `json:"name"`
	Plus  string `json:"plus"`
	Minus string `json:"minus"`
}

// PlotInfoRecord is the JSON shape of the optional plot-info block.
type PlotInfoRecord struct {
	Axis    string  `json:"axis,omitempty"` // "linear" or "log"
	Points  int     `json:"points,omitempty"`
	FreqMin float64 `json:"freq_min,omitempty"`
	FreqMax float64 `json:"freq_max,omitempty"`
}

// ResultRequestRecord is the JSON shape of one result request: either a
// full result (Dependents populated) or a transfer function (Dependent and
// Independent populated).
type ResultRequestRecord struct {
	Name        string          `json:"name"`
	Dependents  []string        `json:"dependents,omitempty"`
	Dependent   string          `json:"dependent,omitempty"`
	Independent string          `json:"independent,omitempty"`
	Invert      bool            `json:"invert,omitempty"`
	Plot        *PlotInfoRecord `json:"plot,omitempty"`
}

// Document is the top-level JSON shape: everything an external netlist
// parser is contracted to hand the core.
type Document struct {
	Devices  []DeviceRecord        `json:"devices"`
	Voltages []UserVoltageRecord   `json:"voltages,omitempty"`
	Results  []ResultRequestRecord `json:"results"`
}

// Decode reads a Document from r and converts it into a circuit.Circuit,
// validating identifier and uniqueness rules along the way.
func Decode(r io.Reader) (*circuit.Circuit, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("netlist: decode: %w", err)
	}
	return fromDocument(&doc)
}

func validIdent(name string) bool {
	if !identPattern.MatchString(name) {
		return false
	}
	return true
}

func fromDocument(doc *Document) (*circuit.Circuit, error) {
	c := &circuit.Circuit{}
	seenNames := map[string]bool{}
	nodeSet := map[string]bool{}

	// addNode validates a node name on first sight — identifier shape, the
	// "s" reservation, and no collision with any already-declared name —
	// and registers it so a later device or user voltage cannot take it
	// either. Nodes recur across device records, so repeats of a node
	// already accepted pass straight through.
	addNode := func(n string) error {
		if n == "" || nodeSet[n] {
			return nil
		}
		if !validIdent(n) || strings.EqualFold(n, "s") {
			return &ErrInvalidIdent{Name: n}
		}
		if seenNames[n] {
			return &ErrDuplicateName{Name: n}
		}
		seenNames[n] = true
		nodeSet[n] = true
		c.Nodes = append(c.Nodes, n)
		return nil
	}

	// declareName enforces the per-namespace uniqueness rule. A probe's
	// injected current and a source's known column share their device's
	// name by construction inside symtab.Build (one Document entry drives
	// both), so that sharing never shows up as two separate names here —
	// every name in the Document itself must still be unique.
	declareName := func(name string) error {
		if !validIdent(name) {
			return &ErrInvalidIdent{Name: name}
		}
		if strings.EqualFold(name, "s") {
			return &ErrInvalidIdent{Name: name}
		}
		if seenNames[name] {
			return &ErrDuplicateName{Name: name}
		}
		seenNames[name] = true
		return nil
	}

	for _, dr := range doc.Devices {
		kind, ok := kindTags[strings.ToUpper(dr.Kind)]
		if !ok {
			return nil, fmt.Errorf("netlist: device %q has unknown kind %q", dr.Name, dr.Kind)
		}
		if err := declareName(dr.Name); err != nil {
			return nil, err
		}

		dev := circuit.Device{
			Name: dr.Name, Kind: kind,
			Node1: dr.Node1, Node2: dr.Node2, Node3: dr.Node3,
			CtrlPlus: dr.CtrlPlus, CtrlMinus: dr.CtrlMinus, ProbeName: dr.ProbeName,
			DefaultValue: dr.DefaultValue,
		}
		if dr.Relation != nil {
			if !validIdent(dr.Relation.Of) {
				return nil, &ErrInvalidIdent{Name: dr.Relation.Of}
			}
			dev.Relation = &circuit.Relation{Of: dr.Relation.Of, Factor: rat.Rational(dr.Relation.Factor)}
		}
		c.Devices = append(c.Devices, dev)

		for _, n := range []string{dr.Node1, dr.Node2, dr.Node3, dr.CtrlPlus, dr.CtrlMinus} {
			if err := addNode(n); err != nil {
				return nil, err
			}
		}
	}

	for _, uv := range doc.Voltages {
		if err := declareName(uv.Name); err != nil {
			return nil, err
		}
		c.UserVoltages = append(c.UserVoltages, circuit.UserVoltage{Name: uv.Name, Plus: uv.Plus, Minus: uv.Minus})
	}

	for _, rr := range doc.Results {
		req, err := resultRequestFromRecord(rr)
		if err != nil {
			return nil, err
		}
		c.Requests = append(c.Requests, req)
	}

	return c, nil
}

func resultRequestFromRecord(rr ResultRequestRecord) (circuit.ResultRequest, error) {
	isTF := rr.Dependent != "" || rr.Independent != ""
	if isTF && len(rr.Dependents) > 0 {
		return circuit.ResultRequest{}, fmt.Errorf("netlist: result %q mixes full-result and transfer-function shapes", rr.Name)
	}
	if isTF && (rr.Dependent == "" || rr.Independent == "") {
		return circuit.ResultRequest{}, fmt.Errorf("netlist: transfer-function result %q needs both dependent and independent", rr.Name)
	}
	if !isTF && len(rr.Dependents) == 0 {
		return circuit.ResultRequest{}, fmt.Errorf("netlist: result %q has no dependents", rr.Name)
	}

	req := circuit.ResultRequest{
		Name: rr.Name, IsTransferFunction: isTF,
		Dependents: rr.Dependents, Dependent: rr.Dependent, Independent: rr.Independent,
		Invert: rr.Invert,
	}
	if rr.Plot != nil {
		axis := circuit.AxisLinear
		if strings.EqualFold(rr.Plot.Axis, "log") {
			axis = circuit.AxisLog
		}
		req.Plot = &circuit.PlotInfo{Axis: axis, Points: rr.Plot.Points, FreqMin: rr.Plot.FreqMin, FreqMax: rr.Plot.FreqMax}
	}
	return req, nil
}
