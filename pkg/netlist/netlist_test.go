package netlist

import (
	"strings"
	"testing"

	"github.com/oisee/symcirc/pkg/circuit"
)

const rlcDoc = `{
  "devices": [
    {"kind": "U", "name": "Uin", "node1": "in", "node2": "gnd"},
    {"kind": "L", "name": "L", "node1": "in", "node2": "K1"},
    {"kind": "C", "name": "C", "node1": "K1", "node2": "out"},
    {"kind": "R", "name": "R", "node1": "out", "node2": "gnd"}
  ],
  "results": [
    {"name": "G", "dependent": "out", "independent": "Uin"}
  ]
}`

func TestDecodeRLCLowpass(t *testing.T) {
	c, err := Decode(strings.NewReader(rlcDoc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(c.Devices) != 4 {
		t.Fatalf("expected 4 devices, got %d", len(c.Devices))
	}
	if len(c.Nodes) != 4 {
		t.Fatalf("expected 4 distinct nodes, got %d: %v", len(c.Nodes), c.Nodes)
	}
	if len(c.Requests) != 1 {
		t.Fatalf("expected 1 result request, got %d", len(c.Requests))
	}
	req := c.Requests[0]
	if !req.IsTransferFunction || req.Dependent != "out" || req.Independent != "Uin" {
		t.Errorf("request = %+v, want a transfer function out/Uin", req)
	}

	r, ok := c.DeviceByName("R")
	if !ok || r.Kind != circuit.Resistor {
		t.Errorf("device R = %+v, ok=%v, want kind Resistor", r, ok)
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	doc := `{"devices":[{"kind":"ZZZ","name":"X","node1":"a","node2":"b"}],"results":[]}`
	if _, err := Decode(strings.NewReader(doc)); err == nil {
		t.Errorf("expected an error for an unknown device kind")
	}
}

func TestDecodeRejectsDuplicateName(t *testing.T) {
	doc := `{
	  "devices": [
	    {"kind": "R", "name": "R1", "node1": "a", "node2": "b"},
	    {"kind": "R", "name": "R1", "node1": "b", "node2": "c"}
	  ],
	  "results": []
	}`
	if _, err := Decode(strings.NewReader(doc)); err == nil {
		t.Errorf("expected a duplicate-name error")
	} else if _, ok := err.(*ErrDuplicateName); !ok {
		// Decode returns *ErrDuplicateName unwrapped; should a wrapped error
		// come back instead, match it by substring rather than by exact type.
		if !strings.Contains(err.Error(), "duplicate") {
			t.Errorf("expected a duplicate-name error, got %v", err)
		}
	}
}

func TestDecodeRejectsInvalidIdentifier(t *testing.T) {
	doc := `{"devices":[{"kind":"R","name":"1bad","node1":"a","node2":"b"}],"results":[]}`
	if _, err := Decode(strings.NewReader(doc)); err == nil {
		t.Errorf("expected an error for an invalid identifier")
	}
}

func TestDecodeRejectsReservedFrequencyVariableName(t *testing.T) {
	doc := `{"devices":[{"kind":"R","name":"s","node1":"a","node2":"b"}],"results":[]}`
	if _, err := Decode(strings.NewReader(doc)); err == nil {
		t.Errorf("expected an error reserving the identifier \"s\" for the frequency variable")
	}
}

func TestDecodeRejectsNodeNamedS(t *testing.T) {
	doc := `{"devices":[{"kind":"R","name":"R1","node1":"s","node2":"gnd"}],"results":[]}`
	if _, err := Decode(strings.NewReader(doc)); err == nil {
		t.Errorf("expected an error for a node named \"s\" (reserved frequency variable)")
	}
}

func TestDecodeRejectsMalformedNodeName(t *testing.T) {
	doc := `{"devices":[{"kind":"R","name":"R1","node1":"bad node","node2":"gnd"}],"results":[]}`
	if _, err := Decode(strings.NewReader(doc)); err == nil {
		t.Errorf("expected an error for a node name with a space in it")
	}
}

func TestDecodeRejectsNodeCollidingWithDeviceName(t *testing.T) {
	doc := `{
	  "devices": [
	    {"kind": "R", "name": "R1", "node1": "a", "node2": "b"},
	    {"kind": "R", "name": "R2", "node1": "b", "node2": "R1"}
	  ],
	  "results": []
	}`
	if _, err := Decode(strings.NewReader(doc)); err == nil {
		t.Errorf("expected an error for a node sharing a device's name")
	}
}

func TestDecodeAcceptsNodeSharedAcrossDevices(t *testing.T) {
	// The same node referenced by several devices is the normal case, not
	// a duplicate-name violation.
	c, err := Decode(strings.NewReader(rlcDoc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(c.Nodes) != 4 {
		t.Errorf("expected 4 distinct nodes, got %d: %v", len(c.Nodes), c.Nodes)
	}
}

func TestDecodeDeviceRelationAsFractionString(t *testing.T) {
	doc := `{
	  "devices": [
	    {"kind": "R", "name": "R1", "node1": "a", "node2": "b"},
	    {"kind": "R", "name": "R2", "node1": "b", "node2": "gnd", "relation": {"of": "R1", "factor": "3/2"}}
	  ],
	  "results": []
	}`
	c, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	r2, ok := c.DeviceByName("R2")
	if !ok || r2.Relation == nil {
		t.Fatalf("expected R2 to carry a relation")
	}
	if r2.Relation.Of != "R1" || r2.Relation.Factor.Num != 3 || r2.Relation.Factor.Den != 2 {
		t.Errorf("R2's relation = %+v, want Of=R1 Factor=3/2", r2.Relation)
	}
}

func TestDecodeFullResultRequest(t *testing.T) {
	doc := `{
	  "devices": [
	    {"kind": "U", "name": "Uin", "node1": "in", "node2": "gnd"},
	    {"kind": "R", "name": "R1", "node1": "in", "node2": "out"},
	    {"kind": "I", "name": "Iin", "node1": "out", "node2": "gnd"}
	  ],
	  "results": [
	    {"name": "full", "dependents": ["in", "out"]}
	  ]
	}`
	c, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	req := c.Requests[0]
	if req.IsTransferFunction {
		t.Errorf("expected a full-result request, not a transfer function")
	}
	if len(req.Dependents) != 2 {
		t.Errorf("expected 2 dependents, got %d", len(req.Dependents))
	}
}

func TestDecodeRejectsMixedResultShape(t *testing.T) {
	doc := `{
	  "devices": [{"kind":"R","name":"R1","node1":"a","node2":"b"}],
	  "results": [{"name": "bad", "dependents": ["a"], "dependent": "a", "independent": "R1"}]
	}`
	if _, err := Decode(strings.NewReader(doc)); err == nil {
		t.Errorf("expected an error mixing full-result and transfer-function shapes")
	}
}
