// Package symtab implements the analyzer's symbol table: it assigns LES
// row/column indices to circuit unknowns and knowns, enumerates symbolic
// device constants with a bit index in the product-of-constants word, and
// records device-to-device value relationships.
package symtab

import (
	"fmt"
	"sort"

	"github.com/oisee/symcirc/pkg/circuit"
	"github.com/oisee/symcirc/pkg/coef"
)

// Known is a system input column: the value of an independent source or a
// probe-injected current.
type Known struct {
	Name string
	Col  int
}

// Unknown is a node voltage or branch current the solver must produce.
// Exactly one of IsNode is true (Node set) or false (Device set).
type Unknown struct {
	Name     string
	Row, Col int
	IsNode   bool
	Node     string
	Device   string
	SubnetID int
}

// ConstantEntry assigns device Name the bit index Bit in the
// product-of-constants word.
type ConstantEntry struct {
	Device string
	Bit    int
}

// Table holds the full symbol table for one circuit analysis run. Build
// constructs it and the owning run may apply SwapColumns before solving;
// after that it is read-only and safe for concurrent readers. Tables are
// never shared across runs — each pipeline invocation builds its own.
type Table struct {
	Knowns    []Known
	Unknowns  []Unknown
	Constants []ConstantEntry

	knownIdx    map[string]int
	unknownIdx  map[string]int // by unknown name (node or device name)
	nodeUnknown map[string]int // node -> index into Unknowns
	devUnknown  map[string]int // device -> index into Unknowns
	bitOfDevice map[string]int
	deviceOfBit []string

	// Relations, keyed by device name, recording "device = Factor * Of".
	Relations map[string]circuit.Relation
}

// constantPriority groups device kinds so that bit indices are assigned
// highest-first in this order, making a printed product's factors come out
// as R*L*C (and controlled-source gains last).
var constantPriority = map[circuit.DeviceKind]int{
	circuit.Resistor:     0,
	circuit.Conductance:  1,
	circuit.Inductor:     2,
	circuit.Capacitor:    3,
	circuit.VCVS:         4,
	circuit.VCCS:         5,
	circuit.CCVS:         6,
	circuit.CCCS:         7,
}

// ErrDuplicateName is returned when two entries of the same namespace
// share a name.
type ErrDuplicateName struct{ Name string }

func (e *ErrDuplicateName) Error() string {
	return fmt.Sprintf("duplicate name %q", e.Name)
}

// ErrTooManyConstants is returned when a circuit needs more symbolic
// device constants than the product-of-constants word can address.
type ErrTooManyConstants struct{ Count, Max int }

func (e *ErrTooManyConstants) Error() string {
	return fmt.Sprintf("circuit uses %d symbolic device constants, exceeds the %d-bit limit", e.Count, e.Max)
}

// ErrUnresolvedName is returned when a result request names an identifier
// that is neither an unknown nor a known in the symbol table, or names one
// where the other kind was required.
type ErrUnresolvedName struct {
	Name string
	Want string // "unknown" or "known", the kind that was expected
}

func (e *ErrUnresolvedName) Error() string {
	return fmt.Sprintf("symtab: %q is not a valid %s identifier", e.Name, e.Want)
}

// Build constructs a symbol table from a parsed circuit: it partitions
// nodes into sub-nets, chooses one ground reference per sub-net, assigns
// one KCL row per non-ground node, one row
// per device whose branch current is an unknown, one known column per
// independent source, and one bit index per symbolic device constant.
func Build(c *circuit.Circuit) (*Table, error) {
	t := &Table{
		knownIdx:    map[string]int{},
		unknownIdx:  map[string]int{},
		nodeUnknown: map[string]int{},
		devUnknown:  map[string]int{},
		bitOfDevice: map[string]int{},
		Relations:   map[string]circuit.Relation{},
	}

	subnetOf, grounds := partitionSubnets(c)

	// Node-voltage unknowns: one per non-ground node, ordered for
	// deterministic output.
	nodes := append([]string(nil), c.Nodes...)
	sort.Strings(nodes)
	for _, n := range nodes {
		sn := subnetOf[n]
		if n == grounds[sn] {
			continue
		}
		if err := t.addNodeUnknown(n, sn); err != nil {
			return nil, err
		}
	}

	// Branch-current unknowns: independent voltage sources, VCVS and CCVS
	// outputs, op-amp outputs, and current probes all carry a current that
	// is itself unknown to the LES.
	for _, d := range c.Devices {
		switch d.Kind {
		case circuit.IndependentVoltageSource, circuit.OpAmp, circuit.CurrentProbe,
			circuit.VCVS, circuit.CCVS:
			if err := t.addDeviceUnknown(d.Name, subnetOf[d.Node1]); err != nil {
				return nil, err
			}
		}
	}

	// Known columns: one per independent source.
	for _, d := range c.Devices {
		switch d.Kind {
		case circuit.IndependentVoltageSource, circuit.IndependentCurrentSource:
			if err := t.addKnown(d.Name); err != nil {
				return nil, err
			}
		case circuit.CurrentProbe:
			// A current probe's injected current is also a known input,
			// sharing its name with the probe.
			if err := t.addKnown(d.Name); err != nil {
				return nil, err
			}
		}
	}

	// Constant bit assignment, grouped per constantPriority, highest
	// priority first so it occupies the highest bit (descending-product
	// printing puts it first).
	var symbolic []circuit.Device
	for _, d := range c.Devices {
		if d.Kind.HasSymbolicConstant() {
			symbolic = append(symbolic, d)
		}
	}
	sort.SliceStable(symbolic, func(i, j int) bool {
		pi, pj := constantPriority[symbolic[i].Kind], constantPriority[symbolic[j].Kind]
		if pi != pj {
			return pi < pj
		}
		return symbolic[i].Name < symbolic[j].Name
	})
	if len(symbolic) > coef.MaxConstants {
		return nil, &ErrTooManyConstants{Count: len(symbolic), Max: coef.MaxConstants}
	}
	for i, d := range symbolic {
		bit := len(symbolic) - 1 - i // highest priority gets highest bit
		if err := t.addConstant(d.Name, bit); err != nil {
			return nil, err
		}
		if d.Relation != nil {
			t.Relations[d.Name] = *d.Relation
		}
	}

	return t, nil
}

func (t *Table) addNodeUnknown(node string, subnet int) error {
	if _, dup := t.unknownIdx[node]; dup {
		return &ErrDuplicateName{Name: node}
	}
	idx := len(t.Unknowns)
	t.Unknowns = append(t.Unknowns, Unknown{Name: node, Row: idx, Col: idx, IsNode: true, Node: node, SubnetID: subnet})
	t.unknownIdx[node] = idx
	t.nodeUnknown[node] = idx
	return nil
}

func (t *Table) addDeviceUnknown(dev string, subnet int) error {
	if _, dup := t.unknownIdx[dev]; dup {
		return &ErrDuplicateName{Name: dev}
	}
	idx := len(t.Unknowns)
	t.Unknowns = append(t.Unknowns, Unknown{Name: dev, Row: idx, Col: idx, IsNode: false, Device: dev, SubnetID: subnet})
	t.unknownIdx[dev] = idx
	t.devUnknown[dev] = idx
	return nil
}

func (t *Table) addKnown(name string) error {
	if _, dup := t.knownIdx[name]; dup {
		return &ErrDuplicateName{Name: name}
	}
	idx := len(t.Knowns)
	t.Knowns = append(t.Knowns, Known{Name: name, Col: idx})
	t.knownIdx[name] = idx
	return nil
}

func (t *Table) addConstant(device string, bit int) error {
	if _, dup := t.bitOfDevice[device]; dup {
		return &ErrDuplicateName{Name: device}
	}
	t.Constants = append(t.Constants, ConstantEntry{Device: device, Bit: bit})
	t.bitOfDevice[device] = bit
	for len(t.deviceOfBit) <= bit {
		t.deviceOfBit = append(t.deviceOfBit, "")
	}
	t.deviceOfBit[bit] = device
	return nil
}

// BitOf returns the product-of-constants bit index assigned to device, and
// whether it has one (only devices with HasSymbolicConstant() do).
func (t *Table) BitOf(device string) (int, bool) {
	b, ok := t.bitOfDevice[device]
	return b, ok
}

// DeviceOfBit is the inverse of BitOf.
func (t *Table) DeviceOfBit(bit int) (string, bool) {
	if bit < 0 || bit >= len(t.deviceOfBit) || t.deviceOfBit[bit] == "" {
		return "", false
	}
	return t.deviceOfBit[bit], true
}

// UnknownIndex returns the index into Unknowns of the unknown named name
// (its position at construction time, not its current column — see
// ColumnOf for the swappable column).
func (t *Table) UnknownIndex(name string) (int, bool) {
	i, ok := t.unknownIdx[name]
	return i, ok
}

// ColumnOf returns the current LES column assigned to the unknown named
// name, reflecting any prior SwapColumns call.
func (t *Table) ColumnOf(name string) (int, bool) {
	i, ok := t.unknownIdx[name]
	if !ok {
		return 0, false
	}
	return t.Unknowns[i].Col, true
}

// RowOf returns the fixed LES row assigned to the unknown named name. Rows
// never change after Build (only columns are swappable).
func (t *Table) RowOf(name string) (int, bool) {
	i, ok := t.unknownIdx[name]
	if !ok {
		return 0, false
	}
	return t.Unknowns[i].Row, true
}

// KnownIndex returns the column index of the known named name.
func (t *Table) KnownIndex(name string) (int, bool) {
	i, ok := t.knownIdx[name]
	return i, ok
}

// NumUnknowns is the LES dimension m.
func (t *Table) NumUnknowns() int { return len(t.Unknowns) }

// NumKnowns is the count of independent source/known columns.
func (t *Table) NumKnowns() int { return len(t.Knowns) }

// SwapColumns exchanges the column indices of two unknowns, preserving
// every other invariant. Used to pin a target unknown to a chosen column
// before elimination.
func (t *Table) SwapColumns(i, j int) error {
	if i < 0 || i >= len(t.Unknowns) || j < 0 || j >= len(t.Unknowns) {
		return fmt.Errorf("symtab: column index out of range")
	}
	t.Unknowns[i].Col, t.Unknowns[j].Col = t.Unknowns[j].Col, t.Unknowns[i].Col
	return nil
}

// partitionSubnets groups nodes into connected components using the
// devices' primary terminal pairs (Node1/Node2) only — controlling-node
// pairs of VCVS/VCCS never form a galvanic edge, so short-circuits implied
// by controlled-source references do not merge sub-nets. It returns a map
// from node to subnet id and,
// per subnet, the chosen ground node (a node literally named "gnd" or "0"
// if the subnet has one, else its lexicographically smallest node).
func partitionSubnets(c *circuit.Circuit) (map[string]int, map[int]string) {
	uf := newUnionFind(c.Nodes)
	for _, d := range c.Devices {
		if d.Node1 != "" && d.Node2 != "" {
			uf.union(d.Node1, d.Node2)
		}
	}

	groups := map[string][]string{}
	for _, n := range c.Nodes {
		root := uf.find(n)
		groups[root] = append(groups[root], n)
	}

	subnetOf := map[string]int{}
	grounds := map[int]string{}
	ids := make([]string, 0, len(groups))
	for root := range groups {
		ids = append(ids, root)
	}
	sort.Strings(ids)
	for i, root := range ids {
		members := groups[root]
		sort.Strings(members)
		ground := members[0]
		for _, m := range members {
			if m == "gnd" || m == "0" {
				ground = m
			}
			subnetOf[m] = i
		}
		grounds[i] = ground
	}
	return subnetOf, grounds
}

type unionFind struct {
	parent map[string]string
}

func newUnionFind(nodes []string) *unionFind {
	parent := make(map[string]string, len(nodes))
	for _, n := range nodes {
		parent[n] = n
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(n string) string {
	for u.parent[n] != n {
		u.parent[n] = u.parent[u.parent[n]]
		n = u.parent[n]
	}
	return n
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}
