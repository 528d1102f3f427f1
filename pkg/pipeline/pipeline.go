// Package pipeline wires the analyzer stages into a single control flow:
// parsed circuit -> symbol table -> LES -> solver -> frequency transform
// -> renderer. It owns the per-result sequencing and the result-level
// error recovery: one request's failure never aborts another's.
package pipeline

import (
	"fmt"

	"github.com/oisee/symcirc/pkg/circuit"
	"github.com/oisee/symcirc/pkg/coef"
	"github.com/oisee/symcirc/pkg/freq"
	"github.com/oisee/symcirc/pkg/les"
	"github.com/oisee/symcirc/pkg/render"
	"github.com/oisee/symcirc/pkg/solve"
	"github.com/oisee/symcirc/pkg/symtab"
)

// ResultOutcome is the per-request result of RunAll: exactly one of
// Solution or Err is populated.
type ResultOutcome struct {
	Name     string
	Solution *render.Solution
	Err      error
}

// RunAll processes every result request in c sequentially — never
// concurrently — collecting one outcome per request so a single failure
// never prevents the rest from rendering.
func RunAll(c *circuit.Circuit) []ResultOutcome {
	out := make([]ResultOutcome, len(c.Requests))
	for i, req := range c.Requests {
		sol, err := Run(c, req)
		out[i] = ResultOutcome{Name: req.Name, Solution: sol, Err: err}
	}
	return out
}

// Run executes one result request end to end: a fresh symbol table and
// coefficient pool per invocation (pools are per-instance, never a
// package-global, so independent Run calls never share mutable state),
// the target-unknown column swap for a transfer-function request, LES
// construction, elimination, and one cancelled render.Pair per
// (dependent, independent) combination the request asks for.
func Run(c *circuit.Circuit, req circuit.ResultRequest) (*render.Solution, error) {
	tab, err := symtab.Build(c)
	if err != nil {
		return nil, err
	}
	pool := coef.NewPool(256)

	deps, indepCols, err := resolveRequest(tab, c, req)
	if err != nil {
		return nil, err
	}

	mat, err := les.Build(tab, c, pool)
	if err != nil {
		return nil, err
	}
	sol, err := solve.Eliminate(mat, pool)
	if err != nil {
		return nil, err
	}

	denFactor, denNorm, err := normalizedDeterminant(sol, pool, tab, c)
	if err != nil {
		return nil, err
	}

	result := &render.Solution{Names: deviceNames(tab), Defaults: deviceDefaults(tab, c)}
	for _, dep := range deps {
		numRow, available, err := numeratorsFor(sol, tab, c, pool, dep)
		if err != nil {
			return nil, err
		}
		if !available {
			continue // structural: this dependent is singular, skip it and proceed
		}
		for _, ic := range indepCols {
			numExpr, err := freq.Transform(numRow[ic.col], pool, tab, c)
			if err != nil {
				// Semantic (cyclic relation) or programming error: the whole
				// result is invalid, not just this pair.
				return nil, err
			}
			if len(numExpr.Addends) == 0 {
				// This dependent does not respond to this source at all.
				result.Pairs = append(result.Pairs, render.Pair{DepName: dep, IndepName: ic.name, IsZero: true})
				continue
			}
			numFactor, numNorm, err := freq.Normalize(numExpr)
			if err != nil {
				// Arithmetic (overflow) error: same, the result is discarded.
				return nil, err
			}
			pair := render.Cancel(dep, ic.name, numFactor, numNorm, denFactor, denNorm)
			if req.Invert && !pair.IsInfinite && !pair.IsZero {
				pair.NumAddends, pair.DenAddends = pair.DenAddends, pair.NumAddends
			}
			result.Pairs = append(result.Pairs, pair)
		}
	}

	return result, nil
}

func normalizedDeterminant(sol *solve.Solution, pool *coef.Pool, tab *symtab.Table, c *circuit.Circuit) (freq.Addend, *freq.Expr, error) {
	denExpr, err := freq.Transform(sol.Determinant, pool, tab, c)
	if err != nil {
		return freq.Addend{}, nil, err
	}
	if len(denExpr.Addends) == 0 {
		return freq.Addend{}, denExpr, nil
	}
	return freq.Normalize(denExpr)
}

// deviceNames builds the bit-index -> device-name table render.Human and
// render.Script need to print actual device symbols instead of a generic
// "k<bit>" placeholder.
func deviceNames(tab *symtab.Table) []string {
	names := make([]string, coef.MaxConstants)
	for _, ce := range tab.Constants {
		names[ce.Bit] = ce.Device
	}
	return names
}

// deviceDefaults builds the bit-index -> numeric export value table the
// script output assigns before the coefficient vectors reference the
// device names.
func deviceDefaults(tab *symtab.Table, c *circuit.Circuit) []float64 {
	values := make([]float64, coef.MaxConstants)
	for _, ce := range tab.Constants {
		if d, ok := c.DeviceByName(ce.Device); ok {
			values[ce.Bit] = d.DefaultValue
		}
	}
	return values
}

type indepCol struct {
	name string
	col  int
}

// resolveRequest validates req against tab and returns the list of
// dependents to solve and the known columns to report against, applying
// the target-unknown swap for a transfer-function request. A dependent is
// either an unknown's name or a user-defined voltage.
func resolveRequest(tab *symtab.Table, c *circuit.Circuit, req circuit.ResultRequest) ([]string, []indepCol, error) {
	if req.IsTransferFunction {
		if !isDependent(tab, c, req.Dependent) {
			return nil, nil, &symtab.ErrUnresolvedName{Name: req.Dependent, Want: "unknown"}
		}
		k, ok := tab.KnownIndex(req.Independent)
		if !ok {
			return nil, nil, &symtab.ErrUnresolvedName{Name: req.Independent, Want: "known"}
		}
		// A user-voltage dependent has no column of its own to swap; its
		// two node columns are solved either way.
		if _, ok := tab.UnknownIndex(req.Dependent); ok {
			if err := swapToColumnZero(tab, req.Dependent); err != nil {
				return nil, nil, err
			}
		}
		return []string{req.Dependent}, []indepCol{{name: req.Independent, col: k}}, nil
	}

	for _, d := range req.Dependents {
		if !isDependent(tab, c, d) {
			return nil, nil, &symtab.ErrUnresolvedName{Name: d, Want: "unknown"}
		}
	}
	var indeps []indepCol
	for _, k := range tab.Knowns {
		indeps = append(indeps, indepCol{name: k.Name, col: k.Col})
	}
	return req.Dependents, indeps, nil
}

func isDependent(tab *symtab.Table, c *circuit.Circuit, name string) bool {
	if _, ok := tab.UnknownIndex(name); ok {
		return true
	}
	for _, uv := range c.UserVoltages {
		if uv.Name == name {
			return true
		}
	}
	return false
}

// numeratorsFor returns dep's numerator coefficients, one per known
// column. A plain unknown reads its eliminated row directly; a
// user-defined voltage resolves to the difference of its two node
// voltages' numerators, a ground node contributing zero. available is
// false when the LES is singular for the columns dep needs.
func numeratorsFor(sol *solve.Solution, tab *symtab.Table, c *circuit.Circuit, pool *coef.Pool, dep string) ([]coef.Coefficient, bool, error) {
	if col, ok := tab.ColumnOf(dep); ok {
		if sol.Unavailable[col] {
			return nil, false, nil
		}
		return sol.Numerators[col], true, nil
	}
	for _, uv := range c.UserVoltages {
		if uv.Name != dep {
			continue
		}
		plus, okPlus := tab.ColumnOf(uv.Plus)
		minus, okMinus := tab.ColumnOf(uv.Minus)
		if (okPlus && sol.Unavailable[plus]) || (okMinus && sol.Unavailable[minus]) {
			return nil, false, nil
		}
		row := make([]coef.Coefficient, tab.NumKnowns())
		for k := range row {
			diff := coef.Empty()
			if okPlus {
				diff = pool.Clone(sol.Numerators[plus][k])
			}
			if okMinus {
				diff = pool.Sub(diff, sol.Numerators[minus][k])
			}
			row[k] = diff
		}
		return row, true, nil
	}
	return nil, false, &symtab.ErrUnresolvedName{Name: dep, Want: "unknown"}
}

// swapToColumnZero exchanges columns so that name's unknown occupies
// column 0, the position the solver's elimination loop visits first.
// Called once per transfer-function result request, before les.Build.
func swapToColumnZero(tab *symtab.Table, name string) error {
	idx, ok := tab.UnknownIndex(name)
	if !ok {
		return fmt.Errorf("pipeline: %q has no assigned unknown", name)
	}
	col, _ := tab.ColumnOf(name)
	if col == 0 {
		return nil
	}
	for other := range tab.Unknowns {
		if tab.Unknowns[other].Col == 0 {
			return tab.SwapColumns(idx, other)
		}
	}
	return fmt.Errorf("pipeline: no unknown currently holds column 0")
}
