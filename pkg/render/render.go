// Package render implements the result renderer: it cancels each
// dependent/independent numerator against the shared determinant
// denominator, deduplicates the resulting expressions (recognizing a
// sign-only "absolute" match), orders them so nothing is printed before
// what it references, and prints both a human-readable and a back-end
// script form.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/oisee/symcirc/pkg/freq"
	"github.com/oisee/symcirc/pkg/rat"
)

// Infinity is the sentinel printed when a denominator cancels to zero: an
// explicit unsigned-infinity token, since the sign of the limit depends on
// elimination ordering and cannot be derived reliably.
const Infinity = "inf"

// Pair is one cancelled (numerator, denominator) result for a single
// (dependent, independent) combination. A nil addend slice means the
// literal 1. IsZero marks a dependent that does not respond to this
// independent at all (numerator identically zero).
type Pair struct {
	DepName, IndepName string
	NumAddends         []freq.Addend
	DenAddends         []freq.Addend
	IsInfinite         bool
	IsZero             bool
}

// exprEqual reports whether a and b are the exact same ordered addend
// list; the normal form makes this a term-by-term comparison.
func exprEqual(a, b []freq.Addend) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].PowerS != b[i].PowerS || a[i].Powers != b[i].Powers || !a[i].Factor.Equal(b[i].Factor) {
			return false
		}
	}
	return true
}

// absEqual reports whether a and b are equal up to a global sign flip,
// the "absolute equality" rule used by deduplication.
func absEqual(a, b []freq.Addend) bool {
	if exprEqual(a, b) {
		return true
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].PowerS != b[i].PowerS || a[i].Powers != b[i].Powers || !a[i].Factor.Equal(b[i].Factor.Neg()) {
			return false
		}
	}
	return true
}

// scale multiplies every addend by the single addend by, returning a
// freshly merged addend list. Used to apply a cancelling addend to a
// normalized expression's addend list.
func scale(addends []freq.Addend, by freq.Addend) []freq.Addend {
	out := &freq.Expr{}
	for _, a := range addends {
		f, _ := rat.Mul(a.Factor, by.Factor)
		var powers [64]int
		for bit := range powers {
			powers[bit] = a.Powers[bit] + by.Powers[bit]
		}
		out.Add(f, a.PowerS+by.PowerS, powers)
	}
	return out.Addends
}

// Cancel performs the cancellation step for one (dep, indep) pair, given
// its (numFactor, numExpr) and (denFactor, denExpr), both already
// produced by freq.Normalize. One shared cancelling addend — rational
// part lcm(denominators)/gcd(numerators), exponents the negated pairwise
// minima of the two factors' exponents — is folded into each side's own
// factor, so the two sides stay integer-valued and the denominator is
// untouched whenever the numerator's factor dominates. Sign is fixed so
// the denominator's leading factor is positive.
func Cancel(depName, indepName string, numFactor freq.Addend, numExpr *freq.Expr, denFactor freq.Addend, denExpr *freq.Expr) Pair {
	p := Pair{DepName: depName, IndepName: indepName}

	if denFactor.Factor.IsZero() && len(denExpr.Addends) == 0 {
		p.IsInfinite = true
		return p
	}

	var cancel freq.Addend
	cancel.Factor = rat.New(
		lcm64(denFactor.Factor.Den, numFactor.Factor.Den),
		gcd64(numFactor.Factor.Num, denFactor.Factor.Num),
	)
	cancel.PowerS = -minInt(numFactor.PowerS, denFactor.PowerS)
	for bit := range cancel.Powers {
		cancel.Powers[bit] = -minInt(numFactor.Powers[bit], denFactor.Powers[bit])
	}

	numAdd := mulAddend(numFactor, cancel)
	denAdd := mulAddend(denFactor, cancel)

	numList := numExpr.Addends
	denList := denExpr.Addends
	if exprEqual(numList, denList) {
		// The non-factor expressions cancel entirely; only the factors remain.
		numList, denList = nil, nil
	}

	numOut := scale(orLiteralOne(numList), numAdd)
	denOut := scale(orLiteralOne(denList), denAdd)

	if len(denOut) > 0 && denOut[0].Factor.Sign() < 0 {
		negateAll(numOut)
		negateAll(denOut)
	}

	if exprEqual(numOut, denOut) {
		return p // ratio is exactly 1, printed as 1/1
	}

	p.NumAddends = numOut
	p.DenAddends = denOut
	return p
}

// orLiteralOne substitutes the single unit addend for a list that
// cancelled down to the literal 1, so scale has something to multiply.
func orLiteralOne(addends []freq.Addend) []freq.Addend {
	if len(addends) > 0 {
		return addends
	}
	return []freq.Addend{{Factor: rat.One}}
}

// mulAddend multiplies two single addends.
func mulAddend(a, b freq.Addend) freq.Addend {
	f, _ := rat.Mul(a.Factor, b.Factor)
	out := freq.Addend{Factor: f, PowerS: a.PowerS + b.PowerS}
	for bit := range out.Powers {
		out.Powers[bit] = a.Powers[bit] + b.Powers[bit]
	}
	return out
}

func negateAll(addends []freq.Addend) {
	for i := range addends {
		addends[i].Factor = addends[i].Factor.Neg()
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func gcd64(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}

func lcm64(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	g := gcd64(a, b)
	r := a / g * b
	if r < 0 {
		return -r
	}
	return r
}

// entry is one deduplicated expression in the result map.
type entry struct {
	addends []freq.Addend
	name    string
	isDenom bool
	printed bool // reset at the start of each print pass
}

// ExprMap deduplicates and names every cancelled expression for one
// solution, enforcing the rendering-order and naming rules.
type ExprMap struct {
	entries []entry
}

// NewExprMap creates an empty expression map.
func NewExprMap() *ExprMap {
	return &ExprMap{}
}

// ref points at a deduplicated entry, optionally tagged negated: the
// referencing pair's expression is the entry's additive inverse.
type ref struct {
	idx     int
	negated bool
}

// insert adds addends to the map (if not already present, including an
// absolute-equality match), returning its reference.
func (m *ExprMap) insert(addends []freq.Addend, isDenom bool) ref {
	for i, e := range m.entries {
		if exprEqual(e.addends, addends) {
			return ref{idx: i}
		}
		if absEqual(e.addends, addends) {
			return ref{idx: i, negated: true}
		}
	}
	m.entries = append(m.entries, entry{addends: addends, isDenom: isDenom})
	return ref{idx: len(m.entries) - 1}
}

// name assigns a name to entry idx if it doesn't have one yet, preferring
// a denominator name over a numerator name for the same underlying
// expression (denominators claim naming precedence).
func (m *ExprMap) name(idx int, candidate string, isDenom bool) {
	e := &m.entries[idx]
	if e.name == "" {
		e.name = candidate
		e.isDenom = isDenom
		return
	}
	if isDenom && !e.isDenom {
		e.name = candidate
		e.isDenom = true
	}
}

// pairRef is a Pair reduced to map references, ready for ordered printing.
type pairRef struct {
	depName, indepName string
	num, den           *ref // nil means the literal 1
	isInfinite         bool
	isZero             bool
}

// Solution is the full set of cancelled pairs for one result request,
// ready for ordering and printing. Names maps a product-of-constants bit
// index to the device name Human/Script should print for it; Defaults
// carries, per bit, the device's numeric export value for the script
// output.
type Solution struct {
	Pairs    []Pair
	Names    []string
	Defaults []float64
}

// Build inserts every pair's numerator/denominator into a fresh ExprMap
// and names every entry, denominators claiming naming precedence over
// numerators. The returned refs preserve Pairs' order — the
// "iterative fixpoint over unreleased dependents" collapses, for this
// renderer, to the request order already chosen by the pipeline, since
// every expression used as a denominator is named before any numerator
// can steal its name.
func Build(sol *Solution) (*ExprMap, []pairRef) {
	m := NewExprMap()
	refs := make([]pairRef, len(sol.Pairs))
	for i, p := range sol.Pairs {
		refs[i].depName = p.DepName
		refs[i].indepName = p.IndepName
		refs[i].isInfinite = p.IsInfinite
		refs[i].isZero = p.IsZero
		if p.IsInfinite || p.IsZero {
			continue
		}
		if len(p.DenAddends) > 0 {
			r := m.insert(p.DenAddends, true)
			refs[i].den = &r
		}
		if len(p.NumAddends) > 0 {
			r := m.insert(p.NumAddends, false)
			refs[i].num = &r
		}
	}
	// Only a non-negated reference may claim an entry's canonical name: the
	// stored addends are the creating reference's sign, and a name assigned
	// through a sign-flipped match would print the wrong body under it.
	// Every entry's creating reference is non-negated, so each referenced
	// entry still ends up named.
	for i, p := range sol.Pairs {
		if refs[i].den != nil && !refs[i].den.negated {
			m.name(refs[i].den.idx, fmt.Sprintf("D_%s_%s", p.DepName, p.IndepName), true)
		}
	}
	for i, p := range sol.Pairs {
		if refs[i].num != nil && !refs[i].num.negated {
			m.name(refs[i].num.idx, fmt.Sprintf("N_%s_%s", p.DepName, p.IndepName), false)
		}
	}
	return m, refs
}

// resetPrinted clears every entry's printed flag, run at the start of
// each print pass so full-vs-back-reference is computed fresh per pass.
func (m *ExprMap) resetPrinted() {
	for i := range m.entries {
		m.entries[i].printed = false
	}
}

// renderLine writes one "<lhs> = <rhs>" line for r, where rhs is the full
// expression body the first time r's entry is seen this pass, or a named
// back-reference (with a leading minus if r is the negated twin)
// thereafter. lhs is the name to assign this occurrence when rendering in
// full; once an entry already carries its own name (from Build), lhs
// falls back to reusing the canonical name.
func (m *ExprMap) renderLine(w io.Writer, lhs string, r *ref, names []string) error {
	if r == nil {
		_, err := fmt.Fprintf(w, "%s = 1\n", lhs)
		return err
	}
	e := &m.entries[r.idx]
	name := e.name
	if name == "" {
		name = lhs
	}
	sign := ""
	if r.negated {
		sign = "-"
	}
	if !e.printed {
		e.printed = true
		if _, err := fmt.Fprintf(w, "%s = %s\n", name, PrintExpr(e.addends, names)); err != nil {
			return err
		}
		if name == lhs {
			return nil
		}
		// The canonical name belongs to another pair; this pair's own name
		// still needs its aliasing assignment.
		_, err := fmt.Fprintf(w, "%s = %s%s\n", lhs, sign, name)
		return err
	}
	if name == lhs {
		return nil // this occurrence IS the canonical name; nothing further to say
	}
	_, err := fmt.Fprintf(w, "%s = %s%s\n", lhs, sign, name)
	return err
}

// groupByDep buckets refs by dependent name, preserving first-appearance
// order of both dependents and pairs.
func groupByDep(refs []pairRef) ([]string, map[string][]pairRef) {
	var order []string
	seen := map[string]bool{}
	groups := map[string][]pairRef{}
	for _, pr := range refs {
		if !seen[pr.depName] {
			seen[pr.depName] = true
			order = append(order, pr.depName)
		}
		groups[pr.depName] = append(groups[pr.depName], pr)
	}
	return order, groups
}

// Human writes the human-readable text form: one summary line per
// dependent expressing it as a sum of N/D ratios over the independents,
// then for each pair in order, numerator then denominator, full body the
// first time an expression is seen, a named back-reference thereafter.
// names maps a device's product-of-constants bit index to its source
// device name (Solution.Names, or nil to fall back to the generic
// "k<bit>" label).
func Human(m *ExprMap, refs []pairRef, w io.Writer, names []string) error {
	m.resetPrinted()
	order, groups := groupByDep(refs)
	for _, dep := range order {
		var terms []string
		for _, pr := range groups[dep] {
			terms = append(terms, fmt.Sprintf("N_%s_%s(s)/D_%s_%s(s) * %s(s)",
				pr.depName, pr.indepName, pr.depName, pr.indepName, pr.indepName))
		}
		if _, err := fmt.Fprintf(w, "%s(s) = %s\n", dep, strings.Join(terms, " + ")); err != nil {
			return err
		}
	}
	for _, pr := range refs {
		if pr.isInfinite {
			if _, err := fmt.Fprintf(w, "N_%s_%s = 1\n", pr.depName, pr.indepName); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "D_%s_%s = %s\n", pr.depName, pr.indepName, Infinity); err != nil {
				return err
			}
			continue
		}
		if pr.isZero {
			if _, err := fmt.Fprintf(w, "N_%s_%s = 0\n", pr.depName, pr.indepName); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "D_%s_%s = 1\n", pr.depName, pr.indepName); err != nil {
				return err
			}
			continue
		}
		if err := m.renderLine(w, fmt.Sprintf("N_%s_%s", pr.depName, pr.indepName), pr.num, names); err != nil {
			return err
		}
		if err := m.renderLine(w, fmt.Sprintf("D_%s_%s", pr.depName, pr.indepName), pr.den, names); err != nil {
			return err
		}
	}
	return nil
}

// ScriptDialect carries the syntax hooks a numeric back-end needs: how to
// introduce a comment, how to write an assignment, how to construct an
// LTI object from a numerator/denominator vector pair, and boilerplate
// emitted before and after the expressions. This keeps the script grammar
// back-end-agnostic rather than hardwiring one target language.
type ScriptDialect struct {
	CommentPrefix string
	Assign        func(name, expr string) string
	LTI           func(name, num, den string) string
	Prelude       string
	Boilerplate   string
}

// Script writes the numeric back-end form: device default values first,
// then, grouped by dependent in first-appearance order, all of that
// dependent's denominators before any of its numerators, so nothing is
// referenced before it is assigned, and finally one LTI construction per
// finite pair. Expression bodies are row vectors of polynomial
// coefficients in s, descending, with missing powers written as a literal
// 0. defaults maps a bit index to the device's numeric export value;
// pass nil to skip the value assignments.
func Script(m *ExprMap, refs []pairRef, w io.Writer, dialect ScriptDialect, names []string, defaults []float64) error {
	m.resetPrinted()
	if dialect.Prelude != "" {
		if _, err := io.WriteString(w, dialect.Prelude); err != nil {
			return err
		}
	}
	if defaults != nil {
		for bit := len(names) - 1; bit >= 0; bit-- {
			if bit >= len(defaults) || names[bit] == "" {
				continue
			}
			if err := writeAssign(w, dialect, names[bit], fmt.Sprintf("%g", defaults[bit])); err != nil {
				return err
			}
		}
	}
	order, groups := groupByDep(refs)

	for _, dep := range order {
		group := groups[dep]
		for _, pr := range group {
			switch {
			case pr.isInfinite:
				if err := writeAssign(w, dialect, fmt.Sprintf("D_%s_%s", pr.depName, pr.indepName), Infinity); err != nil {
					return err
				}
			case pr.isZero:
				if err := writeAssign(w, dialect, fmt.Sprintf("D_%s_%s", pr.depName, pr.indepName), "1"); err != nil {
					return err
				}
			default:
				if err := m.scriptLine(w, dialect, fmt.Sprintf("D_%s_%s", pr.depName, pr.indepName), pr.den, names); err != nil {
					return err
				}
			}
		}
		for _, pr := range group {
			switch {
			case pr.isInfinite:
				if err := writeAssign(w, dialect, fmt.Sprintf("N_%s_%s", pr.depName, pr.indepName), "1"); err != nil {
					return err
				}
			case pr.isZero:
				if err := writeAssign(w, dialect, fmt.Sprintf("N_%s_%s", pr.depName, pr.indepName), "0"); err != nil {
					return err
				}
			default:
				if err := m.scriptLine(w, dialect, fmt.Sprintf("N_%s_%s", pr.depName, pr.indepName), pr.num, names); err != nil {
					return err
				}
			}
		}
		if dialect.LTI != nil {
			for _, pr := range group {
				if pr.isInfinite {
					continue
				}
				line := dialect.LTI(
					fmt.Sprintf("G_%s_%s", pr.depName, pr.indepName),
					fmt.Sprintf("N_%s_%s", pr.depName, pr.indepName),
					fmt.Sprintf("D_%s_%s", pr.depName, pr.indepName),
				)
				if _, err := io.WriteString(w, line+"\n"); err != nil {
					return err
				}
			}
		}
	}

	if dialect.Boilerplate != "" {
		if _, err := io.WriteString(w, dialect.Boilerplate); err != nil {
			return err
		}
	}
	return nil
}

func (m *ExprMap) scriptLine(w io.Writer, dialect ScriptDialect, lhs string, r *ref, names []string) error {
	if r == nil {
		return writeAssign(w, dialect, lhs, "[1]")
	}
	e := &m.entries[r.idx]
	name := e.name
	if name == "" {
		name = lhs
	}
	sign := ""
	if r.negated {
		sign = "-"
	}
	if !e.printed {
		e.printed = true
		body, note := PrintExprVector(e.addends, names)
		if note != "" && dialect.CommentPrefix != "" {
			if _, err := fmt.Fprintf(w, "%s%s\n", dialect.CommentPrefix, note); err != nil {
				return err
			}
		}
		if err := writeAssign(w, dialect, name, body); err != nil {
			return err
		}
		if name == lhs {
			return nil
		}
		return writeAssign(w, dialect, lhs, sign+name)
	}
	if name == lhs {
		return nil
	}
	return writeAssign(w, dialect, lhs, sign+name)
}

// PrintExprVector renders addends as a row vector of polynomial
// coefficients in s, highest power first, with absent powers written as a
// literal 0. The second return value is a comment noting the power range,
// for the caller to emit with its dialect's comment syntax.
func PrintExprVector(addends []freq.Addend, names []string) (string, string) {
	if len(addends) == 0 {
		return "[1]", ""
	}
	maxS := addends[0].PowerS // addends are ordered descending by power of s
	elems := make([]string, 0, maxS+1)
	for k := maxS; k >= 0; k-- {
		var terms []string
		for _, a := range addends {
			if a.PowerS == k {
				terms = append(terms, formatTerm(a, names))
			}
		}
		if len(terms) == 0 {
			elems = append(elems, "0")
			continue
		}
		body := strings.Join(terms, " + ")
		if len(terms) > 1 {
			body = "(" + body + ")"
		}
		elems = append(elems, body)
	}
	note := fmt.Sprintf("coefficients of s^%d .. s^0", maxS)
	if maxS == 0 {
		note = ""
	}
	return "[" + strings.Join(elems, ", ") + "]", note
}

func writeAssign(w io.Writer, dialect ScriptDialect, name, expr string) error {
	line := dialect.Assign
	if line == nil {
		_, err := fmt.Fprintf(w, "%s = %s\n", name, expr)
		return err
	}
	_, err := io.WriteString(w, line(name, expr)+"\n")
	return err
}

// PrintExpr renders addends grouped by power of s,
// parenthesized when a group has more than one addend, suffixed by
// `*s^n` (or `*s` for n=1), leading group sign suppressed, unit factors
// elided (a unit group prints as the bare `s^n` or `s`), wrapped at a 72-column soft margin with hanging indent. names
// maps a bit index to its device name; a nil or short slice falls back to
// the generic "k<bit>" label for that bit.
func PrintExpr(addends []freq.Addend, names []string) string {
	if len(addends) == 0 {
		return "1"
	}

	type group struct {
		powerS int
		terms  []string
	}
	var groups []group
	for _, a := range addends {
		term := formatTerm(a, names)
		if len(groups) == 0 || groups[len(groups)-1].powerS != a.PowerS {
			groups = append(groups, group{powerS: a.PowerS})
		}
		g := &groups[len(groups)-1]
		g.terms = append(g.terms, term)
	}

	var parts []string
	for _, g := range groups {
		body := strings.Join(g.terms, " + ")
		if len(g.terms) > 1 {
			body = "(" + body + ")"
		}
		switch {
		case g.powerS == 0:
		case body == "1":
			body = sPower(g.powerS)
		case body == "-1":
			body = "-" + sPower(g.powerS)
		case g.powerS == 1:
			body += "*s"
		default:
			body += fmt.Sprintf("*s^%d", g.powerS)
		}
		parts = append(parts, body)
	}

	return wrap(strings.Join(parts, " + "), 72)
}

// sPower renders a bare power of s, with the unit factor elided.
func sPower(n int) string {
	if n == 1 {
		return "s"
	}
	return fmt.Sprintf("s^%d", n)
}

func formatTerm(a freq.Addend, names []string) string {
	var sb strings.Builder
	if a.Factor.Sign() < 0 {
		sb.WriteString("-")
	}
	wroteFactor := false
	absNum := a.Factor.Num
	if absNum < 0 {
		absNum = -absNum
	}
	if !(absNum == 1 && a.Factor.Den == 1) {
		if a.Factor.Den == 1 {
			fmt.Fprintf(&sb, "%d", absNum)
		} else {
			fmt.Fprintf(&sb, "%d/%d", absNum, a.Factor.Den)
		}
		wroteFactor = true
	}
	for bit := len(a.Powers) - 1; bit >= 0; bit-- {
		p := a.Powers[bit]
		if p == 0 {
			continue
		}
		if wroteFactor {
			sb.WriteString("*")
		}
		sb.WriteString(deviceLabel(bit, names))
		if p != 1 {
			fmt.Fprintf(&sb, "^%d", p)
		}
		wroteFactor = true
	}
	if !wroteFactor {
		sb.WriteString("1")
	}
	return sb.String()
}

// deviceLabel returns names[bit] if present, else the generic "k<bit>"
// placeholder used when no symbol table is available (e.g. unit tests that
// exercise the addend algebra in isolation).
func deviceLabel(bit int, names []string) string {
	if bit < len(names) && names[bit] != "" {
		return names[bit]
	}
	return fmt.Sprintf("k%d", bit)
}

// wrap inserts a newline plus hanging indent once a line would exceed
// width columns, breaking only at " + " separators (including those inside
// a parenthesized same-power group); a continuation line starts with "+ ".
func wrap(s string, width int) string {
	parts := strings.Split(s, " + ")
	var sb strings.Builder
	lineLen := 0
	for i, p := range parts {
		piece := p
		if i > 0 {
			piece = " + " + p
		}
		if lineLen > 0 && lineLen+len(piece) > width {
			sb.WriteString("\n    ")
			lineLen = 4
			piece = strings.TrimPrefix(piece, " ")
		}
		sb.WriteString(piece)
		lineLen += len(piece)
	}
	return sb.String()
}
