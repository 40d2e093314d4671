package structure

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

const amountTolerance = 1e-8

// specialReducedFormulas maps reduced formulas of diatomic elements and
// peroxides to their conventional spelling.
var specialReducedFormulas = map[string]string{
	"LiO": "Li2O2",
	"NaO": "Na2O2",
	"KO":  "K2O2",
	"HO":  "H2O2",
	"CsO": "Cs2O2",
	"RbO": "Rb2O2",
	"O":   "O2",
	"N":   "N2",
	"F":   "F2",
	"Cl":  "Cl2",
	"H":   "H2",
}

// Composition maps element symbols to (possibly fractional) amounts.
type Composition struct {
	amounts map[string]float64
}

// NewComposition builds a composition from element amounts; non-positive
// amounts are dropped.
func NewComposition(amounts map[string]float64) Composition {
	out := make(map[string]float64, len(amounts))
	for el, amt := range amounts {
		if amt > amountTolerance {
			out[el] = amt
		}
	}
	return Composition{amounts: out}
}

// Amount returns the amount of an element.
func (c Composition) Amount(symbol string) float64 { return c.amounts[symbol] }

// NumElements returns the number of distinct elements.
func (c Composition) NumElements() int { return len(c.amounts) }

// NumAtoms sums all amounts.
func (c Composition) NumAtoms() float64 {
	total := 0.0
	for _, amt := range c.amounts {
		total += amt
	}
	return total
}

// Weight returns the formula weight in amu.
func (c Composition) Weight() float64 {
	total := 0.0
	for sym, amt := range c.amounts {
		if el, ok := LookupElement(sym); ok {
			total += el.Mass * amt
		}
	}
	return total
}

// Elements lists element symbols ordered by electronegativity, ties by symbol.
func (c Composition) Elements() []string {
	syms := make([]string, 0, len(c.amounts))
	for sym := range c.amounts {
		syms = append(syms, sym)
	}
	sort.Slice(syms, func(i, j int) bool { return lessByElectronegativity(syms[i], syms[j]) })
	return syms
}

// ChemicalSystem joins the lexicographically sorted element symbols with "-",
// e.g. "Fe-Li-O".
func (c Composition) ChemicalSystem() string {
	syms := make([]string, 0, len(c.amounts))
	for sym := range c.amounts {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return strings.Join(syms, "-")
}

// Formula renders the full formula with explicit unit amounts, e.g. "Li4 Fe4 P4 O16".
func (c Composition) Formula() string {
	parts := make([]string, 0, len(c.amounts))
	for _, sym := range c.Elements() {
		parts = append(parts, sym+formatAmount(c.amounts[sym], false))
	}
	return strings.Join(parts, " ")
}

// ReducedFormula renders the formula divided by the greatest common factor of
// integral amounts, e.g. "LiFePO4".
func (c Composition) ReducedFormula() string {
	formula, _ := c.reduced()
	return formula
}

// FormulaUnits returns how many reduced formula units the composition holds.
func (c Composition) FormulaUnits() int {
	_, factor := c.reduced()
	return factor
}

func (c Composition) reduced() (string, int) {
	factor := 1
	integral := true
	for _, amt := range c.amounts {
		if math.Abs(amt-math.Round(amt)) > amountTolerance {
			integral = false
			break
		}
	}
	if integral && len(c.amounts) > 0 {
		factor = 0
		for _, amt := range c.amounts {
			factor = gcd(factor, int(math.Round(amt)))
		}
		if factor == 0 {
			factor = 1
		}
	}
	var b strings.Builder
	for _, sym := range c.Elements() {
		b.WriteString(sym)
		b.WriteString(formatAmount(c.amounts[sym]/float64(factor), true))
	}
	formula := b.String()
	if special, ok := specialReducedFormulas[formula]; ok {
		formula = special
		factor /= 2
		if factor == 0 {
			factor = 1
		}
	}
	return formula, factor
}

func formatAmount(amt float64, ignoreOnes bool) string {
	if ignoreOnes && math.Abs(amt-1) < amountTolerance {
		return ""
	}
	if math.Abs(amt-math.Round(amt)) < amountTolerance {
		return strconv.Itoa(int(math.Round(amt)))
	}
	rounded := math.Round(amt*1e8) / 1e8
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}
