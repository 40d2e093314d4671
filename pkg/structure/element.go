package structure

import (
	"fmt"
	"math"
	"strings"
)

// Element describes the per-element constants needed by composition queries.
type Element struct {
	Symbol string
	Number int
	// Mass is the standard atomic weight in atomic mass units.
	Mass float64
	// X is the Pauling electronegativity. Elements without a tabulated value
	// carry NaN and sort after every element that has one.
	X float64
}

var nan = math.NaN()

var periodicTable = []Element{
	{"H", 1, 1.008, 2.20},
	{"He", 2, 4.002602, nan},
	{"Li", 3, 6.94, 0.98},
	{"Be", 4, 9.0121831, 1.57},
	{"B", 5, 10.81, 2.04},
	{"C", 6, 12.011, 2.55},
	{"N", 7, 14.007, 3.04},
	{"O", 8, 15.999, 3.44},
	{"F", 9, 18.998403163, 3.98},
	{"Ne", 10, 20.1797, nan},
	{"Na", 11, 22.98976928, 0.93},
	{"Mg", 12, 24.305, 1.31},
	{"Al", 13, 26.9815385, 1.61},
	{"Si", 14, 28.085, 1.90},
	{"P", 15, 30.973761998, 2.19},
	{"S", 16, 32.06, 2.58},
	{"Cl", 17, 35.45, 3.16},
	{"Ar", 18, 39.948, nan},
	{"K", 19, 39.0983, 0.82},
	{"Ca", 20, 40.078, 1.00},
	{"Sc", 21, 44.955908, 1.36},
	{"Ti", 22, 47.867, 1.54},
	{"V", 23, 50.9415, 1.63},
	{"Cr", 24, 51.9961, 1.66},
	{"Mn", 25, 54.938044, 1.55},
	{"Fe", 26, 55.845, 1.83},
	{"Co", 27, 58.933194, 1.88},
	{"Ni", 28, 58.6934, 1.91},
	{"Cu", 29, 63.546, 1.90},
	{"Zn", 30, 65.38, 1.65},
	{"Ga", 31, 69.723, 1.81},
	{"Ge", 32, 72.630, 2.01},
	{"As", 33, 74.921595, 2.18},
	{"Se", 34, 78.971, 2.55},
	{"Br", 35, 79.904, 2.96},
	{"Kr", 36, 83.798, 3.00},
	{"Rb", 37, 85.4678, 0.82},
	{"Sr", 38, 87.62, 0.95},
	{"Y", 39, 88.90584, 1.22},
	{"Zr", 40, 91.224, 1.33},
	{"Nb", 41, 92.90637, 1.6},
	{"Mo", 42, 95.95, 2.16},
	{"Tc", 43, 98, 1.9},
	{"Ru", 44, 101.07, 2.2},
	{"Rh", 45, 102.90550, 2.28},
	{"Pd", 46, 106.42, 2.20},
	{"Ag", 47, 107.8682, 1.93},
	{"Cd", 48, 112.414, 1.69},
	{"In", 49, 114.818, 1.78},
	{"Sn", 50, 118.710, 1.96},
	{"Sb", 51, 121.760, 2.05},
	{"Te", 52, 127.60, 2.1},
	{"I", 53, 126.90447, 2.66},
	{"Xe", 54, 131.293, 2.60},
	{"Cs", 55, 132.90545196, 0.79},
	{"Ba", 56, 137.327, 0.89},
	{"La", 57, 138.90547, 1.10},
	{"Ce", 58, 140.116, 1.12},
	{"Pr", 59, 140.90766, 1.13},
	{"Nd", 60, 144.242, 1.14},
	{"Pm", 61, 145, 1.13},
	{"Sm", 62, 150.36, 1.17},
	{"Eu", 63, 151.964, 1.2},
	{"Gd", 64, 157.25, 1.2},
	{"Tb", 65, 158.92535, 1.2},
	{"Dy", 66, 162.500, 1.22},
	{"Ho", 67, 164.93033, 1.23},
	{"Er", 68, 167.259, 1.24},
	{"Tm", 69, 168.93422, 1.25},
	{"Yb", 70, 173.045, 1.1},
	{"Lu", 71, 174.9668, 1.27},
	{"Hf", 72, 178.49, 1.3},
	{"Ta", 73, 180.94788, 1.5},
	{"W", 74, 183.84, 2.36},
	{"Re", 75, 186.207, 1.9},
	{"Os", 76, 190.23, 2.2},
	{"Ir", 77, 192.217, 2.20},
	{"Pt", 78, 195.084, 2.28},
	{"Au", 79, 196.966569, 2.54},
	{"Hg", 80, 200.592, 2.00},
	{"Tl", 81, 204.38, 1.62},
	{"Pb", 82, 207.2, 2.33},
	{"Bi", 83, 208.98040, 2.02},
	{"Po", 84, 209, 2.0},
	{"At", 85, 210, 2.2},
	{"Rn", 86, 222, 2.2},
	{"Fr", 87, 223, 0.7},
	{"Ra", 88, 226, 0.9},
	{"Ac", 89, 227, 1.1},
	{"Th", 90, 232.0377, 1.3},
	{"Pa", 91, 231.03588, 1.5},
	{"U", 92, 238.02891, 1.38},
	{"Np", 93, 237, 1.36},
	{"Pu", 94, 244, 1.28},
}

var elementsBySymbol = func() map[string]Element {
	out := make(map[string]Element, len(periodicTable))
	for _, el := range periodicTable {
		out[el.Symbol] = el
	}
	return out
}()

// LookupElement returns the element with the given symbol. Symbols are case
// sensitive ("Fe", not "FE").
func LookupElement(symbol string) (Element, bool) {
	el, ok := elementsBySymbol[symbol]
	return el, ok
}

// ParseElement extracts the element symbol from a species or site label such as
// "Fe", "Fe3+", "Fe1" or "O2-". Lower-case labels ("fe1") are normalized.
func ParseElement(label string) (Element, error) {
	label = strings.TrimSpace(label)
	var letters []rune
	for _, r := range label {
		if r < 'A' || (r > 'Z' && r < 'a') || r > 'z' {
			break
		}
		letters = append(letters, r)
	}
	if len(letters) == 0 {
		return Element{}, fmt.Errorf("no element symbol in %q", label)
	}
	candidate := strings.ToUpper(string(letters[:1])) + strings.ToLower(string(letters[1:]))
	// Prefer two-letter symbols, then fall back to the first letter ("Os" vs "O" + "s").
	if len(candidate) >= 2 {
		if el, ok := elementsBySymbol[candidate[:2]]; ok {
			return el, nil
		}
	}
	if el, ok := elementsBySymbol[candidate[:1]]; ok {
		return el, nil
	}
	return Element{}, fmt.Errorf("unknown element in %q", label)
}

// lessByElectronegativity orders symbols by Pauling electronegativity, then by
// symbol. Symbols missing from the table or without a value sort last.
func lessByElectronegativity(a, b string) bool {
	xa, xb := electronegativity(a), electronegativity(b)
	if xa != xb {
		return xa < xb
	}
	return a < b
}

func electronegativity(symbol string) float64 {
	el, ok := elementsBySymbol[symbol]
	if !ok || math.IsNaN(el.X) {
		return math.Inf(1)
	}
	return el.X
}
