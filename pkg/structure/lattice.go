package structure

import (
	"errors"
	"fmt"
	"math"
)

// Lattice holds the three lattice vectors as rows, in Angstrom.
type Lattice struct {
	Matrix [3][3]float64 `json:"matrix"`
}

// NewLattice constructs a lattice from row vectors.
func NewLattice(matrix [3][3]float64) Lattice {
	return Lattice{Matrix: matrix}
}

// FromParameters builds a lattice from cell lengths (Angstrom) and angles
// (degrees), with a along x and b in the xy plane.
func FromParameters(a, b, c, alpha, beta, gamma float64) (Lattice, error) {
	if a <= 0 || b <= 0 || c <= 0 {
		return Lattice{}, fmt.Errorf("cell lengths must be positive: %g %g %g", a, b, c)
	}
	ca, cb, cg := cosDeg(alpha), cosDeg(beta), cosDeg(gamma)
	sg := math.Sin(gamma * math.Pi / 180)
	if math.Abs(sg) < 1e-12 {
		return Lattice{}, fmt.Errorf("degenerate gamma angle %g", gamma)
	}
	cy := (ca - cb*cg) / sg
	cz2 := 1 - cb*cb - cy*cy
	if cz2 <= 0 {
		return Lattice{}, fmt.Errorf("cell angles %g %g %g do not describe a cell", alpha, beta, gamma)
	}
	return Lattice{Matrix: [3][3]float64{
		{a, 0, 0},
		{b * cg, b * sg, 0},
		{c * cb, c * cy, c * math.Sqrt(cz2)},
	}}, nil
}

func cosDeg(deg float64) float64 {
	// exact values for the common right angle keep matrices free of 6e-17 noise
	if deg == 90 {
		return 0
	}
	return math.Cos(deg * math.Pi / 180)
}

// Volume is the absolute value of the triple product of the lattice vectors.
func (l Lattice) Volume() float64 {
	a, b, c := l.Matrix[0], l.Matrix[1], l.Matrix[2]
	return math.Abs(dot(a, cross(b, c)))
}

// Abc returns the lattice vector lengths.
func (l Lattice) Abc() [3]float64 {
	return [3]float64{norm(l.Matrix[0]), norm(l.Matrix[1]), norm(l.Matrix[2])}
}

// Angles returns alpha, beta and gamma in degrees.
func (l Lattice) Angles() [3]float64 {
	a, b, c := l.Matrix[0], l.Matrix[1], l.Matrix[2]
	return [3]float64{angleDeg(b, c), angleDeg(a, c), angleDeg(a, b)}
}

// CartesianCoords converts fractional coordinates to Cartesian.
func (l Lattice) CartesianCoords(frac [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[j] += frac[i] * l.Matrix[i][j]
		}
	}
	return out
}

// Validate reports degenerate or non-finite lattices.
func (l Lattice) Validate() error {
	for _, row := range l.Matrix {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.New("lattice matrix contains non-finite values")
			}
		}
	}
	if l.Volume() < 1e-8 {
		return errors.New("lattice volume is zero")
	}
	return nil
}

func dot(a, b [3]float64) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func norm(a [3]float64) float64 { return math.Sqrt(dot(a, a)) }

func angleDeg(a, b [3]float64) float64 {
	c := dot(a, b) / (norm(a) * norm(b))
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c) * 180 / math.Pi
}
