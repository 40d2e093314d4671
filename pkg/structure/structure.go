// Package structure provides the crystal structure value type consumed by the
// record pipeline: a lattice, fractional site positions with (possibly partial)
// species occupancies, and the composition queries derived from them.
package structure

import (
	"errors"
	"fmt"
	"math"
)

// amuPerCubicAngstrom converts amu/A^3 to g/cm^3.
const amuPerCubicAngstrom = 1.66053906660

const occupancyTolerance = 1e-6

// Specie is one element occupying a site with the given fractional occupancy.
type Specie struct {
	Element   string  `json:"element"`
	Occupancy float64 `json:"occu"`
}

// Site is a position in fractional coordinates occupied by one or more species.
type Site struct {
	Species []Specie   `json:"species"`
	Frac    [3]float64 `json:"abc"`
	Label   string     `json:"label,omitempty"`
}

// IsOrdered reports whether the site holds a single fully occupied species.
func (s Site) IsOrdered() bool {
	return len(s.Species) == 1 && math.Abs(s.Species[0].Occupancy-1) < occupancyTolerance
}

// Structure is an immutable periodic crystal structure.
type Structure struct {
	lattice Lattice
	sites   []Site
}

// New builds a structure and validates it.
func New(lattice Lattice, sites []Site) (*Structure, error) {
	s := &Structure{lattice: lattice, sites: cloneSites(sites)}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// MustNew is New for fixtures and tests; it panics on invalid input.
func MustNew(lattice Lattice, sites []Site) *Structure {
	s, err := New(lattice, sites)
	if err != nil {
		panic(err)
	}
	return s
}

// Lattice returns the structure lattice.
func (s *Structure) Lattice() Lattice { return s.lattice }

// Sites returns a copy of the sites.
func (s *Structure) Sites() []Site { return cloneSites(s.sites) }

// NumSites returns the number of sites.
func (s *Structure) NumSites() int { return len(s.sites) }

// Volume returns the cell volume in A^3.
func (s *Structure) Volume() float64 { return s.lattice.Volume() }

// Density returns the mass density in g/cm^3.
func (s *Structure) Density() float64 {
	return s.Composition().Weight() * amuPerCubicAngstrom / s.Volume()
}

// Composition sums species occupancies over all sites.
func (s *Structure) Composition() Composition {
	amounts := make(map[string]float64)
	for _, site := range s.sites {
		for _, sp := range site.Species {
			amounts[sp.Element] += sp.Occupancy
		}
	}
	return Composition{amounts: amounts}
}

// Validate checks the lattice and every site.
func (s *Structure) Validate() error {
	if s == nil {
		return errors.New("structure is nil")
	}
	if err := s.lattice.Validate(); err != nil {
		return err
	}
	if len(s.sites) == 0 {
		return errors.New("structure has no sites")
	}
	var errs []error
	for i, site := range s.sites {
		if err := validateSite(site); err != nil {
			errs = append(errs, fmt.Errorf("site %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func validateSite(site Site) error {
	if len(site.Species) == 0 {
		return errors.New("no species")
	}
	for _, c := range site.Frac {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return errors.New("non-finite fractional coordinate")
		}
	}
	total := 0.0
	for _, sp := range site.Species {
		if _, ok := LookupElement(sp.Element); !ok {
			return fmt.Errorf("unknown element %q", sp.Element)
		}
		if sp.Occupancy <= 0 || math.IsNaN(sp.Occupancy) {
			return fmt.Errorf("occupancy of %s must be positive", sp.Element)
		}
		total += sp.Occupancy
	}
	if total > 1+occupancyTolerance {
		return fmt.Errorf("total occupancy %g exceeds 1", total)
	}
	return nil
}

func cloneSites(in []Site) []Site {
	if in == nil {
		return nil
	}
	out := make([]Site, len(in))
	for i, site := range in {
		out[i] = site
		out[i].Species = append([]Specie(nil), site.Species...)
	}
	return out
}
