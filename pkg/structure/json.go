package structure

import (
	"encoding/json"
	"fmt"
)

// structureJSON mirrors the pymatgen Structure.as_dict() layout so payloads can
// be exchanged with the Python tooling unchanged.
type structureJSON struct {
	Module  string      `json:"@module,omitempty"`
	Class   string      `json:"@class,omitempty"`
	Charge  float64     `json:"charge"`
	Lattice latticeJSON `json:"lattice"`
	Sites   []siteJSON  `json:"sites"`
}

type latticeJSON struct {
	Matrix [3][3]float64 `json:"matrix"`
	A      float64       `json:"a,omitempty"`
	B      float64       `json:"b,omitempty"`
	C      float64       `json:"c,omitempty"`
	Alpha  float64       `json:"alpha,omitempty"`
	Beta   float64       `json:"beta,omitempty"`
	Gamma  float64       `json:"gamma,omitempty"`
	Volume float64       `json:"volume,omitempty"`
}

type siteJSON struct {
	Species []Specie    `json:"species"`
	Abc     [3]float64  `json:"abc"`
	Xyz     *[3]float64 `json:"xyz,omitempty"`
	Label   string      `json:"label,omitempty"`
}

// MarshalJSON encodes the structure in the pymatgen dict layout.
func (s *Structure) MarshalJSON() ([]byte, error) {
	abc := s.lattice.Abc()
	angles := s.lattice.Angles()
	out := structureJSON{
		Module: "pymatgen.core.structure",
		Class:  "Structure",
		Lattice: latticeJSON{
			Matrix: s.lattice.Matrix,
			A:      abc[0],
			B:      abc[1],
			C:      abc[2],
			Alpha:  angles[0],
			Beta:   angles[1],
			Gamma:  angles[2],
			Volume: s.lattice.Volume(),
		},
		Sites: make([]siteJSON, len(s.sites)),
	}
	for i, site := range s.sites {
		xyz := s.lattice.CartesianCoords(site.Frac)
		out.Sites[i] = siteJSON{Species: site.Species, Abc: site.Frac, Xyz: &xyz, Label: site.Label}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the pymatgen dict layout and validates the result.
// Cartesian coordinates are ignored in favor of "abc".
func (s *Structure) UnmarshalJSON(data []byte) error {
	var in structureJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode structure: %w", err)
	}
	sites := make([]Site, len(in.Sites))
	for i, site := range in.Sites {
		sites[i] = Site{Species: site.Species, Frac: site.Abc, Label: site.Label}
	}
	parsed, err := New(NewLattice(in.Lattice.Matrix), sites)
	if err != nil {
		return fmt.Errorf("invalid structure: %w", err)
	}
	*s = *parsed
	return nil
}

// Decode parses a structure from its JSON form.
func Decode(data []byte) (*Structure, error) {
	s := new(Structure)
	if err := s.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return s, nil
}
