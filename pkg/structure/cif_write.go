package structure

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// WriteCIF serializes the structure as a P1 CIF document. Disordered sites
// produce one _atom_site row per species.
func (s *Structure) WriteCIF(w io.Writer) error {
	comp := s.Composition()
	abc := s.lattice.Abc()
	angles := s.lattice.Angles()
	reduced := comp.ReducedFormula()

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# generated by mofgen\n")
	fmt.Fprintf(bw, "data_%s\n", reduced)
	fmt.Fprintf(bw, "_symmetry_space_group_name_H-M   'P 1'\n")
	fmt.Fprintf(bw, "_cell_length_a   %.8f\n", abc[0])
	fmt.Fprintf(bw, "_cell_length_b   %.8f\n", abc[1])
	fmt.Fprintf(bw, "_cell_length_c   %.8f\n", abc[2])
	fmt.Fprintf(bw, "_cell_angle_alpha   %.8f\n", angles[0])
	fmt.Fprintf(bw, "_cell_angle_beta   %.8f\n", angles[1])
	fmt.Fprintf(bw, "_cell_angle_gamma   %.8f\n", angles[2])
	fmt.Fprintf(bw, "_symmetry_Int_Tables_number   1\n")
	fmt.Fprintf(bw, "_chemical_formula_structural   %s\n", reduced)
	fmt.Fprintf(bw, "_chemical_formula_sum   '%s'\n", comp.Formula())
	fmt.Fprintf(bw, "_cell_volume   %.8f\n", s.Volume())
	fmt.Fprintf(bw, "_cell_formula_units_Z   %d\n", comp.FormulaUnits())
	fmt.Fprintf(bw, "loop_\n _symmetry_equiv_pos_site_id\n _symmetry_equiv_pos_as_xyz\n  1  'x, y, z'\n")
	fmt.Fprintf(bw, "loop_\n _atom_site_type_symbol\n _atom_site_label\n _atom_site_symmetry_multiplicity\n")
	fmt.Fprintf(bw, " _atom_site_fract_x\n _atom_site_fract_y\n _atom_site_fract_z\n _atom_site_occupancy\n")

	counters := make(map[string]int)
	for _, site := range s.sites {
		for _, sp := range site.Species {
			label := fmt.Sprintf("%s%d", sp.Element, counters[sp.Element])
			counters[sp.Element]++
			fmt.Fprintf(bw, "  %s  %s  1  %.8f  %.8f  %.8f  %s\n",
				sp.Element, label, site.Frac[0], site.Frac[1], site.Frac[2], formatAmount(sp.Occupancy, false))
		}
	}
	return bw.Flush()
}

// CIF returns the CIF document as a string.
func (s *Structure) CIF() (string, error) {
	var b strings.Builder
	if err := s.WriteCIF(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// WriteCIFFile writes the CIF document to path, creating parent directories.
func (s *Structure) WriteCIFFile(path string) (retErr error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cif dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create cif: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && retErr == nil {
			retErr = cerr
		}
	}()
	return s.WriteCIF(f)
}
