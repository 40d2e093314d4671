package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mofgen/pkg/structure"
)

// CommandSymmetry runs a symmetry analyzer that reads CIF text on stdin and
// prints {"number": N, "symbol": "..."} on stdout.
type CommandSymmetry struct {
	Command Command
}

var _ SymmetryAnalyzer = CommandSymmetry{}

// Analyze implements SymmetryAnalyzer.
func (c CommandSymmetry) Analyze(ctx context.Context, s *structure.Structure) (Symmetry, error) {
	if s == nil {
		return Symmetry{}, fmt.Errorf("symmetry: nil structure")
	}
	cif, err := s.CIF()
	if err != nil {
		return Symmetry{}, fmt.Errorf("symmetry: encode cif: %w", err)
	}
	args, _ := expandArgs(c.Command.Args, "-", "")
	out, err := invocation{
		tool:  ToolSymmetry,
		cmd:   c.Command,
		args:  args,
		stdin: strings.NewReader(cif),
	}.run(ctx)
	if err != nil {
		return Symmetry{}, err
	}
	return ParseSymmetry(out)
}

// ParseSymmetry decodes analyzer output and checks the space group range.
func ParseSymmetry(out []byte) (Symmetry, error) {
	var sym Symmetry
	dec := json.NewDecoder(bytes.NewReader(out))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sym); err != nil {
		return Symmetry{}, fmt.Errorf("symmetry: decode output: %w", err)
	}
	if sym.Number < 1 || sym.Number > 230 {
		return Symmetry{}, fmt.Errorf("symmetry: space group number %d out of range", sym.Number)
	}
	sym.Symbol = strings.TrimSpace(sym.Symbol)
	if sym.Symbol == "" {
		return Symmetry{}, fmt.Errorf("symmetry: empty space group symbol")
	}
	return sym, nil
}
