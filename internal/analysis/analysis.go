// Package analysis is the boundary to the external analysis tools: the
// symmetry analyzer, the chemical identifier generator and the pore geometry
// assessor. The rest of the module only sees the interfaces declared here;
// command-backed implementations run configured executables.
package analysis

import (
	"context"
	"errors"
	"sort"

	"mofgen/pkg/domain"
	"mofgen/pkg/structure"
)

// Tool names used for logging, metrics and cache keys.
const (
	ToolSymmetry     = "symmetry"
	ToolIdentifier   = "identifier"
	ToolPoreGeometry = "pore_geometry"
)

// ErrNotConfigured is returned by a command tool without an executable.
var ErrNotConfigured = errors.New("analysis tool not configured")

// Symmetry is the space group reported by the symmetry analyzer.
type Symmetry struct {
	Number int    `json:"number"`
	Symbol string `json:"symbol"`
}

// SymmetryAnalyzer determines the space group of a structure.
type SymmetryAnalyzer interface {
	Analyze(ctx context.Context, s *structure.Structure) (Symmetry, error)
}

// IdentifierTool derives topology and chemical identifiers from a CIF file.
// The returned map is keyed by the tool's own names (smiles, topology,
// smiles_linkers, smiles_nodes, mofkey, mofid). A nil map means no output.
type IdentifierTool interface {
	Identify(ctx context.Context, cifPath string, opts Options) (map[string]any, error)
}

// PoreGeometryTool assesses pore geometry for one or more sorbates.
// It may create files in dir. Results are returned in the tool's order and may
// include the reserved is_mof entry.
type PoreGeometryTool interface {
	Assess(ctx context.Context, dir string, s *structure.Structure, opts Options) ([]domain.SorbateOutput, error)
}

// Options are passthrough tool options. Each key renders as --key followed by
// its values; a key without values renders as a bare flag.
type Options map[string][]string

// Args renders the options as command line arguments in key order.
func (o Options) Args() []string {
	if len(o) == 0 {
		return nil
	}
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var args []string
	for _, k := range keys {
		flag := "--" + k
		if len(o[k]) == 0 {
			args = append(args, flag)
			continue
		}
		for _, v := range o[k] {
			args = append(args, flag, v)
		}
	}
	return args
}

// Add appends values to key and returns o for chaining. A nil receiver is
// replaced by a fresh map.
func (o Options) Add(key string, values ...string) Options {
	if o == nil {
		o = Options{}
	}
	o[key] = append(o[key], values...)
	return o
}

// Clone returns a deep copy.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = append([]string(nil), v...)
	}
	return out
}
