package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"mofgen/pkg/domain"
	"mofgen/pkg/structure"
)

// readStructure loads a structure from a .cif or .json file.
// absPaths resolves arguments against the current directory. Tool runs change
// the process directory, so concurrent readers must not use relative paths.
func absPaths(args []string) ([]string, error) {
	out := make([]string, len(args))
	for i, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", arg, err)
		}
		out[i] = abs
	}
	return out, nil
}

func readStructure(path string) (*structure.Structure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cif":
		st, err := structure.ReadCIF(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return st, nil
	case ".json":
		st, err := structure.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%s: unsupported structure format (want .cif or .json)", path)
	}
}

// overrideFlags collect caller-supplied record fields.
type overrideFlags struct {
	identifier      string
	method          string
	energy          float64
	formationEnergy float64
	bandGap         float64
	set             []string
}

func (f *overrideFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.identifier, "identifier", "", "record identifier")
	fs.StringVar(&f.method, "method", "", "method used to obtain the structure")
	fs.Float64Var(&f.energy, "energy", 0, "total energy")
	fs.Float64Var(&f.formationEnergy, "formation-energy", 0, "formation energy per atom")
	fs.Float64Var(&f.bandGap, "band-gap", 0, "band gap")
	fs.StringArrayVar(&f.set, "set", nil, "record field Name=value; value is parsed as JSON, else taken as a string (repeatable)")
}

// overrides returns the flags that were set, in a fixed order. --set entries
// come last so they take precedence.
func (f *overrideFlags) overrides(cmd *cobra.Command) ([]domain.Override, error) {
	var out []domain.Override
	changed := cmd.Flags().Changed
	if changed("identifier") {
		out = append(out, domain.WithIdentifier(f.identifier))
	}
	if changed("method") {
		out = append(out, domain.WithMethod(f.method))
	}
	if changed("energy") {
		out = append(out, domain.WithEnergy(f.energy))
	}
	if changed("formation-energy") {
		out = append(out, domain.WithFormationEnergyPerAtom(f.formationEnergy))
	}
	if changed("band-gap") {
		out = append(out, domain.WithBandGap(f.bandGap))
	}
	for _, kv := range f.set {
		name, raw, ok := splitKeyValue(kv)
		if !ok {
			return nil, fmt.Errorf("--set %q: expected Name=value", kv)
		}
		out = append(out, domain.WithField(name, parseValue(raw)))
	}
	return out, nil
}

func splitKeyValue(kv string) (string, string, bool) {
	key, value, ok := strings.Cut(kv, "=")
	key = strings.TrimSpace(key)
	return key, value, ok && key != ""
}

func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
