package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/buger/jsonparser"

	"mofgen/pkg/domain"
	"mofgen/pkg/structure"
)

// PoreInputName is the CIF file written into the working directory for the
// pore geometry tool.
const PoreInputName = "input.cif"

// CommandPoreGeometry runs a pore geometry assessor inside the working
// directory. Stdout is a JSON object keyed by sorbate, each value an object of
// descriptor columns; the reserved is_mof entry may hold any value.
type CommandPoreGeometry struct {
	Command Command
}

var _ PoreGeometryTool = CommandPoreGeometry{}

// Assess implements PoreGeometryTool.
func (c CommandPoreGeometry) Assess(ctx context.Context, dir string, s *structure.Structure, opts Options) ([]domain.SorbateOutput, error) {
	if s == nil {
		return nil, fmt.Errorf("pore geometry: nil structure")
	}
	cifPath := filepath.Join(dir, PoreInputName)
	if err := s.WriteCIFFile(cifPath); err != nil {
		return nil, fmt.Errorf("pore geometry: write input: %w", err)
	}
	args, sawCIF := expandArgs(c.Command.Args, cifPath, dir)
	args = append(args, opts.Args()...)
	if !sawCIF {
		args = append(args, cifPath)
	}
	out, err := invocation{tool: ToolPoreGeometry, cmd: c.Command, dir: dir, args: args}.run(ctx)
	if err != nil {
		return nil, err
	}
	return ParsePoreGeometryOutput(out)
}

// ParsePoreGeometryOutput decodes tool output keeping the document order of
// sorbates.
func ParsePoreGeometryOutput(out []byte) ([]domain.SorbateOutput, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, fmt.Errorf("pore geometry: empty output")
	}
	if out[0] != '{' {
		return nil, fmt.Errorf("pore geometry: output is not a JSON object")
	}
	results := []domain.SorbateOutput{}
	err := jsonparser.ObjectEach(out, func(key, value []byte, typ jsonparser.ValueType, _ int) error {
		name, err := jsonparser.ParseString(key)
		if err != nil {
			return fmt.Errorf("sorbate key %q: %w", key, err)
		}
		entry := domain.SorbateOutput{Sorbate: name}
		if name == domain.ReservedSorbateKey {
			results = append(results, entry)
			return nil
		}
		if typ != jsonparser.Object {
			return fmt.Errorf("sorbate %q: expected object, got %s", name, typ)
		}
		dec := json.NewDecoder(bytes.NewReader(value))
		dec.UseNumber()
		if err := dec.Decode(&entry.Values); err != nil {
			return fmt.Errorf("sorbate %q: %w", name, err)
		}
		results = append(results, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pore geometry: decode output: %w", err)
	}
	return results, nil
}
