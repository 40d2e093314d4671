package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
)

// CommandIdentifier runs an identifier generator on a CIF path. The path is
// substituted for {cif} in the configured arguments, or appended after the
// options when no placeholder is present. Stdout must be a JSON object; empty
// stdout means the tool produced nothing.
type CommandIdentifier struct {
	Command Command
}

var _ IdentifierTool = CommandIdentifier{}

// Identify implements IdentifierTool.
func (c CommandIdentifier) Identify(ctx context.Context, cifPath string, opts Options) (map[string]any, error) {
	abs, err := filepath.Abs(cifPath)
	if err != nil {
		return nil, fmt.Errorf("identifier: resolve %s: %w", cifPath, err)
	}
	dir := filepath.Dir(abs)
	args, sawCIF := expandArgs(c.Command.Args, abs, dir)
	args = append(args, opts.Args()...)
	if !sawCIF {
		args = append(args, abs)
	}
	out, err := invocation{tool: ToolIdentifier, cmd: c.Command, dir: dir, args: args}.run(ctx)
	if err != nil {
		return nil, err
	}
	return ParseIdentifierOutput(out)
}

// ParseIdentifierOutput decodes identifier output. Blank output and a JSON
// null both mean no output.
func ParseIdentifierOutput(out []byte) (map[string]any, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 || bytes.Equal(out, []byte("null")) {
		return nil, nil
	}
	var result map[string]any
	dec := json.NewDecoder(bytes.NewReader(out))
	dec.UseNumber()
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("identifier: decode output: %w", err)
	}
	return result, nil
}
