package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mofgen/pkg/domain"
	"mofgen/pkg/structure"
)

func rockSalt(t *testing.T) *structure.Structure {
	t.Helper()
	lattice, err := structure.FromParameters(5.64, 5.64, 5.64, 90, 90, 90)
	require.NoError(t, err)
	return structure.MustNew(lattice, []structure.Site{
		{Species: []structure.Specie{{Element: "Na", Occupancy: 1}}, Frac: [3]float64{0, 0, 0}},
		{Species: []structure.Specie{{Element: "Cl", Occupancy: 1}}, Frac: [3]float64{0.5, 0.5, 0.5}},
	})
}

// fakeTool writes an executable shell script and returns its path.
func fakeTool(t *testing.T, body string) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}
	path := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestOptionsArgs(t *testing.T) {
	opts := Options{"sorbate": {"N2", "CO2"}, "accuracy": {"high"}, "verbose": nil}
	assert.Equal(t, []string{"--accuracy", "high", "--sorbate", "N2", "--sorbate", "CO2", "--verbose"}, opts.Args())
	assert.Nil(t, Options(nil).Args())

	var added Options
	added = added.Add("sorbate", "Ar").Add("sorbate", "He")
	assert.Equal(t, []string{"Ar", "He"}, added["sorbate"])

	clone := added.Clone()
	clone["sorbate"][0] = "Kr"
	assert.Equal(t, "Ar", added["sorbate"][0])
	assert.Nil(t, Options(nil).Clone())
}

func TestParseSymmetry(t *testing.T) {
	sym, err := ParseSymmetry([]byte(`{"number": 225, "symbol": " Fm-3m "}`))
	require.NoError(t, err)
	assert.Equal(t, Symmetry{Number: 225, Symbol: "Fm-3m"}, sym)

	for name, out := range map[string]string{
		"range":   `{"number": 231, "symbol": "P1"}`,
		"zero":    `{"symbol": "P1"}`,
		"symbol":  `{"number": 1, "symbol": ""}`,
		"unknown": `{"number": 1, "symbol": "P1", "hall": "x"}`,
		"garbage": `not json`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSymmetry([]byte(out))
			assert.Error(t, err)
		})
	}
}

func TestCommandSymmetryReadsCIFOnStdin(t *testing.T) {
	path := fakeTool(t, `grep -q "_cell_length_a" || exit 3
echo '{"number": 225, "symbol": "Fm-3m"}'`)
	sym, err := CommandSymmetry{Command: Command{Path: path}}.Analyze(context.Background(), rockSalt(t))
	require.NoError(t, err)
	assert.Equal(t, 225, sym.Number)
	assert.Equal(t, "Fm-3m", sym.Symbol)
}

func TestCommandIdentifierPassesPathAndOptions(t *testing.T) {
	path := fakeTool(t, `for a; do last=$a; done
test -f "$last" || { echo "missing $last" >&2; exit 2; }
printf '{"smiles":"C","topology":"pcu","smiles_nodes":["[Zn]"],"argc":%d}\n' $#`)
	cif := filepath.Join(t.TempDir(), "temp.cif")
	require.NoError(t, rockSalt(t).WriteCIFFile(cif))

	out, err := CommandIdentifier{Command: Command{Path: path}}.Identify(context.Background(), cif, Options{"mode": {"fast"}})
	require.NoError(t, err)
	assert.Equal(t, "pcu", out["topology"])
	assert.Equal(t, json.Number("3"), out["argc"])

	rec, err := domain.IdentifierRecordFromOutput(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"[Zn]"}, rec.SmilesNodes)
}

func TestCommandIdentifierPlaceholder(t *testing.T) {
	path := fakeTool(t, `test "$1" = "--input" || exit 5
test -f "$2" || exit 6
echo '{}'`)
	cif := filepath.Join(t.TempDir(), "temp.cif")
	require.NoError(t, rockSalt(t).WriteCIFFile(cif))

	out, err := CommandIdentifier{Command: Command{Path: path, Args: []string{"--input", "{cif}"}}}.Identify(context.Background(), cif, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCommandIdentifierEmptyOutput(t *testing.T) {
	path := fakeTool(t, `exit 0`)
	out, err := CommandIdentifier{Command: Command{Path: path}}.Identify(context.Background(), filepath.Join(t.TempDir(), "x.cif"), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestCommandFailureCarriesStderr(t *testing.T) {
	path := fakeTool(t, `echo "segfault in topology" >&2
exit 4`)
	_, err := CommandIdentifier{Command: Command{Path: path}}.Identify(context.Background(), filepath.Join(t.TempDir(), "x.cif"), nil)
	require.Error(t, err)

	var cerr *CommandError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 4, cerr.ExitCode)
	assert.Equal(t, ToolIdentifier, cerr.Tool)
	assert.Contains(t, cerr.Error(), "segfault in topology")
	assert.Contains(t, cerr.Error(), "status 4")
}

func TestCommandTimeout(t *testing.T) {
	path := fakeTool(t, `exec sleep 5`)
	start := time.Now()
	_, err := CommandSymmetry{Command: Command{Path: path, Timeout: 50 * time.Millisecond}}.Analyze(context.Background(), rockSalt(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestCommandNotConfigured(t *testing.T) {
	_, err := CommandSymmetry{}.Analyze(context.Background(), rockSalt(t))
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = CommandPoreGeometry{}.Assess(context.Background(), t.TempDir(), rockSalt(t), nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCommandPoreGeometryRunsInDir(t *testing.T) {
	path := fakeTool(t, `test -f input.cif || exit 9
cat <<'EOF'
{"N2": {"PLD": 3.2, "LCD": "4.5", "POAV_A^3": 120},
 "is_mof": true,
 "CO2": {"PLD": 2.9}}
EOF`)
	dir := t.TempDir()
	out, err := CommandPoreGeometry{Command: Command{Path: path}}.Assess(context.Background(), dir, rockSalt(t), Options{"sorbate": {"N2", "CO2"}})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []string{"N2", domain.ReservedSorbateKey, "CO2"}, []string{out[0].Sorbate, out[1].Sorbate, out[2].Sorbate})
	assert.FileExists(t, filepath.Join(dir, PoreInputName))

	records, err := domain.PoreGeometryRecordsFromOutput(out)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 4.5, *records[0].Lcd)
	assert.Equal(t, 120.0, *records[0].PoavVolumetric)
}

func TestParsePoreGeometryOutputErrors(t *testing.T) {
	for name, out := range map[string]string{
		"empty":      ``,
		"array":      `[1, 2]`,
		"scalar row": `{"N2": 4}`,
		"truncated":  `{"N2": {"PLD": 1`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePoreGeometryOutput([]byte(out))
			assert.Error(t, err)
		})
	}

	out, err := ParsePoreGeometryOutput([]byte(`{"is_mof": false}`))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Values)

	out, err = ParsePoreGeometryOutput([]byte(`{}`))
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestParseIdentifierOutput(t *testing.T) {
	out, err := ParseIdentifierOutput([]byte("null\n"))
	require.NoError(t, err)
	assert.Nil(t, out)

	_, err = ParseIdentifierOutput([]byte("[1]"))
	assert.Error(t, err)
}
