package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mofgen/pkg/domain"
	"mofgen/pkg/structure"
)

// poreScript echoes one entry per --sorbate argument.
const poreScript = `#!/bin/sh
printf '{"is_mof": true'
while [ $# -gt 0 ]; do
  if [ "$1" = "--sorbate" ]; then
    printf ', "%s": {"PLD": 3.5, "LCD": 6.25}' "$2"
    shift
  fi
  shift
done
printf '}\n'
`

type cli struct {
	t      *testing.T
	dir    string
	config string
}

func newCLI(t *testing.T, extraConfig string) *cli {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`
storage:
  driver: sqlite
  sqlite_path: %s
blob:
  driver: fs
  fs_root: %s
log:
  level: error
%s`, filepath.Join(dir, "records.db"), filepath.Join(dir, "archive"), extraConfig)
	path := filepath.Join(dir, "mofgen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return &cli{t: t, dir: dir, config: path}
}

func (c *cli) run(args ...string) (string, string, int) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--config", c.config, "--env-file", filepath.Join(c.dir, "missing.env")}, args...)
	code := run(full, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, errOut, code := c.run(args...)
	require.Equal(c.t, 0, code, "stderr: %s", errOut)
	return out
}

func cubicCuO(t *testing.T) *structure.Structure {
	t.Helper()
	lattice, err := structure.FromParameters(6, 6, 6, 90, 90, 90)
	require.NoError(t, err)
	return structure.MustNew(lattice, []structure.Site{
		{Species: []structure.Specie{{Element: "Cu", Occupancy: 1}}, Frac: [3]float64{0, 0, 0}},
		{Species: []structure.Specie{{Element: "O", Occupancy: 1}}, Frac: [3]float64{0.5, 0.5, 0.5}},
	})
}

func (c *cli) writeJSONStructure(name string) string {
	c.t.Helper()
	data, err := json.Marshal(cubicCuO(c.t))
	require.NoError(c.t, err)
	path := filepath.Join(c.dir, name)
	require.NoError(c.t, os.WriteFile(path, data, 0o600))
	return path
}

func (c *cli) writeCIFStructure(name string) string {
	c.t.Helper()
	path := filepath.Join(c.dir, name)
	require.NoError(c.t, cubicCuO(c.t).WriteCIFFile(path))
	return path
}

func decodeRecord(t *testing.T, out string) domain.MaterialRecord {
	t.Helper()
	rec, err := domain.ParseMaterial([]byte(out))
	require.NoError(t, err)
	return rec
}

func TestAnalyzePrintsRecord(t *testing.T) {
	c := newCLI(t, "")
	path := c.writeJSONStructure("cuo.json")

	out := c.mustRun("analyze", path, "--method", "DFT", "--band-gap", "1.5", "--set", "Energy=-3.25")
	rec := decodeRecord(t, out)

	assert.Equal(t, "Cu-O", *rec.ChemicalSystem)
	assert.Equal(t, "CuO", *rec.FormulaReduced)
	assert.Equal(t, "DFT", *rec.Method)
	assert.InDelta(t, 1.5, *rec.BandGap, 1e-9)
	assert.InDelta(t, -3.25, *rec.Energy, 1e-9)
	assert.Nil(t, rec.Identifier)
	assert.Nil(t, rec.SpaceGroupNumber, "no symmetry tool configured")
	assert.Nil(t, rec.ZeoPlusPlus, "no pore geometry tool configured")

	list := c.mustRun("list")
	assert.NotContains(t, list, "CuO", "analyze must not persist")
}

func TestAnalyzeReadsCIF(t *testing.T) {
	c := newCLI(t, "")
	rec := decodeRecord(t, c.mustRun("analyze", c.writeCIFStructure("cuo.cif")))
	assert.Equal(t, 2, *rec.NumSites)
	assert.Equal(t, "Cu-O", *rec.ChemicalSystem)
}

func TestIngestLifecycle(t *testing.T) {
	c := newCLI(t, "")
	path := c.writeJSONStructure("cuo.json")

	out := c.mustRun("ingest", path, "--identifier", "mof-1", "--method", "DFT")
	assert.Equal(t, "mof-1\t"+path+"\n", out)

	rec := decodeRecord(t, c.mustRun("get", "mof-1"))
	assert.Equal(t, "mof-1", rec.ID())
	assert.Equal(t, "DFT", *rec.Method)

	cif := c.mustRun("get", "mof-1", "--cif")
	assert.Contains(t, cif, "data_")
	_, err := structure.ParseCIF(cif)
	require.NoError(t, err)

	table := c.mustRun("list", "--method", "DFT")
	assert.Contains(t, table, "mof-1")
	assert.Contains(t, table, "Cu-O")
	assert.NotContains(t, c.mustRun("list", "--method", "ML"), "mof-1")

	var listed []domain.MaterialRecord
	require.NoError(t, json.Unmarshal([]byte(c.mustRun("list", "--json", "--chemical-system", "Cu-O")), &listed))
	require.Len(t, listed, 1)

	assert.Equal(t, "deleted mof-1\n", c.mustRun("delete", "mof-1"))
	_, errOut, code := c.run("get", "mof-1")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "mof-1")
	_, _, code = c.run("delete", "mof-1")
	assert.Equal(t, 1, code)
}

func TestIngestGeneratesIdentifiersConcurrently(t *testing.T) {
	c := newCLI(t, "")
	paths := []string{c.writeJSONStructure("a.json"), c.writeCIFStructure("b.cif"), c.writeJSONStructure("c.json")}

	out := c.mustRun(append([]string{"ingest", "--jobs", "3"}, paths...)...)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	ids := map[string]bool{}
	for _, line := range lines {
		id, _, ok := strings.Cut(line, "\t")
		require.True(t, ok)
		ids[id] = true
	}
	assert.Len(t, ids, 3)

	var listed []domain.MaterialRecord
	require.NoError(t, json.Unmarshal([]byte(c.mustRun("list", "--json")), &listed))
	assert.Len(t, listed, 3)
}

func TestIngestRelativePathsWhileToolsRun(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script tool")
	}
	script := filepath.Join(t.TempDir(), "pore.sh")
	require.NoError(t, os.WriteFile(script, []byte(poreScript), 0o700))
	c := newCLI(t, "")
	require.NoError(t, os.WriteFile(c.config, []byte(fmt.Sprintf(`
storage:
  driver: sqlite
  sqlite_path: records.db
blob:
  driver: fs
  fs_root: archive
log:
  level: error
tools:
  pore_geometry:
    command: %s
    options:
      sorbate: [N2]
`, script)), 0o600))
	for _, name := range []string{"a.json", "b.json", "c.json", "d.json"} {
		c.writeJSONStructure(name)
	}
	t.Chdir(c.dir)

	out := c.mustRun("ingest", "--jobs", "4", "a.json", "b.json", "c.json", "d.json")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	for _, line := range lines {
		id, path, ok := strings.Cut(line, "\t")
		require.True(t, ok)
		assert.False(t, filepath.IsAbs(path), "printed path %s", path)
		_, err := os.Stat(filepath.Join(c.dir, "archive", "records", id+".json"))
		assert.NoError(t, err)
	}

	var listed []domain.MaterialRecord
	require.NoError(t, json.Unmarshal([]byte(c.mustRun("list", "--json")), &listed))
	assert.Len(t, listed, 4)
}

func TestIngestRejectsSharedIdentifier(t *testing.T) {
	c := newCLI(t, "")
	_, errOut, code := c.run("ingest", "--identifier", "x", c.writeJSONStructure("a.json"), c.writeJSONStructure("b.json"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "single file")
}

func TestIngestValidationFailure(t *testing.T) {
	c := newCLI(t, "")
	_, errOut, code := c.run("ingest", c.writeJSONStructure("a.json"), "--band-gap=-1")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "BandGap")

	var listed []domain.MaterialRecord
	require.NoError(t, json.Unmarshal([]byte(c.mustRun("list", "--json")), &listed))
	assert.Empty(t, listed)
}

func TestRestoreFromArchive(t *testing.T) {
	c := newCLI(t, "")
	c.mustRun("ingest", c.writeJSONStructure("a.json"), "--identifier", "mof-a")
	require.NoError(t, os.Remove(filepath.Join(c.dir, "records.db")))

	_, _, code := c.run("get", "mof-a")
	require.Equal(t, 1, code)

	assert.Equal(t, "restored 1 records\n", c.mustRun("restore"))
	assert.Equal(t, "mof-a", decodeRecord(t, c.mustRun("get", "mof-a")).ID())
}

func TestSorbateFlagReachesPoreTool(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script tool")
	}
	script := filepath.Join(t.TempDir(), "pore.sh")
	require.NoError(t, os.WriteFile(script, []byte(poreScript), 0o700))
	c := newCLI(t, fmt.Sprintf(`
tools:
  pore_geometry:
    command: %s
    options:
      sorbate: [CH4]
`, script))
	path := c.writeJSONStructure("cuo.json")

	configured := decodeRecord(t, c.mustRun("analyze", path))
	require.Len(t, configured.ZeoPlusPlus, 1)
	assert.Equal(t, "CH4", configured.ZeoPlusPlus[0].Sorbate)

	rec := decodeRecord(t, c.mustRun("analyze", path, "--sorbate", "N2", "--sorbate", "H2O"))
	require.Len(t, rec.ZeoPlusPlus, 2)
	assert.Equal(t, "N2", rec.ZeoPlusPlus[0].Sorbate)
	assert.Equal(t, "H2O", rec.ZeoPlusPlus[1].Sorbate)
	assert.InDelta(t, 3.5, *rec.ZeoPlusPlus[0].Pld, 1e-9)
	assert.InDelta(t, 6.25, *rec.ZeoPlusPlus[1].Lcd, 1e-9)
}

func TestFlagErrors(t *testing.T) {
	c := newCLI(t, "")
	path := c.writeJSONStructure("cuo.json")
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"bad set", []string{"analyze", path, "--set", "Energy"}, "Name=value"},
		{"bad mofid option", []string{"analyze", path, "--mofid-opt", "=x"}, "key=value"},
		{"unknown field", []string{"analyze", path, "--set", "Colour=red"}, "Colour"},
		{"unsupported format", []string{"analyze", filepath.Join(c.dir, "cuo.xyz")}, "cuo.xyz"},
		{"negative limit", []string{"list", "--limit", "-1"}, "non-negative"},
		{"missing argument", []string{"get"}, "arg"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, errOut, code := c.run(tc.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, errOut, tc.want)
		})
	}
}

func TestInvalidConfig(t *testing.T) {
	c := newCLI(t, "cache:\n  size: -1\n")
	_, errOut, code := c.run("list")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "cache")
}

func TestServerRoutes(t *testing.T) {
	c := newCLI(t, "")
	a := &app{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}, configPath: c.config, envFiles: []string{filepath.Join(c.dir, "missing.env")}}
	require.NoError(t, a.load())

	srv, err := a.newServer(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.close() })
	srv.worker.Start()
	t.Cleanup(func() { _ = srv.worker.Stop(context.Background()) })

	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)

	raw, err := json.Marshal(cubicCuO(t))
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{"structure": json.RawMessage(raw), "overrides": map[string]any{"Identifier": "mof-http"}})
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/api/v1/materials", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	var metrics bytes.Buffer
	_, err = metrics.ReadFrom(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Contains(t, metrics.String(), `mofgen_operations_total{operation="ingest",status="success"} 1`)
	assert.Contains(t, metrics.String(), "go_goroutines")
}

func TestRunServerStopsOnCancel(t *testing.T) {
	c := newCLI(t, "server:\n  addr: 127.0.0.1:0\n")
	a := &app{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}, configPath: c.config, envFiles: []string{filepath.Join(c.dir, "missing.env")}}
	require.NoError(t, a.load())
	srv, err := a.newServer(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, srv.run(ctx, a.cfg.Server.ShutdownTimeout))
}
