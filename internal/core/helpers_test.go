package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mofgen/internal/analysis"
	"mofgen/pkg/domain"
	"mofgen/pkg/structure"
)

var errToolCrashed = errors.New("tool crashed")

type fakeSymmetry struct {
	sym   analysis.Symmetry
	err   error
	calls int
}

func (f *fakeSymmetry) Analyze(context.Context, *structure.Structure) (analysis.Symmetry, error) {
	f.calls++
	return f.sym, f.err
}

type fakeIdentifier struct {
	out   map[string]any
	err   error
	calls int
	cwd   string
	path  string
	opts  analysis.Options
	found bool
}

func (f *fakeIdentifier) Identify(_ context.Context, cifPath string, opts analysis.Options) (map[string]any, error) {
	f.calls++
	f.path = cifPath
	f.opts = opts
	f.cwd, _ = os.Getwd()
	_, statErr := os.Stat(TempCIFName)
	f.found = statErr == nil
	return f.out, f.err
}

type fakePoreGeometry struct {
	out   []domain.SorbateOutput
	err   error
	calls int
	dir   string
	cwd   string
	opts  analysis.Options
}

func (f *fakePoreGeometry) Assess(_ context.Context, dir string, _ *structure.Structure, opts analysis.Options) ([]domain.SorbateOutput, error) {
	f.calls++
	f.dir = dir
	f.opts = opts
	f.cwd, _ = os.Getwd()
	return f.out, f.err
}

type fakeTools struct {
	symmetry *fakeSymmetry
	mofid    *fakeIdentifier
	zeopp    *fakePoreGeometry
}

func (f fakeTools) tools() Tools {
	return Tools{Symmetry: f.symmetry, Identifier: f.mofid, PoreGeometry: f.zeopp}
}

func workingTools() fakeTools {
	return fakeTools{
		symmetry: &fakeSymmetry{sym: analysis.Symmetry{Number: 225, Symbol: "Fm-3m"}},
		mofid: &fakeIdentifier{out: map[string]any{
			"smiles":         "[Cu].[O]",
			"topology":       "pcu",
			"smiles_linkers": []any{"O"},
			"smiles_nodes":   []any{"[Cu]"},
			"mofkey":         "Cu.MOFkey-v1.pcu",
			"mofid":          "[Cu].[O] MOFid-v1.pcu.cat0",
		}},
		zeopp: &fakePoreGeometry{out: []domain.SorbateOutput{
			{Sorbate: "N2", Values: map[string]any{"PLD": 3.2, "LCD": 5.1, "PONAV_A^3": 12.0, "PONAV_cm^3/g": 0.01}},
			{Sorbate: domain.ReservedSorbateKey},
			{Sorbate: "CO2", Values: map[string]any{"PLD": 3.0}},
		}},
	}
}

func failingTools() fakeTools {
	return fakeTools{
		symmetry: &fakeSymmetry{err: errToolCrashed},
		mofid:    &fakeIdentifier{err: errToolCrashed},
		zeopp:    &fakePoreGeometry{err: errToolCrashed},
	}
}

// lithiumFerrite lists its sites oxygen first so element order is not sorted.
func lithiumFerrite(t testing.TB) *structure.Structure {
	t.Helper()
	lattice, err := structure.FromParameters(4.2, 4.2, 4.2, 90, 90, 90)
	require.NoError(t, err)
	return structure.MustNew(lattice, []structure.Site{
		{Species: []structure.Specie{{Element: "O", Occupancy: 1}}, Frac: [3]float64{0.5, 0, 0}},
		{Species: []structure.Specie{{Element: "O", Occupancy: 1}}, Frac: [3]float64{0, 0.5, 0}},
		{Species: []structure.Specie{{Element: "Fe", Occupancy: 1}}, Frac: [3]float64{0, 0, 0}},
		{Species: []structure.Specie{{Element: "Li", Occupancy: 1}}, Frac: [3]float64{0.5, 0.5, 0.5}},
	})
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (c *captureLogger) log(level, msg string, args []any) {
	c.mu.Lock()
	c.entries = append(c.entries, logEntry{level: level, msg: msg, args: args})
	c.mu.Unlock()
}

func (c *captureLogger) Debug(msg string, args ...any) { c.log("debug", msg, args) }
func (c *captureLogger) Info(msg string, args ...any)  { c.log("info", msg, args) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.log("warn", msg, args) }
func (c *captureLogger) Error(msg string, args ...any) { c.log("error", msg, args) }

// warnedTools returns the tool attribute of every warning.
func (c *captureLogger) warnedTools() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var tools []string
	for _, e := range c.entries {
		if e.level != "warn" {
			continue
		}
		for i := 0; i+1 < len(e.args); i += 2 {
			if e.args[i] == "tool" {
				tools = append(tools, e.args[i+1].(string))
			}
		}
	}
	return tools
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.mu.Lock()
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
	c.mu.Unlock()
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	mu    sync.Mutex
	ended []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.mu.Lock()
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
	s.tracer.mu.Unlock()
}

func (c *captureTracer) ops() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.ended))
	for _, r := range c.ended {
		out = append(out, r.op)
	}
	return out
}

func realPath(t testing.TB, p string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(p)
	require.NoError(t, err)
	return resolved
}
