package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mofgen/internal/analysis"
	"mofgen/internal/core"
	"mofgen/pkg/domain"
	"mofgen/pkg/structure"
)

type stubSymmetry struct{}

func (stubSymmetry) Analyze(context.Context, *structure.Structure) (analysis.Symmetry, error) {
	return analysis.Symmetry{Number: 221, Symbol: "Pm-3m"}, nil
}

type stubPoreGeometry struct{}

func (stubPoreGeometry) Assess(context.Context, string, *structure.Structure, analysis.Options) ([]domain.SorbateOutput, error) {
	return []domain.SorbateOutput{{Sorbate: "N2", Values: map[string]any{"PLD": 2.5}}}, nil
}

func cubicCuO(t testing.TB) *structure.Structure {
	t.Helper()
	lattice, err := structure.FromParameters(6, 6, 6, 90, 90, 90)
	require.NoError(t, err)
	return structure.MustNew(lattice, []structure.Site{
		{Species: []structure.Specie{{Element: "Cu", Occupancy: 1}}, Frac: [3]float64{0, 0, 0}},
		{Species: []structure.Specie{{Element: "O", Occupancy: 1}}, Frac: [3]float64{0.5, 0.5, 0.5}},
	})
}

func newTestService(opts ...core.Option) *core.Service {
	tools := core.Tools{Symmetry: stubSymmetry{}, PoreGeometry: stubPoreGeometry{}}
	return core.NewService(tools, opts...)
}

func structureBody(t *testing.T, overrides map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(cubicCuO(t))
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{"structure": json.RawMessage(raw), "overrides": overrides})
	require.NoError(t, err)
	return body
}

func cifBody(t *testing.T) []byte {
	t.Helper()
	cif, err := cubicCuO(t).CIF()
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{"cif": cif})
	require.NoError(t, err)
	return body
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	rec := do(t, NewRouter(newTestService()), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestOpenAPIDocument(t *testing.T) {
	rec := do(t, NewRouter(newTestService()), http.MethodGet, "/api/v1/openapi.yaml", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "/api/v1/materials/{id}/structure.cif:")
}

func TestMaterialLifecycle(t *testing.T) {
	h := NewRouter(newTestService(core.WithIDGenerator(func() string { return "mof-1" })))

	created := do(t, h, http.MethodPost, "/api/v1/materials", structureBody(t, map[string]any{"Method": "DFT", "BandGap": 1.2}))
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	assert.Equal(t, "/api/v1/materials/mof-1", created.Header().Get("Location"))
	rec := decodeBody[domain.MaterialRecord](t, created)
	assert.Equal(t, "mof-1", rec.ID())
	assert.Equal(t, "DFT", *rec.Method)
	assert.Equal(t, 221, *rec.SpaceGroupNumber)
	require.NotNil(t, rec.MofId)
	assert.True(t, rec.MofId.IsEmpty())

	got := do(t, h, http.MethodGet, "/api/v1/materials/mof-1", nil)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, "Cu-O", *decodeBody[domain.MaterialRecord](t, got).ChemicalSystem)

	cif := do(t, h, http.MethodGet, "/api/v1/materials/mof-1/structure.cif", nil)
	require.Equal(t, http.StatusOK, cif.Code)
	assert.Equal(t, "chemical/x-cif", cif.Header().Get("Content-Type"))
	assert.Contains(t, cif.Body.String(), "_atom_site_fract_x")

	listed := do(t, h, http.MethodGet, "/api/v1/materials?method=DFT&space_group=221", nil)
	require.Equal(t, http.StatusOK, listed.Code)
	page := decodeBody[struct {
		Materials []domain.MaterialRecord `json:"materials"`
		Count     int                     `json:"count"`
	}](t, listed)
	assert.Equal(t, 1, page.Count)

	empty := do(t, h, http.MethodGet, "/api/v1/materials?method=ML", nil)
	assert.Contains(t, empty.Body.String(), `"count":0`)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/api/v1/materials/mof-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/api/v1/materials/mof-1", nil).Code)
	missing := do(t, h, http.MethodGet, "/api/v1/materials/mof-1", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Contains(t, missing.Body.String(), "not found")
}

func TestCreateMaterialFromCIF(t *testing.T) {
	h := NewRouter(newTestService())
	created := do(t, h, http.MethodPost, "/api/v1/materials", cifBody(t))
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	rec := decodeBody[domain.MaterialRecord](t, created)
	assert.Equal(t, 2, *rec.NumSites)
	assert.NotEmpty(t, rec.ID())
}

func TestAnalyzeDoesNotPersist(t *testing.T) {
	svc := newTestService()
	h := NewRouter(svc)
	resp := do(t, h, http.MethodPost, "/api/v1/analyze", structureBody(t, map[string]any{"Density": 0.0}))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	rec := decodeBody[domain.MaterialRecord](t, resp)
	assert.Equal(t, 0.0, *rec.Density)
	assert.Nil(t, rec.Identifier)

	all, err := svc.List(context.Background(), domain.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRequestErrors(t *testing.T) {
	h := NewRouter(newTestService())
	both, err := json.Marshal(map[string]any{"structure": map[string]any{}, "cif": "data_x"})
	require.NoError(t, err)

	cases := []struct {
		name   string
		method string
		path   string
		body   []byte
		status int
	}{
		{"malformed json", http.MethodPost, "/api/v1/materials", []byte(`{`), http.StatusBadRequest},
		{"unknown request field", http.MethodPost, "/api/v1/materials", []byte(`{"structur": {}}`), http.StatusBadRequest},
		{"no structure", http.MethodPost, "/api/v1/materials", []byte(`{"overrides": {}}`), http.StatusBadRequest},
		{"both inputs", http.MethodPost, "/api/v1/materials", both, http.StatusBadRequest},
		{"bad cif", http.MethodPost, "/api/v1/analyze", []byte(`{"cif": "not a cif"}`), http.StatusBadRequest},
		{"invalid override", http.MethodPost, "/api/v1/materials", structureBody(t, map[string]any{"SpaceGroupNumber": 999}), http.StatusUnprocessableEntity},
		{"unknown override", http.MethodPost, "/api/v1/analyze", structureBody(t, map[string]any{"Colour": "blue"}), http.StatusUnprocessableEntity},
		{"bad limit", http.MethodGet, "/api/v1/materials?limit=-1", nil, http.StatusBadRequest},
		{"bad space group", http.MethodGet, "/api/v1/materials?space_group=fm3m", nil, http.StatusBadRequest},
		{"jobs disabled", http.MethodPost, "/api/v1/jobs", structureBody(t, nil), http.StatusNotImplemented},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, h, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, resp.Code, resp.Body.String())
			assert.Contains(t, resp.Body.String(), `"error"`)
		})
	}
}

func TestJobsEndpoints(t *testing.T) {
	svc := newTestService()
	worker := NewWorker(svc, 4, nil)
	worker.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = worker.Stop(ctx)
	})
	h := NewRouter(svc, WithJobs(worker))

	accepted := do(t, h, http.MethodPost, "/api/v1/jobs", structureBody(t, map[string]any{"Method": "ML"}))
	require.Equal(t, http.StatusAccepted, accepted.Code, accepted.Body.String())
	job := decodeBody[Job](t, accepted)
	assert.Equal(t, JobQueued, job.Status)
	assert.True(t, strings.HasSuffix(accepted.Header().Get("Location"), job.ID))

	var done Job
	require.Eventually(t, func() bool {
		resp := do(t, h, http.MethodGet, "/api/v1/jobs/"+job.ID, nil)
		if resp.Code != http.StatusOK {
			return false
		}
		done = decodeBody[Job](t, resp)
		return done.Status == JobSucceeded
	}, 5*time.Second, 10*time.Millisecond)
	require.NotNil(t, done.CompletedAt)

	stored := do(t, h, http.MethodGet, "/api/v1/materials/"+done.MaterialID, nil)
	require.Equal(t, http.StatusOK, stored.Code)
	assert.Equal(t, "ML", *decodeBody[domain.MaterialRecord](t, stored).Method)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/jobs/unknown", nil).Code)
}

func TestMetricsEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom, err := core.NewPrometheusMetricsRecorder(reg)
	require.NoError(t, err)
	svc := newTestService(core.WithMetricsRecorder(prom))
	h := NewRouter(svc, WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/analyze", structureBody(t, nil)).Code)

	metrics := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), `mofgen_operations_total{operation="material",status="success"} 1`)

	vars := do(t, h, http.MethodGet, "/debug/vars", nil)
	assert.Equal(t, http.StatusOK, vars.Code)
	assert.Contains(t, vars.Body.String(), "memstats")
}
