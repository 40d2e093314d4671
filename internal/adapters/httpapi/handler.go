// Package httpapi serves material records and ingest jobs over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mofgen/docs/schema/openapi"
	"mofgen/internal/core"
	"mofgen/pkg/domain"
	"mofgen/pkg/structure"
)

// maxBodyBytes bounds request bodies; CIF files of large frameworks stay well
// below it.
const maxBodyBytes = 32 << 20

// Service is the subset of core.Service the API uses.
type Service interface {
	Ingester
	MaterialFromStructure(ctx context.Context, st *structure.Structure, overrides ...domain.Override) (domain.MaterialRecord, error)
	Get(ctx context.Context, id string) (domain.MaterialRecord, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.MaterialRecord, error)
	Delete(ctx context.Context, id string) (bool, error)
	StructureCIF(ctx context.Context, id string) ([]byte, error)
}

// Handler routes API requests.
type Handler struct {
	svc     Service
	jobs    *Worker
	logger  core.Logger
	metrics http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithJobs enables the asynchronous job endpoints.
func WithJobs(w *Worker) Option { return func(h *Handler) { h.jobs = w } }

// WithLogger sets the request error logger.
func WithLogger(l core.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(m http.Handler) Option { return func(h *Handler) { h.metrics = m } }

// NewRouter builds the API router.
func NewRouter(svc Service, opts ...Option) http.Handler {
	h := &Handler{svc: svc, logger: discardLogger{}}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/debug/vars", expvar.Handler())
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write(openapi.MaterialsSpec)
		})
		r.Post("/analyze", h.analyze)
		r.Route("/materials", func(r chi.Router) {
			r.Get("/", h.listMaterials)
			r.Post("/", h.createMaterial)
			r.Get("/{id}", h.getMaterial)
			r.Delete("/{id}", h.deleteMaterial)
			r.Get("/{id}/structure.cif", h.getStructure)
		})
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", h.createJob)
			r.Get("/{id}", h.getJob)
		})
	})
	return r
}

// materialRequest carries a structure as pymatgen-style JSON or CIF text,
// plus record overrides.
type materialRequest struct {
	Structure json.RawMessage  `json:"structure"`
	CIF       string           `json:"cif"`
	Overrides domain.Overrides `json:"overrides"`
}

func decodeMaterialRequest(w http.ResponseWriter, r *http.Request) (*structure.Structure, domain.Overrides, error) {
	var req materialRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, nil, fmt.Errorf("invalid request body: %w", err)
	}
	hasJSON := len(req.Structure) > 0 && string(req.Structure) != "null"
	hasCIF := strings.TrimSpace(req.CIF) != ""
	switch {
	case hasJSON && hasCIF:
		return nil, nil, errors.New("provide either structure or cif, not both")
	case hasJSON:
		st, err := structure.Decode(req.Structure)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid structure: %w", err)
		}
		return st, req.Overrides, nil
	case hasCIF:
		st, err := structure.ParseCIF(req.CIF)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid cif: %w", err)
		}
		return st, req.Overrides, nil
	default:
		return nil, nil, errors.New("structure or cif is required")
	}
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	st, overrides, err := decodeMaterialRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.svc.MaterialFromStructure(r.Context(), st, domain.WithFields(overrides))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) createMaterial(w http.ResponseWriter, r *http.Request) {
	st, overrides, err := decodeMaterialRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.svc.Ingest(r.Context(), st, domain.WithFields(overrides))
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/materials/"+rec.ID())
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) listMaterials(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := h.svc.List(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"materials": recs, "count": len(recs)})
}

func parseListFilter(r *http.Request) (domain.ListFilter, error) {
	q := r.URL.Query()
	filter := domain.ListFilter{
		ChemicalSystem: q.Get("chemical_system"),
		FormulaReduced: q.Get("formula"),
		Method:         q.Get("method"),
	}
	for name, dst := range map[string]*int{
		"space_group": &filter.SpaceGroupNumber,
		"limit":       &filter.Limit,
		"offset":      &filter.Offset,
	} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return domain.ListFilter{}, fmt.Errorf("%s must be a non-negative integer", name)
		}
		*dst = n
	}
	return filter, nil
}

func (h *Handler) getMaterial(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) getStructure(w http.ResponseWriter, r *http.Request) {
	cif, err := h.svc.StructureCIF(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "chemical/x-cif")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(cif)
}

func (h *Handler) deleteMaterial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existed, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, domain.NotFoundError{ID: id}.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, http.StatusNotImplemented, "ingest jobs not enabled")
		return
	}
	st, overrides, err := decodeMaterialRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := h.jobs.Enqueue(r.Context(), st, overrides)
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, http.StatusNotImplemented, "ingest jobs not enabled")
		return
	}
	job, ok := h.jobs.Job(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case domain.IsValidationError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrWorkerStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
