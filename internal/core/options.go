package core

import (
	"time"

	"github.com/google/uuid"

	"mofgen/internal/analysis"
	"mofgen/internal/blob"
	"mofgen/pkg/domain"
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. A nil logger keeps the no-op default.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithClock overrides the time source used for durations.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStore sets the record store used by Ingest, Get, List and Delete.
func WithStore(store domain.RecordStore) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithArchive enables archiving of ingested structures and records.
func WithArchive(archive *blob.Archive) Option {
	return func(s *Service) { s.archive = archive }
}

// WithCache replaces the tool result cache. nil disables caching.
func WithCache(cache *ResultCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithIDGenerator sets the identifier source for ingested records without one.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithIdentifierOptions sets the options MaterialFromStructure passes to the
// identifier tool.
func WithIdentifierOptions(opts analysis.Options) Option {
	return func(s *Service) { s.identifierOpts = opts.Clone() }
}

// WithPoreGeometryOptions sets the options MaterialFromStructure passes to the
// pore-geometry tool.
func WithPoreGeometryOptions(opts analysis.Options) Option {
	return func(s *Service) { s.poreOpts = opts.Clone() }
}

func newUUID() string { return uuid.NewString() }
