// Package core assembles material records from crystal structures by running
// the external analysis tools, and persists them.
package core

import (
	"context"
	"time"

	"mofgen/internal/analysis"
	"mofgen/internal/blob"
	"mofgen/internal/infra/persistence/memory"
	"mofgen/pkg/domain"
)

// Service runs the analysis pipeline and owns the record store.
type Service struct {
	tools          Tools
	identifierOpts analysis.Options
	poreOpts       analysis.Options

	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	now     func() time.Time
	newID   func() string

	store   domain.RecordStore
	archive *blob.Archive
	cache   *ResultCache
}

// NewService constructs a service around tools. Without WithStore records are
// kept in memory.
func NewService(tools Tools, opts ...Option) *Service {
	cache, _ := NewResultCache(DefaultCacheSize)
	s := &Service{
		tools:   tools,
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		now:     time.Now,
		newID:   newUUID,
		store:   memory.NewStore(),
		cache:   cache,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Store returns the record store.
func (s *Service) Store() domain.RecordStore { return s.store }

// Archive returns the blob archive, or nil when archiving is disabled.
func (s *Service) Archive() *blob.Archive { return s.archive }

// Cache returns the tool result cache, or nil when caching is disabled.
func (s *Service) Cache() *ResultCache { return s.cache }

// Close releases the record store.
func (s *Service) Close() error { return s.store.Close() }

// observe runs fn inside a span and reports its outcome to the metrics recorder.
func (s *Service) observe(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, operation)
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, s.now().Sub(start))
	return err
}
