// Package memory implements domain.RecordStore in process memory for tests and
// ephemeral runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"mofgen/pkg/domain"
)

// Store keeps encoded records keyed by identifier, so callers never share
// pointers with stored state.
type Store struct {
	mu      sync.RWMutex
	records map[string][]byte
}

var _ domain.RecordStore = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string][]byte)}
}

// Put inserts or replaces the record.
func (s *Store) Put(_ context.Context, rec domain.MaterialRecord) error {
	id, err := domain.RequireIdentifier(rec)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", id, err)
	}
	s.mu.Lock()
	s.records[id] = payload
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the record.
func (s *Store) Get(_ context.Context, id string) (domain.MaterialRecord, error) {
	s.mu.RLock()
	payload, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return domain.MaterialRecord{}, domain.NotFoundError{ID: id}
	}
	return domain.ParseMaterial(payload)
}

// List returns matching records ordered by identifier.
func (s *Store) List(_ context.Context, filter domain.ListFilter) ([]domain.MaterialRecord, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	payloads := make(map[string][]byte, len(ids))
	for _, id := range ids {
		payloads[id] = s.records[id]
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	out := []domain.MaterialRecord{}
	skipped := 0
	for _, id := range ids {
		rec, err := domain.ParseMaterial(payloads[id])
		if err != nil {
			return nil, fmt.Errorf("decode record %s: %w", id, err)
		}
		if !filter.Matches(rec) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Delete removes the record and reports whether it existed.
func (s *Store) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	delete(s.records, id)
	return ok, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
