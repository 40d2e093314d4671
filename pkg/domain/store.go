package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record identifier is unknown to a store.
var ErrNotFound = errors.New("material record not found")

// NotFoundError names the identifier that was not found. It matches
// ErrNotFound with errors.Is.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string { return fmt.Sprintf("material record %s not found", e.ID) }

// Is reports equivalence with ErrNotFound.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	ChemicalSystem   string
	FormulaReduced   string
	Method           string
	SpaceGroupNumber int
	Limit            int
	Offset           int
}

// Matches reports whether rec satisfies the filter predicates (paging ignored).
func (f ListFilter) Matches(rec MaterialRecord) bool {
	if f.ChemicalSystem != "" && deref(rec.ChemicalSystem) != f.ChemicalSystem {
		return false
	}
	if f.FormulaReduced != "" && deref(rec.FormulaReduced) != f.FormulaReduced {
		return false
	}
	if f.Method != "" && deref(rec.Method) != f.Method {
		return false
	}
	if f.SpaceGroupNumber != 0 && (rec.SpaceGroupNumber == nil || *rec.SpaceGroupNumber != f.SpaceGroupNumber) {
		return false
	}
	return true
}

// RecordStore persists finished material records keyed by Identifier.
type RecordStore interface {
	// Put inserts or replaces the record. The record must carry an Identifier.
	Put(ctx context.Context, rec MaterialRecord) error
	// Get returns the record or an error matching ErrNotFound.
	Get(ctx context.Context, id string) (MaterialRecord, error)
	// List returns matching records ordered by Identifier.
	List(ctx context.Context, filter ListFilter) ([]MaterialRecord, error)
	// Delete removes the record and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
	Close() error
}

// RequireIdentifier returns the record identifier or a validation error.
func RequireIdentifier(rec MaterialRecord) (string, error) {
	if rec.ID() == "" {
		return "", invalid("Identifier", "required for persistence")
	}
	return rec.ID(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
