package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mofgen/pkg/domain"
	"mofgen/pkg/structure"
)

// Ingest builds the record for st, assigns a generated identifier unless the
// overrides carry one, stores it and archives the structure and record.
func (s *Service) Ingest(ctx context.Context, st *structure.Structure, overrides ...domain.Override) (domain.MaterialRecord, error) {
	var rec domain.MaterialRecord
	err := s.observe(ctx, OpIngest, func(ctx context.Context) error {
		opts := append([]domain.Override{domain.WithIdentifier(s.newID())}, overrides...)
		var err error
		if rec, err = s.material(ctx, st, domain.Collect(opts...)); err != nil {
			return err
		}
		return s.persist(ctx, rec)
	})
	if err != nil {
		return domain.MaterialRecord{}, err
	}
	s.logger.Info("material ingested", "id", rec.ID(), "formula", deref(rec.FormulaReduced))
	return rec, nil
}

// Save stores an already assembled record and archives it.
func (s *Service) Save(ctx context.Context, rec domain.MaterialRecord) error {
	return s.observe(ctx, OpIngest, func(ctx context.Context) error {
		if err := rec.Validate(); err != nil {
			return err
		}
		return s.persist(ctx, rec)
	})
}

// persist stores rec and archives it. When archiving fails the store and the
// archive are returned to the previous version of the record, or cleared of
// it when there was none.
func (s *Service) persist(ctx context.Context, rec domain.MaterialRecord) error {
	id := rec.ID()
	prior, err := s.store.Get(ctx, id)
	hadPrior := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("load %s: %w", id, err)
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("store %s: %w", id, err)
	}
	if s.archive == nil {
		return nil
	}
	archiveErr := s.archiveRecord(ctx, rec)
	if archiveErr == nil {
		return nil
	}
	if err := s.rollback(ctx, id, prior, hadPrior); err != nil {
		return errors.Join(archiveErr, fmt.Errorf("roll back %s: %w", id, err))
	}
	return archiveErr
}

func (s *Service) rollback(ctx context.Context, id string, prior domain.MaterialRecord, hadPrior bool) error {
	if hadPrior {
		if err := s.store.Put(ctx, prior); err != nil {
			return err
		}
		return s.archiveRecord(ctx, prior)
	}
	var errs []error
	if _, err := s.store.Delete(ctx, id); err != nil {
		errs = append(errs, err)
	}
	if _, err := s.archive.Remove(ctx, id); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) archiveRecord(ctx context.Context, rec domain.MaterialRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.ID(), err)
	}
	var cif string
	if rec.Structure != nil {
		if cif, err = rec.Structure.CIF(); err != nil {
			return fmt.Errorf("serialize %s: %w", rec.ID(), err)
		}
	}
	if err := s.archive.PutMaterial(ctx, rec.ID(), cif, payload); err != nil {
		return fmt.Errorf("archive %s: %w", rec.ID(), err)
	}
	return nil
}

// Get loads a stored record.
func (s *Service) Get(ctx context.Context, id string) (domain.MaterialRecord, error) {
	var rec domain.MaterialRecord
	err := s.observe(ctx, OpGet, func(ctx context.Context) error {
		var err error
		rec, err = s.store.Get(ctx, id)
		return err
	})
	return rec, err
}

// List returns stored records matching filter.
func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.MaterialRecord, error) {
	var recs []domain.MaterialRecord
	err := s.observe(ctx, OpList, func(ctx context.Context) error {
		var err error
		recs, err = s.store.List(ctx, filter)
		return err
	})
	return recs, err
}

// Delete removes a record and its archived blobs. It reports whether
// anything existed.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	var existed bool
	err := s.observe(ctx, OpDelete, func(ctx context.Context) error {
		var err error
		if existed, err = s.store.Delete(ctx, id); err != nil {
			return err
		}
		if s.archive == nil {
			return nil
		}
		removed, err := s.archive.Remove(ctx, id)
		existed = existed || removed
		return err
	})
	return existed, err
}

// StructureCIF returns the CIF text of a stored record's structure, preferring
// the archived copy.
func (s *Service) StructureCIF(ctx context.Context, id string) ([]byte, error) {
	if s.archive != nil {
		data, err := s.archive.Structure(ctx, id)
		if err == nil {
			return data, nil
		}
		s.logger.Debug("archived structure unavailable", "id", id, "error", err)
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Structure == nil {
		return nil, domain.NotFoundError{ID: id}
	}
	cif, err := rec.Structure.CIF()
	if err != nil {
		return nil, fmt.Errorf("serialize %s: %w", id, err)
	}
	return []byte(cif), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Restore loads every archived record back into the store and reports how
// many were restored. Unreadable records are skipped and reported together.
func (s *Service) Restore(ctx context.Context) (int, error) {
	if s.archive == nil {
		return 0, errors.New("restore: archive not configured")
	}
	ids, err := s.archive.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore: %w", err)
	}
	var (
		restored int
		errs     []error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return restored, err
		}
		payload, err := s.archive.Record(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", id, err))
			continue
		}
		rec, err := domain.ParseMaterial(payload)
		if err != nil {
			errs = append(errs, fmt.Errorf("decode %s: %w", id, err))
			continue
		}
		if err := s.store.Put(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("store %s: %w", id, err))
			continue
		}
		restored++
	}
	s.logger.Info("archive restored", "restored", restored, "failed", len(errs))
	return restored, errors.Join(errs...)
}
