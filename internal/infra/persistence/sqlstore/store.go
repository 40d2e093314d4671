// Package sqlstore implements domain.RecordStore on database/sql. Records are
// stored as JSON payloads next to the columns List filters on; queries are
// built with goqu for the configured dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // register postgres dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // register sqlite3 dialect

	"mofgen/pkg/domain"
)

// Dialects understood by New.
const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)

// Table and column names.
const (
	Table             = "materials"
	colID             = "id"
	colChemicalSystem = "chemical_system"
	colFormulaReduced = "formula_reduced"
	colMethod         = "method"
	colSpaceGroup     = "space_group_number"
	colPayload        = "payload"
	colUpdatedAt      = "updated_at"
)

// Schema returns the DDL for the materials table in dialect.
func Schema(dialect string) string {
	payloadType := "TEXT"
	if dialect == DialectPostgres {
		payloadType = "JSONB"
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s TEXT PRIMARY KEY,
	%s TEXT,
	%s TEXT,
	%s TEXT,
	%s INTEGER,
	%s %s NOT NULL,
	%s TIMESTAMP NOT NULL
)`, Table, colID, colChemicalSystem, colFormulaReduced, colMethod, colSpaceGroup, colPayload, payloadType, colUpdatedAt)
}

// Store is a goqu-backed RecordStore.
type Store struct {
	db      *sql.DB
	dialect goqu.DialectWrapper
	name    string
	now     func() time.Time
}

var _ domain.RecordStore = (*Store)(nil)

// New wraps an open database. It does not create the schema; see Migrate.
func New(db *sql.DB, dialect string) (*Store, error) {
	switch dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	return &Store{db: db, dialect: goqu.Dialect(dialect), name: dialect, now: time.Now}, nil
}

// Migrate creates the materials table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema(s.name)); err != nil {
		return fmt.Errorf("create %s table: %w", Table, err)
	}
	return nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the configured dialect name.
func (s *Store) Dialect() string { return s.name }

// Put replaces any row with the same identifier inside one transaction.
func (s *Store) Put(ctx context.Context, rec domain.MaterialRecord) (retErr error) {
	id, err := domain.RequireIdentifier(rec)
	if err != nil {
		return err
	}
	payload, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	del, delArgs, err := s.dialect.Delete(Table).Prepared(true).Where(goqu.C(colID).Eq(id)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	ins, insArgs, err := s.dialect.Insert(Table).Prepared(true).Rows(goqu.Record{
		colID:             id,
		colChemicalSystem: nullString(rec.ChemicalSystem),
		colFormulaReduced: nullString(rec.FormulaReduced),
		colMethod:         nullString(rec.Method),
		colSpaceGroup:     nullInt(rec.SpaceGroupNumber),
		colPayload:        string(payload),
		colUpdatedAt:      s.now().UTC(),
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, del, delArgs...); err != nil {
		return fmt.Errorf("replace %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, ins, insArgs...); err != nil {
		return fmt.Errorf("insert %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", id, err)
	}
	return nil
}

// Get loads one record by identifier.
func (s *Store) Get(ctx context.Context, id string) (domain.MaterialRecord, error) {
	query, args, err := s.dialect.From(Table).Prepared(true).Select(colPayload).Where(goqu.C(colID).Eq(id)).ToSQL()
	if err != nil {
		return domain.MaterialRecord{}, fmt.Errorf("build select: %w", err)
	}
	var payload string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.MaterialRecord{}, domain.NotFoundError{ID: id}
		}
		return domain.MaterialRecord{}, fmt.Errorf("select %s: %w", id, err)
	}
	return decodeRecord([]byte(payload))
}

// List returns matching records ordered by identifier.
func (s *Store) List(ctx context.Context, filter domain.ListFilter) ([]domain.MaterialRecord, error) {
	ds := s.dialect.From(Table).Prepared(true).Select(colPayload).Order(goqu.C(colID).Asc())
	where := goqu.Ex{}
	if filter.ChemicalSystem != "" {
		where[colChemicalSystem] = filter.ChemicalSystem
	}
	if filter.FormulaReduced != "" {
		where[colFormulaReduced] = filter.FormulaReduced
	}
	if filter.Method != "" {
		where[colMethod] = filter.Method
	}
	if filter.SpaceGroupNumber != 0 {
		where[colSpaceGroup] = filter.SpaceGroupNumber
	}
	if len(where) > 0 {
		ds = ds.Where(where)
	}
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 && s.name == DialectSQLite {
			// sqlite requires LIMIT before OFFSET
			ds = ds.Limit(math.MaxInt32)
		}
		ds = ds.Offset(uint(filter.Offset))
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []domain.MaterialRecord{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		rec, err := decodeRecord([]byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	return out, nil
}

// Delete removes the record and reports whether a row was deleted.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	query, args, err := s.dialect.Delete(Table).Prepared(true).Where(goqu.C(colID).Eq(id)).ToSQL()
	if err != nil {
		return false, fmt.Errorf("build delete: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", id, err)
	}
	return n > 0, nil
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
