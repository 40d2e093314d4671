package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Archive key layout.
const (
	StructurePrefix = "structures/"
	RecordPrefix    = "records/"
)

// Archive stores the CIF text and the serialized record of each ingested
// material.
type Archive struct {
	store Store
}

// NewArchive wraps a blob store.
func NewArchive(store Store) *Archive { return &Archive{store: store} }

// Store returns the underlying blob store.
func (a *Archive) Store() Store { return a.store }

// StructureKey is the archive key of a material's CIF file.
func StructureKey(id string) string { return StructurePrefix + id + ".cif" }

// RecordKey is the archive key of a material's JSON record.
func RecordKey(id string) string { return RecordPrefix + id + ".json" }

// PutMaterial archives both files for id, replacing earlier versions.
func (a *Archive) PutMaterial(ctx context.Context, id, cif string, record []byte) error {
	if err := validID(id); err != nil {
		return err
	}
	meta := map[string]string{"material-id": id}
	if _, err := a.store.Put(ctx, StructureKey(id), strings.NewReader(cif), PutOptions{ContentType: "chemical/x-cif", Metadata: meta}); err != nil {
		return fmt.Errorf("archive structure %s: %w", id, err)
	}
	if _, err := a.store.Put(ctx, RecordKey(id), bytes.NewReader(record), PutOptions{ContentType: "application/json", Metadata: meta}); err != nil {
		return fmt.Errorf("archive record %s: %w", id, err)
	}
	return nil
}

// Structure returns the archived CIF text for id.
func (a *Archive) Structure(ctx context.Context, id string) ([]byte, error) {
	return a.read(ctx, StructureKey(id))
}

// Record returns the archived JSON record for id.
func (a *Archive) Record(ctx context.Context, id string) ([]byte, error) {
	return a.read(ctx, RecordKey(id))
}

// Remove deletes both files and reports whether anything existed.
func (a *Archive) Remove(ctx context.Context, id string) (bool, error) {
	if err := validID(id); err != nil {
		return false, err
	}
	var (
		existed bool
		errs    []error
	)
	for _, key := range []string{StructureKey(id), RecordKey(id)} {
		ok, err := a.store.Delete(ctx, key)
		if err != nil {
			errs = append(errs, err)
		}
		existed = existed || ok
	}
	return existed, errors.Join(errs...)
}

// IDs lists the material identifiers that have an archived record.
func (a *Archive) IDs(ctx context.Context) ([]string, error) {
	infos, err := a.store.List(ctx, RecordPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		id := strings.TrimSuffix(strings.TrimPrefix(info.Key, RecordPrefix), ".json")
		if id != "" && !strings.Contains(id, "/") {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (a *Archive) read(ctx context.Context, key string) ([]byte, error) {
	_, rc, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

func validID(id string) error {
	if strings.TrimSpace(id) == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid material id %q", id)
	}
	return nil
}
