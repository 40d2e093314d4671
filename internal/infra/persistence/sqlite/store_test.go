package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"mofgen/internal/infra/persistence/storetest"
	"mofgen/pkg/domain"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.RecordStore {
		store, err := Open(context.Background(), filepath.Join(t.TempDir(), "records.db"))
		if err != nil {
			t.Skipf("sqlite unavailable: %v", err)
		}
		return store
	})
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "records.db")
	store, err := Open(ctx, path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if err := store.Put(ctx, storetest.Record(t, "mof-1", "Cu-O", "DFT", 225)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	if reopened.Path() != path {
		t.Fatalf("unexpected path %s", reopened.Path())
	}
	rec, err := reopened.Get(ctx, "mof-1")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if *rec.SpaceGroupNumber != 225 {
		t.Fatalf("unexpected space group %d", *rec.SpaceGroupNumber)
	}

	var table string
	if err := reopened.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", "materials").Scan(&table); err != nil {
		t.Fatalf("lookup materials table: %v", err)
	}
}

func TestOpenResolvesRelativePath(t *testing.T) {
	base := t.TempDir()
	t.Chdir(base)
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join("data", "records.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if want := filepath.Join(base, "data", "records.db"); store.Path() != want {
		t.Fatalf("path = %s, want %s", store.Path(), want)
	}

	t.Chdir(t.TempDir())
	if err := store.Put(ctx, storetest.Record(t, "mof-1", "Cu-O", "", 1)); err != nil {
		t.Fatalf("put after chdir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "data", "records.db")); err != nil {
		t.Fatalf("expected database under initial directory: %v", err)
	}
}
