package memory

import (
	"context"
	"testing"

	"mofgen/internal/infra/persistence/storetest"
	"mofgen/pkg/domain"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) domain.RecordStore { return NewStore() })
}

func TestStoreIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	rec := storetest.Record(t, "mof-1", "Cu-O", "DFT", 225)
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	*rec.Method = "changed after put"

	got, err := s.Get(ctx, "mof-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if *got.Method != "DFT" {
		t.Fatalf("stored record aliased caller state: %s", *got.Method)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", s.Len())
	}
}
