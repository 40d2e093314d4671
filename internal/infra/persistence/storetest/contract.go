// Package storetest holds the behavioral contract every domain.RecordStore
// implementation is tested against.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mofgen/pkg/domain"
	"mofgen/pkg/structure"
)

// Record builds a valid material record for tests.
func Record(t testing.TB, id, chemsys, method string, spaceGroup int) domain.MaterialRecord {
	t.Helper()
	lattice, err := structure.FromParameters(10, 10, 10, 90, 90, 90)
	require.NoError(t, err)
	s := structure.MustNew(lattice, []structure.Site{
		{Species: []structure.Specie{{Element: "Cu", Occupancy: 1}}, Frac: [3]float64{0, 0, 0}},
		{Species: []structure.Specie{{Element: "O", Occupancy: 1}}, Frac: [3]float64{0.25, 0.25, 0.25}},
	})
	comp := s.Composition()
	density, volume, sites, elements := s.Density(), s.Volume(), s.NumSites(), comp.NumElements()
	formula, reduced := comp.Formula(), comp.ReducedFormula()
	rec := domain.MaterialRecord{
		Identifier:       &id,
		Structure:        s,
		Density:          &density,
		Volume:           &volume,
		NumSites:         &sites,
		Formula:          &formula,
		FormulaReduced:   &reduced,
		ChemicalSystem:   &chemsys,
		NumElements:      &elements,
		SpaceGroupNumber: &spaceGroup,
		MofId:            &domain.IdentifierRecord{},
		ZeoPlusPlus:      []domain.PoreGeometryRecord{},
	}
	if method != "" {
		rec.Method = &method
	}
	return rec
}

// Run exercises store against the RecordStore contract. newStore must return
// an empty store; Run closes it.
func Run(t *testing.T, newStore func(t *testing.T) domain.RecordStore) {
	t.Run("put requires identifier", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()
		rec := Record(t, "x", "Cu-O", "", 1)
		rec.Identifier = nil
		err := store.Put(context.Background(), rec)
		require.Error(t, err)
		assert.True(t, domain.IsValidationError(err))
	})

	t.Run("get round trips", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()
		ctx := context.Background()
		want := Record(t, "mof-a", "Cu-O", "DFT", 225)
		require.NoError(t, store.Put(ctx, want))

		got, err := store.Get(ctx, "mof-a")
		require.NoError(t, err)
		assertSameJSON(t, want, got)
		assert.NotNil(t, got.ZeoPlusPlus)
		require.NotNil(t, got.Structure)
		assert.Equal(t, 2, got.Structure.NumSites())

		_, err = store.Get(ctx, "missing")
		assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)
	})

	t.Run("put replaces", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()
		ctx := context.Background()
		require.NoError(t, store.Put(ctx, Record(t, "mof-a", "Cu-O", "DFT", 225)))
		require.NoError(t, store.Put(ctx, Record(t, "mof-a", "Cu-O", "ML", 12)))

		got, err := store.Get(ctx, "mof-a")
		require.NoError(t, err)
		assert.Equal(t, "ML", *got.Method)
		assert.Equal(t, 12, *got.SpaceGroupNumber)

		all, err := store.List(ctx, domain.ListFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("list filters and pages", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()
		ctx := context.Background()
		for _, rec := range []domain.MaterialRecord{
			Record(t, "c", "Cu-O", "DFT", 225),
			Record(t, "a", "Cu-O", "ML", 225),
			Record(t, "b", "Cu-O", "DFT", 14),
			Record(t, "d", "Cu-O", "", 1),
		} {
			require.NoError(t, store.Put(ctx, rec))
		}

		all, err := store.List(ctx, domain.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c", "d"}, ids(all))

		dft, err := store.List(ctx, domain.ListFilter{Method: "DFT"})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, ids(dft))

		sg, err := store.List(ctx, domain.ListFilter{SpaceGroupNumber: 225, ChemicalSystem: "Cu-O"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, ids(sg))

		page, err := store.List(ctx, domain.ListFilter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, ids(page))

		tail, err := store.List(ctx, domain.ListFilter{Offset: 3})
		require.NoError(t, err)
		assert.Equal(t, []string{"d"}, ids(tail))

		none, err := store.List(ctx, domain.ListFilter{FormulaReduced: "Fe2O3"})
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("delete reports existence", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()
		ctx := context.Background()
		require.NoError(t, store.Put(ctx, Record(t, "mof-a", "Cu-O", "", 1)))

		existed, err := store.Delete(ctx, "mof-a")
		require.NoError(t, err)
		assert.True(t, existed)
		existed, err = store.Delete(ctx, "mof-a")
		require.NoError(t, err)
		assert.False(t, existed)
		_, err = store.Get(ctx, "mof-a")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func ids(recs []domain.MaterialRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID())
	}
	return out
}

func assertSameJSON(t *testing.T, want, got domain.MaterialRecord) {
	t.Helper()
	w, err := json.Marshal(want)
	require.NoError(t, err)
	g, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(w), string(g))
}
