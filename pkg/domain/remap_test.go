package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifierRecordFromOutput(t *testing.T) {
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"smiles": "[Zn][Zn].[O-]C(=O)c1ccc(cc1)C(=O)[O-]",
		"topology": "pcu",
		"smiles_linkers": ["[O-]C(=O)c1ccc(cc1)C(=O)[O-]"],
		"smiles_nodes": ["[Zn][Zn]"],
		"mofkey": "Zn.KKEYFWRCBNTPAC.MOFkey-v1.pcu",
		"mofid": "[Zn][Zn] MOFid-v1.pcu.cat0",
		"extra": 12
	}`), &out))

	rec, err := IdentifierRecordFromOutput(out)
	require.NoError(t, err)
	assert.Equal(t, "pcu", *rec.Topology)
	assert.Equal(t, []string{"[Zn][Zn]"}, rec.SmilesNodes)
	assert.Equal(t, []string{"[O-]C(=O)c1ccc(cc1)C(=O)[O-]"}, rec.SmilesLinkers)
	assert.Equal(t, "Zn.KKEYFWRCBNTPAC.MOFkey-v1.pcu", *rec.MofKey)
	assert.Equal(t, "[Zn][Zn] MOFid-v1.pcu.cat0", *rec.MofId)
	assert.False(t, rec.IsEmpty())
}

func TestIdentifierRecordFromOutputMissingValues(t *testing.T) {
	rec, err := IdentifierRecordFromOutput(nil)
	require.NoError(t, err)
	assert.True(t, rec.IsEmpty())

	rec, err = IdentifierRecordFromOutput(map[string]any{"topology": nil, "smiles_nodes": []string{"[Cu][Cu]"}})
	require.NoError(t, err)
	assert.Nil(t, rec.Topology)
	assert.Nil(t, rec.Smiles)
	assert.Equal(t, []string{"[Cu][Cu]"}, rec.SmilesNodes)
}

func TestIdentifierRecordFromOutputRejectsWrongShapes(t *testing.T) {
	cases := map[string]map[string]any{
		"smiles number":  {"smiles": 4.2},
		"linkers string": {"smiles_linkers": "C"},
		"nodes mixed":    {"smiles_nodes": []any{"C", 3.0}},
		"mofid list":     {"mofid": []any{"x"}},
	}
	for name, out := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := IdentifierRecordFromOutput(out)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestPoreGeometryRecordsFromOutputKeepsToolOrder(t *testing.T) {
	out := []SorbateOutput{
		{Sorbate: "N2", Values: map[string]any{"PLD": 3.1, "LCD": 4.2, "POAV_cm^3/g": 0.5, "POAV_A^3": 400.0, "POAV_Volume_fraction": 0.4,
			"PONAV_cm^3/g": 0.01, "PONAV_A^3": 8.0, "PONAV_Volume_fraction": 0.02, "Density": 1.1, "Unitcell_volume": 1000.0}},
		{Sorbate: ReservedSorbateKey},
		{Sorbate: "CO2", Values: map[string]any{"PLD": "2.9", "LCD": json.Number("4.0")}},
		{Sorbate: "Ar", Values: map[string]any{}},
	}
	records, err := PoreGeometryRecordsFromOutput(out)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"N2", "CO2", "Ar"}, []string{records[0].Sorbate, records[1].Sorbate, records[2].Sorbate})

	n2 := records[0]
	assert.Equal(t, 3.1, *n2.Pld)
	assert.Equal(t, 4.2, *n2.Lcd)
	assert.Equal(t, 0.5, *n2.Poav)
	assert.Equal(t, 400.0, *n2.PoavVolumetric)
	assert.Equal(t, 0.4, *n2.PoavVolumeFraction)
	// PONAV columns are mapped by unit like POAV: cm^3/g to Ponav, A^3 to
	// PonavVolumetric. Older releases swapped the two; do not swap them back.
	assert.Equal(t, 0.01, *n2.Ponav)
	assert.Equal(t, 8.0, *n2.PonavVolumetric)
	assert.Equal(t, 0.02, *n2.PonavVolumeFraction)
	assert.Equal(t, 1.1, *n2.Density)
	assert.Equal(t, 1000.0, *n2.UnitCellVolume)

	assert.Equal(t, 2.9, *records[1].Pld)
	assert.Equal(t, 4.0, *records[1].Lcd)
	assert.Nil(t, records[2].Pld)
}

func TestPoreGeometryRecordsFromOutputOnlyReservedKey(t *testing.T) {
	records, err := PoreGeometryRecordsFromOutput([]SorbateOutput{{Sorbate: ReservedSorbateKey}})
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestPoreGeometryRecordsFromOutputErrors(t *testing.T) {
	cases := map[string][]SorbateOutput{
		"duplicate":  {{Sorbate: "N2"}, {Sorbate: "N2"}},
		"empty name": {{Sorbate: ""}},
		"bad number": {{Sorbate: "N2", Values: map[string]any{"PLD": "wide"}}},
		"bad type":   {{Sorbate: "N2", Values: map[string]any{"LCD": []any{1.0}}}},
	}
	for name, out := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := PoreGeometryRecordsFromOutput(out)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}
}
