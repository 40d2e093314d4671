package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Keys of the identifier tool output.
const (
	keySmiles        = "smiles"
	keyTopology      = "topology"
	keySmilesLinkers = "smiles_linkers"
	keySmilesNodes   = "smiles_nodes"
	keyMofKey        = "mofkey"
	keyMofID         = "mofid"
)

// SorbateOutput is one entry of the pore-geometry tool output, kept in the
// order the tool emitted it. Values is nil for the reserved is_mof entry.
type SorbateOutput struct {
	Sorbate string
	Values  map[string]any
}

// poreGeometryColumns maps tool output columns to record fields.
var poreGeometryColumns = []struct {
	column string
	set    func(*PoreGeometryRecord, *float64)
}{
	{"Density", func(r *PoreGeometryRecord, v *float64) { r.Density = v }},
	{"Unitcell_volume", func(r *PoreGeometryRecord, v *float64) { r.UnitCellVolume = v }},
	{"PLD", func(r *PoreGeometryRecord, v *float64) { r.Pld = v }},
	{"LCD", func(r *PoreGeometryRecord, v *float64) { r.Lcd = v }},
	{"POAV_cm^3/g", func(r *PoreGeometryRecord, v *float64) { r.Poav = v }},
	{"POAV_A^3", func(r *PoreGeometryRecord, v *float64) { r.PoavVolumetric = v }},
	{"POAV_Volume_fraction", func(r *PoreGeometryRecord, v *float64) { r.PoavVolumeFraction = v }},
	// mapped by unit, same as POAV
	{"PONAV_cm^3/g", func(r *PoreGeometryRecord, v *float64) { r.Ponav = v }},
	{"PONAV_A^3", func(r *PoreGeometryRecord, v *float64) { r.PonavVolumetric = v }},
	{"PONAV_Volume_fraction", func(r *PoreGeometryRecord, v *float64) { r.PonavVolumeFraction = v }},
}

// IdentifierRecordFromOutput remaps the identifier tool output. Missing keys
// and nulls stay nil; values of the wrong shape fail validation.
func IdentifierRecordFromOutput(out map[string]any) (IdentifierRecord, error) {
	var rec IdentifierRecord
	if out == nil {
		return rec, nil
	}
	var err error
	if rec.Smiles, err = optionalString(out, keySmiles, "Smiles"); err != nil {
		return IdentifierRecord{}, err
	}
	if rec.Topology, err = optionalString(out, keyTopology, "Topology"); err != nil {
		return IdentifierRecord{}, err
	}
	if rec.SmilesLinkers, err = optionalStrings(out, keySmilesLinkers, "SmilesLinkers"); err != nil {
		return IdentifierRecord{}, err
	}
	if rec.SmilesNodes, err = optionalStrings(out, keySmilesNodes, "SmilesNodes"); err != nil {
		return IdentifierRecord{}, err
	}
	if rec.MofKey, err = optionalString(out, keyMofKey, "MofKey"); err != nil {
		return IdentifierRecord{}, err
	}
	if rec.MofId, err = optionalString(out, keyMofID, "MofId"); err != nil {
		return IdentifierRecord{}, err
	}
	return rec, nil
}

// PoreGeometryRecordsFromOutput builds one record per sorbate in tool order,
// skipping the reserved is_mof entry. The result is never nil.
func PoreGeometryRecordsFromOutput(out []SorbateOutput) ([]PoreGeometryRecord, error) {
	records := make([]PoreGeometryRecord, 0, len(out))
	seen := make(map[string]struct{}, len(out))
	for _, entry := range out {
		if entry.Sorbate == ReservedSorbateKey {
			continue
		}
		field := fmt.Sprintf("ZeoPlusPlus[%s]", entry.Sorbate)
		if entry.Sorbate == "" {
			return nil, invalid(field, "sorbate must not be empty")
		}
		if _, dup := seen[entry.Sorbate]; dup {
			return nil, invalid(field, "duplicate sorbate")
		}
		seen[entry.Sorbate] = struct{}{}
		rec := PoreGeometryRecord{Sorbate: entry.Sorbate}
		for _, col := range poreGeometryColumns {
			v, err := optionalFloat(entry.Values[col.column], field+"."+col.column)
			if err != nil {
				return nil, err
			}
			col.set(&rec, v)
		}
		records = append(records, rec)
	}
	return records, nil
}

func optionalString(out map[string]any, key, field string) (*string, error) {
	raw, ok := out[key]
	if !ok || raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, invalid(field, "expected string, got %T", raw)
	}
	return &s, nil
}

func optionalStrings(out map[string]any, key, field string) ([]string, error) {
	raw, ok := out[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return append([]string{}, v...), nil
	case []any:
		items := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, invalid(field, "element %d: expected string, got %T", i, item)
			}
			items = append(items, s)
		}
		return items, nil
	default:
		return nil, invalid(field, "expected list of strings, got %T", raw)
	}
}

func optionalFloat(raw any, field string) (*float64, error) {
	var f float64
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil, invalid(field, "expected number, got %q", v.String())
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, invalid(field, "expected number, got %q", v)
		}
		f = parsed
	default:
		return nil, invalid(field, "expected number, got %T", raw)
	}
	return &f, nil
}
