// Package domain defines the material records assembled by mofgen, the
// remapping of external analysis tool output into those records, and the
// persistence contract for finished records.
package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"mofgen/pkg/structure"
)

// ReservedSorbateKey is emitted by the pore-geometry tool next to the sorbate
// entries and never becomes a record.
const ReservedSorbateKey = "is_mof"

// IdentifierRecord holds the chemical identifiers and topology produced by the
// MOF identifier tool. Every field is nil when the tool failed or omitted it.
type IdentifierRecord struct {
	Smiles        *string  `json:"Smiles"`
	Topology      *string  `json:"Topology"`
	SmilesLinkers []string `json:"SmilesLinkers"`
	SmilesNodes   []string `json:"SmilesNodes"`
	MofKey        *string  `json:"MofKey"`
	MofId         *string  `json:"MofId"` //nolint:revive // field name is part of the record schema
}

// IsEmpty reports whether no identifier field is set.
func (r IdentifierRecord) IsEmpty() bool {
	return r.Smiles == nil && r.Topology == nil && r.SmilesLinkers == nil &&
		r.SmilesNodes == nil && r.MofKey == nil && r.MofId == nil
}

// PoreGeometryRecord holds the pore descriptors for one sorbate species.
type PoreGeometryRecord struct {
	Sorbate string `json:"Sorbate"`
	// Pld is the pore limiting diameter in Angstrom.
	Pld *float64 `json:"Pld"`
	// Lcd is the largest cavity diameter in Angstrom.
	Lcd *float64 `json:"Lcd"`
	// Poav is the sorbate-occupiable accessible volume in cm^3/g.
	Poav *float64 `json:"Poav"`
	// PoavVolumetric is the accessible volume in A^3.
	PoavVolumetric     *float64 `json:"PoavVolumetric"`
	PoavVolumeFraction *float64 `json:"PoavVolumeFraction"`
	// Ponav is the sorbate-occupiable non-accessible volume in cm^3/g.
	Ponav *float64 `json:"Ponav"`
	// PonavVolumetric is the non-accessible volume in A^3.
	PonavVolumetric     *float64 `json:"PonavVolumetric"`
	PonavVolumeFraction *float64 `json:"PonavVolumeFraction"`
	Density             *float64 `json:"Density"`
	UnitCellVolume      *float64 `json:"UnitCellVolume"`
}

// MaterialRecord is the top-level snapshot for one structure. It is built once
// by AssembleMaterial and not mutated afterwards.
type MaterialRecord struct {
	Identifier             *string              `json:"Identifier"`
	Structure              *structure.Structure `json:"Structure"`
	Density                *float64             `json:"Density"`
	Volume                 *float64             `json:"Volume"`
	NumSites               *int                 `json:"NumSites"`
	Formula                *string              `json:"Formula"`
	FormulaReduced         *string              `json:"FormulaReduced"`
	ChemicalSystem         *string              `json:"ChemicalSystem"`
	NumElements            *int                 `json:"NumElements"`
	SpaceGroupNumber       *int                 `json:"SpaceGroupNumber"`
	SpaceGroupSymbol       *string              `json:"SpaceGroupSymbol"`
	Method                 *string              `json:"Method"`
	Energy                 *float64             `json:"Energy"`
	FormationEnergyPerAtom *float64             `json:"FormationEnergyPerAtom"`
	BandGap                *float64             `json:"BandGap"`
	MofId                  *IdentifierRecord    `json:"MofId"` //nolint:revive // field name is part of the record schema
	// ZeoPlusPlus is nil when the pore-geometry tool failed and empty when it
	// ran but reported no sorbates.
	ZeoPlusPlus []PoreGeometryRecord `json:"ZeoPlusPlus"`
}

// ID returns the identifier or "" when unset.
func (m MaterialRecord) ID() string {
	if m.Identifier == nil {
		return ""
	}
	return *m.Identifier
}

// ValidationError describes a field that failed record validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks every field constraint of the record.
func (m MaterialRecord) Validate() error {
	var errs []error
	if m.Identifier != nil && strings.TrimSpace(*m.Identifier) == "" {
		errs = append(errs, invalid("Identifier", "must not be blank"))
	}
	if m.Structure != nil {
		if err := m.Structure.Validate(); err != nil {
			errs = append(errs, invalid("Structure", "%v", err))
		}
	}
	errs = appendIf(errs, nonNegative("Density", m.Density))
	errs = appendIf(errs, nonNegative("Volume", m.Volume))
	errs = appendIf(errs, finite("Energy", m.Energy))
	errs = appendIf(errs, finite("FormationEnergyPerAtom", m.FormationEnergyPerAtom))
	errs = appendIf(errs, nonNegative("BandGap", m.BandGap))
	if m.NumSites != nil && *m.NumSites < 0 {
		errs = append(errs, invalid("NumSites", "must be non-negative, got %d", *m.NumSites))
	}
	if m.NumElements != nil && *m.NumElements < 0 {
		errs = append(errs, invalid("NumElements", "must be non-negative, got %d", *m.NumElements))
	}
	if m.SpaceGroupNumber != nil && (*m.SpaceGroupNumber < 1 || *m.SpaceGroupNumber > 230) {
		errs = append(errs, invalid("SpaceGroupNumber", "must be within 1..230, got %d", *m.SpaceGroupNumber))
	}
	if m.SpaceGroupSymbol != nil && strings.TrimSpace(*m.SpaceGroupSymbol) == "" {
		errs = append(errs, invalid("SpaceGroupSymbol", "must not be blank"))
	}
	if m.ChemicalSystem != nil {
		errs = appendIf(errs, validateChemicalSystem(*m.ChemicalSystem))
	}
	errs = append(errs, validatePoreGeometry(m.ZeoPlusPlus)...)
	return errors.Join(errs...)
}

func validateChemicalSystem(system string) error {
	if system == "" {
		return invalid("ChemicalSystem", "must not be empty")
	}
	for _, sym := range strings.Split(system, "-") {
		if _, ok := structure.LookupElement(sym); !ok {
			return invalid("ChemicalSystem", "unknown element %q in %q", sym, system)
		}
	}
	return nil
}

func validatePoreGeometry(records []PoreGeometryRecord) []error {
	var errs []error
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		field := fmt.Sprintf("ZeoPlusPlus[%d]", i)
		switch rec.Sorbate {
		case "":
			errs = append(errs, invalid(field, "sorbate must not be empty"))
		case ReservedSorbateKey:
			errs = append(errs, invalid(field, "sorbate %q is reserved", ReservedSorbateKey))
		}
		if _, dup := seen[rec.Sorbate]; dup {
			errs = append(errs, invalid(field, "duplicate sorbate %q", rec.Sorbate))
		}
		seen[rec.Sorbate] = struct{}{}
		for name, v := range map[string]*float64{"PoavVolumeFraction": rec.PoavVolumeFraction, "PonavVolumeFraction": rec.PonavVolumeFraction} {
			if v != nil && (*v < 0 || *v > 1 || math.IsNaN(*v)) {
				errs = append(errs, invalid(field+"."+name, "must be within [0, 1], got %g", *v))
			}
		}
	}
	return errs
}

func nonNegative(field string, v *float64) error {
	if v == nil {
		return nil
	}
	if err := finite(field, v); err != nil {
		return err
	}
	if *v < 0 {
		return invalid(field, "must be non-negative, got %g", *v)
	}
	return nil
}

func finite(field string, v *float64) error {
	if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
		return invalid(field, "must be finite")
	}
	return nil
}

func appendIf(errs []error, err error) []error {
	if err != nil {
		return append(errs, err)
	}
	return errs
}
