package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Overrides maps MaterialRecord field names to caller-supplied values. They
// are applied after the computed fields, so the caller always wins.
type Overrides map[string]any

// Override mutates an Overrides set.
type Override func(Overrides)

// WithField overrides any record field by name.
func WithField(name string, value any) Override {
	return func(o Overrides) { o[name] = value }
}

// WithFields copies every entry of fields.
func WithFields(fields Overrides) Override {
	return func(o Overrides) {
		for k, v := range fields {
			o[k] = v
		}
	}
}

// WithIdentifier sets the record identifier.
func WithIdentifier(id string) Override { return WithField("Identifier", id) }

// WithMethod sets the free-text method label.
func WithMethod(method string) Override { return WithField("Method", method) }

// WithEnergy sets the total energy.
func WithEnergy(energy float64) Override { return WithField("Energy", energy) }

// WithFormationEnergyPerAtom sets the formation energy per atom.
func WithFormationEnergyPerAtom(e float64) Override {
	return WithField("FormationEnergyPerAtom", e)
}

// WithBandGap sets the band gap.
func WithBandGap(gap float64) Override { return WithField("BandGap", gap) }

// Collect folds override options into one set.
func Collect(opts ...Override) Overrides {
	out := make(Overrides, len(opts))
	for _, opt := range opts {
		if opt != nil {
			opt(out)
		}
	}
	return out
}

var materialFields = func() map[string]struct{} {
	out := make(map[string]struct{})
	t := reflect.TypeOf(MaterialRecord{})
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		out[name] = struct{}{}
	}
	return out
}()

// MaterialFieldNames lists the record field names accepted as overrides.
func MaterialFieldNames() []string {
	names := make([]string, 0, len(materialFields))
	for name := range materialFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AssembleMaterial merges overrides over the computed record, decodes the
// result with schema checking and validates it. Unknown fields, values of the
// wrong type and constraint violations are returned as validation errors.
func AssembleMaterial(computed MaterialRecord, overrides Overrides) (MaterialRecord, error) {
	base, err := json.Marshal(computed)
	if err != nil {
		return MaterialRecord{}, fmt.Errorf("encode computed record: %w", err)
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &fields); err != nil {
		return MaterialRecord{}, fmt.Errorf("decode computed record: %w", err)
	}

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	var errs []error
	for _, name := range names {
		if _, ok := materialFields[name]; !ok {
			errs = append(errs, invalid(name, "unknown field"))
			continue
		}
		raw, err := json.Marshal(overrides[name])
		if err != nil {
			errs = append(errs, invalid(name, "cannot encode override: %v", err))
			continue
		}
		fields[name] = raw
	}
	if len(errs) > 0 {
		return MaterialRecord{}, errors.Join(errs...)
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return MaterialRecord{}, fmt.Errorf("encode merged record: %w", err)
	}
	var rec MaterialRecord
	dec := json.NewDecoder(bytes.NewReader(merged))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		return MaterialRecord{}, decodeError(err)
	}
	if err := rec.Validate(); err != nil {
		return MaterialRecord{}, err
	}
	return rec, nil
}

// ParseMaterial decodes a stored record and validates it.
func ParseMaterial(data []byte) (MaterialRecord, error) {
	var rec MaterialRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		return MaterialRecord{}, decodeError(err)
	}
	if err := rec.Validate(); err != nil {
		return MaterialRecord{}, err
	}
	return rec, nil
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return invalid(typeErr.Field, "expected %s, got JSON %s", typeErr.Type, typeErr.Value)
	}
	return invalid("record", "%v", err)
}
