package sqlstore

import (
	"encoding/json"
	"fmt"

	"mofgen/pkg/domain"
)

func encodeRecord(rec domain.MaterialRecord) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", rec.ID(), err)
	}
	return b, nil
}

func decodeRecord(payload []byte) (domain.MaterialRecord, error) {
	rec, err := domain.ParseMaterial(payload)
	if err != nil {
		return domain.MaterialRecord{}, fmt.Errorf("decode stored record: %w", err)
	}
	return rec, nil
}
