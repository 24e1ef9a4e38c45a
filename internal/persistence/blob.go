package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"idlegame/engine/internal/bignum"
	"idlegame/engine/internal/domain"
)

// blobRecord is the persisted shape of a snapshot. Big integers travel as
// decimal strings and timestamps as milliseconds since the Unix epoch.
type blobRecord struct {
	Counter     bignum.Int `json:"counter"`
	Production  bignum.Int `json:"production"`
	LastSave    int64      `json:"lastSave"`
	LastSavedAt *int64     `json:"lastSavedAt,omitempty"`
}

// incomingRecord accepts fractional millisecond timestamps and the snake_case
// keys written by earlier clients.
type incomingRecord struct {
	Counter         *bignum.Int `json:"counter"`
	Production      *bignum.Int `json:"production"`
	LastSave        *float64    `json:"lastSave"`
	LastSavedAt     *float64    `json:"lastSavedAt"`
	LegacyLastSave  *float64    `json:"last_save"`
	LegacyLastSaved *float64    `json:"last_saved_at"`
}

// EncodeState serializes st into the durable blob format.
func EncodeState(st domain.State) ([]byte, error) {
	record := blobRecord{
		Counter:    st.Counter,
		Production: st.Production,
		LastSave:   st.LastSave.UnixMilli(),
	}
	if st.HasSaved() {
		ms := st.LastSavedAt.UnixMilli()
		record.LastSavedAt = &ms
	}
	return json.Marshal(record)
}

// DecodeState parses a durable blob. Malformed decimals surface as a wrapped
// *bignum.ParseError.
func DecodeState(data []byte) (domain.State, error) {
	var record incomingRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return domain.State{}, err
	}
	if record.Counter == nil {
		return domain.State{}, errors.New("missing counter")
	}
	if record.Production == nil {
		return domain.State{}, errors.New("missing production")
	}
	if record.Production.IsZero() {
		return domain.State{}, errors.New("production must be at least 1")
	}

	lastSave := record.LastSave
	if lastSave == nil {
		lastSave = record.LegacyLastSave
	}
	if lastSave == nil {
		return domain.State{}, errors.New("missing lastSave")
	}
	saveAt, err := fromMillis(*lastSave)
	if err != nil {
		return domain.State{}, fmt.Errorf("lastSave: %w", err)
	}

	st := domain.State{
		Counter:    *record.Counter,
		Production: *record.Production,
		LastSave:   saveAt,
	}
	savedAt := record.LastSavedAt
	if savedAt == nil {
		savedAt = record.LegacyLastSaved
	}
	if savedAt != nil {
		at, err := fromMillis(*savedAt)
		if err != nil {
			return domain.State{}, fmt.Errorf("lastSavedAt: %w", err)
		}
		st.LastSavedAt = at
	}
	return st, nil
}

func fromMillis(ms float64) (time.Time, error) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms < 0 || ms > math.MaxInt64/2 {
		return time.Time{}, fmt.Errorf("timestamp %v out of range", ms)
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}
