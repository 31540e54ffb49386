package crm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/voicecrm/internal/storage"
)

// idTag prefixes database ids in the public API.
const idTag = "db-"

// StatusReal marks entries read back from the store.
const StatusReal = "REAL"

var (
	ErrInvalidRecordID = errors.New("invalid record id")
	ErrMalformedRecord = errors.New("malformed stored record")
)

func TagID(id int64) string {
	return idTag + strconv.FormatInt(id, 10)
}

// ParseTaggedID accepts both "db-12" and "12".
func ParseTaggedID(s string) (int64, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(s, idTag, ""))
	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRecordID, s)
	}
	return id, nil
}

// HistoryEntry is one element of the history listing.
type HistoryEntry struct {
	ID           string          `json:"id"`
	Input        *string         `json:"input"`
	Output       json.RawMessage `json:"output"`
	Status       string          `json:"status"`
	CreatedAt    string          `json:"created_at"`
	CustomerName *string         `json:"customer_name"`
	Phone        *string         `json:"phone"`
	City         *string         `json:"city"`
	Locality     *string         `json:"locality"`
}

// ToHistoryEntry maps a stored record to its listing form. A raw_json that is
// not valid JSON is reported with ErrMalformedRecord.
func ToHistoryEntry(rec storage.Interaction) (HistoryEntry, error) {
	output := json.RawMessage(`{}`)
	if rec.RawJSON != nil && *rec.RawJSON != "" {
		if !json.Valid([]byte(*rec.RawJSON)) {
			return HistoryEntry{}, fmt.Errorf("%w: %s has invalid raw_json", ErrMalformedRecord, TagID(rec.ID))
		}
		output = json.RawMessage(*rec.RawJSON)
	}

	return HistoryEntry{
		ID:           TagID(rec.ID),
		Input:        rec.Transcript,
		Output:       output,
		Status:       StatusReal,
		CreatedAt:    rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		CustomerName: rec.CustomerName,
		Phone:        rec.Phone,
		City:         rec.City,
		Locality:     rec.Locality,
	}, nil
}

// ToHistory maps records in order. The result is never nil.
func ToHistory(recs []storage.Interaction) ([]HistoryEntry, error) {
	entries := make([]HistoryEntry, 0, len(recs))
	for _, rec := range recs {
		e, err := ToHistoryEntry(rec)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
