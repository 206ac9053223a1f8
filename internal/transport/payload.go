package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mmcdole/mediasync/internal/domain"
)

var errEmptyPayload = errors.New("empty record payload")

// DecodeRecordPayload turns a mutation response into the tagged variant:
// a JSON array becomes Many, a JSON object becomes Single.
func DecodeRecordPayload(body []byte) (domain.RecordPayload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return domain.RecordPayload{}, errEmptyPayload
	}

	switch trimmed[0] {
	case '[':
		var records []domain.MediaRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return domain.RecordPayload{}, fmt.Errorf("failed to parse records: %w", err)
		}
		return domain.Many(records), nil
	case '{':
		var record domain.MediaRecord
		if err := json.Unmarshal(trimmed, &record); err != nil {
			return domain.RecordPayload{}, fmt.Errorf("failed to parse record: %w", err)
		}
		return domain.Single(record), nil
	default:
		return domain.RecordPayload{}, fmt.Errorf("unexpected record payload starting with %q", trimmed[0])
	}
}

// DecodeCollection parses a full list response
func DecodeCollection(body []byte) (domain.MediaCollection, error) {
	var records []domain.MediaRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to parse collection: %w", err)
	}
	if records == nil {
		records = []domain.MediaRecord{}
	}
	return domain.MediaCollection(records), nil
}
