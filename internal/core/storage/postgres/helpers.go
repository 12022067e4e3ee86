package postgres

import (
	"encoding/json"
	"fmt"

	v1 "github.com/briefcast-io/briefcast/internal/api/v1"
)

// marshalEventJSON marshals an event's metadata and payload fields to JSON.
//
// Nil metadata produces nil (SQL NULL) rather than JSON "null" string.
func marshalEventJSON(event *v1.Event) (metadataJSON, payloadJSON []byte, err error) {
	if len(event.Metadata) > 0 {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	payloadJSON, err = json.Marshal(event.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return metadataJSON, payloadJSON, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEventRow scans a database row into an Event struct.
// Compatible with both sql.Row (single) and sql.Rows (multiple).
func scanEventRow(row scanner) (*v1.Event, error) {
	var evt v1.Event
	var metadataJSON, payloadJSON []byte

	err := row.Scan(
		&evt.EventID,
		&evt.RecipientID,
		&evt.SourceType,
		&evt.OccurredAt,
		&evt.IngestedAt,
		&metadataJSON,
		&payloadJSON,
		&evt.ContentHash,
		&evt.WindowKey,
		&evt.IngestSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan event row: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &evt.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	if err := json.Unmarshal(payloadJSON, &evt.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return &evt, nil
}

// marshalStrings marshals a string slice for a JSONB column, mapping nil to
// an empty array so scans never see SQL NULL.
func marshalStrings(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	out, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal string list: %w", err)
	}
	return out, nil
}
