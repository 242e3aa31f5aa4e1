package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/brojonat/mintsales/service/classify"
)

// RecordEvent is a classified record published to NATS.
// This is published to the subject "records.{stream}" in JetStream.
type RecordEvent struct {
	Stream    string    `json:"stream"`
	Kind      string    `json:"kind"`
	Signature string    `json:"signature"`
	BlockTime time.Time `json:"block_time"`

	// Fields is the record as a JSON object, keys in field order.
	Fields json.RawMessage `json:"fields"`

	PublishedAt time.Time `json:"published_at"`
}

// FromRecord converts a classified record to a RecordEvent for publishing.
func FromRecord(stream string, rec *classify.Record) (*RecordEvent, error) {
	fields, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record %s: %w", rec.Signature, err)
	}
	return &RecordEvent{
		Stream:      stream,
		Kind:        string(rec.Kind),
		Signature:   rec.Signature,
		BlockTime:   rec.Timestamp,
		Fields:      fields,
		PublishedAt: time.Now().UTC(),
	}, nil
}

// Subject returns the subject records of stream are published to.
func Subject(stream string) string {
	return fmt.Sprintf("records.%s", stream)
}
