package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/brojonat/mintsales/service/classify"
)

// JSONLinesSink writes one JSON object per record, keys in field order.
type JSONLinesSink struct {
	path string
}

func NewJSONLinesSink(path string) *JSONLinesSink {
	return &JSONLinesSink{path: path}
}

func (s *JSONLinesSink) Name() string { return "jsonl" }

func (s *JSONLinesSink) Export(ctx context.Context, stream string, records []*classify.Record) error {
	return replaceFile(s.path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("failed to encode record %s: %w", rec.Signature, err)
			}
		}
		return nil
	})
}
