package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"slices"

	"github.com/brojonat/mintsales/service/classify"
)

// CSVSink writes records as a spreadsheet-friendly CSV file. The header row
// is the field names of the first record; every record must carry the same
// columns in the same order.
type CSVSink struct {
	path string
}

func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

func (s *CSVSink) Name() string { return "csv" }

func (s *CSVSink) Export(ctx context.Context, stream string, records []*classify.Record) error {
	return replaceFile(s.path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if len(records) > 0 {
			header := records[0].Names()
			if err := w.Write(header); err != nil {
				return fmt.Errorf("failed to write csv header: %w", err)
			}
			for _, rec := range records {
				if names := rec.Names(); !slices.Equal(names, header) {
					return fmt.Errorf("record %s has columns %q, header has %q", rec.Signature, names, header)
				}
				if err := w.Write(rec.Strings()); err != nil {
					return fmt.Errorf("failed to write csv row: %w", err)
				}
			}
		}
		w.Flush()
		return w.Error()
	})
}
