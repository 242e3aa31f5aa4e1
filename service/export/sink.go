package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brojonat/mintsales/service/classify"
)

// Sink receives the ordered records of one classification pass.
type Sink interface {
	Name() string
	Export(ctx context.Context, stream string, records []*classify.Record) error
}

// NewFileSink picks a file format from the extension of path:
// .csv for CSV, .jsonl or .json for JSON lines.
func NewFileSink(path string) (Sink, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return NewCSVSink(path), nil
	case ".jsonl", ".json":
		return NewJSONLinesSink(path), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (use .csv or .jsonl)", path)
	}
}

// replaceFile writes through a temp file next to path so a reader never sees
// a half-written export.
func replaceFile(path string, write func(f *os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export folder: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp export file: %w", err)
	}
	tmpName := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close export file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move export into place: %w", err)
	}
	return nil
}
