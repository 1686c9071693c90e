package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-scrape-wb/models"
)

// MultiWriter fans every batch out to several writers in order.
type MultiWriter struct {
	writers []namedWriter
	mu      sync.Mutex
}

type namedWriter struct {
	name string
	OutputWriter
}

// NewDualWriter creates a writer producing the same products as CSV and JSONL.
func NewDualWriter(csvFilename, jsonFilename string) (*MultiWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}

	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("failed to create JSON writer: %w", err)
	}

	return NewMultiWriter().With("CSV", csvWriter).With("JSON", jsonWriter), nil
}

// NewMultiWriter returns an empty fan-out writer.
func NewMultiWriter() *MultiWriter {
	return &MultiWriter{}
}

// With appends writer under name and returns the receiver.
func (mw *MultiWriter) With(name string, writer OutputWriter) *MultiWriter {
	mw.mu.Lock()
	mw.writers = append(mw.writers, namedWriter{name: name, OutputWriter: writer})
	mw.mu.Unlock()
	return mw
}

// Write writes products to every writer, stopping at the first failure.
func (mw *MultiWriter) Write(products []*models.Product) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for _, w := range mw.writers {
		if err := w.Write(products); err != nil {
			return fmt.Errorf("%s write failed: %w", w.name, err)
		}
	}
	return nil
}

// Close closes every writer and reports all failures.
func (mw *MultiWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for _, w := range mw.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s close failed: %w", w.name, err))
		}
	}
	return errors.Join(errs...)
}

// Validate validates every output.
func (mw *MultiWriter) Validate() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for _, w := range mw.writers {
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s validation failed: %w", w.name, err))
		}
	}
	return errors.Join(errs...)
}

// Extension returns the file extension used for format.
func Extension(format string) string {
	if format == "json" {
		return ".jsonl"
	}
	return ".csv"
}

// FileName builds a unique export file name for format, stamped with now.
func FileName(format string, now time.Time) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("wildberries_products_%s_%s%s", now.Format("20060102_150405"), suffix, Extension(format))
}

// NewWriter opens a file writer for format at path. For "dual" the JSONL
// companion sits next to path with the .jsonl extension.
func NewWriter(format, path string) (OutputWriter, error) {
	switch format {
	case "csv":
		return NewCSVWriter(path)
	case "csv-cp1251":
		return NewCP1251CSVWriter(path)
	case "json":
		return NewJSONWriter(path)
	case "dual":
		return NewDualWriter(path, CompanionPath(path))
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// CompanionPath returns the JSONL path written alongside a dual export.
func CompanionPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".jsonl"
}
