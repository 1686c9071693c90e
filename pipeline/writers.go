package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/aluiziolira/go-scrape-wb/models"
)

// utf8BOM lets spreadsheet tools detect UTF-8 without an import dialog.
const utf8BOM = "\ufeff"

var csvHeader = []string{
	"№", "id", "name", "brand", "category", "supplier_id", "supplier", "url",
	"rating", "review_count", "list_price", "sale_price", "colors", "sizes",
	"stock_quantity", "available", "description",
}

// CSVWriter writes records to CSV. Rows are numbered in the "№" column in
// the order they are written.
type CSVWriter struct {
	path   string
	file   *os.File
	sink   io.WriteCloser // non-nil when output is transcoded
	writer *csv.Writer
	rows   int
	mu     sync.Mutex
}

// NewCSVWriter initialises a UTF-8 CSV writer with a byte order mark and
// writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	f, err := createFile(filename, "csv")
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(f, utf8BOM); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv bom: %w", err)
	}
	return newCSVWriter(filename, f, f, nil)
}

// NewCP1251CSVWriter initialises a CSV writer that encodes output as
// Windows-1251 for legacy spreadsheet tools. Characters outside the code
// page are replaced instead of failing the export.
func NewCP1251CSVWriter(filename string) (*CSVWriter, error) {
	f, err := createFile(filename, "csv")
	if err != nil {
		return nil, err
	}
	encoder := encoding.ReplaceUnsupported(charmap.Windows1251.NewEncoder())
	sink := transform.NewWriter(f, encoder)
	return newCSVWriter(filename, f, sink, sink)
}

func newCSVWriter(path string, f *os.File, out io.Writer, sink io.WriteCloser) (*CSVWriter, error) {
	writer := csv.NewWriter(out)
	if err := writer.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		path:   path,
		file:   f,
		sink:   sink,
		writer: writer,
	}, nil
}

// Write appends products to the CSV output.
func (cw *CSVWriter) Write(products []*models.Product) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, product := range products {
		cw.rows++
		if err := cw.writer.Write(csvRecord(cw.rows, product)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		cw.file.Close()
		return fmt.Errorf("flush csv writer: %w", err)
	}
	if cw.sink != nil {
		if err := cw.sink.Close(); err != nil {
			cw.file.Close()
			return fmt.Errorf("flush csv encoder: %w", err)
		}
	}
	return cw.file.Close()
}

// Validate ensures the file has at least one row besides the header.
func (cw *CSVWriter) Validate() error {
	cw.mu.Lock()
	rows := cw.rows
	cw.mu.Unlock()

	if err := validateFile(cw.path, "csv"); err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("csv file has no records")
	}
	return nil
}

// Path returns the file being written.
func (cw *CSVWriter) Path() string { return cw.path }

func csvRecord(row int, p *models.Product) []string {
	return []string{
		strconv.Itoa(row),
		p.ID,
		p.Name,
		p.Brand,
		p.Category,
		p.SupplierID,
		p.Supplier,
		p.URL,
		strconv.FormatFloat(p.Rating, 'f', -1, 64),
		strconv.Itoa(p.ReviewCount),
		strconv.FormatFloat(p.ListPrice, 'f', 2, 64),
		strconv.FormatFloat(p.SalePrice, 'f', 2, 64),
		strings.Join(p.Colors, ", "),
		strings.Join(p.Sizes, ", "),
		strconv.Itoa(p.StockQuantity),
		strconv.FormatBool(p.Available),
		p.Description,
	}
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	path    string
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	f, err := createFile(filename, "json")
	if err != nil {
		return nil, err
	}

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	return &JSONWriter{
		path:    filename,
		file:    f,
		writer:  buffer,
		encoder: encoder,
	}, nil
}

// Write appends products in JSONL format.
func (jw *JSONWriter) Write(products []*models.Product) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, product := range products {
		if err := jw.encoder.Encode(product); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		jw.file.Close()
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	return validateFile(jw.path, "json")
}

// Path returns the file being written.
func (jw *JSONWriter) Path() string { return jw.path }

func createFile(filename, kind string) (*os.File, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s file: %w", kind, err)
	}
	return f, nil
}

// validateFile stats by path so it also works after Close.
func validateFile(path, kind string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s file: %w", kind, err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("%s file is empty", kind)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
