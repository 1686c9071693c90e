package pipeline

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/aluiziolira/go-scrape-wb/models"
)

func sampleProduct() *models.Product {
	return &models.Product{
		ID:            "146972802",
		Name:          "Платье летнее",
		Brand:         "ACME",
		Category:      "Платья",
		URL:           "https://www.wildberries.ru/catalog/146972802/detail.aspx",
		Rating:        4.7,
		ReviewCount:   120,
		ListPrice:     1999,
		SalePrice:     1499.5,
		Colors:        []string{"чёрный", "белый"},
		Sizes:         []string{"42", "44"},
		StockQuantity: 15,
		Available:     true,
	}
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}

	if err := writer.Write([]*models.Product{sampleProduct(), sampleProduct()}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate after close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte(utf8BOM)) {
		t.Fatalf("csv must start with a UTF-8 byte order mark")
	}

	records, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, []byte(utf8BOM)))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records=%d, want 3", len(records))
	}
	if records[0][0] != "№" || records[0][1] != "id" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	row := records[2]
	if row[0] != "2" {
		t.Fatalf("row number = %q, want 2", row[0])
	}
	if row[11] != "1499.50" || row[12] != "чёрный, белый" || row[15] != "true" {
		t.Fatalf("unexpected row: %v", row)
	}
}

func TestCSVWriterValidateWithoutRows(t *testing.T) {
	writer, err := NewCSVWriter(filepath.Join(t.TempDir(), "empty.csv"))
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	if err := writer.Validate(); err == nil {
		t.Fatalf("expected a header-only file to fail validation")
	}
}

func TestCP1251CSVWriterEncodesCyrillic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.csv")

	writer, err := NewCP1251CSVWriter(path)
	if err != nil {
		t.Fatalf("create cp1251 writer: %v", err)
	}
	p := sampleProduct()
	p.Description = "эмодзи 🙂 заменяется"
	if err := writer.Write([]*models.Product{p}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if bytes.HasPrefix(raw, []byte(utf8BOM)) {
		t.Fatalf("cp1251 output must not carry a UTF-8 byte order mark")
	}
	if raw[0] != 0xB9 {
		t.Fatalf("first byte = %#x, want cp1251 numero sign", raw[0])
	}

	decoded, err := charmap.Windows1251.NewDecoder().Bytes(raw)
	if err != nil {
		t.Fatalf("decode cp1251: %v", err)
	}
	if !strings.Contains(string(decoded), "Платье летнее") {
		t.Fatalf("decoded output lost the product name: %q", decoded)
	}
	if strings.Contains(string(decoded), "🙂") {
		t.Fatalf("unsupported characters should be replaced")
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	if err := writer.Write([]*models.Product{sampleProduct()}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		var decoded models.Product
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		if decoded.ID != "146972802" || decoded.SalePrice != 1499.5 {
			t.Fatalf("unexpected record: %+v", decoded)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if count != 1 {
		t.Fatalf("json lines=%d, want 1", count)
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "products.csv")

	writer, err := NewWriter("dual", csvPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}

	if err := writer.Write([]*models.Product{sampleProduct()}); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(filepath.Join(dir, "products.jsonl")); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

func TestNewWriterRejectsUnknownFormat(t *testing.T) {
	if _, err := NewWriter("xlsx", filepath.Join(t.TempDir(), "x.xlsx")); err == nil {
		t.Fatalf("expected an error for an unsupported format")
	}
}

func TestFileName(t *testing.T) {
	now := time.Date(2025, 3, 1, 14, 5, 9, 0, time.UTC)

	csvName := FileName("csv-cp1251", now)
	if !strings.HasPrefix(csvName, "wildberries_products_20250301_140509_") || !strings.HasSuffix(csvName, ".csv") {
		t.Fatalf("unexpected csv name %q", csvName)
	}
	if name := FileName("json", now); !strings.HasSuffix(name, ".jsonl") {
		t.Fatalf("unexpected json name %q", name)
	}
	if FileName("csv", now) == FileName("csv", now) {
		t.Fatalf("names generated in the same second must differ")
	}
	if strings.ContainsAny(csvName, `/\`) {
		t.Fatalf("file names must not contain separators")
	}
}

func TestProductRowNeverNilArrays(t *testing.T) {
	row := productRow(&models.Product{ID: "1"}, time.Unix(0, 0))
	if len(row) != 17 {
		t.Fatalf("row has %d columns, want 17", len(row))
	}
	if row[0] != "1" {
		t.Fatalf("first column = %v", row[0])
	}
}
