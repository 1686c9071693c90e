package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/aluiziolira/go-scrape-wb/models"
)

const createProductsTable = `
CREATE TABLE IF NOT EXISTS wb_products (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	brand          TEXT,
	category       TEXT,
	supplier_id    TEXT,
	supplier       TEXT,
	url            TEXT,
	rating         NUMERIC(3,2) DEFAULT 0,
	review_count   INTEGER DEFAULT 0,
	list_price     NUMERIC(12,2) DEFAULT 0,
	sale_price     NUMERIC(12,2) DEFAULT 0,
	colors         TEXT[],
	sizes          TEXT[],
	stock_quantity INTEGER DEFAULT 0,
	available      BOOLEAN DEFAULT FALSE,
	description    TEXT,
	harvested_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_wb_products_supplier ON wb_products (supplier_id);
CREATE INDEX IF NOT EXISTS idx_wb_products_brand    ON wb_products (brand);
`

const upsertProduct = `
INSERT INTO wb_products (id, name, brand, category, supplier_id, supplier, url, rating,
	review_count, list_price, sale_price, colors, sizes, stock_quantity, available, description, harvested_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	brand = EXCLUDED.brand,
	category = EXCLUDED.category,
	supplier_id = EXCLUDED.supplier_id,
	supplier = EXCLUDED.supplier,
	url = EXCLUDED.url,
	rating = EXCLUDED.rating,
	review_count = EXCLUDED.review_count,
	list_price = EXCLUDED.list_price,
	sale_price = EXCLUDED.sale_price,
	colors = EXCLUDED.colors,
	sizes = EXCLUDED.sizes,
	stock_quantity = EXCLUDED.stock_quantity,
	available = EXCLUDED.available,
	description = EXCLUDED.description,
	harvested_at = EXCLUDED.harvested_at
`

// PostgresWriter upserts products into PostgreSQL, one transaction per batch.
type PostgresWriter struct {
	db      *sql.DB
	logger  *slog.Logger
	now     func() time.Time
	written int
}

// NewPostgresWriter connects to dsn and ensures the products table exists.
func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createProductsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create products table: %w", err)
	}

	return &PostgresWriter{
		db:     db,
		logger: slog.Default().With(slog.String("component", "postgres")),
		now:    time.Now,
	}, nil
}

// Write upserts products in a single transaction. A row that fails is
// logged and skipped so one odd record does not lose the batch.
func (w *PostgresWriter) Write(products []*models.Product) (err error) {
	if len(products) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.Prepare(upsertProduct)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	harvestedAt := w.now().UTC()
	inserted := 0
	for _, p := range products {
		if _, execErr := stmt.Exec(productRow(p, harvestedAt)...); execErr != nil {
			w.logger.Warn("skipping product", slog.String("id", p.ID), slog.Any("error", execErr))
			continue
		}
		inserted++
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	w.written += inserted
	w.logger.Info("products upserted", slog.Int("inserted", inserted), slog.Int("batch", len(products)))
	return nil
}

// Close closes the database handle.
func (w *PostgresWriter) Close() error {
	if w.db == nil {
		return nil
	}
	return w.db.Close()
}

// Validate reports an error when no row has been written.
func (w *PostgresWriter) Validate() error {
	if w.written == 0 {
		return fmt.Errorf("no products written to postgres")
	}
	return nil
}

func productRow(p *models.Product, harvestedAt time.Time) []any {
	return []any{
		p.ID,
		p.Name,
		p.Brand,
		p.Category,
		p.SupplierID,
		p.Supplier,
		p.URL,
		p.Rating,
		p.ReviewCount,
		p.ListPrice,
		p.SalePrice,
		pq.Array(nonNil(p.Colors)),
		pq.Array(nonNil(p.Sizes)),
		p.StockQuantity,
		p.Available,
		p.Description,
		harvestedAt,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
