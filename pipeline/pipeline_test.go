package pipeline

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-wb/config"
	"github.com/aluiziolira/go-scrape-wb/models"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]*models.Product
	closed      bool
	writeErr    error
	validateErr error
}

func (mw *mockWriter) Write(products []*models.Product) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	copyBatch := make([]*models.Product, len(products))
	copy(copyBatch, products)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) totalWritten() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	total := 0
	for _, batch := range mw.batches {
		total += len(batch)
	}
	return total
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

func (mw *mockWriter) ids() []string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	var ids []string
	for _, batch := range mw.batches {
		for _, p := range batch {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

type blockingWriter struct {
	blockCh chan struct{}
}

func (bw *blockingWriter) Write(products []*models.Product) error {
	<-bw.blockCh
	return nil
}

func (bw *blockingWriter) Close() error {
	return nil
}

func (bw *blockingWriter) Validate() error {
	return nil
}

func product(id int) *models.Product {
	sid := strconv.Itoa(id)
	return &models.Product{
		ID:        sid,
		Name:      "Платье " + sid,
		Brand:     "ACME",
		URL:       "https://www.wildberries.ru/catalog/" + sid + "/detail.aspx",
		ListPrice: 1999,
		SalePrice: 1499,
	}
}

func TestPipelineProcessValidationAndDedup(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	valid := product(1)
	invalid := &models.Product{Name: "no id"}
	duplicate := product(1)

	if err := p.Process(valid, invalid, duplicate); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 1 {
		t.Fatalf("written products = %d, want 1", got)
	}

	metrics := p.GetMetrics()
	validation, ok := metrics["validation_errors"].(map[string]int)
	if !ok {
		t.Fatalf("expected validation errors map")
	}
	if validation["invalid_record"] == 0 {
		t.Fatalf("expected invalid_record validation error")
	}
	if validation["duplicate_id"] == 0 {
		t.Fatalf("expected duplicate_id validation error")
	}
	if p.Processed() != 1 {
		t.Fatalf("processed = %d, want 1", p.Processed())
	}
}

func TestPipelineBatchFlushThreshold(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 64
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	for i := 0; i < 65; i++ {
		if err := p.Process(product(i)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 2 {
		t.Fatalf("batch writes = %d, want 2", len(sizes))
	}
	if sizes[0] != 64 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [64 1]", sizes)
	}
}

func TestPipelineSingleWorkerKeepsOrder(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 7
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	for i := 0; i < 50; i++ {
		if err := p.Process(product(i)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for i, id := range writer.ids() {
		if id != strconv.Itoa(i) {
			t.Fatalf("position %d holds %s", i, id)
		}
	}
}

func TestPipelineCloseDrainsPendingItems(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(2)

	for i := 0; i < 100; i++ {
		if err := p.Process(product(i + 200)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 100 {
		t.Fatalf("written products = %d, want 100", got)
	}
}

func TestPipelineDedupeIsBounded(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DedupeMaxSize = 2
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	// 1 is evicted by 2 and 3 before it shows up again.
	if err := p.Process(product(1), product(2), product(3), product(1), product(3)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := writer.totalWritten(); got != 4 {
		t.Fatalf("written products = %d, want 4", got)
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	p := NewPipeline(context.Background(), &mockWriter{}, config.DefaultConfig())
	p.Start(1)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Process(product(1)); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
}

func TestPipelineWriteErrorSurfaces(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 1
	boom := errors.New("disk full")
	p := NewPipeline(context.Background(), &mockWriter{writeErr: boom}, cfg)
	p.Start(1)

	_ = p.Process(product(1))
	if err := p.Close(); !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestPipelineCloseTimeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 1

	writer := &blockingWriter{blockCh: make(chan struct{})}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	if err := p.Process(product(1)); err != nil {
		t.Fatalf("process: %v", err)
	}

	previousTimeout := drainTimeout
	drainTimeout = 25 * time.Millisecond
	t.Cleanup(func() {
		drainTimeout = previousTimeout
		close(writer.blockCh)
	})

	if err := p.Close(); err == nil || !errors.Is(err, ErrPipelineCloseTimeout) {
		t.Fatalf("expected close timeout error, got %v", err)
	}
}

func TestExport(t *testing.T) {
	writer := &mockWriter{}
	products := []*models.Product{product(1), product(2), product(2), {}}

	n, err := Export(context.Background(), writer, config.DefaultConfig(), products)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if n != 2 || writer.totalWritten() != 2 {
		t.Fatalf("exported %d products, wrote %d, want 2", n, writer.totalWritten())
	}
	if !writer.closed {
		t.Fatalf("export must close the writer")
	}
}

func TestExportSurfacesValidation(t *testing.T) {
	invalid := errors.New("empty output")
	writer := &mockWriter{validateErr: invalid}

	if _, err := Export(context.Background(), writer, config.DefaultConfig(), []*models.Product{product(1)}); !errors.Is(err, invalid) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
