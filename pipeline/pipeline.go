// Package pipeline validates, de-duplicates and batches harvested products
// into one or more output sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-wb/config"
	"github.com/aluiziolira/go-scrape-wb/models"
	"github.com/aluiziolira/go-scrape-wb/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when workers do not drain in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

// drainTimeout bounds how long Close waits for workers to flush.
var drainTimeout = 30 * time.Second

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(products []*models.Product) error
	Close() error
	Validate() error
}

// Pipeline coordinates validation, de-duplication, and output writing.
type Pipeline struct {
	ctx       context.Context
	writer    OutputWriter
	productCh chan *models.Product
	batchSize int
	logger    *slog.Logger

	wg sync.WaitGroup

	// seen is bounded so very long exports keep a flat memory profile. An ID
	// evicted from it can pass a second time; the harvester de-dups exactly.
	seen *lru.Cache[string, struct{}]

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline sized from cfg. ctx cancels pending
// submissions; it does not interrupt a batch already handed to the writer.
func NewPipeline(ctx context.Context, writer OutputWriter, cfg *config.Config) *Pipeline {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	buffer := cfg.PipelineBufferSize
	if buffer <= 0 {
		buffer = 512
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 64
	}
	dedupe := cfg.DedupeMaxSize
	if dedupe <= 0 {
		dedupe = 200000
	}
	// lru.New only fails for a non-positive size.
	seen, _ := lru.New[string, struct{}](dedupe)

	return &Pipeline{
		ctx:       ctx,
		writer:    writer,
		productCh: make(chan *models.Product, buffer),
		batchSize: batch,
		logger:    slog.Default().With(slog.String("component", "pipeline")),
		seen:      seen,
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
	}
}

// Start launches worker goroutines. More than one worker gives up output
// ordering, so exports that number rows use a single worker.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues products for downstream processing.
func (p *Pipeline) Process(products ...*models.Product) error {
	if len(products) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, product := range products {
		if product == nil {
			continue
		}
		if err := p.enqueue(product); err != nil {
			return err
		}
	}
	return nil
}

// Close stops accepting products and waits up to drainTimeout for the
// workers to flush what is already queued.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.productCh)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return p.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrPipelineCloseTimeout, drainTimeout)
	}
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// Processed returns how many products reached the writer.
func (p *Pipeline) Processed() int64 {
	return p.metrics.processedCount()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				processed := metrics["processed_products"].(int64)
				validation := metrics["validation_errors"].(map[string]int)
				p.logger.Info("pipeline progress",
					slog.Int64("processed", processed),
					slog.Int("validation_error_kinds", len(validation)))
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.Product, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for product := range p.productCh {
		prepared := p.prepare(product)
		if prepared == nil {
			continue
		}
		batch = append(batch, prepared)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (p *Pipeline) prepare(product *models.Product) *models.Product {
	if err := parser.ValidateProduct(product); err != nil {
		p.metrics.addValidation("invalid_record")
		return nil
	}

	if found, _ := p.seen.ContainsOrAdd(product.ID, struct{}{}); found {
		p.metrics.addValidation("duplicate_id")
		return nil
	}

	p.metrics.incrementProcessed()
	return product
}

func (p *Pipeline) enqueue(product *models.Product) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.productCh <- product:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.logger.Error("pipeline failed", slog.Any("error", err))
	p.signalShutdown()
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

// Export runs products through a single-worker pipeline into writer, closes
// it and validates the output. The writer is closed in every case.
func Export(ctx context.Context, writer OutputWriter, cfg *config.Config, products []*models.Product) (int64, error) {
	p := NewPipeline(ctx, writer, cfg)
	p.Start(1)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	processErr := p.Process(products...)
	closeErr := p.Close()
	writerErr := writer.Close()

	if err := errors.Join(processErr, closeErr, writerErr); err != nil {
		return p.Processed(), err
	}
	if p.Processed() == 0 {
		return 0, nil
	}
	if err := writer.Validate(); err != nil {
		return p.Processed(), fmt.Errorf("validate output: %w", err)
	}
	return p.Processed(), nil
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) processedCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processed
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_products": m.processed,
		"validation_errors":  copyValidation,
	}
}
