// Package server exposes harvesting, rank lookup and the analyses over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-wb/analysis"
	"github.com/aluiziolira/go-scrape-wb/config"
	"github.com/aluiziolira/go-scrape-wb/pipeline"
	"github.com/aluiziolira/go-scrape-wb/scraper"
	"github.com/aluiziolira/go-scrape-wb/seo"
	"github.com/aluiziolira/go-scrape-wb/store"
)

// SinkFactory opens an extra product sink for one export, such as Postgres.
type SinkFactory func(ctx context.Context) (pipeline.OutputWriter, error)

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	cfg          *config.Config
	fetcher      scraper.Fetcher
	resolver     *scraper.Resolver
	harvester    *scraper.Harvester
	analysis     *analysis.Service
	descriptions *scraper.DescriptionChain
	seo          *seo.Analyzer
	runs         *store.RunStore
	sink         SinkFactory
	metrics      *scraper.Metrics
	http         *httpMetrics
	slots        chan struct{}
	logger       *slog.Logger
	now          func() time.Time

	sleeper scraper.Sleeper
}

// Option configures a Server.
type Option func(*Server)

// WithRunStore records every harvest in store.
func WithRunStore(runs *store.RunStore) Option {
	return func(s *Server) { s.runs = runs }
}

// WithSink writes every export to an additional sink.
func WithSink(factory SinkFactory) Option {
	return func(s *Server) { s.sink = factory }
}

// WithSEOAnalyzer replaces the description analyzer.
func WithSEOAnalyzer(a *seo.Analyzer) Option {
	return func(s *Server) { s.seo = a }
}

// WithDescriptionChain replaces the description strategies.
func WithDescriptionChain(c *scraper.DescriptionChain) Option {
	return func(s *Server) { s.descriptions = c }
}

// WithSleeper replaces the harvester's sleeper. Tests use it to skip waits.
func WithSleeper(sl scraper.Sleeper) Option {
	return func(s *Server) { s.sleeper = sl }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New wires a Server over fetcher. metrics receives both the engine and the
// HTTP collectors and backs /metrics.
func New(cfg *config.Config, fetcher scraper.Fetcher, metrics *scraper.Metrics, opts ...Option) *Server {
	if metrics == nil {
		metrics = scraper.NewMetrics()
	}
	s := &Server{
		cfg:     cfg,
		fetcher: fetcher,
		metrics: metrics,
		http:    newHTTPMetrics(metrics.Registry),
		slots:   make(chan struct{}, max(cfg.MaxConcurrentHarvests, 1)),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	harvesterOpts := []scraper.HarvesterOption{
		scraper.WithMetrics(metrics),
		scraper.WithLogger(s.logger),
	}
	if s.sleeper != nil {
		harvesterOpts = append(harvesterOpts, scraper.WithSleeper(s.sleeper))
	}
	s.harvester = scraper.NewHarvester(cfg, fetcher, harvesterOpts...)
	s.resolver = scraper.NewResolver(cfg, fetcher)
	s.analysis = analysis.NewService(cfg, s.harvester, fetcher)
	if s.descriptions == nil {
		s.descriptions = scraper.DefaultDescriptionChain(cfg, fetcher)
	}
	if s.seo == nil {
		s.seo = seo.NewAnalyzerFromConfig(cfg, nil)
	}
	return s
}

// Handler returns the routed handler wrapped in logging and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /parse", s.handleParse)
	mux.HandleFunc("POST /check-position", s.handleCheckPosition)
	mux.HandleFunc("POST /analyze-adrates", s.handleAdRates)
	mux.HandleFunc("POST /analyze-competitors", s.handleCompetitors)
	mux.HandleFunc("POST /analyze-seo", s.handleSEO)
	mux.HandleFunc("GET /download/{filename}", s.handleDownload)
	mux.HandleFunc("GET /runs", s.handleRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleRun)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))

	return s.loggingMiddleware(s.metricsMiddleware(mux))
}

// HTTPServer builds the listener for addr. Harvests can run for minutes, so
// there is no write timeout; the harvest slots bound the load instead.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// acquire takes a harvest slot without waiting.
func (s *Server) acquire() bool {
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) release() {
	<-s.slots
}
