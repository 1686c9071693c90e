package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the upstream client and the
// harvest engine.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	ItemsScrapedTotal prometheus.Counter
	RetriesTotal      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	PagesTotal        *prometheus.CounterVec
	HarvestsTotal     *prometheus.CounterVec
	CooldownSeconds   *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Upstream HTTP requests by phase.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "Upstream request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	itemsScraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_items_scraped_total",
			Help: "Products accepted into harvest results.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Page retries after a rate limit or a failed attempt.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Non-success page outcomes by type.",
		},
		[]string{"error_type"},
	)
	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Accepted pages by walk kind.",
		},
		[]string{"kind"},
	)
	harvests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_harvests_total",
			Help: "Finished harvests and rank lookups by terminal reason.",
		},
		[]string{"kind", "reason"},
	)
	cooldown := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_cooldown_seconds_total",
			Help: "Time spent waiting between pages by cause.",
		},
		[]string{"cause"},
	)

	registry.MustRegister(requests, requestDuration, itemsScraped, retries, errorsTotal, pages, harvests, cooldown)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		ItemsScrapedTotal: itemsScraped,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
		PagesTotal:        pages,
		HarvestsTotal:     harvests,
		CooldownSeconds:   cooldown,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddItems adds n accepted products.
func (m *Metrics) AddItems(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsScrapedTotal.Add(float64(n))
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncPage counts an accepted page.
func (m *Metrics) IncPage(kind string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(kind).Inc()
}

// IncHarvest counts a finished walk by its terminal reason.
func (m *Metrics) IncHarvest(kind, reason string) {
	if m == nil {
		return
	}
	m.HarvestsTotal.WithLabelValues(kind, reason).Inc()
}

// AddCooldown records time spent sleeping for cause.
func (m *Metrics) AddCooldown(cause string, d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.CooldownSeconds.WithLabelValues(cause).Add(d.Seconds())
}
