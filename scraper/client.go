package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"

	"github.com/aluiziolira/go-scrape-wb/config"
)

// RawResponse is one upstream answer, whatever its status code.
type RawResponse struct {
	StatusCode int
	Body       []byte
	Elapsed    time.Duration
}

// Fetcher issues a single GET. Implementations must not retry.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*RawResponse, error)
}

// Client is the upstream HTTP client. It sends fixed browser-like headers,
// enforces a per-request timeout and throttles all calls through one shared
// limiter. It never retries.
type Client struct {
	collector *colly.Collector
	limiter   *rate.Limiter
	headers   http.Header
	metrics   *Metrics
}

// NewClient builds a client configured from cfg. metrics may be nil.
func NewClient(cfg *config.Config, metrics *Metrics) (*Client, error) {
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("client timeout must be positive")
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	headers := http.Header{}
	headers.Set("User-Agent", cfg.UserAgent)
	headers.Set("Accept", "application/json, text/plain, */*")
	headers.Set("Accept-Language", cfg.AcceptLanguage)
	headers.Set("Connection", "keep-alive")

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		collector: collector,
		limiter:   limiter,
		headers:   headers,
		metrics:   metrics,
	}, nil
}

// WithTransport replaces the underlying round tripper. Tests use it to
// install a mock transport.
func (c *Client) WithTransport(transport http.RoundTripper) {
	c.collector.WithTransport(transport)
}

// Fetch issues a GET for url. Non-2xx answers are returned as a RawResponse,
// not an error. Transport failures are returned as ErrTimeout or
// ErrConnection; cancellation of ctx is returned as ctx.Err().
func (c *Client) Fetch(ctx context.Context, url string) (*RawResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, ErrTimeout{Err: err}
		}
	}

	// Clones share the transport but not callbacks, so concurrent calls do
	// not see each other's responses.
	collector := c.collector.Clone()
	collector.Context = ctx

	var resp *RawResponse
	collector.OnResponse(func(r *colly.Response) {
		resp = &RawResponse{StatusCode: r.StatusCode, Body: r.Body}
	})

	c.metrics.IncRequest("started")
	start := time.Now()
	err := collector.Request(http.MethodGet, url, nil, nil, c.headers.Clone())
	elapsed := time.Since(start)
	c.metrics.ObserveDuration(elapsed)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.metrics.IncRequest("failed")
		classified := classifyError(err, 0)
		slog.Debug("upstream transport error",
			slog.String("url", url),
			slog.String("category", errorTypeLabel(classified)),
			slog.Any("error", err),
		)
		return nil, classified
	}
	if resp == nil {
		c.metrics.IncRequest("failed")
		return nil, ErrConnection{Err: fmt.Errorf("no response for %s", url)}
	}

	c.metrics.IncRequest("completed")
	resp.Elapsed = elapsed
	return resp, nil
}

// classifyError maps a transport error or a status code to the typed errors
// above. Transport errors that are not timeouts count as connection failures.
func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout{Err: err}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrTimeout{Err: err}
		}
		return ErrConnection{Err: err}
	}

	wrapped := fmt.Errorf("http status %d", statusCode)
	switch statusCode {
	case http.StatusForbidden:
		return ErrForbidden{Err: wrapped}
	case http.StatusNotFound:
		return ErrNotFound{Err: wrapped}
	case http.StatusTooManyRequests:
		return ErrRateLimited{Err: wrapped}
	default:
		return ErrHTTPStatus{Code: statusCode}
	}
}
