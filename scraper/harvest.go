package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aluiziolira/go-scrape-wb/config"
	"github.com/aluiziolira/go-scrape-wb/models"
	"github.com/aluiziolira/go-scrape-wb/parser"
)

// attemptState is the outcome of one Fetching(page) step.
type attemptState int

const (
	attemptAccepted attemptState = iota
	attemptRateLimited
	attemptHTTPError
	attemptMalformed
	attemptTimeout
	attemptConnectionError
	attemptCancelled
)

func (s attemptState) String() string {
	switch s {
	case attemptAccepted:
		return "accepted"
	case attemptRateLimited:
		return "rate_limited"
	case attemptHTTPError:
		return "http_error"
	case attemptMalformed:
		return "malformed"
	case attemptTimeout:
		return "timeout"
	case attemptConnectionError:
		return "connection_error"
	case attemptCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type attemptResult struct {
	state attemptState
	page  parser.PageOutcome
	err   error
}

// session is the transient state of one walk. It is owned by a single call
// and never shared.
type session struct {
	page              int
	pages             int
	requests          int
	consecutiveErrors int
	errors            int
	errorsByType      map[string]int
	rateLimited       int
	reason            models.TerminalReason
}

type pause struct {
	cause string
	d     time.Duration
}

// walk describes one paginated traversal. accept sees every non-empty page
// and may end the walk by returning a reason; pace lists the waits before the
// next page.
type walk struct {
	kind     string
	target   string
	maxPages int
	pageURL  func(page int) string
	accept   func(page int, out parser.PageOutcome) models.TerminalReason
	pace     func(pages int) []pause
}

// Harvester runs catalog harvests, bounded searches and rank lookups against
// the upstream. All waits go through its Sleeper. A Harvester holds no
// per-call state and is safe for concurrent use.
type Harvester struct {
	cfg     *config.Config
	fetcher Fetcher
	sleeper Sleeper
	metrics *Metrics
	logger  *slog.Logger
}

// HarvesterOption customises a Harvester.
type HarvesterOption func(*Harvester)

// WithSleeper replaces the timer-based sleeper.
func WithSleeper(s Sleeper) HarvesterOption {
	return func(h *Harvester) {
		h.sleeper = s
	}
}

// WithMetrics records engine metrics on m.
func WithMetrics(m *Metrics) HarvesterOption {
	return func(h *Harvester) {
		h.metrics = m
	}
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) HarvesterOption {
	return func(h *Harvester) {
		h.logger = l
	}
}

// NewHarvester builds a Harvester that fetches pages through fetcher.
func NewHarvester(cfg *config.Config, fetcher Fetcher, opts ...HarvesterOption) *Harvester {
	h := &Harvester{
		cfg:     cfg,
		fetcher: fetcher,
		sleeper: timerSleeper{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Harvest walks every catalog page of target until a terminal condition and
// returns the accumulated products with the reason it stopped. It never
// returns an error: early stops are reported through the result's Reason and
// the products gathered so far are kept. With the default pacing a large
// catalog blocks the calling goroutine for minutes.
func (h *Harvester) Harvest(ctx context.Context, target Target) *models.HarvestResult {
	result := newResult(target.ID)
	seen := make(map[string]struct{})
	recordsMark := 0

	s := h.run(ctx, walk{
		kind:   "catalog",
		target: target.String(),
		pageURL: func(page int) string {
			return CatalogURL(h.cfg, target, page)
		},
		accept: func(_ int, out parser.PageOutcome) models.TerminalReason {
			return h.collect(result, seen, out, h.cfg.SafetyCap)
		},
		pace: func(pages int) []pause {
			plan := []pause{{cause: "page", d: h.cfg.PageDelay}}
			if every := h.cfg.PagesCooldownEvery; every > 0 && pages%every == 0 {
				plan = append(plan, pause{cause: "pages", d: h.cfg.PagesCooldown})
			}
			if every := h.cfg.RecordsCooldownEvery; every > 0 {
				if mark := len(result.Products) / every; mark > recordsMark {
					recordsMark = mark
					plan = append(plan, pause{cause: "records", d: h.cfg.RecordsCooldown})
				}
			}
			return plan
		},
	})

	h.finish(result, s)
	return result
}

// Search walks up to maxPages of keyword search results with the same retry
// policy as Harvest. dest overrides the configured region when set.
func (h *Harvester) Search(ctx context.Context, query, dest string, maxPages int) *models.HarvestResult {
	result := newResult(query)
	seen := make(map[string]struct{})

	s := h.run(ctx, walk{
		kind:     "search",
		target:   query,
		maxPages: maxPages,
		pageURL: func(page int) string {
			return SearchURL(h.cfg, query, dest, page)
		},
		accept: func(_ int, out parser.PageOutcome) models.TerminalReason {
			return h.collect(result, seen, out, h.cfg.SafetyCap)
		},
		pace: func(int) []pause {
			return []pause{{cause: "page", d: h.cfg.RankPageDelay}}
		},
	})

	h.finish(result, s)
	return result
}

// SearchPage returns the raw records of the first search results page, for
// callers that need upstream fields the normalizer drops.
func (h *Harvester) SearchPage(ctx context.Context, query, dest string) ([]map[string]any, models.TerminalReason) {
	var records []map[string]any
	s := h.run(ctx, walk{
		kind:     "search_page",
		target:   query,
		maxPages: 1,
		pageURL: func(page int) string {
			return SearchURL(h.cfg, query, dest, page)
		},
		accept: func(_ int, out parser.PageOutcome) models.TerminalReason {
			records = out.Records
			return models.ReasonUnknown
		},
		pace: func(int) []pause { return nil },
	})
	return records, s.reason
}

func newResult(targetID string) *models.HarvestResult {
	return &models.HarvestResult{
		TargetID:     targetID,
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}
}

// collect normalizes and appends every good record of a page. Records that
// fail validation are counted and skipped; repeated IDs are dropped.
func (h *Harvester) collect(result *models.HarvestResult, seen map[string]struct{}, out parser.PageOutcome, limit int) models.TerminalReason {
	result.SkippedRecords += out.Skipped
	accepted := 0
	defer func() { h.metrics.AddItems(accepted) }()

	for _, raw := range out.Records {
		if len(result.Products) >= limit {
			return models.ReasonSafetyCapReached
		}
		product := parser.NormalizeProduct(raw, h.cfg.ProductPageURL)
		if err := parser.ValidateProduct(product); err != nil {
			result.SkippedRecords++
			h.logger.Debug("skipping record", slog.Any("error", err))
			continue
		}
		if _, dup := seen[product.ID]; dup {
			result.Duplicates++
			continue
		}
		seen[product.ID] = struct{}{}
		product.Position = len(result.Products) + 1
		result.Products = append(result.Products, product)
		accepted++
	}
	if len(result.Products) >= limit {
		return models.ReasonSafetyCapReached
	}
	return models.ReasonUnknown
}

func (h *Harvester) finish(result *models.HarvestResult, s *session) {
	result.EndTime = time.Now()
	result.Reason = s.reason
	result.Pages = s.pages
	result.Requests = s.requests
	result.Errors = s.errors
	result.RateLimited = s.rateLimited
	for k, v := range s.errorsByType {
		result.ErrorsByType[k] = v
	}

	h.logger.Info("harvest finished",
		slog.String("target", result.TargetID),
		slog.String("reason", string(result.Reason)),
		slog.Int("products", len(result.Products)),
		slog.Int("pages", result.Pages),
		slog.Int("requests", result.Requests),
		slog.Int("errors", result.Errors),
		slog.Int("rate_limited", result.RateLimited),
		slog.Bool("partial", result.Partial()),
		slog.Duration("duration", result.Duration()),
	)
}

// run drives the Fetching(page) -> outcome -> NextPage | Terminal loop.
func (h *Harvester) run(ctx context.Context, w walk) *session {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &session{page: 1, errorsByType: make(map[string]int)}
	log := h.logger.With(slog.String("kind", w.kind), slog.String("target", w.target))
	defer func() {
		h.metrics.IncHarvest(w.kind, string(s.reason))
	}()

	for {
		if w.maxPages > 0 && s.page > w.maxPages {
			s.reason = models.ReasonPageCapReached
			return s
		}

		if ctx.Err() != nil {
			s.reason = models.ReasonUserCancelled
			return s
		}

		url := w.pageURL(s.page)
		res := h.attempt(ctx, url)
		s.requests++

		switch res.state {
		case attemptCancelled:
			log.Info("walk cancelled", slog.Int("page", s.page))
			s.reason = models.ReasonUserCancelled
			return s

		case attemptRateLimited:
			// 429 never counts toward the error threshold.
			s.rateLimited++
			h.metrics.IncError("rate_limited")
			h.metrics.IncRetries()
			log.Warn("rate limited, cooling down",
				slog.Int("page", s.page),
				slog.Duration("cooldown", h.cfg.RateLimitCooldown),
			)
			if !h.wait(ctx, pause{cause: "rate_limit", d: h.cfg.RateLimitCooldown}) {
				s.reason = models.ReasonUserCancelled
				return s
			}

		case attemptAccepted:
			s.consecutiveErrors = 0
			s.pages++
			h.metrics.IncPage(w.kind)

			if res.page.Kind == parser.OutcomeEmpty {
				s.reason = models.ReasonEmptyPage
				return s
			}
			if reason := w.accept(s.page, res.page); reason != models.ReasonUnknown {
				s.reason = reason
				return s
			}
			if res.page.Size < h.cfg.PageSize {
				s.reason = models.ReasonLastPageShort
				return s
			}
			if w.maxPages > 0 && s.page >= w.maxPages {
				s.reason = models.ReasonPageCapReached
				return s
			}

			log.Debug("page accepted",
				slog.Int("page", s.page),
				slog.Int("records", len(res.page.Records)),
				slog.Int("skipped", res.page.Skipped),
			)
			for _, p := range w.pace(s.pages) {
				if !h.wait(ctx, p) {
					s.reason = models.ReasonUserCancelled
					return s
				}
			}
			s.page++

		default:
			label := errorTypeLabel(res.err)
			s.consecutiveErrors++
			s.errors++
			s.errorsByType[label]++
			h.metrics.IncError(label)
			log.Warn("page attempt failed",
				slog.Int("page", s.page),
				slog.String("state", res.state.String()),
				slog.Int("consecutive_errors", s.consecutiveErrors),
				slog.Any("error", res.err),
			)
			if s.consecutiveErrors >= h.cfg.MaxConsecutiveErrors {
				s.reason = models.ReasonTooManyErrors
				return s
			}
			h.metrics.IncRetries()
			if !h.wait(ctx, pause{cause: res.state.String(), d: h.cooldownFor(res.state)}) {
				s.reason = models.ReasonUserCancelled
				return s
			}
		}
	}
}

// attempt performs one fetch and classifies it.
func (h *Harvester) attempt(ctx context.Context, url string) attemptResult {
	resp, err := h.fetcher.Fetch(ctx, url)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return attemptResult{state: attemptCancelled, err: err}
		}
		var timeout ErrTimeout
		if errors.As(err, &timeout) {
			return attemptResult{state: attemptTimeout, err: err}
		}
		var conn ErrConnection
		if !errors.As(err, &conn) {
			err = ErrConnection{Err: err}
		}
		return attemptResult{state: attemptConnectionError, err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return attemptResult{state: attemptRateLimited, err: classifyError(nil, resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return attemptResult{state: attemptHTTPError, err: classifyError(nil, resp.StatusCode)}
	}

	page := parser.ValidatePage(resp.Body)
	if page.Kind == parser.OutcomeMalformed {
		return attemptResult{state: attemptMalformed, err: ErrMalformed{Reason: page.Reason, Detail: page.Detail}}
	}
	return attemptResult{state: attemptAccepted, page: page}
}

// cooldownFor orders recovery waits by severity: HTTP and body errors are
// shortest, connection failures longest.
func (h *Harvester) cooldownFor(state attemptState) time.Duration {
	switch state {
	case attemptTimeout:
		return h.cfg.TimeoutCooldown
	case attemptConnectionError:
		return h.cfg.ConnectionCooldown
	default:
		return h.cfg.ErrorCooldown
	}
}

// wait sleeps for p and reports whether the walk may continue.
func (h *Harvester) wait(ctx context.Context, p pause) bool {
	if p.d <= 0 {
		return ctx.Err() == nil
	}
	h.metrics.AddCooldown(p.cause, p.d)
	return h.sleeper.Sleep(ctx, p.d) == nil
}
