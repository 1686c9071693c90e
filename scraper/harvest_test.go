package scraper

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aluiziolira/go-scrape-wb/config"
	"github.com/aluiziolira/go-scrape-wb/models"
)

var sellerTarget = Target{ID: "12345", Kind: TargetSeller}

type harvestFixture struct {
	transport *httpmock.MockTransport
	sleeper   *recordingSleeper
	metrics   *Metrics
	harvester *Harvester
}

func newHarvestFixture(t *testing.T, cfg *config.Config, url string, script map[int][]step) *harvestFixture {
	t.Helper()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", url, pagedResponder(script))

	sleeper := &recordingSleeper{}
	metrics := NewMetrics()
	client := newTestClient(t, cfg, transport)
	return &harvestFixture{
		transport: transport,
		sleeper:   sleeper,
		metrics:   metrics,
		harvester: NewHarvester(cfg, client, WithSleeper(sleeper), WithMetrics(metrics)),
	}
}

func productIDs(products []*models.Product) []string {
	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	return ids
}

func TestHarvestStopsOnShortPage(t *testing.T) {
	cfg := testConfig()
	fx := newHarvestFixture(t, cfg, testSellerCatalog, map[int][]step{
		1: {ok(productsJSON(1, 100))},
		2: {ok(productsJSON(101, 100))},
		3: {ok(productsJSON(201, 37))},
		4: {ok(productsJSON(301, 100))},
	})

	result := fx.harvester.Harvest(context.Background(), sellerTarget)

	if result.Reason != models.ReasonLastPageShort {
		t.Fatalf("reason = %q, want %q", result.Reason, models.ReasonLastPageShort)
	}
	if got := len(result.Products); got != 237 {
		t.Fatalf("products = %d, want 237", got)
	}
	if result.Partial() {
		t.Fatalf("a short last page is a natural end")
	}
	if got := fx.transport.GetTotalCallCount(); got != 3 {
		t.Fatalf("requests = %d, want 3", got)
	}
	if result.Requests != 3 || result.Pages != 3 || result.Errors != 0 {
		t.Fatalf("unexpected counters: %+v", result)
	}

	for i, p := range result.Products {
		if p.Position != i+1 {
			t.Fatalf("product %d has position %d", i, p.Position)
		}
	}
	first, last := result.Products[0], result.Products[236]
	if first.ID != "1" || last.ID != "237" {
		t.Fatalf("order not preserved: first=%s last=%s", first.ID, last.ID)
	}
	if first.URL != "https://www.wildberries.ru/catalog/1/detail.aspx" || first.ListPrice != 1000.01 {
		t.Fatalf("record not normalized: %+v", first)
	}

	if got := fx.sleeper.count(cfg.PageDelay); got != 2 {
		t.Fatalf("page delays = %d, want 2", got)
	}
	if got := testutil.ToFloat64(fx.metrics.HarvestsTotal.WithLabelValues("catalog", "last_page_short")); got != 1 {
		t.Fatalf("harvests_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(fx.metrics.ItemsScrapedTotal); got != 237 {
		t.Fatalf("items_scraped_total = %v, want 237", got)
	}
}

func TestHarvestStopsOnEmptyPage(t *testing.T) {
	cfg := testConfig()
	fx := newHarvestFixture(t, cfg, testSellerCatalog, map[int][]step{
		1: {ok(productsJSON(1, 100))},
		2: {ok(`{"data":{"products":[]}}`)},
	})

	result := fx.harvester.Harvest(context.Background(), sellerTarget)

	if result.Reason != models.ReasonEmptyPage {
		t.Fatalf("reason = %q, want %q", result.Reason, models.ReasonEmptyPage)
	}
	if len(result.Products) != 100 {
		t.Fatalf("products = %d, want 100", len(result.Products))
	}
	if result.Requests != 2 {
		t.Fatalf("requests = %d, want 2", result.Requests)
	}
}

func TestHarvestConsecutiveErrorsKeepPartialResults(t *testing.T) {
	cfg := testConfig()
	script := map[int][]step{
		1: {ok(productsJSON(1, 100))},
		2: {status(http.StatusInternalServerError)},
	}

	var previous []string
	for run := 0; run < 2; run++ {
		fx := newHarvestFixture(t, cfg, testSellerCatalog, script)
		result := fx.harvester.Harvest(context.Background(), sellerTarget)

		if result.Reason != models.ReasonTooManyErrors {
			t.Fatalf("reason = %q, want %q", result.Reason, models.ReasonTooManyErrors)
		}
		if !result.Partial() {
			t.Fatalf("error exhaustion must be reported as partial")
		}
		if len(result.Products) != 100 {
			t.Fatalf("products = %d, want the 100 gathered before the streak", len(result.Products))
		}
		if result.Errors != 3 || result.ErrorsByType["http_status"] != 3 {
			t.Fatalf("errors = %d by type %v, want 3 http_status", result.Errors, result.ErrorsByType)
		}
		if got := fx.transport.GetTotalCallCount(); got != 4 {
			t.Fatalf("requests = %d, want 4", got)
		}
		if got := fx.sleeper.count(cfg.ErrorCooldown); got != 2 {
			t.Fatalf("error cooldowns = %d, want 2 (no sleep once the threshold is hit)", got)
		}

		ids := productIDs(result.Products)
		if previous != nil {
			for i := range ids {
				if ids[i] != previous[i] {
					t.Fatalf("replay diverged at %d: %s != %s", i, ids[i], previous[i])
				}
			}
		}
		previous = ids
	}
}

func TestHarvestCooldownBySeverity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConsecutiveErrors = 5
	fx := newHarvestFixture(t, cfg, testSellerCatalog, map[int][]step{
		1: {
			transportErr(context.DeadlineExceeded),
			transportErr(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}),
			ok(`<html>502 Bad Gateway</html>`),
			status(http.StatusBadGateway),
			ok(productsJSON(1, 12)),
		},
	})

	result := fx.harvester.Harvest(context.Background(), sellerTarget)

	if result.Reason != models.ReasonLastPageShort || len(result.Products) != 12 {
		t.Fatalf("reason = %q products = %d, want last_page_short with 12", result.Reason, len(result.Products))
	}
	want := map[string]int{"timeout": 1, "connection": 1, "malformed": 1, "http_status": 1}
	for label, n := range want {
		if result.ErrorsByType[label] != n {
			t.Errorf("errors[%s] = %d, want %d (all: %v)", label, result.ErrorsByType[label], n, result.ErrorsByType)
		}
	}
	if fx.sleeper.count(cfg.TimeoutCooldown) != 1 || fx.sleeper.count(cfg.ConnectionCooldown) != 1 || fx.sleeper.count(cfg.ErrorCooldown) != 2 {
		t.Fatalf("unexpected cooldowns: %v", fx.sleeper.waits)
	}
	if !(cfg.ErrorCooldown < cfg.TimeoutCooldown && cfg.TimeoutCooldown < cfg.ConnectionCooldown) {
		t.Fatalf("cooldowns must grow with severity")
	}
}

func TestHarvestRateLimitIsNotAnError(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConsecutiveErrors = 3
	tooMany := status(http.StatusTooManyRequests)
	fx := newHarvestFixture(t, cfg, testSellerCatalog, map[int][]step{
		1: {tooMany, tooMany, tooMany, tooMany, tooMany, ok(productsJSON(1, 10))},
	})

	result := fx.harvester.Harvest(context.Background(), sellerTarget)

	if result.Reason != models.ReasonLastPageShort {
		t.Fatalf("reason = %q, want %q", result.Reason, models.ReasonLastPageShort)
	}
	if result.RateLimited != 5 || result.Errors != 0 {
		t.Fatalf("rate limited = %d errors = %d, want 5 and 0", result.RateLimited, result.Errors)
	}
	if got := fx.sleeper.count(cfg.RateLimitCooldown); got != 5 {
		t.Fatalf("rate limit cooldowns = %d, want 5", got)
	}
	if len(result.Products) != 10 {
		t.Fatalf("products = %d, want 10", len(result.Products))
	}
}

func TestHarvestAcceptedPageResetsErrorCounter(t *testing.T) {
	cfg := testConfig()
	fail := status(http.StatusServiceUnavailable)
	fx := newHarvestFixture(t, cfg, testSellerCatalog, map[int][]step{
		1: {fail, fail, ok(productsJSON(1, 100))},
		2: {fail, fail, ok(productsJSON(101, 5))},
	})

	result := fx.harvester.Harvest(context.Background(), sellerTarget)

	if result.Reason != models.ReasonLastPageShort {
		t.Fatalf("reason = %q, want %q", result.Reason, models.ReasonLastPageShort)
	}
	if len(result.Products) != 105 || result.Errors != 4 {
		t.Fatalf("products = %d errors = %d, want 105 and 4", len(result.Products), result.Errors)
	}
}

func TestHarvestCancelledDuringSleep(t *testing.T) {
	cfg := testConfig()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testSellerCatalog, pagedResponder(map[int][]step{
		1: {ok(productsJSON(1, 100))},
		2: {ok(productsJSON(101, 100))},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleeper := SleeperFunc(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})
	h := NewHarvester(cfg, newTestClient(t, cfg, transport), WithSleeper(sleeper))

	result := h.Harvest(ctx, sellerTarget)

	if result.Reason != models.ReasonUserCancelled {
		t.Fatalf("reason = %q, want %q", result.Reason, models.ReasonUserCancelled)
	}
	if len(result.Products) != 100 || result.Requests != 1 {
		t.Fatalf("products = %d requests = %d, want 100 and 1", len(result.Products), result.Requests)
	}
}

func TestHarvestCancelledDuringRequest(t *testing.T) {
	cfg := testConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := stallingTransport{
		delay:   5 * time.Second,
		onStall: cancel,
		answer: func(req *http.Request) (*http.Response, bool) {
			if req.URL.Query().Get("page") != "1" {
				return nil, false
			}
			return httpmock.NewStringResponse(http.StatusOK, productsJSON(1, 100)), true
		},
	}
	sleeper := &recordingSleeper{}
	h := NewHarvester(cfg, newTestClient(t, cfg, transport), WithSleeper(sleeper))

	start := time.Now()
	result := h.Harvest(ctx, sellerTarget)

	if time.Since(start) > time.Second {
		t.Fatalf("harvest took %v, cancellation did not interrupt the request", time.Since(start))
	}
	if result.Reason != models.ReasonUserCancelled {
		t.Fatalf("reason = %q, want %q", result.Reason, models.ReasonUserCancelled)
	}
	if len(result.Products) != 100 || result.Requests != 2 || result.Errors != 0 {
		t.Fatalf("products = %d requests = %d errors = %d, want 100, 2 and 0",
			len(result.Products), result.Requests, result.Errors)
	}
}

func TestHarvestAlreadyCancelled(t *testing.T) {
	cfg := testConfig()
	fx := newHarvestFixture(t, cfg, testSellerCatalog, map[int][]step{1: {ok(productsJSON(1, 100))}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := fx.harvester.Harvest(ctx, sellerTarget)

	if result.Reason != models.ReasonUserCancelled || result.Requests != 0 {
		t.Fatalf("reason = %q requests = %d, want user_cancelled and 0", result.Reason, result.Requests)
	}
	if fx.transport.GetTotalCallCount() != 0 {
		t.Fatalf("no request should be sent")
	}
}

func TestHarvestSafetyCap(t *testing.T) {
	cfg := testConfig()
	cfg.SafetyCap = 150
	fx := newHarvestFixture(t, cfg, testSellerCatalog, map[int][]step{
		1: {ok(productsJSON(1, 100))},
		2: {ok(productsJSON(101, 100))},
		3: {ok(productsJSON(201, 100))},
	})

	result := fx.harvester.Harvest(context.Background(), sellerTarget)

	if result.Reason != models.ReasonSafetyCapReached {
		t.Fatalf("reason = %q, want %q", result.Reason, models.ReasonSafetyCapReached)
	}
	if len(result.Products) != 150 || result.Requests != 2 {
		t.Fatalf("products = %d requests = %d, want 150 and 2", len(result.Products), result.Requests)
	}
}

func TestHarvestPacing(t *testing.T) {
	cfg := testConfig()
	cfg.PagesCooldownEvery = 2
	cfg.RecordsCooldownEvery = 150
	fx := newHarvestFixture(t, cfg, testSellerCatalog, map[int][]step{
		1: {ok(productsJSON(1, 100))},
		2: {ok(productsJSON(101, 100))},
		3: {ok(productsJSON(201, 100))},
		4: {ok(productsJSON(301, 100))},
		5: {ok(productsJSON(401, 10))},
	})

	result := fx.harvester.Harvest(context.Background(), sellerTarget)

	if result.Reason != models.ReasonLastPageShort || len(result.Products) != 410 {
		t.Fatalf("reason = %q products = %d", result.Reason, len(result.Products))
	}
	// Records cross 150 after page 2 and 300 after page 3; 400 stays below 450.
	tests := []struct {
		name string
		d    time.Duration
		want int
	}{
		{name: "page delay", d: cfg.PageDelay, want: 4},
		{name: "pages cooldown", d: cfg.PagesCooldown, want: 2},
		{name: "records cooldown", d: cfg.RecordsCooldown, want: 2},
	}
	for _, tt := range tests {
		if got := fx.sleeper.count(tt.d); got != tt.want {
			t.Errorf("%s: %d sleeps, want %d (all: %v)", tt.name, got, tt.want, fx.sleeper.waits)
		}
	}
}

func TestHarvestSkipsBadAndDuplicateRecords(t *testing.T) {
	cfg := testConfig()
	fx := newHarvestFixture(t, cfg, testSellerCatalog, map[int][]step{
		1: {ok(productsJSON(1, 100))},
		2: {ok(`{"data":{"products":[{"id":5},{"name":"no id"},7,{"id":101},{"id":"102"},{"id":101}]}}`)},
	})

	result := fx.harvester.Harvest(context.Background(), sellerTarget)

	if result.Reason != models.ReasonLastPageShort {
		t.Fatalf("reason = %q", result.Reason)
	}
	if len(result.Products) != 102 {
		t.Fatalf("products = %d, want 102", len(result.Products))
	}
	if result.Duplicates != 2 || result.SkippedRecords != 2 {
		t.Fatalf("duplicates = %d skipped = %d, want 2 and 2", result.Duplicates, result.SkippedRecords)
	}
}

func TestHarvestBrandTarget(t *testing.T) {
	cfg := testConfig()
	fx := newHarvestFixture(t, cfg, testBrandCatalog, map[int][]step{
		1: {ok(productsJSON(1, 3))},
	})

	result := fx.harvester.Harvest(context.Background(), Target{ID: "77", Kind: TargetBrand})

	if len(result.Products) != 3 || result.TargetID != "77" {
		t.Fatalf("unexpected brand harvest: %+v", result)
	}
}

func TestSearchRespectsPageCap(t *testing.T) {
	cfg := testConfig()
	fx := newHarvestFixture(t, cfg, testSearch, map[int][]step{
		1: {ok(productsJSON(1, 100))},
		2: {ok(productsJSON(101, 100))},
		3: {ok(productsJSON(201, 100))},
	})

	result := fx.harvester.Search(context.Background(), "платье", "", 2)

	if result.Reason != models.ReasonPageCapReached || len(result.Products) != 200 {
		t.Fatalf("reason = %q products = %d, want page_cap_reached and 200", result.Reason, len(result.Products))
	}
	if fx.transport.GetTotalCallCount() != 2 {
		t.Fatalf("requests = %d, want 2", fx.transport.GetTotalCallCount())
	}
}

func TestSearchPageReturnsRawRecords(t *testing.T) {
	cfg := testConfig()
	fx := newHarvestFixture(t, cfg, testSearch, map[int][]step{
		1: {ok(`{"data":{"products":[{"id":1,"log":{"tp":"c","cpm":300}},{"id":2}]}}`)},
	})

	records, reason := fx.harvester.SearchPage(context.Background(), "платье", "-59202")

	if len(records) != 2 || reason != models.ReasonLastPageShort {
		t.Fatalf("records = %d reason = %q", len(records), reason)
	}
	if _, ok := records[0]["log"].(map[string]any); !ok {
		t.Fatalf("raw fields should be kept: %v", records[0])
	}
}
