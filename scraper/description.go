package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"github.com/aluiziolira/go-scrape-wb/config"
	"github.com/aluiziolira/go-scrape-wb/models"
)

// DescriptionStrategy is one way of obtaining a product description.
// An empty string with a nil error means the strategy found nothing.
type DescriptionStrategy interface {
	Name() string
	Describe(ctx context.Context, productID string) (string, error)
}

// Strategy names, reported as the description source.
const (
	SourceAPI     = "api"
	SourceHTML    = "html"
	SourceBrowser = "browser"
)

// DescriptionChain tries strategies in order until one yields text.
type DescriptionChain struct {
	strategies []DescriptionStrategy
	logger     *slog.Logger
}

// NewDescriptionChain builds a chain over strategies, cheapest first.
func NewDescriptionChain(strategies ...DescriptionStrategy) *DescriptionChain {
	return &DescriptionChain{strategies: strategies, logger: slog.Default()}
}

// DefaultDescriptionChain returns the card API and HTML strategies, plus the
// headless browser when cfg.BrowserFallback is set.
func DefaultDescriptionChain(cfg *config.Config, fetcher Fetcher) *DescriptionChain {
	strategies := []DescriptionStrategy{
		NewAPIDescription(cfg, fetcher),
		NewHTMLDescription(cfg, fetcher),
	}
	if cfg.BrowserFallback {
		strategies = append(strategies, NewBrowserDescription(cfg))
	}
	return NewDescriptionChain(strategies...)
}

// Without returns a chain that skips the named strategies. Callers that
// already hold the card use it to avoid fetching it twice.
func (c *DescriptionChain) Without(names ...string) *DescriptionChain {
	kept := make([]DescriptionStrategy, 0, len(c.strategies))
	for _, strategy := range c.strategies {
		if !slices.Contains(names, strategy.Name()) {
			kept = append(kept, strategy)
		}
	}
	return &DescriptionChain{strategies: kept, logger: c.logger}
}

// Describe returns the first non-empty description and the name of the
// strategy that produced it. It never fails; strategy errors are logged and
// the next strategy is tried.
func (c *DescriptionChain) Describe(ctx context.Context, productID string) (text, source string) {
	for _, strategy := range c.strategies {
		if ctx.Err() != nil {
			return "", ""
		}
		text, err := strategy.Describe(ctx, productID)
		if err != nil {
			c.logger.Warn("description strategy failed",
				slog.String("strategy", strategy.Name()),
				slog.String("product_id", productID),
				slog.Any("error", err),
			)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text, strategy.Name()
		}
	}
	return "", ""
}

// APIDescription reads the static card JSON served from the basket hosts.
type APIDescription struct {
	cfg     *config.Config
	fetcher Fetcher
}

// NewAPIDescription builds the card JSON strategy.
func NewAPIDescription(cfg *config.Config, fetcher Fetcher) *APIDescription {
	return &APIDescription{cfg: cfg, fetcher: fetcher}
}

func (s *APIDescription) Name() string { return SourceAPI }

func (s *APIDescription) Describe(ctx context.Context, productID string) (string, error) {
	card, err := FetchCard(ctx, s.cfg, s.fetcher, productID)
	if err != nil {
		return "", err
	}
	return card.Description, nil
}

// descriptionSelectors are tried in order against the product page.
var descriptionSelectors = []string{
	"section.product-details__description .option__text",
	".product-params__description",
	"#description",
	"[data-link*='description']",
}

var descriptionMeta = []string{
	`meta[property="og:description"]`,
	`meta[name="description"]`,
}

// HTMLDescription parses the public product page.
type HTMLDescription struct {
	cfg     *config.Config
	fetcher Fetcher
}

// NewHTMLDescription builds the product page strategy.
func NewHTMLDescription(cfg *config.Config, fetcher Fetcher) *HTMLDescription {
	return &HTMLDescription{cfg: cfg, fetcher: fetcher}
}

func (s *HTMLDescription) Name() string { return SourceHTML }

func (s *HTMLDescription) Describe(ctx context.Context, productID string) (string, error) {
	resp, err := s.fetcher.Fetch(ctx, models.ProductURL(s.cfg.ProductPageURL, productID))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyError(nil, resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return "", fmt.Errorf("parse product page: %w", err)
	}
	return extractDescription(doc), nil
}

func extractDescription(doc *goquery.Document) string {
	for _, selector := range descriptionSelectors {
		if text := strings.TrimSpace(doc.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	for _, selector := range descriptionMeta {
		if content, ok := doc.Find(selector).First().Attr("content"); ok {
			if content = strings.TrimSpace(content); content != "" {
				return content
			}
		}
	}
	return ""
}

// BrowserDescription renders the product page in headless Chrome. It is the
// most expensive strategy and only runs when the cheaper ones found nothing.
type BrowserDescription struct {
	cfg *config.Config
}

// NewBrowserDescription builds the headless browser strategy.
func NewBrowserDescription(cfg *config.Config) *BrowserDescription {
	return &BrowserDescription{cfg: cfg}
}

func (s *BrowserDescription) Name() string { return SourceBrowser }

func (s *BrowserDescription) Describe(ctx context.Context, productID string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(s.cfg.UserAgent),
		chromedp.WindowSize(1280, 900),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()
	runCtx, cancelRun := context.WithTimeout(browserCtx, s.cfg.BrowserTimeout)
	defer cancelRun()

	var text string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(models.ProductURL(s.cfg.ProductPageURL, productID)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(`(() => {
			const selectors = [
				"section.product-details__description .option__text",
				".product-params__description",
				"#description",
			];
			for (const sel of selectors) {
				const el = document.querySelector(sel);
				if (el && el.innerText.trim()) return el.innerText.trim();
			}
			const meta = document.querySelector('meta[name="description"]');
			return meta ? meta.content : "";
		})()`, &text),
	)
	if err != nil {
		return "", fmt.Errorf("browser render: %w", err)
	}
	return text, nil
}
