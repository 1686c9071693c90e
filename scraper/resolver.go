package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/aluiziolira/go-scrape-wb/config"
	"github.com/aluiziolira/go-scrape-wb/parser"
)

var (
	sellerIDPattern  = regexp.MustCompile(`/seller/(\d+)(?:[/?#]|$)`)
	brandIDPattern   = regexp.MustCompile(`/brands/(\d+)(?:[/?#]|$)`)
	brandSlugPattern = regexp.MustCompile(`/brands/([^/?#]+)`)
)

// Resolver turns a seller or brand page URL into a catalog Target.
type Resolver struct {
	cfg     *config.Config
	fetcher Fetcher
	slugs   *expirable.LRU[string, Target]
	logger  *slog.Logger
}

// NewResolver builds a resolver whose slug lookups go through fetcher.
func NewResolver(cfg *config.Config, fetcher Fetcher) *Resolver {
	size := cfg.ResolverCacheSize
	if size <= 0 {
		size = 1
	}
	return &Resolver{
		cfg:     cfg,
		fetcher: fetcher,
		slugs:   expirable.NewLRU[string, Target](size, nil, cfg.ResolverCacheTTL),
		logger:  slog.Default(),
	}
}

// Resolve tries, in order, a numeric /seller/ segment, a numeric /brands/
// segment and a textual brand slug. Numeric forms never touch the network; a
// slug costs one search request whose first product names the seller. Any
// failure is reported as ErrUnresolvable and is never retried.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (Target, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Target{}, fmt.Errorf("%w: empty url", ErrUnresolvable)
	}

	if m := sellerIDPattern.FindStringSubmatch(rawURL); m != nil {
		return Target{ID: m[1], Kind: TargetSeller}, nil
	}
	if m := brandIDPattern.FindStringSubmatch(rawURL); m != nil {
		return Target{ID: m[1], Kind: TargetBrand}, nil
	}
	if m := brandSlugPattern.FindStringSubmatch(rawURL); m != nil {
		slug, err := url.PathUnescape(m[1])
		if err != nil {
			slug = m[1]
		}
		return r.resolveSlug(ctx, slug)
	}
	return Target{}, fmt.Errorf("%w: %s", ErrUnresolvable, rawURL)
}

func (r *Resolver) resolveSlug(ctx context.Context, slug string) (Target, error) {
	key := strings.ToLower(slug)
	if target, ok := r.slugs.Get(key); ok {
		return target, nil
	}

	resp, err := r.fetcher.Fetch(ctx, SearchURL(r.cfg, slug, "", 1))
	if err != nil {
		return Target{}, fmt.Errorf("%w: brand %q: %v", ErrUnresolvable, slug, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Target{}, fmt.Errorf("%w: brand %q: %v", ErrUnresolvable, slug, classifyError(nil, resp.StatusCode))
	}

	page := parser.ValidatePage(resp.Body)
	if page.Kind != parser.OutcomeProducts {
		return Target{}, fmt.Errorf("%w: brand %q: no search results", ErrUnresolvable, slug)
	}
	supplierID := parser.IDString(page.Records[0]["supplierId"])
	if supplierID == "" || supplierID == "0" {
		return Target{}, fmt.Errorf("%w: brand %q: first result has no supplier", ErrUnresolvable, slug)
	}

	target := Target{ID: supplierID, Kind: TargetSeller}
	r.slugs.Add(key, target)
	r.logger.Info("resolved brand slug", slog.String("slug", slug), slog.String("supplier_id", supplierID))
	return target, nil
}
