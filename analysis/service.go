package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-wb/config"
	"github.com/aluiziolira/go-scrape-wb/models"
	"github.com/aluiziolira/go-scrape-wb/scraper"
)

var (
	// ErrEmptyQuery is returned when an ad-rate analysis has no query.
	ErrEmptyQuery = errors.New("analysis: query is required")
	// ErrInvalidRegion is returned for a region that is not a numeric
	// destination code.
	ErrInvalidRegion = errors.New("analysis: region must be a numeric destination code")
	// ErrNoPeerQuery is returned when a product card names neither a
	// category nor a product.
	ErrNoPeerQuery = errors.New("analysis: product card has no category or name")
)

// Service runs the analyses against the marketplace.
type Service struct {
	cfg       *config.Config
	harvester *scraper.Harvester
	fetcher   scraper.Fetcher
	logger    *slog.Logger
}

// NewService wires a Service over an existing harvester and fetcher.
func NewService(cfg *config.Config, harvester *scraper.Harvester, fetcher scraper.Fetcher) *Service {
	return &Service{
		cfg:       cfg,
		harvester: harvester,
		fetcher:   fetcher,
		logger:    slog.Default().With(slog.String("component", "analysis")),
	}
}

// Competitors looks up the product card, harvests up to CompetitorPages of
// search results for its category and summarizes them.
func (s *Service) Competitors(ctx context.Context, productURL string) (*models.CompetitorReport, error) {
	productID, err := scraper.ProductIDFromURL(productURL)
	if err != nil {
		return nil, err
	}
	card, err := scraper.FetchCard(ctx, s.cfg, s.fetcher, productID)
	if err != nil {
		return nil, fmt.Errorf("fetch product card: %w", err)
	}
	query := card.SearchQuery()
	if query == "" {
		return nil, ErrNoPeerQuery
	}

	peers := s.harvester.Search(ctx, query, "", s.cfg.CompetitorPages)
	report := SummarizeCompetitors(productID, query, peers, DefaultTopSellers)
	if report.ProductName == "" {
		report.ProductName = card.Name
	}
	s.logger.Info("competitor analysis",
		slog.String("product_id", productID),
		slog.String("query", query),
		slog.Int("competitors", report.Competitors),
		slog.Int("target_position", report.TargetPosition),
		slog.String("reason", string(report.Reason)),
	)
	return report, nil
}

// AdRates classifies the first search page for query in region.
func (s *Service) AdRates(ctx context.Context, query, region string) (*models.AdRateReport, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	dest, err := destination(s.cfg, region)
	if err != nil {
		return nil, err
	}

	records, reason := s.harvester.SearchPage(ctx, query, dest)
	report := ClassifyAds(query, dest, records, s.cfg.ProductPageURL)
	report.Reason = reason
	s.logger.Info("ad rate analysis",
		slog.String("query", query),
		slog.String("region", dest),
		slog.Int("total", report.Total),
		slog.Int("promoted", report.Promoted),
	)
	return report, nil
}

func destination(cfg *config.Config, region string) (string, error) {
	region = strings.TrimSpace(region)
	if region == "" {
		return cfg.Destination, nil
	}
	if _, err := strconv.ParseInt(region, 10, 64); err != nil {
		return "", ErrInvalidRegion
	}
	return region, nil
}
