package scraper

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aluiziolira/go-scrape-wb/models"
	"github.com/aluiziolira/go-scrape-wb/parser"
)

// Rank returns the 1-based position of productID in the search results for
// keyword, scanning at most MaxRankPages pages. Every record advances the
// running position whether or not it matches. A product that never appears
// yields models.RankNotFound.
func (h *Harvester) Rank(ctx context.Context, productID, keyword string) models.RankResult {
	want := strings.TrimSpace(productID)
	result := models.RankResult{ProductID: want, Keyword: keyword}
	position := 0

	s := h.run(ctx, walk{
		kind:     "rank",
		target:   want,
		maxPages: h.cfg.MaxRankPages,
		pageURL: func(page int) string {
			return SearchURL(h.cfg, keyword, "", page)
		},
		accept: func(_ int, out parser.PageOutcome) models.TerminalReason {
			for _, raw := range out.Records {
				position++
				if parser.IDString(raw["id"]) == want {
					result.Rank = position
					return models.ReasonFound
				}
			}
			return models.ReasonUnknown
		},
		pace: func(int) []pause {
			return []pause{{cause: "page", d: h.cfg.RankPageDelay}}
		},
	})

	result.PagesScanned = s.pages
	result.Requests = s.requests
	result.Reason = s.reason
	h.logger.Info("rank lookup finished",
		slog.String("product_id", want),
		slog.String("keyword", keyword),
		slog.Int("position", result.Rank),
		slog.Bool("found", result.Found()),
		slog.String("reason", string(result.Reason)),
		slog.Int("requests", result.Requests),
	)
	return result
}

// RankMany looks up the product behind productURL for up to MaxKeywords
// keywords, one after another with KeywordDelay between lookups. Blank
// keywords are ignored. Cancellation stops the sequence and returns the
// lookups finished so far.
func (h *Harvester) RankMany(ctx context.Context, productURL string, keywords []string) ([]models.RankResult, error) {
	productID, err := ProductIDFromURL(productURL)
	if err != nil {
		return nil, err
	}

	cleaned := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		if keyword = strings.TrimSpace(keyword); keyword != "" {
			cleaned = append(cleaned, keyword)
		}
	}
	if len(cleaned) > h.cfg.MaxKeywords {
		cleaned = cleaned[:h.cfg.MaxKeywords]
	}

	results := make([]models.RankResult, 0, len(cleaned))
	for i, keyword := range cleaned {
		if i > 0 && !h.wait(ctx, pause{cause: "keyword", d: h.cfg.KeywordDelay}) {
			break
		}
		result := h.Rank(ctx, productID, keyword)
		results = append(results, result)
		if result.Reason == models.ReasonUserCancelled {
			break
		}
	}
	return results, nil
}
