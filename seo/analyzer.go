package seo

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aluiziolira/go-scrape-wb/config"
)

// DefaultKeywordLimit is how many keywords a report lists.
const DefaultKeywordLimit = 15

// Report is the result of analyzing one description.
type Report struct {
	ProductID         string    `json:"product_id"`
	ProductName       string    `json:"product_name,omitempty"`
	Description       string    `json:"description"`
	DescriptionSource string    `json:"description_source,omitempty"`
	Length            int       `json:"length"`
	Keywords          []Keyword `json:"keywords"`
	Recommendations   []string  `json:"recommendations"`
	Rewrite           string    `json:"rewrite"`
	RewriteSource     string    `json:"rewrite_source"`
}

// Analyzer extracts keywords, recommends changes and rewrites descriptions.
// The primary rewriter may fail; the local fallback never does.
type Analyzer struct {
	primary  Rewriter
	fallback Rewriter
	limit    int
	logger   *slog.Logger
}

// NewAnalyzer returns an analyzer using primary and falling back to the
// local rewriter. primary may be nil.
func NewAnalyzer(primary Rewriter) *Analyzer {
	return &Analyzer{
		primary:  primary,
		fallback: LocalRewriter{},
		limit:    DefaultKeywordLimit,
		logger:   slog.Default().With(slog.String("component", "seo")),
	}
}

// NewAnalyzerFromConfig enables the LLM rewriter when an endpoint is set.
func NewAnalyzerFromConfig(cfg *config.Config, client *http.Client) *Analyzer {
	if cfg.LLMEndpoint == "" {
		return NewAnalyzer(nil)
	}
	return NewAnalyzer(NewLLMRewriter(cfg.LLMEndpoint, cfg.LLMModel, cfg.LLMAPIKey, cfg.LLMTimeout, client))
}

// Analyze builds a report for description. It always returns a report.
func (a *Analyzer) Analyze(ctx context.Context, productID, productName, description string) *Report {
	keywords := ExtractKeywords(description, a.limit)
	report := &Report{
		ProductID:       productID,
		ProductName:     productName,
		Description:     description,
		Length:          len([]rune(description)),
		Keywords:        keywords,
		Recommendations: Recommend(description, productName, keywords),
	}
	if report.Recommendations == nil {
		report.Recommendations = []string{}
	}

	req := RewriteRequest{ProductName: productName, Description: description, Keywords: keywords}
	if a.primary != nil {
		text, err := a.primary.Rewrite(ctx, req)
		if err == nil {
			report.Rewrite, report.RewriteSource = text, a.primary.Name()
			return report
		}
		a.logger.Warn("rewrite failed, using local fallback",
			slog.String("rewriter", a.primary.Name()),
			slog.String("product_id", productID),
			slog.Any("error", err),
		)
	}
	// LocalRewriter never returns an error.
	report.Rewrite, _ = a.fallback.Rewrite(ctx, req)
	report.RewriteSource = a.fallback.Name()
	return report
}
