package scraper

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aluiziolira/go-scrape-wb/config"
	"github.com/aluiziolira/go-scrape-wb/parser"
)

// Card is the subset of the static product card used by the analyses.
type Card struct {
	ID          string
	Name        string
	Brand       string
	Category    string
	SupplierID  string
	Description string
}

// SearchQuery returns the text used to look up peers of the card: the
// category when known, otherwise the product name.
func (c *Card) SearchQuery() string {
	if c.Category != "" {
		return c.Category
	}
	return c.Name
}

// FetchCard loads the static card JSON for productID from its basket host.
func FetchCard(ctx context.Context, cfg *config.Config, fetcher Fetcher, productID string) (*Card, error) {
	cardURL, err := CardURL(cfg, productID)
	if err != nil {
		return nil, err
	}
	resp, err := fetcher.Fetch(ctx, cardURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyError(nil, resp.StatusCode)
	}

	var raw struct {
		NmID        any    `json:"nm_id"`
		Name        string `json:"imt_name"`
		Category    string `json:"subj_name"`
		Description string `json:"description"`
		Selling     struct {
			BrandName  string `json:"brand_name"`
			SupplierID any    `json:"supplier_id"`
		} `json:"selling"`
	}
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, ErrMalformed{Reason: "card_json", Detail: err.Error()}
	}

	id := parser.IDString(raw.NmID)
	if id == "" {
		id = strings.TrimSpace(productID)
	}
	return &Card{
		ID:          id,
		Name:        strings.TrimSpace(raw.Name),
		Brand:       strings.TrimSpace(raw.Selling.BrandName),
		Category:    strings.TrimSpace(raw.Category),
		SupplierID:  parser.IDString(raw.Selling.SupplierID),
		Description: raw.Description,
	}, nil
}
