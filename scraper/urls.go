package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-wb/config"
)

// TargetKind tells the catalog endpoint which identifier it is given.
type TargetKind string

const (
	TargetSeller TargetKind = "seller"
	TargetBrand  TargetKind = "brand"
)

// Target is a resolved catalog owner.
type Target struct {
	ID   string     `json:"id"`
	Kind TargetKind `json:"kind"`
}

func (t Target) String() string {
	return string(t.Kind) + ":" + t.ID
}

var productIDPattern = regexp.MustCompile(`/catalog/(\d+)(?:/|$)`)

// ProductIDFromURL extracts the numeric product ID from a product page URL.
// A bare numeric ID is accepted as well.
func ProductIDFromURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidProductURL
	}
	if _, err := strconv.ParseUint(raw, 10, 64); err == nil {
		return raw, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidProductURL, err)
	}
	match := productIDPattern.FindStringSubmatch(parsed.Path)
	if match == nil {
		return "", ErrInvalidProductURL
	}
	return match[1], nil
}

func withQuery(base string, params url.Values) string {
	parsed, err := url.Parse(base)
	if err != nil {
		return base + "?" + params.Encode()
	}
	query := parsed.Query()
	for key, values := range params {
		query[key] = values
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func commonParams(cfg *config.Config, dest string, page int) url.Values {
	if dest == "" {
		dest = cfg.Destination
	}
	params := url.Values{}
	params.Set("appType", cfg.AppType)
	params.Set("curr", cfg.Currency)
	params.Set("dest", dest)
	params.Set("sort", cfg.Sort)
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	return params
}

// CatalogURL builds the catalog page URL for target.
func CatalogURL(cfg *config.Config, target Target, page int) string {
	params := commonParams(cfg, "", page)
	if target.Kind == TargetBrand {
		params.Set("brand", target.ID)
		return withQuery(cfg.BrandCatalogURL, params)
	}
	params.Set("supplier", target.ID)
	return withQuery(cfg.SellerCatalogURL, params)
}

// SearchURL builds the keyword search page URL. An empty dest uses the
// configured default region.
func SearchURL(cfg *config.Config, query, dest string, page int) string {
	params := commonParams(cfg, dest, page)
	params.Set("query", query)
	params.Set("resultset", "catalog")
	params.Set("spp", "30")
	params.Set("suppressSpellcheck", "false")
	return withQuery(cfg.SearchURL, params)
}

// basketThresholds maps the product volume (id / 100000) to the static
// basket host serving its card. Volumes past the last threshold live on
// fallbackBasket.
var basketThresholds = []int{143, 287, 431, 719, 1007, 1061, 1115, 1169, 1313, 1601, 1655, 1919, 2045, 2189, 2405, 2621, 2837}

const fallbackBasket = 18

func basketNumber(vol int) int {
	for i, limit := range basketThresholds {
		if vol <= limit {
			return i + 1
		}
	}
	return fallbackBasket
}

// CardURL builds the static card JSON URL for a numeric product ID.
func CardURL(cfg *config.Config, productID string) (string, error) {
	id, err := strconv.Atoi(productID)
	if err != nil || id <= 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidProductURL, productID)
	}
	vol := id / 100000
	part := id / 1000
	host := fmt.Sprintf(cfg.BasketHostURL, basketNumber(vol))
	return fmt.Sprintf("%s/vol%d/part%d/%d/info/ru/card.json", host, vol, part, id), nil
}
