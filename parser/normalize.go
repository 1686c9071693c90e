// Package parser turns raw upstream pages into validated canonical products.
package parser

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aluiziolira/go-scrape-wb/models"
)

var hundred = decimal.NewFromInt(100)

// alternateStockKeys are tried in order when sizes[].stocks[] yields nothing.
var alternateStockKeys = []string{"qty", "quantity", "volume", "totalQuantity"}

// NormalizeProduct maps one raw upstream record to a Product. It is total:
// missing or wrong-typed fields degrade to zero values. urlPattern is a fmt
// pattern with a single %s for the product ID.
func NormalizeProduct(raw map[string]any, urlPattern string) *models.Product {
	p := &models.Product{
		ID:         IDString(raw["id"]),
		Name:       firstString(raw, "name"),
		Brand:      firstString(raw, "brand"),
		Category:   firstString(raw, "subjectName", "entity"),
		SupplierID: IDString(raw["supplierId"]),
		Supplier:   firstString(raw, "supplier"),
	}
	if p.ID == "" {
		p.ID = IDString(raw["nmId"])
	}
	p.URL = models.ProductURL(urlPattern, p.ID)

	p.Rating = clampRating(raw)
	p.ReviewCount = firstPositiveInt(raw, "feedbacks", "nmFeedbacks")

	p.ListPrice, p.SalePrice = prices(raw)
	p.Colors = colorNames(raw)
	p.Sizes = sizeNames(raw)
	p.StockQuantity, p.Available = resolveStock(raw)
	p.Description = firstString(raw, "description")

	return p
}

// ValidateProduct rejects records that cannot be exported or de-duplicated.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("product missing id (name %q)", p.Name)
	}
	return nil
}

// MinorUnits converts an upstream kopeck amount to roubles. Missing or
// non-numeric values yield 0.
func MinorUnits(v any) float64 {
	d, ok := asDecimal(v)
	if !ok {
		return 0
	}
	return d.Div(hundred).InexactFloat64()
}

func prices(raw map[string]any) (list, sale float64) {
	list = MinorUnits(raw["priceU"])
	sale = MinorUnits(raw["salePriceU"])
	if list != 0 || sale != 0 {
		return list, sale
	}

	// Newer search responses only carry prices per size.
	sizes := asList(raw["sizes"])
	if len(sizes) == 0 {
		return 0, 0
	}
	size, ok := asObject(sizes[0])
	if !ok {
		return 0, 0
	}
	price, ok := asObject(size["price"])
	if !ok {
		return 0, 0
	}
	return MinorUnits(price["basic"]), MinorUnits(price["product"])
}

func clampRating(raw map[string]any) float64 {
	for _, key := range []string{"reviewRating", "rating"} {
		r, ok := asFloat(raw[key])
		if !ok {
			continue
		}
		switch {
		case r < 0:
			return 0
		case r > 5:
			return 5
		default:
			return r
		}
	}
	return 0
}

func colorNames(raw map[string]any) []string {
	var out []string
	for _, item := range asList(raw["colors"]) {
		color, ok := asObject(item)
		if !ok {
			continue
		}
		if name := firstString(color, "name"); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func sizeNames(raw map[string]any) []string {
	var out []string
	for _, item := range asList(raw["sizes"]) {
		size, ok := asObject(item)
		if !ok {
			continue
		}
		if name := firstString(size, "origName", "name"); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// resolveStock sums sizes[].stocks[].qty, then falls back to the first
// positive top-level quantity field.
func resolveStock(raw map[string]any) (int, bool) {
	total := 0
	available := false
	for _, item := range asList(raw["sizes"]) {
		size, ok := asObject(item)
		if !ok {
			continue
		}
		if asBool(size["available"]) {
			available = true
		}
		for _, entry := range asList(size["stocks"]) {
			stock, ok := asObject(entry)
			if !ok {
				continue
			}
			if qty, ok := asInt(stock["qty"]); ok && qty > 0 {
				total += qty
			}
		}
	}
	if total > 0 {
		return total, true
	}

	if qty := firstPositiveInt(raw, alternateStockKeys...); qty > 0 {
		return qty, true
	}
	return 0, available
}
