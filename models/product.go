// Package models defines data structures for the harvester.
package models

import "fmt"

// Product is one marketplace listing as seen at harvest time.
type Product struct {
	Position      int      `csv:"position" json:"position"`
	ID            string   `csv:"id" json:"id"`
	Name          string   `csv:"name" json:"name"`
	Brand         string   `csv:"brand" json:"brand"`
	Category      string   `csv:"category" json:"category"`
	SupplierID    string   `csv:"supplier_id" json:"supplier_id,omitempty"`
	Supplier      string   `csv:"supplier" json:"supplier,omitempty"`
	URL           string   `csv:"url" json:"url"`
	Rating        float64  `csv:"rating" json:"rating"`
	ReviewCount   int      `csv:"review_count" json:"review_count"`
	ListPrice     float64  `csv:"list_price" json:"list_price"`
	SalePrice     float64  `csv:"sale_price" json:"sale_price"`
	Colors        []string `csv:"colors" json:"colors"`
	Sizes         []string `csv:"sizes" json:"sizes"`
	StockQuantity int      `csv:"stock_quantity" json:"stock_quantity"`
	Available     bool     `csv:"available" json:"available"`
	Description   string   `csv:"description" json:"description,omitempty"`
}

// ProductURL derives the public listing URL for id from pattern (a fmt
// pattern with a single %s).
func ProductURL(pattern, id string) string {
	if id == "" {
		return ""
	}
	return fmt.Sprintf(pattern, id)
}
