// Package analysis derives competitor and advertising summaries from
// harvested search results.
package analysis

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/aluiziolira/go-scrape-wb/models"
)

// DefaultTopSellers is how many suppliers a competitor report lists.
const DefaultTopSellers = 5

// SummarizeCompetitors builds a report for productID from the peers found by
// searching query. Prices and ratings of zero are treated as unknown and left
// out of the averages.
func SummarizeCompetitors(productID, query string, peers *models.HarvestResult, topN int) *models.CompetitorReport {
	report := &models.CompetitorReport{
		ProductID:  productID,
		Query:      query,
		TopSellers: []models.SellerShare{},
	}
	if peers == nil {
		return report
	}
	report.Reason = peers.Reason
	report.Partial = peers.Partial()

	var (
		priceSum, ratingSum decimal.Decimal
		minPrice, maxPrice  decimal.Decimal
		priced, rated       int
	)
	sellers := map[string]*sellerAcc{}
	for _, p := range peers.Products {
		if p.ID == productID {
			report.TargetPosition = p.Position
			report.TargetPrice = p.SalePrice
			report.ProductName = p.Name
			continue
		}
		report.Competitors++

		if price := effectivePrice(p); price.IsPositive() {
			if priced == 0 || price.LessThan(minPrice) {
				minPrice = price
			}
			if priced == 0 || price.GreaterThan(maxPrice) {
				maxPrice = price
			}
			priceSum = priceSum.Add(price)
			priced++
		}
		if p.Rating > 0 {
			ratingSum = ratingSum.Add(decimal.NewFromFloat(p.Rating))
			rated++
		}
		if p.SupplierID != "" {
			acc, ok := sellers[p.SupplierID]
			if !ok {
				acc = &sellerAcc{share: models.SellerShare{SupplierID: p.SupplierID}, first: p.Position}
				sellers[p.SupplierID] = acc
			}
			acc.add(p)
		}
	}

	if priced > 0 {
		report.AveragePrice = priceSum.Div(decimal.NewFromInt(int64(priced))).Round(2).InexactFloat64()
		report.MinPrice = minPrice.Round(2).InexactFloat64()
		report.MaxPrice = maxPrice.Round(2).InexactFloat64()
	}
	if rated > 0 {
		report.AverageRating = ratingSum.Div(decimal.NewFromInt(int64(rated))).Round(2).InexactFloat64()
	}
	report.TopSellers = topSellers(sellers, topN)
	return report
}

// effectivePrice is the sale price, or the list price when no discount is
// known.
func effectivePrice(p *models.Product) decimal.Decimal {
	if p.SalePrice > 0 {
		return decimal.NewFromFloat(p.SalePrice)
	}
	return decimal.NewFromFloat(p.ListPrice)
}

type sellerAcc struct {
	share     models.SellerShare
	first     int
	ratingSum decimal.Decimal
	rated     int
}

func (a *sellerAcc) add(p *models.Product) {
	a.share.Products++
	if a.share.Supplier == "" {
		a.share.Supplier = p.Supplier
	}
	if p.Rating > 0 {
		a.ratingSum = a.ratingSum.Add(decimal.NewFromFloat(p.Rating))
		a.rated++
	}
}

// topSellers orders suppliers by product count, breaking ties by who
// appears first in the results.
func topSellers(sellers map[string]*sellerAcc, topN int) []models.SellerShare {
	if topN <= 0 {
		topN = DefaultTopSellers
	}
	accs := make([]*sellerAcc, 0, len(sellers))
	for _, acc := range sellers {
		accs = append(accs, acc)
	}
	sort.Slice(accs, func(i, j int) bool {
		if accs[i].share.Products != accs[j].share.Products {
			return accs[i].share.Products > accs[j].share.Products
		}
		return accs[i].first < accs[j].first
	})
	if len(accs) > topN {
		accs = accs[:topN]
	}

	out := make([]models.SellerShare, 0, len(accs))
	for _, acc := range accs {
		share := acc.share
		if acc.rated > 0 {
			share.AverageRating = acc.ratingSum.Div(decimal.NewFromInt(int64(acc.rated))).Round(2).InexactFloat64()
		}
		out = append(out, share)
	}
	return out
}
