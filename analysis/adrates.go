package analysis

import (
	"github.com/shopspring/decimal"

	"github.com/aluiziolira/go-scrape-wb/models"
	"github.com/aluiziolira/go-scrape-wb/parser"
)

// promotedTypes are log.tp values the search service attaches to paid
// placements.
var promotedTypes = map[string]bool{"b": true, "c": true, "d": true}

// ClassifyAds labels each raw search record as promoted or organic. A record
// is promoted when any of the placement type, a positive CPM or a campaign
// ID says so. A promo label alone is reported as a signal but does not flip
// the classification. The result is a heuristic estimate.
func ClassifyAds(query, region string, records []map[string]any, urlPattern string) *models.AdRateReport {
	report := &models.AdRateReport{
		Query:     query,
		Region:    region,
		Entries:   make([]models.AdEntry, 0, len(records)),
		Estimated: true,
	}

	var bidSum, minBid, maxBid decimal.Decimal
	bids := 0
	for i, raw := range records {
		product := parser.NormalizeProduct(raw, urlPattern)
		signals := parser.ExtractAdSignals(raw)

		entry := models.AdEntry{
			Position:        i + 1,
			ProductID:       product.ID,
			Name:            product.Name,
			Brand:           product.Brand,
			OrganicPosition: signals.OrganicPosition,
		}
		if promotedTypes[signals.Type] {
			entry.Signals = append(entry.Signals, "log.tp="+signals.Type)
		}
		if signals.CPM > 0 {
			entry.Signals = append(entry.Signals, "log.cpm")
		}
		if signals.AdvertID != "" {
			entry.Signals = append(entry.Signals, "advert_id")
		}
		entry.Promoted = len(entry.Signals) > 0
		if signals.PromoText != "" {
			entry.Signals = append(entry.Signals, "promo_text")
		}

		if entry.Promoted {
			report.Promoted++
			if signals.CPM > 0 {
				bid := decimal.NewFromFloat(signals.CPM)
				entry.EstimatedBid = bid.Round(2).InexactFloat64()
				if bids == 0 || bid.LessThan(minBid) {
					minBid = bid
				}
				if bids == 0 || bid.GreaterThan(maxBid) {
					maxBid = bid
				}
				bidSum = bidSum.Add(bid)
				bids++
			}
		} else {
			report.Organic++
		}
		report.Entries = append(report.Entries, entry)
	}

	report.Total = len(report.Entries)
	if bids > 0 {
		report.AverageBid = bidSum.Div(decimal.NewFromInt(int64(bids))).Round(2).InexactFloat64()
		report.MinBid = minBid.Round(2).InexactFloat64()
		report.MaxBid = maxBid.Round(2).InexactFloat64()
	}
	return report
}
