package models

// SellerShare is one supplier's presence among a set of competing products.
type SellerShare struct {
	SupplierID    string  `json:"supplier_id"`
	Supplier      string  `json:"supplier,omitempty"`
	Products      int     `json:"products"`
	AverageRating float64 `json:"average_rating"`
}

// CompetitorReport summarizes the peers of one product.
type CompetitorReport struct {
	ProductID      string         `json:"product_id"`
	ProductName    string         `json:"product_name,omitempty"`
	Query          string         `json:"query"`
	Competitors    int            `json:"competitors_count"`
	AveragePrice   float64        `json:"average_price"`
	MinPrice       float64        `json:"min_price"`
	MaxPrice       float64        `json:"max_price"`
	AverageRating  float64        `json:"average_rating"`
	TargetPosition int            `json:"target_position"` // 0 when the product is not among its peers
	TargetPrice    float64        `json:"target_price,omitempty"`
	TopSellers     []SellerShare  `json:"top_sellers"`
	Reason         TerminalReason `json:"terminal_reason"`
	Partial        bool           `json:"partial"`
}

// AdEntry is one search result with its promotion classification.
type AdEntry struct {
	Position        int      `json:"position"`
	ProductID       string   `json:"product_id"`
	Name            string   `json:"name"`
	Brand           string   `json:"brand"`
	Promoted        bool     `json:"promoted"`
	Signals         []string `json:"signals,omitempty"`
	EstimatedBid    float64  `json:"estimated_bid"`
	OrganicPosition int      `json:"organic_position,omitempty"`
}

// AdRateReport classifies one search page into organic and promoted
// results. Classification and bids are estimates.
type AdRateReport struct {
	Query      string         `json:"query"`
	Region     string         `json:"region"`
	Total      int            `json:"total"`
	Promoted   int            `json:"promoted"`
	Organic    int            `json:"organic"`
	AverageBid float64        `json:"average_bid"`
	MinBid     float64        `json:"min_bid"`
	MaxBid     float64        `json:"max_bid"`
	Entries    []AdEntry      `json:"entries"`
	Estimated  bool           `json:"estimated"`
	Reason     TerminalReason `json:"terminal_reason,omitempty"`
}
