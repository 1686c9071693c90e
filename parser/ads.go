package parser

// AdSignals are the promotion hints found on a raw search record. None of
// them is authoritative; they are inputs to a heuristic.
type AdSignals struct {
	// Type is log.tp, the placement type the search service reports.
	Type string
	// CPM is log.cpm, the advertiser bid per thousand impressions.
	CPM float64
	// AdvertID is the campaign identifier when present.
	AdvertID string
	// PromoText is a promotional label shown on the card.
	PromoText string
	// OrganicPosition is log.position, the rank the product would hold
	// without promotion.
	OrganicPosition int
}

// ExtractAdSignals reads promotion hints from raw. Missing fields yield zero
// values.
func ExtractAdSignals(raw map[string]any) AdSignals {
	var s AdSignals
	if raw == nil {
		return s
	}
	if meta, ok := asObject(raw["log"]); ok {
		s.Type = firstString(meta, "tp")
		if cpm, ok := asFloat(meta["cpm"]); ok && cpm > 0 {
			s.CPM = cpm
		}
		s.OrganicPosition = firstPositiveInt(meta, "position")
		if id := firstPositiveInt(meta, "advertId"); id > 0 {
			s.AdvertID = IDString(meta["advertId"])
		}
	}
	if s.AdvertID == "" {
		for _, key := range []string{"advertId", "adId"} {
			if n, ok := asInt(raw[key]); ok && n > 0 {
				s.AdvertID = IDString(raw[key])
				break
			}
		}
	}
	s.PromoText = firstString(raw, "promoTextCard", "promoTextCat")
	return s
}
