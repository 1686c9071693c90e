package models

import "time"

// TerminalReason records why a harvest or rank lookup stopped.
type TerminalReason string

const (
	ReasonLastPageShort    TerminalReason = "last_page_short"
	ReasonEmptyPage        TerminalReason = "empty_page"
	ReasonSafetyCapReached TerminalReason = "safety_cap_reached"
	ReasonTooManyErrors    TerminalReason = "too_many_consecutive_errors"
	ReasonUserCancelled    TerminalReason = "user_cancelled"
	ReasonFound            TerminalReason = "found"
	ReasonPageCapReached   TerminalReason = "page_cap_reached"
	ReasonUnknown          TerminalReason = ""
)

// Natural reports whether the reason is a normal end of data rather than an
// early stop.
func (r TerminalReason) Natural() bool {
	switch r {
	case ReasonLastPageShort, ReasonEmptyPage, ReasonFound, ReasonPageCapReached:
		return true
	default:
		return false
	}
}

// HarvestResult holds the outcome of one catalog or search harvest. Products
// are always returned, even when the harvest stopped early.
type HarvestResult struct {
	TargetID       string
	Products       []*Product
	Reason         TerminalReason
	StartTime      time.Time
	EndTime        time.Time
	Pages          int
	Requests       int
	Errors         int
	ErrorsByType   map[string]int
	RateLimited    int
	Duplicates     int
	SkippedRecords int
}

// Partial reports whether the result may be missing records because the
// harvest stopped before the upstream ran out of pages.
func (r *HarvestResult) Partial() bool {
	return !r.Reason.Natural()
}

// Duration returns the wall time the harvest took.
func (r *HarvestResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// RankNotFound is the rank reported when the product never appeared.
const RankNotFound = 0

// RankResult is the outcome of a single keyword rank lookup.
type RankResult struct {
	ProductID    string         `json:"product_id"`
	Keyword      string         `json:"keyword"`
	Rank         int            `json:"position"`
	PagesScanned int            `json:"pages_scanned"`
	Requests     int            `json:"requests"`
	Reason       TerminalReason `json:"reason"`
}

// Found reports whether the product was located.
func (r RankResult) Found() bool {
	return r.Rank != RankNotFound
}
