package movement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind tags the origin of a movement event. Legacy single-direction transfer
// adjustments surface as KindTransfer, so callers never see which
// representation recorded a movement.
type Kind string

const (
	KindAdjustment Kind = "adjustment"
	KindTransfer   Kind = "transfer"
	KindSale       Kind = "sale"
)

// Event is one inventory movement: signed quantity at a location at a point
// in time, with a monetary value where the source recorded one.
type Event struct {
	Kind       Kind            `json:"kind"`
	Type       string          `json:"type"`
	Ref        string          `json:"ref"`
	ProductID  int64           `json:"product_id"`
	LocationID int64           `json:"location_id"`
	Qty        int64           `json:"qty"`
	Value      decimal.Decimal `json:"value"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Filter narrows the feed. Zero values match everything.
type Filter struct {
	From       time.Time
	To         time.Time
	LocationID int64
	ProductID  int64
	Kind       Kind
	Search     string
	Page       int
	PerPage    int
}

// Grouping selects the summary bucket size.
type Grouping string

const (
	GroupDaily   Grouping = "daily"
	GroupWeekly  Grouping = "weekly"
	GroupMonthly Grouping = "monthly"
)

// Valid reports whether the grouping is one of the supported buckets.
func (g Grouping) Valid() bool {
	switch g {
	case GroupDaily, GroupWeekly, GroupMonthly:
		return true
	}
	return false
}

// Group is one summary bucket: inbound and outbound unit totals plus the
// summed monetary value of its events.
type Group struct {
	Period string          `json:"period"`
	Start  time.Time       `json:"start"`
	In     int64           `json:"in"`
	Out    int64           `json:"out"`
	Value  decimal.Decimal `json:"value"`
	Count  int             `json:"count"`
}
