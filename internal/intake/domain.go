package intake

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Record is the immutable intake of one stock batch at a warehouse. The
// recorded quantity is set once on receipt; the only legal mutation path is
// the audited physical recount, which itself leaves an adjustment behind.
type Record struct {
	ID          uuid.UUID       `json:"id"`
	TenantID    int64           `json:"tenant_id"`
	ProductID   int64           `json:"product_id"`
	LocationID  int64           `json:"location_id"`
	RecordedQty int64           `json:"recorded_qty"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Reference   string          `json:"reference,omitempty"`
	CreatedBy   int64           `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CreateInput describes a stock receipt.
type CreateInput struct {
	ProductID  int64
	LocationID int64
	Qty        int64
	UnitCost   decimal.Decimal
	Reference  string
}

// RecountInput describes a user-confirmed physical recount.
type RecountInput struct {
	IntakeID   uuid.UUID
	CountedQty int64
	Reason     string
	Confirm    bool
}

// Filter narrows intake listings.
type Filter struct {
	ProductID  int64
	LocationID int64
	Page       int
	PerPage    int
}
