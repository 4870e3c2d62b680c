package transfer

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates the transfer lifecycle. COMPLETED and CANCELLED are
// terminal; IN_TRANSIT is informational and has no inventory effect.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusInTransit Status = "IN_TRANSIT"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Transfer is an atomic multi-item stock movement between two locations.
type Transfer struct {
	ID            uuid.UUID `json:"id"`
	TenantID      int64     `json:"tenant_id"`
	Reference     string    `json:"reference"`
	SrcLocationID int64     `json:"src_location_id"`
	DstLocationID int64     `json:"dst_location_id"`
	Status        Status    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	CreatedBy     int64     `json:"created_by"`
	CompletedBy   int64     `json:"completed_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	CompletedAt   time.Time `json:"completed_at,omitzero"`
	Items         []Item    `json:"items"`
}

// Terminal reports whether the transfer can never transition again.
func (t Transfer) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusCancelled
}

// Item is one product line of a transfer. IntakeID carries the source batch
// lineage for warehouse-sourced items; storefront-sourced items have none
// (allocation is tracked per product+location, not per batch).
type Item struct {
	ID         int64           `json:"id"`
	TransferID uuid.UUID       `json:"transfer_id"`
	ProductID  int64           `json:"product_id"`
	IntakeID   uuid.UUID       `json:"intake_id,omitzero"`
	Qty        int64           `json:"qty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

// ItemInput describes one requested item. IntakeID and UnitCost are
// auto-detected from the source when omitted.
type ItemInput struct {
	ProductID int64
	IntakeID  uuid.UUID
	Qty       int64
	UnitCost  *decimal.Decimal
}

// CreateInput describes a new transfer.
type CreateInput struct {
	SrcLocationID int64
	DstLocationID int64
	Reference     string
	Notes         string
	Items         []ItemInput
}

// UpdateInput replaces mutable fields of a PENDING transfer.
type UpdateInput struct {
	Notes *string
	Items []ItemInput
}

// Filter narrows transfer listings.
type Filter struct {
	Status     Status
	LocationID int64
	ProductID  int64
	Page       int
	PerPage    int
}

// ItemIssue reports validation failure of a single item. A zero value means
// the item at that position is valid, so the slice mirrors the input
// positionally and callers can pinpoint exactly which item failed.
type ItemIssue struct {
	Field     string `json:"field,omitempty"`
	Message   string `json:"message,omitempty"`
	Available int64  `json:"available,omitempty"`
	Requested int64  `json:"requested,omitempty"`
}

// OK reports whether the item passed validation.
func (i ItemIssue) OK() bool {
	return i.Field == "" && i.Message == ""
}

// ItemValidationError carries the positionally-indexed issue array for a
// rejected create/update. No transfer is persisted when it is returned.
type ItemValidationError struct {
	Items []ItemIssue
}

func (e *ItemValidationError) Error() string {
	failed := 0
	for _, issue := range e.Items {
		if !issue.OK() {
			failed++
		}
	}
	return fmt.Sprintf("transfer: %d of %d items failed validation", failed, len(e.Items))
}

// GenerateReference derives a monotonically distinguishable transfer
// reference from the creation time.
func GenerateReference(at time.Time) string {
	return fmt.Sprintf("TRF-%s-%d", at.UTC().Format("20060102"), at.UnixNano())
}
