package transfer

import (
	"strconv"

	"github.com/stocklane/stocklane/internal/shared"
)

// ValidateHeader checks the transfer-level constraints of a create request.
func ValidateHeader(input CreateInput, maxItems int) error {
	if input.SrcLocationID == 0 {
		return shared.NewValidationError("src_location_id", "source location required")
	}
	if input.DstLocationID == 0 {
		return shared.NewValidationError("dst_location_id", "destination location required")
	}
	if input.SrcLocationID == input.DstLocationID {
		return shared.NewValidationError("dst_location_id", "source and destination must differ")
	}
	return ValidateItemCount(len(input.Items), maxItems)
}

// ValidateItemCount enforces the non-empty and soft-cap rules.
func ValidateItemCount(count, maxItems int) error {
	if count == 0 {
		return shared.NewValidationError("items", "at least one item is required")
	}
	if maxItems > 0 && count > maxItems {
		return shared.NewValidationError("items", "item count %d exceeds limit %d", count, maxItems)
	}
	return nil
}

// ValidateItems checks the per-item constraints that need no repository
// access. The result mirrors the input positionally; a zero issue means the
// item is valid. Evaluation covers every item so the caller sees all
// failures at once.
func ValidateItems(items []ItemInput) ([]ItemIssue, bool) {
	issues := make([]ItemIssue, len(items))
	seen := make(map[int64]int, len(items))
	ok := true
	for i, item := range items {
		if item.ProductID == 0 {
			issues[i] = ItemIssue{Field: "product_id", Message: "product required"}
			ok = false
			continue
		}
		if prev, dup := seen[item.ProductID]; dup {
			issues[i] = ItemIssue{Field: "product_id", Message: "duplicate product, already at item " + strconv.Itoa(prev)}
			ok = false
			continue
		}
		seen[item.ProductID] = i
		if item.Qty <= 0 {
			issues[i] = ItemIssue{Field: "qty", Message: "quantity must be positive"}
			ok = false
			continue
		}
		if item.UnitCost != nil && item.UnitCost.IsNegative() {
			issues[i] = ItemIssue{Field: "unit_cost", Message: "unit cost must be >= 0"}
			ok = false
		}
	}
	return issues, ok
}
