package adjustment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stocklane/stocklane/internal/shared"
)

// Status enumerates the adjustment state machine. COMPLETED and REJECTED are
// terminal; only COMPLETED adjustments count towards availability.
type Status string

const (
	// StatusPending awaits approval.
	StatusPending Status = "PENDING"
	// StatusApproved is cleared for completion.
	StatusApproved Status = "APPROVED"
	// StatusCompleted has been applied to derived calculations.
	StatusCompleted Status = "COMPLETED"
	// StatusRejected never takes effect.
	StatusRejected Status = "REJECTED"
)

// Type enumerates adjustment categories as a closed set. Runtime strings from
// callers are validated against it; there is no dynamic dispatch.
type Type string

const (
	TypeTheft              Type = "THEFT"
	TypeDamage             Type = "DAMAGE"
	TypeExpiry             Type = "EXPIRY"
	TypeSpoilage           Type = "SPOILAGE"
	TypeWriteOff           Type = "WRITE_OFF"
	TypeLoss               Type = "LOSS"
	TypeSample             Type = "SAMPLE"
	TypeFound              Type = "FOUND"
	TypeCorrectionIncrease Type = "CORRECTION_INCREASE"
	TypeCustomerReturn     Type = "CUSTOMER_RETURN"
	TypeCorrection         Type = "CORRECTION"
	TypeRecount            Type = "RECOUNT"
	// Legacy single-direction transfers recorded before the multi-item
	// transfer engine existed. System-generated, auto-approved.
	TypeTransferIn  Type = "TRANSFER_IN"
	TypeTransferOut Type = "TRANSFER_OUT"
)

// Direction gives the semantic sign of a type.
type Direction int

const (
	// DirectionLoss stores quantities negative.
	DirectionLoss Direction = -1
	// DirectionNeutral keeps the caller's sign.
	DirectionNeutral Direction = 0
	// DirectionGain stores quantities positive.
	DirectionGain Direction = 1
)

// Rule describes the behaviour attached to a type.
type Rule struct {
	Direction Direction
	// AlwaysApprove forces the approval gate regardless of value.
	AlwaysApprove bool
	// AutoApprove skips the gate entirely (system-generated types).
	AutoApprove bool
	// Destructive types default to requiring approval below the
	// high-value threshold as well.
	Destructive bool
	// Shrinkage marks loss-category types aggregated as shrinkage.
	Shrinkage bool
}

var rules = map[Type]Rule{
	TypeTheft:              {Direction: DirectionLoss, AlwaysApprove: true, Destructive: true, Shrinkage: true},
	TypeLoss:               {Direction: DirectionLoss, AlwaysApprove: true, Destructive: true, Shrinkage: true},
	TypeWriteOff:           {Direction: DirectionLoss, AlwaysApprove: true, Destructive: true, Shrinkage: true},
	TypeDamage:             {Direction: DirectionLoss, Destructive: true, Shrinkage: true},
	TypeExpiry:             {Direction: DirectionLoss, Destructive: true, Shrinkage: true},
	TypeSpoilage:           {Direction: DirectionLoss, Destructive: true, Shrinkage: true},
	TypeSample:             {Direction: DirectionLoss, Destructive: true, Shrinkage: true},
	TypeFound:              {Direction: DirectionGain},
	TypeCorrectionIncrease: {Direction: DirectionGain},
	TypeCustomerReturn:     {Direction: DirectionGain, AutoApprove: true},
	TypeCorrection:         {Direction: DirectionNeutral},
	TypeRecount:            {Direction: DirectionNeutral, AutoApprove: true},
	TypeTransferIn:         {Direction: DirectionGain, AutoApprove: true},
	TypeTransferOut:        {Direction: DirectionLoss, AutoApprove: true},
}

// RuleFor returns the rule for a type or a validation error for unknown ones.
func RuleFor(t Type) (Rule, error) {
	rule, ok := rules[t]
	if !ok {
		return Rule{}, shared.NewValidationError("type", "unknown adjustment type %q", string(t))
	}
	return rule, nil
}

// NormalizeSign corrects the sign of qty to match the semantic direction of
// the type. A THEFT supplied as +5 is stored as -5; neutral types keep the
// caller's sign.
func NormalizeSign(t Type, qty int64) int64 {
	rule, ok := rules[t]
	if !ok {
		return qty
	}
	switch rule.Direction {
	case DirectionLoss:
		if qty > 0 {
			return -qty
		}
	case DirectionGain:
		if qty < 0 {
			return -qty
		}
	}
	return qty
}

// RequiresApproval computes the approval gate for a type and value.
// Theft/loss/write-off always gate; system-generated types never do;
// anything whose total cost exceeds the threshold gates; destructive types
// gate by default.
func RequiresApproval(t Type, totalCost, threshold decimal.Decimal) bool {
	rule, ok := rules[t]
	if !ok {
		return true
	}
	if rule.AutoApprove {
		return false
	}
	if rule.AlwaysApprove {
		return true
	}
	if threshold.IsPositive() && totalCost.GreaterThan(threshold) {
		return true
	}
	return rule.Destructive
}

// IsShrinkage reports whether the type belongs to the loss category
// aggregated as shrinkage in reconciliation.
func IsShrinkage(t Type) bool {
	return rules[t].Shrinkage
}

// IsLegacyTransfer reports whether the type is an old single-direction
// transfer record.
func IsLegacyTransfer(t Type) bool {
	return t == TypeTransferIn || t == TypeTransferOut
}

// Adjustment is one signed, approval-gated delta against an intake record.
type Adjustment struct {
	ID               uuid.UUID       `json:"id"`
	TenantID         int64           `json:"tenant_id"`
	IntakeID         uuid.UUID       `json:"intake_id"`
	Type             Type            `json:"type"`
	Qty              int64           `json:"qty"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	Reason           string          `json:"reason"`
	Reference        string          `json:"reference,omitempty"`
	Status           Status          `json:"status"`
	RequiresApproval bool            `json:"requires_approval"`
	CreatedBy        int64           `json:"created_by"`
	ApprovedBy       int64           `json:"approved_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	CompletedAt      time.Time       `json:"completed_at,omitzero"`
}

// Terminal reports whether the adjustment can never transition again.
func (a Adjustment) Terminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusRejected
}

// CreateInput describes a new adjustment.
type CreateInput struct {
	IntakeID  uuid.UUID
	Type      Type
	Qty       int64
	Reason    string
	Reference string
	// UnitCost defaults to the intake record's cost basis when nil.
	UnitCost *decimal.Decimal
}

// EditInput carries a partial edit of a PENDING adjustment.
type EditInput struct {
	Type      *Type
	Qty       *int64
	Reason    *string
	Reference *string
	UnitCost  *decimal.Decimal
}

// Filter narrows adjustment listings.
type Filter struct {
	IntakeID uuid.UUID
	Status   Status
	Type     Type
	Page     int
	PerPage  int
}
