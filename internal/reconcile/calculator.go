package reconcile

import (
	"time"

	"github.com/google/uuid"
)

// IntakeSummary is the derived view of one intake batch: the immutable
// recorded quantity plus the sums computed from the append-only logs.
type IntakeSummary struct {
	IntakeID uuid.UUID
	// Recorded is the intake's recorded quantity, never mutated by
	// reconciliation.
	Recorded int64
	// AdjustmentSum is the signed sum of completed adjustments.
	AdjustmentSum int64
	// Allocated is the sum of completed transfer items sourced from the
	// batch.
	Allocated int64
}

// Available returns recorded plus completed adjustments.
func (s IntakeSummary) Available() int64 {
	return s.Recorded + s.AdjustmentSum
}

// WarehouseAvailable returns the quantity still sitting at the warehouse.
func (s IntakeSummary) WarehouseAvailable() int64 {
	return s.Available() - s.Allocated
}

// SnapshotInput carries everything Compute needs. All quantities are already
// summed per product; the calculator itself touches no storage.
type SnapshotInput struct {
	ProductID  int64
	LocationID int64
	IntakeID   uuid.UUID
	Intakes    []IntakeSummary
	// StorefrontOnHand is the product's total allocation across
	// storefronts. It carries no batch lineage.
	StorefrontOnHand int64
	// Sold is the unit count reported by the POS subsystem.
	Sold int64
	// Reservations is the count of active, not-yet-consumed holds.
	Reservations int64
	// Shrinkage is the positive magnitude of completed loss-category
	// adjustments.
	Shrinkage int64
	// Corrections is the signed sum of completed correction adjustments.
	Corrections int64
	// Scoped marks a batch- or single-location-filtered query, for which
	// storefront data cannot be attributed.
	Scoped bool
	AsOf   time.Time
}

// Snapshot is the reconciliation result. Derived quantities only; nothing in
// it is ever written back.
type Snapshot struct {
	ProductID          int64     `json:"product_id"`
	LocationID         int64     `json:"location_id,omitempty"`
	IntakeID           uuid.UUID `json:"intake_id,omitempty"`
	Recorded           int64     `json:"recorded"`
	Available          int64     `json:"available"`
	Allocated          int64     `json:"allocated"`
	WarehouseAvailable int64     `json:"warehouse_available"`
	StorefrontOnHand   int64     `json:"storefront_on_hand"`
	Sold               int64     `json:"sold"`
	Shrinkage          int64     `json:"shrinkage"`
	Corrections        int64     `json:"corrections"`
	Reservations       int64     `json:"reservations"`
	// Balanced reports whether the balance check holds. A mismatch is a
	// diagnostic; recorded quantities are never corrected to close it.
	Balanced   bool  `json:"balanced"`
	Difference int64 `json:"difference"`
	// Approximate marks snapshots whose storefront figures include data
	// that cannot be attributed to the query's scope.
	Approximate bool      `json:"approximate"`
	Caveat      string    `json:"caveat,omitempty"`
	AsOf        time.Time `json:"as_of"`
}

// ScopedCaveat explains the approximation on batch- or location-filtered
// snapshots. Storefront allocations are tracked per product and location
// only, so a filtered query cannot tell which batch its storefront stock
// came from.
const ScopedCaveat = "storefront on-hand carries no batch lineage; figures include unfiltered storefront data"

// Compute derives a reconciliation snapshot. Pure function: same input, same
// snapshot, no side effects.
func Compute(in SnapshotInput) Snapshot {
	snap := Snapshot{
		ProductID:        in.ProductID,
		LocationID:       in.LocationID,
		IntakeID:         in.IntakeID,
		StorefrontOnHand: in.StorefrontOnHand,
		Sold:             in.Sold,
		Shrinkage:        in.Shrinkage,
		Corrections:      in.Corrections,
		Reservations:     in.Reservations,
		AsOf:             in.AsOf,
	}
	for _, intake := range in.Intakes {
		snap.Recorded += intake.Recorded
		snap.Available += intake.Available()
		snap.Allocated += intake.Allocated
		snap.WarehouseAvailable += intake.WarehouseAvailable()
	}
	accounted := snap.WarehouseAvailable + snap.StorefrontOnHand + snap.Sold - snap.Shrinkage + snap.Corrections - snap.Reservations
	snap.Difference = accounted - snap.Recorded
	if in.Scoped {
		snap.Approximate = true
		snap.Caveat = ScopedCaveat
		return snap
	}
	snap.Balanced = snap.Difference == 0
	return snap
}
