package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stocklane/stocklane/internal/shared"
)

// Query selects what to reconcile. LocationID and IntakeID are optional; when
// either is set the snapshot is scoped and flagged approximate.
type Query struct {
	ProductID  int64
	LocationID int64
	IntakeID   uuid.UUID
}

// RepositoryPort runs the read queries inside one consistent snapshot so a
// transfer completing mid-query cannot show half its items.
type RepositoryPort interface {
	WithReadTx(ctx context.Context, fn func(context.Context, TxReader) error) error
}

// TxReader exposes the read-side queries used per snapshot.
type TxReader interface {
	IntakeSummaries(ctx context.Context, tenantID, productID, locationID int64, intakeID uuid.UUID) ([]IntakeSummary, error)
	StorefrontOnHand(ctx context.Context, tenantID, productID int64) (int64, error)
	ShrinkageAndCorrections(ctx context.Context, tenantID, productID, locationID int64, intakeID uuid.UUID) (shrinkage, corrections int64, err error)
}

// SalesPort reads sale-consumption figures reported by the POS subsystem.
type SalesPort interface {
	Totals(ctx context.Context, tenantID, productID, locationID int64) (sold, reservations int64, err error)
}

// Service assembles reconciliation snapshots. It only ever reads.
type Service struct {
	repo  RepositoryPort
	sales SalesPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, sales SalesPort) *Service {
	return &Service{repo: repo, sales: sales}
}

// Get derives the reconciliation snapshot for a product. Queries scoped to a
// batch or a single location are answered but flagged approximate, since
// storefront allocations carry no batch lineage to filter by.
func (s *Service) Get(ctx context.Context, scope shared.Scope, q Query) (Snapshot, error) {
	if err := scope.Validate(); err != nil {
		return Snapshot{}, err
	}
	if q.ProductID == 0 {
		return Snapshot{}, shared.NewValidationError("product_id", "product required")
	}

	input := SnapshotInput{
		ProductID:  q.ProductID,
		LocationID: q.LocationID,
		IntakeID:   q.IntakeID,
		Scoped:     q.LocationID != 0 || q.IntakeID != uuid.Nil,
		AsOf:       time.Now().UTC(),
	}
	err := s.repo.WithReadTx(ctx, func(ctx context.Context, tx TxReader) error {
		intakes, err := tx.IntakeSummaries(ctx, scope.TenantID, q.ProductID, q.LocationID, q.IntakeID)
		if err != nil {
			return err
		}
		if len(intakes) == 0 {
			return &shared.NotFoundError{Entity: "intake record", ID: "product"}
		}
		input.Intakes = intakes

		input.StorefrontOnHand, err = tx.StorefrontOnHand(ctx, scope.TenantID, q.ProductID)
		if err != nil {
			return err
		}
		input.Shrinkage, input.Corrections, err = tx.ShrinkageAndCorrections(ctx, scope.TenantID, q.ProductID, q.LocationID, q.IntakeID)
		return err
	})
	if err != nil {
		return Snapshot{}, err
	}

	if s.sales != nil {
		sold, reservations, err := s.sales.Totals(ctx, scope.TenantID, q.ProductID, q.LocationID)
		if err != nil {
			return Snapshot{}, err
		}
		input.Sold = sold
		input.Reservations = reservations
	}
	return Compute(input), nil
}
