package intake

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stocklane/stocklane/internal/directory"
	"github.com/stocklane/stocklane/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID int64, id uuid.UUID) (Record, error)
	List(ctx context.Context, tenantID int64, filter Filter) ([]Record, shared.Pagination, error)
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	Insert(ctx context.Context, rec Record) error
	GetForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (Record, error)
	UpdateRecordedQty(ctx context.Context, tenantID int64, id uuid.UUID, qty int64) error
	InsertRecountAdjustment(ctx context.Context, rec Record, delta int64, reason string, actorID int64) (uuid.UUID, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// DirectoryPort resolves locations and products.
type DirectoryPort interface {
	GetLocation(ctx context.Context, tenantID, id int64) (directory.Location, error)
	GetProduct(ctx context.Context, tenantID, id int64) (directory.Product, error)
}

// Service coordinates intake operations.
type Service struct {
	repo  RepositoryPort
	dir   DirectoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, dir DirectoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, dir: dir, audit: audit}
}

// Create records a stock receipt at a warehouse.
func (s *Service) Create(ctx context.Context, scope shared.Scope, input CreateInput) (Record, error) {
	if err := scope.Validate(); err != nil {
		return Record{}, err
	}
	if input.Qty <= 0 {
		return Record{}, shared.NewValidationError("qty", "quantity must be positive")
	}
	if input.UnitCost.IsNegative() {
		return Record{}, shared.NewValidationError("unit_cost", "unit cost must be >= 0")
	}
	if _, err := s.dir.GetProduct(ctx, scope.TenantID, input.ProductID); err != nil {
		return Record{}, err
	}
	loc, err := s.dir.GetLocation(ctx, scope.TenantID, input.LocationID)
	if err != nil {
		return Record{}, err
	}
	if loc.Kind != directory.KindWarehouse {
		return Record{}, shared.NewValidationError("location_id", "intake must target a warehouse, %s is %s", loc.Code, loc.Kind)
	}

	now := time.Now().UTC()
	rec := Record{
		ID:          uuid.New(),
		TenantID:    scope.TenantID,
		ProductID:   input.ProductID,
		LocationID:  input.LocationID,
		RecordedQty: input.Qty,
		UnitCost:    input.UnitCost,
		Reference:   input.Reference,
		CreatedBy:   scope.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, rec)
	})
	if err != nil {
		return Record{}, err
	}
	s.recordAudit(ctx, scope, "intake:CREATE", rec.ID, map[string]any{
		"product_id":  rec.ProductID,
		"location_id": rec.LocationID,
		"qty":         rec.RecordedQty,
	})
	return rec, nil
}

// Get returns one intake record.
func (s *Service) Get(ctx context.Context, scope shared.Scope, id uuid.UUID) (Record, error) {
	if err := scope.Validate(); err != nil {
		return Record{}, err
	}
	return s.repo.Get(ctx, scope.TenantID, id)
}

// List returns intake records matching the filter.
func (s *Service) List(ctx context.Context, scope shared.Scope, filter Filter) ([]Record, shared.Pagination, error) {
	if err := scope.Validate(); err != nil {
		return nil, shared.Pagination{}, err
	}
	return s.repo.List(ctx, scope.TenantID, filter)
}

// Recount applies a user-confirmed physical recount. It is the single write
// path to RecordedQty; the change is logged as a completed RECOUNT adjustment
// so the audit trail explains the drift.
func (s *Service) Recount(ctx context.Context, scope shared.Scope, input RecountInput) (Record, error) {
	if err := scope.Validate(); err != nil {
		return Record{}, err
	}
	if !input.Confirm {
		return Record{}, shared.NewValidationError("confirm", "physical recount requires explicit confirmation")
	}
	if input.Reason == "" {
		return Record{}, shared.NewValidationError("reason", "reason required")
	}
	if input.CountedQty < 0 {
		return Record{}, shared.NewValidationError("counted_qty", "counted quantity must be >= 0")
	}

	var updated Record
	var adjustmentID uuid.UUID
	var delta int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetForUpdate(ctx, scope.TenantID, input.IntakeID)
		if err != nil {
			return err
		}
		delta = input.CountedQty - rec.RecordedQty
		if delta == 0 {
			updated = rec
			return nil
		}
		if err := tx.UpdateRecordedQty(ctx, scope.TenantID, rec.ID, input.CountedQty); err != nil {
			return err
		}
		adjustmentID, err = tx.InsertRecountAdjustment(ctx, rec, delta, input.Reason, scope.ActorID)
		if err != nil {
			return err
		}
		rec.RecordedQty = input.CountedQty
		rec.UpdatedAt = time.Now().UTC()
		updated = rec
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	if delta != 0 {
		s.recordAudit(ctx, scope, "intake:RECOUNT", updated.ID, map[string]any{
			"counted_qty":   input.CountedQty,
			"delta":         delta,
			"adjustment_id": adjustmentID.String(),
			"reason":        input.Reason,
		})
	}
	return updated, nil
}

func (s *Service) recordAudit(ctx context.Context, scope shared.Scope, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: scope.TenantID,
		ActorID:  scope.ActorID,
		Action:   action,
		Entity:   "intake_record",
		EntityID: id.String(),
		Meta:     meta,
	})
}
