package adjustment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stocklane/stocklane/internal/shared"
)

// IntakeRef is the slice of an intake record the ledger needs while holding
// its row lock.
type IntakeRef struct {
	ID          uuid.UUID
	TenantID    int64
	ProductID   int64
	LocationID  int64
	RecordedQty int64
	UnitCost    decimal.Decimal
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID int64, id uuid.UUID) (Adjustment, error)
	List(ctx context.Context, tenantID int64, filter Filter) ([]Adjustment, shared.Pagination, error)
}

// TxRepository exposes transactional operations used by the service. Locking
// the intake row serialises completion checks per intake record, so two
// concurrent completions can never both pass a stale availability check.
type TxRepository interface {
	GetIntakeForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (IntakeRef, error)
	GetForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (Adjustment, error)
	Insert(ctx context.Context, adj Adjustment) error
	Update(ctx context.Context, adj Adjustment) error
	SumCompleted(ctx context.Context, tenantID int64, intakeID uuid.UUID) (int64, error)
	SumAllocated(ctx context.Context, tenantID int64, intakeID uuid.UUID) (int64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort records approval history.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// MetricsPort counts ledger outcomes.
type MetricsPort interface {
	CompletionRecorded(entity, outcome string)
	RetryRecorded()
}

// ServiceConfig groups settings.
type ServiceConfig struct {
	// ApprovalThreshold is the total cost above which any adjustment
	// requires approval.
	ApprovalThreshold decimal.Decimal
}

// Service coordinates the adjustment ledger.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	approvals ApprovalPort
	metrics   MetricsPort
	threshold decimal.Decimal
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, approvals ApprovalPort, metrics MetricsPort, cfg ServiceConfig) *Service {
	return &Service{repo: repo, audit: audit, approvals: approvals, metrics: metrics, threshold: cfg.ApprovalThreshold}
}

// Create records a new adjustment. The sign of the quantity is normalised to
// the type's semantic direction rather than rejected. Adjustments that need
// no approval are created APPROVED and completed in the same transaction;
// when that completion fails the availability check the adjustment stays
// APPROVED and the error is returned alongside it.
func (s *Service) Create(ctx context.Context, scope shared.Scope, input CreateInput) (Adjustment, error) {
	if err := scope.Validate(); err != nil {
		return Adjustment{}, err
	}
	if input.Qty == 0 {
		return Adjustment{}, shared.NewValidationError("qty", "quantity must be non zero")
	}
	if input.Reason == "" {
		return Adjustment{}, shared.NewValidationError("reason", "reason required")
	}
	if _, err := RuleFor(input.Type); err != nil {
		return Adjustment{}, err
	}
	if input.UnitCost != nil && input.UnitCost.IsNegative() {
		return Adjustment{}, shared.NewValidationError("unit_cost", "unit cost must be >= 0")
	}

	var adj Adjustment
	var completionErr error
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		intake, err := tx.GetIntakeForUpdate(ctx, scope.TenantID, input.IntakeID)
		if err != nil {
			return err
		}
		unitCost := intake.UnitCost
		if input.UnitCost != nil {
			unitCost = *input.UnitCost
		}
		qty := NormalizeSign(input.Type, input.Qty)
		now := time.Now().UTC()
		adj = Adjustment{
			ID:        uuid.New(),
			TenantID:  scope.TenantID,
			IntakeID:  intake.ID,
			Type:      input.Type,
			Qty:       qty,
			UnitCost:  unitCost,
			TotalCost: totalCost(unitCost, qty),
			Reason:    input.Reason,
			Reference: input.Reference,
			Status:    StatusPending,
			CreatedBy: scope.ActorID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		adj.RequiresApproval = RequiresApproval(adj.Type, adj.TotalCost, s.threshold)
		if !adj.RequiresApproval {
			adj.Status = StatusApproved
			adj.ApprovedBy = scope.ActorID
		}
		if err := tx.Insert(ctx, adj); err != nil {
			return err
		}
		if adj.Status == StatusApproved {
			completionErr = s.completeLocked(ctx, tx, &adj, intake)
			if completionErr != nil && !isAvailabilityError(completionErr) {
				return completionErr
			}
		}
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}

	s.recordApproval(ctx, scope, adj, initialApprovalAction(adj))
	s.recordAudit(ctx, scope, "adjustment:CREATE", adj, map[string]any{
		"intake_id": adj.IntakeID.String(),
		"type":      string(adj.Type),
		"qty":       adj.Qty,
		"status":    string(adj.Status),
	})
	return adj, completionErr
}

// Approve moves a PENDING adjustment to APPROVED and immediately attempts
// completion; a failed availability check leaves it APPROVED and retryable.
func (s *Service) Approve(ctx context.Context, scope shared.Scope, id uuid.UUID) (Adjustment, error) {
	if err := scope.Validate(); err != nil {
		return Adjustment{}, err
	}
	var adj Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, scope.TenantID, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return &shared.StateError{Entity: "adjustment", Action: "approve", Current: string(current.Status)}
		}
		current.Status = StatusApproved
		current.ApprovedBy = scope.ActorID
		current.UpdatedAt = time.Now().UTC()
		if err := tx.Update(ctx, current); err != nil {
			return err
		}
		adj = current
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.recordApproval(ctx, scope, adj, shared.ApprovalApprove)
	s.recordAudit(ctx, scope, "adjustment:APPROVE", adj, nil)

	completed, err := s.Complete(ctx, scope, id)
	if err != nil {
		return adj, err
	}
	return completed, nil
}

// Reject terminates a PENDING adjustment with no quantity effect, ever.
func (s *Service) Reject(ctx context.Context, scope shared.Scope, id uuid.UUID, note string) (Adjustment, error) {
	if err := scope.Validate(); err != nil {
		return Adjustment{}, err
	}
	var adj Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, scope.TenantID, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return &shared.StateError{Entity: "adjustment", Action: "reject", Current: string(current.Status)}
		}
		current.Status = StatusRejected
		current.ApprovedBy = scope.ActorID
		current.UpdatedAt = time.Now().UTC()
		if err := tx.Update(ctx, current); err != nil {
			return err
		}
		adj = current
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.recordApproval(ctx, scope, adj, shared.ApprovalReject)
	s.recordAudit(ctx, scope, "adjustment:REJECT", adj, map[string]any{"note": note})
	return adj, nil
}

// Complete applies an APPROVED adjustment to derived calculations after
// verifying availability under the intake row lock. A lost race is retried
// once before surfacing a ConcurrencyError.
func (s *Service) Complete(ctx context.Context, scope shared.Scope, id uuid.UUID) (Adjustment, error) {
	if err := scope.Validate(); err != nil {
		return Adjustment{}, err
	}
	adj, err := s.completeOnce(ctx, scope, id)
	if shared.IsRetryable(err) {
		if s.metrics != nil {
			s.metrics.RetryRecorded()
		}
		adj, err = s.completeOnce(ctx, scope, id)
	}
	if err != nil {
		return adj, err
	}
	s.recordAudit(ctx, scope, "adjustment:COMPLETE", adj, map[string]any{"qty": adj.Qty})
	return adj, nil
}

func (s *Service) completeOnce(ctx context.Context, scope shared.Scope, id uuid.UUID) (Adjustment, error) {
	var adj Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, scope.TenantID, id)
		if err != nil {
			return err
		}
		if current.Status != StatusApproved {
			return &shared.StateError{Entity: "adjustment", Action: "complete", Current: string(current.Status)}
		}
		intake, err := tx.GetIntakeForUpdate(ctx, scope.TenantID, current.IntakeID)
		if err != nil {
			return err
		}
		if err := s.completeLocked(ctx, tx, &current, intake); err != nil {
			return err
		}
		adj = current
		return nil
	})
	if err != nil {
		if s.metrics != nil && isAvailabilityError(err) {
			s.metrics.CompletionRecorded("adjustment", "insufficient")
		}
		return Adjustment{}, err
	}
	if s.metrics != nil {
		s.metrics.CompletionRecorded("adjustment", "completed")
	}
	return adj, nil
}

// completeLocked runs the availability guard and flips the status. Callers
// must hold the intake row lock. The adjustment stays APPROVED when the guard
// fails, so completion remains retryable rather than corrupting state.
func (s *Service) completeLocked(ctx context.Context, tx TxRepository, adj *Adjustment, intake IntakeRef) error {
	adjSum, err := tx.SumCompleted(ctx, adj.TenantID, adj.IntakeID)
	if err != nil {
		return err
	}
	allocated, err := tx.SumAllocated(ctx, adj.TenantID, adj.IntakeID)
	if err != nil {
		return err
	}
	available := intake.RecordedQty + adjSum
	newAvailable := available + adj.Qty
	if newAvailable < 0 || newAvailable < allocated {
		return &shared.InsufficientAvailabilityError{
			IntakeID:  adj.IntakeID.String(),
			ItemIndex: -1,
			Recorded:  intake.RecordedQty,
			Available: available,
			Allocated: allocated,
			Requested: adj.Qty,
		}
	}
	now := time.Now().UTC()
	adj.Status = StatusCompleted
	adj.CompletedAt = now
	adj.UpdatedAt = now
	return tx.Update(ctx, *adj)
}

// Edit changes a PENDING adjustment; total cost and the approval flag are
// recomputed from the edited values. Any other status fails with a state
// error naming it.
func (s *Service) Edit(ctx context.Context, scope shared.Scope, id uuid.UUID, input EditInput) (Adjustment, error) {
	if err := scope.Validate(); err != nil {
		return Adjustment{}, err
	}
	var adj Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, scope.TenantID, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return &shared.StateError{Entity: "adjustment", Action: "edit", Current: string(current.Status)}
		}
		if input.Type != nil {
			if _, err := RuleFor(*input.Type); err != nil {
				return err
			}
			current.Type = *input.Type
		}
		if input.Qty != nil {
			if *input.Qty == 0 {
				return shared.NewValidationError("qty", "quantity must be non zero")
			}
			current.Qty = *input.Qty
		}
		if input.Reason != nil {
			if *input.Reason == "" {
				return shared.NewValidationError("reason", "reason required")
			}
			current.Reason = *input.Reason
		}
		if input.Reference != nil {
			current.Reference = *input.Reference
		}
		if input.UnitCost != nil {
			if input.UnitCost.IsNegative() {
				return shared.NewValidationError("unit_cost", "unit cost must be >= 0")
			}
			current.UnitCost = *input.UnitCost
		}
		current.Qty = NormalizeSign(current.Type, current.Qty)
		current.TotalCost = totalCost(current.UnitCost, current.Qty)
		current.RequiresApproval = RequiresApproval(current.Type, current.TotalCost, s.threshold)
		current.UpdatedAt = time.Now().UTC()
		if err := tx.Update(ctx, current); err != nil {
			return err
		}
		adj = current
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.recordAudit(ctx, scope, "adjustment:EDIT", adj, map[string]any{"qty": adj.Qty, "type": string(adj.Type)})
	return adj, nil
}

// Get returns one adjustment.
func (s *Service) Get(ctx context.Context, scope shared.Scope, id uuid.UUID) (Adjustment, error) {
	if err := scope.Validate(); err != nil {
		return Adjustment{}, err
	}
	return s.repo.Get(ctx, scope.TenantID, id)
}

// List returns adjustments matching the filter.
func (s *Service) List(ctx context.Context, scope shared.Scope, filter Filter) ([]Adjustment, shared.Pagination, error) {
	if err := scope.Validate(); err != nil {
		return nil, shared.Pagination{}, err
	}
	return s.repo.List(ctx, scope.TenantID, filter)
}

func totalCost(unitCost decimal.Decimal, qty int64) decimal.Decimal {
	return unitCost.Mul(decimal.NewFromInt(qty)).Abs()
}

func initialApprovalAction(adj Adjustment) shared.ApprovalAction {
	if adj.RequiresApproval {
		return shared.ApprovalSubmit
	}
	return shared.ApprovalApprove
}

func isAvailabilityError(err error) bool {
	var availErr *shared.InsufficientAvailabilityError
	return errors.As(err, &availErr)
}

func (s *Service) recordApproval(ctx context.Context, scope shared.Scope, adj Adjustment, action shared.ApprovalAction) {
	if s.approvals == nil {
		return
	}
	_ = s.approvals.Record(ctx, shared.ApprovalLog{
		TenantID: scope.TenantID,
		Module:   "adjustment",
		RefID:    adj.ID,
		ActorID:  scope.ActorID,
		Action:   action,
	})
}

func (s *Service) recordAudit(ctx context.Context, scope shared.Scope, action string, adj Adjustment, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: scope.TenantID,
		ActorID:  scope.ActorID,
		Action:   action,
		Entity:   "adjustment",
		EntityID: adj.ID.String(),
		Meta:     meta,
	})
}
