package transfer

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stocklane/stocklane/internal/directory"
	"github.com/stocklane/stocklane/internal/shared"
)

// IntakeRef is the slice of an intake record the engine needs while holding
// its row lock.
type IntakeRef struct {
	ID          uuid.UUID
	ProductID   int64
	LocationID  int64
	RecordedQty int64
	UnitCost    decimal.Decimal
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID int64, id uuid.UUID) (Transfer, error)
	List(ctx context.Context, tenantID int64, filter Filter) ([]Transfer, shared.Pagination, error)
}

// TxRepository exposes transactional operations used by the service. Intake
// and allocation rows are locked in a deterministic order so concurrent
// completions touching the same stock serialise instead of deadlocking.
type TxRepository interface {
	GetForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (Transfer, error)
	Insert(ctx context.Context, tr Transfer) error
	Update(ctx context.Context, tr Transfer) error
	ReplaceItems(ctx context.Context, tr Transfer) error
	GetIntakeForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (IntakeRef, error)
	ResolveIntakeFIFO(ctx context.Context, tenantID, productID, locationID, qty int64) (IntakeRef, error)
	LatestUnitCost(ctx context.Context, tenantID, productID int64) (decimal.Decimal, error)
	IntakeAvailability(ctx context.Context, tenantID int64, intakeID uuid.UUID) (available, allocated int64, err error)
	AllocationForUpdate(ctx context.Context, tenantID, productID, locationID int64) (int64, error)
	AddAllocation(ctx context.Context, tenantID, productID, locationID, delta int64) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort keeps caller-supplied references unique per tenant.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, tenantID int64, key, module string) error
	Delete(ctx context.Context, tenantID int64, key string) error
}

// MetricsPort counts ledger outcomes.
type MetricsPort interface {
	CompletionRecorded(entity, outcome string)
	RetryRecorded()
}

// ServiceConfig groups settings.
type ServiceConfig struct {
	// MaxItems caps the item count per transfer; zero means unlimited.
	MaxItems int
}

// Service coordinates multi-item transfers between locations.
type Service struct {
	repo        RepositoryPort
	dir         directory.Directory
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     MetricsPort
	maxItems    int
}

// NewService builds Service.
func NewService(repo RepositoryPort, dir directory.Directory, audit AuditPort, idempotency IdempotencyPort, metrics MetricsPort, cfg ServiceConfig) *Service {
	return &Service{repo: repo, dir: dir, audit: audit, idempotency: idempotency, metrics: metrics, maxItems: cfg.MaxItems}
}

// Create records a PENDING transfer after validating every item. Validation is
// all-or-nothing: a single failing item rejects the whole request with a
// positionally-indexed issue list and nothing is persisted.
func (s *Service) Create(ctx context.Context, scope shared.Scope, input CreateInput) (Transfer, error) {
	if err := scope.Validate(); err != nil {
		return Transfer{}, err
	}
	if err := ValidateHeader(input, s.maxItems); err != nil {
		return Transfer{}, err
	}
	src, err := s.dir.GetLocation(ctx, scope.TenantID, input.SrcLocationID)
	if err != nil {
		return Transfer{}, err
	}
	dst, err := s.dir.GetLocation(ctx, scope.TenantID, input.DstLocationID)
	if err != nil {
		return Transfer{}, err
	}
	if !dst.Active {
		return Transfer{}, shared.NewValidationError("dst_location_id", "destination location is inactive")
	}
	issues, ok := ValidateItems(input.Items)
	if !ok {
		return Transfer{}, &ItemValidationError{Items: issues}
	}

	now := time.Now().UTC()
	reference := input.Reference
	if reference == "" {
		reference = GenerateReference(now)
	}
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, scope.TenantID, referenceKey(reference), "transfer"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Transfer{}, shared.NewValidationError("reference", "reference %q already used", reference)
			}
			return Transfer{}, err
		}
	}

	tr := Transfer{
		ID:            uuid.New(),
		TenantID:      scope.TenantID,
		Reference:     reference,
		SrcLocationID: src.ID,
		DstLocationID: dst.ID,
		Status:        StatusPending,
		Notes:         input.Notes,
		CreatedBy:     scope.ActorID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		items, err := s.resolveItems(ctx, tx, scope, src, tr.ID, input.Items)
		if err != nil {
			return err
		}
		tr.Items = items
		return tx.Insert(ctx, tr)
	})
	if err != nil {
		if s.idempotency != nil {
			// Release the reference so a corrected retry can reuse it.
			_ = s.idempotency.Delete(ctx, scope.TenantID, referenceKey(reference))
		}
		return Transfer{}, err
	}

	s.recordAudit(ctx, scope, "transfer:CREATE", tr, map[string]any{
		"reference": tr.Reference,
		"src":       tr.SrcLocationID,
		"dst":       tr.DstLocationID,
		"items":     len(tr.Items),
	})
	return tr, nil
}

// resolveItems pins each requested item to a concrete source and cost basis.
// Warehouse sources resolve to an intake batch (explicit or oldest-first) and
// storefront sources to the location's allocation. Issues are collected for
// every item before failing so the caller sees the full picture.
func (s *Service) resolveItems(ctx context.Context, tx TxRepository, scope shared.Scope, src directory.Location, transferID uuid.UUID, inputs []ItemInput) ([]Item, error) {
	issues := make([]ItemIssue, len(inputs))
	items := make([]Item, len(inputs))
	ok := true
	for i, in := range inputs {
		product, err := s.dir.GetProduct(ctx, scope.TenantID, in.ProductID)
		if err != nil {
			if isNotFound(err) {
				issues[i] = ItemIssue{Field: "product_id", Message: "unknown product"}
				ok = false
				continue
			}
			return nil, err
		}
		if !product.Active {
			issues[i] = ItemIssue{Field: "product_id", Message: "product is inactive"}
			ok = false
			continue
		}
		item := Item{TransferID: transferID, ProductID: in.ProductID, Qty: in.Qty}
		switch src.Kind {
		case directory.KindWarehouse:
			intake, issue, err := s.resolveWarehouseSource(ctx, tx, scope, src.ID, in)
			if err != nil {
				return nil, err
			}
			if !issue.OK() {
				issues[i] = issue
				ok = false
				continue
			}
			item.IntakeID = intake.ID
			item.UnitCost = intake.UnitCost
		case directory.KindStorefront:
			issue, cost, err := s.resolveStorefrontSource(ctx, tx, scope, src.ID, in)
			if err != nil {
				return nil, err
			}
			if !issue.OK() {
				issues[i] = issue
				ok = false
				continue
			}
			item.UnitCost = cost
		default:
			return nil, shared.NewValidationError("src_location_id", "unsupported location kind %q", string(src.Kind))
		}
		if in.UnitCost != nil {
			item.UnitCost = *in.UnitCost
		}
		items[i] = item
	}
	if !ok {
		return nil, &ItemValidationError{Items: issues}
	}
	return items, nil
}

func (s *Service) resolveWarehouseSource(ctx context.Context, tx TxRepository, scope shared.Scope, srcID int64, in ItemInput) (IntakeRef, ItemIssue, error) {
	if in.IntakeID != uuid.Nil {
		intake, err := tx.GetIntakeForUpdate(ctx, scope.TenantID, in.IntakeID)
		if err != nil {
			if isNotFound(err) {
				return IntakeRef{}, ItemIssue{Field: "intake_id", Message: "unknown intake record"}, nil
			}
			return IntakeRef{}, ItemIssue{}, err
		}
		if intake.ProductID != in.ProductID {
			return IntakeRef{}, ItemIssue{Field: "intake_id", Message: "intake record is for a different product"}, nil
		}
		if intake.LocationID != srcID {
			return IntakeRef{}, ItemIssue{Field: "intake_id", Message: "intake record belongs to a different location"}, nil
		}
		available, allocated, err := tx.IntakeAvailability(ctx, scope.TenantID, intake.ID)
		if err != nil {
			return IntakeRef{}, ItemIssue{}, err
		}
		if remaining := available - allocated; remaining < in.Qty {
			return IntakeRef{}, ItemIssue{Field: "qty", Message: "insufficient availability at source", Available: remaining, Requested: in.Qty}, nil
		}
		return intake, ItemIssue{}, nil
	}
	intake, err := tx.ResolveIntakeFIFO(ctx, scope.TenantID, in.ProductID, srcID, in.Qty)
	if err != nil {
		if isNotFound(err) {
			return IntakeRef{}, ItemIssue{Field: "qty", Message: "no intake batch covers the requested quantity", Requested: in.Qty}, nil
		}
		return IntakeRef{}, ItemIssue{}, err
	}
	return intake, ItemIssue{}, nil
}

func (s *Service) resolveStorefrontSource(ctx context.Context, tx TxRepository, scope shared.Scope, srcID int64, in ItemInput) (ItemIssue, decimal.Decimal, error) {
	available, err := tx.AllocationForUpdate(ctx, scope.TenantID, in.ProductID, srcID)
	if err != nil {
		return ItemIssue{}, decimal.Zero, err
	}
	if available < in.Qty {
		return ItemIssue{Field: "qty", Message: "insufficient allocation at source", Available: available, Requested: in.Qty}, decimal.Zero, nil
	}
	if in.UnitCost != nil {
		return ItemIssue{}, *in.UnitCost, nil
	}
	cost, err := tx.LatestUnitCost(ctx, scope.TenantID, in.ProductID)
	if err != nil {
		if isNotFound(err) {
			return ItemIssue{Field: "unit_cost", Message: "cost basis not resolvable, supply unit_cost"}, decimal.Zero, nil
		}
		return ItemIssue{}, decimal.Zero, err
	}
	return ItemIssue{}, cost, nil
}

// Complete moves the stock: every item is re-verified against current
// availability under row locks, then destination allocations are incremented
// and storefront-source allocations decremented in one transaction. Completing
// an already COMPLETED transfer is a no-op returning the current state, so a
// retried request cannot double-move inventory. A lost race is retried once
// before surfacing a ConcurrencyError.
func (s *Service) Complete(ctx context.Context, scope shared.Scope, id uuid.UUID) (Transfer, error) {
	if err := scope.Validate(); err != nil {
		return Transfer{}, err
	}
	tr, applied, err := s.completeOnce(ctx, scope, id)
	if shared.IsRetryable(err) {
		if s.metrics != nil {
			s.metrics.RetryRecorded()
		}
		tr, applied, err = s.completeOnce(ctx, scope, id)
	}
	if err != nil {
		return tr, err
	}
	if applied {
		s.recordAudit(ctx, scope, "transfer:COMPLETE", tr, map[string]any{"items": len(tr.Items)})
	}
	return tr, nil
}

func (s *Service) completeOnce(ctx context.Context, scope shared.Scope, id uuid.UUID) (Transfer, bool, error) {
	var tr Transfer
	applied := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, scope.TenantID, id)
		if err != nil {
			return err
		}
		if current.Status == StatusCompleted {
			tr = current
			return nil
		}
		if current.Status == StatusCancelled {
			return &shared.StateError{Entity: "transfer", Action: "complete", Current: string(current.Status)}
		}
		if err := s.verifyAvailabilityLocked(ctx, tx, scope, current); err != nil {
			return err
		}
		if err := s.applyAllocationsLocked(ctx, tx, scope, current); err != nil {
			return err
		}
		now := time.Now().UTC()
		current.Status = StatusCompleted
		current.CompletedBy = scope.ActorID
		current.CompletedAt = now
		current.UpdatedAt = now
		if err := tx.Update(ctx, current); err != nil {
			return err
		}
		tr = current
		applied = true
		return nil
	})
	if err != nil {
		if s.metrics != nil && isItemValidation(err) {
			s.metrics.CompletionRecorded("transfer", "insufficient")
		}
		return Transfer{}, false, err
	}
	if applied && s.metrics != nil {
		s.metrics.CompletionRecorded("transfer", "completed")
	}
	return tr, applied, nil
}

// verifyAvailabilityLocked re-checks every item against current stock. Locks
// are taken in sorted id order across the whole item set before any check
// runs.
func (s *Service) verifyAvailabilityLocked(ctx context.Context, tx TxRepository, scope shared.Scope, tr Transfer) error {
	intakeIDs := make([]uuid.UUID, 0, len(tr.Items))
	productIDs := make([]int64, 0, len(tr.Items))
	for _, item := range tr.Items {
		if item.IntakeID != uuid.Nil {
			intakeIDs = append(intakeIDs, item.IntakeID)
		} else {
			productIDs = append(productIDs, item.ProductID)
		}
	}
	sort.Slice(intakeIDs, func(i, j int) bool { return intakeIDs[i].String() < intakeIDs[j].String() })
	sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })

	remaining := make(map[uuid.UUID]int64, len(intakeIDs))
	for _, intakeID := range intakeIDs {
		if _, err := tx.GetIntakeForUpdate(ctx, scope.TenantID, intakeID); err != nil {
			return err
		}
		available, allocated, err := tx.IntakeAvailability(ctx, scope.TenantID, intakeID)
		if err != nil {
			return err
		}
		remaining[intakeID] = available - allocated
	}
	allocations := make(map[int64]int64, len(productIDs))
	for _, productID := range productIDs {
		qty, err := tx.AllocationForUpdate(ctx, scope.TenantID, productID, tr.SrcLocationID)
		if err != nil {
			return err
		}
		allocations[productID] = qty
	}

	issues := make([]ItemIssue, len(tr.Items))
	ok := true
	for i, item := range tr.Items {
		if item.IntakeID != uuid.Nil {
			if remaining[item.IntakeID] < item.Qty {
				issues[i] = ItemIssue{Field: "qty", Message: "insufficient availability at source", Available: remaining[item.IntakeID], Requested: item.Qty}
				ok = false
			}
			continue
		}
		if allocations[item.ProductID] < item.Qty {
			issues[i] = ItemIssue{Field: "qty", Message: "insufficient allocation at source", Available: allocations[item.ProductID], Requested: item.Qty}
			ok = false
		}
	}
	if !ok {
		return &ItemValidationError{Items: issues}
	}
	return nil
}

// applyAllocationsLocked moves quantities: storefront sources are decremented
// explicitly; warehouse sources need no write because their allocation is
// derived from completed transfer items.
func (s *Service) applyAllocationsLocked(ctx context.Context, tx TxRepository, scope shared.Scope, tr Transfer) error {
	for _, item := range tr.Items {
		if item.IntakeID == uuid.Nil {
			if err := tx.AddAllocation(ctx, scope.TenantID, item.ProductID, tr.SrcLocationID, -item.Qty); err != nil {
				return err
			}
		}
		if err := tx.AddAllocation(ctx, scope.TenantID, item.ProductID, tr.DstLocationID, item.Qty); err != nil {
			return err
		}
	}
	return nil
}

// MarkInTransit flags a PENDING transfer as physically on the move. The
// status is informational and has no inventory effect.
func (s *Service) MarkInTransit(ctx context.Context, scope shared.Scope, id uuid.UUID) (Transfer, error) {
	if err := scope.Validate(); err != nil {
		return Transfer{}, err
	}
	var tr Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, scope.TenantID, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return &shared.StateError{Entity: "transfer", Action: "mark in transit", Current: string(current.Status)}
		}
		current.Status = StatusInTransit
		current.UpdatedAt = time.Now().UTC()
		if err := tx.Update(ctx, current); err != nil {
			return err
		}
		tr = current
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, scope, "transfer:IN_TRANSIT", tr, nil)
	return tr, nil
}

// Cancel voids a transfer before its inventory effect. A COMPLETED transfer
// cannot be cancelled; reversing it takes a new transfer in the opposite
// direction.
func (s *Service) Cancel(ctx context.Context, scope shared.Scope, id uuid.UUID, note string) (Transfer, error) {
	if err := scope.Validate(); err != nil {
		return Transfer{}, err
	}
	var tr Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, scope.TenantID, id)
		if err != nil {
			return err
		}
		switch current.Status {
		case StatusCompleted:
			return &shared.StateError{Entity: "transfer", Action: "cancel", Current: string(current.Status), Detail: "inventory already moved"}
		case StatusCancelled:
			return &shared.StateError{Entity: "transfer", Action: "cancel", Current: string(current.Status)}
		}
		current.Status = StatusCancelled
		current.UpdatedAt = time.Now().UTC()
		if err := tx.Update(ctx, current); err != nil {
			return err
		}
		tr = current
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, scope, "transfer:CANCEL", tr, map[string]any{"note": note})
	return tr, nil
}

// Update edits a PENDING transfer. A nil Items slice keeps the current items;
// a non-nil one replaces them after full re-validation and re-resolution.
func (s *Service) Update(ctx context.Context, scope shared.Scope, id uuid.UUID, input UpdateInput) (Transfer, error) {
	if err := scope.Validate(); err != nil {
		return Transfer{}, err
	}
	var tr Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, scope.TenantID, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return &shared.StateError{Entity: "transfer", Action: "update", Current: string(current.Status)}
		}
		if input.Notes != nil {
			current.Notes = *input.Notes
		}
		if input.Items != nil {
			if err := ValidateItemCount(len(input.Items), s.maxItems); err != nil {
				return err
			}
			issues, ok := ValidateItems(input.Items)
			if !ok {
				return &ItemValidationError{Items: issues}
			}
			src, err := s.dir.GetLocation(ctx, scope.TenantID, current.SrcLocationID)
			if err != nil {
				return err
			}
			items, err := s.resolveItems(ctx, tx, scope, src, current.ID, input.Items)
			if err != nil {
				return err
			}
			current.Items = items
			if err := tx.ReplaceItems(ctx, current); err != nil {
				return err
			}
		}
		current.UpdatedAt = time.Now().UTC()
		if err := tx.Update(ctx, current); err != nil {
			return err
		}
		tr = current
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, scope, "transfer:UPDATE", tr, map[string]any{"items": len(tr.Items)})
	return tr, nil
}

// Get returns one transfer with its items.
func (s *Service) Get(ctx context.Context, scope shared.Scope, id uuid.UUID) (Transfer, error) {
	if err := scope.Validate(); err != nil {
		return Transfer{}, err
	}
	return s.repo.Get(ctx, scope.TenantID, id)
}

// List returns transfers matching the filter.
func (s *Service) List(ctx context.Context, scope shared.Scope, filter Filter) ([]Transfer, shared.Pagination, error) {
	if err := scope.Validate(); err != nil {
		return nil, shared.Pagination{}, err
	}
	return s.repo.List(ctx, scope.TenantID, filter)
}

func referenceKey(reference string) string {
	return "transfer:ref:" + reference
}

func isNotFound(err error) bool {
	var notFound *shared.NotFoundError
	return errors.As(err, &notFound)
}

func isItemValidation(err error) bool {
	var itemErr *ItemValidationError
	return errors.As(err, &itemErr)
}

func (s *Service) recordAudit(ctx context.Context, scope shared.Scope, action string, tr Transfer, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: scope.TenantID,
		ActorID:  scope.ActorID,
		Action:   action,
		Entity:   "transfer",
		EntityID: tr.ID.String(),
		Meta:     meta,
	})
}
