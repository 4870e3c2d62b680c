package adjustment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/platform/db"
	"github.com/stocklane/stocklane/internal/shared"
)

// Repository persists adjustments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
// Serialization failures surface as ConcurrencyError so the service can
// retry them.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("adjustment repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if db.IsSerializationFailure(err) {
		return &shared.ConcurrencyError{Op: "adjustment"}
	}
	return err
}

const adjustmentColumns = `id, tenant_id, intake_id, adj_type, qty, unit_cost, total_cost, reason, reference,
status, requires_approval, created_by, approved_by, created_at, updated_at, completed_at`

func scanAdjustment(row pgx.Row) (Adjustment, error) {
	var adj Adjustment
	var adjType, status string
	var approvedBy *int64
	var completedAt *time.Time
	err := row.Scan(&adj.ID, &adj.TenantID, &adj.IntakeID, &adjType, &adj.Qty, &adj.UnitCost, &adj.TotalCost,
		&adj.Reason, &adj.Reference, &status, &adj.RequiresApproval, &adj.CreatedBy, &approvedBy,
		&adj.CreatedAt, &adj.UpdatedAt, &completedAt)
	if err != nil {
		return Adjustment{}, err
	}
	adj.Type = Type(adjType)
	adj.Status = Status(status)
	if approvedBy != nil {
		adj.ApprovedBy = *approvedBy
	}
	if completedAt != nil {
		adj.CompletedAt = *completedAt
	}
	return adj, nil
}

// Get returns one adjustment scoped to the tenant.
func (r *Repository) Get(ctx context.Context, tenantID int64, id uuid.UUID) (Adjustment, error) {
	adj, err := scanAdjustment(r.pool.QueryRow(ctx,
		`SELECT `+adjustmentColumns+` FROM adjustments WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Adjustment{}, &shared.NotFoundError{Entity: "adjustment", ID: id.String()}
		}
		return Adjustment{}, err
	}
	return adj, nil
}

// List returns adjustments matching the filter, newest first.
func (r *Repository) List(ctx context.Context, tenantID int64, filter Filter) ([]Adjustment, shared.Pagination, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM adjustments
WHERE tenant_id=$1 AND ($2::uuid IS NULL OR intake_id=$2) AND ($3='' OR status=$3) AND ($4='' OR adj_type=$4)`,
		tenantID, nullUUID(filter.IntakeID), string(filter.Status), string(filter.Type)).Scan(&total)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, total)

	rows, err := r.pool.Query(ctx, `SELECT `+adjustmentColumns+` FROM adjustments
WHERE tenant_id=$1 AND ($2::uuid IS NULL OR intake_id=$2) AND ($3='' OR status=$3) AND ($4='' OR adj_type=$4)
ORDER BY created_at DESC, id DESC LIMIT $5 OFFSET $6`,
		tenantID, nullUUID(filter.IntakeID), string(filter.Status), string(filter.Type), page.PerPage, page.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	var adjustments []Adjustment
	for rows.Next() {
		adj, err := scanAdjustment(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, page, rows.Err()
}

func (r *txRepository) GetIntakeForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (IntakeRef, error) {
	var ref IntakeRef
	err := r.tx.QueryRow(ctx, `SELECT id, tenant_id, product_id, location_id, recorded_qty, unit_cost
FROM intake_records WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id).
		Scan(&ref.ID, &ref.TenantID, &ref.ProductID, &ref.LocationID, &ref.RecordedQty, &ref.UnitCost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IntakeRef{}, &shared.NotFoundError{Entity: "intake record", ID: id.String()}
		}
		return IntakeRef{}, err
	}
	return ref, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (Adjustment, error) {
	adj, err := scanAdjustment(r.tx.QueryRow(ctx,
		`SELECT `+adjustmentColumns+` FROM adjustments WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Adjustment{}, &shared.NotFoundError{Entity: "adjustment", ID: id.String()}
		}
		return Adjustment{}, err
	}
	return adj, nil
}

func (r *txRepository) Insert(ctx context.Context, adj Adjustment) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO adjustments
(id, tenant_id, intake_id, adj_type, qty, unit_cost, total_cost, reason, reference, status, requires_approval, created_by, approved_by, created_at, updated_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		adj.ID, adj.TenantID, adj.IntakeID, string(adj.Type), adj.Qty, adj.UnitCost, adj.TotalCost,
		adj.Reason, adj.Reference, string(adj.Status), adj.RequiresApproval, adj.CreatedBy,
		nullInt(adj.ApprovedBy), adj.CreatedAt, adj.UpdatedAt, nullTime(adj.CompletedAt))
	return err
}

func (r *txRepository) Update(ctx context.Context, adj Adjustment) error {
	tag, err := r.tx.Exec(ctx, `UPDATE adjustments SET adj_type=$3, qty=$4, unit_cost=$5, total_cost=$6,
reason=$7, reference=$8, status=$9, requires_approval=$10, approved_by=$11, updated_at=$12, completed_at=$13
WHERE tenant_id=$1 AND id=$2`,
		adj.TenantID, adj.ID, string(adj.Type), adj.Qty, adj.UnitCost, adj.TotalCost,
		adj.Reason, adj.Reference, string(adj.Status), adj.RequiresApproval,
		nullInt(adj.ApprovedBy), adj.UpdatedAt, nullTime(adj.CompletedAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Entity: "adjustment", ID: adj.ID.String()}
	}
	return nil
}

// SumCompleted sums COMPLETED adjustment quantities on an intake record.
// RECOUNT rows are excluded: they document a recorded-quantity change and
// counting them would double-apply it.
func (r *txRepository) SumCompleted(ctx context.Context, tenantID int64, intakeID uuid.UUID) (int64, error) {
	var sum int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(qty), 0) FROM adjustments
WHERE tenant_id=$1 AND intake_id=$2 AND status='COMPLETED' AND adj_type <> 'RECOUNT'`, tenantID, intakeID).Scan(&sum)
	return sum, err
}

// SumAllocated sums quantities of completed transfer items sourced from the
// intake record.
func (r *txRepository) SumAllocated(ctx context.Context, tenantID int64, intakeID uuid.UUID) (int64, error) {
	var sum int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(ti.qty), 0)
FROM transfer_items ti
JOIN transfers t ON t.id = ti.transfer_id
WHERE t.tenant_id=$1 AND ti.intake_id=$2 AND t.status='COMPLETED'`, tenantID, intakeID).Scan(&sum)
	return sum, err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
