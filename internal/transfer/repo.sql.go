package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stocklane/stocklane/internal/platform/db"
	"github.com/stocklane/stocklane/internal/shared"
)

// Repository persists transfers in PostgreSQL.
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
		return errors.New("transfer repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if db.IsSerializationFailure(err) {
		return &shared.ConcurrencyError{Op: "transfer"}
	}
	return err
}

const transferColumns = `id, tenant_id, reference, src_location_id, dst_location_id, status, notes,
created_by, completed_by, created_at, updated_at, completed_at`

func scanTransfer(row pgx.Row) (Transfer, error) {
	var tr Transfer
	var status string
	var completedBy *int64
	var completedAt *time.Time
	err := row.Scan(&tr.ID, &tr.TenantID, &tr.Reference, &tr.SrcLocationID, &tr.DstLocationID, &status,
		&tr.Notes, &tr.CreatedBy, &completedBy, &tr.CreatedAt, &tr.UpdatedAt, &completedAt)
	if err != nil {
		return Transfer{}, err
	}
	tr.Status = Status(status)
	if completedBy != nil {
		tr.CompletedBy = *completedBy
	}
	if completedAt != nil {
		tr.CompletedAt = *completedAt
	}
	return tr, nil
}

func loadItems(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, transferID uuid.UUID) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, transfer_id, product_id, intake_id, qty, unit_cost
FROM transfer_items WHERE transfer_id=$1 ORDER BY id`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		var intakeID *uuid.UUID
		if err := rows.Scan(&item.ID, &item.TransferID, &item.ProductID, &intakeID, &item.Qty, &item.UnitCost); err != nil {
			return nil, err
		}
		if intakeID != nil {
			item.IntakeID = *intakeID
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Get returns one transfer with its items scoped to the tenant.
func (r *Repository) Get(ctx context.Context, tenantID int64, id uuid.UUID) (Transfer, error) {
	tr, err := scanTransfer(r.pool.QueryRow(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, &shared.NotFoundError{Entity: "transfer", ID: id.String()}
		}
		return Transfer{}, err
	}
	tr.Items, err = loadItems(ctx, r.pool, tr.ID)
	return tr, err
}

// List returns transfers matching the filter, newest first. LocationID
// matches either end of the transfer.
func (r *Repository) List(ctx context.Context, tenantID int64, filter Filter) ([]Transfer, shared.Pagination, error) {
	const where = `WHERE tenant_id=$1 AND ($2='' OR status=$2)
AND ($3=0 OR src_location_id=$3 OR dst_location_id=$3)
AND ($4=0 OR EXISTS (SELECT 1 FROM transfer_items ti WHERE ti.transfer_id=transfers.id AND ti.product_id=$4))`
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transfers `+where,
		tenantID, string(filter.Status), filter.LocationID, filter.ProductID).Scan(&total)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, total)

	rows, err := r.pool.Query(ctx, `SELECT `+transferColumns+` FROM transfers `+where+`
ORDER BY created_at DESC, id DESC LIMIT $5 OFFSET $6`,
		tenantID, string(filter.Status), filter.LocationID, filter.ProductID, page.PerPage, page.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	var transfers []Transfer
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		transfers = append(transfers, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Pagination{}, err
	}
	for i := range transfers {
		items, err := loadItems(ctx, r.pool, transfers[i].ID)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		transfers[i].Items = items
	}
	return transfers, page, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (Transfer, error) {
	tr, err := scanTransfer(r.tx.QueryRow(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, &shared.NotFoundError{Entity: "transfer", ID: id.String()}
		}
		return Transfer{}, err
	}
	tr.Items, err = loadItems(ctx, r.tx, tr.ID)
	return tr, err
}

func (r *txRepository) Insert(ctx context.Context, tr Transfer) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO transfers
(id, tenant_id, reference, src_location_id, dst_location_id, status, notes, created_by, completed_by, created_at, updated_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		tr.ID, tr.TenantID, tr.Reference, tr.SrcLocationID, tr.DstLocationID, string(tr.Status),
		tr.Notes, tr.CreatedBy, nullInt(tr.CompletedBy), tr.CreatedAt, tr.UpdatedAt, nullTime(tr.CompletedAt))
	if err != nil {
		return err
	}
	return r.insertItems(ctx, tr)
}

func (r *txRepository) Update(ctx context.Context, tr Transfer) error {
	tag, err := r.tx.Exec(ctx, `UPDATE transfers SET status=$3, notes=$4, completed_by=$5, updated_at=$6, completed_at=$7
WHERE tenant_id=$1 AND id=$2`,
		tr.TenantID, tr.ID, string(tr.Status), tr.Notes, nullInt(tr.CompletedBy), tr.UpdatedAt, nullTime(tr.CompletedAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Entity: "transfer", ID: tr.ID.String()}
	}
	return nil
}

func (r *txRepository) ReplaceItems(ctx context.Context, tr Transfer) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM transfer_items WHERE transfer_id=$1`, tr.ID); err != nil {
		return err
	}
	return r.insertItems(ctx, tr)
}

func (r *txRepository) insertItems(ctx context.Context, tr Transfer) error {
	batch := &pgx.Batch{}
	for _, item := range tr.Items {
		batch.Queue(`INSERT INTO transfer_items (transfer_id, product_id, intake_id, qty, unit_cost)
VALUES ($1,$2,$3,$4,$5)`, tr.ID, item.ProductID, nullUUID(item.IntakeID), item.Qty, item.UnitCost)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) GetIntakeForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (IntakeRef, error) {
	var ref IntakeRef
	err := r.tx.QueryRow(ctx, `SELECT id, product_id, location_id, recorded_qty, unit_cost
FROM intake_records WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id).
		Scan(&ref.ID, &ref.ProductID, &ref.LocationID, &ref.RecordedQty, &ref.UnitCost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IntakeRef{}, &shared.NotFoundError{Entity: "intake record", ID: id.String()}
		}
		return IntakeRef{}, err
	}
	return ref, nil
}

// ResolveIntakeFIFO locks and returns the oldest intake batch at the location
// with enough remaining quantity to cover the request.
func (r *txRepository) ResolveIntakeFIFO(ctx context.Context, tenantID, productID, locationID, qty int64) (IntakeRef, error) {
	var ref IntakeRef
	err := r.tx.QueryRow(ctx, `SELECT ir.id, ir.product_id, ir.location_id, ir.recorded_qty, ir.unit_cost
FROM intake_records ir
WHERE ir.tenant_id=$1 AND ir.product_id=$2 AND ir.location_id=$3
AND ir.recorded_qty
  + COALESCE((SELECT SUM(a.qty) FROM adjustments a
      WHERE a.tenant_id=ir.tenant_id AND a.intake_id=ir.id AND a.status='COMPLETED' AND a.adj_type <> 'RECOUNT'), 0)
  - COALESCE((SELECT SUM(ti.qty) FROM transfer_items ti JOIN transfers t ON t.id=ti.transfer_id
      WHERE t.tenant_id=ir.tenant_id AND ti.intake_id=ir.id AND t.status='COMPLETED'), 0)
  >= $4
ORDER BY ir.created_at ASC, ir.id ASC
LIMIT 1
FOR UPDATE OF ir`, tenantID, productID, locationID, qty).
		Scan(&ref.ID, &ref.ProductID, &ref.LocationID, &ref.RecordedQty, &ref.UnitCost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IntakeRef{}, &shared.NotFoundError{Entity: "intake batch", ID: "product"}
		}
		return IntakeRef{}, err
	}
	return ref, nil
}

// LatestUnitCost returns the unit cost of the most recent intake of the
// product across all locations.
func (r *txRepository) LatestUnitCost(ctx context.Context, tenantID, productID int64) (decimal.Decimal, error) {
	var cost decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT unit_cost FROM intake_records
WHERE tenant_id=$1 AND product_id=$2 ORDER BY created_at DESC, id DESC LIMIT 1`, tenantID, productID).Scan(&cost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, &shared.NotFoundError{Entity: "intake record", ID: "product"}
		}
		return decimal.Zero, err
	}
	return cost, nil
}

// IntakeAvailability computes the derived quantities of an intake batch:
// available is recorded plus completed non-recount adjustments, allocated is
// the sum of completed transfer items sourced from it.
func (r *txRepository) IntakeAvailability(ctx context.Context, tenantID int64, intakeID uuid.UUID) (int64, int64, error) {
	var available, allocated int64
	err := r.tx.QueryRow(ctx, `SELECT
(SELECT recorded_qty FROM intake_records WHERE tenant_id=$1 AND id=$2)
 + COALESCE((SELECT SUM(qty) FROM adjustments
     WHERE tenant_id=$1 AND intake_id=$2 AND status='COMPLETED' AND adj_type <> 'RECOUNT'), 0),
COALESCE((SELECT SUM(ti.qty) FROM transfer_items ti JOIN transfers t ON t.id=ti.transfer_id
     WHERE t.tenant_id=$1 AND ti.intake_id=$2 AND t.status='COMPLETED'), 0)`,
		tenantID, intakeID).Scan(&available, &allocated)
	return available, allocated, err
}

// AllocationForUpdate locks the allocation row and returns its quantity, or
// zero when no stock has ever been allocated there.
func (r *txRepository) AllocationForUpdate(ctx context.Context, tenantID, productID, locationID int64) (int64, error) {
	var qty int64
	err := r.tx.QueryRow(ctx, `SELECT qty FROM allocations
WHERE tenant_id=$1 AND product_id=$2 AND location_id=$3 FOR UPDATE`, tenantID, productID, locationID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return qty, err
}

// AddAllocation applies a signed delta to the allocation row, creating it on
// first use.
func (r *txRepository) AddAllocation(ctx context.Context, tenantID, productID, locationID, delta int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO allocations (tenant_id, product_id, location_id, qty, updated_at)
VALUES ($1,$2,$3,$4,now())
ON CONFLICT (tenant_id, product_id, location_id)
DO UPDATE SET qty = allocations.qty + EXCLUDED.qty, updated_at = now()`,
		tenantID, productID, locationID, delta)
	return err
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
