package intake

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

// Repository persists intake records in PostgreSQL.
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
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("intake repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const recordColumns = `id, tenant_id, product_id, location_id, recorded_qty, unit_cost, reference, created_by, created_at, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.ProductID, &rec.LocationID, &rec.RecordedQty,
		&rec.UnitCost, &rec.Reference, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

// Get returns one record scoped to the tenant.
func (r *Repository) Get(ctx context.Context, tenantID int64, id uuid.UUID) (Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM intake_records WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, &shared.NotFoundError{Entity: "intake record", ID: id.String()}
		}
		return Record{}, err
	}
	return rec, nil
}

// List returns records matching the filter, newest first.
func (r *Repository) List(ctx context.Context, tenantID int64, filter Filter) ([]Record, shared.Pagination, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM intake_records
WHERE tenant_id=$1 AND ($2=0 OR product_id=$2) AND ($3=0 OR location_id=$3)`,
		tenantID, filter.ProductID, filter.LocationID).Scan(&total)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, total)

	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM intake_records
WHERE tenant_id=$1 AND ($2=0 OR product_id=$2) AND ($3=0 OR location_id=$3)
ORDER BY created_at DESC, id DESC LIMIT $4 OFFSET $5`,
		tenantID, filter.ProductID, filter.LocationID, page.PerPage, page.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		records = append(records, rec)
	}
	return records, page, rows.Err()
}

func (r *txRepository) Insert(ctx context.Context, rec Record) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO intake_records (id, tenant_id, product_id, location_id, recorded_qty, unit_cost, reference, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		rec.ID, rec.TenantID, rec.ProductID, rec.LocationID, rec.RecordedQty, rec.UnitCost,
		rec.Reference, rec.CreatedBy, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (r *txRepository) GetForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (Record, error) {
	rec, err := scanRecord(r.tx.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM intake_records WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, &shared.NotFoundError{Entity: "intake record", ID: id.String()}
		}
		return Record{}, err
	}
	return rec, nil
}

func (r *txRepository) UpdateRecordedQty(ctx context.Context, tenantID int64, id uuid.UUID, qty int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE intake_records SET recorded_qty=$3, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`, tenantID, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &shared.NotFoundError{Entity: "intake record", ID: id.String()}
	}
	return nil
}

// InsertRecountAdjustment leaves the audit adjustment behind a recount. The
// row is created directly COMPLETED and excluded from availability sums; it
// documents the recorded-quantity change rather than adding to it.
func (r *txRepository) InsertRecountAdjustment(ctx context.Context, rec Record, delta int64, reason string, actorID int64) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now().UTC()
	totalCost := rec.UnitCost.Mul(decimal.NewFromInt(delta)).Abs()
	_, err := r.tx.Exec(ctx, `INSERT INTO adjustments
(id, tenant_id, intake_id, adj_type, qty, unit_cost, total_cost, reason, reference, status, requires_approval, created_by, approved_by, created_at, updated_at, completed_at)
VALUES ($1,$2,$3,'RECOUNT',$4,$5,$6,$7,'','COMPLETED',false,$8,$8,$9,$9,$9)`,
		id, rec.TenantID, rec.ID, delta, rec.UnitCost, totalCost, reason, actorID, now)
	return id, err
}
