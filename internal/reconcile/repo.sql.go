package reconcile

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/platform/db"
)

// Repository answers reconciliation reads from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

type txReader struct {
	tx pgx.Tx
}

// WithReadTx runs the callback in a read-only repeatable-read transaction, so
// every query sees the same committed state.
func (r *Repository) WithReadTx(ctx context.Context, fn func(context.Context, TxReader) error) error {
	if r == nil {
		return errors.New("reconcile repository not initialised")
	}
	return db.WithReadTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txReader{tx: tx})
	})
}

// IntakeSummaries returns every contributing intake batch with its derived
// sums. Recount adjustments are excluded from the sums because a recount
// rewrites the recorded quantity itself.
func (r *txReader) IntakeSummaries(ctx context.Context, tenantID, productID, locationID int64, intakeID uuid.UUID) ([]IntakeSummary, error) {
	rows, err := r.tx.Query(ctx, `SELECT ir.id, ir.recorded_qty,
COALESCE((SELECT SUM(a.qty) FROM adjustments a
    WHERE a.tenant_id=ir.tenant_id AND a.intake_id=ir.id AND a.status='COMPLETED' AND a.adj_type <> 'RECOUNT'), 0),
COALESCE((SELECT SUM(ti.qty) FROM transfer_items ti JOIN transfers t ON t.id=ti.transfer_id
    WHERE t.tenant_id=ir.tenant_id AND ti.intake_id=ir.id AND t.status='COMPLETED'), 0)
FROM intake_records ir
WHERE ir.tenant_id=$1 AND ir.product_id=$2
AND ($3=0 OR ir.location_id=$3)
AND ($4::uuid IS NULL OR ir.id=$4)
ORDER BY ir.created_at ASC, ir.id ASC`,
		tenantID, productID, locationID, nullUUID(intakeID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var summaries []IntakeSummary
	for rows.Next() {
		var s IntakeSummary
		if err := rows.Scan(&s.IntakeID, &s.Recorded, &s.AdjustmentSum, &s.Allocated); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// StorefrontOnHand sums the product's allocations across storefront
// locations. The allocation table has no batch lineage, so this figure is
// product-wide by construction.
func (r *txReader) StorefrontOnHand(ctx context.Context, tenantID, productID int64) (int64, error) {
	var qty int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(al.qty), 0)
FROM allocations al
JOIN locations l ON l.id = al.location_id
WHERE al.tenant_id=$1 AND al.product_id=$2 AND l.kind='STOREFRONT'`, tenantID, productID).Scan(&qty)
	return qty, err
}

// ShrinkageAndCorrections sums completed loss-category and correction
// adjustments on the product's intakes. Shrinkage is returned as a positive
// magnitude.
func (r *txReader) ShrinkageAndCorrections(ctx context.Context, tenantID, productID, locationID int64, intakeID uuid.UUID) (int64, int64, error) {
	var shrinkage, corrections int64
	err := r.tx.QueryRow(ctx, `SELECT
COALESCE(-SUM(a.qty) FILTER (WHERE a.adj_type IN ('THEFT','DAMAGE','EXPIRY','SPOILAGE','WRITE_OFF','LOSS','SAMPLE')), 0),
COALESCE(SUM(a.qty) FILTER (WHERE a.adj_type IN ('CORRECTION','CORRECTION_INCREASE')), 0)
FROM adjustments a
JOIN intake_records ir ON ir.id = a.intake_id
WHERE a.tenant_id=$1 AND a.status='COMPLETED' AND ir.product_id=$2
AND ($3=0 OR ir.location_id=$3)
AND ($4::uuid IS NULL OR a.intake_id=$4)`,
		tenantID, productID, locationID, nullUUID(intakeID)).Scan(&shrinkage, &corrections)
	return shrinkage, corrections, err
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
