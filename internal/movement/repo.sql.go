package movement

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads movement events from the append-only source tables. It
// never writes; the feed is a projection.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AdjustmentEvents returns completed adjustments as movement events. Legacy
// TRANSFER_IN/TRANSFER_OUT rows are tagged as transfers here so the feed
// speaks one language regardless of which era recorded the movement.
func (r *Repository) AdjustmentEvents(ctx context.Context, tenantID int64, from, to time.Time) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT
CASE WHEN a.adj_type IN ('TRANSFER_IN','TRANSFER_OUT') THEN 'transfer' ELSE 'adjustment' END,
a.adj_type,
COALESCE(NULLIF(a.reference, ''), a.id::text),
ir.product_id, ir.location_id, a.qty, a.total_cost, a.completed_at
FROM adjustments a
JOIN intake_records ir ON ir.id = a.intake_id
WHERE a.tenant_id=$1 AND a.status='COMPLETED' AND a.adj_type <> 'RECOUNT'
AND ($2::timestamptz IS NULL OR a.completed_at >= $2)
AND ($3::timestamptz IS NULL OR a.completed_at < $3)
ORDER BY a.completed_at`, tenantID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// TransferEvents returns completed multi-item transfers as paired events: an
// outbound one at the source and an inbound one at the destination.
func (r *Repository) TransferEvents(ctx context.Context, tenantID int64, from, to time.Time) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT 'transfer', 'TRANSFER', t.reference,
ti.product_id, t.src_location_id, -ti.qty, ti.unit_cost * ti.qty, t.completed_at
FROM transfer_items ti JOIN transfers t ON t.id = ti.transfer_id
WHERE t.tenant_id=$1 AND t.status='COMPLETED'
AND ($2::timestamptz IS NULL OR t.completed_at >= $2)
AND ($3::timestamptz IS NULL OR t.completed_at < $3)
UNION ALL
SELECT 'transfer', 'TRANSFER', t.reference,
ti.product_id, t.dst_location_id, ti.qty, ti.unit_cost * ti.qty, t.completed_at
FROM transfer_items ti JOIN transfers t ON t.id = ti.transfer_id
WHERE t.tenant_id=$1 AND t.status='COMPLETED'
AND ($2::timestamptz IS NULL OR t.completed_at >= $2)
AND ($3::timestamptz IS NULL OR t.completed_at < $3)
ORDER BY 8`, tenantID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// SaleEvents returns POS sale consumptions as negative movements at the
// selling location. Reservations are holds, not movements, and are skipped.
func (r *Repository) SaleEvents(ctx context.Context, tenantID int64, from, to time.Time) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT 'sale', 'SALE',
COALESCE(NULLIF(reference, ''), id::text),
product_id, location_id, -qty, 0, occurred_at
FROM pos_consumption
WHERE tenant_id=$1 AND kind='SALE'
AND ($2::timestamptz IS NULL OR occurred_at >= $2)
AND ($3::timestamptz IS NULL OR occurred_at < $3)
ORDER BY occurred_at`, tenantID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]Event, error) {
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var ev Event
		var kind string
		var completedAt *time.Time
		if err := rows.Scan(&kind, &ev.Type, &ev.Ref, &ev.ProductID, &ev.LocationID, &ev.Qty, &ev.Value, &completedAt); err != nil {
			return nil, err
		}
		ev.Kind = Kind(kind)
		if completedAt != nil {
			ev.OccurredAt = *completedAt
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
