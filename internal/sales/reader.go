package sales

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Kind distinguishes consumed units from active holds.
type Kind string

const (
	// KindSale is a finalised sale reported by the POS subsystem.
	KindSale Kind = "SALE"
	// KindReservation is an active hold that has not yet consumed stock.
	KindReservation Kind = "RESERVATION"
)

// Consumption is one POS-reported event. The ledger only reads these; the POS
// subsystem owns them.
type Consumption struct {
	ID         int64
	TenantID   int64
	ProductID  int64
	LocationID int64
	Kind       Kind
	Qty        int64
	Reference  string
	OccurredAt time.Time
}

// Reader reads POS consumption figures from the shared database.
type Reader struct {
	pool *pgxpool.Pool
}

// NewReader constructs Reader.
func NewReader(pool *pgxpool.Pool) *Reader {
	return &Reader{pool: pool}
}

// Totals returns the units sold and the active reservation count for a
// product, optionally narrowed to one location.
func (r *Reader) Totals(ctx context.Context, tenantID, productID, locationID int64) (int64, int64, error) {
	var sold, reservations int64
	err := r.pool.QueryRow(ctx, `SELECT
COALESCE(SUM(qty) FILTER (WHERE kind='SALE'), 0),
COALESCE(SUM(qty) FILTER (WHERE kind='RESERVATION'), 0)
FROM pos_consumption
WHERE tenant_id=$1 AND product_id=$2 AND ($3=0 OR location_id=$3)`,
		tenantID, productID, locationID).Scan(&sold, &reservations)
	return sold, reservations, err
}
