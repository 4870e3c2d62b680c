package directory

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/shared"
)

// Repository reads the location and product directory from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Directory = (*Repository)(nil)

// GetLocation returns one location scoped to the tenant.
func (r *Repository) GetLocation(ctx context.Context, tenantID, id int64) (Location, error) {
	var loc Location
	err := r.pool.QueryRow(ctx, `SELECT id, tenant_id, code, name, kind, active
FROM locations WHERE tenant_id=$1 AND id=$2`, tenantID, id).
		Scan(&loc.ID, &loc.TenantID, &loc.Code, &loc.Name, &loc.Kind, &loc.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, &shared.NotFoundError{Entity: "location", ID: strconv.FormatInt(id, 10)}
		}
		return Location{}, err
	}
	return loc, nil
}

// GetProduct returns one product scoped to the tenant.
func (r *Repository) GetProduct(ctx context.Context, tenantID, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, tenant_id, sku, name, active
FROM products WHERE tenant_id=$1 AND id=$2`, tenantID, id).
		Scan(&p.ID, &p.TenantID, &p.SKU, &p.Name, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, &shared.NotFoundError{Entity: "product", ID: strconv.FormatInt(id, 10)}
		}
		return Product{}, err
	}
	return p, nil
}

// ListProductsWithActivity returns ids of products with at least one intake,
// used by the nightly integrity scan.
func (r *Repository) ListProductsWithActivity(ctx context.Context, tenantID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT product_id FROM intake_records WHERE tenant_id=$1 ORDER BY product_id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListTenants returns every tenant with directory data, for background jobs.
func (r *Repository) ListTenants(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM locations ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
