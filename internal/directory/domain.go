package directory

import "context"

// LocationKind distinguishes warehouses from storefronts.
type LocationKind string

const (
	// KindWarehouse marks a bulk storage location holding intake batches.
	KindWarehouse LocationKind = "WAREHOUSE"
	// KindStorefront marks a point-of-sale location holding allocations.
	KindStorefront LocationKind = "STOREFRONT"
)

// Location describes a stock-holding location.
type Location struct {
	ID       int64
	TenantID int64
	Code     string
	Name     string
	Kind     LocationKind
	Active   bool
}

// Product describes a sellable product.
type Product struct {
	ID       int64
	TenantID int64
	SKU      string
	Name     string
	Active   bool
}

// Directory resolves locations and products for ledger validation. The
// directory itself is owned by an external master-data service; the ledger
// only reads it.
type Directory interface {
	GetLocation(ctx context.Context, tenantID, id int64) (Location, error)
	GetProduct(ctx context.Context, tenantID, id int64) (Product, error)
	ListProductsWithActivity(ctx context.Context, tenantID int64) ([]int64, error)
}
