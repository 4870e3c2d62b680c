package intake

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/directory"
	"github.com/stocklane/stocklane/internal/shared"
)

type recount struct {
	intakeID uuid.UUID
	delta    int64
	reason   string
}

type memoryRepo struct {
	records  map[uuid.UUID]Record
	recounts []recount
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[uuid.UUID]Record)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Get(ctx context.Context, tenantID int64, id uuid.UUID) (Record, error) {
	rec, ok := r.records[id]
	if !ok {
		return Record{}, &shared.NotFoundError{Entity: "intake record", ID: id.String()}
	}
	return rec, nil
}

func (r *memoryRepo) List(ctx context.Context, tenantID int64, filter Filter) ([]Record, shared.Pagination, error) {
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out, shared.NewPagination(1, 20, len(out)), nil
}

func (tx *memoryTx) Insert(ctx context.Context, rec Record) error {
	tx.repo.records[rec.ID] = rec
	return nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (Record, error) {
	return tx.repo.Get(ctx, tenantID, id)
}

func (tx *memoryTx) UpdateRecordedQty(ctx context.Context, tenantID int64, id uuid.UUID, qty int64) error {
	rec, ok := tx.repo.records[id]
	if !ok {
		return &shared.NotFoundError{Entity: "intake record", ID: id.String()}
	}
	rec.RecordedQty = qty
	tx.repo.records[id] = rec
	return nil
}

func (tx *memoryTx) InsertRecountAdjustment(ctx context.Context, rec Record, delta int64, reason string, actorID int64) (uuid.UUID, error) {
	tx.repo.recounts = append(tx.repo.recounts, recount{intakeID: rec.ID, delta: delta, reason: reason})
	return uuid.New(), nil
}

type memoryDirectory struct {
	locations map[int64]directory.Location
	products  map[int64]directory.Product
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{
		locations: map[int64]directory.Location{
			1: {ID: 1, TenantID: 1, Code: "WH-1", Kind: directory.KindWarehouse, Active: true},
			2: {ID: 2, TenantID: 1, Code: "SF-1", Kind: directory.KindStorefront, Active: true},
		},
		products: map[int64]directory.Product{
			7: {ID: 7, TenantID: 1, SKU: "SKU-7", Active: true},
		},
	}
}

func (d *memoryDirectory) GetLocation(ctx context.Context, tenantID, id int64) (directory.Location, error) {
	loc, ok := d.locations[id]
	if !ok {
		return directory.Location{}, &shared.NotFoundError{Entity: "location", ID: fmt.Sprint(id)}
	}
	return loc, nil
}

func (d *memoryDirectory) GetProduct(ctx context.Context, tenantID, id int64) (directory.Product, error) {
	product, ok := d.products[id]
	if !ok {
		return directory.Product{}, &shared.NotFoundError{Entity: "product", ID: fmt.Sprint(id)}
	}
	return product, nil
}

var testScope = shared.Scope{TenantID: 1, ActorID: 42}

func TestCreateRecordsReceipt(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, newMemoryDirectory(), nil)
	ctx := context.Background()

	rec, err := svc.Create(ctx, testScope, CreateInput{
		ProductID: 7, LocationID: 1, Qty: 46,
		UnitCost: decimal.NewFromFloat(12.50), Reference: "PO-1001",
	})
	require.NoError(t, err)
	require.Equal(t, int64(46), rec.RecordedQty)
	require.Equal(t, int64(42), rec.CreatedBy)
	require.Equal(t, rec, repo.records[rec.ID])
}

func TestCreateValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, newMemoryDirectory(), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, testScope, CreateInput{ProductID: 7, LocationID: 1, Qty: 0, UnitCost: decimal.NewFromInt(1)})
	require.Error(t, err)

	_, err = svc.Create(ctx, testScope, CreateInput{ProductID: 7, LocationID: 1, Qty: -5, UnitCost: decimal.NewFromInt(1)})
	require.Error(t, err)

	// Storefronts hold allocations, never intake batches.
	_, err = svc.Create(ctx, testScope, CreateInput{ProductID: 7, LocationID: 2, Qty: 5, UnitCost: decimal.NewFromInt(1)})
	var valErr *shared.ValidationError
	require.ErrorAs(t, err, &valErr)
	require.Equal(t, "location_id", valErr.Field)

	_, err = svc.Create(ctx, testScope, CreateInput{ProductID: 999, LocationID: 1, Qty: 5, UnitCost: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.Empty(t, repo.records)
}

func TestRecountUpdatesQtyAndLogsAdjustment(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, newMemoryDirectory(), nil)
	ctx := context.Background()

	rec, err := svc.Create(ctx, testScope, CreateInput{ProductID: 7, LocationID: 1, Qty: 46, UnitCost: decimal.NewFromInt(10)})
	require.NoError(t, err)

	updated, err := svc.Recount(ctx, testScope, RecountInput{
		IntakeID: rec.ID, CountedQty: 40, Reason: "annual stocktake", Confirm: true,
	})
	require.NoError(t, err)
	require.Equal(t, int64(40), updated.RecordedQty)
	require.Equal(t, int64(40), repo.records[rec.ID].RecordedQty)
	require.Len(t, repo.recounts, 1)
	require.Equal(t, int64(-6), repo.recounts[0].delta)
	require.Equal(t, "annual stocktake", repo.recounts[0].reason)
}

func TestRecountNoOpWhenCountMatches(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, newMemoryDirectory(), nil)
	ctx := context.Background()

	rec, err := svc.Create(ctx, testScope, CreateInput{ProductID: 7, LocationID: 1, Qty: 46, UnitCost: decimal.NewFromInt(10)})
	require.NoError(t, err)

	updated, err := svc.Recount(ctx, testScope, RecountInput{
		IntakeID: rec.ID, CountedQty: 46, Reason: "annual stocktake", Confirm: true,
	})
	require.NoError(t, err)
	require.Equal(t, int64(46), updated.RecordedQty)
	require.Empty(t, repo.recounts, "a matching count leaves no adjustment behind")
}

func TestRecountGuards(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, newMemoryDirectory(), nil)
	ctx := context.Background()

	rec, err := svc.Create(ctx, testScope, CreateInput{ProductID: 7, LocationID: 1, Qty: 46, UnitCost: decimal.NewFromInt(10)})
	require.NoError(t, err)

	_, err = svc.Recount(ctx, testScope, RecountInput{IntakeID: rec.ID, CountedQty: 40, Reason: "stocktake"})
	require.Error(t, err, "recount requires explicit confirmation")

	_, err = svc.Recount(ctx, testScope, RecountInput{IntakeID: rec.ID, CountedQty: 40, Confirm: true})
	require.Error(t, err, "recount requires a reason")

	_, err = svc.Recount(ctx, testScope, RecountInput{IntakeID: rec.ID, CountedQty: -1, Reason: "stocktake", Confirm: true})
	require.Error(t, err)

	_, err = svc.Recount(ctx, testScope, RecountInput{IntakeID: uuid.New(), CountedQty: 40, Reason: "stocktake", Confirm: true})
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.Equal(t, int64(46), repo.records[rec.ID].RecordedQty)
}
