package adjustment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/shared"
)

type memoryRepo struct {
	intakes     map[uuid.UUID]IntakeRef
	adjustments map[uuid.UUID]Adjustment
	allocated   map[uuid.UUID]int64
	failures    int
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		intakes:     make(map[uuid.UUID]IntakeRef),
		adjustments: make(map[uuid.UUID]Adjustment),
		allocated:   make(map[uuid.UUID]int64),
	}
}

func (r *memoryRepo) addIntake(recorded int64, unitCost decimal.Decimal) IntakeRef {
	ref := IntakeRef{ID: uuid.New(), TenantID: 1, ProductID: 7, LocationID: 1, RecordedQty: recorded, UnitCost: unitCost}
	r.intakes[ref.ID] = ref
	return ref
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r.failures > 0 {
		r.failures--
		return &shared.ConcurrencyError{Op: "adjustment"}
	}
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Get(ctx context.Context, tenantID int64, id uuid.UUID) (Adjustment, error) {
	adj, ok := r.adjustments[id]
	if !ok {
		return Adjustment{}, &shared.NotFoundError{Entity: "adjustment", ID: id.String()}
	}
	return adj, nil
}

func (r *memoryRepo) List(ctx context.Context, tenantID int64, filter Filter) ([]Adjustment, shared.Pagination, error) {
	out := make([]Adjustment, 0, len(r.adjustments))
	for _, adj := range r.adjustments {
		out = append(out, adj)
	}
	return out, shared.NewPagination(1, 20, len(out)), nil
}

func (tx *memoryTx) GetIntakeForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (IntakeRef, error) {
	ref, ok := tx.repo.intakes[id]
	if !ok {
		return IntakeRef{}, &shared.NotFoundError{Entity: "intake record", ID: id.String()}
	}
	return ref, nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (Adjustment, error) {
	return tx.repo.Get(ctx, tenantID, id)
}

func (tx *memoryTx) Insert(ctx context.Context, adj Adjustment) error {
	tx.repo.adjustments[adj.ID] = adj
	return nil
}

func (tx *memoryTx) Update(ctx context.Context, adj Adjustment) error {
	tx.repo.adjustments[adj.ID] = adj
	return nil
}

func (tx *memoryTx) SumCompleted(ctx context.Context, tenantID int64, intakeID uuid.UUID) (int64, error) {
	var sum int64
	for _, adj := range tx.repo.adjustments {
		if adj.IntakeID != intakeID || adj.Status != StatusCompleted || adj.Type == TypeRecount {
			continue
		}
		sum += adj.Qty
	}
	return sum, nil
}

func (tx *memoryTx) SumAllocated(ctx context.Context, tenantID int64, intakeID uuid.UUID) (int64, error) {
	return tx.repo.allocated[intakeID], nil
}

type memoryMetrics struct {
	completions map[string]int
	retries     int
}

func newMemoryMetrics() *memoryMetrics {
	return &memoryMetrics{completions: make(map[string]int)}
}

func (m *memoryMetrics) CompletionRecorded(entity, outcome string) {
	m.completions[entity+":"+outcome]++
}

func (m *memoryMetrics) RetryRecorded() { m.retries++ }

var testScope = shared.Scope{TenantID: 1, ActorID: 42}

func approveAndComplete(t *testing.T, svc *Service, id uuid.UUID) Adjustment {
	t.Helper()
	adj, err := svc.Approve(context.Background(), testScope, id)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, adj.Status)
	return adj
}

func TestAdjustmentLedgerLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	intake := repo.addIntake(46, decimal.NewFromInt(10))
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	steps := []struct {
		typ Type
		qty int64
	}{
		{TypeDamage, 4},
		{TypeTheft, 6},
		{TypeSample, 5},
		{TypeDamage, 3},
	}
	for _, step := range steps {
		adj, err := svc.Create(ctx, testScope, CreateInput{IntakeID: intake.ID, Type: step.typ, Qty: step.qty, Reason: "stocktake"})
		require.NoError(t, err)
		require.Equal(t, StatusPending, adj.Status)
		require.True(t, adj.RequiresApproval)
		require.Equal(t, -step.qty, adj.Qty, "loss quantities are stored negative")
		approveAndComplete(t, svc, adj.ID)
	}

	// Gains below the threshold complete in the create transaction.
	for _, qty := range []int64{14, 6} {
		adj, err := svc.Create(ctx, testScope, CreateInput{IntakeID: intake.ID, Type: TypeCorrectionIncrease, Qty: qty, Reason: "found in back room"})
		require.NoError(t, err)
		require.Equal(t, StatusCompleted, adj.Status)
		require.False(t, adj.RequiresApproval)
	}

	sum, err := (&memoryTx{repo: repo}).SumCompleted(ctx, 1, intake.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), sum)
	require.Equal(t, int64(48), intake.RecordedQty+sum, "availability is derived, recorded_qty untouched")
	require.Equal(t, int64(46), repo.intakes[intake.ID].RecordedQty)
}

func TestCreateValidation(t *testing.T) {
	repo := newMemoryRepo()
	intake := repo.addIntake(10, decimal.NewFromInt(5))
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Create(ctx, testScope, CreateInput{IntakeID: intake.ID, Type: TypeDamage, Qty: 0, Reason: "broken"})
	require.Error(t, err)

	_, err = svc.Create(ctx, testScope, CreateInput{IntakeID: intake.ID, Type: TypeDamage, Qty: 2})
	require.Error(t, err)

	_, err = svc.Create(ctx, testScope, CreateInput{IntakeID: intake.ID, Type: Type("SHOPLIFTING"), Qty: 2, Reason: "x"})
	require.Error(t, err)

	_, err = svc.Create(ctx, testScope, CreateInput{IntakeID: uuid.New(), Type: TypeDamage, Qty: 2, Reason: "broken"})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Create(ctx, shared.Scope{}, CreateInput{IntakeID: intake.ID, Type: TypeDamage, Qty: 2, Reason: "broken"})
	require.Error(t, err)
}

func TestApproveLeavesRetryableOnShortfall(t *testing.T) {
	repo := newMemoryRepo()
	intake := repo.addIntake(10, decimal.NewFromInt(5))
	metrics := newMemoryMetrics()
	svc := NewService(repo, nil, nil, metrics, ServiceConfig{})
	ctx := context.Background()

	created, err := svc.Create(ctx, testScope, CreateInput{IntakeID: intake.ID, Type: TypeWriteOff, Qty: 15, Reason: "flood damage"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, created.Status)

	adj, err := svc.Approve(ctx, testScope, created.ID)
	var availErr *shared.InsufficientAvailabilityError
	require.ErrorAs(t, err, &availErr)
	require.Equal(t, int64(10), availErr.Available)
	require.Equal(t, int64(-15), availErr.Requested)

	// Approval stuck, not lost: the adjustment stays APPROVED and retryable.
	require.Equal(t, StatusApproved, adj.Status)
	require.Equal(t, StatusApproved, repo.adjustments[created.ID].Status)
	require.Equal(t, 1, metrics.completions["adjustment:insufficient"])

	// Stock arrives; the same adjustment now completes.
	bigger := repo.intakes[intake.ID]
	bigger.RecordedQty = 20
	repo.intakes[intake.ID] = bigger
	done, err := svc.Complete(ctx, testScope, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
}

func TestCompleteRespectsAllocation(t *testing.T) {
	repo := newMemoryRepo()
	intake := repo.addIntake(20, decimal.NewFromInt(5))
	repo.allocated[intake.ID] = 15
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	created, err := svc.Create(ctx, testScope, CreateInput{IntakeID: intake.ID, Type: TypeDamage, Qty: 8, Reason: "crushed pallet"})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, testScope, created.ID)
	var availErr *shared.InsufficientAvailabilityError
	require.ErrorAs(t, err, &availErr)
	require.Equal(t, int64(15), availErr.Allocated)
}

func TestRejectNeverTakesEffect(t *testing.T) {
	repo := newMemoryRepo()
	intake := repo.addIntake(46, decimal.NewFromInt(5))
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	created, err := svc.Create(ctx, testScope, CreateInput{IntakeID: intake.ID, Type: TypeTheft, Qty: 6, Reason: "suspected"})
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, testScope, created.ID, "footage shows restock")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)

	sum, err := (&memoryTx{repo: repo}).SumCompleted(ctx, 1, intake.ID)
	require.NoError(t, err)
	require.Zero(t, sum)

	// Terminal states refuse further transitions, naming the current one.
	_, err = svc.Approve(ctx, testScope, created.ID)
	var stateErr *shared.StateError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, "REJECTED", stateErr.Current)

	_, err = svc.Reject(ctx, testScope, created.ID, "again")
	require.ErrorAs(t, err, &stateErr)

	_, err = svc.Edit(ctx, testScope, created.ID, EditInput{})
	require.ErrorAs(t, err, &stateErr)
}

func TestEditRecomputesDerivedFields(t *testing.T) {
	repo := newMemoryRepo()
	intake := repo.addIntake(46, decimal.NewFromInt(10))
	svc := NewService(repo, nil, nil, nil, ServiceConfig{ApprovalThreshold: decimal.NewFromInt(100)})
	ctx := context.Background()

	created, err := svc.Create(ctx, testScope, CreateInput{IntakeID: intake.ID, Type: TypeDamage, Qty: 4, Reason: "dropped"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, created.Status)

	qty := int64(9)
	edited, err := svc.Edit(ctx, testScope, created.ID, EditInput{Qty: &qty})
	require.NoError(t, err)
	require.Equal(t, int64(-9), edited.Qty)
	require.True(t, edited.TotalCost.Equal(decimal.NewFromInt(90)))
	require.True(t, edited.RequiresApproval)
}

func TestCompleteRetriesLostRaceOnce(t *testing.T) {
	repo := newMemoryRepo()
	intake := repo.addIntake(46, decimal.NewFromInt(5))
	metrics := newMemoryMetrics()
	svc := NewService(repo, nil, nil, metrics, ServiceConfig{})
	ctx := context.Background()

	created, err := svc.Create(ctx, testScope, CreateInput{IntakeID: intake.ID, Type: TypeTheft, Qty: 3, Reason: "suspected"})
	require.NoError(t, err)
	approved := repo.adjustments[created.ID]
	approved.Status = StatusApproved
	repo.adjustments[created.ID] = approved

	repo.failures = 1
	done, err := svc.Complete(ctx, testScope, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.Equal(t, 1, metrics.retries)

	// Two straight losses surface the concurrency error.
	second, err := svc.Create(ctx, testScope, CreateInput{IntakeID: intake.ID, Type: TypeTheft, Qty: 1, Reason: "suspected"})
	require.NoError(t, err)
	approved = repo.adjustments[second.ID]
	approved.Status = StatusApproved
	repo.adjustments[second.ID] = approved

	repo.failures = 2
	_, err = svc.Complete(ctx, testScope, second.ID)
	var concErr *shared.ConcurrencyError
	require.ErrorAs(t, err, &concErr)
	require.Equal(t, 2, metrics.retries)
}
