package reconcile

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestComputeCleanIntakeBalances(t *testing.T) {
	snap := Compute(SnapshotInput{
		ProductID: 7,
		Intakes:   []IntakeSummary{{IntakeID: uuid.New(), Recorded: 46}},
		AsOf:      time.Now(),
	})
	require.Equal(t, int64(46), snap.Recorded)
	require.Equal(t, int64(46), snap.Available)
	require.Equal(t, int64(46), snap.WarehouseAvailable)
	require.Zero(t, snap.Difference)
	require.True(t, snap.Balanced)
	require.False(t, snap.Approximate)
}

func TestComputeDerivesAvailability(t *testing.T) {
	// Recorded 46 with a net +2 of completed adjustments: availability is 48
	// while the recorded figure stays untouched.
	snap := Compute(SnapshotInput{
		ProductID: 7,
		Intakes:   []IntakeSummary{{IntakeID: uuid.New(), Recorded: 46, AdjustmentSum: 2}},
	})
	require.Equal(t, int64(46), snap.Recorded)
	require.Equal(t, int64(48), snap.Available)
}

func TestComputeWarehouseAvailableSubtractsAllocation(t *testing.T) {
	snap := Compute(SnapshotInput{
		ProductID: 7,
		Intakes:   []IntakeSummary{{IntakeID: uuid.New(), Recorded: 46, AdjustmentSum: 2, Allocated: 43}},
		// The 43 transferred units sit at storefronts.
		StorefrontOnHand: 43,
	})
	require.Equal(t, int64(5), snap.WarehouseAvailable)
	require.Equal(t, int64(43), snap.Allocated)
	require.Equal(t, int64(48), snap.Available)
}

func TestComputeSumsAcrossBatches(t *testing.T) {
	snap := Compute(SnapshotInput{
		ProductID: 7,
		Intakes: []IntakeSummary{
			{IntakeID: uuid.New(), Recorded: 30, AdjustmentSum: -5, Allocated: 10},
			{IntakeID: uuid.New(), Recorded: 20, Allocated: 5},
		},
		StorefrontOnHand: 15,
	})
	require.Equal(t, int64(50), snap.Recorded)
	require.Equal(t, int64(45), snap.Available)
	require.Equal(t, int64(15), snap.Allocated)
	require.Equal(t, int64(30), snap.WarehouseAvailable)
}

func TestComputeDifferenceIsDiagnostic(t *testing.T) {
	// Five units sold but never reported against the ledger: the snapshot
	// exposes the mismatch, it does not correct anything.
	snap := Compute(SnapshotInput{
		ProductID:        7,
		Intakes:          []IntakeSummary{{IntakeID: uuid.New(), Recorded: 50, Allocated: 20}},
		StorefrontOnHand: 15,
		Sold:             5,
	})
	require.Equal(t, int64(0), snap.Difference)
	require.True(t, snap.Balanced)

	// One unit walked out untracked.
	snap = Compute(SnapshotInput{
		ProductID:        7,
		Intakes:          []IntakeSummary{{IntakeID: uuid.New(), Recorded: 50, Allocated: 20}},
		StorefrontOnHand: 14,
		Sold:             5,
	})
	require.Equal(t, int64(-1), snap.Difference)
	require.False(t, snap.Balanced)
}

func TestComputeScopedIsApproximate(t *testing.T) {
	intakeID := uuid.New()
	snap := Compute(SnapshotInput{
		ProductID: 7,
		IntakeID:  intakeID,
		Intakes:   []IntakeSummary{{IntakeID: intakeID, Recorded: 46}},
		Scoped:    true,
	})
	require.True(t, snap.Approximate)
	require.Equal(t, ScopedCaveat, snap.Caveat)
	// Scoped snapshots never claim balance: the storefront figures cannot be
	// attributed to the requested batch.
	require.False(t, snap.Balanced)
	require.Zero(t, snap.Difference)
}
