package movement

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/shared"
)

type memorySource struct {
	adjustments []Event
	transfers   []Event
	sales       []Event
	calls       int
}

func (s *memorySource) AdjustmentEvents(ctx context.Context, tenantID int64, from, to time.Time) ([]Event, error) {
	s.calls++
	return s.adjustments, nil
}

func (s *memorySource) TransferEvents(ctx context.Context, tenantID int64, from, to time.Time) ([]Event, error) {
	return s.transfers, nil
}

func (s *memorySource) SaleEvents(ctx context.Context, tenantID int64, from, to time.Time) ([]Event, error) {
	return s.sales, nil
}

var testScope = shared.Scope{TenantID: 1, ActorID: 42}

func day(d int) time.Time {
	return time.Date(2026, time.March, d, 12, 0, 0, 0, time.UTC)
}

func TestFeedMergesSources(t *testing.T) {
	source := &memorySource{
		adjustments: []Event{{Kind: KindAdjustment, Ref: "ADJ-1", Qty: -4, OccurredAt: day(2)}},
		transfers:   []Event{{Kind: KindTransfer, Ref: "TRF-1", Qty: 5, OccurredAt: day(1)}},
		sales:       []Event{{Kind: KindSale, Ref: "POS-1", Qty: -1, OccurredAt: day(3)}},
	}
	svc := NewService(source, nil)

	events, meta, err := svc.Feed(context.Background(), testScope, Filter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, "TRF-1", events[0].Ref)
	require.Equal(t, "POS-1", events[2].Ref)
	require.Equal(t, 3, meta.Total)

	sales, _, err := svc.Feed(context.Background(), testScope, Filter{Kind: KindSale})
	require.NoError(t, err)
	require.Len(t, sales, 1)
}

func TestSummaryRequiresValidGrouping(t *testing.T) {
	svc := NewService(&memorySource{}, nil)

	_, err := svc.Summary(context.Background(), testScope, Filter{}, Grouping("hourly"))
	var valErr *shared.ValidationError
	require.ErrorAs(t, err, &valErr)
	require.Equal(t, "grouping", valErr.Field)
}

func TestSummaryUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	source := &memorySource{
		adjustments: []Event{{Kind: KindAdjustment, Ref: "ADJ-1", Qty: -4, OccurredAt: day(2)}},
	}
	svc := NewService(source, NewCache(client, time.Minute))
	ctx := context.Background()

	first, err := svc.Summary(ctx, testScope, Filter{}, GroupDaily)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, int64(4), first[0].Out)
	require.Equal(t, 1, source.calls)

	// New events land, but the window is still served from cache.
	source.adjustments = append(source.adjustments, Event{Kind: KindAdjustment, Ref: "ADJ-2", Qty: -1, OccurredAt: day(2)})
	second, err := svc.Summary(ctx, testScope, Filter{}, GroupDaily)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, first[0].Period, second[0].Period)
	require.Equal(t, int64(4), second[0].Out, "stale by design until the TTL passes")
	require.Equal(t, 1, source.calls)

	// A different grouping is a different key.
	_, err = svc.Summary(ctx, testScope, Filter{}, GroupMonthly)
	require.NoError(t, err)
	require.Equal(t, 2, source.calls)

	// Expired entries fall through to a recompute.
	mr.FastForward(2 * time.Minute)
	third, err := svc.Summary(ctx, testScope, Filter{}, GroupDaily)
	require.NoError(t, err)
	require.Equal(t, int64(5), third[0].Out)
	require.Equal(t, 3, source.calls)
}

func TestSummaryWithoutCacheRecomputes(t *testing.T) {
	source := &memorySource{
		adjustments: []Event{{Kind: KindAdjustment, Ref: "ADJ-1", Qty: -4, OccurredAt: day(2)}},
	}
	svc := NewService(source, nil)
	ctx := context.Background()

	_, err := svc.Summary(ctx, testScope, Filter{}, GroupDaily)
	require.NoError(t, err)
	_, err = svc.Summary(ctx, testScope, Filter{}, GroupDaily)
	require.NoError(t, err)
	require.Equal(t, 2, source.calls)
}
