package movement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func at(day int, hour int) time.Time {
	return time.Date(2026, time.March, day, hour, 0, 0, 0, time.UTC)
}

func TestMergeIsChronological(t *testing.T) {
	adjustments := []Event{
		{Kind: KindAdjustment, Ref: "ADJ-2", Qty: -4, OccurredAt: at(2, 10)},
	}
	transfers := []Event{
		{Kind: KindTransfer, Ref: "TRF-1", Qty: -5, OccurredAt: at(1, 9)},
		{Kind: KindTransfer, Ref: "TRF-3", Qty: 5, OccurredAt: at(3, 8)},
	}
	sales := []Event{
		{Kind: KindSale, Ref: "POS-1", Qty: -1, OccurredAt: at(2, 10)},
	}

	merged := Merge(adjustments, transfers, sales)
	require.Len(t, merged, 4)
	require.Equal(t, "TRF-1", merged[0].Ref)
	// Equal timestamps break the tie by reference, keeping the feed stable.
	require.Equal(t, "ADJ-2", merged[1].Ref)
	require.Equal(t, "POS-1", merged[2].Ref)
	require.Equal(t, "TRF-3", merged[3].Ref)
}

func TestApplyFilters(t *testing.T) {
	events := []Event{
		{Kind: KindAdjustment, Type: "DAMAGE", Ref: "ADJ-1", ProductID: 7, LocationID: 1, Qty: -4},
		{Kind: KindTransfer, Type: "transfer", Ref: "TRF-9", ProductID: 7, LocationID: 2, Qty: 5},
		{Kind: KindSale, Type: "SALE", Ref: "POS-5", ProductID: 8, LocationID: 2, Qty: -1},
	}

	byKind := Apply(events, Filter{Kind: KindTransfer})
	require.Len(t, byKind, 1)
	require.Equal(t, "TRF-9", byKind[0].Ref)

	byLocation := Apply(events, Filter{LocationID: 2})
	require.Len(t, byLocation, 2)

	byProduct := Apply(events, Filter{ProductID: 7})
	require.Len(t, byProduct, 2)

	// Search folds case on both reference and type.
	bySearch := Apply(events, Filter{Search: "trf"})
	require.Len(t, bySearch, 1)
	require.Equal(t, "TRF-9", bySearch[0].Ref)

	byType := Apply(events, Filter{Search: "damage"})
	require.Len(t, byType, 1)
	require.Equal(t, "ADJ-1", byType[0].Ref)

	require.Empty(t, Apply(events, Filter{Search: "nothing-matches"}))
}

func TestPaginate(t *testing.T) {
	events := make([]Event, 0, 5)
	for i := 0; i < 5; i++ {
		events = append(events, Event{Ref: string(rune('A' + i))})
	}

	page, meta := Paginate(events, 1, 2)
	require.Len(t, page, 2)
	require.Equal(t, 5, meta.Total)
	require.Equal(t, 3, meta.TotalPages)
	require.Equal(t, "A", page[0].Ref)

	page, _ = Paginate(events, 3, 2)
	require.Len(t, page, 1)
	require.Equal(t, "E", page[0].Ref)

	page, _ = Paginate(events, 9, 2)
	require.Empty(t, page)
}

func TestGroupByDaily(t *testing.T) {
	events := []Event{
		{Qty: 10, Value: decimal.NewFromInt(100), OccurredAt: at(1, 9)},
		{Qty: -4, Value: decimal.NewFromInt(40), OccurredAt: at(1, 17)},
		{Qty: -1, Value: decimal.NewFromInt(10), OccurredAt: at(2, 8)},
	}

	groups := GroupBy(events, GroupDaily)
	require.Len(t, groups, 2)
	require.Equal(t, "2026-03-01", groups[0].Period)
	require.Equal(t, int64(10), groups[0].In)
	require.Equal(t, int64(4), groups[0].Out)
	require.Equal(t, 2, groups[0].Count)
	require.True(t, groups[0].Value.Equal(decimal.NewFromInt(140)))
	require.Equal(t, "2026-03-02", groups[1].Period)
	require.Equal(t, 1, groups[1].Count)
}

func TestGroupByWeekly(t *testing.T) {
	// 2026-03-02 is a Monday; the 1st belongs to the previous ISO week.
	events := []Event{
		{Qty: 3, OccurredAt: at(1, 12)},
		{Qty: 5, OccurredAt: at(2, 12)},
		{Qty: 7, OccurredAt: at(9, 12)},
	}

	groups := GroupBy(events, GroupWeekly)
	require.Len(t, groups, 3)
	require.Equal(t, "2026-W09", groups[0].Period)
	require.Equal(t, "2026-W10", groups[1].Period)
	require.Equal(t, time.Monday, groups[1].Start.Weekday())
	require.Equal(t, "2026-W11", groups[2].Period)
}

func TestGroupByMonthly(t *testing.T) {
	events := []Event{
		{Qty: 3, OccurredAt: time.Date(2026, time.February, 27, 0, 0, 0, 0, time.UTC)},
		{Qty: 5, OccurredAt: at(1, 12)},
		{Qty: -2, OccurredAt: at(30, 12)},
	}

	groups := GroupBy(events, GroupMonthly)
	require.Len(t, groups, 2)
	require.Equal(t, "2026-02", groups[0].Period)
	require.Equal(t, "2026-03", groups[1].Period)
	require.Equal(t, int64(5), groups[1].In)
	require.Equal(t, int64(2), groups[1].Out)
}

func TestGroupingValid(t *testing.T) {
	require.True(t, GroupDaily.Valid())
	require.True(t, GroupWeekly.Valid())
	require.True(t, GroupMonthly.Valid())
	require.False(t, Grouping("hourly").Valid())
	require.False(t, Grouping("").Valid())
}
