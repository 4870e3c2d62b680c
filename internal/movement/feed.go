package movement

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/stocklane/stocklane/internal/shared"
)

// Merge combines event slices into one chronological feed. Ordering is by
// occurrence time, then by reference so equal timestamps stay stable across
// calls. Pure projection over the inputs.
func Merge(sources ...[]Event) []Event {
	var merged []Event
	for _, events := range sources {
		merged = append(merged, events...)
	}
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].OccurredAt.Equal(merged[j].OccurredAt) {
			return merged[i].OccurredAt.Before(merged[j].OccurredAt)
		}
		return merged[i].Ref < merged[j].Ref
	})
	return merged
}

// Apply filters the feed. Free-text search matches reference and type with
// Unicode case folding.
func Apply(events []Event, filter Filter) []Event {
	fold := cases.Fold()
	search := fold.String(strings.TrimSpace(filter.Search))
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if filter.Kind != "" && ev.Kind != filter.Kind {
			continue
		}
		if filter.LocationID != 0 && ev.LocationID != filter.LocationID {
			continue
		}
		if filter.ProductID != 0 && ev.ProductID != filter.ProductID {
			continue
		}
		if search != "" && !strings.Contains(fold.String(ev.Ref), search) && !strings.Contains(fold.String(ev.Type), search) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Paginate slices one page from an already filtered, sorted feed.
func Paginate(events []Event, pageNum, perPage int) ([]Event, shared.Pagination) {
	page := shared.NewPagination(pageNum, perPage, len(events))
	start := page.Offset()
	if start >= len(events) {
		return []Event{}, page
	}
	end := start + page.PerPage
	if end > len(events) {
		end = len(events)
	}
	return events[start:end], page
}

// GroupBy buckets the feed by period. Buckets are returned in chronological
// order; the source events are untouched.
func GroupBy(events []Event, grouping Grouping) []Group {
	buckets := make(map[string]*Group)
	for _, ev := range events {
		period, start := bucket(ev.OccurredAt, grouping)
		g, ok := buckets[period]
		if !ok {
			g = &Group{Period: period, Start: start}
			buckets[period] = g
		}
		if ev.Qty >= 0 {
			g.In += ev.Qty
		} else {
			g.Out += -ev.Qty
		}
		g.Value = g.Value.Add(ev.Value)
		g.Count++
	}
	groups := make([]Group, 0, len(buckets))
	for _, g := range buckets {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Start.Before(groups[j].Start) })
	return groups
}

func bucket(at time.Time, grouping Grouping) (string, time.Time) {
	at = at.UTC()
	switch grouping {
	case GroupWeekly:
		year, week := at.ISOWeek()
		// Walk back to the ISO week's Monday.
		start := at.Truncate(24 * time.Hour)
		for start.Weekday() != time.Monday {
			start = start.AddDate(0, 0, -1)
		}
		return fmt.Sprintf("%d-W%02d", year, week), start
	case GroupMonthly:
		start := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
		return at.Format("2006-01"), start
	default:
		start := at.Truncate(24 * time.Hour)
		return at.Format("2006-01-02"), start
	}
}
