package movement

import (
	"context"
	"time"

	"github.com/stocklane/stocklane/internal/shared"
)

// EventSource reads raw events per tenant and window.
type EventSource interface {
	AdjustmentEvents(ctx context.Context, tenantID int64, from, to time.Time) ([]Event, error)
	TransferEvents(ctx context.Context, tenantID int64, from, to time.Time) ([]Event, error)
	SaleEvents(ctx context.Context, tenantID int64, from, to time.Time) ([]Event, error)
}

// Service produces the unified movement feed.
type Service struct {
	source EventSource
	cache  *Cache
}

// NewService builds Service. Cache may be nil; summaries are then computed on
// every call.
func NewService(source EventSource, cache *Cache) *Service {
	return &Service{source: source, cache: cache}
}

// Feed returns one page of the chronologically merged movement feed.
func (s *Service) Feed(ctx context.Context, scope shared.Scope, filter Filter) ([]Event, shared.Pagination, error) {
	if err := scope.Validate(); err != nil {
		return nil, shared.Pagination{}, err
	}
	events, err := s.load(ctx, scope.TenantID, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	page, pagination := Paginate(events, filter.Page, filter.PerPage)
	return page, pagination, nil
}

// Summary returns grouped movement totals. Results are cached briefly since
// historical windows rarely change between dashboard refreshes.
func (s *Service) Summary(ctx context.Context, scope shared.Scope, filter Filter, grouping Grouping) ([]Group, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if !grouping.Valid() {
		return nil, shared.NewValidationError("grouping", "grouping must be daily, weekly or monthly")
	}
	if s.cache != nil {
		if groups, ok := s.cache.GetSummary(ctx, scope.TenantID, filter, grouping); ok {
			return groups, nil
		}
	}
	events, err := s.load(ctx, scope.TenantID, filter)
	if err != nil {
		return nil, err
	}
	groups := GroupBy(events, grouping)
	if s.cache != nil {
		s.cache.SetSummary(ctx, scope.TenantID, filter, grouping, groups)
	}
	return groups, nil
}

func (s *Service) load(ctx context.Context, tenantID int64, filter Filter) ([]Event, error) {
	adjustments, err := s.source.AdjustmentEvents(ctx, tenantID, filter.From, filter.To)
	if err != nil {
		return nil, err
	}
	transfers, err := s.source.TransferEvents(ctx, tenantID, filter.From, filter.To)
	if err != nil {
		return nil, err
	}
	sales, err := s.source.SaleEvents(ctx, tenantID, filter.From, filter.To)
	if err != nil {
		return nil, err
	}
	return Apply(Merge(adjustments, transfers, sales), filter), nil
}
