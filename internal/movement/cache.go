package movement

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// summaryKeyVersion invalidates cached summaries when the Group shape
// changes.
const summaryKeyVersion = "v1"

// Cache keeps grouped movement summaries in Redis for a short TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs Cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func summaryKey(tenantID int64, filter Filter, grouping Grouping) string {
	return fmt.Sprintf("movement:summary:%s:%d:%s:%d:%d:%s:%s:%d:%d",
		summaryKeyVersion, tenantID, grouping, filter.LocationID, filter.ProductID,
		filter.Kind, filter.Search, filter.From.Unix(), filter.To.Unix())
}

// GetSummary returns the cached groups if present. Cache failures count as
// misses; the feed is always recomputable from the source tables.
func (c *Cache) GetSummary(ctx context.Context, tenantID int64, filter Filter, grouping Grouping) ([]Group, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, summaryKey(tenantID, filter, grouping)).Bytes()
	if err != nil {
		return nil, false
	}
	var groups []Group
	if err := json.Unmarshal(payload, &groups); err != nil {
		return nil, false
	}
	return groups, true
}

// SetSummary stores the groups under the filter's key.
func (c *Cache) SetSummary(ctx context.Context, tenantID int64, filter Filter, grouping Grouping, groups []Group) {
	if c == nil || c.client == nil {
		return
	}
	payload, err := json.Marshal(groups)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, summaryKey(tenantID, filter, grouping), payload, c.ttl).Err(); err != nil {
		slog.Warn("movement summary cache write failed", "error", err)
	}
}
