package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersion = "v1"

// Cache stores rendered summaries in Redis. A version segment in the key
// lets a schema change invalidate old entries without a flush.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs the cache. client may be nil, which disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func summaryKey() string {
	return fmt.Sprintf("insights:%s:pipeline-summary", cacheVersion)
}

// Get returns the cached summary, or nil on miss.
func (c *Cache) Get(ctx context.Context) (*Summary, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	raw, err := c.client.Get(ctx, summaryKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var summary Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, nil
	}
	return &summary, nil
}

// Set stores the summary.
func (c *Cache) Set(ctx context.Context, summary *Summary) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, summaryKey(), raw, c.ttl).Err()
}

// Invalidate drops the cached summary.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, summaryKey()).Err()
}
