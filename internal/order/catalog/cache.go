package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/benningd54/Anlab/internal/order/pricing"
	"github.com/benningd54/Anlab/internal/platform/log"
	"github.com/go-redis/redis/v8"
)

const cacheKey = "anlab:test-items:v1"

// Cache is a redis read-through decorator over another catalog. Prices
// change rarely, so the whole active list is cached as one value. Any redis
// failure falls back to the inner catalog; the cache is never authoritative.
type Cache struct {
	inner pricing.Catalog
	rdb   *redis.Client
	ttl   time.Duration
	log   *log.Logger
}

func NewCache(inner pricing.Catalog, rdb *redis.Client, ttl time.Duration, logger *log.Logger) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{inner: inner, rdb: rdb, ttl: ttl, log: logger}
}

func (c *Cache) ListActive(ctx context.Context) ([]pricing.Entry, error) {
	if b, err := c.rdb.Get(ctx, cacheKey).Bytes(); err == nil {
		var entries []pricing.Entry
		if err := json.Unmarshal(b, &entries); err == nil {
			return entries, nil
		}
		c.log.Error("discarding undecodable catalog cache entry")
	}

	entries, err := c.inner.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(entries); err == nil {
		if err := c.rdb.Set(ctx, cacheKey, b, c.ttl).Err(); err != nil {
			c.log.Error("failed to cache catalog", log.Err(err))
		}
	}

	return entries, nil
}

func (c *Cache) FindByCodes(ctx context.Context, codes []string) ([]pricing.Entry, []string, error) {
	all, err := c.ListActive(ctx)
	if err != nil {
		return nil, nil, err
	}
	byCode := make(map[string]pricing.Entry, len(all))
	for _, e := range all {
		byCode[e.Code] = e
	}

	var entries []pricing.Entry
	var missing []string
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if seen[code] {
			continue
		}
		seen[code] = true
		if e, ok := byCode[code]; ok {
			entries = append(entries, e)
		} else {
			missing = append(missing, code)
		}
	}
	return entries, missing, nil
}

// Invalidate drops the cached price list, e.g. after a catalog import.
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, cacheKey).Err()
}
