package origin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds staleness of cached resolutions. Origin writes are
// rare, so a short TTL plus explicit invalidation on write is enough.
const DefaultCacheTTL = 5 * time.Minute

// CacheMetrics records cache lookup outcomes ("hit", "miss", "error").
// Satisfied by the middleware metrics registry.
type CacheMetrics interface {
	IncOriginCacheLookup(result string)
}

// CachedResolver is a read-through Redis cache in front of a Resolver.
// Cache failures degrade to the underlying resolver; they are logged, never
// surfaced to the request. Negative results are not cached so a freshly
// registered domain resolves immediately.
type CachedResolver struct {
	next    Resolver
	client  *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	metrics CacheMetrics // optional
}

// NewCachedResolver wraps next with a Redis-backed domain cache.
func NewCachedResolver(next Resolver, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedResolver{next: next, client: client, ttl: ttl, logger: logger}
}

// SetMetrics wires lookup-outcome counters. Safe to leave unset.
func (c *CachedResolver) SetMetrics(m CacheMetrics) {
	c.metrics = m
}

func (c *CachedResolver) record(result string) {
	if c.metrics != nil {
		c.metrics.IncOriginCacheLookup(result)
	}
}

// ResolveDomain returns the cached origin for a domain, falling through to
// the underlying resolver on miss and populating the cache on success.
func (c *CachedResolver) ResolveDomain(ctx context.Context, domain string) (*Origin, error) {
	key := cacheKey(domain)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var o Origin
		if err := json.Unmarshal(data, &o); err == nil {
			c.record("hit")
			return &o, nil
		}
		// Corrupt entry: drop it and fall through.
		c.client.Del(ctx, key)
		c.record("miss")
	} else if err != redis.Nil {
		c.logger.Warn("origin cache read failed", "domain", domain, "error", err)
		c.record("error")
	} else {
		c.record("miss")
	}

	o, err := c.next.ResolveDomain(ctx, domain)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(o); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("origin cache write failed", "domain", domain, "error", err)
		}
	}
	return o, nil
}

// Invalidate drops the cached resolution for a domain. Called on origin
// writes so updates are visible without waiting out the TTL.
func (c *CachedResolver) Invalidate(ctx context.Context, domain string) {
	if err := c.client.Del(ctx, cacheKey(domain)).Err(); err != nil {
		c.logger.Warn("origin cache invalidation failed", "domain", domain, "error", err)
	}
}

func cacheKey(domain string) string {
	return fmt.Sprintf("origin:domain:%s", strings.ToLower(domain))
}
