package enrichment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"affiliatescout/internal/domain"
	"affiliatescout/internal/metrics"
)

const cachePrefix = "affiliatescout:profile:"

// CachedResolver serves profile lookups from Redis and forwards misses to
// the wrapped resolver. Redis errors degrade to misses.
type CachedResolver struct {
	platform domain.Platform
	next     Resolver
	rdb      *redis.Client
	ttl      time.Duration
	logger   zerolog.Logger
}

// WithCache wraps next. A nil client returns next unchanged.
func WithCache(platform domain.Platform, next Resolver, rdb *redis.Client, ttl time.Duration, logger zerolog.Logger) Resolver {
	if rdb == nil {
		return next
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedResolver{platform: platform, next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *CachedResolver) key(u string) string {
	return cachePrefix + string(c.platform) + ":" + URLKey(u)
}

// BatchResolve implements Resolver.
func (c *CachedResolver) BatchResolve(ctx context.Context, urls []string) (map[string]domain.ProfileMetadata, error) {
	out := make(map[string]domain.ProfileMetadata, len(urls))
	if len(urls) == 0 {
		return out, nil
	}
	keys := make([]string, len(urls))
	for i, u := range urls {
		keys[i] = c.key(u)
	}

	misses := urls
	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn().Err(err).Str("platform", string(c.platform)).Msg("enrichment: cache read failed")
	} else {
		misses = make([]string, 0, len(urls))
		for i, v := range values {
			s, ok := v.(string)
			var meta domain.ProfileMetadata
			if ok && json.Unmarshal([]byte(s), &meta) == nil {
				out[urls[i]] = meta
				continue
			}
			misses = append(misses, urls[i])
		}
	}
	metrics.EnrichmentCache.WithLabelValues(string(c.platform), "hit").Add(float64(len(out)))
	metrics.EnrichmentCache.WithLabelValues(string(c.platform), "miss").Add(float64(len(misses)))
	if len(misses) == 0 {
		return out, nil
	}

	resolved, err := c.next.BatchResolve(ctx, misses)
	if err != nil {
		return nil, err
	}
	pipe := c.rdb.Pipeline()
	for u, meta := range resolved {
		out[u] = meta
		raw, err := json.Marshal(meta)
		if err != nil {
			continue
		}
		pipe.Set(ctx, c.key(u), raw, c.ttl)
	}
	if len(resolved) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			c.logger.Warn().Err(err).Str("platform", string(c.platform)).Msg("enrichment: cache write failed")
		}
	}
	return out, nil
}
