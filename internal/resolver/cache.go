package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

const (
	cacheKeyPrefix = "lcsearch:resolve:"
	cacheTTL       = 24 * time.Hour
)

// cacheEntry is the stored form of a lookup, including negative answers
// so unknown names do not hammer the upstream service.
type cacheEntry struct {
	Found      bool       `json:"found"`
	Resolution Resolution `json:"resolution"`
}

// CachedResolver caches resolutions in redis/valkey via rueidis. Cache
// failures fall through to the inner resolver.
type CachedResolver struct {
	inner      Resolver
	client     rueidis.Client
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// NewCached creates a caching decorator around a resolver.
// cacheTotal is a counter vec with label "result" ("hit"/"miss").
func NewCached(
	inner Resolver,
	client rueidis.Client,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedResolver {
	return &CachedResolver{inner: inner, client: client, cacheTotal: cacheTotal, logger: logger}
}

// Resolve implements Resolver.
func (c *CachedResolver) Resolve(ctx context.Context, name string) (Resolution, bool, error) {
	key := c.cacheKey(name)

	if entry, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return entry.Resolution, entry.Found, nil
	}
	c.incCache("miss")

	res, found, err := c.inner.Resolve(ctx, name)
	if err != nil {
		return Resolution{}, false, err
	}

	c.putToCache(ctx, key, cacheEntry{Found: found, Resolution: res})
	return res, found, nil
}

func (c *CachedResolver) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedResolver) cacheKey(name string) string {
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(name))))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedResolver) getFromCache(ctx context.Context, key string) (cacheEntry, bool) {
	cmd := c.client.B().Get().Key(key).Build()
	data, err := c.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if !rueidis.IsRedisNil(err) {
			c.logger.Warn("Failed to read resolver cache", zap.String("key", key), zap.Error(err))
		}
		return cacheEntry{}, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("Corrupt resolver cache entry", zap.String("key", key), zap.Error(err))
		return cacheEntry{}, false
	}
	return entry, true
}

func (c *CachedResolver) putToCache(ctx context.Context, key string, entry cacheEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("Failed to encode resolver cache entry", zap.Error(err))
		return
	}
	cmd := c.client.B().Set().Key(key).Value(rueidis.BinaryString(data)).Ex(cacheTTL).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		c.logger.Warn("Failed to write resolver cache", zap.String("key", key), zap.Error(err))
	}
}

var _ Resolver = (*CachedResolver)(nil)
