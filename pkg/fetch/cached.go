package fetch

import (
	"context"
	"time"

	"github.com/thuduc/fan-out-fan-in/pkg/observability"
	"github.com/thuduc/fan-out-fan-in/pkg/rescache"
)

// CachingFetcher wraps an underlying Fetcher with a byte cache keyed by the
// resolved URI, so repeated href/use targets within (or across) a hydration
// pass don't refetch the same document. A cache miss or a rescache.NullCache
// behaves exactly like the uncached Fetcher — caching here is a pure
// optimization, never a semantic change.
type CachingFetcher struct {
	inner Fetcher
	cache rescache.Cache
	ttl   int64 // seconds; 0 means no expiration
}

// NewCachingFetcher wraps inner with cache. ttlSeconds <= 0 means entries
// never expire.
func NewCachingFetcher(inner Fetcher, cache rescache.Cache, ttlSeconds int64) *CachingFetcher {
	return &CachingFetcher{inner: inner, cache: cache, ttl: ttlSeconds}
}

func (c *CachingFetcher) Supports(uri string) bool {
	return c.inner.Supports(uri)
}

func (c *CachingFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	key := rescache.ResourceKey(uri, "")

	if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		observability.Cache().OnCacheHit(ctx, "fetch")
		return data, nil
	} else if err == nil {
		observability.Cache().OnCacheMiss(ctx, "fetch")
	}

	data, err := c.inner.Fetch(ctx, uri)
	if err != nil {
		return nil, err
	}

	ttl := ttlDuration(c.ttl)
	if err := c.cache.Set(ctx, key, data, ttl); err == nil {
		observability.Cache().OnCacheSet(ctx, "fetch", len(data))
	}
	return data, nil
}

func ttlDuration(seconds int64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
