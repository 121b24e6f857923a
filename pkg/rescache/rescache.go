// Package rescache caches the raw bytes fetched for href/use targets during
// hydration.
//
// Caching here is a pure optimization: fetches go through a Cache only when
// a fetch.CachingFetcher is installed (orchestrator.WithResourceCache), and
// a miss (or a NullCache) changes nothing about hydration semantics, only
// how often pkg/fetch is asked to do work. CachingFetcher keys entries by
// the resolved URI alone, so two href attributes pointing at the same
// document share one fetch.
package rescache

import (
	"context"
	"time"
)

// Cache stores fetched resource bytes keyed by a caller-chosen string, with
// an optional per-entry TTL. Implementations must be safe for concurrent use
// since hydration dispatches strategies for sibling nodes independently.
type Cache interface {
	// Get returns the cached bytes for key and whether the entry was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. ttl <= 0 means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes the entry for key, if present.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}

// ResourceKey builds the cache key for a fetched URI. ref, when non-empty,
// is the fragment selector applied after fetch (e.g. a select-by-reference
// id) so distinct references into the same document cache independently.
func ResourceKey(uri, ref string) string {
	if ref == "" {
		return "res:" + Hash([]byte(uri))
	}
	return "res:" + Hash([]byte(uri)) + ":" + Hash([]byte(ref))
}
