// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers can register hooks at startup
// to receive events about hydration, dispatch, and resource-fetch operations.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// This approach:
//   - Avoids import cycles (hooks are registered by main, not by libraries)
//   - Keeps the core library dependency-free from observability frameworks
//   - Allows different backends (OpenTelemetry, Prometheus, DataDog, etc.)
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetHydrationHooks(&myHydrationHooks{})
//	    observability.SetDispatchHooks(&myDispatchHooks{})
//	    // ... run orchestrator
//	}
//
// Callers invoke hooks to emit events:
//
//	observability.Hydration().OnHydrationStart(ctx, requestID)
//	// ... hydrate request ...
//	observability.Hydration().OnHydrationComplete(ctx, requestID, itemCount, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Hydration Hooks
// =============================================================================

// HydrationHooks receives events from the XML hydration engine.
type HydrationHooks interface {
	// OnHydrationStart records the start of a full hydrate pass over a request.
	OnHydrationStart(ctx context.Context, requestID string)

	// OnHydrationComplete records the end of a hydrate pass, including how
	// many item nodes the pass produced (a single input node can multiply
	// into several output nodes).
	OnHydrationComplete(ctx context.Context, requestID string, itemCount int, duration time.Duration, err error)

	// OnStrategyApplied records a single strategy (href, use, attribute
	// select, select) resolving against one node.
	OnStrategyApplied(ctx context.Context, requestID, strategy string, duration time.Duration, err error)
}

// =============================================================================
// Dispatch Hooks
// =============================================================================

// DispatchHooks receives events from the request orchestrator's group
// dispatch and completion-collection loop.
type DispatchHooks interface {
	// OnGroupStart records a group of tasks being fanned out.
	OnGroupStart(ctx context.Context, requestID string, groupIndex, taskCount int)

	// OnGroupComplete records a group reaching a terminal state (all tasks
	// completed, or the group deadline elapsed).
	OnGroupComplete(ctx context.Context, requestID string, groupIndex int, duration time.Duration, err error)

	// OnTaskDispatch records a single task handed to the invoker.
	OnTaskDispatch(ctx context.Context, requestID, taskID string)

	// OnTaskRetry records a task being re-dispatched after a failure.
	OnTaskRetry(ctx context.Context, requestID, taskID string, attempt int)

	// OnTaskFailure records a task exhausting MAX_TASK_RETRIES.
	OnTaskFailure(ctx context.Context, requestID, taskID string, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from the resource cache.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// Fetch Hooks
// =============================================================================

// FetchHooks receives events from resource fetchers (file://, s3://).
type FetchHooks interface {
	// OnFetchStart records an outgoing resource fetch.
	OnFetchStart(ctx context.Context, scheme, uri string)

	// OnFetchComplete records a completed fetch.
	OnFetchComplete(ctx context.Context, scheme, uri string, bytesRead int, duration time.Duration)

	// OnFetchError records a fetch failure (network failure, missing key, timeout).
	OnFetchError(ctx context.Context, scheme, uri string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopHydrationHooks is a no-op implementation of HydrationHooks.
type NoopHydrationHooks struct{}

func (NoopHydrationHooks) OnHydrationStart(context.Context, string)                          {}
func (NoopHydrationHooks) OnHydrationComplete(context.Context, string, int, time.Duration, error) {
}
func (NoopHydrationHooks) OnStrategyApplied(context.Context, string, string, time.Duration, error) {
}

// NoopDispatchHooks is a no-op implementation of DispatchHooks.
type NoopDispatchHooks struct{}

func (NoopDispatchHooks) OnGroupStart(context.Context, string, int, int)                {}
func (NoopDispatchHooks) OnGroupComplete(context.Context, string, int, time.Duration, error) {}
func (NoopDispatchHooks) OnTaskDispatch(context.Context, string, string)                {}
func (NoopDispatchHooks) OnTaskRetry(context.Context, string, string, int)              {}
func (NoopDispatchHooks) OnTaskFailure(context.Context, string, string, error)          {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopFetchHooks is a no-op implementation of FetchHooks.
type NoopFetchHooks struct{}

func (NoopFetchHooks) OnFetchStart(context.Context, string, string)                      {}
func (NoopFetchHooks) OnFetchComplete(context.Context, string, string, int, time.Duration) {}
func (NoopFetchHooks) OnFetchError(context.Context, string, string, error)                {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	hydrationHooks HydrationHooks = NoopHydrationHooks{}
	dispatchHooks  DispatchHooks  = NoopDispatchHooks{}
	cacheHooks     CacheHooks     = NoopCacheHooks{}
	fetchHooks     FetchHooks     = NoopFetchHooks{}
	hooksMu        sync.RWMutex
)

// SetHydrationHooks registers custom hydration hooks.
// This should be called once at application startup before any hydration.
func SetHydrationHooks(h HydrationHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		hydrationHooks = h
	}
}

// SetDispatchHooks registers custom dispatch hooks.
// This should be called once at application startup before running the orchestrator.
func SetDispatchHooks(h DispatchHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		dispatchHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetFetchHooks registers custom fetch hooks.
// This should be called once at application startup before any fetch operations.
func SetFetchHooks(h FetchHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		fetchHooks = h
	}
}

// Hydration returns the registered hydration hooks.
func Hydration() HydrationHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return hydrationHooks
}

// Dispatch returns the registered dispatch hooks.
func Dispatch() DispatchHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return dispatchHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Fetch returns the registered fetch hooks.
func Fetch() FetchHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return fetchHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	hydrationHooks = NoopHydrationHooks{}
	dispatchHooks = NoopDispatchHooks{}
	cacheHooks = NoopCacheHooks{}
	fetchHooks = NoopFetchHooks{}
}
