// Package httputil provides transport-level utilities for the resource
// fetchers (currently used by S3Fetcher).
//
// # Overview
//
// This package provides one piece of infrastructure used across the
// orchestrator: [Retry], automatic retry with exponential backoff for
// transient transport failures.
//
// # Retry
//
// [Retry] wraps an operation with automatic retry for transient failures:
//
//   - Network errors
//   - 5xx server errors
//   - 429 rate limit responses
//
// It uses exponential backoff to avoid thundering herd:
//
//	err := httputil.Retry(ctx, 3, time.Second, func() error {
//	    return fetchFromS3()
//	})
//
// Only errors wrapped with [Retryable] trigger a retry; a function that
// returns a plain error is treated as a permanent failure and Retry returns
// immediately. This is distinct from MaxTaskRetries in pkg/config, which
// governs how many times the orchestrator re-dispatches a whole task rather
// than how many times a single transport call is retried.
package httputil
