// Package store is the persistence and messaging boundary between the
// orchestrator and Redis: a key-value store for request/response XML
// documents and per-request/per-group state hashes, plus the two streams
// (lifecycle, task updates) the orchestrator and task workers communicate
// completion events over.
package store

import (
	"context"
	"fmt"
	"time"
)

// Message is one entry read off a stream via a consumer group.
type Message struct {
	ID     string
	Values map[string]string
}

// Store is the full persistence/messaging surface the orchestrator needs.
// The single interface (rather than separate KV/Stream interfaces) mirrors
// how the orchestrator actually uses it: one connection, one mental model.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error

	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Publish appends an entry to stream and returns its assigned ID.
	Publish(ctx context.Context, stream string, fields map[string]string) (string, error)

	// EnsureConsumerGroup creates group on stream if it does not already
	// exist. It is idempotent: an existing group is left untouched.
	EnsureConsumerGroup(ctx context.Context, stream, group string) error

	// ReadGroup blocks for up to block (0 meaning no timeout) waiting for up
	// to count new, unclaimed entries on stream for the given consumer
	// group and consumer name.
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Message, error)

	// Ack acknowledges one or more message IDs on stream for group.
	Ack(ctx context.Context, stream, group string, ids ...string) error

	Close() error
}

// Stream names shared by every request. Isolation across concurrent
// requests on the same stream comes from each request using its own
// consumer group (see ConsumerGroup), not from separate streams.
const (
	LifecycleStream = "request:lifecycle"
	UpdatesStream   = "task:updates"
)

// RequestStateKey is the hash holding a request's top-level state:
// status, groupCount, currentGroup, responseKey, completedAt, failureAt.
func RequestStateKey(requestID string) string {
	return fmt.Sprintf("request:%s", requestID)
}

// GroupStateKey is the hash holding one group's dispatch/collection state:
// expected, completed, failed, status.
func GroupStateKey(requestID string, groupIndex int) string {
	return fmt.Sprintf("request:%s:group:%d", requestID, groupIndex)
}

// TaskPayloadKey is where a dispatched task's input XML is stored.
func TaskPayloadKey(requestID string, groupIndex, taskID int) string {
	return fmt.Sprintf("task:%s:%d:%d:payload", requestID, groupIndex, taskID)
}

// TaskResultKey is where a dispatched task's output XML is stored.
func TaskResultKey(requestID string, groupIndex, taskID int) string {
	return fmt.Sprintf("task:%s:%d:%d:result", requestID, groupIndex, taskID)
}

// ResponseCacheKey is the assembled response XML for a completed request.
// It carries a "cache:" prefix distinct from RequestStateKey's hash, since
// the two are read by different consumers (dashboards vs. the state
// machine) and are allowed to expire on independent schedules.
func ResponseCacheKey(requestID string) string {
	return fmt.Sprintf("cache:request:%s:response", requestID)
}

// FailureCacheKey holds the JSON-encoded failure detail blob recorded when
// a request transitions to the failed state.
func FailureCacheKey(requestID string) string {
	return fmt.Sprintf("cache:request:%s:failure", requestID)
}

// ConsumerGroup is the updates-stream consumer group name isolating one
// request's completion events from every other request sharing the stream.
func ConsumerGroup(requestID string) string {
	return "req::" + requestID
}
