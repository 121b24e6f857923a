// Package task defines the wire shapes and dispatch contract between the
// orchestrator and the external task runner: what gets handed to a task at
// dispatch time (DispatchPayload), what comes back over the updates stream
// when it finishes (UpdateEvent), and the Invoker interface that performs
// the actual handoff.
package task

import "context"

// Descriptor identifies one dispatched unit of work: a single valuation
// evaluated within one group of one request.
type Descriptor struct {
	RequestID  string
	GroupIndex int
	GroupName  string
	TaskID     string
	XMLKey     string
	ResultKey  string
}

// DispatchPayload is what Invoker.Invoke hands to the external task runner.
// PayloadKey names the store key holding the task's input XML (a task
// template with this one valuation attached); ResultKey names where the
// runner must write its output XML.
type DispatchPayload struct {
	RequestID  string
	GroupIndex int
	GroupName  string
	TaskID     string
	PayloadKey string
	ResultKey  string
	Attempt    string
}

// UpdateEvent is what a task runner publishes to the updates stream on
// completion or failure.
type UpdateEvent struct {
	RequestID     string
	GroupIndex    int
	GroupName     string
	TaskID        string
	ValuationName string
	ResultKey     string
	Status        string // "completed" or "failed"
	Attempt       string
	Result        string // present on "failed": JSON-encoded failure detail
}

// Status values an UpdateEvent can carry.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Invoker hands a dispatch payload off to the external task runner. A
// failure here is always fatal to the enclosing group dispatch: unlike a
// task's own failed completion event (which is subject to retry up to
// MAX_TASK_RETRIES), a failure to even hand the work off means the task was
// never started and there is nothing to retry against.
type Invoker interface {
	Invoke(ctx context.Context, payload DispatchPayload) error
}
