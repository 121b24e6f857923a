package task

import (
	"context"
	"strconv"

	"github.com/thuduc/fan-out-fan-in/pkg/store"
)

// DispatchStream is where RedisInvoker publishes dispatch payloads for an
// external worker pool to drain via its own consumer group.
const DispatchStream = "task:dispatch"

// RedisInvoker is the reference Invoker: it publishes each dispatch payload
// onto DispatchStream rather than calling out to a specific compute
// backend (Lambda, a job queue, etc), leaving that wiring to whatever
// consumes the stream. It exists so the orchestrator is runnable end to end
// against nothing but Redis.
type RedisInvoker struct {
	store store.Store
}

// NewRedisInvoker builds a RedisInvoker over st.
func NewRedisInvoker(st store.Store) *RedisInvoker {
	return &RedisInvoker{store: st}
}

func (r *RedisInvoker) Invoke(ctx context.Context, payload DispatchPayload) error {
	_, err := r.store.Publish(ctx, DispatchStream, map[string]string{
		"requestId":  payload.RequestID,
		"groupIdx":   strconv.Itoa(payload.GroupIndex),
		"groupName":  payload.GroupName,
		"taskId":     payload.TaskID,
		"payloadKey": payload.PayloadKey,
		"resultKey":  payload.ResultKey,
		"attempt":    payload.Attempt,
	})
	return err
}
