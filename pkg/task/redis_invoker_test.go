package task

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/thuduc/fan-out-fan-in/pkg/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return store.NewRedisStoreFromClient(client)
}

func TestRedisInvokerPublishesDispatchPayload(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	inv := NewRedisInvoker(st)

	if err := st.EnsureConsumerGroup(ctx, DispatchStream, "workers"); err != nil {
		t.Fatalf("EnsureConsumerGroup: %v", err)
	}

	payload := DispatchPayload{
		RequestID:  "req-1",
		GroupIndex: 0,
		GroupName:  "group-0",
		TaskID:     "1",
		PayloadKey: "task:req-1:0:1:payload",
		ResultKey:  "task:req-1:0:1:result",
		Attempt:    "1",
	}
	if err := inv.Invoke(ctx, payload); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	msgs, err := st.ReadGroup(ctx, DispatchStream, "workers", "test-consumer", 10, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("ReadGroup: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
	got := msgs[0].Values
	if got["requestId"] != "req-1" || got["taskId"] != "1" || got["groupIdx"] != "0" {
		t.Errorf("dispatch payload fields = %+v", got)
	}
}
