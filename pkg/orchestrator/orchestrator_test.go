package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/thuduc/fan-out-fan-in/pkg/config"
	"github.com/thuduc/fan-out-fan-in/pkg/store"
	"github.com/thuduc/fan-out-fan-in/pkg/task"
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

// simInvoker stands in for the external task runner this repo does not
// own: instead of handing work to a real compute backend, it immediately
// writes a synthetic result (or failure) to the store and publishes the
// matching update event, exactly as a real worker would once it finished.
type simInvoker struct {
	st store.Store

	// failTaskIDOnAttempt, when set, makes that task id fail on the given
	// attempt number (and succeed on any other attempt).
	failTaskIDOnAttempt map[string]int
	invocations         []task.DispatchPayload
}

func newSimInvoker(st store.Store) *simInvoker {
	return &simInvoker{st: st, failTaskIDOnAttempt: map[string]int{}}
}

func (s *simInvoker) Invoke(ctx context.Context, payload task.DispatchPayload) error {
	s.invocations = append(s.invocations, payload)

	attempt, _ := strconv.Atoi(payload.Attempt)
	if failAt, ok := s.failTaskIDOnAttempt[payload.TaskID]; ok && failAt == attempt {
		_, err := s.st.Publish(ctx, store.UpdatesStream, map[string]string{
			"requestId": payload.RequestID,
			"groupIdx":  strconv.Itoa(payload.GroupIndex),
			"taskId":    payload.TaskID,
			"status":    task.StatusFailed,
			"attempt":   payload.Attempt,
			"result":    `{"code":"TASK_FAILURE","message":"simulated failure"}`,
		})
		return err
	}

	resultXML := fmt.Sprintf(`<result><project><group><valuation name="%s" status="ok"/></group></project></result>`, payload.TaskID)
	if err := s.st.Set(ctx, payload.ResultKey, resultXML); err != nil {
		return err
	}
	_, err := s.st.Publish(ctx, store.UpdatesStream, map[string]string{
		"requestId": payload.RequestID,
		"groupIdx":  strconv.Itoa(payload.GroupIndex),
		"taskId":    payload.TaskID,
		"status":    task.StatusCompleted,
		"attempt":   payload.Attempt,
	})
	return err
}

func fastConfig() config.Config {
	cfg := config.Defaults()
	cfg.BlockMS = 50
	cfg.TaskWaitTimeoutMS = 2000
	cfg.MaxTaskRetries = 3
	return cfg
}

func TestRunHappyPathTwoGroupsThreeTasks(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	xml := `<req>
<project>
  <group name="g0">
    <valuation name="v1"/>
    <valuation name="v2"/>
  </group>
  <group name="g1">
    <valuation name="v3"/>
  </group>
</project>
</req>`
	if err := st.Set(ctx, "request:req-1:xml", xml); err != nil {
		t.Fatalf("Set: %v", err)
	}

	invoker := newSimInvoker(st)
	o := New(st, invoker, WithConfig(fastConfig()))

	result, err := o.Run(ctx, RunOptions{RequestID: "req-1", XMLKey: "request:req-1:xml", ResponseKey: "response:req-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(invoker.invocations) != 3 {
		t.Fatalf("invocations = %d, want 3", len(invoker.invocations))
	}

	state, err := st.HGetAll(ctx, store.RequestStateKey("req-1"))
	if err != nil {
		t.Fatalf("HGetAll: %v", err)
	}
	if state["status"] != "succeeded" {
		t.Errorf("request status = %q, want succeeded", state["status"])
	}
	if result.ResponseXML == "" {
		t.Error("expected non-empty response XML")
	}
}

func TestRunRetriesFailedTaskThenSucceeds(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	xml := `<req>
<project>
  <group name="g0">
    <valuation name="v1"/>
  </group>
</project>
</req>`
	if err := st.Set(ctx, "request:req-2:xml", xml); err != nil {
		t.Fatalf("Set: %v", err)
	}

	invoker := newSimInvoker(st)
	invoker.failTaskIDOnAttempt["1"] = 1 // fail first attempt, succeed on retry

	o := New(st, invoker, WithConfig(fastConfig()))
	_, err := o.Run(ctx, RunOptions{RequestID: "req-2", XMLKey: "request:req-2:xml", ResponseKey: "response:req-2"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(invoker.invocations) != 2 {
		t.Fatalf("invocations = %d, want 2 (original + 1 retry)", len(invoker.invocations))
	}
	if invoker.invocations[1].Attempt != "2" {
		t.Errorf("retry attempt = %q, want 2", invoker.invocations[1].Attempt)
	}
}

func TestRunFailsAfterExhaustingRetries(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	xml := `<req>
<project>
  <group name="g0">
    <valuation name="v1"/>
  </group>
</project>
</req>`
	if err := st.Set(ctx, "request:req-3:xml", xml); err != nil {
		t.Fatalf("Set: %v", err)
	}

	invoker := newSimInvoker(st)
	cfg := fastConfig()
	cfg.MaxTaskRetries = 1
	invoker.failTaskIDOnAttempt["1"] = 1 // always fails (max retries is 1, so attempt 1 fails and there's no retry)

	o := New(st, invoker, WithConfig(cfg))
	_, err := o.Run(ctx, RunOptions{RequestID: "req-3", XMLKey: "request:req-3:xml", ResponseKey: "response:req-3"})
	if err == nil {
		t.Fatal("expected error when retries are exhausted")
	}

	state, err2 := st.HGetAll(ctx, store.RequestStateKey("req-3"))
	if err2 != nil {
		t.Fatalf("HGetAll: %v", err2)
	}
	if state["status"] != "failed" {
		t.Errorf("request status = %q, want failed", state["status"])
	}

	ok, err2 := st.Exists(ctx, store.FailureCacheKey("req-3"))
	if err2 != nil {
		t.Fatalf("Exists: %v", err2)
	}
	if !ok {
		t.Error("expected failure detail to be recorded")
	}
}

func TestRunFailsWhenInvokerRejectsDispatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	xml := `<req>
<project>
  <group name="g0">
    <valuation name="v1"/>
  </group>
</project>
</req>`
	if err := st.Set(ctx, "request:req-4:xml", xml); err != nil {
		t.Fatalf("Set: %v", err)
	}

	o := New(st, rejectingInvoker{}, WithConfig(fastConfig()))
	_, err := o.Run(ctx, RunOptions{RequestID: "req-4", XMLKey: "request:req-4:xml", ResponseKey: "response:req-4"})
	if err == nil {
		t.Fatal("expected error when the invoker rejects dispatch")
	}
}

type rejectingInvoker struct{}

func (rejectingInvoker) Invoke(context.Context, task.DispatchPayload) error {
	return fmt.Errorf("backend unavailable")
}

func TestRunTimesOutWhenGroupNeverCompletes(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	xml := `<req>
<project>
  <group name="g0">
    <valuation name="v1"/>
  </group>
</project>
</req>`
	if err := st.Set(ctx, "request:req-5:xml", xml); err != nil {
		t.Fatalf("Set: %v", err)
	}

	cfg := fastConfig()
	cfg.TaskWaitTimeoutMS = 150
	cfg.BlockMS = 30

	o := New(st, silentInvoker{}, WithConfig(cfg))
	start := time.Now()
	_, err := o.Run(ctx, RunOptions{RequestID: "req-5", XMLKey: "request:req-5:xml", ResponseKey: "response:req-5"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("took too long to time out: %v", time.Since(start))
	}
}

type silentInvoker struct{}

func (silentInvoker) Invoke(context.Context, task.DispatchPayload) error { return nil }

func TestRunFailsWhenProjectElementMissing(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	xml := `<req>
  <group name="g0">
    <valuation name="v1"/>
  </group>
</req>`
	if err := st.Set(ctx, "request:req-7:xml", xml); err != nil {
		t.Fatalf("Set: %v", err)
	}

	o := New(st, newSimInvoker(st), WithConfig(fastConfig()))
	_, err := o.Run(ctx, RunOptions{RequestID: "req-7", XMLKey: "request:req-7:xml", ResponseKey: "response:req-7"})
	if err == nil {
		t.Fatal("expected error when the request xml has no project element")
	}
}

func TestRunHydratesValuationFanOutViaVnLink(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	xml := `<req>
<project>
  <portfolio>
    <position id="p1"><ref/></position>
    <position id="p2"><ref/></position>
    <position id="p3"><ref/></position>
  </portfolio>
  <group name="g0">
    <valuation use="vn:link(/req/project/portfolio/position,ref)"/>
  </group>
</project>
</req>`
	if err := st.Set(ctx, "request:req-6:xml", xml); err != nil {
		t.Fatalf("Set: %v", err)
	}

	invoker := newSimInvoker(st)
	o := New(st, invoker, WithConfig(fastConfig()))
	_, err := o.Run(ctx, RunOptions{RequestID: "req-6", XMLKey: "request:req-6:xml", ResponseKey: "response:req-6"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(invoker.invocations) != 3 {
		t.Fatalf("invocations = %d, want 3 (one per position)", len(invoker.invocations))
	}
}
