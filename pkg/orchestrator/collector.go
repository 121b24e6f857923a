package orchestrator

import (
	"context"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/thuduc/fan-out-fan-in/pkg/errors"
	"github.com/thuduc/fan-out-fan-in/pkg/observability"
	"github.com/thuduc/fan-out-fan-in/pkg/store"
	"github.com/thuduc/fan-out-fan-in/pkg/task"
)

// collectGroup reads the updates stream until every task dispatched for
// this group has completed, retrying failed tasks up to MaxTaskRetries and
// ignoring messages belonging to a different request or a different group
// (a prior group's late retry can straggle in after its group has already
// moved on). Other-request messages are acked; other-group messages are
// left unacked in this call's consumer pending list, which nothing in this
// package reads again, since each call reads only new entries under a
// fresh consumer name.
func (o *Orchestrator) collectGroup(ctx context.Context, requestID string, groupIndex int, groupName string, group *etree.Element, descriptors []task.Descriptor) error {
	byTaskID := make(map[string]task.Descriptor, len(descriptors))
	for _, d := range descriptors {
		byTaskID[d.TaskID] = d
	}

	consumer := uuid.NewString()
	consumerGroup := store.ConsumerGroup(requestID)

	expected := len(descriptors)
	completed := 0
	var pendingFailures []string

	deadline := time.Now().Add(o.cfg.TaskWaitTimeout())

	for completed < expected {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return errors.New(errors.ErrCodeTimeout, "group %d: timed out waiting for %d/%d tasks", groupIndex, expected-completed, expected)
		}

		block := o.cfg.BlockDuration()
		if block > remaining {
			block = remaining
		}

		messages, err := o.store.ReadGroup(ctx, store.UpdatesStream, consumerGroup, consumer, int64(expected), block)
		if err != nil {
			return err
		}

		for _, msg := range messages {
			if msg.Values["requestId"] != requestID {
				// Belongs to a different request sharing the stream; ack so
				// it doesn't clog this consumer's pending entries list.
				_ = o.store.Ack(ctx, store.UpdatesStream, consumerGroup, msg.ID)
				continue
			}
			msgGroupIdx, convErr := strconv.Atoi(msg.Values["groupIdx"])
			if convErr != nil || msgGroupIdx != groupIndex {
				// Either malformed or a straggler from another group in this
				// same request; leave it unacked.
				continue
			}

			taskID := msg.Values["taskId"]
			desc, known := byTaskID[taskID]
			if !known {
				_ = o.store.Ack(ctx, store.UpdatesStream, consumerGroup, msg.ID)
				continue
			}

			switch msg.Values["status"] {
			case task.StatusCompleted:
				if err := o.mergeCompletedTask(ctx, group, desc); err != nil {
					_ = o.store.Ack(ctx, store.UpdatesStream, consumerGroup, msg.ID)
					return err
				}
				completed++
				if err := o.store.HSet(ctx, store.GroupStateKey(requestID, groupIndex), map[string]string{
					"completed": strconv.Itoa(completed),
				}); err != nil {
					_ = o.store.Ack(ctx, store.UpdatesStream, consumerGroup, msg.ID)
					return err
				}
				_ = o.store.Ack(ctx, store.UpdatesStream, consumerGroup, msg.ID)

			case task.StatusFailed:
				attempt := parseAttempt(msg.Values["attempt"])
				_ = o.store.Ack(ctx, store.UpdatesStream, consumerGroup, msg.ID)

				if attempt < o.cfg.MaxTaskRetries {
					observability.Dispatch().OnTaskRetry(ctx, requestID, taskID, attempt+1)
					if err := o.invoker.Invoke(ctx, task.DispatchPayload{
						RequestID:  requestID,
						GroupIndex: groupIndex,
						GroupName:  groupName,
						TaskID:     taskID,
						PayloadKey: desc.XMLKey,
						ResultKey:  desc.ResultKey,
						Attempt:    strconv.Itoa(attempt + 1),
					}); err != nil {
						return errors.Wrap(errors.ErrCodeInvoker, err, "retry task %s in group %d", taskID, groupIndex)
					}
					continue
				}

				failErr := errors.New(errors.ErrCodeTaskFailure, "task %s in group %d failed after %d attempts: %s", taskID, groupIndex, attempt, msg.Values["result"])
				observability.Dispatch().OnTaskFailure(ctx, requestID, taskID, failErr)
				pendingFailures = append(pendingFailures, failErr.Error())
				if err := o.store.HSet(ctx, store.GroupStateKey(requestID, groupIndex), map[string]string{
					"failed": strconv.Itoa(len(pendingFailures)),
				}); err != nil {
					return err
				}

			default:
				_ = o.store.Ack(ctx, store.UpdatesStream, consumerGroup, msg.ID)
			}
		}

		if len(pendingFailures) > 0 {
			return errors.New(errors.ErrCodeTaskFailure, "group %d: %d task(s) exhausted retries: %v", groupIndex, len(pendingFailures), pendingFailures)
		}
	}

	return o.store.HSet(ctx, store.GroupStateKey(requestID, groupIndex), map[string]string{
		"status": "completed",
	})
}

// mergeCompletedTask fetches a completed task's result XML and appends its
// valuation subtree into the in-memory group element, so the final
// response assembly sees every group's tasks' results in place.
func (o *Orchestrator) mergeCompletedTask(ctx context.Context, group *etree.Element, desc task.Descriptor) error {
	resultXML, err := o.store.Get(ctx, desc.ResultKey)
	if err != nil {
		return errors.Wrap(errors.ErrCodeTaskFailure, err, "load result for task %s from %s", desc.TaskID, desc.ResultKey)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(resultXML); err != nil {
		return errors.Wrap(errors.ErrCodeTaskFailure, err, "parse result xml for task %s", desc.TaskID)
	}
	resultRoot := doc.Root()
	if resultRoot == nil {
		return errors.New(errors.ErrCodeTaskFailure, "result xml for task %s has no root element", desc.TaskID)
	}

	valuation := resultRoot.FindElement("./project/group/valuation")
	if valuation == nil {
		return errors.New(errors.ErrCodeTaskFailure, "result xml for task %s has no valuation element", desc.TaskID)
	}

	group.AddChild(valuation.Copy())
	return nil
}

func parseAttempt(raw string) int {
	if raw == "" {
		return 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
