package orchestrator

import (
	"context"
	"fmt"
	"strconv"

	"github.com/beevik/etree"
	"github.com/thuduc/fan-out-fan-in/pkg/errors"
	"github.com/thuduc/fan-out-fan-in/pkg/observability"
	"github.com/thuduc/fan-out-fan-in/pkg/store"
	"github.com/thuduc/fan-out-fan-in/pkg/task"
	"github.com/thuduc/fan-out-fan-in/pkg/vnxml"
)

// prunedChildren lists the project-level children that accompany every
// task's single group rather than the full document — a task only ever
// needs the group it's evaluating plus whatever market/model/calculator/
// portfolio context that group's valuations reference relative to project.
// Pruning is project-relative (ChildElements by tag) rather than an
// absolute path, since the document's own root tag is not fixed by this
// package — only "project" and everything under it is addressed by name.
var prunedChildren = map[string]bool{
	"market":     true,
	"model":      true,
	"calculator": true,
	"portfolio":  true,
	"group":      true,
}

// dispatchGroup hydrates one group's node and each of its valuations
// (a valuation can multiply via a vn:link fan-out), then dispatches one
// task per resulting valuation item. A dispatch (invoker) failure is fatal:
// the task was never handed off, so there is nothing to retry.
func (o *Orchestrator) dispatchGroup(ctx context.Context, requestID string, groupIndex int, group *etree.Element, root *etree.Element) ([]task.Descriptor, string, error) {
	hydratedItems, err := o.engine.HydrateElement(ctx, group, root, root)
	if err != nil {
		return nil, "", err
	}
	if len(hydratedItems) != 1 {
		return nil, "", errors.New(errors.ErrCodeHydration, "group %d hydrated into %d elements, want 1", groupIndex, len(hydratedItems))
	}
	hydratedGroup := hydratedItems[0].Element
	groupName := hydratedGroup.SelectAttrValue("name", fmt.Sprintf("group-%d", groupIndex))

	var valuationItems []valuationItem
	for _, val := range hydratedGroup.ChildElements() {
		if val.Tag != "valuation" {
			continue
		}
		items, err := o.engine.HydrateValuation(ctx, val, root, hydratedGroup)
		if err != nil {
			return nil, "", err
		}
		for _, it := range items {
			valuationItems = append(valuationItems, valuationItem{element: it.Element})
		}
	}

	if err := o.store.HSet(ctx, store.GroupStateKey(requestID, groupIndex), map[string]string{
		"expected":  strconv.Itoa(len(valuationItems)),
		"completed": "0",
		"failed":    "0",
		"status":    "running",
	}); err != nil {
		return nil, "", err
	}

	template := buildTaskTemplate(root, hydratedGroup)

	descriptors := make([]task.Descriptor, 0, len(valuationItems))
	for i, v := range valuationItems {
		taskID := strconv.Itoa(i + 1)

		taskDoc := vnxml.Copy(template)
		taskGroup := taskDoc.FindElement("./project/group")
		taskGroup.AddChild(vnxml.Copy(v.element))

		payloadXML, err := vnxml.Serialize(taskDoc)
		if err != nil {
			return nil, "", err
		}

		payloadKey := store.TaskPayloadKey(requestID, groupIndex, i+1)
		resultKey := store.TaskResultKey(requestID, groupIndex, i+1)
		if err := o.store.Set(ctx, payloadKey, payloadXML); err != nil {
			return nil, "", err
		}

		if err := o.invoker.Invoke(ctx, task.DispatchPayload{
			RequestID:  requestID,
			GroupIndex: groupIndex,
			GroupName:  groupName,
			TaskID:     taskID,
			PayloadKey: payloadKey,
			ResultKey:  resultKey,
			Attempt:    "1",
		}); err != nil {
			return nil, "", errors.Wrap(errors.ErrCodeInvoker, err, "dispatch task %s in group %d", taskID, groupIndex)
		}
		observability.Dispatch().OnTaskDispatch(ctx, requestID, taskID)

		descriptors = append(descriptors, task.Descriptor{
			RequestID:  requestID,
			GroupIndex: groupIndex,
			GroupName:  groupName,
			TaskID:     taskID,
			XMLKey:     payloadKey,
			ResultKey:  resultKey,
		})
	}

	return descriptors, groupName, nil
}

type valuationItem struct {
	element *etree.Element
}

// buildTaskTemplate deep-copies root, strips every market/model/calculator/
// portfolio/group child of its project element, and reattaches a
// valuation-less copy of group under project — the shell every dispatched
// task's payload is built from by adding back exactly one valuation.
func buildTaskTemplate(root, group *etree.Element) *etree.Element {
	tmpl := vnxml.Copy(root)
	project := tmpl.FindElement("./project")
	for _, c := range project.ChildElements() {
		if prunedChildren[c.Tag] {
			project.RemoveChild(c)
		}
	}

	emptyGroup := vnxml.Copy(group)
	for _, v := range emptyGroup.ChildElements() {
		if v.Tag == "valuation" {
			emptyGroup.RemoveChild(v)
		}
	}
	project.AddChild(emptyGroup)
	return tmpl
}
