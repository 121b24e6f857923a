// Package pkg provides the core libraries for the request orchestrator.
//
// # Overview
//
// The orchestrator hydrates an XML request document against a set of
// registered strategies, then fans that document out into sequential groups
// of asynchronous tasks, collects their completions off a shared stream, and
// assembles the results back into a response document. The pkg directory
// contains reusable Go libraries organized into four main areas:
//
//  1. XML Tree Manipulation ([vnxml])
//  2. Hydration ([hydration], [fetch])
//  3. Orchestration ([orchestrator], [task], [store])
//  4. Support ([config], [errors], [rescache], [httputil], [observability])
//
// # Architecture
//
// The typical data flow through the orchestrator:
//
//	Request XML (store-resident)
//	         ↓
//	    [hydration] package (href-merge, use-function, select strategies)
//	         ↓
//	    [fetch] package (resolves href targets: file://, s3://)
//	         ↓
//	    [orchestrator] package (sequential groups, async task fan-out)
//	         ↓
//	    [task] package (dispatch payload, completion stream, retries)
//	         ↓
//	    Response XML (assembled, store-resident)
//
// # Quick Start
//
// Hydrate a request and run it to completion:
//
//	import (
//	    "context"
//	    "github.com/thuduc/fan-out-fan-in/pkg/orchestrator"
//	    "github.com/thuduc/fan-out-fan-in/pkg/store"
//	    "github.com/thuduc/fan-out-fan-in/pkg/task"
//	)
//
//	st, _ := store.NewRedisStore(ctx, "redis://localhost:6379/0")
//	orch := orchestrator.New(st, task.NewRedisInvoker(st))
//	result, err := orch.Run(ctx, orchestrator.RunOptions{
//	    RequestID:   "req-001",
//	    XMLKey:      "request:req-001:xml",
//	    ResponseKey: "request:req-001:response",
//	})
//
// # Main Packages
//
// ## XML Tree Manipulation
//
// [vnxml] - Helpers layered on top of etree's DOM for the operations lxml
// gives for free: per-element deep copy discipline, tail-text preservation
// across splices, and lxml-equivalent element paths for error messages.
//
// ## Hydration
//
// [hydration] - The Engine applies a pipeline of strategies (href-merge,
// use-function, attribute-select, select-by-reference, then href again) once
// over a document; strategies that expand nodes re-hydrate the nodes they
// introduce themselves.
//
// [fetch] - Fetcher resolves href targets. FileFetcher and S3Fetcher
// back the file:// and s3:// schemes; Composite dispatches by scheme.
//
// ## Orchestration
//
// [orchestrator] - Orchestrator is the state machine driving a request through
// its sequential groups. Each group is dispatched in full before the next
// group starts; within a group, tasks run concurrently.
//
// [task] - Descriptor describes one unit of dispatched work. Invoker hands
// descriptors to the external task runner and DispatchPayload/UpdateEvent
// define the wire shape of that handoff and its completion event.
//
// [store] - Store is the persistence and messaging boundary: a KV store for
// request/response documents and a stream for completion events, both
// backed by Redis.
//
// ## Support
//
// [config] - TOML + environment variable configuration loading.
//
// [errors] - Structured error codes matching the orchestrator's failure
// classes (validation, hydration, resource fetch, timeout, task failure,
// invoker).
//
// [rescache] - Optional byte cache for fetched href/use targets. Disabled
// by default; never changes hydration semantics, only fetch frequency.
//
// [httputil] - Retry with exponential backoff for transient transport
// failures.
//
// [observability] - Hooks for hydration, dispatch, cache, and fetch events,
// registered by main rather than hard-wired into the libraries.
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...                    # All tests
//	go test ./pkg/hydration/...          # Specific package
//	go test -run Example                 # Examples only
//
// [vnxml]: https://pkg.go.dev/github.com/thuduc/fan-out-fan-in/pkg/vnxml
// [hydration]: https://pkg.go.dev/github.com/thuduc/fan-out-fan-in/pkg/hydration
// [fetch]: https://pkg.go.dev/github.com/thuduc/fan-out-fan-in/pkg/fetch
// [orchestrator]: https://pkg.go.dev/github.com/thuduc/fan-out-fan-in/pkg/orchestrator
// [task]: https://pkg.go.dev/github.com/thuduc/fan-out-fan-in/pkg/task
// [store]: https://pkg.go.dev/github.com/thuduc/fan-out-fan-in/pkg/store
// [config]: https://pkg.go.dev/github.com/thuduc/fan-out-fan-in/pkg/config
// [errors]: https://pkg.go.dev/github.com/thuduc/fan-out-fan-in/pkg/errors
// [rescache]: https://pkg.go.dev/github.com/thuduc/fan-out-fan-in/pkg/rescache
// [httputil]: https://pkg.go.dev/github.com/thuduc/fan-out-fan-in/pkg/httputil
// [observability]: https://pkg.go.dev/github.com/thuduc/fan-out-fan-in/pkg/observability
package pkg
