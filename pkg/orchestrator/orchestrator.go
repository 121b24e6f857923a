// Package orchestrator drives one request through its hydration, sequential
// group dispatch, completion collection, and response assembly.
package orchestrator

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/thuduc/fan-out-fan-in/pkg/config"
	"github.com/thuduc/fan-out-fan-in/pkg/errors"
	"github.com/thuduc/fan-out-fan-in/pkg/fetch"
	"github.com/thuduc/fan-out-fan-in/pkg/hydration"
	"github.com/thuduc/fan-out-fan-in/pkg/observability"
	"github.com/thuduc/fan-out-fan-in/pkg/rescache"
	"github.com/thuduc/fan-out-fan-in/pkg/store"
	"github.com/thuduc/fan-out-fan-in/pkg/task"
	"github.com/thuduc/fan-out-fan-in/pkg/vnxml"
)

// RunOptions names the store keys one request's run needs.
type RunOptions struct {
	RequestID   string
	XMLKey      string
	ResponseKey string
}

// Result is what a successful Run produces.
type Result struct {
	ResponseKey string
	ResponseXML string
}

// Orchestrator is a request's state machine: idle until Run is called, then
// started, then running one group at a time, then succeeded or failed.
// One instance should be used for exactly one in-flight request; two
// instances racing on the same request ID share its state hash and
// consumer group, and their behavior is undefined.
type Orchestrator struct {
	store   store.Store
	invoker task.Invoker
	engine  *hydration.Engine
	cfg     config.Config
}

// Option customizes an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithEngine overrides the default hydration engine (file+s3 fetchers).
func WithEngine(e *hydration.Engine) Option {
	return func(o *Orchestrator) { o.engine = e }
}

// WithConfig overrides the default tunables (block/timeout/retry counts).
func WithConfig(c config.Config) Option {
	return func(o *Orchestrator) { o.cfg = c }
}

// WithResourceCache wraps the default file+s3 fetcher in a CachingFetcher
// backed by cache, so repeated href/use targets within or across requests
// don't refetch the same document. Options apply in order, so whichever of
// WithEngine and WithResourceCache comes last decides the engine. ttlSeconds
// <= 0 means cached entries never expire.
func WithResourceCache(cache rescache.Cache, ttlSeconds int64) Option {
	return func(o *Orchestrator) {
		o.engine = hydration.NewEngine(fetch.NewCachingFetcher(defaultFetcher(), cache, ttlSeconds))
	}
}

// New builds an Orchestrator around st and invoker, defaulting to a
// file+s3 hydration engine (uncached) and config.Defaults().
func New(st store.Store, invoker task.Invoker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   st,
		invoker: invoker,
		engine:  hydration.NewEngine(defaultFetcher()),
		cfg:     config.Defaults(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// defaultFetcher registers the fetchers every request can reach: local
// files always, plus s3:// when the AWS SDK's default config chain
// resolves (no credentials/region configured just means S3Fetcher is
// absent, not an error).
func defaultFetcher() fetch.Fetcher {
	fetchers := []fetch.Fetcher{fetch.NewFileFetcher()}
	if s3f, err := fetch.NewS3Fetcher(context.Background()); err == nil {
		fetchers = append(fetchers, s3f)
	}
	return fetch.NewComposite(fetchers...)
}

// Run executes one request to completion: load and hydrate its XML,
// dispatch each group in turn, collect completions, and write the
// assembled response. Any failure once the request has been marked
// "started" is recorded under the request's failure key and republished as
// a "failed" lifecycle event before being returned; failures before that
// point (malformed input, an unresolvable href) are returned as-is.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	xmlStr, err := o.store.Get(ctx, opts.XMLKey)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, err, "load request xml from %s", opts.XMLKey)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(xmlStr); err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, err, "parse request xml")
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.New(errors.ErrCodeValidation, "request xml has no root element")
	}

	hydratedRoot, err := o.engine.Hydrate(ctx, root)
	if err != nil {
		return nil, err
	}
	// Hydrate returns a detached copy; give it a document so absolute paths
	// ("/req/...") in the per-group hydration passes resolve from the top.
	etree.NewDocument().SetRoot(hydratedRoot)

	project := hydratedRoot.FindElement("./project")
	if project == nil {
		return nil, errors.New(errors.ErrCodeValidation, "request xml has no project element")
	}

	groups := project.FindElements("./group")
	requestID := opts.RequestID

	if err := o.store.EnsureConsumerGroup(ctx, store.UpdatesStream, store.ConsumerGroup(requestID)); err != nil {
		return nil, err
	}
	if err := o.store.HSet(ctx, store.RequestStateKey(requestID), map[string]string{
		"status":       "started",
		"groupCount":   strconv.Itoa(len(groups)),
		"currentGroup": "0",
		"responseKey":  opts.ResponseKey,
	}); err != nil {
		return nil, err
	}
	if err := o.publishLifecycle(ctx, requestID, "started", nil); err != nil {
		return nil, err
	}

	result, err := o.runGroups(ctx, requestID, hydratedRoot, groups, opts)
	if err != nil {
		o.recordFailure(ctx, requestID, err)
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) runGroups(ctx context.Context, requestID string, root *etree.Element, groups []*etree.Element, opts RunOptions) (*Result, error) {
	for idx, group := range groups {
		if err := o.store.HSet(ctx, store.RequestStateKey(requestID), map[string]string{
			"currentGroup": strconv.Itoa(idx),
		}); err != nil {
			return nil, err
		}
		if err := o.publishLifecycle(ctx, requestID, "group_started", map[string]string{"groupIdx": strconv.Itoa(idx)}); err != nil {
			return nil, err
		}

		start := time.Now()
		descriptors, groupName, err := o.dispatchGroup(ctx, requestID, idx, group, root)
		if err != nil {
			return nil, err
		}
		observability.Dispatch().OnGroupStart(ctx, requestID, idx, len(descriptors))

		if err := o.collectGroup(ctx, requestID, idx, groupName, group, descriptors); err != nil {
			observability.Dispatch().OnGroupComplete(ctx, requestID, idx, time.Since(start), err)
			return nil, err
		}
		observability.Dispatch().OnGroupComplete(ctx, requestID, idx, time.Since(start), nil)

		if err := o.publishLifecycle(ctx, requestID, "group_completed", map[string]string{"groupIdx": strconv.Itoa(idx)}); err != nil {
			return nil, err
		}
	}

	serialized, err := assembleResponse(root)
	if err != nil {
		return nil, err
	}
	if err := o.store.Set(ctx, opts.ResponseKey, serialized); err != nil {
		return nil, err
	}
	if err := o.store.Set(ctx, store.ResponseCacheKey(requestID), serialized); err != nil {
		return nil, err
	}
	if err := o.store.HSet(ctx, store.RequestStateKey(requestID), map[string]string{
		"status":      "succeeded",
		"completedAt": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return nil, err
	}
	if err := o.publishLifecycle(ctx, requestID, "completed", nil); err != nil {
		return nil, err
	}

	return &Result{ResponseKey: opts.ResponseKey, ResponseXML: serialized}, nil
}

func (o *Orchestrator) publishLifecycle(ctx context.Context, requestID, status string, extra map[string]string) error {
	fields := map[string]string{
		"requestId": requestID,
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		fields[k] = v
	}
	_, err := o.store.Publish(ctx, store.LifecycleStream, fields)
	return err
}

type failureRecord struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// recordFailure writes the failure detail blob, marks the request failed,
// and republishes a "failed" lifecycle event. It swallows its own errors
// (beyond logging via hooks) since the original failure is what must be
// returned to the caller.
func (o *Orchestrator) recordFailure(ctx context.Context, requestID string, cause error) {
	rec := failureRecord{Code: string(errors.GetCode(cause)), Message: cause.Error()}
	detail, _ := json.Marshal(rec)

	_ = o.store.Set(ctx, store.FailureCacheKey(requestID), string(detail))
	_ = o.store.HSet(ctx, store.RequestStateKey(requestID), map[string]string{
		"status":    "failed",
		"failureAt": time.Now().UTC().Format(time.RFC3339),
	})
	_ = o.publishLifecycle(ctx, requestID, "failed", map[string]string{"detail": string(detail)})
}

func assembleResponse(root *etree.Element) (string, error) {
	doc := etree.NewDocument()
	doc.Indent(2)
	doc.SetRoot(vnxml.Copy(root))
	out, err := doc.WriteToString()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "serialize response")
	}
	return out, nil
}

