package hydration

import (
	"context"
	"time"

	"github.com/beevik/etree"
	"github.com/thuduc/fan-out-fan-in/pkg/errors"
	"github.com/thuduc/fan-out-fan-in/pkg/fetch"
	"github.com/thuduc/fan-out-fan-in/pkg/observability"
	"github.com/thuduc/fan-out-fan-in/pkg/vnxml"
)

// Engine runs an ordered pipeline of Strategy over a deep copy of the
// element it is asked to hydrate, re-running the whole pipeline is not
// necessary since each strategy is itself responsible for iterating to a
// fixed point internally (href re-scans after every merge, use-function
// drains its work queue, select re-scans after every splice). The default
// pipeline runs href first and last, since content pulled in partway
// through can itself carry another href.
type Engine struct {
	strategies []Strategy
}

// NewEngine builds an Engine with the canonical strategy pipeline: href,
// use-function, attribute-select, select, href.
func NewEngine(fetcher fetch.Fetcher) *Engine {
	href := NewHrefStrategy(fetcher)
	return &Engine{
		strategies: []Strategy{
			href,
			NewUseFunctionStrategy(),
			NewAttributeSelectStrategy(),
			NewSelectStrategy(),
			href,
		},
	}
}

// ReplaceStrategies swaps the entire pipeline, primarily for tests that want
// to exercise a single strategy in isolation.
func (e *Engine) ReplaceStrategies(strategies ...Strategy) {
	e.strategies = strategies
}

// AppendStrategy adds one more strategy to the end of the pipeline.
func (e *Engine) AppendStrategy(s Strategy) {
	e.strategies = append(e.strategies, s)
}

// HydrateElement deep-copies el and threads it through the strategy
// pipeline, returning the resulting item(s). A single input element can
// multiply into several output elements (e.g. a vn:link fan-out), so the
// result is always a slice.
func (e *Engine) HydrateElement(ctx context.Context, el *etree.Element, root *etree.Element, context *etree.Element) ([]Item, error) {
	items := []Item{{Element: vnxml.Copy(el), Context: context}}
	for _, strategy := range e.strategies {
		next, err := strategy.Apply(ctx, items, root, e)
		if err != nil {
			return nil, err
		}
		items = next
	}
	return items, nil
}

// Hydrate hydrates the whole document starting at root, using root itself
// as the initial context node so top-level select expressions can resolve
// relative to the document. It requires the pipeline to resolve to exactly
// one element, since a document has exactly one root.
func (e *Engine) Hydrate(ctx context.Context, root *etree.Element) (*etree.Element, error) {
	start := time.Now()
	observability.Hydration().OnHydrationStart(ctx, "")

	items, err := e.HydrateElement(ctx, root, root, root)
	if err != nil {
		observability.Hydration().OnHydrationComplete(ctx, "", 0, time.Since(start), err)
		return nil, err
	}
	observability.Hydration().OnHydrationComplete(ctx, "", len(items), time.Since(start), nil)

	if len(items) != 1 {
		return nil, errors.New(errors.ErrCodeHydration, "document root hydrated into %d elements, want exactly 1", len(items))
	}
	return items[0].Element, nil
}

// HydrateValuation hydrates a single valuation element within a group,
// using the group element as the context node so the valuation's select
// expressions can reach sibling market/model/calculator/portfolio nodes.
// A valuation can multiply into several via a vn:link fan-out, mirroring
// the "item multiplication" the dispatcher relies on when building tasks.
func (e *Engine) HydrateValuation(ctx context.Context, valuation *etree.Element, root *etree.Element, group *etree.Element) ([]Item, error) {
	return e.HydrateElement(ctx, valuation, root, group)
}
