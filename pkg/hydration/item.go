package hydration

import (
	"context"

	"github.com/beevik/etree"
)

// Item is one unit of work flowing through the hydration pipeline: an
// element to hydrate, plus an optional context node used to resolve
// relative XPath expressions (select, ${select(...)}) introduced by a
// vn:link expansion.
type Item struct {
	Element *etree.Element
	Context *etree.Element
}

// Strategy transforms a batch of items, given the document root for
// absolute XPath resolution and the owning Engine for recursive re-hydration.
// A strategy may multiply items (one input item producing several outputs,
// e.g. UseFunctionStrategy fanning a vn:link out over its matched children)
// or leave the count unchanged (e.g. HrefStrategy, which mutates in place).
type Strategy interface {
	Apply(ctx context.Context, items []Item, root *etree.Element, eng *Engine) ([]Item, error)
}
