package hydration

import (
	"context"
	"strings"

	"github.com/beevik/etree"
	"github.com/thuduc/fan-out-fan-in/pkg/errors"
	"github.com/thuduc/fan-out-fan-in/pkg/vnxml"
)

var selectIgnoreAttrs = map[string]bool{"select": true}

// SelectStrategy resolves select="<xpath>" nodes — select-by-reference, as
// opposed to the attribute-level ${select(...)} placeholders — by merging
// the node with whatever the xpath resolves to, then recursively
// re-hydrating the merged result through the full engine, since the
// referenced content can itself carry href/use/select. Eligible nodes are
// those whose ancestors (within the item being processed) carry no "use"
// attribute, since a use-bearing ancestor means this node hasn't actually
// been reached by the expansion yet.
type SelectStrategy struct {
	referenceCache map[string]*etree.Element
}

// NewSelectStrategy builds a SelectStrategy.
func NewSelectStrategy() *SelectStrategy {
	return &SelectStrategy{referenceCache: map[string]*etree.Element{}}
}

func (s *SelectStrategy) Apply(ctx context.Context, items []Item, root *etree.Element, eng *Engine) ([]Item, error) {
	var out []Item
	for _, item := range items {
		processed, err := s.processItem(ctx, item, root, eng)
		if err != nil {
			return nil, err
		}
		out = append(out, processed...)
	}
	return out, nil
}

func (s *SelectStrategy) processItem(ctx context.Context, item Item, root *etree.Element, eng *Engine) ([]Item, error) {
	element := item.Element
	itemContext := item.Context

	for {
		node := findSelectNode(element)
		if node == nil {
			break
		}

		expr := node.SelectAttrValue("select", "")
		replacementSource, err := s.resolveReference(expr, root, itemContext)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeHydration, err, "resolve select %q", expr)
		}

		merged := mergeElements(node, replacementSource, selectIgnoreAttrs, nil)

		subItems, err := eng.HydrateElement(ctx, merged, root, itemContext)
		if err != nil {
			return nil, err
		}
		if len(subItems) == 0 {
			return nil, errors.New(errors.ErrCodeHydration, "select %q produced no hydrated replacement", expr)
		}

		parent := node.Parent()
		if parent == nil {
			return nil, errors.New(errors.ErrCodeHydration, "select %q on the item's own root element has no parent to replace it in", expr)
		}

		tail := vnxml.Tail(parent, node)
		idx := vnxml.ChildIndex(parent, node)
		parent.RemoveChildAt(idx)
		for i, si := range subItems {
			parent.InsertChildAt(idx+i, si.Element)
			if i == len(subItems)-1 {
				vnxml.SetTail(parent, si.Element, tail)
			} else {
				vnxml.SetTail(parent, si.Element, "")
			}
		}
	}

	return []Item{{Element: element, Context: itemContext}}, nil
}

// findSelectNode returns the first node (in document order, self included)
// within el that carries a "select" attribute and has no ancestor (strictly
// above it, within el's own subtree) carrying a "use" attribute.
func findSelectNode(el *etree.Element) *etree.Element {
	var walk func(n *etree.Element, ancestorHasUse bool) *etree.Element
	walk = func(n *etree.Element, ancestorHasUse bool) *etree.Element {
		if n.SelectAttr("select") != nil && !ancestorHasUse {
			return n
		}
		nextAncestorHasUse := ancestorHasUse || n.SelectAttr("use") != nil
		for _, c := range n.ChildElements() {
			if found := walk(c, nextAncestorHasUse); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(el, false)
}

func (s *SelectStrategy) resolveReference(expr string, root, context *etree.Element) (*etree.Element, error) {
	if expr == "." {
		if context == nil {
			return nil, errors.New(errors.ErrCodeHydration, "select \".\" requires a context node")
		}
		return context, nil
	}

	switch {
	case strings.HasPrefix(expr, "/"):
		if cached, ok := s.referenceCache[expr]; ok {
			return cached, nil
		}
		el, err := exactlyOneElement(root.FindElements(expr), expr)
		if err != nil {
			return nil, err
		}
		s.referenceCache[expr] = el
		return el, nil
	case strings.HasPrefix(expr, "."):
		if context == nil {
			return nil, errors.New(errors.ErrCodeHydration, "select %q requires a context node", expr)
		}
		return exactlyOneElement(context.FindElements(expr), expr)
	default:
		return nil, errors.New(errors.ErrCodeHydration, "select expression %q must be absolute or relative", expr)
	}
}

func exactlyOneElement(matches []*etree.Element, expr string) (*etree.Element, error) {
	if len(matches) != 1 {
		return nil, errors.New(errors.ErrCodeHydration, "select %q matched %d elements, want exactly 1", expr, len(matches))
	}
	return matches[0], nil
}
