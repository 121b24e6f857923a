package hydration

import (
	"context"
	"strings"

	"github.com/beevik/etree"
	"github.com/thuduc/fan-out-fan-in/pkg/errors"
	"github.com/thuduc/fan-out-fan-in/pkg/vnxml"
)

const (
	attrSelectPrefix = "${select("
	attrSelectSuffix = ")}"
)

// AttributeSelectStrategy substitutes attribute values written in the exact
// form "${select(<xpath>)}" with the result of evaluating that xpath: an
// absolute expression (leading "/") is evaluated against the document root,
// a relative one (leading ".") against the item's context node. The xpath
// must resolve to exactly one element, which is serialized back in as XML
// text.
type AttributeSelectStrategy struct{}

// NewAttributeSelectStrategy builds an AttributeSelectStrategy.
func NewAttributeSelectStrategy() *AttributeSelectStrategy {
	return &AttributeSelectStrategy{}
}

func (a *AttributeSelectStrategy) Apply(ctx context.Context, items []Item, root *etree.Element, eng *Engine) ([]Item, error) {
	for _, item := range items {
		if err := a.hydrateNode(item.Element, root, item.Context); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (a *AttributeSelectStrategy) hydrateNode(el, root, context *etree.Element) error {
	for _, attr := range el.Attr {
		expr, matched, err := extractAttrSelectXPath(attr.Value)
		if err != nil {
			return err
		}
		if !matched {
			continue
		}
		value, err := resolveAttrSelect(expr, root, context)
		if err != nil {
			return errors.Wrap(errors.ErrCodeHydration, err, "resolve ${select(%s)} on <%s>@%s", expr, el.Tag, attr.Key)
		}
		el.CreateAttr(attr.Key, value)
	}
	for _, c := range el.ChildElements() {
		if err := a.hydrateNode(c, root, context); err != nil {
			return err
		}
	}
	return nil
}

func extractAttrSelectXPath(value string) (expr string, matched bool, err error) {
	if !strings.HasPrefix(value, attrSelectPrefix) || !strings.HasSuffix(value, attrSelectSuffix) {
		return "", false, nil
	}
	inner := value[len(attrSelectPrefix) : len(value)-len(attrSelectSuffix)]
	if strings.TrimSpace(inner) == "" {
		return "", true, errors.New(errors.ErrCodeHydration, "empty ${select(...)} expression")
	}
	return inner, true, nil
}

func resolveAttrSelect(expr string, root, context *etree.Element) (string, error) {
	var matches []*etree.Element
	switch {
	case strings.HasPrefix(expr, "/"):
		matches = root.FindElements(expr)
	case strings.HasPrefix(expr, "."):
		if context == nil {
			return "", errors.New(errors.ErrCodeHydration, "relative select %q requires a context node", expr)
		}
		matches = context.FindElements(expr)
	default:
		return "", errors.New(errors.ErrCodeHydration, "select expression %q must be absolute or relative", expr)
	}

	if len(matches) != 1 {
		return "", errors.New(errors.ErrCodeHydration, "select %q matched %d elements, want exactly 1", expr, len(matches))
	}
	return vnxml.Serialize(matches[0])
}
