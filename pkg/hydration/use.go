package hydration

import (
	"context"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"github.com/thuduc/fan-out-fan-in/pkg/errors"
	"github.com/thuduc/fan-out-fan-in/pkg/vnxml"
)

const useNamespace = "vn"

var supportedUseFunctions = map[string]bool{"link": true}

var useExprPattern = regexp.MustCompile(`^(\w+):(\w+)\((.*)\)$`)

// UseFunctionStrategy expands use="vn:link(sourceXPath, childName)" nodes:
// sourceXPath is evaluated against the document root, and each child named
// childName under each match produces one new item — a deep copy of the
// original element (with use stripped) whose context node is that child.
// Expansion runs to a fixed point via a work queue, since the replacement
// items are re-checked for further use attributes before being emitted.
type UseFunctionStrategy struct{}

// NewUseFunctionStrategy builds a UseFunctionStrategy.
func NewUseFunctionStrategy() *UseFunctionStrategy {
	return &UseFunctionStrategy{}
}

func (u *UseFunctionStrategy) Apply(ctx context.Context, items []Item, root *etree.Element, eng *Engine) ([]Item, error) {
	queue := make([]Item, len(items))
	copy(queue, items)

	var out []Item
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		expr := item.Element.SelectAttrValue("use", "")
		if expr == "" {
			out = append(out, item)
			continue
		}

		fn, args, err := parseUseExpression(expr)
		if err != nil {
			return nil, err
		}
		if !supportedUseFunctions[fn] {
			return nil, errors.New(errors.ErrCodeHydration, "unsupported use function %q", fn)
		}
		if len(args) != 2 {
			return nil, errors.New(errors.ErrCodeHydration, "vn:%s requires exactly 2 arguments, got %d", fn, len(args))
		}

		expanded, err := executeLink(item, root, args[0], args[1])
		if err != nil {
			return nil, err
		}
		queue = append(queue, expanded...)
	}
	return out, nil
}

// parseUseExpression splits "vn:link(a, b)" into its function name and raw
// argument list. The namespace prefix is captured by the pattern but, to
// match the historical implementation this was ported from, is discarded in
// favor of a separate literal-prefix check rather than compared directly.
func parseUseExpression(expr string) (fn string, args []string, err error) {
	m := useExprPattern.FindStringSubmatch(expr)
	if m == nil {
		return "", nil, errors.New(errors.ErrCodeHydration, "malformed use expression %q", expr)
	}
	_ = m[1] // prefix, validated below rather than compared here
	if !strings.HasPrefix(expr, useNamespace+":") {
		return "", nil, errors.New(errors.ErrCodeHydration, "unsupported use namespace in %q", expr)
	}
	fn = m[2]
	rawArgs := strings.TrimSpace(m[3])
	if rawArgs == "" {
		return fn, nil, nil
	}
	for _, a := range strings.Split(rawArgs, ",") {
		args = append(args, strings.TrimSpace(a))
	}
	return fn, args, nil
}

func executeLink(item Item, root *etree.Element, sourceXPath, childName string) ([]Item, error) {
	var out []Item
	for _, m := range root.FindElements(sourceXPath) {
		for _, c := range m.FindElements("./" + childName) {
			cp := vnxml.Copy(item.Element)
			cp.RemoveAttr("use")
			out = append(out, Item{Element: cp, Context: c})
		}
	}
	if len(out) == 0 {
		return nil, errors.New(errors.ErrCodeHydration, "vn:link(%s, %s) matched no nodes", sourceXPath, childName)
	}
	return out, nil
}
