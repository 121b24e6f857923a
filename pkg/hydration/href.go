package hydration

import (
	"context"
	"strings"

	"github.com/beevik/etree"
	"github.com/thuduc/fan-out-fan-in/pkg/errors"
	"github.com/thuduc/fan-out-fan-in/pkg/fetch"
	"github.com/thuduc/fan-out-fan-in/pkg/vnxml"
)

var hrefIgnoreAttrs = map[string]bool{"href": true}

// HrefStrategy replaces every node carrying an href attribute with the
// merge of itself and the remote node it points to, re-scanning after each
// merge since the fetched content can itself carry href attributes. It
// caches fetched-and-parsed documents per instance, so repeated href targets
// within one request only cost one fetch.
type HrefStrategy struct {
	fetcher   fetch.Fetcher
	documents map[string]*etree.Document
}

// NewHrefStrategy builds an HrefStrategy around the given fetcher.
func NewHrefStrategy(fetcher fetch.Fetcher) *HrefStrategy {
	return &HrefStrategy{fetcher: fetcher, documents: map[string]*etree.Document{}}
}

func (h *HrefStrategy) Apply(ctx context.Context, items []Item, root *etree.Element, eng *Engine) ([]Item, error) {
	for _, item := range items {
		for {
			node := findHrefNode(item.Element)
			if node == nil {
				break
			}
			if err := h.hydrateSingleNode(ctx, node); err != nil {
				return nil, err
			}
		}
	}
	return items, nil
}

func findHrefNode(el *etree.Element) *etree.Element {
	if el.SelectAttr("href") != nil {
		return el
	}
	for _, c := range el.ChildElements() {
		if found := findHrefNode(c); found != nil {
			return found
		}
	}
	return nil
}

func (h *HrefStrategy) hydrateSingleNode(ctx context.Context, node *etree.Element) error {
	uri := node.SelectAttrValue("href", "")
	doc, err := h.resolveDocument(ctx, uri)
	if err != nil {
		return errors.Wrap(errors.ErrCodeHydration, err, "resolve href %s", uri)
	}

	remote, err := locateRemoteNode(doc.Root(), node)
	if err != nil {
		return errors.Wrap(errors.ErrCodeHydration, err, "locate remote node for href %s", uri)
	}

	merged := mergeElements(node, remote, hrefIgnoreAttrs, hrefIgnoreAttrs)
	if parent := node.Parent(); parent != nil {
		vnxml.Replace(parent, node, merged)
	} else {
		replaceInPlace(node, merged)
	}
	return nil
}

func (h *HrefStrategy) resolveDocument(ctx context.Context, uri string) (*etree.Document, error) {
	if doc, ok := h.documents[uri]; ok {
		return doc, nil
	}
	data, err := h.fetcher.Fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, errors.Wrap(errors.ErrCodeHydration, err, "parse document fetched from %s", uri)
	}
	h.documents[uri] = doc
	return doc, nil
}

// locateRemoteNode resolves which element within the remote document
// corresponds to the local href-bearing node, trying in order: the same
// structural path (minus the root segment, since remote documents have
// their own root tag), an exact name/id attribute match, and finally a sole
// tag match. Returns a HydrationError naming the target tag if none apply.
func locateRemoteNode(remoteRoot *etree.Element, local *etree.Element) (*etree.Element, error) {
	if path := relativePath(local); path != "" {
		if el := remoteRoot.FindElement(path); el != nil {
			return el, nil
		}
	}

	if name := local.SelectAttrValue("name", ""); name != "" {
		if matches := remoteRoot.FindElements(".//" + local.Tag + "[@name='" + name + "']"); len(matches) == 1 {
			return matches[0], nil
		}
	}
	if id := local.SelectAttrValue("id", ""); id != "" {
		if matches := remoteRoot.FindElements(".//" + local.Tag + "[@id='" + id + "']"); len(matches) == 1 {
			return matches[0], nil
		}
	}

	matches := remoteRoot.FindElements(".//" + local.Tag)
	if remoteRoot.Tag == local.Tag {
		matches = append([]*etree.Element{remoteRoot}, matches...)
	}
	if len(matches) == 1 {
		return matches[0], nil
	}

	return nil, errors.New(errors.ErrCodeHydration, "no unambiguous remote match for <%s> in href target", local.Tag)
}

// relativePath strips the leading root segment off vnxml.Path(local), since
// that segment names the local document's root tag rather than the remote
// document's.
func relativePath(local *etree.Element) string {
	full := vnxml.Path(local)
	full = strings.TrimPrefix(full, "/")
	idx := strings.Index(full, "/")
	if idx < 0 {
		return ""
	}
	return "./" + full[idx+1:]
}

// replaceInPlace overwrites dst's attributes, text and children with src's,
// keeping dst's identity. Used when the node being replaced is the root of
// the hydration item and therefore has no parent to splice into.
func replaceInPlace(dst, src *etree.Element) {
	dst.Attr = nil
	for _, a := range src.Attr {
		dst.CreateAttr(a.Key, a.Value)
	}
	dst.Child = nil
	for _, tok := range src.Child {
		dst.AddChild(tok)
	}
}
