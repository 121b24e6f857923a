package hydration

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/thuduc/fan-out-fan-in/pkg/vnxml"
)

// mergeElements combines local and remote into a new, detached element
// carrying remote's tag and namespace prefix: the union of their attributes (remote first, local overlaid so local wins on
// conflict, minus anything named in either ignore set), text chosen by the
// precedence rules below, and children merged recursively by identity.
//
// Text precedence mirrors the two call sites that need it: when local
// carries a "select" attribute (the select-by-reference path) and remote has
// non-nil text, remote's text wins; otherwise local's non-blank text wins,
// falling back to remote's.
func mergeElements(local, remote *etree.Element, ignoreLocalAttrs, ignoreRemoteAttrs map[string]bool) *etree.Element {
	merged := etree.NewElement(remote.Tag)
	merged.Space = remote.Space

	for _, a := range remote.Attr {
		if ignoreRemoteAttrs[a.Key] {
			continue
		}
		merged.CreateAttr(a.Key, a.Value)
	}
	for _, a := range local.Attr {
		if ignoreLocalAttrs[a.Key] {
			continue
		}
		merged.CreateAttr(a.Key, a.Value)
	}

	if local.SelectAttr("select") != nil && remote.Text() != "" {
		merged.SetText(remote.Text())
	} else if strings.TrimSpace(local.Text()) != "" {
		merged.SetText(local.Text())
	} else {
		merged.SetText(remote.Text())
	}

	mergeChildren(merged, local, remote)
	return merged
}

// childKey identifies a child element for cross-document merge matching:
// by "name" attribute if present, else "id" attribute, else its tag plus its
// 1-based position among all same-tag siblings (named ones included).
func childKey(el *etree.Element, position int) string {
	if name := el.SelectAttrValue("name", ""); name != "" {
		return fmt.Sprintf("%s\x00name\x00%s", el.Tag, name)
	}
	if id := el.SelectAttrValue("id", ""); id != "" {
		return fmt.Sprintf("%s\x00id\x00%s", el.Tag, id)
	}
	return fmt.Sprintf("%s\x00pos\x00%d", el.Tag, position)
}

// childSignature identifies a child element ignoring position: by "name"
// attribute if present, else "id" attribute, else tag alone. Two elements
// sharing a signature are considered duplicates regardless of where each
// appears among its siblings.
func childSignature(el *etree.Element) string {
	if name := el.SelectAttrValue("name", ""); name != "" {
		return fmt.Sprintf("%s\x00name\x00%s", el.Tag, name)
	}
	if id := el.SelectAttrValue("id", ""); id != "" {
		return fmt.Sprintf("%s\x00id\x00%s", el.Tag, id)
	}
	return el.Tag
}

// mergeChildren appends local's children to merged, recursively merging any
// that match a remote child by childKey, and copying the rest verbatim.
// Remote children with no local counterpart are appended afterward. Each
// remote child is consumed by identity at most once, so two local children
// that happen to compute the same key cannot both claim it.
func mergeChildren(merged, local, remote *etree.Element) {
	remoteByKey := map[string][]*etree.Element{}
	counts := map[string]int{}
	for _, c := range remote.ChildElements() {
		counts[c.Tag]++
		k := childKey(c, counts[c.Tag])
		remoteByKey[k] = append(remoteByKey[k], c)
	}
	consumed := map[*etree.Element]bool{}

	localSignatures := map[string]bool{}
	for _, lc := range local.ChildElements() {
		localSignatures[childSignature(lc)] = true
	}

	localCounts := map[string]int{}
	for _, lc := range local.ChildElements() {
		localCounts[lc.Tag]++
		k := childKey(lc, localCounts[lc.Tag])

		var match *etree.Element
		for _, cand := range remoteByKey[k] {
			if !consumed[cand] {
				match = cand
				consumed[cand] = true
				break
			}
		}

		var appended *etree.Element
		if match != nil {
			appended = mergeElements(lc, match, nil, nil)
		} else {
			appended = vnxml.Copy(lc)
		}
		merged.AddChild(appended)
		vnxml.SetTail(merged, appended, vnxml.Tail(local, lc))
	}

	for _, c := range remote.ChildElements() {
		if consumed[c] || localSignatures[childSignature(c)] {
			continue
		}
		appended := vnxml.Copy(c)
		merged.AddChild(appended)
		vnxml.SetTail(merged, appended, vnxml.Tail(remote, c))
	}
}
