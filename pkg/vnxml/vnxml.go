// Package vnxml layers the handful of tree operations the hydration engine
// needs on top of beevik/etree: per-element deep copy, lxml-style tail text
// (etree has no Tail field of its own — trailing text is just a *etree.CharData
// token sitting after an element in its parent's Child slice), and an
// lxml-getpath-equivalent element path used in error messages.
package vnxml

import (
	"strings"

	"github.com/beevik/etree"
)

// Copy returns a deep, detached copy of el. This is the sole deep-copy
// primitive every hydration strategy uses at its input/output boundary.
func Copy(el *etree.Element) *etree.Element {
	return el.Copy()
}

// indexInParent returns the index of el within parent.Child, or -1 if el is
// not a direct child of parent. Matching is by pointer identity rather than
// etree.Element.Index(), which is not reliable across Copy() boundaries.
func indexInParent(parent *etree.Element, el *etree.Element) int {
	for i, tok := range parent.Child {
		if e, ok := tok.(*etree.Element); ok && e == el {
			return i
		}
	}
	return -1
}

// ChildIndex is the exported form of indexInParent, used by callers outside
// this package that need to locate an element among its parent's children
// (e.g. to splice a replacement in at the same position).
func ChildIndex(parent *etree.Element, el *etree.Element) int {
	return indexInParent(parent, el)
}

// Replace swaps oldEl for newEl at oldEl's position within parent, preserving
// whatever tail CharData already follows it. It is a no-op if oldEl is not a
// direct child of parent.
func Replace(parent *etree.Element, oldEl, newEl *etree.Element) {
	idx := indexInParent(parent, oldEl)
	if idx < 0 {
		return
	}
	parent.RemoveChildAt(idx)
	parent.InsertChildAt(idx, newEl)
}

// Tail returns the text immediately following el within its parent, i.e.
// the contents of the *etree.CharData token that sits right after el in
// parent.Child, if any. Returns "" if el has no parent or no trailing
// CharData token.
func Tail(parent *etree.Element, el *etree.Element) string {
	if parent == nil {
		return ""
	}
	idx := indexInParent(parent, el)
	if idx < 0 || idx+1 >= len(parent.Child) {
		return ""
	}
	if cd, ok := parent.Child[idx+1].(*etree.CharData); ok {
		return cd.Data
	}
	return ""
}

// SetTail sets the text immediately following el within its parent,
// creating a new CharData token if one is not already present, or removing
// the existing one if text is empty. It is a no-op if el is not a direct
// child of parent.
func SetTail(parent *etree.Element, el *etree.Element, text string) {
	if parent == nil {
		return
	}
	idx := indexInParent(parent, el)
	if idx < 0 {
		return
	}
	if idx+1 < len(parent.Child) {
		if cd, ok := parent.Child[idx+1].(*etree.CharData); ok {
			if text == "" {
				parent.Child = append(parent.Child[:idx+1], parent.Child[idx+2:]...)
			} else {
				cd.Data = text
			}
			return
		}
	}
	if text == "" {
		return
	}
	cd := etree.NewCharData(text)
	tail := append([]etree.Token{cd}, parent.Child[idx+1:]...)
	parent.Child = append(parent.Child[:idx+1], tail...)
}

// MoveTail transfers the tail text of src (within srcParent) onto dst
// (within dstParent). Used whenever a node is spliced out and replaced by
// one or more new nodes that must preserve the original's trailing text.
func MoveTail(srcParent, src, dstParent, dst *etree.Element) {
	SetTail(dstParent, dst, Tail(srcParent, src))
}

// Path computes a root-relative structural path for el, mirroring lxml's
// ElementTree.getpath: each step is "tag" if el is the only same-tag child
// of its parent, or "tag[N]" (1-indexed among same-tag siblings) otherwise.
// The root element itself is addressed as "/tag".
func Path(el *etree.Element) string {
	var steps []string
	cur := el
	for cur != nil {
		parent := cur.Parent()
		if parent == nil {
			steps = append(steps, "/"+cur.Tag)
			break
		}
		pos := samedTagPosition(parent, cur)
		if pos == 1 && countSameTag(parent, cur.Tag) == 1 {
			steps = append(steps, cur.Tag)
		} else {
			steps = append(steps, cur.Tag+"["+itoa(pos)+"]")
		}
		cur = parent
	}
	// steps were appended root-last; reverse and join with "/"
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return strings.Join(steps, "/")
}

func samedTagPosition(parent *etree.Element, el *etree.Element) int {
	pos := 0
	for _, child := range parent.ChildElements() {
		if child.Tag == el.Tag {
			pos++
		}
		if child == el {
			return pos
		}
	}
	return pos
}

func countSameTag(parent *etree.Element, tag string) int {
	n := 0
	for _, child := range parent.ChildElements() {
		if child.Tag == tag {
			n++
		}
	}
	return n
}

// Serialize renders el as a standalone XML document, e.g. for storing a
// resolved ${select(...)} element back into an attribute value, or writing
// a task payload/result blob to the store.
func Serialize(el *etree.Element) (string, error) {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	return doc.WriteToString()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
