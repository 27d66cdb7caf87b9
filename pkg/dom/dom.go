// Package dom holds small helpers over golang.org/x/net/html nodes shared by
// the extraction and transform packages.
package dom

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Attr returns the value of the attribute key and whether it is present.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// HasAttr reports whether the attribute key is present.
func HasAttr(n *html.Node, key string) bool {
	_, ok := Attr(n, key)
	return ok
}

// SetAttr sets or replaces the attribute key.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// Classes returns the whitespace separated class tokens of n.
func Classes(n *html.Node) []string {
	v, _ := Attr(n, "class")
	return strings.Fields(v)
}

// ID returns the trimmed id attribute, or "" when absent.
func ID(n *html.Node) string {
	v, _ := Attr(n, "id")
	return strings.TrimSpace(v)
}

// IntAttr parses an integer attribute such as width or height.
func IntAttr(n *html.Node, key string) (int, bool) {
	v, ok := Attr(n, key)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return i, true
}

// IsElement reports whether n is an element with the given tag (any tag when
// tag is empty).
func IsElement(n *html.Node, tag string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	return tag == "" || n.Data == tag
}

// NewElement creates a detached element with attributes in the given order.
// Attributes are passed as key/value pairs.
func NewElement(tag string, kv ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	return n
}

// PrependChild inserts child as the first child of parent.
func PrependChild(parent, child *html.Node) {
	if parent.FirstChild == nil {
		parent.AppendChild(child)
		return
	}
	parent.InsertBefore(child, parent.FirstChild)
}

// InsertAfter inserts n directly after ref among ref's siblings.
func InsertAfter(ref, n *html.Node) {
	if ref.Parent == nil {
		return
	}
	if ref.NextSibling == nil {
		ref.Parent.AppendChild(n)
		return
	}
	ref.Parent.InsertBefore(n, ref.NextSibling)
}

// PrecedingSiblingsLength returns the serialized length in bytes of the
// element siblings before n. It approximates how much markup renders ahead
// of n, so a preceding head is not counted.
func PrecedingSiblingsLength(n *html.Node) int {
	var sb strings.Builder
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type != html.ElementNode || s.Data == "head" {
			continue
		}
		if err := html.Render(&sb, s); err != nil {
			break
		}
	}
	return sb.Len()
}

// HasRelToken reports whether n's rel attribute contains token
// (case-insensitive).
func HasRelToken(n *html.Node, token string) bool {
	rel, _ := Attr(n, "rel")
	for _, tok := range strings.Fields(strings.ToLower(rel)) {
		if tok == token {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of n and its descendants, detached from any
// parent.
func Clone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.AppendChild(Clone(ch))
	}
	return c
}
