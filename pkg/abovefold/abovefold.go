// Package abovefold decides which elements of a document are considered
// visible without scrolling.
package abovefold

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/dtnitsch/pagespeed-ai/pkg/dom"
)

// DefaultSectionLimit is how many "section" classed blocks are taken.
const DefaultSectionLimit = 3

// Selector returns the above-the-fold elements of a document in priority
// order. Implementations backed by a real rendering engine can replace the
// heuristic without touching the matcher or composer.
type Selector interface {
	Select(doc *goquery.Document) []*html.Node
}

// Heuristic approximates the initial viewport from structural landmarks
// and the dominant sized image.
type Heuristic struct {
	SectionLimit int
}

// NewHeuristic returns a Heuristic with the default section limit.
func NewHeuristic() *Heuristic {
	return &Heuristic{SectionLimit: DefaultSectionLimit}
}

// Select implements Selector.
func (h *Heuristic) Select(doc *goquery.Document) []*html.Node {
	if doc == nil {
		return nil
	}
	limit := h.SectionLimit
	if limit <= 0 {
		limit = DefaultSectionLimit
	}

	var out []*html.Node
	seen := make(map[*html.Node]bool)
	add := func(n *html.Node) {
		if n == nil || seen[n] {
			return
		}
		seen[n] = true
		out = append(out, n)
	}

	for _, n := range doc.Find("header, nav").Nodes {
		add(n)
	}

	for _, n := range doc.Find("[class]").Nodes {
		if hasClassContaining(n, "hero", "banner") {
			add(n)
		}
	}

	taken := 0
	for _, n := range doc.Find("section, div").Nodes {
		if taken == limit {
			break
		}
		if hasClassContaining(n, "section") {
			add(n)
			taken++
		}
	}

	add(DominantImage(doc.Find("img").Nodes))

	return out
}

// DominantImage returns the img with the largest width*height among images
// declaring both dimensions as integers. Ties go to the earliest node.
// Images missing either dimension never qualify.
func DominantImage(nodes []*html.Node) *html.Node {
	var best *html.Node
	bestArea := -1
	for _, n := range nodes {
		if !dom.IsElement(n, "img") {
			continue
		}
		w, ok := dom.IntAttr(n, "width")
		if !ok {
			continue
		}
		h, ok := dom.IntAttr(n, "height")
		if !ok {
			continue
		}
		if area := w * h; area > bestArea {
			best, bestArea = n, area
		}
	}
	return best
}

func hasClassContaining(n *html.Node, needles ...string) bool {
	for _, c := range dom.Classes(n) {
		lc := strings.ToLower(c)
		for _, needle := range needles {
			if strings.Contains(lc, needle) {
				return true
			}
		}
	}
	return false
}
