// Package signature derives the textual selector fragments an element could
// be targeted by: tag, .class, tag.class, #id and parent-descendant pairs.
package signature

import (
	"sort"

	"golang.org/x/net/html"

	"github.com/dtnitsch/pagespeed-ai/pkg/dom"
)

// Set is an unordered set of signatures.
type Set map[string]struct{}

// Add inserts s.
func (s Set) Add(sig string) {
	s[sig] = struct{}{}
}

// Has reports membership.
func (s Set) Has(sig string) bool {
	_, ok := s[sig]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for sig := range s {
		out = append(out, sig)
	}
	sort.Strings(out)
	return out
}

// Build collects the signatures of every element node in nodes.
func Build(nodes []*html.Node) Set {
	set := make(Set)
	for _, n := range nodes {
		if !dom.IsElement(n, "") {
			continue
		}
		tag := n.Data
		classes := dom.Classes(n)

		set.Add(tag)
		for _, c := range classes {
			set.Add("." + c)
			set.Add(tag + "." + c)
		}
		if id := dom.ID(n); id != "" {
			set.Add("#" + id)
		}

		// The document node is not an element, so top-level elements get no
		// descendant pair.
		if p := n.Parent; dom.IsElement(p, "") {
			set.Add(p.Data + " " + tag)
			for _, c := range classes {
				set.Add(p.Data + " ." + c)
			}
		}
	}
	return set
}
