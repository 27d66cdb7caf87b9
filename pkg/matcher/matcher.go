// Package matcher decides which CSS selectors are critical for a set of
// above-the-fold elements.
//
// Matching favors recall: a rule that is wrongly included costs bytes, a rule
// that is wrongly excluded breaks the first paint.
package matcher

import (
	"regexp"
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/dtnitsch/pagespeed-ai/pkg/cssrules"
	"github.com/dtnitsch/pagespeed-ai/pkg/signature"
)

// Matcher names accepted by New.
const (
	NameSubstring = "substring"
	NameEngine    = "engine"
)

// Selected is the set of raw selector strings judged critical.
type Selected map[string]struct{}

// Has reports membership.
func (s Selected) Has(sel string) bool {
	_, ok := s[sel]
	return ok
}

// Sorted returns the selectors in lexical order.
func (s Selected) Sorted() []string {
	out := make([]string, 0, len(s))
	for sel := range s {
		out = append(out, sel)
	}
	sort.Strings(out)
	return out
}

// Matcher intersects element signatures with parsed rules.
type Matcher interface {
	Match(sigs signature.Set, rules []cssrules.StyleRule) Selected
}

var pseudoPattern = regexp.MustCompile(`::?[a-zA-Z-]+(\([^)]*\))?`)

// BaseSelector strips pseudo-class and pseudo-element suffixes.
func BaseSelector(sel string) string {
	return pseudoPattern.ReplaceAllString(sel, "")
}

// Substring marks a selector critical when any signature occurs inside its
// base selector.
type Substring struct{}

// Match implements Matcher.
func (Substring) Match(sigs signature.Set, rules []cssrules.StyleRule) Selected {
	ordered := sigs.Sorted()
	selected := make(Selected)
	for _, rule := range rules {
		for _, sel := range rule.Selectors {
			if selected.Has(sel) {
				continue
			}
			if containsAny(BaseSelector(sel), ordered) {
				selected[sel] = struct{}{}
			}
		}
	}
	return selected
}

func containsAny(base string, sigs []string) bool {
	for _, sig := range sigs {
		if strings.Contains(base, sig) {
			return true
		}
	}
	return false
}

// Engine adds real selector evaluation on top of Substring. A selector is
// critical when the substring test accepts it or when its compiled base
// selector matches one of Nodes. Selectors cascadia cannot parse keep the
// substring verdict, so the result is always a superset of Substring's.
type Engine struct {
	Nodes []*html.Node
}

// Match implements Matcher.
func (e Engine) Match(sigs signature.Set, rules []cssrules.StyleRule) Selected {
	selected := Substring{}.Match(sigs, rules)
	if len(e.Nodes) == 0 {
		return selected
	}
	for _, rule := range rules {
		for _, sel := range rule.Selectors {
			if selected.Has(sel) {
				continue
			}
			base := strings.TrimSpace(BaseSelector(sel))
			if base == "" {
				continue
			}
			group, err := cascadia.ParseGroup(base)
			if err != nil {
				continue
			}
			for _, n := range e.Nodes {
				if group.Match(n) {
					selected[sel] = struct{}{}
					break
				}
			}
		}
	}
	return selected
}

// New returns the matcher registered under name. Engine matchers evaluate
// against nodes.
func New(name string, nodes []*html.Node) (Matcher, bool) {
	switch name {
	case "", NameSubstring:
		return Substring{}, true
	case NameEngine:
		return Engine{Nodes: nodes}, true
	}
	return nil, false
}
