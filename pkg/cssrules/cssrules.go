// Package cssrules turns raw stylesheet text into an ordered list of
// selector-group / declaration-block rules.
//
// The scanner is deliberately flat: a declaration block ends at the first
// closing brace, so nested blocks (media queries, keyframes) are not
// understood. At-rules are dropped as a whole.
package cssrules

import (
	"regexp"
	"strings"
)

// Declaration is a single "property: value" fragment, kept verbatim.
type Declaration string

// StyleRule is one selector group with its declarations.
type StyleRule struct {
	Selectors    []string      `json:"selectors"`
	SelectorText string        `json:"selector_text"`
	Declarations []Declaration `json:"declarations"`
	Origin       string        `json:"origin"`
}

// Stylesheet pairs a stylesheet identifier (URL or inline-N) with its text.
type Stylesheet struct {
	Origin string
	Text   string
}

var rulePattern = regexp.MustCompile(`([^{]+)\{([^}]*)\}`)

// Parse extracts the style rules of a single stylesheet.
func Parse(origin, cssText string) []StyleRule {
	var rules []StyleRule
	for _, m := range rulePattern.FindAllStringSubmatch(cssText, -1) {
		selectorText := strings.TrimSpace(m[1])
		if selectorText == "" || strings.HasPrefix(selectorText, "@") {
			continue
		}
		selectors := SplitSelectors(selectorText)
		if len(selectors) == 0 {
			continue
		}
		rules = append(rules, StyleRule{
			Selectors:    selectors,
			SelectorText: selectorText,
			Declarations: splitDeclarations(m[2]),
			Origin:       origin,
		})
	}
	return rules
}

// ParseAll parses every stylesheet and concatenates the rules in sheet order.
func ParseAll(sheets []Stylesheet) []StyleRule {
	var rules []StyleRule
	for _, sheet := range sheets {
		rules = append(rules, Parse(sheet.Origin, sheet.Text)...)
	}
	return rules
}

// SplitSelectors splits a selector group on commas and trims each member.
func SplitSelectors(selectorText string) []string {
	parts := strings.Split(selectorText, ",")
	selectors := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			selectors = append(selectors, p)
		}
	}
	return selectors
}

func splitDeclarations(block string) []Declaration {
	var decls []Declaration
	for _, d := range strings.Split(block, ";") {
		if d = strings.TrimSpace(d); d != "" {
			decls = append(decls, Declaration(d))
		}
	}
	return decls
}
