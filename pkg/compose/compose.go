// Package compose re-serializes critical rules into a stylesheet.
package compose

import (
	"strings"

	"github.com/dtnitsch/pagespeed-ai/pkg/cssrules"
	"github.com/dtnitsch/pagespeed-ai/pkg/matcher"
)

// Preamble opens every critical stylesheet, even when nothing matched.
const Preamble = `/* Critical CSS extracted by PageSpeed AI */

html, body {
    margin: 0;
    padding: 0;
    box-sizing: border-box;
}

*, *::before, *::after {
    box-sizing: inherit;
}
`

// Compose emits the preamble followed by every rule that has at least one
// selected selector, in rule order. Declarations are copied verbatim.
func Compose(selected matcher.Selected, rules []cssrules.StyleRule) string {
	var sb strings.Builder
	sb.WriteString(Preamble)
	for _, rule := range rules {
		if !anySelected(selected, rule.Selectors) {
			continue
		}
		sb.WriteString(rule.SelectorText)
		sb.WriteString(" {\n")
		for _, d := range rule.Declarations {
			sb.WriteString("    ")
			sb.WriteString(string(d))
			sb.WriteString(";\n")
		}
		sb.WriteString("}\n\n")
	}
	return sb.String()
}

func anySelected(selected matcher.Selected, selectors []string) bool {
	for _, s := range selectors {
		if selected.Has(s) {
			return true
		}
	}
	return false
}
