// Package critical extracts the critical CSS of a parsed page: it selects
// the above-the-fold elements, derives their signatures, matches them
// against every stylesheet rule and composes the result.
package critical

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/dtnitsch/pagespeed-ai/pkg/abovefold"
	"github.com/dtnitsch/pagespeed-ai/pkg/compose"
	"github.com/dtnitsch/pagespeed-ai/pkg/cssmin"
	"github.com/dtnitsch/pagespeed-ai/pkg/cssrules"
	"github.com/dtnitsch/pagespeed-ai/pkg/dom"
	"github.com/dtnitsch/pagespeed-ai/pkg/matcher"
	"github.com/dtnitsch/pagespeed-ai/pkg/signature"
)

// Extractor holds the pluggable pieces of the extraction. The zero value
// uses the heuristic selector and the substring matcher.
type Extractor struct {
	Selector abovefold.Selector
	// MatcherName is one of matcher.NameSubstring or matcher.NameEngine.
	MatcherName string
	Minify      bool
	Logger      *slog.Logger
}

// Result is the outcome of one extraction.
type Result struct {
	CSS        string   `json:"-" yaml:"-"`
	Elements   int      `json:"elements" yaml:"elements"`
	Signatures []string `json:"signatures" yaml:"signatures"`
	Rules      int      `json:"rules" yaml:"rules"`
	Selected   []string `json:"selected" yaml:"selected"`
}

// Extract computes the critical CSS of doc against sheets. It never fails:
// an unknown matcher name falls back to substring matching.
func (e *Extractor) Extract(doc *goquery.Document, sheets []cssrules.Stylesheet) Result {
	logger := e.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	sel := e.Selector
	if sel == nil {
		sel = abovefold.NewHeuristic()
	}

	elements := sel.Select(doc)
	sigs := signature.Build(elements)
	rules := cssrules.ParseAll(sheets)

	m, ok := matcher.New(e.MatcherName, elements)
	if !ok {
		logger.Warn("Unknown matcher, using substring", "matcher", e.MatcherName)
		m = matcher.Substring{}
	}
	selected := m.Match(sigs, rules)

	css := compose.Compose(selected, rules)
	if e.Minify {
		css = cssmin.Minify(css)
	}

	logger.Debug("Critical CSS extracted",
		"elements", len(elements),
		"signatures", len(sigs),
		"rules", len(rules),
		"selected", len(selected),
		"bytes", len(css))

	return Result{
		CSS:        css,
		Elements:   len(elements),
		Signatures: sigs.Sorted(),
		Rules:      len(rules),
		Selected:   selected.Sorted(),
	}
}

// CollectStylesheets lists the stylesheet links of doc (href as written, in
// document order) and returns inline style blocks as inline-N sheets.
func CollectStylesheets(doc *goquery.Document) ([]string, []cssrules.Stylesheet) {
	var links []string
	doc.Find("link").Each(func(i int, s *goquery.Selection) {
		if !dom.HasRelToken(s.Nodes[0], "stylesheet") {
			return
		}
		if href, ok := s.Attr("href"); ok && strings.TrimSpace(href) != "" {
			links = append(links, strings.TrimSpace(href))
		}
	})

	var inline []cssrules.Stylesheet
	doc.Find("style").Each(func(i int, s *goquery.Selection) {
		if text := s.Text(); text != "" {
			inline = append(inline, cssrules.Stylesheet{
				Origin: fmt.Sprintf("inline-%d", i),
				Text:   text,
			})
		}
	})
	return links, inline
}
