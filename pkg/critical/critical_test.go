package critical

import (
	"reflect"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/dtnitsch/pagespeed-ai/pkg/compose"
	"github.com/dtnitsch/pagespeed-ai/pkg/cssrules"
)

func newDoc(t *testing.T, src string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		t.Fatalf("failed to parse HTML: %v", err)
	}
	return doc
}

func TestExtract_HeaderScenario(t *testing.T) {
	doc := newDoc(t, `<header class="site-head"></header><style>header{color:red}.foo{color:blue}</style>`)
	_, inline := CollectStylesheets(doc)

	res := (&Extractor{}).Extract(doc, inline)

	if !strings.Contains(strings.Join(res.Signatures, ","), "header") {
		t.Errorf("signatures %v should include header", res.Signatures)
	}
	if !reflect.DeepEqual(res.Selected, []string{"header"}) {
		t.Errorf("Selected = %v, want [header]", res.Selected)
	}
	if !strings.Contains(res.CSS, "color:red;") {
		t.Errorf("CSS should contain the header declaration:\n%s", res.CSS)
	}
	if strings.Contains(res.CSS, "color:blue") {
		t.Errorf("CSS should not contain .foo declarations:\n%s", res.CSS)
	}
	if !strings.HasPrefix(res.CSS, compose.Preamble) {
		t.Error("CSS should start with the preamble")
	}
}

func TestExtract_Idempotent(t *testing.T) {
	src := `<html><head><style>
		nav a { color: red } .hero h1 { font-size: 3em } .hero:hover { x: y }
		.section p { margin: 0 } footer { display: none } @media print { nav { display:none } }
	</style></head><body>
		<nav><a href="#">x</a></nav>
		<div class="hero"><h1>t</h1></div>
		<div class="section"><p>a</p></div>
		<img src="a.png" width="10" height="20" class="lead">
		<footer></footer>
	</body></html>`

	var outputs []string
	for i := 0; i < 3; i++ {
		doc := newDoc(t, src)
		_, inline := CollectStylesheets(doc)
		outputs = append(outputs, (&Extractor{MatcherName: "engine"}).Extract(doc, inline).CSS)
	}
	if outputs[0] != outputs[1] || outputs[1] != outputs[2] {
		t.Error("extraction is not byte-identical across runs")
	}
	if strings.Contains(outputs[0], "@media") {
		t.Error("at-rules must never be emitted")
	}
}

func TestExtract_NoMatchesYieldsPreamble(t *testing.T) {
	doc := newDoc(t, `<p>nothing above the fold</p>`)
	res := (&Extractor{}).Extract(doc, []cssrules.Stylesheet{{Origin: "a.css", Text: ".x{y:z}"}})
	if res.CSS != compose.Preamble {
		t.Errorf("CSS = %q, want preamble only", res.CSS)
	}
}

func TestExtract_Minify(t *testing.T) {
	doc := newDoc(t, `<header></header>`)
	res := (&Extractor{Minify: true}).Extract(doc, []cssrules.Stylesheet{{Origin: "a.css", Text: "header { color: red }"}})
	if !strings.HasSuffix(res.CSS, "header{color:red}") {
		t.Errorf("minified CSS = %q", res.CSS)
	}
}

func TestCollectStylesheets(t *testing.T) {
	doc := newDoc(t, `<html><head>
		<link rel="stylesheet" href="/a.css">
		<link rel="preload" href="/font.woff2">
		<link rel="Alternate StyleSheet" href=" b.css ">
		<link rel="stylesheet">
		<style>p{x:y}</style><style></style><style>q{z:w}</style>
	</head></html>`)

	links, inline := CollectStylesheets(doc)
	if !reflect.DeepEqual(links, []string{"/a.css", "b.css"}) {
		t.Errorf("links = %v", links)
	}
	if len(inline) != 2 || inline[0].Origin != "inline-0" || inline[1].Origin != "inline-2" {
		t.Errorf("inline = %#v", inline)
	}
}
