package transform

import (
	"net/url"
	"reflect"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/dtnitsch/pagespeed-ai/pkg/dom"
)

func newDoc(t *testing.T, src string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		t.Fatalf("failed to parse HTML: %v", err)
	}
	return doc
}

func mustTransform(t *testing.T, p *Pipeline, doc *goquery.Document, css string, res ResourceMap) (*goquery.Document, *Plan) {
	t.Helper()
	out, plan, err := p.Transform(doc, css, res)
	if err != nil {
		t.Fatalf("Transform() failed: %v", err)
	}
	return out, plan
}

func TestTransform_CreatesHeadUnderHTML(t *testing.T) {
	// Built by hand: the HTML5 parser would always synthesize a head.
	root := &html.Node{Type: html.DocumentNode}
	htmlEl := dom.NewElement("html")
	body := dom.NewElement("body")
	body.AppendChild(dom.NewElement("p"))
	htmlEl.AppendChild(body)
	root.AppendChild(htmlEl)
	doc := goquery.NewDocumentFromNode(root)

	out, _ := mustTransform(t, New(Options{}), doc, "p{x:y}", nil)

	heads := out.Find("head")
	if heads.Length() != 1 {
		t.Fatalf("want exactly one head, got %d", heads.Length())
	}
	first := out.Find("html").Nodes[0].FirstChild
	if !dom.IsElement(first, "head") {
		t.Errorf("head is not the first child of html: %v", first.Data)
	}
	if htmlEl.FirstChild != body {
		t.Error("input document was modified")
	}
}

func TestTransform_CreatesEnclosingHTML(t *testing.T) {
	root := &html.Node{Type: html.DocumentNode}
	root.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	root.AppendChild(dom.NewElement("div", "id", "content"))
	doc := goquery.NewDocumentFromNode(root)

	out, _ := mustTransform(t, New(Options{}), doc, "", nil)

	htmlSel := out.Find("html")
	if htmlSel.Length() != 1 {
		t.Fatalf("want one html element, got %d", htmlSel.Length())
	}
	if out.Find("html > head").Length() != 1 {
		t.Error("head should be a child of html")
	}
	if out.Find("html > #content").Length() != 1 {
		t.Error("existing content should move into html")
	}
	if out.Nodes[0].FirstChild.Type != html.DoctypeNode {
		t.Error("doctype should stay at the document root")
	}
}

func TestTransform_InlinesCriticalCSSFirst(t *testing.T) {
	doc := newDoc(t, `<html><head><title>t</title></head><body></body></html>`)
	out, plan := mustTransform(t, New(Options{}), doc, "header{color:red}", nil)

	first := out.Find("head").Nodes[0].FirstChild
	if !dom.IsElement(first, "style") || first.FirstChild.Data != "header{color:red}" {
		t.Errorf("first head child should be the critical style block, got %v", first.Data)
	}
	if plan.CriticalCSS != "header{color:red}" {
		t.Errorf("plan.CriticalCSS = %q", plan.CriticalCSS)
	}

	out, _ = mustTransform(t, New(Options{}), doc, "", nil)
	if out.Find("style").Length() != 0 {
		t.Error("empty critical CSS should not add a style block")
	}
}

func TestTransform_StylesheetsGetNoscriptFallback(t *testing.T) {
	doc := newDoc(t, `<html><head>
		<link rel="stylesheet" href="/css/site.css">
		<link rel="stylesheet" href="https://cdn.example.net/lib.css">
		<link rel="icon" href="/favicon.ico">
	</head><body></body></html>`)
	base, _ := url.Parse("https://example.com/page")
	res := ResourceMap{"https://example.com/css/site.css": "css/site.css"}

	out, plan := mustTransform(t, New(Options{BaseURL: base}), doc, "", res)

	links := out.Find(`link[as="style"]`).Nodes
	if len(links) != 2 {
		t.Fatalf("want 2 preload stylesheet links, got %d", len(links))
	}
	wantHrefs := []string{"css/site.css", "https://cdn.example.net/lib.css"}
	for i, link := range links {
		if rel, _ := dom.Attr(link, "rel"); rel != "preload" {
			t.Errorf("link %d rel = %q, want preload", i, rel)
		}
		if onload, _ := dom.Attr(link, "onload"); onload != stylesheetOnload {
			t.Errorf("link %d onload = %q", i, onload)
		}
		href, _ := dom.Attr(link, "href")
		if href != wantHrefs[i] {
			t.Errorf("link %d href = %q, want %q", i, href, wantHrefs[i])
		}

		ns := link.NextSibling
		if !dom.IsElement(ns, "noscript") {
			t.Fatalf("link %d is not immediately followed by noscript", i)
		}
		fallback := ns.FirstChild
		if !dom.IsElement(fallback, "link") || !dom.HasRelToken(fallback, "stylesheet") {
			t.Fatalf("noscript %d does not contain a stylesheet link", i)
		}
		if fh, _ := dom.Attr(fallback, "href"); fh != href {
			t.Errorf("fallback href = %q, want %q", fh, href)
		}
	}
	if !reflect.DeepEqual(plan.DeferredCSS, wantHrefs) {
		t.Errorf("DeferredCSS = %v, want %v", plan.DeferredCSS, wantHrefs)
	}
	if rel, _ := out.Find(`link[href="/favicon.ico"]`).Attr("rel"); rel != "icon" {
		t.Errorf("non-stylesheet link rewritten: rel = %q", rel)
	}
}

func TestTransform_DefersScripts(t *testing.T) {
	doc := newDoc(t, `<html><head>
		<script src="a.js"></script>
		<script src="b.js" async></script>
		<script>inline()</script>
	</head><body></body></html>`)

	out, plan := mustTransform(t, New(Options{}), doc, "", ResourceMap{"a.js": "js/a.js"})

	if _, ok := out.Find(`script[src="js/a.js"]`).Attr("defer"); !ok {
		t.Error("a.js should be deferred and rewritten")
	}
	if _, ok := out.Find(`script[src="b.js"]`).Attr("defer"); ok {
		t.Error("async script must not be deferred")
	}
	if _, ok := out.Find(`script:not([src])`).Attr("defer"); ok {
		t.Error("inline script must not be deferred")
	}
	if !reflect.DeepEqual(plan.DeferredScripts, []string{"js/a.js"}) {
		t.Errorf("DeferredScripts = %v", plan.DeferredScripts)
	}
}

func TestTransform_LCPImage(t *testing.T) {
	doc := newDoc(t, `<html><head></head><body>
		<img id="unsized" src="first.jpg">
		<img id="square" src="square.jpg" width="100" height="100">
		<img id="wide" src="wide.jpg" width="500" height="50">
	</body></html>`)

	out, plan := mustTransform(t, New(Options{}), doc, "", nil)

	if plan.LCP == nil || dom.ID(plan.LCP) != "wide" {
		t.Fatalf("LCP = %v, want #wide", plan.LCP)
	}
	if plan.LCPSource != "wide.jpg" {
		t.Errorf("LCPSource = %q", plan.LCPSource)
	}
	if v, _ := out.Find("#wide").Attr("fetchpriority"); v != "high" {
		t.Errorf("fetchpriority = %q, want high", v)
	}
	if _, ok := out.Find("#wide").Attr("loading"); ok {
		t.Error("LCP image must not be lazy")
	}
	for _, id := range []string{"#unsized", "#square"} {
		if v, _ := out.Find(id).Attr("loading"); v != "lazy" {
			t.Errorf("%s loading = %q, want lazy", id, v)
		}
	}
	preload := out.Find(`head link[rel="preload"][as="image"]`)
	if href, _ := preload.Attr("href"); href != "wide.jpg" {
		t.Errorf("preload href = %q, want wide.jpg", href)
	}
	if plan.LazyImages != 2 {
		t.Errorf("LazyImages = %d, want 2", plan.LazyImages)
	}
}

func TestTransform_ImageSizes(t *testing.T) {
	doc := newDoc(t, `<html><head></head><body>
		<img id="hero" src="/hero.png">
		<img id="thumb" src="/thumb.png">
		<img id="half" src="/half.png" width="200">
		<img id="authored" src="/authored.png" width="10" height="10">
		<img id="remote" src="https://cdn.example.net/x.png">
	</body></html>`)
	res := ResourceMap{
		"/hero.png":     "images/hero.png",
		"/thumb.png":    "images/thumb.png",
		"/half.png":     "images/half.png",
		"/authored.png": "images/authored.png",
	}
	sizes := ImageSizes{
		"images/hero.png":     {Width: 1600, Height: 900},
		"images/thumb.png":    {Width: 64, Height: 64},
		"images/half.png":     {Width: 400, Height: 300},
		"images/authored.png": {Width: 5000, Height: 5000},
	}

	out, plan := mustTransform(t, New(Options{ImageSizes: sizes}), doc, "", res)

	tests := []struct {
		id            string
		width, height string
	}{
		{"hero", "1600", "900"},
		{"thumb", "64", "64"},
		// the authored width is kept and the height follows the aspect ratio
		{"half", "200", "150"},
		{"authored", "10", "10"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			img := out.Find("#" + tt.id)
			w, _ := img.Attr("width")
			h, _ := img.Attr("height")
			if w != tt.width || h != tt.height {
				t.Errorf("size = %sx%s, want %sx%s", w, h, tt.width, tt.height)
			}
		})
	}
	if _, ok := out.Find("#remote").Attr("width"); ok {
		t.Error("image without a local copy should stay unsized")
	}

	if plan.SizedImages != 3 {
		t.Errorf("SizedImages = %d, want 3", plan.SizedImages)
	}
	if plan.LCPSource != "images/hero.png" {
		t.Errorf("LCPSource = %q, want images/hero.png", plan.LCPSource)
	}
	found := false
	for _, a := range plan.Applied {
		if a == "Added explicit width/height attributes to images" {
			found = true
		}
	}
	if !found {
		t.Errorf("Applied = %v, want the sizing step", plan.Applied)
	}
}

func TestTransform_NoImagesIsNoop(t *testing.T) {
	doc := newDoc(t, `<html><head></head><body><p>text</p></body></html>`)
	out, plan := mustTransform(t, New(Options{}), doc, "a{b:c}", nil)
	if plan.LCP != nil || plan.LazyImages != 0 {
		t.Errorf("unexpected image plan: %+v", plan)
	}
	// the remaining steps still run
	if out.Find(`meta[http-equiv="Cache-Control"]`).Length() != 1 {
		t.Error("cache-control meta missing")
	}
}

func TestTransform_PositionLimit(t *testing.T) {
	doc := newDoc(t, `<html><body>
		<div class="nav">menu</div><div class="nav">more</div>
		<p><img id="late" src="late.jpg" width="900" height="900"></p>
	</body></html>`)
	_, plan := mustTransform(t, New(Options{PositionLimit: 20}), doc, "", nil)
	if plan.LCP != nil {
		t.Errorf("image after more than 20 bytes of markup should not be LCP with limit 20")
	}
}

func TestTransform_TopImageBeatsLargerFooterImage(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`<html><body><div><img src="top.jpg" width="400" height="300"></div>`)
	for i := 0; i < 40; i++ {
		sb.WriteString(`<div class="article"><p>Lorem ipsum dolor sit amet, consectetur adipiscing elit.</p></div>`)
	}
	sb.WriteString(`<div><img src="footer.jpg" width="1200" height="900"></div></body></html>`)

	out, plan := mustTransform(t, New(Options{}), newDoc(t, sb.String()), "", nil)

	if plan.LCPSource != "top.jpg" {
		t.Fatalf("LCPSource = %q, want top.jpg", plan.LCPSource)
	}
	if v, _ := out.Find(`img[src="footer.jpg"]`).Attr("loading"); v != "lazy" {
		t.Errorf("footer image loading = %q, want lazy", v)
	}
}

func TestTransform_LCPIgnoresHeadSize(t *testing.T) {
	doc := newDoc(t, `<html><head><title>big head</title></head><body>
		<img src="hero.jpg" width="800" height="400">
	</body></html>`)
	// the inlined CSS alone is well past the position limit
	css := strings.Repeat("p{color:red}\n", 200)

	_, plan := mustTransform(t, New(Options{}), doc, css, nil)
	if plan.LCPSource != "hero.jpg" {
		t.Errorf("LCPSource = %q, want hero.jpg", plan.LCPSource)
	}
}

func TestTransform_ResourceHints(t *testing.T) {
	doc := newDoc(t, `<html><head>
		<link rel="stylesheet" href="https://fonts.googleapis.com/css?family=X">
		<script src="//cdn.example.net/app.js"></script>
	</head><body>
		<img src="/local.png">
		<img src="https://IMG.example.org/a.png">
		<a href="https://elsewhere.example/">not a resource</a>
	</body></html>`)
	base, _ := url.Parse("https://example.com/")

	out, plan := mustTransform(t, New(Options{BaseURL: base}), doc, "", nil)

	want := []string{"https://cdn.example.net", "https://fonts.googleapis.com", "https://img.example.org"}
	if !reflect.DeepEqual(plan.Hints, want) {
		t.Errorf("Hints = %v, want %v", plan.Hints, want)
	}
	for _, o := range want {
		if out.Find(`head link[rel="preconnect"][href="`+o+`"]`).Length() != 1 {
			t.Errorf("missing preconnect for %s", o)
		}
		if out.Find(`head link[rel="dns-prefetch"][href="`+o+`"]`).Length() != 1 {
			t.Errorf("missing dns-prefetch for %s", o)
		}
	}
	if _, ok := out.Find(`link[rel="preconnect"]`).First().Attr("crossorigin"); !ok {
		t.Error("preconnect should carry crossorigin")
	}
}

func TestTransform_CacheMeta(t *testing.T) {
	doc := newDoc(t, `<html><head><title>x</title></head></html>`)
	out, _ := mustTransform(t, New(Options{}), doc, "", nil)

	last := out.Find("head").Nodes[0].LastChild
	if !dom.IsElement(last, "meta") {
		t.Fatalf("last head child = %v, want meta", last.Data)
	}
	if v, _ := dom.Attr(last, "content"); v != "max-age=31536000" {
		t.Errorf("content = %q, want max-age=31536000", v)
	}
}

func TestTransform_DoesNotMutateInput(t *testing.T) {
	src := `<html><head><link rel="stylesheet" href="a.css"><script src="a.js"></script></head>` +
		`<body><img src="x.png" width="1" height="1"><img src="y.png"></body></html>`
	doc := newDoc(t, src)
	before, err := Render(doc)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	out, _ := mustTransform(t, New(Options{}), doc, "a{b:c}", nil)

	after, err := Render(doc)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}
	if before != after {
		t.Errorf("input changed:\n%s\n---\n%s", before, after)
	}
	rendered, err := Render(out)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}
	if rendered == before {
		t.Error("output should differ from input")
	}
}

func TestTransform_EmptyDocument(t *testing.T) {
	if _, _, err := New(Options{}).Transform(nil, "", nil); err == nil {
		t.Error("expected error for nil document")
	}
}

func TestResourceMapLookup(t *testing.T) {
	base, _ := url.Parse("https://example.com/dir/page.html")
	m := ResourceMap{
		"img/a.png":                         "images/a.png",
		"https://example.com/dir/img/b.png": "images/b.png",
	}
	tests := []struct {
		ref  string
		want string
		ok   bool
	}{
		{"img/a.png", "images/a.png", true},
		{"img/b.png", "images/b.png", true},
		{"/dir/img/b.png", "images/b.png", true},
		{"img/c.png", "", false},
	}
	for _, tt := range tests {
		got, ok := m.Lookup(tt.ref, base)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Lookup(%q) = %q, %v, want %q, %v", tt.ref, got, ok, tt.want, tt.ok)
		}
	}
	if _, ok := ResourceMap(nil).Lookup("x", base); ok {
		t.Error("nil map should never match")
	}
}
