// Package transform rewrites a captured page so critical content paints
// immediately: critical CSS is inlined, stylesheets and scripts stop
// blocking, the LCP image is prioritized and resource hints are added.
//
// The caller's document is never modified; every run works on a deep copy.
package transform

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dtnitsch/pagespeed-ai/pkg/abovefold"
	"github.com/dtnitsch/pagespeed-ai/pkg/dom"
)

const (
	// DefaultCacheMaxAge is the max-age advertised by the cache-control meta.
	DefaultCacheMaxAge = 365 * 24 * time.Hour
	// DefaultPositionLimit bounds the serialized length of the markup that
	// may precede an image's parent for the image to count as near the top
	// of the page.
	DefaultPositionLimit = 800

	stylesheetOnload = "this.onload=null;this.rel='stylesheet'"
)

// ResourceMap maps a resource reference (as written in the page, or its
// absolute URL) to the path that should replace it.
type ResourceMap map[string]string

// Lookup returns the replacement for ref, trying ref itself first and then
// ref resolved against base.
func (m ResourceMap) Lookup(ref string, base *url.URL) (string, bool) {
	if len(m) == 0 {
		return "", false
	}
	if v, ok := m[ref]; ok {
		return v, true
	}
	if base == nil {
		return "", false
	}
	u, err := base.Parse(ref)
	if err != nil {
		return "", false
	}
	v, ok := m[u.String()]
	return v, ok
}

// ImageSize is the intrinsic size of a downloaded image.
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ImageSizes maps a rewritten image path (a ResourceMap value) to its size.
type ImageSizes map[string]ImageSize

// Plan records what a transform did to one page.
type Plan struct {
	CriticalCSS     string     `json:"-"`
	DeferredCSS     []string   `json:"deferred_css"`
	DeferredScripts []string   `json:"deferred_scripts"`
	LCP             *html.Node `json:"-"`
	LCPSource       string     `json:"lcp_source,omitempty"`
	LazyImages      int        `json:"lazy_images"`
	SizedImages     int        `json:"sized_images"`
	Hints           []string   `json:"resource_hints"`
	Applied         []string   `json:"applied"`
}

// Options configure a Pipeline.
type Options struct {
	// BaseURL resolves relative references; its origin is never hinted.
	BaseURL       *url.URL
	CacheMaxAge   time.Duration
	PositionLimit int
	// ImageSizes fill in missing width/height attributes before the LCP
	// image is chosen.
	ImageSizes ImageSizes
	Logger     *slog.Logger
}

// Pipeline applies the page rewrite steps.
type Pipeline struct {
	opts   Options
	logger *slog.Logger
}

// New returns a Pipeline, filling unset options with defaults.
func New(opts Options) *Pipeline {
	if opts.CacheMaxAge <= 0 {
		opts.CacheMaxAge = DefaultCacheMaxAge
	}
	if opts.PositionLimit <= 0 {
		opts.PositionLimit = DefaultPositionLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{opts: opts, logger: logger}
}

// Transform returns a rewritten copy of doc together with the plan that was
// applied. Steps whose target is missing are skipped.
func (p *Pipeline) Transform(doc *goquery.Document, criticalCSS string, resources ResourceMap) (*goquery.Document, *Plan, error) {
	if doc == nil || len(doc.Nodes) == 0 {
		return nil, nil, fmt.Errorf("failed to transform: empty document")
	}
	root := dom.Clone(doc.Nodes[0])
	out := goquery.NewDocumentFromNode(root)
	out.Url = doc.Url

	plan := &Plan{CriticalCSS: criticalCSS}
	origins := p.collectOrigins(root)

	head := ensureHead(root)

	if criticalCSS != "" {
		style := dom.NewElement("style")
		style.DataAtom = atom.Style
		style.AppendChild(&html.Node{Type: html.TextNode, Data: criticalCSS})
		dom.PrependChild(head, style)
		plan.Applied = append(plan.Applied, "Inlined critical CSS in the head")
	}

	p.deferStylesheets(out, plan, resources)
	p.deferScripts(out, plan, resources)
	p.prioritizeImages(out, head, plan, resources)
	p.addResourceHints(head, plan, origins)

	head.AppendChild(dom.NewElement("meta",
		"http-equiv", "Cache-Control",
		"content", "max-age="+strconv.Itoa(int(p.opts.CacheMaxAge/time.Second))))
	plan.Applied = append(plan.Applied, "Added cache control headers")

	p.logger.Debug("Page transformed",
		"deferred_css", len(plan.DeferredCSS),
		"deferred_scripts", len(plan.DeferredScripts),
		"lcp", plan.LCPSource,
		"hints", len(plan.Hints))

	return out, plan, nil
}

// ensureHead returns the first head element, creating it (and an enclosing
// html element) when missing. A created head is the first child of html.
func ensureHead(root *html.Node) *html.Node {
	if head := findFirst(root, "head"); head != nil {
		return head
	}
	htmlEl := findFirst(root, "html")
	if htmlEl == nil {
		htmlEl = dom.NewElement("html")
		htmlEl.DataAtom = atom.Html
		for c := root.FirstChild; c != nil; {
			next := c.NextSibling
			if c.Type != html.DoctypeNode {
				root.RemoveChild(c)
				htmlEl.AppendChild(c)
			}
			c = next
		}
		root.AppendChild(htmlEl)
	}
	head := dom.NewElement("head")
	head.DataAtom = atom.Head
	dom.PrependChild(htmlEl, head)
	return head
}

func findFirst(n *html.Node, tag string) *html.Node {
	if dom.IsElement(n, tag) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func (p *Pipeline) deferStylesheets(doc *goquery.Document, plan *Plan, resources ResourceMap) {
	for _, link := range doc.Find("link").Nodes {
		if !dom.HasRelToken(link, "stylesheet") {
			continue
		}
		href, _ := dom.Attr(link, "href")
		if local, ok := resources.Lookup(href, p.opts.BaseURL); ok {
			href = local
			dom.SetAttr(link, "href", href)
		}
		dom.SetAttr(link, "rel", "preload")
		dom.SetAttr(link, "as", "style")
		dom.SetAttr(link, "onload", stylesheetOnload)

		noscript := dom.NewElement("noscript")
		noscript.DataAtom = atom.Noscript
		fallback := dom.NewElement("link", "rel", "stylesheet", "href", href)
		fallback.DataAtom = atom.Link
		noscript.AppendChild(fallback)
		dom.InsertAfter(link, noscript)

		plan.DeferredCSS = append(plan.DeferredCSS, href)
	}
	if len(plan.DeferredCSS) > 0 {
		plan.Applied = append(plan.Applied, "Deferred loading of non-critical CSS")
	}
}

func (p *Pipeline) deferScripts(doc *goquery.Document, plan *Plan, resources ResourceMap) {
	for _, script := range doc.Find("script[src]").Nodes {
		src, _ := dom.Attr(script, "src")
		if local, ok := resources.Lookup(src, p.opts.BaseURL); ok {
			src = local
			dom.SetAttr(script, "src", src)
		}
		if dom.HasAttr(script, "async") {
			continue
		}
		dom.SetAttr(script, "defer", "")
		plan.DeferredScripts = append(plan.DeferredScripts, src)
	}
	if len(plan.DeferredScripts) > 0 {
		plan.Applied = append(plan.Applied, "Added defer attribute to non-critical scripts")
	}
}

func (p *Pipeline) prioritizeImages(doc *goquery.Document, head *html.Node, plan *Plan, resources ResourceMap) {
	images := doc.Find("img[src]").Nodes
	if len(images) == 0 {
		return
	}

	var early []*html.Node
	for _, img := range images {
		if src, _ := dom.Attr(img, "src"); src != "" {
			if local, ok := resources.Lookup(src, p.opts.BaseURL); ok {
				dom.SetAttr(img, "src", local)
				if size, ok := p.opts.ImageSizes[local]; ok && setDimensions(img, size) {
					plan.SizedImages++
				}
			}
		}
		if img.Parent != nil && dom.PrecedingSiblingsLength(img.Parent) < p.opts.PositionLimit {
			early = append(early, img)
		}
	}

	if plan.SizedImages > 0 {
		plan.Applied = append(plan.Applied, "Added explicit width/height attributes to images")
	}

	if lcp := abovefold.DominantImage(early); lcp != nil {
		plan.LCP = lcp
		dom.SetAttr(lcp, "fetchpriority", "high")
		if src, _ := dom.Attr(lcp, "src"); src != "" {
			plan.LCPSource = src
			preload := dom.NewElement("link", "rel", "preload", "href", src, "as", "image")
			preload.DataAtom = atom.Link
			dom.PrependChild(head, preload)
		}
		plan.Applied = append(plan.Applied, "Optimized LCP image loading with fetchpriority")
	}

	for _, img := range images {
		if img == plan.LCP {
			continue
		}
		dom.SetAttr(img, "loading", "lazy")
		plan.LazyImages++
	}
	if plan.LazyImages > 0 {
		plan.Applied = append(plan.Applied, "Added lazy loading for below-the-fold images")
	}
}

// setDimensions fills the width and height of img from its intrinsic size.
// A single authored dimension is kept and the other follows the aspect
// ratio. It reports whether any attribute was added.
func setDimensions(img *html.Node, size ImageSize) bool {
	if size.Width <= 0 || size.Height <= 0 {
		return false
	}
	w, hasW := dom.IntAttr(img, "width")
	h, hasH := dom.IntAttr(img, "height")
	switch {
	case hasW && hasH:
		return false
	case hasW:
		h = (w*size.Height + size.Width/2) / size.Width
	case hasH:
		w = (h*size.Width + size.Height/2) / size.Height
	default:
		w, h = size.Width, size.Height
	}
	dom.SetAttr(img, "width", strconv.Itoa(w))
	dom.SetAttr(img, "height", strconv.Itoa(h))
	return true
}

// resourceAttrs lists the elements whose attribute references a fetched
// resource. Anchors are navigation, not resources.
var resourceAttrs = map[string]string{
	"link":   "href",
	"script": "src",
	"img":    "src",
	"source": "src",
	"iframe": "src",
	"video":  "src",
	"audio":  "src",
	"embed":  "src",
}

// collectOrigins returns the distinct external origins referenced by the
// page, in lexical order.
func (p *Pipeline) collectOrigins(root *html.Node) []string {
	set := make(map[string]struct{})
	var self string
	if p.opts.BaseURL != nil && p.opts.BaseURL.Host != "" {
		self = p.opts.BaseURL.Scheme + "://" + p.opts.BaseURL.Host
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if key, ok := resourceAttrs[n.Data]; ok {
				if ref, ok := dom.Attr(n, key); ok {
					if o := p.origin(ref); o != "" && o != self {
						set[o] = struct{}{}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	origins := make([]string, 0, len(set))
	for o := range set {
		origins = append(origins, o)
	}
	sort.Strings(origins)
	return origins
}

func (p *Pipeline) origin(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if p.opts.BaseURL != nil {
		u = p.opts.BaseURL.ResolveReference(u)
	}
	if u.Host == "" {
		return ""
	}
	switch u.Scheme {
	case "http", "https":
	case "":
		u.Scheme = "https"
	default:
		return ""
	}
	return u.Scheme + "://" + strings.ToLower(u.Host)
}

func (p *Pipeline) addResourceHints(head *html.Node, plan *Plan, origins []string) {
	if len(origins) == 0 {
		return
	}
	// Prepending in reverse keeps the hints in lexical order at the top of
	// head.
	for i := len(origins) - 1; i >= 0; i-- {
		o := origins[i]
		preconnect := dom.NewElement("link", "rel", "preconnect", "href", o, "crossorigin", "")
		preconnect.DataAtom = atom.Link
		dom.PrependChild(head, preconnect)

		prefetch := dom.NewElement("link", "rel", "dns-prefetch", "href", o)
		prefetch.DataAtom = atom.Link
		dom.PrependChild(head, prefetch)
	}
	plan.Hints = origins
	plan.Applied = append(plan.Applied, "Added resource hints (preconnect, dns-prefetch)")
}

// Render serializes doc as a full HTML document.
func Render(doc *goquery.Document) (string, error) {
	var buf bytes.Buffer
	for _, n := range doc.Nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("failed to render document: %w", err)
		}
	}
	return buf.String(), nil
}
