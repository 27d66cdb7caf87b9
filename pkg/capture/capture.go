// Package capture inventories the external resources a page references and
// mirrors them into a local site directory.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/h2non/filetype"
	"go.uber.org/multierr"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/dtnitsch/pagespeed-ai/pkg/artifact_manager"
	"github.com/dtnitsch/pagespeed-ai/pkg/dom"
	"github.com/dtnitsch/pagespeed-ai/pkg/transform"
)

// Resource kinds double as the subdirectory each kind is saved under.
const (
	KindCSS    = "css"
	KindJS     = "js"
	KindImages = "images"
	KindFonts  = "fonts"
)

var kinds = []string{KindCSS, KindJS, KindImages, KindFonts}

// fallbackExt is used when neither the URL nor the content names a type.
var fallbackExt = map[string]string{
	KindCSS: ".css",
	KindJS:  ".js",
}

type Resource struct {
	Kind string `json:"kind"`
	Ref  string `json:"ref"` // as written in the page
	URL  string `json:"url"` // absolute
}

// Resources groups a page's resources by kind, in document order.
type Resources map[string][]Resource

// Count returns the total number of resources.
func (r Resources) Count() int {
	n := 0
	for _, list := range r {
		n += len(list)
	}
	return n
}

// URLs returns the absolute URLs of one kind.
func (r Resources) URLs(kind string) []string {
	out := make([]string, 0, len(r[kind]))
	for _, res := range r[kind] {
		out = append(out, res.URL)
	}
	return out
}

// Inventory lists the stylesheets, scripts, images and font links in doc,
// resolving references against base.
func Inventory(doc *goquery.Document, base *url.URL) Resources {
	res := make(Resources)
	add := func(kind, ref string) {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return
		}
		abs := ref
		if base != nil {
			if u, err := base.Parse(ref); err == nil {
				abs = u.String()
			}
		}
		res[kind] = append(res[kind], Resource{Kind: kind, Ref: ref, URL: abs})
	}

	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		n := s.Nodes[0]
		href, _ := dom.Attr(n, "href")
		if dom.HasRelToken(n, "stylesheet") {
			add(KindCSS, href)
		}
		if rel, _ := dom.Attr(n, "rel"); strings.Contains(strings.ToLower(rel), "font") {
			add(KindFonts, href)
		}
	})
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		add(KindJS, src)
	})
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		add(KindImages, src)
	})
	return res
}

// Getter fetches a URL body.
type Getter interface {
	GetBytes(ctx context.Context, url string) ([]byte, error)
}

// Downloader saves resources under outDir/<kind>/.
type Downloader struct {
	Fetcher Getter
	Workers int
	Logger  *slog.Logger
}

type job struct {
	res Resource
}

type result struct {
	res  Resource
	body []byte
	err  error
}

// Mirror is what a Download left on disk.
type Mirror struct {
	// Paths sends both the page reference and the absolute URL to the file
	// path relative to outDir.
	Paths transform.ResourceMap
	// Sizes holds the decoded dimensions of saved images, keyed by path.
	Sizes transform.ImageSizes
}

// Download fetches every resource once and writes it to disk. Failed
// downloads are skipped and reported together.
func (d *Downloader) Download(ctx context.Context, res Resources, outDir string) (*Mirror, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	workers := d.Workers
	if workers <= 0 {
		workers = 1
	}

	var queue []Resource
	seen := make(map[string]bool)
	for _, kind := range kinds {
		for _, r := range res[kind] {
			key := kind + " " + r.URL
			if seen[key] {
				continue
			}
			seen[key] = true
			queue = append(queue, r)
		}
	}

	mirror := &Mirror{Paths: make(transform.ResourceMap), Sizes: make(transform.ImageSizes)}
	if len(queue) == 0 {
		return mirror, nil
	}

	jobs := make(chan job, len(queue))
	results := make(chan result, len(queue))
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				body, err := d.Fetcher.GetBytes(ctx, j.res.URL)
				results <- result{res: j.res, body: body, err: err}
			}
		}()
	}
	for _, r := range queue {
		jobs <- job{res: r}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Names are assigned here, off the worker goroutines.
	collected := make(map[string]result, len(queue))
	var errs error
	for r := range results {
		if r.err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s %s: %w", r.res.Kind, r.res.URL, r.err))
			continue
		}
		collected[r.res.Kind+" "+r.res.URL] = r
	}

	used := make(map[string]bool)
	for _, r := range queue {
		got, ok := collected[r.Kind+" "+r.URL]
		if !ok {
			continue
		}
		name := fileName(r, got.body)
		if used[r.Kind+"/"+name] {
			name = artifact_manager.ShortHash(r.URL) + "_" + name
		}
		used[r.Kind+"/"+name] = true

		if err := os.MkdirAll(filepath.Join(outDir, r.Kind), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", r.Kind, err)
		}
		if err := os.WriteFile(filepath.Join(outDir, r.Kind, name), got.body, 0644); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to save %s: %w", r.URL, err))
			continue
		}

		local := path.Join(r.Kind, name)
		mirror.Paths[r.URL] = local
		if r.Kind == KindImages {
			if size, ok := imageSize(got.body); ok {
				mirror.Sizes[local] = size
			}
		}
		logger.Debug("Resource saved", "url", r.URL, "path", local, "bytes", len(got.body))
	}

	// page references map to the same file as their absolute URL
	for _, kind := range kinds {
		for _, r := range res[kind] {
			if local, ok := mirror.Paths[r.URL]; ok {
				mirror.Paths[r.Ref] = local
			}
		}
	}

	if errs != nil {
		logger.Warn("Some resources failed to download", "failed", len(multierr.Errors(errs)), "saved", len(collected))
	}
	return mirror, errs
}

// imageSize reads the dimensions from an image header. SVG and other
// formats without a registered decoder report false.
func imageSize(body []byte) (transform.ImageSize, bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return transform.ImageSize{}, false
	}
	return transform.ImageSize{Width: cfg.Width, Height: cfg.Height}, true
}

// fileName uses the URL's last path segment, falling back to a hash of the
// URL with an extension sniffed from the content.
func fileName(r Resource, body []byte) string {
	if u, err := url.Parse(r.URL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			return base
		}
	}
	return "resource_" + artifact_manager.ShortHash(r.URL) + sniffExt(r.Kind, body)
}

func sniffExt(kind string, body []byte) string {
	t, err := filetype.Match(body)
	if err == nil && t != filetype.Unknown && t.Extension != "" {
		return "." + t.Extension
	}
	return fallbackExt[kind]
}
