package optimize

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dtnitsch/pagespeed-ai/pkg/artifact_manager"
	"github.com/dtnitsch/pagespeed-ai/pkg/audit"
	criticalpkg "github.com/dtnitsch/pagespeed-ai/pkg/critical"
	"github.com/dtnitsch/pagespeed-ai/pkg/fetcher"
	"github.com/dtnitsch/pagespeed-ai/pkg/report"
)

const page = `<!DOCTYPE html><html><head>
<title>Shop</title>
<link rel="stylesheet" href="/css/site.css">
<script src="/js/app.js"></script>
</head><body>
<header class="top">Shop</header>
<img src="/images/hero.png" width="1200" height="600">
<img src="/images/thumb.png">
<footer>bye</footer>
</body></html>`

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 0x49, 0x48, 0x44, 0x52}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, page)
	})
	mux.HandleFunc("/css/site.css", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "header{color:red}footer{color:blue}")
	})
	mux.HandleFunc("/js/app.js", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "console.log('hi')")
	})
	mux.HandleFunc("/images/hero.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pngHeader)
	})
	var thumb bytes.Buffer
	if err := png.Encode(&thumb, image.NewGray(image.Rect(0, 0, 64, 48))); err != nil {
		t.Fatal(err)
	}
	mux.HandleFunc("/images/thumb.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(thumb.Bytes())
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// recordingAuditor returns the mock result for the live page and a better
// score for the local copy.
type recordingAuditor struct {
	mu   sync.Mutex
	urls []string
}

func (a *recordingAuditor) Audit(ctx context.Context, url string) (*audit.Result, error) {
	a.mu.Lock()
	a.urls = append(a.urls, url)
	a.mu.Unlock()

	res := audit.Mock()
	if strings.HasPrefix(url, "file://") {
		res.Categories.Performance.Score = 0.9
	}
	return res, nil
}

func newOptimizer(t *testing.T, auditor audit.Auditor) *Optimizer {
	t.Helper()
	return &Optimizer{
		Auditor:   auditor,
		Fetcher:   fetcher.NewFetcher(),
		Extractor: &criticalpkg.Extractor{},
		Manager:   artifact_manager.NewManager(t.TempDir()),
		Workers:   2,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestOptimize(t *testing.T) {
	srv := newSite(t)
	auditor := &recordingAuditor{}
	o := newOptimizer(t, auditor)

	out, err := o.Optimize(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}

	if filepath.Base(out.SiteDir) != "127-0-0-1" {
		t.Errorf("SiteDir = %q", out.SiteDir)
	}
	for _, rel := range []string{"css/site.css", "js/app.js", "images/hero.png", CriticalFile, report.IndexFile} {
		if _, err := os.Stat(filepath.Join(out.SiteDir, rel)); err != nil {
			t.Errorf("%s not written: %v", rel, err)
		}
	}

	index, err := os.ReadFile(out.IndexPath)
	if err != nil {
		t.Fatal(err)
	}
	html := string(index)
	for _, want := range []string{
		`<style>`,
		`href="css/site.css"`,
		`<script src="js/app.js" defer=""></script>`,
		`fetchpriority="high"`,
		`<img src="images/thumb.png" width="64" height="48" loading="lazy"/>`,
		`max-age=31536000`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("optimized page missing %q", want)
		}
	}

	critical, err := os.ReadFile(filepath.Join(out.SiteDir, CriticalFile))
	if err != nil || !strings.Contains(string(critical), "header {") {
		t.Errorf("critical.css = %q, %v", critical, err)
	}

	if len(auditor.urls) != 2 {
		t.Fatalf("audited %v, want 2 URLs", auditor.urls)
	}
	if auditor.urls[0] != srv.URL+"/" {
		t.Errorf("first audit = %q, want the live page", auditor.urls[0])
	}
	if !strings.HasPrefix(auditor.urls[1], "file://") || !strings.HasSuffix(auditor.urls[1], "/"+report.IndexFile) {
		t.Errorf("second audit = %q, want the local copy", auditor.urls[1])
	}

	cmp := out.Comparison
	if cmp.OriginalScore != 65 || cmp.OptimizedScore != 90 || cmp.Improvement != 25 {
		t.Errorf("scores = %v -> %v (%v)", cmp.OriginalScore, cmp.OptimizedScore, cmp.Improvement)
	}
	if len(cmp.Applied) == 0 {
		t.Error("comparison should list the applied optimizations")
	}
	if out.Plan.SizedImages != 1 || out.Plan.LCPSource != "images/hero.png" {
		t.Errorf("plan sized %d images, LCP %q", out.Plan.SizedImages, out.Plan.LCPSource)
	}

	wantReports := []string{
		filepath.Join(out.SiteDir, report.HTMLReportFile),
		filepath.Join(out.SiteDir, report.MarkdownFile(cmp.Domain)),
		filepath.Join(out.SiteDir, report.JSONReportFile),
	}
	for i, p := range wantReports {
		if i >= len(out.Reports) || out.Reports[i] != p {
			t.Errorf("Reports[%d] = %v, want %s", i, out.Reports, p)
			continue
		}
		if _, err := os.Stat(p); err != nil {
			t.Errorf("report %s not written: %v", p, err)
		}
	}
}

func TestOptimize_MissingAssets(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, page)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out, err := newOptimizer(t, audit.Static{}).Optimize(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("Optimize() should tolerate missing assets: %v", err)
	}

	index, err := os.ReadFile(out.IndexPath)
	if err != nil {
		t.Fatal(err)
	}
	// unresolved references are kept as written
	if !strings.Contains(string(index), `href="/css/site.css"`) {
		t.Error("stylesheet reference should fall back to the original href")
	}
}

func TestOptimize_PageUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, err := newOptimizer(t, audit.Static{}).Optimize(context.Background(), srv.URL+"/"); err == nil {
		t.Error("Optimize() should fail when the page cannot be fetched")
	}
}

func TestOptimize_CanceledDuringSettle(t *testing.T) {
	srv := newSite(t)
	ctx, cancel := context.WithCancel(context.Background())

	o := newOptimizer(t, cancelingAuditor{cancel: cancel})
	o.Settle = 1 << 40 // long enough that only cancellation ends the wait

	if _, err := o.Optimize(ctx, srv.URL+"/"); err == nil {
		t.Error("Optimize() should stop when the context is canceled")
	}
}

type cancelingAuditor struct {
	cancel context.CancelFunc
}

func (a cancelingAuditor) Audit(ctx context.Context, url string) (*audit.Result, error) {
	a.cancel()
	return audit.Mock(), nil
}
