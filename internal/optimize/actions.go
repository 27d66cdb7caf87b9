package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/pagespeed-ai/internal/common"
	"github.com/dtnitsch/pagespeed-ai/internal/critical"
	"github.com/dtnitsch/pagespeed-ai/pkg/artifact_manager"
	"github.com/dtnitsch/pagespeed-ai/pkg/audit"
	"github.com/dtnitsch/pagespeed-ai/pkg/capture"
	criticalpkg "github.com/dtnitsch/pagespeed-ai/pkg/critical"
	"github.com/dtnitsch/pagespeed-ai/pkg/db"
	"github.com/dtnitsch/pagespeed-ai/pkg/fetcher"
	"github.com/dtnitsch/pagespeed-ai/pkg/report"
	"github.com/dtnitsch/pagespeed-ai/pkg/storage"
	"github.com/dtnitsch/pagespeed-ai/pkg/transform"
)

// CriticalFile is the critical stylesheet written next to the other CSS.
const CriticalFile = "css/critical.css"

// Optimizer captures a page, rewrites it for faster rendering and audits the
// live page against the rewritten copy.
type Optimizer struct {
	Auditor   audit.Auditor
	Fetcher   *fetcher.Fetcher
	Extractor *criticalpkg.Extractor
	Manager   *artifact_manager.Manager
	// CacheMaxAge and PositionLimit are passed to the transform pipeline.
	CacheMaxAge   time.Duration
	PositionLimit int
	Workers       int
	// Settle is waited between the two audits.
	Settle time.Duration
	Logger *slog.Logger
}

// Outcome lists what one optimization produced.
type Outcome struct {
	SiteDir    string
	IndexPath  string
	Critical   criticalpkg.Result
	Plan       *transform.Plan
	Comparison *report.Comparison
	Reports    []string
}

func (o *Optimizer) Optimize(ctx context.Context, pageURL string) (*Outcome, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page URL: %w", err)
	}

	siteDir, err := o.Manager.EnsureSiteDirs(pageURL)
	if err != nil {
		return nil, err
	}
	out := &Outcome{SiteDir: siteDir}
	s := &storage.Storage{}

	o.Logger.Info("Fetching page", "url", pageURL)
	doc, _, err := o.Fetcher.GetHTML(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}

	resources := capture.Inventory(doc, base)
	o.Logger.Info("Downloading resources", "count", resources.Count(), "dir", siteDir)
	d := &capture.Downloader{Fetcher: o.Fetcher, Workers: o.Workers, Logger: o.Logger}
	mirror, err := d.Download(ctx, resources, siteDir)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("failed to download resources: %w", ctxErr)
	}
	if mirror == nil {
		mirror = &capture.Mirror{}
	}
	if err != nil {
		o.Logger.Warn("Some resources could not be downloaded", "saved", len(mirror.Paths), "error", err)
	}

	out.Critical, err = critical.Extract(ctx, o.Fetcher, o.Extractor, doc, pageURL, o.Workers, o.Logger)
	if err != nil {
		return nil, err
	}
	if err := s.SaveFile(filepath.Join(siteDir, CriticalFile), []byte(out.Critical.CSS)); err != nil {
		return nil, fmt.Errorf("failed to write critical CSS: %w", err)
	}

	pipeline := transform.New(transform.Options{
		BaseURL:       base,
		CacheMaxAge:   o.CacheMaxAge,
		PositionLimit: o.PositionLimit,
		ImageSizes:    mirror.Sizes,
		Logger:        o.Logger,
	})
	optimized, plan, err := pipeline.Transform(doc, out.Critical.CSS, mirror.Paths)
	if err != nil {
		return nil, err
	}
	out.Plan = plan

	page, err := transform.Render(optimized)
	if err != nil {
		return nil, fmt.Errorf("failed to render optimized page: %w", err)
	}
	out.IndexPath = filepath.Join(siteDir, report.IndexFile)
	if err := s.SaveFile(out.IndexPath, []byte(page)); err != nil {
		return nil, fmt.Errorf("failed to write optimized page: %w", err)
	}
	o.Logger.Info("Optimized page written", "path", out.IndexPath, "applied", len(plan.Applied))

	out.Comparison, err = o.compare(ctx, pageURL, out.IndexPath, plan.Applied)
	if err != nil {
		return nil, err
	}

	out.Reports, err = writeReports(siteDir, out.Comparison)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Optimizer) compare(ctx context.Context, pageURL, indexPath string, applied []string) (*report.Comparison, error) {
	o.Logger.Info("Auditing original page", "url", pageURL)
	original, err := o.Auditor.Audit(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to audit original page: %w", err)
	}

	if o.Settle > 0 {
		select {
		case <-time.After(o.Settle):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	abs, err := filepath.Abs(indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve optimized page path: %w", err)
	}
	localURL := (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
	o.Logger.Info("Auditing optimized page", "url", localURL)
	optimized, err := o.Auditor.Audit(ctx, localURL)
	if err != nil {
		return nil, fmt.Errorf("failed to audit optimized page: %w", err)
	}

	return report.NewComparison(pageURL, original, optimized, applied), nil
}

func writeReports(siteDir string, c *report.Comparison) ([]string, error) {
	s := &storage.Storage{}

	htmlReport, err := report.RenderHTML(c)
	if err != nil {
		return nil, err
	}
	htmlPath := filepath.Join(siteDir, report.HTMLReportFile)
	if err := s.SaveFile(htmlPath, []byte(htmlReport)); err != nil {
		return nil, fmt.Errorf("failed to write HTML report: %w", err)
	}

	md, err := report.RenderMarkdown(c, siteDir)
	if err != nil {
		return nil, err
	}
	mdPath := filepath.Join(siteDir, report.MarkdownFile(c.Domain))
	if err := s.SaveFile(mdPath, []byte(md)); err != nil {
		return nil, fmt.Errorf("failed to write markdown report: %w", err)
	}

	jsonPath := filepath.Join(siteDir, report.JSONReportFile)
	if err := report.WriteJSON(jsonPath, c); err != nil {
		return nil, err
	}
	return []string{htmlPath, mdPath, jsonPath}, nil
}

func OptimizeAction(c *cli.Context) error {
	logger := common.Logger(c)

	pageURL, err := common.URLArg(c)
	if err != nil {
		return err
	}

	cfg, err := common.LoadConfig(c)
	if err != nil {
		return err
	}
	if c.Bool("use-chrome") {
		cfg.Audit.UseBrave = false
	}

	f, err := common.NewFetcher(cfg)
	if err != nil {
		return err
	}

	var auditor audit.Auditor = common.NewAuditor(cfg, logger)
	if c.Bool("mock") {
		auditor = audit.Static{}
	}

	o := &Optimizer{
		Auditor:       auditor,
		Fetcher:       f,
		Extractor:     common.NewExtractor(cfg, logger),
		Manager:       artifact_manager.NewManager(cfg.OutputDir),
		CacheMaxAge:   cfg.Transform.CacheMaxAge,
		PositionLimit: cfg.Transform.PositionLimit,
		Workers:       cfg.Workers,
		Settle:        cfg.Audit.Settle,
		Logger:        logger,
	}
	outcome, err := o.Optimize(c.Context, pageURL)
	if err != nil {
		return err
	}

	cmp := outcome.Comparison
	fmt.Fprintf(os.Stdout, "Optimization results for %s\n", cmp.URL)
	fmt.Fprintf(os.Stdout, "  Original score:  %.1f\n", cmp.OriginalScore)
	fmt.Fprintf(os.Stdout, "  Optimized score: %.1f\n", cmp.OptimizedScore)
	fmt.Fprintf(os.Stdout, "  Improvement:     %+.1f\n\n", cmp.Improvement)
	fmt.Fprintln(os.Stdout, "Applied optimizations:")
	for _, a := range cmp.Applied {
		fmt.Fprintf(os.Stdout, "  - %s\n", a)
	}
	fmt.Fprintf(os.Stdout, "\nOptimized page: %s\n", outcome.IndexPath)
	for _, p := range outcome.Reports {
		fmt.Fprintf(os.Stdout, "Report: %s\n", p)
	}

	common.RecordRun(cfg, logger, db.Run{
		URL:            pageURL,
		Domain:         artifact_manager.Domain(pageURL),
		Kind:           db.KindOptimize,
		OriginalScore:  &cmp.OriginalScore,
		OptimizedScore: &cmp.OptimizedScore,
		CriticalBytes:  len(outcome.Critical.CSS),
		SelectedCount:  len(outcome.Critical.Selected),
		OutputDir:      outcome.SiteDir,
	})
	return nil
}
