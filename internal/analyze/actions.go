package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/pagespeed-ai/internal/common"
	"github.com/dtnitsch/pagespeed-ai/internal/critical"
	"github.com/dtnitsch/pagespeed-ai/pkg/artifact_manager"
	"github.com/dtnitsch/pagespeed-ai/pkg/audit"
	criticalpkg "github.com/dtnitsch/pagespeed-ai/pkg/critical"
	"github.com/dtnitsch/pagespeed-ai/pkg/db"
	"github.com/dtnitsch/pagespeed-ai/pkg/detector"
	"github.com/dtnitsch/pagespeed-ai/pkg/fetcher"
	"github.com/dtnitsch/pagespeed-ai/pkg/recommend"
	"github.com/dtnitsch/pagespeed-ai/pkg/report"
	"github.com/dtnitsch/pagespeed-ai/pkg/storage"
)

const (
	ReportName  = "pagespeed_optimization_report"
	CriticalCSS = "critical.css"
)

// Analyzer audits a live page and turns the audit into recommendations.
type Analyzer struct {
	Auditor   audit.Auditor
	Fetcher   *fetcher.Fetcher
	Extractor *criticalpkg.Extractor
	Workers   int
	Logger    *slog.Logger
}

// Analyze audits pageURL. The page itself is fetched for its profile and,
// when withCritical is set, its critical CSS; failing to fetch it only
// drops those parts of the report.
func (a *Analyzer) Analyze(ctx context.Context, pageURL string, withCritical bool) (*report.AnalysisReport, string, error) {
	a.Logger.Info("Auditing page", "url", pageURL)
	res, err := a.Auditor.Audit(ctx, pageURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to audit %s: %w", pageURL, err)
	}

	analysis := audit.Analyze(res)
	recs := recommend.Recommendations(analysis.CriticalIssues)
	out := &report.AnalysisReport{
		URL:             pageURL,
		Analysis:        analysis,
		Recommendations: recs,
	}

	var css string
	doc, body, err := a.Fetcher.GetHTML(ctx, pageURL)
	if err != nil {
		a.Logger.Warn("failed to fetch page, skipping profile", "url", pageURL, "error", err)
	} else {
		profile, err := detector.Analyze(pageURL, body)
		if err != nil {
			a.Logger.Warn("failed to profile page", "url", pageURL, "error", err)
		}
		out.Profile = profile

		if withCritical {
			result, err := critical.Extract(ctx, a.Fetcher, a.Extractor, doc, pageURL, a.Workers, a.Logger)
			if err != nil {
				return nil, "", err
			}
			css = result.CSS
		}
	}

	out.Guide = recommend.BuildGuide(analysis, recs, css)
	a.Logger.Info("Analysis complete",
		"url", pageURL,
		"score", analysis.PerformanceScore,
		"issues", len(analysis.CriticalIssues))
	return out, css, nil
}

// WriteReport writes r (json or yaml) and, when present, the critical CSS
// into dir. It returns the report path.
func WriteReport(dir, format string, r *report.AnalysisReport, css string) (string, error) {
	var path string
	var err error
	switch format {
	case "", "json":
		path = filepath.Join(dir, ReportName+".json")
		err = report.WriteJSON(path, r)
	case "yaml":
		path = filepath.Join(dir, ReportName+".yaml")
		err = report.WriteYAML(path, r)
	default:
		return "", fmt.Errorf("unknown format: %s (use: json or yaml)", format)
	}
	if err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	if css != "" {
		s := &storage.Storage{}
		if err := s.SaveFile(filepath.Join(dir, CriticalCSS), []byte(css)); err != nil {
			return "", fmt.Errorf("failed to write critical CSS: %w", err)
		}
	}
	return path, nil
}

func AnalyzeAction(c *cli.Context) error {
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

	format := c.String("format")
	if format != "" && format != "json" && format != "yaml" {
		return fmt.Errorf("unknown format: %s (use: json or yaml)", format)
	}

	f, err := common.NewFetcher(cfg)
	if err != nil {
		return err
	}

	var auditor audit.Auditor = common.NewAuditor(cfg, logger)
	if c.Bool("mock") {
		auditor = audit.Static{}
	}

	a := &Analyzer{
		Auditor:   auditor,
		Fetcher:   f,
		Extractor: common.NewExtractor(cfg, logger),
		Workers:   cfg.Workers,
		Logger:    logger,
	}
	r, css, err := a.Analyze(c.Context, pageURL, c.Bool("extract-critical-css"))
	if err != nil {
		return err
	}

	dir := filepath.Join(cfg.ReportsDir, report.SiteName(pageURL))
	path, err := WriteReport(dir, format, r, css)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Performance score: %.1f\n", r.Analysis.PerformanceScore)
	fmt.Fprintf(os.Stdout, "Estimated potential: %.1f (%s)\n\n", r.Guide.Estimate.Potential, r.Guide.Estimate.Percentage)
	fmt.Fprint(os.Stdout, recommend.Summary(r.Recommendations))
	fmt.Fprintf(os.Stdout, "\nReport saved to %s\n", path)

	score := r.Analysis.PerformanceScore
	common.RecordRun(cfg, logger, db.Run{
		URL:           pageURL,
		Domain:        artifact_manager.Domain(pageURL),
		Kind:          db.KindAnalyze,
		OriginalScore: &score,
		CriticalBytes: len(css),
		OutputDir:     dir,
	})
	return nil
}
