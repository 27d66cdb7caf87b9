package critical

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/PuerkitoBio/goquery"
	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/pagespeed-ai/internal/common"
	"github.com/dtnitsch/pagespeed-ai/pkg/artifact_manager"
	criticalpkg "github.com/dtnitsch/pagespeed-ai/pkg/critical"
	"github.com/dtnitsch/pagespeed-ai/pkg/cssrules"
	"github.com/dtnitsch/pagespeed-ai/pkg/db"
	"github.com/dtnitsch/pagespeed-ai/pkg/fetcher"
	"github.com/dtnitsch/pagespeed-ai/pkg/storage"
)

// Extract fetches every stylesheet linked from doc and extracts the page's
// critical CSS. Stylesheets that fail to download are logged and skipped.
func Extract(ctx context.Context, f *fetcher.Fetcher, ex *criticalpkg.Extractor, doc *goquery.Document, pageURL string, workers int, logger *slog.Logger) (criticalpkg.Result, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return criticalpkg.Result{}, fmt.Errorf("failed to parse page URL: %w", err)
	}

	links, inline := criticalpkg.CollectStylesheets(doc)
	urls := ResolveLinks(base, links)
	logger.Info("Fetching stylesheets", "url", pageURL, "linked", len(urls), "inline", len(inline))

	sheets, err := f.FetchStylesheets(ctx, urls, workers)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return criticalpkg.Result{}, fmt.Errorf("failed to fetch stylesheets: %w", ctxErr)
	}
	if err != nil {
		logger.Warn("Some stylesheets could not be fetched", "fetched", len(sheets), "requested", len(urls), "error", err)
	}

	// inline blocks come first, ahead of linked sheets
	ordered := make([]cssrules.Stylesheet, 0, len(inline)+len(sheets))
	ordered = append(ordered, inline...)
	ordered = append(ordered, sheets...)
	return ex.Extract(doc, ordered), nil
}

// ResolveLinks resolves hrefs against base, dropping duplicates and refs that
// do not parse. Order is preserved.
func ResolveLinks(base *url.URL, hrefs []string) []string {
	seen := make(map[string]bool, len(hrefs))
	out := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref).String()
		if seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, abs)
	}
	return out
}

// CriticalAction prints (or writes with --out) the critical CSS of a page.
func CriticalAction(c *cli.Context) error {
	logger := common.Logger(c)

	pageURL, err := common.URLArg(c)
	if err != nil {
		return err
	}

	cfg, err := common.LoadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("matcher") {
		cfg.Critical.Matcher = c.String("matcher")
	}
	if c.IsSet("minify") {
		cfg.Critical.Minify = c.Bool("minify")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	f, err := common.NewFetcher(cfg)
	if err != nil {
		return err
	}

	ctx := c.Context
	logger.Info("Fetching page", "url", pageURL)
	doc, _, err := f.GetHTML(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("failed to fetch page: %w", err)
	}

	res, err := Extract(ctx, f, common.NewExtractor(cfg, logger), doc, pageURL, cfg.Workers, logger)
	if err != nil {
		return err
	}

	outPath := c.String("out")
	if outPath == "" {
		fmt.Fprint(os.Stdout, res.CSS)
	} else {
		s := &storage.Storage{}
		if err := s.SaveFile(outPath, []byte(res.CSS)); err != nil {
			return fmt.Errorf("failed to write critical CSS: %w", err)
		}
	}

	logger.Info("Critical CSS extracted",
		"url", pageURL,
		"elements", res.Elements,
		"selectors", len(res.Selected),
		"bytes", len(res.CSS),
		"out", outPath)

	common.RecordRun(cfg, logger, db.Run{
		URL:           pageURL,
		Domain:        artifact_manager.Domain(pageURL),
		Kind:          db.KindCritical,
		CriticalBytes: len(res.CSS),
		SelectedCount: len(res.Selected),
		OutputDir:     outPath,
	})
	return nil
}
