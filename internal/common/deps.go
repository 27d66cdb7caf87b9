package common

import (
	"fmt"
	"log/slog"

	"github.com/dtnitsch/pagespeed-ai/models"
	"github.com/dtnitsch/pagespeed-ai/pkg/abovefold"
	"github.com/dtnitsch/pagespeed-ai/pkg/audit"
	"github.com/dtnitsch/pagespeed-ai/pkg/caching"
	"github.com/dtnitsch/pagespeed-ai/pkg/critical"
	"github.com/dtnitsch/pagespeed-ai/pkg/db"
	"github.com/dtnitsch/pagespeed-ai/pkg/fetcher"
)

// NewFetcher builds the HTTP fetcher described by cfg. An empty cache_dir
// disables the response cache.
func NewFetcher(cfg *models.Config) (*fetcher.Fetcher, error) {
	opts := []fetcher.Option{
		fetcher.WithTimeout(cfg.Timeout),
		fetcher.WithUserAgent(cfg.UserAgent),
	}
	if cfg.CacheDir != "" {
		cache, err := caching.NewCache(cfg.CacheDir, cfg.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		opts = append(opts, fetcher.WithCache(cache))
	}
	return fetcher.NewFetcher(opts...), nil
}

// NewExtractor builds the critical CSS extractor described by cfg.
func NewExtractor(cfg *models.Config, logger *slog.Logger) *critical.Extractor {
	sel := abovefold.NewHeuristic()
	if cfg.Critical.SectionLimit > 0 {
		sel.SectionLimit = cfg.Critical.SectionLimit
	}
	return &critical.Extractor{
		Selector:    sel,
		MatcherName: cfg.Critical.Matcher,
		Minify:      cfg.Critical.Minify,
		Logger:      logger,
	}
}

// NewAuditor builds the Lighthouse runner described by cfg.
func NewAuditor(cfg *models.Config, logger *slog.Logger) *audit.Lighthouse {
	return &audit.Lighthouse{
		Binary:        cfg.Audit.Binary,
		UseBrave:      cfg.Audit.UseBrave,
		ChromePath:    cfg.Audit.ChromePath,
		MockOnFailure: cfg.Audit.MockOnFailure,
		Logger:        logger,
	}
}

// RecordRun stores r in the history database. History is best effort: a
// failure is logged and never fails the command.
func RecordRun(cfg *models.Config, logger *slog.Logger, r db.Run) {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Warn("failed to open history database", "error", err)
		return
	}
	defer database.Close()

	id, err := database.InsertRun(r)
	if err != nil {
		logger.Warn("failed to record run", "url", r.URL, "error", err)
		return
	}
	logger.Debug("Run recorded", "run_id", id, "kind", r.Kind, "db", database.Path())
}
