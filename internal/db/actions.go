package db

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/pagespeed-ai/internal/common"
	dbpkg "github.com/dtnitsch/pagespeed-ai/pkg/db"
)

// HistoryAction lists recorded runs, or with --url shows the latest run for
// that page.
func HistoryAction(c *cli.Context) error {
	cfg, err := common.LoadConfig(c)
	if err != nil {
		return err
	}

	database, err := dbpkg.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if c.IsSet("url") {
		pageURL, err := common.ValidateURL(c.String("url"))
		if err != nil {
			return err
		}
		return printLatest(database, pageURL)
	}

	runs, err := database.ListRuns(c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	fmt.Printf("%-6s %-20s %-9s %-8s %-8s %-8s %-30s\n",
		"ID", "Created", "Kind", "Before", "After", "CSS", "URL")
	fmt.Println(strings.Repeat("-", 120))

	for _, r := range runs {
		fmt.Printf("%-6d %-20s %-9s %-8s %-8s %-8d %-30s\n",
			r.RunID,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.Kind,
			formatScore(r.OriginalScore),
			formatScore(r.OptimizedScore),
			r.CriticalBytes,
			r.URL,
		)
	}

	fmt.Printf("\nTotal: %d runs\n", len(runs))
	fmt.Printf("\nTip: Use 'pagespeed-ai history --url <url>' to see the latest run for a page\n")

	return nil
}

func printLatest(database *dbpkg.DB, pageURL string) error {
	r, err := database.LatestRun(pageURL)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("no runs found for %s\nRun 'pagespeed-ai critical %s' first", pageURL, pageURL)
	}

	fmt.Printf("Run %d\n", r.RunID)
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("URL:         %s\n", r.URL)
	fmt.Printf("Domain:      %s\n", r.Domain)
	fmt.Printf("Kind:        %s\n", r.Kind)
	fmt.Printf("Created:     %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Score:       %s -> %s\n", formatScore(r.OriginalScore), formatScore(r.OptimizedScore))
	fmt.Printf("Critical:    %d bytes, %d selectors\n", r.CriticalBytes, r.SelectedCount)
	if r.OutputDir != "" {
		fmt.Printf("Output:      %s\n", r.OutputDir)
	}
	return nil
}

func formatScore(s *float64) string {
	if s == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *s)
}
