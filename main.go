package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/pagespeed-ai/internal/analyze"
	"github.com/dtnitsch/pagespeed-ai/internal/critical"
	"github.com/dtnitsch/pagespeed-ai/internal/db"
	"github.com/dtnitsch/pagespeed-ai/internal/optimize"
	"github.com/dtnitsch/pagespeed-ai/models"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	auditFlags := []cli.Flag{
		&cli.BoolFlag{
			Name:  "use-chrome",
			Usage: "Audit with Chrome/Chromium instead of Brave",
		},
		&cli.BoolFlag{
			Name:  "mock",
			Usage: "Skip Lighthouse and use canned audit results",
		},
	}

	return &cli.App{
		Name:  "pagespeed-ai",
		Usage: "Extract critical CSS and rewrite pages for faster first paint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file (default: " + models.DefaultConfigFile + " when present)",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Only log errors",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log debug details",
			},
			&cli.StringFlag{
				Name:  "output-dir",
				Usage: "Directory for optimized sites",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent downloads",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "critical",
				Usage:     "Print the critical CSS of a page",
				ArgsUsage: "<url>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Write the CSS to a file instead of stdout",
					},
					&cli.StringFlag{
						Name:  "matcher",
						Usage: "Selector matching strategy: substring or engine",
					},
					&cli.BoolFlag{
						Name:  "minify",
						Usage: "Minify the emitted CSS",
					},
				},
				Action: critical.CriticalAction,
			},
			{
				Name:      "analyze",
				Usage:     "Audit a page and write optimization recommendations",
				ArgsUsage: "<url>",
				Flags: append([]cli.Flag{
					&cli.BoolFlag{
						Name:  "extract-critical-css",
						Usage: "Include the page's critical CSS in the report",
					},
					&cli.StringFlag{
						Name:  "format",
						Value: "json",
						Usage: "Report format: json or yaml",
					},
				}, auditFlags...),
				Action: analyze.AnalyzeAction,
			},
			{
				Name:      "optimize",
				Usage:     "Capture a page, rewrite it and compare audits before and after",
				ArgsUsage: "<url>",
				Flags:     auditFlags,
				Action:    optimize.OptimizeAction,
			},
			{
				Name:  "history",
				Usage: "List recorded runs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
						Usage: "Maximum runs to show (0 for all)",
					},
					&cli.StringFlag{
						Name:  "url",
						Usage: "Show the latest run for this page",
					},
				},
				Action: db.HistoryAction,
			},
		},
	}
}
