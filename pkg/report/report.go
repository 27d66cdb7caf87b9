// Package report builds and writes the analysis and before/after comparison
// reports.
package report

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/pagespeed-ai/pkg/audit"
	"github.com/dtnitsch/pagespeed-ai/pkg/detector"
	"github.com/dtnitsch/pagespeed-ai/pkg/recommend"
	"github.com/dtnitsch/pagespeed-ai/pkg/storage"
)

var firstNumber = regexp.MustCompile(`[\d.]+`)

// Improvement describes how a metric moved between two display values such
// as "1.2 s". The arrow gives the direction of the change.
func Improvement(original, optimized string) string {
	orig, ok := leadingNumber(original)
	if !ok {
		return "N/A"
	}
	opt, ok := leadingNumber(optimized)
	if !ok {
		return "N/A"
	}
	if opt < orig {
		return fmt.Sprintf("⬇️ %.2f", orig-opt)
	}
	return fmt.Sprintf("⬆️ %.2f", opt-orig)
}

func leadingNumber(s string) (float64, bool) {
	m := firstNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// SiteName returns the URL's host, or example-com when it has none.
func SiteName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "example-com"
	}
	return u.Host
}

// Comparison holds the before/after audit of an optimized page.
type Comparison struct {
	URL              string           `json:"url" yaml:"url"`
	Domain           string           `json:"domain" yaml:"domain"`
	OriginalScore    float64          `json:"original_score" yaml:"original_score"`
	OptimizedScore   float64          `json:"optimized_score" yaml:"optimized_score"`
	Improvement      float64          `json:"improvement" yaml:"improvement"`
	OriginalMetrics  audit.KeyMetrics `json:"original_metrics" yaml:"original_metrics"`
	OptimizedMetrics audit.KeyMetrics `json:"optimized_metrics" yaml:"optimized_metrics"`
	Applied          []string         `json:"applied_optimizations" yaml:"applied_optimizations"`
	GeneratedAt      time.Time        `json:"generated_at" yaml:"generated_at"`
}

func NewComparison(rawURL string, original, optimized *audit.Result, applied []string) *Comparison {
	c := &Comparison{
		URL:              rawURL,
		Domain:           SiteName(rawURL),
		OriginalScore:    original.PerformanceScore(),
		OptimizedScore:   optimized.PerformanceScore(),
		OriginalMetrics:  original.KeyMetrics(),
		OptimizedMetrics: optimized.KeyMetrics(),
		Applied:          append([]string{}, applied...),
		GeneratedAt:      time.Now(),
	}
	c.Improvement = c.OptimizedScore - c.OriginalScore
	return c
}

type MetricRow struct {
	Name      string
	Original  string
	Optimized string
	Change    string
}

// Rows lists the Core Web Vitals side by side.
func (c *Comparison) Rows() []MetricRow {
	row := func(name, orig, opt string) MetricRow {
		return MetricRow{Name: name, Original: orig, Optimized: opt, Change: Improvement(orig, opt)}
	}
	return []MetricRow{
		row("First Contentful Paint (FCP)", c.OriginalMetrics.FirstContentfulPaint, c.OptimizedMetrics.FirstContentfulPaint),
		row("Largest Contentful Paint (LCP)", c.OriginalMetrics.LargestContentfulPaint, c.OptimizedMetrics.LargestContentfulPaint),
		row("Total Blocking Time (TBT)", c.OriginalMetrics.TotalBlockingTime, c.OptimizedMetrics.TotalBlockingTime),
		row("Cumulative Layout Shift (CLS)", c.OriginalMetrics.CumulativeLayoutShift, c.OptimizedMetrics.CumulativeLayoutShift),
	}
}

// AnalysisReport is the result of analyzing a single live page.
type AnalysisReport struct {
	URL             string                     `json:"url" yaml:"url"`
	Analysis        audit.Analysis             `json:"analysis" yaml:"analysis"`
	Recommendations []recommend.Recommendation `json:"recommendations" yaml:"recommendations"`
	Guide           recommend.Guide            `json:"implementation_guide" yaml:"implementation_guide"`
	Profile         *detector.Profile          `json:"page_profile,omitempty" yaml:"page_profile,omitempty"`
}

var store = &storage.Storage{}

// WriteJSON writes v as indented JSON, creating parent directories.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON report: %w", err)
	}
	return store.SaveFile(path, data)
}

// WriteYAML writes v as YAML, creating parent directories.
func WriteYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML report: %w", err)
	}
	return store.SaveFile(path, data)
}
