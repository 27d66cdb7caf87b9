// Package audit runs Lighthouse performance audits and distills their JSON
// report into scores, key metrics and failing audits.
package audit

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Metric audit IDs reported for every run.
const (
	FirstContentfulPaint   = "first-contentful-paint"
	LargestContentfulPaint = "largest-contentful-paint"
	TotalBlockingTime      = "total-blocking-time"
	CumulativeLayoutShift  = "cumulative-layout-shift"
)

// PassingScore is the audit score at or above which an audit is not an issue.
const PassingScore = 0.9

// Result is the subset of a Lighthouse JSON report this tool reads.
type Result struct {
	Categories Categories       `json:"categories"`
	Audits     map[string]Audit `json:"audits"`
}

type Categories struct {
	Performance Category `json:"performance"`
}

type Category struct {
	Score float64 `json:"score"`
}

type Audit struct {
	Title        string          `json:"title,omitempty"`
	Description  string          `json:"description,omitempty"`
	Score        *float64        `json:"score"`
	DisplayValue string          `json:"displayValue,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
}

// HasDetails reports whether the audit carried a details object.
func (a Audit) HasDetails() bool {
	d := bytes.TrimSpace(a.Details)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// PerformanceScore returns the performance category score on a 0-100 scale.
func (r *Result) PerformanceScore() float64 {
	if r == nil {
		return 0
	}
	return r.Categories.Performance.Score * 100
}

// Metric returns the display value of an audit, or "N/A" when missing.
func (r *Result) Metric(id string) string {
	if r == nil {
		return "N/A"
	}
	a, ok := r.Audits[id]
	if !ok || a.DisplayValue == "" {
		return "N/A"
	}
	return a.DisplayValue
}

// KeyMetrics are the Core Web Vitals display values of one run.
type KeyMetrics struct {
	FirstContentfulPaint   string `json:"first_contentful_paint" yaml:"first_contentful_paint"`
	LargestContentfulPaint string `json:"largest_contentful_paint" yaml:"largest_contentful_paint"`
	TotalBlockingTime      string `json:"total_blocking_time" yaml:"total_blocking_time"`
	CumulativeLayoutShift  string `json:"cumulative_layout_shift" yaml:"cumulative_layout_shift"`
}

func (r *Result) KeyMetrics() KeyMetrics {
	return KeyMetrics{
		FirstContentfulPaint:   r.Metric(FirstContentfulPaint),
		LargestContentfulPaint: r.Metric(LargestContentfulPaint),
		TotalBlockingTime:      r.Metric(TotalBlockingTime),
		CumulativeLayoutShift:  r.Metric(CumulativeLayoutShift),
	}
}

// Issue is a failing audit.
type Issue struct {
	ID          string          `json:"id" yaml:"id"`
	Title       string          `json:"title" yaml:"title"`
	Description string          `json:"description" yaml:"description"`
	Score       float64         `json:"score" yaml:"score"`
	Details     json.RawMessage `json:"details,omitempty" yaml:"-"`
}

// Analysis summarizes one audit run.
type Analysis struct {
	PerformanceScore float64    `json:"performance_score" yaml:"performance_score"`
	KeyMetrics       KeyMetrics `json:"key_metrics" yaml:"key_metrics"`
	CriticalIssues   []Issue    `json:"critical_issues" yaml:"critical_issues"`
}

// Analyze extracts the score, key metrics and critical issues from res.
// An issue is an audit with a score below PassingScore that carries details;
// issues are ordered by ascending score, then by ID.
func Analyze(res *Result) Analysis {
	a := Analysis{
		PerformanceScore: res.PerformanceScore(),
		KeyMetrics:       res.KeyMetrics(),
		CriticalIssues:   []Issue{},
	}
	if res == nil {
		return a
	}

	for id, audit := range res.Audits {
		if audit.Score == nil || *audit.Score >= PassingScore || !audit.HasDetails() {
			continue
		}
		a.CriticalIssues = append(a.CriticalIssues, Issue{
			ID:          id,
			Title:       audit.Title,
			Description: audit.Description,
			Score:       *audit.Score,
			Details:     audit.Details,
		})
	}
	sort.Slice(a.CriticalIssues, func(i, j int) bool {
		x, y := a.CriticalIssues[i], a.CriticalIssues[j]
		if x.Score != y.Score {
			return x.Score < y.Score
		}
		return x.ID < y.ID
	})
	return a
}

func score(v float64) *float64 {
	return &v
}

// Mock returns a fixed report used when Lighthouse cannot run.
func Mock() *Result {
	return &Result{
		Categories: Categories{Performance: Category{Score: 0.65}},
		Audits: map[string]Audit{
			FirstContentfulPaint:   {DisplayValue: "1.5 s", Score: score(0.8)},
			LargestContentfulPaint: {DisplayValue: "2.5 s", Score: score(0.7)},
			TotalBlockingTime:      {DisplayValue: "150 ms", Score: score(0.6)},
			CumulativeLayoutShift:  {DisplayValue: "0.1", Score: score(0.9)},
			"render-blocking-resources": {
				Score:       score(0.4),
				Title:       "Eliminate render-blocking resources",
				Description: "Resources are blocking the first paint of your page.",
				Details:     json.RawMessage(`{}`),
			},
			"uses-optimized-images": {
				Score:       score(0.5),
				Title:       "Efficiently encode images",
				Description: "Optimized images load faster and consume less data.",
				Details:     json.RawMessage(`{}`),
			},
		},
	}
}
