// Package recommend turns failing audits into remediation steps and an
// implementation guide.
package recommend

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dtnitsch/pagespeed-ai/pkg/audit"
)

const (
	High   = "high"
	Medium = "medium"
)

type CodeChange struct {
	FileType    string `json:"file_type" yaml:"file_type"`
	Description string `json:"description" yaml:"description"`
	Example     string `json:"example" yaml:"example"`
}

type Recommendation struct {
	Issue       string       `json:"issue" yaml:"issue"`
	ID          string       `json:"id" yaml:"id"`
	Importance  string       `json:"importance" yaml:"importance"`
	Steps       []string     `json:"steps" yaml:"steps"`
	CodeChanges []CodeChange `json:"code_changes" yaml:"code_changes"`
}

type remedy struct {
	steps   []string
	changes []CodeChange
}

var remedies = map[string]remedy{
	"render-blocking-resources": {
		steps: []string{
			"Add defer attribute to non-critical JavaScript",
			"Inline critical CSS and defer non-critical CSS",
		},
		changes: []CodeChange{{
			FileType:    "html",
			Description: "Add defer to script tags",
			Example:     `<script src="non-critical.js" defer></script>`,
		}},
	},
	"unminified-css": {
		steps: []string{"Minify CSS files", "Set up build process with minification tools"},
	},
	"unminified-javascript": {
		steps: []string{"Minify JAVASCRIPT files", "Set up build process with minification tools"},
	},
	"unused-css-rules": {
		steps: []string{"Remove unused CSS", "Consider using PurgeCSS to automatically remove unused styles"},
	},
	"unused-javascript": {
		steps: []string{"Implement code splitting", "Remove dead code"},
	},
	"offscreen-images": {
		steps: []string{"Implement lazy loading for images"},
		changes: []CodeChange{{
			FileType:    "html",
			Description: `Add loading="lazy" to image tags`,
			Example:     `<img src="image.jpg" loading="lazy" alt="Description">`,
		}},
	},
	"uses-responsive-images": {
		steps: []string{"Use responsive image syntax with srcset"},
		changes: []CodeChange{{
			FileType:    "html",
			Description: "Implement srcset for responsive images",
			Example:     `<img srcset="small.jpg 300w, medium.jpg 600w, large.jpg 1200w" sizes="(max-width: 320px) 280px, (max-width: 640px) 580px, 1200px" src="fallback.jpg" alt="Description">`,
		}},
	},
	"uses-optimized-images": {
		steps: []string{"Compress images and use modern formats like WebP", "Set up an image optimization build step"},
	},
	"uses-text-compression": {
		steps: []string{"Enable GZIP or Brotli compression on your server"},
		changes: []CodeChange{{
			FileType:    "server",
			Description: "Apache: Enable GZIP compression",
			Example: "<IfModule mod_deflate.c>\n" +
				"  AddOutputFilterByType DEFLATE text/html text/plain text/css application/javascript\n" +
				"</IfModule>",
		}},
	},
}

// Recommendations returns one recommendation per issue, in issue order.
func Recommendations(issues []audit.Issue) []Recommendation {
	recs := make([]Recommendation, 0, len(issues))
	for _, issue := range issues {
		rec := Recommendation{
			Issue:       issue.Title,
			ID:          issue.ID,
			Importance:  Medium,
			CodeChanges: []CodeChange{},
		}
		if issue.Score < 0.5 {
			rec.Importance = High
		}

		if r, ok := remedies[issue.ID]; ok {
			rec.Steps = append([]string(nil), r.steps...)
			rec.CodeChanges = append(rec.CodeChanges, r.changes...)
		} else {
			rec.Steps = []string{
				"Address " + issue.Title,
				"Refer to Lighthouse documentation for specifics",
			}
		}
		recs = append(recs, rec)
	}
	return recs
}

type Estimate struct {
	Current    float64 `json:"current_score" yaml:"current_score"`
	Potential  float64 `json:"potential_score" yaml:"potential_score"`
	Percentage string  `json:"percentage_improvement" yaml:"percentage_improvement"`
}

// EstimateImprovement weighs each issue by its distance from a passing score,
// more heavily for badly failing audits, and caps the gain at a perfect score.
func EstimateImprovement(a audit.Analysis) Estimate {
	current := a.PerformanceScore
	gain := 0.0
	for _, issue := range a.CriticalIssues {
		weight := 2.0
		if issue.Score < 0.5 {
			weight = 5.0
		}
		gain += (audit.PassingScore - issue.Score) * weight
	}
	gain = math.Min(gain, 100-current)

	return Estimate{
		Current:    current,
		Potential:  math.Min(current+gain, 100),
		Percentage: fmt.Sprintf("%.1f%%", gain),
	}
}

type Task struct {
	Priority     int          `json:"priority" yaml:"priority"`
	Task         string       `json:"task" yaml:"task"`
	Steps        []string     `json:"steps" yaml:"steps"`
	CodeExamples []CodeChange `json:"code_examples" yaml:"code_examples"`
}

type Automation struct {
	Task       string `json:"task" yaml:"task"`
	Tool       string `json:"automation_tool" yaml:"automation_tool"`
	Complexity string `json:"implementation_complexity" yaml:"implementation_complexity"`
}

type Guide struct {
	Summary                 string       `json:"summary" yaml:"summary"`
	Estimate                Estimate     `json:"estimated_score_improvement" yaml:"estimated_score_improvement"`
	PrioritizedTasks        []Task       `json:"prioritized_tasks" yaml:"prioritized_tasks"`
	AutomationOpportunities []Automation `json:"automation_opportunities" yaml:"automation_opportunities"`
	CriticalCSS             string       `json:"critical_css,omitempty" yaml:"critical_css,omitempty"`
}

type automationRule struct {
	ids        []string
	automation Automation
}

var automationRules = []automationRule{
	{
		ids:        []string{"uses-optimized-images"},
		automation: Automation{Task: "Image optimization", Tool: "Build an automated image optimization pipeline", Complexity: "Medium"},
	},
	{
		ids:        []string{"unminified-css", "unminified-javascript"},
		automation: Automation{Task: "Asset minification", Tool: "Implement webpack/gulp build process", Complexity: "Low"},
	},
}

// BuildGuide orders the recommendations high importance first (stable) and
// lists the automation opportunities they open up.
func BuildGuide(a audit.Analysis, recs []Recommendation, criticalCSS string) Guide {
	g := Guide{
		Summary:                 fmt.Sprintf("Found %d issues to address", len(recs)),
		Estimate:                EstimateImprovement(a),
		PrioritizedTasks:        []Task{},
		AutomationOpportunities: []Automation{},
		CriticalCSS:             criticalCSS,
	}

	ordered := append([]Recommendation(nil), recs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Importance == High && ordered[j].Importance != High
	})
	for i, rec := range ordered {
		g.PrioritizedTasks = append(g.PrioritizedTasks, Task{
			Priority:     i + 1,
			Task:         rec.Issue,
			Steps:        rec.Steps,
			CodeExamples: rec.CodeChanges,
		})
	}

	present := make(map[string]bool, len(recs))
	for _, rec := range recs {
		present[rec.ID] = true
	}
	for _, rule := range automationRules {
		for _, id := range rule.ids {
			if present[id] {
				g.AutomationOpportunities = append(g.AutomationOpportunities, rule.automation)
				break
			}
		}
	}
	return g
}

// Summary renders recommendations as plain text for terminal output.
func Summary(recs []Recommendation) string {
	var b strings.Builder
	for i, rec := range recs {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, rec.Importance, rec.Issue)
		for _, step := range rec.Steps {
			fmt.Fprintf(&b, "   - %s\n", step)
		}
	}
	return b.String()
}
