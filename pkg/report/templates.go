package report

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"path/filepath"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
)

const markdownTemplate = `# Performance Optimization Results for {{ .C.Domain }}

## Summary

- **URL Tested**: {{ .C.URL }}
- **Date**: {{ date "2006-01-02" .C.GeneratedAt }}
- **Original Performance Score**: {{ printf "%.1f" .C.OriginalScore }}
- **Optimized Performance Score**: {{ printf "%.1f" .C.OptimizedScore }}
- **Improvement**: {{ printf "%+.1f" .C.Improvement }} points

## Applied Optimizations

{{ range .C.Applied }}- {{ . }}
{{ else }}- None
{{ end }}
## Core Web Vitals Comparison

| Metric | Original | Optimized | Improvement |
|--------|----------|-----------|-------------|
{{ range .C.Rows }}| {{ .Name }} | {{ .Original }} | {{ .Optimized }} | {{ .Change }} |
{{ end }}
## Next Steps

1. Review the optimized implementation at ` + "`{{ .IndexPath }}`" + `
2. View the detailed comparison report at ` + "`{{ .ReportPath }}`" + `
3. Consider implementing these optimizations on your production site
`

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>PageSpeed AI - Optimization Report for {{ .Domain }}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 1200px; margin: 0 auto; padding: 2rem; color: #333; line-height: 1.6; }
        h1, h2, h3 { color: #2c3e50; }
        .header { text-align: center; margin-bottom: 2rem; padding-bottom: 1rem; border-bottom: 1px solid #eee; }
        .scores-container { display: flex; justify-content: space-around; margin: 2rem 0; }
        .score-card { text-align: center; padding: 1.5rem; border-radius: 8px; box-shadow: 0 4px 12px rgba(0,0,0,0.1); width: 30%; }
        .original { background-color: #f8f9fa; }
        .optimized { background-color: #e3f2fd; }
        .improvement { background-color: #e8f5e9; }
        .score { font-size: 3rem; font-weight: bold; }
        .metrics-table { width: 100%; border-collapse: collapse; margin: 2rem 0; }
        .metrics-table th, .metrics-table td { padding: 0.75rem; text-align: left; border-bottom: 1px solid #ddd; }
        .metrics-table th { background-color: #f5f5f5; }
        .optimization-item { margin-bottom: 0.5rem; padding: 0.5rem; background-color: #f9f9f9; border-left: 4px solid #4caf50; }
        .cta { text-align: center; margin: 2rem 0; }
        .cta a { display: inline-block; padding: 0.75rem 1.5rem; background-color: #2196f3; color: white; text-decoration: none; border-radius: 4px; font-weight: bold; }
        .footer { text-align: center; margin-top: 3rem; padding-top: 1rem; border-top: 1px solid #eee; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>PageSpeed AI Optimization Report for {{ .Domain }}</h1>
        <p>Comparing performance between original and optimized versions of <strong>{{ .URL }}</strong></p>
        <p><small>Generated on {{ date "2006-01-02 at 15:04:05" .GeneratedAt }}</small></p>
    </div>

    <div class="scores-container">
        <div class="score-card original">
            <h2>Original Score</h2>
            <div class="score">{{ printf "%.1f" .OriginalScore }}</div>
        </div>
        <div class="score-card optimized">
            <h2>Optimized Score</h2>
            <div class="score">{{ printf "%.1f" .OptimizedScore }}</div>
        </div>
        <div class="score-card improvement">
            <h2>Improvement</h2>
            <div class="score">{{ printf "%+.1f" .Improvement }}</div>
        </div>
    </div>

    <h2>Core Web Vitals Comparison</h2>
    <table class="metrics-table">
        <thead>
            <tr><th>Metric</th><th>Original</th><th>Optimized</th><th>Improvement</th></tr>
        </thead>
        <tbody>
        {{- range .Rows }}
            <tr><td>{{ .Name }}</td><td>{{ .Original }}</td><td>{{ .Optimized }}</td><td>{{ .Change }}</td></tr>
        {{- end }}
        </tbody>
    </table>

    <div class="optimizations">
        <h2>Applied Optimizations</h2>
        {{- range .Applied }}
        <div class="optimization-item">{{ . }}</div>
        {{- end }}
    </div>

    <div class="cta">
        <a href="index.html" target="_blank">View Optimized Page</a>
    </div>

    <div class="footer">
        <p>Generated by PageSpeed AI &copy; {{ date "2006" .GeneratedAt }}</p>
    </div>
</body>
</html>
`

// File names written next to the optimized page.
const (
	IndexFile      = "index.html"
	HTMLReportFile = "comparison_report.html"
	JSONReportFile = "comparison.json"
)

// MarkdownFile returns the summary file name for a site.
func MarkdownFile(domain string) string {
	return domain + "-optimization-results.md"
}

var (
	mdTmpl   = template.Must(template.New("markdown").Funcs(sprig.FuncMap()).Parse(markdownTemplate))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Funcs(sprig.FuncMap()).Parse(htmlTemplate))
)

// RenderMarkdown renders the summary of c; outputDir is where the optimized
// page and HTML report live.
func RenderMarkdown(c *Comparison, outputDir string) (string, error) {
	values := struct {
		C          *Comparison
		IndexPath  string
		ReportPath string
	}{
		C:          c,
		IndexPath:  filepath.Join(outputDir, IndexFile),
		ReportPath: filepath.Join(outputDir, HTMLReportFile),
	}

	buf := new(bytes.Buffer)
	if err := mdTmpl.Execute(buf, values); err != nil {
		return "", fmt.Errorf("unable to render markdown report: %w", err)
	}
	return buf.String(), nil
}

// RenderHTML renders the comparison report page.
func RenderHTML(c *Comparison) (string, error) {
	buf := new(bytes.Buffer)
	if err := htmlTmpl.Execute(buf, c); err != nil {
		return "", fmt.Errorf("unable to render HTML report: %w", err)
	}
	return buf.String(), nil
}
