// File: internal/report/render.go
package report

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/uveworks/vigil/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Renderers are pure functions of the finalized report: rendering twice
// always produces the same bytes.

// WriteAll renders the report trio (JSON, HTML, text) into dir and returns
// the paths written.
func WriteAll(report *schemas.RunReport, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}

	stem := filepath.Join(dir, "run-"+report.RunID)
	writers := []struct {
		path   string
		render func(*schemas.RunReport, io.Writer) error
	}{
		{stem + ".json", RenderJSON},
		{stem + ".html", RenderHTML},
		{stem + ".txt", RenderText},
	}

	paths := make([]string, 0, len(writers))
	for _, w := range writers {
		f, err := os.Create(w.path)
		if err != nil {
			return paths, fmt.Errorf("creating %s: %w", w.path, err)
		}
		renderErr := w.render(report, f)
		closeErr := f.Close()
		if renderErr != nil {
			return paths, fmt.Errorf("rendering %s: %w", w.path, renderErr)
		}
		if closeErr != nil {
			return paths, closeErr
		}
		paths = append(paths, w.path)
	}
	return paths, nil
}

// LoadJSON reads a previously written JSON report.
func LoadJSON(path string) (*schemas.RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	var report schemas.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}
	return &report, nil
}

// RenderJSON writes the machine-readable report.
func RenderJSON(report *schemas.RunReport, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// RenderText writes the terminal summary.
func RenderText(report *schemas.RunReport, w io.Writer) error {
	var b strings.Builder
	line := strings.Repeat("=", 60)

	fmt.Fprintf(&b, "%s\nRun %s\n%s\n", line, report.RunID, line)
	fmt.Fprintf(&b, "Target:   %s\n", report.Target)
	fmt.Fprintf(&b, "Mode:     %s\n", report.Mode)
	fmt.Fprintf(&b, "Started:  %s\n", report.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration: %s\n", report.Duration.Round(time.Millisecond))

	if report.Fatal != "" {
		fmt.Fprintf(&b, "\nFATAL: %s\n", report.Fatal)
	}

	if report.Tests.Total > 0 {
		fmt.Fprintf(&b, "\nScenarios: %d total, %d passed, %d failed, %d errored\n",
			report.Tests.Total, report.Tests.Passed, report.Tests.Failed, report.Tests.Errored)
		for _, r := range report.Results {
			fmt.Fprintf(&b, "  [%s] %s (%s)\n", r.Status, r.ScenarioName, r.Duration.Round(time.Millisecond))
			if r.Error != "" {
				fmt.Fprintf(&b, "      %s\n", r.Error)
			}
		}
	}

	if len(report.Issues) > 0 {
		fmt.Fprintf(&b, "\nIssues: %d", len(report.Issues))
		for _, sev := range []schemas.Severity{
			schemas.SeverityCritical, schemas.SeverityHigh, schemas.SeverityMedium, schemas.SeverityLow,
		} {
			if n := report.IssueCounts[sev]; n > 0 {
				fmt.Fprintf(&b, "  %s=%d", sev, n)
			}
		}
		b.WriteString("\n")
		for _, is := range report.Issues {
			fmt.Fprintf(&b, "  [%s] %s: %s\n", is.Severity, is.Category, is.Description)
			if is.Suggestion != "" {
				fmt.Fprintf(&b, "      suggestion: %s\n", is.Suggestion)
			}
		}
	}

	if len(report.Fixes) > 0 {
		resolved := 0
		for _, f := range report.Fixes {
			if f.Status == schemas.FixResolved {
				resolved++
			}
		}
		fmt.Fprintf(&b, "\nFixes: %d attempted, %d resolved\n", len(report.Fixes), resolved)
	}

	if acq := report.Acquisition; acq != nil {
		fmt.Fprintf(&b, "\nAcquisition: searched=%d filtered=%d downloaded=%d uploaded=%d failed=%d",
			acq.Searched, acq.Filtered, acq.Downloaded, acq.Uploaded, acq.Failed)
		if acq.FallbackUsed {
			b.WriteString(" (fallback source used)")
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Run Report {{.RunID}}</title>
<style>
body { font-family: -apple-system, sans-serif; margin: 2rem; color: #1a1a2e; }
h1 { font-size: 1.4rem; } h2 { font-size: 1.1rem; margin-top: 2rem; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 6px 10px; border-bottom: 1px solid #ddd; font-size: 0.9rem; }
.PASSED, .resolved { color: #1a7f37; } .FAILED, .critical { color: #cf222e; font-weight: 600; }
.ERROR { color: #cf222e; } .high { color: #bc4c00; } .medium { color: #9a6700; } .low { color: #57606a; }
.fatal { background: #ffebe9; padding: 1rem; border-radius: 6px; }
</style>
</head>
<body>
<h1>Run Report</h1>
<p>
Target <strong>{{.Target}}</strong> &middot; mode <strong>{{.Mode}}</strong> &middot;
started {{.StartedAt.Format "2006-01-02 15:04:05 MST"}} &middot; took {{.Duration}}
</p>
{{if .Fatal}}<p class="fatal">Fatal: {{.Fatal}}</p>{{end}}

{{if .Results}}
<h2>Scenarios ({{.Tests.Passed}}/{{.Tests.Total}} passed)</h2>
<table>
<tr><th>Scenario</th><th>Status</th><th>Steps</th><th>Duration</th><th>Detail</th></tr>
{{range .Results}}
<tr>
<td>{{.ScenarioName}}</td>
<td class="{{.Status}}">{{.Status}}</td>
<td>{{len .Steps}}</td>
<td>{{.Duration}}</td>
<td>{{.Error}}</td>
</tr>
{{end}}
</table>
{{end}}

{{if .Issues}}
<h2>Issues ({{len .Issues}})</h2>
<table>
<tr><th>Severity</th><th>Category</th><th>Description</th><th>Page</th><th>Fixable</th></tr>
{{range .Issues}}
<tr>
<td class="{{.Severity}}">{{.Severity}}</td>
<td>{{.Category}}</td>
<td>{{.Description}}</td>
<td>{{.PageURL}}</td>
<td>{{if .Fixable}}yes ({{printf "%.2f" .Confidence}}){{else}}no{{end}}</td>
</tr>
{{end}}
</table>
{{end}}

{{if .Fixes}}
<h2>Fixes</h2>
<table>
<tr><th>Issue</th><th>Status</th><th>Reverted</th><th>Detail</th></tr>
{{range .Fixes}}
<tr><td>{{.IssueID}}</td><td class="{{.Status}}">{{.Status}}</td><td>{{.Reverted}}</td><td>{{.Detail}}</td></tr>
{{end}}
</table>
{{end}}

{{if .Acquisition}}
<h2>Acquisition</h2>
<p>
searched {{.Acquisition.Searched}} &rarr; filtered {{.Acquisition.Filtered}} &rarr;
downloaded {{.Acquisition.Downloaded}} &rarr; uploaded {{.Acquisition.Uploaded}}
({{.Acquisition.Failed}} failed{{if .Acquisition.FallbackUsed}}, fallback source used{{end}})
</p>
{{end}}
</body>
</html>
`))

// RenderHTML writes the human-readable report.
func RenderHTML(report *schemas.RunReport, w io.Writer) error {
	return htmlTemplate.Execute(w, report)
}
