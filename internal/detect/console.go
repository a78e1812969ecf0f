// File: internal/detect/console.go
package detect

import (
	"fmt"
	"strings"

	"github.com/uveworks/vigil/api/schemas"
)

// ConsoleDetector flags JavaScript errors and uncaught exceptions. Known
// browser noise (missing favicons, devtools chatter, extensions) is filtered
// out before anything becomes an issue.
type ConsoleDetector struct {
	ignorable []string
}

// NewConsoleDetector creates the console detector with the given ignorable
// message substrings.
func NewConsoleDetector(ignorable []string) *ConsoleDetector {
	return &ConsoleDetector{ignorable: ignorable}
}

func (d *ConsoleDetector) Name() string { return "console" }

func (d *ConsoleDetector) Detect(ev *schemas.Evidence) []schemas.Issue {
	var issues []schemas.Issue
	for _, entry := range ev.Console {
		if !entry.IsError() || d.isIgnorable(entry.Text) {
			continue
		}
		issues = append(issues, schemas.Issue{
			Category:    schemas.CategoryConsoleError,
			Severity:    schemas.SeverityCritical,
			Description: fmt.Sprintf("JavaScript %s: %s", entry.Level, truncate(entry.Text, 300)),
			PageURL:     ev.PageURL,
			ElementRef:  entry.URL,
		})
	}
	return issues
}

func (d *ConsoleDetector) isIgnorable(text string) bool {
	for _, pattern := range d.ignorable {
		if strings.Contains(text, pattern) {
			return true
		}
	}
	return false
}
