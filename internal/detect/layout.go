// File: internal/detect/layout.go
package detect

import (
	"fmt"

	"github.com/uveworks/vigil/api/schemas"
)

// LayoutDetector flags layout anomalies sampled from the live DOM: horizontal
// overflow, clipped text, zero-size visible elements and overlapping fixed
// elements.
type LayoutDetector struct{}

// NewLayoutDetector creates the layout audit detector.
func NewLayoutDetector() *LayoutDetector { return &LayoutDetector{} }

func (d *LayoutDetector) Name() string { return "layout" }

func (d *LayoutDetector) Detect(ev *schemas.Evidence) []schemas.Issue {
	var issues []schemas.Issue
	add := func(description string) {
		issues = append(issues, schemas.Issue{
			Category:    schemas.CategoryLayoutProblem,
			Severity:    schemas.SeverityMedium,
			Description: description,
			PageURL:     ev.PageURL,
		})
	}

	if ev.Layout.HorizontalOverflow {
		add("Page content overflows the viewport horizontally")
	}
	if n := ev.Layout.ClippedElements; n > 0 {
		add(fmt.Sprintf("%d elements have text clipped by overflow:hidden", n))
	}
	if n := ev.Layout.ZeroSizeVisible; n > 0 {
		add(fmt.Sprintf("%d visible elements render with zero size", n))
	}
	if n := ev.Layout.OverlappingFixed; n > 0 {
		add(fmt.Sprintf("%d pairs of fixed-position elements overlap", n))
	}
	return issues
}
