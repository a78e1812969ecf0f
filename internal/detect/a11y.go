// File: internal/detect/a11y.go
package detect

import (
	"fmt"

	"github.com/uveworks/vigil/api/schemas"
)

// AccessibilityDetector flags interactive controls that carry no accessible
// name (no label element, no visible text, no aria-label) and text elements
// whose contrast against their background is below the WCAG AA ratio.
type AccessibilityDetector struct{}

// NewAccessibilityDetector creates the accessibility audit detector.
func NewAccessibilityDetector() *AccessibilityDetector { return &AccessibilityDetector{} }

func (d *AccessibilityDetector) Name() string { return "accessibility" }

func (d *AccessibilityDetector) Detect(ev *schemas.Evidence) []schemas.Issue {
	var issues []schemas.Issue
	for _, ctrl := range ev.Controls {
		if ctrl.HasLabel || ctrl.HasText || ctrl.AriaLabel != "" {
			continue
		}
		// Unnamed links are covered by the text check; submit inputs carry a
		// default label from the browser.
		if ctrl.Tag == "input" && ctrl.Type == "submit" {
			continue
		}

		ref := ctrl.Selector
		if ctrl.ID != "" {
			ref = "#" + ctrl.ID
		}
		label := ctrl.Tag
		if ctrl.Type != "" {
			label = fmt.Sprintf("%s[type=%s]", ctrl.Tag, ctrl.Type)
		}
		issues = append(issues, schemas.Issue{
			Category:    schemas.CategoryAccessibility,
			Severity:    schemas.SeverityLow,
			Description: fmt.Sprintf("Control %s has no accessible name", label),
			PageURL:     ev.PageURL,
			ElementRef:  ref,
		})
	}

	for _, tc := range ev.Contrast {
		issues = append(issues, schemas.Issue{
			Category:    schemas.CategoryAccessibility,
			Severity:    schemas.SeverityLow,
			Description: fmt.Sprintf("Text contrast ratio %.1f:1 is below 4.5:1", tc.Ratio),
			PageURL:     ev.PageURL,
			ElementRef:  tc.Selector,
		})
	}
	return issues
}
