// File: internal/detect/network.go
package detect

import (
	"fmt"

	"github.com/uveworks/vigil/api/schemas"
)

// NetworkDetector flags failed requests: connection failures and 4xx/5xx
// responses observed during the scenario window.
type NetworkDetector struct{}

// NewNetworkDetector creates the network failure detector.
func NewNetworkDetector() *NetworkDetector { return &NetworkDetector{} }

func (d *NetworkDetector) Name() string { return "network" }

func (d *NetworkDetector) Detect(ev *schemas.Evidence) []schemas.Issue {
	var issues []schemas.Issue
	for _, entry := range ev.Network {
		var description string
		switch {
		case entry.Failed:
			reason := entry.FailureText
			if reason == "" {
				reason = "request never completed"
			}
			description = fmt.Sprintf("Request %s %s failed: %s", entry.Method, entry.URL, reason)
		case entry.Status >= 400:
			description = fmt.Sprintf("Request %s %s returned HTTP %d", entry.Method, entry.URL, entry.Status)
		default:
			continue
		}
		issues = append(issues, schemas.Issue{
			Category:    schemas.CategoryNetworkFailure,
			Severity:    schemas.SeverityHigh,
			Description: description,
			PageURL:     ev.PageURL,
			ElementRef:  entry.URL,
		})
	}
	return issues
}
