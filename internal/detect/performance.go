// File: internal/detect/performance.go
package detect

import (
	"fmt"

	"github.com/uveworks/vigil/api/schemas"
	"github.com/uveworks/vigil/internal/config"
)

// PerformanceDetector flags pages whose paint and size metrics exceed the
// configured budgets.
type PerformanceDetector struct {
	maxLoadMs     float64
	maxLCPMs      float64
	maxDOMNodes   int
	maxTransferKB float64
}

// NewPerformanceDetector creates the performance budget detector.
func NewPerformanceDetector(cfg config.DetectConfig) *PerformanceDetector {
	return &PerformanceDetector{
		maxLoadMs:     cfg.MaxLoadTimeMs,
		maxLCPMs:      cfg.MaxLCPMs,
		maxDOMNodes:   cfg.MaxDOMNodes,
		maxTransferKB: cfg.MaxTransferKB,
	}
}

func (d *PerformanceDetector) Name() string { return "performance" }

func (d *PerformanceDetector) Detect(ev *schemas.Evidence) []schemas.Issue {
	var issues []schemas.Issue
	add := func(description string) {
		issues = append(issues, schemas.Issue{
			Category:    schemas.CategoryPerformance,
			Severity:    schemas.SeverityHigh,
			Description: description,
			PageURL:     ev.PageURL,
		})
	}

	perf := ev.Performance
	if d.maxLoadMs > 0 && perf.LoadTimeMs > d.maxLoadMs {
		add(fmt.Sprintf("Page load took %.0fms (budget %.0fms)", perf.LoadTimeMs, d.maxLoadMs))
	}
	if d.maxLCPMs > 0 && perf.LCPMs > d.maxLCPMs {
		add(fmt.Sprintf("Largest contentful paint at %.0fms (budget %.0fms)", perf.LCPMs, d.maxLCPMs))
	}
	if d.maxDOMNodes > 0 && perf.DOMNodes > d.maxDOMNodes {
		add(fmt.Sprintf("DOM has %d nodes (budget %d)", perf.DOMNodes, d.maxDOMNodes))
	}
	if d.maxTransferKB > 0 && perf.TransferSizeKB > d.maxTransferKB {
		add(fmt.Sprintf("Page transferred %.0fKB (budget %.0fKB)", perf.TransferSizeKB, d.maxTransferKB))
	}
	return issues
}
