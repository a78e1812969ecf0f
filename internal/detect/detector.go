// File: internal/detect/detector.go
package detect

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uveworks/vigil/api/schemas"
	"github.com/uveworks/vigil/internal/config"
)

// Detector inspects one evidence bundle for one category of problem.
// Implementations must be pure: identical evidence always yields an
// identical issue set, and the bundle is never mutated.
type Detector interface {
	Name() string
	Detect(ev *schemas.Evidence) []schemas.Issue
}

// Engine fans the evidence bundle out to every registered detector. A
// crashing detector is skipped for the current evidence only; the others
// still report.
type Engine struct {
	logger    *zap.Logger
	detectors []Detector
}

// NewEngine creates a detection engine with the standard detector set.
func NewEngine(cfg config.DetectConfig, logger *zap.Logger) *Engine {
	return &Engine{
		logger: logger.Named("detect"),
		detectors: []Detector{
			NewConsoleDetector(cfg.IgnorableConsolePatterns),
			NewNetworkDetector(),
			NewImageDetector(),
			NewAccessibilityDetector(),
			NewLayoutDetector(),
			NewPerformanceDetector(cfg),
		},
	}
}

// Detectors returns the registered detectors.
func (e *Engine) Detectors() []Detector { return e.detectors }

// Run executes every detector against the evidence, deduplicates by
// fingerprint, and returns the issues in a deterministic order. The
// evidenceRef ties each issue back to the scenario that produced it.
func (e *Engine) Run(ev *schemas.Evidence, evidenceRef string) []schemas.Issue {
	var (
		mu  sync.Mutex
		all []schemas.Issue
	)

	var g errgroup.Group
	for _, d := range e.detectors {
		d := d
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Warn("Detector panicked; skipping for this evidence.",
						zap.String("detector", d.Name()),
						zap.Any("panic", r))
				}
			}()
			found := d.Detect(ev)
			mu.Lock()
			all = append(all, found...)
			mu.Unlock()
			return nil
		})
	}
	// Detectors never return errors; panics are absorbed above.
	_ = g.Wait()

	return finalize(all, evidenceRef)
}

// finalize deduplicates by fingerprint and sorts by severity, then category,
// then description so the output order never depends on scheduling.
func finalize(issues []schemas.Issue, evidenceRef string) []schemas.Issue {
	seen := make(map[string]bool, len(issues))
	out := make([]schemas.Issue, 0, len(issues))
	for _, is := range issues {
		fp := is.Fingerprint()
		if seen[fp] {
			continue
		}
		seen[fp] = true
		is.EvidenceRef = evidenceRef
		out = append(out, is)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ra, rb := schemas.SeverityRank(a.Severity), schemas.SeverityRank(b.Severity); ra != rb {
			return ra < rb
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.PageURL != b.PageURL {
			return a.PageURL < b.PageURL
		}
		return a.Description < b.Description
	})

	// IDs are assigned after sorting so they are stable within a report but
	// never participate in dedup.
	for i := range out {
		out[i].ID = uuid.New().String()
	}
	return out
}

// truncate keeps descriptions readable in reports and logs.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return fmt.Sprintf("%s...", s[:max])
}
