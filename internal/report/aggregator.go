// File: internal/report/aggregator.go
package report

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uveworks/vigil/api/schemas"
)

// event is one message into the aggregator's single writer goroutine.
type event struct {
	result      *schemas.ExecutionResult
	issues      []schemas.Issue
	fix         *schemas.FixOutcome
	acquisition *schemas.AcquisitionSummary
	fatal       string
}

// Aggregator assembles the run report. All writes flow through one goroutine
// over a channel, so producers on any goroutine can report without locks and
// the final report is built by exactly one writer.
type Aggregator struct {
	logger *zap.Logger
	events chan event
	done   chan struct{}

	report schemas.RunReport
}

// NewAggregator starts the report writer for one run.
func NewAggregator(target string, mode schemas.RunMode, logger *zap.Logger) *Aggregator {
	a := &Aggregator{
		logger: logger.Named("report"),
		events: make(chan event, 64),
		done:   make(chan struct{}),
		report: schemas.RunReport{
			RunID:       uuid.New().String(),
			Target:      target,
			Mode:        mode,
			StartedAt:   time.Now().UTC(),
			Issues:      make([]schemas.Issue, 0),
			IssueCounts: make(map[schemas.Severity]int),
		},
	}
	go a.loop()
	return a
}

func (a *Aggregator) loop() {
	defer close(a.done)
	for ev := range a.events {
		switch {
		case ev.result != nil:
			a.report.Results = append(a.report.Results, *ev.result)
			a.report.Tests.Total++
			switch ev.result.Status {
			case schemas.ExecutionPassed:
				a.report.Tests.Passed++
			case schemas.ExecutionFailed:
				a.report.Tests.Failed++
			default:
				a.report.Tests.Errored++
			}
		case ev.issues != nil:
			for _, is := range ev.issues {
				a.report.Issues = append(a.report.Issues, is)
				a.report.IssueCounts[is.Severity]++
			}
		case ev.fix != nil:
			a.report.Fixes = append(a.report.Fixes, *ev.fix)
		case ev.acquisition != nil:
			a.report.Acquisition = ev.acquisition
		case ev.fatal != "":
			a.report.Fatal = ev.fatal
		}
	}
}

// AddResult records one scenario outcome.
func (a *Aggregator) AddResult(result schemas.ExecutionResult) {
	a.events <- event{result: &result}
}

// AddIssues records detected issues.
func (a *Aggregator) AddIssues(issues []schemas.Issue) {
	if len(issues) == 0 {
		return
	}
	a.events <- event{issues: issues}
}

// AddFix records one fix outcome.
func (a *Aggregator) AddFix(outcome schemas.FixOutcome) {
	a.events <- event{fix: &outcome}
}

// SetAcquisition records the acquisition summary.
func (a *Aggregator) SetAcquisition(summary *schemas.AcquisitionSummary) {
	a.events <- event{acquisition: summary}
}

// SetFatal records a run-aborting error.
func (a *Aggregator) SetFatal(message string) {
	a.events <- event{fatal: message}
}

// Finalize stops the writer and returns the completed, immutable report.
// Must be called exactly once, after all producers are done.
func (a *Aggregator) Finalize() *schemas.RunReport {
	close(a.events)
	<-a.done
	a.report.Duration = time.Since(a.report.StartedAt)
	a.logger.Info("Run report finalized.",
		zap.String("run_id", a.report.RunID),
		zap.Int("scenarios", a.report.Tests.Total),
		zap.Int("issues", len(a.report.Issues)))
	return &a.report
}
