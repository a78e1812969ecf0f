package schemas

import "time"

// -- Run Report Schemas --

// RunMode selects which workflows a run executes.
type RunMode string

// Constants for the run modes.
const (
	ModeTest    RunMode = "test"
	ModeAcquire RunMode = "acquire"
	ModeFull    RunMode = "full"
)

// TestSummary aggregates scenario outcomes for one run.
type TestSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
}

// RunReport is the single durable artifact of a run. It is built once at the
// end by the aggregator (one writer) and never mutated afterwards. Every
// human-readable rendering is a pure function of this value.
type RunReport struct {
	RunID     string        `json:"run_id"`
	Target    string        `json:"target"`
	Mode      RunMode       `json:"mode"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Tests   TestSummary       `json:"tests"`
	Results []ExecutionResult `json:"results,omitempty"`
	Issues  []Issue           `json:"issues"`
	Fixes   []FixOutcome      `json:"fixes,omitempty"`

	// IssueCounts maps severity to the number of issues at that severity.
	IssueCounts map[Severity]int `json:"issue_counts"`

	Acquisition *AcquisitionSummary `json:"acquisition,omitempty"`

	// Fatal records a run-aborting error (session unavailable). Results
	// completed before the abort are retained above.
	Fatal string `json:"fatal,omitempty"`
}

// MaxSeverity returns the most severe issue level present in the report, or
// an empty string when there are no issues.
func (r *RunReport) MaxSeverity() Severity {
	var best Severity
	rank := 99
	for _, is := range r.Issues {
		if sr := SeverityRank(is.Severity); sr < rank {
			rank = sr
			best = is.Severity
		}
	}
	return best
}
