package schemas

import (
	"crypto/sha256"
	"encoding/hex"
)

// -- Issue Schemas --

// Severity represents the severity level of a detected issue. The values are
// lowercase to align with the rule table and the report output.
type Severity string

// Constants defining the standard severity levels.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// SeverityRank orders severities from most to least severe. Unknown values
// rank below low.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// IssueCategory classifies a detected issue by the detector that produced it.
type IssueCategory string

// Constants for the issue categories.
const (
	CategoryConsoleError   IssueCategory = "console-error"
	CategoryNetworkFailure IssueCategory = "network-failure"
	CategoryBrokenImage    IssueCategory = "broken-image"
	CategoryMissingAltText IssueCategory = "missing-alt-text"
	CategoryLayoutProblem  IssueCategory = "layout-problem"
	CategoryPerformance    IssueCategory = "performance"
	CategoryAccessibility  IssueCategory = "accessibility"
)

// PatchKind enumerates the mechanical patch operations the fix applier knows
// how to perform against the live DOM.
type PatchKind string

// Constants for the supported patch operations. SetAttribute is reversible
// (the previous value is captured during application); InjectLabel is not.
const (
	PatchSetAttribute PatchKind = "set_attribute"
	PatchInjectLabel  PatchKind = "inject_label"
)

// FixDescriptor describes one mechanical fix: the element to patch, the
// patch operation, and a narrow verification predicate. A descriptor exists
// only on issues with Fixable=true.
type FixDescriptor struct {
	Selector string    `json:"selector"`
	Op       PatchKind `json:"op"`

	// Attribute and Value parameterize the patch operation.
	Attribute string `json:"attribute,omitempty"`
	Value     string `json:"value,omitempty"`

	// Verify is a JavaScript expression that must evaluate to true after
	// the patch is applied.
	Verify string `json:"verify"`
}

// Reversible reports whether the patch operation supports inverse
// application.
func (d FixDescriptor) Reversible() bool {
	return d.Op == PatchSetAttribute
}

// Issue is one problem detected from a scenario's evidence. Issues are
// created by a detector, enriched exactly once by the pattern matcher, and
// never duplicated: two issues with the same fingerprint are the same issue.
type Issue struct {
	ID          string        `json:"id"`
	Category    IssueCategory `json:"category"`
	Severity    Severity      `json:"severity"`
	Description string        `json:"description"`

	// Location of the problem: the page URL plus an element reference.
	PageURL    string `json:"page_url"`
	ElementRef string `json:"element_ref,omitempty"`

	// EvidenceRef points at the scenario whose evidence produced this issue.
	EvidenceRef string `json:"evidence_ref,omitempty"`

	// Confidence is how certain the system is that the suggested fix is
	// safe to auto-apply. Set exactly once by the pattern matcher and never
	// recomputed.
	Confidence float64 `json:"confidence"`

	Fixable    bool           `json:"fixable"`
	Fix        *FixDescriptor `json:"fix,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
}

// Fingerprint returns the dedup key for the issue: a hash over
// category, location and description.
func (i Issue) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(i.Category))
	h.Write([]byte{0})
	h.Write([]byte(i.PageURL))
	h.Write([]byte{0})
	h.Write([]byte(i.ElementRef))
	h.Write([]byte{0})
	h.Write([]byte(i.Description))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// FixStatus is the terminal state of one fix attempt.
type FixStatus string

// Constants for fix statuses. An unverified fix is reported as attempted,
// never silently marked resolved.
const (
	FixResolved    FixStatus = "resolved"
	FixUnresolved  FixStatus = "attempted_unresolved"
	FixSkipped     FixStatus = "skipped"
	FixRevertError FixStatus = "revert_error"
)

// FixOutcome records one fix attempt against a single issue.
type FixOutcome struct {
	IssueID  string    `json:"issue_id"`
	Status   FixStatus `json:"status"`
	Detail   string    `json:"detail,omitempty"`
	Reverted bool      `json:"reverted"`
}
