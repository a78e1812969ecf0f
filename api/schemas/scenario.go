package schemas

import (
	"time"
)

// -- Scenario Schemas --

// Priority ranks how important a scenario is to the health of the target
// application. The values are lowercase to align with the YAML scenario files.
type Priority string

// Constants defining the standard scenario priorities.
const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// StepKind is the closed set of declarative actions a step may perform
// against the automation session. Every consumer switches exhaustively over
// these values; unknown kinds are rejected at load time, not at run time.
type StepKind string

// Constants for the supported step kinds.
const (
	StepNavigate   StepKind = "navigate"
	StepClick      StepKind = "click"
	StepTypeText   StepKind = "type_text"
	StepWaitFor    StepKind = "wait_for"
	StepEvaluate   StepKind = "evaluate"
	StepScreenshot StepKind = "screenshot"
	StepScrollTo   StepKind = "scroll_to"
	StepRefresh    StepKind = "refresh"
	StepAssert     StepKind = "assert"
)

// KnownStepKinds lists every valid step kind for load-time validation.
var KnownStepKinds = map[StepKind]bool{
	StepNavigate:   true,
	StepClick:      true,
	StepTypeText:   true,
	StepWaitFor:    true,
	StepEvaluate:   true,
	StepScreenshot: true,
	StepScrollTo:   true,
	StepRefresh:    true,
	StepAssert:     true,
}

// Step is one declarative operation within a scenario. Steps are immutable
// once loaded. Parameter values may contain {{base_url}} or {{name}}
// placeholders which are substituted from the scenario context at run time.
type Step struct {
	Kind StepKind `yaml:"action" json:"action"`
	Name string   `yaml:"name,omitempty" json:"name,omitempty"`

	// Target reference: a URL for navigate, a CSS selector otherwise.
	Target string `yaml:"target,omitempty" json:"target,omitempty"`

	// Text is the input for type_text and the expected text for wait_for.
	Text string `yaml:"text,omitempty" json:"text,omitempty"`

	// Script is a JavaScript expression for evaluate and assert steps.
	Script string `yaml:"script,omitempty" json:"script,omitempty"`

	// StoreAs names a scenario variable to hold the evaluate result.
	StoreAs string `yaml:"store_as,omitempty" json:"store_as,omitempty"`

	// Assert is the assertion predicate for assert steps: a JavaScript
	// expression that must evaluate to true.
	Assert string `yaml:"assert,omitempty" json:"assert,omitempty"`

	// Timeout overrides the configured per-step timeout when positive.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// ScenarioDefinition is a named, ordered sequence of steps exercising one
// behavior of the target application. Definitions are immutable once loaded;
// many are loaded per run.
type ScenarioDefinition struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Priority Priority `yaml:"priority" json:"priority"`
	Tags     []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Steps    []Step   `yaml:"steps" json:"steps"`
}

// -- Execution Schemas --

// StepStatus is the normalized outcome of executing one step.
type StepStatus string

// Constants for step statuses. StepSessionLost marks a step that failed
// because the automation session itself died; it is the one step outcome
// that must abort the whole run, not just the owning scenario.
const (
	StepOK              StepStatus = "ok"
	StepAssertionFailed StepStatus = "assertion_failed"
	StepTimeout         StepStatus = "timeout"
	StepError           StepStatus = "error"
	StepSessionLost     StepStatus = "session_lost"
)

// StepOutcome records the result of one executed step.
type StepOutcome struct {
	Index      int           `json:"index"`
	Kind       StepKind      `json:"action"`
	Name       string        `json:"name,omitempty"`
	Status     StepStatus    `json:"status"`
	Duration   time.Duration `json:"duration"`
	Detail     string        `json:"detail,omitempty"`
	Screenshot string        `json:"screenshot,omitempty"`
}

// Failed reports whether the outcome should stop the remaining steps of the
// owning scenario.
func (o StepOutcome) Failed() bool {
	return o.Status != StepOK
}

// ExecutionStatus is the terminal state of one scenario run.
// A scenario moves PENDING -> RUNNING -> {PASSED | FAILED | ERROR}.
type ExecutionStatus string

// Constants for execution statuses.
const (
	ExecutionPending ExecutionStatus = "PENDING"
	ExecutionRunning ExecutionStatus = "RUNNING"
	ExecutionPassed  ExecutionStatus = "PASSED"
	ExecutionFailed  ExecutionStatus = "FAILED"
	ExecutionError   ExecutionStatus = "ERROR"
)

// ExecutionResult is the immutable record of one scenario run, including the
// evidence bundle captured over the whole scenario window.
type ExecutionResult struct {
	ScenarioID   string          `json:"scenario_id"`
	ScenarioName string          `json:"scenario_name"`
	Status       ExecutionStatus `json:"status"`
	Duration     time.Duration   `json:"duration"`
	Steps        []StepOutcome   `json:"steps"`
	Evidence     *Evidence       `json:"-"`
	Error        string          `json:"error,omitempty"`

	// SessionLost is set when the session died during this scenario. The
	// orchestrator treats it as ErrSessionUnavailable and aborts the run.
	SessionLost bool `json:"session_lost,omitempty"`
}
