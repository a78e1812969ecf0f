// File: internal/scenario/scenario_test.go
package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uveworks/vigil/api/schemas"
)

// fakeSession is an in-memory schemas.Session. Scripted responses are keyed
// by a substring of the call; anything unscripted succeeds.
type fakeSession struct {
	calls     []string
	failWith  map[string]error
	evalReply map[string]any
	console   []schemas.ConsoleEntry
	network   []schemas.NetworkEntry
	resets    int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		failWith:  make(map[string]error),
		evalReply: make(map[string]any),
	}
}

func (f *fakeSession) record(call string) error {
	f.calls = append(f.calls, call)
	for sub, err := range f.failWith {
		if strings.Contains(call, sub) {
			return err
		}
	}
	return nil
}

func (f *fakeSession) ID() string { return "fake-session" }
func (f *fakeSession) Navigate(_ context.Context, url string) error {
	return f.record("navigate " + url)
}
func (f *fakeSession) Click(_ context.Context, sel string) error { return f.record("click " + sel) }
func (f *fakeSession) TypeText(_ context.Context, sel, text string) error {
	return f.record("type " + sel + " " + text)
}
func (f *fakeSession) WaitVisible(_ context.Context, sel string, _ time.Duration) error {
	return f.record("wait " + sel)
}
func (f *fakeSession) Evaluate(_ context.Context, script string, out any) error {
	if err := f.record("evaluate " + script); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	for sub, reply := range f.evalReply {
		if strings.Contains(script, sub) {
			data, err := json.Marshal(reply)
			if err != nil {
				return err
			}
			return json.Unmarshal(data, out)
		}
	}
	return nil
}
func (f *fakeSession) Screenshot(_ context.Context) ([]byte, error) {
	if err := f.record("screenshot"); err != nil {
		return nil, err
	}
	return []byte("png-bytes"), nil
}
func (f *fakeSession) ScrollTo(_ context.Context, sel string) error {
	return f.record("scroll " + sel)
}
func (f *fakeSession) Reload(_ context.Context) error { return f.record("reload") }
func (f *fakeSession) SetFiles(_ context.Context, sel string, paths []string) error {
	return f.record(fmt.Sprintf("setfiles %s %v", sel, paths))
}
func (f *fakeSession) ConsoleEvents() []schemas.ConsoleEntry { return f.console }
func (f *fakeSession) NetworkEvents() []schemas.NetworkEntry { return f.network }
func (f *fakeSession) ResetEvidence()                        { f.resets++ }
func (f *fakeSession) Close(context.Context) error           { return nil }

var _ schemas.Session = (*fakeSession)(nil)

func testRunner(baseURL string) *Runner {
	logger := zap.NewNop()
	return NewRunner(logger, NewExecutor(logger, 5*time.Second), NewCollector(logger), baseURL, "")
}

// -- Loader Tests --

func TestParseScenarios(t *testing.T) {
	yaml := `
scenarios:
  - id: login-flow
    name: Login works
    priority: critical
    tags: [auth, smoke]
    steps:
      - action: navigate
        target: "{{base_url}}/login"
      - action: type_text
        target: "#email"
        text: "user@example.com"
      - action: click
        target: "button[type=submit]"
      - action: wait_for
        target: ".dashboard"
`
	scenarios, err := ParseScenarios([]byte(yaml))
	require.NoError(t, err)
	require.Len(t, scenarios, 1)

	sc := scenarios[0]
	assert.Equal(t, "login-flow", sc.ID)
	assert.Equal(t, schemas.PriorityCritical, sc.Priority)
	assert.Equal(t, []string{"auth", "smoke"}, sc.Tags)
	require.Len(t, sc.Steps, 4)
	assert.Equal(t, schemas.StepNavigate, sc.Steps[0].Kind)
	assert.Equal(t, "{{base_url}}/login", sc.Steps[0].Target)
}

func TestParseScenariosValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown action",
			yaml: "scenarios:\n  - id: a\n    steps:\n      - action: teleport\n        target: x",
			want: "unknown action",
		},
		{
			name: "navigate without target",
			yaml: "scenarios:\n  - id: a\n    steps:\n      - action: navigate",
			want: "navigate requires a target",
		},
		{
			name: "assert without expression",
			yaml: "scenarios:\n  - id: a\n    steps:\n      - action: assert",
			want: "assert requires an expression",
		},
		{
			name: "duplicate ids",
			yaml: "scenarios:\n  - id: a\n    steps:\n      - action: refresh\n  - id: a\n    steps:\n      - action: refresh",
			want: "duplicate scenario id",
		},
		{
			name: "no scenarios",
			yaml: "scenarios: []",
			want: "no scenarios",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseScenarios([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParseScenariosDefaultPriority(t *testing.T) {
	yaml := "scenarios:\n  - id: a\n    steps:\n      - action: refresh"
	scenarios, err := ParseScenarios([]byte(yaml))
	require.NoError(t, err)
	assert.Equal(t, schemas.PriorityMedium, scenarios[0].Priority)
}

// -- Substitution Tests --

func TestSubstitute(t *testing.T) {
	vars := map[string]string{"base_url": "https://app.test", "user": "alice"}

	assert.Equal(t, "https://app.test/login", Substitute("{{base_url}}/login", vars))
	assert.Equal(t, "hello alice", Substitute("hello {{ user }}", vars))
	// Unknown placeholders stay intact.
	assert.Equal(t, "{{missing}}", Substitute("{{missing}}", vars))
	// No placeholders, no work.
	assert.Equal(t, "plain", Substitute("plain", vars))
}

// -- Executor Tests --

func TestExecutorAssertOutcomes(t *testing.T) {
	exec := NewExecutor(zap.NewNop(), time.Second)

	t.Run("passing assertion", func(t *testing.T) {
		sess := newFakeSession()
		sess.evalReply["document.title"] = true
		out := exec.Execute(context.Background(), sess, 0,
			schemas.Step{Kind: schemas.StepAssert, Assert: `document.title === "Shop"`}, map[string]string{})
		assert.Equal(t, schemas.StepOK, out.Status)
	})

	t.Run("failing assertion", func(t *testing.T) {
		sess := newFakeSession()
		sess.evalReply["document.title"] = false
		out := exec.Execute(context.Background(), sess, 0,
			schemas.Step{Kind: schemas.StepAssert, Assert: `document.title === "Shop"`}, map[string]string{})
		assert.Equal(t, schemas.StepAssertionFailed, out.Status)
		assert.Contains(t, out.Detail, "document.title")
	})
}

func TestExecutorTimeoutOutcome(t *testing.T) {
	exec := NewExecutor(zap.NewNop(), time.Second)
	sess := newFakeSession()
	sess.failWith["wait"] = context.DeadlineExceeded

	out := exec.Execute(context.Background(), sess, 2,
		schemas.Step{Kind: schemas.StepWaitFor, Target: ".spinner"}, map[string]string{})
	assert.Equal(t, schemas.StepTimeout, out.Status)
	assert.Contains(t, out.Detail, "timeout")
}

func TestExecutorErrorOutcome(t *testing.T) {
	exec := NewExecutor(zap.NewNop(), time.Second)
	sess := newFakeSession()
	sess.failWith["click"] = errors.New("node not found")

	out := exec.Execute(context.Background(), sess, 1,
		schemas.Step{Kind: schemas.StepClick, Target: "#gone"}, map[string]string{})
	assert.Equal(t, schemas.StepError, out.Status)
	assert.Contains(t, out.Detail, "node not found")
}

func TestExecutorStoreAs(t *testing.T) {
	exec := NewExecutor(zap.NewNop(), time.Second)
	sess := newFakeSession()
	sess.evalReply["cartCount"] = 3

	vars := map[string]string{}
	out := exec.Execute(context.Background(), sess, 0,
		schemas.Step{Kind: schemas.StepEvaluate, Script: "cartCount()", StoreAs: "count"}, vars)
	require.Equal(t, schemas.StepOK, out.Status)
	assert.Equal(t, "3", vars["count"])

	// A later step can reference the stored variable.
	out = exec.Execute(context.Background(), sess, 1,
		schemas.Step{Kind: schemas.StepTypeText, Target: "#qty", Text: "{{count}}"}, vars)
	require.Equal(t, schemas.StepOK, out.Status)
	assert.Contains(t, sess.calls, "type #qty 3")
}

func TestExecutorDeadSessionOutcome(t *testing.T) {
	exec := NewExecutor(zap.NewNop(), time.Second)
	sess := newFakeSession()
	sess.failWith["navigate"] = fmt.Errorf("running action: %w", schemas.ErrSessionUnavailable)

	out := exec.Execute(context.Background(), sess, 0,
		schemas.Step{Kind: schemas.StepNavigate, Target: "https://app.test/"}, map[string]string{})
	assert.Equal(t, schemas.StepSessionLost, out.Status)
	assert.Contains(t, out.Detail, "session unavailable")
}

func TestExecutorScreenshotCapturesBytes(t *testing.T) {
	exec := NewExecutor(zap.NewNop(), time.Second)
	sess := newFakeSession()

	out := exec.Execute(context.Background(), sess, 0,
		schemas.Step{Kind: schemas.StepScreenshot}, map[string]string{})
	require.Equal(t, schemas.StepOK, out.Status)
	assert.NotEmpty(t, out.Screenshot)
}

// -- Runner Tests --

func TestRunnerHappyPath(t *testing.T) {
	sess := newFakeSession()
	sess.evalReply["location.href"] = "https://app.test/dashboard"
	runner := testRunner("https://app.test")

	sc := schemas.ScenarioDefinition{
		ID:   "smoke",
		Name: "Smoke",
		Steps: []schemas.Step{
			{Kind: schemas.StepNavigate, Target: "{{base_url}}/"},
			{Kind: schemas.StepClick, Target: "#login"},
			{Kind: schemas.StepWaitFor, Target: ".dashboard"},
		},
	}

	result := runner.Run(context.Background(), sess, sc)

	assert.Equal(t, schemas.ExecutionPassed, result.Status)
	assert.Len(t, result.Steps, 3)
	assert.Equal(t, 1, sess.resets, "evidence window must be reset before the first step")
	require.NotNil(t, result.Evidence)
	assert.Equal(t, "https://app.test/dashboard", result.Evidence.PageURL)
	assert.Contains(t, sess.calls, "navigate https://app.test/")
}

func TestRunnerStopsAtFirstFailure(t *testing.T) {
	sess := newFakeSession()
	sess.failWith["click #broken"] = errors.New("node not found")
	runner := testRunner("https://app.test")

	sc := schemas.ScenarioDefinition{
		ID: "broken",
		Steps: []schemas.Step{
			{Kind: schemas.StepNavigate, Target: "{{base_url}}/"},
			{Kind: schemas.StepClick, Target: "#broken"},
			{Kind: schemas.StepClick, Target: "#never-reached"},
		},
	}

	result := runner.Run(context.Background(), sess, sc)

	assert.Equal(t, schemas.ExecutionError, result.Status)
	assert.Len(t, result.Steps, 2, "remaining steps must not run after a failure")
	assert.NotContains(t, sess.calls, "click #never-reached")
	// Evidence up to the failure is still collected.
	assert.NotNil(t, result.Evidence)
}

func TestRunnerAssertionFailureIsFailed(t *testing.T) {
	sess := newFakeSession()
	sess.evalReply["Boolean"] = false
	runner := testRunner("https://app.test")

	sc := schemas.ScenarioDefinition{
		ID: "assert-fail",
		Steps: []schemas.Step{
			{Kind: schemas.StepAssert, Assert: "false"},
		},
	}

	result := runner.Run(context.Background(), sess, sc)
	assert.Equal(t, schemas.ExecutionFailed, result.Status)
}

func TestRunnerFlagsDeadSession(t *testing.T) {
	sess := newFakeSession()
	sess.failWith["click"] = fmt.Errorf("running action: %w", schemas.ErrSessionUnavailable)
	runner := testRunner("https://app.test")

	sc := schemas.ScenarioDefinition{
		ID: "dead-tab",
		Steps: []schemas.Step{
			{Kind: schemas.StepNavigate, Target: "{{base_url}}/"},
			{Kind: schemas.StepClick, Target: "#buy"},
			{Kind: schemas.StepClick, Target: "#never-reached"},
		},
	}

	result := runner.Run(context.Background(), sess, sc)

	assert.Equal(t, schemas.ExecutionError, result.Status)
	assert.True(t, result.SessionLost, "session death must surface past the scenario result")
	require.Len(t, result.Steps, 2)
	assert.Equal(t, schemas.StepSessionLost, result.Steps[1].Status)
}

func TestRunnerPersistsScreenshots(t *testing.T) {
	dir := t.TempDir()
	logger := zap.NewNop()
	runner := NewRunner(logger, NewExecutor(logger, time.Second), NewCollector(logger), "https://app.test", dir)
	sess := newFakeSession()

	sc := schemas.ScenarioDefinition{
		ID: "shots",
		Steps: []schemas.Step{
			{Kind: schemas.StepRefresh},
			{Kind: schemas.StepScreenshot},
		},
	}

	result := runner.Run(context.Background(), sess, sc)
	require.Equal(t, schemas.ExecutionPassed, result.Status)

	shot := result.Steps[1].Screenshot
	assert.Equal(t, filepath.Join(dir, "shots-step1.png"), shot)
	data, err := os.ReadFile(shot)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	require.NotNil(t, result.Evidence)
	assert.Equal(t, []string{shot}, result.Evidence.Screenshots)
}

func TestRunnerCollectsHarvestedEvidence(t *testing.T) {
	sess := newFakeSession()
	sess.console = []schemas.ConsoleEntry{{Level: "error", Text: "boom"}}
	sess.network = []schemas.NetworkEntry{{URL: "https://app.test/api", Status: 500}}
	runner := testRunner("https://app.test")

	sc := schemas.ScenarioDefinition{
		ID:    "ev",
		Steps: []schemas.Step{{Kind: schemas.StepRefresh}},
	}

	result := runner.Run(context.Background(), sess, sc)
	require.NotNil(t, result.Evidence)
	assert.Len(t, result.Evidence.Console, 1)
	assert.Len(t, result.Evidence.Network, 1)
}
