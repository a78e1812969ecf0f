// File: internal/report/report_test.go
package report

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/uveworks/vigil/api/schemas"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAggregatorBuildsReport(t *testing.T) {
	agg := NewAggregator("https://app.test", schemas.ModeFull, zap.NewNop())

	agg.AddResult(schemas.ExecutionResult{
		ScenarioID: "s1", ScenarioName: "Login", Status: schemas.ExecutionPassed,
	})
	agg.AddResult(schemas.ExecutionResult{
		ScenarioID: "s2", ScenarioName: "Checkout", Status: schemas.ExecutionFailed, Error: "assert failed",
	})
	agg.AddResult(schemas.ExecutionResult{
		ScenarioID: "s3", ScenarioName: "Search", Status: schemas.ExecutionError,
	})
	agg.AddIssues([]schemas.Issue{
		{ID: "i1", Category: schemas.CategoryConsoleError, Severity: schemas.SeverityCritical},
		{ID: "i2", Category: schemas.CategoryMissingAltText, Severity: schemas.SeverityLow},
	})
	agg.AddFix(schemas.FixOutcome{IssueID: "i2", Status: schemas.FixResolved})
	agg.SetAcquisition(&schemas.AcquisitionSummary{Searched: 5, Filtered: 3, Downloaded: 3, Uploaded: 2, Failed: 1})

	report := agg.Finalize()

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, schemas.ModeFull, report.Mode)
	assert.Equal(t, schemas.TestSummary{Total: 3, Passed: 1, Failed: 1, Errored: 1}, report.Tests)
	assert.Len(t, report.Issues, 2)
	assert.Equal(t, 1, report.IssueCounts[schemas.SeverityCritical])
	assert.Equal(t, 1, report.IssueCounts[schemas.SeverityLow])
	assert.Len(t, report.Fixes, 1)
	require.NotNil(t, report.Acquisition)
	assert.Equal(t, 5, report.Acquisition.Searched)
	assert.Equal(t, schemas.SeverityCritical, report.MaxSeverity())
}

func TestAggregatorConcurrentProducers(t *testing.T) {
	agg := NewAggregator("https://app.test", schemas.ModeTest, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agg.AddResult(schemas.ExecutionResult{Status: schemas.ExecutionPassed})
			agg.AddIssues([]schemas.Issue{{Severity: schemas.SeverityMedium}})
		}()
	}
	wg.Wait()

	report := agg.Finalize()
	assert.Equal(t, 20, report.Tests.Total)
	assert.Equal(t, 20, report.Tests.Passed)
	assert.Len(t, report.Issues, 20)
	assert.Equal(t, 20, report.IssueCounts[schemas.SeverityMedium])
}

func TestAggregatorFatal(t *testing.T) {
	agg := NewAggregator("https://app.test", schemas.ModeAcquire, zap.NewNop())
	agg.AddResult(schemas.ExecutionResult{Status: schemas.ExecutionPassed})
	agg.SetFatal("automation session unavailable")

	report := agg.Finalize()
	assert.Equal(t, "automation session unavailable", report.Fatal)
	assert.Equal(t, 1, report.Tests.Total, "results before the abort are retained")
}

func sampleReport() *schemas.RunReport {
	return &schemas.RunReport{
		RunID:     "run-123",
		Target:    "https://app.test",
		Mode:      schemas.ModeFull,
		StartedAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		Duration:  90 * time.Second,
		Tests:     schemas.TestSummary{Total: 2, Passed: 1, Failed: 1},
		Results: []schemas.ExecutionResult{
			{ScenarioID: "s1", ScenarioName: "Login", Status: schemas.ExecutionPassed, Duration: time.Second},
			{ScenarioID: "s2", ScenarioName: "Checkout", Status: schemas.ExecutionFailed, Error: "button missing"},
		},
		Issues: []schemas.Issue{
			{ID: "i1", Category: schemas.CategoryConsoleError, Severity: schemas.SeverityCritical,
				Description: "Uncaught TypeError", PageURL: "https://app.test/checkout"},
		},
		IssueCounts: map[schemas.Severity]int{schemas.SeverityCritical: 1},
		Fixes: []schemas.FixOutcome{
			{IssueID: "i1", Status: schemas.FixSkipped, Detail: "confidence 0.40 below threshold 0.95"},
		},
		Acquisition: &schemas.AcquisitionSummary{
			Searched: 5, Filtered: 3, Downloaded: 3, Uploaded: 2, Failed: 1, FallbackUsed: true,
		},
	}
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderText(sampleReport(), &buf))

	out := buf.String()
	assert.Contains(t, out, "run-123")
	assert.Contains(t, out, "Scenarios: 2 total, 1 passed, 1 failed")
	assert.Contains(t, out, "[FAILED] Checkout")
	assert.Contains(t, out, "critical=1")
	assert.Contains(t, out, "Uncaught TypeError")
	assert.Contains(t, out, "searched=5 filtered=3 downloaded=3 uploaded=2 failed=1")
	assert.Contains(t, out, "fallback source used")
}

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderHTML(sampleReport(), &buf))

	out := buf.String()
	assert.Contains(t, out, "<title>Run Report run-123</title>")
	assert.Contains(t, out, "Checkout")
	assert.Contains(t, out, "Uncaught TypeError")
	assert.Contains(t, out, "fallback source used")
}

func TestRenderingIsDeterministic(t *testing.T) {
	report := sampleReport()
	var a, b bytes.Buffer
	require.NoError(t, RenderText(report, &a))
	require.NoError(t, RenderText(report, &b))
	assert.Equal(t, a.String(), b.String())

	a.Reset()
	b.Reset()
	require.NoError(t, RenderHTML(report, &a))
	require.NoError(t, RenderHTML(report, &b))
	assert.Equal(t, a.String(), b.String())
}

func TestWriteAllAndLoadJSON(t *testing.T) {
	dir := t.TempDir()
	report := sampleReport()

	paths, err := WriteAll(report, dir)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(dir, "run-run-123.json"), paths[0])

	loaded, err := LoadJSON(paths[0])
	require.NoError(t, err)
	assert.Equal(t, report.RunID, loaded.RunID)
	assert.Equal(t, report.Tests, loaded.Tests)
	assert.Len(t, loaded.Issues, 1)
	require.NotNil(t, loaded.Acquisition)
	assert.Equal(t, 5, loaded.Acquisition.Searched)
}
