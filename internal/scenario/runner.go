// File: internal/scenario/runner.go
package scenario

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/uveworks/vigil/api/schemas"
)

// Runner executes whole scenarios against a session. Steps run strictly in
// order; the first failing step stops the remaining ones. Evidence is
// captured over the whole scenario window.
type Runner struct {
	logger    *zap.Logger
	executor  *Executor
	collector *Collector
	baseURL   string
	shotDir   string
}

// NewRunner creates a scenario runner for the given target base URL.
// Captured screenshots are persisted under shotDir; an empty shotDir keeps
// them inline in the step outcomes.
func NewRunner(logger *zap.Logger, executor *Executor, collector *Collector, baseURL, shotDir string) *Runner {
	return &Runner{
		logger:    logger.Named("runner"),
		executor:  executor,
		collector: collector,
		baseURL:   baseURL,
		shotDir:   shotDir,
	}
}

// Run executes one scenario. The session's evidence window is reset before
// the first step and collected after the last; cookies and local storage
// persist across scenarios on a reused session, matching a continuous user
// visit. A FAILED or ERROR scenario still yields whatever evidence
// accumulated up to the stop. A dead session marks the result as
// SessionLost in addition to ERROR.
func (r *Runner) Run(ctx context.Context, sess schemas.Session, sc schemas.ScenarioDefinition) schemas.ExecutionResult {
	start := time.Now()
	result := schemas.ExecutionResult{
		ScenarioID:   sc.ID,
		ScenarioName: sc.Name,
		Status:       schemas.ExecutionRunning,
		Steps:        make([]schemas.StepOutcome, 0, len(sc.Steps)),
	}

	log := r.logger.With(zap.String("scenario", sc.ID))
	log.Info("Scenario started.", zap.Int("steps", len(sc.Steps)), zap.String("priority", string(sc.Priority)))

	sess.ResetEvidence()
	vars := map[string]string{"base_url": r.baseURL}

	result.Status = schemas.ExecutionPassed
	for i, step := range sc.Steps {
		outcome := r.executor.Execute(ctx, sess, i, step, vars)
		result.Steps = append(result.Steps, outcome)

		if outcome.Failed() {
			switch outcome.Status {
			case schemas.StepSessionLost:
				result.Status = schemas.ExecutionError
				result.SessionLost = true
			case schemas.StepError:
				result.Status = schemas.ExecutionError
			default:
				result.Status = schemas.ExecutionFailed
			}
			result.Error = outcome.Detail
			log.Warn("Scenario stopped at failing step.",
				zap.Int("step", i),
				zap.String("action", string(step.Kind)),
				zap.String("status", string(outcome.Status)),
				zap.String("detail", outcome.Detail))
			break
		}
	}

	ev, err := r.collector.Collect(ctx, sess)
	if err != nil {
		log.Error("Evidence collection failed.", zap.Error(err))
		if errors.Is(err, schemas.ErrSessionUnavailable) {
			result.SessionLost = true
		}
		if result.Status == schemas.ExecutionPassed {
			result.Status = schemas.ExecutionError
			result.Error = err.Error()
		}
	} else {
		result.Evidence = ev
	}

	r.persistScreenshots(log, &result)

	result.Duration = time.Since(start)
	log.Info("Scenario finished.",
		zap.String("status", string(result.Status)),
		zap.Duration("duration", result.Duration))
	return result
}

// persistScreenshots writes inline screenshot captures to the shot directory
// and replaces them with file references. A write failure keeps the inline
// bytes so the capture is never lost.
func (r *Runner) persistScreenshots(log *zap.Logger, result *schemas.ExecutionResult) {
	if r.shotDir == "" {
		return
	}
	for i := range result.Steps {
		step := &result.Steps[i]
		if step.Screenshot == "" {
			continue
		}
		png, err := base64.StdEncoding.DecodeString(step.Screenshot)
		if err != nil {
			log.Warn("Screenshot payload is not valid base64.", zap.Int("step", step.Index), zap.Error(err))
			continue
		}
		if err := os.MkdirAll(r.shotDir, 0o755); err != nil {
			log.Warn("Cannot create screenshot directory.", zap.Error(err))
			return
		}
		path := filepath.Join(r.shotDir, fmt.Sprintf("%s-step%d.png", result.ScenarioID, step.Index))
		if err := os.WriteFile(path, png, 0o644); err != nil {
			log.Warn("Cannot write screenshot.", zap.String("path", path), zap.Error(err))
			continue
		}
		step.Screenshot = path
		if result.Evidence != nil {
			result.Evidence.Screenshots = append(result.Evidence.Screenshots, path)
		}
	}
}
