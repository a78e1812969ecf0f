// File: internal/scenario/executor.go
package scenario

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uveworks/vigil/api/schemas"
)

// Executor runs single steps against an automation session. It normalizes
// every failure into a StepOutcome; a dead session is marked with
// StepSessionLost so callers can abort the run.
type Executor struct {
	logger      *zap.Logger
	stepTimeout time.Duration
}

// NewExecutor creates a step executor with the given default per-step timeout.
func NewExecutor(logger *zap.Logger, stepTimeout time.Duration) *Executor {
	return &Executor{
		logger:      logger.Named("executor"),
		stepTimeout: stepTimeout,
	}
}

// Execute runs one step. Placeholders in the step's parameters are resolved
// from vars before execution; evaluate steps with store_as write back into
// vars for later steps.
func (e *Executor) Execute(ctx context.Context, sess schemas.Session, index int, step schemas.Step, vars map[string]string) (outcome schemas.StepOutcome) {
	start := time.Now()
	outcome = schemas.StepOutcome{
		Index:  index,
		Kind:   step.Kind,
		Name:   step.Name,
		Status: schemas.StepOK,
	}

	// A panicking step must not take the scenario runner down with it.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Step panicked.",
				zap.Int("index", index),
				zap.String("action", string(step.Kind)),
				zap.Any("panic", r))
			outcome.Status = schemas.StepError
			outcome.Detail = fmt.Sprintf("step panicked: %v", r)
		}
		outcome.Duration = time.Since(start)
	}()

	timeout := e.stepTimeout
	if step.Timeout > 0 {
		timeout = step.Timeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := e.dispatch(stepCtx, sess, step, timeout, vars, &outcome)
	if err == nil {
		return outcome
	}

	switch {
	case errors.Is(err, schemas.ErrSessionUnavailable):
		outcome.Status = schemas.StepSessionLost
		outcome.Detail = err.Error()
	case errors.Is(err, errAssertionFailed):
		outcome.Status = schemas.StepAssertionFailed
		outcome.Detail = err.Error()
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		outcome.Status = schemas.StepTimeout
		outcome.Detail = fmt.Sprintf("step exceeded %s timeout", timeout)
	default:
		outcome.Status = schemas.StepError
		outcome.Detail = err.Error()
	}
	return outcome
}

var errAssertionFailed = errors.New("assertion evaluated to false")

func (e *Executor) dispatch(ctx context.Context, sess schemas.Session, step schemas.Step, timeout time.Duration, vars map[string]string, outcome *schemas.StepOutcome) error {
	target := Substitute(step.Target, vars)
	text := Substitute(step.Text, vars)
	script := Substitute(step.Script, vars)
	assertExpr := Substitute(step.Assert, vars)

	switch step.Kind {
	case schemas.StepNavigate:
		return sess.Navigate(ctx, target)

	case schemas.StepClick:
		return sess.Click(ctx, target)

	case schemas.StepTypeText:
		return sess.TypeText(ctx, target, text)

	case schemas.StepWaitFor:
		return sess.WaitVisible(ctx, target, timeout)

	case schemas.StepEvaluate:
		var result any
		if err := sess.Evaluate(ctx, script, &result); err != nil {
			return err
		}
		if step.StoreAs != "" {
			vars[step.StoreAs] = fmt.Sprintf("%v", result)
		}
		return nil

	case schemas.StepScreenshot:
		png, err := sess.Screenshot(ctx)
		if err != nil {
			return err
		}
		outcome.Screenshot = base64.StdEncoding.EncodeToString(png)
		return nil

	case schemas.StepScrollTo:
		return sess.ScrollTo(ctx, target)

	case schemas.StepRefresh:
		return sess.Reload(ctx)

	case schemas.StepAssert:
		var ok bool
		if err := sess.Evaluate(ctx, fmt.Sprintf("Boolean(%s)", assertExpr), &ok); err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", errAssertionFailed, assertExpr)
		}
		return nil

	default:
		// Unreachable: the loader rejects unknown kinds.
		return fmt.Errorf("unsupported action %q", step.Kind)
	}
}
