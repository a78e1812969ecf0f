// File: internal/orchestrator/orchestrator.go
// Description: Manages the high-level lifecycle of a run. It is injected with
// fully configured components via interfaces, making it decoupled and testable.

package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/uveworks/vigil/api/schemas"
	"github.com/uveworks/vigil/internal/config"
	"github.com/uveworks/vigil/internal/detect"
	"github.com/uveworks/vigil/internal/fix"
	"github.com/uveworks/vigil/internal/match"
	"github.com/uveworks/vigil/internal/report"
	"github.com/uveworks/vigil/internal/scenario"
)

// Exit codes for the run command.
const (
	ExitOK    = 0 // everything passed and nothing at/above the fail-on severity
	ExitIssue = 1 // scenario failures or issues at/above the fail-on severity
	ExitFatal = 2 // the run itself could not complete
)

// ScenarioRunner executes one scenario against a session.
type ScenarioRunner interface {
	Run(ctx context.Context, sess schemas.Session, sc schemas.ScenarioDefinition) schemas.ExecutionResult
}

// AcquisitionRunner executes the acquisition pipeline on a session.
type AcquisitionRunner interface {
	Run(ctx context.Context, sess schemas.Session) (*schemas.AcquisitionSummary, error)
}

var _ ScenarioRunner = (*scenario.Runner)(nil)

// Orchestrator wires the run together: sessions from the provider, scenarios
// through the runner, evidence through detection, triage and fixing, and
// everything into the report aggregator.
type Orchestrator struct {
	cfg    *config.Config
	logger *zap.Logger

	provider  schemas.SessionProvider
	scenarios []schemas.ScenarioDefinition
	runner    ScenarioRunner
	engine    *detect.Engine
	matcher   *match.Matcher
	applier   *fix.Applier
	acquirer  AcquisitionRunner
}

// New creates an orchestrator.
func New(
	cfg *config.Config,
	provider schemas.SessionProvider,
	scenarios []schemas.ScenarioDefinition,
	runner ScenarioRunner,
	engine *detect.Engine,
	matcher *match.Matcher,
	applier *fix.Applier,
	acquirer AcquisitionRunner,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		logger:    logger.Named("orchestrator"),
		provider:  provider,
		scenarios: scenarios,
		runner:    runner,
		engine:    engine,
		matcher:   matcher,
		applier:   applier,
		acquirer:  acquirer,
	}
}

// Run executes the configured mode and returns the finalized report. The
// returned error is non-nil only for run-fatal conditions; ordinary scenario
// failures and issues live in the report.
func (o *Orchestrator) Run(ctx context.Context) (*schemas.RunReport, error) {
	mode := schemas.RunMode(o.cfg.Run.Mode)
	agg := report.NewAggregator(o.cfg.Run.Target, mode, o.logger)

	var fatal error
	if mode == schemas.ModeTest || mode == schemas.ModeFull {
		fatal = o.runScenarios(ctx, agg)
	}
	if fatal == nil && (mode == schemas.ModeAcquire || mode == schemas.ModeFull) {
		fatal = o.runAcquisition(ctx, agg)
	}

	if fatal != nil {
		agg.SetFatal(fatal.Error())
	}
	return agg.Finalize(), fatal
}

// runScenarios executes every scenario, with scenario-level parallelism
// bounded by the browser pool size. Each worker owns one session for its
// whole lifetime; within a session everything is strictly sequential.
func (o *Orchestrator) runScenarios(ctx context.Context, agg *report.Aggregator) error {
	workers := o.cfg.Browser.PoolSize
	if o.cfg.Run.Concurrency > 0 {
		workers = o.cfg.Run.Concurrency
	}
	if workers > len(o.scenarios) {
		workers = len(o.scenarios)
	}
	if workers < 1 {
		workers = 1
	}

	o.logger.Info("Running scenarios.",
		zap.Int("scenarios", len(o.scenarios)),
		zap.Int("workers", workers))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// abort records the first run-fatal error and stops the scenario feed.
	var (
		fatalMu sync.Mutex
		fatal   error
	)
	abort := func(err error) {
		fatalMu.Lock()
		if fatal == nil {
			fatal = err
		}
		fatalMu.Unlock()
		cancel()
	}

	queue := make(chan schemas.ScenarioDefinition)
	var wg sync.WaitGroup
	started := 0
	for i := 0; i < workers; i++ {
		sess, err := o.provider.NewSession(ctx)
		if err != nil {
			abort(fmt.Errorf("%w: %v", schemas.ErrSessionUnavailable, err))
			break
		}
		started++
		wg.Add(1)
		go func(sess schemas.Session) {
			defer wg.Done()
			defer sess.Close(context.Background())
			for sc := range queue {
				if runCtx.Err() != nil {
					return
				}
				if err := o.runOne(runCtx, agg, sess, sc); err != nil {
					abort(err)
					return
				}
			}
		}(sess)
	}

	if started > 0 {
	feed:
		for _, sc := range o.scenarios {
			select {
			case queue <- sc:
			case <-runCtx.Done():
				break feed
			}
		}
	}
	close(queue)
	wg.Wait()

	fatalMu.Lock()
	defer fatalMu.Unlock()
	return fatal
}

// runOne runs a single scenario and pushes its result, issues, and fix
// outcomes into the aggregator. The returned error is non-nil only when the
// worker's session died mid-scenario; that aborts the whole run.
func (o *Orchestrator) runOne(ctx context.Context, agg *report.Aggregator, sess schemas.Session, sc schemas.ScenarioDefinition) error {
	result := o.runner.Run(ctx, sess, sc)
	agg.AddResult(result)

	if result.SessionLost {
		return fmt.Errorf("%w: session %s died during scenario %s", schemas.ErrSessionUnavailable, sess.ID(), sc.ID)
	}
	if result.Evidence == nil {
		return nil
	}

	issues := o.engine.Run(result.Evidence, sc.ID)
	issues = o.matcher.Enrich(issues)
	agg.AddIssues(issues)

	if !o.cfg.Run.AutoFix {
		return nil
	}
	for _, outcome := range o.applier.ApplyAll(ctx, sess, issues) {
		agg.AddFix(outcome)
	}
	return nil
}

// runAcquisition runs the acquisition pipeline on a dedicated session.
func (o *Orchestrator) runAcquisition(ctx context.Context, agg *report.Aggregator) error {
	if o.acquirer == nil {
		o.logger.Warn("Acquisition requested but not configured; skipping.")
		return nil
	}

	sess, err := o.provider.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", schemas.ErrSessionUnavailable, err)
	}
	defer sess.Close(context.Background())

	summary, err := o.acquirer.Run(ctx, sess)
	if summary != nil {
		agg.SetAcquisition(summary)
	}
	return err
}

// ExitCode maps a finished report to the process exit code. failOn is the
// minimum severity that turns detected issues into a non-zero exit; empty
// means issues alone never fail the run.
func ExitCode(r *schemas.RunReport, failOn schemas.Severity) int {
	if r.Fatal != "" {
		return ExitFatal
	}
	if r.Tests.Failed > 0 || r.Tests.Errored > 0 {
		return ExitIssue
	}
	if failOn != "" {
		limit := schemas.SeverityRank(failOn)
		for _, is := range r.Issues {
			if schemas.SeverityRank(is.Severity) <= limit {
				return ExitIssue
			}
		}
	}
	return ExitOK
}
