// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/uveworks/vigil/api/schemas"
	"github.com/uveworks/vigil/internal/acquire"
	"github.com/uveworks/vigil/internal/browser"
	"github.com/uveworks/vigil/internal/config"
	"github.com/uveworks/vigil/internal/detect"
	"github.com/uveworks/vigil/internal/fix"
	"github.com/uveworks/vigil/internal/match"
	"github.com/uveworks/vigil/internal/observability"
	"github.com/uveworks/vigil/internal/orchestrator"
	"github.com/uveworks/vigil/internal/report"
	"github.com/uveworks/vigil/internal/scenario"
)

func init() {
	rootCmd.AddCommand(newRunCmd())
}

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [target]",
		Short: "Runs scenarios and/or content acquisition against the target application",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys so CLI values override the
			// config file and environment with the right precedence.
			if err := viper.BindPFlag("fix.confidence_threshold", cmd.Flags().Lookup("fix-confidence")); err != nil {
				return err
			}
			if err := viper.BindPFlag("acquire.count", cmd.Flags().Lookup("count")); err != nil {
				return err
			}
			return viper.BindPFlag("report.dir", cmd.Flags().Lookup("report-dir"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			if err := populateRunConfig(cfg, cmd, args[0]); err != nil {
				return err
			}

			mode := schemas.RunMode(cfg.Run.Mode)
			switch mode {
			case schemas.ModeTest, schemas.ModeAcquire, schemas.ModeFull:
			default:
				return fmt.Errorf("unknown mode %q (want test, acquire, or full)", cfg.Run.Mode)
			}
			if (mode == schemas.ModeAcquire || mode == schemas.ModeFull) && cfg.Run.Query == "" {
				return fmt.Errorf("mode %q requires --query", mode)
			}

			logger.Info("Starting run",
				zap.String("target", cfg.Run.Target),
				zap.String("mode", cfg.Run.Mode),
				zap.Bool("auto_fix", cfg.Run.AutoFix))

			var scenarios []schemas.ScenarioDefinition
			if mode == schemas.ModeTest || mode == schemas.ModeFull {
				scenarios, err = scenario.LoadScenarios(cfg.Scenario.File)
				if err != nil {
					return fmt.Errorf("loading scenarios: %w", err)
				}
			}

			rules := match.DefaultRules()
			if cfg.Fix.RulesFile != "" {
				rules, err = match.LoadRules(cfg.Fix.RulesFile)
				if err != nil {
					return fmt.Errorf("loading fix rules: %w", err)
				}
			}
			matcher, err := match.NewMatcher(rules)
			if err != nil {
				return fmt.Errorf("invalid fix rules: %w", err)
			}

			manager := browser.NewManager(cfg, logger)
			defer func() {
				if err := manager.Shutdown(context.Background()); err != nil {
					logger.Warn("Error during browser shutdown", zap.Error(err))
				}
			}()

			runner := scenario.NewRunner(
				logger,
				scenario.NewExecutor(logger, cfg.Network.StepTimeout),
				scenario.NewCollector(logger),
				cfg.Run.Target,
				cfg.Scenario.ScreenshotDir,
			)

			var acquirer orchestrator.AcquisitionRunner
			if mode == schemas.ModeAcquire || mode == schemas.ModeFull {
				acquirer = &acquisitionJob{cfg: cfg, logger: logger}
			}

			orch := orchestrator.New(
				cfg,
				manager,
				scenarios,
				runner,
				detect.NewEngine(cfg.Detect, logger),
				matcher,
				fix.NewApplier(cfg.Fix.ConfidenceThreshold, logger),
				acquirer,
				logger,
			)

			rep, runErr := orch.Run(ctx)
			if runErr != nil {
				logger.Error("Run aborted", zap.Error(runErr))
			}

			paths, err := report.WriteAll(rep, cfg.Report.Dir)
			if err != nil {
				logger.Error("Failed to write report files", zap.Error(err))
			}
			for _, p := range paths {
				logger.Info("Report written", zap.String("path", p))
			}
			if err := report.RenderText(rep, os.Stdout); err != nil {
				logger.Error("Failed to render summary", zap.Error(err))
			}

			code := orchestrator.ExitCode(rep, schemas.Severity(cfg.Run.FailOn))
			if code != orchestrator.ExitOK {
				observability.Sync()
				os.Exit(code)
			}
			return nil
		},
	}

	runCmd.Flags().StringP("mode", "m", "test", "Run mode: 'test', 'acquire', or 'full'.")
	runCmd.Flags().Bool("auto-fix", false, "Apply safe fixes for high-confidence issues.")
	runCmd.Flags().Float64("fix-confidence", 0.95, "Minimum confidence for a fix to be applied. (Overrides config/env)")
	runCmd.Flags().IntP("concurrency", "j", 0, "Number of parallel browser sessions. (Overrides config/env)")
	runCmd.Flags().String("report-dir", "reports", "Directory for report output. (Overrides config/env)")
	runCmd.Flags().String("fail-on", "", "Exit non-zero when issues at or above this severity are found (critical, high, medium, low).")
	runCmd.Flags().StringP("query", "q", "", "Search keywords for acquisition mode.")
	runCmd.Flags().Int("count", 20, "Maximum number of items to acquire. (Overrides config/env)")
	runCmd.Flags().String("category", "", "Category metadata for uploaded content.")
	runCmd.Flags().StringSlice("tags", nil, "Tag metadata for uploaded content.")

	return runCmd
}

// populateRunConfig copies flag values into the run section of the config.
func populateRunConfig(cfg *config.Config, cmd *cobra.Command, target string) error {
	flags := cmd.Flags()

	mode, err := flags.GetString("mode")
	if err != nil {
		return err
	}
	autoFix, err := flags.GetBool("auto-fix")
	if err != nil {
		return err
	}
	concurrency, err := flags.GetInt("concurrency")
	if err != nil {
		return err
	}
	failOn, err := flags.GetString("fail-on")
	if err != nil {
		return err
	}
	query, err := flags.GetString("query")
	if err != nil {
		return err
	}
	category, err := flags.GetString("category")
	if err != nil {
		return err
	}
	tags, err := flags.GetStringSlice("tags")
	if err != nil {
		return err
	}

	cfg.Run = config.RunConfig{
		Target:        target,
		Mode:          mode,
		AutoFix:       autoFix && cfg.Fix.Enabled,
		FixConfidence: cfg.Fix.ConfidenceThreshold,
		Concurrency:   concurrency,
		ReportDir:     cfg.Report.Dir,
		FailOn:        failOn,
		Query:         query,
		Category:      category,
		Tags:          tags,
	}
	return nil
}

// acquisitionJob assembles the acquisition pipeline around the session the
// orchestrator hands it. The fallback source and the uploader are bound to
// that session, so the pipeline is built per run rather than up front.
type acquisitionJob struct {
	cfg    *config.Config
	logger *zap.Logger
}

func (j *acquisitionJob) Run(ctx context.Context, sess schemas.Session) (*schemas.AcquisitionSummary, error) {
	client := &http.Client{Timeout: j.cfg.Network.RequestTimeout}

	pipeline := acquire.NewPipeline(
		acquire.NewPrimarySearch(j.cfg.Search, client, j.logger),
		acquire.NewFallbackSearch(sess, j.cfg.Search.FallbackURL, j.logger),
		acquire.NewFilter(j.cfg.Acquire, j.logger),
		acquire.NewDownloader(j.cfg.Acquire, client, j.logger),
		acquire.NewUploader(sess, j.cfg.Acquire, j.cfg.Run.Target, j.logger),
		j.cfg.Acquire.Count,
		j.logger,
	)

	query := schemas.SearchQuery{
		Keywords:  j.cfg.Run.Query,
		MinWidth:  j.cfg.Acquire.MinWidth,
		MinHeight: j.cfg.Acquire.MinHeight,
		Count:     j.cfg.Acquire.Count,
	}
	meta := schemas.UploadMetadata{
		Category:    j.cfg.Run.Category,
		Tags:        j.cfg.Run.Tags,
		Description: j.cfg.Run.Query,
	}
	return pipeline.Run(ctx, query, meta)
}
