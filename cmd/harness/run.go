package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/adapter/httpclient"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/adapter/observability"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/config"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/report"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/scenario"
)

type runFlags struct {
	format    string
	dumpDir   string
	scenarios []string
	strict    bool
	pollJobs  bool
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the end-to-end scenarios against APP_URL",
		Long: `Run provisions the upload fixture, waits for the application to answer
and executes every enabled scenario. It exits non-zero when any step or the
setup failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := f.apply(cmd, &cfg); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSuite(ctx, cmd, cfg)
		},
	}
	cmd.Flags().StringVarP(&f.format, "format", "o", "", "report format: text, json or yaml (default HARNESS_REPORT_FORMAT)")
	cmd.Flags().StringVar(&f.dumpDir, "dump-dir", "", "write every response to this directory (default HARNESS_DUMP_DIR)")
	cmd.Flags().StringSliceVarP(&f.scenarios, "scenario", "s", nil, "run only the named scenarios (repeatable)")
	cmd.Flags().BoolVar(&f.strict, "strict-status", false, "accept exactly 200 or 302 for register and submit")
	cmd.Flags().BoolVar(&f.pollJobs, "poll-jobs", false, "also poll a submitted job until it completes")
	cmd.AddCommand(newListCmd())
	return cmd
}

// apply overlays explicitly set flags on the environment configuration.
func (f runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.ReportFormat = f.format
	}
	if flags.Changed("dump-dir") {
		cfg.DumpDir = f.dumpDir
	}
	if flags.Changed("scenario") {
		cfg.Scenarios = f.scenarios
	}
	if flags.Changed("strict-status") {
		cfg.StrictStatus = f.strict
	}
	if flags.Changed("poll-jobs") {
		cfg.PollJobs = f.pollJobs
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return scenario.ValidateSelection(*cfg)
}

func runSuite(ctx context.Context, cmd *cobra.Command, cfg config.Config) error {
	logger := observability.NewLogger(cfg, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		logger.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	client := httpclient.New(cfg.BaseURL,
		httpclient.WithTimeout(cfg.HTTPTimeout),
		httpclient.WithUserAgent("detector-gadget-e2e/"+version),
	)
	opts := []scenario.Option{scenario.WithLogger(logger)}
	if cfg.DumpDir != "" {
		d, err := report.NewFileDumper(cfg.DumpDir)
		if err != nil {
			return err
		}
		opts = append(opts, scenario.WithDumper(d))
	}

	res := scenario.NewRunner(client, cfg, opts...).RunSuite(ctx)
	if err := report.Render(cmd.OutOrStdout(), res, cfg.ReportFormat); err != nil {
		return err
	}
	if cfg.MetricsFile != "" {
		if err := observability.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error("failed to write metrics", slog.String("path", cfg.MetricsFile), slog.Any("error", err))
		}
	}
	if res.Failed() {
		return fmt.Errorf("%w: %d failed step(s)", errSuiteFailed, res.Counts().Fail)
	}
	return nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the scenario names in execution order",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, n := range scenario.Names() {
				cmd.Println(n)
			}
		},
	}
}
