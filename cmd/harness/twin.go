package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/adapter/observability"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/apptwin"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/config"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/domain"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/service/ratelimiter"
)

func newTwinCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "twin",
		Short: "Serve a local twin of the Detector Gadget application",
		Long: `twin serves the Detector Gadget pages, the job stats API and a
background worker that completes submitted jobs. State lives in memory, or in
Redis when TWIN_REDIS_URL is set. The configured harness credentials are
seeded so that "harness run" can log in straight away.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Twin.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serveTwin(ctx, cmd, cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default TWIN_PORT)")
	return cmd
}

func serveTwin(ctx context.Context, cmd *cobra.Command, cfg config.Config) error {
	logger := observability.NewLogger(cfg, cmd.ErrOrStderr()).With(slog.String("service", "apptwin"))
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

	var (
		store   apptwin.Store = apptwin.NewMemoryStore()
		limiter ratelimiter.Limiter
	)
	if cfg.Twin.RedisURL != "" {
		rs, err := apptwin.OpenRedisStore(ctx, cfg.Twin.RedisURL)
		if err != nil {
			return err
		}
		defer func() {
			if err := rs.Close(); err != nil {
				logger.Error("failed to close redis", slog.Any("error", err))
			}
		}()
		store = rs
		if cfg.Twin.SubmitPerMin > 0 {
			limiter = ratelimiter.NewRedisLuaLimiter(rs.Client(), map[string]ratelimiter.BucketConfig{
				apptwin.SubmitBucket: ratelimiter.NewBucketConfigFromPerMinute(cfg.Twin.SubmitPerMin),
			})
		}
		logger.Info("twin using redis store")
	} else if cfg.Twin.SubmitPerMin > 0 {
		logger.Warn("TWIN_SUBMIT_PER_MIN ignored without TWIN_REDIS_URL")
	}

	srv, err := apptwin.New(ctx, apptwin.Options{
		Store:           store,
		SessionSecret:   cfg.Twin.SessionSecret,
		RateLimitPerMin: cfg.Twin.RateLimitPerMin,
		CORSOrigins:     cfg.Twin.CORSOrigins,
		SubmitLimiter:   limiter,
		Seed:            []domain.Credentials{{Username: cfg.Username, Password: cfg.Password}},
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return apptwin.NewWorker(store, cfg.Twin.WorkerInterval, logger).Run(gctx)
	})
	g.Go(func() error {
		return apptwin.Serve(gctx, fmt.Sprintf(":%d", cfg.Twin.Port), srv.Handler(), logger)
	})
	return g.Wait()
}
