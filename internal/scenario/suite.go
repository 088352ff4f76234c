package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/adapter/httpclient"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/domain"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/fixture"
	obsctx "github.com/fairyhunter13/detector-gadget-e2e/internal/observability"
)

// PrepareFixture provisions the upload fixture. A failure is remembered so
// upload steps skip with the setup reason instead of failing one by one.
func (r *Runner) PrepareFixture() error {
	path, err := fixture.Ensure(r.cfg.FixturePath)
	r.fixturePath, r.fixtureErr = path, err
	return err
}

// Probe waits for the application to answer GET / with any status, backing
// off exponentially for at most the configured ready timeout.
func (r *Runner) Probe(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = r.cfg.ReadyTimeout
	if bo.MaxElapsedTime <= 0 {
		// single attempt
		bo.MaxElapsedTime = time.Nanosecond
	}

	attempts := 0
	op := func() error {
		attempts++
		_, err := r.client.Do(ctx, http.MethodGet, "/", httpclient.Request{})
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("op=scenario.Probe: %w: %s not reachable after %d attempts: %w",
			domain.ErrSetup, r.client.BaseURL(), attempts, err)
	}
	return nil
}

// RunSuite provisions the fixture, probes the application and runs every
// selected scenario, each with its own session. Setup problems are recorded
// once in SetupErr; scenarios still run so that nothing passes silently.
// Results keep declaration order whatever the parallelism.
func (r *Runner) RunSuite(ctx context.Context) domain.SuiteResult {
	res := domain.SuiteResult{
		RunID:     ulid.Make().String(),
		BaseURL:   r.client.BaseURL(),
		StartedAt: time.Now().UTC(),
	}
	lg := r.log.With(slog.String("run_id", res.RunID))
	ctx = obsctx.ContextWithRunID(ctx, res.RunID)
	ctx = obsctx.ContextWithLogger(ctx, lg)

	var setupErrs []error
	if err := r.PrepareFixture(); err != nil {
		lg.Error("fixture setup failed", slog.Any("error", err))
		setupErrs = append(setupErrs, err)
	}
	if err := r.Probe(ctx); err != nil {
		lg.Error("application not reachable; every scenario will fail", slog.Any("error", err))
		setupErrs = append(setupErrs, err)
	}
	selected := selectScenarios(r.cfg)
	if err := r.checkSelection(selected); err != nil {
		lg.Error("scenario selection rejected", slog.Any("error", err))
		setupErrs = append(setupErrs, err)
	}
	res.SetupErr = errors.Join(setupErrs...)

	results := make([]domain.ScenarioResult, len(selected))
	limit := r.cfg.Parallel
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, sc := range selected {
		g.Go(func() error {
			results[i] = r.withRunLogger(lg).run(ctx, sc)
			return nil
		})
	}
	_ = g.Wait()

	res.Scenarios = results
	res.Duration = time.Since(res.StartedAt)
	c := res.Counts()
	lg.Info("suite finished",
		slog.Int("pass", c.Pass),
		slog.Int("fail", c.Fail),
		slog.Int("skip", c.Skip),
		slog.Duration("duration", res.Duration))
	return res
}

// checkSelection fails a filter that names nothing runnable, so an empty run
// never reports success.
func (r *Runner) checkSelection(selected []scenario) error {
	if err := ValidateSelection(r.cfg); err != nil {
		return fmt.Errorf("op=scenario.RunSuite: %w: %w", domain.ErrSetup, err)
	}
	if len(selected) == 0 {
		return fmt.Errorf("op=scenario.RunSuite: %w: no scenario selected", domain.ErrSetup)
	}
	return nil
}

// withRunLogger returns a shallow copy logging through lg.
func (r *Runner) withRunLogger(lg *slog.Logger) *Runner {
	cp := *r
	cp.log = lg
	return &cp
}
