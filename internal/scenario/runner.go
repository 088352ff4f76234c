// Package scenario drives the Detector Gadget workflows against a running
// application and records a tri-state outcome for every step.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/adapter/httpclient"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/adapter/observability"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/config"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/domain"
	obsctx "github.com/fairyhunter13/detector-gadget-e2e/internal/observability"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/session"
)

// Dumper persists observed responses for post-mortem inspection.
type Dumper interface {
	Dump(scenario, step string, resp domain.Response) error
}

// Runner executes scenarios. It is safe to run several scenarios
// concurrently; each gets its own session.
type Runner struct {
	client *httpclient.Client
	cfg    config.Config
	log    *slog.Logger
	dumper Dumper
	now    func() time.Time

	fixturePath string
	fixtureErr  error
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithDumper stores every response a step observes.
func WithDumper(d Dumper) Option { return func(r *Runner) { r.dumper = d } }

// WithClock overrides time.Now, used for unique credentials.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner binds a runner to client and cfg.
func NewRunner(client *httpclient.Client, cfg config.Config, opts ...Option) *Runner {
	r := &Runner{
		client:      client,
		cfg:         cfg,
		log:         slog.Default(),
		now:         time.Now,
		fixturePath: cfg.FixturePath,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// successBand is the accepted status set for registration and submissions.
func (r *Runner) successBand() domain.StatusRange {
	if r.cfg.StrictStatus {
		return domain.Exactly(200, 302)
	}
	return domain.Between(200, 302)
}

// Run executes the named scenario with a fresh session.
func (r *Runner) Run(ctx context.Context, name string) (domain.ScenarioResult, error) {
	sc, ok := lookup(name)
	if !ok {
		return domain.ScenarioResult{}, fmt.Errorf("op=scenario.Run: %w: unknown scenario %q", domain.ErrInvalidArgument, name)
	}
	return r.run(ctx, sc), nil
}

func (r *Runner) run(ctx context.Context, sc scenario) domain.ScenarioResult {
	ctx = obsctx.WithScenario(obsctx.ContextWithLogger(ctx, r.log), sc.name)
	st := &state{
		r:        r,
		name:     sc.name,
		sess:     session.New(),
		outcomes: make(map[string]domain.Outcome),
	}
	sc.run(ctx, st)
	return domain.ScenarioResult{Name: sc.name, Steps: st.steps}
}

// skipError marks a step as skipped rather than failed.
type skipError struct{ reason string }

func (e *skipError) Error() string { return e.reason }

func skip(format string, args ...any) error {
	return &skipError{reason: fmt.Sprintf(format, args...)}
}

// state is the per-scenario context: its own session and the outcome of each
// step so far.
type state struct {
	r        *Runner
	name     string
	sess     *session.Store
	steps    []domain.StepResult
	outcomes map[string]domain.Outcome
}

// step runs fn unless one of deps did not pass, in which case it is skipped
// with reason "depends on <dep>". It reports whether the step passed.
func (st *state) step(ctx context.Context, name string, fn func(ctx context.Context) error, deps ...string) bool {
	res := domain.StepResult{Scenario: st.name, Step: name}
	for _, d := range deps {
		if st.outcomes[d] != domain.OutcomePass {
			res.Outcome = domain.OutcomeSkip
			res.Reason = "depends on " + d
			st.record(ctx, res)
			return false
		}
	}

	runID := obsctx.RunIDFromContext(ctx)
	ctx, span := observability.StartStep(ctx, runID, st.name, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	res.Duration = time.Since(start)

	var se *skipError
	switch {
	case err == nil:
		res.Outcome = domain.OutcomePass
	case errors.As(err, &se):
		res.Outcome = domain.OutcomeSkip
		res.Reason = se.reason
	default:
		res.Outcome = domain.OutcomeFail
		res.Err = err
		res.Reason = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	st.record(ctx, res)
	return res.Outcome == domain.OutcomePass
}

func (st *state) record(ctx context.Context, res domain.StepResult) {
	st.steps = append(st.steps, res)
	st.outcomes[res.Step] = res.Outcome
	observability.RecordStep(res.Scenario, string(res.Outcome))

	attrs := []slog.Attr{
		slog.String("step", res.Step),
		slog.String("outcome", string(res.Outcome)),
		slog.String("run_id", obsctx.RunIDFromContext(ctx)),
		slog.Duration("duration", res.Duration),
	}
	if res.Reason != "" {
		attrs = append(attrs, slog.String("reason", res.Reason))
	}
	level := slog.LevelInfo
	if res.Outcome == domain.OutcomeFail {
		level = slog.LevelError
	}
	obsctx.LoggerFromContext(ctx).LogAttrs(ctx, level, "step finished", attrs...)
}

// send issues a request carrying the scenario session and dumps the response
// when a dumper is configured.
func (st *state) send(ctx context.Context, step, method, path string, req httpclient.Request) (domain.Response, error) {
	req.Session = st.sess
	resp, err := st.r.client.Do(ctx, method, path, req)
	if err != nil {
		return resp, err
	}
	if st.r.dumper != nil {
		if derr := st.r.dumper.Dump(st.name, step, resp); derr != nil {
			obsctx.LoggerFromContext(ctx).Warn("dump response", slog.String("step", step), slog.Any("error", derr))
		}
	}
	return resp, nil
}
