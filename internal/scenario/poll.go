package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/domain"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/interpret"
	obsctx "github.com/fairyhunter13/detector-gadget-e2e/internal/observability"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/session"
)

// ErrNotTerminal reports a job still in a non-terminal status when the poll
// budget ran out.
var ErrNotTerminal = fmt.Errorf("%w: job did not reach a terminal status", domain.ErrAssertion)

// PollStatus polls /api/job_stats/{id} every interval until the job reports a
// terminal status or timeout elapses, and returns the last stats observed.
// Non-200 responses and malformed documents end polling immediately.
func (r *Runner) PollStatus(ctx context.Context, sess *session.Store, id int64, interval, timeout time.Duration) (interpret.JobStats, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	st := &state{r: r, name: JobLifecycle, sess: sess}

	var last interpret.JobStats
	polls := 0
	op := func() error {
		polls++
		stats, err := st.fetchStats(ctx, "poll_status", id)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return backoff.Permanent(err)
		}
		last = stats
		if !stats.Status.Terminal() {
			return fmt.Errorf("job %d is %s", id, stats.Status)
		}
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.NewConstantBackOff(interval), ctx))
	lg := obsctx.LoggerFromContext(ctx)
	if err == nil {
		lg.Info("job reached terminal status",
			slog.Int64("job_id", id),
			slog.String("status", string(last.Status)),
			slog.Int("polls", polls))
		return last, nil
	}
	if domain.IsAssertion(err) || (errors.Is(err, domain.ErrTransport) && ctx.Err() == nil) {
		return last, err
	}
	status := string(last.Status)
	if status == "" {
		status = "unknown"
	}
	return last, fmt.Errorf("%w: job %d still %q after %s (%d polls)", ErrNotTerminal, id, status, timeout, polls)
}
