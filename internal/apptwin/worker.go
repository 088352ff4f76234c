package apptwin

import (
	"context"
	"log/slog"
	"time"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/adapter/observability"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/domain"
)

// Worker advances submitted jobs through pending, processing and completed,
// one status per tick, mimicking the asynchronous analyzer.
type Worker struct {
	store    Store
	interval time.Duration
	log      *slog.Logger
}

// NewWorker creates a worker polling store every interval.
func NewWorker(store Store, interval time.Duration, log *slog.Logger) *Worker {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{store: store, interval: interval, log: log.With(slog.String("component", "twin_worker"))}
}

// Run ticks until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := w.Tick(ctx); err != nil {
				w.log.Error("worker tick failed", slog.Any("error", err))
			}
		}
	}
}

// Tick moves every active job one status forward.
func (w *Worker) Tick(ctx context.Context) error {
	jobs, err := w.store.ActiveJobs(ctx)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		switch j.Status {
		case domain.JobPending, "":
			j.Status = domain.JobProcessing
		case domain.JobProcessing:
			j.Features = CountFeatures(string(j.Content))
			j.Status = domain.JobCompleted
		default:
			continue
		}
		j.UpdatedAt = time.Now().UTC()
		if err := w.store.UpdateJob(ctx, j); err != nil {
			return err
		}
		observability.RecordTwinJob(string(j.Status))
		w.log.Debug("job advanced", slog.Int64("job_id", j.ID), slog.String("status", string(j.Status)))
	}
	return nil
}
