package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jordanhubbard/councilhub/internal/council"
	"github.com/jordanhubbard/councilhub/internal/events"
	"github.com/jordanhubbard/councilhub/internal/webhook"
)

// Runner executes accepted jobs in background goroutines and reports results
// over the job's webhook.
type Runner struct {
	store    *Store
	engine   *council.Engine
	webhooks *webhook.Dispatcher
	bus      *events.Bus
	logger   *slog.Logger

	// Deliberations keep running even if the submitting request goes away,
	// but they should not run forever.
	jobTimeout time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithEventBus publishes job lifecycle events.
func WithEventBus(bus *events.Bus) RunnerOption {
	return func(r *Runner) { r.bus = bus }
}

// WithJobTimeout bounds a single deliberation. Defaults to 30 minutes.
func WithJobTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.jobTimeout = d }
}

// NewRunner creates a Runner.
func NewRunner(store *Store, engine *council.Engine, webhooks *webhook.Dispatcher, logger *slog.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		store:      store,
		engine:     engine,
		webhooks:   webhooks,
		logger:     logger,
		jobTimeout: 30 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Launch starts the job in a background goroutine and returns immediately.
func (r *Runner) Launch(jobID string) {
	if r.bus != nil {
		r.bus.Publish(events.Event{Type: events.EventJobCreated, JobID: jobID})
	}
	go r.run(jobID)
}

func (r *Runner) run(jobID string) {
	job, ok := r.store.Get(jobID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.jobTimeout)
	defer cancel()

	r.store.MarkRunning(jobID)
	r.logger.Info("job started", slog.String("job_id", jobID))

	result, err := r.engine.Run(ctx, job.Params.Query, council.RunOptions{
		CouncilModels: job.Params.Models,
		ChairmanModel: job.Params.Chairman,
		FinalOnly:     job.Params.FinalOnly,
	})
	if err != nil {
		r.store.MarkFailed(jobID, err.Error())
		r.logger.Error("job failed", slog.String("job_id", jobID), slog.String("error", err.Error()))
		r.sendFailureWebhook(ctx, jobID, job, err)
		return
	}

	summary := fmt.Sprintf("Council completed with %d models", len(result.Stage1))
	r.store.MarkCompleted(jobID, result, summary)
	r.logger.Info("job completed", slog.String("job_id", jobID), slog.String("summary", summary))

	if job.Params.WebhookURL == "" {
		return
	}

	// Re-read for the recorded completion timestamp.
	finished, _ := r.store.Get(jobID)

	webhookResult := any(result)
	if !job.Params.IncludeDetails {
		webhookResult = map[string]any{
			"stage3":   result.Stage3,
			"metadata": result.Metadata,
			"config":   result.Config,
		}
	}

	payload := map[string]any{
		"event":    "council.completed",
		"job_id":   jobID,
		"query":    job.Params.Query,
		"result":   webhookResult,
		"metadata": job.Params.Metadata,
		"timing": map[string]any{
			"created_at":   finished.CreatedAt,
			"started_at":   finished.StartedAt,
			"completed_at": finished.CompletedAt,
		},
	}

	if err := r.webhooks.Deliver(ctx, job.Params.WebhookURL, payload, job.Params.WebhookSecret); err != nil {
		r.store.MarkWebhook(jobID, false, "Failed to deliver webhook after retries")
		return
	}
	r.store.MarkWebhook(jobID, true, "")
}

// sendFailureWebhook notifies the webhook about a failed run. Best effort.
func (r *Runner) sendFailureWebhook(ctx context.Context, jobID string, job Job, runErr error) {
	if job.Params.WebhookURL == "" {
		return
	}
	payload := map[string]any{
		"event":    "council.failed",
		"job_id":   jobID,
		"query":    job.Params.Query,
		"error":    runErr.Error(),
		"metadata": job.Params.Metadata,
	}
	if err := r.webhooks.Deliver(ctx, job.Params.WebhookURL, payload, job.Params.WebhookSecret); err != nil {
		r.logger.Warn("failure webhook not delivered",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
	}
}
