// Package worker runs the sequential poll loop. Each iteration attempts
// to claim and fully run at most one job per registered queue before
// sleeping. Concurrency across jobs comes from running multiple worker
// processes against the same store; the claim protocol is the only
// mutual-exclusion mechanism.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crestline-labs/duework/internal/completion"
	"github.com/crestline-labs/duework/internal/fanout"
	"github.com/crestline-labs/duework/internal/pipeline"
	"github.com/crestline-labs/duework/internal/store"
)

// DefaultInterval is the delay between poll iterations.
const DefaultInterval = 5 * time.Second

// QueueDescriptor registers one job type with the loop.
type QueueDescriptor struct {
	// Queue is the queue name jobs are claimed from.
	Queue string
	// Phases builds the job's phase sequence. Called once per claimed
	// job, so descriptors can vary phases on the job's profile.
	Phases func(job *store.Job) ([]pipeline.Phase, error)
}

// DocumentLoader resolves a job's uploaded source documents.
type DocumentLoader interface {
	Load(ctx context.Context, job *store.Job) ([]completion.DocumentBlock, error)
}

// Config holds worker dependencies and settings.
type Config struct {
	Store    store.Store
	Gateway  *completion.Gateway
	Loader   DocumentLoader
	Queues   []QueueDescriptor
	Interval time.Duration
	Logger   *slog.Logger
}

// Worker polls queues and drives claimed jobs to a terminal status.
type Worker struct {
	store    store.Store
	gateway  *completion.Gateway
	fan      *fanout.Coordinator
	loader   DocumentLoader
	queues   []QueueDescriptor
	interval time.Duration
	logger   *slog.Logger
}

// New creates a worker from config.
func New(cfg Config) (*Worker, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("worker requires a store")
	}
	if len(cfg.Queues) == 0 {
		return nil, fmt.Errorf("worker requires at least one queue")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "worker")

	return &Worker{
		store:    cfg.Store,
		gateway:  cfg.Gateway,
		fan:      fanout.NewCoordinator(cfg.Gateway, logger),
		loader:   cfg.Loader,
		queues:   cfg.Queues,
		interval: cfg.Interval,
		logger:   logger,
	}, nil
}

// Loop polls until the context is canceled.
func (w *Worker) Loop(ctx context.Context) error {
	w.logger.Info("worker started",
		"queues", len(w.queues),
		"interval", w.interval)

	for {
		w.Tick(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return ctx.Err()
		case <-time.After(w.interval):
		}
	}
}

// Tick performs one poll iteration: one claim attempt per queue, running
// any claimed job to a terminal status. Claim errors are logged and left
// for the next interval.
func (w *Worker) Tick(ctx context.Context) {
	for _, q := range w.queues {
		if ctx.Err() != nil {
			return
		}

		job, err := w.store.Claim(ctx, q.Queue)
		if err != nil {
			w.logger.Error("claim failed", "queue", q.Queue, "error", err)
			continue
		}
		if job == nil {
			continue
		}

		w.runJob(ctx, q, job)
	}
}

// runJob drives one claimed job to complete, partial, or error.
func (w *Worker) runJob(ctx context.Context, q QueueDescriptor, job *store.Job) {
	logger := w.logger.With("job_id", job.ID, "queue", job.Queue)
	logger.Info("claimed job")

	report, err := w.execute(ctx, q, job)
	if err != nil {
		w.failJob(ctx, job, err, logger)
		return
	}

	status := store.StatusComplete
	if report.Partial() {
		status = store.StatusPartial
		logger.Warn("job finished partial", "missing", report.MissingOptional)
	}
	if err := w.store.SetStatus(ctx, job.ID, status, ""); err != nil {
		logger.Error("failed to record terminal status", "error", err)
		return
	}
	logger.Info("job finished",
		"status", status,
		"executed", len(report.Executed),
		"skipped", len(report.Skipped))
}

func (w *Worker) execute(ctx context.Context, q QueueDescriptor, job *store.Job) (*pipeline.Report, error) {
	phases, err := q.Phases(job)
	if err != nil {
		return nil, fmt.Errorf("failed to build phases: %w", err)
	}

	var docs []completion.DocumentBlock
	if w.loader != nil {
		docs, err = w.loader.Load(ctx, job)
		if err != nil {
			return nil, fmt.Errorf("failed to load documents: %w", err)
		}
	}

	run := &pipeline.Run{
		Job:       job,
		Store:     w.store,
		Gateway:   w.gateway,
		Fanout:    w.fan,
		Documents: docs,
		Logger:    w.logger,
	}
	return pipeline.Execute(ctx, run, phases)
}

// failJob converts a phase error into the job's terminal error state.
// Unauthorized provider errors additionally flag the user's credential
// so no further jobs are queued against it.
func (w *Worker) failJob(ctx context.Context, job *store.Job, runErr error, logger *slog.Logger) {
	if completion.Classify(runErr) == completion.ErrorTypeUnauthorized {
		provider := ""
		if w.gateway != nil {
			provider = w.gateway.Provider()
		}
		if err := w.store.InvalidateCredential(ctx, job.UserID, provider); err != nil {
			logger.Error("failed to invalidate credential", "error", err)
		} else {
			logger.Warn("credential invalidated", "user_id", job.UserID, "provider", provider)
		}
	}

	if err := w.store.SetStatus(ctx, job.ID, store.StatusError, runErr.Error()); err != nil {
		logger.Error("failed to record job error", "error", err)
		return
	}
	logger.Error("job failed", "error", runErr)
}
