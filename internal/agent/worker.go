// Package agent wires the queue client, filter policy and executors into the
// poll-process-submit loops and the schema discovery runner.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/guzun-corp/tsight-agent/internal/domain"
	"github.com/guzun-corp/tsight-agent/internal/executor"
	"github.com/guzun-corp/tsight-agent/internal/filter"
	"github.com/guzun-corp/tsight-agent/internal/server"
	"github.com/guzun-corp/tsight-agent/internal/telemetry"
)

// ExecutorFactory opens an executor for a datasource. Injected so worker
// tests can run without a live store.
type ExecutorFactory func(ds domain.DataSource, policy *filter.Policy, opts executor.Options) (executor.Executor, error)

// Deps holds everything a worker or discovery runner needs.
type Deps struct {
	Client      *server.Client
	Datasources []domain.DataSource
	Policy      *filter.Policy
	Metrics     *telemetry.Metrics
	Logger      *slog.Logger
	// NewExecutor defaults to executor.Open.
	NewExecutor ExecutorFactory
	// PollInterval paces queue polling (default 1s).
	PollInterval time.Duration
	// DiscoveryConcurrency bounds the per-table discovery fan-out.
	DiscoveryConcurrency int
}

func (d *Deps) fill() {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.NewExecutor == nil {
		d.NewExecutor = executor.Open
	}
	if d.PollInterval <= 0 {
		d.PollInterval = time.Second
	}
}

type workerKind int

const (
	kindObservation workerKind = iota
	kindJob
)

// Worker runs one acquire → execute → submit loop against a single queue.
type Worker struct {
	deps         Deps
	kind         workerKind
	highPriority bool
	limiter      *rate.Limiter
	logger       *slog.Logger
}

// NewObservationWorker creates a worker for the observation queue; the high
// priority flag selects the high-priority variant of that queue.
func NewObservationWorker(deps Deps, highPriority bool) *Worker {
	return newWorker(deps, kindObservation, highPriority)
}

// NewJobWorker creates a worker for the ad-hoc job queue.
func NewJobWorker(deps Deps) *Worker {
	return newWorker(deps, kindJob, false)
}

func newWorker(deps Deps, kind workerKind, highPriority bool) *Worker {
	deps.fill()
	w := &Worker{
		deps:         deps,
		kind:         kind,
		highPriority: highPriority,
		limiter:      rate.NewLimiter(rate.Every(deps.PollInterval), 1),
	}
	w.logger = deps.Logger.With("queue", w.queue())
	return w
}

func (w *Worker) queue() string {
	switch {
	case w.kind == kindJob:
		return telemetry.QueueJobs
	case w.highPriority:
		return telemetry.QueueHighPriority
	default:
		return telemetry.QueueObservations
	}
}

// Run polls the queue until the context is canceled. An empty queue is
// logged at debug level; processing failures are logged and the loop
// continues.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	for {
		if err := w.limiter.Wait(ctx); err != nil {
			w.logger.Info("worker stopped")
			return
		}
		if err := w.ProcessNext(ctx); err != nil {
			if errors.Is(err, server.ErrNoTask) {
				w.logger.Debug("queue empty")
				continue
			}
			w.logger.Error("failed to process task", "error", err)
		}
	}
}

// ProcessNext acquires one task, executes it, and submits either the results
// or the execution error back to the server. The execution error is also
// returned so the caller can log it.
func (w *Worker) ProcessNext(ctx context.Context) error {
	task, err := w.acquire(ctx)
	if err != nil {
		if errors.Is(err, server.ErrNoTask) {
			return err
		}
		return fmt.Errorf("acquire from %s queue: %w", w.queue(), err)
	}

	start := time.Now()
	err = w.process(ctx, task)
	if w.deps.Metrics != nil {
		status := telemetry.StatusOK
		if err != nil {
			status = telemetry.StatusError
		}
		w.deps.Metrics.TasksTotal.WithLabelValues(w.queue(), status).Inc()
		w.deps.Metrics.TaskDuration.WithLabelValues(w.queue()).Observe(time.Since(start).Seconds())
	}
	return err
}

func (w *Worker) acquire(ctx context.Context) (*domain.Task, error) {
	if w.kind == kindJob {
		return w.deps.Client.AcquireJob(ctx)
	}
	return w.deps.Client.AcquireTask(ctx, w.highPriority)
}

func (w *Worker) process(ctx context.Context, task *domain.Task) error {
	switch w.kind {
	case kindJob:
		rows, err := executeTask(ctx, w, task, executor.Executor.ExecuteJob)
		if err != nil {
			w.submitError(ctx, task.ID, err)
			return err
		}
		if err := w.deps.Client.SubmitJobRecords(ctx, task.ID, rows); err != nil {
			return fmt.Errorf("submit job results for %s: %w", task.ID, err)
		}
	default:
		records, err := executeTask(ctx, w, task, executor.Executor.ExecuteTS)
		if err != nil {
			w.submitError(ctx, task.ID, err)
			return err
		}
		if err := w.deps.Client.SubmitRecords(ctx, task.ID, records, w.highPriority); err != nil {
			return fmt.Errorf("submit results for %s: %w", task.ID, err)
		}
	}
	w.logger.Info("task completed", "task_id", task.ID)
	return nil
}

// submitError reports the execution failure back to the queue. A failed
// submission is logged but never masks the original error.
func (w *Worker) submitError(ctx context.Context, taskID string, execErr error) {
	var err error
	if w.kind == kindJob {
		err = w.deps.Client.SubmitJobError(ctx, taskID, execErr.Error())
	} else {
		err = w.deps.Client.SubmitTaskError(ctx, taskID, execErr.Error(), w.highPriority)
	}
	if err != nil {
		w.logger.Warn("failed to submit error", "task_id", taskID, "error", err)
	}
}

// executeTask resolves the datasource named by the task, opens a fresh
// executor for it and runs one query. The executor lives for one task only.
func executeTask[T any](ctx context.Context, w *Worker, task *domain.Task, run func(executor.Executor, context.Context, string) (T, error)) (T, error) {
	var zero T

	ds, ok := findDatasource(w.deps.Datasources, task.DatasourceName)
	if !ok {
		return zero, fmt.Errorf("no matching datasource %q for task %s", task.DatasourceName, task.ID)
	}

	exec, err := w.deps.NewExecutor(ds, w.deps.Policy, executor.Options{
		DiscoveryConcurrency: w.deps.DiscoveryConcurrency,
		Logger:               w.logger,
		Metrics:              w.deps.Metrics,
	})
	if err != nil {
		return zero, err
	}
	defer exec.Close() //nolint:errcheck

	out, err := run(exec, ctx, task.Query)
	if err != nil {
		return zero, fmt.Errorf("query execution error for task %s: %w", task.ID, err)
	}
	return out, nil
}

func findDatasource(sources []domain.DataSource, name string) (domain.DataSource, bool) {
	for _, ds := range sources {
		if ds.Name == name {
			return ds, true
		}
	}
	return domain.DataSource{}, false
}
