// Package archiverunner provides the worker loop that executes archive tasks.
package archiverunner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fimiwatch/tweetvault/internal/core"
	"github.com/fimiwatch/tweetvault/internal/data"
	"github.com/fimiwatch/tweetvault/internal/domain/model"
	"github.com/fimiwatch/tweetvault/internal/observability/metrics"
	"github.com/fimiwatch/tweetvault/internal/observability/notify"
	"github.com/fimiwatch/tweetvault/internal/observability/statsd"
	"github.com/fimiwatch/tweetvault/internal/service"
	"github.com/fimiwatch/tweetvault/internal/service/failurenotifier"
	"golang.org/x/sync/errgroup"
)

// RunnerOptions configures the archive task runner adapter.
type RunnerOptions struct {
	DB     *sql.DB
	Logger *slog.Logger

	// Task processing settings
	Lease        time.Duration // per-task lease duration; defaults to 30s
	Concurrency  int           // number of worker goroutines; defaults to 1
	TaskTimeout  time.Duration // wall-clock ceiling per task; defaults to 30m
	PollInterval time.Duration // fallback reserve interval; defaults to 30s

	// Pipeline dependencies. Pipeline wins when set; otherwise one is built
	// from the gateways below.
	Pipeline    *service.ArchivePipeline
	Source      core.SourceGateway
	Sink        core.SinkGateway
	Credentials core.CredentialStore
	RootFolder  string

	// Optional dependency injections (useful for tests/decoupling)
	TasksRepo   core.TaskRepository
	TaskService *service.TaskService
	Metrics     statsd.Sink
	RepoConfig  data.RepoConfig
	Notifier    *failurenotifier.Service
}

// Runner pulls pending archive tasks and executes them through the pipeline.
type Runner struct {
	tasks    *service.TaskService
	pipeline *service.ArchivePipeline
	logger   *slog.Logger
	lease    time.Duration
	workers  int
	timeout  time.Duration
	poll     time.Duration
	metrics  statsd.Sink
	notifier *failurenotifier.Service
}

// NewRunner wires repositories/services and constructs an archive task runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.TasksRepo == nil && opts.TaskService == nil {
		return nil, errors.New("either DB, TasksRepo, or TaskService must be provided")
	}

	logger := resolveLogger(opts.Logger)
	lease := resolveLease(opts.Lease)

	tasks := opts.TaskService
	if tasks == nil {
		repo := opts.TasksRepo
		if repo == nil {
			cfg := opts.RepoConfig
			if cfg.Logger == nil {
				cfg.Logger = logger
			}
			repo = data.NewTaskRepo(opts.DB, cfg)
		}
		var err error
		tasks, err = service.NewTaskService(service.TaskServiceOptions{
			Repo:         repo,
			DefaultLease: lease,
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create task service: %w", err)
		}
	}

	pipeline := opts.Pipeline
	if pipeline == nil {
		var err error
		pipeline, err = service.NewArchivePipeline(service.ArchivePipelineOptions{
			Source:      opts.Source,
			Sink:        opts.Sink,
			Credentials: opts.Credentials,
			RootFolder:  opts.RootFolder,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create archive pipeline: %w", err)
		}
	}

	timeout := opts.TaskTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 30 * time.Second
	}

	return &Runner{
		tasks:    tasks,
		pipeline: pipeline,
		logger:   logger,
		lease:    lease,
		workers:  resolveWorkers(opts.Concurrency),
		timeout:  timeout,
		poll:     poll,
		metrics:  opts.Metrics,
		notifier: opts.Notifier,
	}, nil
}

// Run starts worker goroutines and processes tasks until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting archive runner",
		"workers", r.workers, "lease", r.lease, "task_timeout", r.timeout)

	group, gctx := errgroup.WithContext(ctx)
	for range r.workers {
		group.Go(func() error { return r.runWorkerLoop(gctx) })
	}

	err := group.Wait()
	r.tasks.StopAllListeners()
	return err
}

// runWorkerLoop reserves and processes tasks until the context closes.
func (r *Runner) runWorkerLoop(ctx context.Context) error {
	unsub, ch := r.tasks.Subscribe()
	defer unsub()

	for ctx.Err() == nil {
		task, err := r.tasks.ReserveNext(ctx, r.lease)
		switch {
		case err == nil:
			if task != nil {
				r.processTask(ctx, task)
			}
		case errors.Is(err, model.ErrNoTasksAvailable):
			if !r.waitForNotify(ctx, ch) {
				return nil
			}
		default:
			if ctx.Err() != nil {
				return nil
			}
			r.logger.ErrorContext(ctx, "failed to reserve next task", "error", err)
			return err
		}
	}
	return ctx.Err()
}

// processTask runs one task under its lease heartbeat and wall-clock ceiling
// and stores the terminal result.
func (r *Runner) processTask(ctx context.Context, task *model.TaskRecord) {
	r.logger.InfoContext(ctx, "processing archive task",
		"task_id", task.ID, "event_label", task.Spec.EventLabel, "attempt", task.Attempts)

	start := time.Now()

	taskCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	stopHB := r.startHeartbeat(taskCtx, task.ID)
	result := r.pipeline.Run(taskCtx, task)
	stopHB()

	// A deadline hit surfaces as a whole-task timeout while keeping the
	// summaries of pairs that finished before the ceiling. The pipeline may
	// have recorded the deadline already; one entry is enough.
	if errors.Is(taskCtx.Err(), context.DeadlineExceeded) && !result.HasErrorKind(model.ErrorKindTimeout) {
		result.Errors = append(result.Errors, model.ErrorDetail{
			Kind:    model.ErrorKindTimeout,
			Message: fmt.Sprintf("task exceeded wall-clock ceiling of %s", r.timeout),
		})
	}

	// Store the result with the worker context: the task context may already
	// be past its deadline.
	if completed, err := r.tasks.Complete(ctx, task.ID, result); err != nil {
		r.logger.ErrorContext(ctx, "failed to store task result", "task_id", task.ID, "error", err)
		if _, ferr := r.tasks.Fail(ctx, task.ID, fmt.Sprintf("store result: %v", err)); ferr != nil {
			r.logger.ErrorContext(ctx, "failed to mark task as failed", "task_id", task.ID, "error", ferr)
		}
		r.emitTaskMetric(taskMetricInput{Task: task, Result: result, Elapsed: time.Since(start), Err: err})
		r.notifyFailure(ctx, task, result)
		return
	} else if !completed {
		// Lost the lease between the last heartbeat and completion; another
		// worker owns the task now.
		r.logger.WarnContext(ctx, "task no longer running, result discarded", "task_id", task.ID)
		return
	}

	r.emitTaskMetric(taskMetricInput{Task: task, Result: result, Elapsed: time.Since(start)})
	r.emitPairMetrics(result)

	if result.State() == model.TaskStateFailure {
		r.notifyFailure(ctx, task, result)
	}
}

// notifyFailure dispatches the terminal failure to any configured sinks.
func (r *Runner) notifyFailure(ctx context.Context, task *model.TaskRecord, result *model.TaskResult) {
	if r.notifier == nil || !r.notifier.Enabled() {
		return
	}

	payload := notify.TaskFailurePayload{
		TaskID:     task.ID,
		EventLabel: task.Spec.EventLabel,
		State:      string(model.TaskStateFailure),
		OccurredAt: time.Now(),
	}
	if result != nil && len(result.Errors) > 0 {
		first := result.Errors[0]
		payload.Error = first.Message
		payload.ErrorClass = string(first.Kind)
		if len(result.Errors) > 1 {
			payload.Metadata = map[string]string{
				"error_count": fmt.Sprintf("%d", len(result.Errors)),
			}
		}
	}

	r.notifier.NotifyTaskFailure(ctx, payload)
}

// startHeartbeat starts a background ticker to extend the task lease
// periodically. It returns a stop function to end the heartbeat.
func (r *Runner) startHeartbeat(ctx context.Context, taskID string) func() {
	interval := r.lease / 2
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if ok, err := r.tasks.Heartbeat(ctx, taskID, r.lease); err != nil {
					r.logger.ErrorContext(ctx, "heartbeat failed", "task_id", taskID, "error", err)
				} else if !ok {
					r.logger.WarnContext(ctx, "heartbeat not applied (task may be lost)", "task_id", taskID)
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}

// waitForNotify waits for a task notification, the fallback poll interval, or
// context cancellation. The poll interval also picks up tasks requeued after
// lease expiry, which never trigger a notification.
func (r *Runner) waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	timer := time.NewTimer(r.poll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	case <-timer.C:
		return true
	}
}

type taskMetricInput struct {
	Task    *model.TaskRecord
	Result  *model.TaskResult
	Elapsed time.Duration
	Err     error
}

func (r *Runner) emitTaskMetric(input taskMetricInput) {
	if r.metrics == nil || input.Task == nil {
		return
	}

	result := metrics.ResultError
	if input.Err == nil && input.Result != nil {
		switch input.Result.State() {
		case model.TaskStateSuccess:
			result = metrics.ResultSuccess
		case model.TaskStatePartialFailure:
			result = metrics.ResultPartial
		}
	}

	metrics.EmitTaskLifecycle(r.metrics, metrics.TaskMetric{
		Transition: "completed",
		Result:     result,
		Pairs:      len(input.Task.Spec.Pairs()),
		Duration:   input.Elapsed,
		Err:        input.Err,
	})
}

func (r *Runner) emitPairMetrics(result *model.TaskResult) {
	if r.metrics == nil || result == nil {
		return
	}
	for _, summary := range result.Summaries {
		metrics.EmitPairOutcome(r.metrics, metrics.PairMetric{
			Result:   metrics.ResultSuccess,
			Fetched:  summary.TweetsFetched,
			Uploaded: summary.FilesWritten,
		})
	}
	for range result.Errors {
		metrics.EmitPairOutcome(r.metrics, metrics.PairMetric{Result: metrics.ResultError})
	}
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

func resolveLease(lease time.Duration) time.Duration {
	if lease > 0 {
		return lease
	}
	return 30 * time.Second
}

func resolveWorkers(workers int) int {
	if workers > 0 {
		return workers
	}
	return 1
}
