package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fimiwatch/tweetvault/internal/core"
	"github.com/fimiwatch/tweetvault/internal/domain/model"
	domaintask "github.com/fimiwatch/tweetvault/internal/domain/task"
)

// TaskServiceOptions groups dependencies for TaskService.
type TaskServiceOptions struct {
	Repo            core.TaskRepository          // Required: task repository
	DefaultLease    time.Duration                // Required: default lease duration for claimed tasks
	Logger          *slog.Logger                 // Optional: structured logger
	LeasePolicy     *domaintask.LeasePolicy      // Optional: override default lease policy
	Notifier        domaintask.Notifier          // Optional: custom task availability notifier
	NotifierOptions domaintask.NotifierOptions   // Optional: configure default notifier behaviour
}

// TaskService provides business logic for archive task operations.
//
// This service manages:
// - Task submission and status queries
// - Task reservation and lease management for the archive runner
// - Pub/sub notification of task availability
// - Graceful shutdown of notification listeners.
type TaskService struct {
	repo        core.TaskRepository
	leasePolicy *domaintask.LeasePolicy
	notifier    domaintask.Notifier
	logger      *slog.Logger
}

// NewTaskService constructs a new TaskService.
func NewTaskService(opts TaskServiceOptions) (*TaskService, error) {
	if opts.Repo == nil {
		return nil, errors.New("TaskRepository is required")
	}

	var leasePolicy *domaintask.LeasePolicy
	switch {
	case opts.LeasePolicy != nil:
		leasePolicy = opts.LeasePolicy
	case opts.DefaultLease > 0:
		var err error
		leasePolicy, err = domaintask.NewLeasePolicy(opts.DefaultLease)
		if err != nil {
			return nil, fmt.Errorf("create lease policy: %w", err)
		}
	default:
		return nil, errors.New("DefaultLease must be positive")
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repo
		}
		var err error
		notifier, err = domaintask.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create task notifier: %w", err)
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "task_service")
		logger.Debug("TaskService initialized",
			"default_lease", leasePolicy.Default(),
		)
	}

	return &TaskService{
		repo:        opts.Repo,
		leasePolicy: leasePolicy,
		notifier:    notifier,
		logger:      logger,
	}, nil
}

// MustNewTaskService constructs a new TaskService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewTaskService(opts TaskServiceOptions) *TaskService {
	svc, err := NewTaskService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create TaskService: %v", err))
	}
	return svc
}

// Submit validates and persists a new archive task in pending state.
func (s *TaskService) Submit(ctx context.Context, req *model.CreateTaskRequest) (*model.TaskRecord, error) {
	if req == nil {
		return nil, errors.New("create task request is required")
	}

	task, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("submit task: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "task submitted",
			"id", task.ID,
			"event_label", task.Spec.EventLabel,
			"pairs", len(task.Spec.Pairs()),
		)
	}

	return task, nil
}

// GetStatus returns the polling payload for one task.
func (s *TaskService) GetStatus(ctx context.Context, id string) (*model.TaskStatusResponse, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}

	return &model.TaskStatusResponse{
		TaskID:      task.ID,
		State:       task.State,
		Result:      task.Result,
		LastError:   task.LastError,
		SubmittedAt: task.SubmittedAt,
		CompletedAt: task.CompletedAt,
	}, nil
}

// GetByID returns a task by its ID.
func (s *TaskService) GetByID(ctx context.Context, id string) (*model.TaskRecord, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get task by id %s: %w", id, err)
	}
	return task, nil
}

// ReserveNext reserves the next available pending task for processing.
func (s *TaskService) ReserveNext(ctx context.Context, lease time.Duration) (*model.TaskRecord, error) {
	decision := s.leasePolicy.Resolve(lease)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second lease duration to 1 second",
			"requested_duration", decision.Requested)
	}

	task, err := s.repo.ReserveNext(ctx, decision.Seconds)
	if err != nil {
		if errors.Is(err, model.ErrNoTasksAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("reserve next task: %w", err)
	}

	if s.logger != nil && task != nil {
		s.logger.DebugContext(ctx, "task reserved",
			"id", task.ID,
			"attempt", task.Attempts,
			"lease_seconds", decision.Seconds,
		)
	}

	return task, nil
}

// Heartbeat extends the lease on a running task.
func (s *TaskService) Heartbeat(ctx context.Context, id string, extend time.Duration) (bool, error) {
	decision := s.leasePolicy.Resolve(extend)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second heartbeat duration to 1 second",
			"requested_duration", decision.Requested,
			"task_id", id)
	}

	updated, err := s.repo.Heartbeat(ctx, id, decision.Seconds)
	if err != nil {
		return false, fmt.Errorf("heartbeat task %s: %w", id, err)
	}

	if s.logger != nil && updated {
		s.logger.DebugContext(ctx, "task heartbeat updated", "id", id, "extend_seconds", decision.Seconds)
	}

	return updated, nil
}

// Complete records the result of a finished task. The terminal state is
// derived from the result's per-pair outcomes.
func (s *TaskService) Complete(ctx context.Context, id string, result *model.TaskResult) (bool, error) {
	if result == nil {
		return false, errors.New("task result is required")
	}

	completed, err := s.repo.Complete(ctx, id, result)
	if err != nil {
		return false, fmt.Errorf("complete task %s: %w", id, err)
	}

	if s.logger != nil && completed {
		s.logger.InfoContext(ctx, "task completed",
			"id", id,
			"state", result.State(),
			"pairs_ok", len(result.Summaries),
			"pairs_failed", len(result.Errors),
		)
	}

	return completed, nil
}

// Fail marks a task as failed with the given error message. The repository
// decides whether the task gets another attempt or lands in failure.
func (s *TaskService) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	if errMsg == "" {
		return false, errors.New("error message required")
	}

	failed, err := s.repo.Fail(ctx, id, errMsg)
	if err != nil {
		return false, fmt.Errorf("fail task %s: %w", id, err)
	}

	if s.logger != nil && failed {
		s.logger.WarnContext(ctx, "task failed", "id", id, "error", errMsg)
	}

	return failed, nil
}

// Stats returns counts of tasks in each lifecycle state.
func (s *TaskService) Stats(ctx context.Context) (*model.TaskStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get task stats: %w", err)
	}
	return stats, nil
}

// List returns tasks matching the given filters with pagination.
// Pagination defaults are normalized here to avoid drift across layers.
func (s *TaskService) List(ctx context.Context, opts *model.TaskListOptions) ([]*model.TaskRecord, error) {
	if opts == nil {
		opts = &model.TaskListOptions{}
	}

	p := normalizeTaskPagination(opts.Limit, opts.Offset)
	opts.Limit = p.Limit
	opts.Offset = p.Offset

	tasks, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Delete deletes a task by ID with state machine safety checks. Tasks that
// are running under a live lease cannot be deleted.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("task id is required")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if s.logger != nil {
			s.logger.DebugContext(ctx, "failed to delete task", "id", id, "error", err)
		}
		return fmt.Errorf("delete task %s: %w", id, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "task deleted", "id", id)
	}

	return nil
}

// Subscribe creates a subscription for task availability notifications.
// Returns an unsubscribe function and a channel that receives notifications.
func (s *TaskService) Subscribe() (func(), <-chan struct{}) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return s.notifier.Subscribe()
}

// WaitForNotification waits for a notification indicating new tasks are available.
func (s *TaskService) WaitForNotification(ctx context.Context) error {
	return s.repo.WaitForNotification(ctx)
}

// StopAllListeners stops all active task notification listeners.
// This should be called during graceful shutdown to clean up goroutines.
func (s *TaskService) StopAllListeners() {
	if s.logger != nil {
		s.logger.Info("stopping all task listeners")
	}

	if s.notifier != nil {
		s.notifier.StopAll()
	}
}

// taskPaginationParams holds normalized pagination parameters.
type taskPaginationParams struct {
	Limit  int
	Offset int
}

// normalizeTaskPagination clamps pagination parameters to safe defaults.
// Default limit: 50, max limit: 500, min offset: 0.
func normalizeTaskPagination(limit, offset int) taskPaginationParams {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return taskPaginationParams{Limit: limit, Offset: offset}
}
