package data

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fimiwatch/tweetvault/internal/domain/model"
)

var (
	// ErrTaskNotFound is returned when a task is not found.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskNotDeletable is returned when attempting to delete a task that is still running.
	ErrTaskNotDeletable = errors.New("task cannot be deleted while running")
	// ErrTaskInFlight is returned when an identical task is already pending or running.
	ErrTaskInFlight = errors.New("an identical task is already in flight")
)

// RepoConfig holds configuration options for the task repository.
type RepoConfig struct {
	MaxAttempts    int
	DedupeInflight bool
	Logger         *slog.Logger
	TimeProvider   TimeProvider
}

// TaskRepo provides database operations for archive task management.
type TaskRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewTaskRepo creates a new TaskRepo instance with the given database connection and configuration.
func NewTaskRepo(db *sql.DB, cfg RepoConfig) *TaskRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &TaskRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const taskColumns = `
  id,
  state,
  spec,
  result,
  last_error,
  attempts,
  max_attempts,
  submitted_at,
  started_at,
  completed_at,
  lease_expires_at,
  created_at,
  updated_at
`

type taskRowScanner interface {
	Scan(dest ...any) error
}

type taskRowData struct {
	spec, result                           []byte
	lastError                              sql.NullString
	startedAt, completedAt, leaseExpiresAt sql.NullTime
}

func (d *taskRowData) scanInto(scanner taskRowScanner, task *model.TaskRecord) error {
	return scanner.Scan(
		&task.ID,
		&task.State,
		&d.spec,
		&d.result,
		&d.lastError,
		&task.Attempts,
		&task.MaxAttempts,
		&task.SubmittedAt,
		&d.startedAt,
		&d.completedAt,
		&d.leaseExpiresAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
}

func (d *taskRowData) apply(task *model.TaskRecord) error {
	if err := json.Unmarshal(d.spec, &task.Spec); err != nil {
		return fmt.Errorf("decode task spec: %w", err)
	}
	if len(d.result) > 0 {
		var res model.TaskResult
		if err := json.Unmarshal(d.result, &res); err != nil {
			return fmt.Errorf("decode task result: %w", err)
		}
		task.Result = &res
	}
	task.LastError = cloneNullableString(d.lastError)
	task.StartedAt = cloneNullableTime(d.startedAt)
	task.CompletedAt = cloneNullableTime(d.completedAt)
	task.LeaseExpiresAt = cloneNullableTime(d.leaseExpiresAt)
	return nil
}

func scanTaskFromRow(scanner taskRowScanner) (*model.TaskRecord, error) {
	task := &model.TaskRecord{}
	var data taskRowData
	if err := data.scanInto(scanner, task); err != nil {
		return nil, err
	}
	if err := data.apply(task); err != nil {
		return nil, err
	}
	return task, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
