package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/fimiwatch/tweetvault/internal/data/pgxutil"
	"github.com/fimiwatch/tweetvault/internal/domain/model"
)

// taskAddedChannel is the pg_notify channel used to wake idle workers.
const taskAddedChannel = "task_added"

const defaultMaxAttempts = 3

func (r *TaskRepo) maxAttempts() int {
	if r.cfg.MaxAttempts > 0 {
		return r.cfg.MaxAttempts
	}
	return defaultMaxAttempts
}

// SQL used by ReserveNext to atomically claim the oldest pending task.
const reserveNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM tasks
    WHERE state = 'pending'
    ORDER BY submitted_at ASC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE tasks t
  SET
    state = 'running',
    started_at = COALESCE(t.started_at, $1),
    attempts = t.attempts + 1,
    lease_expires_at = $2,
    updated_at = $3
  FROM cte
  WHERE t.id = cte.id
  RETURNING t.id, t.state, t.spec, t.result, t.last_error, t.attempts, t.max_attempts, t.submitted_at, t.started_at, t.completed_at, t.lease_expires_at, t.created_at, t.updated_at`

// Create inserts a new pending task and notifies waiting workers.
func (r *TaskRepo) Create(ctx context.Context, req *model.CreateTaskRequest) (*model.TaskRecord, error) {
	if req == nil {
		return nil, errors.New("create task request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	spec, err := json.Marshal(&req.Spec)
	if err != nil {
		return nil, fmt.Errorf("marshal task spec: %w", err)
	}
	fingerprint := req.Spec.Fingerprint()

	var task *model.TaskRecord
	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			if r.cfg.DedupeInflight {
				var exists bool
				if checkErr := tx.QueryRow(ctx, `
					SELECT EXISTS(
						SELECT 1 FROM tasks
						WHERE spec_fingerprint = $1 AND state IN ('pending', 'running')
					)`, fingerprint).Scan(&exists); checkErr != nil {
					return fmt.Errorf("check in-flight fingerprint: %w", checkErr)
				}
				if exists {
					return ErrTaskInFlight
				}
			}

			rows, qerr := tx.Query(ctx, `
				INSERT INTO tasks(state, spec, spec_fingerprint, max_attempts, submitted_at)
				VALUES ('pending', $1, $2, $3, $4)
				RETURNING `+taskColumns,
				spec, fingerprint, r.maxAttempts(), r.timeProvider.Now().UTC())
			if qerr != nil {
				return fmt.Errorf("insert task: %w", qerr)
			}
			t, collectErr := collectTaskFromRows(rows)
			rows.Close()
			if collectErr != nil {
				return fmt.Errorf("collect task: %w", collectErr)
			}

			if _, notifyErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, taskAddedChannel, t.ID); notifyErr != nil {
				return fmt.Errorf("send task notification: %w", notifyErr)
			}

			task = t
			return nil
		},
	})
	if txErr != nil {
		return nil, txErr
	}
	return task, nil
}

// collectTaskFromRows collects a single task from pgx rows.
func collectTaskFromRows(rows pgx.Rows) (*model.TaskRecord, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	task, err := scanTaskFromRow(rows)
	if err != nil {
		return nil, err
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return task, nil
}

// Advisory lock namespace for requeueExpired so concurrent workers do not contend.
const (
	advisoryLockRequeueMajor int64 = 2001
	advisoryLockRequeueMinor int64 = 1
)

// requeueExpired returns expired running tasks with attempts left to the
// pending state, and returns the number of tasks requeued. Tasks out of
// attempts are left for the reaper.
func (r *TaskRepo) requeueExpired(ctx context.Context) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)", advisoryLockRequeueMajor, advisoryLockRequeueMinor).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			res, err := tx.ExecContext(ctx, `
          UPDATE tasks
          SET state = 'pending', lease_expires_at = NULL
          WHERE state = 'running'
            AND lease_expires_at IS NOT NULL
            AND lease_expires_at < $1
            AND attempts < max_attempts
        `, currentTime.UTC())
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// ReserveNext reserves the next pending task for processing.
func (r *TaskRepo) ReserveNext(ctx context.Context, leaseSeconds int) (*model.TaskRecord, error) {
	if leaseSeconds <= 0 {
		return nil, errors.New("leaseSeconds must be positive")
	}

	if _, err := r.requeueExpired(ctx); err != nil {
		return nil, fmt.Errorf("requeue expired tasks: %w", err)
	}

	var task *model.TaskRecord
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
			ReadOnly:  false,
		},
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now()
			leaseExpiresAt := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

			rows, qerr := tx.Query(
				ctx,
				reserveNextUpdateSQL,
				currentTime.UTC(),
				leaseExpiresAt.UTC(),
				currentTime.UTC(),
			)
			if qerr != nil {
				return fmt.Errorf("reserve task: %w", qerr)
			}
			defer rows.Close()

			t, cerr := collectTaskFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoTasksAvailable
			}
			if cerr != nil {
				return fmt.Errorf("reserve task: %w", cerr)
			}
			task = t
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoTasksAvailable) {
			return nil, model.ErrNoTasksAvailable
		}
		return nil, err
	}
	return task, nil
}

// WaitForNotification blocks until a new-task notification arrives or the context ends.
func (r *TaskRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	quoted := pgx.Identifier{taskAddedChannel}.Sanitize()
	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", taskAddedChannel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// Heartbeat refreshes the lease on a running task.
func (r *TaskRepo) Heartbeat(ctx context.Context, taskID string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}

	currentTime := r.timeProvider.Now().UTC()
	leaseExpiration := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

	res, err := r.DB.ExecContext(ctx, `
		UPDATE tasks
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND state = 'running'
	`, taskID, leaseExpiration, currentTime)
	if err != nil {
		return false, fmt.Errorf("heartbeat task: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Complete stores the task result and moves the task to the terminal state
// the result implies. Returns false when the task was not running, which
// means another worker or the reaper already settled it.
func (r *TaskRepo) Complete(ctx context.Context, id string, result *model.TaskResult) (bool, error) {
	if result == nil {
		return false, errors.New("task result is required")
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("marshal task result: %w", err)
	}

	state := result.State()
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE tasks
		SET state = $2,
		    result = $3,
		    completed_at = $4,
		    updated_at = $4,
		    lease_expires_at = NULL,
		    last_error = NULL
		WHERE id = $1 AND state = 'running'
	`, id, state, resultJSON, currentTime)
	if err != nil {
		return false, fmt.Errorf("complete task: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Fail marks a running task as failed with the given error message, or
// returns it to pending when attempts remain.
func (r *TaskRepo) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	var state string
	err := r.DB.QueryRowContext(ctx, `
      UPDATE tasks
      SET
        last_error = $2,
        state = CASE WHEN attempts >= max_attempts THEN 'failure' ELSE 'pending' END,
        completed_at = CASE WHEN attempts >= max_attempts THEN $3::timestamptz ELSE NULL END,
        lease_expires_at = NULL,
        updated_at = $3
      WHERE id = $1 AND state = 'running'
      RETURNING state
    `, id, errMsg, currentTime).Scan(&state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("fail task: %w", err)
	}

	if r.logger != nil {
		r.logger.WarnContext(ctx, "task failed",
			"task_id", id,
			"state", state,
			"error", errMsg,
		)
	}
	return true, nil
}

// Stats returns counts of tasks in each lifecycle state.
func (r *TaskRepo) Stats(ctx context.Context) (*model.TaskStats, error) {
	var s model.TaskStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE state = 'pending')         AS pending,
    count(*) FILTER (WHERE state = 'running')         AS running,
    count(*) FILTER (WHERE state = 'success')         AS success,
    count(*) FILTER (WHERE state = 'partial_failure') AS partial_failure,
    count(*) FILTER (WHERE state = 'failure')         AS failure
  FROM tasks
  `).Scan(
		&s.Pending,
		&s.Running,
		&s.Success,
		&s.PartialFailure,
		&s.Failure,
	)
	if err != nil {
		return nil, fmt.Errorf("get task stats: %w", err)
	}
	return &s, nil
}

// GetByID retrieves a task by its ID.
func (r *TaskRepo) GetByID(ctx context.Context, id string) (*model.TaskRecord, error) {
	var task *model.TaskRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+taskColumns+`
			FROM tasks
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		task, err = collectTaskFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// List returns tasks matching the given filters, newest first by default.
func (r *TaskRepo) List(ctx context.Context, opts *model.TaskListOptions) ([]*model.TaskRecord, error) {
	if opts == nil {
		opts = &model.TaskListOptions{}
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	var conds []string
	var args []any

	if opts.State != nil {
		args = append(args, *opts.State)
		conds = append(conds, fmt.Sprintf("state = $%d", len(args)))
	}
	if opts.EventLabel != nil {
		args = append(args, *opts.EventLabel)
		conds = append(conds, fmt.Sprintf("spec->>'event_label' = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	order := "DESC"
	if strings.EqualFold(opts.SortOrder, "asc") {
		order = "ASC"
	}
	query += " ORDER BY submitted_at " + order

	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.TaskRecord
	for rows.Next() {
		task, scanErr := scanTaskFromRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan task: %w", scanErr)
		}
		tasks = append(tasks, task)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate tasks: %w", rowsErr)
	}
	return tasks, nil
}

// Delete removes a task by ID. Running tasks with a live lease are protected.
func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	currentTime := r.timeProvider.Now()
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM tasks
		WHERE id = $1
		  AND (state != 'running' OR lease_expires_at IS NULL OR lease_expires_at <= $2)
	`, id, currentTime.UTC())
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		if errors.Is(getErr, ErrTaskNotFound) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("re-check task after delete attempt: %w", getErr)
	}
	return ErrTaskNotDeletable
}
