package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fimiwatch/tweetvault/internal/core"
	"github.com/fimiwatch/tweetvault/internal/data/pgxutil"
)

// Advisory lock namespace for reaper operations. Major key 2000 is reserved
// for tweetvault reaper operations; minor keys distinguish the sweeps.
const (
	advisoryLockReaperMajor       = 2000
	advisoryLockReaperFailRunning = 1
	advisoryLockReaperDelete      = 2
)

// FailStaleRunningTasks marks running tasks whose lease expired more than
// maxAge ago as failed. These are tasks no worker requeued, which happens
// when every attempt was burned or no runner is alive. Processes up to
// batchSize tasks per call to prevent long locks. Returns the number of
// tasks marked as failed.
func (r *TaskRepo) FailStaleRunningTasks(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperFailRunning).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			cutoffTime := currentTime.Add(-maxAge)

			res, err := tx.ExecContext(ctx, `
				UPDATE tasks
				SET state = 'failure',
					last_error = 'Task lease expired without completion',
					completed_at = $1,
					updated_at = $1,
					lease_expires_at = NULL
				WHERE id IN (
					SELECT id FROM tasks
					WHERE state = 'running'
					  AND lease_expires_at IS NOT NULL
					  AND lease_expires_at < $2
					ORDER BY lease_expires_at
					LIMIT $3
				)
			`, currentTime.UTC(), cutoffTime.UTC(), batchSize)
			if err != nil {
				return fmt.Errorf("fail stale running tasks: %w", err)
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

// DeleteOldTasks deletes terminal tasks in the given state older than maxAge.
// Processes up to batchSize tasks per call to prevent long locks. Returns the
// number of tasks deleted.
func (r *TaskRepo) DeleteOldTasks(ctx context.Context, params core.DeleteOldTasksParams) (int64, error) {
	if !params.State.Terminal() {
		return 0, fmt.Errorf("state %q is not terminal", params.State)
	}
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.MaxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperDelete).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			cutoffTime := currentTime.Add(-params.MaxAge)

			res, err := tx.ExecContext(ctx, `
				DELETE FROM tasks
				WHERE id IN (
					SELECT id FROM tasks
					WHERE state = $1
					  AND (completed_at < $2 OR (completed_at IS NULL AND updated_at < $2))
					ORDER BY COALESCE(completed_at, updated_at)
					LIMIT $3
				)
			`, params.State, cutoffTime.UTC(), params.BatchSize)
			if err != nil {
				return fmt.Errorf("delete old tasks: %w", err)
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
