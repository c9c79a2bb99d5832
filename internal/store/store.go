// Package store provides the durable Task/TaskLog record keeper behind the
// pipeline executor. Two backends are supported, sqlite (default, via the
// pure-Go modernc.org/sqlite driver) and postgres (via lib/pq), selected
// through New.
package store

import (
	"context"
	"time"
)

// Store is the durable Task/TaskLog keeper. Task creation, every status
// transition and every retry also append a TaskLog row describing them,
// matching the original service's behavior of narrating every status
// change into the task's own log stream. PruneCompletedBefore writes no
// log row.
type Store interface {
	// CreateTask inserts a new Pending task and its creation log line.
	CreateTask(ctx context.Context, t *Task) error

	// GetTask fetches a task by its external task_id. Returns ErrNotFound
	// if no such task exists.
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// ListTasksByIssue returns every task ever created for an issue,
	// newest first.
	ListTasksByIssue(ctx context.Context, issueNumber int) ([]*Task, error)

	// ListTasks returns tasks matching filter, newest first.
	ListTasks(ctx context.Context, filter ListFilter) ([]*Task, error)

	// UpdateStatus performs a guarded transition from the task's current
	// status to `to`, applying the optional fields in update. Returns
	// ErrInvalidTransition if the edge isn't legal. Setting status to
	// Running stamps started_at only the first time; setting it to any
	// terminal status stamps completed_at.
	UpdateStatus(ctx context.Context, taskID string, to Status, update StatusUpdate) error

	// Retry resets a task in a terminal failure state back to Pending,
	// incrementing retry_count and clearing started_at, completed_at,
	// error_message and success. Returns ErrRetryLimitExceeded if
	// retry_count has already reached max_retries, and
	// ErrInvalidTransition if the task isn't Failed or Cancelled.
	Retry(ctx context.Context, taskID string) error

	// AddLog appends a single log line to a task's history.
	AddLog(ctx context.Context, taskID, level, message string) error

	// GetLogs returns every log line for a task with id > afterID,
	// ordered by id ascending. Used by the log streamer's poll loop.
	GetLogs(ctx context.Context, taskID string, afterID int64) ([]*TaskLog, error)

	// Stats summarizes task counts by status.
	Stats(ctx context.Context) (Stats, error)

	// PruneCompletedBefore deletes every task in a terminal status whose
	// completed_at is older than before, along with its logs. Returns the
	// number of tasks removed. Used by the periodic retention reaper.
	PruneCompletedBefore(ctx context.Context, before time.Time) (int64, error)

	// Close releases the underlying connection.
	Close() error
}
