package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store on top of PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a postgres-backed store and applies migrations.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id SERIAL PRIMARY KEY,
			task_id TEXT NOT NULL UNIQUE,
			issue_number INTEGER NOT NULL,
			issue_title TEXT NOT NULL DEFAULT '',
			issue_url TEXT NOT NULL DEFAULT '',
			issue_body TEXT,
			branch_name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			started_at TIMESTAMP,
			completed_at TIMESTAMP,
			success BOOLEAN,
			error_message TEXT,
			execution_seconds DOUBLE PRECISION,
			proposal_number INTEGER,
			proposal_url TEXT,
			development_summary TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			max_retries INTEGER NOT NULL DEFAULT 2
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_issue_number ON tasks (issue_number);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks (status);`,
		`CREATE TABLE IF NOT EXISTS task_logs (
			id SERIAL PRIMARY KEY,
			task_id TEXT NOT NULL REFERENCES tasks(task_id) ON DELETE CASCADE,
			level TEXT NOT NULL DEFAULT 'info',
			message TEXT NOT NULL,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_task_logs_task_id ON task_logs (task_id, id);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// CreateTask inserts a new Pending task and its creation log line.
func (s *PostgresStore) CreateTask(ctx context.Context, t *Task) error {
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.MaxRetries == 0 {
		t.MaxRetries = 2
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (task_id, issue_number, issue_title, issue_url, issue_body, branch_name, status, created_at, retry_count, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.TaskID, t.IssueNumber, t.IssueTitle, t.IssueURL, t.IssueBody, t.BranchName, string(t.Status), t.CreatedAt, t.RetryCount, t.MaxRetries)
	if err != nil {
		return err
	}
	return s.AddLog(ctx, t.TaskID, "info", "task created")
}

// GetTask fetches a task by its external task_id.
func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = $1`, taskID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return t, err
}

// ListTasksByIssue returns every task for an issue, newest first.
func (s *PostgresStore) ListTasksByIssue(ctx context.Context, issueNumber int) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE issue_number = $1 ORDER BY created_at DESC`, issueNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListTasks returns tasks matching filter, newest first.
func (s *PostgresStore) ListTasks(ctx context.Context, filter ListFilter) ([]*Task, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var rows *sql.Rows
	var err error
	if filter.Status != "" {
		rows, err = s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			string(filter.Status), limit, filter.Offset)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, filter.Offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// UpdateStatus performs a guarded transition and applies optional fields.
func (s *PostgresStore) UpdateStatus(ctx context.Context, taskID string, to Status, update StatusUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var from string
	var startedAt sql.NullTime
	if err := tx.QueryRowContext(ctx, `SELECT status, started_at FROM tasks WHERE task_id = $1 FOR UPDATE`, taskID).Scan(&from, &startedAt); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}

	if !CanTransition(Status(from), to) {
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	setClauses := []string{"status = $1"}
	args := []interface{}{string(to)}
	n := 2

	if to == StatusRunning && !startedAt.Valid {
		setClauses = append(setClauses, fmt.Sprintf("started_at = $%d", n))
		args = append(args, now)
		n++
	}
	if to == StatusCompleted || to == StatusFailed || to == StatusCancelled {
		setClauses = append(setClauses, fmt.Sprintf("completed_at = $%d", n))
		args = append(args, now)
		n++
	}
	if update.ErrorMessage != nil {
		setClauses = append(setClauses, fmt.Sprintf("error_message = $%d", n))
		args = append(args, *update.ErrorMessage)
		n++
	}
	if update.Success != nil {
		setClauses = append(setClauses, fmt.Sprintf("success = $%d", n))
		args = append(args, *update.Success)
		n++
	}
	if update.ExecutionSeconds != nil {
		setClauses = append(setClauses, fmt.Sprintf("execution_seconds = $%d", n))
		args = append(args, *update.ExecutionSeconds)
		n++
	}
	if update.ProposalNumber != nil {
		setClauses = append(setClauses, fmt.Sprintf("proposal_number = $%d", n))
		args = append(args, *update.ProposalNumber)
		n++
	}
	if update.ProposalURL != nil {
		setClauses = append(setClauses, fmt.Sprintf("proposal_url = $%d", n))
		args = append(args, *update.ProposalURL)
		n++
	}
	if update.DevelopmentSummary != nil {
		setClauses = append(setClauses, fmt.Sprintf("development_summary = $%d", n))
		args = append(args, *update.DevelopmentSummary)
		n++
	}

	query := "UPDATE tasks SET "
	for i, c := range setClauses {
		if i > 0 {
			query += ", "
		}
		query += c
	}
	query += fmt.Sprintf(" WHERE task_id = $%d", n)
	args = append(args, taskID)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO task_logs (task_id, level, message, timestamp) VALUES ($1, $2, $3, $4)`,
		taskID, logLevelFor(to), logMessageFor(to), now); err != nil {
		return err
	}

	return tx.Commit()
}

// Retry resets a terminal task back to Pending.
func (s *PostgresStore) Retry(ctx context.Context, taskID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status string
	var retryCount, maxRetries int
	if err := tx.QueryRowContext(ctx, `SELECT status, retry_count, max_retries FROM tasks WHERE task_id = $1 FOR UPDATE`, taskID).
		Scan(&status, &retryCount, &maxRetries); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}

	if !Retryable(Status(status)) {
		return ErrInvalidTransition
	}
	if retryCount >= maxRetries {
		return ErrRetryLimitExceeded
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET status = $1, retry_count = retry_count + 1, error_message = NULL,
			success = NULL, started_at = NULL, completed_at = NULL
		WHERE task_id = $2`, string(StatusPending), taskID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO task_logs (task_id, level, message, timestamp) VALUES ($1, 'info', 'task queued for retry', $2)`,
		taskID, time.Now().UTC()); err != nil {
		return err
	}

	return tx.Commit()
}

// AddLog appends a single log line to a task's history.
func (s *PostgresStore) AddLog(ctx context.Context, taskID, level, message string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO task_logs (task_id, level, message, timestamp) VALUES ($1, $2, $3, $4)`,
		taskID, level, message, time.Now().UTC())
	return err
}

// GetLogs returns log lines with id > afterID, ascending.
func (s *PostgresStore) GetLogs(ctx context.Context, taskID string, afterID int64) ([]*TaskLog, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, task_id, level, message, timestamp FROM task_logs WHERE task_id = $1 AND id > $2 ORDER BY id`,
		taskID, afterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TaskLog
	for rows.Next() {
		var l TaskLog
		if err := rows.Scan(&l.ID, &l.TaskID, &l.Level, &l.Message, &l.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

// PruneCompletedBefore deletes terminal tasks (and their logs, via the
// foreign key's ON DELETE CASCADE) completed before the given time.
func (s *PostgresStore) PruneCompletedBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE completed_at IS NOT NULL AND completed_at < $1 AND status IN ($2, $3, $4)`,
		before, string(StatusCompleted), string(StatusFailed), string(StatusCancelled))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats summarizes task counts by status.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	var st Stats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		st.Total += count
		switch Status(status) {
		case StatusPending:
			st.Pending = count
		case StatusRunning:
			st.Running = count
		case StatusCompleted:
			st.Completed = count
		case StatusFailed:
			st.Failed = count
		case StatusCancelled:
			st.Cancelled = count
		}
	}
	return st, rows.Err()
}
