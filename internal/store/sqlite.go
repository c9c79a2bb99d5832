package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// SQLiteStore implements Store on top of a single sqlite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a sqlite-backed store at path.
// WAL mode and a 5s busy timeout are enabled so the poller and API layer can
// share the file without lock contention.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL UNIQUE,
			issue_number INTEGER NOT NULL,
			issue_title TEXT NOT NULL DEFAULT '',
			issue_url TEXT NOT NULL DEFAULT '',
			issue_body TEXT,
			branch_name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			started_at DATETIME,
			completed_at DATETIME,
			success INTEGER,
			error_message TEXT,
			execution_seconds REAL,
			proposal_number INTEGER,
			proposal_url TEXT,
			development_summary TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			max_retries INTEGER NOT NULL DEFAULT 2
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_issue_number ON tasks (issue_number);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks (status);`,
		`CREATE TABLE IF NOT EXISTS task_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL REFERENCES tasks(task_id) ON DELETE CASCADE,
			level TEXT NOT NULL DEFAULT 'info',
			message TEXT NOT NULL,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_task_logs_task_id ON task_logs (task_id, id);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	if _, err := s.db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateTask inserts a new Pending task and its creation log line.
func (s *SQLiteStore) CreateTask(ctx context.Context, t *Task) error {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TaskID, t.IssueNumber, t.IssueTitle, t.IssueURL, t.IssueBody, t.BranchName, string(t.Status), t.CreatedAt, t.RetryCount, t.MaxRetries)
	if err != nil {
		return err
	}
	return s.AddLog(ctx, t.TaskID, "info", "task created")
}

func scanTask(row interface{ Scan(...interface{}) error }) (*Task, error) {
	var t Task
	var status string
	var issueBody, errMsg, proposalURL, devSummary sql.NullString
	var startedAt, completedAt sql.NullTime
	var success sql.NullBool
	var execSeconds sql.NullFloat64
	var proposalNumber sql.NullInt64

	err := row.Scan(&t.TaskID, &t.IssueNumber, &t.IssueTitle, &t.IssueURL, &issueBody, &t.BranchName,
		&status, &t.CreatedAt, &startedAt, &completedAt, &success, &errMsg, &execSeconds,
		&proposalNumber, &proposalURL, &devSummary, &t.RetryCount, &t.MaxRetries)
	if err != nil {
		return nil, err
	}

	t.Status = Status(status)
	t.IssueBody = issueBody.String
	t.ErrorMessage = errMsg.String
	t.ProposalURL = proposalURL.String
	t.DevelopmentSummary = devSummary.String
	if startedAt.Valid {
		v := startedAt.Time
		t.StartedAt = &v
	}
	if completedAt.Valid {
		v := completedAt.Time
		t.CompletedAt = &v
	}
	if success.Valid {
		v := success.Bool
		t.Success = &v
	}
	if execSeconds.Valid {
		t.ExecutionSeconds = execSeconds.Float64
	}
	if proposalNumber.Valid {
		t.ProposalNumber = int(proposalNumber.Int64)
	}
	return &t, nil
}

const taskColumns = `task_id, issue_number, issue_title, issue_url, issue_body, branch_name, status, created_at, started_at, completed_at, success, error_message, execution_seconds, proposal_number, proposal_url, development_summary, retry_count, max_retries`

// GetTask fetches a task by its external task_id.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = ?`, taskID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return t, err
}

// ListTasksByIssue returns every task for an issue, newest first.
func (s *SQLiteStore) ListTasksByIssue(ctx context.Context, issueNumber int) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE issue_number = ? ORDER BY created_at DESC`, issueNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListTasks returns tasks matching filter, newest first.
func (s *SQLiteStore) ListTasks(ctx context.Context, filter ListFilter) ([]*Task, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var rows *sql.Rows
	var err error
	if filter.Status != "" {
		rows, err = s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
			string(filter.Status), limit, filter.Offset)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC LIMIT ? OFFSET ?`,
			limit, filter.Offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]*Task, error) {
	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateStatus performs a guarded transition and applies optional fields.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, taskID string, to Status, update StatusUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var from string
	var startedAt sql.NullTime
	if err := tx.QueryRowContext(ctx, `SELECT status, started_at FROM tasks WHERE task_id = ?`, taskID).Scan(&from, &startedAt); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}

	if !CanTransition(Status(from), to) {
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	setClauses := []string{"status = ?"}
	args := []interface{}{string(to)}

	if to == StatusRunning && !startedAt.Valid {
		setClauses = append(setClauses, "started_at = ?")
		args = append(args, now)
	}
	if to == StatusCompleted || to == StatusFailed || to == StatusCancelled {
		setClauses = append(setClauses, "completed_at = ?")
		args = append(args, now)
	}
	if update.ErrorMessage != nil {
		setClauses = append(setClauses, "error_message = ?")
		args = append(args, *update.ErrorMessage)
	}
	if update.Success != nil {
		setClauses = append(setClauses, "success = ?")
		args = append(args, *update.Success)
	}
	if update.ExecutionSeconds != nil {
		setClauses = append(setClauses, "execution_seconds = ?")
		args = append(args, *update.ExecutionSeconds)
	}
	if update.ProposalNumber != nil {
		setClauses = append(setClauses, "proposal_number = ?")
		args = append(args, *update.ProposalNumber)
	}
	if update.ProposalURL != nil {
		setClauses = append(setClauses, "proposal_url = ?")
		args = append(args, *update.ProposalURL)
	}
	if update.DevelopmentSummary != nil {
		setClauses = append(setClauses, "development_summary = ?")
		args = append(args, *update.DevelopmentSummary)
	}

	query := "UPDATE tasks SET "
	for i, c := range setClauses {
		if i > 0 {
			query += ", "
		}
		query += c
	}
	query += " WHERE task_id = ?"
	args = append(args, taskID)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO task_logs (task_id, level, message, timestamp) VALUES (?, ?, ?, ?)`,
		taskID, logLevelFor(to), logMessageFor(to), now); err != nil {
		return err
	}

	return tx.Commit()
}

func logLevelFor(to Status) string {
	if to == StatusFailed {
		return "error"
	}
	return "info"
}

func logMessageFor(to Status) string {
	switch to {
	case StatusRunning:
		return "task started"
	case StatusCompleted:
		return "task completed"
	case StatusFailed:
		return "task failed"
	case StatusCancelled:
		return "task cancelled"
	default:
		return "status changed to " + string(to)
	}
}

// Retry resets a terminal task back to Pending.
func (s *SQLiteStore) Retry(ctx context.Context, taskID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status string
	var retryCount, maxRetries int
	if err := tx.QueryRowContext(ctx, `SELECT status, retry_count, max_retries FROM tasks WHERE task_id = ?`, taskID).
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
		UPDATE tasks SET status = ?, retry_count = retry_count + 1, error_message = NULL,
			success = NULL, started_at = NULL, completed_at = NULL
		WHERE task_id = ?`, string(StatusPending), taskID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO task_logs (task_id, level, message, timestamp) VALUES (?, 'info', 'task queued for retry', ?)`,
		taskID, time.Now().UTC()); err != nil {
		return err
	}

	return tx.Commit()
}

// AddLog appends a single log line to a task's history.
func (s *SQLiteStore) AddLog(ctx context.Context, taskID, level, message string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO task_logs (task_id, level, message, timestamp) VALUES (?, ?, ?, ?)`,
		taskID, level, message, time.Now().UTC())
	return err
}

// GetLogs returns log lines with id > afterID, ascending.
func (s *SQLiteStore) GetLogs(ctx context.Context, taskID string, afterID int64) ([]*TaskLog, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, task_id, level, message, timestamp FROM task_logs WHERE task_id = ? AND id > ? ORDER BY id`,
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
func (s *SQLiteStore) PruneCompletedBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE completed_at IS NOT NULL AND completed_at < ? AND status IN (?, ?, ?)`,
		before, string(StatusCompleted), string(StatusFailed), string(StatusCancelled))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats summarizes task counts by status.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
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
