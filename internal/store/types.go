package store

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// validTransitions enumerates the edges the state machine permits.
// Retry is handled separately since it re-enters Pending from a terminal
// failure state rather than advancing forward.
var validTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusRunning:   true,
		StatusCancelled: true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	edges, ok := validTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// Retryable reports whether a task in the given status is eligible for retry.
func Retryable(s Status) bool {
	return s == StatusFailed || s == StatusCancelled
}

var (
	// ErrNotFound is returned when a task or log lookup finds nothing.
	ErrNotFound = errors.New("store: not found")
	// ErrInvalidTransition is returned when a requested status change violates the state machine.
	ErrInvalidTransition = errors.New("store: invalid status transition")
	// ErrRetryLimitExceeded is returned when a task has exhausted its retry budget.
	ErrRetryLimitExceeded = errors.New("store: retry limit exceeded")
)

// Task is the durable record of a single pipeline run triggered by an event.
type Task struct {
	TaskID             string
	IssueNumber        int
	IssueTitle         string
	IssueURL           string
	IssueBody          string
	BranchName         string
	Status             Status
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
	Success            *bool
	ErrorMessage       string
	ExecutionSeconds   float64
	ProposalNumber     int
	ProposalURL        string
	DevelopmentSummary string
	RetryCount         int
	MaxRetries         int
}

// TaskLog is a single timestamped line attached to a Task's execution history.
type TaskLog struct {
	ID        int64
	TaskID    string
	Level     string
	Message   string
	Timestamp time.Time
}

// StatusUpdate carries the optional fields a status transition may set.
// Zero-value fields are left untouched, matching the original service's
// "update only what's provided" semantics.
type StatusUpdate struct {
	ErrorMessage       *string
	Success            *bool
	ExecutionSeconds   *float64
	ProposalNumber     *int
	ProposalURL        *string
	DevelopmentSummary *string
}

// Stats summarizes task counts per status plus the grand total.
type Stats struct {
	Pending   int
	Running   int
	Completed int
	Failed    int
	Cancelled int
	Total     int
}

// ListFilter narrows ListTasks results.
type ListFilter struct {
	Status Status // empty means no filter
	Limit  int
	Offset int
}
