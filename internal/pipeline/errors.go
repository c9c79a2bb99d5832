package pipeline

import "errors"

// Error taxonomy surfaced to callers of Executor.Run. A run that opens or
// adopts a proposal returns nil; the pipeline's other outcomes are one of
// these (wrapped with context via %w), mirroring the original service's
// TaskResult discriminants. Errors from waiting for a permit or from
// marking the task running are returned as they are.
var (
	// ErrPermitUnavailable is returned when a non-blocking admission
	// attempt finds the concurrency gate full.
	ErrPermitUnavailable = errors.New("pipeline: no concurrency permit available")

	// ErrCancelledRun means the task was cancelled (via the API or by an
	// operator) before or during agent execution.
	ErrCancelledRun = errors.New("pipeline: run was cancelled")

	// ErrFailedRun means a stage (branch preparation, agent, commit, push,
	// rate-limit check, or proposal creation) failed and the task has been
	// marked Failed.
	ErrFailedRun = errors.New("pipeline: run failed")

	// ErrPartialSuccess is not a failure: the agent succeeded and changes
	// were pushed, but the hosting platform rejected proposal creation
	// because the branch had no commits relative to base, and no existing
	// open proposal could be adopted either. The task is marked Completed
	// with success=true.
	ErrPartialSuccess = errors.New("pipeline: completed without a proposal")
)
