// Package pipeline implements the staged executor that turns a trigger
// decision into a branch, an agent run, a commit, a push, and a hosting
// platform proposal. Grounded on the original service's
// webhook_handler.py::_trigger_ai_development, with the permit-scoped,
// per-stage logging style of the teacher's spawner_docker.go.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"issuebot/internal/agentrun"
	"issuebot/internal/gate"
	"issuebot/internal/hosting"
	"issuebot/internal/notify"
	"issuebot/internal/scm"
	"issuebot/internal/store"
)

// Request describes one pipeline invocation. For a brand-new task,
// BranchName is empty and the executor derives one; for a retry, the
// caller supplies the branch from the original run.
type Request struct {
	TaskID      string
	IssueNumber int
	IssueTitle  string
	IssueURL    string
	IssueBody   string
	BranchName  string
	IsRetry     bool
}

// AgentRunner is the subset of agentrun.Runner the pipeline depends on,
// narrowed to an interface so it can be faked in tests.
type AgentRunner interface {
	Develop(ctx context.Context, req agentrun.Request, cancelled agentrun.CancelledCheck) (*agentrun.Result, error)
}

// Executor wires together every component the pipeline depends on. Process
// supervision lives one layer down, inside the AgentRunner, which registers
// each attempt's child with a procsup.Supervisor for the duration of its run.
type Executor struct {
	Store      store.Store
	Gate       *gate.Gate
	Agent      AgentRunner
	SCM        scm.SourceControl
	Hosting    hosting.Client
	Notify     *notify.LifecycleNotifier
	BaseBranch string

	// BranchTemplate renders a branch name when a run arrives without one
	// already assigned (normally the webhook handler assigns it up front).
	BranchTemplate string

	// WorkDir returns the on-disk repository checkout for a task.
	WorkDir func(taskID string) string

	// CommitMessage builds the commit message for a completed run.
	CommitMessage func(issueTitle string) string
}

// logStage narrates a stage boundary both to the process log and, if a
// Store is wired, as a persisted TaskLog row so a LogStreamer client
// following /tasks/{id}/logs sees the same stage-by-stage detail the
// operator's slog output does, not just the terminal transition.
func (e *Executor) logStage(ctx context.Context, taskID string, log *slog.Logger, message string) {
	log.Info(message)
	if e.Store == nil {
		return
	}
	if err := e.Store.AddLog(ctx, taskID, "info", message); err != nil {
		slog.Warn("pipeline: failed to persist stage log", "task_id", taskID, "error", err)
	}
}

func (e *Executor) commitMessage(issueTitle string) string {
	if e.CommitMessage != nil {
		return e.CommitMessage(issueTitle)
	}
	return RenderCommitMessage("", issueTitle)
}

func (e *Executor) baseBranch() string {
	if e.BaseBranch != "" {
		return e.BaseBranch
	}
	return "main"
}

// defaultBranchTemplate follows the original service's
// `task-<issue_number>-<epoch_seconds>` convention under an `issuebot/`
// prefix.
const defaultBranchTemplate = "issuebot/task-{issue_number}-{timestamp}"

// BranchName renders a feature branch name from template (recognizing the
// `{issue_number}` and `{timestamp}` placeholders from the
// `branch_template` configuration key); an empty template falls back to
// defaultBranchTemplate.
func BranchName(template string, issueNumber int, unixTime int64) string {
	if template == "" {
		template = defaultBranchTemplate
	}
	r := strings.NewReplacer(
		"{issue_number}", strconv.Itoa(issueNumber),
		"{timestamp}", strconv.FormatInt(unixTime, 10),
	)
	return r.Replace(template)
}

// RenderCommitMessage renders a commit message from template (recognizing
// the `{issue_title}` placeholder from the `commit_template` configuration
// key); an empty template falls back to "AI: <issue_title>".
func RenderCommitMessage(template, issueTitle string) string {
	if template == "" {
		return fmt.Sprintf("AI: %s", issueTitle)
	}
	return strings.ReplaceAll(template, "{issue_title}", issueTitle)
}

// TryRun attempts to admit req without blocking. If the concurrency gate
// is full it returns ErrPermitUnavailable immediately rather than queuing,
// leaving admission policy to the caller (e.g. the scheduler may choose to
// retry later or drop the event).
func (e *Executor) TryRun(ctx context.Context, req Request) error {
	if !e.Gate.TryAcquire() {
		return ErrPermitUnavailable
	}
	defer e.Gate.Release()
	return e.run(ctx, req)
}

// Run blocks until a concurrency permit is available, then executes req.
func (e *Executor) Run(ctx context.Context, req Request) error {
	if err := e.Gate.Acquire(ctx); err != nil {
		return err
	}
	defer e.Gate.Release()
	return e.run(ctx, req)
}

func (e *Executor) run(ctx context.Context, req Request) error {
	dir := e.WorkDir(req.TaskID)
	log := slog.With("task_id", req.TaskID, "issue_number", req.IssueNumber)
	runStart := time.Now()

	// Stage 1/5: branch preparation.
	branch, err := e.prepareBranch(ctx, req, dir, log)
	if err != nil {
		return e.fail(ctx, req.TaskID, fmt.Sprintf("branch preparation failed: %v", err))
	}

	if err := e.Store.UpdateStatus(ctx, req.TaskID, store.StatusRunning, store.StatusUpdate{}); err != nil {
		return fmt.Errorf("pipeline: mark running: %w", err)
	}

	// Stage 2/5: agent development.
	e.logStage(ctx, req.TaskID, log, "stage 2/5: running agent")
	result, err := e.Agent.Develop(ctx, agentrun.Request{
		TaskID:      req.TaskID,
		IssueNumber: req.IssueNumber,
		IssueTitle:  req.IssueTitle,
		IssueURL:    req.IssueURL,
		IssueBody:   req.IssueBody,
	}, e.cancellationCheck(req.TaskID))
	if err != nil {
		return e.fail(ctx, req.TaskID, fmt.Sprintf("agent invocation error: %v", err))
	}
	if result.Cancelled {
		e.notify(ctx, req.IssueNumber, "⏹ AI development task was cancelled.")
		if task, err := e.Store.GetTask(ctx, req.TaskID); err == nil && task.Status != store.StatusCancelled {
			if err := e.Store.UpdateStatus(ctx, req.TaskID, store.StatusCancelled, store.StatusUpdate{}); err != nil {
				log.Warn("pipeline: failed to record cancellation", "error", err)
			}
		}
		return ErrCancelledRun
	}
	if !result.Success {
		e.notify(ctx, req.IssueNumber, fmt.Sprintf("❌ AI development failed: %s", result.ErrorMessage))
		return e.fail(ctx, req.TaskID, result.ErrorMessage)
	}

	// Stage 3/5: commit.
	e.logStage(ctx, req.TaskID, log, "stage 3/5: committing changes")
	committed, err := e.SCM.CommitAll(ctx, dir, e.commitMessage(req.IssueTitle))
	if err != nil {
		return e.fail(ctx, req.TaskID, fmt.Sprintf("commit failed: %v", err))
	}
	if !committed {
		e.logStage(ctx, req.TaskID, log, "no changes to commit")
	}

	// Stage 4/5: push.
	e.logStage(ctx, req.TaskID, log, "stage 4/5: pushing branch")
	if err := e.SCM.Push(ctx, dir, branch); err != nil {
		return e.fail(ctx, req.TaskID, fmt.Sprintf("push failed: %v", err))
	}

	// Stage 5/5: proposal creation.
	e.logStage(ctx, req.TaskID, log, "stage 5/5: creating proposal")
	if rl, rlErr := e.Hosting.RateLimit(ctx); rlErr == nil && rl.Remaining <= 0 {
		return e.fail(ctx, req.TaskID, fmt.Sprintf(
			"code-hosting API rate limit exhausted, resets at %s",
			time.Unix(rl.ResetUnix, 0).UTC().Format(time.RFC3339)))
	}
	elapsed := time.Since(runStart).Seconds()
	title := fmt.Sprintf("AI: %s", req.IssueTitle)
	body := proposalBody(req.IssueNumber, result.Output, elapsed)
	proposal, err := e.Hosting.CreateBranchProposal(ctx, branch, e.baseBranch(), title, body)

	if err != nil {
		if isNoCommitsError(err) {
			return e.recoverFromNoCommits(ctx, req, branch, result, elapsed)
		}
		return e.fail(ctx, req.TaskID, fmt.Sprintf("proposal creation failed: %v", err))
	}

	msg := fmt.Sprintf("✅ AI development complete. Opened #%d in %.0fs.", proposal.Number, elapsed)
	e.notify(ctx, req.IssueNumber, msg)

	summary := result.Output
	return e.complete(ctx, req.TaskID, true, elapsed, &proposal.Number, &proposal.URL, &summary)
}

// proposalBody renders the change-proposal description: the issue it
// closes, the agent's aggregated textual result, and how long the run took.
func proposalBody(issueNumber int, summary string, elapsedSeconds float64) string {
	if summary == "" {
		summary = "(no summary produced)"
	}
	return fmt.Sprintf(
		"Closes #%d\n\nAutomatically generated by the AI development pipeline in %.0fs.\n\n### Summary\n%s\n",
		issueNumber, elapsedSeconds, summary)
}

func isNoCommitsError(err error) bool {
	var nc *hosting.NoCommitsError
	if ok := asNoCommits(err, &nc); ok {
		return true
	}
	return strings.Contains(err.Error(), "No commits between")
}

func asNoCommits(err error, target **hosting.NoCommitsError) bool {
	for e := err; e != nil; {
		if nc, ok := e.(*hosting.NoCommitsError); ok {
			*target = nc
			return true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}

// recoverFromNoCommits implements the original service's partial-success
// path: if the platform rejects the proposal because the branch carries
// no new commits relative to base, check for an already-open proposal for
// the branch before giving up. Either way the task is marked Completed,
// never Failed, since the agent's work and the push both succeeded.
func (e *Executor) recoverFromNoCommits(ctx context.Context, req Request, branch string, result *agentrun.Result, elapsed float64) error {
	existing, listErr := e.Hosting.ListProposalsForBranch(ctx, branch)
	summary := result.Output

	if listErr == nil && len(existing) > 0 {
		p := existing[0]
		e.notify(ctx, req.IssueNumber, fmt.Sprintf("ℹ️ No new commits, but an open proposal already exists: #%d", p.Number))
		return e.complete(ctx, req.TaskID, true, elapsed, &p.Number, &p.URL, &summary)
	}

	e.notify(ctx, req.IssueNumber, "⚠️ AI development completed but produced no new commits; no proposal was opened.")
	if err := e.complete(ctx, req.TaskID, true, elapsed, nil, nil, &summary); err != nil {
		return err
	}
	return ErrPartialSuccess
}

func (e *Executor) prepareBranch(ctx context.Context, req Request, dir string, log *slog.Logger) (string, error) {
	if !req.IsRetry {
		branch := req.BranchName
		if branch == "" {
			branch = BranchName(e.BranchTemplate, req.IssueNumber, time.Now().Unix())
		}
		e.logStage(ctx, req.TaskID, log, fmt.Sprintf("stage 1/5: creating feature branch %s", branch))
		if err := e.SCM.CreateFeatureBranch(ctx, dir, branch, e.baseBranch()); err != nil {
			return "", err
		}
		return branch, nil
	}

	e.logStage(ctx, req.TaskID, log, fmt.Sprintf("stage 1/5: reusing feature branch for retry %s", req.BranchName))
	exists, err := e.SCM.BranchExists(ctx, dir, req.BranchName)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := e.SCM.CreateFeatureBranch(ctx, dir, req.BranchName, e.baseBranch()); err != nil {
			return "", err
		}
		return req.BranchName, nil
	}
	if err := e.SCM.CheckoutBranch(ctx, dir, req.BranchName); err != nil {
		return "", err
	}
	return req.BranchName, nil
}

// cancellationCheck returns an agentrun.CancelledCheck backed by the
// task's current store status, so an operator-initiated cancel (via the
// API, which transitions the task to Cancelled directly) is observed
// before the next retry attempt instead of only at the end of the run.
func (e *Executor) cancellationCheck(taskID string) agentrun.CancelledCheck {
	return func(ctx context.Context) (bool, error) {
		t, err := e.Store.GetTask(ctx, taskID)
		if err != nil {
			return false, err
		}
		return t.Status == store.StatusCancelled, nil
	}
}

func (e *Executor) fail(ctx context.Context, taskID, message string) error {
	errMsg := message
	success := false
	if err := e.Store.UpdateStatus(ctx, taskID, store.StatusFailed, store.StatusUpdate{
		ErrorMessage: &errMsg,
		Success:      &success,
	}); err != nil {
		slog.Warn("pipeline: failed to record failure", "task_id", taskID, "error", err)
	}
	return fmt.Errorf("%w: %s", ErrFailedRun, message)
}

func (e *Executor) complete(ctx context.Context, taskID string, success bool, elapsed float64, proposalNumber *int, proposalURL, summary *string) error {
	return e.Store.UpdateStatus(ctx, taskID, store.StatusCompleted, store.StatusUpdate{
		Success:            &success,
		ExecutionSeconds:   &elapsed,
		ProposalNumber:     proposalNumber,
		ProposalURL:        proposalURL,
		DevelopmentSummary: summary,
	})
}

func (e *Executor) notify(ctx context.Context, issueNumber int, message string) {
	if e.Notify == nil {
		return
	}
	e.Notify.Notify(ctx, issueNumber, message)
}
