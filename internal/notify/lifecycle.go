package notify

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// IssueCommenter posts a comment to the triggering issue. Satisfied by
// internal/hosting.Client.
type IssueCommenter interface {
	CommentOnIssue(ctx context.Context, issueNumber int, body string) error
}

// LifecycleNotifier fans out a single pipeline-stage message to the
// triggering issue and, if configured, a Slack channel. Neither channel
// blocks the other, and neither failure is fatal to the pipeline: every
// send here is best-effort, matching webhook_handler.py's pattern of
// logging (not raising) on notification failure.
type LifecycleNotifier struct {
	Issue IssueCommenter
	Slack *SlackNotifier // nil disables Slack notifications
}

// Notify posts message to the issue (if an issue number is given) and to
// Slack (if configured), concurrently, logging but swallowing any error.
func (n *LifecycleNotifier) Notify(ctx context.Context, issueNumber int, message string) {
	g, ctx := errgroup.WithContext(ctx)

	if n.Issue != nil && issueNumber > 0 {
		g.Go(func() error {
			if err := n.Issue.CommentOnIssue(ctx, issueNumber, message); err != nil {
				slog.Warn("notify: failed to comment on issue", "issue_number", issueNumber, "error", err)
			}
			return nil
		})
	}

	if n.Slack != nil {
		g.Go(func() error {
			if err := n.Slack.Notify(ctx, message); err != nil {
				slog.Warn("notify: failed to send slack notification", "error", err)
			}
			return nil
		})
	}

	_ = g.Wait() // member goroutines never return an error; this only joins them
}
