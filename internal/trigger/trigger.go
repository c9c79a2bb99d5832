// Package trigger decides, as a pure function of event kind/payload and
// configured policy, whether an inbound event should start a pipeline run.
// Grounded on the original service's validate_issue_trigger and
// validate_comment_trigger.
package trigger

import "strings"

// Policy configures what counts as a trigger.
type Policy struct {
	// Label is the issue label that must be present for a "labeled" action
	// to trigger (e.g. "ai-develop").
	Label string
	// Command is the case-insensitive substring a comment body must
	// contain to trigger (e.g. "/ai-develop").
	Command string
}

// IssueEvent is the subset of a GitHub issues webhook payload the
// evaluator needs.
type IssueEvent struct {
	Action      string
	Number      int
	Title       string
	URL         string
	Body        string
	Labels      []string
	ExistingRun *ExistingRun
}

// CommentEvent is the subset of an issue_comment webhook payload the
// evaluator needs.
type CommentEvent struct {
	Action      string
	IssueNumber int
	IssueTitle  string
	IssueURL    string
	IssueBody   string
	CommentBody string
	ExistingRun *ExistingRun
}

// ExistingRun carries the prior task/branch for a retry-via-comment flow.
type ExistingRun struct {
	TaskID     string
	BranchName string
}

// Decision is the evaluator's verdict.
type Decision struct {
	Triggered bool
	Reason    string
}

// miss returns a non-triggering Decision carrying a human-readable reason,
// useful for DEBUG-level logging at the call site.
func miss(reason string) Decision {
	return Decision{Triggered: false, Reason: reason}
}

// EvaluateIssueEvent implements validate_issue_trigger: only the "labeled"
// action with the configured label present triggers a run.
func EvaluateIssueEvent(e IssueEvent, p Policy) Decision {
	if e.Action != "labeled" {
		return miss("action is not 'labeled'")
	}
	if p.Label == "" {
		return miss("no trigger label configured")
	}
	for _, l := range e.Labels {
		if l == p.Label {
			return Decision{Triggered: true}
		}
	}
	return miss("trigger label not present on issue")
}

// EvaluateCommentEvent implements validate_comment_trigger: only a newly
// "created" comment whose body contains the configured command
// (case-insensitive) triggers a run. An empty comment body never
// triggers.
func EvaluateCommentEvent(e CommentEvent, p Policy) Decision {
	if e.Action != "created" {
		return miss("action is not 'created'")
	}
	if strings.TrimSpace(e.CommentBody) == "" {
		return miss("comment body is empty")
	}
	if p.Command == "" {
		return miss("no trigger command configured")
	}
	if !strings.Contains(strings.ToLower(e.CommentBody), strings.ToLower(p.Command)) {
		return miss("comment does not contain trigger command")
	}
	return Decision{Triggered: true}
}

// IgnoredEventTypes enumerates webhook event types the router never acts
// on, matching the original service's IGNORED_EVENT_TYPES set.
var IgnoredEventTypes = map[string]bool{
	"check_run":           true,
	"check_suite":         true,
	"status":              true,
	"push":                true,
	"pull_request":        true,
	"pull_request_review": true,
	"deployment":          true,
	"workflow_run":        true,
}

// Routable event kinds the evaluator understands.
const (
	EventIssues       = "issues"
	EventIssueComment = "issue_comment"
	EventPing         = "ping"
)
