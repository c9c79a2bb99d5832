package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var policy = Policy{Label: "ai-develop", Command: "/ai-develop"}

func TestEvaluateIssueEventTriggers(t *testing.T) {
	d := EvaluateIssueEvent(IssueEvent{Action: "labeled", Labels: []string{"bug", "ai-develop"}}, policy)
	assert.True(t, d.Triggered)
}

func TestEvaluateIssueEventWrongAction(t *testing.T) {
	d := EvaluateIssueEvent(IssueEvent{Action: "opened", Labels: []string{"ai-develop"}}, policy)
	assert.False(t, d.Triggered)
}

func TestEvaluateIssueEventMissingLabel(t *testing.T) {
	d := EvaluateIssueEvent(IssueEvent{Action: "labeled", Labels: []string{"bug"}}, policy)
	assert.False(t, d.Triggered)
}

func TestEvaluateCommentEventTriggers(t *testing.T) {
	d := EvaluateCommentEvent(CommentEvent{Action: "created", CommentBody: "please /AI-Develop this"}, policy)
	assert.True(t, d.Triggered)
}

func TestEvaluateCommentEventEmptyBody(t *testing.T) {
	d := EvaluateCommentEvent(CommentEvent{Action: "created", CommentBody: "   "}, policy)
	assert.False(t, d.Triggered)
}

func TestEvaluateCommentEventWrongCommand(t *testing.T) {
	d := EvaluateCommentEvent(CommentEvent{Action: "created", CommentBody: "looks good"}, policy)
	assert.False(t, d.Triggered)
}

func TestEvaluateCommentEventNotCreated(t *testing.T) {
	d := EvaluateCommentEvent(CommentEvent{Action: "edited", CommentBody: "/ai-develop"}, policy)
	assert.False(t, d.Triggered)
}

func TestIgnoredEventTypes(t *testing.T) {
	for _, kind := range []string{"check_run", "push", "pull_request", "deployment"} {
		assert.True(t, IgnoredEventTypes[kind], kind)
	}
	assert.False(t, IgnoredEventTypes[EventIssues])
}
