package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeCommenter struct {
	mu       sync.Mutex
	comments []string
	err      error
}

func (f *fakeCommenter) CommentOnIssue(ctx context.Context, issueNumber int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.comments = append(f.comments, body)
	return nil
}

func TestLifecycleNotifierFansOutToBothChannels(t *testing.T) {
	slackGot := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		slackGot <- payload["text"]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	commenter := &fakeCommenter{}
	n := &LifecycleNotifier{
		Issue: commenter,
		Slack: NewSlackNotifier(srv.URL),
	}

	n.Notify(context.Background(), 7, "pipeline started")

	assert.Equal(t, []string{"pipeline started"}, commenter.comments)
	select {
	case got := <-slackGot:
		assert.Equal(t, "pipeline started", got)
	default:
		t.Error("expected the Slack webhook to receive the message")
	}
}

func TestLifecycleNotifierToleratesFailures(t *testing.T) {
	commenter := &fakeCommenter{err: assertError}
	n := &LifecycleNotifier{Issue: commenter, Slack: nil}

	// Must not panic or block even though the comment will fail.
	n.Notify(context.Background(), 7, "pipeline failed")
}

var assertError = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
