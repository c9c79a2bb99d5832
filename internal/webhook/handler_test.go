package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issuebot/internal/pipeline"
	"issuebot/internal/store"
	"issuebot/internal/trigger"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls []pipeline.Request
	err   error
}

func (f *fakeExecutor) TryRun(ctx context.Context, req pipeline.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.err
}

// recorded returns the requests TryRun has received so far. The handler
// dispatches runs on a background goroutine, so tests poll this.
func (f *fakeExecutor) recorded() []pipeline.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.Request(nil), f.calls...)
}

func newTestHandler(t *testing.T) (*Handler, *fakeExecutor, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	exec := &fakeExecutor{}
	h := &Handler{
		Store:    st,
		Executor: exec,
		Policy:   trigger.Policy{Label: "ai-develop", Command: "/ai develop"},
	}
	return h, exec, st
}

func signedRequest(t *testing.T, secret, eventType string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", eventType)
	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}
	return req
}

func TestHandlerTriggersOnLabeledIssue(t *testing.T) {
	h, exec, _ := newTestHandler(t)

	body, _ := json.Marshal(map[string]any{
		"action": "labeled",
		"issue": map[string]any{
			"number": 42,
			"title":  "fix the thing",
			"body":   "it is broken",
			"html_url": "https://example.com/issues/42",
			"labels": []map[string]string{{"name": "ai-develop"}},
		},
	})

	req := signedRequest(t, "", trigger.EventIssues, body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool { return len(exec.recorded()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 42, exec.recorded()[0].IssueNumber)
}

func TestHandlerIgnoresIssueWithoutTriggerLabel(t *testing.T) {
	h, exec, _ := newTestHandler(t)

	body, _ := json.Marshal(map[string]any{
		"action": "labeled",
		"issue": map[string]any{
			"number": 1,
			"labels": []map[string]string{{"name": "bug"}},
		},
	})

	req := signedRequest(t, "", trigger.EventIssues, body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, exec.calls)
}

func TestHandlerTriggersOnCommentCommand(t *testing.T) {
	h, exec, _ := newTestHandler(t)

	body, _ := json.Marshal(map[string]any{
		"action": "created",
		"issue": map[string]any{
			"number": 7,
			"title":  "flaky test",
		},
		"comment": map[string]any{"body": "please /ai develop this"},
	})

	req := signedRequest(t, "", trigger.EventIssueComment, body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool { return len(exec.recorded()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 7, exec.recorded()[0].IssueNumber)
}

func TestHandlerRejectsBadSignature(t *testing.T) {
	h, exec, _ := newTestHandler(t)
	h.Secret = "topsecret"

	body := []byte(`{"action":"labeled"}`)
	req := signedRequest(t, "wrongsecret", trigger.EventIssues, body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, exec.calls)
}

func TestHandlerAcceptsPing(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := signedRequest(t, "", trigger.EventPing, []byte(`{}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pong")
}

func TestHandlerRejectsDisallowedIP(t *testing.T) {
	h, exec, _ := newTestHandler(t)
	h.Allow = NewIPAllowlist([]string{"10.0.0.1"})

	body := []byte(`{"action":"labeled"}`)
	req := signedRequest(t, "", trigger.EventIssues, body)
	req.RemoteAddr = "192.168.1.5:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, exec.calls)
}
