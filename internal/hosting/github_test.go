package hosting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*GitHubClient, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := NewGitHubClient("tok", "acme", "widgets")
	c.BaseURL = srv.URL
	return c, srv.Close
}

func TestCreateBranchProposalSuccess(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/pulls", r.URL.Path)
		assert.Equal(t, "token tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"number": 42, "html_url": "https://github.com/acme/widgets/pull/42", "state": "open", "title": "AI: fix",
		})
	})
	defer closeFn()

	p, err := c.CreateBranchProposal(context.Background(), "task-1-branch", "main", "AI: fix", "body")
	require.NoError(t, err)
	assert.Equal(t, 42, p.Number)
	assert.Equal(t, "open", p.State)
}

func TestCreateBranchProposalNoCommits(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"No commits between main and task-1-branch"}`))
	})
	defer closeFn()

	_, err := c.CreateBranchProposal(context.Background(), "task-1-branch", "main", "AI: fix", "body")
	require.Error(t, err)
	var noCommits *NoCommitsError
	assert.ErrorAs(t, err, &noCommits)
}

func TestListProposalsForBranch(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"number": 1, "html_url": "u1", "state": "open", "title": "t1"},
		})
	})
	defer closeFn()

	props, err := c.ListProposalsForBranch(context.Background(), "task-1-branch")
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, 1, props[0].Number)
}

func TestCommentOnIssue(t *testing.T) {
	var gotBody map[string]string
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	})
	defer closeFn()

	err := c.CommentOnIssue(context.Background(), 7, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", gotBody["body"])
}

func TestRateLimit(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"resources": map[string]interface{}{
				"core": map[string]interface{}{"remaining": 10, "limit": 5000, "reset": 123},
			},
		})
	})
	defer closeFn()

	rl, err := c.RateLimit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, rl.Remaining)
}
