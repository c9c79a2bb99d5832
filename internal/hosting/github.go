package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GitHubClient implements Client against the GitHub REST API using plain
// net/http, matching the teacher's own poller_github.go rather than
// introducing a GitHub SDK dependency.
type GitHubClient struct {
	BaseURL string
	Token   string
	Owner   string
	Repo    string
	HTTP    *http.Client
}

// NewGitHubClient builds a client for owner/repo using token for auth.
func NewGitHubClient(token, owner, repo string) *GitHubClient {
	return &GitHubClient{
		BaseURL: "https://api.github.com",
		Token:   token,
		Owner:   owner,
		Repo:    repo,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *GitHubClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "token "+c.Token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "issuebot")
}

func (c *GitHubClient) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setHeaders(req)

	return c.HTTP.Do(req)
}

// CreateBranchProposal opens a pull request merging branch into base.
func (c *GitHubClient) CreateBranchProposal(ctx context.Context, branch, base, title, body string) (*Proposal, error) {
	payload := map[string]string{
		"title": title,
		"body":  body,
		"head":  branch,
		"base":  base,
	}

	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/pulls", c.Owner, c.Repo), payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		msg := string(data)
		if containsNoCommits(msg) {
			return nil, &NoCommitsError{Branch: branch, Raw: msg}
		}
		return nil, fmt.Errorf("hosting: create pull request failed (%d): %s", resp.StatusCode, msg)
	}

	var out struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
		State   string `json:"state"`
		Title   string `json:"title"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("hosting: decode pull request response: %w", err)
	}

	return &Proposal{Number: out.Number, URL: out.HTMLURL, State: out.State, Title: out.Title}, nil
}

// containsNoCommits matches the substring heuristic the original service
// uses to recognize GitHub's "No commits between branches" failure mode.
func containsNoCommits(msg string) bool {
	return bytes.Contains([]byte(msg), []byte("No commits between"))
}

// NoCommitsError signals the branch had no new commits relative to base,
// so proposal creation was rejected by the platform even though the
// pipeline otherwise completed successfully.
type NoCommitsError struct {
	Branch string
	Raw    string
}

func (e *NoCommitsError) Error() string {
	return fmt.Sprintf("hosting: no commits between branches for %s", e.Branch)
}

// ListProposalsForBranch returns open pull requests whose head is branch.
func (c *GitHubClient) ListProposalsForBranch(ctx context.Context, branch string) ([]*Proposal, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls?state=open&head=%s:%s", c.Owner, c.Repo, c.Owner, branch)
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("hosting: list pull requests failed (%d): %s", resp.StatusCode, string(data))
	}

	var raw []struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
		State   string `json:"state"`
		Title   string `json:"title"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("hosting: decode pull request list: %w", err)
	}

	out := make([]*Proposal, 0, len(raw))
	for _, p := range raw {
		out = append(out, &Proposal{Number: p.Number, URL: p.HTMLURL, State: p.State, Title: p.Title})
	}
	return out, nil
}

// CommentOnIssue posts a comment to an issue.
func (c *GitHubClient) CommentOnIssue(ctx context.Context, issueNumber int, body string) error {
	resp, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/repos/%s/%s/issues/%d/comments", c.Owner, c.Repo, issueNumber),
		map[string]string{"body": body})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("hosting: comment failed (%d): %s", resp.StatusCode, string(data))
	}
	return nil
}

// RateLimit reports current API quota.
func (c *GitHubClient) RateLimit(ctx context.Context) (*RateLimit, error) {
	resp, err := c.do(ctx, http.MethodGet, "/rate_limit", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("hosting: rate_limit failed (%d): %s", resp.StatusCode, string(data))
	}

	var out struct {
		Resources struct {
			Core struct {
				Remaining int `json:"remaining"`
				Limit     int `json:"limit"`
				Reset     int64 `json:"reset"`
			} `json:"core"`
		} `json:"resources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("hosting: decode rate_limit response: %w", err)
	}

	return &RateLimit{
		Remaining: out.Resources.Core.Remaining,
		Limit:     out.Resources.Core.Limit,
		ResetUnix: out.Resources.Core.Reset,
	}, nil
}

