// Package hosting abstracts the code-hosting platform operations the
// pipeline needs: opening a branch proposal (pull request), checking for
// an existing one, and commenting on the originating issue. The concrete
// implementation talks to GitHub's REST API directly, in the same
// hand-rolled net/http style the teacher's own poller_github.go uses
// rather than pulling in a GitHub SDK.
package hosting

import "context"

// Proposal is a hosting-platform pull/merge request.
type Proposal struct {
	Number int
	URL    string
	State  string
	Title  string
}

// RateLimit reports remaining API quota so callers can back off before
// hitting a hard rate limit.
type RateLimit struct {
	Remaining int
	Limit     int
	ResetUnix int64
}

// Client is the external code-hosting interface the pipeline depends on.
// It is intentionally narrow: everything the pipeline needs to create a
// proposal, check for a pre-existing one, and narrate progress back to the
// triggering issue.
type Client interface {
	// CreateBranchProposal opens a proposal merging branch into base,
	// with an already-rendered title and body.
	CreateBranchProposal(ctx context.Context, branch, base, title, body string) (*Proposal, error)

	// ListProposalsForBranch returns open proposals whose head is branch.
	// Used to recover from "no commits between branches" errors by
	// adopting an already-open proposal instead of failing the run.
	ListProposalsForBranch(ctx context.Context, branch string) ([]*Proposal, error)

	// CommentOnIssue posts a best-effort progress comment.
	CommentOnIssue(ctx context.Context, issueNumber int, body string) error

	// RateLimit reports current API quota.
	RateLimit(ctx context.Context) (*RateLimit, error)
}
