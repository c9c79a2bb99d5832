// Package scm abstracts the source-control operations the pipeline needs
// to prepare, commit, and push a feature branch. The concrete
// implementation shells out to the git CLI, adapted from the teacher's
// internal/git/client.go (masking of credentials in command output,
// non-interactive environment) and generalized to the operation set
// git_service.py exposes.
package scm

import "context"

// SourceControl is the external interface the pipeline depends on.
type SourceControl interface {
	// CreateFeatureBranch checks out the default branch, pulls latest,
	// and creates+checks out a new branch for the given name.
	CreateFeatureBranch(ctx context.Context, dir, branch, baseBranch string) error

	// BranchExists reports whether branch exists locally.
	BranchExists(ctx context.Context, dir, branch string) (bool, error)

	// CheckoutBranch switches to an existing local branch.
	CheckoutBranch(ctx context.Context, dir, branch string) error

	// HasUncommittedChanges reports whether the working tree has staged,
	// unstaged, or untracked changes.
	HasUncommittedChanges(ctx context.Context, dir string) (bool, error)

	// CommitAll stages every change (including untracked files) and
	// commits with message. Returns false if there was nothing to commit.
	CommitAll(ctx context.Context, dir, message string) (bool, error)

	// Push pushes branch to the default remote, setting upstream.
	Push(ctx context.Context, dir, branch string) error
}
