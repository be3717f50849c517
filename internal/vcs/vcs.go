// Package vcs provides the version control abstraction consumed by the lock packages.
// The lock layer only needs to locate git's own files and to run commands on
// behalf of callers; it never decides which commands run.
package vcs

import (
	"context"
)

// VCS represents a version control system.
type VCS interface {
	// RepositoryRoot returns the root directory of the repository
	// containing dir. Returns an error if dir is not in a repository.
	RepositoryRoot(ctx context.Context, dir string) (string, error)

	// GitPath resolves name inside the repository's metadata directory,
	// the way git itself would (worktrees and GIT_DIR are honoured).
	// The result is absolute.
	GitPath(ctx context.Context, repoPath, name string) (string, error)

	// CurrentBranch returns the name of the current branch.
	// Returns an empty string if not in a repository or on a detached HEAD.
	CurrentBranch(ctx context.Context, dir string) (string, error)
}

// Repository runs commands against one working directory.
type Repository interface {
	// Root returns the working directory the repository was opened at
	Root() string
	// Run executes a VCS subcommand in Root and returns its trimmed stdout
	Run(ctx context.Context, args ...string) (string, error)
}
