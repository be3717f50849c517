package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/codefionn/repoguard/internal/consts"
)

// CommandError describes a failed git invocation.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Git implements VCS by running the git binary.
type Git struct {
	binary string

	// rootCache caches RepositoryRoot results per directory
	rootCache map[string]string
	rootMutex sync.RWMutex
}

// NewGit creates a Git VCS that runs binary. An empty binary means "git" on PATH.
func NewGit(binary string) *Git {
	if binary == "" {
		binary = consts.DefaultGitBinary
	}
	return &Git{
		binary:    binary,
		rootCache: make(map[string]string),
	}
}

// Binary returns the git executable this instance runs.
func (g *Git) Binary() string {
	return g.binary
}

func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	full := append([]string{"-C", dir}, args...)
	cmd := exec.CommandContext(ctx, g.binary, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &CommandError{
			Args:   args,
			Output: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// RepositoryRoot returns the root directory of the Git repository containing dir.
func (g *Git) RepositoryRoot(ctx context.Context, dir string) (string, error) {
	g.rootMutex.RLock()
	root, ok := g.rootCache[dir]
	g.rootMutex.RUnlock()
	if ok {
		return root, nil
	}

	root, err := g.run(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("not in a git repository: %w", err)
	}

	g.rootMutex.Lock()
	g.rootCache[dir] = root
	g.rootMutex.Unlock()

	return root, nil
}

// GitPath asks git where it keeps name for the repository at repoPath.
// git answers relative to repoPath unless the metadata directory lives elsewhere.
func (g *Git) GitPath(ctx context.Context, repoPath, name string) (string, error) {
	out, err := g.run(ctx, repoPath, "rev-parse", "--git-path", name)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("git rev-parse --git-path %s: empty output", name)
	}
	if !filepath.IsAbs(out) {
		out = filepath.Join(repoPath, out)
	}
	return filepath.Clean(out), nil
}

// CurrentBranch returns the name of the current branch.
// Returns an empty string if not in a repository or on a detached HEAD.
func (g *Git) CurrentBranch(ctx context.Context, dir string) (string, error) {
	branch, err := g.run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", nil
	}

	// Detached HEAD
	if branch == "HEAD" {
		return "", nil
	}
	return branch, nil
}

// Open returns a Repository that runs commands in root.
func (g *Git) Open(root string) Repository {
	return &gitRepository{git: g, root: root}
}

type gitRepository struct {
	git  *Git
	root string
}

func (r *gitRepository) Root() string {
	return r.root
}

func (r *gitRepository) Run(ctx context.Context, args ...string) (string, error) {
	return r.git.run(ctx, r.root, args...)
}
