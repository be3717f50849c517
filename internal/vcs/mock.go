package vcs

import (
	"context"
	"sync"
)

// MockVCS is a mock implementation of the VCS interface for testing.
type MockVCS struct {
	// RepositoryRootFunc is the mock implementation for RepositoryRoot
	RepositoryRootFunc func(ctx context.Context, dir string) (string, error)

	// GitPathFunc is the mock implementation for GitPath
	GitPathFunc func(ctx context.Context, repoPath, name string) (string, error)

	// CurrentBranchFunc is the mock implementation for CurrentBranch
	CurrentBranchFunc func(ctx context.Context, dir string) (string, error)
}

// RepositoryRoot calls the mock RepositoryRootFunc if set, otherwise returns dir.
func (m *MockVCS) RepositoryRoot(ctx context.Context, dir string) (string, error) {
	if m.RepositoryRootFunc != nil {
		return m.RepositoryRootFunc(ctx, dir)
	}
	return dir, nil
}

// GitPath calls the mock GitPathFunc if set, otherwise returns an empty path.
func (m *MockVCS) GitPath(ctx context.Context, repoPath, name string) (string, error) {
	if m.GitPathFunc != nil {
		return m.GitPathFunc(ctx, repoPath, name)
	}
	return "", nil
}

// CurrentBranch calls the mock CurrentBranchFunc if set, otherwise returns empty string.
func (m *MockVCS) CurrentBranch(ctx context.Context, dir string) (string, error) {
	if m.CurrentBranchFunc != nil {
		return m.CurrentBranchFunc(ctx, dir)
	}
	return "", nil
}

// MockRepository records the commands it is asked to run.
type MockRepository struct {
	RootDir string
	// RunFunc is the mock implementation for Run
	RunFunc func(ctx context.Context, args ...string) (string, error)

	mu    sync.Mutex
	calls [][]string
}

// Root returns RootDir.
func (m *MockRepository) Root() string {
	return m.RootDir
}

// Run records args and calls RunFunc if set.
func (m *MockRepository) Run(ctx context.Context, args ...string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string(nil), args...))
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, args...)
	}
	return "", nil
}

// Calls returns a copy of every argument list passed to Run.
func (m *MockRepository) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]string, len(m.calls))
	copy(out, m.calls)
	return out
}
