// Package indexlock inspects and waits on git's own index.lock file.
//
// git creates index.lock while it rewrites the index and deletes it when done.
// The file belongs to whichever git process created it, usually one outside
// this program, so the Coordinator only observes it. RemoveLock is the single
// exception and is meant for recovering from a git process that crashed.
package indexlock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/codefionn/repoguard/internal/consts"
	"github.com/codefionn/repoguard/internal/fs"
	"github.com/codefionn/repoguard/internal/logger"
	"github.com/codefionn/repoguard/internal/vcs"
)

// LockInfo describes an index.lock file that currently exists.
type LockInfo struct {
	Path string
	// Age is the time since the file was last modified, never negative
	Age time.Duration
}

// Coordinator answers questions about a repository's index.lock.
type Coordinator struct {
	git   vcs.VCS
	fs    fs.FileSystem
	now   func() time.Time
	watch bool
	log   *logger.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source used to compute lock age.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithWatch enables removal notifications when the filesystem supports them.
// Polling still decides the result; notifications only shorten the wait.
func WithWatch(enabled bool) Option {
	return func(c *Coordinator) {
		c.watch = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Coordinator) {
		c.log = l
	}
}

// New creates a Coordinator that asks git for lock locations and stats them on fsys.
func New(git vcs.VCS, fsys fs.FileSystem, opts ...Option) *Coordinator {
	c := &Coordinator{
		git:   git,
		fs:    fsys,
		now:   time.Now,
		watch: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Global().WithPrefix("indexlock")
	}
	return c
}

// FallbackPath is where git keeps index.lock for a plain (non-worktree) checkout.
func FallbackPath(repoPath string) string {
	return filepath.Join(repoPath, consts.GitDirName, consts.IndexLockName)
}

// IndexLockPath returns where git would create index.lock for repoPath.
// If git cannot be asked, it returns FallbackPath.
func (c *Coordinator) IndexLockPath(ctx context.Context, repoPath string) string {
	if c.git != nil {
		path, err := c.git.GitPath(ctx, repoPath, consts.IndexLockName)
		if err == nil && path != "" {
			return path
		}
		c.log.Debug("falling back to conventional index.lock path for %s: %v", repoPath, err)
	}
	return FallbackPath(repoPath)
}

// LockInfo returns the lock file's path and age, or nil if it cannot be
// stat'ed. Missing files and stat errors are both reported as unlocked.
func (c *Coordinator) LockInfo(ctx context.Context, repoPath string) *LockInfo {
	return c.infoAt(ctx, c.IndexLockPath(ctx, repoPath))
}

func (c *Coordinator) infoAt(ctx context.Context, lockPath string) *LockInfo {
	info, err := c.fs.Stat(ctx, lockPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.log.Debug("stat %s: %v", lockPath, err)
		}
		return nil
	}

	age := c.now().Sub(info.ModTime)
	if age < 0 {
		age = 0
	}
	return &LockInfo{Path: lockPath, Age: age}
}

// IsLocked reports whether index.lock exists for repoPath.
func (c *Coordinator) IsLocked(ctx context.Context, repoPath string) bool {
	return c.LockInfo(ctx, repoPath) != nil
}

// WaitForUnlock polls until index.lock disappears, returning true, or until
// timeout elapses or ctx is done, returning false. Zero timeout and interval
// select consts.DefaultUnlockTimeout and consts.DefaultUnlockPollInterval.
func (c *Coordinator) WaitForUnlock(ctx context.Context, repoPath string, timeout, interval time.Duration) bool {
	if timeout <= 0 {
		timeout = consts.DefaultUnlockTimeout
	}
	if interval <= 0 {
		interval = consts.DefaultUnlockPollInterval
	}

	lockPath := c.IndexLockPath(ctx, repoPath)
	if c.infoAt(ctx, lockPath) == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var removed <-chan struct{}
	if w, ok := c.fs.(fs.Watcher); ok && c.watch {
		ch, err := w.WatchRemoval(ctx, lockPath)
		if err != nil {
			c.log.Debug("cannot watch %s, polling only: %v", lockPath, err)
		} else {
			removed = ch
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			c.log.Info("%s still present after %v", lockPath, time.Since(start))
			return false
		case <-ticker.C:
		case <-removed:
		}
		if c.infoAt(ctx, lockPath) == nil {
			c.log.Debug("%s released after %v", lockPath, time.Since(start))
			return true
		}
	}
}

// RemoveLock deletes index.lock for repoPath. A missing file is not an error.
//
// This destroys another process's lock. If the git process that created the
// file is still running, its operation will be corrupted. Call it only after
// an operator has confirmed the lock is stale; never call it on age alone.
func (c *Coordinator) RemoveLock(ctx context.Context, repoPath string) error {
	lockPath := c.IndexLockPath(ctx, repoPath)
	if err := c.fs.Delete(ctx, lockPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	c.log.Warn("removed %s", lockPath)
	return nil
}
