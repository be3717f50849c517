// Package saga runs multi-step git write transactions under a repository's write lock.
//
// Steps receive a *Client that is only valid while the transaction runs. Steps
// never take or release locks themselves and never construct clients.
package saga

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/codefionn/repoguard/internal/indexlock"
	"github.com/codefionn/repoguard/internal/logger"
	"github.com/codefionn/repoguard/internal/repolock"
	"github.com/codefionn/repoguard/internal/vcs"
)

// ErrClientOutOfScope is the panic value raised when a Client is used after
// its transaction ended. It indicates a programming error.
var ErrClientOutOfScope = errors.New("saga: repository client used outside its transaction")

// ErrIndexLocked matches *IndexLockedError.
var ErrIndexLocked = errors.New("saga: index.lock held by another process")

// IndexLockedError reports that git's index.lock did not go away in time.
type IndexLockedError struct {
	Path string
	Age  time.Duration
}

func (e *IndexLockedError) Error() string {
	return fmt.Sprintf("saga: %s still present (age %v)", e.Path, e.Age.Round(time.Millisecond))
}

func (e *IndexLockedError) Is(target error) bool {
	return target == ErrIndexLocked
}

// Input identifies the repository a transaction writes to.
type Input struct {
	RepositoryRoot string
}

// Opener builds the repository client for a root.
type Opener func(root string) vcs.Repository

// Client is the repository capability handed to steps.
type Client struct {
	repo   vcs.Repository
	active atomic.Bool
}

func (c *Client) check() {
	if !c.active.Load() {
		panic(ErrClientOutOfScope)
	}
}

// Active reports whether the owning transaction is still running.
func (c *Client) Active() bool {
	return c.active.Load()
}

// Root returns the repository root the transaction holds.
func (c *Client) Root() string {
	c.check()
	return c.repo.Root()
}

// Git runs a git subcommand in the repository and returns its trimmed stdout.
func (c *Client) Git(ctx context.Context, args ...string) (string, error) {
	c.check()
	return c.repo.Run(ctx, args...)
}

// Steps is the body of a transaction.
type Steps[T any] func(ctx context.Context, c *Client) (T, error)

// Runner executes transactions.
type Runner struct {
	locks *repolock.Manager
	open  Opener

	coord        *indexlock.Coordinator
	waitTimeout  time.Duration
	waitInterval time.Duration

	log *logger.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithIndexLockWait makes every transaction wait for git's index.lock to
// disappear before its first step. Zero durations use the coordinator defaults.
func WithIndexLockWait(coord *indexlock.Coordinator, timeout, interval time.Duration) Option {
	return func(r *Runner) {
		r.coord = coord
		r.waitTimeout = timeout
		r.waitInterval = interval
	}
}

// WithLogger sets the logger used for transaction timings.
func WithLogger(l *logger.Logger) Option {
	return func(r *Runner) {
		r.log = l
	}
}

// NewRunner creates a Runner that serializes on locks and opens clients with open.
func NewRunner(locks *repolock.Manager, open Opener, opts ...Option) *Runner {
	r := &Runner{
		locks: locks,
		open:  open,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Global().WithPrefix("saga")
	}
	return r
}

// Execute runs steps while holding the write lock on in.RepositoryRoot.
// The client passed to steps stops working when Execute returns. Errors from
// steps are returned unchanged.
func Execute[T any](ctx context.Context, r *Runner, in Input, steps Steps[T]) (T, error) {
	return repolock.Write(ctx, r.locks, in.RepositoryRoot, func(ctx context.Context) (T, error) {
		var zero T

		if r.coord != nil && !r.coord.WaitForUnlock(ctx, in.RepositoryRoot, r.waitTimeout, r.waitInterval) {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			lockErr := &IndexLockedError{Path: r.coord.IndexLockPath(ctx, in.RepositoryRoot)}
			if info := r.coord.LockInfo(ctx, in.RepositoryRoot); info != nil {
				lockErr.Age = info.Age
			}
			return zero, lockErr
		}

		client := &Client{repo: r.open(in.RepositoryRoot)}
		client.active.Store(true)
		defer client.active.Store(false)

		return steps(ctx, client)
	})
}

// Saga is a named, reusable transaction.
type Saga[T any] struct {
	Name  string
	Steps Steps[T]
}

// Run executes the saga on in.
func (s Saga[T]) Run(ctx context.Context, r *Runner, in Input) (T, error) {
	start := time.Now()
	result, err := Execute(ctx, r, in, s.Steps)
	if err != nil {
		r.log.Debug("%s on %s failed after %v: %v", s.Name, in.RepositoryRoot, time.Since(start), err)
		return result, err
	}
	r.log.Debug("%s on %s finished in %v", s.Name, in.RepositoryRoot, time.Since(start))
	return result, nil
}
