// Package repolock serializes work on git working directories.
//
// A Manager owns one rwlock.RWLock per normalized repository path. Reads on a
// path run concurrently; a write on a path excludes every other read and write
// on that path. Different paths never block each other.
package repolock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/codefionn/repoguard/internal/consts"
	"github.com/codefionn/repoguard/internal/logger"
	"github.com/codefionn/repoguard/internal/rwlock"
)

// Mode selects shared or exclusive access.
type Mode int

const (
	// ModeRead admits concurrent readers
	ModeRead Mode = iota
	// ModeWrite admits one writer and no readers
	ModeWrite
)

func (m Mode) String() string {
	if m == ModeWrite {
		return "write"
	}
	return "read"
}

// Work is a unit of work run while a path's lock is held.
type Work func(ctx context.Context) error

type entry struct {
	lock *rwlock.RWLock
	// refs counts holders plus waiters
	refs int
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// RootResolver finds the top of the working tree that contains dir.
// vcs.Git satisfies it.
type RootResolver interface {
	RepositoryRoot(ctx context.Context, dir string) (string, error)
}

// Manager is the per-path lock registry.
type Manager struct {
	shards    [consts.RegistryShards]shard
	evict     bool
	normalize func(string) (string, error)
	roots     RootResolver
	log       *logger.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithEviction controls whether a path's lock is dropped once nothing holds or waits for it.
// Enabled by default. Disabled, entries live as long as the Manager.
func WithEviction(enabled bool) Option {
	return func(m *Manager) {
		m.evict = enabled
	}
}

// WithNormalizer replaces Normalize as the path identity function.
func WithNormalizer(fn func(string) (string, error)) Option {
	return func(m *Manager) {
		m.normalize = fn
	}
}

// WithRootResolver keys locks by working-tree root, so every directory inside
// one working tree shares that tree's lock. Paths the resolver rejects, such as
// directories outside any repository, keep their own normalized identity.
func WithRootResolver(r RootResolver) Option {
	return func(m *Manager) {
		m.roots = r
	}
}

// WithLogger sets the logger used for wait diagnostics.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// NewManager creates an empty registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		evict:     true,
		normalize: Normalize,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.Global().WithPrefix("repolock")
	}
	for i := range m.shards {
		m.shards[i].entries = make(map[string]*entry)
	}
	return m
}

// Normalize returns the identity used for a repository path: absolute,
// cleaned, and with symlinks resolved when the path exists.
func Normalize(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty repository path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return abs, nil
		}
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return resolved, nil
}

// key returns the registry identity of path.
func (m *Manager) key(ctx context.Context, path string) (string, error) {
	key, err := m.normalize(path)
	if err != nil || m.roots == nil {
		return key, err
	}

	root, err := m.roots.RepositoryRoot(ctx, key)
	if err != nil || root == "" {
		m.log.Debug("no working tree above %s, locking it as is: %v", key, err)
		return key, nil
	}
	if root == key {
		return key, nil
	}
	return m.normalize(root)
}

func (m *Manager) shardFor(key string) *shard {
	return &m.shards[xxhash.Sum64String(key)&(consts.RegistryShards-1)]
}

// retain returns the lock for key, creating it if needed, and counts the caller.
func (m *Manager) retain(key string) *rwlock.RWLock {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{lock: rwlock.New()}
		s.entries[key] = e
	}
	e.refs++
	return e.lock
}

// forget drops the caller's reference and evicts the entry when it was the last.
func (m *Manager) forget(key string) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 && m.evict {
		delete(s.entries, key)
	}
}

// ExecuteRead runs work while holding a read lock on path.
// The lock is released however work returns; work's error is returned unchanged.
func (m *Manager) ExecuteRead(ctx context.Context, path string, work Work) error {
	return m.execute(ctx, path, ModeRead, work)
}

// ExecuteWrite runs work while holding the write lock on path.
// At most one ExecuteWrite per path runs at a time, and never alongside an ExecuteRead.
func (m *Manager) ExecuteWrite(ctx context.Context, path string, work Work) error {
	return m.execute(ctx, path, ModeWrite, work)
}

func (m *Manager) execute(ctx context.Context, path string, mode Mode, work Work) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := m.key(ctx, path)
	if err != nil {
		return err
	}

	lock := m.retain(key)
	defer m.forget(key)

	start := time.Now()
	acquire, release := lock.AcquireRead, lock.ReleaseRead
	if mode == ModeWrite {
		acquire, release = lock.AcquireWrite, lock.ReleaseWrite
	}
	if err := acquire(ctx); err != nil {
		m.log.Debug("%s lock on %s abandoned after %v: %v", mode, key, time.Since(start), err)
		return err
	}
	defer release()

	if m.log.Enabled(logger.LevelDebug) {
		if waited := time.Since(start); waited > time.Millisecond {
			m.log.Debug("%s lock on %s acquired after %v", mode, key, waited)
		}
	}

	return work(ctx)
}

// State reports the lock state for path, and whether the registry tracks it.
func (m *Manager) State(path string) (rwlock.State, bool) {
	key, err := m.key(context.Background(), path)
	if err != nil {
		return rwlock.State{}, false
	}

	s := m.shardFor(key)
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return rwlock.State{}, false
	}
	return e.lock.Snapshot(), true
}

// Len returns the number of paths the registry tracks.
func (m *Manager) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Read runs fn under a read lock on path and returns its result.
func Read[T any](ctx context.Context, m *Manager, path string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := m.ExecuteRead(ctx, path, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

// Write runs fn under the write lock on path and returns its result.
func Write[T any](ctx context.Context, m *Manager, path string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := m.ExecuteWrite(ctx, path, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}
