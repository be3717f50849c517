package rwlock

import (
	"container/list"
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// eventually waits until the lock reaches a state matching cond.
func eventually(t *testing.T, l *RWLock, cond func(State) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(l.Snapshot()) }, 2*time.Second, time.Millisecond)
}

func acquireAsync(ctx context.Context, acquire func(context.Context) error) <-chan error {
	done := make(chan error, 1)
	go func() { done <- acquire(ctx) }()
	return done
}

func assertPending(t *testing.T, ch <-chan error) {
	t.Helper()
	select {
	case err := <-ch:
		t.Fatalf("acquisition completed early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
}

func receive(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("acquisition did not complete")
		return nil
	}
}

func TestNewIsIdle(t *testing.T) {
	l := New()
	assert.True(t, l.Idle())
	assert.Equal(t, State{}, l.Snapshot())
}

func TestReadersShareLock(t *testing.T) {
	ctx := context.Background()
	l := New()

	require.NoError(t, l.AcquireRead(ctx))
	require.NoError(t, l.AcquireRead(ctx))
	assert.Equal(t, 2, l.Snapshot().Readers)

	l.ReleaseRead()
	l.ReleaseRead()
	assert.True(t, l.Idle())
}

func TestWriterWaitsForReader(t *testing.T) {
	ctx := context.Background()
	l := New()

	require.NoError(t, l.AcquireRead(ctx))
	writer := acquireAsync(ctx, l.AcquireWrite)
	eventually(t, l, func(s State) bool { return s.QueuedWriters == 1 })
	assertPending(t, writer)

	l.ReleaseRead()
	require.NoError(t, receive(t, writer))

	s := l.Snapshot()
	assert.True(t, s.WriterActive)
	assert.Equal(t, 0, s.Readers)
	assert.False(t, s.WriterWaiting)
	l.ReleaseWrite()
}

func TestReaderWaitsForWriter(t *testing.T) {
	ctx := context.Background()
	l := New()

	require.NoError(t, l.AcquireWrite(ctx))
	reader := acquireAsync(ctx, l.AcquireRead)
	eventually(t, l, func(s State) bool { return s.QueuedReaders == 1 })
	assertPending(t, reader)

	l.ReleaseWrite()
	require.NoError(t, receive(t, reader))
	assert.Equal(t, 1, l.Snapshot().Readers)
	l.ReleaseRead()
}

func TestWriterPreferenceBlocksNewReaders(t *testing.T) {
	ctx := context.Background()
	l := New()

	require.NoError(t, l.AcquireRead(ctx))

	writer := acquireAsync(ctx, l.AcquireWrite)
	eventually(t, l, func(s State) bool { return s.WriterWaiting })

	// A writer is waiting, so this reader queues even though only readers hold the lock.
	assert.False(t, l.TryAcquireRead())
	reader := acquireAsync(ctx, l.AcquireRead)
	eventually(t, l, func(s State) bool { return s.QueuedReaders == 1 })

	l.ReleaseRead()
	require.NoError(t, receive(t, writer))
	assertPending(t, reader)

	l.ReleaseWrite()
	require.NoError(t, receive(t, reader))
	l.ReleaseRead()
	assert.True(t, l.Idle())
}

func TestQueuedWritersBeforeQueuedReaders(t *testing.T) {
	ctx := context.Background()
	l := New()

	require.NoError(t, l.AcquireWrite(ctx))

	reader := acquireAsync(ctx, l.AcquireRead)
	eventually(t, l, func(s State) bool { return s.QueuedReaders == 1 })
	writer := acquireAsync(ctx, l.AcquireWrite)
	eventually(t, l, func(s State) bool { return s.QueuedWriters == 1 })

	// The reader queued first, but a waiting writer is granted before it.
	l.ReleaseWrite()
	require.NoError(t, receive(t, writer))
	assertPending(t, reader)

	l.ReleaseWrite()
	require.NoError(t, receive(t, reader))
	l.ReleaseRead()
}

func TestWritersGrantedInArrivalOrder(t *testing.T) {
	ctx := context.Background()
	l := New()
	require.NoError(t, l.AcquireWrite(ctx))

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.AcquireWrite(ctx); err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			l.ReleaseWrite()
		}()
		eventually(t, l, func(s State) bool { return s.QueuedWriters == i+1 })
	}

	l.ReleaseWrite()
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.True(t, l.Idle())
}

// queued returns the waiters in q, front first.
func queued(l *RWLock, q *list.List) []*waiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	var ws []*waiter
	for e := q.Front(); e != nil; e = e.Next() {
		ws = append(ws, e.Value.(*waiter))
	}
	return ws
}

func granted(w *waiter) bool {
	select {
	case <-w.ready:
		return true
	default:
		return false
	}
}

func TestQueuedReadersAdmittedTogether(t *testing.T) {
	ctx := context.Background()
	l := New()
	require.NoError(t, l.AcquireWrite(ctx))

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.AcquireRead(ctx); err != nil {
				t.Error(err)
			}
		}()
		eventually(t, l, func(s State) bool { return s.QueuedReaders == i+1 })
	}

	readers := queued(l, &l.readQueue)
	require.Len(t, readers, 4)
	for _, w := range readers {
		assert.False(t, granted(w))
	}

	l.ReleaseWrite()
	wg.Wait()

	// One release admits the whole batch and leaves nothing queued.
	for i, w := range readers {
		assert.True(t, granted(w), "reader %d not admitted", i)
	}
	s := l.Snapshot()
	assert.Equal(t, 4, s.Readers)
	assert.Zero(t, s.QueuedReaders)
	for range 4 {
		l.ReleaseRead()
	}
	assert.True(t, l.Idle())
}

func TestWaitersGrantedFrontFirst(t *testing.T) {
	ctx := context.Background()
	l := New()
	require.NoError(t, l.AcquireRead(ctx))

	for i := range 3 {
		acquireAsync(ctx, l.AcquireWrite)
		eventually(t, l, func(s State) bool { return s.QueuedWriters == i+1 })
	}
	writers := queued(l, &l.writeQueue)
	require.Len(t, writers, 3)

	// Each release hands the lock to the current front of the queue only.
	l.ReleaseRead()
	for i := range writers {
		for j, w := range writers {
			assert.Equal(t, j <= i, granted(w), "after %d releases, writer %d", i, j)
		}
		l.ReleaseWrite()
	}
	assert.True(t, l.Idle())
}

func TestWriteCycleRestoresInitialState(t *testing.T) {
	ctx := context.Background()
	l := New()
	initial := l.Snapshot()

	for range 2 {
		require.NoError(t, l.AcquireWrite(ctx))
		l.ReleaseWrite()
	}
	assert.Equal(t, initial, l.Snapshot())
}

func TestTryAcquire(t *testing.T) {
	l := New()

	require.True(t, l.TryAcquireWrite())
	assert.False(t, l.TryAcquireWrite())
	assert.False(t, l.TryAcquireRead())
	l.ReleaseWrite()

	require.True(t, l.TryAcquireRead())
	assert.False(t, l.TryAcquireWrite())
	assert.True(t, l.TryAcquireRead())
	l.ReleaseRead()
	l.ReleaseRead()
	assert.True(t, l.Idle())
}

func TestCancelledContextFailsFast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := New()

	assert.ErrorIs(t, l.AcquireRead(ctx), context.Canceled)
	assert.ErrorIs(t, l.AcquireWrite(ctx), context.Canceled)
	assert.True(t, l.Idle())
}

func TestCancelledReaderLeavesQueue(t *testing.T) {
	l := New()
	require.NoError(t, l.AcquireWrite(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	reader := acquireAsync(ctx, l.AcquireRead)
	eventually(t, l, func(s State) bool { return s.QueuedReaders == 1 })

	cancel()
	err := receive(t, reader)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, l.Snapshot().QueuedReaders)

	l.ReleaseWrite()
	assert.True(t, l.Idle())
}

func TestWriterTimeoutLeavesQueue(t *testing.T) {
	l := New()
	require.NoError(t, l.AcquireRead(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := l.AcquireWrite(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	s := l.Snapshot()
	assert.False(t, s.WriterWaiting)
	assert.False(t, s.WriterActive)
	l.ReleaseRead()
	assert.True(t, l.Idle())
}

func TestCancelledLastWriterAdmitsReaders(t *testing.T) {
	bg := context.Background()
	l := New()
	require.NoError(t, l.AcquireRead(bg))

	wctx, cancel := context.WithCancel(bg)
	writer := acquireAsync(wctx, l.AcquireWrite)
	eventually(t, l, func(s State) bool { return s.WriterWaiting })

	reader := acquireAsync(bg, l.AcquireRead)
	eventually(t, l, func(s State) bool { return s.QueuedReaders == 1 })

	cancel()
	assert.ErrorIs(t, receive(t, writer), context.Canceled)
	require.NoError(t, receive(t, reader))
	assert.Equal(t, 2, l.Snapshot().Readers)

	l.ReleaseRead()
	l.ReleaseRead()
	assert.True(t, l.Idle())
}

func TestReleaseWithoutAcquirePanics(t *testing.T) {
	l := New()
	assert.Panics(t, func() { l.ReleaseRead() })
	assert.Panics(t, func() { l.ReleaseWrite() })
}

func TestConcurrentInvariants(t *testing.T) {
	l := New()
	var activeReaders, activeWriters atomic.Int32

	g, ctx := errgroup.WithContext(context.Background())
	for i := range 32 {
		write := i%4 == 0
		g.Go(func() error {
			rng := rand.New(rand.NewSource(int64(i)))
			for range 50 {
				if write {
					if err := l.AcquireWrite(ctx); err != nil {
						return err
					}
					if activeWriters.Add(1) != 1 || activeReaders.Load() != 0 {
						l.ReleaseWrite()
						return errors.New("writer overlapped another holder")
					}
					time.Sleep(time.Duration(rng.Intn(50)) * time.Microsecond)
					activeWriters.Add(-1)
					l.ReleaseWrite()
					continue
				}

				if err := l.AcquireRead(ctx); err != nil {
					return err
				}
				activeReaders.Add(1)
				if activeWriters.Load() != 0 {
					activeReaders.Add(-1)
					l.ReleaseRead()
					return errors.New("reader overlapped a writer")
				}
				s := l.Snapshot()
				if s.Readers < 1 || s.WriterActive {
					activeReaders.Add(-1)
					l.ReleaseRead()
					return errors.New("inconsistent state while reading")
				}
				time.Sleep(time.Duration(rng.Intn(50)) * time.Microsecond)
				activeReaders.Add(-1)
				l.ReleaseRead()
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())
	assert.True(t, l.Idle())
}
