// Package rwlock implements a reader-writer lock whose acquisitions block on a
// context and whose admission policy is FIFO within each queue with writer preference.
//
// Any number of readers may hold the lock together, or exactly one writer.
// Once a writer is queued, new readers queue behind it; readers already holding
// the lock are never preempted. Waiters whose context ends are removed from
// their queue and never hold the lock.
package rwlock

import (
	"container/list"
	"context"
	"sync"
)

// State is a point-in-time view of a lock.
type State struct {
	Readers       int
	WriterActive  bool
	WriterWaiting bool
	QueuedReaders int
	QueuedWriters int
}

// Idle reports whether nothing holds or waits for the lock.
func (s State) Idle() bool {
	return s.Readers == 0 && !s.WriterActive && s.QueuedReaders == 0 && s.QueuedWriters == 0
}

type waiter struct {
	ready   chan struct{}
	granted bool
	elem    *list.Element
}

// RWLock is a writer-preferring reader-writer lock.
// The zero value is an unlocked RWLock. An RWLock must not be copied after first use.
type RWLock struct {
	mu           sync.Mutex
	readers      int
	writerActive bool
	readQueue    list.List
	writeQueue   list.List
}

// New returns an unlocked RWLock.
func New() *RWLock {
	return &RWLock{}
}

// AcquireRead blocks until a read lock is held or ctx is done.
// On error the lock is not held and ReleaseRead must not be called.
func (l *RWLock) AcquireRead(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	if !l.writerActive && l.writeQueue.Len() == 0 {
		l.readers++
		l.mu.Unlock()
		return nil
	}
	w := &waiter{ready: make(chan struct{})}
	w.elem = l.readQueue.PushBack(w)
	l.mu.Unlock()

	return l.wait(ctx, w, &l.readQueue, func() { l.readers-- })
}

// TryAcquireRead takes a read lock only if it is available without waiting.
func (l *RWLock) TryAcquireRead() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writerActive || l.writeQueue.Len() > 0 {
		return false
	}
	l.readers++
	return true
}

// ReleaseRead releases one read lock.
// It panics if no read lock is held.
func (l *RWLock) ReleaseRead() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.readers <= 0 {
		panic("rwlock: ReleaseRead without matching AcquireRead")
	}
	l.readers--
	l.dispatch()
}

// AcquireWrite blocks until the write lock is held or ctx is done.
// On error the lock is not held and ReleaseWrite must not be called.
func (l *RWLock) AcquireWrite(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	if !l.writerActive && l.readers == 0 && l.writeQueue.Len() == 0 {
		l.writerActive = true
		l.mu.Unlock()
		return nil
	}
	w := &waiter{ready: make(chan struct{})}
	w.elem = l.writeQueue.PushBack(w)
	l.mu.Unlock()

	return l.wait(ctx, w, &l.writeQueue, func() { l.writerActive = false })
}

// TryAcquireWrite takes the write lock only if it is available without waiting.
func (l *RWLock) TryAcquireWrite() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writerActive || l.readers > 0 || l.writeQueue.Len() > 0 {
		return false
	}
	l.writerActive = true
	return true
}

// ReleaseWrite releases the write lock.
// It panics if the write lock is not held.
func (l *RWLock) ReleaseWrite() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.writerActive {
		panic("rwlock: ReleaseWrite without matching AcquireWrite")
	}
	l.writerActive = false
	l.dispatch()
}

// Snapshot returns the current state of the lock.
func (l *RWLock) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return State{
		Readers:       l.readers,
		WriterActive:  l.writerActive,
		WriterWaiting: l.writeQueue.Len() > 0,
		QueuedReaders: l.readQueue.Len(),
		QueuedWriters: l.writeQueue.Len(),
	}
}

// Idle reports whether nothing holds or waits for the lock.
func (l *RWLock) Idle() bool {
	return l.Snapshot().Idle()
}

// wait parks a queued waiter. If ctx ends first the waiter leaves its queue,
// or, when a grant raced the cancellation, gives the grant back via undo.
func (l *RWLock) wait(ctx context.Context, w *waiter, q *list.List, undo func()) error {
	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if w.granted {
		undo()
	} else {
		q.Remove(w.elem)
	}
	l.dispatch()
	return ctx.Err()
}

// dispatch hands the lock to queued waiters. Callers hold l.mu.
func (l *RWLock) dispatch() {
	if l.writerActive {
		return
	}

	if l.writeQueue.Len() > 0 {
		if l.readers == 0 {
			l.writerActive = true
			grant(&l.writeQueue, l.writeQueue.Front())
		}
		return
	}

	for e := l.readQueue.Front(); e != nil; e = l.readQueue.Front() {
		l.readers++
		grant(&l.readQueue, e)
	}
}

func grant(q *list.List, e *list.Element) {
	w := q.Remove(e).(*waiter)
	w.granted = true
	close(w.ready)
}
