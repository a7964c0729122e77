// Package uiloop provides the single designated UI execution context: a FIFO
// task queue that producers post to without blocking and exactly one
// consumer drains.
package uiloop

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Next after Close once the queue is empty.
var ErrClosed = errors.New("uiloop: closed")

// Loop is an unbounded FIFO of tasks. Post never blocks, so it is safe to
// call while holding locks and from inside a running task.
type Loop struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool

	wake   chan struct{}
	done   chan struct{}
	once  sync.Once
	owner atomic.Uint64 // goroutine running the current task, 0 when idle
}

// New returns an empty Loop.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post appends task to the queue. Tasks posted after Close are dropped.
func (l *Loop) Post(task func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// InLoop reports whether the caller is the goroutine currently running a
// task or an Exec callback. Other goroutines get false even while a task is
// running.
func (l *Loop) InLoop() bool {
	id := l.owner.Load()
	return id != 0 && id == goroutineID()
}

// Exec runs fn as the UI context on the calling goroutine. Nested calls are
// allowed. There is one consumer: Exec must not run concurrently from two
// goroutines.
func (l *Loop) Exec(fn func()) {
	prev := l.owner.Swap(goroutineID())
	defer l.owner.Store(prev)
	fn()
}

// goroutineID parses the id from the "goroutine N [...]" header of the
// caller's stack trace.
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// Next blocks until a task is available and returns it without running it.
// It returns ErrClosed once the loop is closed and drained, or ctx.Err().
func (l *Loop) Next(ctx context.Context) (func(), error) {
	for {
		l.mu.Lock()
		if len(l.tasks) > 0 {
			task := l.tasks[0]
			l.tasks[0] = nil
			l.tasks = l.tasks[1:]
			l.mu.Unlock()
			return task, nil
		}
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}

		select {
		case <-l.wake:
		case <-l.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// RunPending executes every task queued at the time of the call, plus any
// they post, and returns how many ran.
func (l *Loop) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			l.mu.Unlock()
			return n
		}
		task := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()
		l.Exec(task)
		n++
	}
}

// Run consumes tasks until ctx is cancelled or the loop is closed.
func (l *Loop) Run(ctx context.Context) error {
	for {
		task, err := l.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		l.Exec(task)
	}
}

// Close stops accepting tasks. Tasks already queued remain available to Next.
func (l *Loop) Close() {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		close(l.done)
	})
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}
