// Package datalog appends received data to a per-session log file and manages
// the set of session files on disk.
//
// A session file is plain text: the header line "data" followed by every
// received payload, verbatim. Writes go through a single worker goroutine so
// concurrent Append calls never interleave and never block the caller.
package datalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/relay"
)

// Header is the first line of every session file.
const Header = "data\n"

// Ext is the session file extension.
const Ext = ".csv"

// DefaultDrainTimeout bounds how long Close waits for queued appends.
const DefaultDrainTimeout = 2 * time.Second

var (
	// ErrAlreadyExists is returned by Open when the session file exists.
	ErrAlreadyExists = errors.New("datalog: session file already exists")
	// ErrClosed is returned by Append and Flush after Close.
	ErrClosed = errors.New("datalog: writer closed")
	// ErrDrainTimeout is returned by Close when queued appends were abandoned.
	ErrDrainTimeout = errors.New("datalog: drain timeout")
)

// Options configures a Writer.
type Options struct {
	// Sync calls fsync after every write.
	Sync bool
	// OnError receives write failures from the worker goroutine. Defaults to
	// logging at warn level.
	OnError func(error)
	// DrainTimeout bounds Close. Zero means DefaultDrainTimeout.
	DrainTimeout time.Duration
	// Logger is used by the default OnError. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewSessionID returns the session identifier for a session started at t.
func NewSessionID(t time.Time) string {
	return fmt.Sprintf("usbterm_%d", t.UnixMilli())
}

// FileName returns the file name used for sessionID.
func FileName(sessionID string) string {
	return sessionID + Ext
}

type job struct {
	data    []byte
	flushed chan struct{}
}

// Writer is a single-writer, append-only session file.
type Writer struct {
	file      *os.File
	path      string
	sessionID string
	opts      Options

	mu     sync.Mutex
	queue  []job
	closed bool

	wake    chan struct{}
	done    chan struct{}
	abandon atomic.Bool

	pos     int64 // owned by the worker
	written atomic.Int64
	failed  atomic.Int64
}

// Open creates the session file for sessionID in dir and writes the header.
// It never truncates or reuses an existing file.
func Open(dir, sessionID string, opts Options) (*Writer, error) {
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) {
		return nil, fmt.Errorf("datalog: invalid session id %q", sessionID)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("datalog: mkdir %q: %w", dir, err)
	}
	path := filepath.Join(dir, FileName(sessionID))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0660)
	if errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, path)
	}
	if err != nil {
		return nil, fmt.Errorf("datalog: create %q: %w", path, err)
	}
	if _, err := f.WriteAt([]byte(Header), 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("datalog: write header: %w", err)
	}

	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.OnError == nil {
		logger := opts.Logger
		opts.OnError = func(err error) { logger.Warn("log write failed", "err", err) }
	}

	w := &Writer{
		file:      f,
		path:      path,
		sessionID: sessionID,
		opts:      opts,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		pos:       int64(len(Header)),
	}
	w.written.Store(w.pos)
	go w.run()
	return w, nil
}

// Path returns the session file path.
func (w *Writer) Path() string { return w.path }

// SessionID returns the session identifier.
func (w *Writer) SessionID() string { return w.sessionID }

// Written returns the number of bytes in the file, header included, as of
// the last completed write.
func (w *Writer) Written() int64 { return w.written.Load() }

// Failures returns how many writes have failed.
func (w *Writer) Failures() int64 { return w.failed.Load() }

// Append queues payload for writing and returns immediately. The payload is
// copied. Write failures are reported to Options.OnError, not here.
func (w *Writer) Append(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	data := make([]byte, len(payload))
	copy(data, payload)
	return w.enqueue(job{data: data})
}

// Flush waits until every append queued before the call has been written.
// It returns ErrDrainTimeout if Close abandoned the queue first.
func (w *Writer) Flush(ctx context.Context) error {
	ch := make(chan struct{})
	if err := w.enqueue(job{flushed: ch}); err != nil {
		return err
	}
	select {
	case <-ch:
		if w.abandon.Load() {
			return ErrDrainTimeout
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Observer returns a relay observer that appends every DataRead payload.
func (w *Writer) Observer() relay.Observer {
	return func(e relay.Event) {
		if e.Kind() != relay.EventDataRead {
			return
		}
		if err := w.Append(e.Payload()); err != nil {
			w.opts.OnError(err)
		}
	}
}

// Close stops accepting appends and waits up to the drain timeout for the
// queue to empty. Appends still queued after the timeout are abandoned.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	w.signal()

	var drainErr error
	select {
	case <-w.done:
	case <-time.After(w.opts.DrainTimeout):
		w.abandon.Store(true)
		w.mu.Lock()
		n := len(w.queue)
		w.mu.Unlock()
		drainErr = fmt.Errorf("%w: %d appends abandoned", ErrDrainTimeout, n)
	}
	if err := w.file.Close(); err != nil && drainErr == nil {
		return fmt.Errorf("datalog: close: %w", err)
	}
	return drainErr
}

func (w *Writer) enqueue(j job) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.queue = append(w.queue, j)
	w.mu.Unlock()
	w.signal()
	return nil
}

func (w *Writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// run is the single sequential worker. Each write lands at the offset left
// by the previous one.
func (w *Writer) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			closed := w.closed
			w.mu.Unlock()
			if closed {
				return
			}
			<-w.wake
			continue
		}
		j := w.queue[0]
		w.queue[0] = job{}
		w.queue = w.queue[1:]
		w.mu.Unlock()

		if w.abandon.Load() {
			w.release(j)
			return
		}
		if j.flushed != nil {
			close(j.flushed)
			continue
		}
		w.write(j.data)
	}
}

// release drops j and everything still queued, waking any Flush waiters.
func (w *Writer) release(j job) {
	w.mu.Lock()
	rest := w.queue
	w.queue = nil
	w.mu.Unlock()
	for _, j := range append([]job{j}, rest...) {
		if j.flushed != nil {
			close(j.flushed)
		}
	}
}

func (w *Writer) write(data []byte) {
	n, err := w.file.WriteAt(data, w.pos)
	w.pos += int64(n)
	w.written.Store(w.pos)
	if err == nil && w.opts.Sync {
		err = w.file.Sync()
	}
	if err != nil {
		w.failed.Add(1)
		if !w.abandon.Load() {
			w.opts.OnError(fmt.Errorf("datalog: append %d bytes: %w", len(data), err))
		}
	}
}
