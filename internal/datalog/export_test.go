package datalog

import "os"

// File exposes the underlying file so tests can force write failures.
func (w *Writer) File() *os.File { return w.file }

// Queued returns the number of jobs waiting for the worker.
func (w *Writer) Queued() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}
