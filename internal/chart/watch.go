package chart

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of writes into one change signal.
const DefaultDebounce = 100 * time.Millisecond

// Watcher signals when any of a set of files in one directory changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	names    map[string]bool
	debounce time.Duration
	onChange chan struct{}
	done     chan struct{}
}

// NewWatcher watches dir for writes to or creation of the named files. The
// directory is watched rather than the files so a file created later is
// still picked up.
func NewWatcher(dir string, debounce time.Duration, names ...string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("chart: watch: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("chart: watch %q: %w", dir, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		watcher:  fw,
		names:    make(map[string]bool, len(names)),
		debounce: debounce,
		onChange: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, n := range names {
		w.names[filepath.Base(n)] = true
	}
	go w.loop()
	return w, nil
}

// Changes returns a channel that receives a signal after a change.
func (w *Watcher) Changes() <-chan struct{} {
	return w.onChange
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	var timer *time.Timer
	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.names[filepath.Base(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case w.onChange <- struct{}{}:
				default:
				}
			})
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
