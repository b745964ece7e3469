package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// ApplyFunc parses a fresh copy of a watched file and swaps it in. It must
// leave the previous snapshot untouched when it returns an error.
type ApplyFunc func(data []byte) error

// ReloadHook observes reload outcomes (logging, metrics).
type ReloadHook func(name, path string, err error)

type watched struct {
	name    string
	path    string
	apply   ApplyFunc
	modTime time.Time
	size    int64
}

// FileWatcher polls file modification times and re-applies changed files.
type FileWatcher struct {
	mu       sync.Mutex
	interval time.Duration
	entries  []*watched
	hook     ReloadHook
}

func NewFileWatcher(interval time.Duration, hook ReloadHook) *FileWatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &FileWatcher{interval: interval, hook: hook}
}

// Subscribe registers a file. The current mtime becomes the baseline, so the
// file is not re-applied until it changes.
func (w *FileWatcher) Subscribe(name, path string, apply func(data []byte) error) {
	if path == "" || apply == nil {
		return
	}
	e := &watched{name: name, path: path, apply: apply}
	if st, err := os.Stat(path); err == nil {
		e.modTime, e.size = st.ModTime(), st.Size()
	}
	w.mu.Lock()
	w.entries = append(w.entries, e)
	w.mu.Unlock()
}

// Start polls until ctx is cancelled.
func (w *FileWatcher) Start(ctx context.Context) {
	go func() {
		t := time.NewTicker(w.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				w.Poll()
			}
		}
	}()
}

// Poll checks every subscribed file once and returns how many were reloaded.
func (w *FileWatcher) Poll() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, e := range w.entries {
		st, err := os.Stat(e.path)
		if err != nil {
			continue
		}
		if st.ModTime().Equal(e.modTime) && st.Size() == e.size {
			continue
		}
		// Record the new mtime even on failure so a broken file is reported
		// once, not on every tick.
		e.modTime, e.size = st.ModTime(), st.Size()
		if err := w.reload(e); err == nil {
			n++
		}
	}
	return n
}

// ReloadAll re-applies every file regardless of mtime.
func (w *FileWatcher) ReloadAll() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var firstErr error
	for _, e := range w.entries {
		if err := w.reload(e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (w *FileWatcher) reload(e *watched) error {
	data, err := os.ReadFile(e.path)
	if err == nil {
		err = e.apply(data)
	}
	if err != nil {
		err = fmt.Errorf("reload %s: %w", e.name, err)
	}
	if w.hook != nil {
		w.hook(e.name, e.path, err)
	}
	return err
}
