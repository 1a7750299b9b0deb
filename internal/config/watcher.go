package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads a Policy file on change and hands the reloaded
// Policy to every subscriber. Grounded on the teacher's MangleWatcher
// (internal/core/mangle_watcher.go): an fsnotify.Watcher over a single
// directory, debounced, stoppable via a done channel.
//
// A live reload only affects attempts wrapped after the reload completes —
// each envelope freezes its own policy_snapshot at wrap_patch time, so
// historical envelopes are never retroactively altered (spec §9 "Policy
// snapshot").
type Watcher struct {
	mu          sync.RWMutex
	path        string
	current     Policy
	watcher     *fsnotify.Watcher
	debounceDur time.Duration
	onReload    func(Policy)
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewWatcher loads path once, then prepares (without starting) a watcher
// over its parent directory.
func NewWatcher(path string, onReload func(Policy)) (*Watcher, error) {
	initial, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		path:        path,
		current:     initial,
		watcher:     fw,
		debounceDur: 300 * time.Millisecond,
		onReload:    onReload,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Current returns the most recently loaded policy.
func (w *Watcher) Current() Policy {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching the policy file's directory in a background
// goroutine. Non-blocking.
func (w *Watcher) Start() error {
	dir := parentDir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	var lastEvent time.Time
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if time.Since(lastEvent) < w.debounceDur {
				continue
			}
			lastEvent = time.Now()
			w.reload()
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) reload() {
	p, err := Load(w.path)
	if err != nil {
		return // keep serving the last good policy; reload failures are not fatal
	}
	w.mu.Lock()
	w.current = p
	w.mu.Unlock()
	if w.onReload != nil {
		w.onReload(p)
	}
}

// Stop halts the background goroutine and closes the underlying watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[:i]
		}
	}
	return "."
}
