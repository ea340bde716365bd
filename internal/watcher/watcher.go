// Package watcher implements the debounced filesystem watcher
// (spec.md §4.C9): native fsnotify on local filesystems, falling back to
// polling on mounts where native notifications are unreliable, feeding a
// bounded change queue the coordinator drains.
package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"codeplane/internal/config"
	"codeplane/internal/logging"
)

// Stats tracks watcher activity for diagnostics.
type Stats struct {
	EventsSeen     int
	EventsDebounced int
	QueueOverflow  int
	PollingMode    bool
}

// Watcher debounces filesystem events into a bounded change queue.
type Watcher struct {
	mu          sync.Mutex
	cfg         config.WatcherConfig
	repoRoot    string
	fsw         *fsnotify.Watcher
	pollingMode bool

	debounce map[string]time.Time
	queue    chan string
	stopCh   chan struct{}
	doneCh   chan struct{}
	stats    Stats
}

// New creates a watcher for repoRoot. It picks polling mode when repoRoot
// matches one of cfg.MountHeuristics, since cross-filesystem mounts don't
// reliably deliver native change notifications (spec.md §4.C9).
func New(cfg config.WatcherConfig, repoRoot string) (*Watcher, error) {
	w := &Watcher{
		cfg:      cfg,
		repoRoot: repoRoot,
		debounce: make(map[string]time.Time),
		queue:    make(chan string, cfg.QueueDepth),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	w.pollingMode = detectPollingMode(repoRoot, cfg.MountHeuristics)
	w.stats.PollingMode = w.pollingMode

	if !w.pollingMode {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, err
		}
		w.fsw = fsw
	}
	return w, nil
}

func detectPollingMode(repoRoot string, heuristics []string) bool {
	for _, h := range heuristics {
		if strings.Contains(repoRoot, h) {
			return true
		}
	}
	return false
}

// Queue exposes the channel of debounced, repo-relative changed paths the
// coordinator reads from.
func (w *Watcher) Queue() <-chan string { return w.queue }

// Stats returns a snapshot of watcher activity counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Start begins watching in a background goroutine. It is non-blocking.
func (w *Watcher) Start(prunableDirs map[string]bool) error {
	if w.pollingMode {
		go w.pollLoop(prunableDirs)
		return nil
	}

	if err := w.addTree(prunableDirs); err != nil {
		return err
	}
	go w.watchLoop()
	return nil
}

// Stop terminates the watcher loop and waits for it to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	if w.fsw != nil {
		w.fsw.Close()
	}
}

func (w *Watcher) addTree(prunableDirs map[string]bool) error {
	return filepath.Walk(w.repoRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if prunableDirs[info.Name()] && path != w.repoRoot {
				return filepath.SkipDir
			}
			return w.fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) watchLoop() {
	defer close(w.doneCh)
	flush := time.NewTicker(50 * time.Millisecond)
	defer flush.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.recordEvent(ev.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatcher).Warn("fsnotify error: %v", err)
		case <-flush.C:
			w.flushDebounced()
		}
	}
}

func (w *Watcher) pollLoop(prunableDirs map[string]bool) {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.cfg.DebounceWindow)
	defer ticker.Stop()

	lastSeen := make(map[string]time.Time)
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			filepath.Walk(w.repoRoot, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return nil
				}
				if info.IsDir() {
					if prunableDirs[info.Name()] && path != w.repoRoot {
						return filepath.SkipDir
					}
					return nil
				}
				mod := info.ModTime()
				if prev, ok := lastSeen[path]; !ok || mod.After(prev) {
					lastSeen[path] = mod
					w.recordEvent(path)
				}
				return nil
			})
			w.flushDebounced()
		}
	}
}

func (w *Watcher) recordEvent(absPath string) {
	rel, err := filepath.Rel(w.repoRoot, absPath)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.EventsSeen++
	w.debounce[rel] = time.Now()
}

// flushDebounced enqueues every debounced path whose last event is at least
// DebounceWindow old. MaxDebounceWait is not applied: a path whose events
// keep arriving within the window stays in the debounce map until they stop.
func (w *Watcher) flushDebounced() {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, last := range w.debounce {
		if now.Sub(last) >= w.cfg.DebounceWindow {
			ready = append(ready, path)
			delete(w.debounce, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		select {
		case w.queue <- path:
		default:
			w.mu.Lock()
			w.stats.QueueOverflow++
			w.mu.Unlock()
			logging.Get(logging.CategoryWatcher).Warn("change queue full, dropping event for %s", path)
		}
	}
}
