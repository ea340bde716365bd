package watcher

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeplane/internal/config"
)

func TestDetectPollingMode_MatchesHeuristicSubstring(t *testing.T) {
	assert.True(t, detectPollingMode("/mnt/nfs/repo", []string{"/mnt/nfs"}))
	assert.False(t, detectPollingMode("/home/user/repo", []string{"/mnt/nfs"}))
}

func newBareWatcher(t *testing.T, repoRoot string, debounceWindow time.Duration, queueDepth int) *Watcher {
	t.Helper()
	return &Watcher{
		cfg:      config.WatcherConfig{DebounceWindow: debounceWindow, QueueDepth: queueDepth},
		repoRoot: repoRoot,
		debounce: make(map[string]time.Time),
		queue:    make(chan string, queueDepth),
	}
}

func TestRecordEvent_EntersDebounceAndFlushesOnceWindowElapses(t *testing.T) {
	root := t.TempDir()
	w := newBareWatcher(t, root, 10*time.Millisecond, 4)

	w.recordEvent(filepath.Join(root, "a.go"))
	assert.Equal(t, 1, w.Stats().EventsSeen)

	w.flushDebounced()
	select {
	case <-w.queue:
		t.Fatal("expected no flush before debounce window elapses")
	default:
	}

	time.Sleep(15 * time.Millisecond)
	w.flushDebounced()

	require.Len(t, w.queue, 1)
	assert.Equal(t, "a.go", <-w.queue)
}

func TestFlushDebounced_RecordsOverflowWhenQueueIsFull(t *testing.T) {
	root := t.TempDir()
	w := newBareWatcher(t, root, time.Millisecond, 1)
	w.queue <- "already-queued"

	w.recordEvent(filepath.Join(root, "a.go"))
	time.Sleep(5 * time.Millisecond)
	w.flushDebounced()

	assert.Equal(t, 1, w.Stats().QueueOverflow)
}

func TestQueue_ExposesUnderlyingChannel(t *testing.T) {
	w := newBareWatcher(t, t.TempDir(), time.Millisecond, 1)
	w.queue <- "x.go"

	assert.Equal(t, "x.go", <-w.Queue())
}
