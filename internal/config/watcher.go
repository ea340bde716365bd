package config

import "time"

// WatcherConfig controls the filesystem watcher (internal/watcher, C9).
type WatcherConfig struct {
	DebounceWindow time.Duration `yaml:"debounce_window" json:"debounce_window,omitempty"`
	MaxDebounceWait time.Duration `yaml:"max_debounce_wait" json:"max_debounce_wait,omitempty"`
	QueueDepth      int           `yaml:"queue_depth" json:"queue_depth,omitempty"`
	// PrunableDirs lists directory names to skip regardless of .cplignore
	// content. No package reads this field: the CLI passes its own list of
	// the same names to discovery and the watcher, and the reconciler does
	// not skip directories by name.
	PrunableDirs []string `yaml:"prunable_dirs" json:"prunable_dirs,omitempty"`
	// MountHeuristics are path substrings that force polling mode instead of
	// native fsnotify (cross-filesystem mounts don't reliably deliver native
	// change notifications).
	MountHeuristics []string `yaml:"mount_heuristics" json:"mount_heuristics,omitempty"`
}

func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		DebounceWindow:  500 * time.Millisecond,
		MaxDebounceWait: 2 * time.Second,
		QueueDepth:      10000,
		PrunableDirs: []string{
			".git",
			".codeplane",
			"node_modules",
			"__pycache__",
			"vendor",
			"dist",
			"build",
			".venv",
			".cache",
			"target",
		},
		MountHeuristics: []string{
			"/mnt/",
			"/media/",
			"/net/",
			"/gvfs/",
		},
	}
}
