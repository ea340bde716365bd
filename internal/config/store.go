package config

import "time"

// StoreConfig controls the relational store (internal/store, C1).
type StoreConfig struct {
	// DBPath is relative to the repo root; empty means ".codeplane/index.db".
	DBPath string `yaml:"db_path" json:"db_path,omitempty"`
	// BusyTimeout bounds how long a writer waits on SQLITE_BUSY before the
	// retry loop takes over.
	BusyTimeout time.Duration `yaml:"busy_timeout" json:"busy_timeout,omitempty"`
	// RetryBaseDelay / RetryMaxDelay / RetryAttempts bound the serializable
	// write-transaction retry loop (spec.md §4.C1).
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" json:"retry_base_delay,omitempty"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay" json:"retry_max_delay,omitempty"`
	RetryAttempts  int           `yaml:"retry_attempts" json:"retry_attempts,omitempty"`
}

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		DBPath:         ".codeplane/index.db",
		BusyTimeout:    30 * time.Second,
		RetryBaseDelay: 100 * time.Millisecond,
		RetryMaxDelay:  2 * time.Second,
		RetryAttempts:  3,
	}
}
