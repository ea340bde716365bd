// Package store implements the relational fact store (spec.md §4.C1): a
// SQLite-backed database reachable three ways — an ORM-style read session,
// a serializable write transaction with busy-retry, and a high-volume bulk
// writer for reconcile/indexer batches.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"codeplane/internal/config"
	"codeplane/internal/errs"
	"codeplane/internal/logging"
)

// Store owns the single *sql.DB connection backing the fact store.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	path   string
	cfg    config.StoreConfig
}

// Open opens (creating if absent) the SQLite database at cfg.DBPath and
// runs schema migrations.
func Open(cfg config.StoreConfig) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	dir := filepath.Dir(cfg.DBPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", cfg.DBPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busyMs := int(cfg.BusyTimeout / time.Millisecond)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyMs)); err != nil {
		logging.Get(logging.CategoryStore).Warn("set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.Get(logging.CategoryStore).Warn("set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.Get(logging.CategoryStore).Warn("set synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.Get(logging.CategoryStore).Warn("set foreign_keys=ON: %v", err)
	}

	s := &Store{db: db, path: cfg.DBPath, cfg: cfg}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, &errs.DatabaseCorrupt{Path: cfg.DBPath, Err: err}
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying connection for read-only ORM-style sessions.
// Writers must go through WithWriteTx or a BulkWriter.
func (s *Store) DB() *sql.DB { return s.db }

// WithWriteTx runs fn inside a serializable write transaction (BEGIN
// IMMEDIATE), retrying on SQLITE_BUSY with exponential backoff per
// cfg.RetryAttempts/RetryBaseDelay/RetryMaxDelay. Only one writer proceeds
// at a time; the mutex here serializes writers at the process level in
// addition to SQLite's own locking, matching the teacher's single-conn
// pattern.
func (s *Store) WithWriteTx(fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delay := s.cfg.RetryBaseDelay
	var lastErr error
	for attempt := 0; attempt <= s.cfg.RetryAttempts; attempt++ {
		err := s.runWriteTx(fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isBusyErr(err) {
			return err
		}
		if attempt == s.cfg.RetryAttempts {
			break
		}
		time.Sleep(delay)
		delay *= 2
		if delay > s.cfg.RetryMaxDelay {
			delay = s.cfg.RetryMaxDelay
		}
	}
	return &errs.DatabaseLocked{Attempts: s.cfg.RetryAttempts + 1, Last: lastErr}
}

// runWriteTx takes the reserved lock up front (BEGIN IMMEDIATE) rather than
// deferring it to the first write statement, so two writers racing for the
// lock fail fast at Begin instead of mid-transaction.
func (s *Store) runWriteTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "sqlite_busy") || strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
