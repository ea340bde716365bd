// Package epoch implements the two-phase-commit epoch manager
// (spec.md §4.C8), faithfully porting original_source/.../db/epoch.py's
// EpochManager: a fsynced on-disk journal makes the lexical-index commit
// and the relational-store commit appear atomic even though they are two
// separate storage engines, and startup recovery uses the journal to
// detect and repair the one desync state two-phase commit can leave
// behind (lexical committed, store not — store is authoritative, so
// recovery rebuilds the lexical index from it).
package epoch

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"codeplane/internal/lexical"
	"codeplane/internal/logging"
	"codeplane/internal/model"
	"codeplane/internal/store"
)

// Journal is the on-disk rollback record written before any commit and
// deleted after the epoch completes.
type Journal struct {
	EpochID          int64   `json:"epoch_id"`
	TantivyCommitted bool    `json:"tantivy_committed"`
	SqliteCommitted  bool    `json:"sqlite_committed"`
	CreatedAt        float64 `json:"created_at"`
}

// Stats summarizes one Publish call.
type Stats struct {
	EpochID      int64
	FilesIndexed int
	PublishedAt  time.Time
	CommitHash   string
}

// Manager owns the journal directory and coordinates publish/recovery.
type Manager struct {
	st         *store.Store
	lex        *lexical.Index
	journalDir string
}

func New(st *store.Store, lex *lexical.Index, journalDir string) *Manager {
	return &Manager{st: st, lex: lex, journalDir: journalDir}
}

func (m *Manager) journalPath(epochID int64) string {
	return filepath.Join(m.journalDir, "epoch_"+strconv.FormatInt(epochID, 10)+".journal")
}

func (m *Manager) writeJournal(j Journal) error {
	if err := os.MkdirAll(m.journalDir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(j)
	if err != nil {
		return err
	}
	path := m.journalPath(j.EpochID)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (m *Manager) deleteJournal(epochID int64) error {
	err := os.Remove(m.journalPath(epochID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (m *Manager) readJournal(epochID int64) (*Journal, error) {
	data, err := os.ReadFile(m.journalPath(epochID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var j Journal
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, nil // unreadable journal, treat as absent per original's except clause
	}
	return &j, nil
}

// FindIncompleteEpochs scans the journal directory for any leftover
// journal files, the crash-recovery entry point called at startup.
func (m *Manager) FindIncompleteEpochs() ([]Journal, error) {
	entries, err := os.ReadDir(m.journalDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Journal
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "epoch_") || !strings.HasSuffix(e.Name(), ".journal") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.journalDir, e.Name()))
		if err != nil {
			continue
		}
		var j Journal
		if err := json.Unmarshal(data, &j); err != nil {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

// CurrentEpoch returns the latest published epoch id, or 0 if none.
func (m *Manager) CurrentEpoch() (int64, error) {
	e, err := m.st.LatestEpoch()
	if err != nil {
		return 0, err
	}
	if e == nil {
		return 0, nil
	}
	return e.ID, nil
}

// Publish runs the five-phase commit sequence: write journal, commit
// lexical staged changes, update journal, commit the store transaction
// (epoch row + RepoState + last_indexed_epoch + DefFact snapshots),
// delete journal.
func (m *Manager) Publish(filesIndexed int, commitHash string, indexedPaths []string) (Stats, error) {
	timer := logging.StartTimer(logging.CategoryEpoch, "Publish")
	defer timer.Stop()

	current, err := m.CurrentEpoch()
	if err != nil {
		return Stats{}, err
	}
	newEpochID := current + 1
	publishedAt := time.Now()

	journal := Journal{EpochID: newEpochID, CreatedAt: float64(publishedAt.Unix())}
	if err := m.writeJournal(journal); err != nil {
		return Stats{}, err
	}

	if m.lex != nil {
		if m.lex.HasStagedChanges() {
			if err := m.lex.CommitStaged(); err != nil {
				m.lex.DiscardStaged()
				return Stats{}, err
			}
		} else {
			_ = m.lex.Reload()
		}
	}
	journal.TantivyCommitted = true
	if err := m.writeJournal(journal); err != nil {
		return Stats{}, err
	}

	err = m.st.WithWriteTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT INTO epochs (id, created_at, file_count, commit_hash) VALUES (?, ?, ?, ?)`,
			newEpochID, publishedAt, filesIndexed, commitHash); err != nil {
			return err
		}
		if err := store.SetCurrentEpoch(tx, newEpochID); err != nil {
			return err
		}
		if len(indexedPaths) > 0 {
			ph := placeholders(len(indexedPaths))
			args := make([]any, 0, len(indexedPaths)+1)
			args = append(args, newEpochID)
			for _, p := range indexedPaths {
				args = append(args, p)
			}
			if _, err := tx.Exec(
				`UPDATE files SET last_indexed_epoch = ? WHERE path IN `+ph, args...); err != nil {
				return err
			}
			if _, err := tx.Exec(
				`INSERT INTO def_snapshots (epoch_id, def_uid, file_id, kind, name, lexical_path,
				                             signature, signature_hash, body, start_line, end_line)
				 SELECT ?, d.def_uid, d.file_id, d.kind, d.name, d.lexical_path, d.signature,
				        d.signature_hash, d.body, d.start_line, d.end_line
				 FROM def_facts d JOIN files f ON f.id = d.file_id
				 WHERE f.path IN `+ph, append([]any{newEpochID}, args[1:]...)...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	journal.SqliteCommitted = true

	if err := m.deleteJournal(newEpochID); err != nil {
		logging.Get(logging.CategoryEpoch).Warn("delete journal %d: %v", newEpochID, err)
	}

	return Stats{EpochID: newEpochID, FilesIndexed: filesIndexed, PublishedAt: publishedAt, CommitHash: commitHash}, nil
}

// RecoverIncompleteEpoch applies original's recovery rule: if sqlite
// already committed, just clean up; if only the lexical index committed,
// the lexical index now has data the store doesn't know about and must be
// rebuilt from the store (return true so the caller triggers that
// rebuild); if neither committed, clean up with no further action.
func (m *Manager) RecoverIncompleteEpoch(j Journal) (needsLexicalRebuild bool, err error) {
	if j.SqliteCommitted {
		return false, m.deleteJournal(j.EpochID)
	}
	if j.TantivyCommitted {
		logging.Get(logging.CategoryEpoch).Warn("epoch %d: lexical committed but store did not, rebuild required", j.EpochID)
		return true, m.deleteJournal(j.EpochID)
	}
	return false, m.deleteJournal(j.EpochID)
}

// RecoverAll runs RecoverIncompleteEpoch over every journal found at
// startup and reports whether any of them require a lexical rebuild.
func (m *Manager) RecoverAll() (needsLexicalRebuild bool, err error) {
	journals, err := m.FindIncompleteEpochs()
	if err != nil {
		return false, err
	}
	for _, j := range journals {
		rebuild, err := m.RecoverIncompleteEpoch(j)
		if err != nil {
			return needsLexicalRebuild, err
		}
		needsLexicalRebuild = needsLexicalRebuild || rebuild
	}
	return needsLexicalRebuild, nil
}

// Await blocks until the current epoch reaches target or timeout elapses,
// polling every 10ms as the original does (spec.md §4.C8 freshness
// contract: query surfaces never read stale data without waiting).
func (m *Manager) Await(target int64, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		current, err := m.CurrentEpoch()
		if err != nil {
			return false, err
		}
		if current >= target {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// GetLatestEpochs returns the most recent epochs in descending order.
func (m *Manager) GetLatestEpochs(limit int) ([]model.Epoch, error) {
	rows, err := m.st.DB().Query(`SELECT id, created_at, file_count, commit_hash FROM epochs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Epoch
	for rows.Next() {
		var e model.Epoch
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.FileCount, &e.CommitHash); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "?"
	}
	return "(" + strings.Join(ph, ", ") + ")"
}
