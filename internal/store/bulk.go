package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// BulkWriter batches a high volume of inserts/upserts/deletes in a single
// transaction for reconcile/indexer cycles (spec.md §4.C1, C5, C6). It
// auto-commits on Close and rolls back on any error, mirroring the
// teacher's high-volume write path.
type BulkWriter struct {
	tx  *sql.Tx
	err error
}

// NewBulkWriter opens a dedicated write transaction. Callers must call
// Close exactly once.
func (s *Store) NewBulkWriter() (*BulkWriter, error) {
	s.mu.Lock()
	tx, err := s.db.Begin()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	return &BulkWriter{tx: tx}, nil
}

// Close commits if no error was recorded, else rolls back. It releases the
// store's write mutex taken by NewBulkWriter.
func (w *BulkWriter) Close(store *Store) error {
	defer store.mu.Unlock()
	if w.err != nil {
		w.tx.Rollback()
		return w.err
	}
	return w.tx.Commit()
}

func (w *BulkWriter) fail(err error) error {
	if w.err == nil {
		w.err = err
	}
	return err
}

// Exec runs a single statement, recording the first error encountered.
func (w *BulkWriter) Exec(query string, args ...any) error {
	if w.err != nil {
		return w.err
	}
	if _, err := w.tx.Exec(query, args...); err != nil {
		return w.fail(fmt.Errorf("store: bulk exec failed: %w (%s)", err, query))
	}
	return nil
}

// UpsertFile inserts or updates a tracked file row keyed by path.
func (w *BulkWriter) UpsertFile(contextID int64, path, language, contentHash string) error {
	return w.Exec(
		`INSERT INTO files (context_id, path, language, content_hash, freshness)
		 VALUES (?, ?, ?, ?, 1)
		 ON CONFLICT(path) DO UPDATE SET
		   content_hash = excluded.content_hash,
		   language = excluded.language,
		   freshness = 1`,
		contextID, path, language, contentHash,
	)
}

// DeleteFile removes a file row and every fact that references it.
func (w *BulkWriter) DeleteFile(fileID int64) error {
	tables := []string{
		"ref_facts", "scope_facts", "import_facts", "type_member_facts",
		"member_access_facts", "receiver_shape_facts", "local_bind_facts",
		"dynamic_access_sites", "def_facts",
	}
	for _, t := range tables {
		if err := w.Exec(fmt.Sprintf("DELETE FROM %s WHERE file_id = ?", t), fileID); err != nil {
			return err
		}
	}
	return w.Exec("DELETE FROM files WHERE id = ?", fileID)
}

// DeleteFileByPath resolves path to an id and deletes it; a no-op if the
// path is untracked.
func (w *BulkWriter) DeleteFileByPath(store *Store, path string) error {
	var id int64
	err := w.tx.QueryRow("SELECT id FROM files WHERE path = ?", path).Scan(&id)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return w.fail(err)
	}
	return w.DeleteFile(id)
}

// ClearStructuralFacts deletes every structural/ref fact for a file without
// deleting the file row itself, used before re-extraction (spec.md §4.C6:
// "delete-then-insert facts per file").
func (w *BulkWriter) ClearStructuralFacts(fileID int64) error {
	tables := []string{
		"ref_facts", "scope_facts", "import_facts", "type_member_facts",
		"member_access_facts", "receiver_shape_facts", "local_bind_facts",
		"dynamic_access_sites", "def_facts",
	}
	for _, t := range tables {
		if err := w.Exec(fmt.Sprintf("DELETE FROM %s WHERE file_id = ?", t), fileID); err != nil {
			return err
		}
	}
	return nil
}

// InsertDefFact inserts one definition row and returns its new id.
func (w *BulkWriter) InsertDefFact(f DefFactRow) (int64, error) {
	if w.err != nil {
		return 0, w.err
	}
	res, err := w.tx.Exec(
		`INSERT INTO def_facts
		 (file_id, def_uid, kind, name, lexical_path, signature, signature_hash,
		  body, start_line, end_line, visibility, is_static, parent_def_uid)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.FileID, f.DefUID, f.Kind, f.Name, f.LexicalPath, f.Signature, f.SignatureHash,
		f.Body, f.StartLine, f.EndLine, f.Visibility, boolToInt(f.IsStatic), f.ParentDefUID,
	)
	if err != nil {
		return 0, w.fail(fmt.Errorf("store: insert def_fact: %w", err))
	}
	return res.LastInsertId()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// placeholders builds "(?, ?, ...)" for n columns, used by batch inserts
// that don't fit the single-row helpers above.
func placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "?"
	}
	return "(" + strings.Join(ph, ", ") + ")"
}
