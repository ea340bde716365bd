package store

import (
	"database/sql"
	"strings"

	"codeplane/internal/model"
)

// DefFactRow is the insert shape for InsertDefFact; kept distinct from
// model.DefFact so callers don't need a real ID before the row exists.
type DefFactRow struct {
	FileID        int64
	DefUID        string
	Kind          string
	Name          string
	LexicalPath   string
	Signature     string
	SignatureHash string
	Body          string
	StartLine     int
	EndLine       int
	Visibility    int
	IsStatic      bool
	ParentDefUID  string
}

// FileByPath looks up a tracked file by its repo-relative path.
func (s *Store) FileByPath(path string) (*model.File, error) {
	row := s.db.QueryRow(
		`SELECT id, context_id, path, language, content_hash, last_indexed_epoch, freshness
		 FROM files WHERE path = ?`, path)
	var f model.File
	var freshness int
	if err := row.Scan(&f.ID, &f.ContextID, &f.Path, &f.Language, &f.ContentHash, &f.LastIndexedEpoch, &freshness); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	f.Freshness = model.Freshness(freshness)
	return &f, nil
}

// AllFiles returns every tracked file, ordered by path.
func (s *Store) AllFiles() ([]model.File, error) {
	rows, err := s.db.Query(
		`SELECT id, context_id, path, language, content_hash, last_indexed_epoch, freshness
		 FROM files ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.File
	for rows.Next() {
		var f model.File
		var freshness int
		if err := rows.Scan(&f.ID, &f.ContextID, &f.Path, &f.Language, &f.ContentHash, &f.LastIndexedEpoch, &freshness); err != nil {
			return nil, err
		}
		f.Freshness = model.Freshness(freshness)
		out = append(out, f)
	}
	return out, rows.Err()
}

// DefFactsByFile returns every definition extracted from a file.
func (s *Store) DefFactsByFile(fileID int64) ([]model.DefFact, error) {
	rows, err := s.db.Query(
		`SELECT id, file_id, def_uid, kind, name, lexical_path, signature, signature_hash,
		        body, start_line, end_line, visibility, is_static, parent_def_uid
		 FROM def_facts WHERE file_id = ? ORDER BY start_line`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.DefFact
	for rows.Next() {
		var d model.DefFact
		var visibility, isStatic int
		if err := rows.Scan(&d.ID, &d.FileID, &d.DefUID, &d.Kind, &d.Name, &d.LexicalPath,
			&d.Signature, &d.SignatureHash, &d.Body, &d.StartLine, &d.EndLine,
			&visibility, &isStatic, &d.ParentDefUID); err != nil {
			return nil, err
		}
		d.Visibility = model.Visibility(visibility)
		d.IsStatic = isStatic != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

// DefFactsByContext returns every definition in files under a context,
// used by FactQuery's context-wide definition lookups.
func (s *Store) DefFactsByContext(contextID int64) ([]model.DefFact, error) {
	rows, err := s.db.Query(
		`SELECT d.id, d.file_id, d.def_uid, d.kind, d.name, d.lexical_path, d.signature,
		        d.signature_hash, d.body, d.start_line, d.end_line, d.visibility, d.is_static,
		        d.parent_def_uid
		 FROM def_facts d JOIN files f ON f.id = d.file_id
		 WHERE f.context_id = ?`, contextID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.DefFact
	for rows.Next() {
		var d model.DefFact
		var visibility, isStatic int
		if err := rows.Scan(&d.ID, &d.FileID, &d.DefUID, &d.Kind, &d.Name, &d.LexicalPath,
			&d.Signature, &d.SignatureHash, &d.Body, &d.StartLine, &d.EndLine,
			&visibility, &isStatic, &d.ParentDefUID); err != nil {
			return nil, err
		}
		d.Visibility = model.Visibility(visibility)
		d.IsStatic = isStatic != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

// DefFactsByName returns every definition with the given name across the
// whole store, the entry point for a refactor op given only a symbol name.
func (s *Store) DefFactsByName(name string) ([]model.DefFact, error) {
	rows, err := s.db.Query(
		`SELECT id, file_id, def_uid, kind, name, lexical_path, signature, signature_hash,
		        body, start_line, end_line, visibility, is_static, parent_def_uid
		 FROM def_facts WHERE name = ?`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.DefFact
	for rows.Next() {
		var d model.DefFact
		var visibility, isStatic int
		if err := rows.Scan(&d.ID, &d.FileID, &d.DefUID, &d.Kind, &d.Name, &d.LexicalPath,
			&d.Signature, &d.SignatureHash, &d.Body, &d.StartLine, &d.EndLine,
			&visibility, &isStatic, &d.ParentDefUID); err != nil {
			return nil, err
		}
		d.Visibility = model.Visibility(visibility)
		d.IsStatic = isStatic != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

// DefFactByUID looks up a single definition by its DefUID.
func (s *Store) DefFactByUID(defUID string) (*model.DefFact, error) {
	row := s.db.QueryRow(
		`SELECT id, file_id, def_uid, kind, name, lexical_path, signature, signature_hash,
		        body, start_line, end_line, visibility, is_static, parent_def_uid
		 FROM def_facts WHERE def_uid = ?`, defUID)
	var d model.DefFact
	var visibility, isStatic int
	err := row.Scan(&d.ID, &d.FileID, &d.DefUID, &d.Kind, &d.Name, &d.LexicalPath,
		&d.Signature, &d.SignatureHash, &d.Body, &d.StartLine, &d.EndLine,
		&visibility, &isStatic, &d.ParentDefUID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.Visibility = model.Visibility(visibility)
	d.IsStatic = isStatic != 0
	return &d, nil
}

// RefsByResolvedDefUID returns every ref fact resolved to defUID, the
// "who calls this" query impact_analysis's get_callers ports to a
// RefFact-based world (there is no separate Symbol/SymbolEdge table here).
func (s *Store) RefsByResolvedDefUID(defUID string) ([]model.RefFact, error) {
	rows, err := s.db.Query(
		`SELECT id, file_id, from_def_uid, name, line, tier, resolved_def_uid, resolution_method
		 FROM ref_facts WHERE resolved_def_uid = ?`, defUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RefFact
	for rows.Next() {
		var r model.RefFact
		var tier int
		if err := rows.Scan(&r.ID, &r.FileID, &r.FromDefUID, &r.Name, &r.Line, &tier, &r.ResolvedDefUID, &r.ResolutionMethod); err != nil {
			return nil, err
		}
		r.Tier = model.RefTier(tier)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ImportFactsAll returns every ImportFact row in the store (keyed by
// FileID, not path), the table the import graph queries scan.
func (s *Store) ImportFactsAll() ([]model.ImportFact, error) {
	rows, err := s.db.Query(
		`SELECT id, file_id, source_literal, imported_names, line, resolved, resolved_file_id
		 FROM import_facts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ImportFact
	for rows.Next() {
		var f model.ImportFact
		var names string
		var resolved int
		if err := rows.Scan(&f.ID, &f.FileID, &f.SourceLiteral, &names, &f.Line, &resolved, &f.ResolvedFileID); err != nil {
			return nil, err
		}
		if names != "" {
			f.ImportedNames = strings.Split(names, ",")
		}
		f.Resolved = resolved != 0
		out = append(out, f)
	}
	return out, rows.Err()
}

// RefFactsUnresolved returns every ref fact below the given tier, the
// working set each resolver pass narrows (spec.md §4.C7).
func (s *Store) RefFactsUnresolved(below model.RefTier) ([]model.RefFact, error) {
	rows, err := s.db.Query(
		`SELECT id, file_id, from_def_uid, name, line, tier, resolved_def_uid, resolution_method
		 FROM ref_facts WHERE tier < ?`, int(below))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RefFact
	for rows.Next() {
		var r model.RefFact
		var tier int
		if err := rows.Scan(&r.ID, &r.FileID, &r.FromDefUID, &r.Name, &r.Line, &tier, &r.ResolvedDefUID, &r.ResolutionMethod); err != nil {
			return nil, err
		}
		r.Tier = model.RefTier(tier)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRefResolution applies a monotonic tier upgrade: it never lowers an
// existing tier, matching the resolver's confidence-ladder invariant.
func (s *Store) UpdateRefResolution(refID int64, tier model.RefTier, resolvedDefUID, method string) error {
	return s.WithWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`UPDATE ref_facts SET tier = ?, resolved_def_uid = ?, resolution_method = ?
			 WHERE id = ? AND tier < ?`,
			int(tier), resolvedDefUID, method, refID, int(tier))
		return err
	})
}

// TypeMemberFactsByType returns every field/method fact for a named type,
// the input to shape inference's member-set cache.
func (s *Store) TypeMemberFactsByType(typeName string) ([]model.TypeMemberFact, error) {
	rows, err := s.db.Query(
		`SELECT id, file_id, type_name, member_name, is_method, def_uid
		 FROM type_member_facts WHERE type_name = ?`, typeName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TypeMemberFact
	for rows.Next() {
		var t model.TypeMemberFact
		var isMethod int
		if err := rows.Scan(&t.ID, &t.FileID, &t.TypeName, &t.MemberName, &isMethod, &t.DefUID); err != nil {
			return nil, err
		}
		t.IsMethod = isMethod != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

// AllTypeNames returns the distinct type names with at least one member
// fact, the candidate set shape inference matches against.
func (s *Store) AllTypeNames() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT type_name FROM type_member_facts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MemberAccessFactsByFiles returns unresolved member-access facts scoped to
// a set of files, shape inference's per-batch working set.
func (s *Store) MemberAccessFactsByFiles(fileIDs []int64) ([]model.MemberAccessFact, error) {
	if len(fileIDs) == 0 {
		return nil, nil
	}
	q := `SELECT id, file_id, receiver_expr_hash, member_name, line, resolved_type_name,
	             resolution_method, resolution_confidence
	      FROM member_access_facts WHERE resolved_type_name = '' AND file_id IN ` + placeholders(len(fileIDs))
	args := make([]any, len(fileIDs))
	for i, id := range fileIDs {
		args[i] = id
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.MemberAccessFact
	for rows.Next() {
		var m model.MemberAccessFact
		if err := rows.Scan(&m.ID, &m.FileID, &m.ReceiverExprHash, &m.MemberName, &m.Line,
			&m.ResolvedTypeName, &m.ResolutionMethod, &m.ResolutionConfidence); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ReceiverShapeFactsByHash returns the observed-field/method facts for a
// receiver expression, shape inference's "observed set" input.
func (s *Store) ReceiverShapeFactsByHash(fileID int64, exprHash string) ([]model.ReceiverShapeFact, error) {
	rows, err := s.db.Query(
		`SELECT id, file_id, scope_def_uid, receiver_expr_hash, observed_fields, observed_methods
		 FROM receiver_shape_facts WHERE file_id = ? AND receiver_expr_hash = ?`, fileID, exprHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ReceiverShapeFact
	for rows.Next() {
		var r model.ReceiverShapeFact
		var fields, methods string
		if err := rows.Scan(&r.ID, &r.FileID, &r.ScopeDefUID, &r.ReceiverExprHash, &fields, &methods); err != nil {
			return nil, err
		}
		if fields != "" {
			r.ObservedFields = strings.Split(fields, ",")
		}
		if methods != "" {
			r.ObservedMethods = strings.Split(methods, ",")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateMemberAccessResolution records shape inference's verdict for one
// member-access fact.
func (s *Store) UpdateMemberAccessResolution(id int64, typeName, method string, confidence float64) error {
	return s.WithWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`UPDATE member_access_facts SET resolved_type_name = ?, resolution_method = ?, resolution_confidence = ?
			 WHERE id = ?`, typeName, method, confidence, id)
		return err
	})
}

// LocalBindFactsByFile returns every local-binding fact in a file, ordered
// by line, the input Pass 3 (type-traced) matches receiver expressions
// against.
func (s *Store) LocalBindFactsByFile(fileID int64) ([]model.LocalBindFact, error) {
	rows, err := s.db.Query(
		`SELECT id, file_id, scope_def_uid, name, bound_type_name, line
		 FROM local_bind_facts WHERE file_id = ? ORDER BY line`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.LocalBindFact
	for rows.Next() {
		var b model.LocalBindFact
		if err := rows.Scan(&b.ID, &b.FileID, &b.ScopeDefUID, &b.Name, &b.BoundTypeName, &b.Line); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// RefByFileLineName finds the ref fact a resolved member access upgrades,
// keyed the way the original's shape resolver keys it:
// file, source line, and the literal token text.
func (s *Store) RefByFileLineName(fileID int64, line int, name string) (*model.RefFact, error) {
	row := s.db.QueryRow(
		`SELECT id, file_id, from_def_uid, name, line, tier, resolved_def_uid, resolution_method
		 FROM ref_facts WHERE file_id = ? AND line = ? AND name = ?`, fileID, line, name)
	var r model.RefFact
	var tier int
	err := row.Scan(&r.ID, &r.FileID, &r.FromDefUID, &r.Name, &r.Line, &tier, &r.ResolvedDefUID, &r.ResolutionMethod)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Tier = model.RefTier(tier)
	return &r, nil
}

// UpdateImportResolution records pass 2's verdict for one import fact.
func (s *Store) UpdateImportResolution(importID, resolvedFileID int64) error {
	return s.WithWriteTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`UPDATE import_facts SET resolved = 1, resolved_file_id = ? WHERE id = ?`,
			resolvedFileID, importID)
		return err
	})
}

// RenameFile repoints a tracked file's path in place, used by refactor
// move after the file itself has been relocated on disk. Structural facts
// key off file_id, not path, so no cascading update is needed.
func (s *Store) RenameFile(oldPath, newPath string) error {
	_, err := s.db.Exec(`UPDATE files SET path = ? WHERE path = ?`, newPath, oldPath)
	return err
}

// RepoState reads the singleton reconciliation bookkeeping row, returning
// a zero-value state if it has never been written.
func (s *Store) RepoState() (model.RepoState, error) {
	row := s.db.QueryRow(`SELECT last_head, cplignore_hash, last_reconciled_at, current_epoch_id FROM repo_state WHERE id = 1`)
	var st model.RepoState
	var reconciledAt sql.NullTime
	err := row.Scan(&st.LastHead, &st.CplignoreHash, &reconciledAt, &st.CurrentEpochID)
	if err == sql.ErrNoRows {
		return model.RepoState{}, nil
	}
	if err != nil {
		return model.RepoState{}, err
	}
	if reconciledAt.Valid {
		st.LastReconciledAt = reconciledAt.Time
	}
	return st, nil
}

// PutRepoState upserts the singleton reconciliation bookkeeping row inside
// a caller-supplied write transaction (reconcile updates it alongside its
// file-change bulk write, spec.md §4.C5). It never touches current_epoch_id:
// that field is owned by epoch.Publish, which advances it inside its own
// publish transaction so it always matches the max epoch id.
func PutRepoState(tx *sql.Tx, st model.RepoState) error {
	_, err := tx.Exec(
		`INSERT INTO repo_state (id, last_head, cplignore_hash, last_reconciled_at, current_epoch_id)
		 VALUES (1, ?, ?, ?, 0)
		 ON CONFLICT(id) DO UPDATE SET
		   last_head = excluded.last_head,
		   cplignore_hash = excluded.cplignore_hash,
		   last_reconciled_at = excluded.last_reconciled_at`,
		st.LastHead, st.CplignoreHash, st.LastReconciledAt)
	return err
}

// SetCurrentEpoch upserts repo_state.current_epoch_id inside a
// caller-supplied write transaction, called by epoch.Publish alongside its
// epochs insert so the invariant current_epoch_id == max(epoch_id) holds
// atomically.
func SetCurrentEpoch(tx *sql.Tx, epochID int64) error {
	_, err := tx.Exec(
		`INSERT INTO repo_state (id, current_epoch_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET current_epoch_id = excluded.current_epoch_id`,
		epochID)
	return err
}

// DefSnapshotsByEpoch returns the frozen def rows captured at publish time
// for epochID, the "base" side of a semantic diff.
func (s *Store) DefSnapshotsByEpoch(epochID int64) ([]model.DefSnapshotRecord, error) {
	rows, err := s.db.Query(
		`SELECT epoch_id, def_uid, file_id, kind, name, lexical_path, signature,
		        signature_hash, body, start_line, end_line
		 FROM def_snapshots WHERE epoch_id = ?`, epochID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.DefSnapshotRecord
	for rows.Next() {
		var d model.DefSnapshotRecord
		if err := rows.Scan(&d.EpochID, &d.DefUID, &d.FileID, &d.Kind, &d.Name, &d.LexicalPath,
			&d.Signature, &d.SignatureHash, &d.Body, &d.StartLine, &d.EndLine); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// LatestEpoch returns the most recently published epoch, or nil if none
// has ever been published.
func (s *Store) LatestEpoch() (*model.Epoch, error) {
	row := s.db.QueryRow(`SELECT id, created_at, file_count, commit_hash FROM epochs ORDER BY id DESC LIMIT 1`)
	var e model.Epoch
	if err := row.Scan(&e.ID, &e.CreatedAt, &e.FileCount, &e.CommitHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}
