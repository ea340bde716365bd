package store

import (
	"database/sql"
	"fmt"

	"codeplane/internal/logging"
)

// CurrentSchemaVersion tracks the schema shape. Bump it and append a
// migration below whenever a table or column is added.
const CurrentSchemaVersion = 1

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS contexts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		root TEXT NOT NULL UNIQUE,
		language TEXT NOT NULL,
		probed INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		context_id INTEGER NOT NULL REFERENCES contexts(id),
		path TEXT NOT NULL UNIQUE,
		language TEXT NOT NULL,
		content_hash TEXT NOT NULL DEFAULT '',
		last_indexed_epoch INTEGER NOT NULL DEFAULT 0,
		freshness INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_files_context ON files(context_id)`,
	`CREATE TABLE IF NOT EXISTS repo_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_head TEXT NOT NULL DEFAULT '',
		cplignore_hash TEXT NOT NULL DEFAULT '',
		last_reconciled_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS epochs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at DATETIME NOT NULL,
		file_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS def_facts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL REFERENCES files(id),
		def_uid TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		lexical_path TEXT NOT NULL,
		signature TEXT NOT NULL DEFAULT '',
		signature_hash TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		visibility INTEGER NOT NULL DEFAULT 0,
		is_static INTEGER NOT NULL DEFAULT 0,
		parent_def_uid TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_def_facts_file ON def_facts(file_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_def_facts_uid ON def_facts(def_uid)`,
	`CREATE INDEX IF NOT EXISTS idx_def_facts_lexpath ON def_facts(kind, lexical_path)`,
	`CREATE INDEX IF NOT EXISTS idx_def_facts_sighash ON def_facts(kind, signature_hash)`,
	`CREATE TABLE IF NOT EXISTS ref_facts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL REFERENCES files(id),
		from_def_uid TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		line INTEGER NOT NULL,
		tier INTEGER NOT NULL DEFAULT 0,
		resolved_def_uid TEXT NOT NULL DEFAULT '',
		resolution_method TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ref_facts_file ON ref_facts(file_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ref_facts_resolved ON ref_facts(resolved_def_uid)`,
	`CREATE TABLE IF NOT EXISTS scope_facts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL REFERENCES files(id),
		def_uid TEXT NOT NULL,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scope_facts_file ON scope_facts(file_id)`,
	`CREATE TABLE IF NOT EXISTS import_facts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL REFERENCES files(id),
		source_literal TEXT NOT NULL,
		imported_names TEXT NOT NULL DEFAULT '',
		line INTEGER NOT NULL,
		resolved INTEGER NOT NULL DEFAULT 0,
		resolved_file_id INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_import_facts_file ON import_facts(file_id)`,
	`CREATE INDEX IF NOT EXISTS idx_import_facts_source ON import_facts(source_literal)`,
	`CREATE TABLE IF NOT EXISTS type_member_facts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL REFERENCES files(id),
		type_name TEXT NOT NULL,
		member_name TEXT NOT NULL,
		is_method INTEGER NOT NULL DEFAULT 0,
		def_uid TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_type_member_facts_type ON type_member_facts(type_name)`,
	`CREATE TABLE IF NOT EXISTS member_access_facts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL REFERENCES files(id),
		receiver_expr_hash TEXT NOT NULL,
		member_name TEXT NOT NULL,
		line INTEGER NOT NULL,
		resolved_type_name TEXT NOT NULL DEFAULT '',
		resolution_method TEXT NOT NULL DEFAULT '',
		resolution_confidence REAL NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_member_access_facts_file ON member_access_facts(file_id)`,
	`CREATE TABLE IF NOT EXISTS receiver_shape_facts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL REFERENCES files(id),
		scope_def_uid TEXT NOT NULL,
		receiver_expr_hash TEXT NOT NULL,
		observed_fields TEXT NOT NULL DEFAULT '',
		observed_methods TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_receiver_shape_facts_file ON receiver_shape_facts(file_id)`,
	`CREATE TABLE IF NOT EXISTS local_bind_facts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL REFERENCES files(id),
		scope_def_uid TEXT NOT NULL,
		name TEXT NOT NULL,
		bound_type_name TEXT NOT NULL DEFAULT '',
		line INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_local_bind_facts_file ON local_bind_facts(file_id)`,
	`CREATE TABLE IF NOT EXISTS dynamic_access_sites (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL REFERENCES files(id),
		line INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS def_snapshots (
		epoch_id INTEGER NOT NULL,
		def_uid TEXT NOT NULL,
		file_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		lexical_path TEXT NOT NULL,
		signature TEXT NOT NULL DEFAULT '',
		signature_hash TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		PRIMARY KEY (epoch_id, def_uid)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_def_snapshots_epoch ON def_snapshots(epoch_id)`,
}

func (s *Store) migrate() error {
	timer := logging.StartTimer(logging.CategoryStore, "migrate")
	defer timer.Stop()

	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: schema statement failed: %w\n%s", err, stmt)
		}
	}
	return ensurePendingColumns(s.db)
}

// columnMigration adds a column to a table when it was introduced after
// that table's first release, mirroring the teacher's additive-migration
// pattern for existing on-disk databases.
type columnMigration struct {
	table, column, def string
}

var pendingColumns = []columnMigration{
	{table: "repo_state", column: "current_epoch_id", def: "INTEGER NOT NULL DEFAULT 0"},
	{table: "epochs", column: "commit_hash", def: "TEXT NOT NULL DEFAULT ''"},
}

func ensurePendingColumns(db *sql.DB) error {
	for _, m := range pendingColumns {
		has, err := columnExists(db, m.table, m.column)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.table, m.column, m.def)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: migration %s.%s failed: %w", m.table, m.column, err)
		}
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
