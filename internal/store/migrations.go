package store

import (
	"database/sql"
	"fmt"

	cerr "github.com/opencoderank/coderank/internal/errors"
)

// migration is one forward-only, idempotent schema step. Name must be
// stable across releases: it is what gets persisted into schema_migrations
// and compared on open.
type migration struct {
	Name string
	Up   func(tx *sql.Tx) error
}

// migrations is the full M1-M9 ladder. The tokenizer swap in M9 is the only
// one that rewrites existing data (a full FTS rebuild), everything else is
// additive.
var migrations = []migration{
	{"M1_initial_tables", m1InitialTables},
	{"M2_rich_metadata_columns", m2RichMetadataColumns},
	{"M3_info_snippets", m3InfoSnippets},
	{"M4_content_hash", m4ContentHash},
	{"M5_generated_description", m5GeneratedDescription},
	{"M6_description_in_fts", m6DescriptionInFTS},
	{"M7_conformances_column", m7ConformancesColumn},
	{"M8_type_declaration_and_conformance_index", m8TypeDeclarationAndConformanceIndex},
	{"M9_identifier_tokenizer", m9IdentifierTokenizer},
}

func m1InitialTables(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			content TEXT NOT NULL,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			kind TEXT NOT NULL,
			symbols TEXT NOT NULL DEFAULT '[]',
			references_json TEXT NOT NULL DEFAULT '[]',
			file_hash TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path);
		CREATE TABLE IF NOT EXISTS file_hashes (
			path TEXT PRIMARY KEY,
			hash TEXT NOT NULL,
			indexed_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
		CREATE VIRTUAL TABLE IF NOT EXISTS fts_chunks USING fts5(
			chunk_id UNINDEXED,
			body,
			tokenize='unicode61'
		);
	`)
	return err
}

func m2RichMetadataColumns(tx *sql.Tx) error {
	for _, stmt := range []string{
		`ALTER TABLE chunks ADD COLUMN signature TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE chunks ADD COLUMN breadcrumb TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE chunks ADD COLUMN language TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE chunks ADD COLUMN token_count INTEGER NOT NULL DEFAULT 0`,
		`ALTER TABLE chunks ADD COLUMN doc_comment TEXT NOT NULL DEFAULT ''`,
	} {
		if err := execIdempotentAlter(tx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func m3InfoSnippets(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS info_snippets (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			content TEXT NOT NULL,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			token_count INTEGER NOT NULL DEFAULT 0,
			file_hash TEXT NOT NULL,
			content_hash TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
		CREATE INDEX IF NOT EXISTS idx_info_snippets_path ON info_snippets(path);
		CREATE VIRTUAL TABLE IF NOT EXISTS fts_snippets USING fts5(
			snippet_id UNINDEXED,
			body,
			tokenize='unicode61'
		);
	`)
	return err
}

func m4ContentHash(tx *sql.Tx) error {
	if err := execIdempotentAlter(tx, `ALTER TABLE chunks ADD COLUMN content_hash TEXT NOT NULL DEFAULT ''`); err != nil {
		return err
	}
	_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_chunks_content_hash ON chunks(content_hash)`)
	return err
}

func m5GeneratedDescription(tx *sql.Tx) error {
	return execIdempotentAlter(tx, `ALTER TABLE chunks ADD COLUMN generated_description TEXT NOT NULL DEFAULT ''`)
}

func m6DescriptionInFTS(tx *sql.Tx) error {
	// fts_chunks.body already carries whatever the writer concatenates into
	// it; from this migration on writers must include generated_description.
	// No schema change, just a documented contract bump — see sqlite_chunkstore.go ftsBody.
	return nil
}

func m7ConformancesColumn(tx *sql.Tx) error {
	return execIdempotentAlter(tx, `ALTER TABLE chunks ADD COLUMN conformances TEXT NOT NULL DEFAULT '[]'`)
}

func m8TypeDeclarationAndConformanceIndex(tx *sql.Tx) error {
	if err := execIdempotentAlter(tx, `ALTER TABLE chunks ADD COLUMN is_type_declaration INTEGER NOT NULL DEFAULT 0`); err != nil {
		return err
	}
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS conformance_index (
			chunk_id TEXT NOT NULL,
			protocol_name TEXT NOT NULL,
			PRIMARY KEY (chunk_id, protocol_name)
		);
		CREATE INDEX IF NOT EXISTS idx_conformance_protocol ON conformance_index(protocol_name);
	`)
	return err
}

// m9IdentifierTokenizer swaps unicode61's default stemming-adjacent
// behavior for an identifier-preserving tokenizer: unicode61 with
// tokenchars so camelCase/snake_case symbols survive as one token family
// alongside the split tokens the application layer feeds in. Since FTS5
// virtual tables can't ALTER their tokenizer in place, this drops and
// recreates both FTS tables, then repopulates fts_chunks from the chunk
// rows; fts_snippets is recreated empty.
func m9IdentifierTokenizer(tx *sql.Tx) error {
	_, err := tx.Exec(`
		DROP TABLE IF EXISTS fts_chunks;
		CREATE VIRTUAL TABLE fts_chunks USING fts5(
			chunk_id UNINDEXED,
			body,
			tokenize="unicode61 tokenchars '_'"
		);
		DROP TABLE IF EXISTS fts_snippets;
		CREATE VIRTUAL TABLE fts_snippets USING fts5(
			snippet_id UNINDEXED,
			body,
			tokenize="unicode61 tokenchars '_'"
		);
	`)
	if err != nil {
		return err
	}
	rows, err := tx.Query(`SELECT id, content, signature, breadcrumb, doc_comment, generated_description FROM chunks`)
	if err != nil {
		return err
	}
	type row struct{ id, content, sig, crumb, doc, desc string }
	var rebuilt []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.content, &r.sig, &r.crumb, &r.doc, &r.desc); err != nil {
			rows.Close()
			return err
		}
		rebuilt = append(rebuilt, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()
	stmt, err := tx.Prepare(`INSERT INTO fts_chunks(chunk_id, body) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rebuilt {
		body := ftsBody(r.content, r.sig, r.crumb, r.doc, r.desc)
		if _, err := stmt.Exec(r.id, body); err != nil {
			return err
		}
	}
	return nil
}

// execIdempotentAlter runs an ALTER TABLE ADD COLUMN, tolerating the
// "duplicate column" error SQLite raises when the migration already ran
// (modernc.org/sqlite has no IF NOT EXISTS for columns).
func execIdempotentAlter(tx *sql.Tx, stmt string) error {
	_, err := tx.Exec(stmt)
	if err == nil {
		return nil
	}
	if isDuplicateColumnErr(err) {
		return nil
	}
	return err
}

func isDuplicateColumnErr(err error) bool {
	msg := err.Error()
	return containsFold(msg, "duplicate column")
}

func containsFold(s, substr string) bool {
	return len(s) >= len(substr) && indexFold(s, substr) >= 0
}

func indexFold(s, substr string) int {
	n, m := len(s), len(substr)
	for i := 0; i+m <= n; i++ {
		if eqFold(s[i:i+m], substr) {
			return i
		}
	}
	return -1
}

func eqFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// applyMigrations runs every migration not yet recorded, in order, each in
// its own transaction, and refuses to open a store whose recorded set is a
// strict superset of what this process knows.
func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return cerr.Wrap(cerr.ErrCodeMigrationFailure, err)
	}

	applied := map[string]bool{}
	rows, err := db.Query(`SELECT name FROM schema_migrations`)
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeMigrationFailure, err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return cerr.Wrap(cerr.ErrCodeMigrationFailure, err)
		}
		applied[name] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return cerr.Wrap(cerr.ErrCodeMigrationFailure, err)
	}
	rows.Close()

	known := make(map[string]bool, len(migrations))
	for _, m := range migrations {
		known[m.Name] = true
	}
	for name := range applied {
		if !known[name] {
			return cerr.New(cerr.ErrCodeMigrationDowngrade,
				fmt.Sprintf("index was created by a newer version: unknown migration %q is already applied", name), nil)
		}
	}

	for _, m := range migrations {
		if applied[m.Name] {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return cerr.Wrap(cerr.ErrCodeMigrationFailure, err)
		}
		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return cerr.Wrap(cerr.ErrCodeMigrationFailure, fmt.Errorf("%s: %w", m.Name, err))
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(name) VALUES (?)`, m.Name); err != nil {
			_ = tx.Rollback()
			return cerr.Wrap(cerr.ErrCodeMigrationFailure, err)
		}
		if err := tx.Commit(); err != nil {
			return cerr.Wrap(cerr.ErrCodeMigrationFailure, err)
		}
	}
	return nil
}
