package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	cerr "github.com/opencoderank/coderank/internal/errors"
)

// SQLiteChunkStore implements ChunkStore over a pure-Go SQLite FTS5
// database: one table of chunks, a parallel info_snippets table, a
// file_hashes table, and a conformance_index secondary index, all kept in
// sync within the write transaction of every mutating call.
type SQLiteChunkStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string

	termFreqCache *lru.Cache[string, int]
}

var _ ChunkStore = (*SQLiteChunkStore)(nil)

// termFreqCacheSize is the LRU bound for get_term_frequency.
const termFreqCacheSize = 512

// NewSQLiteChunkStore opens (creating if absent) a chunk store at path. An
// empty path opens an in-memory store, used by tests.
func NewSQLiteChunkStore(path string) (*SQLiteChunkStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, cerr.Wrap(cerr.ErrCodeStoreIO, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, cerr.Wrap(cerr.ErrCodeStoreIO, err)
		}
	}

	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	cache, err := lru.New[string, int](termFreqCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, cerr.Wrap(cerr.ErrCodeInternal, err)
	}

	slog.Debug("chunk_store_opened", slog.String("path", path))
	return &SQLiteChunkStore{db: db, path: path, termFreqCache: cache}, nil
}

// ftsBody is the text indexed per chunk: raw content plus the metadata
// fields that should be term-matchable, including the description column
// introduced by M6.
func ftsBody(content, signature, breadcrumb, docComment, description string) string {
	parts := []string{content}
	if signature != "" {
		parts = append(parts, signature)
	}
	if breadcrumb != "" {
		parts = append(parts, breadcrumb)
	}
	if docComment != "" {
		parts = append(parts, docComment)
	}
	if description != "" {
		parts = append(parts, description)
	}
	return strings.Join(parts, "\n")
}

func encodeStrings(ss []string) (string, error) {
	if ss == nil {
		ss = []string{}
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func validateKind(k Kind) error {
	if _, ok := ValidKinds[k]; !ok {
		return cerr.New(cerr.ErrCodeInvalidKind, "invalid chunk kind: "+string(k), InvalidKindError{Got: string(k)})
	}
	return nil
}

func (s *SQLiteChunkStore) Insert(ctx context.Context, c Chunk) error {
	return s.InsertBatch(ctx, []Chunk{c})
}

func (s *SQLiteChunkStore) InsertBatch(ctx context.Context, cs []Chunk) error {
	if len(cs) == 0 {
		return nil
	}
	for _, c := range cs {
		if err := validateKind(c.Kind); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.writeChunksLocked(ctx, tx, cs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	s.termFreqCache.Purge()
	return nil
}

// writeChunksLocked performs the insert-or-replace of chunk rows, their FTS
// shadow rows, and their conformance_index rows, all within tx. Standing in
// for per-row triggers: every write path goes through this single function
// so the side tables can never drift.
func (s *SQLiteChunkStore) writeChunksLocked(ctx context.Context, tx *sql.Tx, cs []Chunk) error {
	upsertChunk, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (
			id, path, content, start_line, end_line, kind, symbols, references_json,
			file_hash, signature, breadcrumb, language, token_count, doc_comment,
			content_hash, generated_description, conformances, is_type_declaration, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path=excluded.path, content=excluded.content, start_line=excluded.start_line,
			end_line=excluded.end_line, kind=excluded.kind, symbols=excluded.symbols,
			references_json=excluded.references_json, file_hash=excluded.file_hash,
			signature=excluded.signature, breadcrumb=excluded.breadcrumb,
			language=excluded.language, token_count=excluded.token_count,
			doc_comment=excluded.doc_comment, content_hash=excluded.content_hash,
			generated_description=excluded.generated_description,
			conformances=excluded.conformances, is_type_declaration=excluded.is_type_declaration
	`)
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	defer upsertChunk.Close()

	deleteFTS, err := tx.PrepareContext(ctx, `DELETE FROM fts_chunks WHERE chunk_id = ?`)
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	defer deleteFTS.Close()

	insertFTS, err := tx.PrepareContext(ctx, `INSERT INTO fts_chunks(chunk_id, body) VALUES (?, ?)`)
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	defer insertFTS.Close()

	deleteConformance, err := tx.PrepareContext(ctx, `DELETE FROM conformance_index WHERE chunk_id = ?`)
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	defer deleteConformance.Close()

	insertConformance, err := tx.PrepareContext(ctx, `INSERT INTO conformance_index(chunk_id, protocol_name) VALUES (?, ?)`)
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	defer insertConformance.Close()

	for _, c := range cs {
		symbolsJSON, err := encodeStrings(c.Symbols)
		if err != nil {
			return cerr.Wrap(cerr.ErrCodeInternal, err)
		}
		refsJSON, err := encodeStrings(c.References)
		if err != nil {
			return cerr.Wrap(cerr.ErrCodeInternal, err)
		}
		conformJSON, err := encodeStrings(c.Conformances)
		if err != nil {
			return cerr.Wrap(cerr.ErrCodeInternal, err)
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		if _, err := upsertChunk.ExecContext(ctx,
			c.ID, c.Path, c.Content, c.StartLine, c.EndLine, string(c.Kind), symbolsJSON, refsJSON,
			c.FileHash, c.Signature, c.Breadcrumb, c.Language, c.TokenCount, c.DocComment,
			c.ContentHash, c.GeneratedDescription, conformJSON, boolToInt(c.IsTypeDeclaration),
			createdAt.Format(time.RFC3339Nano),
		); err != nil {
			return cerr.Wrap(cerr.ErrCodeStoreIO, err)
		}

		if _, err := deleteFTS.ExecContext(ctx, c.ID); err != nil {
			return cerr.Wrap(cerr.ErrCodeStoreIO, err)
		}
		body := ftsBody(c.Content, c.Signature, c.Breadcrumb, c.DocComment, c.GeneratedDescription)
		if _, err := insertFTS.ExecContext(ctx, c.ID, body); err != nil {
			return cerr.Wrap(cerr.ErrCodeStoreIO, err)
		}

		if _, err := deleteConformance.ExecContext(ctx, c.ID); err != nil {
			return cerr.Wrap(cerr.ErrCodeStoreIO, err)
		}
		if c.IsTypeDeclaration {
			for _, proto := range c.Conformances {
				if _, err := insertConformance.ExecContext(ctx, c.ID, proto); err != nil {
					return cerr.Wrap(cerr.ErrCodeStoreIO, err)
				}
			}
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteChunkStore) Get(ctx context.Context, id string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, chunkSelectColumns+` FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	return c, nil
}

func (s *SQLiteChunkStore) GetByPath(ctx context.Context, path string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, chunkSelectColumns+` FROM chunks WHERE path = ? ORDER BY start_line ASC`, path)
	if err != nil {
		return nil, cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteChunkStore) GetByIDs(ctx context.Context, ids []string) ([]Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders, args := inClause(ids)
	query := chunkSelectColumns + ` FROM chunks WHERE id IN (` + placeholders + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteChunkStore) GetByContentHashes(ctx context.Context, hashes []string) (map[string]Chunk, error) {
	if len(hashes) == 0 {
		return map[string]Chunk{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders, args := inClause(hashes)
	query := chunkSelectColumns + ` FROM chunks WHERE content_hash IN (` + placeholders + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	defer rows.Close()
	chunks, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Chunk, len(chunks))
	for _, c := range chunks {
		out[c.ContentHash] = c
	}
	return out, nil
}

func (s *SQLiteChunkStore) Update(ctx context.Context, c Chunk) error {
	if err := validateKind(c.Kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.writeChunksLocked(ctx, tx, []Chunk{c}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	s.termFreqCache.Purge()
	return nil
}

func (s *SQLiteChunkStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteChunkRowsLocked(ctx, tx, []string{id}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	s.termFreqCache.Purge()
	return nil
}

func (s *SQLiteChunkStore) DeleteByPath(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE path = ?`, path)
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return cerr.Wrap(cerr.ErrCodeStoreIO, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	rows.Close()

	if len(ids) > 0 {
		if err := deleteChunkRowsLocked(ctx, tx, ids); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	s.termFreqCache.Purge()
	return nil
}

// deleteChunkRowsLocked removes the chunk rows and cascades to FTS and
// ConformanceIndex.
func deleteChunkRowsLocked(ctx context.Context, tx *sql.Tx, ids []string) error {
	placeholders, args := inClause(ids)
	if _, err := tx.ExecContext(ctx, `DELETE FROM fts_chunks WHERE chunk_id IN (`+placeholders+`)`, args...); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conformance_index WHERE chunk_id IN (`+placeholders+`)`, args...); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	return nil
}

func (s *SQLiteChunkStore) SearchFTS(ctx context.Context, query string, limit int) ([]FTSResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ftsExpr := buildFTSQuery(query)
	if ftsExpr == "" {
		return nil, nil
	}

	sqlQuery := `
		SELECT ` + chunkColumnList("c") + `, bm25(f) AS score
		FROM fts_chunks f
		JOIN chunks c ON c.id = f.chunk_id
		WHERE f.body MATCH ?
		ORDER BY score
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, sqlQuery, ftsExpr, limit)
	if err != nil {
		// Malformed sanitizer input should surface as empty results, not an
		// error.
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, cerr.Wrap(cerr.ErrCodeSearchFailed, err)
	}
	defer rows.Close()

	var out []FTSResult
	for rows.Next() {
		c, score, err := scanChunkWithScore(rows)
		if err != nil {
			return nil, cerr.Wrap(cerr.ErrCodeSearchFailed, err)
		}
		// fts5's bm25() is negative-weighted; negate so higher is better.
		out = append(out, FTSResult{Chunk: *c, Score: -score})
	}
	return out, rows.Err()
}

func (s *SQLiteChunkStore) FindConformingTypes(ctx context.Context, protocolName string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := chunkSelectColumns + ` FROM chunks c
		JOIN conformance_index ci ON ci.chunk_id = c.id
		WHERE c.is_type_declaration = 1 AND ci.protocol_name = ?`
	rows, err := s.db.QueryContext(ctx, query, protocolName)
	if err != nil {
		return nil, cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteChunkStore) GetTermFrequency(ctx context.Context, term string) (int, error) {
	s.mu.RLock()
	if v, ok := s.termFreqCache.Get(term); ok {
		s.mu.RUnlock()
		return v, nil
	}
	s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fts_chunks WHERE body MATCH ?`, `"`+term+`"`).Scan(&count)
	if err != nil {
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			count = 0
		} else {
			return 0, cerr.Wrap(cerr.ErrCodeStoreIO, err)
		}
	}

	s.mu.Lock()
	s.termFreqCache.Add(term, count)
	s.mu.Unlock()
	return count, nil
}

func (s *SQLiteChunkStore) GetFileHash(ctx context.Context, path string) (*FileHashRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec FileHashRecord
	var indexedAt string
	err := s.db.QueryRowContext(ctx, `SELECT path, hash, indexed_at FROM file_hashes WHERE path = ?`, path).
		Scan(&rec.Path, &rec.Hash, &indexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	rec.IndexedAt, _ = time.Parse(time.RFC3339Nano, indexedAt)
	return &rec, nil
}

func (s *SQLiteChunkStore) SetFileHash(ctx context.Context, path, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_hashes(path, hash, indexed_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET hash=excluded.hash, indexed_at=excluded.indexed_at
	`, path, hash, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	return nil
}

func (s *SQLiteChunkStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM chunks`,
		`DELETE FROM fts_chunks`,
		`DELETE FROM conformance_index`,
		`DELETE FROM file_hashes`,
		`DELETE FROM info_snippets`,
		`DELETE FROM fts_snippets`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return cerr.Wrap(cerr.ErrCodeStoreIO, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	s.termFreqCache.Purge()
	return nil
}

func (s *SQLiteChunkStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.db.Close()
	s.db = nil
	return err
}

// --- scanning helpers ---

const chunkSelectColumns = `SELECT ` + chunkColumnsRaw

const chunkColumnsRaw = `id, path, content, start_line, end_line, kind, symbols, references_json,
	file_hash, signature, breadcrumb, language, token_count, doc_comment,
	content_hash, generated_description, conformances, is_type_declaration, created_at`

func chunkColumnList(alias string) string {
	cols := strings.Split(chunkColumnsRaw, ",")
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(out, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var c Chunk
	var kind, symbolsJSON, refsJSON, conformJSON, createdAt string
	var isType int
	if err := row.Scan(
		&c.ID, &c.Path, &c.Content, &c.StartLine, &c.EndLine, &kind, &symbolsJSON, &refsJSON,
		&c.FileHash, &c.Signature, &c.Breadcrumb, &c.Language, &c.TokenCount, &c.DocComment,
		&c.ContentHash, &c.GeneratedDescription, &conformJSON, &isType, &createdAt,
	); err != nil {
		return nil, err
	}
	c.Kind = Kind(kind)
	c.Symbols = decodeStrings(symbolsJSON)
	c.References = decodeStrings(refsJSON)
	c.Conformances = decodeStrings(conformJSON)
	c.IsTypeDeclaration = isType != 0
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &c, nil
}

func scanChunkWithScore(rows *sql.Rows) (*Chunk, float64, error) {
	var c Chunk
	var kind, symbolsJSON, refsJSON, conformJSON, createdAt string
	var isType int
	var score float64
	if err := rows.Scan(
		&c.ID, &c.Path, &c.Content, &c.StartLine, &c.EndLine, &kind, &symbolsJSON, &refsJSON,
		&c.FileHash, &c.Signature, &c.Breadcrumb, &c.Language, &c.TokenCount, &c.DocComment,
		&c.ContentHash, &c.GeneratedDescription, &conformJSON, &isType, &createdAt, &score,
	); err != nil {
		return nil, 0, err
	}
	c.Kind = Kind(kind)
	c.Symbols = decodeStrings(symbolsJSON)
	c.References = decodeStrings(refsJSON)
	c.Conformances = decodeStrings(conformJSON)
	c.IsTypeDeclaration = isType != 0
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &c, score, nil
}

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	var out []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func inClause(vals []string) (string, []any) {
	placeholders := make([]string, len(vals))
	args := make([]any, len(vals))
	for i, v := range vals {
		placeholders[i] = "?"
		args[i] = v
	}
	return strings.Join(placeholders, ","), args
}
