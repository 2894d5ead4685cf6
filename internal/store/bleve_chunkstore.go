package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"

	cerr "github.com/opencoderank/coderank/internal/errors"
)

const (
	codeTokenizerName = "coderank_code_tokenizer"
	codeAnalyzerName  = "coderank_code_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(codeTokenizerName, func(_ map[string]interface{}, _ *registry.Cache) (analysis.Tokenizer, error) {
		return codeTokenizer{}, nil
	})
}

// codeTokenizer splits on anything that isn't a letter or digit, which is
// close enough to the sqlite FTS5 "unicode61" tokenizer's default token
// boundary for identifier-heavy source text.
type codeTokenizer struct{}

func (codeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	var stream analysis.TokenStream
	pos := 1
	start := -1
	isWord := func(b byte) bool {
		return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_'
	}
	for i := 0; i <= len(input); i++ {
		atWord := i < len(input) && isWord(input[i])
		if atWord && start == -1 {
			start = i
		} else if !atWord && start != -1 {
			stream = append(stream, &analysis.Token{
				Term:     input[start:i],
				Start:    start,
				End:      i,
				Position: pos,
				Type:     analysis.AlphaNumeric,
			})
			pos++
			start = -1
		}
	}
	return stream
}

func buildCodeIndexMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	if err := m.AddCustomAnalyzer(codeAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     codeTokenizerName,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}
	m.DefaultAnalyzer = codeAnalyzerName
	return m, nil
}

// bleveDoc is the document body bleve indexes and scores against. Only the
// fields worth matching on are carried; the chunk body itself is hydrated
// back out of the wrapped store after search.
type bleveDoc struct {
	Content string `json:"content"`
	Path    string `json:"path"`
}

// BleveChunkStore is the alternate lexical backend selected by
// storage.bm25_backend=bleve. It embeds a SQLiteChunkStore for everything
// but lexical search — chunk
// bodies and file-hash bookkeeping stay in SQLite — and
// mirrors writes into a standalone Bleve index so SearchFTS can be served
// from Bleve's BM25-family scorer instead of sqlite's fts5(). Search hits
// carry only an ID and score, same as VectorResult, and are hydrated back
// into full Chunks via the embedded store's GetByIDs.
type BleveChunkStore struct {
	*SQLiteChunkStore

	mu    sync.RWMutex
	index bleve.Index
}

// NewBleveChunkStore opens (or creates) a Bleve index at indexPath backing
// the given SQLite store.
func NewBleveChunkStore(inner *SQLiteChunkStore, indexPath string) (*BleveChunkStore, error) {
	idx, err := openOrCreateBleveIndex(indexPath)
	if err != nil {
		return nil, err
	}
	return &BleveChunkStore{SQLiteChunkStore: inner, index: idx}, nil
}

func openOrCreateBleveIndex(indexPath string) (bleve.Index, error) {
	m, err := buildCodeIndexMapping()
	if err != nil {
		return nil, err
	}
	if indexPath == "" {
		return bleve.NewMemOnly(m)
	}
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return nil, fmt.Errorf("create bleve index dir: %w", err)
	}
	idx, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		return bleve.New(indexPath, m)
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index at %s: %w", indexPath, err)
	}
	return idx, nil
}

func (b *BleveChunkStore) indexChunk(c Chunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Index(c.ID, bleveDoc{Content: c.Content, Path: c.Path})
}

func (b *BleveChunkStore) indexChunks(cs []Chunk) error {
	if len(cs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := b.index.NewBatch()
	for _, c := range cs {
		if err := batch.Index(c.ID, bleveDoc{Content: c.Content, Path: c.Path}); err != nil {
			return err
		}
	}
	return b.index.Batch(batch)
}

func (b *BleveChunkStore) deleteIDs(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

func (b *BleveChunkStore) Insert(ctx context.Context, c Chunk) error {
	if err := b.SQLiteChunkStore.Insert(ctx, c); err != nil {
		return err
	}
	if err := b.indexChunk(c); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	return nil
}

func (b *BleveChunkStore) InsertBatch(ctx context.Context, cs []Chunk) error {
	if err := b.SQLiteChunkStore.InsertBatch(ctx, cs); err != nil {
		return err
	}
	if err := b.indexChunks(cs); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	return nil
}

func (b *BleveChunkStore) Update(ctx context.Context, c Chunk) error {
	if err := b.SQLiteChunkStore.Update(ctx, c); err != nil {
		return err
	}
	if err := b.indexChunk(c); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	return nil
}

func (b *BleveChunkStore) Delete(ctx context.Context, id string) error {
	if err := b.SQLiteChunkStore.Delete(ctx, id); err != nil {
		return err
	}
	if err := b.deleteIDs(id); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	return nil
}

func (b *BleveChunkStore) DeleteByPath(ctx context.Context, path string) error {
	existing, err := b.SQLiteChunkStore.GetByPath(ctx, path)
	if err != nil {
		return err
	}
	if err := b.SQLiteChunkStore.DeleteByPath(ctx, path); err != nil {
		return err
	}
	ids := make([]string, len(existing))
	for i, c := range existing {
		ids[i] = c.ID
	}
	if err := b.deleteIDs(ids...); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	return nil
}

// SearchFTS serves lexical search from Bleve instead of sqlite fts5(),
// hydrating full Chunk bodies back out of the embedded SQLite store —
// the same hit-then-hydrate shape VectorStore results already use in
// internal/search's fuse().
func (b *BleveChunkStore) SearchFTS(ctx context.Context, query string, limit int) ([]FTSResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	mq := bleve.NewMatchQuery(query)
	mq.SetField("content")
	req := bleve.NewSearchRequest(mq)
	req.Size = limit

	b.mu.RLock()
	res, err := b.index.SearchInContext(ctx, req)
	b.mu.RUnlock()
	if err != nil {
		return nil, cerr.Wrap(cerr.ErrCodeSearchFailed, err)
	}
	if len(res.Hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(res.Hits))
	scores := make(map[string]float64, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
		scores[hit.ID] = hit.Score
	}

	chunks, err := b.SQLiteChunkStore.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]FTSResult, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, FTSResult{Chunk: c, Score: scores[c.ID]})
	}
	return out, nil
}

func (b *BleveChunkStore) Clear(ctx context.Context) error {
	if err := b.SQLiteChunkStore.Clear(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.index.Close(); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	m, err := buildCodeIndexMapping()
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	b.index = idx
	return nil
}

func (b *BleveChunkStore) Close() error {
	b.mu.Lock()
	closeErr := b.index.Close()
	b.mu.Unlock()
	if sqliteErr := b.SQLiteChunkStore.Close(); sqliteErr != nil {
		return sqliteErr
	}
	return closeErr
}

var _ ChunkStore = (*BleveChunkStore)(nil)
