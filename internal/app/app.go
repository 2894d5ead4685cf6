// Package app wires one project's configuration, stores, provider chains,
// and search engine into the single bootstrap both the CLI (cmd/coderank)
// and the MCP server (internal/mcpserver) drive, so both entry points build
// the same collaborators once per process rather than once per subcommand.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opencoderank/coderank/internal/batch"
	"github.com/opencoderank/coderank/internal/chunkparser"
	"github.com/opencoderank/coderank/internal/config"
	cerr "github.com/opencoderank/coderank/internal/errors"
	"github.com/opencoderank/coderank/internal/ingest"
	"github.com/opencoderank/coderank/internal/index"
	"github.com/opencoderank/coderank/internal/logging"
	"github.com/opencoderank/coderank/internal/provider"
	"github.com/opencoderank/coderank/internal/search"
	"github.com/opencoderank/coderank/internal/store"
)

// App holds one project's live collaborators. Close releases the store
// file handles; the index directory lock is held only while Index runs.
type App struct {
	Config  *config.Config
	Manager *index.Manager
	Engine  *search.Engine
	Parser  chunkparser.Parser
	Logger  *slog.Logger
	Root    string

	chunks  store.ChunkStore
	vectors store.VectorStore
}

// Open loads the project's config, opens its chunk/vector stores at
// Storage.IndexPath, and builds the provider chains and search engine.
// root is the project directory whose .coderank.yaml (if any) governs
// the build.
func Open(ctx context.Context, root string) (*App, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, cerr.Wrap(cerr.ErrCodeConfigInvalid, err)
	}

	logger, _, err := logging.Setup(logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      logging.DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	})
	if err != nil {
		return nil, cerr.Wrap(cerr.ErrCodeInternal, err)
	}

	indexDir := cfg.Storage.IndexPath
	if !filepath.IsAbs(indexDir) {
		indexDir = filepath.Join(root, indexDir)
	}
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return nil, cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}

	chunks, err := openChunkStore(cfg, indexDir)
	if err != nil {
		return nil, err
	}

	dim := cfg.Embedding.Dimension
	if dim <= 0 {
		dim = 768
	}
	vectors, err := openVectorStore(ctx, cfg, indexDir, dim)
	if err != nil {
		return nil, err
	}
	vectorPath := filepath.Join(indexDir, "vectors.gob")
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if err := vectors.Load(vectorPath); err != nil {
			logger.Warn("vector store load failed, starting empty", slog.String("error", err.Error()))
		}
	}

	embedder := buildEmbeddingChain(cfg)
	batcher := batch.New(embedder, batch.Config{
		BatchSize:        cfg.Embedding.BatchSize,
		IdleTimeout:      time.Duration(cfg.Embedding.BatchTimeoutMS) * time.Millisecond,
		MemoryLimitBytes: cfg.Embedding.BatchMemoryLimitMB * 1024 * 1024,
	})

	mgr := index.New(indexDir, chunks, vectors, batcher, cfg.Indexing.MaxConcurrentTasks)

	var expander *search.QueryExpander
	var synthesizer *search.ResultSynthesizer
	var followUps *search.FollowUpGenerator
	if cfg.Search.Enhancement.Enabled {
		llmChain := buildLLMChain(cfg)
		if llmChain != nil {
			expander = search.NewQueryExpander(llmChain, 100)
			synthesizer = search.NewResultSynthesizer(llmChain)
			followUps = search.NewFollowUpGenerator(llmChain)
		}
	}

	engine := search.New(chunks, vectors, batcher, expander, synthesizer, followUps)

	return &App{
		Config:  cfg,
		Manager: mgr,
		Engine:  engine,
		Parser:  chunkparser.NewGoParser(),
		Logger:  logger,
		Root:    root,
		chunks:  chunks,
		vectors: vectors,
	}, nil
}

// Index runs a full-tree ingest rooted at a.Root through a.Manager,
// matching the index_codebase tool's synchronous contract.
func (a *App) Index(ctx context.Context, force bool) (ingest.Stats, error) {
	if err := a.Manager.AcquireExclusive(ctx); err != nil {
		return ingest.Stats{}, cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	defer a.Manager.ReleaseExclusive()

	return ingest.Run(ctx, a.Root, a.Manager, a.Parser, ingest.Options{
		Exclude:           a.Config.Indexing.Exclude,
		IncludeExtensions: a.Config.Indexing.IncludeExtensions,
		MaxFileSize:       int64(a.Config.Indexing.MaxFileSize),
		Force:             force,
		Concurrency:       a.Config.Indexing.MaxConcurrentTasks,
	})
}

// Close persists the vector store and releases resources. Safe to call
// once after Open succeeds.
func (a *App) Close() error {
	indexDir := a.Config.Storage.IndexPath
	if !filepath.IsAbs(indexDir) {
		indexDir = filepath.Join(a.Root, indexDir)
	}
	if err := a.vectors.Save(filepath.Join(indexDir, "vectors.gob")); err != nil {
		return fmt.Errorf("saving vector store: %w", err)
	}
	vecErr := a.vectors.Close()
	if err := a.chunks.Close(); err != nil {
		return err
	}
	return vecErr
}

// openChunkStore opens the SQLite-backed chunk store and, when
// storage.bm25_backend=bleve, wraps it in BleveChunkStore so lexical
// search is served by Bleve's scorer instead of sqlite fts5().
func openChunkStore(cfg *config.Config, indexDir string) (store.ChunkStore, error) {
	sqliteStore, err := store.NewSQLiteChunkStore(filepath.Join(indexDir, "chunks.db"))
	if err != nil {
		return nil, cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	if cfg.Storage.BM25Backend != "bleve" {
		return sqliteStore, nil
	}
	bleveStore, err := store.NewBleveChunkStore(sqliteStore, filepath.Join(indexDir, "bleve"))
	if err != nil {
		return nil, cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	return bleveStore, nil
}

// openVectorStore builds either the in-process HNSW graph or a remote
// Qdrant-backed store per storage.vector_backend, both behind the same
// VectorStore interface the search engine and index manager consume.
func openVectorStore(ctx context.Context, cfg *config.Config, indexDir string, dim int) (store.VectorStore, error) {
	if cfg.Storage.VectorBackend == "qdrant" {
		qs, err := store.NewQdrantVectorStore(ctx, store.QdrantConfig{
			URL:        cfg.Storage.QdrantURL,
			Collection: collectionNameOrDefault(cfg.Storage.QdrantCollection, indexDir),
			Dimension:  dim,
		})
		if err != nil {
			return nil, cerr.Wrap(cerr.ErrCodeStoreIO, err)
		}
		return qs, nil
	}
	vectors, err := store.NewHNSWVectorStore(store.VectorStoreConfig{Dimension: dim})
	if err != nil {
		return nil, cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	return vectors, nil
}

func collectionNameOrDefault(name, indexDir string) string {
	if name != "" {
		return name
	}
	return "coderank_" + filepath.Base(indexDir)
}

// buildEmbeddingChain orders embedding providers by configuration, always
// ending in the dependency-free static fallback so embedding never
// hard-fails. When embedding.cache_redis_addr is set, every networked
// provider is wrapped in a distributed cache so identical chunk content
// embedded from multiple machines sharing an index directory doesn't
// re-pay the provider call; the static fallback is cheap enough that
// caching it would only add latency.
func buildEmbeddingChain(cfg *config.Config) *provider.Chain[provider.EmbeddingProvider] {
	dim := cfg.Embedding.Dimension
	if dim <= 0 {
		dim = 768
	}

	var rdb *redis.Client
	if cfg.Embedding.CacheRedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Embedding.CacheRedisAddr})
	}
	ttl := time.Duration(cfg.Embedding.CacheTTLSeconds) * time.Second

	var providers []provider.EmbeddingProvider
	switch cfg.Embedding.Provider {
	case "ollama":
		ollama := provider.NewHTTPEmbedder("ollama", "ollama:"+cfg.Embedding.Model, "http://localhost:11434", cfg.Embedding.Model, dim)
		if rdb != nil {
			providers = append(providers, provider.NewCachedEmbedder(ollama, rdb, ttl))
		} else {
			providers = append(providers, ollama)
		}
	}
	providers = append(providers, provider.NewStaticEmbedder(dim))
	return provider.NewChain(providers...)
}

// buildLLMChain orders LLM providers for query expansion, synthesis, and
// follow-ups. Returns nil when no provider is configured, matching
// Engine's nil expander/synthesizer opt-out.
func buildLLMChain(cfg *config.Config) *provider.Chain[provider.LLMProvider] {
	var providers []provider.LLMProvider
	if m := cfg.Search.Enhancement.Synthesis.Model; m != "" {
		switch cfg.Search.Enhancement.Synthesis.Provider {
		case "anthropic":
			providers = append(providers, provider.NewAnthropicProvider(m))
		case "gemini":
			providers = append(providers, provider.NewGeminiProvider(m))
		default:
			providers = append(providers, provider.NewOpenAIProvider(m))
		}
	}
	if len(providers) == 0 {
		return nil
	}
	return provider.NewChain(providers...)
}
