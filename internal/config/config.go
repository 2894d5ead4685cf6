// Package config loads and validates the YAML configuration surface that
// drives the Chunk Store, Vector Store, Index Manager, and Hybrid Search
// Engine.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete coderank configuration, matching the
// configuration surface (embedding.*, search.*, indexing.*, storage.*,
// watch.*, logging.*, remote.*).
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Storage   StorageConfig   `yaml:"storage"`
	Watch     WatchConfig     `yaml:"watch"`
	Logging   LoggingConfig   `yaml:"logging"`
	Remote    map[string]any  `yaml:"remote"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider           string `yaml:"provider"`
	Model              string `yaml:"model"`
	Dimension          int    `yaml:"dimension"`
	BatchSize          int    `yaml:"batch_size"`
	BatchTimeoutMS     int    `yaml:"batch_timeout_ms"`
	BatchMemoryLimitMB int    `yaml:"batch_memory_limit_mb"`

	// CacheRedisAddr, when set, wraps the embedding provider chain in a
	// distributed cache so identical chunk content embedded from multiple
	// machines sharing an index directory doesn't re-pay the provider call.
	CacheRedisAddr  string `yaml:"cache_redis_addr"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// UtilityConfig configures the small "utility" LLM used for description
// generation during indexing enhancement.
type UtilityConfig struct {
	Provider                 string `yaml:"provider"`
	Model                    string `yaml:"model"`
	Timeout                  string `yaml:"timeout"`
	DescriptionBatchSize     int    `yaml:"description_batch_size"`
	DescriptionBatchMode     string `yaml:"description_batch_mode"` // single | grouped
	DescriptionChunksPerReq  int    `yaml:"description_chunks_per_request"`
}

// SynthesisConfig configures the result-synthesis LLM.
type SynthesisConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
}

// EnhancementConfig toggles and configures LLM-backed query expansion,
// result synthesis, and description generation.
type EnhancementConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Utility   UtilityConfig   `yaml:"utility"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
}

// SearchConfig configures the hybrid search engine.
type SearchConfig struct {
	SemanticWeight       float64            `yaml:"semantic_weight"`
	RRFConstant          int                `yaml:"rrf_k"`
	MultiHopEnabled      bool               `yaml:"multi_hop_enabled"`
	MultiHopDepth        int                `yaml:"multi_hop_depth"`
	OutputFormat         string             `yaml:"output_format"` // text | json
	Limit                int                `yaml:"limit"`
	ExpandQueryByDefault bool               `yaml:"expand_query_by_default"`
	SynthesizeByDefault  bool               `yaml:"synthesize_by_default"`
	DefaultExtensions    []string           `yaml:"default_extensions"`
	DefaultPathFilter    string             `yaml:"default_path_filter"`
	Enhancement          EnhancementConfig  `yaml:"enhancement"`
}

// IndexingConfig configures the index manager.
type IndexingConfig struct {
	Exclude            []string `yaml:"exclude"`
	IncludeExtensions  []string `yaml:"include_extensions"`
	MaxFileSize        int      `yaml:"max_file_size"`
	ChunkSize          int      `yaml:"chunk_size"`
	ChunkOverlap       int      `yaml:"chunk_overlap"`
	MaxConcurrentTasks int      `yaml:"max_concurrent_tasks"`
}

// StorageConfig configures the on-disk index layout and selects among
// the pluggable backend implementations each store interface supports.
type StorageConfig struct {
	IndexPath string `yaml:"index_path"`
	CachePath string `yaml:"cache_path"`

	// BM25Backend selects the ChunkStore's lexical search implementation:
	// "sqlite" (fts5, default) or "bleve" (legacy/alternate backend).
	BM25Backend string `yaml:"bm25_backend"`

	// VectorBackend selects the VectorStore implementation: "hnsw"
	// (in-process, default) or "qdrant" (remote).
	VectorBackend    string `yaml:"vector_backend"`
	QdrantURL        string `yaml:"qdrant_url"`
	QdrantCollection string `yaml:"qdrant_collection"`
}

// WatchConfig configures the (out-of-scope, pluggable) file watcher
// debounce interval — accepted for forward compatibility even though no
// watcher ships with the core.
type WatchConfig struct {
	DebounceMS int `yaml:"debounce_ms"`
}

// LoggingConfig configures the log level used by internal/logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/go.sum",
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:           "",
			Model:              "",
			Dimension:          0,
			BatchSize:          32,
			BatchTimeoutMS:     200,
			BatchMemoryLimitMB: 64,
		},
		Search: SearchConfig{
			SemanticWeight:       0.5,
			RRFConstant:          60,
			MultiHopEnabled:      false,
			MultiHopDepth:        1,
			OutputFormat:         "text",
			Limit:                10,
			ExpandQueryByDefault: false,
			SynthesizeByDefault:  false,
			DefaultExtensions:    nil,
			DefaultPathFilter:    "",
			Enhancement: EnhancementConfig{
				Enabled: false,
				Utility: UtilityConfig{
					Timeout:                 "5s",
					DescriptionBatchSize:    8,
					DescriptionBatchMode:    "grouped",
					DescriptionChunksPerReq: 8,
				},
				Synthesis: SynthesisConfig{
					Timeout: "10s",
				},
			},
		},
		Indexing: IndexingConfig{
			Exclude:            defaultExcludePatterns,
			IncludeExtensions:  []string{".go"},
			MaxFileSize:        1 << 20,
			ChunkSize:          1500,
			ChunkOverlap:       200,
			MaxConcurrentTasks: runtime.NumCPU(),
		},
		Storage: StorageConfig{
			IndexPath:     defaultIndexPath(),
			CachePath:     defaultCachePath(),
			BM25Backend:   "sqlite",
			VectorBackend: "hnsw",
		},
		Watch: WatchConfig{
			DebounceMS: 500,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultIndexPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".coderank", "index")
	}
	return filepath.Join(home, ".coderank", "index")
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".coderank", "cache")
	}
	return filepath.Join(home, ".coderank", "cache")
}

// secretKeyPattern matches config keys that must never carry a literal
// value: api keys and secrets belong in the environment or an OS secret
// store, never in a committed YAML file.
var secretKeyPattern = regexp.MustCompile(`(?i)(api_key|apikey|secret)`)

// allowedKeys is the full set of recognized dotted key paths. Anything
// else in a config file is rejected by name.
var allowedKeys = buildAllowedKeys()

func buildAllowedKeys() map[string]bool {
	paths := []string{
		"embedding", "embedding.provider", "embedding.model", "embedding.dimension",
		"embedding.batch_size", "embedding.batch_timeout_ms", "embedding.batch_memory_limit_mb",
		"embedding.cache_redis_addr", "embedding.cache_ttl_seconds",
		"search", "search.semantic_weight", "search.rrf_k", "search.multi_hop_enabled",
		"search.multi_hop_depth", "search.output_format", "search.limit",
		"search.expand_query_by_default", "search.synthesize_by_default",
		"search.default_extensions", "search.default_path_filter",
		"search.enhancement", "search.enhancement.enabled",
		"search.enhancement.utility", "search.enhancement.utility.provider",
		"search.enhancement.utility.model", "search.enhancement.utility.timeout",
		"search.enhancement.utility.description_batch_size",
		"search.enhancement.utility.description_batch_mode",
		"search.enhancement.utility.description_chunks_per_request",
		"search.enhancement.synthesis", "search.enhancement.synthesis.provider",
		"search.enhancement.synthesis.model", "search.enhancement.synthesis.timeout",
		"indexing", "indexing.exclude", "indexing.include_extensions",
		"indexing.max_file_size", "indexing.chunk_size", "indexing.chunk_overlap",
		"indexing.max_concurrent_tasks",
		"storage", "storage.index_path", "storage.cache_path",
		"storage.bm25_backend", "storage.vector_backend",
		"storage.qdrant_url", "storage.qdrant_collection",
		"watch", "watch.debounce_ms",
		"logging", "logging.level",
		"remote",
	}
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return set
}

// Load reads the project config file (.coderank.yaml or .coderank.yml) in
// dir, applying it over New()'s defaults, then applies environment
// overrides and validates the result.
func Load(dir string) (*Config, error) {
	cfg := New()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".coderank.yaml", ".coderank.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := rejectSecrets("", raw); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := validateKeys("", raw); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	return nil
}

// validateKeys walks a raw YAML map, rejecting any key path not present
// in allowedKeys, and naming the offending path in the error.
func validateKeys(prefix string, node map[string]any) error {
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if !allowedKeys[path] && !strings.HasPrefix(path, "remote.") && path != "remote" {
			return fmt.Errorf("unknown configuration key %q", path)
		}
		if child, ok := node[k].(map[string]any); ok {
			if err := validateKeys(path, child); err != nil {
				return err
			}
		}
	}
	return nil
}

// rejectSecrets walks a raw YAML map looking for any key name that looks
// like it carries a credential; config files must never contain these.
func rejectSecrets(prefix string, node map[string]any) error {
	for k, v := range node {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if secretKeyPattern.MatchString(k) {
			return fmt.Errorf("config key %q looks like a credential; set it via environment variable instead", path)
		}
		if child, ok := v.(map[string]any); ok {
			if err := rejectSecrets(path, child); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyEnvOverrides applies a small allow-list of CODERANK_* operational
// overrides, highest precedence.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CODERANK_SEMANTIC_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("CODERANK_RRF_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("CODERANK_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("CODERANK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CODERANK_INDEX_PATH"); v != "" {
		c.Storage.IndexPath = v
	}
}

// Validate checks invariants that a YAML decode alone can't enforce.
func (c *Config) Validate() error {
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("search.semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_k must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.Limit < 0 {
		return fmt.Errorf("search.limit must be non-negative, got %d", c.Search.Limit)
	}
	if c.Search.MultiHopDepth < 0 {
		return fmt.Errorf("search.multi_hop_depth must be non-negative, got %d", c.Search.MultiHopDepth)
	}
	if mode := c.Search.Enhancement.Utility.DescriptionBatchMode; mode != "" && mode != "single" && mode != "grouped" {
		return fmt.Errorf("search.enhancement.utility.description_batch_mode must be 'single' or 'grouped', got %s", mode)
	}
	if c.Indexing.ChunkSize < 0 {
		return fmt.Errorf("indexing.chunk_size must be non-negative, got %d", c.Indexing.ChunkSize)
	}
	if c.Indexing.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("indexing.max_concurrent_tasks must be positive, got %d", c.Indexing.MaxConcurrentTasks)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Search.OutputFormat)] {
		return fmt.Errorf("search.output_format must be 'text' or 'json', got %s", c.Search.OutputFormat)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	validBM25Backends := map[string]bool{"sqlite": true, "bleve": true}
	if !validBM25Backends[strings.ToLower(c.Storage.BM25Backend)] {
		return fmt.Errorf("storage.bm25_backend must be 'sqlite' or 'bleve', got %s", c.Storage.BM25Backend)
	}
	validVectorBackends := map[string]bool{"hnsw": true, "qdrant": true}
	if !validVectorBackends[strings.ToLower(c.Storage.VectorBackend)] {
		return fmt.Errorf("storage.vector_backend must be 'hnsw' or 'qdrant', got %s", c.Storage.VectorBackend)
	}
	if strings.ToLower(c.Storage.VectorBackend) == "qdrant" && c.Storage.QdrantURL == "" {
		return fmt.Errorf("storage.qdrant_url is required when storage.vector_backend is 'qdrant'")
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
