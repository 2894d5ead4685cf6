package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	cerr "github.com/opencoderank/coderank/internal/errors"
)

// VectorStoreConfig pins the parameters that must stay fixed for the life
// of an index: dimension, metric, and the HNSW graph construction knobs.
type VectorStoreConfig struct {
	Dimension     int
	Metric        string // "cos" or "l2"
	M             int
	EfConstruction int
	EfSearch      int
}

// HNSWVectorStore implements VectorStore with coder/hnsw's pure-Go graph.
// Deletes are lazy: a deleted id is dropped from the id<->key mapping but
// its node stays in the graph, since
// coder/hnsw cannot safely remove a node that is the sole remaining entry
// point. Search filters orphaned keys out of results, so a tombstoned id
// is never returned.
type HNSWVectorStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	// raw holds the unnormalized vector as originally inserted, keyed by id,
	// so Get() can hand it back for reuse/migration without reconstructing
	// it from the (possibly normalized) graph node value.
	raw map[string][]float32

	closed bool
}

var _ VectorStore = (*HNSWVectorStore)(nil)

type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorStoreConfig
	Raw     map[string][]float32
}

// NewHNSWVectorStore builds a store pinned to cfg.Dimension. Every insert
// and search after this call must match that dimension or fail with
// DimensionMismatchError.
func NewHNSWVectorStore(cfg VectorStoreConfig) (*HNSWVectorStore, error) {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	if cfg.Dimension <= 0 {
		return nil, cerr.New(cerr.ErrCodeInvalidInput, "vector store requires a positive dimension", nil)
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		cfg.Metric = "cos"
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWVectorStore{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		raw:    make(map[string][]float32),
	}, nil
}

func (s *HNSWVectorStore) Insert(ctx context.Context, id string, vector []float32) error {
	return s.InsertBatch(ctx, []string{id}, [][]float32{vector})
}

func (s *HNSWVectorStore) InsertBatch(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return cerr.New(cerr.ErrCodeInvalidInput, "ids and vectors length mismatch", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cerr.New(cerr.ErrCodeInternal, "vector store is closed", nil)
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimension {
			return cerr.Wrap(cerr.ErrCodeDimensionMismatch,
				DimensionMismatchError{Expected: s.config.Dimension, Actual: len(v)})
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		original := make([]float32, len(vectors[i]))
		copy(original, vectors[i])
		s.raw[id] = original

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}
	return nil
}

func (s *HNSWVectorStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cerr.New(cerr.ErrCodeInternal, "vector store is closed", nil)
	}
	if key, exists := s.idMap[id]; exists {
		delete(s.keyMap, key)
		delete(s.idMap, id)
		delete(s.raw, id)
	}
	return nil
}

// Get returns the originally-inserted (unnormalized) vector for id.
func (s *HNSWVectorStore) Get(ctx context.Context, id string) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, cerr.New(cerr.ErrCodeInternal, "vector store is closed", nil)
	}
	if _, exists := s.idMap[id]; !exists {
		return nil, false, nil
	}
	vec, ok := s.raw[id]
	if !ok {
		return nil, false, nil
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true, nil
}

func (s *HNSWVectorStore) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, cerr.New(cerr.ErrCodeInternal, "vector store is closed", nil)
	}
	if len(query) != s.config.Dimension {
		return nil, cerr.Wrap(cerr.ErrCodeDimensionMismatch,
			DimensionMismatchError{Expected: s.config.Dimension, Actual: len(query)})
	}
	if s.graph.Len() == 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(q)
	}

	// Over-fetch so that tombstoned (orphaned) entries don't shrink k below
	// what the caller asked for.
	nodes := s.graph.Search(q, k+s.countOrphansLocked())

	out := make([]VectorResult, 0, k)
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		dist := s.graph.Distance(q, node.Value)
		out = append(out, VectorResult{ID: id, Distance: dist})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (s *HNSWVectorStore) countOrphansLocked() int {
	if s.graph == nil {
		return 0
	}
	n := s.graph.Len() - len(s.idMap)
	if n < 0 {
		return 0
	}
	return n
}

func (s *HNSWVectorStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

func (s *HNSWVectorStore) Dimension() int {
	return s.config.Dimension
}

func (s *HNSWVectorStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = hnsw.NewGraph[uint64]()
	switch s.config.Metric {
	case "l2":
		s.graph.Distance = hnsw.EuclideanDistance
	default:
		s.graph.Distance = hnsw.CosineDistance
	}
	s.graph.M = s.config.M
	s.graph.EfSearch = s.config.EfSearch
	s.graph.Ml = 0.25
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.raw = make(map[string][]float32)
	s.nextKey = 0
	return nil
}

// Save persists the graph and id mappings to disk via a temp-file-then-rename
// so a crash mid-write never leaves a half-written index.
func (s *HNSWVectorStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return cerr.New(cerr.ErrCodeInternal, "vector store is closed", nil)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	if err := s.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}

	return s.saveMetadataLocked(path + ".meta")
}

func (s *HNSWVectorStore) saveMetadataLocked(path string) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	meta := hnswMetadata{IDMap: s.idMap, NextKey: s.nextKey, Config: s.config, Raw: s.raw}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the last saved state, overwriting any unsaved writes.
func (s *HNSWVectorStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cerr.New(cerr.ErrCodeInternal, "vector store is closed", nil)
	}

	if err := s.loadMetadataLocked(path + ".meta"); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	defer f.Close()

	graph := hnsw.NewGraph[uint64]()
	switch s.config.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = s.config.M
	graph.EfSearch = s.config.EfSearch
	graph.Ml = 0.25

	if err := graph.Import(bufio.NewReader(f)); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	s.graph = graph
	return nil
}

func (s *HNSWVectorStore) loadMetadataLocked(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	defer f.Close()

	var meta hnswMetadata
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreCorrupt, err)
	}

	s.idMap = meta.IDMap
	s.nextKey = meta.NextKey
	s.config = meta.Config
	s.raw = meta.Raw
	if s.raw == nil {
		s.raw = make(map[string][]float32)
	}
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

func (s *HNSWVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.graph = nil
	return nil
}

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
