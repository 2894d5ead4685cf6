package store

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	cerr "github.com/opencoderank/coderank/internal/errors"
)

// originalIDField is the payload key under which a chunk id is stashed,
// since Qdrant point ids must be a UUID or unsigned integer and chunk ids
// are content hashes.
const originalIDField = "coderank_chunk_id"

// QdrantConfig addresses a remote Qdrant collection. It is the
// storage.vector_backend=qdrant counterpart to VectorStoreConfig.
type QdrantConfig struct {
	URL        string
	Collection string
	Dimension  int
	Metric     string // "cos", "l2", "ip"
}

// QdrantVectorStore implements VectorStore against a remote Qdrant
// collection over gRPC, behind the exact same interface HNSWVectorStore
// satisfies — selecting it is a one-line config change, never a change to
// internal/search's Engine. Point ids are deterministic UUIDv5s derived
// from the chunk id, with the original id round-tripped through the point
// payload, since VectorResult is keyed by chunk id, not by whatever id
// shape the backend needs internally.
type QdrantVectorStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string

	mu    sync.RWMutex
	count int
}

var _ VectorStore = (*QdrantVectorStore)(nil)

// NewQdrantVectorStore dials cfg.URL and ensures cfg.Collection exists with
// a vector size/distance matching cfg.Dimension/cfg.Metric.
func NewQdrantVectorStore(ctx context.Context, cfg QdrantConfig) (*QdrantVectorStore, error) {
	if cfg.Collection == "" {
		return nil, cerr.New(cerr.ErrCodeInvalidInput, "qdrant vector store requires a collection name", nil)
	}
	if cfg.Dimension <= 0 {
		return nil, cerr.New(cerr.ErrCodeInvalidInput, "qdrant vector store requires a positive dimension", nil)
	}

	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, cerr.Wrap(cerr.ErrCodeInvalidInput, err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port, UseTLS: useTLS})
	if err != nil {
		return nil, cerr.Wrap(cerr.ErrCodeStoreIO, fmt.Errorf("create qdrant client: %w", err))
	}

	qs := &QdrantVectorStore{client: client, collection: cfg.Collection, dimension: cfg.Dimension, metric: cfg.Metric}
	if err := qs.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	return qs, nil
}

func (q *QdrantVectorStore) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check qdrant collection exists: %w", err)
	}
	if exists {
		return nil
	}

	var distance qdrant.Distance
	switch q.metric {
	case "l2":
		distance = qdrant.Distance_Euclid
	case "ip":
		distance = qdrant.Distance_Dot
	default:
		distance = qdrant.Distance_Cosine
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: distance,
		}),
	})
}

// parseQdrantURL accepts a bare "host:port" or a "grpc://host:port" /
// "https://host:port" URL, defaulting to Qdrant's gRPC port 6334.
func parseQdrantURL(raw string) (host string, port int, useTLS bool, err error) {
	if !strings.Contains(raw, "://") {
		raw = "grpc://" + raw
	}
	parsed, parseErr := url.Parse(raw)
	if parseErr != nil || parsed.Host == "" {
		return "", 0, false, fmt.Errorf("parse qdrant url %q: %w", raw, parseErr)
	}
	host = parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		port = 6334
	} else if port, err = strconv.Atoi(portStr); err != nil {
		return "", 0, false, fmt.Errorf("invalid port in qdrant url %q: %w", raw, err)
	}
	useTLS = parsed.Scheme == "https" || parsed.Scheme == "grpcs"
	return host, port, useTLS, nil
}

func qdrantPointID(id string) *qdrant.PointId {
	u := id
	if _, err := uuid.Parse(id); err != nil {
		u = uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
	}
	return qdrant.NewIDUUID(u)
}

func (q *QdrantVectorStore) Insert(ctx context.Context, id string, vector []float32) error {
	return q.InsertBatch(ctx, []string{id}, [][]float32{vector})
}

func (q *QdrantVectorStore) InsertBatch(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return cerr.New(cerr.ErrCodeInvalidInput, "ids and vectors length mismatch", nil)
	}

	points := make([]*qdrant.PointStruct, len(ids))
	for i, id := range ids {
		if len(vectors[i]) != q.dimension {
			return cerr.Wrap(cerr.ErrCodeDimensionMismatch,
				DimensionMismatchError{Expected: q.dimension, Actual: len(vectors[i])})
		}
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		points[i] = &qdrant.PointStruct{
			Id:      qdrantPointID(id),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(map[string]any{originalIDField: id}),
		}
	}

	if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: q.collection, Points: points}); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}

	q.mu.Lock()
	q.count += len(ids)
	q.mu.Unlock()
	return nil
}

func (q *QdrantVectorStore) Delete(ctx context.Context, id string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(qdrantPointID(id)),
	})
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	q.mu.Lock()
	if q.count > 0 {
		q.count--
	}
	q.mu.Unlock()
	return nil
}

func (q *QdrantVectorStore) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	if len(query) != q.dimension {
		return nil, cerr.Wrap(cerr.ErrCodeDimensionMismatch,
			DimensionMismatchError{Expected: q.dimension, Actual: len(query)})
	}
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(query))
	copy(vec, query)
	limit := uint64(k)

	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, cerr.Wrap(cerr.ErrCodeSearchFailed, err)
	}

	out := make([]VectorResult, 0, len(hits))
	for _, hit := range hits {
		id := originalIDFromPayload(hit.Payload, hit.Id)
		out = append(out, VectorResult{ID: id, Distance: scoreToDistance(hit.Score, q.metric)})
	}
	return out, nil
}

// scoreToDistance maps Qdrant's similarity score (higher is better) onto
// this package's distance convention (lower is closer).
func scoreToDistance(score float32, metric string) float32 {
	switch metric {
	case "l2":
		return score
	default:
		return 1 - score
	}
}

func originalIDFromPayload(payload map[string]*qdrant.Value, pointID *qdrant.PointId) string {
	if payload != nil {
		if v, ok := payload[originalIDField]; ok {
			if s := v.GetStringValue(); s != "" {
				return s
			}
		}
	}
	if pointID == nil {
		return ""
	}
	if u := pointID.GetUuid(); u != "" {
		return u
	}
	return pointID.String()
}

func (q *QdrantVectorStore) Get(ctx context.Context, id string) ([]float32, bool, error) {
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{qdrantPointID(id)},
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, false, cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	if len(points) == 0 {
		return nil, false, nil
	}
	vec := points[0].GetVectors().GetVector().GetData()
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true, nil
}

func (q *QdrantVectorStore) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.count
}

func (q *QdrantVectorStore) Dimension() int { return q.dimension }

func (q *QdrantVectorStore) Clear(ctx context.Context) error {
	if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	if err := q.ensureCollection(ctx); err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	q.mu.Lock()
	q.count = 0
	q.mu.Unlock()
	return nil
}

// Save is a no-op: Qdrant persists every Upsert/Delete server-side, unlike
// the in-process HNSW graph this backend substitutes for.
func (q *QdrantVectorStore) Save(path string) error { return nil }

// Load is a no-op for the same reason Save is.
func (q *QdrantVectorStore) Load(path string) error { return nil }

func (q *QdrantVectorStore) Close() error {
	return q.client.Close()
}
