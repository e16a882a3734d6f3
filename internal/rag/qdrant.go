package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant-backed vector store.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance. Unlike the
// in-memory flat index it needs no Save/Load cycle; the collection is the
// persistent artifact.
type QdrantStore struct {
	client *qdrant.Client
	cfg    *QdrantConfig
}

// NewQdrantStore connects to Qdrant, ensures the target collection exists
// (creating it if necessary) and returns a ready-to-use VectorStore.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// Add upserts a batch of chunks with their embeddings. Point IDs are fresh
// UUIDs; chunk text and provenance travel in the point payload.
func (s *QdrantStore) Add(ctx context.Context, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("qdrant: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		if int(s.cfg.VectorSize) != 0 && len(embeddings[i]) != int(s.cfg.VectorSize) {
			return fmt.Errorf("qdrant: embedding %d has %d dimensions, collection has %d: %w",
				i, len(embeddings[i]), s.cfg.VectorSize, ErrDimensionMismatch)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuid.NewString()),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				"text":         c.Text,
				"source":       c.Metadata.Source,
				"chunk_index":  int64(c.Metadata.Ordinal),
				"total_chunks": int64(c.Metadata.TotalInSource),
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// scoreFromCosine maps a raw cosine similarity in [-1, 1] onto the same
// score domain the flat index uses: score = 1/(1+distance) with cosine
// distance 1-cos, so every backend reports scores in (0, 1] and the
// retriever's relevance threshold keeps its meaning.
func scoreFromCosine(cos float32) float64 {
	c := float64(cos)
	if c > 1 {
		c = 1
	}
	if c < -1 {
		c = -1
	}
	return 1.0 / (2.0 - c)
}

// Search performs a cosine similarity search and returns the topK results in
// descending score order. Raw cosine similarities are normalized through
// scoreFromCosine before they reach callers.
func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]SearchResult, error) {
	limit := uint64(topK)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		r := SearchResult{Score: scoreFromCosine(p.Score)}
		if payload := p.Payload; payload != nil {
			if v, ok := payload["text"]; ok {
				r.Text = v.GetStringValue()
			}
			if v, ok := payload["source"]; ok {
				r.Metadata.Source = v.GetStringValue()
			}
			if v, ok := payload["chunk_index"]; ok {
				r.Metadata.Ordinal = int(v.GetIntegerValue())
			}
			if v, ok := payload["total_chunks"]; ok {
				r.Metadata.TotalInSource = int(v.GetIntegerValue())
			}
		}
		results = append(results, r)
	}
	return results, nil
}

// Ready always reports true: the collection is ensured at construction time.
func (s *QdrantStore) Ready() bool { return true }

// Ping checks connectivity to the Qdrant server.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
