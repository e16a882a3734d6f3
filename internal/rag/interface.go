// Package rag implements the retrieval side of the OIP assistant: document
// chunking, vector storage and exact nearest-neighbour search, and the
// retriever that turns a user query into a formatted context block.
// Concrete vector store implementations (in-memory flat index, Qdrant)
// satisfy the VectorStore interface so callers never depend on a backend.
package rag

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when an embedding's length does not match
// the index dimension. Ingestion must abort loudly on this error rather than
// silently corrupt the index.
var ErrDimensionMismatch = errors.New("rag: embedding dimension mismatch")

// ErrIndexUnavailable is returned when a search is attempted before the index
// has been created or loaded. Callers should surface a clear "not ready"
// message and point the operator at the ingestion command.
var ErrIndexUnavailable = errors.New("rag: vector index unavailable — run ingestion first")

// ChunkMetadata identifies where a chunk came from and its position within
// the source document.
type ChunkMetadata struct {
	// Source is the originating document name or path.
	Source string `json:"source"`

	// Ordinal is the zero-based position of this chunk within its source.
	Ordinal int `json:"chunk_index"`

	// TotalInSource is the total number of chunks produced from the source.
	TotalInSource int `json:"total_chunks"`
}

// Chunk is a bounded segment of source document text — the unit of retrieval.
// Chunks are immutable once created and map one-to-one onto embedding vectors.
type Chunk struct {
	// Text is the chunk content.
	Text string `json:"text"`

	// Metadata locates the chunk within its source document.
	Metadata ChunkMetadata `json:"metadata"`
}

// SearchResult is a single hit from a vector search.
type SearchResult struct {
	// Text is the stored chunk text.
	Text string

	// Score is the similarity score in (0, 1]; 1 only on an exact match.
	// Derived monotonically from distance: smaller distance, higher score.
	Score float64

	// Metadata is the stored chunk metadata.
	Metadata ChunkMetadata
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the interface for persisting and searching chunk embeddings.
// Implementations must be safe for concurrent searches; the one mutating
// operation (Add) must not run concurrently with searches on the same store.
type VectorStore interface {
	// Add appends a batch of chunks with their pre-computed embeddings.
	// embeddings[i] is the vector for chunks[i]. Every embedding must match
	// the store's dimension or the call fails with ErrDimensionMismatch.
	Add(ctx context.Context, chunks []Chunk, embeddings [][]float32) error

	// Search returns the topK most similar chunks for the query embedding,
	// ordered by descending score. An empty store yields an empty slice,
	// never an error.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]SearchResult, error)

	// Ready reports whether the store holds a usable index. A store that has
	// never been created or loaded is not ready.
	Ready() bool

	// Close releases any resources held by the store.
	Close() error
}
