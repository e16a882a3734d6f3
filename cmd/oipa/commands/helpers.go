package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/ebttikar/oip-assistant/internal/embedder"
	"github.com/ebttikar/oip-assistant/internal/rag"
	"github.com/ebttikar/oip-assistant/internal/server"
)

// getEnvOrDefault returns the env var value or a fallback when unset.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as int, or a fallback.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvFloat returns the env var parsed as float64, or a fallback.
func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// vectorBackend holds an opened vector store plus the probe and cleanup
// that go with it.
type vectorBackend struct {
	store  rag.VectorStore
	flat   *rag.FlatIndex // non-nil only for the flat backend
	pinger server.Pinger
	close  func()
}

// openVectorStore opens the configured vector backend. VECTOR_BACKEND
// selects flat (default, on-disk index under OIPA_INDEX_DIR) or qdrant.
// For the flat backend an existing index is loaded if present; serving
// before ingestion leaves the store unready, which the retriever surfaces
// to users as a "knowledge base not ready" answer.
func openVectorStore(ctx context.Context, log *slog.Logger) (*vectorBackend, error) {
	backend := getEnvOrDefault("VECTOR_BACKEND", "flat")
	switch backend {
	case "flat":
		indexDir := getEnvOrDefault("OIPA_INDEX_DIR", defaultIndexDir())
		idx := rag.NewFlatIndex(indexDir)
		loaded, err := idx.Load()
		if err != nil {
			return nil, fmt.Errorf("load index from %s: %w", indexDir, err)
		}
		if loaded {
			log.Info("vector index loaded", slog.String("dir", indexDir), slog.Int("chunks", idx.Count()))
		} else {
			log.Warn("no vector index found, document answers unavailable until ingestion",
				slog.String("dir", indexDir))
		}
		return &vectorBackend{
			store:  idx,
			flat:   idx,
			pinger: server.IndexPinger("vector-index", idx),
			close:  func() { _ = idx.Close() },
		}, nil

	case "qdrant":
		embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", "openai")
		vectorSize := uint64(embedder.DefaultDimensions(embBackend))
		store, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "oip-docs"),
			VectorSize: vectorSize,
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, fmt.Errorf("connect to qdrant: %w", err)
		}
		log.Info("qdrant store ready",
			slog.String("host", getEnvOrDefault("QDRANT_HOST", "localhost")),
			slog.String("collection", getEnvOrDefault("QDRANT_COLLECTION", "oip-docs")),
		)
		return &vectorBackend{
			store:  store,
			pinger: server.NewPinger("qdrant", store.Ping),
			close:  func() { _ = store.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unknown VECTOR_BACKEND %q (want flat or qdrant)", backend)
	}
}

// defaultIndexDir resolves ~/.oipa/index, falling back to a relative path
// when the home directory cannot be determined.
func defaultIndexDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".oipa-index"
	}
	return home + "/.oipa/index"
}

// buildRetriever wires the embedder and vector store into a retriever with
// the configured search parameters.
func buildRetriever(store rag.VectorStore, log *slog.Logger) (*rag.Retriever, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("initialise embedder: %w", err)
	}
	topK := getEnvInt("RETRIEVAL_TOP_K", rag.DefaultTopK)
	threshold := getEnvFloat("RETRIEVAL_THRESHOLD", rag.DefaultThreshold)
	return rag.NewRetriever(emb, store, topK, threshold), nil
}
