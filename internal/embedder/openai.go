// Package embedder provides rag.Embedder implementations for the embedding
// backends the assistant supports: OpenAI-compatible HTTP APIs (including
// OpenRouter) and a local Ollama server.
package embedder

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// defaultEmbedTimeout caps a single embeddings request. Without it a stalled
// upstream would hang ingestion, whose context carries no deadline.
const defaultEmbedTimeout = 60 * time.Second

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Point it at any OpenAI-compatible endpoint to use another provider.
	BaseURL string

	// APIKey authenticates requests.
	APIKey string

	// Model is the embedding model name (e.g. "text-embedding-3-small").
	Model string

	// Dimensions requests a specific output vector size; 0 uses the model
	// default.
	Dimensions int

	// Timeout bounds each embeddings request; 0 uses defaultEmbedTimeout.
	Timeout time.Duration
}

// OpenAIEmbedder implements rag.Embedder against an OpenAI-compatible
// embeddings endpoint. Safe for concurrent use.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultEmbedTimeout
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:          texts,
		Model:          openai.EmbeddingModel(e.model),
		Dimensions:     e.dimensions,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embedder: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	// The API does not guarantee response ordering; Index restores it.
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
