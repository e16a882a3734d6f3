package rag

import (
	"context"
	"fmt"
	"strings"
)

const (
	// DefaultTopK is the number of candidates fetched per query before
	// threshold filtering.
	DefaultTopK = 5

	// DefaultThreshold is the minimum similarity score a candidate must
	// reach to be included in the answer context.
	DefaultThreshold = 0.3
)

// Outcome classifies the result of a retrieval so callers can branch on it
// without inspecting errors or result lengths.
type Outcome int

const (
	// OutcomeSuccess means at least one chunk passed the threshold.
	OutcomeSuccess Outcome = iota

	// OutcomeNoResults means the search ran but nothing scored above the
	// threshold. Not an error: the corpus simply does not cover the query.
	OutcomeNoResults

	// OutcomeError means embedding or search failed; Err carries the cause.
	OutcomeError
)

// RetrievalResult is the tagged outcome of a single retrieval. Exactly one
// of Results/Context (success), the bare query (no results) or Err (error)
// is meaningful, selected by Outcome.
type RetrievalResult struct {
	Outcome Outcome
	Query   string
	Results []SearchResult
	Context string
	Err     error
}

// Retriever turns a user query into a formatted context block by embedding
// the query, searching the vector store and filtering hits by score.
type Retriever struct {
	embedder  Embedder
	store     VectorStore
	topK      int
	threshold float64
}

// NewRetriever wires an embedder and a vector store into a retriever.
// Non-positive topK and out-of-range thresholds fall back to defaults.
func NewRetriever(embedder Embedder, store VectorStore, topK int, threshold float64) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Retriever{embedder: embedder, store: store, topK: topK, threshold: threshold}
}

// Retrieve runs the full retrieval flow for query. It never panics and never
// returns a Go error; failures are folded into OutcomeError so the caller
// can render a safe message.
func (r *Retriever) Retrieve(ctx context.Context, query string) RetrievalResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return RetrievalResult{Outcome: OutcomeNoResults, Query: query}
	}
	if !r.store.Ready() {
		return RetrievalResult{Outcome: OutcomeError, Query: query, Err: ErrIndexUnavailable}
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return RetrievalResult{Outcome: OutcomeError, Query: query, Err: fmt.Errorf("embed query: %w", err)}
	}
	if len(embeddings) != 1 {
		return RetrievalResult{Outcome: OutcomeError, Query: query,
			Err: fmt.Errorf("embedder returned %d vectors for one query", len(embeddings))}
	}

	hits, err := r.store.Search(ctx, embeddings[0], r.topK)
	if err != nil {
		return RetrievalResult{Outcome: OutcomeError, Query: query, Err: fmt.Errorf("search index: %w", err)}
	}

	kept := hits[:0:0]
	for _, h := range hits {
		if h.Score >= r.threshold {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		return RetrievalResult{Outcome: OutcomeNoResults, Query: query}
	}
	return RetrievalResult{
		Outcome: OutcomeSuccess,
		Query:   query,
		Results: kept,
		Context: FormatContext(kept),
	}
}

// FormatContext renders search results as a source-tagged context block for
// the completion prompt. Each chunk is wrapped in a DOCUMENT element carrying
// its rank, source and relevance score.
func FormatContext(results []SearchResult) string {
	var b strings.Builder
	b.WriteString("<RETRIEVED_CONTEXT>\n")
	for i, r := range results {
		fmt.Fprintf(&b, "<DOCUMENT rank=\"%d\" source=\"%s\" relevance=\"%.2f\">\n", i+1, r.Metadata.Source, r.Score)
		b.WriteString(strings.TrimSpace(r.Text))
		b.WriteString("\n</DOCUMENT>\n")
	}
	b.WriteString("</RETRIEVED_CONTEXT>")
	return b.String()
}
