package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ebttikar/oip-assistant/internal/embedder"
	"github.com/ebttikar/oip-assistant/internal/ingestion"
	"github.com/ebttikar/oip-assistant/internal/logging"
	"github.com/ebttikar/oip-assistant/internal/rag"
)

// NewIngestCmd constructs the `oipa ingest` command, which rebuilds the
// document knowledge base from a directory of markdown and text files.
func NewIngestCmd() *cobra.Command {
	var docsDir string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Build the OIP document index from a docs directory",
		Long: `Chunk, embed and index the OIP documentation.

Markdown (.md) and plain text (.txt) files are ingested recursively; binary
formats such as PDF are skipped with a warning. With the default flat
backend the index is rebuilt from scratch and written atomically, so a
running server keeps serving the previous index until it restarts.

Environment variables:
  OIPA_DOCS_DIR        Docs directory (or use --docs)
  OIPA_INDEX_DIR       Flat index directory (default: ~/.oipa/index)
  VECTOR_BACKEND       flat (default) or qdrant
  EMBEDDING_PROVIDER   openai (default) or ollama
  CHUNK_SIZE           Max chunk length in characters (default: 500)
  CHUNK_OVERLAP        Cross-chunk overlap in characters (default: 50)

Examples:
  oipa ingest --docs ./docs
  VECTOR_BACKEND=qdrant oipa ingest --docs ./docs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if docsDir == "" {
				docsDir = getEnvOrDefault("OIPA_DOCS_DIR", "")
			}
			if docsDir == "" {
				return fmt.Errorf("ingest: --docs or OIPA_DOCS_DIR is required")
			}

			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: initialise embedder: %w", err)
			}

			chunkSize := getEnvInt("CHUNK_SIZE", rag.DefaultChunkSize)
			overlap := getEnvInt("CHUNK_OVERLAP", rag.DefaultChunkOverlap)

			backend := getEnvOrDefault("VECTOR_BACKEND", "flat")
			if backend == "flat" {
				// Rebuild into a fresh in-memory index, then persist it in
				// one atomic step.
				indexDir := getEnvOrDefault("OIPA_INDEX_DIR", defaultIndexDir())
				idx := rag.NewFlatIndex(indexDir)

				pipeline := ingestion.NewPipeline(emb, idx, chunkSize, overlap, log)
				stats, err := pipeline.Run(ctx, docsDir)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				if err := idx.Save(); err != nil {
					return fmt.Errorf("ingest: save index: %w", err)
				}
				log.Info("index saved",
					slog.String("dir", indexDir),
					slog.Int("files", stats.Files),
					slog.Int("chunks", stats.Chunks),
				)
				return nil
			}

			vb, err := openVectorStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer vb.close()

			pipeline := ingestion.NewPipeline(emb, vb.store, chunkSize, overlap, log)
			stats, err := pipeline.Run(ctx, docsDir)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			log.Info("ingestion complete", slog.Int("files", stats.Files), slog.Int("chunks", stats.Chunks))
			return nil
		},
	}

	cmd.Flags().StringVarP(&docsDir, "docs", "d", "", "Directory of documents to ingest")

	return cmd
}
