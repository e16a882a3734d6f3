// Package ingestion builds the document knowledge base: it scans a docs
// directory, chunks each supported file, embeds the chunks in batches and
// loads them into a vector store.
package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ebttikar/oip-assistant/internal/rag"
)

// embedBatchSize bounds each embedding API call.
const embedBatchSize = 20

// supportedExts are the file extensions the pipeline ingests as plain text.
var supportedExts = map[string]bool{
	".md":  true,
	".txt": true,
}

// binaryExts are formats that need extraction tooling this pipeline does
// not carry; they are reported so operators know they were skipped.
var binaryExts = map[string]bool{
	".pdf":  true,
	".docx": true,
	".doc":  true,
	".pptx": true,
	".xlsx": true,
}

// dimensioner is implemented by stores that must be sized before the
// first Add, such as the flat index.
type dimensioner interface {
	Create(dimension int)
}

// Stats summarizes one ingestion run.
type Stats struct {
	// Files is the number of documents ingested.
	Files int
	// Skipped counts unsupported files that were passed over.
	Skipped int
	// Chunks is the total number of chunks embedded and stored.
	Chunks int
	// Batches is the number of embedding API calls made.
	Batches int
}

// Pipeline ingests documents into a vector store.
type Pipeline struct {
	embedder  rag.Embedder
	store     rag.VectorStore
	chunkSize int
	overlap   int
	log       *slog.Logger
}

// NewPipeline returns a pipeline with the given chunking parameters.
// Zero chunkSize and overlap select the defaults.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, chunkSize, overlap int, log *slog.Logger) *Pipeline {
	if chunkSize <= 0 {
		chunkSize = rag.DefaultChunkSize
	}
	if overlap <= 0 || overlap >= chunkSize {
		overlap = rag.DefaultChunkOverlap
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		embedder:  embedder,
		store:     store,
		chunkSize: chunkSize,
		overlap:   overlap,
		log:       log,
	}
}

// Run ingests every supported file under docsDir, recursively. Files are
// processed in lexical path order so repeated runs produce the same index.
func (p *Pipeline) Run(ctx context.Context, docsDir string) (Stats, error) {
	var stats Stats

	chunks, skipped, err := p.collect(docsDir)
	if err != nil {
		return stats, err
	}
	stats.Skipped = skipped
	if len(chunks) == 0 {
		return stats, fmt.Errorf("ingestion: no supported documents found in %s", docsDir)
	}

	seen := make(map[string]bool)
	for _, c := range chunks {
		seen[c.Metadata.Source] = true
	}
	stats.Files = len(seen)
	stats.Chunks = len(chunks)

	for start := 0; start < len(chunks); start += embedBatchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		end := min(start+embedBatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return stats, fmt.Errorf("ingestion: embed batch %d: %w", stats.Batches+1, err)
		}
		if len(vectors) > 0 {
			if d, ok := p.store.(dimensioner); ok && !p.store.Ready() {
				d.Create(len(vectors[0]))
			}
		}
		if err := p.store.Add(ctx, batch, vectors); err != nil {
			return stats, fmt.Errorf("ingestion: store batch %d: %w", stats.Batches+1, err)
		}
		stats.Batches++
		p.log.Debug("batch stored", "batch", stats.Batches, "chunks", len(batch))
	}

	p.log.Info("ingestion complete",
		"files", stats.Files,
		"skipped", stats.Skipped,
		"chunks", stats.Chunks,
		"batches", stats.Batches,
	)
	return stats, nil
}

// collect walks docsDir and chunks every supported file.
func (p *Pipeline) collect(docsDir string) ([]rag.Chunk, int, error) {
	var chunks []rag.Chunk
	skipped := 0

	err := filepath.WalkDir(docsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		switch {
		case supportedExts[ext]:
		case binaryExts[ext]:
			p.log.Warn("skipping unsupported format, convert to markdown or plain text first", "file", path)
			skipped++
			return nil
		default:
			p.log.Debug("skipping file", "file", path)
			skipped++
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		source := name
		if rel, relErr := filepath.Rel(docsDir, path); relErr == nil {
			source = rel
		}
		fileChunks := rag.ChunkDocument(string(data), source, p.chunkSize, p.overlap)
		if len(fileChunks) == 0 {
			p.log.Warn("document produced no chunks", "file", path)
			return nil
		}
		chunks = append(chunks, fileChunks...)
		p.log.Debug("document chunked", "file", source, "chunks", len(fileChunks))
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("ingestion: scan %s: %w", docsDir, err)
	}
	return chunks, skipped, nil
}
